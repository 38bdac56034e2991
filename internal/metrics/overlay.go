// Copyright (C) 2025 ember-net
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as
// published by the Free Software Foundation, either version 3 of the
// License, or (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with this program. If not, see <https://www.gnu.org/licenses/>.

// SPDX-License-Identifier: LGPL-3.0-or-later

package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// OverlayActiveViewSize tracks the HyParView active view size.
	OverlayActiveViewSize = promauto.With(Registry).NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "overlay",
			Name:      "active_view_size",
			Help:      "Number of peers currently in the HyParView active view",
		},
	)

	// OverlayPassiveViewSize tracks the HyParView passive view size.
	OverlayPassiveViewSize = promauto.With(Registry).NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "overlay",
			Name:      "passive_view_size",
			Help:      "Number of peers currently in the HyParView passive view",
		},
	)

	// OverlayShuffles tracks SHUFFLE/SHUFFLEREPLY exchanges.
	OverlayShuffles = promauto.With(Registry).NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "overlay",
			Name:      "shuffles_total",
			Help:      "Total number of HyParView shuffle exchanges performed",
		},
	)

	// OverlayForwardJoins tracks FORWARDJOIN propagation.
	OverlayForwardJoins = promauto.With(Registry).NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "overlay",
			Name:      "forward_joins_total",
			Help:      "Total number of FORWARDJOIN messages propagated",
		},
	)

	// OverlayActiveViewEvictions tracks peers dropped from the active
	// view to make room for a NEIGHBOR/JOIN admission.
	OverlayActiveViewEvictions = promauto.With(Registry).NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "overlay",
			Name:      "active_view_evictions_total",
			Help:      "Total number of peers evicted from the active view",
		},
	)

	// ScribeTreesJoined tracks topic multicast tree memberships held.
	ScribeTreesJoined = promauto.With(Registry).NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "scribe",
			Name:      "trees_joined",
			Help:      "Number of Scribe topic trees this node currently participates in",
		},
	)

	// ScribeMulticastMessages tracks topic multicast message delivery.
	ScribeMulticastMessages = promauto.With(Registry).NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "scribe",
			Name:      "multicast_messages_total",
			Help:      "Total number of Scribe multicast messages forwarded",
		},
		[]string{"direction"}, // upstream, downstream
	)
)
