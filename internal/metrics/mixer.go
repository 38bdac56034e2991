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
	// MixerRelays tracks messages relayed through the privacy mixer's
	// stem phase before entering the fluff (gossip) phase.
	MixerRelays = promauto.With(Registry).NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "mixer",
			Name:      "relays_total",
			Help:      "Total number of messages relayed along a stem path",
		},
	)

	// MixerFluffTransitions tracks stem-to-fluff handoffs.
	MixerFluffTransitions = promauto.With(Registry).NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "mixer",
			Name:      "fluff_transitions_total",
			Help:      "Total number of messages transitioned from stem to fluff broadcast",
		},
	)

	// MixerRelayDelay tracks the random delay applied before a relayed
	// message is forwarded.
	MixerRelayDelay = promauto.With(Registry).NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "mixer",
			Name:      "relay_delay_seconds",
			Help:      "Random delay applied before forwarding a relayed message",
			Buckets:   prometheus.LinearBuckets(0, 0.1, 20),
		},
	)

	// MixerCoverTrafficSent tracks synthetic cover-traffic messages emitted.
	MixerCoverTrafficSent = promauto.With(Registry).NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "mixer",
			Name:      "cover_traffic_sent_total",
			Help:      "Total number of cover-traffic messages emitted",
		},
	)
)
