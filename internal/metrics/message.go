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
	// GossipMessagesReceived tracks Plumtree/gossip protocol messages
	// received by type.
	GossipMessagesReceived = promauto.With(Registry).NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "gossip",
			Name:      "messages_received_total",
			Help:      "Total number of gossip protocol messages received",
		},
		[]string{"type"}, // gossip, ihave, graft, prune
	)

	// GossipDuplicatesDropped tracks GOSSIP payloads suppressed because
	// their message id was already in the seen-message bloom filter.
	GossipDuplicatesDropped = promauto.With(Registry).NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "gossip",
			Name:      "duplicates_dropped_total",
			Help:      "Total number of duplicate gossip payloads suppressed",
		},
	)

	// GossipTreeRepairs tracks GRAFT operations issued after a missing
	// IHAVE advertisement timed out.
	GossipTreeRepairs = promauto.With(Registry).NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "gossip",
			Name:      "tree_repairs_total",
			Help:      "Total number of GRAFT messages sent to repair the broadcast tree",
		},
	)

	// GossipProcessingDuration tracks gossip message processing latency.
	GossipProcessingDuration = promauto.With(Registry).NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "gossip",
			Name:      "processing_duration_seconds",
			Help:      "Gossip message processing duration in seconds",
			Buckets:   prometheus.ExponentialBuckets(0.0001, 2, 12), // 0.1ms to ~409ms
		},
		[]string{"type"},
	)

	// GossipPayloadSize tracks gossip payload sizes.
	GossipPayloadSize = promauto.With(Registry).NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "gossip",
			Name:      "payload_size_bytes",
			Help:      "Gossip payload size in bytes",
			Buckets:   prometheus.ExponentialBuckets(64, 4, 10), // 64B to 16MB
		},
	)
)
