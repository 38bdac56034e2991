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
	// ConnectionsOpened tracks total peer connections opened.
	ConnectionsOpened = promauto.With(Registry).NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "connections",
			Name:      "opened_total",
			Help:      "Total number of transport connections opened",
		},
		[]string{"direction"}, // inbound, outbound
	)

	// ConnectionsActive tracks currently open connections.
	ConnectionsActive = promauto.With(Registry).NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "connections",
			Name:      "active",
			Help:      "Number of currently open transport connections",
		},
	)

	// ConnectionsClosed tracks connection closures by reason.
	ConnectionsClosed = promauto.With(Registry).NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "connections",
			Name:      "closed_total",
			Help:      "Total number of transport connections closed",
		},
		[]string{"reason"}, // graceful, idle_timeout, rate_limited, error
	)

	// ConnectionOpDuration tracks transport send/receive latency.
	ConnectionOpDuration = promauto.With(Registry).NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "connections",
			Name:      "op_duration_seconds",
			Help:      "Transport operation duration in seconds",
			Buckets:   prometheus.ExponentialBuckets(0.0001, 2, 15), // 0.1ms to 1.6s
		},
		[]string{"operation"}, // send, receive
	)

	// MessageSize tracks wire message sizes.
	MessageSize = promauto.With(Registry).NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "connections",
			Name:      "message_size_bytes",
			Help:      "Size of messages sent or received over a peer connection",
			Buckets:   prometheus.ExponentialBuckets(64, 4, 10), // 64B to 16MB
		},
		[]string{"direction"}, // inbound, outbound
	)

	// OutboundQueueDepth tracks the bounded per-peer outbound queue
	// depth against MAX_PENDING_MESSAGES.
	OutboundQueueDepth = promauto.With(Registry).NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "connections",
			Name:      "outbound_queue_depth",
			Help:      "Depth of a peer's outbound message queue when a message is enqueued",
			Buckets:   prometheus.LinearBuckets(0, 10, 11), // 0..100
		},
	)
)
