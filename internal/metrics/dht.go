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
	// DHTLookups tracks iterative FIND_NODE/FIND_VALUE lookups.
	DHTLookups = promauto.With(Registry).NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "dht",
			Name:      "lookups_total",
			Help:      "Total number of DHT lookups performed",
		},
		[]string{"kind", "result"}, // find_node/find_value, found/not_found/timeout
	)

	// DHTLookupHops tracks the number of α-parallel rounds an
	// iterative lookup needed before converging.
	DHTLookupHops = promauto.With(Registry).NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "dht",
			Name:      "lookup_hops",
			Help:      "Number of rounds an iterative lookup required to converge",
			Buckets:   prometheus.LinearBuckets(1, 1, 12),
		},
	)

	// DHTStores tracks STORE RPCs issued or served.
	DHTStores = promauto.With(Registry).NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "dht",
			Name:      "stores_total",
			Help:      "Total number of DHT STORE operations",
		},
		[]string{"role", "status"}, // origin/replica, accepted/rejected
	)

	// DHTRoutingTableSize tracks the live node count in the routing table.
	DHTRoutingTableSize = promauto.With(Registry).NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "dht",
			Name:      "routing_table_size",
			Help:      "Number of contacts currently held in the routing table",
		},
	)

	// DHTExpiredEntries tracks local KV entries dropped on TTL expiry.
	DHTExpiredEntries = promauto.With(Registry).NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "dht",
			Name:      "expired_entries_total",
			Help:      "Total number of DHT key/value entries expired locally",
		},
	)
)
