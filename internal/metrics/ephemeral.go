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
	// PostsCreated tracks posts admitted into the ephemeral store.
	PostsCreated = promauto.With(Registry).NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ephemeral",
			Name:      "posts_created_total",
			Help:      "Total number of posts admitted into the ephemeral store",
		},
	)

	// PostsEvicted tracks posts dropped by the heat/priority evictor.
	PostsEvicted = promauto.With(Registry).NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ephemeral",
			Name:      "posts_evicted_total",
			Help:      "Total number of posts evicted from the ephemeral store",
		},
		[]string{"reason"}, // capacity, ttl, low_priority
	)

	// PostsHeld tracks the current resident post count.
	PostsHeld = promauto.With(Registry).NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "ephemeral",
			Name:      "posts_held",
			Help:      "Number of posts currently resident in the ephemeral store",
		},
	)

	// PostCarriers tracks carrier-set size at the moment a post's heat
	// is recomputed.
	PostCarriers = promauto.With(Registry).NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "ephemeral",
			Name:      "post_carriers",
			Help:      "Carrier set size observed when recomputing a post's heat",
			Buckets:   prometheus.LinearBuckets(0, 5, 20),
		},
	)

	// SeenFilterHits tracks bloom-filter dedup outcomes for inbound posts.
	SeenFilterHits = promauto.With(Registry).NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ephemeral",
			Name:      "seen_filter_hits_total",
			Help:      "Total number of seen-message bloom filter lookups by outcome",
		},
		[]string{"tier", "outcome"}, // 1h/24h/7d, hit/miss
	)

	// RatingsRecorded tracks post rating events feeding the Beta posterior.
	RatingsRecorded = promauto.With(Registry).NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ephemeral",
			Name:      "ratings_recorded_total",
			Help:      "Total number of post ratings recorded",
		},
		[]string{"polarity"}, // positive, negative
	)

	// CarrierUpdatesApplied tracks inbound carrier_update messages that
	// changed a held post's carrier set.
	CarrierUpdatesApplied = promauto.With(Registry).NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ephemeral",
			Name:      "carrier_updates_applied_total",
			Help:      "Total number of carrier_update messages that changed a post's carrier set",
		},
	)
)
