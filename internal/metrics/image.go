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
	// ImageChunksStored tracks chunks admitted into the local chunk store.
	ImageChunksStored = promauto.With(Registry).NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "image",
			Name:      "chunks_stored_total",
			Help:      "Total number of content-addressed image chunks stored locally",
		},
	)

	// ImageChunksFetched tracks chunk fetch outcomes from peers.
	ImageChunksFetched = promauto.With(Registry).NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "image",
			Name:      "chunks_fetched_total",
			Help:      "Total number of image chunk fetches by outcome",
		},
		[]string{"outcome"}, // hit, miss, hash_mismatch
	)

	// ImageMerkleVerifications tracks Merkle root verification outcomes.
	ImageMerkleVerifications = promauto.With(Registry).NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "image",
			Name:      "merkle_verifications_total",
			Help:      "Total number of image Merkle root verifications",
		},
		[]string{"result"}, // valid, invalid
	)

	// ImageAssemblyDuration tracks the time to reassemble all chunks of
	// an image from the local chunk store.
	ImageAssemblyDuration = promauto.With(Registry).NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "image",
			Name:      "assembly_duration_seconds",
			Help:      "Time spent reassembling an image from stored chunks",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2, 14), // 1ms to ~16s
		},
	)
)
