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
	// PostsAccepted tracks posts that clear the receipt pipeline, split by
	// whether they were promoted by attestation trust or locally verified.
	PostsAccepted = promauto.With(Registry).NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "post",
			Name:      "accepted_total",
			Help:      "Total number of posts accepted into the ephemeral store",
		},
		[]string{"path"}, // trusted, verified
	)

	// PostsRejected tracks posts discarded by the receipt pipeline, by
	// reason.
	PostsRejected = promauto.With(Registry).NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "post",
			Name:      "rejected_total",
			Help:      "Total number of posts discarded by the receipt pipeline",
		},
		[]string{"reason"}, // bad_signature, author_binding_failed, vdf_failed
	)

	// PostAttestationsApplied tracks attestations that contributed trust
	// to a pending post.
	PostAttestationsApplied = promauto.With(Registry).NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "post",
			Name:      "attestations_applied_total",
			Help:      "Total number of post_attestation messages accepted",
		},
	)
)
