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

// Package metrics exposes Prometheus instrumentation for every
// long-running Ember subsystem: transport handshakes, the DHT, the
// HyParView overlay, Plumtree broadcast, Scribe topic trees, the
// ephemeral post store, the image store, and the privacy mixer.
package metrics

import "github.com/prometheus/client_golang/prometheus"

const namespace = "ember"

// Registry is the process-wide Prometheus registry. internal/metrics
// registers every collector here rather than on prometheus.DefaultRegisterer
// so that tests and multiple in-process nodes (see node package tests
// wiring several instances in one test binary) don't collide on metric
// names.
var Registry = prometheus.NewRegistry()
