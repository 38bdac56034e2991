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

package config

import "fmt"

// Validate checks that a loaded Config is internally consistent enough
// to start a node. It does not check reachability of bootstrap
// endpoints or storage DSNs — those fail at dial/connect time instead.
func Validate(cfg *Config) error {
	if cfg.DHT != nil {
		if cfg.DHT.K <= 0 {
			return fmt.Errorf("dht.k must be greater than 0")
		}
		if cfg.DHT.Alpha <= 0 {
			return fmt.Errorf("dht.alpha must be greater than 0")
		}
		if cfg.DHT.ReplicationFactor <= 0 {
			return fmt.Errorf("dht.replication_factor must be greater than 0")
		}
	}

	if cfg.Overlay != nil {
		if cfg.Overlay.ActiveViewMaxSize <= 0 {
			return fmt.Errorf("overlay.active_view_max_size must be greater than 0")
		}
		if cfg.Overlay.PassiveViewMaxSize < cfg.Overlay.ActiveViewMaxSize {
			return fmt.Errorf("overlay.passive_view_max_size must be at least active_view_max_size")
		}
	}

	if cfg.Transport != nil {
		if cfg.Transport.MaxPendingMessages <= 0 {
			return fmt.Errorf("transport.max_pending_messages must be greater than 0")
		}
		if cfg.Transport.MaxMessageBytes <= 0 {
			return fmt.Errorf("transport.max_message_bytes must be greater than 0")
		}
	}

	if cfg.Storage != nil {
		switch cfg.Storage.Type {
		case "memory":
		case "postgres":
			if cfg.Storage.DSN == "" {
				return fmt.Errorf("storage.dsn is required when storage.type is postgres")
			}
		default:
			return fmt.Errorf("unknown storage.type %q (want memory or postgres)", cfg.Storage.Type)
		}
	}

	if cfg.Image != nil && cfg.Image.ChunkSizeBytes <= 0 {
		return fmt.Errorf("image.chunk_size_bytes must be greater than 0")
	}

	return nil
}
