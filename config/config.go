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

// Package config provides configuration management for an Ember node.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration for an Ember node.
type Config struct {
	Environment string           `yaml:"environment" json:"environment"`
	Identity    *IdentityConfig  `yaml:"identity" json:"identity"`
	Bootstrap   *BootstrapConfig `yaml:"bootstrap" json:"bootstrap"`
	DHT         *DHTConfig       `yaml:"dht" json:"dht"`
	Overlay     *OverlayConfig   `yaml:"overlay" json:"overlay"`
	Scribe      *ScribeConfig    `yaml:"scribe" json:"scribe"`
	Transport   *TransportConfig `yaml:"transport" json:"transport"`
	Ephemeral   *EphemeralConfig `yaml:"ephemeral" json:"ephemeral"`
	Image       *ImageConfig     `yaml:"image" json:"image"`
	Mixer       *MixerConfig     `yaml:"mixer" json:"mixer"`
	Storage     *StorageConfig   `yaml:"storage" json:"storage"`
	Logging     *LoggingConfig   `yaml:"logging" json:"logging"`
	Metrics     *MetricsConfig   `yaml:"metrics" json:"metrics"`
	Health      *HealthConfig    `yaml:"health" json:"health"`
}

// IdentityConfig controls where and how the local identity's key
// material is loaded.
type IdentityConfig struct {
	Path            string `yaml:"path" json:"path"`
	CreateIfMissing bool   `yaml:"create_if_missing" json:"create_if_missing"`
	// PassphraseEnv names the environment variable holding the vault
	// passphrase. The passphrase itself is never read from the YAML file.
	PassphraseEnv string `yaml:"passphrase_env" json:"passphrase_env"`
	Handle        string `yaml:"handle" json:"handle"`
	// VDFIterations sets the time-lock cost of minting a new handle. Higher
	// values take proportionally longer to compute and to verify.
	VDFIterations uint64 `yaml:"vdf_iterations" json:"vdf_iterations"`
}

// BootstrapConfig lists the peers a node dials on startup to join the
// overlay and seed its DHT routing table.
type BootstrapConfig struct {
	Endpoints []string `yaml:"endpoints" json:"endpoints"`
}

// DHTConfig tunes the Kademlia routing table and lookup parameters.
type DHTConfig struct {
	K                 int           `yaml:"k" json:"k"`
	Alpha             int           `yaml:"alpha" json:"alpha"`
	ReplicationFactor int           `yaml:"replication_factor" json:"replication_factor"`
	RecordTTL         time.Duration `yaml:"record_ttl" json:"record_ttl"`
	RepublishInterval time.Duration `yaml:"republish_interval" json:"republish_interval"`
}

// OverlayConfig tunes HyParView membership and Scribe/Plumtree fanout.
type OverlayConfig struct {
	ActiveViewMaxSize  int           `yaml:"active_view_max_size" json:"active_view_max_size"`
	PassiveViewMaxSize int           `yaml:"passive_view_max_size" json:"passive_view_max_size"`
	ShuffleInterval    time.Duration `yaml:"shuffle_interval" json:"shuffle_interval"`
	ARWL               int           `yaml:"arwl" json:"arwl"` // active random walk length
	PRWL               int           `yaml:"prwl" json:"prwl"` // passive random walk length
}

// ScribeConfig tunes topic multicast tree maintenance.
type ScribeConfig struct {
	MaxChildren       int           `yaml:"max_children" json:"max_children"`
	HeartbeatInterval time.Duration `yaml:"heartbeat_interval" json:"heartbeat_interval"`
	TreeRepairTimeout time.Duration `yaml:"tree_repair_timeout" json:"tree_repair_timeout"`
	MaxDedupPerTopic  int           `yaml:"max_dedup_per_topic" json:"max_dedup_per_topic"`
}

// TransportConfig controls the peer wire transport.
type TransportConfig struct {
	ListenAddr         string        `yaml:"listen_addr" json:"listen_addr"`
	MaxPendingMessages int           `yaml:"max_pending_messages" json:"max_pending_messages"`
	HandshakeTimeout   time.Duration `yaml:"handshake_timeout" json:"handshake_timeout"`
	MaxMessageBytes    int           `yaml:"max_message_bytes" json:"max_message_bytes"`
	RateLimitPerIP     int           `yaml:"rate_limit_per_ip" json:"rate_limit_per_ip"`
}

// EphemeralConfig tunes the post store's capacity, eviction, and
// seen-message dedup bloom filters.
type EphemeralConfig struct {
	MaxPosts         int     `yaml:"max_posts" json:"max_posts"`
	SeenFilterFPRate float64 `yaml:"seen_filter_fp_rate" json:"seen_filter_fp_rate"`
}

// ImageConfig tunes content-addressed image chunking.
type ImageConfig struct {
	ChunkSizeBytes int `yaml:"chunk_size_bytes" json:"chunk_size_bytes"`
}

// MixerConfig tunes the privacy mixer's stem/fluff relay behavior.
type MixerConfig struct {
	Enabled bool `yaml:"enabled" json:"enabled"`
	// RelayTopic names the Scribe topic reserved for mixer traffic.
	RelayTopic       string        `yaml:"relay_topic" json:"relay_topic"`
	MaxRelayHops     int           `yaml:"max_relay_hops" json:"max_relay_hops"`
	RelayDelayMin    time.Duration `yaml:"relay_delay_min" json:"relay_delay_min"`
	RelayDelayMax    time.Duration `yaml:"relay_delay_max" json:"relay_delay_max"`
	CoverTrafficRate float64       `yaml:"cover_traffic_rate" json:"cover_traffic_rate"`
	// CoverTrafficInterval is how often an idle node considers emitting a
	// cover-traffic message (subject to CoverTrafficRate).
	CoverTrafficInterval time.Duration `yaml:"cover_traffic_interval" json:"cover_traffic_interval"`
}

// StorageConfig selects and configures the persistence backend.
type StorageConfig struct {
	Type string `yaml:"type" json:"type"` // memory, postgres
	DSN  string `yaml:"dsn,omitempty" json:"dsn,omitempty"`
}

// LoggingConfig represents logging configuration.
type LoggingConfig struct {
	Level  string `yaml:"level" json:"level"`
	Format string `yaml:"format" json:"format"`
	Output string `yaml:"output" json:"output"`
}

// MetricsConfig represents metrics configuration.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled" json:"enabled"`
	Addr    string `yaml:"addr" json:"addr"`
	Path    string `yaml:"path" json:"path"`
}

// HealthConfig represents health check configuration.
type HealthConfig struct {
	Enabled bool   `yaml:"enabled" json:"enabled"`
	Addr    string `yaml:"addr" json:"addr"`
	Path    string `yaml:"path" json:"path"`
}

// LoadFromFile loads configuration from a YAML (or JSON) file.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := &Config{}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		if jsonErr := json.Unmarshal(data, cfg); jsonErr != nil {
			return nil, fmt.Errorf("failed to parse config file (tried YAML and JSON): %w", err)
		}
	}

	setDefaults(cfg)

	return cfg, nil
}

// SaveToFile saves configuration to a file, choosing format by extension.
func SaveToFile(cfg *Config, path string) error {
	var data []byte
	var err error

	if len(path) > 5 && path[len(path)-5:] == ".json" {
		data, err = json.MarshalIndent(cfg, "", "  ")
	} else {
		data, err = yaml.Marshal(cfg)
	}
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// setDefaults fills in a node's defaults. spec.md §4.3/§4.2 fix K=20,
// alpha=3, active view <=5, passive view <=30; the rest are operational
// defaults chosen to keep a single node usable out of the box.
func setDefaults(cfg *Config) {
	if cfg.Environment == "" {
		cfg.Environment = "development"
	}

	if cfg.Identity == nil {
		cfg.Identity = &IdentityConfig{}
	}
	if cfg.Identity.Path == "" {
		cfg.Identity.Path = ".ember/identity.json"
	}
	if cfg.Identity.PassphraseEnv == "" {
		cfg.Identity.PassphraseEnv = "EMBER_IDENTITY_PASSPHRASE"
	}
	if cfg.Identity.VDFIterations == 0 {
		cfg.Identity.VDFIterations = 2_000_000
	}

	if cfg.Bootstrap == nil {
		cfg.Bootstrap = &BootstrapConfig{}
	}

	if cfg.DHT == nil {
		cfg.DHT = &DHTConfig{}
	}
	if cfg.DHT.K == 0 {
		cfg.DHT.K = 20
	}
	if cfg.DHT.Alpha == 0 {
		cfg.DHT.Alpha = 3
	}
	if cfg.DHT.ReplicationFactor == 0 {
		cfg.DHT.ReplicationFactor = 20
	}
	if cfg.DHT.RecordTTL == 0 {
		cfg.DHT.RecordTTL = 24 * time.Hour
	}
	if cfg.DHT.RepublishInterval == 0 {
		cfg.DHT.RepublishInterval = time.Hour
	}

	if cfg.Overlay == nil {
		cfg.Overlay = &OverlayConfig{}
	}
	if cfg.Overlay.ActiveViewMaxSize == 0 {
		cfg.Overlay.ActiveViewMaxSize = 5
	}
	if cfg.Overlay.PassiveViewMaxSize == 0 {
		cfg.Overlay.PassiveViewMaxSize = 30
	}
	if cfg.Overlay.ShuffleInterval == 0 {
		cfg.Overlay.ShuffleInterval = 30 * time.Second
	}
	if cfg.Overlay.ARWL == 0 {
		cfg.Overlay.ARWL = 6
	}
	if cfg.Overlay.PRWL == 0 {
		cfg.Overlay.PRWL = 3
	}

	if cfg.Scribe == nil {
		cfg.Scribe = &ScribeConfig{}
	}
	if cfg.Scribe.MaxChildren == 0 {
		cfg.Scribe.MaxChildren = 16
	}
	if cfg.Scribe.HeartbeatInterval == 0 {
		cfg.Scribe.HeartbeatInterval = 30 * time.Second
	}
	if cfg.Scribe.TreeRepairTimeout == 0 {
		cfg.Scribe.TreeRepairTimeout = 60 * time.Second
	}
	if cfg.Scribe.MaxDedupPerTopic == 0 {
		cfg.Scribe.MaxDedupPerTopic = 1000
	}

	if cfg.Transport == nil {
		cfg.Transport = &TransportConfig{}
	}
	if cfg.Transport.ListenAddr == "" {
		cfg.Transport.ListenAddr = "0.0.0.0:7946"
	}
	if cfg.Transport.MaxPendingMessages == 0 {
		cfg.Transport.MaxPendingMessages = 100
	}
	if cfg.Transport.HandshakeTimeout == 0 {
		cfg.Transport.HandshakeTimeout = 10 * time.Second
	}
	if cfg.Transport.MaxMessageBytes == 0 {
		cfg.Transport.MaxMessageBytes = 1 << 20 // 1 MiB
	}
	if cfg.Transport.RateLimitPerIP == 0 {
		cfg.Transport.RateLimitPerIP = 10
	}

	if cfg.Ephemeral == nil {
		cfg.Ephemeral = &EphemeralConfig{}
	}
	if cfg.Ephemeral.MaxPosts == 0 {
		cfg.Ephemeral.MaxPosts = 1000
	}
	if cfg.Ephemeral.SeenFilterFPRate == 0 {
		cfg.Ephemeral.SeenFilterFPRate = 0.01
	}

	if cfg.Image == nil {
		cfg.Image = &ImageConfig{}
	}
	if cfg.Image.ChunkSizeBytes == 0 {
		cfg.Image.ChunkSizeBytes = 64 * 1024
	}

	if cfg.Mixer == nil {
		cfg.Mixer = &MixerConfig{}
	}
	if cfg.Mixer.RelayTopic == "" {
		cfg.Mixer.RelayTopic = "__ember_mixer__"
	}
	if cfg.Mixer.MaxRelayHops == 0 {
		cfg.Mixer.MaxRelayHops = 3
	}
	if cfg.Mixer.RelayDelayMin == 0 {
		cfg.Mixer.RelayDelayMin = 200 * time.Millisecond
	}
	if cfg.Mixer.RelayDelayMax == 0 {
		cfg.Mixer.RelayDelayMax = 2 * time.Second
	}
	if cfg.Mixer.CoverTrafficInterval == 0 {
		cfg.Mixer.CoverTrafficInterval = 30 * time.Second
	}

	if cfg.Storage == nil {
		cfg.Storage = &StorageConfig{}
	}
	if cfg.Storage.Type == "" {
		cfg.Storage.Type = "memory"
	}

	if cfg.Logging == nil {
		cfg.Logging = &LoggingConfig{}
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}
	if cfg.Logging.Output == "" {
		cfg.Logging.Output = "stdout"
	}

	if cfg.Metrics == nil {
		cfg.Metrics = &MetricsConfig{}
	}
	if cfg.Metrics.Addr == "" {
		cfg.Metrics.Addr = ":9100"
	}
	if cfg.Metrics.Path == "" {
		cfg.Metrics.Path = "/metrics"
	}

	if cfg.Health == nil {
		cfg.Health = &HealthConfig{}
	}
	if cfg.Health.Addr == "" {
		cfg.Health.Addr = ":9101"
	}
	if cfg.Health.Path == "" {
		cfg.Health.Path = "/healthz"
	}
}
