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

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
)

// LoaderOptions configures the configuration loader.
type LoaderOptions struct {
	// ConfigDir is the directory containing config files (default: ./config).
	ConfigDir string
	// Environment overrides automatic environment detection.
	Environment string
	// EnvFile is a .env file to load before reading process environment
	// variables (local development convenience). Empty skips loading.
	EnvFile string
	// SkipValidation disables configuration validation.
	SkipValidation bool
}

// DefaultLoaderOptions returns default loader options.
func DefaultLoaderOptions() LoaderOptions {
	return LoaderOptions{
		ConfigDir: "config",
		EnvFile:   ".env",
	}
}

// Load loads configuration with automatic environment detection, a
// .env overlay, and EMBER_-prefixed environment variable overrides.
func Load(opts ...LoaderOptions) (*Config, error) {
	options := DefaultLoaderOptions()
	if len(opts) > 0 {
		options = opts[0]
	}

	if options.EnvFile != "" {
		// Local dev convenience only; a missing .env is not an error.
		_ = godotenv.Load(options.EnvFile)
	}

	env := options.Environment
	if env == "" {
		env = GetEnvironment()
	}

	envConfigPath := filepath.Join(options.ConfigDir, fmt.Sprintf("%s.yaml", env))
	cfg, err := loadConfigFile(envConfigPath)
	if err != nil {
		defaultConfigPath := filepath.Join(options.ConfigDir, "default.yaml")
		cfg, err = loadConfigFile(defaultConfigPath)
		if err != nil {
			configPath := filepath.Join(options.ConfigDir, "config.yaml")
			cfg, err = loadConfigFile(configPath)
			if err != nil {
				cfg = &Config{}
			}
		}
	}

	if cfg.Environment == "" {
		cfg.Environment = env
	}

	setDefaults(cfg)

	SubstituteEnvVarsInConfig(cfg)

	applyEnvironmentOverrides(cfg)

	if !options.SkipValidation {
		if err := Validate(cfg); err != nil {
			return nil, fmt.Errorf("configuration validation failed: %w", err)
		}
	}

	return cfg, nil
}

func loadConfigFile(path string) (*Config, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil, fmt.Errorf("config file not found: %s", path)
	}
	return LoadFromFile(path)
}

// applyEnvironmentOverrides overrides config with EMBER_-prefixed
// environment variables. These take priority over the config file (no CLI
// flag sets a config value), matching the documented surface in
// SPEC_FULL.md §A.3 for secrets that must never live in a committed YAML
// file.
func applyEnvironmentOverrides(cfg *Config) {
	if v := os.Getenv("EMBER_IDENTITY_PATH"); v != "" && cfg.Identity != nil {
		cfg.Identity.Path = v
	}
	if v := os.Getenv("EMBER_BOOTSTRAP_ENDPOINTS"); v != "" && cfg.Bootstrap != nil {
		cfg.Bootstrap.Endpoints = splitCSV(v)
	}
	if v := os.Getenv("EMBER_STORAGE_DSN"); v != "" && cfg.Storage != nil {
		cfg.Storage.DSN = v
	}
	if v := os.Getenv("EMBER_LISTEN_ADDR"); v != "" && cfg.Transport != nil {
		cfg.Transport.ListenAddr = v
	}
	if v := os.Getenv("EMBER_LOG_LEVEL"); v != "" && cfg.Logging != nil {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("EMBER_METRICS_ADDR"); v != "" && cfg.Metrics != nil {
		cfg.Metrics.Addr = v
	}
}

func splitCSV(s string) []string {
	var out []string
	start := 0
	for i := 0; i <= len(s); i++ {
		if i == len(s) || s[i] == ',' {
			if i > start {
				out = append(out, s[start:i])
			}
			start = i + 1
		}
	}
	return out
}

// LoadForEnvironment loads configuration for a specific environment.
func LoadForEnvironment(environment string) (*Config, error) {
	return Load(LoaderOptions{ConfigDir: "config", Environment: environment})
}

// MustLoad loads configuration or panics on error. Reserved for
// cmd/ember-node's CLI bootstrap where a bad config should fail fast.
func MustLoad(opts ...LoaderOptions) *Config {
	cfg, err := Load(opts...)
	if err != nil {
		panic(fmt.Sprintf("failed to load configuration: %v", err))
	}
	return cfg
}
