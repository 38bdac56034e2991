// SPDX-License-Identifier: LGPL-3.0-or-later

// Command ember-node runs one Ember peer: it loads configuration, wires
// every subsystem via the node package, and serves the peer-to-peer
// transport, health, and metrics endpoints until interrupted.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	configDir string
	envFile   string
)

var rootCmd = &cobra.Command{
	Use:   "ember-node",
	Short: "Run and operate an Ember peer",
	Long: `ember-node runs a single peer in the Ember network: an ephemeral,
peer-to-peer social network with no servers, no accounts, and no
permanent storage beyond what a node chooses to keep locally.`,
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.CompletionOptions.DisableDefaultCmd = true
	rootCmd.PersistentFlags().StringVar(&configDir, "config-dir", "config", "directory containing <environment>.yaml / default.yaml")
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "local .env overlay to load before reading the process environment")
}
