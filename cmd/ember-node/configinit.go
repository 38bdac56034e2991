// SPDX-License-Identifier: LGPL-3.0-or-later

package main

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/ember-net/ember/config"
)

var configInitOutput string

var configInitCmd = &cobra.Command{
	Use:   "config-init",
	Short: "Write a default configuration file to start from",
	RunE:  runConfigInit,
}

func init() {
	rootCmd.AddCommand(configInitCmd)
	configInitCmd.Flags().StringVar(&configInitOutput, "out", "", "output path (default: <config-dir>/default.yaml)")
}

func runConfigInit(cmd *cobra.Command, args []string) error {
	out := configInitOutput
	if out == "" {
		out = filepath.Join(configDir, "default.yaml")
	}

	// A config dir guaranteed not to exist means no config file is
	// found, so Load falls back to a zero-value Config and fills it in
	// with setDefaults — the same defaulting path a real startup takes,
	// which is what this command is meant to capture on disk for
	// editing.
	cfg, err := config.Load(config.LoaderOptions{ConfigDir: filepath.Join(os.TempDir(), "ember-config-init-"+time.Now().Format("20060102150405.000000000"))})
	if err != nil {
		return err
	}

	if err := config.SaveToFile(cfg, out); err != nil {
		return err
	}
	fmt.Printf("wrote default configuration to %s\n", out)
	return nil
}
