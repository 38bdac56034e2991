// SPDX-License-Identifier: LGPL-3.0-or-later

package main

import (
	"context"
	"fmt"

	"github.com/mr-tron/base58"
	"github.com/spf13/cobra"

	"github.com/ember-net/ember/config"
	"github.com/ember-net/ember/crypto/vdf"
	"github.com/ember-net/ember/node"
)

var whoamiCmd = &cobra.Command{
	Use:   "whoami",
	Short: "Print the local identity's handle, node ID, and signing key",
	RunE:  runWhoami,
}

func init() {
	rootCmd.AddCommand(whoamiCmd)
}

func runWhoami(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(config.LoaderOptions{ConfigDir: configDir, EnvFile: envFile})
	if err != nil {
		return err
	}

	ctx := context.Background()
	store, err := node.OpenStorage(ctx, cfg.Storage)
	if err != nil {
		return err
	}
	defer store.Close()

	local, err := node.LoadOrCreateIdentity(ctx, cfg.Identity, store, vdf.New())
	if err != nil {
		return err
	}

	fmt.Printf("handle:      %s\n", local.Handle)
	fmt.Printf("node id:     %s\n", local.NodeID)
	fmt.Printf("sign pub:    %s (base58)\n", base58.Encode(local.SignPub))
	fmt.Printf("claimed at:  %s\n", local.ClaimedAt.Format("2006-01-02T15:04:05Z07:00"))
	return nil
}
