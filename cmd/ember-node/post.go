// SPDX-License-Identifier: LGPL-3.0-or-later

package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/ember-net/ember/config"
	"github.com/ember-net/ember/node"
)

var (
	postParent    string
	postImageHash string
	postWait      time.Duration
)

var postCmd = &cobra.Command{
	Use:   "post [content]",
	Short: "Bring up the local peer just long enough to author and disseminate one post",
	Args:  cobra.ExactArgs(1),
	RunE:  runPost,
}

func init() {
	rootCmd.AddCommand(postCmd)
	postCmd.Flags().StringVar(&postParent, "parent", "", "parent post ID, for a reply")
	postCmd.Flags().StringVar(&postImageHash, "image", "", "attached image's Merkle root, already fetched into the local image store")
	postCmd.Flags().DurationVar(&postWait, "wait", 3*time.Second, "how long to keep the peer up after posting, to let dissemination start")
}

func runPost(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(config.LoaderOptions{ConfigDir: configDir, EnvFile: envFile})
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	n, err := node.New(ctx, cfg)
	if err != nil {
		return err
	}
	if err := n.Start(ctx); err != nil {
		return err
	}

	p, err := n.CreatePost(ctx, args[0], postParent, postImageHash)
	if err != nil {
		stopCtx, stopCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer stopCancel()
		_ = n.Stop(stopCtx)
		return err
	}
	fmt.Printf("posted %s\n", p.ID)

	time.Sleep(postWait)

	stopCtx, stopCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer stopCancel()
	return n.Stop(stopCtx)
}
