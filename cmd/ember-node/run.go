// SPDX-License-Identifier: LGPL-3.0-or-later

package main

import (
	"context"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/ember-net/ember/config"
	"github.com/ember-net/ember/internal/logger"
	"github.com/ember-net/ember/internal/metrics"
	"github.com/ember-net/ember/node"
	"github.com/ember-net/ember/pkg/version"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Start the peer and serve until interrupted",
	RunE:  runRun,
}

func init() {
	rootCmd.AddCommand(runCmd)
}

func runRun(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(config.LoaderOptions{ConfigDir: configDir, EnvFile: envFile})
	if err != nil {
		return err
	}

	l := logger.NewDefaultLogger()
	l.SetLevel(levelFromString(cfg.Logging.Level))
	logger.SetDefaultLogger(l)
	logger.Info("ember-node "+version.String(), logger.String("user_agent", version.UserAgent()))

	if cfg.Metrics != nil && cfg.Metrics.Enabled {
		go func() {
			if err := metrics.StartServer(cfg.Metrics.Addr); err != nil {
				logger.Warn("metrics server exited", logger.Error(err))
			}
		}()
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
	logger.Info("ember-node started", logger.String("handle", n.Handle()), logger.String("listen_addr", cfg.Transport.ListenAddr))

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	logger.Info("ember-node shutting down")
	stopCtx, stopCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer stopCancel()
	return n.Stop(stopCtx)
}

func levelFromString(s string) logger.Level {
	switch strings.ToUpper(s) {
	case "DEBUG":
		return logger.DebugLevel
	case "WARN":
		return logger.WarnLevel
	case "ERROR":
		return logger.ErrorLevel
	default:
		return logger.InfoLevel
	}
}
