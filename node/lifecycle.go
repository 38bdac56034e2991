// SPDX-License-Identifier: LGPL-3.0-or-later

package node

import (
	"context"
	"fmt"
	"net"
	"net/http"

	"github.com/ember-net/ember/internal/logger"
)

// Start binds the peer-to-peer listener, starts every subsystem's
// background loop, dials the configured bootstrap peers, and starts the
// health endpoint. It returns once the listener is bound; bootstrap
// dialing and subsystem maintenance continue in the background.
func (n *Node) Start(ctx context.Context) error {
	addr := n.cfg.Transport.ListenAddr
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("node: listen on %s: %w", addr, err)
	}
	n.httpSrv = &http.Server{Addr: addr, Handler: n.Transport.Handler()}
	go func() {
		if err := n.httpSrv.Serve(ln); err != nil && err != http.ErrServerClosed {
			logger.Warn("node: transport listener exited", logger.Error(err))
		}
	}()

	n.Overlay.Start()
	n.Scribe.Start()
	n.Tree.Start()
	n.Registry.Start(ctx)
	n.Ephemeral.Start(ctx)
	n.Mixer.Start(ctx)

	if err := n.Health.Start(); err != nil {
		logger.Warn("node: health endpoint failed to start", logger.Error(err))
	}

	if err := n.Registry.Register(ctx, n.local); err != nil {
		logger.Warn("node: failed to publish own identity claim", logger.Error(err))
	}

	for _, endpoint := range n.cfg.Bootstrap.Endpoints {
		endpoint := endpoint
		go func() {
			dialCtx, cancel := context.WithTimeout(context.Background(), bootstrapTimeout)
			defer cancel()
			if err := n.Transport.Dial(dialCtx, endpoint); err != nil {
				logger.Warn("node: bootstrap dial failed", logger.String("addr", endpoint), logger.Error(err))
			}
		}()
	}

	return nil
}

// Stop tears every subsystem down in roughly reverse order of Start,
// giving the health and transport servers ctx's deadline to drain.
func (n *Node) Stop(ctx context.Context) error {
	n.Mixer.Stop()
	n.Ephemeral.Stop()
	n.Registry.Stop()
	n.Tree.Stop()
	n.Scribe.Stop()
	n.Overlay.Stop()

	if err := n.Health.Stop(ctx); err != nil {
		logger.Warn("node: health endpoint shutdown error", logger.Error(err))
	}

	var shutdownErr error
	if n.httpSrv != nil {
		shutdownErr = n.httpSrv.Shutdown(ctx)
	}
	if err := n.store.Close(); err != nil && shutdownErr == nil {
		shutdownErr = err
	}
	return shutdownErr
}
