// SPDX-License-Identifier: LGPL-3.0-or-later

package health

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"time"

	"github.com/ember-net/ember/config"
	"github.com/ember-net/ember/internal/logger"
)

// Server exposes a HealthChecker's results over plain net/http, never on
// the peer-to-peer transport (SPEC_FULL.md's ambient health/metrics
// section): an operator polls this endpoint to tell a stalled-but-alive
// process apart from one that's actually serving its peers.
type Server struct {
	checker *HealthChecker
	addr    string
	path    string

	srv *http.Server
}

// NewServer constructs a Server bound to checker. cfg may be nil, in
// which case the server defaults to ":9101" and "/healthz".
func NewServer(checker *HealthChecker, cfg *config.HealthConfig) *Server {
	addr, path := ":9101", "/healthz"
	if cfg != nil {
		if cfg.Addr != "" {
			addr = cfg.Addr
		}
		if cfg.Path != "" {
			path = cfg.Path
		}
	}
	return &Server{checker: checker, addr: addr, path: path}
}

// Start begins serving in the background. It returns once the listener
// is bound, or immediately with an error if binding fails.
func (s *Server) Start() error {
	mux := http.NewServeMux()
	mux.HandleFunc(s.path, s.handle)
	s.srv = &http.Server{Addr: s.addr, Handler: mux}

	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return err
	}
	go func() {
		if err := s.srv.Serve(ln); err != nil && err != http.ErrServerClosed {
			logger.Warn("health: server exited", logger.Error(err))
		}
	}()
	return nil
}

// Stop gracefully shuts the server down.
func (s *Server) Stop(ctx context.Context) error {
	if s.srv == nil {
		return nil
	}
	return s.srv.Shutdown(ctx)
}

func (s *Server) handle(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	sys := s.checker.GetSystemHealth(ctx)

	w.Header().Set("Content-Type", "application/json")
	status := http.StatusOK
	if sys.Status == StatusUnhealthy {
		status = http.StatusServiceUnavailable
	}
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(sys)
}
