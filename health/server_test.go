// SPDX-License-Identifier: LGPL-3.0-or-later

package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ember-net/ember/config"
)

func TestServerServesHealthzOverPlainHTTP(t *testing.T) {
	checker := NewHealthChecker(time.Second)
	checker.RegisterCheck("storage", func(ctx context.Context) error { return nil })

	s := NewServer(checker, &config.HealthConfig{Addr: "127.0.0.1:18099", Path: "/healthz"})
	require.NoError(t, s.Start())
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = s.Stop(ctx)
	}()

	var resp *http.Response
	require.Eventually(t, func() bool {
		r, err := http.Get("http://127.0.0.1:18099/healthz")
		if err != nil {
			return false
		}
		resp = r
		return true
	}, 2*time.Second, 10*time.Millisecond)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var sys SystemHealth
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&sys))
	assert.Equal(t, StatusHealthy, sys.Status)
}

func TestServerReturns503WhenUnhealthy(t *testing.T) {
	checker := NewHealthChecker(time.Second)
	checker.RegisterCheck("transport", func(ctx context.Context) error { return errors.New("no peers") })

	s := NewServer(checker, &config.HealthConfig{Addr: "127.0.0.1:18100", Path: "/healthz"})
	require.NoError(t, s.Start())
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = s.Stop(ctx)
	}()

	var resp *http.Response
	require.Eventually(t, func() bool {
		r, err := http.Get("http://127.0.0.1:18100/healthz")
		if err != nil {
			return false
		}
		resp = r
		return true
	}, 2*time.Second, 10*time.Millisecond)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}
