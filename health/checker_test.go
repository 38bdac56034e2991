// SPDX-License-Identifier: LGPL-3.0-or-later

package health

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHealthChecker(t *testing.T) {
	t.Run("RegisterAndCheck", func(t *testing.T) {
		checker := NewHealthChecker(1 * time.Second)

		checker.RegisterCheck("test_healthy", func(ctx context.Context) error { return nil })
		checker.RegisterCheck("test_unhealthy", func(ctx context.Context) error { return errors.New("service unavailable") })

		result, err := checker.Check(context.Background(), "test_healthy")
		require.NoError(t, err)
		assert.Equal(t, StatusHealthy, result.Status)

		result, err = checker.Check(context.Background(), "test_unhealthy")
		require.NoError(t, err)
		assert.Equal(t, StatusUnhealthy, result.Status)
		assert.Equal(t, "service unavailable", result.Message)
	})

	t.Run("CheckNonExistent", func(t *testing.T) {
		checker := NewHealthChecker(1 * time.Second)
		_, err := checker.Check(context.Background(), "non_existent")
		assert.Error(t, err)
	})

	t.Run("CheckWithTimeout", func(t *testing.T) {
		checker := NewHealthChecker(50 * time.Millisecond)
		checker.RegisterCheck("slow_check", func(ctx context.Context) error {
			select {
			case <-time.After(200 * time.Millisecond):
				return nil
			case <-ctx.Done():
				return ctx.Err()
			}
		})

		result, err := checker.Check(context.Background(), "slow_check")
		require.NoError(t, err)
		assert.Equal(t, StatusUnhealthy, result.Status)
	})

	t.Run("GetOverallStatus", func(t *testing.T) {
		checker := NewHealthChecker(1 * time.Second)
		checker.RegisterCheck("healthy1", func(ctx context.Context) error { return nil })
		assert.Equal(t, StatusHealthy, checker.GetOverallStatus(context.Background()))

		checker.RegisterCheck("unhealthy", func(ctx context.Context) error { return errors.New("down") })
		assert.Equal(t, StatusUnhealthy, checker.GetOverallStatus(context.Background()))

		checker.UnregisterCheck("unhealthy")
		assert.Equal(t, StatusHealthy, checker.GetOverallStatus(context.Background()))
	})

	t.Run("Caching", func(t *testing.T) {
		checker := NewHealthChecker(1 * time.Second)
		checker.SetCacheTTL(80 * time.Millisecond)

		callCount := 0
		checker.RegisterCheck("cached_check", func(ctx context.Context) error {
			callCount++
			return nil
		})

		_, err := checker.Check(context.Background(), "cached_check")
		require.NoError(t, err)
		_, err = checker.Check(context.Background(), "cached_check")
		require.NoError(t, err)
		assert.Equal(t, 1, callCount)

		time.Sleep(100 * time.Millisecond)
		_, err = checker.Check(context.Background(), "cached_check")
		require.NoError(t, err)
		assert.Equal(t, 2, callCount)
	})

	t.Run("GetSystemHealth", func(t *testing.T) {
		checker := NewHealthChecker(1 * time.Second)
		checker.RegisterCheck("storage", func(ctx context.Context) error { return nil })
		checker.RegisterCheck("transport", func(ctx context.Context) error { return errors.New("no peers") })

		sys := checker.GetSystemHealth(context.Background())
		assert.Equal(t, StatusUnhealthy, sys.Status)
		assert.Len(t, sys.Checks, 2)
		assert.NotZero(t, sys.Timestamp)
	})
}

func TestEmberHealthChecks(t *testing.T) {
	t.Run("TransportHealthCheck", func(t *testing.T) {
		check := TransportHealthCheck(func() int { return 3 })
		assert.NoError(t, check(context.Background()))

		check = TransportHealthCheck(func() int { return 0 })
		assert.Error(t, check(context.Background()))

		check = TransportHealthCheck(nil)
		assert.Error(t, check(context.Background()))
	})

	t.Run("DHTHealthCheck", func(t *testing.T) {
		check := DHTHealthCheck(func() int { return 1 })
		assert.NoError(t, check(context.Background()))

		check = DHTHealthCheck(func() int { return 0 })
		assert.Error(t, check(context.Background()))
	})

	t.Run("IdentityHealthCheck", func(t *testing.T) {
		check := IdentityHealthCheck(func() bool { return true })
		assert.NoError(t, check(context.Background()))

		check = IdentityHealthCheck(func() bool { return false })
		assert.Error(t, check(context.Background()))
	})

	t.Run("StorageHealthCheck", func(t *testing.T) {
		check := StorageHealthCheck(func(ctx context.Context) error { return nil })
		assert.NoError(t, check(context.Background()))

		check = StorageHealthCheck(func(ctx context.Context) error { return errors.New("connection refused") })
		assert.Error(t, check(context.Background()))
	})
}
