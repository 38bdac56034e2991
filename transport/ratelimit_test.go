// SPDX-License-Identifier: LGPL-3.0-or-later

package transport

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestIPConnLimiterBlocksAfterThreshold(t *testing.T) {
	l := newIPConnLimiter(60*time.Second, 3, 5*time.Minute)

	for i := 0; i < 3; i++ {
		assert.True(t, l.Allow("1.2.3.4"))
	}
	assert.False(t, l.Allow("1.2.3.4"))
	// A different IP is unaffected.
	assert.True(t, l.Allow("5.6.7.8"))
}

func TestMessageTypeLimiterOnlyAppliesToRateLimitedTypes(t *testing.T) {
	l := newMessageTypeLimiter(60*time.Second, 2)
	peer := PeerID("peer-1")

	assert.True(t, l.Allow(peer, TypeNewPost))
	assert.True(t, l.Allow(peer, TypeNewPost))
	assert.False(t, l.Allow(peer, TypeNewPost))

	// request_posts isn't in the rate-limited set.
	for i := 0; i < 10; i++ {
		assert.True(t, l.Allow(peer, TypeRequestPosts))
	}
}

func TestMessageTypeLimiterForgetResetsPeer(t *testing.T) {
	l := newMessageTypeLimiter(60*time.Second, 1)
	peer := PeerID("peer-1")

	assert.True(t, l.Allow(peer, TypeParentUpdate))
	assert.False(t, l.Allow(peer, TypeParentUpdate))

	l.Forget(peer)
	assert.True(t, l.Allow(peer, TypeParentUpdate))
}
