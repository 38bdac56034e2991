// SPDX-License-Identifier: LGPL-3.0-or-later

package ephemeral

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestSeenFilterAddThenHas(t *testing.T) {
	f := newSeenFilter(0.01)
	assert.False(t, f.has("m1"))
	f.add("m1")
	assert.True(t, f.has("m1"))
	assert.False(t, f.has("m2"))
}

func TestSeenFilterReseedsAfterMajorityAgesOut(t *testing.T) {
	f := newSeenFilter(0.01)

	// Seed three ids as if inserted well outside the 1h tier's window,
	// then add a fourth fresh id; the 1h tier should reseed down to just
	// the still-live id once > 50% of what it tracked has aged out.
	now := time.Now()
	f.mu.Lock()
	for _, id := range []string{"old1", "old2", "old3"} {
		f.ids[id] = now.Add(-2 * time.Hour)
		f.tiers[0].bloom.AddString(id)
		f.tiers[0].totalAdded++
	}
	f.mu.Unlock()

	f.add("fresh")

	f.mu.Lock()
	liveTotal := f.tiers[0].totalAdded
	f.mu.Unlock()
	assert.Equal(t, 1, liveTotal)
	assert.True(t, f.has("fresh"))
}

func TestSeenFilterEvictsExpiredFromMasterRecord(t *testing.T) {
	f := newSeenFilter(0.01)
	f.mu.Lock()
	f.ids["ancient"] = time.Now().Add(-8 * 24 * time.Hour)
	f.mu.Unlock()

	f.add("new")

	f.mu.Lock()
	_, stillTracked := f.ids["ancient"]
	f.mu.Unlock()
	assert.False(t, stillTracked)
}
