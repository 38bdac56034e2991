// SPDX-License-Identifier: LGPL-3.0-or-later

package broadcast

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSeenSetAddAndGet(t *testing.T) {
	s := newSeenSet()
	assert.False(t, s.has("a"))

	s.add("a", []byte("payload"))
	assert.True(t, s.has("a"))

	v, ok := s.get("a")
	require.True(t, ok)
	assert.Equal(t, "payload", string(v))
}

func TestSeenSetEvictsOldestOverCapacity(t *testing.T) {
	s := newSeenSet()
	for i := 0; i < maxSeenEntries+10; i++ {
		s.add(idFor(i), nil)
	}
	assert.LessOrEqual(t, len(s.order), maxSeenEntries)
	assert.False(t, s.has(idFor(0)))
	assert.True(t, s.has(idFor(maxSeenEntries+9)))
}

func TestSeenSetPrunesExpiredEntries(t *testing.T) {
	s := newSeenSet()
	s.add("old", []byte("x"))
	s.by["old"].at = time.Now().Add(-2 * time.Hour)

	s.prune()
	assert.False(t, s.has("old"))
}

func idFor(i int) string {
	const letters = "abcdefghijklmnopqrstuvwxyz0123456789"
	out := make([]byte, 0, 8)
	for i > 0 || len(out) == 0 {
		out = append(out, letters[i%len(letters)])
		i /= len(letters)
	}
	return string(out) + "-id"
}
