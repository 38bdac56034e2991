// SPDX-License-Identifier: LGPL-3.0-or-later

package scribe

import (
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDedupRingAddAndHas(t *testing.T) {
	r := newDedupRing(1000)
	assert.False(t, r.has("a"))
	r.add("a")
	assert.True(t, r.has("a"))
}

func TestDedupRingEvictsOldestOverCapacity(t *testing.T) {
	r := newDedupRing(1000)
	for i := 0; i < 1010; i++ {
		r.add("id-" + strconv.Itoa(i))
	}
	assert.LessOrEqual(t, len(r.order), 1000)
	assert.False(t, r.has("id-0"))
	assert.True(t, r.has("id-1009"))
}
