// SPDX-License-Identifier: LGPL-3.0-or-later

package post

import (
	"crypto/ed25519"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPostToRecordFromRecordRoundTrip(t *testing.T) {
	pub, priv, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)

	p, err := New("round trip", "", -1, "img", "alice", pub, priv, nil, nil)
	require.NoError(t, err)
	p.AddCarrier("bob")
	p.RatingAlpha = 3
	p.RatingBeta = 2
	p.RatingTotalW = 4

	rec, err := p.ToRecord()
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"alice", "bob"}, rec.Carriers)

	back, err := FromRecord(rec)
	require.NoError(t, err)
	assert.Equal(t, p.ID, back.ID)
	assert.True(t, back.IsCarrier("bob"))
	assert.Equal(t, 3.0, back.RatingAlpha)
	assert.True(t, VerifySignature(back))
}
