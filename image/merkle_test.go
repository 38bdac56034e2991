// SPDX-License-Identifier: LGPL-3.0-or-later

package image

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMerkleRootEmpty(t *testing.T) {
	assert.Equal(t, "", MerkleRoot(nil))
}

func TestMerkleRootSingleHash(t *testing.T) {
	h := HashChunk([]byte("only"))
	assert.Equal(t, h, MerkleRoot([]string{h}))
}

func TestMerkleRootOddLevelDuplicatesLastHash(t *testing.T) {
	h1, h2, h3 := HashChunk([]byte("a")), HashChunk([]byte("b")), HashChunk([]byte("c"))
	// Three leaves: level 1 is odd, so h3 is paired with itself.
	want := hashPair(hashPair(h1, h2), hashPair(h3, h3))
	assert.Equal(t, want, MerkleRoot([]string{h1, h2, h3}))
}

func TestMerkleRootIsOrderSensitive(t *testing.T) {
	h1, h2 := HashChunk([]byte("a")), HashChunk([]byte("b"))
	assert.NotEqual(t, MerkleRoot([]string{h1, h2}), MerkleRoot([]string{h2, h1}))
}

func TestMerkleRootStableAcrossCalls(t *testing.T) {
	h1, h2, h3, h4 := HashChunk([]byte("a")), HashChunk([]byte("b")), HashChunk([]byte("c")), HashChunk([]byte("d"))
	r1 := MerkleRoot([]string{h1, h2, h3, h4})
	r2 := MerkleRoot([]string{h1, h2, h3, h4})
	assert.Equal(t, r1, r2)
}
