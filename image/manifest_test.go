// SPDX-License-Identifier: LGPL-3.0-or-later

package image

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildManifestMatchesMerkleRootOverChunkHashes(t *testing.T) {
	data := bytes.Repeat([]byte{0x7F}, 64*1024*2+10)
	manifest, chunks := BuildManifest(data, 64*1024)
	require.Len(t, chunks, 3)
	require.Len(t, manifest.Chunks, 3)
	assert.Equal(t, int64(len(data)), manifest.TotalSize)

	hashes := make([]string, len(manifest.Chunks))
	for i, c := range manifest.Chunks {
		hashes[i] = c.Hash
	}
	assert.Equal(t, MerkleRoot(hashes), manifest.MerkleRoot)
	assert.True(t, manifest.Verify())
}

func TestManifestVerifyFailsOnTamperedChunkHash(t *testing.T) {
	data := bytes.Repeat([]byte{0x01}, 100)
	manifest, _ := BuildManifest(data, 64)
	manifest.Chunks[0].Hash = HashChunk([]byte("tampered"))
	assert.False(t, manifest.Verify())
}

func TestManifestRecordRoundTrip(t *testing.T) {
	data := bytes.Repeat([]byte{0x02}, 200)
	manifest, _ := BuildManifest(data, 64)

	rec := manifest.toRecord()
	back := manifestFromRecord(rec)

	assert.Equal(t, manifest.MerkleRoot, back.MerkleRoot)
	assert.Equal(t, manifest.TotalSize, back.TotalSize)
	require.Len(t, back.Chunks, len(manifest.Chunks))
	for i := range manifest.Chunks {
		assert.Equal(t, manifest.Chunks[i], back.Chunks[i])
	}
}
