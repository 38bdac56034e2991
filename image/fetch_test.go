// SPDX-License-Identifier: LGPL-3.0-or-later

package image

import (
	"bytes"
	"context"
	"encoding/base64"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ember-net/ember/storage/memory"
	"github.com/ember-net/ember/transport"
)

func TestHandleRequestImageRespondsWithManifestAndAvailableChunks(t *testing.T) {
	ctx := context.Background()
	db := memory.NewStore()
	tr := newTestTransport(t)
	s := New("self", tr, nil, db)

	manifest, err := s.Upload(ctx, bytes.Repeat([]byte{0x9}, 100))
	require.NoError(t, err)

	msg := &transport.Message{Fields: map[string]any{"merkle_root": manifest.MerkleRoot}}
	// "peer1" is not connected; Send silently no-ops, exercising the
	// encode/lookup path without requiring a live connection.
	s.HandleRequestImage("peer1", msg)
}

func TestHandleRequestImageUnknownRootIsSilentlyIgnored(t *testing.T) {
	db := memory.NewStore()
	tr := newTestTransport(t)
	s := New("self", tr, nil, db)

	msg := &transport.Message{Fields: map[string]any{"merkle_root": "nope"}}
	s.HandleRequestImage("peer1", msg)
}

func TestHandleImageResponseStoresManifestAndChunksThenResolvesWaiter(t *testing.T) {
	ctx := context.Background()

	// Peer side: build the canonical manifest+chunks for some data.
	srcDB := memory.NewStore()
	src := New("peer", nil, nil, srcDB)
	data := bytes.Repeat([]byte{0x5}, 100)
	manifest, err := src.Upload(ctx, data)
	require.NoError(t, err)

	available := make(map[string]any, len(manifest.Chunks))
	for _, c := range manifest.Chunks {
		rec, err := srcDB.LoadChunk(ctx, c.Hash)
		require.NoError(t, err)
		available[c.Hash] = base64.StdEncoding.EncodeToString(rec.Data)
	}

	// Local side: fresh store with no local state, awaiting this root.
	db := memory.NewStore()
	s := New("self", nil, nil, db)
	var got []byte
	var gotErr error
	s.awaitManifest(manifest.MerkleRoot, func(d []byte, err error) { got, gotErr = d, err })

	msg := &transport.Message{Fields: map[string]any{
		"merkle_root": manifest.MerkleRoot,
		"total_size":  float64(manifest.TotalSize),
		"chunks":      manifestChunkFields(manifest),
		"available":   available,
	}}
	s.HandleImageResponse("peer1", msg)

	require.NoError(t, gotErr)
	assert.Equal(t, data, got)

	loaded, err := db.LoadManifest(ctx, manifest.MerkleRoot)
	require.NoError(t, err)
	assert.Equal(t, manifest.MerkleRoot, loaded.MerkleRoot)
}

func TestHandleImageResponseWithMismatchedHashDiscardsChunk(t *testing.T) {
	ctx := context.Background()
	db := memory.NewStore()
	s := New("self", nil, nil, db)

	msg := &transport.Message{Fields: map[string]any{
		"merkle_root": "root1",
		"total_size":  float64(3),
		"chunks":      []any{map[string]any{"hash": "expected-hash", "size": float64(3)}},
		"available":   map[string]any{"expected-hash": base64.StdEncoding.EncodeToString([]byte("xyz"))},
	}}
	s.HandleImageResponse("peer1", msg)

	ok, err := db.HasChunk(ctx, "expected-hash")
	require.NoError(t, err)
	assert.False(t, ok, "a chunk whose content hash doesn't match its claimed hash must be discarded")
}

func TestHandleRequestImageChunksRespondsOnlyWithHeldHashes(t *testing.T) {
	ctx := context.Background()
	db := memory.NewStore()
	tr := newTestTransport(t)
	s := New("self", tr, nil, db)

	manifest, err := s.Upload(ctx, bytes.Repeat([]byte{0x3}, 200))
	require.NoError(t, err)

	msg := &transport.Message{Fields: map[string]any{
		"merkle_root": manifest.MerkleRoot,
		"hashes":      []any{manifest.Chunks[0].Hash, "not-a-real-hash"},
	}}
	s.HandleRequestImageChunks("peer1", msg)

	// The chunk_response carries exactly what loadChunksFor returns.
	available := s.loadChunksFor(ctx, []string{manifest.Chunks[0].Hash, "not-a-real-hash"})
	assert.Len(t, available, 1)
	assert.Contains(t, available, manifest.Chunks[0].Hash)
}

func TestHandleChunkResponseCompletesPendingFetch(t *testing.T) {
	ctx := context.Background()

	srcDB := memory.NewStore()
	src := New("peer", nil, nil, srcDB)
	data := bytes.Repeat([]byte{0x7}, 70000) // forces two chunks
	manifest, err := src.Upload(ctx, data)
	require.NoError(t, err)

	db := memory.NewStore()
	s := New("self", nil, nil, db)
	require.NoError(t, db.SaveManifest(ctx, manifest.MerkleRoot, manifest.toRecord()))
	// Pre-seed the first chunk locally; only the second is missing.
	rec0, err := srcDB.LoadChunk(ctx, manifest.Chunks[0].Hash)
	require.NoError(t, err)
	require.NoError(t, db.SaveChunk(ctx, rec0))

	var got []byte
	s.fetchOrAssemble(ctx, manifest, func(d []byte, err error) {
		require.NoError(t, err)
		got = d
	})
	assert.Nil(t, got, "must still be pending until the second chunk arrives")

	rec1, err := srcDB.LoadChunk(ctx, manifest.Chunks[1].Hash)
	require.NoError(t, err)
	msg := &transport.Message{Fields: map[string]any{
		"merkle_root": manifest.MerkleRoot,
		"available":   map[string]any{manifest.Chunks[1].Hash: base64.StdEncoding.EncodeToString(rec1.Data)},
	}}
	s.HandleChunkResponse("peer1", msg)

	assert.Equal(t, data, got)
}
