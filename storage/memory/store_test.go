// Copyright (C) 2025 ember-net
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as
// published by the Free Software Foundation, either version 3 of the
// License, or (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with this program. If not, see <https://www.gnu.org/licenses/>.

// SPDX-License-Identifier: LGPL-3.0-or-later

package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ember-net/ember/storage"
)

func TestStorePostRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := NewStore()

	rec := &storage.PostRecord{
		ID:           "p1",
		Content:      "hello",
		Timestamp:    time.Now(),
		AuthorHandle: "alice",
		Carriers:     []string{"alice"},
		RatingAlpha:  1,
		RatingBeta:   1,
	}
	require.NoError(t, s.SavePost(ctx, rec))

	loaded, err := s.LoadPosts(ctx)
	require.NoError(t, err)
	require.Len(t, loaded, 1)
	assert.Equal(t, "p1", loaded[0].ID)

	require.NoError(t, s.DeletePost(ctx, "p1"))
	loaded, err = s.LoadPosts(ctx)
	require.NoError(t, err)
	assert.Empty(t, loaded)
}

func TestStoreChunkAndManifestRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := NewStore()

	chunk := &storage.ImageChunkRecord{Hash: "h1", Data: []byte("chunk-bytes")}
	require.NoError(t, s.SaveChunk(ctx, chunk))

	ok, err := s.HasChunk(ctx, "h1")
	require.NoError(t, err)
	assert.True(t, ok)

	loaded, err := s.LoadChunk(ctx, "h1")
	require.NoError(t, err)
	assert.Equal(t, []byte("chunk-bytes"), loaded.Data)

	_, err = s.LoadChunk(ctx, "missing")
	assert.Error(t, err)

	manifest := &storage.ImageManifestRecord{
		MerkleRoot:  "root1",
		ChunkHashes: []string{"h1"},
		ChunkSizes:  []int{len(chunk.Data)},
		TotalSize:   int64(len(chunk.Data)),
		CreatedAt:   time.Now(),
	}
	require.NoError(t, s.SaveManifest(ctx, "root1", manifest))

	loadedManifest, err := s.LoadManifest(ctx, "root1")
	require.NoError(t, err)
	assert.Equal(t, []string{"h1"}, loadedManifest.ChunkHashes)

	_, err = s.LoadManifest(ctx, "missing")
	assert.Error(t, err)
}

func TestStorePeerReputation(t *testing.T) {
	ctx := context.Background()
	s := NewStore()

	require.NoError(t, s.SavePeerReputation(ctx, &storage.PeerReputation{PeerID: "peer1", Score: 0.8, UpdatedAt: time.Now()}))

	rec, err := s.LoadPeerReputation(ctx, "peer1")
	require.NoError(t, err)
	assert.Equal(t, 0.8, rec.Score)

	_, err = s.LoadPeerReputation(ctx, "missing")
	assert.Error(t, err)
}

func TestStoreDHTEviction(t *testing.T) {
	ctx := context.Background()
	s := NewStore()

	base := time.Now()
	for i := 0; i < 5; i++ {
		require.NoError(t, s.SaveDHTEntry(ctx, &storage.DHTRecord{
			Key:      string(rune('a' + i)),
			Value:    []byte("v"),
			StoredAt: base.Add(time.Duration(i) * time.Second),
		}))
	}
	count, err := s.CountDHTEntries(ctx)
	require.NoError(t, err)
	assert.Equal(t, 5, count)

	require.NoError(t, s.DeleteOldestDHTEntries(ctx, 2))
	count, err = s.CountDHTEntries(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, count)
}

func TestNullStore(t *testing.T) {
	ctx := context.Background()
	s := NewNullStore()

	require.NoError(t, s.SavePost(ctx, &storage.PostRecord{ID: "x"}))
	posts, err := s.LoadPosts(ctx)
	require.NoError(t, err)
	assert.Empty(t, posts)

	_, err = s.LoadIdentity(ctx)
	assert.Error(t, err)
}
