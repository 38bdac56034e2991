// SPDX-License-Identifier: LGPL-3.0-or-later

package image

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSplitChunksExactMultiple(t *testing.T) {
	data := bytes.Repeat([]byte{0xAB}, 128)
	chunks := SplitChunks(data, 64)
	require.Len(t, chunks, 2)
	assert.Len(t, chunks[0], 64)
	assert.Len(t, chunks[1], 64)
}

func TestSplitChunksShortLastBlock(t *testing.T) {
	data := bytes.Repeat([]byte{0x01}, 100)
	chunks := SplitChunks(data, 64)
	require.Len(t, chunks, 2)
	assert.Len(t, chunks[0], 64)
	assert.Len(t, chunks[1], 36)
}

func TestSplitChunksEmptyData(t *testing.T) {
	assert.Nil(t, SplitChunks(nil, 64))
}

func TestSplitChunksDefaultsChunkSize(t *testing.T) {
	data := bytes.Repeat([]byte{0x02}, DefaultChunkSizeBytes+1)
	chunks := SplitChunks(data, 0)
	require.Len(t, chunks, 2)
	assert.Len(t, chunks[0], DefaultChunkSizeBytes)
	assert.Len(t, chunks[1], 1)
}

func TestHashChunkIsDeterministicAndContentAddressed(t *testing.T) {
	a := HashChunk([]byte("hello"))
	b := HashChunk([]byte("hello"))
	c := HashChunk([]byte("world"))
	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
}
