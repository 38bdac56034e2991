// SPDX-License-Identifier: LGPL-3.0-or-later

package image

import (
	"time"

	"github.com/ember-net/ember/storage"
)

// ChunkMeta is one entry of a Manifest's ordered chunk list.
type ChunkMeta struct {
	Hash string
	Size int
}

// Manifest is spec.md §4.9's ImageRecord: the Merkle root, the ordered
// chunk list that root is computed over, the total byte size, and the
// creation time.
type Manifest struct {
	MerkleRoot string
	Chunks     []ChunkMeta
	TotalSize  int64
	Created    time.Time
}

// BuildManifest chunks data and derives its manifest, returning both the
// manifest and the chunk bytes in the same order as Manifest.Chunks.
func BuildManifest(data []byte, chunkSize int) (*Manifest, [][]byte) {
	chunks := SplitChunks(data, chunkSize)
	metas := make([]ChunkMeta, len(chunks))
	hashes := make([]string, len(chunks))
	for i, c := range chunks {
		h := HashChunk(c)
		metas[i] = ChunkMeta{Hash: h, Size: len(c)}
		hashes[i] = h
	}
	return &Manifest{
		MerkleRoot: MerkleRoot(hashes),
		Chunks:     metas,
		TotalSize:  int64(len(data)),
		Created:    time.Now(),
	}, chunks
}

// Verify recomputes the Merkle root over m's own chunk hashes and reports
// whether it still matches m.MerkleRoot (the data-model invariant).
func (m *Manifest) Verify() bool {
	hashes := make([]string, len(m.Chunks))
	for i, c := range m.Chunks {
		hashes[i] = c.Hash
	}
	return MerkleRoot(hashes) == m.MerkleRoot
}

func (m *Manifest) toRecord() *storage.ImageManifestRecord {
	hashes := make([]string, len(m.Chunks))
	sizes := make([]int, len(m.Chunks))
	for i, c := range m.Chunks {
		hashes[i] = c.Hash
		sizes[i] = c.Size
	}
	return &storage.ImageManifestRecord{
		MerkleRoot:  m.MerkleRoot,
		ChunkHashes: hashes,
		ChunkSizes:  sizes,
		TotalSize:   m.TotalSize,
		CreatedAt:   m.Created,
	}
}

func manifestFromRecord(rec *storage.ImageManifestRecord) *Manifest {
	metas := make([]ChunkMeta, len(rec.ChunkHashes))
	for i, h := range rec.ChunkHashes {
		size := 0
		if i < len(rec.ChunkSizes) {
			size = rec.ChunkSizes[i]
		}
		metas[i] = ChunkMeta{Hash: h, Size: size}
	}
	return &Manifest{
		MerkleRoot: rec.MerkleRoot,
		Chunks:     metas,
		TotalSize:  rec.TotalSize,
		Created:    rec.CreatedAt,
	}
}
