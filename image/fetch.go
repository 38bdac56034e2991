// SPDX-License-Identifier: LGPL-3.0-or-later

package image

import (
	"context"
	"encoding/base64"
	"time"

	"github.com/ember-net/ember/internal/logger"
	"github.com/ember-net/ember/internal/metrics"
	"github.com/ember-net/ember/storage"
	"github.com/ember-net/ember/transport"
)

// HandleRequestImage answers an inbound "request_image" with everything
// this node holds for merkleRoot: the manifest, if known, plus every
// chunk whose bytes are already local (spec.md §4.9: "Responders include
// image_response with metadata and every available chunk whose hash they
// hold").
func (s *Store) HandleRequestImage(sender transport.PeerID, msg *transport.Message) {
	merkleRoot, _ := msg.Fields["merkle_root"].(string)
	if merkleRoot == "" || s.tr == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	manifest, err := s.loadManifest(ctx, merkleRoot)
	if err != nil {
		return
	}

	chunks := s.availableChunkFields(ctx, manifest)
	fields := map[string]any{
		"merkle_root": manifest.MerkleRoot,
		"total_size":  manifest.TotalSize,
		"chunks":      manifestChunkFields(manifest),
		"available":   chunks,
	}
	_ = s.tr.Send(sender, transport.TypeImageResponse, fields)
}

// HandleRequestImageChunks answers an inbound "request_image_chunks"
// with every requested hash this node currently holds.
func (s *Store) HandleRequestImageChunks(sender transport.PeerID, msg *transport.Message) {
	merkleRoot, _ := msg.Fields["merkle_root"].(string)
	rawHashes, _ := msg.Fields["hashes"].([]any)
	if merkleRoot == "" || len(rawHashes) == 0 || s.tr == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	hashes := make([]string, 0, len(rawHashes))
	for _, v := range rawHashes {
		if h, ok := v.(string); ok {
			hashes = append(hashes, h)
		}
	}
	available := s.loadChunksFor(ctx, hashes)
	if len(available) == 0 {
		return
	}
	_ = s.tr.Send(sender, transport.TypeChunkResponse, map[string]any{
		"merkle_root": merkleRoot,
		"available":   available,
	})
}

// HandleImageResponse processes an inbound "image_response": it learns
// (or confirms) merkleRoot's manifest, verifies and stores every
// included chunk, and either completes any waiting Ensure calls or
// requests whatever chunks are still missing.
func (s *Store) HandleImageResponse(sender transport.PeerID, msg *transport.Message) {
	merkleRoot, _ := msg.Fields["merkle_root"].(string)
	if merkleRoot == "" {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	manifest := s.manifestFromFields(merkleRoot, msg.Fields)
	if manifest != nil {
		if err := s.db.SaveManifest(ctx, manifest.MerkleRoot, manifest.toRecord()); err != nil {
			logger.Warn("image: persist manifest failed", logger.String("merkle_root", merkleRoot), logger.Error(err))
		}
	}

	s.storeAvailableChunks(ctx, sender, msg.Fields["available"])
	s.resolvePending(ctx, merkleRoot, manifest)
}

// HandleChunkResponse processes an inbound "chunk_response": verified
// chunks are stored, then any pending Ensure for merkleRoot is re-checked.
func (s *Store) HandleChunkResponse(sender transport.PeerID, msg *transport.Message) {
	merkleRoot, _ := msg.Fields["merkle_root"].(string)
	if merkleRoot == "" {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	s.storeAvailableChunks(ctx, sender, msg.Fields["available"])

	s.mu.Lock()
	p, ok := s.pending[merkleRoot]
	s.mu.Unlock()
	if !ok || p.manifest == nil {
		return
	}
	s.resolvePending(ctx, merkleRoot, p.manifest)
}

// resolvePending checks whether manifest's chunks are all local now; if
// so it assembles and fires every waiter, otherwise it re-requests
// whatever is still missing.
func (s *Store) resolvePending(ctx context.Context, merkleRoot string, manifest *Manifest) {
	if manifest == nil {
		return
	}
	missing := s.missingChunks(ctx, manifest)
	if len(missing) > 0 {
		s.requestChunks(merkleRoot, missing)
		return
	}

	s.mu.Lock()
	p, ok := s.pending[merkleRoot]
	var waiters []func([]byte, error)
	if ok {
		waiters = p.waiters
		delete(s.pending, merkleRoot)
	}
	s.mu.Unlock()
	if len(waiters) == 0 {
		return
	}
	data, err := s.assemble(ctx, manifest)
	for _, w := range waiters {
		w(data, err)
	}
}

func (s *Store) storeAvailableChunks(ctx context.Context, sender transport.PeerID, raw any) {
	entries, _ := raw.(map[string]any)
	for hash, v := range entries {
		encoded, ok := v.(string)
		if !ok {
			continue
		}
		data, err := base64.StdEncoding.DecodeString(encoded)
		if err != nil {
			continue
		}
		if HashChunk(data) != hash {
			metrics.ImageChunksFetched.WithLabelValues("hash_mismatch").Inc()
			logger.Warn("image: discard chunk with mismatched hash",
				logger.String("peer", string(sender)), logger.String("hash", hash))
			continue
		}
		if err := s.db.SaveChunk(ctx, &storage.ImageChunkRecord{Hash: hash, Data: data}); err != nil {
			logger.Warn("image: persist chunk failed", logger.String("hash", hash), logger.Error(err))
			continue
		}
		metrics.ImageChunksFetched.WithLabelValues("hit").Inc()
	}
}

func (s *Store) availableChunkFields(ctx context.Context, manifest *Manifest) map[string]any {
	hashes := make([]string, len(manifest.Chunks))
	for i, c := range manifest.Chunks {
		hashes[i] = c.Hash
	}
	return s.loadChunksFor(ctx, hashes)
}

func (s *Store) loadChunksFor(ctx context.Context, hashes []string) map[string]any {
	out := make(map[string]any, len(hashes))
	for _, h := range hashes {
		rec, err := s.db.LoadChunk(ctx, h)
		if err != nil {
			continue
		}
		out[h] = base64.StdEncoding.EncodeToString(rec.Data)
	}
	return out
}

func manifestChunkFields(manifest *Manifest) []any {
	out := make([]any, len(manifest.Chunks))
	for i, c := range manifest.Chunks {
		out[i] = map[string]any{"hash": c.Hash, "size": c.Size}
	}
	return out
}

// manifestFromFields rebuilds a Manifest from an image_response's
// "chunks"/"total_size" fields, or returns nil if the sender didn't know
// the manifest either (an empty-handed image_response).
func (s *Store) manifestFromFields(merkleRoot string, fields map[string]any) *Manifest {
	rawChunks, _ := fields["chunks"].([]any)
	if len(rawChunks) == 0 {
		return nil
	}
	metas := make([]ChunkMeta, 0, len(rawChunks))
	for _, v := range rawChunks {
		entry, ok := v.(map[string]any)
		if !ok {
			continue
		}
		hash, _ := entry["hash"].(string)
		size, _ := entry["size"].(float64)
		if hash == "" {
			continue
		}
		metas = append(metas, ChunkMeta{Hash: hash, Size: int(size)})
	}
	totalSize, _ := fields["total_size"].(float64)
	return &Manifest{
		MerkleRoot: merkleRoot,
		Chunks:     metas,
		TotalSize:  int64(totalSize),
		Created:    time.Now(),
	}
}
