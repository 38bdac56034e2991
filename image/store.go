// SPDX-License-Identifier: LGPL-3.0-or-later

package image

import (
	"context"
	"sync"
	"time"

	"github.com/ember-net/ember/config"
	"github.com/ember-net/ember/internal/logger"
	"github.com/ember-net/ember/internal/metrics"
	"github.com/ember-net/ember/storage"
	"github.com/ember-net/ember/transport"
)

// fetchPeerSample is the "small random sample (≤ 3)" of active peers
// spec.md §4.9 queries per missing image or chunk set.
const fetchPeerSample = 3

// pendingImage tracks an in-flight fetch: the manifest once known (nil
// until an image_response arrives), and the callbacks waiting on the
// fully-assembled bytes.
type pendingImage struct {
	manifest *Manifest
	waiters  []func([]byte, error)
}

// Store is the Image Store: content-addressed chunk storage, manifest
// bookkeeping, and the peer fetch protocol, backed by storage.ImageStore
// for durability.
type Store struct {
	self        transport.PeerID
	tr          *transport.Transport
	chunkSize   int
	db          storage.ImageStore
	activePeers func() []transport.PeerID

	mu      sync.Mutex
	pending map[string]*pendingImage
}

// New constructs a Store. cfg may be nil (DefaultChunkSizeBytes applies).
func New(self transport.PeerID, tr *transport.Transport, cfg *config.ImageConfig, db storage.ImageStore) *Store {
	chunkSize := DefaultChunkSizeBytes
	if cfg != nil && cfg.ChunkSizeBytes > 0 {
		chunkSize = cfg.ChunkSizeBytes
	}
	return &Store{
		self:      self,
		tr:        tr,
		chunkSize: chunkSize,
		db:        db,
		pending:   make(map[string]*pendingImage),
	}
}

// SetPeerSource attaches the active-peer list the fetch protocol samples
// from. Left nil, Ensure can still serve already-local images but cannot
// fetch missing ones.
func (s *Store) SetPeerSource(activePeers func() []transport.PeerID) {
	s.mu.Lock()
	s.activePeers = activePeers
	s.mu.Unlock()
}

// Upload chunks data, stores every chunk and the resulting manifest, and
// returns the manifest (its MerkleRoot is the post's image_hash).
func (s *Store) Upload(ctx context.Context, data []byte) (*Manifest, error) {
	manifest, chunks := BuildManifest(data, s.chunkSize)
	for i, c := range chunks {
		if err := s.db.SaveChunk(ctx, &storage.ImageChunkRecord{Hash: manifest.Chunks[i].Hash, Data: c}); err != nil {
			return nil, err
		}
	}
	if err := s.db.SaveManifest(ctx, manifest.MerkleRoot, manifest.toRecord()); err != nil {
		return nil, err
	}
	metrics.ImageChunksStored.Add(float64(len(chunks)))
	return manifest, nil
}

// Ensure asks for merkleRoot's image bytes, calling onReady once they are
// available locally (immediately, if every chunk is already held) or
// once the fetch protocol has pulled the missing pieces from peers. It
// implements spec.md §4.9's "on encountering a post with image_hash H
// whose chunks are not all local, request ... from a small random sample
// of active peers".
func (s *Store) Ensure(ctx context.Context, merkleRoot string, onReady func(data []byte, err error)) {
	manifest, err := s.loadManifest(ctx, merkleRoot)
	if err != nil {
		s.awaitManifest(merkleRoot, onReady)
		s.requestImage(merkleRoot)
		return
	}
	s.fetchOrAssemble(ctx, manifest, onReady)
}

func (s *Store) loadManifest(ctx context.Context, merkleRoot string) (*Manifest, error) {
	rec, err := s.db.LoadManifest(ctx, merkleRoot)
	if err != nil {
		return nil, err
	}
	return manifestFromRecord(rec), nil
}

// fetchOrAssemble checks which of manifest's chunks are already local;
// if all are, it assembles immediately, otherwise it queues onReady and
// requests the missing chunk hashes.
func (s *Store) fetchOrAssemble(ctx context.Context, manifest *Manifest, onReady func([]byte, error)) {
	missing := s.missingChunks(ctx, manifest)
	if len(missing) == 0 {
		data, err := s.assemble(ctx, manifest)
		onReady(data, err)
		return
	}
	s.mu.Lock()
	p, ok := s.pending[manifest.MerkleRoot]
	if !ok {
		p = &pendingImage{manifest: manifest}
		s.pending[manifest.MerkleRoot] = p
	}
	p.manifest = manifest
	p.waiters = append(p.waiters, onReady)
	s.mu.Unlock()
	s.requestChunks(manifest.MerkleRoot, missing)
}

func (s *Store) missingChunks(ctx context.Context, manifest *Manifest) []string {
	var missing []string
	for _, c := range manifest.Chunks {
		ok, err := s.db.HasChunk(ctx, c.Hash)
		if err != nil || !ok {
			missing = append(missing, c.Hash)
		}
	}
	return missing
}

// assemble loads every chunk of manifest in order and concatenates them,
// verifying the Merkle root still matches before returning.
func (s *Store) assemble(ctx context.Context, manifest *Manifest) ([]byte, error) {
	start := time.Now()
	defer func() { metrics.ImageAssemblyDuration.Observe(time.Since(start).Seconds()) }()

	if !manifest.Verify() {
		metrics.ImageMerkleVerifications.WithLabelValues("invalid").Inc()
		return nil, errInvalidManifest(manifest.MerkleRoot)
	}

	out := make([]byte, 0, manifest.TotalSize)
	for _, c := range manifest.Chunks {
		rec, err := s.db.LoadChunk(ctx, c.Hash)
		if err != nil {
			return nil, err
		}
		out = append(out, rec.Data...)
	}
	metrics.ImageMerkleVerifications.WithLabelValues("valid").Inc()
	return out, nil
}

func (s *Store) awaitManifest(merkleRoot string, onReady func([]byte, error)) {
	s.mu.Lock()
	p, ok := s.pending[merkleRoot]
	if !ok {
		p = &pendingImage{}
		s.pending[merkleRoot] = p
	}
	p.waiters = append(p.waiters, onReady)
	s.mu.Unlock()
}

func (s *Store) peers() []transport.PeerID {
	s.mu.Lock()
	f := s.activePeers
	s.mu.Unlock()
	if f == nil {
		return nil
	}
	candidates := f()
	out := make([]transport.PeerID, 0, fetchPeerSample)
	for _, p := range candidates {
		if p == s.self {
			continue
		}
		out = append(out, p)
		if len(out) == fetchPeerSample {
			break
		}
	}
	return out
}

func (s *Store) requestImage(merkleRoot string) {
	if s.tr == nil {
		return
	}
	fields := map[string]any{"merkle_root": merkleRoot}
	for _, peer := range s.peers() {
		_ = s.tr.Send(peer, transport.TypeRequestImage, fields)
	}
}

func (s *Store) requestChunks(merkleRoot string, hashes []string) {
	if s.tr == nil || len(hashes) == 0 {
		return
	}
	anyArr := make([]any, len(hashes))
	for i, h := range hashes {
		anyArr[i] = h
	}
	fields := map[string]any{"merkle_root": merkleRoot, "hashes": anyArr}
	for _, peer := range s.peers() {
		_ = s.tr.Send(peer, transport.TypeRequestImageChunks, fields)
	}
}

func errInvalidManifest(merkleRoot string) error {
	return logger.NewEmberError(logger.ErrCodeValidationError, "image manifest "+merkleRoot+" fails Merkle verification", nil)
}
