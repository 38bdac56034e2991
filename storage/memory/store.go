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

// Package memory implements storage.Store with in-memory maps, for tests
// and for nodes run without a durable backend.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/ember-net/ember/storage"
)

// Store implements storage.Store with in-memory maps guarded by a single
// mutex. It is not meant for production durability, only for tests and
// ephemeral "stateless" relay nodes.
type Store struct {
	mu sync.RWMutex

	identity  *storage.IdentityRecord
	posts     map[string]*storage.PostRecord
	peers     map[string]*storage.PeerReputation
	chunks    map[string]*storage.ImageChunkRecord
	manifests map[string]*storage.ImageManifestRecord
	dht       map[string]*storage.DHTRecord
	topics    map[string]*storage.TopicSubscription
}

// NewStore creates an empty in-memory store.
func NewStore() *Store {
	return &Store{
		posts:     make(map[string]*storage.PostRecord),
		peers:     make(map[string]*storage.PeerReputation),
		chunks:    make(map[string]*storage.ImageChunkRecord),
		manifests: make(map[string]*storage.ImageManifestRecord),
		dht:       make(map[string]*storage.DHTRecord),
		topics:    make(map[string]*storage.TopicSubscription),
	}
}

func (s *Store) SaveIdentity(ctx context.Context, rec *storage.IdentityRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *rec
	s.identity = &cp
	return nil
}

func (s *Store) LoadIdentity(ctx context.Context) (*storage.IdentityRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.identity == nil {
		return nil, fmt.Errorf("no local identity saved")
	}
	cp := *s.identity
	return &cp, nil
}

func (s *Store) SavePost(ctx context.Context, rec *storage.PostRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *rec
	s.posts[rec.ID] = &cp
	return nil
}

func (s *Store) LoadPosts(ctx context.Context) ([]*storage.PostRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*storage.PostRecord, 0, len(s.posts))
	for _, p := range s.posts {
		cp := *p
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *Store) DeletePost(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.posts, id)
	return nil
}

func (s *Store) SavePeerReputation(ctx context.Context, rec *storage.PeerReputation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *rec
	s.peers[rec.PeerID] = &cp
	return nil
}

func (s *Store) LoadPeerReputation(ctx context.Context, peerID string) (*storage.PeerReputation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.peers[peerID]
	if !ok {
		return nil, fmt.Errorf("no reputation for peer %q", peerID)
	}
	cp := *rec
	return &cp, nil
}

func (s *Store) ListPeerReputations(ctx context.Context) ([]*storage.PeerReputation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*storage.PeerReputation, 0, len(s.peers))
	for _, p := range s.peers {
		cp := *p
		out = append(out, &cp)
	}
	return out, nil
}

func (s *Store) SaveChunk(ctx context.Context, rec *storage.ImageChunkRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *rec
	s.chunks[rec.Hash] = &cp
	return nil
}

func (s *Store) LoadChunk(ctx context.Context, hash string) (*storage.ImageChunkRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.chunks[hash]
	if !ok {
		return nil, fmt.Errorf("chunk %q not found", hash)
	}
	cp := *rec
	return &cp, nil
}

func (s *Store) HasChunk(ctx context.Context, hash string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.chunks[hash]
	return ok, nil
}

func (s *Store) SaveManifest(ctx context.Context, merkleRoot string, rec *storage.ImageManifestRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *rec
	s.manifests[merkleRoot] = &cp
	return nil
}

func (s *Store) LoadManifest(ctx context.Context, merkleRoot string) (*storage.ImageManifestRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.manifests[merkleRoot]
	if !ok {
		return nil, fmt.Errorf("manifest %q not found", merkleRoot)
	}
	cp := *rec
	return &cp, nil
}

func (s *Store) SaveDHTEntry(ctx context.Context, rec *storage.DHTRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *rec
	s.dht[rec.Key] = &cp
	return nil
}

func (s *Store) LoadDHTEntries(ctx context.Context) ([]*storage.DHTRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*storage.DHTRecord, 0, len(s.dht))
	for _, r := range s.dht {
		cp := *r
		out = append(out, &cp)
	}
	return out, nil
}

func (s *Store) DeleteDHTEntry(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.dht, key)
	return nil
}

func (s *Store) CountDHTEntries(ctx context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.dht), nil
}

func (s *Store) DeleteOldestDHTEntries(ctx context.Context, n int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	type kv struct {
		key string
		rec *storage.DHTRecord
	}
	all := make([]kv, 0, len(s.dht))
	for k, r := range s.dht {
		all = append(all, kv{k, r})
	}
	sort.Slice(all, func(i, j int) bool { return all[i].rec.StoredAt.Before(all[j].rec.StoredAt) })
	for i := 0; i < n && i < len(all); i++ {
		delete(s.dht, all[i].key)
	}
	return nil
}

func (s *Store) SaveSubscription(ctx context.Context, rec *storage.TopicSubscription) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *rec
	s.topics[rec.Topic] = &cp
	return nil
}

func (s *Store) LoadSubscriptions(ctx context.Context) ([]*storage.TopicSubscription, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*storage.TopicSubscription, 0, len(s.topics))
	for _, t := range s.topics {
		cp := *t
		out = append(out, &cp)
	}
	return out, nil
}

func (s *Store) DeleteSubscription(ctx context.Context, topic string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.topics, topic)
	return nil
}

func (s *Store) Close() error { return nil }

func (s *Store) Ping(ctx context.Context) error { return nil }

// NullStore is a Store that discards every write and returns "not found" for
// every read — the "stateless" mode spec.md §6 describes for relay nodes.
type NullStore struct{}

// NewNullStore returns a Store that short-circuits all persistence.
func NewNullStore() *NullStore { return &NullStore{} }

func (NullStore) SaveIdentity(ctx context.Context, rec *storage.IdentityRecord) error { return nil }
func (NullStore) LoadIdentity(ctx context.Context) (*storage.IdentityRecord, error) {
	return nil, fmt.Errorf("stateless node: no identity stored")
}
func (NullStore) SavePost(ctx context.Context, rec *storage.PostRecord) error { return nil }
func (NullStore) LoadPosts(ctx context.Context) ([]*storage.PostRecord, error) {
	return nil, nil
}
func (NullStore) DeletePost(ctx context.Context, id string) error { return nil }
func (NullStore) SavePeerReputation(ctx context.Context, rec *storage.PeerReputation) error {
	return nil
}
func (NullStore) LoadPeerReputation(ctx context.Context, peerID string) (*storage.PeerReputation, error) {
	return nil, fmt.Errorf("stateless node: no reputation stored")
}
func (NullStore) ListPeerReputations(ctx context.Context) ([]*storage.PeerReputation, error) {
	return nil, nil
}
func (NullStore) SaveChunk(ctx context.Context, rec *storage.ImageChunkRecord) error { return nil }
func (NullStore) LoadChunk(ctx context.Context, hash string) (*storage.ImageChunkRecord, error) {
	return nil, fmt.Errorf("stateless node: no chunk stored")
}
func (NullStore) HasChunk(ctx context.Context, hash string) (bool, error) { return false, nil }
func (NullStore) SaveManifest(ctx context.Context, merkleRoot string, rec *storage.ImageManifestRecord) error {
	return nil
}
func (NullStore) LoadManifest(ctx context.Context, merkleRoot string) (*storage.ImageManifestRecord, error) {
	return nil, fmt.Errorf("stateless node: no manifest stored")
}
func (NullStore) SaveDHTEntry(ctx context.Context, rec *storage.DHTRecord) error { return nil }
func (NullStore) LoadDHTEntries(ctx context.Context) ([]*storage.DHTRecord, error) {
	return nil, nil
}
func (NullStore) DeleteDHTEntry(ctx context.Context, key string) error    { return nil }
func (NullStore) CountDHTEntries(ctx context.Context) (int, error)        { return 0, nil }
func (NullStore) DeleteOldestDHTEntries(ctx context.Context, n int) error { return nil }
func (NullStore) SaveSubscription(ctx context.Context, rec *storage.TopicSubscription) error {
	return nil
}
func (NullStore) LoadSubscriptions(ctx context.Context) ([]*storage.TopicSubscription, error) {
	return nil, nil
}
func (NullStore) DeleteSubscription(ctx context.Context, topic string) error { return nil }
func (NullStore) Close() error                                               { return nil }
func (NullStore) Ping(ctx context.Context) error                             { return nil }
