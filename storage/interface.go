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

package storage

import "context"

// IdentityStore persists the node's own identity.
type IdentityStore interface {
	SaveIdentity(ctx context.Context, rec *IdentityRecord) error
	LoadIdentity(ctx context.Context) (*IdentityRecord, error)
}

// PostStore persists the ephemeral post set so a restart can resume heat
// accounting instead of starting every post back at zero carriers.
type PostStore interface {
	SavePost(ctx context.Context, rec *PostRecord) error
	LoadPosts(ctx context.Context) ([]*PostRecord, error)
	DeletePost(ctx context.Context, id string) error
}

// PeerStore persists reputation across reconnects (spec.md §6: "surviving
// reputation is persisted by the collaborator store").
type PeerStore interface {
	SavePeerReputation(ctx context.Context, rec *PeerReputation) error
	LoadPeerReputation(ctx context.Context, peerID string) (*PeerReputation, error)
	ListPeerReputations(ctx context.Context) ([]*PeerReputation, error)
}

// ImageStore persists content-addressed chunks and the manifests that
// bind a set of chunks to an image's Merkle root.
type ImageStore interface {
	SaveChunk(ctx context.Context, rec *ImageChunkRecord) error
	LoadChunk(ctx context.Context, hash string) (*ImageChunkRecord, error)
	HasChunk(ctx context.Context, hash string) (bool, error)

	SaveManifest(ctx context.Context, merkleRoot string, rec *ImageManifestRecord) error
	LoadManifest(ctx context.Context, merkleRoot string) (*ImageManifestRecord, error)
}

// DHTStore persists the local Kademlia key/value table across restarts.
type DHTStore interface {
	SaveDHTEntry(ctx context.Context, rec *DHTRecord) error
	LoadDHTEntries(ctx context.Context) ([]*DHTRecord, error)
	DeleteDHTEntry(ctx context.Context, key string) error
	CountDHTEntries(ctx context.Context) (int, error)
	DeleteOldestDHTEntries(ctx context.Context, n int) error
}

// TopicStore persists Scribe subscriptions so a node resubscribes to the
// topics it cared about before a restart.
type TopicStore interface {
	SaveSubscription(ctx context.Context, rec *TopicSubscription) error
	LoadSubscriptions(ctx context.Context) ([]*TopicSubscription, error)
	DeleteSubscription(ctx context.Context, topic string) error
}

// Store combines every persistence concern the core depends on. A
// "stateless" relay node (spec.md §6) uses the no-op implementation in
// memory.NewNullStore, which accepts every write and returns nothing on
// every read.
type Store interface {
	IdentityStore
	PostStore
	PeerStore
	ImageStore
	DHTStore
	TopicStore

	Close() error
	Ping(ctx context.Context) error
}
