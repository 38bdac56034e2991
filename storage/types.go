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

// Package storage defines the persistence contract collaborator used by the
// Ember core. The core treats it as opaque save/load hooks (spec.md §6); it
// never assumes a particular backing technology.
package storage

import "time"

// IdentityRecord is the persisted form of a node's own identity: the public
// Claim fields plus the secret key material wrapped in an opaque vault blob
// (never plaintext secrets — see crypto/vault).
type IdentityRecord struct {
	Handle         string
	SignPub        []byte
	EncPub         []byte
	VDFInput       []byte
	VDFProof       []byte
	ClaimedAt      time.Time
	Signature      []byte
	EncryptedVault []byte
}

// PostRecord is the persisted snapshot of an ephemeral post, enough to
// reconstruct Ephemeral Store state across a restart.
type PostRecord struct {
	ID           string
	Content      string
	Timestamp    time.Time
	ParentID     string
	ImageHash    string
	AuthorHandle string
	AuthorPub    []byte
	VDFInput     []byte
	VDFProof     []byte
	Signature    []byte
	Depth        int
	Carriers     []string
	Replies      []string
	TrustScore   float64
	RatingAlpha  float64
	RatingBeta   float64
	RatingTotalW float64
}

// PeerReputation is the durable part of a PeerRecord: reputation survives
// disconnects even though the live connection state does not.
type PeerReputation struct {
	PeerID    string
	Handle    string
	Score     float64
	UpdatedAt time.Time
}

// ImageChunkRecord is one content-addressed chunk of an uploaded or fetched
// image.
type ImageChunkRecord struct {
	Hash string
	Data []byte
}

// ImageManifestRecord is the durable form of an image's manifest: enough
// to know which chunks compose it and recompute its Merkle root without
// re-deriving anything from the original file.
type ImageManifestRecord struct {
	MerkleRoot  string
	ChunkHashes []string
	ChunkSizes  []int
	TotalSize   int64
	CreatedAt   time.Time
}

// DHTRecord is one locally-stored Kademlia key/value entry.
type DHTRecord struct {
	Key       string
	Value     []byte
	StoredAt  time.Time
	Replicate bool
}

// TopicSubscription is a Scribe topic the node has joined.
type TopicSubscription struct {
	Topic    string
	JoinedAt time.Time
}
