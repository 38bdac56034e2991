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

package postgres

import (
	"context"
	"fmt"

	"github.com/ember-net/ember/storage"
)

func (s *Store) SaveIdentity(ctx context.Context, rec *storage.IdentityRecord) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO ember_identity (id, handle, sign_pub, enc_pub, vdf_input, vdf_proof, claimed_at, signature, encrypted_vault)
		VALUES (1, $1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (id) DO UPDATE SET
			handle = EXCLUDED.handle, sign_pub = EXCLUDED.sign_pub, enc_pub = EXCLUDED.enc_pub,
			vdf_input = EXCLUDED.vdf_input, vdf_proof = EXCLUDED.vdf_proof, claimed_at = EXCLUDED.claimed_at,
			signature = EXCLUDED.signature, encrypted_vault = EXCLUDED.encrypted_vault`,
		rec.Handle, rec.SignPub, rec.EncPub, rec.VDFInput, rec.VDFProof, rec.ClaimedAt, rec.Signature, rec.EncryptedVault)
	return err
}

func (s *Store) LoadIdentity(ctx context.Context) (*storage.IdentityRecord, error) {
	rec := &storage.IdentityRecord{}
	err := s.pool.QueryRow(ctx, `
		SELECT handle, sign_pub, enc_pub, vdf_input, vdf_proof, claimed_at, signature, encrypted_vault
		FROM ember_identity WHERE id = 1`).
		Scan(&rec.Handle, &rec.SignPub, &rec.EncPub, &rec.VDFInput, &rec.VDFProof, &rec.ClaimedAt, &rec.Signature, &rec.EncryptedVault)
	if err != nil {
		return nil, fmt.Errorf("load identity: %w", err)
	}
	return rec, nil
}

func (s *Store) SavePost(ctx context.Context, rec *storage.PostRecord) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO ember_posts (id, content, ts, parent_id, image_hash, author_handle, author_pub, vdf_input, vdf_proof, signature,
			depth, carriers, replies, trust_score, rating_alpha, rating_beta, rating_total_w)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17)
		ON CONFLICT (id) DO UPDATE SET
			carriers = EXCLUDED.carriers, replies = EXCLUDED.replies, trust_score = EXCLUDED.trust_score,
			rating_alpha = EXCLUDED.rating_alpha, rating_beta = EXCLUDED.rating_beta, rating_total_w = EXCLUDED.rating_total_w`,
		rec.ID, rec.Content, rec.Timestamp, rec.ParentID, rec.ImageHash, rec.AuthorHandle, rec.AuthorPub, rec.VDFInput, rec.VDFProof, rec.Signature,
		rec.Depth, rec.Carriers, rec.Replies, rec.TrustScore, rec.RatingAlpha, rec.RatingBeta, rec.RatingTotalW)
	return err
}

func (s *Store) LoadPosts(ctx context.Context) ([]*storage.PostRecord, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, content, ts, parent_id, image_hash, author_handle, author_pub, vdf_input, vdf_proof, signature,
			depth, carriers, replies, trust_score, rating_alpha, rating_beta, rating_total_w
		FROM ember_posts`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*storage.PostRecord
	for rows.Next() {
		rec := &storage.PostRecord{}
		if err := rows.Scan(&rec.ID, &rec.Content, &rec.Timestamp, &rec.ParentID, &rec.ImageHash, &rec.AuthorHandle,
			&rec.AuthorPub, &rec.VDFInput, &rec.VDFProof, &rec.Signature, &rec.Depth, &rec.Carriers, &rec.Replies,
			&rec.TrustScore, &rec.RatingAlpha, &rec.RatingBeta, &rec.RatingTotalW); err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (s *Store) DeletePost(ctx context.Context, id string) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM ember_posts WHERE id = $1`, id)
	return err
}

func (s *Store) SavePeerReputation(ctx context.Context, rec *storage.PeerReputation) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO ember_peer_reputation (peer_id, handle, score, updated_at)
		VALUES ($1,$2,$3,$4)
		ON CONFLICT (peer_id) DO UPDATE SET handle = EXCLUDED.handle, score = EXCLUDED.score, updated_at = EXCLUDED.updated_at`,
		rec.PeerID, rec.Handle, rec.Score, rec.UpdatedAt)
	return err
}

func (s *Store) LoadPeerReputation(ctx context.Context, peerID string) (*storage.PeerReputation, error) {
	rec := &storage.PeerReputation{}
	err := s.pool.QueryRow(ctx, `SELECT peer_id, handle, score, updated_at FROM ember_peer_reputation WHERE peer_id = $1`, peerID).
		Scan(&rec.PeerID, &rec.Handle, &rec.Score, &rec.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("load peer reputation: %w", err)
	}
	return rec, nil
}

func (s *Store) ListPeerReputations(ctx context.Context) ([]*storage.PeerReputation, error) {
	rows, err := s.pool.Query(ctx, `SELECT peer_id, handle, score, updated_at FROM ember_peer_reputation`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*storage.PeerReputation
	for rows.Next() {
		rec := &storage.PeerReputation{}
		if err := rows.Scan(&rec.PeerID, &rec.Handle, &rec.Score, &rec.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (s *Store) SaveChunk(ctx context.Context, rec *storage.ImageChunkRecord) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO ember_image_chunks (hash, data) VALUES ($1, $2)
		ON CONFLICT (hash) DO NOTHING`, rec.Hash, rec.Data)
	return err
}

func (s *Store) LoadChunk(ctx context.Context, hash string) (*storage.ImageChunkRecord, error) {
	rec := &storage.ImageChunkRecord{Hash: hash}
	err := s.pool.QueryRow(ctx, `SELECT data FROM ember_image_chunks WHERE hash = $1`, hash).Scan(&rec.Data)
	if err != nil {
		return nil, fmt.Errorf("load chunk: %w", err)
	}
	return rec, nil
}

func (s *Store) HasChunk(ctx context.Context, hash string) (bool, error) {
	var exists bool
	err := s.pool.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM ember_image_chunks WHERE hash = $1)`, hash).Scan(&exists)
	return exists, err
}

func (s *Store) SaveManifest(ctx context.Context, merkleRoot string, rec *storage.ImageManifestRecord) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO ember_image_manifests (merkle_root, chunk_hashes, chunk_sizes, total_size, created_at)
		VALUES ($1,$2,$3,$4,$5)
		ON CONFLICT (merkle_root) DO NOTHING`,
		merkleRoot, rec.ChunkHashes, rec.ChunkSizes, rec.TotalSize, rec.CreatedAt)
	return err
}

func (s *Store) LoadManifest(ctx context.Context, merkleRoot string) (*storage.ImageManifestRecord, error) {
	rec := &storage.ImageManifestRecord{MerkleRoot: merkleRoot}
	err := s.pool.QueryRow(ctx, `
		SELECT chunk_hashes, chunk_sizes, total_size, created_at FROM ember_image_manifests WHERE merkle_root = $1`, merkleRoot).
		Scan(&rec.ChunkHashes, &rec.ChunkSizes, &rec.TotalSize, &rec.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("load manifest: %w", err)
	}
	return rec, nil
}

func (s *Store) SaveDHTEntry(ctx context.Context, rec *storage.DHTRecord) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO ember_dht (key, value, stored_at, replicate) VALUES ($1,$2,$3,$4)
		ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, stored_at = EXCLUDED.stored_at, replicate = EXCLUDED.replicate`,
		rec.Key, rec.Value, rec.StoredAt, rec.Replicate)
	return err
}

func (s *Store) LoadDHTEntries(ctx context.Context) ([]*storage.DHTRecord, error) {
	rows, err := s.pool.Query(ctx, `SELECT key, value, stored_at, replicate FROM ember_dht`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*storage.DHTRecord
	for rows.Next() {
		rec := &storage.DHTRecord{}
		if err := rows.Scan(&rec.Key, &rec.Value, &rec.StoredAt, &rec.Replicate); err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (s *Store) DeleteDHTEntry(ctx context.Context, key string) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM ember_dht WHERE key = $1`, key)
	return err
}

func (s *Store) CountDHTEntries(ctx context.Context) (int, error) {
	var count int
	err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM ember_dht`).Scan(&count)
	return count, err
}

func (s *Store) DeleteOldestDHTEntries(ctx context.Context, n int) error {
	_, err := s.pool.Exec(ctx, `
		DELETE FROM ember_dht WHERE key IN (
			SELECT key FROM ember_dht ORDER BY stored_at ASC LIMIT $1
		)`, n)
	return err
}

func (s *Store) SaveSubscription(ctx context.Context, rec *storage.TopicSubscription) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO ember_topics (topic, joined_at) VALUES ($1, $2)
		ON CONFLICT (topic) DO NOTHING`, rec.Topic, rec.JoinedAt)
	return err
}

func (s *Store) LoadSubscriptions(ctx context.Context) ([]*storage.TopicSubscription, error) {
	rows, err := s.pool.Query(ctx, `SELECT topic, joined_at FROM ember_topics`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*storage.TopicSubscription
	for rows.Next() {
		rec := &storage.TopicSubscription{}
		if err := rows.Scan(&rec.Topic, &rec.JoinedAt); err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (s *Store) DeleteSubscription(ctx context.Context, topic string) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM ember_topics WHERE topic = $1`, topic)
	return err
}
