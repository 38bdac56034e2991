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

// Package postgres implements storage.Store on top of PostgreSQL via pgx.
package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Config holds PostgreSQL connection configuration.
type Config struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
	SSLMode  string
}

// Store implements storage.Store for PostgreSQL.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore creates a new PostgreSQL store and ensures the schema exists.
func NewStore(ctx context.Context, cfg *Config) (*Store, error) {
	connString := fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.Database, cfg.SSLMode,
	)

	pool, err := pgxpool.New(ctx, connString)
	if err != nil {
		return nil, fmt.Errorf("create connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	s := &Store{pool: pool}
	if err := s.migrate(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("migrate schema: %w", err)
	}
	return s, nil
}

// NewStoreFromDSN is NewStore for a caller that already has a full pgx
// connection string (config.StorageConfig.DSN) rather than discrete
// host/user/password fields.
func NewStoreFromDSN(ctx context.Context, dsn string) (*Store, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("create connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	s := &Store{pool: pool}
	if err := s.migrate(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("migrate schema: %w", err)
	}
	return s, nil
}

func (s *Store) migrate(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS ember_identity (
			id INTEGER PRIMARY KEY DEFAULT 1,
			handle TEXT NOT NULL,
			sign_pub BYTEA NOT NULL,
			enc_pub BYTEA NOT NULL,
			vdf_input BYTEA NOT NULL,
			vdf_proof BYTEA NOT NULL,
			claimed_at TIMESTAMPTZ NOT NULL,
			signature BYTEA NOT NULL,
			encrypted_vault BYTEA NOT NULL,
			CHECK (id = 1)
		)`,
		`CREATE TABLE IF NOT EXISTS ember_posts (
			id TEXT PRIMARY KEY,
			content TEXT NOT NULL,
			ts TIMESTAMPTZ NOT NULL,
			parent_id TEXT NOT NULL DEFAULT '',
			image_hash TEXT NOT NULL DEFAULT '',
			author_handle TEXT NOT NULL,
			author_pub BYTEA NOT NULL,
			vdf_input BYTEA,
			vdf_proof BYTEA,
			signature BYTEA NOT NULL,
			depth INTEGER NOT NULL,
			carriers TEXT[] NOT NULL DEFAULT '{}',
			replies TEXT[] NOT NULL DEFAULT '{}',
			trust_score DOUBLE PRECISION NOT NULL DEFAULT 0,
			rating_alpha DOUBLE PRECISION NOT NULL DEFAULT 1,
			rating_beta DOUBLE PRECISION NOT NULL DEFAULT 1,
			rating_total_w DOUBLE PRECISION NOT NULL DEFAULT 0
		)`,
		`CREATE TABLE IF NOT EXISTS ember_peer_reputation (
			peer_id TEXT PRIMARY KEY,
			handle TEXT NOT NULL DEFAULT '',
			score DOUBLE PRECISION NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS ember_image_chunks (
			hash TEXT PRIMARY KEY,
			data BYTEA NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS ember_image_manifests (
			merkle_root TEXT PRIMARY KEY,
			chunk_hashes TEXT[] NOT NULL,
			chunk_sizes INTEGER[] NOT NULL,
			total_size BIGINT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS ember_dht (
			key TEXT PRIMARY KEY,
			value BYTEA NOT NULL,
			stored_at TIMESTAMPTZ NOT NULL,
			replicate BOOLEAN NOT NULL DEFAULT false
		)`,
		`CREATE TABLE IF NOT EXISTS ember_topics (
			topic TEXT PRIMARY KEY,
			joined_at TIMESTAMPTZ NOT NULL
		)`,
	}
	for _, stmt := range stmts {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

// Close closes the database connection pool.
func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

// Ping checks the database connection.
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}
