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

// Package transport carries typed messages between two peers: a framed,
// ordered, best-effort stream with peer identity, backpressure, and a
// bounded send queue.
package transport

import (
	"encoding/json"
	"errors"
)

// PeerID identifies a remote peer for the lifetime of a connection. It is
// populated once the auth handshake completes and is never reused across
// connections.
type PeerID string

// Core message types carried over the wire envelope.
const (
	TypeDHTRPC             = "dht_rpc"
	TypeHyParView          = "hyparview"
	TypePlumtree           = "plumtree"
	TypeScribe             = "scribe"
	TypeNewPost            = "new_post"
	TypePostsResponse      = "posts_response"
	TypeRequestPosts       = "request_posts"
	TypeCarrierUpdate      = "carrier_update"
	TypeParentUpdate       = "parent_update"
	TypePostAttestation    = "post_attestation"
	TypeRequestImage       = "request_image"
	TypeImageResponse      = "image_response"
	TypeRequestImageChunks = "request_image_chunks"
	TypeChunkResponse      = "chunk_response"
	TypeIdentityAnnounce   = "identity_announce"
	TypeRoutingUpdate      = "routing_update"
	TypeRoutingHeartbeat   = "routing_heartbeat"
	TypeAuthChallenge      = "auth_challenge"
	TypeAuthResponse       = "auth_response"
	TypeE2EDM              = "e2e_dm"
	TypeNoise              = "noise"
)

// rateLimitedTypes are the message types spec.md §4.1 subjects to the
// per-peer RATE_LIMIT_MESSAGES/RATE_LIMIT_WINDOW budget.
var rateLimitedTypes = map[string]bool{
	TypeNewPost:      true,
	TypeParentUpdate: true,
}

// Message is a decoded wire envelope: {type, ...type-specific fields}.
// Fields holds the full decoded object (type included) so a caller can
// re-marshal a sub-slice of it into a concrete params struct without the
// transport layer needing to know every message shape that exists above it.
type Message struct {
	Type   string
	Fields map[string]any
}

// ErrMessageTooLarge is returned by Transport.Send when the framed size
// exceeds MaxMessageBytes.
var ErrMessageTooLarge = errors.New("transport: message exceeds max frame size")

// ErrMissingType is returned by Decode when the wire object has no "type"
// string field.
var ErrMissingType = errors.New("transport: wire message missing type field")

// Encode builds the wire bytes for a message of the given type, merging
// fields into the envelope alongside "type". It does not enforce the size
// cap itself — callers check that against their own MaxMessageBytes limit
// so the error can be attributed to the right peer/metric.
func Encode(msgType string, fields map[string]any) ([]byte, error) {
	full := make(map[string]any, len(fields)+1)
	for k, v := range fields {
		full[k] = v
	}
	full["type"] = msgType
	return json.Marshal(full)
}

// Decode parses raw wire bytes into a Message.
func Decode(data []byte) (*Message, error) {
	var full map[string]any
	if err := json.Unmarshal(data, &full); err != nil {
		return nil, err
	}
	t, ok := full["type"].(string)
	if !ok || t == "" {
		return nil, ErrMissingType
	}
	return &Message{Type: t, Fields: full}, nil
}

// DecodeFields re-marshals the generic Fields map and unmarshals it into
// out, letting higher-level packages (dht, overlay, scribe, ...) work with
// their own typed params structs without transport knowing about them.
func (m *Message) DecodeFields(out any) error {
	data, err := json.Marshal(m.Fields)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, out)
}
