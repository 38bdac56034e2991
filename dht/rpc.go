// SPDX-License-Identifier: LGPL-3.0-or-later

package dht

import (
	"context"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ember-net/ember/internal/logger"
	"github.com/ember-net/ember/transport"
)

// RPC methods (spec.md §4.2).
const (
	MethodPing      = "PING"
	MethodFindNode  = "FIND_NODE"
	MethodFindValue = "FIND_VALUE"
	MethodStore     = "STORE"
)

// rpcTimeout is the per-RPC deadline (spec.md §4.2, §5).
const rpcTimeout = 5 * time.Second

// ErrRPCTimeout is returned when a peer doesn't answer within rpcTimeout.
var ErrRPCTimeout = errors.New("dht: rpc timeout")

// wireContact is the envelope-safe form of a Contact.
type wireContact struct {
	NodeID string `json:"node_id"`
	Peer   string `json:"peer"`
	Addr   string `json:"addr"`
}

func toWireContact(c Contact) wireContact {
	return wireContact{NodeID: c.NodeID.String(), Peer: string(c.Peer), Addr: c.Addr}
}

func (wc wireContact) toContact() (Contact, error) {
	id, err := nodeIDFromHex(wc.NodeID)
	if err != nil {
		return Contact{}, err
	}
	return Contact{NodeID: id, Peer: transport.PeerID(wc.Peer), Addr: wc.Addr, LastSeen: time.Now()}, nil
}

type rpcRequestFields struct {
	Method     string         `json:"method"`
	Params     map[string]any `json:"params"`
	RPCID      string         `json:"rpc_id"`
	SenderID   string         `json:"sender_id"`
	IsResponse bool           `json:"is_response"`
}

type rpcResult struct {
	fields map[string]any
	err    error
}

// rpcClient manages outstanding RPC calls keyed by rpc_id and dispatches
// inbound dht_rpc requests to a Node's handlers.
type rpcClient struct {
	tr   *transport.Transport
	self NodeID

	mu      sync.Mutex
	pending map[string]chan rpcResult
}

func newRPCClient(tr *transport.Transport, self NodeID) *rpcClient {
	return &rpcClient{tr: tr, self: self, pending: make(map[string]chan rpcResult)}
}

// call issues method to peer and blocks for its response up to rpcTimeout.
func (c *rpcClient) call(ctx context.Context, peer transport.PeerID, method string, params map[string]any) (map[string]any, error) {
	rpcID := uuid.NewString()
	ch := make(chan rpcResult, 1)

	c.mu.Lock()
	c.pending[rpcID] = ch
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		delete(c.pending, rpcID)
		c.mu.Unlock()
	}()

	err := c.tr.Send(peer, transport.TypeDHTRPC, map[string]any{
		"method":    method,
		"params":    params,
		"rpc_id":    rpcID,
		"sender_id": c.self.String(),
	})
	if err != nil {
		return nil, fmt.Errorf("dht: send %s to %s: %w", method, peer, err)
	}

	ctx, cancel := context.WithTimeout(ctx, rpcTimeout)
	defer cancel()

	select {
	case res := <-ch:
		return res.fields, res.err
	case <-ctx.Done():
		return nil, ErrRPCTimeout
	}
}

// respond sends a dht_rpc response frame back to peer for rpcID.
func (c *rpcClient) respond(peer transport.PeerID, rpcID string, result map[string]any) {
	_ = c.tr.Send(peer, transport.TypeDHTRPC, map[string]any{
		"method":      "",
		"rpc_id":      rpcID,
		"sender_id":   c.self.String(),
		"is_response": true,
		"result":      result,
	})
}

// handleIncoming routes a decoded dht_rpc message either to a pending
// call's channel (if it's a response) or to handler (if it's a request).
func (c *rpcClient) handleIncoming(peer transport.PeerID, msg *transport.Message, handler func(peer transport.PeerID, req rpcRequestFields)) {
	var fields rpcRequestFields
	if err := msg.DecodeFields(&fields); err != nil {
		logger.Warn("dropping malformed dht_rpc frame", logger.Error(err))
		return
	}

	if fields.IsResponse {
		c.mu.Lock()
		ch, ok := c.pending[fields.RPCID]
		c.mu.Unlock()
		if !ok {
			return
		}
		result, _ := msg.Fields["result"].(map[string]any)
		ch <- rpcResult{fields: result}
		return
	}

	handler(peer, fields)
}

func bytesToB64(b []byte) string { return base64.StdEncoding.EncodeToString(b) }

func b64ToBytes(s string) ([]byte, error) { return base64.StdEncoding.DecodeString(s) }

func nodeIDFromHex(s string) (NodeID, error) {
	var id NodeID
	b, err := hex.DecodeString(s)
	if err != nil {
		return id, err
	}
	if len(b) != len(id) {
		return id, fmt.Errorf("dht: invalid node id length %d", len(b))
	}
	copy(id[:], b)
	return id, nil
}
