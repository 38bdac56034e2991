// SPDX-License-Identifier: LGPL-3.0-or-later

package dht

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/ember-net/ember/storage"
	"github.com/ember-net/ember/transport"
)

// Store safeguards (spec.md §4.2).
const (
	maxStoreKeyBytes   = 256
	maxStoreValueBytes = 64 * 1024
	storeRateLimit     = 100
	storeRateWindow    = time.Minute
	maxLocalEntries    = 10000
	evictOnOverflow    = 5000
)

var (
	ErrKeyTooLarge      = errors.New("dht: key exceeds 256 bytes")
	ErrValueTooLarge    = errors.New("dht: value exceeds 64 KiB")
	ErrStoreRateLimited = errors.New("dht: sender exceeded store rate limit")
)

// localStore is the node's local key/value table, backed by storage.DHTStore
// for restart durability, with the STORE RPC safeguards spec.md §4.2
// requires applied in front of it.
type localStore struct {
	backing storage.DHTStore

	mu        sync.Mutex
	senderLog map[transport.PeerID][]time.Time
}

func newLocalStore(backing storage.DHTStore) *localStore {
	return &localStore{backing: backing, senderLog: make(map[transport.PeerID][]time.Time)}
}

// put writes key/value unconditionally (the local half of spec.md §4.2's
// "write locally unconditionally, then iteratively ... STORE"), applying
// size limits but not the per-sender rate limit (used for the node's own
// writes).
func (ls *localStore) put(ctx context.Context, key string, value []byte) error {
	if len(key) > maxStoreKeyBytes {
		return ErrKeyTooLarge
	}
	if len(value) > maxStoreValueBytes {
		return ErrValueTooLarge
	}
	if err := ls.backing.SaveDHTEntry(ctx, &storage.DHTRecord{Key: key, Value: value, StoredAt: time.Now()}); err != nil {
		return err
	}
	return ls.enforceCapacity(ctx)
}

// putFromPeer is the inbound path for a remote STORE RPC: it additionally
// rate-limits the sender to storeRateLimit per storeRateWindow.
func (ls *localStore) putFromPeer(ctx context.Context, sender transport.PeerID, key string, value []byte) error {
	if !ls.allowSender(sender) {
		return ErrStoreRateLimited
	}
	return ls.put(ctx, key, value)
}

func (ls *localStore) allowSender(sender transport.PeerID) bool {
	now := time.Now()
	cutoff := now.Add(-storeRateWindow)

	ls.mu.Lock()
	defer ls.mu.Unlock()

	log := ls.senderLog[sender]
	kept := log[:0]
	for _, t := range log {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	if len(kept) >= storeRateLimit {
		ls.senderLog[sender] = kept
		return false
	}
	ls.senderLog[sender] = append(kept, now)
	return true
}

func (ls *localStore) enforceCapacity(ctx context.Context) error {
	count, err := ls.backing.CountDHTEntries(ctx)
	if err != nil {
		return err
	}
	if count <= maxLocalEntries {
		return nil
	}
	return ls.backing.DeleteOldestDHTEntries(ctx, evictOnOverflow)
}

// get returns a locally-held value, if any.
func (ls *localStore) get(ctx context.Context, key string) ([]byte, bool, error) {
	entries, err := ls.backing.LoadDHTEntries(ctx)
	if err != nil {
		return nil, false, err
	}
	for _, e := range entries {
		if e.Key == key {
			return e.Value, true, nil
		}
	}
	return nil, false, nil
}

func (ls *localStore) forgetSender(sender transport.PeerID) {
	ls.mu.Lock()
	defer ls.mu.Unlock()
	delete(ls.senderLog, sender)
}
