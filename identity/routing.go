// SPDX-License-Identifier: LGPL-3.0-or-later

package identity

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/ember-net/ember/dht"
	"github.com/ember-net/ember/transport"
)

// routingTTL is spec.md §3's RoutingRecord.ttl (5 minutes).
const routingTTL = 5 * time.Minute

// RoutingRecord maps a handle to the wire peer currently behind it
// (spec.md §3). Stored at routing:<lower(handle)> and reaped once
// Timestamp+TTL has passed.
type RoutingRecord struct {
	Handle     string
	NodeID     dht.NodeID
	WirePeerID transport.PeerID
	Timestamp  time.Time
	TTL        time.Duration
}

// Expired reports whether this record's TTL has elapsed.
func (r RoutingRecord) Expired() bool {
	return time.Since(r.Timestamp) > r.TTL
}

type routingWire struct {
	Handle     string `json:"handle"`
	NodeID     string `json:"node_id"`
	WirePeerID string `json:"wire_peer_id"`
	Timestamp  int64  `json:"timestamp"`
	TTLSeconds int64  `json:"ttl_seconds"`
}

func marshalRouting(r RoutingRecord) ([]byte, error) {
	return json.Marshal(routingWire{
		Handle:     r.Handle,
		NodeID:     r.NodeID.String(),
		WirePeerID: string(r.WirePeerID),
		Timestamp:  r.Timestamp.Unix(),
		TTLSeconds: int64(r.TTL.Seconds()),
	})
}

func unmarshalRouting(raw []byte) (*RoutingRecord, error) {
	var w routingWire
	if err := json.Unmarshal(raw, &w); err != nil || w.Handle == "" {
		var wrapped struct {
			Value json.RawMessage `json:"value"`
		}
		if uerr := json.Unmarshal(raw, &wrapped); uerr != nil || wrapped.Value == nil {
			return nil, fmt.Errorf("identity: malformed routing payload")
		}
		if uerr := json.Unmarshal(wrapped.Value, &w); uerr != nil {
			return nil, fmt.Errorf("identity: malformed wrapped routing payload: %w", uerr)
		}
	}
	id, err := dht.NodeIDFromHex(w.NodeID)
	if err != nil {
		return nil, fmt.Errorf("identity: decode routing node_id: %w", err)
	}
	return &RoutingRecord{
		Handle:     w.Handle,
		NodeID:     id,
		WirePeerID: transport.PeerID(w.WirePeerID),
		Timestamp:  time.Unix(w.Timestamp, 0).UTC(),
		TTL:        time.Duration(w.TTLSeconds) * time.Second,
	}, nil
}
