// SPDX-License-Identifier: LGPL-3.0-or-later

package identity

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"time"

	"github.com/ember-net/ember/crypto/vdf"
	"github.com/ember-net/ember/dht"
)

// b64 base64-encodes a public key for use as a DHT key component or
// equality comparison.
func b64(b []byte) string { return base64.StdEncoding.EncodeToString(b) }

// marshalPubKeyB64 encodes a handle-to-pubkey DHT value.
func marshalPubKeyB64(pub string) ([]byte, error) { return json.Marshal(pub) }

// claimWire is the JSON shape a Claim takes on the DHT. []byte fields
// marshal to base64 automatically; NodeID is a fixed-size array so it
// needs an explicit hex encoding, matching dht.NodeID.String().
type claimWire struct {
	Handle       string `json:"handle"`
	SignPub      []byte `json:"sign_pub"`
	EncPub       []byte `json:"enc_pub"`
	VDFInput     []byte `json:"vdf_input"`
	VDFProofIter uint64 `json:"vdf_proof_iterations"`
	VDFProofOut  []byte `json:"vdf_proof_output"`
	VDFProofPi   []byte `json:"vdf_proof_pi"`
	NodeID       string `json:"node_id"`
	ClaimedAt    int64  `json:"claimed_at"`
	Signature    []byte `json:"signature"`
}

func toWire(c *Claim) claimWire {
	w := claimWire{
		Handle:    c.Handle,
		SignPub:   []byte(c.SignPub),
		EncPub:    c.EncPub,
		VDFInput:  c.VDFInput,
		NodeID:    c.NodeID.String(),
		ClaimedAt: c.ClaimedAt.Unix(),
		Signature: c.Signature,
	}
	if c.VDFProof != nil {
		w.VDFProofIter = c.VDFProof.Iterations
		w.VDFProofOut = c.VDFProof.Output
		w.VDFProofPi = c.VDFProof.Pi
	}
	return w
}

func fromWire(w claimWire) (*Claim, error) {
	nodeID, err := dht.NodeIDFromHex(w.NodeID)
	if err != nil {
		return nil, fmt.Errorf("identity: decode node_id: %w", err)
	}
	return &Claim{
		Handle:   w.Handle,
		SignPub:  w.SignPub,
		EncPub:   w.EncPub,
		VDFInput: w.VDFInput,
		VDFProof: &vdf.Proof{
			Iterations: w.VDFProofIter,
			Output:     w.VDFProofOut,
			Pi:         w.VDFProofPi,
		},
		NodeID:    nodeID,
		ClaimedAt: time.Unix(w.ClaimedAt, 0).UTC(),
		Signature: w.Signature,
	}, nil
}

// marshalClaim encodes a Claim for DHT storage.
func marshalClaim(c *Claim) ([]byte, error) {
	return json.Marshal(toWire(c))
}

// unmarshalClaim decodes a Claim from a DHT value, tolerating both the
// unwrapped wire object and a `{"value": ...}` wrapper some DHT
// implementations use (spec.md §4.6: "must tolerate both wrapped and
// unwrapped DHT payloads").
func unmarshalClaim(raw []byte) (*Claim, error) {
	var w claimWire
	if err := json.Unmarshal(raw, &w); err == nil && w.Handle != "" {
		return fromWire(w)
	}
	var wrapped struct {
		Value json.RawMessage `json:"value"`
	}
	if err := json.Unmarshal(raw, &wrapped); err != nil || wrapped.Value == nil {
		return nil, fmt.Errorf("identity: malformed claim payload")
	}
	if err := json.Unmarshal(wrapped.Value, &w); err != nil {
		return nil, fmt.Errorf("identity: malformed wrapped claim payload: %w", err)
	}
	return fromWire(w)
}

// unmarshalPubKeyB64 decodes a handle-to-pubkey DHT value, tolerating the
// same wrapped/unwrapped ambiguity as unmarshalClaim. Values are stored as
// JSON strings carrying the base64-encoded public key.
func unmarshalPubKeyB64(raw []byte) (string, error) {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil && s != "" {
		return s, nil
	}
	var wrapped struct {
		Value string `json:"value"`
	}
	if err := json.Unmarshal(raw, &wrapped); err != nil || wrapped.Value == "" {
		return "", fmt.Errorf("identity: malformed handle-to-pubkey payload")
	}
	return wrapped.Value, nil
}
