// SPDX-License-Identifier: LGPL-3.0-or-later

// Package identity implements the self-sovereign identity registry of
// spec.md §3 and §4.6: VDF-gated Claims published to the DHT under a
// handle→pubkey mapping, plus the routing records that let other peers
// find the wire connection currently behind a handle.
package identity

import (
	"crypto/ed25519"
	"crypto/sha256"
	"fmt"
	"strings"
	"time"

	"github.com/ember-net/ember/crypto/canonical"
	"github.com/ember-net/ember/crypto/vdf"
	"github.com/ember-net/ember/dht"
)

// Claim is the public, DHT-published half of an identity (spec.md §3).
// It is built once by its owner and never mutated afterward.
type Claim struct {
	Handle    string
	SignPub   ed25519.PublicKey
	EncPub    []byte
	VDFInput  []byte
	VDFProof  *vdf.Proof
	NodeID    dht.NodeID
	ClaimedAt time.Time
	Signature []byte
}

// LocalIdentity is a Claim plus the secrets that prove ownership of it.
// Owned exclusively by the local node; SignSecret/EncSecret are never put
// on the wire (spec.md §3).
type LocalIdentity struct {
	Claim
	SignSecret ed25519.PrivateKey
	EncSecret  []byte
}

// NormalizeHandle lowercases and trims a handle the way every DHT key and
// signature computed over a handle must (handles are case-insensitive).
func NormalizeHandle(handle string) string {
	return strings.ToLower(strings.TrimSpace(handle))
}

// DeriveVDFInput builds the VDF puzzle input from a handle and signing
// key, binding the time-locked proof to one specific identity instead of
// letting a proof be recycled across handles (spec.md §3: "vdf_input
// (bytes derived from the handle and sign_pub)").
func DeriveVDFInput(handle string, signPub ed25519.PublicKey) []byte {
	h := sha256.New()
	h.Write([]byte(NormalizeHandle(handle)))
	h.Write(signPub)
	return h.Sum(nil)
}

// canonicalFields is the exact field set and order spec.md §4.6 signs
// over: every cryptographic field of the Claim except the signature
// itself. Both the signer and every verifier must build this list
// identically.
func canonicalFields(c *Claim) []canonical.Field {
	fields := []canonical.Field{
		{Key: "handle", Value: NormalizeHandle(c.Handle)},
		{Key: "sign_pub", Value: []byte(c.SignPub)},
		{Key: "enc_pub", Value: c.EncPub},
		{Key: "vdf_input", Value: c.VDFInput},
		{Key: "node_id", Value: c.NodeID[:]},
		{Key: "claimed_at", Value: c.ClaimedAt.Unix()},
	}
	if c.VDFProof != nil {
		fields = append(fields,
			canonical.Field{Key: "vdf_proof_iterations", Value: canonical.NewIterations(c.VDFProof.Iterations)},
			canonical.Field{Key: "vdf_proof_output", Value: c.VDFProof.Output},
			canonical.Field{Key: "vdf_proof_pi", Value: c.VDFProof.Pi},
		)
	}
	return fields
}

// SignBytes returns the canonical serialization a Claim's signature is
// computed over.
func SignBytes(c *Claim) ([]byte, error) {
	return canonical.Bytes(canonicalFields(c))
}

// Sign computes and stores li.Signature over the canonical serialization
// of li.Claim.
func (li *LocalIdentity) Sign() error {
	b, err := SignBytes(&li.Claim)
	if err != nil {
		return fmt.Errorf("identity: build sign bytes: %w", err)
	}
	li.Signature = ed25519.Sign(li.SignSecret, b)
	return nil
}

// Verify checks a Claim's signature and VDF proof, spec.md §3's
// invariant: verify_sig(signature, canonical, sign_pub) ∧
// verify_vdf(vdf_input, vdf_proof).
func Verify(c *Claim, verifier vdf.Verifier) error {
	if len(c.SignPub) != ed25519.PublicKeySize {
		return fmt.Errorf("identity: invalid sign_pub length %d", len(c.SignPub))
	}
	b, err := SignBytes(c)
	if err != nil {
		return fmt.Errorf("identity: build sign bytes: %w", err)
	}
	if !ed25519.Verify(c.SignPub, b, c.Signature) {
		return fmt.Errorf("identity: signature verification failed for handle %q", c.Handle)
	}
	if c.VDFProof == nil || !verifier.Verify(c.VDFInput, c.VDFProof) {
		return fmt.Errorf("identity: vdf verification failed for handle %q", c.Handle)
	}
	return nil
}
