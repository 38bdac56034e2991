// SPDX-License-Identifier: LGPL-3.0-or-later

package post

import (
	"crypto/ed25519"
	"encoding/base64"
	"errors"
	"math"
	"time"

	"github.com/ember-net/ember/crypto/canonical"
)

// TrustThreshold is spec.md §4.7's trust_score promotion bar: a post at or
// above it is accepted without a local VDF check.
const TrustThreshold = 30.0

// AttestationMaxAge bounds how old an incoming attestation's own timestamp
// may be before it's rejected as stale (spec.md §4.7: "age ≤ 60 s").
const AttestationMaxAge = 60 * time.Second

// AttestationTimeout is how long the receipt pipeline waits for attestations
// to push a post over TrustThreshold before falling back to local
// verification (spec.md §4.7).
const AttestationTimeout = 1 * time.Second

// Attestation is a signed claim by an authenticated peer that it has
// independently verified a post.
type Attestation struct {
	PostID      string
	Attester    string
	AttesterPub ed25519.PublicKey
	Reputation  float64
	Timestamp   time.Time
	Signature   []byte
}

func attestationCanonicalFields(a *Attestation) []canonical.Field {
	return []canonical.Field{
		{Key: "post_id", Value: a.PostID},
		{Key: "attester", Value: a.Attester},
		{Key: "attester_pub", Value: []byte(a.AttesterPub)},
		{Key: "timestamp", Value: a.Timestamp.Unix()},
	}
}

// SignAttestationBytes returns the canonical bytes an Attestation's
// signature is computed over.
func SignAttestationBytes(a *Attestation) ([]byte, error) {
	return canonical.Bytes(attestationCanonicalFields(a))
}

// SignAttestation fills in and signs an Attestation for postID, as the
// attesting identity identified by attesterHandle/attesterPub/attesterSecret
// with the attester's own current reputation r.
func SignAttestation(postID, attesterHandle string, attesterPub ed25519.PublicKey, attesterSecret ed25519.PrivateKey, r float64) (*Attestation, error) {
	a := &Attestation{
		PostID:      postID,
		Attester:    attesterHandle,
		AttesterPub: attesterPub,
		Reputation:  r,
		Timestamp:   time.Now(),
	}
	b, err := SignAttestationBytes(a)
	if err != nil {
		return nil, err
	}
	a.Signature = ed25519.Sign(attesterSecret, b)
	return a, nil
}

var (
	// ErrAttestationStale is returned when an attestation's own timestamp
	// is older than AttestationMaxAge.
	ErrAttestationStale = errors.New("post: attestation older than max age")
	// ErrAttestationSignature is returned when an attestation's signature
	// does not verify against its claimed attester_pub.
	ErrAttestationSignature = errors.New("post: attestation signature invalid")
)

// attestationWeight is spec.md §4.7's per-attester trust contribution:
// max(1, ln(1+r) × 10).
func attestationWeight(r float64) float64 {
	w := math.Log(1+r) * 10
	if w < 1 {
		return 1
	}
	return w
}

// ApplyAttestation validates a, and if valid and from a not-yet-counted
// attester, adds its trust contribution to p.TrustScore. isAuthenticated
// reports whether the sender's transport-layer identity matches
// a.AttesterPub (the engine checks this against the live connection, not
// this package).
func (p *Post) ApplyAttestation(a *Attestation, isAuthenticated bool) error {
	if !isAuthenticated {
		return ErrAttestationSignature
	}
	if time.Since(a.Timestamp) > AttestationMaxAge {
		return ErrAttestationStale
	}
	b, err := SignAttestationBytes(a)
	if err != nil {
		return err
	}
	if len(a.AttesterPub) != ed25519.PublicKeySize || !ed25519.Verify(a.AttesterPub, b, a.Signature) {
		return ErrAttestationSignature
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if _, seen := p.Attesters[a.Attester]; seen {
		return nil
	}
	p.Attesters[a.Attester] = attesterRecord{Reputation: a.Reputation, At: a.Timestamp}
	p.TrustScore += attestationWeight(a.Reputation)
	return nil
}

// Trusted reports whether p has accumulated enough attestation trust to be
// promoted without a local VDF check (spec.md §4.7).
func (p *Post) Trusted() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.TrustScore >= TrustThreshold
}

// attestationFields renders an Attestation as transport message fields.
func attestationFields(a *Attestation) map[string]any {
	return map[string]any{
		"post_id":      a.PostID,
		"attester":     a.Attester,
		"attester_pub": base64.StdEncoding.EncodeToString(a.AttesterPub),
		"reputation":   a.Reputation,
		"timestamp":    a.Timestamp.Unix(),
		"signature":    base64.StdEncoding.EncodeToString(a.Signature),
	}
}

// attestationFromFields decodes a transport message's fields back into an
// Attestation.
func attestationFromFields(fields map[string]any) (*Attestation, error) {
	a := &Attestation{}
	a.PostID, _ = fields["post_id"].(string)
	a.Attester, _ = fields["attester"].(string)
	pub, err := decodeB64Field(fields["attester_pub"])
	if err != nil {
		return nil, err
	}
	a.AttesterPub = pub
	if r, ok := fields["reputation"].(float64); ok {
		a.Reputation = r
	}
	if ts, ok := fields["timestamp"].(float64); ok {
		a.Timestamp = time.Unix(int64(ts), 0).UTC()
	} else if ts, ok := fields["timestamp"].(int64); ok {
		a.Timestamp = time.Unix(ts, 0).UTC()
	}
	sig, err := decodeB64Field(fields["signature"])
	if err != nil {
		return nil, err
	}
	a.Signature = sig
	if a.PostID == "" {
		return nil, ErrAttestationSignature
	}
	return a, nil
}
