// SPDX-License-Identifier: LGPL-3.0-or-later

// Package post implements the Post Engine of spec.md §4.7: post creation
// and signing, Plumtree/flood dissemination, the inbound receipt
// pipeline, attestation-based trust accumulation, and rating aggregation.
package post

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/ember-net/ember/crypto/canonical"
	"github.com/ember-net/ember/crypto/vdf"
)

// MaxDepth bounds reply-thread nesting (spec.md §3: depth 0..5).
const MaxDepth = 5

// Post is one ephemeral message (spec.md §3, §4.7). The fields up to and
// including Signature are the signed, wire-carried half; the remainder is
// local bookkeeping the Ephemeral Store and Post Engine maintain and never
// re-sign.
type Post struct {
	ID           string
	Content      string
	Timestamp    time.Time
	ParentID     string
	ImageHash    string
	AuthorHandle string
	AuthorPub    ed25519.PublicKey

	// VDFInput/VDFProof are an OPTIONAL per-post time-lock, independent of
	// the author's identity-level VDF proof (which is verified separately
	// via the identity Claim, never re-checked here). Both nil means no
	// per-post VDF was attached.
	VDFInput []byte
	VDFProof *vdf.Proof

	Signature []byte
	Depth     int

	// Local-only state below: never part of the signed bytes.
	Carriers  map[string]bool
	Replies   map[string]bool
	Attesters map[string]attesterRecord

	TrustScore float64

	Ratings      map[string]rating
	RatingAlpha  float64
	RatingBeta   float64
	RatingTotalW float64

	// mu guards the local-only fields above against concurrent attestation
	// and rating updates; the signed fields above it are written once at
	// construction and read-only thereafter, so they need no lock.
	mu sync.Mutex
}

type attesterRecord struct {
	Reputation float64
	At         time.Time
}

type rating struct {
	Vote   string
	Weight float64
}

// newID mints a random post id. Posts don't need the collision resistance
// of a content hash since they're already content-addressed by the
// signature; a random id just needs to be unique enough for dedup.
func newID() (string, error) {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("post: generate id: %w", err)
	}
	return hex.EncodeToString(buf), nil
}

// New builds and signs a Post authored by signPub/signSecret. parent, when
// non-empty, must belong to a post at depth < MaxDepth; the caller (engine)
// is responsible for that check since it requires looking the parent up.
func New(content string, parentID string, parentDepth int, imageHash string, authorHandle string, signPub ed25519.PublicKey, signSecret ed25519.PrivateKey, vdfInput []byte, vdfProof *vdf.Proof) (*Post, error) {
	id, err := newID()
	if err != nil {
		return nil, err
	}
	depth := 0
	if parentID != "" {
		depth = parentDepth + 1
	}
	p := &Post{
		ID:           id,
		Content:      content,
		Timestamp:    time.Now(),
		ParentID:     parentID,
		ImageHash:    imageHash,
		AuthorHandle: authorHandle,
		AuthorPub:    signPub,
		VDFInput:     vdfInput,
		VDFProof:     vdfProof,
		Depth:        depth,
		Carriers:     map[string]bool{authorHandle: true},
		Replies:      map[string]bool{},
		Attesters:    map[string]attesterRecord{},
		Ratings:      map[string]rating{},
		RatingAlpha:  1,
		RatingBeta:   1,
	}
	b, err := SignBytes(p)
	if err != nil {
		return nil, err
	}
	p.Signature = ed25519.Sign(signSecret, b)
	return p, nil
}

// canonicalFields is the exact field set spec.md §4.7 signs over: "every
// cryptographic field except the signature itself."
func canonicalFields(p *Post) []canonical.Field {
	fields := []canonical.Field{
		{Key: "id", Value: p.ID},
		{Key: "content", Value: p.Content},
		{Key: "timestamp", Value: p.Timestamp.Unix()},
		{Key: "parent_id", Value: p.ParentID},
		{Key: "image_hash", Value: p.ImageHash},
		{Key: "author_pub", Value: []byte(p.AuthorPub)},
		{Key: "vdf_input", Value: p.VDFInput},
	}
	if p.VDFProof != nil {
		fields = append(fields,
			canonical.Field{Key: "vdf_proof_iterations", Value: canonical.NewIterations(p.VDFProof.Iterations)},
			canonical.Field{Key: "vdf_proof_output", Value: p.VDFProof.Output},
			canonical.Field{Key: "vdf_proof_pi", Value: p.VDFProof.Pi},
		)
	}
	return fields
}

// SignBytes returns the canonical serialization a Post's signature is
// computed over.
func SignBytes(p *Post) ([]byte, error) {
	return canonical.Bytes(canonicalFields(p))
}

// VerifySignature checks only the post's own signature, not the author's
// identity binding (that's the engine's job via an identity.Registry) nor
// any per-post VDF proof (see VerifyVDF).
func VerifySignature(p *Post) bool {
	if len(p.AuthorPub) != ed25519.PublicKeySize {
		return false
	}
	b, err := SignBytes(p)
	if err != nil {
		return false
	}
	return ed25519.Verify(p.AuthorPub, b, p.Signature)
}

// VerifyVDF checks the optional per-post VDF proof, if one is attached.
// A post with no proof trivially passes this check; whether that's
// acceptable is a trust-policy decision made by the engine.
func VerifyVDF(p *Post, verifier vdf.Verifier) bool {
	if p.VDFProof == nil {
		return true
	}
	return verifier.Verify(p.VDFInput, p.VDFProof)
}

// AddCarrier adds handle to p's carrier set, returning whether it was newly
// added (spec.md §4.8: "the author is always an implicit carrier").
func (p *Post) AddCarrier(handle string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.Carriers[handle] {
		return false
	}
	p.Carriers[handle] = true
	return true
}

// RemoveCarrier removes handle from p's carrier set, returning whether it
// was present.
func (p *Post) RemoveCarrier(handle string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.Carriers[handle] {
		return false
	}
	delete(p.Carriers, handle)
	return true
}

// IsCarrier reports whether handle is currently carrying p.
func (p *Post) IsCarrier(handle string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.Carriers[handle]
}

// CarrierCount reports the number of handles currently carrying p.
func (p *Post) CarrierCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.Carriers)
}

// AddReply records childID as a reply to p.
func (p *Post) AddReply(childID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Replies[childID] = true
}

// RepliesSnapshot returns a copy of p's direct reply id set, for callers
// (the Ephemeral Store's eviction scan) that need to walk the reply graph
// without holding p's lock across the walk.
func (p *Post) RepliesSnapshot() map[string]bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make(map[string]bool, len(p.Replies))
	for id := range p.Replies {
		out[id] = true
	}
	return out
}

// Heat and Priority implement spec.md §4.8's eviction scoring, kept here
// alongside the Post type since both the engine and the Ephemeral Store
// need them.
func (p *Post) Heat() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return float64(len(p.Carriers)) + 2*float64(len(p.Replies))
}

func (p *Post) Priority(now time.Time) float64 {
	ageHours := now.Sub(p.Timestamp).Hours()
	if ageHours < 0 {
		ageHours = 0
	}
	return p.Heat() / math.Pow(ageHours+1, 1.5)
}
