// SPDX-License-Identifier: LGPL-3.0-or-later

package post

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"time"

	"github.com/ember-net/ember/crypto/vdf"
)

type postWire struct {
	ID             string `json:"id"`
	Content        string `json:"content"`
	Timestamp      int64  `json:"timestamp"`
	ParentID       string `json:"parent_id"`
	ImageHash      string `json:"image_hash"`
	AuthorHandle   string `json:"author_handle"`
	AuthorPub      []byte `json:"author_pub"`
	VDFInput       []byte `json:"vdf_input,omitempty"`
	VDFProofIter   uint64 `json:"vdf_proof_iterations,omitempty"`
	VDFProofOutput []byte `json:"vdf_proof_output,omitempty"`
	VDFProofPi     []byte `json:"vdf_proof_pi,omitempty"`
	Signature      []byte `json:"signature"`
	Depth          int    `json:"depth"`
}

func toWire(p *Post) postWire {
	w := postWire{
		ID:           p.ID,
		Content:      p.Content,
		Timestamp:    p.Timestamp.Unix(),
		ParentID:     p.ParentID,
		ImageHash:    p.ImageHash,
		AuthorHandle: p.AuthorHandle,
		AuthorPub:    []byte(p.AuthorPub),
		VDFInput:     p.VDFInput,
		Signature:    p.Signature,
		Depth:        p.Depth,
	}
	if p.VDFProof != nil {
		w.VDFProofIter = p.VDFProof.Iterations
		w.VDFProofOutput = p.VDFProof.Output
		w.VDFProofPi = p.VDFProof.Pi
	}
	return w
}

func fromWire(w postWire) *Post {
	p := &Post{
		ID:           w.ID,
		Content:      w.Content,
		Timestamp:    time.Unix(w.Timestamp, 0).UTC(),
		ParentID:     w.ParentID,
		ImageHash:    w.ImageHash,
		AuthorHandle: w.AuthorHandle,
		AuthorPub:    w.AuthorPub,
		VDFInput:     w.VDFInput,
		Signature:    w.Signature,
		Depth:        w.Depth,
		Carriers:     map[string]bool{w.AuthorHandle: true},
		Replies:      map[string]bool{},
		Attesters:    map[string]attesterRecord{},
		Ratings:      map[string]rating{},
		RatingAlpha:  1,
		RatingBeta:   1,
	}
	if w.VDFProofOutput != nil || w.VDFProofPi != nil {
		p.VDFProof = &vdf.Proof{Iterations: w.VDFProofIter, Output: w.VDFProofOutput, Pi: w.VDFProofPi}
	}
	return p
}

// marshalPost serializes p to JSON for Plumtree's opaque payload carriage.
func marshalPost(p *Post) ([]byte, error) {
	b, err := json.Marshal(toWire(p))
	if err != nil {
		return nil, fmt.Errorf("post: marshal: %w", err)
	}
	return b, nil
}

// unmarshalPost decodes a Plumtree payload back into a Post.
func unmarshalPost(raw []byte) (*Post, error) {
	var w postWire
	if err := json.Unmarshal(raw, &w); err != nil {
		return nil, fmt.Errorf("post: unmarshal: %w", err)
	}
	return fromWire(w), nil
}

// postFields renders a Post as transport message fields, used by the
// bounded-fanout flood fallback which carries arbitrary field maps rather
// than an opaque byte payload.
func postFields(p *Post) map[string]any {
	w := toWire(p)
	return map[string]any{
		"id":                   w.ID,
		"content":              w.Content,
		"timestamp":            w.Timestamp,
		"parent_id":            w.ParentID,
		"image_hash":           w.ImageHash,
		"author_handle":        w.AuthorHandle,
		"author_pub":           base64.StdEncoding.EncodeToString(w.AuthorPub),
		"vdf_input":            base64.StdEncoding.EncodeToString(w.VDFInput),
		"vdf_proof_iterations": w.VDFProofIter,
		"vdf_proof_output":     base64.StdEncoding.EncodeToString(w.VDFProofOutput),
		"vdf_proof_pi":         base64.StdEncoding.EncodeToString(w.VDFProofPi),
		"signature":            base64.StdEncoding.EncodeToString(w.Signature),
		"depth":                w.Depth,
	}
}

// postFromFields decodes a transport message's fields (as produced by
// postFields) back into a Post.
func postFromFields(fields map[string]any) (*Post, error) {
	w := postWire{}
	w.ID, _ = fields["id"].(string)
	w.Content, _ = fields["content"].(string)
	if ts, ok := fields["timestamp"].(float64); ok {
		w.Timestamp = int64(ts)
	}
	w.ParentID, _ = fields["parent_id"].(string)
	w.ImageHash, _ = fields["image_hash"].(string)
	w.AuthorHandle, _ = fields["author_handle"].(string)
	var err error
	if w.AuthorPub, err = decodeB64Field(fields["author_pub"]); err != nil {
		return nil, err
	}
	if w.VDFInput, err = decodeB64Field(fields["vdf_input"]); err != nil {
		return nil, err
	}
	if iter, ok := fields["vdf_proof_iterations"].(float64); ok {
		w.VDFProofIter = uint64(iter)
	}
	if w.VDFProofOutput, err = decodeB64Field(fields["vdf_proof_output"]); err != nil {
		return nil, err
	}
	if w.VDFProofPi, err = decodeB64Field(fields["vdf_proof_pi"]); err != nil {
		return nil, err
	}
	if w.Signature, err = decodeB64Field(fields["signature"]); err != nil {
		return nil, err
	}
	if depth, ok := fields["depth"].(float64); ok {
		w.Depth = int(depth)
	}
	return fromWire(w), nil
}

// EncodePost renders p as opaque bytes suitable for carriage inside
// another message's payload (e.g. the Ephemeral Store's posts_response),
// sharing the same wire shape marshalPost uses for Plumtree.
func EncodePost(p *Post) ([]byte, error) { return marshalPost(p) }

// DecodePost reverses EncodePost.
func DecodePost(raw []byte) (*Post, error) { return unmarshalPost(raw) }

func b64(b []byte) string { return base64.StdEncoding.EncodeToString(b) }

func decodeB64Field(v any) ([]byte, error) {
	s, ok := v.(string)
	if !ok || s == "" {
		return nil, nil
	}
	b, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("post: decode base64 field: %w", err)
	}
	return b, nil
}
