// SPDX-License-Identifier: LGPL-3.0-or-later

package post

import (
	"encoding/json"
	"fmt"

	"github.com/ember-net/ember/crypto/vdf"
	"github.com/ember-net/ember/storage"
)

// ToRecord converts p into its persisted form so a restart can resume
// heat accounting instead of starting every post back at zero carriers
// (spec.md §6). Per-voter rating and attestation detail is not persisted;
// only the Beta sufficient statistics survive a restart.
func (p *Post) ToRecord() (*storage.PostRecord, error) {
	p.mu.Lock()
	carriers := make([]string, 0, len(p.Carriers))
	for h := range p.Carriers {
		carriers = append(carriers, h)
	}
	replies := make([]string, 0, len(p.Replies))
	for id := range p.Replies {
		replies = append(replies, id)
	}
	trustScore := p.TrustScore
	alpha, beta, totalW := p.RatingAlpha, p.RatingBeta, p.RatingTotalW
	p.mu.Unlock()

	rec := &storage.PostRecord{
		ID:           p.ID,
		Content:      p.Content,
		Timestamp:    p.Timestamp,
		ParentID:     p.ParentID,
		ImageHash:    p.ImageHash,
		AuthorHandle: p.AuthorHandle,
		AuthorPub:    []byte(p.AuthorPub),
		VDFInput:     p.VDFInput,
		Signature:    p.Signature,
		Depth:        p.Depth,
		Carriers:     carriers,
		Replies:      replies,
		TrustScore:   trustScore,
		RatingAlpha:  alpha,
		RatingBeta:   beta,
		RatingTotalW: totalW,
	}
	if p.VDFProof != nil {
		raw, err := json.Marshal(p.VDFProof)
		if err != nil {
			return nil, fmt.Errorf("post: marshal vdf proof for record: %w", err)
		}
		rec.VDFProof = raw
	}
	return rec, nil
}

// FromRecord reconstructs a Post from its persisted form.
func FromRecord(rec *storage.PostRecord) (*Post, error) {
	p := &Post{
		ID:           rec.ID,
		Content:      rec.Content,
		Timestamp:    rec.Timestamp,
		ParentID:     rec.ParentID,
		ImageHash:    rec.ImageHash,
		AuthorHandle: rec.AuthorHandle,
		AuthorPub:    rec.AuthorPub,
		VDFInput:     rec.VDFInput,
		Signature:    rec.Signature,
		Depth:        rec.Depth,
		Carriers:     map[string]bool{},
		Replies:      map[string]bool{},
		Attesters:    map[string]attesterRecord{},
		Ratings:      map[string]rating{},
		TrustScore:   rec.TrustScore,
		RatingAlpha:  rec.RatingAlpha,
		RatingBeta:   rec.RatingBeta,
		RatingTotalW: rec.RatingTotalW,
	}
	for _, h := range rec.Carriers {
		p.Carriers[h] = true
	}
	for _, id := range rec.Replies {
		p.Replies[id] = true
	}
	if len(rec.VDFProof) > 0 {
		var proof vdf.Proof
		if err := json.Unmarshal(rec.VDFProof, &proof); err != nil {
			return nil, fmt.Errorf("post: unmarshal vdf proof from record: %w", err)
		}
		p.VDFProof = &proof
	}
	return p, nil
}
