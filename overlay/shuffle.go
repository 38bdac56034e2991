// SPDX-License-Identifier: LGPL-3.0-or-later

package overlay

import (
	"time"

	"github.com/ember-net/ember/internal/metrics"
	"github.com/ember-net/ember/transport"
)

// shuffleLoop periodically exchanges view samples with a random active
// neighbor (spec.md §4.3: every 30 s by default).
func (o *Overlay) shuffleLoop() {
	ticker := time.NewTicker(o.shuffleInt)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			o.initiateShuffle()
		case <-o.stop:
			return
		}
	}
}

func (o *Overlay) initiateShuffle() {
	target := o.randomActiveExcept()
	if target == "" {
		return
	}
	sample := o.sampleViews()
	_ = o.send(target, ActionShuffle, map[string]any{
		"set": sample,
		"ttl": o.prwl,
	})
}

// sampleViews draws a random sample from both the active and passive
// views for a SHUFFLE/SHUFFLEREPLY exchange.
func (o *Overlay) sampleViews() []string {
	o.mu.Lock()
	defer o.mu.Unlock()
	all := make([]string, 0, len(o.active)+len(o.passive))
	for p := range o.active {
		all = append(all, string(p))
	}
	for p := range o.passive {
		all = append(all, string(p))
	}
	o.rng.Shuffle(len(all), func(i, j int) { all[i], all[j] = all[j], all[i] })
	sampleSize := o.arwl
	if sampleSize > len(all) {
		sampleSize = len(all)
	}
	return all[:sampleSize]
}

func (o *Overlay) handleShuffle(sender transport.PeerID, msg *transport.Message) {
	ttl := intField(msg.Fields["ttl"])
	set := stringSlice(msg.Fields["set"])

	if ttl > 0 {
		if next := o.randomActiveExcept(sender); next != "" {
			_ = o.send(next, ActionShuffle, map[string]any{"set": set, "ttl": ttl - 1})
			return
		}
	}

	reply := o.sampleViews()
	_ = o.send(sender, ActionShuffleReply, map[string]any{"set": reply})
	o.mergeSample(set)
	metrics.OverlayShuffles.Inc()
}

func (o *Overlay) handleShuffleReply(msg *transport.Message) {
	set := stringSlice(msg.Fields["set"])
	o.mergeSample(set)
	metrics.OverlayShuffles.Inc()
}

// mergeSample swaps received peer ids into the passive view, evicting
// existing passive entries at random when full (spec.md §4.3).
func (o *Overlay) mergeSample(ids []string) {
	for _, id := range ids {
		peer := transport.PeerID(id)
		if peer == "" || peer == o.self {
			continue
		}
		o.addPassive(peer, "")
	}
}

func stringSlice(v any) []string {
	raw, ok := v.([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(raw))
	for _, item := range raw {
		if s, ok := item.(string); ok {
			out = append(out, s)
		}
	}
	return out
}
