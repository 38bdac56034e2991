// SPDX-License-Identifier: LGPL-3.0-or-later

package dht

import (
	"context"
	"sort"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/ember-net/ember/internal/metrics"
)

// maxLookupRounds bounds an iterative lookup (spec.md §4.2: 20 rounds).
const maxLookupRounds = 20

// alpha is the lookup concurrency factor (spec.md §4.2).
const alpha = 3

// shortlistEntry tracks a candidate's contact plus whether it has already
// been queried this lookup.
type shortlistEntry struct {
	contact Contact
	queried bool
}

// lookup drives an iterative FIND_NODE (or FIND_VALUE, when wantValue is
// set) search for target, returning the k closest contacts found and, for
// FIND_VALUE, the value if any peer had it.
func (n *Node) lookup(ctx context.Context, target NodeID, wantValue bool) ([]Contact, []byte, error) {
	var mu sync.Mutex
	seen := make(map[NodeID]*shortlistEntry)

	addCandidates := func(cs []Contact) {
		mu.Lock()
		defer mu.Unlock()
		for _, c := range cs {
			if c.NodeID == n.self {
				continue
			}
			if _, ok := seen[c.NodeID]; !ok {
				seen[c.NodeID] = &shortlistEntry{contact: c}
			}
		}
	}
	addCandidates(n.table.Closest(target, n.k))

	var foundValue []byte
	prevClosest := ""
	rounds := 0

	for round := 0; round < maxLookupRounds; round++ {
		mu.Lock()
		var all []*shortlistEntry
		for _, e := range seen {
			all = append(all, e)
		}
		sort.Slice(all, func(i, j int) bool {
			return xorDistance(all[i].contact.NodeID, target).Cmp(xorDistance(all[j].contact.NodeID, target)) < 0
		})

		var toQuery []Contact
		for _, e := range all {
			if !e.queried {
				e.queried = true
				toQuery = append(toQuery, e.contact)
				if len(toQuery) >= n.alpha {
					break
				}
			}
		}
		var newClosest string
		if len(all) > 0 {
			newClosest = all[0].contact.NodeID.String()
		}
		mu.Unlock()

		if len(toQuery) == 0 {
			break
		}
		rounds++

		g, gctx := errgroup.WithContext(ctx)
		for _, c := range toQuery {
			c := c
			g.Go(func() error {
				var result map[string]any
				var err error
				if wantValue {
					result, err = n.rpc.call(gctx, c.Peer, MethodFindValue, map[string]any{"key": target.String()})
				} else {
					result, err = n.rpc.call(gctx, c.Peer, MethodFindNode, map[string]any{"target": target.String()})
				}
				if err != nil {
					n.table.RecordFailure(c.NodeID)
					metrics.DHTLookups.WithLabelValues(lookupKind(wantValue), "timeout").Inc()
					return nil
				}

				gotValue := false
				if wantValue {
					if raw, ok := result["value"].(string); ok && raw != "" {
						if v, err := b64ToBytes(raw); err == nil {
							gotValue = true
							mu.Lock()
							if foundValue == nil {
								foundValue = v
							}
							mu.Unlock()
						}
					}
				}
				if wantValue {
					if gotValue {
						metrics.DHTLookups.WithLabelValues(lookupKind(wantValue), "found").Inc()
					} else {
						metrics.DHTLookups.WithLabelValues(lookupKind(wantValue), "not_found").Inc()
					}
				} else {
					metrics.DHTLookups.WithLabelValues(lookupKind(wantValue), "found").Inc()
				}

				nodes, _ := result["nodes"].([]any)
				var contacts []Contact
				for _, raw := range nodes {
					m, ok := raw.(map[string]any)
					if !ok {
						continue
					}
					wc := wireContact{
						NodeID: asString(m["node_id"]),
						Peer:   asString(m["peer"]),
						Addr:   asString(m["addr"]),
					}
					if contact, err := wc.toContact(); err == nil {
						contacts = append(contacts, contact)
					}
				}
				addCandidates(contacts)
				return nil
			})
		}
		_ = g.Wait()

		mu.Lock()
		stalled := len(all) > 0 && all[0].contact.NodeID.String() == prevClosest && newClosest == prevClosest
		mu.Unlock()
		if stalled {
			break
		}
		prevClosest = newClosest

		if wantValue {
			mu.Lock()
			v := foundValue
			mu.Unlock()
			if v != nil {
				break
			}
		}
	}

	metrics.DHTLookupHops.Observe(float64(rounds))

	mu.Lock()
	var out []Contact
	for _, e := range seen {
		out = append(out, e.contact)
	}
	mu.Unlock()
	sort.Slice(out, func(i, j int) bool {
		return xorDistance(out[i].NodeID, target).Cmp(xorDistance(out[j].NodeID, target)) < 0
	})
	if len(out) > n.k {
		out = out[:n.k]
	}
	return out, foundValue, nil
}

func lookupKind(wantValue bool) string {
	if wantValue {
		return "find_value"
	}
	return "find_node"
}

func asString(v any) string {
	s, _ := v.(string)
	return s
}
