// SPDX-License-Identifier: LGPL-3.0-or-later

// Package node wires every Ember subsystem — transport, DHT, overlay,
// broadcast, Scribe, identity, the post engine, the ephemeral and image
// stores, the privacy mixer, and the health endpoint — into one running
// peer, the way spec.md §4 describes a node's components cooperating
// over a single wire transport.
package node

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/ember-net/ember/broadcast"
	"github.com/ember-net/ember/config"
	"github.com/ember-net/ember/crypto/vdf"
	"github.com/ember-net/ember/dht"
	"github.com/ember-net/ember/ephemeral"
	"github.com/ember-net/ember/health"
	"github.com/ember-net/ember/identity"
	"github.com/ember-net/ember/image"
	"github.com/ember-net/ember/internal/logger"
	"github.com/ember-net/ember/mixer"
	"github.com/ember-net/ember/overlay"
	"github.com/ember-net/ember/post"
	"github.com/ember-net/ember/scribe"
	"github.com/ember-net/ember/storage"
	"github.com/ember-net/ember/transport"
)

// bootstrapTimeout bounds how long a single bootstrap peer's PING+
// self-lookup sequence is allowed to take before this node gives up on it
// and moves on (spec.md §5's 5s DHT RPC budget, doubled for the
// surrounding self-lookup).
const bootstrapTimeout = 10 * time.Second

// Node is one running Ember peer: every subsystem of spec.md §4 wired
// against a shared transport, identity, and persistence backend.
type Node struct {
	cfg   *config.Config
	store storage.Store
	local *identity.LocalIdentity
	vdf   *vdf.ProverVerifier

	Transport *transport.Transport
	DHT       *dht.Node
	Overlay   *overlay.Overlay
	Scribe    *scribe.Scribe
	Tree      *broadcast.Tree
	Flood     *broadcast.Flood
	Registry  *identity.Registry
	Ephemeral *ephemeral.Store
	Image     *image.Store
	Mixer     *mixer.Mixer
	Post      *post.Engine
	Health    *health.Server

	httpSrv *http.Server
}

// New constructs a Node from cfg: it loads or mints the local identity,
// opens the configured persistence backend, and wires every subsystem
// together. It does not yet listen, dial, or start any background loop —
// call Start for that.
func New(ctx context.Context, cfg *config.Config) (*Node, error) {
	store, err := OpenStorage(ctx, cfg.Storage)
	if err != nil {
		return nil, fmt.Errorf("node: open storage: %w", err)
	}

	proverVerifier := vdf.New()

	local, err := LoadOrCreateIdentity(ctx, cfg.Identity, store, proverVerifier)
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("node: load identity: %w", err)
	}

	tr := transport.New(transportIdentity{li: local}, cfg.Transport)
	self := transport.PeerID(local.Handle)
	selfNodeID := local.NodeID

	dhtNode := dht.New(selfNodeID, tr, store, cfg.DHT)
	ov := overlay.New(self, tr, cfg.Overlay)

	// scribe's Deliver callback and the mixer are mutually referential
	// (the mixer is scribe's only subscriber; HandleRelayDeliver is its
	// Deliver callback), so mx is forward-declared and assigned after
	// construction — the closure below only runs once both are wired and
	// Start has subscribed the relay topic.
	var mx *mixer.Mixer
	scr := scribe.New(self, tr, dhtNode, cfg.Scribe, func(topic string, payload []byte) {
		mx.HandleRelayDeliver(topic, payload)
	})

	var postEngine *post.Engine
	tree := broadcast.New(self, tr, func(msgID string, payload []byte) {
		postEngine.OnTreeDeliver(msgID, payload)
	})
	flood := broadcast.NewFlood(self, tr, 0, 0, ov.ActivePeers)

	registry := identity.New(dhtNode, tr, proverVerifier, ov.ActivePeers)

	ephemeralStore := ephemeral.New(self, tr, local.Handle, cfg.Ephemeral, store)
	ephemeralStore.SetPeerSource(ov.ActivePeers)

	imageStore := image.New(self, tr, cfg.Image, store)
	imageStore.SetPeerSource(ov.ActivePeers)
	ephemeralStore.SetImageHook(func(imageHash string) {
		imageStore.Ensure(context.Background(), imageHash, func(data []byte, err error) {
			if err != nil {
				logger.Warn("node: image fetch failed", logger.String("hash", imageHash), logger.Error(err))
			}
		})
	})

	postEngine = post.New(self, tr, tree, flood, registry, proverVerifier, ephemeralStore, ephemeralStore, ov.ActivePeers, nil)
	postEngine.SetLocalIdentity(local)

	mx = mixer.New(self, tr, scr, cfg.Mixer, func(payload []byte) {
		postEngine.OnTreeDeliver("", payload)
	})
	mx.SetPeerSource(ov.ActivePeers)
	if cfg.Mixer != nil && cfg.Mixer.Enabled {
		postEngine.SetRelay(mx)
	}

	checker := health.NewHealthChecker(5 * time.Second)
	checker.RegisterCheck("transport", health.TransportHealthCheck(func() int { return len(tr.Peers()) }))
	checker.RegisterCheck("dht", health.DHTHealthCheck(dhtNode.Count))
	checker.RegisterCheck("identity", health.IdentityHealthCheck(func() bool { return local != nil }))
	checker.RegisterCheck("storage", health.StorageHealthCheck(store.Ping))
	healthSrv := health.NewServer(checker, cfg.Health)

	n := &Node{
		cfg:       cfg,
		store:     store,
		local:     local,
		vdf:       proverVerifier,
		Transport: tr,
		DHT:       dhtNode,
		Overlay:   ov,
		Scribe:    scr,
		Tree:      tree,
		Flood:     flood,
		Registry:  registry,
		Ephemeral: ephemeralStore,
		Image:     imageStore,
		Mixer:     mx,
		Post:      postEngine,
		Health:    healthSrv,
	}

	tr.SetSink(n.dispatch)
	tr.SetOnConnect(n.handleConnect)

	return n, nil
}

// CreatePost authors and disseminates a post under the node's own
// identity (spec.md §4.7); see post.Engine.CreatePost for the full
// contract.
func (n *Node) CreatePost(ctx context.Context, content, parentID, imageHash string) (*post.Post, error) {
	return n.Post.CreatePost(ctx, content, parentID, imageHash, nil, nil)
}

// Handle returns the node's own claimed handle.
func (n *Node) Handle() string { return n.local.Handle }
