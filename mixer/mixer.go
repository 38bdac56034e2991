// SPDX-License-Identifier: LGPL-3.0-or-later

// Package mixer implements the Privacy Mixer of spec.md §4.10: instead of
// broadcasting a new post directly from its origin, the post engine may
// hand it to a Mixer, which encrypts it and publishes it to the relay
// topic (the single Scribe topic reserved for mixer traffic). Mixing nodes
// subscribed to that topic buffer the message, wait a random delay, and
// then re-broadcast the origin-obscured inner post as an ordinary fluff
// broadcast. Idle nodes emit periodic cover traffic — spec.md §6's
// `noise` wire message, sent directly to a random peer and dropped
// without processing by its recipient — so presence on the mixer
// doesn't by itself signal posting activity.
package mixer

import (
	"context"
	"crypto/rand"
	"math/big"
	mathrand "math/rand"
	"time"

	"github.com/google/uuid"

	"github.com/ember-net/ember/config"
	"github.com/ember-net/ember/internal/logger"
	"github.com/ember-net/ember/internal/metrics"
	"github.com/ember-net/ember/scribe"
	"github.com/ember-net/ember/transport"
)

// maxCoverTrafficBytes bounds the size of a synthetic noise payload;
// real relayed posts are rarely larger than this, so a uniform
// [1, maxCoverTrafficBytes] size keeps a passive observer of message
// sizes from distinguishing traffic classes at a glance.
const maxCoverTrafficBytes = 2048

// Deliver is invoked once a relayed message finishes its stem delay and
// is ready to enter normal dissemination (spec.md §4.10's fluff phase).
// The caller (the node aggregate) is responsible for feeding payload back
// into the post engine's receipt pipeline, exactly as if it had arrived
// via Plumtree or flood.
type Deliver func(payload []byte)

// Mixer relays messages through a single Scribe topic reserved for mixer
// traffic, obscuring which subscriber originated a given post, and emits
// direct peer-to-peer `noise` cover traffic while idle.
type Mixer struct {
	self       transport.PeerID
	tr         *transport.Transport
	scr        *scribe.Scribe
	topic      string
	peerSource func() []transport.PeerID

	minDelay time.Duration
	maxDelay time.Duration
	rate     float64
	interval time.Duration

	key [32]byte

	deliver Deliver

	stop chan struct{}
}

// New constructs a Mixer bound to scr, which must already be able to
// Subscribe/Multicast on cfg's RelayTopic (the caller owns the Scribe
// instance's lifecycle), and to tr for sending direct noise cover
// traffic. deliver receives the decrypted payload of every message this
// node fluffs.
func New(self transport.PeerID, tr *transport.Transport, scr *scribe.Scribe, cfg *config.MixerConfig, deliver Deliver) *Mixer {
	topic := "__ember_mixer__"
	minDelay, maxDelay := 200*time.Millisecond, 2*time.Second
	rate := 0.0
	interval := 30 * time.Second
	if cfg != nil {
		if cfg.RelayTopic != "" {
			topic = cfg.RelayTopic
		}
		if cfg.RelayDelayMin > 0 {
			minDelay = cfg.RelayDelayMin
		}
		if cfg.RelayDelayMax > 0 {
			maxDelay = cfg.RelayDelayMax
		}
		if maxDelay < minDelay {
			maxDelay = minDelay
		}
		rate = cfg.CoverTrafficRate
		if cfg.CoverTrafficInterval > 0 {
			interval = cfg.CoverTrafficInterval
		}
	}
	return &Mixer{
		self:     self,
		tr:       tr,
		scr:      scr,
		topic:    topic,
		minDelay: minDelay,
		maxDelay: maxDelay,
		rate:     rate,
		interval: interval,
		key:      relayKey(topic),
		deliver:  deliver,
		stop:     make(chan struct{}),
	}
}

// Topic reports the Scribe topic this Mixer relays on.
func (m *Mixer) Topic() string { return m.topic }

// SetPeerSource attaches the candidate peer set noise cover traffic is
// sent to (mirrors image.Store.SetPeerSource / broadcast.Flood's
// peerSource — the overlay's active view is the natural choice).
func (m *Mixer) SetPeerSource(peerSource func() []transport.PeerID) {
	m.peerSource = peerSource
}

// Start subscribes to the relay topic and begins the cover-traffic loop.
// ctx governs only the cover-traffic loop; Stop must still be called to
// unsubscribe and end it deterministically.
func (m *Mixer) Start(ctx context.Context) {
	m.scr.Subscribe(m.topic)
	go m.coverTrafficLoop(ctx)
}

// Stop unsubscribes from the relay topic and ends the cover-traffic loop.
func (m *Mixer) Stop() {
	close(m.stop)
	m.scr.Unsubscribe(m.topic)
}

// Relay encrypts payload and publishes it to the relay topic instead of
// disseminating it directly (spec.md §4.10). Every subscriber, including
// this node, will independently delay and then fluff it.
func (m *Mixer) Relay(payload []byte) error {
	sealed, err := seal(m.key, payload)
	if err != nil {
		return err
	}
	m.scr.Multicast(m.topic, uuid.NewString(), sealed)
	return nil
}

// HandleRelayDeliver is the Scribe Deliver callback for m.Topic(): it
// decrypts the envelope and stems the post through a random delay before
// fluffing it.
func (m *Mixer) HandleRelayDeliver(topic string, payload []byte) {
	if topic != m.topic {
		return
	}
	inner, err := open(m.key, payload)
	if err != nil {
		logger.Warn("mixer: discarding undecryptable relay payload", logger.Error(err))
		return
	}
	metrics.MixerRelays.Inc()
	delay := m.randomDelay()
	metrics.MixerRelayDelay.Observe(delay.Seconds())
	time.AfterFunc(delay, func() { m.fluff(inner) })
}

// HandleNoise processes an inbound spec.md §6 `noise` message: dropped
// without processing, per the wire message list. The handler exists
// only so the node aggregate has something to register for the type;
// it deliberately does nothing with sender or msg.
func (m *Mixer) HandleNoise(sender transport.PeerID, msg *transport.Message) {}

func (m *Mixer) fluff(payload []byte) {
	metrics.MixerFluffTransitions.Inc()
	if m.deliver != nil {
		m.deliver(payload)
	}
}

func (m *Mixer) randomDelay() time.Duration {
	span := m.maxDelay - m.minDelay
	if span <= 0 {
		return m.minDelay
	}
	return m.minDelay + time.Duration(mathrand.Int63n(int64(span)))
}

// coverTrafficLoop sends a random-sized noise message directly to a
// random peer roughly every interval, at probability rate, so an
// observer watching this node's outbound traffic can't tell idling from
// relaying a real post through the mixer.
func (m *Mixer) coverTrafficLoop(ctx context.Context) {
	if m.rate <= 0 {
		return
	}
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-m.stop:
			return
		case <-ticker.C:
			if mathrand.Float64() > m.rate {
				continue
			}
			m.sendCoverTraffic()
		}
	}
}

func (m *Mixer) sendCoverTraffic() {
	if m.tr == nil || m.peerSource == nil {
		return
	}
	peer := m.pickPeer()
	if peer == "" {
		return
	}
	n, err := rand.Int(rand.Reader, big.NewInt(maxCoverTrafficBytes))
	if err != nil {
		return
	}
	noise := make([]byte, n.Int64()+1)
	if _, err := rand.Read(noise); err != nil {
		return
	}
	if err := m.tr.Send(peer, transport.TypeNoise, map[string]any{"padding": noise}); err != nil {
		return
	}
	metrics.MixerCoverTrafficSent.Inc()
}

// pickPeer chooses one candidate at random, excluding self. Grounded on
// broadcast/flood.go's pickRandom, narrowed to a single pick since cover
// traffic only needs one plausible-looking recipient per tick.
func (m *Mixer) pickPeer() transport.PeerID {
	candidates := m.peerSource()
	pool := make([]transport.PeerID, 0, len(candidates))
	for _, c := range candidates {
		if c != m.self {
			pool = append(pool, c)
		}
	}
	if len(pool) == 0 {
		return ""
	}
	return pool[mathrand.Intn(len(pool))]
}
