// SPDX-License-Identifier: LGPL-3.0-or-later

package transport

import (
	"context"
	"encoding/base64"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/ember-net/ember/config"
	"github.com/ember-net/ember/internal/logger"
	"github.com/ember-net/ember/internal/metrics"
)

// OnConnectFunc is invoked once a peer's auth handshake completes.
type OnConnectFunc func(peer PeerID, addr string)

// OnDisconnectFunc is invoked when a peer connection tears down for any
// reason.
type OnDisconnectFunc func(peer PeerID)

// Sink receives every authenticated, rate-limit-passing inbound message.
type Sink func(peer PeerID, msg *Message)

// Transport implements spec.md §4.1: a framed, ordered, best-effort
// message stream between this node and its peers, with peer identity,
// backpressure, and bounded per-peer send queues.
type Transport struct {
	identity LocalIdentity

	maxPendingMessages int
	maxMessageBytes    int

	upgrader websocket.Upgrader

	mu      sync.RWMutex
	ready   map[PeerID]*conn
	pending map[*conn]struct{}

	ipLimiter  *ipConnLimiter
	msgLimiter *messageTypeLimiter

	sink         Sink
	onConnect    OnConnectFunc
	onDisconnect OnDisconnectFunc
}

// New constructs a Transport for the local identity, tuned by cfg (nil
// uses spec.md defaults).
func New(identity LocalIdentity, cfg *config.TransportConfig) *Transport {
	maxPending := 100
	maxBytes := 1 << 20
	rateLimitPerIP := 10
	if cfg != nil {
		if cfg.MaxPendingMessages > 0 {
			maxPending = cfg.MaxPendingMessages
		}
		if cfg.MaxMessageBytes > 0 {
			maxBytes = cfg.MaxMessageBytes
		}
		if cfg.RateLimitPerIP > 0 {
			rateLimitPerIP = cfg.RateLimitPerIP
		}
	}

	return &Transport{
		identity:           identity,
		maxPendingMessages: maxPending,
		maxMessageBytes:    maxBytes,
		upgrader: websocket.Upgrader{
			CheckOrigin:     func(r *http.Request) bool { return true },
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
		},
		ready:      make(map[PeerID]*conn),
		pending:    make(map[*conn]struct{}),
		ipLimiter:  newIPConnLimiter(60*time.Second, rateLimitPerIP, 5*time.Minute),
		msgLimiter: newMessageTypeLimiter(60*time.Second, 50),
	}
}

// SetSink registers the callback invoked for every inbound application
// message once a peer is authenticated.
func (t *Transport) SetSink(s Sink) { t.sink = s }

// SetOnConnect registers the post-handshake callback.
func (t *Transport) SetOnConnect(f OnConnectFunc) { t.onConnect = f }

// SetOnDisconnect registers the teardown callback.
func (t *Transport) SetOnDisconnect(f OnDisconnectFunc) { t.onDisconnect = f }

// Handler returns the HTTP handler that upgrades inbound connections and
// drives the responder side of the auth handshake.
func (t *Transport) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := clientIP(r)
		if !t.ipLimiter.Allow(ip) {
			metrics.RateLimitRejections.WithLabelValues("ip").Inc()
			http.Error(w, "rate limited", http.StatusTooManyRequests)
			return
		}

		ws, err := t.upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}

		c := newConn(t, ws, r.RemoteAddr, true)
		t.addPending(c)
		metrics.ConnectionsOpened.WithLabelValues("inbound").Inc()
		metrics.ConnectionsActive.Inc()
		metrics.HandshakesInitiated.WithLabelValues("listener").Inc()

		ch, err := newChallenge()
		if err != nil {
			c.close("error")
			return
		}
		c.mu.Lock()
		c.challenge = ch
		c.mu.Unlock()
		c.setState(stateHandshaking)

		out, err := Encode(TypeAuthChallenge, map[string]any{
			"nonce": base64.StdEncoding.EncodeToString(ch.nonce),
		})
		if err == nil {
			c.enqueue(out)
		}

		t.armHandshakeTimers(c)

		go c.writePump()
		c.readPump()
	})
}

// Dial opens an outbound connection to addr and drives the initiator side
// of the auth handshake.
func (t *Transport) Dial(ctx context.Context, addr string) error {
	ws, _, err := websocket.DefaultDialer.DialContext(ctx, addr, nil)
	if err != nil {
		return fmt.Errorf("transport: dial %s: %w", addr, err)
	}

	c := newConn(t, ws, addr, false)
	t.addPending(c)
	metrics.ConnectionsOpened.WithLabelValues("outbound").Inc()
	metrics.ConnectionsActive.Inc()
	metrics.HandshakesInitiated.WithLabelValues("dialer").Inc()
	c.setState(stateHandshaking)

	t.armHandshakeTimers(c)

	go c.writePump()
	go c.readPump()
	return nil
}

func (t *Transport) armHandshakeTimers(c *conn) {
	go func() {
		select {
		case <-time.After(handshakeAbandonTimeout):
			if !c.isReady() {
				c.close("handshake_timeout")
			}
		case <-c.done:
		}
	}()
	go func() {
		select {
		case <-time.After(pendingQueuePurgeTimeout):
			if !c.isReady() {
				c.purgeQueue()
			}
		case <-c.done:
		}
	}()
}

// Send is best-effort and non-blocking: it enqueues msg on peer's bounded
// outbound queue (dropping the oldest queued frame on overflow), or drops
// it with a warning if the framed size exceeds MaxMessageBytes. Only peers
// whose handshake has completed can be addressed: sending to any other peer,
// including one still handshaking, queues nothing and returns an
// unknown-peer error.
func (t *Transport) Send(peer PeerID, msgType string, fields map[string]any) error {
	data, err := Encode(msgType, fields)
	if err != nil {
		return err
	}
	if len(data) > t.maxMessageBytes {
		logger.Warn("dropping oversized outbound message",
			logger.String("peer", string(peer)), logger.Int("size", len(data)))
		return ErrMessageTooLarge
	}

	t.mu.RLock()
	c, ok := t.ready[peer]
	t.mu.RUnlock()
	if !ok {
		return fmt.Errorf("transport: unknown peer %s", peer)
	}
	c.enqueue(data)
	return nil
}

// Peers returns the currently authenticated peer set.
func (t *Transport) Peers() []PeerID {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]PeerID, 0, len(t.ready))
	for id := range t.ready {
		out = append(out, id)
	}
	return out
}

// Close tears down every connection.
func (t *Transport) Close() error {
	t.mu.Lock()
	conns := make([]*conn, 0, len(t.ready)+len(t.pending))
	for _, c := range t.ready {
		conns = append(conns, c)
	}
	for c := range t.pending {
		conns = append(conns, c)
	}
	t.mu.Unlock()

	for _, c := range conns {
		c.close("graceful")
	}
	return nil
}

func (t *Transport) addPending(c *conn) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.pending[c] = struct{}{}
}

func (t *Transport) registerReady(c *conn) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.pending, c)
	t.ready[c.id] = c
}

func (t *Transport) removeConn(c *conn) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.pending, c)
	if c.id != "" {
		delete(t.ready, c.id)
	}
	t.msgLimiter.Forget(c.id)
}

func clientIP(r *http.Request) string {
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}
