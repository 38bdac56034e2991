// SPDX-License-Identifier: LGPL-3.0-or-later

package transport

import (
	"encoding/base64"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/ember-net/ember/internal/logger"
	"github.com/ember-net/ember/internal/metrics"
)

// connState is the per-peer connection state machine spec.md's transport
// section implies: {connecting, handshaking, ready, closing}.
type connState int32

const (
	stateConnecting connState = iota
	stateHandshaking
	stateReady
	stateClosing
)

// conn wraps one peer's websocket stream: framing, the bounded outbound
// queue (MAX_PENDING_MESSAGES, oldest discarded on overflow), and the
// handshake state that gates whether the peer is authenticated.
type conn struct {
	id      PeerID
	addr    string
	inbound bool // true if the remote side dialed us
	ws      *websocket.Conn

	state atomic.Int32

	outbound chan []byte

	mu            sync.Mutex
	authenticated bool
	handle        string
	challenge     *challenge

	closeOnce sync.Once
	done      chan struct{}

	t *Transport
}

func newConn(t *Transport, ws *websocket.Conn, addr string, inbound bool) *conn {
	c := &conn{
		addr:     addr,
		inbound:  inbound,
		ws:       ws,
		outbound: make(chan []byte, t.maxPendingMessages),
		done:     make(chan struct{}),
		t:        t,
	}
	c.state.Store(int32(stateConnecting))
	ws.SetReadLimit(int64(t.maxMessageBytes))
	return c
}

func (c *conn) getState() connState  { return connState(c.state.Load()) }
func (c *conn) setState(s connState) { c.state.Store(int32(s)) }

func (c *conn) isReady() bool { return c.getState() == stateReady }

// enqueue appends data to the bounded outbound queue, dropping the oldest
// queued frame first if the queue is full (spec.md §4.1).
func (c *conn) enqueue(data []byte) {
	select {
	case c.outbound <- data:
	default:
		select {
		case <-c.outbound:
		default:
		}
		select {
		case c.outbound <- data:
		default:
		}
	}
	metrics.OutboundQueueDepth.Observe(float64(len(c.outbound)))
}

// purgeQueue discards every queued outbound frame, used when a handshake
// has been unresolved for pendingQueuePurgeTimeout.
func (c *conn) purgeQueue() {
	for {
		select {
		case <-c.outbound:
		default:
			return
		}
	}
}

func (c *conn) close(reason string) {
	c.closeOnce.Do(func() {
		c.setState(stateClosing)
		close(c.done)
		_ = c.ws.Close()
		metrics.ConnectionsActive.Dec()
		metrics.ConnectionsClosed.WithLabelValues(reason).Inc()
		if c.t.onDisconnect != nil && c.id != "" {
			c.t.onDisconnect(c.id)
		}
		c.t.removeConn(c)
	})
}

// writePump drains the outbound queue to the websocket until the
// connection closes.
func (c *conn) writePump() {
	for {
		select {
		case data, ok := <-c.outbound:
			if !ok {
				return
			}
			if err := c.ws.SetWriteDeadline(time.Now().Add(writeTimeout)); err != nil {
				c.close("error")
				return
			}
			start := time.Now()
			if err := c.ws.WriteMessage(websocket.TextMessage, data); err != nil {
				c.close("error")
				return
			}
			metrics.ConnectionOpDuration.WithLabelValues("send").Observe(time.Since(start).Seconds())
			metrics.MessageSize.WithLabelValues("outbound").Observe(float64(len(data)))
		case <-c.done:
			return
		}
	}
}

// readPump reads frames off the websocket, handles the handshake
// sub-protocol inline, and otherwise decodes and forwards messages to the
// transport's sink, subject to rate limiting.
func (c *conn) readPump() {
	defer c.close("graceful")

	for {
		if err := c.ws.SetReadDeadline(time.Now().Add(readTimeout)); err != nil {
			return
		}
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			return
		}
		start := time.Now()
		metrics.MessageSize.WithLabelValues("inbound").Observe(float64(len(data)))

		msg, err := Decode(data)
		if err != nil {
			logger.Warn("dropping malformed frame", logger.String("peer_addr", c.addr), logger.Error(err))
			continue
		}
		metrics.ConnectionOpDuration.WithLabelValues("receive").Observe(time.Since(start).Seconds())

		if c.handleHandshakeMessage(msg) {
			continue
		}

		if !c.isReady() {
			// Non-handshake traffic before authentication is dropped.
			continue
		}

		if !c.t.msgLimiter.Allow(c.id, msg.Type) {
			metrics.RateLimitRejections.WithLabelValues("message_type").Inc()
			continue
		}

		if c.t.sink != nil {
			c.t.sink(c.id, msg)
		}
	}
}

// handleHandshakeMessage processes auth_challenge/auth_response frames
// and reports whether msg was a handshake message (and therefore already
// handled, whether or not it succeeded).
func (c *conn) handleHandshakeMessage(msg *Message) bool {
	switch msg.Type {
	case TypeAuthChallenge:
		if c.inbound {
			return true // only dialers answer challenges
		}
		var fields struct {
			Nonce string `json:"nonce"`
		}
		if err := msg.DecodeFields(&fields); err != nil {
			return true
		}
		nonce, err := base64.StdEncoding.DecodeString(fields.Nonce)
		if err != nil {
			return true
		}
		respFields, err := buildAuthResponse(c.t.identity, nonce)
		if err != nil {
			logger.Warn("failed to build auth response", logger.Error(err))
			c.close("error")
			return true
		}
		out, err := Encode(TypeAuthResponse, respFields)
		if err == nil {
			c.enqueue(out)
		}
		return true

	case TypeAuthResponse:
		if !c.inbound {
			return true // only responders verify responses
		}
		c.mu.Lock()
		ch := c.challenge
		c.mu.Unlock()
		if ch == nil {
			return true
		}
		var fields authResponseFields
		if err := msg.DecodeFields(&fields); err != nil {
			return true
		}
		handle, signPub, err := verifyAuthResponse(ch, &fields)
		if err != nil {
			metrics.HandshakesFailed.WithLabelValues(handshakeFailureReason(err)).Inc()
			logger.Warn("handshake failed", logger.String("peer_addr", c.addr), logger.Error(err))
			c.close("error")
			return true
		}
		c.markAuthenticated(handle, signPub)
		return true
	}
	return false
}

func handshakeFailureReason(err error) string {
	switch err {
	case ErrChallengeExpired:
		return "timeout"
	case ErrHandshakeSignatureInvalid:
		return "invalid_signature"
	default:
		return "error"
	}
}

func (c *conn) markAuthenticated(handle string, signPub []byte) {
	c.mu.Lock()
	c.authenticated = true
	c.handle = handle
	c.mu.Unlock()

	c.id = PeerID(base64.StdEncoding.EncodeToString(signPub))
	c.setState(stateReady)
	metrics.HandshakesCompleted.WithLabelValues("success").Inc()
	metrics.PeersConnected.Inc()

	c.t.registerReady(c)

	if c.t.onConnect != nil {
		c.t.onConnect(c.id, c.addr)
	}
}

const (
	readTimeout  = 60 * time.Second
	writeTimeout = 10 * time.Second
)
