package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"combolock/internal/lock"
)

// ============================================================================
// State WebSocket: hub + per-client pumps + broadcaster
// ============================================================================
//
// This file implements:
//   - A Hub that tracks connected WebSocket clients
//   - Per-client write pumps so one slow client doesn't block others
//   - Per-client read pumps that accept input envelopes (dial UIs)
//   - A broadcaster loop that turns lock signals into WS messages
//
// Constraints:
//   - lock.State stays daemon-owned; the initial snapshot goes through the
//     event loop.
//   - Slow clients are disconnected when their send buffer fills.
//   - Messages are JSON text frames with an envelope: {type, ts, data}.
//   - The first message on connect is "state_init" with a lock.StateSnapshot.
//
// ============================================================================

type wsRotationData struct {
	Degrees float64 `json:"degrees"`
}

type wsNumberData struct {
	Number int `json:"number"`
}

type wsDirectionData struct {
	Direction string `json:"direction"`
}

type wsUnlockedData struct {
	Unlocked bool `json:"unlocked"`
}

type wsCombinationData struct {
	LockID      string           `json:"lock_id"`
	Combination lock.Combination `json:"combination"`
}

type wsErrorData struct {
	Error string `json:"error"`
}

// wsOutboundEvent is a pre-typed, externally-consumable state event.
type wsOutboundEvent struct {
	Type string
	Data any
	At   time.Time // zero means now
}

// envelope is the wire format envelope for WS messages.
type envelope struct {
	Type string     `json:"type"`
	Ts   *time.Time `json:"ts,omitempty"`
	Data any        `json:"data,omitempty"`
}

func marshalOutbound(ev wsOutboundEvent) ([]byte, error) {
	ts := ev.At
	if ts.IsZero() {
		ts = time.Now()
	}
	ts = ts.UTC()
	return json.Marshal(envelope{Type: ev.Type, Ts: &ts, Data: ev.Data})
}

// ============================================================================
// Hub
// ============================================================================

type Hub struct {
	logger *slog.Logger

	// Buffered broadcast channel for already-serialized JSON frames.
	broadcast  chan []byte
	register   chan *Client
	unregister chan *Client

	mu      sync.Mutex
	clients map[*Client]struct{}

	sendBuf int
}

type HubConfig struct {
	// SendBuf is the per-client outbound queue size (default 32).
	SendBuf int

	// BroadcastBuf is the hub inbound broadcast queue size (default 128).
	BroadcastBuf int
}

// NewHub constructs a hub. Call Run(ctx) to start it.
func NewHub(logger *slog.Logger, cfg HubConfig) *Hub {
	sendBuf := cfg.SendBuf
	if sendBuf <= 0 {
		sendBuf = 32
	}
	bcastBuf := cfg.BroadcastBuf
	if bcastBuf <= 0 {
		bcastBuf = 128
	}

	return &Hub{
		logger:     logger,
		broadcast:  make(chan []byte, bcastBuf),
		register:   make(chan *Client, 64),
		unregister: make(chan *Client, 64),
		clients:    make(map[*Client]struct{}),
		sendBuf:    sendBuf,
	}
}

// Run processes hub events until ctx is canceled.
// It disconnects all clients on shutdown.
func (h *Hub) Run(ctx context.Context) {
	h.logger.Info("ws hub starting")

	for {
		select {
		case <-ctx.Done():
			h.logger.Info("ws hub stopping (context canceled)")
			h.closeAllClients()
			return

		case c := <-h.register:
			h.mu.Lock()
			h.clients[c] = struct{}{}
			n := len(h.clients)
			h.mu.Unlock()
			h.logger.Info("ws client registered", "remote_addr", c.remoteAddr, "clients", n)

		case c := <-h.unregister:
			h.removeClient(c, "unregister")

		case msg := <-h.broadcast:
			// Collect slow clients first, remove them after unlocking.
			var slow []*Client

			h.mu.Lock()
			for c := range h.clients {
				select {
				case c.send <- msg:
				default:
					slow = append(slow, c)
				}
			}
			h.mu.Unlock()

			for _, c := range slow {
				h.removeClient(c, "slow_client")
			}
		}
	}
}

// Len returns the number of registered clients.
func (h *Hub) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

func (h *Hub) closeAllClients() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		if c.conn != nil {
			_ = c.conn.Close()
		}
		c.closeSend()
		delete(h.clients, c)
	}
}

func (h *Hub) removeClient(c *Client, reason string) {
	h.mu.Lock()
	_, ok := h.clients[c]
	if ok {
		delete(h.clients, c)
	}
	n := len(h.clients)
	h.mu.Unlock()

	if ok {
		if c.conn != nil {
			_ = c.conn.Close()
		}
		// Closing send signals writePump to exit.
		c.closeSend()

		h.logger.Info("ws client disconnected", "remote_addr", c.remoteAddr, "reason", reason, "clients", n)
	}
}

// BroadcastBytes enqueues a pre-serialized JSON WS frame for broadcast.
// It never blocks; if the hub queue is full it drops the message.
func (h *Hub) BroadcastBytes(msg []byte) {
	select {
	case h.broadcast <- msg:
	default:
		h.logger.Warn("ws hub broadcast queue full, dropping message", "bytes", len(msg))
	}
}

// ============================================================================
// Client
// ============================================================================

type Client struct {
	hub *Hub

	conn *websocket.Conn
	send chan []byte

	closeOnce sync.Once

	// events receives input envelopes sent by the client; nil makes the
	// connection listen-only.
	events chan<- lock.Event

	remoteAddr string
	logger     *slog.Logger
}

// NewClient creates a client with a buffered send channel.
func NewClient(hub *Hub, conn *websocket.Conn, events chan<- lock.Event, remoteAddr string, logger *slog.Logger) *Client {
	sendBuf := 32
	if hub != nil && hub.sendBuf > 0 {
		sendBuf = hub.sendBuf
	}
	return &Client{
		hub:        hub,
		conn:       conn,
		send:       make(chan []byte, sendBuf),
		events:     events,
		remoteAddr: remoteAddr,
		logger:     logger,
	}
}

func (c *Client) closeSend() {
	c.closeOnce.Do(func() { close(c.send) })
}

const (
	writeWait = 5 * time.Second

	pongWait   = 30 * time.Second
	pingPeriod = 20 * time.Second

	maxInboundMessage = 4096
)

// wsRotationCoalesceWindow is the maximum time window during which bursty
// rotation updates are coalesced (latest-wins) before broadcasting.
const wsRotationCoalesceWindow = 50 * time.Millisecond

// closeStatus extracts a websocket close code / text when possible.
func closeStatus(err error) (code int, text string, ok bool) {
	var ce *websocket.CloseError
	if errors.As(err, &ce) {
		return ce.Code, ce.Text, true
	}
	return 0, "", false
}

func (c *Client) logExit(pump string, err error) {
	if errors.Is(err, websocket.ErrCloseSent) {
		return
	}
	if code, text, ok := closeStatus(err); ok {
		c.logger.Info("ws "+pump+" exiting (close)", "remote_addr", c.remoteAddr, "code", code, "reason", text)
		return
	}
	c.logger.Info("ws "+pump+" exiting", "remote_addr", c.remoteAddr, "error", err)
}

// writePump writes messages from the send queue to the websocket.
// It exits on write error or when send is closed.
func (c *Client) writePump(ctx context.Context) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case msg, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// Channel closed: hub is disconnecting us.
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				c.logExit("writePump", err)
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.logExit("writePump", err)
				return
			}
		}
	}
}

// readPump reads input envelopes from the client until the connection
// fails, then unregisters the client.
func (c *Client) readPump(ctx context.Context) {
	c.conn.SetReadLimit(maxInboundMessage)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		if ctx.Err() != nil {
			return
		}

		_, msg, err := c.conn.ReadMessage()
		if err != nil {
			c.logExit("readPump", err)
			if c.hub != nil {
				c.hub.unregister <- c
			}
			return
		}
		// Any traffic proves the peer is alive.
		_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))

		c.handleInbound(msg)
	}
}

// handleInbound queues an input envelope; failures are reported back to
// this client only.
func (c *Client) handleInbound(msg []byte) {
	if c.events == nil {
		return
	}
	resp := enqueueEnvelope(msg, c.events)
	if resp.Status == "ok" {
		return
	}

	c.logger.Debug("ws inbound rejected", "remote_addr", c.remoteAddr, "error", resp.Error)
	out, err := marshalOutbound(wsOutboundEvent{Type: "error", Data: wsErrorData{Error: resp.Error}})
	if err != nil {
		return
	}
	select {
	case c.send <- out:
	default:
	}
}

// ============================================================================
// HTTP Handler
// ============================================================================

type Server struct {
	logger *slog.Logger

	hub *Hub

	// Input events and snapshot requests go through the daemon loop.
	events chan<- lock.Event
}

type ServerConfig struct {
	Hub HubConfig
}

// NewServer constructs the WS state server components. Mount HandleStateWS,
// then start hub.Run(ctx) and RunBroadcaster.
func NewServer(logger *slog.Logger, events chan<- lock.Event, cfg ServerConfig) *Server {
	return &Server{
		logger: logger,
		hub:    NewHub(logger, cfg.Hub),
		events: events,
	}
}

func (s *Server) Hub() *Hub { return s.hub }

var upgrader = websocket.Upgrader{
	// Origins are checked by the CORS layer configuration.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// requestSnapshot asks the daemon loop for a snapshot.
func requestSnapshot(ctx context.Context, events chan<- lock.Event) (lock.StateSnapshot, error) {
	reply := make(chan lock.StateSnapshot, 1)

	waitCtx, cancel := context.WithTimeout(ctx, snapshotTimeout)
	defer cancel()

	select {
	case <-waitCtx.Done():
		return lock.StateSnapshot{}, waitCtx.Err()
	case events <- lock.RequestStateSnapshot{Reply: reply}:
	}

	select {
	case <-waitCtx.Done():
		return lock.StateSnapshot{}, waitCtx.Err()
	case snap := <-reply:
		return snap, nil
	}
}

// HandleStateWS upgrades and registers a client, then sends state_init.
func (s *Server) HandleStateWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("ws upgrade failed", "error", err)
		return
	}

	client := NewClient(s.hub, conn, s.events, r.RemoteAddr, s.logger)

	// Register first so broadcasts can reach it.
	s.hub.register <- client

	// The pumps outlive the request; net/http cancels r.Context() when the
	// handler returns. The hub and socket errors end them instead.
	go client.writePump(context.Background())
	go client.readPump(context.Background())

	snap, err := requestSnapshot(r.Context(), s.events)
	if err != nil {
		if !errors.Is(err, context.Canceled) {
			s.logger.Warn("ws snapshot request failed", "error", err)
		}
		return
	}

	initMsg, err := marshalOutbound(wsOutboundEvent{Type: "state_init", Data: snap})
	if err != nil {
		s.logger.Warn("ws state_init marshal failed", "error", err)
		return
	}
	select {
	case client.send <- initMsg:
	default:
		s.hub.unregister <- client
	}
}

// ============================================================================
// Broadcaster
// ============================================================================

// broadcastSubscriber returns a signal subscriber that feeds the broadcaster
// queue. Rotation, Number and direction signals are dropped when the queue is
// full since the next one supersedes them. Reset, unlock and combination
// signals cannot be rebuilt from later messages, so they wait up to
// `wait` for room.
func broadcastSubscriber(ctx context.Context, dst chan<- lock.Signal, wait time.Duration, logger *slog.Logger) func(lock.Signal) {
	return func(s lock.Signal) {
		select {
		case dst <- s:
			return
		default:
		}

		switch s.(type) {
		case lock.ResetPulsed, lock.UnlockedChanged, lock.CombinationChanged:
		default:
			logger.Warn("ws broadcast queue full, dropping signal", "signal", fmt.Sprintf("%T", s))
			return
		}

		timer := time.NewTimer(wait)
		defer timer.Stop()
		select {
		case dst <- s:
		case <-ctx.Done():
		case <-timer.C:
			logger.Error("ws broadcast queue stalled, dropping signal", "signal", fmt.Sprintf("%T", s))
		}
	}
}

// RunBroadcaster reads lock signals, marshals them, and broadcasts them to
// all hub clients. Intended to run as a single goroutine.
//
// rotation_changed is rate-limited: the latest pending rotation is flushed at
// most once per wsRotationCoalesceWindow, and always before any other
// message so clients never see a Number ahead of its rotation.
func RunBroadcaster(ctx context.Context, hub *Hub, src <-chan lock.Signal, logger *slog.Logger) {
	if hub == nil || src == nil {
		return
	}

	var pending *wsOutboundEvent
	var timer *time.Timer
	var timerCh <-chan time.Time

	emit := func(ev wsOutboundEvent) {
		msg, err := marshalOutbound(ev)
		if err != nil {
			logger.Warn("ws broadcaster marshal failed", "error", err, "type", ev.Type)
			return
		}
		hub.BroadcastBytes(msg)
	}

	flushPending := func() {
		if pending == nil {
			return
		}
		emit(*pending)
		pending = nil
	}

	stopTimer := func() {
		if timer != nil {
			timer.Stop()
		}
		timer = nil
		timerCh = nil
	}

	for {
		select {
		case <-ctx.Done():
			flushPending()
			stopTimer()
			return

		case <-timerCh:
			flushPending()
			stopTimer()

		case s, ok := <-src:
			if !ok {
				flushPending()
				stopTimer()
				logger.Info("ws broadcaster stopping (source ended)")
				return
			}

			ev, ok := convertSignal(s)
			if !ok {
				continue
			}

			if ev.Type == "rotation_changed" {
				pending = &ev
				if timer == nil {
					timer = time.NewTimer(wsRotationCoalesceWindow)
					timerCh = timer.C
				}
				continue
			}

			flushPending()
			stopTimer()
			emit(ev)
		}
	}
}

func convertSignal(s lock.Signal) (wsOutboundEvent, bool) {
	switch sig := s.(type) {
	case lock.RotationChanged:
		return wsOutboundEvent{Type: "rotation_changed", Data: wsRotationData{Degrees: sig.Degrees}, At: sig.At}, true
	case lock.NumberChanged:
		return wsOutboundEvent{Type: "number_changed", Data: wsNumberData{Number: sig.Number}, At: sig.At}, true
	case lock.DirectionChanged:
		return wsOutboundEvent{Type: "direction_changed", Data: wsDirectionData{Direction: sig.Direction.String()}, At: sig.At}, true
	case lock.ResetPulsed:
		return wsOutboundEvent{Type: "reset", At: sig.At}, true
	case lock.UnlockedChanged:
		return wsOutboundEvent{Type: "unlocked_changed", Data: wsUnlockedData{Unlocked: sig.Unlocked}, At: sig.At}, true
	case lock.CombinationChanged:
		return wsOutboundEvent{
			Type: "combination_changed",
			Data: wsCombinationData{LockID: sig.LockID, Combination: sig.Combination},
			At:   sig.At,
		}, true
	default:
		return wsOutboundEvent{}, false
	}
}
