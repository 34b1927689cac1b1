// Package websocket serves viewers over WebSocket. Each session is a room;
// the hub fans simulation updates out to the room and turns inbound frames
// into dispatcher events.
package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/tacmap/tacsim/internal/dispatcher"
	"github.com/tacmap/tacsim/internal/worker"
	"github.com/tacmap/tacsim/pkg/streaming"
)

const instrumentationName = "github.com/tacmap/tacsim/internal/transport/websocket"

// DefaultClientBuffer is the per-client outbound queue size.
const DefaultClientBuffer = 256

var (
	errMissingSession = errors.New("sessionId is required")
	errNotJoined      = errors.New("join the session first")
	errUnknownType    = errors.New("unknown message type")
)

// Dispatcher routes an inbound command.
type Dispatcher interface {
	Dispatch(e dispatcher.Event) (any, error)
}

// Config holds hub settings.
type Config struct {
	AllowedOrigin string
	ClientBuffer  int
}

// Hub tracks connected viewers and their session rooms.
type Hub struct {
	cfg        Config
	dispatcher Dispatcher
	logger     *slog.Logger

	mu      sync.RWMutex
	clients map[*client]struct{}
	rooms   map[string]map[*client]struct{}
	closed  bool
	active  atomic.Int64 // len(rooms), readable without the lock

	// serializes join and leave dispatches; never held by Publish
	lifecycle sync.Mutex

	published metric.Int64Counter
	dropped   metric.Int64Counter
}

// NewHub creates a hub that dispatches inbound frames through d.
func NewHub(cfg Config, d Dispatcher, logger *slog.Logger) *Hub {
	if cfg.ClientBuffer <= 0 {
		cfg.ClientBuffer = DefaultClientBuffer
	}
	if logger == nil {
		logger = slog.Default()
	}
	h := &Hub{
		cfg:        cfg,
		dispatcher: d,
		logger:     logger,
		clients:    make(map[*client]struct{}),
		rooms:      make(map[string]map[*client]struct{}),
	}
	h.initMetrics()
	return h
}

func (h *Hub) initMetrics() {
	meter := otel.Meter(instrumentationName)

	var err error
	h.published, err = meter.Int64Counter("transport.messages.published",
		metric.WithDescription("Messages enqueued to viewers"))
	if err != nil {
		h.logger.Warn("failed to create published counter", "error", err)
	}
	h.dropped, err = meter.Int64Counter("transport.messages.dropped",
		metric.WithDescription("Messages dropped on full client queues"))
	if err != nil {
		h.logger.Warn("failed to create dropped counter", "error", err)
	}
	_, err = meter.Int64ObservableGauge("transport.clients",
		metric.WithDescription("Connected viewers"),
		metric.WithInt64Callback(func(_ context.Context, o metric.Int64Observer) error {
			o.Observe(int64(h.ClientCount()))
			return nil
		}))
	if err != nil {
		h.logger.Warn("failed to create clients gauge", "error", err)
	}
}

// Publish sends a message to every viewer of the session. It never blocks:
// viewers with a full queue miss the message.
func (h *Hub) Publish(sessionID, msgType string, payload any) {
	h.mu.RLock()
	room := h.rooms[sessionID]
	targets := make([]*client, 0, len(room))
	for c := range room {
		targets = append(targets, c)
	}
	h.mu.RUnlock()

	if len(targets) == 0 {
		return
	}

	data, err := marshalEnvelope(msgType, sessionID, payload)
	if err != nil {
		h.logger.Error("failed to marshal publication", "type", msgType, "sessionId", sessionID, "error", err)
		return
	}

	attrs := metric.WithAttributes(attribute.String("type", msgType))
	for _, c := range targets {
		if c.enqueue(data) {
			h.add(h.published, attrs)
		} else {
			h.add(h.dropped, attrs)
		}
	}
}

func (h *Hub) add(counter metric.Int64Counter, attrs metric.AddOption) {
	if counter != nil {
		counter.Add(context.Background(), 1, attrs)
	}
}

// ClientCount returns the number of connected viewers.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Rooms returns the ids of sessions with at least one viewer.
func (h *Hub) Rooms() []string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]string, 0, len(h.rooms))
	for id := range h.rooms {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// ActiveRooms returns the number of watched sessions without taking the hub
// lock, so it is safe to call from a log handler.
func (h *Hub) ActiveRooms() int {
	return int(h.active.Load())
}

// RoomSize returns the number of viewers in a session.
func (h *Hub) RoomSize(sessionID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[sessionID])
}

func (h *Hub) attach(c *client) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return false
	}
	h.clients[c] = struct{}{}
	return true
}

// detach removes a disconnected viewer and releases the rooms it emptied.
func (h *Hub) detach(c *client) {
	h.lifecycle.Lock()
	defer h.lifecycle.Unlock()

	c.mu.Lock()
	sessions := make([]string, 0, len(c.sessions))
	for id := range c.sessions {
		sessions = append(sessions, id)
	}
	c.sessions = make(map[string]struct{})
	c.mu.Unlock()
	sort.Strings(sessions)

	h.mu.Lock()
	delete(h.clients, c)
	var emptied []string
	for _, id := range sessions {
		if h.removeFromRoom(id, c) {
			emptied = append(emptied, id)
		}
	}
	h.mu.Unlock()

	c.shutdown()
	for _, id := range emptied {
		h.release(id)
	}
	h.logger.Debug("client disconnected", "clientId", c.id, "sessions", len(sessions))
}

// removeFromRoom reports whether the room became empty. Caller holds h.mu.
func (h *Hub) removeFromRoom(sessionID string, c *client) bool {
	room, ok := h.rooms[sessionID]
	if !ok {
		return false
	}
	if _, member := room[c]; !member {
		return false
	}
	delete(room, c)
	if len(room) == 0 {
		delete(h.rooms, sessionID)
		h.active.Store(int64(len(h.rooms)))
		return true
	}
	return false
}

func (h *Hub) join(c *client, sessionID string) error {
	h.lifecycle.Lock()
	defer h.lifecycle.Unlock()

	if c.joined(sessionID) {
		return nil
	}

	h.mu.RLock()
	first := len(h.rooms[sessionID]) == 0
	h.mu.RUnlock()

	if first {
		if _, err := h.dispatcher.Dispatch(dispatcher.Event{Command: worker.CmdSessionJoin, SessionID: sessionID}); err != nil {
			return err
		}
	}

	h.mu.Lock()
	room, ok := h.rooms[sessionID]
	if !ok {
		room = make(map[*client]struct{})
		h.rooms[sessionID] = room
		h.active.Store(int64(len(h.rooms)))
	}
	room[c] = struct{}{}
	h.mu.Unlock()

	c.mu.Lock()
	c.sessions[sessionID] = struct{}{}
	c.mu.Unlock()

	h.logger.Debug("client joined session", "clientId", c.id, "sessionId", sessionID, "first", first)
	return nil
}

func (h *Hub) leave(c *client, sessionID string) error {
	h.lifecycle.Lock()
	defer h.lifecycle.Unlock()

	c.mu.Lock()
	_, member := c.sessions[sessionID]
	delete(c.sessions, sessionID)
	c.mu.Unlock()
	if !member {
		return errNotJoined
	}

	h.mu.Lock()
	last := h.removeFromRoom(sessionID, c)
	h.mu.Unlock()

	if last {
		return h.release(sessionID)
	}
	return nil
}

// release unregisters a session nobody watches any more.
func (h *Hub) release(sessionID string) error {
	_, err := h.dispatcher.Dispatch(dispatcher.Event{Command: worker.CmdSessionLeave, SessionID: sessionID})
	if err != nil {
		h.logger.Error("failed to release session", "sessionId", sessionID, "error", err)
	}
	return err
}

// handleMessage processes one inbound frame and replies to the sender.
func (h *Hub) handleMessage(c *client, raw []byte) {
	var env streaming.Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		h.replyError(c, "", "", fmt.Errorf("malformed frame: %w", err))
		return
	}
	if env.SessionID == "" {
		h.replyError(c, env.Type, "", errMissingSession)
		return
	}

	var (
		result any
		err    error
	)
	switch env.Type {
	case streaming.TypeJoinSession:
		err = h.join(c, env.SessionID)
	case streaming.TypeLeaveSession:
		err = h.leave(c, env.SessionID)
	default:
		command, ok := worker.CommandFor(env.Type)
		if !ok {
			err = fmt.Errorf("%w: %q", errUnknownType, env.Type)
			break
		}
		if !c.joined(env.SessionID) {
			err = errNotJoined
			break
		}
		result, err = h.dispatcher.Dispatch(dispatcher.Event{
			Command:   command,
			SessionID: env.SessionID,
			Payload:   env.Payload,
		})
	}

	if err != nil {
		h.logger.Debug("inbound message rejected", "clientId", c.id, "type", env.Type, "sessionId", env.SessionID, "error", err)
		h.replyError(c, env.Type, env.SessionID, err)
		return
	}

	if history, ok := result.(streaming.HistoryPayload); ok {
		data, err := marshalEnvelope(streaming.TypeHistoryData, env.SessionID, history)
		if err != nil {
			h.replyError(c, env.Type, env.SessionID, err)
			return
		}
		c.enqueue(data)
		return
	}
	c.enqueueJSON(streaming.AckMessage{Type: streaming.TypeAck, For: env.Type})
}

func (h *Hub) replyError(c *client, msgType, sessionID string, err error) {
	data, merr := marshalEnvelope(streaming.TypeError, sessionID, streaming.ErrorPayload{For: msgType, Message: err.Error()})
	if merr != nil {
		h.logger.Error("failed to marshal error reply", "error", merr)
		return
	}
	c.enqueue(data)
}

func (h *Hub) newClientID() string {
	return uuid.NewString()
}

// Close disconnects every viewer. Rooms are not released; the caller owns
// engine shutdown.
func (h *Hub) Close() {
	h.mu.Lock()
	h.closed = true
	clients := make([]*client, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	h.clients = make(map[*client]struct{})
	h.rooms = make(map[string]map[*client]struct{})
	h.active.Store(0)
	h.mu.Unlock()

	for _, c := range clients {
		c.shutdown()
	}
}

// marshalEnvelope builds a JSON-encoded Envelope from a message type and payload.
func marshalEnvelope(msgType, sessionID string, payload any) ([]byte, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal %s payload: %w", msgType, err)
	}
	data, err := json.Marshal(streaming.Envelope{Type: msgType, SessionID: sessionID, Payload: raw})
	if err != nil {
		return nil, fmt.Errorf("marshal %s envelope: %w", msgType, err)
	}
	return data, nil
}
