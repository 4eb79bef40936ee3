package transport

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

// timeAfter is time.After, swappable in tests to avoid real backoff waits.
var timeAfter = time.After

// Status represents the connection lifecycle state.
type Status uint8

const (
	StatusDisconnected Status = iota
	StatusConnecting
	StatusConnected
)

// String returns a human-readable status name.
func (s Status) String() string {
	switch s {
	case StatusConnecting:
		return "connecting"
	case StatusConnected:
		return "connected"
	default:
		return "disconnected"
	}
}

var (
	// ErrNotConnected is returned when emitting without a live connection.
	ErrNotConnected = errors.New("transport: not connected")
	// ErrConnectionLost is returned when the retry budget is exhausted.
	ErrConnectionLost = errors.New("transport: connection lost")
	// ErrQueueFull is returned when the outbound queue cannot accept an event.
	ErrQueueFull = errors.New("transport: send queue full")
)

// Handler processes the payload of one inbound event. Handlers run on the
// read-loop goroutine, one event at a time, in arrival order.
type Handler func(data json.RawMessage)

// Hooks are the connection lifecycle callbacks. OnConnected fires after
// every successful dial, including automatic reconnects, so the caller can
// re-announce identity and rejoin its room. OnDisconnected fires only when
// the retry budget is exhausted.
type Hooks struct {
	OnConnected    func()
	OnDisconnected func(err error)
}

// Transport is the realtime connection used by the coordinator. It is an
// interface so the coordinator can be driven by an in-memory fake in tests.
type Transport interface {
	Connect(ctx context.Context) error
	Close() error
	Emit(event string, payload interface{}) error
	RegisterHandler(event string, h Handler)
	Status() Status
	SetHooks(Hooks)
}

// Config configures a websocket Socket.
type Config struct {
	URL       string
	Retry     RetryPolicy
	QueueSize int
	Dialer    *websocket.Dialer
}

// Socket is the websocket implementation of Transport. One reader
// goroutine dispatches inbound events; one writer goroutine drains the
// buffered send queue.
type Socket struct {
	cfg      Config
	handlers map[string]Handler
	hooks    Hooks

	conn       *websocket.Conn
	connID     string
	send       chan []byte
	cancel     context.CancelFunc
	status     Status
	retryCount int
	closed     bool

	// gen counts dial generations. Connect and Close each start a new
	// generation; a dial loop carrying a stale generation must not
	// install its connection.
	gen uint64

	mu sync.RWMutex
}

// NewSocket creates a Socket from the given config, applying the default
// retry policy and queue size where unset.
func NewSocket(cfg Config) *Socket {
	if cfg.Retry == (RetryPolicy{}) {
		cfg.Retry = DefaultRetryPolicy()
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 64
	}
	if cfg.Dialer == nil {
		cfg.Dialer = websocket.DefaultDialer
	}
	return &Socket{
		cfg:      cfg,
		handlers: make(map[string]Handler),
	}
}

// SetHooks sets the lifecycle callbacks. Must be called before Connect.
func (s *Socket) SetHooks(h Hooks) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.hooks = h
}

// RegisterHandler registers the handler for a specific inbound event.
// Handlers survive reconnects.
func (s *Socket) RegisterHandler(event string, h Handler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handlers[event] = h
}

// Status returns the current connection status.
func (s *Socket) Status() Status {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.status
}

// Connect dials the server, retrying per the retry policy. It is a no-op
// when already connected or connecting. On exhaustion it returns
// ErrConnectionLost and performs no further automatic retries.
func (s *Socket) Connect(ctx context.Context) error {
	s.mu.Lock()
	if s.status != StatusDisconnected {
		s.mu.Unlock()
		return nil
	}
	s.status = StatusConnecting
	s.closed = false
	s.retryCount = 0
	s.gen++
	gen := s.gen
	s.mu.Unlock()

	return s.dialLoop(ctx, gen)
}

// dialLoop attempts to establish the connection within the retry budget.
// It stops as soon as its generation is superseded by a Close or a newer
// Connect.
func (s *Socket) dialLoop(ctx context.Context, gen uint64) error {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.Retry.ConnectTimeout)
	defer cancel()

	var lastErr error
	for attempt := 1; attempt <= s.cfg.Retry.MaxAttempts; attempt++ {
		s.mu.Lock()
		if s.closed || gen != s.gen {
			s.mu.Unlock()
			return ErrConnectionLost
		}
		s.retryCount = attempt
		s.mu.Unlock()

		conn, _, err := s.cfg.Dialer.DialContext(ctx, s.cfg.URL, nil)
		if err == nil {
			if !s.establish(conn, gen) {
				return ErrConnectionLost
			}
			return nil
		}
		lastErr = err

		logrus.WithFields(logrus.Fields{
			"function": "dialLoop",
			"url":      s.cfg.URL,
			"attempt":  attempt,
			"error":    err,
		}).Warn("Dial failed")

		select {
		case <-ctx.Done():
			attempt = s.cfg.Retry.MaxAttempts // budget spent
		case <-timeAfter(s.cfg.Retry.Delay(attempt)):
		}
	}

	s.mu.Lock()
	if !s.closed && gen == s.gen {
		s.status = StatusDisconnected
	}
	s.mu.Unlock()

	logrus.WithFields(logrus.Fields{
		"function": "dialLoop",
		"url":      s.cfg.URL,
		"error":    lastErr,
	}).Error("Connection lost: retry budget exhausted")
	if lastErr != nil {
		return fmt.Errorf("%w: %v", ErrConnectionLost, lastErr)
	}
	return ErrConnectionLost
}

// establish installs a freshly dialed connection and starts its goroutines.
// A connection dialed under a stale generation is discarded: a Close that
// landed mid-dial must not be undone by a late success.
func (s *Socket) establish(conn *websocket.Conn, gen uint64) bool {
	ctx, cancel := context.WithCancel(context.Background())

	s.mu.Lock()
	if s.closed || gen != s.gen {
		s.mu.Unlock()
		cancel()
		conn.Close()
		logrus.WithFields(logrus.Fields{
			"function": "establish",
			"url":      s.cfg.URL,
		}).Info("Discarding connection from superseded dial")
		return false
	}
	s.conn = conn
	s.connID = uuid.NewString()
	s.send = make(chan []byte, s.cfg.QueueSize)
	s.cancel = cancel
	s.status = StatusConnected
	onConnected := s.hooks.OnConnected
	connID := s.connID
	sendCh := s.send
	s.mu.Unlock()

	logrus.WithFields(logrus.Fields{
		"function": "establish",
		"conn_id":  connID,
		"url":      s.cfg.URL,
	}).Info("Connected")

	go s.readLoop(conn)
	go s.writeLoop(ctx, conn, sendCh)

	if onConnected != nil {
		onConnected()
	}
	return true
}

// Close tears the connection down and disables automatic reconnection.
// Any in-flight dial belongs to an older generation afterwards and will
// discard its result.
func (s *Socket) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.closed = true
	s.status = StatusDisconnected
	s.gen++
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
	if s.conn != nil {
		err := s.conn.Close()
		s.conn = nil
		return err
	}
	return nil
}

// Emit queues one outbound event. It fails fast when disconnected or when
// the queue is full; it never blocks the caller.
func (s *Socket) Emit(event string, payload interface{}) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("transport: marshal %s payload: %w", event, err)
	}
	frame, err := json.Marshal(Envelope{Event: event, Data: data})
	if err != nil {
		return fmt.Errorf("transport: marshal %s envelope: %w", event, err)
	}

	s.mu.RLock()
	status := s.status
	ch := s.send
	s.mu.RUnlock()

	if status != StatusConnected || ch == nil {
		return ErrNotConnected
	}

	select {
	case ch <- frame:
		logrus.WithFields(logrus.Fields{
			"function": "Emit",
			"event":    event,
		}).Debug("Event queued")
		return nil
	default:
		return ErrQueueFull
	}
}

// readLoop reads frames until the connection drops, dispatching each event
// to its registered handler.
func (s *Socket) readLoop(conn *websocket.Conn) {
	for {
		_, frame, err := conn.ReadMessage()
		if err != nil {
			s.handleReadError(conn, err)
			return
		}

		var env Envelope
		if err := json.Unmarshal(frame, &env); err != nil {
			logrus.WithFields(logrus.Fields{
				"function": "readLoop",
				"error":    err,
			}).Warn("Malformed event frame dropped")
			continue
		}

		s.mu.RLock()
		handler := s.handlers[env.Event]
		s.mu.RUnlock()

		if handler == nil {
			logrus.WithFields(logrus.Fields{
				"function": "readLoop",
				"event":    env.Event,
			}).Warn("No handler registered for event")
			continue
		}
		handler(env.Data)
	}
}

// writeLoop drains the send queue onto the connection.
func (s *Socket) writeLoop(ctx context.Context, conn *websocket.Conn, send <-chan []byte) {
	for {
		select {
		case <-ctx.Done():
			return
		case frame := <-send:
			if err := conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				logrus.WithFields(logrus.Fields{
					"function": "writeLoop",
					"error":    err,
				}).Warn("Write failed")
				return
			}
		}
	}
}

// handleReadError reacts to a dropped connection. Unless Close was called,
// it starts an automatic reconnect with the full retry budget.
func (s *Socket) handleReadError(conn *websocket.Conn, err error) {
	s.mu.Lock()
	if s.closed || s.conn != conn {
		// Explicit Close, or a reconnect already replaced this connection.
		s.mu.Unlock()
		return
	}
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
	s.conn.Close()
	s.conn = nil
	s.status = StatusConnecting
	gen := s.gen
	s.mu.Unlock()

	logrus.WithFields(logrus.Fields{
		"function": "handleReadError",
		"error":    err,
	}).Warn("Connection dropped, reconnecting")

	go s.reconnect(gen)
}

// reconnect runs the dial loop in the background after a drop. On
// exhaustion it reports the loss through the OnDisconnected hook.
func (s *Socket) reconnect(gen uint64) {
	err := s.dialLoop(context.Background(), gen)
	if err == nil {
		return
	}

	s.mu.RLock()
	superseded := s.closed || gen != s.gen
	onDisconnected := s.hooks.OnDisconnected
	s.mu.RUnlock()

	// An explicit Close or a newer Connect owns the lifecycle now; a
	// superseded loop must not report a loss.
	if superseded {
		return
	}
	if onDisconnected != nil {
		onDisconnected(err)
	}
}
