package relay

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

// Internal connection lifecycle events, dispatched to subscribers the
// same way relay events are.
const (
	EventConnect      = "connect"
	EventDisconnect   = "disconnect"
	EventConnectError = "connect_error"
)

// Envelope is the wire format shared with the relay server: an event
// name plus an event-specific JSON payload.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// Options holds configuration for a relay connection.
type Options struct {
	// WithCredentials attaches the request header (cookies and the
	// like) to the websocket handshake.
	WithCredentials bool
	// AutoConnect tells callers to connect immediately on construction.
	// The handle itself does not act on it; see config and cmd wiring.
	AutoConnect bool
	// ReconnectionAttempts bounds how many times a dropped connection
	// is retried before the handle gives up silently.
	ReconnectionAttempts int
	// ReconnectionDelay is the base backoff between retries; attempt n
	// waits n times this delay.
	ReconnectionDelay time.Duration

	WriteTimeout time.Duration
	Header       http.Header
}

// DefaultOptions returns the default connection configuration.
func DefaultOptions() Options {
	return Options{
		WithCredentials:      true,
		AutoConnect:          true,
		ReconnectionAttempts: 5,
		ReconnectionDelay:    time.Second,
		WriteTimeout:         10 * time.Second,
	}
}

// Handle manages a single long-lived connection to the relay server.
// Emits are fire and forget; inbound events are dispatched to
// subscribed handlers in receipt order from one read loop, so handlers
// never run concurrently with each other.
type Handle struct {
	mu        sync.Mutex
	writeMu   sync.Mutex
	url       string
	opts      Options
	conn      *websocket.Conn
	connected bool
	closed    bool
	// reconnecting marks a dropped connection whose reconnection policy
	// currently owns the handle; Connect must not dial alongside it.
	reconnecting bool
	gen          int
	sessionID string
	handlers  map[string][]func(data json.RawMessage)
}

// NewHandle creates an unconnected relay handle.
func NewHandle() *Handle {
	return &Handle{
		handlers: make(map[string][]func(data json.RawMessage)),
	}
}

// Connect establishes the connection, or returns immediately if one is
// already up; repeated calls never create duplicate connections. A
// connection dropped later is retried under the handle's reconnection
// policy; a failed initial dial is reported to the caller instead.
func (h *Handle) Connect(rawURL string, opts Options) error {
	h.mu.Lock()
	if h.conn != nil || h.reconnecting {
		h.mu.Unlock()
		return nil
	}
	h.url = rawURL
	h.opts = opts
	h.closed = false
	gen := h.gen
	h.mu.Unlock()

	conn, err := h.dial()
	if err != nil {
		h.dispatch(EventConnectError, nil)
		return fmt.Errorf("connect to relay: %w", err)
	}

	h.mu.Lock()
	if h.closed || h.gen != gen {
		h.mu.Unlock()
		conn.Close()
		return nil
	}
	h.conn = conn
	h.connected = true
	h.sessionID = uuid.New().String()
	sessionID := h.sessionID
	h.mu.Unlock()

	log.Info().Str("url", rawURL).Str("session_id", sessionID).Msg("connected to relay")
	h.dispatch(EventConnect, nil)
	go h.readLoop(conn, gen)
	return nil
}

// Close terminates the connection and resets the handle so a
// subsequent Connect creates a fresh one.
func (h *Handle) Close() error {
	h.mu.Lock()
	conn := h.conn
	h.conn = nil
	h.connected = false
	h.closed = true
	h.reconnecting = false
	h.gen++
	h.mu.Unlock()

	if conn != nil {
		return conn.Close()
	}
	return nil
}

// Connected reports whether the connection is currently up.
func (h *Handle) Connected() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.connected
}

// SessionID returns the transport-session identifier. It changes on
// every (re)connect; an empty string means never connected.
func (h *Handle) SessionID() string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.sessionID
}

// Subscribe registers a handler for the named event. Handlers are
// invoked once per received event, in receipt order.
func (h *Handle) Subscribe(event string, handler func(data json.RawMessage)) {
	h.mu.Lock()
	h.handlers[event] = append(h.handlers[event], handler)
	h.mu.Unlock()
}

// Emit sends a fire-and-forget message. Emits while disconnected are
// dropped, not queued; there is no acknowledgment contract here.
func (h *Handle) Emit(event string, payload interface{}) error {
	h.mu.Lock()
	conn := h.conn
	connected := h.connected
	timeout := h.opts.WriteTimeout
	h.mu.Unlock()

	if !connected || conn == nil {
		log.Debug().Str("event", event).Msg("emit while disconnected, dropping")
		return nil
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal %s payload: %w", event, err)
	}
	frame, err := json.Marshal(Envelope{Event: event, Data: data})
	if err != nil {
		return fmt.Errorf("marshal %s envelope: %w", event, err)
	}

	h.writeMu.Lock()
	defer h.writeMu.Unlock()
	if timeout > 0 {
		conn.SetWriteDeadline(time.Now().Add(timeout))
	}
	if err := conn.WriteMessage(websocket.TextMessage, frame); err != nil {
		return fmt.Errorf("write %s: %w", event, err)
	}
	return nil
}

func (h *Handle) dial() (*websocket.Conn, error) {
	var header http.Header
	if h.opts.WithCredentials {
		header = h.opts.Header
	}
	conn, _, err := websocket.DefaultDialer.Dial(wsURL(h.url), header)
	return conn, err
}

// readLoop dispatches inbound envelopes until the connection drops,
// then hands off to the reconnection policy. gen identifies the
// Connect generation so a loop orphaned by Close exits silently.
func (h *Handle) readLoop(conn *websocket.Conn, gen int) {
	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			h.mu.Lock()
			intentional := h.closed || h.gen != gen
			if !intentional {
				h.connected = false
				h.conn = nil
				h.reconnecting = true
			}
			h.mu.Unlock()

			if intentional {
				return
			}
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Error().Err(err).Msg("relay connection lost")
			}
			h.dispatch(EventDisconnect, nil)
			h.reconnect(gen)
			return
		}

		var env Envelope
		if err := json.Unmarshal(message, &env); err != nil {
			log.Warn().Err(err).Msg("dropping malformed relay frame")
			continue
		}
		h.dispatch(env.Event, env.Data)
	}
}

// reconnect retries the dropped connection with linear backoff on the
// base delay, up to the bounded attempt count, then gives up silently.
func (h *Handle) reconnect(gen int) {
	h.mu.Lock()
	attempts := h.opts.ReconnectionAttempts
	delay := h.opts.ReconnectionDelay
	h.mu.Unlock()

	for attempt := 1; attempt <= attempts; attempt++ {
		time.Sleep(time.Duration(attempt) * delay)

		h.mu.Lock()
		if h.closed || h.gen != gen {
			// Close (or a newer Connect) took the handle back; the
			// reconnecting flag is no longer this generation's to clear.
			h.mu.Unlock()
			return
		}
		h.mu.Unlock()

		conn, err := h.dial()
		if err != nil {
			log.Warn().Err(err).Int("attempt", attempt).Msg("reconnect attempt failed")
			h.dispatch(EventConnectError, nil)
			continue
		}

		h.mu.Lock()
		if h.closed || h.gen != gen {
			h.mu.Unlock()
			conn.Close()
			return
		}
		h.conn = conn
		h.connected = true
		h.reconnecting = false
		h.sessionID = uuid.New().String()
		h.mu.Unlock()

		log.Info().Int("attempt", attempt).Msg("reconnected to relay")
		h.dispatch(EventConnect, nil)
		go h.readLoop(conn, gen)
		return
	}

	h.mu.Lock()
	if h.gen == gen {
		h.reconnecting = false
	}
	h.mu.Unlock()
	log.Warn().Int("attempts", attempts).Msg("reconnect attempts exhausted, staying disconnected")
}

// dispatch invokes the subscribed handlers for an event, serially.
func (h *Handle) dispatch(event string, data json.RawMessage) {
	h.mu.Lock()
	handlers := make([]func(json.RawMessage), len(h.handlers[event]))
	copy(handlers, h.handlers[event])
	h.mu.Unlock()

	for _, handler := range handlers {
		handler(data)
	}
}

// wsURL rewrites an http(s) base URL to the websocket scheme; ws(s)
// URLs pass through unchanged.
func wsURL(raw string) string {
	switch {
	case strings.HasPrefix(raw, "https://"):
		return "wss://" + strings.TrimPrefix(raw, "https://")
	case strings.HasPrefix(raw, "http://"):
		return "ws://" + strings.TrimPrefix(raw, "http://")
	default:
		return raw
	}
}
