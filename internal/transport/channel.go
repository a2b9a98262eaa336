// Package transport frames one websocket connection into typed message events.
package transport

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

var ErrMalformedMessage = errors.New("malformed message")

type Config struct {
	PingInterval time.Duration
	PongWait     time.Duration
	WriteWait    time.Duration
	ReadLimit    int64
	SendBuffer   int
}

func DefaultConfig() Config {
	return Config{
		PingInterval: 30 * time.Second,
		PongWait:     60 * time.Second,
		WriteWait:    10 * time.Second,
		ReadLimit:    16 * 1024,
		SendBuffer:   256,
	}
}

// Message is the envelope of every frame in both directions.
type Message struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

type output struct {
	Type    string `json:"type"`
	Payload any    `json:"payload"`
}

type EventKind int

const (
	EventMessage EventKind = iota
	EventError
	EventClose
)

type Event struct {
	Kind    EventKind
	Message Message
	// Code is the close code of an EventClose. Sockets that die without a close frame
	// report websocket.CloseAbnormalClosure.
	Code int
	Err  error
}

type Channel struct {
	id     string
	addr   string
	conn   *websocket.Conn
	cfg    Config
	logger *slog.Logger

	send   chan []byte
	events chan Event
	done   chan struct{}

	mu        sync.Mutex
	closed    bool
	closeCode int
	closeText string
}

func New(conn *websocket.Conn, addr string, cfg Config, logger *slog.Logger) *Channel {
	id := uuid.NewString()
	return &Channel{
		id:     id,
		addr:   addr,
		conn:   conn,
		cfg:    cfg,
		logger: logger.With("channel_id", id),
		send:   make(chan []byte, cfg.SendBuffer),
		events: make(chan Event, 16),
		done:   make(chan struct{}),
	}
}

// Start runs the read and write pumps. The event stream ends with exactly one EventClose.
func (c *Channel) Start() {
	go c.writePump()
	go c.readPump()
}

func (c *Channel) ID() string {
	return c.id
}

func (c *Channel) Addr() string {
	return c.addr
}

func (c *Channel) Events() <-chan Event {
	return c.events
}

// Send queues one message. It never blocks: messages to a closed or saturated channel are dropped.
func (c *Channel) Send(messageType string, payload any) {
	if payload == nil {
		payload = struct{}{}
	}

	data, err := json.Marshal(output{Type: messageType, Payload: payload})
	if err != nil {
		c.logger.Error("failed to marshal message", "type", messageType, "error", err)
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}

	select {
	case c.send <- data:
	default:
		c.logger.Warn("send buffer full, message dropped", "type", messageType)
	}
}

// Close sends a close frame with code and text and tears the socket down. Only the first call has effect.
func (c *Channel) Close(code int, text string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}

	c.closed = true
	c.closeCode = code
	c.closeText = text
	close(c.done)
}

func (c *Channel) isClosed() (bool, int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed, c.closeCode
}

func (c *Channel) readPump() {
	code := websocket.CloseAbnormalClosure
	defer func() {
		if closed, closeCode := c.isClosed(); closed {
			code = closeCode
		}
		c.Close(code, "")
		c.events <- Event{Kind: EventClose, Code: code}
		close(c.events)
	}()

	c.conn.SetReadLimit(c.cfg.ReadLimit)
	c.conn.SetReadDeadline(time.Now().Add(c.cfg.PongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(c.cfg.PongWait))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			var closeErr *websocket.CloseError
			if errors.As(err, &closeErr) {
				code = closeErr.Code
			} else if closed, _ := c.isClosed(); !closed {
				c.events <- Event{Kind: EventError, Err: err}
			}
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				c.logger.Debug("websocket read failed", "error", err)
			}
			return
		}

		msg, err := decode(data)
		if err != nil {
			c.logger.Info("malformed message", "error", err)
			c.events <- Event{Kind: EventError, Err: err}
			code = websocket.CloseUnsupportedData
			c.Close(code, "malformed message")
			return
		}

		c.events <- Event{Kind: EventMessage, Message: msg}
	}
}

func decode(data []byte) (Message, error) {
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		return Message{}, fmt.Errorf("%w: %w", ErrMalformedMessage, err)
	}
	if msg.Type == "" {
		return Message{}, fmt.Errorf("%w: missing type", ErrMalformedMessage)
	}

	return msg, nil
}

func (c *Channel) writePump() {
	ticker := time.NewTicker(c.cfg.PingInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case data := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				c.logger.Debug("websocket write failed", "error", err)
				c.Close(websocket.CloseAbnormalClosure, "")
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.logger.Debug("websocket ping failed", "error", err)
				c.Close(websocket.CloseAbnormalClosure, "")
				return
			}
		case <-c.done:
			c.flush()
			c.mu.Lock()
			frame := websocket.FormatCloseMessage(c.closeCode, c.closeText)
			c.mu.Unlock()
			_ = c.conn.WriteControl(websocket.CloseMessage, frame, time.Now().Add(c.cfg.WriteWait))
			return
		}
	}
}

// flush writes what was queued before Close, so a reject reaches the client ahead of the close frame.
func (c *Channel) flush() {
	for {
		select {
		case data := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		default:
			return
		}
	}
}
