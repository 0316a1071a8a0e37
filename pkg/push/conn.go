package push

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/chatdesk/agent-core/environments"
	"github.com/chatdesk/agent-core/pkg/logger"
)

// Event names on the push channel.
const (
	EventMessageNew        = "message:new"
	EventMessageStatus     = "message:status"
	EventConversationJoin  = "conversation:join"
	EventConversationLeave = "conversation:leave"

	eventAuth = "auth"
)

// RoomRef identifies a conversation room on the push channel.
type RoomRef struct {
	ConversationID string `json:"conversationId"`
	PhoneNumber    string `json:"phoneNumber"`
}

// Handler receives the raw data payload of a subscribed event.
type Handler func(data json.RawMessage)

type frame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

type outFrame struct {
	Event string `json:"event"`
	Data  any    `json:"data,omitempty"`
}

// Conn is the process-wide push channel connection. It is established
// lazily on first use and re-authenticated in place when credentials
// rotate. Subscribe returns an unsubscribe handle; handlers are dispatched
// from a single read pump.
type Conn struct {
	url    string
	dialer *websocket.Dialer

	mu        sync.Mutex
	authKey   string
	ws        *websocket.Conn
	connected bool
	subs      map[string]map[int64]Handler
	nextSubID int64

	// writeMu serializes writes; gorilla allows one concurrent writer.
	writeMu sync.Mutex
}

func NewConn(cfg environments.PushConfig) *Conn {
	return &Conn{
		url:     cfg.URL,
		authKey: cfg.AuthKey,
		dialer: &websocket.Dialer{
			HandshakeTimeout: cfg.HandshakeTimeout,
		},
		subs: make(map[string]map[int64]Handler),
	}
}

// Connect dials the channel and authenticates. Calling it on a live
// connection is a no-op.
func (c *Conn) Connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connectLocked(ctx)
}

func (c *Conn) connectLocked(ctx context.Context) error {
	if c.connected {
		return nil
	}

	ws, resp, err := c.dialer.DialContext(ctx, c.url, http.Header{})
	if err != nil {
		if resp != nil {
			return fmt.Errorf("push channel dial failed (status %d): %w", resp.StatusCode, err)
		}
		return fmt.Errorf("push channel dial failed: %w", err)
	}

	c.ws = ws
	c.connected = true

	if err := c.writeTo(ws, outFrame{Event: eventAuth, Data: map[string]string{"authKey": c.authKey}}); err != nil {
		c.teardownLocked()
		return fmt.Errorf("push channel auth failed: %w", err)
	}

	go c.readPump(ws)

	logger.Infof("Push channel connected: %s", c.url)
	return nil
}

// RefreshAuth replaces the credential and re-authenticates the live
// connection. The connection itself is kept; subscriptions survive.
func (c *Conn) RefreshAuth(key string) error {
	c.mu.Lock()
	c.authKey = key
	ws := c.ws
	c.mu.Unlock()

	if ws == nil {
		return nil
	}
	if err := c.writeTo(ws, outFrame{Event: eventAuth, Data: map[string]string{"authKey": key}}); err != nil {
		return fmt.Errorf("failed to refresh push channel auth: %w", err)
	}
	logger.Infof("Push channel re-authenticated")
	return nil
}

// Subscribe registers a handler for an event and returns its unsubscribe
// handle. Handlers may be registered before the connection exists.
func (c *Conn) Subscribe(event string, handler Handler) func() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.subs[event] == nil {
		c.subs[event] = make(map[int64]Handler)
	}
	c.nextSubID++
	id := c.nextSubID
	c.subs[event][id] = handler

	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		if handlers, ok := c.subs[event]; ok {
			delete(handlers, id)
			if len(handlers) == 0 {
				delete(c.subs, event)
			}
		}
	}
}

// Emit sends an event frame, connecting lazily if needed.
func (c *Conn) Emit(ctx context.Context, event string, payload any) error {
	c.mu.Lock()
	if err := c.connectLocked(ctx); err != nil {
		c.mu.Unlock()
		return err
	}
	ws := c.ws
	c.mu.Unlock()

	if err := c.writeTo(ws, outFrame{Event: event, Data: payload}); err != nil {
		return fmt.Errorf("failed to emit %s: %w", event, err)
	}
	return nil
}

func (c *Conn) writeTo(ws *websocket.Conn, f outFrame) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if ws == nil {
		return fmt.Errorf("push channel is not connected")
	}
	return ws.WriteJSON(f)
}

func (c *Conn) readPump(ws *websocket.Conn) {
	for {
		var f frame
		if err := ws.ReadJSON(&f); err != nil {
			c.mu.Lock()
			// Only tear down if this pump's connection is still current.
			if c.ws == ws {
				c.teardownLocked()
			}
			c.mu.Unlock()
			logger.Warnf("Push channel read loop ended: %v", err)
			return
		}

		if f.Event == "" {
			logger.Debugf("Dropped push frame without event name")
			continue
		}

		c.mu.Lock()
		handlers := make([]Handler, 0, len(c.subs[f.Event]))
		for _, h := range c.subs[f.Event] {
			handlers = append(handlers, h)
		}
		c.mu.Unlock()

		for _, h := range handlers {
			h(f.Data)
		}
	}
}

func (c *Conn) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}

// Disconnect closes the underlying connection. Subscriptions are kept so a
// later Connect resumes delivery.
func (c *Conn) Disconnect() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.connected {
		return nil
	}
	err := c.ws.Close()
	c.teardownLocked()
	if err != nil {
		return fmt.Errorf("failed to close push channel: %w", err)
	}
	return nil
}

func (c *Conn) teardownLocked() {
	if c.ws != nil {
		_ = c.ws.Close()
	}
	c.ws = nil
	c.connected = false
}
