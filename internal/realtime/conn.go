// Package realtime owns the persistent event channel to the game server: one
// authenticated websocket per client process, a writer pump, and a single
// dispatch loop that runs handlers to completion in receive order.
package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"smartmath-client/internal/domain"
	"smartmath-client/internal/protocol"
)

// Handler consumes one inbound event payload. Handlers run on the dispatch
// goroutine; anything slow must hand off instead of blocking it.
type Handler func(payload json.RawMessage)

// Conn is a live, authenticated connection handle.
type Conn struct {
	ws   *websocket.Conn
	send chan protocol.Envelope
	done chan struct{}
	once sync.Once

	mu       sync.RWMutex
	handlers map[string][]Handler
}

func newConn(ws *websocket.Conn) *Conn {
	c := &Conn{
		ws:       ws,
		send:     make(chan protocol.Envelope, 16),
		done:     make(chan struct{}),
		handlers: make(map[string][]Handler),
	}
	go c.writeLoop()
	go c.readLoop()
	return c
}

// On registers a handler for an inbound event type. Multiple handlers per
// event are invoked in registration order.
func (c *Conn) On(event string, h Handler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handlers[event] = append(c.handlers[event], h)
}

// Emit queues an outbound event. Returns ErrNotConnected once the connection
// is closed.
func (c *Conn) Emit(event string, payload any) error {
	env, err := protocol.Encode(event, payload)
	if err != nil {
		return err
	}
	// Checked first on its own: with both cases ready the two-way select
	// below picks at random, and a queued envelope would be lost because
	// the write pump has already exited.
	select {
	case <-c.done:
		return domain.ErrNotConnected
	default:
	}
	select {
	case <-c.done:
		return domain.ErrNotConnected
	case c.send <- env:
		return nil
	}
}

// Done is closed when the connection is no longer usable.
func (c *Conn) Done() <-chan struct{} {
	return c.done
}

// Close tears the connection down. It is idempotent. The close frame is the
// server-visible leave signal: the backend deactivates this player from the
// roster on disconnect, so Close must run before navigating away from a game.
func (c *Conn) Close() {
	c.once.Do(func() {
		close(c.done)
		deadline := time.Now().Add(time.Second)
		_ = c.ws.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), deadline)
		_ = c.ws.Close()
	})
}

func (c *Conn) writeLoop() {
	for {
		select {
		case <-c.done:
			return
		case env := <-c.send:
			if err := c.ws.WriteJSON(env); err != nil {
				log.Printf("ws write error: %v", err)
				c.Close()
				return
			}
		}
	}
}

func (c *Conn) readLoop() {
	defer c.Close()
	for {
		var env protocol.Envelope
		if err := c.ws.ReadJSON(&env); err != nil {
			select {
			case <-c.done:
			default:
				log.Printf("ws read error: %v", err)
			}
			return
		}
		c.dispatch(env)
	}
}

func (c *Conn) dispatch(env protocol.Envelope) {
	c.mu.RLock()
	handlers := c.handlers[env.Type]
	c.mu.RUnlock()
	if len(handlers) == 0 {
		return
	}
	for _, h := range handlers {
		h(env.Payload)
	}
}

// Manager owns the single shared connection per process. Connecting with the
// same token returns the existing handle; a different token tears the old
// connection down first.
type Manager struct {
	url         string
	dialTimeout time.Duration

	mu    sync.Mutex
	token string
	conn  *Conn
}

func NewManager(url string, dialTimeout time.Duration) *Manager {
	if dialTimeout <= 0 {
		dialTimeout = 10 * time.Second
	}
	return &Manager{url: url, dialTimeout: dialTimeout}
}

// Connect returns the shared connection for token, dialing if needed. A dial
// that cannot complete within the configured timeout surfaces
// ErrConnectivity; retrying is the caller's decision, there is no retry loop.
func (m *Manager) Connect(ctx context.Context, token string) (*Conn, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, fmt.Errorf("%w: empty token", domain.ErrConnectivity)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.conn != nil && m.token == token {
		select {
		case <-m.conn.Done():
			// fall through and redial
		default:
			return m.conn, nil
		}
	}
	if m.conn != nil {
		m.conn.Close()
		m.conn = nil
		m.token = ""
	}

	dialer := websocket.Dialer{HandshakeTimeout: m.dialTimeout}
	header := http.Header{"Authorization": {"Bearer " + token}}
	ws, resp, err := dialer.DialContext(ctx, m.url, header)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("%w: %v (status %d)", domain.ErrConnectivity, err, resp.StatusCode)
		}
		return nil, fmt.Errorf("%w: %v", domain.ErrConnectivity, err)
	}

	m.conn = newConn(ws)
	m.token = token
	return m.conn, nil
}

// Disconnect closes the shared connection if one exists. Safe to call from
// any lifecycle hook, any number of times.
func (m *Manager) Disconnect() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.conn != nil {
		m.conn.Close()
		m.conn = nil
		m.token = ""
	}
}
