package websocket

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"proctorhub/pkg/types"
)

// Connection wraps a gorilla WebSocket connection for the proctoring gateway
// ARCHITECTURAL DISCOVERY: WebSocket writes must be serialized, a single
// writer goroutine owns the socket and preserves per-connection FIFO order
type Connection struct {
	id           string
	conn         *websocket.Conn
	writeCh      chan []byte
	writeTimeout time.Duration

	role       string // set on identification
	studentID  string // set on identification, empty for admins
	identified bool

	ctx       context.Context
	cancel    context.CancelFunc
	closeOnce sync.Once
	mu        sync.RWMutex // protects identity fields
}

// NewConnection creates a connection wrapper and starts its writer goroutine.
// The connection ID is freshly generated, reconnects get a new one.
func NewConnection(conn *websocket.Conn, sendBuffer int, writeTimeout time.Duration) *Connection {
	ctx, cancel := context.WithCancel(context.Background())
	c := &Connection{
		id:           uuid.New().String(),
		conn:         conn,
		writeCh:      make(chan []byte, sendBuffer),
		writeTimeout: writeTimeout,
		ctx:          ctx,
		cancel:       cancel,
	}

	go c.writeLoop()

	return c
}

// writeLoop is the single writer goroutine for the underlying socket.
// writeCh is never closed: senders race Close, so termination is signalled
// through the context alone and queued messages are simply abandoned.
func (c *Connection) writeLoop() {
	for {
		select {
		case data := <-c.writeCh:
			if err := c.conn.SetWriteDeadline(time.Now().Add(c.writeTimeout)); err != nil {
				return
			}

			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}

		case <-c.ctx.Done():
			return
		}
	}
}

// WriteEvent marshals and queues one enveloped event for delivery.
// At-most-once: a queued event is never retried after a write failure.
func (c *Connection) WriteEvent(event string, data interface{}) error {
	select {
	case <-c.ctx.Done():
		return ErrConnectionClosed
	default:
	}

	payload, err := json.Marshal(data)
	if err != nil {
		return ErrInvalidJSON
	}
	envelope, err := json.Marshal(types.Envelope{Event: event, Data: payload})
	if err != nil {
		return ErrInvalidJSON
	}

	select {
	case c.writeCh <- envelope:
		return nil
	case <-time.After(c.writeTimeout):
		return ErrWriteTimeout
	case <-c.ctx.Done():
		return ErrConnectionClosed
	}
}

// Identify binds a role (and for students, the student ID) to the connection.
// FUNCTIONAL DISCOVERY: Identification happens once per connection, a second
// join on the same socket is a client bug and gets rejected
func (c *Connection) Identify(role, studentID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.identified {
		return ErrAlreadyIdentified
	}
	c.role = role
	c.studentID = studentID
	c.identified = true

	return nil
}

func (c *Connection) ID() string {
	return c.id
}

func (c *Connection) Role() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.role
}

func (c *Connection) StudentID() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.studentID
}

func (c *Connection) IsIdentified() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.identified
}

// IsAlive reports whether the connection has not been closed or cancelled
func (c *Connection) IsAlive() bool {
	select {
	case <-c.ctx.Done():
		return false
	default:
		return true
	}
}

// Close tears down the connection exactly once
func (c *Connection) Close() error {
	var err error
	c.closeOnce.Do(func() {
		c.cancel()

		if c.conn != nil {
			err = c.conn.Close()
		}
	})
	return err
}
