// Package session tracks live participant connections and the outbound
// frame queue behind each one.
package session

import (
	"fmt"
	"sync"
)

// DefaultOutboxSize is used when NewConn is given a non-positive size.
const DefaultOutboxSize = 64

// Conn routes outbound frames for one participant to a buffered channel
// drained by the transport's writer goroutine.
//
// Send never blocks: it fails when the outbox is full or the Conn is closed,
// and callers treat either failure as best-effort delivery.
type Conn struct {
	id     string
	outbox chan []byte
	done   chan struct{}
	mu     sync.Mutex
	closed bool
}

// NewConn creates a Conn for the given participant id.
//
// Precondition: id must be non-empty.
// Postcondition: Returns an open Conn with an empty outbox.
func NewConn(id string, outboxSize int) *Conn {
	if outboxSize <= 0 {
		outboxSize = DefaultOutboxSize
	}
	return &Conn{
		id:     id,
		outbox: make(chan []byte, outboxSize),
		done:   make(chan struct{}),
	}
}

// ID returns the participant identifier bound to this connection.
func (c *Conn) ID() string {
	return c.id
}

// Send enqueues one encoded frame.
//
// Precondition: data must be a non-nil byte slice.
// Postcondition: data is enqueued, or an error is returned if the Conn is closed or full.
func (c *Conn) Send(data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return fmt.Errorf("conn %s is closed", c.id)
	}
	select {
	case c.outbox <- data:
		return nil
	default:
		return fmt.Errorf("conn %s outbox full", c.id)
	}
}

// Outbox returns the read-only outbound channel. It is closed by Close
// once every frame enqueued before Close has been buffered.
func (c *Conn) Outbox() <-chan []byte {
	return c.outbox
}

// Done returns a channel that is closed when the Conn is closed.
func (c *Conn) Done() <-chan struct{} {
	return c.done
}

// Close marks the Conn closed and closes its outbox and done channels.
//
// Postcondition: Further Send calls return an error. Close is idempotent.
func (c *Conn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.closed {
		c.closed = true
		close(c.outbox)
		close(c.done)
	}
	return nil
}

// IsClosed reports whether the Conn has been closed.
func (c *Conn) IsClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}
