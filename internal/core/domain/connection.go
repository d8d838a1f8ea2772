package domain

import (
	"math"
	"sync"
	"sync/atomic"
)

// UnassignedConnectionID is the connection id before the device assigns one.
const UnassignedConnectionID int64 = -1

// Connection is the admission state of one client connection. It is
// owned by the connection's handler goroutine and never shared across
// connections.
type Connection struct {
	id        atomic.Int64
	announced atomic.Bool

	mu      sync.Mutex
	lastSeq int64
}

// NewConnection returns state for a freshly accepted connection.
func NewConnection() *Connection {
	c := &Connection{lastSeq: math.MinInt64}
	c.id.Store(UnassignedConnectionID)
	return c
}

// ID returns the device-assigned connection id, or UnassignedConnectionID.
func (c *Connection) ID() int64 {
	return c.id.Load()
}

// AssignID sets the connection id. It succeeds only once.
func (c *Connection) AssignID(id int64) bool {
	return c.id.CompareAndSwap(UnassignedConnectionID, id)
}

// Announced reports whether the connection id has been sent to the client.
func (c *Connection) Announced() bool {
	return c.announced.Load()
}

// MarkAnnounced latches the announced flag.
func (c *Connection) MarkAnnounced() {
	c.announced.Store(true)
}

// LastSequence returns the last accepted sequence number.
func (c *Connection) LastSequence() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastSeq
}

// CheckAndAdvance accepts seq only if it is strictly greater than the last
// accepted sequence, recording it. A rejected sequence leaves the state
// unchanged.
func (c *Connection) CheckAndAdvance(seq int64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if seq <= c.lastSeq {
		return ErrInvalidSequence.WithDetailsf("invalid sequence id: %d, last accepted: %d", seq, c.lastSeq)
	}
	c.lastSeq = seq
	return nil
}
