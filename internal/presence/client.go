package presence

import (
	"sync"

	"github.com/google/uuid"

	"github.com/oggyb/campus-connect/internal/metrics"
)

// Conn is a live connection handle as the Router sees it.
type Conn interface {
	ID() string
	UserID() uint64
	// Deliver enqueues ev without blocking and reports whether it was taken.
	Deliver(ev Event) bool
}

// Client is the transport-neutral Conn: a bounded outbox that a websocket or
// gRPC stream writer drains. A slow reader loses events instead of stalling
// the broadcaster; it catches up from the message store.
type Client struct {
	id     string
	userID uint64
	out    chan Event

	closeOnce sync.Once
	done      chan struct{}
}

// NewClient creates a client with a fresh handle id.
func NewClient(userID uint64, buffer int) *Client {
	if buffer <= 0 {
		buffer = 64
	}
	return &Client{
		id:     uuid.NewString(),
		userID: userID,
		out:    make(chan Event, buffer),
		done:   make(chan struct{}),
	}
}

func (c *Client) ID() string     { return c.id }
func (c *Client) UserID() uint64 { return c.userID }

// Outbox is drained by the transport writer.
func (c *Client) Outbox() <-chan Event { return c.out }

// Done is closed once the client is closed.
func (c *Client) Done() <-chan struct{} { return c.done }

func (c *Client) Deliver(ev Event) bool {
	select {
	case <-c.done:
		return false
	default:
	}

	select {
	case c.out <- ev:
		return true
	default:
		metrics.LiveEventsDropped.WithLabelValues("buffer_full").Inc()
		return false
	}
}

// Close stops delivery. The outbox channel itself is never closed, so a
// concurrent Deliver cannot panic.
func (c *Client) Close() {
	c.closeOnce.Do(func() { close(c.done) })
}
