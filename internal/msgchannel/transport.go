package msgchannel

import (
	"context"
	"sync"
)

// Handlers are the link callbacks a Transport must wire into each Conn.
type Handlers struct {
	// OnInterrupted fires when the link breaks while the remote may still be alive.
	OnInterrupted func(err error)
	// OnInvalidated fires when the remote tears the link down for good.
	OnInvalidated func()
}

// Transport dials connection-oriented links to the extension process.
type Transport interface {
	Dial(ctx context.Context, h Handlers) (Conn, error)
}

// Conn is one dialed link.
type Conn interface {
	// Request sends one encoded message and returns the encoded reply.
	Request(ctx context.Context, data []byte) ([]byte, error)
	Close() error
}

// LocalTransport connects to a Handler in the same process. It is used when
// the device and the publisher share a process, and to simulate link
// failures.
type LocalTransport struct {
	handler Handler

	mu      sync.Mutex
	current *localConn
}

// NewLocalTransport returns a transport serving requests with h.
func NewLocalTransport(h Handler) *LocalTransport {
	return &LocalTransport{handler: h}
}

// Dial implements Transport.
func (t *LocalTransport) Dial(_ context.Context, h Handlers) (Conn, error) {
	c := &localConn{handler: t.handler, handlers: h}
	t.mu.Lock()
	t.current = c
	t.mu.Unlock()
	return c, nil
}

// Interrupt breaks the most recent link as a transport failure would.
func (t *LocalTransport) Interrupt(err error) {
	if c := t.take(); c != nil && c.handlers.OnInterrupted != nil {
		c.handlers.OnInterrupted(err)
	}
}

// Invalidate tears down the most recent link as a departing remote would.
func (t *LocalTransport) Invalidate() {
	if c := t.take(); c != nil && c.handlers.OnInvalidated != nil {
		c.handlers.OnInvalidated()
	}
}

func (t *LocalTransport) take() *localConn {
	t.mu.Lock()
	defer t.mu.Unlock()
	c := t.current
	t.current = nil
	if c != nil {
		c.markClosed()
	}
	return c
}

type localConn struct {
	handler  Handler
	handlers Handlers

	mu     sync.Mutex
	closed bool
}

func (c *localConn) Request(ctx context.Context, data []byte) ([]byte, error) {
	c.mu.Lock()
	closed := c.closed
	c.mu.Unlock()
	if closed {
		return nil, &Error{Code: CodeNotConnected, Message: "local link closed"}
	}
	if err := ctx.Err(); err != nil {
		return nil, &Error{Code: CodeTimeout, Message: "request", Cause: err}
	}
	return Serve(c.handler, data), nil
}

func (c *localConn) Close() error {
	c.markClosed()
	return nil
}

func (c *localConn) markClosed() {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
}
