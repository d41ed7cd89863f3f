// Connection pool for broker connections that are used exclusively (one
// caller at a time) rather than multiplexed. The Client keeps per-broker
// channels of ClientTransports instead; ConnPool is the borrow/return
// alternative for raw connections.
//
// A buffered channel is the pool: FIFO, goroutine-safe, and blocking on
// empty comes for free.
package transport

import (
	"fmt"
	"net"
	"sync"
)

// ConnPool manages reusable TCP connections to a single broker address.
type ConnPool struct {
	mu       sync.Mutex
	conns    chan *PoolConn
	addr     string
	maxConns int
	curConns int                      // Connections currently alive (may be < maxConns)
	closed   bool                     // Set by Close; Get and Put reject the pool afterwards
	factory  func() (net.Conn, error) // Dials one new connection
}

// PoolConn is a net.Conn with pool bookkeeping.
type PoolConn struct {
	net.Conn
	pool     *ConnPool
	unusable bool // Set when the connection hit an error; Put discards it
}

// MarkUnusable flags the connection so Put closes it instead of recycling.
func (c *PoolConn) MarkUnusable() {
	c.unusable = true
}

// NewConnPool creates a pool that grows lazily up to maxConns.
func NewConnPool(addr string, maxConns int, factory func() (net.Conn, error)) *ConnPool {
	return &ConnPool{
		conns:    make(chan *PoolConn, maxConns),
		addr:     addr,
		maxConns: maxConns,
		factory:  factory,
	}
}

// Get returns a pooled connection, dialing a new one while under the limit
// and blocking for a returned one at capacity. A connection marked unusable
// while it sat in the pool is discarded and replaced, never handed out.
func (p *ConnPool) Get() (*PoolConn, error) {
	select {
	case conn, ok := <-p.conns:
		if !ok {
			return nil, fmt.Errorf("connection pool to %s is closed", p.addr)
		}
		if conn.unusable {
			p.discard(conn)
			return p.createNew()
		}
		return conn, nil
	default:
		p.mu.Lock()
		under := p.curConns < p.maxConns
		p.mu.Unlock()
		if under {
			return p.createNew()
		}
		conn, ok := <-p.conns
		if !ok {
			return nil, fmt.Errorf("connection pool to %s is closed", p.addr)
		}
		if conn.unusable {
			p.discard(conn)
			return p.createNew()
		}
		return conn, nil
	}
}

// Put returns a connection to the pool; unusable connections are closed and
// their slot freed. Put after Close closes the connection instead of sending
// on the closed channel.
func (p *ConnPool) Put(conn *PoolConn) {
	if conn.unusable {
		p.discard(conn)
		return
	}
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		conn.Close()
		return
	}
	// Live connections never outnumber the channel capacity, so this send
	// cannot block.
	p.conns <- conn
	p.mu.Unlock()
}

// discard closes a broken connection and frees its slot.
func (p *ConnPool) discard(conn *PoolConn) {
	conn.Close()
	p.mu.Lock()
	p.curConns--
	p.mu.Unlock()
}

// Close shuts down the pool and every idle connection. Idempotent.
func (p *ConnPool) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil
	}
	p.closed = true
	close(p.conns)
	for conn := range p.conns {
		conn.Close()
		p.curConns--
	}
	return nil
}

func (p *ConnPool) createNew() (*PoolConn, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return nil, fmt.Errorf("connection pool to %s is closed", p.addr)
	}
	if p.curConns >= p.maxConns {
		return nil, fmt.Errorf("connection pool to %s exhausted", p.addr)
	}

	netConn, err := p.factory()
	if err != nil {
		return nil, err
	}

	p.curConns++
	return &PoolConn{Conn: netConn, pool: p}, nil
}
