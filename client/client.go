// Package client implements a broker client: discover brokers through a
// registry, pick one with a balancer, and issue header-level requests over
// pooled, multiplexed transports.
package client

import (
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"mini-kafka/loadbalance"
	"mini-kafka/protocol"
	"mini-kafka/registry"
	"mini-kafka/transport"
)

const (
	dialAttempts  = 3
	dialBaseDelay = 50 * time.Millisecond
)

// Client issues requests against a broker cluster.
type Client struct {
	registry   registry.Registry
	balancer   loadbalance.Balancer
	cluster    string
	transports map[string]chan *transport.ClientTransport // Per-broker transport pool
	mu         sync.Mutex
	poolSize   int
	logger     zerolog.Logger
}

// New creates a client for the given cluster. poolSize is the number of
// multiplexed connections kept per broker.
func New(reg registry.Registry, bal loadbalance.Balancer, cluster string, poolSize int, logger zerolog.Logger) *Client {
	return &Client{
		registry:   reg,
		balancer:   bal,
		cluster:    cluster,
		transports: make(map[string]chan *transport.ClientTransport),
		poolSize:   poolSize,
		logger:     logger,
	}
}

// Call sends one request header to a discovered broker and waits for the
// echoed response header or ctx expiry.
func (c *Client) Call(ctx context.Context, apiKey, apiVersion uint16) (*protocol.ResponseHeader, error) {
	brokers, err := c.registry.Discover(c.cluster)
	if err != nil {
		return nil, fmt.Errorf("discover brokers: %w", err)
	}

	broker, err := c.balancer.Pick(brokers)
	if err != nil {
		return nil, err
	}

	t, err := c.getTransport(broker.Addr)
	if err != nil {
		return nil, err
	}
	defer c.releaseTransport(broker.Addr, t)

	corr, ch, err := t.Send(apiKey, apiVersion)
	if err != nil {
		return nil, err
	}

	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		if res.Header.CorrelationID != corr {
			return nil, fmt.Errorf("correlation id mismatch: sent %d, got %d", corr, res.Header.CorrelationID)
		}
		return res.Header, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// getTransport borrows a transport from the broker's pool, dialing the pool
// full on first use. The pool entry is published only after every dial has
// succeeded; an unreachable broker must not leave an empty channel behind
// that later callers would block on.
func (c *Client) getTransport(addr string) (*transport.ClientTransport, error) {
	c.mu.Lock()
	pool, ok := c.transports[addr]
	c.mu.Unlock()
	if ok {
		return <-pool, nil
	}

	fresh := make([]*transport.ClientTransport, 0, c.poolSize)
	for i := 0; i < c.poolSize; i++ {
		conn, err := dialBroker(addr)
		if err != nil {
			for _, t := range fresh {
				t.Close()
			}
			return nil, err
		}
		fresh = append(fresh, transport.NewClientTransport(conn))
	}

	c.mu.Lock()
	pool, ok = c.transports[addr]
	if !ok {
		pool = make(chan *transport.ClientTransport, c.poolSize)
		c.transports[addr] = pool
	}
	c.mu.Unlock()

	if ok {
		// Lost the race to a concurrent first caller; its pool is already live.
		for _, t := range fresh {
			t.Close()
		}
	} else {
		for _, t := range fresh {
			pool <- t
		}
		c.logger.Debug().Str("broker", addr).Int("pool_size", c.poolSize).Msg("opened transport pool")
	}

	return <-pool, nil
}

// releaseTransport gives a borrowed transport back: healthy ones return to
// the pool, dead ones are replaced.
func (c *Client) releaseTransport(addr string, t *transport.ClientTransport) {
	if t.Alive() {
		c.putTransport(addr, t)
		return
	}
	c.discardTransport(addr, t)
}

// putTransport returns a transport to its pool. The entry may have been
// dropped by discardTransport in the meantime; then the transport is closed
// instead of sent to a channel nobody reads.
func (c *Client) putTransport(addr string, t *transport.ClientTransport) {
	c.mu.Lock()
	pool, ok := c.transports[addr]
	c.mu.Unlock()
	if !ok {
		t.Close()
		return
	}
	pool <- t
}

// discardTransport closes a dead transport and dials a replacement to keep
// the pool at size. When the broker is unreachable the whole pool entry is
// dropped, so the next Call refills it from scratch instead of draining a
// shrinking pool.
func (c *Client) discardTransport(addr string, t *transport.ClientTransport) {
	t.Close()

	conn, err := dialBroker(addr)
	if err == nil {
		c.putTransport(addr, transport.NewClientTransport(conn))
		return
	}

	c.mu.Lock()
	pool, ok := c.transports[addr]
	if ok {
		delete(c.transports, addr)
	}
	c.mu.Unlock()
	if !ok {
		return
	}
	c.logger.Debug().Str("broker", addr).Msg("dropped transport pool for unreachable broker")
	for {
		select {
		case idle := <-pool:
			idle.Close()
		default:
			return
		}
	}
}

// dialBroker retries transient dial failures with exponential backoff; a
// broker restarting or still binding its port comes up within a few tries.
func dialBroker(addr string) (net.Conn, error) {
	var err error
	for i := 0; i < dialAttempts; i++ {
		var conn net.Conn
		conn, err = net.Dial("tcp", addr)
		if err == nil {
			return conn, nil
		}
		time.Sleep(dialBaseDelay * time.Duration(1<<i))
	}
	return nil, fmt.Errorf("dial broker %s: %w", addr, err)
}

// Close tears down every pooled transport.
func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for addr, pool := range c.transports {
		close(pool)
		for t := range pool {
			t.Close()
		}
		delete(c.transports, addr)
	}
}
