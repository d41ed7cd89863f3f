// Package broker implements the TCP server side of mini-kafka: the accept
// loop, the per-connection request/response cycle, broker registration, and
// graceful shutdown.
//
// Connection lifecycle:
//
//	Accept conn → handleConn (one goroutine per connection)
//	  → loop: protocol.DecodeRequest → middleware chain → echo handler
//	          → protocol.EncodeResponse (+flush) → next request
//	  → any decode/handler/encode failure abandons the connection
//
// Requests on one connection are handled strictly sequentially: a request is
// fully answered before the next header is read. Concurrency comes from
// handling many connections at once, not from pipelining within one.
package broker

import (
	"bufio"
	"context"
	"errors"
	"io"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"mini-kafka/middleware"
	"mini-kafka/protocol"
	"mini-kafka/registry"
)

// Server is the broker server. Connections share nothing but the listener,
// so per-connection state needs no locking.
type Server struct {
	logger      zerolog.Logger
	listener    net.Listener
	listenerMu  sync.Mutex // Guards listener for Addr() while Serve runs
	wg          sync.WaitGroup
	conns       map[net.Conn]struct{} // Open connections, closed on Shutdown
	connsMu     sync.Mutex
	shutdown    atomic.Bool // Set during Shutdown to suppress the Accept error
	middlewares []middleware.Middleware
	handler     middleware.HandlerFunc
	registry    registry.Registry // Broker registry, nil when running standalone
	cluster     string
	nodeID      int32
	advertise   string // Address registered for clients, differs from the listen address
	ctx         context.Context
	cancel      context.CancelFunc
}

// NewServer creates a broker server with no middlewares and the default
// cluster name.
func NewServer(logger zerolog.Logger) *Server {
	return &Server{
		logger:  logger,
		conns:   make(map[net.Conn]struct{}),
		cluster: registry.DefaultCluster,
	}
}

// Use registers a middleware. Middlewares run in the order they are added.
func (s *Server) Use(mw middleware.Middleware) {
	s.middlewares = append(s.middlewares, mw)
}

// SetCluster overrides the cluster name used for registration.
func (s *Server) SetCluster(name string) {
	s.cluster = name
}

// SetNodeID sets the node id registered for this broker.
func (s *Server) SetNodeID(id int32) {
	s.nodeID = id
}

// Addr returns the listener address, or nil before Serve has bound it.
// Useful with a ":0" listen address.
func (s *Server) Addr() net.Addr {
	s.listenerMu.Lock()
	defer s.listenerMu.Unlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Serve binds the listener, optionally registers the broker, and runs the
// accept loop until Shutdown. A bind failure is returned to the caller and
// is fatal to the process; per-connection errors never are.
//
// advertiseAddr is the address written to the registry (e.g.
// "127.0.0.1:9092") — the listen address alone may not be routable. reg may
// be nil to skip registration.
func (s *Server) Serve(network, address, advertiseAddr string, reg registry.Registry) error {
	// Build the middleware chain once, not per request
	s.handler = middleware.Chain(s.middlewares...)(s.echoHandler)
	s.ctx, s.cancel = context.WithCancel(context.Background())

	listener, err := net.Listen(network, address)
	if err != nil {
		return err
	}
	s.listenerMu.Lock()
	s.listener = listener
	s.listenerMu.Unlock()

	s.advertise = advertiseAddr
	if reg != nil {
		s.registry = reg
		err := reg.Register(s.cluster, registry.BrokerInstance{
			NodeID: s.nodeID,
			Addr:   advertiseAddr,
			Weight: 10,
		}, 10) // TTL 10s, KeepAlive renews until shutdown
		if err != nil {
			listener.Close()
			return err
		}
	}

	s.logger.Info().Str("addr", listener.Addr().String()).Msg("broker listening")

	for {
		conn, err := listener.Accept()
		if err != nil {
			// Shutdown closes the listener, which surfaces here as an error.
			if s.shutdown.Load() {
				return nil
			}
			return err
		}
		s.wg.Add(1)
		s.trackConn(conn)
		go s.handleConn(conn)
	}
}

// trackConn records an open connection so Shutdown can sever it.
func (s *Server) trackConn(conn net.Conn) {
	s.connsMu.Lock()
	s.conns[conn] = struct{}{}
	s.connsMu.Unlock()
}

func (s *Server) untrackConn(conn net.Conn) {
	s.connsMu.Lock()
	delete(s.conns, conn)
	s.connsMu.Unlock()
}

// handleConn runs one connection's request loop. Exactly one goroutine reads
// and writes the connection, so responses can never interleave.
func (s *Server) handleConn(conn net.Conn) {
	defer func() {
		conn.Close()
		s.untrackConn(conn)
		s.wg.Done()
	}()

	logger := s.logger.With().Str("remote", conn.RemoteAddr().String()).Logger()
	logger.Debug().Msg("accepted connection")

	// Responses go through one buffered writer; EncodeResponse flushes it so
	// the peer sees the full header before the next request is read.
	bw := bufio.NewWriter(conn)

	for {
		req, err := protocol.DecodeRequest(conn)
		if err != nil {
			// EOF at a request boundary is the peer closing normally;
			// net.ErrClosed is Shutdown severing the connection.
			if (errors.Is(err, io.EOF) && !errors.Is(err, io.ErrUnexpectedEOF)) || errors.Is(err, net.ErrClosed) {
				logger.Debug().Msg("connection closed by peer")
			} else {
				logger.Error().Err(err).Msg("failed to read request header")
			}
			return
		}

		resp, err := s.handler(s.ctx, req)
		if err != nil {
			logger.Error().Err(err).Int32("correlation_id", req.CorrelationID).Msg("handler failed")
			return
		}

		if err := protocol.EncodeResponse(bw, resp); err != nil {
			logger.Error().Err(err).Int32("correlation_id", resp.CorrelationID).Msg("failed to write response")
			return
		}
	}
}

// echoHandler is the business handler at the end of the middleware chain.
// Until the broker interprets request bodies, every response is an empty
// header echoing the request's correlation id.
func (s *Server) echoHandler(ctx context.Context, req *protocol.RequestHeader) (*protocol.ResponseHeader, error) {
	return &protocol.ResponseHeader{
		MessageSize:   0,
		CorrelationID: req.CorrelationID,
	}, nil
}

// Shutdown stops the broker:
//  1. Deregister, so clients stop routing here before the listener dies
//  2. Set the shutdown flag, then close the listener (flag first, or Serve
//     reports the Accept error as real)
//  3. Cancel the per-request context, sever open connections, and wait for
//     their handlers to drain
func (s *Server) Shutdown(timeout time.Duration) error {
	if s.registry != nil {
		if err := s.registry.Deregister(s.cluster, s.advertise); err != nil {
			s.logger.Error().Err(err).Msg("deregister failed")
		}
	}

	s.shutdown.Store(true)
	s.listenerMu.Lock()
	if s.listener != nil {
		s.listener.Close()
	}
	s.listenerMu.Unlock()
	if s.cancel != nil {
		s.cancel()
	}

	// Unblock handlers parked on reads; shutdown does not wait for idle
	// connections to hang up on their own.
	s.connsMu.Lock()
	for conn := range s.conns {
		conn.Close()
	}
	s.connsMu.Unlock()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.logger.Info().Msg("broker stopped")
		return nil
	case <-time.After(timeout):
		return errors.New("timeout waiting for open connections to finish")
	}
}
