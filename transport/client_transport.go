// Package transport implements the client side of a broker connection:
// correlation-id multiplexing over a single TCP stream, plus a connection
// pool.
//
// ClientTransport lets many goroutines issue requests on one connection. Each
// request is assigned a fresh correlation id, and a single background
// goroutine (recvLoop) reads response headers and routes each one to the
// caller that owns its correlation id.
//
//	goroutine-1 ──Send(corr=1)──┐
//	goroutine-2 ──Send(corr=2)──┼──→ single TCP conn ──→ broker
//	goroutine-3 ──Send(corr=3)──┘
//
//	recvLoop:  ←── response(corr=2) → pending[2] chan → goroutine-2 wakes up
package transport

import (
	"errors"
	"net"
	"sync"
	"sync/atomic"

	"mini-kafka/protocol"
)

// ErrTransportClosed reports a Send on a transport whose connection died.
var ErrTransportClosed = errors.New("transport: connection closed")

// Result carries either a decoded response header or the transport error
// that ended the connection.
type Result struct {
	Header *protocol.ResponseHeader
	Err    error
}

// ClientTransport manages one multiplexed broker connection.
type ClientTransport struct {
	conn    net.Conn
	corr    int32       // Last assigned correlation id, guarded by sending
	pending sync.Map    // map[int32]chan Result, one channel per in-flight request
	sending sync.Mutex  // Serializes header writes so requests never interleave
	dead    atomic.Bool // Set when the connection dies; dead transports never recover
}

// NewClientTransport wraps conn and starts the receive loop.
func NewClientTransport(conn net.Conn) *ClientTransport {
	t := &ClientTransport{conn: conn}
	go t.recvLoop()
	return t
}

// Send writes one request header and returns the assigned correlation id and
// the channel its response will arrive on. The channel is registered before
// the write, so the receive loop can never see a response it has no home for.
func (t *ClientTransport) Send(apiKey, apiVersion uint16) (int32, <-chan Result, error) {
	t.sending.Lock()
	defer t.sending.Unlock()

	if t.dead.Load() {
		return 0, nil, ErrTransportClosed
	}

	t.corr++
	corr := t.corr

	ch := make(chan Result, 1) // Buffered so recvLoop never blocks on delivery
	t.pending.Store(corr, ch)

	header := protocol.RequestHeader{
		APIKey:        apiKey,
		APIVersion:    apiVersion,
		CorrelationID: corr,
	}
	if err := protocol.EncodeRequest(t.conn, &header); err != nil {
		t.pending.Delete(corr)
		// A half-written header poisons the stream for every later request.
		t.dead.Store(true)
		return 0, nil, err
	}

	// recvLoop may have exited between the liveness check and the write. If it
	// already swept the pending map the error is sitting in ch; otherwise claim
	// the entry back and report the death directly.
	if t.dead.Load() {
		if _, ok := t.pending.LoadAndDelete(corr); ok {
			return 0, nil, ErrTransportClosed
		}
	}

	return corr, ch, nil
}

// recvLoop is the only reader of the connection. Responses may arrive in any
// order; the correlation id picks the waiting caller.
func (t *ClientTransport) recvLoop() {
	for {
		resp, err := protocol.DecodeResponse(t.conn)
		if err != nil {
			t.failAllPending(err)
			return
		}

		if ch, ok := t.pending.LoadAndDelete(resp.CorrelationID); ok {
			ch.(chan Result) <- Result{Header: resp}
		}
	}
}

// failAllPending delivers the connection error to every in-flight caller so
// none of them blocks forever. The dead flag is set first so Send stops
// registering new entries while the map is being swept.
func (t *ClientTransport) failAllPending(err error) {
	t.dead.Store(true)
	t.pending.Range(func(key, value any) bool {
		value.(chan Result) <- Result{Err: err}
		t.pending.Delete(key)
		return true
	})
}

// Alive reports whether the transport can still carry requests. Owners use it
// to decide between recycling and replacing a pooled transport.
func (t *ClientTransport) Alive() bool {
	return !t.dead.Load()
}

// Conn returns the underlying connection.
func (t *ClientTransport) Conn() net.Conn {
	return t.conn
}

// Close closes the connection; the receive loop then fails any in-flight
// requests and exits.
func (t *ClientTransport) Close() error {
	return t.conn.Close()
}
