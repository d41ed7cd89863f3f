// Package protocol implements the Kafka-style binary header codec for mini-kafka.
//
// Every request begins with a fixed 12-byte header, all integers big-endian
// (network byte order). The receiver reads the header first; any body bytes
// that follow are not consumed by this version of the broker.
//
// Request header:
//
//	0         4    6    8         12
//	┌─────────┬────┬────┬─────────┬───────────────┐
//	│ msgSize │key │ver │ corrID  │  body ...      │
//	│  int32  │u16 │u16 │  int32  │  (ignored)     │
//	└─────────┴────┴────┴─────────┴───────────────┘
//
// Response header:
//
//	0         4         8
//	┌─────────┬─────────┐
//	│ msgSize │ corrID  │
//	│  int32  │  int32  │
//	└─────────┴─────────┘
package protocol

import (
	"encoding/binary"
	"fmt"
	"io"
)

const (
	RequestHeaderSize  = 12 // 4 (msgSize) + 2 (apiKey) + 2 (apiVersion) + 4 (corrID)
	ResponseHeaderSize = 8  // 4 (msgSize) + 4 (corrID)

	// DefaultAddr is the conventional listen address for this protocol family.
	DefaultAddr = "127.0.0.1:9092"
)

// Well-known API keys. The broker does not dispatch on them yet, but clients
// send them and the handler chain logs them.
const (
	APIKeyProduce     uint16 = 0
	APIKeyFetch       uint16 = 1
	APIKeyMetadata    uint16 = 3
	APIKeyAPIVersions uint16 = 18
)

// RequestHeader is the fixed header prefixing every client request.
// MessageSize declares the size of header (minus the size field itself) plus
// body as sent by the client; it is not validated against the bytes actually
// available on the wire.
type RequestHeader struct {
	MessageSize   int32
	APIKey        uint16
	APIVersion    uint16
	CorrelationID int32  // Client-chosen token, echoed verbatim in the response
	ClientID      string // Present in the full protocol, never populated here
	TagBuffer     []string
}

// ResponseHeader is the header of every broker response. MessageSize is
// emitted as 0 until the broker produces real response bodies.
type ResponseHeader struct {
	MessageSize   int32
	CorrelationID int32
}

// DecodeRequest reads exactly the 12-byte request header prefix from r.
// io.ReadFull guarantees all-or-nothing: a short read never yields a
// partially populated header. Body bytes after the prefix are left on r.
func DecodeRequest(r io.Reader) (*RequestHeader, error) {
	buf := make([]byte, RequestHeaderSize)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, fmt.Errorf("%w: request header: %w", ErrReadFailure, err)
	}
	return &RequestHeader{
		MessageSize:   int32(binary.BigEndian.Uint32(buf[0:4])),
		APIKey:        binary.BigEndian.Uint16(buf[4:6]),
		APIVersion:    binary.BigEndian.Uint16(buf[6:8]),
		CorrelationID: int32(binary.BigEndian.Uint32(buf[8:12])),
	}, nil
}

// EncodeRequest writes the 12-byte request header to w and flushes it if w
// is buffered. A zero MessageSize is filled in with the header size after the
// length field (8), which is correct while requests carry no body.
func EncodeRequest(w io.Writer, h *RequestHeader) error {
	size := h.MessageSize
	if size == 0 {
		size = RequestHeaderSize - 4
	}
	buf := make([]byte, RequestHeaderSize)
	binary.BigEndian.PutUint32(buf[0:4], uint32(size))
	binary.BigEndian.PutUint16(buf[4:6], h.APIKey)
	binary.BigEndian.PutUint16(buf[6:8], h.APIVersion)
	binary.BigEndian.PutUint32(buf[8:12], uint32(h.CorrelationID))
	if _, err := w.Write(buf); err != nil {
		return fmt.Errorf("%w: request header: %w", ErrWriteFailure, err)
	}
	return flush(w)
}

// DecodeResponse reads exactly the 8-byte response header from r.
func DecodeResponse(r io.Reader) (*ResponseHeader, error) {
	buf := make([]byte, ResponseHeaderSize)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, fmt.Errorf("%w: response header: %w", ErrReadFailure, err)
	}
	return &ResponseHeader{
		MessageSize:   int32(binary.BigEndian.Uint32(buf[0:4])),
		CorrelationID: int32(binary.BigEndian.Uint32(buf[4:8])),
	}, nil
}

// EncodeResponse writes the 8-byte response header to w and flushes it if w
// is buffered, so the bytes are visible to the peer before the caller
// proceeds to the next request.
func EncodeResponse(w io.Writer, h *ResponseHeader) error {
	buf := make([]byte, ResponseHeaderSize)
	binary.BigEndian.PutUint32(buf[0:4], uint32(h.MessageSize))
	binary.BigEndian.PutUint32(buf[4:8], uint32(h.CorrelationID))
	if _, err := w.Write(buf); err != nil {
		return fmt.Errorf("%w: response header: %w", ErrWriteFailure, err)
	}
	return flush(w)
}

type flusher interface {
	Flush() error
}

func flush(w io.Writer) error {
	f, ok := w.(flusher)
	if !ok {
		return nil
	}
	if err := f.Flush(); err != nil {
		return fmt.Errorf("%w: flush: %w", ErrWriteFailure, err)
	}
	return nil
}
