package middleware

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"mini-kafka/protocol"
)

// echoHandler mirrors the broker's business handler: copy the correlation id,
// leave the message size at 0.
func echoHandler(ctx context.Context, req *protocol.RequestHeader) (*protocol.ResponseHeader, error) {
	return &protocol.ResponseHeader{CorrelationID: req.CorrelationID}, nil
}

func slowHandler(ctx context.Context, req *protocol.RequestHeader) (*protocol.ResponseHeader, error) {
	time.Sleep(200 * time.Millisecond)
	return &protocol.ResponseHeader{CorrelationID: req.CorrelationID}, nil
}

func TestLogging(t *testing.T) {
	handler := Logging(zerolog.Nop())(echoHandler)

	req := &protocol.RequestHeader{APIKey: protocol.APIKeyAPIVersions, CorrelationID: 7}
	resp, err := handler(context.Background(), req)
	if err != nil {
		t.Fatalf("expect no error, got %v", err)
	}
	if resp.CorrelationID != 7 {
		t.Fatalf("expect correlation id 7, got %d", resp.CorrelationID)
	}
}

func TestTimeoutPass(t *testing.T) {
	handler := Timeout(500 * time.Millisecond)(echoHandler)

	resp, err := handler(context.Background(), &protocol.RequestHeader{CorrelationID: 1})
	if err != nil {
		t.Fatalf("expect no error, got %v", err)
	}
	if resp == nil {
		t.Fatal("expect non-nil response")
	}
}

func TestTimeoutExceeded(t *testing.T) {
	handler := Timeout(50 * time.Millisecond)(slowHandler)

	resp, err := handler(context.Background(), &protocol.RequestHeader{CorrelationID: 1})
	if err == nil {
		t.Fatal("expect timeout error, got nil")
	}
	if resp != nil {
		t.Fatalf("expect nil response on timeout, got %+v", resp)
	}
}

func TestRateLimitDelays(t *testing.T) {
	// rate=20/s, burst=1 → the second request waits ~50ms for a token
	handler := RateLimit(20, 1)(echoHandler)
	req := &protocol.RequestHeader{CorrelationID: 1}

	if _, err := handler(context.Background(), req); err != nil {
		t.Fatalf("first request should pass: %v", err)
	}

	start := time.Now()
	if _, err := handler(context.Background(), req); err != nil {
		t.Fatalf("second request should pass after waiting: %v", err)
	}
	if elapsed := time.Since(start); elapsed < 30*time.Millisecond {
		t.Fatalf("second request should have been delayed, took %s", elapsed)
	}
}

func TestRateLimitCancelled(t *testing.T) {
	handler := RateLimit(1, 1)(echoHandler)
	req := &protocol.RequestHeader{CorrelationID: 1}

	// Drain the burst, then cancel while waiting for the next token.
	if _, err := handler(context.Background(), req); err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, err := handler(ctx, req); err == nil {
		t.Fatal("expect error when context expires while rate limited")
	}
}

func TestChain(t *testing.T) {
	chained := Chain(Logging(zerolog.Nop()), Timeout(500*time.Millisecond))
	handler := chained(echoHandler)

	resp, err := handler(context.Background(), &protocol.RequestHeader{CorrelationID: 42})
	if err != nil {
		t.Fatalf("expect no error, got %v", err)
	}
	if resp.CorrelationID != 42 {
		t.Fatalf("expect correlation id 42, got %d", resp.CorrelationID)
	}
}
