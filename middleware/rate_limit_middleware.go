package middleware

import (
	"context"
	"fmt"

	"golang.org/x/time/rate"

	"mini-kafka/protocol"
)

// RateLimit applies token-bucket backpressure to request processing.
// The wire protocol has no error responses at this level, so an exhausted
// bucket blocks the connection's read loop until a token is available
// instead of rejecting the request. A cancelled context is fatal to the
// connection.
func RateLimit(r float64, burst int) Middleware {
	limiter := rate.NewLimiter(rate.Limit(r), burst)
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, req *protocol.RequestHeader) (*protocol.ResponseHeader, error) {
			if err := limiter.Wait(ctx); err != nil {
				return nil, fmt.Errorf("rate limit: %w", err)
			}
			return next(ctx, req)
		}
	}
}
