package middleware

import (
	"context"
	"fmt"
	"time"

	"mini-kafka/protocol"
)

// Timeout bounds handler execution. The current business handler is a pure
// header echo, but middlewares below this one (rate limiting in particular)
// can block, and the bound keeps one stuck request from hanging its
// connection forever.
func Timeout(timeout time.Duration) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, req *protocol.RequestHeader) (*protocol.ResponseHeader, error) {
			ctx, cancel := context.WithTimeout(ctx, timeout)
			defer cancel()

			type result struct {
				resp *protocol.ResponseHeader
				err  error
			}
			done := make(chan result, 1)
			go func() {
				resp, err := next(ctx, req)
				done <- result{resp, err}
			}()

			select {
			case r := <-done:
				return r.resp, r.err
			case <-ctx.Done():
				return nil, fmt.Errorf("handler timed out after %s", timeout)
			}
		}
	}
}
