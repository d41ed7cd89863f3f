// Package middleware provides the handler chain wrapped around the broker's
// request processing.
//
// A handler maps one decoded request header to the response header that will
// be written back. A non-nil error is fatal to the connection the request
// arrived on: the broker logs it and abandons the connection without writing
// a partial response.
package middleware

import (
	"context"

	"mini-kafka/protocol"
)

type HandlerFunc func(ctx context.Context, req *protocol.RequestHeader) (*protocol.ResponseHeader, error)

type Middleware func(next HandlerFunc) HandlerFunc

// Chain composes middlewares into one. Chain(A, B, C)(h) runs A.before →
// B.before → C.before → h → C.after → B.after → A.after.
func Chain(middlewares ...Middleware) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		for i := len(middlewares) - 1; i >= 0; i-- {
			next = middlewares[i](next)
		}
		return next
	}
}
