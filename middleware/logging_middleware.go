package middleware

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"mini-kafka/protocol"
)

// Logging emits one structured log line per handled request with the api
// key, correlation id and processing duration.
func Logging(logger zerolog.Logger) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, req *protocol.RequestHeader) (*protocol.ResponseHeader, error) {
			start := time.Now()
			resp, err := next(ctx, req)

			evt := logger.Info()
			if err != nil {
				evt = logger.Error().Err(err)
			}
			evt.Uint16("api_key", req.APIKey).
				Uint16("api_version", req.APIVersion).
				Int32("correlation_id", req.CorrelationID).
				Dur("duration", time.Since(start)).
				Msg("handled request")

			return resp, err
		}
	}
}
