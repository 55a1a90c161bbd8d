package kit

import (
	"context"
	"log/slog"
	"time"
)

// LogCalls returns middleware that logs every invocation of the wrapped
// endpoint with its operation name, transport, duration, and outcome.
// Successes log at debug level, failures at warn.
func LogCalls(logger *slog.Logger, op string) Middleware {
	if logger == nil {
		logger = slog.Default()
	}
	return func(next Endpoint) Endpoint {
		return func(ctx context.Context, req any) (any, error) {
			start := time.Now()
			resp, err := next(ctx, req)
			if err != nil {
				logger.Warn("operation failed",
					"op", op,
					"transport", GetTransport(ctx),
					"duration", time.Since(start),
					"error", err)
				return nil, err
			}
			logger.Debug("operation complete",
				"op", op,
				"transport", GetTransport(ctx),
				"duration", time.Since(start))
			return resp, nil
		}
	}
}
