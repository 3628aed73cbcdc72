package kit

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"time"
)

// Logging logs every call of the named endpoint with its duration and the
// request-scoped values set by the transport.
func Logging(logger *slog.Logger, name string) Middleware {
	return func(next Endpoint) Endpoint {
		return func(ctx context.Context, req any) (any, error) {
			start := time.Now()
			resp, err := next(ctx, req)
			attrs := []any{
				"endpoint", name,
				"transport", GetTransport(ctx),
				"duration_ms", time.Since(start).Milliseconds(),
			}
			if addr := GetRemoteAddr(ctx); addr != "" {
				attrs = append(attrs, "remote_addr", addr)
			}
			if err != nil {
				logger.WarnContext(ctx, "endpoint failed", append(attrs, "error", err)...)
			} else {
				logger.DebugContext(ctx, "endpoint ok", attrs...)
			}
			return resp, err
		}
	}
}

// Recovery turns a panic in next into an error.
func Recovery(logger *slog.Logger) Middleware {
	return func(next Endpoint) Endpoint {
		return func(ctx context.Context, req any) (resp any, err error) {
			defer func() {
				if r := recover(); r != nil {
					logger.ErrorContext(ctx, "endpoint panic recovered",
						"panic", r, "stack", string(debug.Stack()))
					resp, err = nil, fmt.Errorf("kit: endpoint panicked: %v", r)
				}
			}()
			return next(ctx, req)
		}
	}
}
