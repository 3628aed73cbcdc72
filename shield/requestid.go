package shield

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/hazyhaar/docdiff/idgen"
	"github.com/hazyhaar/docdiff/kit"
)

// RequestIDHeader carries the request id back to the client.
const RequestIDHeader = "X-Request-ID"

// RequestID mints a request id for each request and injects it into the
// context (kit.RequestIDKey), the response headers, and a per-request
// logger stored under LoggerKey. The transport and remote address are
// recorded as well.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := idgen.New()

		ctx := kit.WithRequestID(r.Context(), id)
		ctx = kit.WithTransport(ctx, "http")
		ctx = kit.WithRemoteAddr(ctx, r.RemoteAddr)
		w.Header().Set(RequestIDHeader, id)

		logger := slog.Default().With(
			"request_id", id,
			"method", r.Method,
			"path", r.URL.Path,
			"remote_addr", r.RemoteAddr,
		)
		ctx = context.WithValue(ctx, LoggerKey, logger)
		logger.Debug("request")

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
