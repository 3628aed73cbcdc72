// Package kit holds the transport-neutral endpoint shape shared by the HTTP
// and MCP surfaces, plus the request-scoped context values they set.
package kit

import "context"

// Endpoint is one operation, decoupled from its transport.
type Endpoint func(ctx context.Context, req any) (any, error)

// Middleware wraps an Endpoint.
type Middleware func(Endpoint) Endpoint

// Chain composes middlewares. The first one is the outermost.
func Chain(mws ...Middleware) Middleware {
	return func(next Endpoint) Endpoint {
		for i := len(mws) - 1; i >= 0; i-- {
			next = mws[i](next)
		}
		return next
	}
}
