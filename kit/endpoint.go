// Package kit holds the small transport-independent pieces shared by the
// HTTP and MCP surfaces: the Endpoint abstraction, middleware chaining,
// and request-scoped context values.
package kit

import "context"

// Endpoint is a transport-independent operation: decoded request in,
// response out. HTTP handlers and MCP tools both wrap Endpoints.
type Endpoint func(ctx context.Context, req any) (any, error)

// Middleware wraps an Endpoint.
type Middleware func(Endpoint) Endpoint

// Chain composes middlewares so the first argument is outermost.
func Chain(mws ...Middleware) Middleware {
	return func(next Endpoint) Endpoint {
		for i := len(mws) - 1; i >= 0; i-- {
			next = mws[i](next)
		}
		return next
	}
}
