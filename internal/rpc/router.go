package rpc

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"golang.org/x/time/rate"
)

// Handler implements one tool. The returned value becomes Response.Result.
type Handler func(ctx context.Context, req *Request) (any, error)

// Middleware runs around every dispatch. BeforeRequest may short-circuit
// by returning a non-nil error; AfterRequest observes the outcome.
type Middleware interface {
	BeforeRequest(ctx context.Context, req *Request) error
	AfterRequest(ctx context.Context, req *Request, result any, err error)
}

// ToolRegistry maps tool names to Handlers.
type ToolRegistry struct {
	mu       sync.RWMutex
	handlers map[string]Handler
}

// NewToolRegistry constructs an empty ToolRegistry.
func NewToolRegistry() *ToolRegistry {
	return &ToolRegistry{handlers: make(map[string]Handler)}
}

// Register adds or replaces the handler for name.
func (t *ToolRegistry) Register(name string, h Handler) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.handlers[name] = h
}

func (t *ToolRegistry) lookup(name string) (Handler, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	h, ok := t.handlers[name]
	return h, ok
}

// Router validates, runs middleware, and dispatches to the ToolRegistry.
type Router struct {
	registry    *ToolRegistry
	middlewares []Middleware
}

// NewRouter constructs a Router over registry with middlewares run in
// order on both before_request and after_request.
func NewRouter(registry *ToolRegistry, middlewares ...Middleware) *Router {
	return &Router{registry: registry, middlewares: middlewares}
}

const maxTimeoutMs = 60_000

// Validate checks the structural preconditions for dispatch: non-empty
// tool name, max_size within bound, timeout_ms either unset (0) or within
// (0, 60000], and a matching protocol version.
func Validate(req *Request) error {
	if req.Version != ProtocolVersion {
		return &RPCError{Code: CodeInvalidRequest, Message: "protocol version mismatch"}
	}
	if req.Tool == "" {
		return &RPCError{Code: CodeInvalidRequest, Message: "tool name must not be empty"}
	}
	if req.MaxSize > MaxFrameBytes {
		return &RPCError{Code: CodeInvalidParams, Message: "max_size exceeds limit"}
	}
	if req.TimeoutMs != 0 && req.TimeoutMs > maxTimeoutMs {
		return &RPCError{Code: CodeInvalidParams, Message: "timeout_ms out of range"}
	}
	return nil
}

// Dispatch validates req, runs before_request middleware, invokes the
// registered handler, then runs after_request middleware.
func (r *Router) Dispatch(ctx context.Context, req *Request) (any, error) {
	if err := Validate(req); err != nil {
		return nil, err
	}

	for _, mw := range r.middlewares {
		if err := mw.BeforeRequest(ctx, req); err != nil {
			r.runAfter(ctx, req, nil, err)
			return nil, err
		}
	}

	handler, ok := r.registry.lookup(req.Tool)
	if !ok {
		err := &RPCError{Code: CodeNotFound, Message: fmt.Sprintf("unknown tool: %s", req.Tool)}
		r.runAfter(ctx, req, nil, err)
		return nil, err
	}

	result, err := handler(ctx, req)
	r.runAfter(ctx, req, result, err)
	return result, err
}

func (r *Router) runAfter(ctx context.Context, req *Request, result any, err error) {
	for _, mw := range r.middlewares {
		mw.AfterRequest(ctx, req, result, err)
	}
}

// LoggingMiddleware logs request/response pairs. before_request is a
// no-op on request shape.
type LoggingMiddleware struct {
	Logger *slog.Logger
}

func (m LoggingMiddleware) BeforeRequest(ctx context.Context, req *Request) error { return nil }

func (m LoggingMiddleware) AfterRequest(ctx context.Context, req *Request, result any, err error) {
	if err != nil {
		m.Logger.Warn("rpc request failed", "tool", req.Tool, "id", req.ID, "error", err)
		return
	}
	m.Logger.Debug("rpc request completed", "tool", req.Tool, "id", req.ID)
}

// AuthMiddleware rejects requests whose auth token is not in the accepted
// set, when the set is non-empty.
type AuthMiddleware struct {
	AcceptedTokens map[string]bool
}

func (m AuthMiddleware) BeforeRequest(ctx context.Context, req *Request) error {
	if len(m.AcceptedTokens) == 0 {
		return nil
	}
	if !m.AcceptedTokens[req.Auth] {
		return &RPCError{Code: CodeUnauthorized, Message: "unauthorized"}
	}
	return nil
}

func (m AuthMiddleware) AfterRequest(ctx context.Context, req *Request, result any, err error) {}

// RateLimitMiddleware enforces a token bucket per auth token (or
// "anonymous"), sized at RequestsPerSecond with a burst of the same size.
type RateLimitMiddleware struct {
	RequestsPerSecond float64

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

// NewRateLimitMiddleware constructs a RateLimitMiddleware allowing
// requestsPerSecond sustained requests per rolling 1s window, per token.
func NewRateLimitMiddleware(requestsPerSecond float64) *RateLimitMiddleware {
	return &RateLimitMiddleware{
		RequestsPerSecond: requestsPerSecond,
		limiters:          make(map[string]*rate.Limiter),
	}
}

func (m *RateLimitMiddleware) limiterFor(token string) *rate.Limiter {
	if token == "" {
		token = "anonymous"
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.limiters[token]
	if !ok {
		l = rate.NewLimiter(rate.Limit(m.RequestsPerSecond), int(m.RequestsPerSecond))
		m.limiters[token] = l
	}
	return l
}

func (m *RateLimitMiddleware) BeforeRequest(ctx context.Context, req *Request) error {
	if !m.limiterFor(req.Auth).Allow() {
		return &RPCError{Code: CodeRateLimited, Message: "rate limited"}
	}
	return nil
}

func (m *RateLimitMiddleware) AfterRequest(ctx context.Context, req *Request, result any, err error) {
}
