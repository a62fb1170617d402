package rpc

import (
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/require"
)

func baseRequest(tool string) *Request {
	return &Request{Version: ProtocolVersion, ID: 1, Tool: tool, TimeoutMs: 1000}
}

func TestValidateRejectsBadVersion(t *testing.T) {
	req := baseRequest("echo")
	req.Version = 99
	err := Validate(req)
	require.Error(t, err)
	require.Equal(t, CodeInvalidRequest, err.(*RPCError).Code)
}

func TestValidateRejectsEmptyTool(t *testing.T) {
	req := baseRequest("")
	err := Validate(req)
	require.Error(t, err)
}

func TestValidateRejectsOversizeMaxSize(t *testing.T) {
	req := baseRequest("echo")
	req.MaxSize = MaxFrameBytes + 1
	err := Validate(req)
	require.Error(t, err)
	require.Equal(t, CodeInvalidParams, err.(*RPCError).Code)
}

func TestValidateRejectsTimeoutOutOfRange(t *testing.T) {
	req := baseRequest("echo")
	req.TimeoutMs = maxTimeoutMs + 1
	err := Validate(req)
	require.Error(t, err)
}

func TestRouterDispatchesRegisteredTool(t *testing.T) {
	reg := NewToolRegistry()
	reg.Register("echo", func(ctx context.Context, req *Request) (any, error) {
		return req.Params, nil
	})
	r := NewRouter(reg)
	req := baseRequest("echo")
	req.Params = "hello"

	result, err := r.Dispatch(context.Background(), req)
	require.NoError(t, err)
	require.Equal(t, "hello", result)
}

func TestRouterUnknownToolReturnsNotFound(t *testing.T) {
	r := NewRouter(NewToolRegistry())
	_, err := r.Dispatch(context.Background(), baseRequest("missing"))
	require.Error(t, err)
	require.Equal(t, CodeNotFound, err.(*RPCError).Code)
}

func TestAuthMiddlewareRejectsUnknownToken(t *testing.T) {
	reg := NewToolRegistry()
	reg.Register("echo", func(ctx context.Context, req *Request) (any, error) { return nil, nil })
	auth := AuthMiddleware{AcceptedTokens: map[string]bool{"good": true}}
	r := NewRouter(reg, auth)

	req := baseRequest("echo")
	req.Auth = "bad"
	_, err := r.Dispatch(context.Background(), req)
	require.Error(t, err)
	require.Equal(t, CodeUnauthorized, err.(*RPCError).Code)

	req.Auth = "good"
	_, err = r.Dispatch(context.Background(), req)
	require.NoError(t, err)
}

func TestAuthMiddlewareAllowsAllWhenEmpty(t *testing.T) {
	auth := AuthMiddleware{}
	require.NoError(t, auth.BeforeRequest(context.Background(), baseRequest("echo")))
}

func TestRateLimitMiddlewareBlocksBurstOverflow(t *testing.T) {
	reg := NewToolRegistry()
	reg.Register("echo", func(ctx context.Context, req *Request) (any, error) { return nil, nil })
	rl := NewRateLimitMiddleware(1)
	r := NewRouter(reg, rl)

	req := baseRequest("echo")
	_, err := r.Dispatch(context.Background(), req)
	require.NoError(t, err)

	_, err = r.Dispatch(context.Background(), req)
	require.Error(t, err)
	require.Equal(t, CodeRateLimited, err.(*RPCError).Code)
}

func TestLoggingMiddlewareNoopOnRequestShape(t *testing.T) {
	lm := LoggingMiddleware{Logger: slog.Default()}
	req := baseRequest("echo")
	require.NoError(t, lm.BeforeRequest(context.Background(), req))
	lm.AfterRequest(context.Background(), req, "ok", nil)
}
