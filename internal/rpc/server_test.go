package rpc

import (
	"bytes"
	"context"
	"log/slog"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/vmihailenco/msgpack/v5"
)

func echoServer(t *testing.T, handler Handler) net.Conn {
	t.Helper()
	reg := NewToolRegistry()
	reg.Register("echo", handler)
	s := NewServer(ServerConfig{MaxFrameBytes: 1 << 20}, NewRouter(reg), nil, nil, slog.Default())

	client, server := net.Pipe()
	go s.handleConn(context.Background(), server)
	t.Cleanup(func() { client.Close() })
	return client
}

func TestHandleConnDispatchesAndResponds(t *testing.T) {
	client := echoServer(t, func(ctx context.Context, req *Request) (any, error) {
		return req.Params, nil
	})

	req := Request{Version: ProtocolVersion, ID: 7, Tool: "echo", Params: "hi"}
	require.NoError(t, WriteFrame(client, &req))

	var resp Response
	require.NoError(t, ReadFrame(client, 0, &resp))
	require.Equal(t, uint64(7), resp.ID)
	require.Equal(t, "hi", resp.Result)
	require.Nil(t, resp.Error)
}

func TestHandleConnReportsHandlerErrors(t *testing.T) {
	client := echoServer(t, func(ctx context.Context, req *Request) (any, error) {
		return nil, &RPCError{Code: CodeNotFound, Message: "nope"}
	})

	require.NoError(t, WriteFrame(client, &Request{Version: ProtocolVersion, ID: 1, Tool: "echo"}))

	var resp Response
	require.NoError(t, ReadFrame(client, 0, &resp))
	require.NotNil(t, resp.Error)
	require.Equal(t, CodeNotFound, resp.Error.Code)
}

func TestHandleConnStreamsWhenRequested(t *testing.T) {
	payload := strings.Repeat("x", 4096)
	client := echoServer(t, func(ctx context.Context, req *Request) (any, error) {
		return payload, nil
	})

	require.NoError(t, WriteFrame(client, &Request{Version: ProtocolVersion, ID: 1, Tool: "echo", Stream: true}))

	require.NoError(t, client.SetReadDeadline(time.Now().Add(5*time.Second)))
	var resp Response
	require.NoError(t, ReadFrame(client, 0, &resp))
	require.NotNil(t, resp.StreamID)
	require.Nil(t, resp.Result)

	var buf bytes.Buffer
	for {
		var chunk StreamChunk
		require.NoError(t, ReadFrame(client, 0, &chunk))
		data, err := DecompressChunk(chunk)
		require.NoError(t, err)
		buf.Write(data)
		if chunk.IsFinal {
			break
		}
	}

	var out string
	require.NoError(t, msgpack.Unmarshal(buf.Bytes(), &out))
	require.Equal(t, payload, out)
}
