package rpc

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/vmihailenco/msgpack/v5"
)

// ServerConfig configures Server's listeners and connection handling.
type ServerConfig struct {
	UnixSocketPath    string
	TCPAddr           string
	MaxFrameBytes     uint32
	RequestTimeout    time.Duration
	MaxStreams        int
	StreamCompression Compression
}

// streamChunkBytes is the payload size of one outgoing stream chunk.
const streamChunkBytes = 256 * 1024

// Server accepts connections over a Unix domain socket (primary) and an
// optional TCP listener, dispatching each framed Request through Router.
// Dispatch runs on the Executor's worker pool when one is configured, and
// results larger than StreamChunkThresholdBytes (or requests that asked to
// stream) are delivered as ordered stream chunks.
type Server struct {
	cfg      ServerConfig
	router   *Router
	executor *Executor
	monitor  *Monitor
	streams  *StreamManager
	logger   *slog.Logger

	listeners []net.Listener

	mu          sync.Mutex
	accepting   bool
	connections map[string]*connState
}

type connState struct {
	id                string
	establishedAt     time.Time
	requestsProcessed uint64
	lastActivity      time.Time
}

// NewServer constructs a Server. Call ListenAndServe to start accepting.
// A nil executor dispatches inline on the per-request goroutine.
func NewServer(cfg ServerConfig, router *Router, executor *Executor, monitor *Monitor, logger *slog.Logger) *Server {
	compression := cfg.StreamCompression
	if compression == "" {
		compression = CompressionZstd
	}
	return &Server{
		cfg:         cfg,
		router:      router,
		executor:    executor,
		monitor:     monitor,
		streams:     NewStreamManager(cfg.MaxStreams, compression),
		logger:      logger,
		connections: make(map[string]*connState),
	}
}

// ListenAndServe opens the configured listeners and serves connections
// until ctx is cancelled.
func (s *Server) ListenAndServe(ctx context.Context) error {
	if s.cfg.UnixSocketPath == "" {
		return fmt.Errorf("rpc: unix socket path is required")
	}

	unixLn, err := net.Listen("unix", s.cfg.UnixSocketPath)
	if err != nil {
		return fmt.Errorf("rpc: listen unix %s: %w", s.cfg.UnixSocketPath, err)
	}
	s.listeners = append(s.listeners, unixLn)

	if s.cfg.TCPAddr != "" {
		tcpLn, err := net.Listen("tcp", s.cfg.TCPAddr)
		if err != nil {
			return fmt.Errorf("rpc: listen tcp %s: %w", s.cfg.TCPAddr, err)
		}
		s.listeners = append(s.listeners, tcpLn)
	}

	s.mu.Lock()
	s.accepting = true
	s.mu.Unlock()

	var wg sync.WaitGroup
	for _, ln := range s.listeners {
		wg.Add(1)
		go func(ln net.Listener) {
			defer wg.Done()
			s.acceptLoop(ctx, ln)
		}(ln)
	}

	go func() {
		<-ctx.Done()
		s.StopAccepting()
		for _, ln := range s.listeners {
			ln.Close()
		}
	}()

	s.logger.Info("rpc server listening", "unix", s.cfg.UnixSocketPath, "tcp", s.cfg.TCPAddr)
	wg.Wait()
	return nil
}

func (s *Server) acceptLoop(ctx context.Context, ln net.Listener) {
	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return
			}
			s.logger.Warn("rpc accept error", "error", err)
			continue
		}

		if !s.isAccepting() {
			conn.Close()
			continue
		}

		if tcp, ok := conn.(*net.TCPConn); ok {
			tcp.SetNoDelay(true)
			tcp.SetKeepAlive(true)
			tcp.SetKeepAlivePeriod(30 * time.Second)
		}

		go s.handleConn(ctx, conn)
	}
}

func (s *Server) isAccepting() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.accepting
}

// handleConn serves one connection. Requests are read sequentially off the
// wire but each is dispatched in its own goroutine, so multiple requests
// identified by distinct ids may be in flight at once; responses are
// written as they complete and may therefore arrive out of order.
func (s *Server) handleConn(ctx context.Context, conn net.Conn) {
	defer conn.Close()

	id := uuid.NewString()
	state := &connState{id: id, establishedAt: time.Now(), lastActivity: time.Now()}
	s.mu.Lock()
	s.connections[id] = state
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		delete(s.connections, id)
		s.mu.Unlock()
	}()

	var writeMu sync.Mutex
	var inFlight sync.WaitGroup
	defer inFlight.Wait()

	for {
		var req Request
		if err := ReadFrame(conn, s.cfg.MaxFrameBytes, &req); err != nil {
			if !errors.Is(err, net.ErrClosed) {
				s.logger.Debug("rpc connection closed", "conn", id, "error", err)
			}
			return
		}

		inFlight.Add(1)
		go func(req Request) {
			defer inFlight.Done()

			start := time.Now()
			timeout := s.cfg.RequestTimeout
			if req.TimeoutMs > 0 {
				timeout = time.Duration(req.TimeoutMs) * time.Millisecond
			}

			var result any
			var err error
			if s.executor != nil {
				result, err = s.executor.Submit(ctx, timeout, func(runCtx context.Context) (any, error) {
					return s.router.Dispatch(runCtx, &req)
				})
			} else {
				runCtx := ctx
				var cancel context.CancelFunc
				if timeout > 0 {
					runCtx, cancel = context.WithTimeout(ctx, timeout)
				}
				result, err = s.router.Dispatch(runCtx, &req)
				if cancel != nil {
					cancel()
				}
			}

			resp := Response{ID: req.ID, Metrics: &Metrics{ProcessingTimeUs: uint64(time.Since(start).Microseconds())}}

			var encoded []byte
			if err == nil && result != nil {
				if data, mErr := msgpack.Marshal(result); mErr == nil &&
					(req.Stream || len(data) > StreamChunkThresholdBytes) {
					encoded = data
				}
			}

			if err != nil {
				var rpcErr *RPCError
				if errors.As(err, &rpcErr) {
					resp.Error = rpcErr.Payload()
				} else {
					resp.Error = (&RPCError{Code: CodeInternalError, Message: err.Error()}).Payload()
				}
			} else if encoded == nil {
				resp.Result = result
			}

			if s.monitor != nil {
				s.monitor.Record(time.Since(start), err != nil)
			}

			s.mu.Lock()
			state.requestsProcessed++
			state.lastActivity = time.Now()
			s.mu.Unlock()

			if encoded != nil {
				if err := s.writeStreamed(conn, &writeMu, &resp, encoded); err != nil {
					s.logger.Debug("rpc stream response failed", "conn", id, "error", err)
				}
				return
			}
			writeMu.Lock()
			defer writeMu.Unlock()
			if err := WriteFrame(conn, &resp); err != nil {
				s.logger.Debug("rpc write response failed", "conn", id, "error", err)
			}
		}(req)
	}
}

// writeStreamed sends resp carrying a fresh stream id, then delivers encoded
// as ordered chunks on the same connection. Chunk frames interleave with
// other responses under writeMu; the client demultiplexes by stream_id.
func (s *Server) writeStreamed(conn net.Conn, writeMu *sync.Mutex, resp *Response, encoded []byte) error {
	sid, err := s.streams.Open()
	if err != nil {
		return err
	}
	ch, _ := s.streams.Chunks(sid)

	resp.StreamID = &sid
	writeMu.Lock()
	werr := WriteFrame(conn, resp)
	writeMu.Unlock()
	if werr != nil {
		s.streams.Close(sid)
		return werr
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		for chunk := range ch {
			writeMu.Lock()
			err := WriteFrame(conn, chunk)
			writeMu.Unlock()
			if err != nil {
				return
			}
		}
	}()

	for off := 0; off < len(encoded); off += streamChunkBytes {
		end := off + streamChunkBytes
		if end > len(encoded) {
			end = len(encoded)
		}
		if err := s.streams.Push(sid, encoded[off:end], end == len(encoded)); err != nil {
			s.streams.Close(sid)
			return err
		}
	}
	<-done
	return nil
}

// StopAccepting causes future Accept results to be refused.
func (s *Server) StopAccepting() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.accepting = false
}

// IsReady reports whether the server is currently accepting connections.
func (s *Server) IsReady() bool {
	return s.isAccepting()
}

// ActiveConnections returns the number of currently tracked connections.
func (s *Server) ActiveConnections() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.connections)
}

// DrainConnections waits for active connections to reach zero or for
// timeout to elapse, whichever comes first, then returns regardless.
func (s *Server) DrainConnections(timeout time.Duration) {
	deadline := time.Now().Add(timeout)
	for s.ActiveConnections() > 0 && time.Now().Before(deadline) {
		time.Sleep(20 * time.Millisecond)
	}
}

// ExportState snapshots the running server for hot-reload handoff: the
// successor process parses it with Import and resumes with the same view
// of connections, streams, metrics, and config.
func (s *Server) ExportState(config []byte) ServerState {
	var metrics Snapshot
	if s.monitor != nil {
		metrics = s.monitor.Snapshot()
	}
	return ServerState{
		Timestamp:   time.Now(),
		PID:         os.Getpid(),
		Version:     ProtocolVersion,
		Connections: s.ConnectionStates(),
		Streams:     s.streams.Snapshot(),
		Metrics:     metrics,
		Config:      config,
	}
}

// ConnectionStates snapshots every tracked connection for hot-reload
// export.
func (s *Server) ConnectionStates() []ConnectionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]ConnectionState, 0, len(s.connections))
	for _, c := range s.connections {
		out = append(out, ConnectionState{
			ID:                c.id,
			EstablishedAt:     c.establishedAt,
			RequestsProcessed: c.requestsProcessed,
			LastActivity:      c.lastActivity,
		})
	}
	return out
}
