package rpc

import (
	"bytes"
	"fmt"
	"io"
	"sync"

	"github.com/google/uuid"
	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// StreamChunkThresholdBytes is the result size above which a Response is
// sent as a stream instead of inline.
const StreamChunkThresholdBytes = 1024 * 1024

// StreamCompressionMinBytes is the chunk payload size above which
// compression is applied.
const StreamCompressionMinBytes = 1024

// DefaultMaxStreams bounds concurrent open streams per StreamManager; a
// Server keeps one StreamManager shared by all its connections.
const DefaultMaxStreams = 10

// ErrTooManyStreams is returned when opening a stream would exceed
// MaxStreams.
var ErrTooManyStreams = &RPCError{Code: CodeStreamLimit, Message: "too many concurrent streams"}

// outgoingStream buffers chunks produced by a server-side stream writer
// for a single StreamID, to be drained in sequence order.
type outgoingStream struct {
	id       uuid.UUID
	chunks   chan StreamChunk
	sequence uint64
}

// StreamManager tracks open streams, enforcing MaxStreams and performing
// chunk compression.
type StreamManager struct {
	maxStreams  int
	compression Compression

	mu      sync.Mutex
	streams map[uuid.UUID]*outgoingStream
}

// NewStreamManager constructs a StreamManager capped at maxStreams
// concurrent streams, compressing chunks with the given algorithm.
func NewStreamManager(maxStreams int, compression Compression) *StreamManager {
	if maxStreams <= 0 {
		maxStreams = DefaultMaxStreams
	}
	return &StreamManager{
		maxStreams:  maxStreams,
		compression: compression,
		streams:     make(map[uuid.UUID]*outgoingStream),
	}
}

// Open begins a new stream, returning its ID, or ErrTooManyStreams if
// MaxStreams is already reached.
func (m *StreamManager) Open() (uuid.UUID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.streams) >= m.maxStreams {
		return uuid.UUID{}, ErrTooManyStreams
	}
	id := uuid.New()
	m.streams[id] = &outgoingStream{id: id, chunks: make(chan StreamChunk, 16)}
	return id, nil
}

// Push compresses data when it is large enough and sends one StreamChunk
// for the stream. isFinal closes the stream after this chunk is sent.
func (m *StreamManager) Push(id uuid.UUID, data []byte, isFinal bool) error {
	m.mu.Lock()
	s, ok := m.streams[id]
	if !ok {
		m.mu.Unlock()
		return fmt.Errorf("rpc: unknown stream %s", id)
	}
	seq := s.sequence
	s.sequence++
	m.mu.Unlock()

	compression := CompressionNone
	payload := data
	if len(data) >= StreamCompressionMinBytes && m.compression != CompressionNone {
		compressed, err := compressChunk(m.compression, data)
		if err == nil && len(compressed) < len(data) {
			payload = compressed
			compression = m.compression
		}
	}

	chunk := StreamChunk{StreamID: id, Sequence: seq, Data: payload, IsFinal: isFinal, Compression: compression}

	// Blocks when the reader lags; backpressure on stream creation is
	// enforced by Open's max-streams cap.
	s.chunks <- chunk

	if isFinal {
		m.Close(id)
	}
	return nil
}

// Chunks returns the channel a reader drains for stream id's chunks.
func (m *StreamManager) Chunks(id uuid.UUID) (<-chan StreamChunk, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.streams[id]
	if !ok {
		return nil, false
	}
	return s.chunks, true
}

// Close removes id from the open-stream set and closes its chunk channel.
func (m *StreamManager) Close(id uuid.UUID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.streams[id]; ok {
		close(s.chunks)
		delete(m.streams, id)
	}
}

// Snapshot lists the open-stream table for hot-reload export.
func (m *StreamManager) Snapshot() []StreamState {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]StreamState, 0, len(m.streams))
	for id, s := range m.streams {
		out = append(out, StreamState{ID: id.String(), NextSequence: s.sequence})
	}
	return out
}

// OpenCount reports the number of currently open streams.
func (m *StreamManager) OpenCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.streams)
}

func compressChunk(compression Compression, data []byte) ([]byte, error) {
	var buf bytes.Buffer
	switch compression {
	case CompressionLZ4:
		w := lz4.NewWriter(&buf)
		if _, err := w.Write(data); err != nil {
			return nil, err
		}
		if err := w.Close(); err != nil {
			return nil, err
		}
	case CompressionZstd:
		w, err := zstd.NewWriter(&buf)
		if err != nil {
			return nil, err
		}
		if _, err := w.Write(data); err != nil {
			return nil, err
		}
		if err := w.Close(); err != nil {
			return nil, err
		}
	default:
		return data, nil
	}
	return buf.Bytes(), nil
}

// DecompressChunk reverses compressChunk for a received StreamChunk.
func DecompressChunk(chunk StreamChunk) ([]byte, error) {
	switch chunk.Compression {
	case "", CompressionNone:
		return chunk.Data, nil
	case CompressionLZ4:
		r := lz4.NewReader(bytes.NewReader(chunk.Data))
		return io.ReadAll(r)
	case CompressionZstd:
		r, err := zstd.NewReader(bytes.NewReader(chunk.Data))
		if err != nil {
			return nil, err
		}
		defer r.Close()
		return io.ReadAll(r)
	default:
		return nil, fmt.Errorf("rpc: unknown stream compression %q", chunk.Compression)
	}
}

// Reassemble drains ch in sequence order, decompressing and
// concatenating chunk payloads until the final chunk arrives.
func Reassemble(ch <-chan StreamChunk) ([]byte, error) {
	var buf bytes.Buffer
	expected := uint64(0)
	for chunk := range ch {
		if chunk.Sequence != expected {
			return nil, fmt.Errorf("rpc: out-of-order stream chunk: want %d got %d", expected, chunk.Sequence)
		}
		expected++
		data, err := DecompressChunk(chunk)
		if err != nil {
			return nil, err
		}
		buf.Write(data)
		if chunk.IsFinal {
			break
		}
	}
	return buf.Bytes(), nil
}
