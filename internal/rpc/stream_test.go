package rpc

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

// TestStreamReassembleInOrder sends two chunks and a finish, and expects
// the receiver to see sequences 0 and 1 and the assembled payload.
func TestStreamReassembleInOrder(t *testing.T) {
	m := NewStreamManager(DefaultMaxStreams, CompressionNone)
	id, err := m.Open()
	require.NoError(t, err)

	ch, ok := m.Chunks(id)
	require.True(t, ok)

	require.NoError(t, m.Push(id, []byte("hello "), false))
	require.NoError(t, m.Push(id, []byte("world"), true))

	data, err := Reassemble(ch)
	require.NoError(t, err)
	require.Equal(t, "hello world", string(data))
	require.Equal(t, 0, m.OpenCount())
}

func TestStreamOpenFailsAtMaxStreams(t *testing.T) {
	m := NewStreamManager(1, CompressionNone)
	_, err := m.Open()
	require.NoError(t, err)

	_, err = m.Open()
	require.Error(t, err)
	require.Equal(t, ErrTooManyStreams, err)
}

func TestStreamCompressesLargeChunksAndRoundTrips(t *testing.T) {
	m := NewStreamManager(DefaultMaxStreams, CompressionZstd)
	id, err := m.Open()
	require.NoError(t, err)
	ch, _ := m.Chunks(id)

	payload := bytes.Repeat([]byte("abcdefgh"), 1024)
	require.NoError(t, m.Push(id, payload, true))

	data, err := Reassemble(ch)
	require.NoError(t, err)
	require.True(t, bytes.Equal(payload, data))
}

func TestStreamSmallChunksStayUncompressed(t *testing.T) {
	m := NewStreamManager(DefaultMaxStreams, CompressionZstd)
	id, err := m.Open()
	require.NoError(t, err)
	ch, _ := m.Chunks(id)

	small := []byte("tiny")
	require.NoError(t, m.Push(id, small, true))

	chunk := <-ch
	require.Equal(t, CompressionNone, chunk.Compression)
	require.Equal(t, small, chunk.Data)
}

func TestReassembleDetectsOutOfOrderChunks(t *testing.T) {
	ch := make(chan StreamChunk, 2)
	id, _ := NewStreamManager(1, CompressionNone).Open()
	ch <- StreamChunk{StreamID: id, Sequence: 1, Data: []byte("b"), IsFinal: true}
	close(ch)

	_, err := Reassemble(ch)
	require.Error(t, err)
	require.True(t, strings.Contains(err.Error(), "out-of-order"))
}
