package rpc

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestExportImportRoundTrip(t *testing.T) {
	state := ServerState{
		Timestamp: time.Unix(1000, 0).UTC(),
		PID:       1234,
		Version:   ProtocolVersion,
		Connections: []ConnectionState{
			{ID: "c1", EstablishedAt: time.Unix(900, 0).UTC(), RequestsProcessed: 7, PendingRequestIDs: []uint64{1, 2}},
		},
		Streams: []StreamState{{ID: "s1", NextSequence: 3, ConnectionID: "c1"}},
		Config:  []byte(`{"workers":4}`),
	}

	data, err := Export(state)
	require.NoError(t, err)

	got, err := Import(data)
	require.NoError(t, err)
	require.Equal(t, state.PID, got.PID)
	require.Equal(t, state.Connections, got.Connections)
	require.Equal(t, state.Streams, got.Streams)
}

func TestImportRejectsVersionMismatch(t *testing.T) {
	data, err := Export(ServerState{Version: ProtocolVersion + 1})
	require.NoError(t, err)

	_, err = Import(data)
	require.Error(t, err)
}
