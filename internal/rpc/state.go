package rpc

import (
	"encoding/json"
	"fmt"
	"time"
)

// ConnectionState snapshots one live connection for hot-reload export.
type ConnectionState struct {
	ID                string    `json:"id"`
	EstablishedAt     time.Time `json:"established_at"`
	RequestsProcessed uint64    `json:"requests_processed"`
	LastActivity      time.Time `json:"last_activity"`
	PendingRequestIDs []uint64  `json:"pending_request_ids"`
}

// StreamState snapshots one open stream for hot-reload export.
type StreamState struct {
	ID           string `json:"id"`
	NextSequence uint64 `json:"next_sequence"`
	ConnectionID string `json:"connection_id"`
}

// ServerState is the full exportable snapshot of a running server,
// re-imported by the successor process on hot reload.
type ServerState struct {
	Timestamp   time.Time         `json:"timestamp"`
	PID         int               `json:"pid"`
	Version     uint32            `json:"version"`
	Connections []ConnectionState `json:"connections"`
	Streams     []StreamState     `json:"streams"`
	Metrics     Snapshot          `json:"metrics"`
	Config      json.RawMessage   `json:"config"`
}

// Export serializes state as JSON for handoff to a successor process.
func Export(state ServerState) ([]byte, error) {
	data, err := json.Marshal(state)
	if err != nil {
		return nil, fmt.Errorf("rpc: export server state: %w", err)
	}
	return data, nil
}

// Import parses a previously Exported ServerState, rejecting a version
// mismatch so a successor never silently adopts an incompatible snapshot.
func Import(data []byte) (ServerState, error) {
	var state ServerState
	if err := json.Unmarshal(data, &state); err != nil {
		return ServerState{}, fmt.Errorf("rpc: import server state: %w", err)
	}
	if state.Version != 0 && state.Version != ProtocolVersion {
		return ServerState{}, fmt.Errorf("rpc: import server state: version mismatch (got %d, want %d)", state.Version, ProtocolVersion)
	}
	return state, nil
}
