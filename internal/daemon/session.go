package daemon

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/antigravity-dev/meridian/internal/memory"
)

// Session scopes one client's Working set under a generated id. Attention
// recording and retrieval still flow through the daemon's single shared
// Retriever; a Session only bounds the lifetime of the Working set and the
// episode ids recorded while it is open.
type Session struct {
	ID         string
	CreatedAt  time.Time
	Working    *memory.Working
	EpisodeIDs []string
}

// SessionManager owns every open Session, keyed by id.
type SessionManager struct {
	mu              sync.Mutex
	sessions        map[string]*Session
	workingCapacity int
	policy          memory.WeightPolicy
	now             func() time.Time
}

// NewSessionManager constructs an empty SessionManager. Each session's
// Working set is built with capacityTokens/policy.
func NewSessionManager(capacityTokens int, policy memory.WeightPolicy, now func() time.Time) *SessionManager {
	if now == nil {
		now = time.Now
	}
	return &SessionManager{
		sessions:        make(map[string]*Session),
		workingCapacity: capacityTokens,
		policy:          policy,
		now:             now,
	}
}

// Begin allocates a new Session with a fresh Working set.
func (m *SessionManager) Begin() *Session {
	s := &Session{
		ID:        uuid.NewString(),
		CreatedAt: m.now(),
		Working:   memory.NewWorking(m.workingCapacity, m.policy),
	}
	m.mu.Lock()
	m.sessions[s.ID] = s
	m.mu.Unlock()
	return s
}

// Get returns the Session for id, or (nil, false) if unknown.
func (m *SessionManager) Get(id string) (*Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	return s, ok
}

// RecordEpisode appends episodeID to the session's episode list, which
// session.complete reports back to the client.
func (m *SessionManager) RecordEpisode(id, episodeID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok {
		return fmt.Errorf("daemon: unknown session %s", id)
	}
	s.EpisodeIDs = append(s.EpisodeIDs, episodeID)
	return nil
}

// Complete removes and returns the Session for id. The caller runs its
// consolidation pass over all stored episodes, not only the session's.
func (m *SessionManager) Complete(id string) (*Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if ok {
		delete(m.sessions, id)
	}
	return s, ok
}
