package memory

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/antigravity-dev/meridian/internal/kv"
)

func openTestStore(t *testing.T) *kv.Store {
	t.Helper()
	dir := t.TempDir()
	store, err := kv.Open(filepath.Join(dir, "test.db"), 1000)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func TestRecordEpisodeAndFindSimilar(t *testing.T) {
	store := openTestStore(t)
	fixed := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	e := NewEpisodic(store, func() time.Time { return fixed })

	_, err := e.RecordEpisode(TaskEpisode{ID: "1", TaskDescription: "fix the parser crash on empty file", Outcome: OutcomeSuccess})
	require.NoError(t, err)
	_, err = e.RecordEpisode(TaskEpisode{ID: "2", TaskDescription: "add a new color theme", Outcome: OutcomeSuccess})
	require.NoError(t, err)
	_, err = e.RecordEpisode(TaskEpisode{ID: "3", TaskDescription: "fix the parser crash on large file", Outcome: OutcomeFailure})
	require.NoError(t, err)

	similar, err := e.FindSimilar("fix the parser crash", 5)
	require.NoError(t, err)
	require.Len(t, similar, 1)
	require.Equal(t, "1", similar[0].ID)
}

func TestIncrementAccessPersists(t *testing.T) {
	store := openTestStore(t)
	e := NewEpisodic(store, nil)
	_, err := e.RecordEpisode(TaskEpisode{ID: "1", TaskDescription: "x", Outcome: OutcomeSuccess})
	require.NoError(t, err)

	require.NoError(t, e.IncrementAccess("1"))
	require.NoError(t, e.IncrementAccess("1"))

	all, err := e.All()
	require.NoError(t, err)
	require.Equal(t, 2, all[0].AccessCount)
}

func TestConsolidateRemovesOldLowAccessEpisodes(t *testing.T) {
	store := openTestStore(t)
	now := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)
	e := NewEpisodic(store, func() time.Time { return now })

	old := TaskEpisode{ID: "old", TaskDescription: "stale", Outcome: OutcomeSuccess, CreatedAt: now.AddDate(0, 0, -100), AccessCount: 0}
	keep := TaskEpisode{ID: "keep", TaskDescription: "stale but used", Outcome: OutcomeSuccess, CreatedAt: now.AddDate(0, 0, -100), AccessCount: 10}
	valuable := TaskEpisode{ID: "valuable", TaskDescription: "stale but high value", Outcome: OutcomeSuccess, CreatedAt: now.AddDate(0, 0, -100), PatternValue: 0.9}
	fresh := TaskEpisode{ID: "fresh", TaskDescription: "recent", Outcome: OutcomeSuccess, CreatedAt: now}

	require.NoError(t, e.put(old))
	require.NoError(t, e.put(keep))
	require.NoError(t, e.put(valuable))
	require.NoError(t, e.put(fresh))

	removed, err := e.Consolidate(30, 5, 0.5)
	require.NoError(t, err)
	require.Equal(t, 1, removed)

	all, err := e.All()
	require.NoError(t, err)
	require.Len(t, all, 3)
}

func TestExtractPatternsGroupsByNameAndMarkers(t *testing.T) {
	episodes := []TaskEpisode{
		{TaskDescription: "fix crash", ContextMarkers: []string{"parser.go"}, Outcome: OutcomeSuccess, Actions: []string{"read", "edit"}},
		{TaskDescription: "fix timeout", ContextMarkers: []string{"parser.go"}, Outcome: OutcomeFailure, Actions: []string{"read"}},
		{TaskDescription: "add feature", ContextMarkers: []string{"rpc.go"}, Outcome: OutcomeSuccess, Actions: []string{"write"}},
	}
	patterns := ExtractPatterns(episodes)
	require.Len(t, patterns, 2)

	for _, p := range patterns {
		if p.Name == "fix" {
			require.Equal(t, 2, p.Frequency)
			require.InDelta(t, 0.5, p.SuccessRate, 1e-9)
		}
	}
}
