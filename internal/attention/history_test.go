package attention

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/antigravity-dev/meridian/internal/kv"
	"github.com/antigravity-dev/meridian/internal/memory"
)

func openTestStore(t *testing.T) *kv.Store {
	t.Helper()
	dir := t.TempDir()
	store, err := kv.Open(filepath.Join(dir, "test.db"), 1000)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func TestHistoryRecordBoundedFIFOAndFrequencySum(t *testing.T) {
	store := openTestStore(t)
	h, err := NewHistory(store, 3, time.Now)
	require.NoError(t, err)

	for i := 0; i < 5; i++ {
		require.NoError(t, h.Record(memory.AttentionPattern{FocusedSymbols: map[string]float64{"s": 1}}, "ctx"))
	}

	require.Equal(t, 3, h.Len())
	total := 0.0
	for _, f := range h.SymbolFrequency() {
		total += f
	}
	// Three retained entries, weight 1 each.
	require.InDelta(t, 3.0, total, 1e-9)
}

func TestHistoryCoOccurrenceSymmetric(t *testing.T) {
	store := openTestStore(t)
	h, err := NewHistory(store, 10, time.Now)
	require.NoError(t, err)
	require.NoError(t, h.Record(memory.AttentionPattern{FocusedSymbols: map[string]float64{"a": 1, "b": 1}}, ""))

	require.Equal(t, 1, h.coOccurrence("a", "b"))
	require.Equal(t, 1, h.coOccurrence("b", "a"))
}

func TestAnalyzePatternWeightsByRecencyAndRelevance(t *testing.T) {
	store := openTestStore(t)
	fixed := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	h, err := NewHistory(store, 100, func() time.Time { return fixed })
	require.NoError(t, err)

	require.NoError(t, h.Record(memory.AttentionPattern{FocusedSymbols: map[string]float64{"target": 1}}, ""))

	result := h.AnalyzePattern(Query{Symbols: []string{"target"}})
	require.Contains(t, result.FocusedSymbols, "target")
	require.Greater(t, result.FocusedSymbols["target"], 0.0)
}
