package memory

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestWorkingAddAndEvict(t *testing.T) {
	w := NewWorking(100, WeightAdditive)
	w.AddSymbol("a", 40)
	w.AddSymbol("b", 40)
	w.UpdateAttentionWeight("a", 5)
	w.UpdateAttentionWeight("b", 1)
	w.AddSymbol("c", 40) // pushes usage to 120; c enters with weight 0, the lowest, so it is evicted first

	require.LessOrEqual(t, w.CurrentUsage(), 100)
	require.Contains(t, w.ActiveSymbols(), "a")
	require.Contains(t, w.ActiveSymbols(), "b")
	require.NotContains(t, w.ActiveSymbols(), "c")
}

func TestWorkingUpdateAttentionWeightMultiplicative(t *testing.T) {
	w := NewWorking(1000, WeightMultiplicative)
	w.AddSymbol("a", 10)
	w.UpdateAttentionWeight("a", 2)
	w.UpdateAttentionWeight("a", 3)
	require.Equal(t, 6.0, w.GetAttentionWeight("a"))
}

func TestWorkingUpdateMergesPatternAndPrefetches(t *testing.T) {
	w := NewWorking(1000, WeightAdditive)
	w.Update(AttentionPattern{
		FocusedSymbols: map[string]float64{"a": 0.9},
		PredictedNext:  []string{"b"},
	})
	require.Equal(t, 0.9, w.GetAttentionWeight("a"))
	require.Equal(t, prefetchBaselineWeight, w.GetAttentionWeight("b"))
}
