package attention

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/antigravity-dev/meridian/internal/memory"
)

func TestPredictorTrainAndPredictConfidenceInRange(t *testing.T) {
	store := openTestStore(t)
	h, err := NewHistory(store, 100, time.Now)
	require.NoError(t, err)

	require.NoError(t, h.Record(memory.AttentionPattern{FocusedSymbols: map[string]float64{"a": 1}}, ""))
	require.NoError(t, h.Record(memory.AttentionPattern{FocusedSymbols: map[string]float64{"b": 1}}, ""))
	require.NoError(t, h.Record(memory.AttentionPattern{FocusedSymbols: map[string]float64{"a": 1}}, ""))
	require.NoError(t, h.Record(memory.AttentionPattern{FocusedSymbols: map[string]float64{"b": 1}}, ""))

	p := NewPredictor()
	p.Train(h)

	prediction := p.Predict(memory.AttentionPattern{FocusedSymbols: map[string]float64{"a": 1}})
	require.GreaterOrEqual(t, prediction.Confidence, 0.0)
	require.LessOrEqual(t, prediction.Confidence, 1.0)
}

func TestPredictorBoostsPredictedNext(t *testing.T) {
	p := NewPredictor()
	prediction := p.Predict(memory.AttentionPattern{PredictedNext: []string{"x"}})
	require.Contains(t, prediction.High, "x")
}
