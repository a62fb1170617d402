package attention

import (
	"sync"

	"github.com/antigravity-dev/meridian/internal/memory"
)

// perSymbolTokenEstimate is the conservative default token cost charged
// against the budget for each retrieved symbol.
const perSymbolTokenEstimate = 100

// DefaultRetrainCadence retrains the predictor every N recorded patterns.
const DefaultRetrainCadence = 10

// Result is the output of Retrieve: symbols bucketed by predicted
// relevance, and whether the token budget was exhausted before every
// candidate could be included.
type Result struct {
	High       []string
	Medium     []string
	Context    []string
	Truncated  bool
}

// Retriever couples a Working set, a bounded History, a Predictor, and a
// PredictiveCache into one budget-aware retrieval pipeline.
type Retriever struct {
	mu sync.Mutex

	history   *History
	predictor *Predictor
	cache     *PredictiveCache
	working   *memory.Working

	cadence    int
	sinceTrain int
	trained    bool
}

// NewRetriever wires the attention subsystem's components together.
// cadence <= 0 uses DefaultRetrainCadence.
func NewRetriever(history *History, predictor *Predictor, cache *PredictiveCache, working *memory.Working, cadence int) *Retriever {
	if cadence <= 0 {
		cadence = DefaultRetrainCadence
	}
	return &Retriever{history: history, predictor: predictor, cache: cache, working: working, cadence: cadence}
}

// RecordAttention records a new pattern into history and, every cadence
// recordings (or on the very first), synchronously retrains the predictor
// under the retriever's write lock.
func (r *Retriever) RecordAttention(pattern memory.AttentionPattern, context string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.history.Record(pattern, context); err != nil {
		return err
	}
	r.working.Update(pattern)

	r.sinceTrain++
	if !r.trained || r.sinceTrain >= r.cadence {
		r.predictor.Train(r.history)
		r.sinceTrain = 0
		r.trained = true
	}
	return nil
}

// AnalyzePattern derives a focus pattern for q from history, under the
// retriever's lock so recordings never race the walk.
func (r *Retriever) AnalyzePattern(q Query) memory.AttentionPattern {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.history.AnalyzePattern(q)
}

// PredictNext analyzes q and runs the predictor over the derived pattern.
func (r *Retriever) PredictNext(q Query) Prediction {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.predictor.Predict(r.history.AnalyzePattern(q))
}

// Retrieve analyzes the query against history, predicts next focus, and
// greedily fills high/medium/context buckets against tokenBudget, charging
// perSymbolTokenEstimate per admitted symbol.
func (r *Retriever) Retrieve(q Query, tokenBudget int) Result {
	r.mu.Lock()
	pattern := r.history.AnalyzePattern(q)
	prediction := r.predictor.Predict(pattern)
	r.mu.Unlock()

	budget := tokenBudget
	truncated := false

	fill := func(symbols []string) []string {
		var out []string
		for _, s := range symbols {
			if budget < perSymbolTokenEstimate {
				truncated = true
				break
			}
			out = append(out, s)
			budget -= perSymbolTokenEstimate
			r.cache.Put(s, nil)
		}
		if len(out) < len(symbols) {
			truncated = true
		}
		return out
	}

	result := Result{
		High:    fill(prediction.High),
		Medium:  fill(prediction.Medium),
		Context: fill(prediction.Context),
	}
	result.Truncated = truncated
	return result
}
