package attention

import (
	"sort"

	"github.com/antigravity-dev/meridian/internal/memory"
)

// predictedNextBoost is the constant score boost applied to every symbol
// named in a pattern's predicted_next list.
const predictedNextBoost = 0.8

const (
	bucketHighThreshold    = 0.6
	bucketMediumThreshold  = 0.3
	bucketContextThreshold = 0.1
)

// Prediction buckets scored symbols by confidence band and reports an
// overall confidence for the prediction.
type Prediction struct {
	High       []string
	Medium     []string
	Context    []string
	Confidence float64
}

// Predictor is a Markov-style next-focus model trained on AttentionHistory
// transitions.
type Predictor struct {
	transitions map[string]map[string]float64 // s -> t -> probability
	importance  map[string]float64             // symbol -> frequency normalized by max
}

// NewPredictor returns an untrained Predictor; call Train before Predict.
func NewPredictor() *Predictor {
	return &Predictor{
		transitions: make(map[string]map[string]float64),
		importance:  make(map[string]float64),
	}
}

// Train computes transition probabilities over adjacent history entries
// and per-symbol importance normalized by the maximum observed frequency.
func (p *Predictor) Train(h *History) {
	counts := make(map[string]map[string]float64)
	entries := h.Entries()

	for i := 0; i+1 < len(entries); i++ {
		earlier := entries[i].Pattern.FocusedSymbols
		later := entries[i+1].Pattern.FocusedSymbols
		for s := range earlier {
			for t := range later {
				if counts[s] == nil {
					counts[s] = make(map[string]float64)
				}
				counts[s][t]++
			}
		}
	}

	normalized := make(map[string]map[string]float64, len(counts))
	for s, row := range counts {
		total := 0.0
		for _, c := range row {
			total += c
		}
		normRow := make(map[string]float64, len(row))
		for t, c := range row {
			if total > 0 {
				normRow[t] = c / total
			}
		}
		normalized[s] = normRow
	}
	p.transitions = normalized

	freq := h.SymbolFrequency()
	max := 0.0
	for _, f := range freq {
		if f > max {
			max = f
		}
	}
	importance := make(map[string]float64, len(freq))
	if max > 0 {
		for s, f := range freq {
			importance[s] = f / max
		}
	}
	p.importance = importance
}

// Predict combines transition probabilities from pattern's focused symbols
// with a constant boost for pattern's predicted_next symbols, then buckets
// the result by score threshold.
func (p *Predictor) Predict(pattern memory.AttentionPattern) Prediction {
	scores := make(map[string]float64)

	for s := range pattern.FocusedSymbols {
		for t, prob := range p.transitions[s] {
			scores[t] += prob
		}
	}
	for _, t := range pattern.PredictedNext {
		scores[t] += predictedNextBoost
	}

	var high, medium, context []string
	var sum float64
	for sym, score := range scores {
		if score > 1 {
			score = 1
		}
		sum += score
		switch {
		case score > bucketHighThreshold:
			high = append(high, sym)
		case score > bucketMediumThreshold:
			medium = append(medium, sym)
		case score > bucketContextThreshold:
			context = append(context, sym)
		}
	}
	sort.Strings(high)
	sort.Strings(medium)
	sort.Strings(context)

	confidence := 0.0
	if len(scores) > 0 {
		confidence = sum / float64(len(scores))
	}
	if confidence > 1 {
		confidence = 1
	}
	if confidence < 0 {
		confidence = 0
	}

	return Prediction{High: high, Medium: medium, Context: context, Confidence: confidence}
}
