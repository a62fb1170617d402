// Package attention implements the attention retriever: a bounded history
// of past focus patterns, a Markov-style predictor trained on that
// history, an LRU predictive cache, and the budget-aware retrieve()
// composition that ties them together.
package attention

import (
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/antigravity-dev/meridian/internal/kv"
	"github.com/antigravity-dev/meridian/internal/memory"
)

// DefaultMaxHistory bounds the FIFO of retained attention entries.
const DefaultMaxHistory = 1000

// HistoryEntry is one recorded attention pattern.
type HistoryEntry struct {
	Timestamp    time.Time               `json:"timestamp"`
	Pattern      memory.AttentionPattern `json:"pattern"`
	QueryContext string                  `json:"query_context"`
}

var historyStateKey = []byte("attention/history")

type historyState struct {
	Entries         []HistoryEntry     `json:"entries"`
	SymbolFrequency map[string]float64 `json:"symbol_frequency"`
	CoOccurrence    map[string]int     `json:"co_occurrence"` // key = pairKey(a,b)
}

// History is the bounded FIFO attention pattern log.
type History struct {
	store      *kv.Store
	maxHistory int
	now        func() time.Time

	state historyState
}

// NewHistory loads (or initializes) a History backed by store.
func NewHistory(store *kv.Store, maxHistory int, now func() time.Time) (*History, error) {
	if maxHistory <= 0 {
		maxHistory = DefaultMaxHistory
	}
	if now == nil {
		now = time.Now
	}
	h := &History{store: store, maxHistory: maxHistory, now: now}
	if err := h.load(); err != nil {
		return nil, err
	}
	return h, nil
}

func (h *History) load() error {
	raw, err := h.store.Get(historyStateKey)
	if err == kv.ErrNotFound {
		h.state = historyState{SymbolFrequency: map[string]float64{}, CoOccurrence: map[string]int{}}
		return nil
	}
	if err != nil {
		return fmt.Errorf("attention: load history: %w", err)
	}
	var st historyState
	if err := json.Unmarshal(raw, &st); err != nil {
		return fmt.Errorf("attention: unmarshal history: %w", err)
	}
	if st.SymbolFrequency == nil {
		st.SymbolFrequency = map[string]float64{}
	}
	if st.CoOccurrence == nil {
		st.CoOccurrence = map[string]int{}
	}
	h.state = st
	return nil
}

func (h *History) persist() error {
	data, err := json.Marshal(h.state)
	if err != nil {
		return fmt.Errorf("attention: marshal history: %w", err)
	}
	return h.store.Put(historyStateKey, data)
}

func pairKey(a, b string) string {
	if a > b {
		a, b = b, a
	}
	return a + "\x00" + b
}

// Record appends a bounded FIFO entry, updates symbol_frequency and
// co_occurrence, and persists the new state.
func (h *History) Record(pattern memory.AttentionPattern, context string) error {
	entry := HistoryEntry{Timestamp: h.now(), Pattern: pattern, QueryContext: context}
	h.state.Entries = append(h.state.Entries, entry)

	for s, w := range pattern.FocusedSymbols {
		h.state.SymbolFrequency[s] += w
	}
	symbolList := make([]string, 0, len(pattern.FocusedSymbols))
	for s := range pattern.FocusedSymbols {
		symbolList = append(symbolList, s)
	}
	sort.Strings(symbolList)
	for i := 0; i < len(symbolList); i++ {
		for j := i + 1; j < len(symbolList); j++ {
			h.state.CoOccurrence[pairKey(symbolList[i], symbolList[j])]++
		}
	}

	if len(h.state.Entries) > h.maxHistory {
		oldest := h.state.Entries[0]
		h.state.Entries = h.state.Entries[1:]
		for s, w := range oldest.Pattern.FocusedSymbols {
			h.state.SymbolFrequency[s] -= w
			if h.state.SymbolFrequency[s] <= 0 {
				delete(h.state.SymbolFrequency, s)
			}
		}
	}

	return h.persist()
}

// Len returns the number of retained entries.
func (h *History) Len() int { return len(h.state.Entries) }

// SymbolFrequency returns a snapshot of the current per-symbol frequency sum.
func (h *History) SymbolFrequency() map[string]float64 {
	out := make(map[string]float64, len(h.state.SymbolFrequency))
	for k, v := range h.state.SymbolFrequency {
		out[k] = v
	}
	return out
}

func (h *History) coOccurrence(a, b string) int {
	return h.state.CoOccurrence[pairKey(a, b)]
}

// Entries returns a copy of all retained entries, oldest first.
func (h *History) Entries() []HistoryEntry {
	return append([]HistoryEntry(nil), h.state.Entries...)
}

const analyzeWindow = 50

// Query is the input to AnalyzePattern: an explicit symbol list and the
// free-text context the caller is searching around.
type Query struct {
	Symbols []string
	Context string
}

// AnalyzePattern walks the most recent analyzeWindow entries and derives a
// fresh AttentionPattern by recency- and relevance-weighting past focus.
func (h *History) AnalyzePattern(q Query) memory.AttentionPattern {
	entries := h.state.Entries
	if len(entries) > analyzeWindow {
		entries = entries[len(entries)-analyzeWindow:]
	}

	focused := make(map[string]float64)
	predictedSeen := make(map[string]bool)
	var predictedNext []string

	now := h.now()
	for _, entry := range entries {
		ageHours := now.Sub(entry.Timestamp).Hours()
		if ageHours < 0 {
			ageHours = 0
		}
		recency := math.Exp(-ageHours / 24)

		for s := range entry.Pattern.FocusedSymbols {
			relevance := h.relevance(s, q)
			if relevance > 0.1 {
				focused[s] += recency * relevance
			}
		}
		for _, s := range entry.Pattern.PredictedNext {
			if !predictedSeen[s] {
				predictedSeen[s] = true
				predictedNext = append(predictedNext, s)
			}
		}
	}

	return memory.AttentionPattern{FocusedSymbols: focused, PredictedNext: predictedNext}
}

func (h *History) relevance(symbol string, q Query) float64 {
	for _, s := range q.Symbols {
		if s == symbol {
			return 1
		}
	}
	if len(q.Symbols) == 0 {
		return 0
	}
	total := 0
	for _, s := range q.Symbols {
		total += h.coOccurrence(symbol, s)
	}
	rel := float64(total) / float64(len(q.Symbols))
	if rel > 1 {
		rel = 1
	}
	return rel
}
