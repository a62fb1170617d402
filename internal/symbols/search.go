package symbols

import (
	"context"
	"sort"
	"strings"

	"github.com/antigravity-dev/meridian/internal/embed"
)

// DetailLevel prunes a Symbol before it's returned to a caller.
type DetailLevel string

const (
	DetailSkeleton       DetailLevel = "skeleton"
	DetailInterface      DetailLevel = "interface"
	DetailImplementation DetailLevel = "implementation"
	DetailFull           DetailLevel = "full"
)

// applyDetailLevel returns a copy of s pruned to level: skeleton drops
// references and dependencies, interface drops references, implementation
// and full keep everything (full additionally guarantees the embedding is
// retained, which the others don't bother clearing anyway).
func applyDetailLevel(s Symbol, level DetailLevel) Symbol {
	switch level {
	case DetailSkeleton:
		s.References = nil
		s.Dependencies = nil
	case DetailInterface:
		s.References = nil
	}
	return s
}

// Query is the input to Search/HybridSearch.
type Query struct {
	Text        string
	Kinds       map[Kind]bool // nil/empty means no kind filter
	ScopePrefix string        // empty means no scope filter
	Detail      DetailLevel
	MaxResults  int
	MaxTokens   int // 0 means no token budget
}

// Result is the output of Search/HybridSearch: filtered symbols plus a
// running token total and whether the result was truncated by budget or
// max_results.
type Result struct {
	Symbols     []Symbol
	TotalTokens int
	Truncated   bool
}

func matchesFilters(s Symbol, q Query) bool {
	if len(q.Kinds) > 0 && !q.Kinds[s.Kind] {
		return false
	}
	if q.ScopePrefix != "" && !strings.HasPrefix(s.Location.File, q.ScopePrefix) {
		return false
	}
	return true
}

// collect applies filters, detail pruning, and the token budget/max_results
// stop condition to an ordered candidate list, deduplicating by id.
func collect(candidates []Symbol, q Query, seen map[string]bool, acc *Result) {
	for _, s := range candidates {
		if seen[s.ID] {
			continue
		}
		if !matchesFilters(s, q) {
			continue
		}
		if q.MaxResults > 0 && len(acc.Symbols) >= q.MaxResults {
			acc.Truncated = true
			return
		}
		cost := s.Metadata.TokenCost
		if q.MaxTokens > 0 && acc.TotalTokens+cost > q.MaxTokens {
			acc.Truncated = true
			return
		}
		seen[s.ID] = true
		acc.Symbols = append(acc.Symbols, applyDetailLevel(s, q.Detail))
		acc.TotalTokens += cost
	}
}

// lexicalHits is the lexical stage: an exact name-index hit first,
// else a case-insensitive fuzzy match against name or signature.
func (idx *Index) lexicalHits(query string) []Symbol {
	if query == "" {
		return nil
	}
	if exact := idx.ByName(query); len(exact) > 0 {
		return exact
	}
	needle := strings.ToLower(query)
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	var out []Symbol
	for _, s := range idx.symbols {
		if strings.Contains(strings.ToLower(s.Name), needle) || strings.Contains(strings.ToLower(s.Signature), needle) {
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Search performs the lexical-only path: exact name match, else fuzzy
// name/signature match.
func (idx *Index) Search(q Query) Result {
	var res Result
	if q.Text == "" {
		return res
	}
	seen := make(map[string]bool)
	collect(idx.lexicalHits(q.Text), q, seen, &res)
	return res
}

// semanticHits is the vector stage: embed the query, score every
// persisted embedding by cosine similarity, return the top-K.
func (idx *Index) semanticHits(ctx context.Context, query string, k int) []Symbol {
	if idx.embedder == nil || query == "" {
		return nil
	}
	qv, err := idx.embedder.Embed(ctx, query)
	if err != nil {
		return nil
	}
	if k <= 0 {
		k = 10
	}

	idx.mu.RLock()
	candidates := make([]Symbol, 0, len(idx.symbols))
	for _, s := range idx.symbols {
		if s.HasEmbedding() {
			candidates = append(candidates, s)
		}
	}
	idx.mu.RUnlock()

	vectors := make([]embed.Vector, len(candidates))
	for i, s := range candidates {
		vectors[i] = s.Embedding
	}
	top := embed.TopK(qv, vectors, k)
	out := make([]Symbol, len(top))
	for i, idxPos := range top {
		out[i] = candidates[idxPos]
	}
	return out
}

// HybridSearch is the preferred search path: lexical
// hits are consumed first, then semantic hits fill remaining slots,
// subject to kind/scope filters, detail-level pruning, and the token
// budget.
func (idx *Index) HybridSearch(ctx context.Context, q Query) Result {
	if q.Text == "" {
		return Result{}
	}
	var res Result
	seen := make(map[string]bool)

	k := q.MaxResults
	if k <= 0 {
		k = 10
	}
	collect(idx.lexicalHits(q.Text), q, seen, &res)
	if !res.Truncated {
		collect(idx.semanticHits(ctx, q.Text, k), q, seen, &res)
	}
	return res
}
