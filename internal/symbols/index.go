package symbols

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sync"

	"github.com/antigravity-dev/meridian/internal/embed"
	"github.com/antigravity-dev/meridian/internal/kv"
	"github.com/antigravity-dev/meridian/internal/parser"
)

var symbolKeyPrefix = []byte("symbol:")

func symbolKey(id string) []byte {
	return append(append([]byte{}, symbolKeyPrefix...), []byte(id)...)
}

// Index holds the in-memory caches backed by the KV store: symbols by id,
// name index, file index, dependency edges, and a source-text cache. All
// caches are rebuilt from persisted symbols on Load.
type Index struct {
	mu sync.RWMutex

	store    *kv.Store
	embedder embed.Embedder

	symbols    map[string]Symbol
	nameIndex  map[string][]string // name -> ids
	fileIndex  map[string][]string // path -> ids
	sourceText map[string]string   // path -> text
}

// New constructs an empty Index over store, using embedder to compute
// symbol embeddings during indexing.
func New(store *kv.Store, embedder embed.Embedder) *Index {
	return &Index{
		store:      store,
		embedder:   embedder,
		symbols:    make(map[string]Symbol),
		nameIndex:  make(map[string][]string),
		fileIndex:  make(map[string][]string),
		sourceText: make(map[string]string),
	}
}

// Load scans every record under the symbol: prefix and reconstructs all
// in-memory caches.
func (idx *Index) Load() error {
	pairs, err := idx.store.ScanPrefix(symbolKeyPrefix)
	if err != nil {
		return fmt.Errorf("symbols: load scan: %w", err)
	}
	idx.mu.Lock()
	defer idx.mu.Unlock()
	idx.symbols = make(map[string]Symbol, len(pairs))
	idx.nameIndex = make(map[string][]string)
	idx.fileIndex = make(map[string][]string)
	idx.sourceText = make(map[string]string)
	for _, p := range pairs {
		var s Symbol
		if err := json.Unmarshal(p.Value, &s); err != nil {
			return fmt.Errorf("symbols: load unmarshal: %w", err)
		}
		idx.insertLocked(s)
	}
	return nil
}

func (idx *Index) insertLocked(s Symbol) {
	idx.symbols[s.ID] = s
	idx.nameIndex[s.Name] = append(idx.nameIndex[s.Name], s.ID)
	idx.fileIndex[s.Location.File] = append(idx.fileIndex[s.Location.File], s.ID)
}

func (idx *Index) removeLocked(id string) {
	s, ok := idx.symbols[id]
	if !ok {
		return
	}
	delete(idx.symbols, id)
	idx.nameIndex[s.Name] = removeString(idx.nameIndex[s.Name], id)
	idx.fileIndex[s.Location.File] = removeString(idx.fileIndex[s.Location.File], id)
}

func removeString(ids []string, target string) []string {
	out := ids[:0]
	for _, id := range ids {
		if id != target {
			out = append(out, id)
		}
	}
	return out
}

// persist writes s under symbol:<id> and updates every cache.
func (idx *Index) persist(s Symbol) error {
	data, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("symbols: marshal %s: %w", s.ID, err)
	}
	if err := idx.store.Put(symbolKey(s.ID), data); err != nil {
		return fmt.Errorf("symbols: put %s: %w", s.ID, err)
	}
	idx.mu.Lock()
	idx.insertLocked(s)
	idx.mu.Unlock()
	return nil
}

// IndexFile reads path from disk (unless content is supplied), parses it,
// resolves in-file references into Dependencies, computes embeddings, and
// persists each resulting symbol.
// A nil ignore func indexes unconditionally.
func (idx *Index) IndexFile(ctx context.Context, path string, content []byte, ignore func(string) bool) error {
	if ignore != nil && ignore(path) {
		return nil
	}
	if content == nil {
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("symbols: read %s: %w", path, err)
		}
		content = data
	}

	lang, err := parser.DetectLanguage(path)
	if err != nil {
		return fmt.Errorf("symbols: detect language %s: %w", path, err)
	}

	syms, err := parser.Extract(path, lang, content)
	if err != nil {
		return fmt.Errorf("symbols: extract %s: %w", path, err)
	}

	resolveDependencies(syms)

	idx.mu.Lock()
	idx.sourceText[path] = string(content)
	idx.mu.Unlock()

	for _, s := range syms {
		s.Metadata.TokenCost = approxTokenCost(s, content)
		s.Embedding = computeEmbedding(ctx, idx.embedder, s)
		if err := idx.persist(s); err != nil {
			return err
		}
	}
	return nil
}

// approxTokenCost estimates token_cost from the symbol's body span in the
// original file text, one token per four body bytes (falls back to the
// signature-based estimate when the span can't be sliced out cleanly).
func approxTokenCost(s Symbol, content []byte) int {
	lines := splitLinesKeepEnds(content)
	start := s.Location.LineStart - 1
	end := s.Location.LineEnd
	if start < 0 || end > len(lines) || start >= end {
		return len(s.Signature) / 4
	}
	n := 0
	for _, l := range lines[start:end] {
		n += len(l)
	}
	if n == 0 {
		return len(s.Signature) / 4
	}
	return n / 4
}

func splitLinesKeepEnds(content []byte) []string {
	var out []string
	start := 0
	for i, b := range content {
		if b == '\n' {
			out = append(out, string(content[start:i+1]))
			start = i + 1
		}
	}
	if start < len(content) {
		out = append(out, string(content[start:]))
	}
	return out
}

func computeEmbedding(ctx context.Context, embedder embed.Embedder, s Symbol) []float32 {
	if embedder == nil {
		return nil
	}
	text := s.Name + " " + s.Signature
	if s.Metadata.DocComment != "" {
		text += " " + s.Metadata.DocComment
	}
	v, err := embedder.Embed(ctx, text)
	if err != nil {
		return nil // degrade: symbol still participates in lexical search
	}
	return []float32(v)
}

// resolveDependencies rewrites each symbol's References into Dependencies
// by in-file name resolution: any reference whose target resolves to a
// symbol in this same batch is added as a dependency edge.
func resolveDependencies(syms []Symbol) {
	byID := make(map[string]bool, len(syms))
	for _, s := range syms {
		byID[s.ID] = true
	}
	for i := range syms {
		seen := make(map[string]bool)
		var deps []string
		for _, r := range syms[i].References {
			if byID[r.TargetSymbolID] && !seen[r.TargetSymbolID] && r.TargetSymbolID != syms[i].ID {
				seen[r.TargetSymbolID] = true
				deps = append(deps, r.TargetSymbolID)
			}
		}
		syms[i].Dependencies = deps
	}
}

// UpdateFile removes every previously indexed symbol for path, then
// re-indexes it.
func (idx *Index) UpdateFile(ctx context.Context, path string, content []byte, ignore func(string) bool) error {
	idx.mu.Lock()
	ids := append([]string(nil), idx.fileIndex[path]...)
	idx.mu.Unlock()

	var ops []kv.Op
	idx.mu.Lock()
	for _, id := range ids {
		idx.removeLocked(id)
		ops = append(ops, kv.Op{Delete: true, Key: symbolKey(id)})
	}
	delete(idx.sourceText, path)
	idx.mu.Unlock()

	if len(ops) > 0 {
		if err := idx.store.BatchWrite(ops); err != nil {
			return fmt.Errorf("symbols: remove old symbols for %s: %w", path, err)
		}
	}
	return idx.IndexFile(ctx, path, content, ignore)
}

// RemoveFile deletes every symbol indexed for path without reindexing it.
func (idx *Index) RemoveFile(path string) error {
	idx.mu.Lock()
	ids := append([]string(nil), idx.fileIndex[path]...)
	idx.mu.Unlock()

	var ops []kv.Op
	idx.mu.Lock()
	for _, id := range ids {
		idx.removeLocked(id)
		ops = append(ops, kv.Op{Delete: true, Key: symbolKey(id)})
	}
	delete(idx.sourceText, path)
	idx.mu.Unlock()

	if len(ops) == 0 {
		return nil
	}
	return idx.store.BatchWrite(ops)
}

// Get returns the symbol with id.
func (idx *Index) Get(id string) (Symbol, bool) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	s, ok := idx.symbols[id]
	return s, ok
}

// All returns every indexed symbol, unordered. Callers must not mutate the
// returned slice's contents beyond their own copies.
func (idx *Index) All() []Symbol {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	out := make([]Symbol, 0, len(idx.symbols))
	for _, s := range idx.symbols {
		out = append(out, s)
	}
	return out
}

// ByName returns every symbol whose Name equals name, in insertion order.
func (idx *Index) ByName(name string) []Symbol {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	ids := idx.nameIndex[name]
	out := make([]Symbol, 0, len(ids))
	for _, id := range ids {
		if s, ok := idx.symbols[id]; ok {
			out = append(out, s)
		}
	}
	return out
}

// SourceLines returns lines [from, to] (1-based, inclusive) of path,
// reading from the source cache first and falling back to disk, caching
// the result on a miss.
func (idx *Index) SourceLines(path string, from, to int) ([]string, error) {
	idx.mu.RLock()
	text, ok := idx.sourceText[path]
	idx.mu.RUnlock()
	if !ok {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("symbols: read %s: %w", path, err)
		}
		text = string(data)
		idx.mu.Lock()
		idx.sourceText[path] = text
		idx.mu.Unlock()
	}
	lines := splitLinesKeepEnds([]byte(text))
	start := from - 1
	if start < 0 {
		start = 0
	}
	if start >= len(lines) {
		return nil, nil
	}
	if to > len(lines) {
		to = len(lines)
	}
	out := make([]string, 0, to-start)
	for _, l := range lines[start:to] {
		out = append(out, trimNewline(l))
	}
	return out, nil
}

func trimNewline(s string) string {
	for len(s) > 0 && (s[len(s)-1] == '\n' || s[len(s)-1] == '\r') {
		s = s[:len(s)-1]
	}
	return s
}

// GetDefinition returns the symbol plus its on-disk source lines, and
// optionally the full Symbol record for each of its dependencies.
func (idx *Index) GetDefinition(id string, withDependencies bool) (Symbol, []string, []Symbol, error) {
	s, ok := idx.Get(id)
	if !ok {
		return Symbol{}, nil, nil, fmt.Errorf("symbols: unknown symbol %s", id)
	}
	lines, err := idx.SourceLines(s.Location.File, s.Location.LineStart, s.Location.LineEnd)
	if err != nil {
		return s, nil, nil, err
	}
	if !withDependencies {
		return s, lines, nil, nil
	}
	deps := make([]Symbol, 0, len(s.Dependencies))
	for _, depID := range s.Dependencies {
		if d, ok := idx.Get(depID); ok {
			deps = append(deps, d)
		}
	}
	return s, lines, deps, nil
}

// FindReferences is a linear scan over every indexed symbol, collecting
// any Reference whose TargetSymbolID matches target. Grouping by file is
// left to the caller.
func (idx *Index) FindReferences(target string) []Reference {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	var out []Reference
	for _, s := range idx.symbols {
		for _, r := range s.References {
			if r.TargetSymbolID == target {
				out = append(out, r)
			}
		}
	}
	return out
}
