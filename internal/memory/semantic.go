package memory

import (
	"encoding/json"
	"fmt"
	"sort"

	"github.com/antigravity-dev/meridian/internal/kv"
)

// RelationshipType is the closed set of semantic relations between two
// symbols.
type RelationshipType string

const (
	RelImports    RelationshipType = "imports"
	RelCalls      RelationshipType = "calls"
	RelImplements RelationshipType = "implements"
	RelExtends    RelationshipType = "extends"
	RelUses       RelationshipType = "uses"
	RelDependsOn  RelationshipType = "depends_on"
)

// SymbolRelationship is one directed edge in the semantic tier's multigraph
// of symbol relationships.
type SymbolRelationship struct {
	ID        string           `json:"id"`
	From      string           `json:"from"`
	To        string           `json:"to"`
	Type      RelationshipType `json:"relationship_type"`
	Strength  float64          `json:"strength"`
	Frequency int              `json:"frequency"`
}

var (
	semanticPatternPrefix      = []byte("semantic/pattern/")
	semanticRelationshipPrefix = []byte("semantic/rel/")
)

// Semantic holds CodePatterns and SymbolRelationships, both persisted,
// idempotent-by-id on add/update.
type Semantic struct {
	store *kv.Store
}

// NewSemantic constructs a Semantic tier over store.
func NewSemantic(store *kv.Store) *Semantic {
	return &Semantic{store: store}
}

func patternKey(id string) []byte {
	return append(append([]byte{}, semanticPatternPrefix...), []byte(id)...)
}

func relationshipKey(id string) []byte {
	return append(append([]byte{}, semanticRelationshipPrefix...), []byte(id)...)
}

// UpsertPattern adds or replaces a CodePattern keyed by ID, falling back
// to Name when no id was assigned.
func (s *Semantic) UpsertPattern(p CodePattern) error {
	if p.ID == "" {
		p.ID = p.Name
	}
	data, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("memory: marshal pattern: %w", err)
	}
	return s.store.Put(patternKey(p.ID), data)
}

// Patterns returns all stored CodePatterns.
func (s *Semantic) Patterns() ([]CodePattern, error) {
	pairs, err := s.store.ScanPrefix(semanticPatternPrefix)
	if err != nil {
		return nil, fmt.Errorf("memory: scan patterns: %w", err)
	}
	out := make([]CodePattern, 0, len(pairs))
	for _, p := range pairs {
		var cp CodePattern
		if err := json.Unmarshal(p.Value, &cp); err != nil {
			return nil, fmt.Errorf("memory: unmarshal pattern: %w", err)
		}
		out = append(out, cp)
	}
	return out, nil
}

// UpsertRelationship adds or replaces a SymbolRelationship keyed by ID.
func (s *Semantic) UpsertRelationship(r SymbolRelationship) error {
	data, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("memory: marshal relationship: %w", err)
	}
	return s.store.Put(relationshipKey(r.ID), data)
}

func (s *Semantic) relationships() ([]SymbolRelationship, error) {
	pairs, err := s.store.ScanPrefix(semanticRelationshipPrefix)
	if err != nil {
		return nil, fmt.Errorf("memory: scan relationships: %w", err)
	}
	out := make([]SymbolRelationship, 0, len(pairs))
	for _, p := range pairs {
		var r SymbolRelationship
		if err := json.Unmarshal(p.Value, &r); err != nil {
			return nil, fmt.Errorf("memory: unmarshal relationship: %w", err)
		}
		out = append(out, r)
	}
	return out, nil
}

// FindRelatedSymbols returns outgoing relationships from symbolID.
func (s *Semantic) FindRelatedSymbols(symbolID string) ([]SymbolRelationship, error) {
	all, err := s.relationships()
	if err != nil {
		return nil, err
	}
	var out []SymbolRelationship
	for _, r := range all {
		if r.From == symbolID {
			out = append(out, r)
		}
	}
	return out, nil
}

// FindDependents returns incoming relationships into symbolID.
func (s *Semantic) FindDependents(symbolID string) ([]SymbolRelationship, error) {
	all, err := s.relationships()
	if err != nil {
		return nil, err
	}
	var out []SymbolRelationship
	for _, r := range all {
		if r.To == symbolID {
			out = append(out, r)
		}
	}
	return out, nil
}

// FindConnectionPath runs a bounded BFS from a to b over outgoing edges and
// returns the symbol-id path, or nil if no path exists within maxDepth.
func (s *Semantic) FindConnectionPath(a, b string, maxDepth int) ([]string, error) {
	if a == b {
		return []string{a}, nil
	}
	all, err := s.relationships()
	if err != nil {
		return nil, err
	}
	adjacency := make(map[string][]string)
	for _, r := range all {
		adjacency[r.From] = append(adjacency[r.From], r.To)
	}

	type frame struct {
		id   string
		path []string
	}
	visited := map[string]bool{a: true}
	queue := []frame{{id: a, path: []string{a}}}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		if len(cur.path)-1 >= maxDepth {
			continue
		}
		for _, next := range adjacency[cur.id] {
			if visited[next] {
				continue
			}
			visited[next] = true
			path := append(append([]string(nil), cur.path...), next)
			if next == b {
				return path, nil
			}
			queue = append(queue, frame{id: next, path: path})
		}
	}
	return nil, nil
}

const jaccardMergeThreshold = 0.8

// Consolidate merges CodePatterns sharing a Name whose ContextMarkers
// Jaccard similarity exceeds jaccardMergeThreshold, summing frequencies and
// averaging success rates.
func (s *Semantic) Consolidate() error {
	patterns, err := s.Patterns()
	if err != nil {
		return err
	}
	byName := make(map[string][]CodePattern)
	for _, p := range patterns {
		byName[p.Name] = append(byName[p.Name], p)
	}

	for name, group := range byName {
		merged := mergeSimilar(group)
		if len(merged) == len(group) {
			continue
		}
		for _, old := range group {
			if err := s.store.Delete(patternKey(old.ID)); err != nil {
				return fmt.Errorf("memory: consolidate pattern %s: %w", name, err)
			}
		}
		for _, p := range merged {
			if err := s.UpsertPattern(p); err != nil {
				return fmt.Errorf("memory: consolidate pattern %s: %w", name, err)
			}
		}
	}
	return nil
}

func mergeSimilar(group []CodePattern) []CodePattern {
	sort.Slice(group, func(i, j int) bool { return group[i].Frequency > group[j].Frequency })
	merged := make([]CodePattern, 0, len(group))
	used := make([]bool, len(group))
	for i := range group {
		if used[i] {
			continue
		}
		acc := group[i]
		for j := i + 1; j < len(group); j++ {
			if used[j] {
				continue
			}
			if jaccard(acc.ContextMarkers, group[j].ContextMarkers) > jaccardMergeThreshold {
				total := acc.Frequency + group[j].Frequency
				acc.SuccessRate = (acc.SuccessRate*float64(acc.Frequency) + group[j].SuccessRate*float64(group[j].Frequency)) / float64(total)
				acc.Frequency = total
				acc.TypicalActions = unionStrings(acc.TypicalActions, group[j].TypicalActions)
				used[j] = true
			}
		}
		used[i] = true
		merged = append(merged, acc)
	}
	return merged
}

func jaccard(a, b []string) float64 {
	setA := toSet(a)
	setB := toSet(b)
	if len(setA) == 0 && len(setB) == 0 {
		return 1
	}
	intersection, union := 0, len(setA)
	for k := range setB {
		if !setA[k] {
			union++
		}
	}
	for k := range setA {
		if setB[k] {
			intersection++
		}
	}
	if union == 0 {
		return 0
	}
	return float64(intersection) / float64(union)
}

func toSet(s []string) map[string]bool {
	m := make(map[string]bool, len(s))
	for _, v := range s {
		m[v] = true
	}
	return m
}

func unionStrings(a, b []string) []string {
	set := toSet(a)
	for _, v := range b {
		set[v] = true
	}
	return sortedKeys(set)
}
