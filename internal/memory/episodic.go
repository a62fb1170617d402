// Package memory implements the episodic, working, semantic, and
// procedural memory tiers, plus the cross-tier consolidation pass that moves
// durable facts up from raw episodes into longer-lived structures.
package memory

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/antigravity-dev/meridian/internal/kv"
)

// Outcome is the closed set of episode results.
type Outcome string

const (
	OutcomeSuccess Outcome = "success"
	OutcomePartial Outcome = "partial"
	OutcomeFailure Outcome = "failure"
)

// TaskEpisode is one recorded past task.
type TaskEpisode struct {
	ID              string    `json:"id"`
	TaskDescription string    `json:"task_description"`
	InitialContext  string    `json:"initial_context,omitempty"`
	ContextMarkers  []string  `json:"context_markers"`
	QueriesMade     []string  `json:"queries_made,omitempty"`
	FilesTouched    []string  `json:"files_touched,omitempty"`
	Actions         []string  `json:"actions"`
	SolutionPath    string    `json:"solution_path"`
	Outcome         Outcome   `json:"outcome"`
	TokensUsed      int       `json:"tokens_used"`
	CreatedAt       time.Time `json:"created_at"`
	AccessCount     int       `json:"access_count"`
	PatternValue    float64   `json:"pattern_value"`
}

// CodePattern is a recurring (name, context_markers) signature extracted
// from a group of episodes. ID is deterministic over the signature so the
// same recurring pattern upserts in place across consolidation passes.
type CodePattern struct {
	ID             string   `json:"id"`
	Name           string   `json:"name"`
	Description    string   `json:"description,omitempty"`
	ContextMarkers []string `json:"context_markers"`
	Frequency      int      `json:"frequency"`
	SuccessRate    float64  `json:"success_rate"`
	TypicalActions []string `json:"typical_actions"`
}

var episodicKeyPrefix = []byte("episodic/")

// Episodic is the append-mostly store of TaskEpisodes, persisted in the KV
// store under the episodic/ namespace.
type Episodic struct {
	store *kv.Store
	now   func() time.Time
}

// NewEpisodic constructs an Episodic tier over store. now defaults to
// time.Now when nil; tests may inject a fixed clock.
func NewEpisodic(store *kv.Store, now func() time.Time) *Episodic {
	if now == nil {
		now = time.Now
	}
	return &Episodic{store: store, now: now}
}

func episodeKey(id string) []byte {
	return append(append([]byte{}, episodicKeyPrefix...), []byte(id)...)
}

// RecordEpisode persists a new TaskEpisode, assigning CreatedAt if unset.
func (e *Episodic) RecordEpisode(ep TaskEpisode) (TaskEpisode, error) {
	if ep.ID == "" {
		return TaskEpisode{}, fmt.Errorf("memory: episode id must not be empty")
	}
	if ep.CreatedAt.IsZero() {
		ep.CreatedAt = e.now()
	}
	if err := e.put(ep); err != nil {
		return TaskEpisode{}, err
	}
	return ep, nil
}

func (e *Episodic) put(ep TaskEpisode) error {
	data, err := json.Marshal(ep)
	if err != nil {
		return fmt.Errorf("memory: marshal episode: %w", err)
	}
	return e.store.Put(episodeKey(ep.ID), data)
}

// All returns every persisted episode, unordered.
func (e *Episodic) All() ([]TaskEpisode, error) {
	pairs, err := e.store.ScanPrefix(episodicKeyPrefix)
	if err != nil {
		return nil, fmt.Errorf("memory: scan episodes: %w", err)
	}
	out := make([]TaskEpisode, 0, len(pairs))
	for _, p := range pairs {
		var ep TaskEpisode
		if err := json.Unmarshal(p.Value, &ep); err != nil {
			return nil, fmt.Errorf("memory: unmarshal episode: %w", err)
		}
		out = append(out, ep)
	}
	return out, nil
}

// IncrementAccess bumps access_count for id and re-persists it.
func (e *Episodic) IncrementAccess(id string) error {
	raw, err := e.store.Get(episodeKey(id))
	if err != nil {
		return fmt.Errorf("memory: get episode %s: %w", id, err)
	}
	var ep TaskEpisode
	if err := json.Unmarshal(raw, &ep); err != nil {
		return fmt.Errorf("memory: unmarshal episode %s: %w", id, err)
	}
	ep.AccessCount++
	return e.put(ep)
}

// FindSimilar returns the top limit success-outcome episodes ranked by a
// token-overlap similarity score against description. Episodes sharing no
// token with description are not returned.
func (e *Episodic) FindSimilar(description string, limit int) ([]TaskEpisode, error) {
	all, err := e.All()
	if err != nil {
		return nil, err
	}
	queryTokens := tokenSet(description)

	type scored struct {
		ep    TaskEpisode
		score float64
	}
	var candidates []scored
	for _, ep := range all {
		if ep.Outcome != OutcomeSuccess {
			continue
		}
		score := overlapScore(queryTokens, tokenSet(ep.TaskDescription))
		if score == 0 {
			continue
		}
		candidates = append(candidates, scored{ep: ep, score: score})
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].score > candidates[j].score
	})
	if limit > 0 && limit < len(candidates) {
		candidates = candidates[:limit]
	}
	out := make([]TaskEpisode, len(candidates))
	for i, c := range candidates {
		out[i] = c.ep
	}
	return out, nil
}

func tokenSet(s string) map[string]bool {
	fields := strings.Fields(strings.ToLower(s))
	set := make(map[string]bool, len(fields))
	for _, f := range fields {
		set[f] = true
	}
	return set
}

// overlapScore is "higher score = more similar": |intersection| normalized
// by the size of the query token set.
func overlapScore(query, candidate map[string]bool) float64 {
	if len(query) == 0 {
		return 0
	}
	matches := 0
	for tok := range query {
		if candidate[tok] {
			matches++
		}
	}
	return float64(matches) / float64(len(query))
}

func outcomeValue(o Outcome) float64 {
	switch o {
	case OutcomeSuccess:
		return 1
	case OutcomePartial:
		return 0.5
	default:
		return 0
	}
}

// ExtractPatterns groups episodes by (task description's leading word, the
// sorted set of all their context markers) as a recurring signature and
// derives a CodePattern per group.
func ExtractPatterns(episodes []TaskEpisode) []CodePattern {
	type groupKey struct {
		name    string
		markers string
	}
	groups := make(map[groupKey][]TaskEpisode)
	for _, ep := range episodes {
		name := patternName(ep)
		key := groupKey{name: name, markers: strings.Join(sortedCopy(ep.ContextMarkers), ",")}
		groups[key] = append(groups[key], ep)
	}

	var patterns []CodePattern
	for key, group := range groups {
		var sum float64
		actionSet := make(map[string]bool)
		for _, ep := range group {
			sum += outcomeValue(ep.Outcome)
			for _, a := range ep.Actions {
				actionSet[a] = true
			}
		}
		patterns = append(patterns, CodePattern{
			ID:             key.name + "|" + key.markers,
			Name:           key.name,
			ContextMarkers: splitNonEmpty(key.markers),
			Frequency:      len(group),
			SuccessRate:    sum / float64(len(group)),
			TypicalActions: sortedKeys(actionSet),
		})
	}
	sort.Slice(patterns, func(i, j int) bool { return patterns[i].Name < patterns[j].Name })
	return patterns
}

func patternName(ep TaskEpisode) string {
	fields := strings.Fields(ep.TaskDescription)
	if len(fields) == 0 {
		return "unnamed"
	}
	return strings.ToLower(fields[0])
}

func sortedCopy(s []string) []string {
	out := append([]string(nil), s...)
	sort.Strings(out)
	return out
}

func splitNonEmpty(s string) []string {
	if s == "" {
		return nil
	}
	return strings.Split(s, ",")
}

func sortedKeys(m map[string]bool) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Consolidate removes episodes older than retentionDays unless their
// access_count exceeds accessThreshold or their pattern_value reaches
// patternValueThreshold.
func (e *Episodic) Consolidate(retentionDays int, accessThreshold int, patternValueThreshold float64) (int, error) {
	all, err := e.All()
	if err != nil {
		return 0, err
	}
	cutoff := e.now().AddDate(0, 0, -retentionDays)
	removed := 0
	for _, ep := range all {
		if ep.CreatedAt.After(cutoff) {
			continue
		}
		if ep.AccessCount > accessThreshold {
			continue
		}
		if ep.PatternValue >= patternValueThreshold {
			continue
		}
		if err := e.store.Delete(episodeKey(ep.ID)); err != nil {
			return removed, fmt.Errorf("memory: delete episode %s: %w", ep.ID, err)
		}
		removed++
	}
	return removed, nil
}
