package memory

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/antigravity-dev/meridian/internal/kv"
)

// TaskType classifies a task description by keyword for procedural
// recall. Values other than the named ones take the form
// "Other(<first 3 words>)".
type TaskType string

const (
	TaskTypeBugFix        TaskType = "BugFix"
	TaskTypeRefactor      TaskType = "Refactor"
	TaskTypeTest          TaskType = "Test"
	TaskTypeDocumentation TaskType = "Documentation"
	TaskTypePerformance   TaskType = "Performance"
	TaskTypeSecurity      TaskType = "Security"
	TaskTypeFeature       TaskType = "Feature"
)

// InferTaskType keyword-matches a task description into a TaskType.
func InferTaskType(description string) TaskType {
	lower := strings.ToLower(description)
	switch {
	case containsAny(lower, "bug", "fix", "error"):
		return TaskTypeBugFix
	case containsAny(lower, "refactor"):
		return TaskTypeRefactor
	case containsAny(lower, "test"):
		return TaskTypeTest
	case containsAny(lower, "document"):
		return TaskTypeDocumentation
	case containsAny(lower, "performance", "optimize"):
		return TaskTypePerformance
	case containsAny(lower, "security", "vulnerability"):
		return TaskTypeSecurity
	case containsAny(lower, "feature", "add", "implement"):
		return TaskTypeFeature
	default:
		words := strings.Fields(description)
		if len(words) > 3 {
			words = words[:3]
		}
		return TaskType(fmt.Sprintf("Other(%s)", strings.Join(words, " ")))
	}
}

func containsAny(s string, keywords ...string) bool {
	for _, k := range keywords {
		if strings.Contains(s, k) {
			return true
		}
	}
	return false
}

// Procedure is a learned ordered plan for a TaskType.
type Procedure struct {
	TaskType        TaskType `json:"task_type"`
	Steps           []Step   `json:"steps"`
	RequiredContext []string `json:"required_context"`
	TypicalQueries  []string `json:"typical_queries"`
	SuccessRate     float64  `json:"success_rate"`
	ExecutionCount  int      `json:"execution_count"`
	AverageTokens   float64  `json:"average_tokens"`
	CommonPitfalls  []string `json:"common_pitfalls"`
}

// Step is one ordered step in a Procedure, ranked by descending frequency.
type Step struct {
	Order          int      `json:"order"`
	Description    string   `json:"description"`
	TypicalActions []string `json:"typical_actions,omitempty"`
	ExpectedFiles  []string `json:"expected_files,omitempty"`
	Optional       bool     `json:"optional,omitempty"`
	Frequency      int      `json:"frequency"`
}

var proceduralKeyPrefix = []byte("procedural/")

// Procedural holds the TaskType -> Procedure map.
type Procedural struct {
	store *kv.Store
}

// NewProcedural constructs a Procedural tier over store.
func NewProcedural(store *kv.Store) *Procedural {
	return &Procedural{store: store}
}

func procedureKey(t TaskType) []byte {
	return append(append([]byte{}, proceduralKeyPrefix...), []byte(t)...)
}

// Get returns the Procedure for t, or (Procedure{}, false) if none learned.
func (p *Procedural) Get(t TaskType) (Procedure, bool, error) {
	raw, err := p.store.Get(procedureKey(t))
	if err == kv.ErrNotFound {
		return Procedure{}, false, nil
	}
	if err != nil {
		return Procedure{}, false, fmt.Errorf("memory: get procedure %s: %w", t, err)
	}
	var proc Procedure
	if err := json.Unmarshal(raw, &proc); err != nil {
		return Procedure{}, false, fmt.Errorf("memory: unmarshal procedure %s: %w", t, err)
	}
	return proc, true, nil
}

func (p *Procedural) put(proc Procedure) error {
	data, err := json.Marshal(proc)
	if err != nil {
		return fmt.Errorf("memory: marshal procedure: %w", err)
	}
	return p.store.Put(procedureKey(proc.TaskType), data)
}

// LearnFromEpisodes groups episodes by inferred TaskType and, for groups of
// two or more, extracts or merges a Procedure.
func (p *Procedural) LearnFromEpisodes(episodes []TaskEpisode) error {
	groups := make(map[TaskType][]TaskEpisode)
	for _, ep := range episodes {
		t := InferTaskType(ep.TaskDescription)
		groups[t] = append(groups[t], ep)
	}

	for taskType, group := range groups {
		if len(group) < 2 {
			continue
		}
		extracted := extractProcedure(taskType, group)

		existing, found, err := p.Get(taskType)
		if err != nil {
			return err
		}
		merged := extracted
		if found {
			merged = mergeProcedure(existing, extracted)
		}
		if err := p.put(merged); err != nil {
			return err
		}
	}
	return nil
}

func extractProcedure(taskType TaskType, group []TaskEpisode) Procedure {
	stepFreq := make(map[string]int)
	stepActions := make(map[string]map[string]bool)
	stepFiles := make(map[string]map[string]bool)
	fileCount := make(map[string]int)
	successCount := 0
	queryFreq := make(map[string]int)
	var tokens []float64
	var pitfalls []string

	for _, ep := range group {
		if ep.SolutionPath != "" {
			stepFreq[ep.SolutionPath]++
			if stepActions[ep.SolutionPath] == nil {
				stepActions[ep.SolutionPath] = make(map[string]bool)
				stepFiles[ep.SolutionPath] = make(map[string]bool)
			}
			for _, a := range ep.Actions {
				stepActions[ep.SolutionPath][a] = true
			}
			for _, f := range ep.FilesTouched {
				stepFiles[ep.SolutionPath][f] = true
			}
		}
		if ep.Outcome == OutcomeSuccess {
			successCount++
			for _, f := range ep.FilesTouched {
				fileCount[f]++
			}
		}
		if ep.Outcome == OutcomeFailure && ep.SolutionPath != "" {
			pitfalls = append(pitfalls, "Failed at: "+ep.SolutionPath)
		}
		for _, q := range ep.QueriesMade {
			queryFreq[q]++
		}
		tokens = append(tokens, float64(ep.TokensUsed))
	}

	steps := make([]Step, 0, len(stepFreq))
	for desc, freq := range stepFreq {
		steps = append(steps, Step{
			Description:    desc,
			TypicalActions: sortedKeys(stepActions[desc]),
			ExpectedFiles:  sortedKeys(stepFiles[desc]),
			Frequency:      freq,
		})
	}
	sort.Slice(steps, func(i, j int) bool { return steps[i].Frequency > steps[j].Frequency })
	renumberSteps(steps)

	var requiredContext []string
	if successCount > 0 {
		for f, c := range fileCount {
			if float64(c) >= float64(successCount)/2 {
				requiredContext = append(requiredContext, f)
			}
		}
		sort.Strings(requiredContext)
	}

	var typicalQueries []string
	for q, c := range queryFreq {
		if c >= 2 {
			typicalQueries = append(typicalQueries, q)
		}
	}
	sort.Strings(typicalQueries)

	avg := 0.0
	for _, t := range tokens {
		avg += t
	}
	if len(tokens) > 0 {
		avg /= float64(len(tokens))
	}

	return Procedure{
		TaskType:        taskType,
		Steps:           steps,
		RequiredContext: requiredContext,
		TypicalQueries:  typicalQueries,
		SuccessRate:     float64(successCount) / float64(len(group)),
		ExecutionCount:  len(group),
		AverageTokens:   avg,
		CommonPitfalls:  pitfalls,
	}
}

func mergeProcedure(existing, incoming Procedure) Procedure {
	totalCount := existing.ExecutionCount + incoming.ExecutionCount
	if totalCount == 0 {
		totalCount = 1
	}
	merged := existing
	merged.RequiredContext = unionStrings(existing.RequiredContext, incoming.RequiredContext)
	merged.TypicalQueries = unionStrings(existing.TypicalQueries, incoming.TypicalQueries)
	merged.CommonPitfalls = append(append([]string(nil), existing.CommonPitfalls...), incoming.CommonPitfalls...)
	merged.AverageTokens = (existing.AverageTokens*float64(existing.ExecutionCount) + incoming.AverageTokens*float64(incoming.ExecutionCount)) / float64(totalCount)
	merged.SuccessRate = (existing.SuccessRate*float64(existing.ExecutionCount) + incoming.SuccessRate*float64(incoming.ExecutionCount)) / float64(totalCount)
	merged.ExecutionCount = totalCount

	seen := make(map[string]bool)
	var steps []Step
	for _, s := range existing.Steps {
		steps = append(steps, s)
		seen[s.Description] = true
	}
	for _, s := range incoming.Steps {
		if seen[s.Description] {
			continue
		}
		steps = append(steps, s)
		seen[s.Description] = true
	}
	sort.Slice(steps, func(i, j int) bool { return steps[i].Frequency > steps[j].Frequency })
	renumberSteps(steps)
	merged.Steps = steps
	return merged
}

func renumberSteps(steps []Step) {
	for i := range steps {
		steps[i].Order = i + 1
	}
}

// NextStep returns the first step whose Description is not matched
// (case-insensitive substring) by any completed-step string.
func NextStep(proc Procedure, completedSteps []string) (Step, bool) {
	for _, step := range proc.Steps {
		matched := false
		for _, done := range completedSteps {
			if strings.Contains(strings.ToLower(done), strings.ToLower(step.Description)) {
				matched = true
				break
			}
		}
		if !matched {
			return step, true
		}
	}
	return Step{}, false
}
