package memory

// Tiers bundles the four memory tiers so the periodic consolidation pass
// can be driven from one call site.
type Tiers struct {
	Episodic   *Episodic
	Semantic   *Semantic
	Procedural *Procedural

	RetentionDays         int
	AccessThreshold       int
	PatternValueThreshold float64
}

// ConsolidationReport summarizes one consolidation pass.
type ConsolidationReport struct {
	PatternsExtracted int
	EpisodesRemoved   int
	ProceduresLearned int
}

// Consolidate runs episodic -> semantic patterns, episodic -> procedural
// learning, a semantic merge pass, and finally evicts decayed episodes.
func (t *Tiers) Consolidate() (ConsolidationReport, error) {
	var report ConsolidationReport

	episodes, err := t.Episodic.All()
	if err != nil {
		return report, err
	}

	patterns := ExtractPatterns(episodes)
	for _, p := range patterns {
		if err := t.Semantic.UpsertPattern(p); err != nil {
			return report, err
		}
	}
	report.PatternsExtracted = len(patterns)

	if err := t.Procedural.LearnFromEpisodes(episodes); err != nil {
		return report, err
	}
	for _, n := range groupByTaskType(episodes) {
		if n >= 2 {
			report.ProceduresLearned++
		}
	}

	if err := t.Semantic.Consolidate(); err != nil {
		return report, err
	}

	removed, err := t.Episodic.Consolidate(t.RetentionDays, t.AccessThreshold, t.PatternValueThreshold)
	if err != nil {
		return report, err
	}
	report.EpisodesRemoved = removed

	return report, nil
}

func groupByTaskType(episodes []TaskEpisode) map[TaskType]int {
	out := make(map[TaskType]int)
	for _, ep := range episodes {
		out[InferTaskType(ep.TaskDescription)]++
	}
	return out
}
