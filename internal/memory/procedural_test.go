package memory

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestInferTaskType(t *testing.T) {
	require.Equal(t, TaskTypeBugFix, InferTaskType("fix the null pointer bug"))
	require.Equal(t, TaskTypeRefactor, InferTaskType("refactor the dispatcher"))
	require.Equal(t, TaskTypeSecurity, InferTaskType("patch a security vulnerability"))
	require.Equal(t, TaskType("Other(rename the module)"), InferTaskType("rename the module please"))
}

func TestLearnFromEpisodesProducesProcedure(t *testing.T) {
	store := openTestStore(t)
	p := NewProcedural(store)

	episodes := []TaskEpisode{
		{TaskDescription: "fix crash on nil", FilesTouched: []string{"a.go"}, SolutionPath: "check nil then return", Outcome: OutcomeSuccess, QueriesMade: []string{"nil deref"}, TokensUsed: 900},
		{TaskDescription: "fix crash on empty", FilesTouched: []string{"a.go"}, SolutionPath: "check nil then return", Outcome: OutcomeSuccess, QueriesMade: []string{"nil deref"}, TokensUsed: 1100},
		{TaskDescription: "fix crash on overflow", SolutionPath: "clamp value", Outcome: OutcomeFailure},
	}
	require.NoError(t, p.LearnFromEpisodes(episodes))

	proc, found, err := p.Get(TaskTypeBugFix)
	require.NoError(t, err)
	require.True(t, found)
	require.NotEmpty(t, proc.Steps)
	require.Equal(t, "check nil then return", proc.Steps[0].Description)
	require.Contains(t, proc.RequiredContext, "a.go")
	require.Contains(t, proc.TypicalQueries, "nil deref")
	require.Contains(t, proc.CommonPitfalls, "Failed at: clamp value")
	require.Equal(t, 3, proc.ExecutionCount)
	require.InDelta(t, 2.0/3.0, proc.SuccessRate, 1e-9)
}

func TestNextStepSkipsCompleted(t *testing.T) {
	proc := Procedure{Steps: []Step{
		{Description: "read file"},
		{Description: "edit file"},
		{Description: "run tests"},
	}}
	step, ok := NextStep(proc, []string{"I read file already"})
	require.True(t, ok)
	require.Equal(t, "edit file", step.Description)
}
