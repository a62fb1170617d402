package memory

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSemanticRelatedAndDependents(t *testing.T) {
	store := openTestStore(t)
	s := NewSemantic(store)

	require.NoError(t, s.UpsertRelationship(SymbolRelationship{ID: "r1", From: "a", To: "b", Type: RelCalls, Strength: 0.9, Frequency: 3}))
	require.NoError(t, s.UpsertRelationship(SymbolRelationship{ID: "r2", From: "b", To: "c", Type: RelCalls, Strength: 0.5, Frequency: 1}))

	related, err := s.FindRelatedSymbols("a")
	require.NoError(t, err)
	require.Len(t, related, 1)
	require.Equal(t, "b", related[0].To)

	dependents, err := s.FindDependents("c")
	require.NoError(t, err)
	require.Len(t, dependents, 1)
	require.Equal(t, "b", dependents[0].From)
}

func TestSemanticFindConnectionPath(t *testing.T) {
	store := openTestStore(t)
	s := NewSemantic(store)
	require.NoError(t, s.UpsertRelationship(SymbolRelationship{ID: "r1", From: "a", To: "b"}))
	require.NoError(t, s.UpsertRelationship(SymbolRelationship{ID: "r2", From: "b", To: "c"}))

	path, err := s.FindConnectionPath("a", "c", 5)
	require.NoError(t, err)
	require.Equal(t, []string{"a", "b", "c"}, path)

	path, err = s.FindConnectionPath("a", "c", 1)
	require.NoError(t, err)
	require.Nil(t, path)
}

func TestSemanticConsolidateMergesSimilarPatterns(t *testing.T) {
	store := openTestStore(t)
	s := NewSemantic(store)
	require.NoError(t, s.UpsertPattern(CodePattern{ID: "p1", Name: "retry", ContextMarkers: []string{"a", "b"}, Frequency: 2, SuccessRate: 1}))
	require.NoError(t, s.UpsertPattern(CodePattern{ID: "p2", Name: "retry", ContextMarkers: []string{"a", "b"}, Frequency: 1, SuccessRate: 0}))
	require.NoError(t, s.Consolidate())

	patterns, err := s.Patterns()
	require.NoError(t, err)
	require.Len(t, patterns, 1)
	require.Equal(t, 3, patterns[0].Frequency)
	require.InDelta(t, 2.0/3.0, patterns[0].SuccessRate, 1e-9)

	merged := mergeSimilar([]CodePattern{
		{Name: "retry", ContextMarkers: []string{"a", "b"}, Frequency: 2, SuccessRate: 1},
		{Name: "retry", ContextMarkers: []string{"x"}, Frequency: 1, SuccessRate: 0},
	})
	require.Len(t, merged, 2)
}
