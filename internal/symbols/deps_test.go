package symbols

import (
	"testing"

	"github.com/stretchr/testify/require"
)

// buildABCD wires A->B->C (call) and D->B (call).
func buildABCD(t *testing.T) *Index {
	t.Helper()
	idx := New(openTestStore(t), nil)
	syms := []Symbol{
		{ID: "A", Name: "A", Kind: KindFunction, Location: Location{File: "f.go", LineStart: 1, LineEnd: 1},
			Dependencies: []string{"B"}, References: []Reference{{TargetSymbolID: "B", Kind: RefCall}}},
		{ID: "B", Name: "B", Kind: KindFunction, Location: Location{File: "f.go", LineStart: 2, LineEnd: 2},
			Dependencies: []string{"C"}, References: []Reference{{TargetSymbolID: "C", Kind: RefCall}}},
		{ID: "C", Name: "C", Kind: KindFunction, Location: Location{File: "f.go", LineStart: 3, LineEnd: 3}},
		{ID: "D", Name: "D", Kind: KindFunction, Location: Location{File: "f.go", LineStart: 4, LineEnd: 4},
			Dependencies: []string{"B"}, References: []Reference{{TargetSymbolID: "B", Kind: RefCall}}},
	}
	for _, s := range syms {
		require.NoError(t, idx.persist(s))
	}
	return idx
}

func TestGetDependenciesBothDirections(t *testing.T) {
	idx := buildABCD(t)
	g := idx.GetDependencies("A", 3, DirectionBoth)

	require.ElementsMatch(t, []string{"A", "B", "C", "D"}, g.Nodes)

	edgeSet := make(map[[2]string]bool)
	for _, e := range g.Edges {
		edgeSet[[2]string{e.From, e.To}] = true
	}
	require.True(t, edgeSet[[2]string{"A", "B"}])
	require.True(t, edgeSet[[2]string{"B", "C"}])
	require.True(t, edgeSet[[2]string{"D", "B"}])
	require.Len(t, g.Edges, 3)
}

func TestGetDependenciesImportsOnly(t *testing.T) {
	idx := buildABCD(t)
	g := idx.GetDependencies("A", 3, DirectionImports)
	require.ElementsMatch(t, []string{"A", "B", "C"}, g.Nodes)
}

func TestGetDependenciesExportsOnly(t *testing.T) {
	idx := buildABCD(t)
	g := idx.GetDependencies("B", 3, DirectionExports)
	require.ElementsMatch(t, []string{"B", "A", "D"}, g.Nodes)
}

func TestGetDependenciesDepthBound(t *testing.T) {
	idx := buildABCD(t)
	g := idx.GetDependencies("A", 1, DirectionImports)
	require.ElementsMatch(t, []string{"A", "B"}, g.Nodes)
}
