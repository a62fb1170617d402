package symbols

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/antigravity-dev/meridian/internal/embed"
)

// newFixtureIndex seeds five functions f1..f5, each costing 100 tokens.
func newFixtureIndex(t *testing.T) *Index {
	t.Helper()
	idx := New(openTestStore(t), nil)
	for i := 1; i <= 5; i++ {
		name := "f" + string(rune('0'+i))
		s := Symbol{
			ID:        "file.go:" + string(rune('0'+i)) + ":" + name,
			Name:      name,
			Kind:      KindFunction,
			Signature: "func " + name + "()",
			Location:  Location{File: "file.go", LineStart: i, LineEnd: i},
			Metadata:  Metadata{CyclomaticComplexity: 1, TokenCost: 100},
		}
		require.NoError(t, idx.persist(s))
	}
	return idx
}

func TestSearchBudgetTruncation(t *testing.T) {
	idx := newFixtureIndex(t)
	res := idx.Search(Query{Text: "f", MaxTokens: 250})
	require.Len(t, res.Symbols, 2)
	require.Equal(t, 200, res.TotalTokens)
	require.True(t, res.Truncated)
}

func TestSearchEmptyQuery(t *testing.T) {
	idx := newFixtureIndex(t)
	res := idx.Search(Query{})
	require.Empty(t, res.Symbols)
	require.False(t, res.Truncated)
}

func TestSearchExactNameHit(t *testing.T) {
	idx := newFixtureIndex(t)
	res := idx.Search(Query{Text: "f3"})
	require.Len(t, res.Symbols, 1)
	require.Equal(t, "f3", res.Symbols[0].Name)
}

func TestSearchDetailLevelSkeletonDropsRefsAndDeps(t *testing.T) {
	idx := New(openTestStore(t), nil)
	s := Symbol{
		ID: "a", Name: "A", Kind: KindFunction,
		Location:     Location{File: "a.go", LineStart: 1, LineEnd: 1},
		References:   []Reference{{TargetSymbolID: "b", Kind: RefCall}},
		Dependencies: []string{"b"},
	}
	require.NoError(t, idx.persist(s))

	res := idx.Search(Query{Text: "A", Detail: DetailSkeleton})
	require.Len(t, res.Symbols, 1)
	require.Empty(t, res.Symbols[0].References)
	require.Empty(t, res.Symbols[0].Dependencies)
}

func TestHybridSearchFillsWithSemanticAfterLexical(t *testing.T) {
	store := openTestStore(t)
	idx := New(store, fakeEmbedder{})
	require.NoError(t, idx.persist(Symbol{ID: "x1", Name: "exactMatch", Kind: KindFunction, Location: Location{File: "a.go", LineStart: 1, LineEnd: 1}}))
	require.NoError(t, idx.persist(Symbol{ID: "x2", Name: "other", Signature: "exactMatch helper", Kind: KindFunction, Location: Location{File: "a.go", LineStart: 2, LineEnd: 2}, Embedding: []float32{1, 0}}))

	res := idx.HybridSearch(context.Background(), Query{Text: "exactMatch", MaxResults: 5})
	require.NotEmpty(t, res.Symbols)
	require.Equal(t, "exactMatch", res.Symbols[0].Name)
}

type fakeEmbedder struct{}

func (fakeEmbedder) Dimension() int { return 2 }
func (fakeEmbedder) Embed(_ context.Context, _ string) (embed.Vector, error) {
	return embed.Vector{1, 0}, nil
}
