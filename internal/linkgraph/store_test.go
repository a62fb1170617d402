package linkgraph

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func sampleLink(id string) Link {
	return Link{
		ID:               id,
		Type:             LinkDependsOn,
		Source:           Entity{Level: LevelCode, ID: "a.go"},
		Target:           Entity{Level: LevelCode, ID: "b.go"},
		ValidationStatus: StatusUnchecked,
	}
}

// TestAddGetFindRoundTrip adds a link and expects it back from Get and
// from both the source and target lookups.
func TestAddGetFindRoundTrip(t *testing.T) {
	g := New()
	l := sampleLink("l1")
	require.NoError(t, g.AddLink(l))

	got, ok := g.GetLink("l1")
	require.True(t, ok)
	require.Equal(t, l, got)

	fromSource := g.FindLinksFromSource(l.Source)
	require.Contains(t, fromSource, l)

	toTarget := g.FindLinksToTarget(l.Target)
	require.Contains(t, toTarget, l)
}

// TestRemoveLinkClearsAllIndices removes a link and expects every index
// to stop returning it.
func TestRemoveLinkClearsAllIndices(t *testing.T) {
	g := New()
	l := sampleLink("l1")
	require.NoError(t, g.AddLink(l))
	require.NoError(t, g.RemoveLink("l1"))

	_, ok := g.GetLink("l1")
	require.False(t, ok)
	require.Empty(t, g.FindLinksFromSource(l.Source))
	require.Empty(t, g.FindLinksToTarget(l.Target))
	require.Empty(t, g.FindLinksByType(LinkDependsOn))
	require.Empty(t, g.FindCrossLevelLinks(LevelCode, LevelCode))
}

// TestInverseRoundTrip checks Inverse is an involution.
func TestInverseRoundTrip(t *testing.T) {
	l := sampleLink("l1")
	require.Equal(t, l, l.Inverse().Inverse())
}

func TestFindBrokenLinksAndValidate(t *testing.T) {
	g := New()
	l := sampleLink("l1")
	require.NoError(t, g.AddLink(l))
	require.NoError(t, g.ValidateLink("l1", StatusBroken))

	broken := g.FindBrokenLinks()
	require.Len(t, broken, 1)
	require.Equal(t, "l1", broken[0].ID)
	require.False(t, broken[0].LastValidated.IsZero())

	require.NoError(t, g.ValidateLink("l1", StatusValid))
	require.Empty(t, g.FindBrokenLinks())
}

func TestGetStatistics(t *testing.T) {
	g := New()
	require.NoError(t, g.AddLink(sampleLink("l1")))
	require.NoError(t, g.AddLink(sampleLink("l2")))
	require.NoError(t, g.ValidateLink("l2", StatusStale))

	stats := g.GetStatistics()
	require.Equal(t, 2, stats.Total)
	require.Equal(t, 2, stats.ByType[LinkDependsOn])
	require.Equal(t, 1, stats.ByStatus[StatusUnchecked])
	require.Equal(t, 1, stats.ByStatus[StatusStale])
}
