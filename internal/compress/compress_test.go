package compress

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCompressEmptyTextReturnsEmptyRatioOne(t *testing.T) {
	out := Compress("", StrategyNone, 100)
	require.Equal(t, "", out.Text)
	require.Equal(t, 1.0, out.Ratio)
}

func TestCompressNoneIsIdentity(t *testing.T) {
	text := "function foo() {\n  return 1\n}\n"
	out := Compress(text, StrategyNone, 1000)
	require.Equal(t, text, out.Text)
}

func TestRemoveCommentsStripsLineAndBlock(t *testing.T) {
	text := "function foo() { // trailing\n  /* block\n comment */\n  return 1\n}\n"
	out := removeComments(text)
	require.NotContains(t, out, "trailing")
	require.NotContains(t, out, "block")
	require.Contains(t, out, "return 1")
}

func TestRemoveWhitespaceCollapsesAndDropsBlankLines(t *testing.T) {
	text := "a    b\n\n\nc   d\n"
	out := removeWhitespace(text)
	require.Equal(t, "a b\nc d", out)
}

// TestCompressSkeleton keeps signature lines and drops function bodies.
func TestCompressSkeleton(t *testing.T) {
	text := "function add(a, b) {\n  return a + b\n}\n\nclass Foo {\n  bar() {\n    return 1\n  }\n}\n"
	out := skeleton(text)
	require.Contains(t, out, "function add(a, b)")
	require.Contains(t, out, "class Foo")
	require.NotContains(t, out, "return a + b")
}

func TestSummarizeListsStructuresAndFunctions(t *testing.T) {
	text := "struct Point { x int }\nfunction dist(a, b) {}\n"
	out := summarize(text)
	require.Contains(t, out, "Structures: Point")
	require.Contains(t, out, "Functions: dist")
}

func TestUltraCompactFallsBackToKeyPoints(t *testing.T) {
	text := "x := 1\ny := 2\n"
	out := applyStrategy(StrategyUltraCompact, text, 100)
	require.Equal(t, extractKeyPoints(text), out)
}

func TestTreeShakingDropsDeadBranch(t *testing.T) {
	text := "function f() {\n  if false {\n    deadCode()\n  }\n  return 1\n}\n"
	out := treeShaking(text)
	require.NotContains(t, out, "deadCode")
	require.Contains(t, out, "return 1")
}

func TestCompressTruncatesAndAppendsMarkerWhenOverBudget(t *testing.T) {
	text := strings.Repeat("function f() { return 1 }\n", 100)
	out := Compress(text, StrategyNone, 5)
	require.Contains(t, out.Text, "[truncated]")
}

func TestCompressorHonorsTargetTokensOrMarksTruncated(t *testing.T) {
	text := strings.Repeat("a", 1000)
	out := Compress(text, StrategyNone, 10)
	withinBudget := EstimateTokens(out.Text) <= 10
	require.True(t, withinBudget || strings.Contains(out.Text, "[truncated]"))
}
