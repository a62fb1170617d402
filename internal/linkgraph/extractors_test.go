package linkgraph

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCommentExtractorDirective(t *testing.T) {
	content := "// @meridian:depends_on code:parser.go#Extract\nfunc f() {}\n"
	links := CommentExtractor{}.Extract(Entity{Level: LevelCode, ID: "extract.go"}, content)
	require.Len(t, links, 1)
	require.Equal(t, LinkDependsOn, links[0].Type)
	require.Equal(t, "parser.go", links[0].Target.ID)
	require.Equal(t, "Extract", links[0].Target.Anchor)
	require.Equal(t, MethodAnnotation, links[0].ExtractionMethod)
}

func TestCommentExtractorFrontMatter(t *testing.T) {
	content := "---\ntitle: Sample\nmeridian:\n  documents: code:parser.go\n---\n# Heading\n"
	links := CommentExtractor{}.Extract(Entity{Level: LevelDocs, ID: "doc.md"}, content)
	require.Len(t, links, 1)
	require.Equal(t, LinkDocuments, links[0].Type)
	require.Equal(t, "parser.go", links[0].Target.ID)
}

func TestTreeSitterExtractorDependsOn(t *testing.T) {
	links := TreeSitterExtractor{}.Extract(Entity{Level: LevelCode, ID: "a.go"}, []string{"fmt", "os"})
	require.Len(t, links, 2)
	require.Equal(t, LinkDependsOn, links[0].Type)
	require.Equal(t, MethodInference, links[0].ExtractionMethod)
}

func TestMarkdownExtractorHyperlinks(t *testing.T) {
	content := "See the [architecture notes](architecture.md) for details.\n"
	links := MarkdownExtractor{}.Extract(Entity{Level: LevelDocs, ID: "readme.md"}, content)
	require.Len(t, links, 1)
	require.Equal(t, "architecture.md", links[0].Target.ID)
}
