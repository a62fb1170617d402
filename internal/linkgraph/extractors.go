package linkgraph

import (
	"regexp"
	"strings"
)

// directiveRe matches a comment-embedded link directive:
// @meridian:<link_type> <level>:<id>[#<anchor>]
var directiveRe = regexp.MustCompile(`@meridian:(\w+)\s+(\w+):([^\s#]+)(?:#(\S+))?`)

// frontMatterLineRe matches one "key: value" entry of a markdown YAML
// front-matter meridian block (an indented line, or one comma-separated
// item of an inline {...} mapping), where value is "<level>:<id>".
var frontMatterLineRe = regexp.MustCompile(`^\s*(\w+):\s*(\w+):(\S+)\s*$`)

const commentAnnotationConfidence = 0.9

// CommentExtractor finds @meridian: directives in source comments and
// meridian: {...} blocks in markdown YAML front-matter.
type CommentExtractor struct{}

// Extract scans content for directives, attributing discovered links as
// outgoing from sourceEntity.
func (CommentExtractor) Extract(sourceEntity Entity, content string) []Link {
	var out []Link
	for _, m := range directiveRe.FindAllStringSubmatch(content, -1) {
		out = append(out, Link{
			Type:             LinkType(m[1]),
			Source:           sourceEntity,
			Target:           Entity{Level: KnowledgeLevel(m[2]), ID: m[3], Anchor: m[4]},
			Confidence:       commentAnnotationConfidence,
			ExtractionMethod: MethodAnnotation,
		})
	}
	out = append(out, extractFrontMatter(sourceEntity, content)...)
	return out
}

func extractFrontMatter(sourceEntity Entity, content string) []Link {
	lines := strings.Split(content, "\n")
	inFrontMatter := false
	inMeridianBlock := false
	var out []Link
	for _, line := range lines {
		trimmed := strings.TrimSpace(line)
		switch {
		case trimmed == "---":
			inFrontMatter = !inFrontMatter
			continue
		case !inFrontMatter:
			continue
		case strings.HasPrefix(trimmed, "meridian:"):
			inMeridianBlock = true
			if rest := strings.TrimSpace(strings.TrimPrefix(trimmed, "meridian:")); strings.HasPrefix(rest, "{") && strings.HasSuffix(rest, "}") {
				inMeridianBlock = false
				for _, entry := range strings.Split(rest[1:len(rest)-1], ",") {
					if m := frontMatterLineRe.FindStringSubmatch(entry); m != nil {
						out = append(out, Link{
							Type:             LinkType(m[1]),
							Source:           sourceEntity,
							Target:           Entity{Level: KnowledgeLevel(m[2]), ID: m[3]},
							Confidence:       commentAnnotationConfidence,
							ExtractionMethod: MethodAnnotation,
						})
					}
				}
			}
			continue
		case inMeridianBlock:
			if m := frontMatterLineRe.FindStringSubmatch(line); m != nil {
				out = append(out, Link{
					Type:             LinkType(m[1]),
					Source:           sourceEntity,
					Target:           Entity{Level: KnowledgeLevel(m[2]), ID: m[3]},
					Confidence:       commentAnnotationConfidence,
					ExtractionMethod: MethodAnnotation,
				})
				continue
			}
			inMeridianBlock = false
		}
	}
	return out
}

// TreeSitterExtractor derives depends_on links from import-like statements
// already classified by internal/parser.
// It takes pre-extracted import targets rather than re-parsing, keeping
// this package independent of the tree-sitter binding surface.
type TreeSitterExtractor struct{}

// Extract builds one depends_on link per import target.
func (TreeSitterExtractor) Extract(sourceEntity Entity, importTargets []string) []Link {
	out := make([]Link, 0, len(importTargets))
	for _, target := range importTargets {
		out = append(out, Link{
			Type:             LinkDependsOn,
			Source:           sourceEntity,
			Target:           Entity{Level: LevelCode, ID: target},
			Confidence:       1.0,
			ExtractionMethod: MethodInference,
		})
	}
	return out
}

// markdownLinkRe matches a markdown hyperlink: [text](target).
var markdownLinkRe = regexp.MustCompile(`\[[^\]]*\]\(([^)]+)\)`)

// MarkdownExtractor extracts markdown hyperlinks as "documents" links: the
// markdown file documents whatever it links to.
type MarkdownExtractor struct{}

// Extract scans content for markdown links, emitting a documents link per
// match attributed as outgoing from sourceEntity.
func (MarkdownExtractor) Extract(sourceEntity Entity, content string) []Link {
	var out []Link
	for _, m := range markdownLinkRe.FindAllStringSubmatch(content, -1) {
		out = append(out, Link{
			Type:             LinkDocuments,
			Source:           sourceEntity,
			Target:           Entity{Level: LevelDocs, ID: m[1]},
			Confidence:       0.6,
			ExtractionMethod: MethodInference,
		})
	}
	return out
}
