package compress

import (
	"fmt"
	"sort"
	"strings"
)

// Strategy selects one of the deterministic lexical transforms.
type Strategy string

const (
	StrategyNone              Strategy = "none"
	StrategyRemoveComments    Strategy = "remove_comments"
	StrategyRemoveWhitespace  Strategy = "remove_whitespace"
	StrategySkeleton          Strategy = "skeleton"
	StrategySummarize         Strategy = "summarize"
	StrategyExtractKeyPoints  Strategy = "extract_key_points"
	StrategyTreeShaking       Strategy = "tree_shaking"
	StrategyHybrid            Strategy = "hybrid"
	StrategyUltraCompact      Strategy = "ultra_compact"
)

// declarationKeywords are the language-independent lexemes used by
// Skeleton, Summarize, ExtractKeyPoints, and the quality score.
var declarationKeywords = []string{"class", "struct", "enum", "trait", "impl", "interface", "fn", "function"}

func removeComments(text string) string {
	var out strings.Builder
	inBlock := false
	for _, line := range strings.Split(text, "\n") {
		if inBlock {
			if idx := strings.Index(line, "*/"); idx >= 0 {
				line = line[idx+2:]
				inBlock = false
			} else {
				continue
			}
		}
		line = stripLineComment(line)
		for {
			start := strings.Index(line, "/*")
			if start < 0 {
				break
			}
			if end := strings.Index(line[start:], "*/"); end >= 0 {
				line = line[:start] + line[start+end+2:]
				continue
			}
			line = line[:start]
			inBlock = true
			break
		}
		out.WriteString(line)
		out.WriteByte('\n')
	}
	return strings.TrimRight(out.String(), "\n")
}

func stripLineComment(line string) string {
	inString := byte(0)
	for i := 0; i < len(line); i++ {
		c := line[i]
		if inString != 0 {
			if c == inString && (i == 0 || line[i-1] != '\\') {
				inString = 0
			}
			continue
		}
		switch c {
		case '"', '\'', '`':
			inString = c
		case '/':
			if i+1 < len(line) && line[i+1] == '/' {
				return line[:i]
			}
		case '#':
			return line[:i]
		}
	}
	return line
}

func removeWhitespace(text string) string {
	var lines []string
	for _, line := range strings.Split(text, "\n") {
		collapsed := strings.Join(strings.Fields(line), " ")
		if collapsed != "" {
			lines = append(lines, collapsed)
		}
	}
	return strings.Join(lines, "\n")
}

func isDeclarationLine(line string) bool {
	trimmed := strings.TrimSpace(line)
	for _, kw := range declarationKeywords {
		if hasWordPrefix(trimmed, kw) {
			return true
		}
	}
	return false
}

func hasWordPrefix(s, prefix string) bool {
	if !strings.HasPrefix(s, prefix) {
		return false
	}
	if len(s) == len(prefix) {
		return true
	}
	next := s[len(prefix)]
	return next == ' ' || next == '(' || next == '<' || next == '{'
}

// skeleton retains only the signature line of any declaration block: text
// up to, not including, the first "{" at brace depth 0, or up to ";" at
// depth 0 for forward declarations.
func skeleton(text string) string {
	lines := strings.Split(text, "\n")
	var out []string
	depth := 0
	collecting := false
	var sig strings.Builder

	for _, line := range lines {
		if depth == 0 && !collecting && isDeclarationLine(line) {
			collecting = true
			sig.Reset()
		}
		for _, c := range line {
			switch c {
			case '{':
				if depth == 0 && collecting {
					out = append(out, strings.TrimSpace(sig.String()))
					collecting = false
				}
				depth++
			case '}':
				if depth > 0 {
					depth--
				}
			case ';':
				if depth == 0 && collecting {
					out = append(out, strings.TrimSpace(sig.String()))
					collecting = false
				}
			}
			if collecting {
				sig.WriteRune(c)
			}
		}
		if collecting {
			sig.WriteByte('\n')
		}
	}
	return strings.Join(out, "\n")
}

// declarationName extracts the identifier following a declaration keyword.
func declarationName(line string) (kind, name string, ok bool) {
	trimmed := strings.TrimSpace(line)
	for _, kw := range declarationKeywords {
		if !hasWordPrefix(trimmed, kw) {
			continue
		}
		rest := strings.TrimSpace(trimmed[len(kw):])
		end := strings.IndexAny(rest, " (<{:")
		if end < 0 {
			end = len(rest)
		}
		if end == 0 {
			return "", "", false
		}
		return kw, rest[:end], true
	}
	return "", "", false
}

func summarize(text string) string {
	var structures, functions []string
	for _, line := range strings.Split(text, "\n") {
		kind, name, ok := declarationName(line)
		if !ok {
			continue
		}
		switch kind {
		case "fn", "function":
			functions = append(functions, name)
		default:
			structures = append(structures, name)
		}
	}
	sort.Strings(structures)
	sort.Strings(functions)

	var parts []string
	if len(structures) > 0 {
		parts = append(parts, fmt.Sprintf("Structures: %s", strings.Join(structures, ", ")))
	}
	if len(functions) > 0 {
		parts = append(parts, fmt.Sprintf("Functions: %s", strings.Join(functions, ", ")))
	}
	return strings.Join(parts, "\n")
}

func extractKeyPoints(text string) string {
	var out []string
	for _, line := range strings.Split(text, "\n") {
		if isDeclarationLine(line) {
			out = append(out, strings.TrimSpace(line))
		}
	}
	return strings.Join(out, "\n")
}

// treeShaking drops lexically dead branches starting with "if false" whose
// braces balance within the text.
func treeShaking(text string) string {
	lines := strings.Split(text, "\n")
	var out []string
	i := 0
	for i < len(lines) {
		trimmed := strings.TrimSpace(lines[i])
		if strings.HasPrefix(trimmed, "if false") {
			depth := strings.Count(lines[i], "{") - strings.Count(lines[i], "}")
			i++
			for i < len(lines) && depth > 0 {
				depth += strings.Count(lines[i], "{") - strings.Count(lines[i], "}")
				i++
			}
			continue
		}
		out = append(out, lines[i])
		i++
	}
	return strings.Join(out, "\n")
}

func applyStrategy(strategy Strategy, text string, targetTokens int) string {
	switch strategy {
	case StrategyNone:
		return text
	case StrategyRemoveComments:
		return removeComments(text)
	case StrategyRemoveWhitespace:
		return removeWhitespace(text)
	case StrategySkeleton:
		return skeleton(text)
	case StrategySummarize:
		return summarize(text)
	case StrategyExtractKeyPoints:
		return extractKeyPoints(text)
	case StrategyTreeShaking:
		return treeShaking(text)
	case StrategyHybrid:
		return hybrid(text, targetTokens)
	case StrategyUltraCompact:
		if out := summarize(text); out != "" {
			return out
		}
		return extractKeyPoints(text)
	default:
		return text
	}
}

func hybrid(text string, targetTokens int) string {
	stages := []func(string) string{removeComments, removeWhitespace, treeShaking, skeleton}
	cur := text
	for _, stage := range stages {
		cur = stage(cur)
		if EstimateTokens(cur) <= targetTokens {
			return cur
		}
	}
	return cur
}
