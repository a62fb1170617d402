package parser

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/antigravity-dev/meridian/internal/symbols"
)

// Extract parses content as lang and returns the symbols declared directly
// in it, together with a second-pass reference list attached to each
// symbol. Extract never returns a partial tree on error: a parse
// failure yields (nil, err).
func Extract(path string, lang Language, content []byte) ([]symbols.Symbol, error) {
	g, ok := grammars[lang]
	if !ok {
		return nil, fmt.Errorf("parser: no grammar table for %s", lang)
	}

	root, closer, err := parseSource(lang, content)
	if err != nil {
		return nil, err
	}
	defer closer()

	var out []symbols.Symbol
	root.walk(func(n node) bool {
		symKind, isDecl := g.declarations[n.kind()]
		if !isDecl {
			return true
		}
		sym, ok := buildSymbol(path, lang, g, n, symKind, content)
		if ok {
			out = append(out, sym)
		}
		return true
	})

	refs := extractReferences(g, root, out)
	byID := make(map[string]int, len(out))
	for i, s := range out {
		byID[s.ID] = i
	}
	for _, r := range refs {
		if idx, ok := byID[r.owner]; ok {
			out[idx].References = append(out[idx].References, r.Reference)
		}
	}

	return out, nil
}

func buildSymbol(path string, lang Language, g grammar, n node, symKind string, source []byte) (symbols.Symbol, bool) {
	nameNode := n.childByFieldName("name")
	if !nameNode.valid() {
		nameNode = findFirstIdentifier(n)
	}
	if !nameNode.valid() {
		return symbols.Symbol{}, false
	}
	name := nameNode.text()
	if name == "" {
		return symbols.Symbol{}, false
	}

	kind := refineKind(lang, g, n, symKind)

	loc := symbols.Location{
		File:        path,
		LineStart:   n.startLine(),
		LineEnd:     n.endLine(),
		ColumnStart: n.startColumn(),
		ColumnEnd:   n.endColumn(),
	}

	body := n.text()
	sig := signatureOf(n, body)
	complexity := cyclomaticComplexity(g, n)
	doc := nearestDocComment(g, n, source)

	id := symbolID(path, name, loc.LineStart)

	return symbols.Symbol{
		ID:        id,
		Name:      name,
		Kind:      symbols.Kind(kind),
		Signature: sig,
		BodyHash:  hashBody(body),
		Location:  loc,
		Metadata: symbols.Metadata{
			CyclomaticComplexity: complexity,
			TokenCost:            len(body) / 4,
			DocComment:           doc,
		},
	}, true
}

// refineKind resolves ambiguities the flat declarations table can't: Go's
// type_spec covers struct/interface/alias declarations alike, Python and
// Rust nest methods inside a class/impl body rather than naming them
// distinctly, and TypeScript type_alias_declaration can wrap an interface
// shape.
func refineKind(lang Language, g grammar, n node, symKind string) string {
	switch lang {
	case LangGo:
		if symKind == "type" {
			if typ := n.childByFieldName("type"); typ.valid() {
				switch typ.kind() {
				case "struct_type":
					return "struct"
				case "interface_type":
					return "interface"
				}
			}
			return "type"
		}
	case LangPython:
		if symKind == "function" && insideKind(n, "class_definition") {
			return "method"
		}
	case LangRust:
		if symKind == "function" && insideKind(n, "impl_item") {
			return "method"
		}
	}
	return symKind
}

func insideKind(n node, ancestorKind string) bool {
	for p := n.parent(); p.valid(); p = p.parent() {
		if p.kind() == ancestorKind {
			return true
		}
	}
	return false
}

func findFirstIdentifier(n node) node {
	for i := 0; i < n.namedChildCount(); i++ {
		c := n.namedChild(i)
		switch c.kind() {
		case "identifier", "type_identifier", "property_identifier", "field_identifier":
			return c
		}
	}
	return node{}
}

// signatureOf returns the declaration text up to the start of its body
// block, trimmed: everything before the opening "{", or for a Python suite
// the header through its ":".
func signatureOf(n node, body string) string {
	blockNode := n.childByFieldName("body")
	if !blockNode.valid() {
		for i := 0; i < n.childCount(); i++ {
			c := n.child(i)
			if strings.Contains(c.kind(), "block") || c.kind() == "suite" {
				blockNode = c
				break
			}
		}
	}
	if !blockNode.valid() {
		return firstLine(body)
	}
	headerLen := blockNode.startLine() - n.startLine()
	lines := strings.SplitN(body, "\n", headerLen+2)
	if headerLen+1 <= len(lines) {
		header := lines[:headerLen+1]
		cut := blockNode.startColumn()
		if headerLen == 0 {
			cut -= n.startColumn()
		}
		if cut >= 0 && cut <= len(header[headerLen]) {
			header[headerLen] = header[headerLen][:cut]
		}
		return strings.TrimSpace(strings.Join(header, "\n"))
	}
	return firstLine(body)
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return strings.TrimSpace(s[:i])
	}
	return strings.TrimSpace(s)
}

// cyclomaticComplexity counts decision points in n's subtree per grammar g,
// starting from a base complexity of 1.
func cyclomaticComplexity(g grammar, n node) int {
	complexity := 1
	n.walk(func(c node) bool {
		if c.n != n.n && g.declarations[c.kind()] != "" {
			return false // don't descend into nested declarations
		}
		if g.decisionKinds[c.kind()] {
			complexity++
		}
		if isShortCircuitBinary(g, c) {
			complexity++
		}
		return true
	})
	return complexity
}

func isShortCircuitBinary(g grammar, n node) bool {
	if !strings.Contains(n.kind(), "binary") {
		return false
	}
	op := n.childByFieldName("operator")
	if !op.valid() {
		return false
	}
	return g.shortCircuitOperators[op.text()]
}

// nearestDocComment walks backward over n's preceding siblings, collecting
// a contiguous run of comment nodes immediately above the declaration, and
// returns its text if the run's first comment starts with a recognized doc
// marker.
func nearestDocComment(g grammar, n node, source []byte) string {
	parent := n.parent()
	if !parent.valid() {
		return ""
	}
	var ownIndex = -1
	for i := 0; i < parent.childCount(); i++ {
		if parent.child(i).n == n.n {
			ownIndex = i
			break
		}
	}
	if ownIndex <= 0 {
		return ""
	}

	var lines []string
	lastLine := n.startLine()
	for i := ownIndex - 1; i >= 0; i-- {
		c := parent.child(i)
		if !g.commentKinds[c.kind()] {
			break
		}
		if lastLine-c.endLine() > 1 {
			break
		}
		lines = append([]string{c.text()}, lines...)
		lastLine = c.startLine()
	}
	if len(lines) == 0 {
		return ""
	}
	joined := strings.Join(lines, "\n")
	for _, marker := range g.docMarkers {
		if strings.HasPrefix(strings.TrimSpace(lines[0]), marker) {
			return strings.TrimSpace(joined)
		}
	}
	return ""
}

func hashBody(body string) string {
	sum := sha256.Sum256([]byte(body))
	return hex.EncodeToString(sum[:])
}

func symbolID(path, name string, line int) string {
	return fmt.Sprintf("%s:%d:%s", path, line, name)
}
