package parser

import (
	"fmt"

	sitter "github.com/tree-sitter/go-tree-sitter"
	ts_go "github.com/tree-sitter/tree-sitter-go/bindings/go"
	ts_js "github.com/tree-sitter/tree-sitter-javascript/bindings/go"
	ts_py "github.com/tree-sitter/tree-sitter-python/bindings/go"
	ts_rust "github.com/tree-sitter/tree-sitter-rust/bindings/go"
	ts_tsx "github.com/tree-sitter/tree-sitter-typescript/bindings/go"
)

// languageFor returns the compiled tree-sitter grammar for a supported
// Language.
func languageFor(lang Language) (*sitter.Language, bool) {
	switch lang {
	case LangGo:
		return sitter.NewLanguage(ts_go.Language()), true
	case LangRust:
		return sitter.NewLanguage(ts_rust.Language()), true
	case LangPython:
		return sitter.NewLanguage(ts_py.Language()), true
	case LangJavaScript:
		return sitter.NewLanguage(ts_js.Language()), true
	case LangTypeScript:
		return sitter.NewLanguage(ts_tsx.LanguageTypescript()), true
	case LangTSX:
		return sitter.NewLanguage(ts_tsx.LanguageTSX()), true
	default:
		return nil, false
	}
}

// node is a thin, library-agnostic view over a *sitter.Node plus the source
// bytes it was parsed from. Isolating the tree-sitter API surface behind
// this type keeps the extraction logic in extract.go and references.go
// independent of binding-specific method names.
type node struct {
	n      *sitter.Node
	source []byte
}

func wrap(n *sitter.Node, source []byte) node {
	return node{n: n, source: source}
}

func (nd node) valid() bool { return nd.n != nil }

func (nd node) kind() string {
	if !nd.valid() {
		return ""
	}
	return nd.n.Kind()
}

func (nd node) text() string {
	if !nd.valid() {
		return ""
	}
	return nd.n.Utf8Text(nd.source)
}

func (nd node) startLine() int {
	if !nd.valid() {
		return 0
	}
	return int(nd.n.StartPosition().Row) + 1
}

func (nd node) endLine() int {
	if !nd.valid() {
		return 0
	}
	return int(nd.n.EndPosition().Row) + 1
}

func (nd node) startColumn() int {
	if !nd.valid() {
		return 0
	}
	return int(nd.n.StartPosition().Column)
}

func (nd node) endColumn() int {
	if !nd.valid() {
		return 0
	}
	return int(nd.n.EndPosition().Column)
}

func (nd node) childCount() int {
	if !nd.valid() {
		return 0
	}
	return int(nd.n.ChildCount())
}

func (nd node) child(i int) node {
	if !nd.valid() {
		return node{}
	}
	return wrap(nd.n.Child(uint(i)), nd.source)
}

func (nd node) namedChildCount() int {
	if !nd.valid() {
		return 0
	}
	return int(nd.n.NamedChildCount())
}

func (nd node) namedChild(i int) node {
	if !nd.valid() {
		return node{}
	}
	return wrap(nd.n.NamedChild(uint(i)), nd.source)
}

func (nd node) childByFieldName(name string) node {
	if !nd.valid() {
		return node{}
	}
	return wrap(nd.n.ChildByFieldName(name), nd.source)
}

func (nd node) parent() node {
	if !nd.valid() {
		return node{}
	}
	return wrap(nd.n.Parent(), nd.source)
}

// walk calls visit for every node in the subtree rooted at nd, in document
// order, pre-order. Returning false from visit skips descending into that
// node's children (but siblings still continue).
func (nd node) walk(visit func(node) bool) {
	if !nd.valid() {
		return
	}
	if !visit(nd) {
		return
	}
	for i := 0; i < nd.childCount(); i++ {
		nd.child(i).walk(visit)
	}
}

// parseSource runs the tree-sitter parser for lang over content and returns
// the root node together with a closer the caller must invoke once done.
func parseSource(lang Language, content []byte) (node, func(), error) {
	tsLang, ok := languageFor(lang)
	if !ok {
		return node{}, func() {}, fmt.Errorf("parser: no grammar binding available for %s", lang)
	}
	p := sitter.NewParser()
	if err := p.SetLanguage(tsLang); err != nil {
		p.Close()
		return node{}, func() {}, fmt.Errorf("parser: set language %s: %w", lang, err)
	}
	tree := p.Parse(content, nil)
	if tree == nil {
		p.Close()
		return node{}, func() {}, fmt.Errorf("parser: parse failed for %s", lang)
	}
	root := wrap(tree.RootNode(), content)
	closer := func() {
		tree.Close()
		p.Close()
	}
	return root, closer, nil
}
