// Package symbols holds the symbol index: name/scope/kind caches, a source
// cache, the intra-file dependency graph, and hybrid (lexical + vector)
// search over symbols extracted by internal/parser.
package symbols

// Kind is the closed set of symbol kinds the index understands.
type Kind string

const (
	KindFunction  Kind = "function"
	KindMethod    Kind = "method"
	KindClass     Kind = "class"
	KindStruct    Kind = "struct"
	KindEnum      Kind = "enum"
	KindInterface Kind = "interface"
	KindTrait     Kind = "trait"
	KindType      Kind = "type"
	KindConstant  Kind = "constant"
	KindVariable  Kind = "variable"
)

// ReferenceKind classifies how a Reference relates to its target.
type ReferenceKind string

const (
	RefCall           ReferenceKind = "call"
	RefInstantiation  ReferenceKind = "instantiation"
	RefTypeReference  ReferenceKind = "type_reference"
	RefImport         ReferenceKind = "import"
	RefImplementation ReferenceKind = "implementation"
)

// Location pinpoints a symbol or reference in a source file. Lines are
// 1-based, columns are 0-based, matching the parser adapter's AST
// convention.
type Location struct {
	File        string
	LineStart   int
	LineEnd     int
	ColumnStart int
	ColumnEnd   int
}

// Reference is a use of a symbol found during the second parse pass.
type Reference struct {
	TargetSymbolID string
	ReferenceLoc   Location
	Kind           ReferenceKind
}

// Metadata carries the derived facts attached to a Symbol.
type Metadata struct {
	CyclomaticComplexity int
	TokenCost            int
	DocComment           string
	TestCoverage         float64
	UsageFrequency       int
}

// Symbol is the unit the index stores, searches, and serves. id is opaque
// and unique; dangling ids in Dependencies/References are retained (not
// pruned) until the owning file is re-indexed.
type Symbol struct {
	ID           string
	Name         string
	Kind         Kind
	Signature    string
	BodyHash     string
	Location     Location
	References   []Reference
	Dependencies []string
	Metadata     Metadata
	Embedding    []float32 // nil when the embedder failed or was skipped
}

// HasEmbedding reports whether Symbol carries a usable embedding.
func (s Symbol) HasEmbedding() bool { return len(s.Embedding) > 0 }
