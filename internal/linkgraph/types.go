// Package linkgraph stores typed, directional links between
// knowledge-level-qualified identifiers (spec/code/docs/examples/tests)
// and the extractors that discover them from source and markdown.
package linkgraph

import "time"

// KnowledgeLevel is the closed set of identifier namespaces a Link can
// connect.
type KnowledgeLevel string

const (
	LevelSpec     KnowledgeLevel = "spec"
	LevelCode     KnowledgeLevel = "code"
	LevelDocs     KnowledgeLevel = "docs"
	LevelExamples KnowledgeLevel = "examples"
	LevelTests    KnowledgeLevel = "tests"
)

// LinkType is the closed set of relations a Link may carry:
// realizes/implemented_by, documented_in/documents, tested_by/tests,
// shows_example/exemplifies, depends_on/depended_on_by. inverseOf maps
// each type to its directed inverse for Inverse().
type LinkType string

const (
	LinkRealizes       LinkType = "realizes"
	LinkImplementedBy  LinkType = "implemented_by"
	LinkDocumentedIn   LinkType = "documented_in"
	LinkDocuments      LinkType = "documents"
	LinkTestedBy       LinkType = "tested_by"
	LinkTests          LinkType = "tests"
	LinkShowsExample   LinkType = "shows_example"
	LinkExemplifies    LinkType = "exemplifies"
	LinkDependsOn      LinkType = "depends_on"
	LinkDependedOnBy   LinkType = "depended_on_by"
)

var inverseOf = map[LinkType]LinkType{
	LinkRealizes:      LinkImplementedBy,
	LinkImplementedBy: LinkRealizes,
	LinkDocumentedIn:  LinkDocuments,
	LinkDocuments:     LinkDocumentedIn,
	LinkTestedBy:      LinkTests,
	LinkTests:         LinkTestedBy,
	LinkShowsExample:  LinkExemplifies,
	LinkExemplifies:   LinkShowsExample,
	LinkDependsOn:     LinkDependedOnBy,
	LinkDependedOnBy:  LinkDependsOn,
}

// ExtractionMethod records how a Link was discovered.
type ExtractionMethod string

const (
	MethodAnnotation ExtractionMethod = "annotation"
	MethodInference  ExtractionMethod = "inference"
	MethodManual     ExtractionMethod = "manual"
)

// ValidationStatus tracks whether a Link's endpoints still resolve.
type ValidationStatus string

const (
	StatusUnchecked ValidationStatus = "unchecked"
	StatusValid     ValidationStatus = "valid"
	StatusBroken    ValidationStatus = "broken"
	StatusStale     ValidationStatus = "stale"
)

// Entity qualifies an identifier with the knowledge level it lives in.
type Entity struct {
	Level  KnowledgeLevel `json:"level"`
	ID     string         `json:"id"`
	Anchor string         `json:"anchor,omitempty"`
}

// Link is a typed, directional relation between two Entities.
type Link struct {
	ID               string           `json:"id"`
	Type             LinkType         `json:"type"`
	Source           Entity           `json:"source"`
	Target           Entity           `json:"target"`
	Confidence       float64          `json:"confidence"`
	ExtractionMethod ExtractionMethod `json:"extraction_method"`
	ValidationStatus ValidationStatus `json:"validation_status"`
	LastValidated    time.Time        `json:"last_validated,omitempty"`
	Creator          string           `json:"creator,omitempty"`
	CreatedAt        time.Time        `json:"created_at"`
}

// Inverse returns a derived Link with source/target swapped and type
// reversed, carrying the same confidence and extraction method. The
// canonical stored direction remains whatever was extracted; Inverse is
// only for presentation.
func (l Link) Inverse() Link {
	inv := l
	inv.Type = inverseOf[l.Type]
	inv.Source, inv.Target = l.Target, l.Source
	return inv
}

// LevelPair identifies a (from, to) knowledge-level pair for cross-level
// queries.
type LevelPair struct {
	From KnowledgeLevel
	To   KnowledgeLevel
}

// Statistics summarizes the link graph's contents.
type Statistics struct {
	Total    int
	ByType   map[LinkType]int
	ByStatus map[ValidationStatus]int
}
