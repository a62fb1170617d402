package parser

import (
	"github.com/antigravity-dev/meridian/internal/symbols"
)

// ownedReference pairs a Reference with the ID of the symbol it was found
// inside, before it is folded into that symbol's References slice.
type ownedReference struct {
	owner string
	symbols.Reference
}

// extractReferences runs the second parse pass: for every identifier-kind
// leaf in the tree, if its text matches a name declared in decls, record a
// Reference on whichever declared symbol's span contains the identifier.
// Kind is inferred from the identifier's immediate parent node kind. A
// symbol referencing itself (e.g. a recursive call) is recorded
// like any other use; callers needing to filter self-references can diff
// TargetSymbolID against owner.
func extractReferences(g grammar, root node, decls []symbols.Symbol) []ownedReference {
	if len(decls) == 0 {
		return nil
	}

	byName := make(map[string][]symbols.Symbol, len(decls))
	for _, s := range decls {
		byName[s.Name] = append(byName[s.Name], s)
	}

	var refs []ownedReference
	root.walk(func(n node) bool {
		if !g.identifierKinds[n.kind()] {
			return true
		}
		name := n.text()
		targets, ok := byName[name]
		if !ok {
			return true
		}
		line := n.startLine()
		owner := enclosingSymbol(decls, line)
		if owner == "" {
			return true
		}

		kind := classifyReference(g, n)
		for _, target := range targets {
			if target.ID == owner && target.Location.LineStart == line {
				continue // skip the declaration occurrence itself
			}
			refs = append(refs, ownedReference{
				owner: owner,
				Reference: symbols.Reference{
					TargetSymbolID: target.ID,
					ReferenceLoc: symbols.Location{
						File:        target.Location.File,
						LineStart:   line,
						LineEnd:     n.endLine(),
						ColumnStart: n.startColumn(),
						ColumnEnd:   n.endColumn(),
					},
					Kind: kind,
				},
			})
		}
		return true
	})
	return refs
}

// enclosingSymbol returns the ID of the declared symbol whose line range
// contains line, preferring the innermost (smallest) enclosing range so a
// reference inside a method picks the method, not its containing class.
func enclosingSymbol(decls []symbols.Symbol, line int) string {
	best := ""
	bestSpan := -1
	for _, s := range decls {
		if line < s.Location.LineStart || line > s.Location.LineEnd {
			continue
		}
		span := s.Location.LineEnd - s.Location.LineStart
		if bestSpan == -1 || span < bestSpan {
			bestSpan = span
			best = s.ID
		}
	}
	return best
}

func classifyReference(g grammar, n node) symbols.ReferenceKind {
	p := n.parent()
	if !p.valid() {
		return symbols.RefTypeReference
	}
	switch {
	case g.importKinds[p.kind()]:
		return symbols.RefImport
	case g.instantiationKinds[p.kind()]:
		// A parent kind that is also a call kind (python's "call") is an
		// instantiation only when the callee name starts upper-case.
		if name := n.text(); g.callKinds[p.kind()] && (name == "" || name[0] < 'A' || name[0] > 'Z') {
			return symbols.RefCall
		}
		return symbols.RefInstantiation
	case g.implementationKinds[p.kind()]:
		return symbols.RefImplementation
	case g.callKinds[p.kind()]:
		return symbols.RefCall
	default:
		return symbols.RefTypeReference
	}
}
