package symbols

// Direction selects which edges GetDependencies follows.
type Direction string

const (
	DirectionImports Direction = "imports" // follow outgoing Dependencies
	DirectionExports Direction = "exports" // follow reverse: who depends on me
	DirectionBoth    Direction = "both"
)

// DefaultDepth bounds BFS depth when the caller doesn't specify one.
const DefaultDepth = 10

// Edge is one dependency edge in a DependencyGraph, carrying the
// reference kind that produced it when known.
type Edge struct {
	From string
	To   string
	Kind ReferenceKind
}

// DependencyGraph is the deduplicated result of a dependency traversal.
type DependencyGraph struct {
	Nodes []string
	Edges []Edge
}

// edgeKindFor returns the reference kind recorded on entry's Dependencies
// edge to target, defaulting to RefTypeReference when no matching
// Reference is found (in-file dependency resolution doesn't always carry
// one, e.g. a dangling edge across re-indexed files).
func edgeKindFor(s Symbol, target string) ReferenceKind {
	for _, r := range s.References {
		if r.TargetSymbolID == target {
			return r.Kind
		}
	}
	return RefTypeReference
}

// reverseDependents returns every symbol id whose Dependencies contains
// target, i.e. the exports direction: iterate all symbols' dependency
// lists and match on the given target.
func (idx *Index) reverseDependents(target string) []string {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	var out []string
	for _, s := range idx.symbols {
		for _, d := range s.Dependencies {
			if d == target {
				out = append(out, s.ID)
				break
			}
		}
	}
	return out
}

// GetDependencies runs a bounded BFS from entry, following edges per
// direction, deduplicating nodes/edges via a visited set, and stopping at
// depth. Cycles are permitted; BFS never recurses on the graph.
func (idx *Index) GetDependencies(entry string, depth int, direction Direction) DependencyGraph {
	if depth <= 0 {
		depth = DefaultDepth
	}

	visited := map[string]bool{entry: true}
	g := DependencyGraph{Nodes: []string{entry}}
	edgeSeen := make(map[Edge]bool)

	type neighbor struct {
		id       string
		incoming bool // n depends on cur, so the edge runs n -> cur
	}
	type queued struct {
		id    string
		level int
	}
	queue := []queued{{id: entry, level: 0}}

	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		if cur.level >= depth {
			continue
		}

		s, ok := idx.Get(cur.id)
		var neighbors []neighbor
		if direction == DirectionImports || direction == DirectionBoth {
			if ok {
				for _, d := range s.Dependencies {
					neighbors = append(neighbors, neighbor{id: d})
				}
			}
		}
		if direction == DirectionExports || direction == DirectionBoth {
			for _, d := range idx.reverseDependents(cur.id) {
				neighbors = append(neighbors, neighbor{id: d, incoming: true})
			}
		}

		for _, n := range neighbors {
			var e Edge
			if n.incoming {
				e = Edge{From: n.id, To: cur.id, Kind: edgeKindForID(idx, n.id, cur.id)}
			} else {
				e = Edge{From: cur.id, To: n.id, Kind: edgeKindForID(idx, cur.id, n.id)}
			}
			if !edgeSeen[e] {
				edgeSeen[e] = true
				g.Edges = append(g.Edges, e)
			}
			if !visited[n.id] {
				visited[n.id] = true
				g.Nodes = append(g.Nodes, n.id)
				queue = append(queue, queued{id: n.id, level: cur.level + 1})
			}
		}
	}

	return g
}

func edgeKindForID(idx *Index, from, to string) ReferenceKind {
	s, ok := idx.Get(from)
	if !ok {
		return RefTypeReference
	}
	return edgeKindFor(s, to)
}
