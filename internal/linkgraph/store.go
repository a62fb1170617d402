package linkgraph

import (
	"fmt"
	"sync"
	"time"
)

func entityKey(e Entity) string {
	return string(e.Level) + ":" + e.ID
}

// Graph is the in-memory link store. Forward, reverse, by-type,
// by-level-pair, and broken indices are all maintained atomically with
// primary writes under a single mutex.
type Graph struct {
	mu sync.RWMutex

	links map[string]Link // id -> Link

	forward map[string][]string    // source entity key -> link ids
	reverse map[string][]string    // target entity key -> link ids
	byType  map[LinkType][]string  // type -> link ids
	byLevel map[LevelPair][]string // (from,to) -> link ids
	broken  map[string]bool        // link id -> validation status broken

	now func() time.Time
}

// New constructs an empty Graph.
func New() *Graph {
	return &Graph{
		links:   make(map[string]Link),
		forward: make(map[string][]string),
		reverse: make(map[string][]string),
		byType:  make(map[LinkType][]string),
		byLevel: make(map[LevelPair][]string),
		broken:  make(map[string]bool),
		now:     time.Now,
	}
}

// AddLink inserts l, indexing it across all four indices. A link without a
// validation status starts out unchecked.
func (g *Graph) AddLink(l Link) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if l.ID == "" {
		return fmt.Errorf("linkgraph: link id must not be empty")
	}
	if l.ValidationStatus == "" {
		l.ValidationStatus = StatusUnchecked
	}
	g.links[l.ID] = l
	g.forward[entityKey(l.Source)] = append(g.forward[entityKey(l.Source)], l.ID)
	g.reverse[entityKey(l.Target)] = append(g.reverse[entityKey(l.Target)], l.ID)
	g.byType[l.Type] = append(g.byType[l.Type], l.ID)
	pair := LevelPair{From: l.Source.Level, To: l.Target.Level}
	g.byLevel[pair] = append(g.byLevel[pair], l.ID)
	if l.ValidationStatus == StatusBroken {
		g.broken[l.ID] = true
	}
	return nil
}

// GetLink returns the Link with id, or (Link{}, false).
func (g *Graph) GetLink(id string) (Link, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	l, ok := g.links[id]
	return l, ok
}

// UpdateLink replaces the stored Link for l.ID, re-indexing it. The link
// must already exist.
func (g *Graph) UpdateLink(l Link) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, ok := g.links[l.ID]; !ok {
		return fmt.Errorf("linkgraph: link %s not found", l.ID)
	}
	g.removeFromIndices(l.ID)
	if l.ValidationStatus == "" {
		l.ValidationStatus = StatusUnchecked
	}
	g.links[l.ID] = l
	g.forward[entityKey(l.Source)] = append(g.forward[entityKey(l.Source)], l.ID)
	g.reverse[entityKey(l.Target)] = append(g.reverse[entityKey(l.Target)], l.ID)
	g.byType[l.Type] = append(g.byType[l.Type], l.ID)
	pair := LevelPair{From: l.Source.Level, To: l.Target.Level}
	g.byLevel[pair] = append(g.byLevel[pair], l.ID)
	if l.ValidationStatus == StatusBroken {
		g.broken[l.ID] = true
	} else {
		delete(g.broken, l.ID)
	}
	return nil
}

// RemoveLink deletes id from all four indices.
func (g *Graph) RemoveLink(id string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, ok := g.links[id]; !ok {
		return fmt.Errorf("linkgraph: link %s not found", id)
	}
	g.removeFromIndices(id)
	delete(g.links, id)
	delete(g.broken, id)
	return nil
}

// removeFromIndices removes id from forward/reverse/byType/byLevel without
// touching g.links. Caller must hold g.mu.
func (g *Graph) removeFromIndices(id string) {
	old, ok := g.links[id]
	if !ok {
		return
	}
	g.forward[entityKey(old.Source)] = removeID(g.forward[entityKey(old.Source)], id)
	g.reverse[entityKey(old.Target)] = removeID(g.reverse[entityKey(old.Target)], id)
	g.byType[old.Type] = removeID(g.byType[old.Type], id)
	pair := LevelPair{From: old.Source.Level, To: old.Target.Level}
	g.byLevel[pair] = removeID(g.byLevel[pair], id)
}

func removeID(ids []string, target string) []string {
	out := ids[:0]
	for _, id := range ids {
		if id != target {
			out = append(out, id)
		}
	}
	return out
}

func (g *Graph) resolve(ids []string) []Link {
	out := make([]Link, 0, len(ids))
	for _, id := range ids {
		if l, ok := g.links[id]; ok {
			out = append(out, l)
		}
	}
	return out
}

// FindLinksFromSource returns links whose Source equals source.
func (g *Graph) FindLinksFromSource(source Entity) []Link {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.resolve(g.forward[entityKey(source)])
}

// FindLinksToTarget returns links whose Target equals target.
func (g *Graph) FindLinksToTarget(target Entity) []Link {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.resolve(g.reverse[entityKey(target)])
}

// GetBidirectionalLinks returns (outgoing, incoming) links touching entity.
func (g *Graph) GetBidirectionalLinks(entity Entity) (outgoing, incoming []Link) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.resolve(g.forward[entityKey(entity)]), g.resolve(g.reverse[entityKey(entity)])
}

// FindLinksByType returns all links of type t.
func (g *Graph) FindLinksByType(t LinkType) []Link {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.resolve(g.byType[t])
}

// FindLinksByTypeFromSource filters FindLinksByType(t) to those whose
// Source equals source.
func (g *Graph) FindLinksByTypeFromSource(t LinkType, source Entity) []Link {
	g.mu.RLock()
	defer g.mu.RUnlock()
	var out []Link
	for _, id := range g.byType[t] {
		l, ok := g.links[id]
		if ok && entityKey(l.Source) == entityKey(source) {
			out = append(out, l)
		}
	}
	return out
}

// FindCrossLevelLinks returns links from fromLevel entities to toLevel
// entities.
func (g *Graph) FindCrossLevelLinks(fromLevel, toLevel KnowledgeLevel) []Link {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.resolve(g.byLevel[LevelPair{From: fromLevel, To: toLevel}])
}

// FindBrokenLinks returns all links currently marked broken.
func (g *Graph) FindBrokenLinks() []Link {
	g.mu.RLock()
	defer g.mu.RUnlock()
	var out []Link
	for id := range g.broken {
		if l, ok := g.links[id]; ok {
			out = append(out, l)
		}
	}
	return out
}

// ValidateLink records the outcome of a validation pass against id,
// stamping LastValidated and moving it in or out of the broken index.
func (g *Graph) ValidateLink(id string, status ValidationStatus) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	l, ok := g.links[id]
	if !ok {
		return fmt.Errorf("linkgraph: link %s not found", id)
	}
	l.ValidationStatus = status
	l.LastValidated = g.now()
	g.links[id] = l
	if status == StatusBroken {
		g.broken[id] = true
	} else {
		delete(g.broken, id)
	}
	return nil
}

// GetStatistics summarizes the graph's contents.
func (g *Graph) GetStatistics() Statistics {
	g.mu.RLock()
	defer g.mu.RUnlock()
	stats := Statistics{
		Total:    len(g.links),
		ByType:   make(map[LinkType]int),
		ByStatus: make(map[ValidationStatus]int),
	}
	for _, l := range g.links {
		stats.ByType[l.Type]++
		stats.ByStatus[l.ValidationStatus]++
	}
	return stats
}
