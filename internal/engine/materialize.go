package engine

import (
	"strconv"

	"github.com/agentic-research/loom/internal/bind"
	"github.com/agentic-research/loom/internal/component"
	"github.com/agentic-research/loom/internal/graph"
)

// Materialize projects a bound component tree into a graph store. Node IDs
// are paths of component IDs; unnamed components use their kind, and
// repeated names among siblings get an ordinal suffix.
func Materialize(root bind.Component) *graph.MemoryStore {
	store := graph.NewMemoryStore()
	id := segment(root)
	store.AddRoot(project(store, root, id))
	return store
}

func segment(c bind.Component) string {
	if c.ID() != "" {
		return c.ID()
	}
	return c.Kind()
}

func project(store *graph.MemoryStore, c bind.Component, id string) *graph.Node {
	n := &graph.Node{ID: id, Kind: c.Kind(), Name: c.ID()}
	if s, ok := c.(bind.Styled); ok {
		n.StyleKey = s.StyleKey()
	}
	if p, ok := c.(component.Propertied); ok {
		n.Properties = p.Properties()
	}

	seen := make(map[string]int)
	for _, child := range c.Children() {
		seg := segment(child)
		if k := seen[seg]; k > 0 {
			seen[seg] = k + 1
			seg += "_" + strconv.Itoa(k)
		} else {
			seen[seg] = 1
		}
		childID := id + "/" + seg
		n.Children = append(n.Children, childID)
		store.AddNode(project(store, child, childID))
	}
	return n
}
