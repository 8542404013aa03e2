// Package graph stores a materialized component tree as addressable nodes.
package graph

import (
	"errors"
	"strings"
	"sync"

	"github.com/RoaringBitmap/roaring"
)

var ErrNotFound = errors.New("node not found")

// Node is one materialized component. IDs are slash-separated paths from
// the root.
type Node struct {
	ID         string
	Kind       string
	Name       string
	StyleKey   string
	Properties map[string]any
	Children   []string
}

// Graph is the read side of a materialized tree.
type Graph interface {
	GetNode(id string) (*Node, error)
	ListChildren(id string) ([]string, error)
	// NodesOfKind returns every node of a component kind in insertion order.
	NodesOfKind(kind string) ([]*Node, error)
}

type MemoryStore struct {
	mu    sync.RWMutex
	nodes map[string]*Node
	roots []string

	// Roaring bitmap index: component kind → set of internal node IDs.
	kindToNodes map[string]*roaring.Bitmap
	nodeIntID   map[string]uint32
	intToNodeID []string
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		nodes:       make(map[string]*Node),
		roots:       []string{},
		kindToNodes: make(map[string]*roaring.Bitmap),
		nodeIntID:   make(map[string]uint32),
	}
}

// AddRoot registers a node as a top-level root and adds it to the store.
func (s *MemoryStore) AddRoot(n *Node) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nodes[n.ID] = n
	s.indexNode(n)
	for _, r := range s.roots {
		if r == n.ID {
			return
		}
	}
	s.roots = append(s.roots, n.ID)
}

// AddNode adds a non-root node to the store.
func (s *MemoryStore) AddNode(n *Node) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nodes[n.ID] = n
	s.indexNode(n)
}

// indexNode assigns an internal bitmap ID and registers the node under its
// kind. Must be called with s.mu held.
func (s *MemoryStore) indexNode(n *Node) {
	intID, ok := s.nodeIntID[n.ID]
	if !ok {
		intID = uint32(len(s.intToNodeID))
		s.nodeIntID[n.ID] = intID
		s.intToNodeID = append(s.intToNodeID, n.ID)
	}
	for kind, bm := range s.kindToNodes {
		if kind != n.Kind {
			bm.Remove(intID)
		}
	}
	bm, exists := s.kindToNodes[n.Kind]
	if !exists {
		bm = roaring.New()
		s.kindToNodes[n.Kind] = bm
	}
	bm.Add(intID)
}

// Len returns the number of stored nodes.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.nodes)
}

func normalize(id string) string {
	return strings.TrimPrefix(id, "/")
}

// GetNode implements Graph.
func (s *MemoryStore) GetNode(id string) (*Node, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n, ok := s.nodes[normalize(id)]
	if !ok {
		return nil, ErrNotFound
	}
	return n, nil
}

// ListChildren implements Graph.
func (s *MemoryStore) ListChildren(id string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if id == "" || id == "/" {
		return s.roots, nil
	}
	n, ok := s.nodes[normalize(id)]
	if !ok {
		return nil, ErrNotFound
	}
	return n.Children, nil
}

// NodesOfKind implements Graph.
func (s *MemoryStore) NodesOfKind(kind string) ([]*Node, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	bm, ok := s.kindToNodes[kind]
	if !ok {
		return nil, nil
	}
	out := make([]*Node, 0, bm.GetCardinality())
	it := bm.Iterator()
	for it.HasNext() {
		if n, ok := s.nodes[s.intToNodeID[it.Next()]]; ok {
			out = append(out, n)
		}
	}
	return out, nil
}

// Tree renders the subtree at id as nested maps. The empty id renders
// every root.
func Tree(g Graph, id string) (any, error) {
	if id == "" || id == "/" {
		roots, err := g.ListChildren("")
		if err != nil {
			return nil, err
		}
		out := make([]any, 0, len(roots))
		for _, r := range roots {
			t, err := Tree(g, r)
			if err != nil {
				return nil, err
			}
			out = append(out, t)
		}
		return out, nil
	}

	n, err := g.GetNode(id)
	if err != nil {
		return nil, err
	}
	m := map[string]any{"kind": n.Kind}
	if n.Name != "" {
		m["id"] = n.Name
	}
	if n.StyleKey != "" {
		m["style_key"] = n.StyleKey
	}
	if len(n.Properties) > 0 {
		m["properties"] = n.Properties
	}
	if len(n.Children) > 0 {
		kids := make([]any, 0, len(n.Children))
		for _, c := range n.Children {
			t, err := Tree(g, c)
			if err != nil {
				return nil, err
			}
			kids = append(kids, t)
		}
		m["children"] = kids
	}
	return m, nil
}
