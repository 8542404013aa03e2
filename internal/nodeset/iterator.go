package nodeset

// Iterator is a forward-only cursor over a node-set. Once MoveNext has been
// called the iterator cannot be rewound.
type Iterator struct {
	nodes   []any
	pos     int
	started bool
}

// NewIterator returns a cursor positioned before the first node.
func NewIterator(nodes []any) *Iterator {
	return &Iterator{nodes: nodes, pos: -1}
}

// MoveNext advances to the next node and reports whether one exists.
func (it *Iterator) MoveNext() bool {
	it.started = true
	if it.pos+1 >= len(it.nodes) {
		it.pos = len(it.nodes)
		return false
	}
	it.pos++
	return true
}

// Current returns the node under the cursor.
func (it *Iterator) Current() any {
	if it.pos < 0 || it.pos >= len(it.nodes) {
		return nil
	}
	return it.nodes[it.pos]
}

// Started reports whether the cursor has moved.
func (it *Iterator) Started() bool { return it.started }

// Count returns the size of the underlying node-set.
func (it *Iterator) Count() int { return len(it.nodes) }

// Navigable is implemented by values that expose their own node tree.
type Navigable interface {
	Nodes() any
}
