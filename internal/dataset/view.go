package dataset

import "github.com/agentic-research/loom/internal/nodeset"

// Nodes projects the dataset into a node tree rooted at the dataset name.
// Top-level tables appear as lists of row nodes; related child rows are
// nested under their parent row keyed by the child table name.
func (d *Dataset) Nodes() any {
	root := make(map[string]any)
	for _, t := range d.TopLevel() {
		self := d.selfRelations(t.Name)
		nodes := make([]any, 0, len(t.Rows))
		for pos, row := range t.Rows {
			if isNested(t, self, row) {
				continue
			}
			nodes = append(nodes, d.rowNode(t, row, map[int]bool{pos: true}))
		}
		root[t.Name] = nodes
	}
	name := d.Name
	if name == "" {
		name = "data"
	}
	return map[string]any{name: root}
}

// Rows returns the row nodes of one table without nesting.
func (d *Dataset) Rows(table string) []any {
	t := d.Table(table)
	if t == nil {
		return nil
	}
	out := make([]any, 0, len(t.Rows))
	for _, row := range t.Rows {
		out = append(out, columnsNode(t, row))
	}
	return out
}

func (d *Dataset) selfRelations(table string) []*Relation {
	var out []*Relation
	for _, r := range d.ChildRelations(table) {
		if r.Child == table {
			out = append(out, r)
		}
	}
	return out
}

// isNested reports whether a row of a self-related table belongs under
// another row of the same table.
func isNested(t *Table, self []*Relation, row Row) bool {
	for _, r := range self {
		if r.HasParent(t, row) {
			return true
		}
	}
	return false
}

// rowNode builds one row node. path holds the positions of same-table rows
// already above this one so self relations cannot cycle.
func (d *Dataset) rowNode(t *Table, row Row, path map[int]bool) map[string]any {
	node := columnsNode(t, row)
	for _, r := range d.ChildRelations(t.Name) {
		ct := d.Table(r.Child)
		if ct == nil {
			continue
		}
		var children []any
		for _, pos := range r.positions(row) {
			if pos >= len(ct.Rows) {
				continue
			}
			next := map[int]bool{}
			if r.Child == t.Name {
				if path[pos] {
					continue
				}
				for k := range path {
					next[k] = true
				}
			}
			next[pos] = true
			children = append(children, d.rowNode(ct, ct.Rows[pos], next))
		}
		if len(children) > 0 {
			node[r.Child] = children
		}
	}
	return node
}

func columnsNode(t *Table, row Row) map[string]any {
	node := make(map[string]any, len(t.Columns))
	for _, c := range t.Columns {
		v, ok := row[c.Name]
		if !ok {
			continue
		}
		switch c.Mapping {
		case MapHidden:
		case MapSimpleContent:
			node[nodeset.TextKey] = v
		default:
			node[c.Name] = v
		}
	}
	return node
}
