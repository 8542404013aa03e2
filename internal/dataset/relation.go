package dataset

import (
	"fmt"
	"strings"

	"github.com/RoaringBitmap/roaring"

	"github.com/agentic-research/loom/internal/nodeset"
)

// Relation joins parent rows to child rows on matching column values.
type Relation struct {
	Name          string
	Parent        string
	Child         string
	ParentColumns []string
	ChildColumns  []string

	// join key → bitmap of child row positions
	index map[string]*roaring.Bitmap
}

// AddRelation declares a join between two filled tables. Both tables must
// exist and every column pair must be present on its side.
func (d *Dataset) AddRelation(name, parent, child string, parentColumns, childColumns []string) (*Relation, error) {
	if len(parentColumns) != len(childColumns) {
		return nil, fmt.Errorf("relation %s: %d parent columns for %d child columns", name, len(parentColumns), len(childColumns))
	}
	pt, ct := d.Table(parent), d.Table(child)
	if pt == nil {
		return nil, fmt.Errorf("relation %s: %w: %s", name, ErrMissingTable, parent)
	}
	if ct == nil {
		return nil, fmt.Errorf("relation %s: %w: %s", name, ErrMissingTable, child)
	}
	for i := range parentColumns {
		if pt.Column(parentColumns[i]) == nil {
			return nil, &MissingColumnError{Table: parent, Column: parentColumns[i]}
		}
		if ct.Column(childColumns[i]) == nil {
			return nil, &MissingColumnError{Table: child, Column: childColumns[i]}
		}
	}

	r := &Relation{
		Name:          name,
		Parent:        parent,
		Child:         child,
		ParentColumns: parentColumns,
		ChildColumns:  childColumns,
	}
	r.reindex(ct)
	d.Relations = append(d.Relations, r)
	return r, nil
}

func (r *Relation) reindex(child *Table) {
	r.index = make(map[string]*roaring.Bitmap)
	for i, row := range child.Rows {
		key, ok := joinKey(row, r.ChildColumns)
		if !ok {
			continue
		}
		bm, exists := r.index[key]
		if !exists {
			bm = roaring.New()
			r.index[key] = bm
		}
		bm.Add(uint32(i))
	}
}

// Children returns the child table rows matching parentRow, in child order.
func (r *Relation) Children(child *Table, parentRow Row) []Row {
	positions := r.positions(parentRow)
	out := make([]Row, 0, len(positions))
	for _, pos := range positions {
		if pos < len(child.Rows) {
			out = append(out, child.Rows[pos])
		}
	}
	return out
}

func (r *Relation) positions(parentRow Row) []int {
	key, ok := joinKey(parentRow, r.ParentColumns)
	if !ok {
		return nil
	}
	bm, exists := r.index[key]
	if !exists {
		return nil
	}
	out := make([]int, 0, bm.GetCardinality())
	it := bm.Iterator()
	for it.HasNext() {
		out = append(out, int(it.Next()))
	}
	return out
}

// HasParent reports whether row matches some row of parent.
func (r *Relation) HasParent(parent *Table, row Row) bool {
	key, ok := joinKey(row, r.ChildColumns)
	if !ok {
		return false
	}
	for _, p := range parent.Rows {
		if pk, ok := joinKey(p, r.ParentColumns); ok && pk == key {
			return true
		}
	}
	return false
}

// joinKey compares values by their text form so "1" from XML joins 1 from SQL.
func joinKey(row Row, columns []string) (string, bool) {
	parts := make([]string, len(columns))
	for i, c := range columns {
		v, ok := row[c]
		if !ok || v == nil {
			return "", false
		}
		parts[i] = nodeset.String(v)
	}
	return strings.Join(parts, "\x1f"), true
}
