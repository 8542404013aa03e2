// Package dataset holds the relational form of loaded data: named tables of
// typed columns, joined by parent/child relations.
package dataset

import (
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"net/url"
	"reflect"
	"slices"
	"strings"
	"time"
)

// ErrMissingTable is returned when a relation names a table that was never filled.
var ErrMissingTable = errors.New("table not found")

// MissingColumnError reports a relation column absent from its table.
type MissingColumnError struct {
	Table  string
	Column string
}

func (e *MissingColumnError) Error() string {
	return fmt.Sprintf("column %q not found in table %q", e.Column, e.Table)
}

// Kind is a column's native value kind.
type Kind int

const (
	KindUnknown Kind = iota
	KindString
	KindBool
	KindInt
	KindFloat
	KindDecimal
	KindTime
	KindBytes
	KindURL
	KindArray
)

var kindNames = map[Kind]string{
	KindUnknown: "unknown",
	KindString:  "string",
	KindBool:    "bool",
	KindInt:     "int",
	KindFloat:   "float",
	KindDecimal: "decimal",
	KindTime:    "time",
	KindBytes:   "bytes",
	KindURL:     "url",
	KindArray:   "array",
}

func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// ParseKind maps a declared parameter or column type name to a Kind.
func ParseKind(name string) Kind {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "string", "str", "text":
		return KindString
	case "bool", "boolean":
		return KindBool
	case "int", "integer", "int32", "int64", "long":
		return KindInt
	case "float", "double", "float64", "number":
		return KindFloat
	case "decimal", "numeric":
		return KindDecimal
	case "time", "date", "datetime", "timestamp":
		return KindTime
	case "bytes", "binary", "blob":
		return KindBytes
	case "url", "uri":
		return KindURL
	case "array", "list":
		return KindArray
	}
	return KindUnknown
}

// KindOf infers the kind of a decoded value.
func KindOf(v any) Kind {
	switch x := v.(type) {
	case nil:
		return KindUnknown
	case string:
		return KindString
	case bool:
		return KindBool
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
		return KindInt
	case float32, float64:
		return KindFloat
	case json.Number:
		if _, err := x.Int64(); err == nil {
			return KindInt
		}
		return KindFloat
	case time.Time:
		return KindTime
	case []byte:
		return KindBytes
	case *url.URL:
		return KindURL
	case []any:
		return KindArray
	}
	if k := reflect.TypeOf(v).Kind(); k == reflect.Slice || k == reflect.Array {
		return KindArray
	}
	return KindUnknown
}

// KindFromDatabaseType maps a driver's column type name to a Kind.
func KindFromDatabaseType(name string) Kind {
	n := strings.ToUpper(name)
	switch {
	case n == "":
		return KindUnknown
	case strings.HasPrefix(n, "_"), strings.HasSuffix(n, "[]"):
		return KindArray
	case strings.Contains(n, "BOOL"):
		return KindBool
	case strings.Contains(n, "INT"):
		return KindInt
	case strings.Contains(n, "DECIMAL"), strings.Contains(n, "NUMERIC"), strings.Contains(n, "MONEY"):
		return KindDecimal
	case strings.Contains(n, "REAL"), strings.Contains(n, "FLOA"), strings.Contains(n, "DOUB"):
		return KindFloat
	case strings.Contains(n, "DATE"), strings.Contains(n, "TIME"):
		return KindTime
	case strings.Contains(n, "BLOB"), strings.Contains(n, "BYTEA"), strings.Contains(n, "BINARY"):
		return KindBytes
	}
	return KindString
}

// Mapping controls how a column appears in the node view and schema.
type Mapping int

const (
	MapElement Mapping = iota
	MapAttribute
	MapSimpleContent
	MapHidden
)

// Column describes one table column.
type Column struct {
	Name        string
	Kind        Kind
	Mapping     Mapping
	LogicalType string
	Caption     string
}

// Row is one table row keyed by column name.
type Row map[string]any

// Table is a named, ordered collection of rows.
type Table struct {
	Name    string
	Columns []*Column
	Rows    []Row
}

// Column returns the named column or nil.
func (t *Table) Column(name string) *Column {
	for _, c := range t.Columns {
		if c.Name == name {
			return c
		}
	}
	return nil
}

// AddColumn declares a column, refining an unknown kind on repeat calls.
func (t *Table) AddColumn(name string, kind Kind) *Column {
	if c := t.Column(name); c != nil {
		if c.Kind == KindUnknown {
			c.Kind = kind
		}
		return c
	}
	c := &Column{Name: name, Kind: kind}
	t.Columns = append(t.Columns, c)
	return c
}

// AddRow appends values, declaring any column not seen before in name order.
func (t *Table) AddRow(values map[string]any) Row {
	row := make(Row, len(values))
	for _, k := range slices.Sorted(maps.Keys(values)) {
		t.AddColumn(k, KindOf(values[k]))
		row[k] = values[k]
	}
	t.Rows = append(t.Rows, row)
	return row
}

// Dataset is a set of tables plus the relations joining them.
type Dataset struct {
	Name      string
	Relations []*Relation

	tables []*Table
	byName map[string]*Table
}

// New returns an empty dataset.
func New(name string) *Dataset {
	return &Dataset{Name: name, byName: make(map[string]*Table)}
}

// Table returns the named table or nil.
func (d *Dataset) Table(name string) *Table {
	return d.byName[name]
}

// EnsureTable returns the named table, creating it on first use.
func (d *Dataset) EnsureTable(name string) *Table {
	if t, ok := d.byName[name]; ok {
		return t
	}
	t := &Table{Name: name}
	d.tables = append(d.tables, t)
	d.byName[name] = t
	return t
}

// Tables returns tables in creation order.
func (d *Dataset) Tables() []*Table {
	return d.tables
}

// ParentRelations returns the relations in which table is the child.
func (d *Dataset) ParentRelations(table string) []*Relation {
	var out []*Relation
	for _, r := range d.Relations {
		if r.Child == table {
			out = append(out, r)
		}
	}
	return out
}

// ChildRelations returns the relations in which table is the parent.
func (d *Dataset) ChildRelations(table string) []*Relation {
	var out []*Relation
	for _, r := range d.Relations {
		if r.Parent == table {
			out = append(out, r)
		}
	}
	return out
}

// TopLevel returns tables with no parent relation, or whose only parent
// relations point back to themselves.
func (d *Dataset) TopLevel() []*Table {
	var out []*Table
	for _, t := range d.tables {
		top := true
		for _, r := range d.ParentRelations(t.Name) {
			if r.Parent != t.Name {
				top = false
				break
			}
		}
		if top {
			out = append(out, t)
		}
	}
	return out
}
