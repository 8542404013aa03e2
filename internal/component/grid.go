package component

import (
	"fmt"
	"slices"

	"github.com/agentic-research/loom/internal/bind"
)

// Row roles.
const (
	RoleHeader = "header"
	RoleData   = "data"
	RoleFooter = "footer"
)

// Row is one grid row.
type Row struct {
	bind.Base
	Role string
}

func NewRow(role string) *Row {
	return &Row{Base: bind.NewBase(KindRow, ""), Role: role}
}

func (r *Row) Bind(c *bind.Context) error { return bind.BindChildren(c, r) }

func (r *Row) Properties() map[string]any {
	return map[string]any{"role": r.Role}
}

// Column describes one grid column. A cell shows Path through Slot, or
// interpolates Text when Path is empty.
type Column struct {
	Header string
	Footer string
	Slot   SlotKind
	Path   string
	Text   string
}

func (col *Column) cell() Leaf {
	if col.Path == "" && col.Text != "" {
		l := NewLabel("")
		l.Text = col.Text
		return l
	}
	return col.Slot.Build("", col.Path)
}

// Grid lays out a header row, one row per data item and a footer row, then
// binds every cell from the ledger with its own row's item on the stack.
type Grid struct {
	bind.Base
	Data       bind.DataBinding
	Window     bind.Window
	Columns    []*Column
	AutoBind   bool
	Exclude    []string
	SchemaPath string

	recorded int
}

func NewGrid(id string) *Grid {
	return &Grid{Base: bind.NewBase(KindGrid, id)}
}

// Recorded returns how many cell bindings the last bind deferred.
func (g *Grid) Recorded() int { return g.recorded }

func (g *Grid) schemaPath() string {
	if g.SchemaPath != "" || g.Data.SourceID == "" {
		return g.SchemaPath
	}
	return g.Data.Select
}

func (g *Grid) Bind(c *bind.Context) error {
	if err := g.bind(c); err != nil {
		return fmt.Errorf("grid %q: %w", g.ID(), err)
	}
	return nil
}

func (g *Grid) bind(c *bind.Context) error {
	g.ClearChildren()
	g.recorded = 0

	data, src, err := g.Data.Resolve(c)
	if err != nil {
		return err
	}
	seq, err := bind.Items(data, g.Window)
	if err != nil {
		return err
	}
	var items []any
	for item := range seq {
		items = append(items, item)
	}

	cols := g.Columns
	if g.AutoBind {
		fields, err := AutoFields(c, src, g.schemaPath(), g.Exclude)
		if err != nil {
			return err
		}
		for _, f := range fields {
			cols = append(cols, &Column{Header: f.Caption, Slot: f.Slot, Path: f.Path})
		}
	}

	var ledger bind.Ledger
	g.addRow(&ledger, RoleHeader, bind.InheritIndex, items, src, cols, func(col *Column) Leaf {
		return labelFor(col.Header)
	}, func(col *Column) bool { return col.Header != "" })

	for i, item := range items {
		g.addRow(&ledger, RoleData, i, item, src, cols, (*Column).cell, nil)
	}

	g.addRow(&ledger, RoleFooter, bind.InheritIndex, items, src, cols, func(col *Column) Leaf {
		return labelFor(col.Footer)
	}, func(col *Column) bool { return col.Footer != "" })

	g.recorded = ledger.Len()
	return ledger.Replay(c)
}

// addRow appends a row of cells and records them as one ledger group. When
// present is set, the row is skipped unless some column passes it.
func (g *Grid) addRow(l *bind.Ledger, role string, index int, data any, src bind.DataSource,
	cols []*Column, build func(*Column) Leaf, present func(*Column) bool) {
	if present != nil && !slices.ContainsFunc(cols, present) {
		return
	}
	row := NewRow(role)
	bind.Attach(g, row)
	l.Group(index)
	for _, col := range cols {
		cell := build(col)
		bind.Attach(row, cell)
		l.Record(data, src, cell)
	}
}

func labelFor(text string) Leaf {
	l := NewLabel("")
	l.Text = text
	return l
}
