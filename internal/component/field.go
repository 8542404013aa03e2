package component

import (
	"fmt"
	"slices"

	"github.com/agentic-research/loom/internal/bind"
	"github.com/agentic-research/loom/internal/schema"
)

// Field is a captioned bound slot.
type Field struct {
	bind.Base
	Caption string
	Slot    SlotKind
	Path    string

	leaf Leaf
}

func NewField(id string) *Field {
	return &Field{Base: bind.NewBase(KindField, id)}
}

// FieldFor builds the field auto-binding uses for a schema item.
func FieldFor(it *schema.Item) *Field {
	f := NewField(it.Name)
	f.Caption = it.Title
	f.Slot = SlotKindFor(it.DataType)
	f.Path = f.Slot.AutobindPath(it)
	return f
}

// Leaf returns the leaf built by the last bind.
func (f *Field) Leaf() Leaf { return f.leaf }

func (f *Field) Bind(c *bind.Context) error {
	f.ClearChildren()
	f.leaf = f.Slot.Build(f.ID(), f.Path)
	bind.Attach(f, f.leaf)
	return c.Bind(f.leaf)
}

func (f *Field) Properties() map[string]any {
	return map[string]any{"caption": f.Caption, "slot": f.Slot.String()}
}

// AutoFields synthesizes one field per column item of the schema src
// reports at path, skipping nested tables and excluded names.
func AutoFields(c *bind.Context, src bind.DataSource, path string, exclude []string) ([]*Field, error) {
	if src == nil || !src.SupportsSchema() {
		id := "<none>"
		if src != nil {
			id = src.ID()
		}
		return nil, fmt.Errorf("%w: %s", bind.ErrSchemaUnsupported, id)
	}
	s, err := src.Schema(c, path)
	if err != nil {
		return nil, err
	}
	var fields []*Field
	for _, it := range s.Items {
		if it.DataType == schema.Array || slices.Contains(exclude, it.Name) {
			continue
		}
		fields = append(fields, FieldFor(it))
	}
	return fields, nil
}

// FieldSet binds its fields against a single data item. With AutoBind it
// also adds a field per schema item of the source. Without data it has no
// children.
type FieldSet struct {
	bind.Base
	Data     bind.DataBinding
	AutoBind bool
	Exclude  []string
	// SchemaPath is the schema location of the bound item; it defaults to
	// the data select when the data names a source.
	SchemaPath string

	declared []bind.Component
	captured bool
}

func NewFieldSet(id string) *FieldSet {
	return &FieldSet{Base: bind.NewBase(KindFieldSet, id)}
}

func (fs *FieldSet) schemaPath() string {
	if fs.SchemaPath != "" || fs.Data.SourceID == "" {
		return fs.SchemaPath
	}
	return fs.Data.Select
}

// Bind lays out declared and synthesized fields first and binds them all
// from the ledger afterwards.
func (fs *FieldSet) Bind(c *bind.Context) error {
	if !fs.captured {
		fs.declared = slices.Clone(fs.Children())
		fs.captured = true
	}
	fs.ClearChildren()

	err := bind.Scope(c, fs.Data, func(item any) error {
		for _, d := range fs.declared {
			fs.AddChild(d)
		}
		src := c.Source()
		var ledger bind.Ledger
		ledger.Group(bind.InheritIndex)
		for _, d := range fs.declared {
			ledger.Record(item, src, d)
		}
		if fs.AutoBind {
			fields, err := AutoFields(c, src, fs.schemaPath(), fs.Exclude)
			if err != nil {
				return err
			}
			for _, f := range fields {
				bind.Attach(fs, f)
				ledger.Record(item, src, f)
			}
		}
		return ledger.Replay(c)
	})
	if err != nil {
		return fmt.Errorf("fieldset %q: %w", fs.ID(), err)
	}
	return nil
}
