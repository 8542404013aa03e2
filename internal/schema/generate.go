package schema

import (
	"github.com/agentic-research/loom/internal/dataset"
)

// Generate builds the schema of an assembled dataset. Paths match the node
// view produced by dataset.Nodes, so they can be selected directly.
func Generate(ds *dataset.Dataset) *Schema {
	root := ds.Name
	if root == "" {
		root = "data"
	}
	s := &Schema{Name: root}
	for _, t := range ds.TopLevel() {
		s.Items = append(s.Items, tableItem(ds, t, root, map[string]bool{}))
	}
	return s
}

func tableItem(ds *dataset.Dataset, t *dataset.Table, parentPath string, visiting map[string]bool) *Item {
	it := &Item{
		FullPath:     join(parentPath, t.Name),
		RelativePath: t.Name,
		Name:         t.Name,
		Title:        t.Name,
		NodeKind:     Element,
		DataType:     Array,
	}
	visiting[t.Name] = true
	defer delete(visiting, t.Name)

	for _, c := range t.Columns {
		if c.Mapping == dataset.MapHidden {
			continue
		}
		it.Children = append(it.Children, columnItem(c, it.FullPath))
	}
	for _, r := range ds.ChildRelations(t.Name) {
		ct := ds.Table(r.Child)
		if ct == nil || visiting[ct.Name] {
			continue
		}
		it.Children = append(it.Children, tableItem(ds, ct, it.FullPath, visiting))
	}
	return it
}

func columnItem(c *dataset.Column, parentPath string) *Item {
	it := &Item{
		Name:     c.Name,
		Title:    c.Caption,
		DataType: TypeFor(c.Kind),
	}
	if it.Title == "" {
		it.Title = c.Name
	}
	if dt, ok := ParseDataType(c.LogicalType); ok {
		it.DataType = dt
	}
	switch c.Mapping {
	case dataset.MapAttribute:
		it.RelativePath = "@" + c.Name
		it.NodeKind = Attribute
	case dataset.MapSimpleContent:
		it.RelativePath = "text()"
		it.NodeKind = Text
	default:
		it.RelativePath = c.Name + "/text()"
		it.NodeKind = Element
	}
	it.FullPath = join(parentPath, it.RelativePath)
	return it
}

func join(parent, rel string) string {
	if parent == "" {
		return rel
	}
	return parent + "/" + rel
}
