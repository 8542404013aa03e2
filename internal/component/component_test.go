package component

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentic-research/loom/internal/bind"
	"github.com/agentic-research/loom/internal/schema"
	"github.com/agentic-research/loom/internal/testutil"
	"github.com/agentic-research/loom/internal/trace"
)

func newContext(t *testing.T) *bind.Context {
	t.Helper()
	return bind.NewContext(context.Background(), bind.Options{
		Trace: trace.New(testutil.NewTestLogger(t), trace.Debug),
	})
}

// schemaSource serves in-memory data with a fixed schema.
type schemaSource struct {
	bind.Values
	schema *schema.Schema
}

func (s *schemaSource) SupportsSchema() bool { return true }

func (s *schemaSource) Schema(*bind.Context, string) (*schema.Schema, error) {
	return s.schema, nil
}

func column(name string, dt schema.DataType) *schema.Item {
	return &schema.Item{
		Name:         name,
		Title:        name,
		RelativePath: name + "/text()",
		FullPath:     "people/person/" + name + "/text()",
		NodeKind:     schema.Element,
		DataType:     dt,
	}
}

func people() *schemaSource {
	return &schemaSource{
		Values: bind.Values{Name: "people", Root: map[string]any{
			"person": []any{
				map[string]any{"A": "ann", "B": "secret", "C": "2024-03-01", "Pets": []any{}},
				map[string]any{"A": "bob", "B": "hidden", "C": "2024-04-01"},
			},
		}},
		schema: &schema.Schema{Name: "person", Items: []*schema.Item{
			column("A", schema.String),
			column("B", schema.String),
			column("C", schema.DateTime),
			{Name: "Pets", RelativePath: "Pets", DataType: schema.Array},
		}},
	}
}

func rows(items ...map[string]any) []any {
	out := make([]any, len(items))
	for i, it := range items {
		out[i] = it
	}
	return out
}

func cellText(t *testing.T, cell bind.Component) string {
	t.Helper()
	p, ok := cell.(Propertied)
	require.True(t, ok)
	s, _ := p.Properties()["text"].(string)
	return s
}

func TestGrid_LedgerReplay(t *testing.T) {
	g := NewGrid("lines")
	g.Data = bind.Literal(rows(
		map[string]any{"sku": "a", "qty": int64(2)},
		map[string]any{"sku": "b", "qty": int64(1)},
		map[string]any{"sku": "c", "qty": int64(5)},
	))
	g.Columns = []*Column{
		{Slot: SlotText, Path: "sku"},
		{Slot: SlotNumber, Path: "qty"},
	}

	c := newContext(t)
	c.SetIndex(7)
	require.NoError(t, c.Bind(g))

	assert.Equal(t, 6, g.Recorded())
	assert.Equal(t, 7, c.Index(), "index is restored after replay")
	assert.Equal(t, 0, c.StackDepth())

	require.Len(t, g.Children(), 3)
	want := [][]string{{"a", "2"}, {"b", "1"}, {"c", "5"}}
	for i, r := range g.Children() {
		assert.Equal(t, RoleData, r.(*Row).Role)
		require.Len(t, r.Children(), 2)
		for j, cell := range r.Children() {
			assert.Equal(t, want[i][j], cellText(t, cell), "row %d col %d", i, j)
		}
	}
}

func TestGrid_HeaderFooterAndIndex(t *testing.T) {
	g := NewGrid("lines")
	g.Data = bind.Literal(rows(map[string]any{"sku": "a"}, map[string]any{"sku": "b"}))
	g.Columns = []*Column{
		{Header: "#", Text: "{#index}", Footer: "end"},
		{Header: "SKU", Path: "sku"},
	}

	c := newContext(t)
	require.NoError(t, c.Bind(g))
	assert.Equal(t, 8, g.Recorded(), "2 header + 4 cells + 2 footer")

	kids := g.Children()
	require.Len(t, kids, 4)
	assert.Equal(t, RoleHeader, kids[0].(*Row).Role)
	assert.Equal(t, "SKU", cellText(t, kids[0].Children()[1]))
	assert.Equal(t, "0", cellText(t, kids[1].Children()[0]))
	assert.Equal(t, "1", cellText(t, kids[2].Children()[0]))
	assert.Equal(t, "b", cellText(t, kids[2].Children()[1]))
	assert.Equal(t, RoleFooter, kids[3].(*Row).Role)
	assert.Equal(t, "end", cellText(t, kids[3].Children()[0]))
	assert.Equal(t, "", cellText(t, kids[3].Children()[1]))
}

func TestGrid_Window(t *testing.T) {
	items := make([]any, 10)
	for i := range items {
		items[i] = map[string]any{"n": int64(i)}
	}
	g := NewGrid("g")
	g.Data = bind.Literal(items)
	g.Window = bind.Window{Start: 2, Max: 3, Step: 2}
	g.Columns = []*Column{{Slot: SlotNumber, Path: "n"}}

	require.NoError(t, newContext(t).Bind(g))
	var got []string
	for _, r := range g.Children() {
		got = append(got, cellText(t, r.Children()[0]))
	}
	assert.Equal(t, []string{"2", "4", "6"}, got)
}

func TestGrid_AutoBind(t *testing.T) {
	src := people()
	c := newContext(t)
	c.RegisterSource(src)

	g := NewGrid("people")
	g.Data = bind.DataBinding{SourceID: "people", Select: "person"}
	g.AutoBind = true
	g.Exclude = []string{"B"}

	require.NoError(t, c.Bind(g))
	kids := g.Children()
	require.Len(t, kids, 3, "header and two rows")
	assert.Equal(t, "A", cellText(t, kids[0].Children()[0]))
	assert.Equal(t, "C", cellText(t, kids[0].Children()[1]))
	assert.Equal(t, "bob", cellText(t, kids[2].Children()[0]))
	assert.Equal(t, "2024-04-01", cellText(t, kids[2].Children()[1]))
}

func TestFieldSet_AutoBindExclusion(t *testing.T) {
	src := people()
	c := newContext(t)
	c.RegisterSource(src)

	fs := NewFieldSet("person")
	fs.Data = bind.DataBinding{SourceID: "people", Select: "person"}
	fs.AutoBind = true
	fs.Exclude = []string{"B"}
	caption := NewLabel("caption")
	caption.Text = "Person {A}"
	bind.Attach(fs, caption)

	require.NoError(t, c.Bind(fs))
	assert.Equal(t, 0, c.StackDepth())
	assert.Equal(t, "Person ann", caption.Content())

	var names []string
	for _, child := range fs.Children() {
		if f, ok := child.(*Field); ok {
			names = append(names, f.ID())
		}
	}
	assert.Equal(t, []string{"A", "C"}, names)

	date := fs.Children()[2].(*Field)
	assert.Equal(t, SlotDate, date.Slot)
	assert.Equal(t, "2024-03-01", date.Leaf().(*Date).Content())

	// rebinding starts from the declared children again
	require.NoError(t, c.Bind(fs))
	assert.Len(t, fs.Children(), 3)
}

func TestFieldSet_SchemaUnsupported(t *testing.T) {
	fs := NewFieldSet("x")
	fs.Data = bind.Literal(map[string]any{"A": "1"})
	fs.AutoBind = true

	err := newContext(t).Bind(fs)
	require.ErrorIs(t, err, bind.ErrSchemaUnsupported)
	assert.True(t, bind.IsHard(err))
}

func TestFieldSet_NoData(t *testing.T) {
	fs := NewFieldSet("x")
	fs.Data = bind.Literal([]any{})
	fs.AutoBind = true
	require.NoError(t, newContext(t).Bind(fs))
	assert.Empty(t, fs.Children())
}

func TestFieldSet_EmptyRebindDropsFields(t *testing.T) {
	fs := NewFieldSet("x")
	name := NewField("A")
	name.Slot = SlotText
	name.Path = "A"
	bind.Attach(fs, name)
	c := newContext(t)

	fs.Data = bind.Literal([]any{map[string]any{"A": "ann"}})
	require.NoError(t, c.Bind(fs))
	require.Len(t, fs.Children(), 1)
	assert.Equal(t, "ann", name.Leaf().(*Label).Content())

	fs.Data = bind.Literal([]any{})
	require.NoError(t, c.Bind(fs))
	assert.Empty(t, fs.Children(), "no data, no fields from the previous pass")
	assert.Equal(t, 0, c.StackDepth())

	fs.Data = bind.Literal([]any{map[string]any{"A": "bob"}})
	require.NoError(t, c.Bind(fs))
	require.Len(t, fs.Children(), 1)
	assert.Equal(t, "bob", name.Leaf().(*Label).Content())
}

func TestLeaves(t *testing.T) {
	c := newContext(t)
	c.Push(map[string]any{
		"price": 12.5,
		"when":  "2024-03-01T10:00:00Z",
		"url":   "https://example.com/a.png",
		"flag":  "yes",
		"on":    true,
		"name":  "anvil",
	}, nil)
	defer c.Pop()

	n := NewNumber("n")
	n.Value, n.Format = "price", "%.2f"
	require.NoError(t, c.Bind(n))
	assert.Equal(t, "12.50", n.Content())
	assert.Equal(t, 12.5, n.Properties()["value"])

	d := NewDate("d")
	d.Value, d.Layout = "when", "02 Jan 2006"
	require.NoError(t, c.Bind(d))
	assert.Equal(t, "01 Mar 2024", d.Content(), "the actual value is parsed")

	bad := NewDate("bad")
	bad.Value = "name"
	require.Error(t, c.Bind(bad))

	img := NewImage("i")
	img.Src = "url"
	require.NoError(t, c.Bind(img))
	assert.Equal(t, "https://example.com/a.png", img.URL())

	link := NewLink("l")
	link.Href = "url"
	require.NoError(t, c.Bind(link))
	assert.Equal(t, "https://example.com/a.png", link.Properties()["text"])
	link.Text = "see {name}"
	require.NoError(t, c.Bind(link))
	assert.Equal(t, "see anvil", link.Properties()["text"])

	on := NewCheck("on")
	on.Value = "on"
	require.NoError(t, c.Bind(on))
	assert.True(t, on.Checked())

	flag := NewCheck("flag")
	flag.Value = "flag"
	require.NoError(t, c.Bind(flag))
	assert.True(t, flag.Checked())

	missing := NewCheck("missing")
	missing.Value = "nope"
	require.NoError(t, c.Bind(missing))
	assert.False(t, missing.Checked())
}

func TestLabel_NeedsFrameForPaths(t *testing.T) {
	l := NewLabel("l")
	l.Text = "plain"
	c := newContext(t)
	require.NoError(t, c.Bind(l))
	assert.Equal(t, "plain", l.Content())

	l.Text = "{name}"
	require.ErrorIs(t, c.Bind(l), bind.ErrNoCurrentData)
}

func TestSlotStrategies(t *testing.T) {
	assert.Equal(t, SlotNumber, SlotKindFor(schema.Integer))
	assert.Equal(t, SlotNumber, SlotKindFor(schema.Double))
	assert.Equal(t, SlotDate, SlotKindFor(schema.DateTime))
	assert.Equal(t, SlotBool, SlotKindFor(schema.Boolean))
	assert.Equal(t, SlotImage, SlotKindFor(schema.Image))
	assert.Equal(t, SlotLink, SlotKindFor(schema.URL))
	assert.Equal(t, SlotText, SlotKindFor(schema.String))

	it := column("photo", schema.Image)
	assert.Equal(t, "photo", SlotImage.AutobindPath(it))
	assert.Equal(t, "photo/text()", SlotText.AutobindPath(it))

	_, isImage := SlotImage.Build("x", "photo").(*Image)
	assert.True(t, isImage)

	k, err := ParseSlotKind("Date")
	require.NoError(t, err)
	assert.Equal(t, SlotDate, k)
	_, err = ParseSlotKind("chart")
	require.Error(t, err)
}
