package engine

import (
	"context"
	"testing"
	"time"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/memfs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentic-research/loom/api"
	"github.com/agentic-research/loom/internal/bind"
	"github.com/agentic-research/loom/internal/config"
	"github.com/agentic-research/loom/internal/graph"
	"github.com/agentic-research/loom/internal/testutil"
)

const reportYAML = `
version: v1
sources:
  - id: shop
    cache_duration: 1m
    commands:
      - id: Orders
        kind: json
        file: data/orders.json
        attributes: [Id]
        relations:
          - child: Lines
            matches: [{parent: Id, child: OrderId}]
      - id: Lines
        kind: json
        file: data/lines.json
markup_file: report.xml
`

const reportXML = `<document id="report">
  <repeat id="orders" source="shop" select="Orders">
    <panel id="order">
      <label id="customer">{@Id}: {Customer}</label>
      <grid id="lines" select="Lines" schema="Orders/Lines" autobind="true" exclude="OrderId"/>
    </panel>
  </repeat>
</document>`

func writeFile(t *testing.T, fs billy.Filesystem, name, content string) {
	t.Helper()
	f, err := fs.Create(name)
	require.NoError(t, err)
	_, err = f.Write([]byte(content))
	require.NoError(t, err)
	require.NoError(t, f.Close())
}

func reportFS(t *testing.T) billy.Filesystem {
	fs := memfs.New()
	writeFile(t, fs, "reports/report.yaml", reportYAML)
	writeFile(t, fs, "reports/report.xml", reportXML)
	writeFile(t, fs, "reports/data/orders.json", `[{"Id": 1, "Customer": "ann"}, {"Id": 2, "Customer": "bob"}]`)
	writeFile(t, fs, "reports/data/lines.json", `[
  {"OrderId": 1, "Sku": "a", "Qty": 2},
  {"OrderId": 1, "Sku": "b", "Qty": 1},
  {"OrderId": 2, "Sku": "c", "Qty": 5}
]`)
	return fs
}

func newEngine(t *testing.T, cfg *config.Config, opts ...Option) *Engine {
	t.Helper()
	e, err := New(cfg, testutil.NewTestLogger(t), opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = e.Close() })
	return e
}

func text(t *testing.T, g graph.Graph, id string) string {
	t.Helper()
	n, err := g.GetNode(id)
	require.NoError(t, err)
	s, _ := n.Properties["text"].(string)
	return s
}

func TestEngine_BindReport(t *testing.T) {
	e := newEngine(t, nil)
	require.NoError(t, e.LoadFile(reportFS(t), "reports/report.yaml"))

	root, err := e.Bind(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "report", root.ID())

	out := e.Output()
	assert.Equal(t, "1: ann", text(t, out, "report/orders/group/order/customer"))
	assert.Equal(t, "2: bob", text(t, out, "report/orders/group_1/order/customer"))

	rows, err := out.ListChildren("report/orders/group/order/lines")
	require.NoError(t, err)
	require.Len(t, rows, 3, "header and two lines")
	assert.Equal(t, "Qty", text(t, out, rows[0]+"/label"))
	assert.Equal(t, "Sku", text(t, out, rows[0]+"/label_1"))
	assert.Equal(t, "2", text(t, out, rows[1]+"/number"))
	assert.Equal(t, "a", text(t, out, rows[1]+"/label"))

	grids, err := out.NodesOfKind("grid")
	require.NoError(t, err)
	assert.Len(t, grids, 2)

	rows, err = out.ListChildren("report/orders/group_1/order/lines")
	require.NoError(t, err)
	assert.Len(t, rows, 2)
}

func TestEngine_CacheAcrossPasses(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	e := newEngine(t, nil, WithClock(func() time.Time { return now }))
	require.NoError(t, e.LoadFile(reportFS(t), "reports/report.yaml"))

	_, err := e.Bind(context.Background())
	require.NoError(t, err)
	_, err = e.Bind(context.Background())
	require.NoError(t, err)

	src := e.Sources()[0]
	assert.Equal(t, int64(1), src.Fetches())
	assert.Equal(t, uint64(1), e.Cache().Stats().Hits)

	now = now.Add(time.Hour)
	_, err = e.Bind(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(2), src.Fetches())
}

func brokenDoc() *api.Document {
	return &api.Document{
		Sources: []api.Source{{ID: "broken", Commands: []api.Command{
			{ID: "Orders", Kind: api.KindJSON, File: "missing.json"},
		}}},
		Markup: `<document><label id="before">x</label><repeat id="r" source="broken" select="Orders"><label>{Id}</label></repeat></document>`,
	}
}

func TestEngine_Conformance(t *testing.T) {
	strict := newEngine(t, nil)
	require.NoError(t, strict.Load(brokenDoc(), memfs.New()))
	_, err := strict.Bind(context.Background())
	require.ErrorIs(t, err, bind.ErrProviderLoad)

	cfg := config.Default()
	cfg.Conformance = "lax"
	lax := newEngine(t, cfg)
	require.NoError(t, lax.Load(brokenDoc(), memfs.New()))
	_, err = lax.Bind(context.Background())
	require.NoError(t, err)
	kids, err := lax.Output().ListChildren("document/r")
	require.NoError(t, err)
	assert.Empty(t, kids)
	assert.Equal(t, "x", text(t, lax.Output(), "document/before"))
}

func TestEngine_Schema(t *testing.T) {
	e := newEngine(t, nil)
	_, err := e.Schema(context.Background(), "shop", "")
	require.ErrorIs(t, err, ErrNotLoaded)

	require.NoError(t, e.LoadFile(reportFS(t), "reports/report.yaml"))
	s, err := e.Schema(context.Background(), "shop", "Orders")
	require.NoError(t, err)
	var names []string
	for _, it := range s.Items {
		names = append(names, it.Name)
	}
	assert.Contains(t, names, "Id")
	assert.Contains(t, names, "Lines")

	_, err = e.Schema(context.Background(), "nope", "")
	require.ErrorIs(t, err, bind.ErrUnknownSource)
}

func TestEngine_DepthGuard(t *testing.T) {
	cfg := config.Default()
	cfg.MaxDepth = 2
	e := newEngine(t, cfg)
	require.NoError(t, e.Load(&api.Document{
		Markup: `<document><panel><panel><label>deep</label></panel></panel></document>`,
	}, nil))
	_, err := e.Bind(context.Background())
	require.ErrorIs(t, err, bind.ErrDepthExceeded)
}

func TestEngine_Errors(t *testing.T) {
	e := newEngine(t, nil)
	_, err := e.Bind(context.Background())
	require.ErrorIs(t, err, ErrNotLoaded)

	err = e.Load(&api.Document{Markup: `<document><chart/></document>`}, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "inline markup")

	err = e.Load(&api.Document{MarkupFile: "nope.xml"}, memfs.New())
	require.Error(t, err)

	_, err = New(&config.Config{Conformance: "loose", TraceLevel: "warning"}, nil)
	require.Error(t, err)
}

func TestEngine_Namespaces(t *testing.T) {
	e := newEngine(t, &config.Config{
		Conformance: "strict",
		TraceLevel:  "debug",
		Namespaces:  map[string]string{"o": "urn:orders"},
	})
	require.NoError(t, e.Load(&api.Document{
		Sources: []api.Source{{ID: "feed", Commands: []api.Command{{
			ID:      "Items",
			Kind:    api.KindXML,
			Content: `<o:feed xmlns:o="urn:orders"><o:item name="a"/><o:item name="b"/></o:feed>`,
			Select:  "o:feed/o:item",
		}}}},
		Markup: `<document><repeat source="feed" select="Items"><label>{@name}</label></repeat></document>`,
	}, nil))
	_, err := e.Bind(context.Background())
	require.NoError(t, err)

	labels, err := e.Output().NodesOfKind("label")
	require.NoError(t, err)
	require.Len(t, labels, 2)
	assert.Equal(t, "a", labels[0].Properties["text"])
	assert.Equal(t, "b", labels[1].Properties["text"])
}

func TestMaterialize_SiblingNames(t *testing.T) {
	g := bind.NewGroup("g")
	bind.Attach(g, bind.NewGroup(""))
	bind.Attach(g, bind.NewGroup(""))
	bind.Attach(g, bind.NewGroup("named"))
	store := Materialize(g)
	kids, err := store.ListChildren("g")
	require.NoError(t, err)
	assert.Equal(t, []string{"g/group", "g/group_1", "g/named"}, kids)
	assert.Equal(t, 4, store.Len())
}
