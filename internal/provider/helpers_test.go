package provider

import (
	"context"
	"testing"

	"github.com/go-git/go-billy/v5"
	"github.com/stretchr/testify/require"

	"github.com/agentic-research/loom/api"
	"github.com/agentic-research/loom/internal/bind"
	"github.com/agentic-research/loom/internal/nodeset"
	"github.com/agentic-research/loom/internal/testutil"
	"github.com/agentic-research/loom/internal/trace"
)

const ordersJSON = `[{"Id": 1, "Customer": "ann"}, {"Id": 2, "Customer": "bob"}]`

const linesJSON = `[
  {"OrderId": 1, "Sku": "a", "Qty": 2},
  {"OrderId": 1, "Sku": "b", "Qty": 1},
  {"OrderId": 2, "Sku": "c", "Qty": 5}
]`

func newContext(t *testing.T, mode bind.Conformance) *bind.Context {
	t.Helper()
	return bind.NewContext(context.Background(), bind.Options{
		Conformance: mode,
		Trace:       trace.New(testutil.NewTestLogger(t), trace.Debug),
	})
}

// shopSource declares Orders related to Lines on Orders.Id = Lines.OrderId.
func shopSource() api.Source {
	return api.Source{
		ID: "shop",
		Commands: []api.Command{
			{
				ID:         "Orders",
				Kind:       api.KindJSON,
				Content:    ordersJSON,
				Attributes: []string{"Id"},
				Relations: []api.Relation{{
					Child:   "Lines",
					Matches: []api.Match{{Parent: "Id", Child: "OrderId"}},
				}},
			},
			{ID: "Lines", Kind: api.KindJSON, Content: linesJSON},
		},
	}
}

func writeFile(t *testing.T, fs billy.Filesystem, name, content string) {
	t.Helper()
	f, err := fs.Create(name)
	require.NoError(t, err)
	_, err = f.Write([]byte(content))
	require.NoError(t, err)
	require.NoError(t, f.Close())
}

// drain consumes a Select result.
func drain(t *testing.T, v any) []any {
	t.Helper()
	it, ok := v.(*nodeset.Iterator)
	require.True(t, ok, "expected *nodeset.Iterator, got %T", v)
	var out []any
	for it.MoveNext() {
		out = append(out, it.Current())
	}
	return out
}

func field(t *testing.T, node any, name string) any {
	t.Helper()
	m, ok := node.(map[string]any)
	require.True(t, ok, "expected element node, got %T", node)
	return m[name]
}
