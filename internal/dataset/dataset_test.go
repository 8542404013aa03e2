package dataset

import (
	"encoding/json"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentic-research/loom/internal/nodeset"
)

func ordersDataset(t *testing.T) *Dataset {
	t.Helper()
	ds := New("shop")
	orders := ds.EnsureTable("Orders")
	orders.AddRow(map[string]any{"Id": int64(1), "Customer": "ada"})
	orders.AddRow(map[string]any{"Id": int64(2), "Customer": "bob"})

	lines := ds.EnsureTable("Lines")
	lines.AddRow(map[string]any{"OrderId": "1", "Sku": "a"})
	lines.AddRow(map[string]any{"OrderId": "2", "Sku": "b"})
	lines.AddRow(map[string]any{"OrderId": "1", "Sku": "c"})
	return ds
}

func TestKindOf(t *testing.T) {
	u, _ := url.Parse("https://example.com")
	tests := []struct {
		v    any
		want Kind
	}{
		{nil, KindUnknown},
		{"x", KindString},
		{true, KindBool},
		{int64(3), KindInt},
		{2.5, KindFloat},
		{json.Number("4"), KindInt},
		{json.Number("4.5"), KindFloat},
		{time.Now(), KindTime},
		{[]byte{1}, KindBytes},
		{u, KindURL},
		{[]any{1}, KindArray},
		{[]string{"a"}, KindArray},
		{struct{}{}, KindUnknown},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, KindOf(tt.v), "%T", tt.v)
	}
}

func TestKindFromDatabaseType(t *testing.T) {
	assert.Equal(t, KindInt, KindFromDatabaseType("INTEGER"))
	assert.Equal(t, KindInt, KindFromDatabaseType("bigint"))
	assert.Equal(t, KindDecimal, KindFromDatabaseType("NUMERIC"))
	assert.Equal(t, KindFloat, KindFromDatabaseType("DOUBLE PRECISION"))
	assert.Equal(t, KindTime, KindFromDatabaseType("TIMESTAMPTZ"))
	assert.Equal(t, KindBool, KindFromDatabaseType("BOOLEAN"))
	assert.Equal(t, KindBytes, KindFromDatabaseType("BLOB"))
	assert.Equal(t, KindArray, KindFromDatabaseType("_INT4"))
	assert.Equal(t, KindString, KindFromDatabaseType("VARCHAR"))
	assert.Equal(t, KindUnknown, KindFromDatabaseType(""))
}

func TestTable_AddRowDeclaresColumns(t *testing.T) {
	tbl := &Table{Name: "t"}
	tbl.AddRow(map[string]any{"a": nil})
	tbl.AddRow(map[string]any{"a": int64(1), "b": "x"})

	require.Len(t, tbl.Columns, 2)
	assert.Equal(t, KindInt, tbl.Column("a").Kind, "unknown kind refined by later rows")
	assert.Equal(t, KindString, tbl.Column("b").Kind)
	assert.Nil(t, tbl.Column("c"))
}

func TestAddRelation_JoinsChildRows(t *testing.T) {
	ds := ordersDataset(t)
	rel, err := ds.AddRelation("OrderLines", "Orders", "Lines", []string{"Id"}, []string{"OrderId"})
	require.NoError(t, err)

	orders, lines := ds.Table("Orders"), ds.Table("Lines")
	first := rel.Children(lines, orders.Rows[0])
	require.Len(t, first, 2)
	assert.Equal(t, "a", first[0]["Sku"])
	assert.Equal(t, "c", first[1]["Sku"])

	ids := map[string]bool{}
	for _, o := range orders.Rows {
		ids[nodeset.String(o["Id"])] = true
	}
	for _, l := range lines.Rows {
		assert.True(t, ids[nodeset.String(l["OrderId"])], "line %v has an order", l)
	}

	top := ds.TopLevel()
	require.Len(t, top, 1)
	assert.Equal(t, "Orders", top[0].Name)
}

func TestAddRelation_Errors(t *testing.T) {
	ds := ordersDataset(t)

	_, err := ds.AddRelation("r", "Orders", "Lines", []string{"Nope"}, []string{"OrderId"})
	var mc *MissingColumnError
	require.ErrorAs(t, err, &mc)
	assert.Equal(t, "Orders", mc.Table)
	assert.Equal(t, "Nope", mc.Column)

	_, err = ds.AddRelation("r", "Orders", "Lines", []string{"Id"}, []string{"Missing"})
	require.ErrorAs(t, err, &mc)
	assert.Equal(t, "Lines", mc.Table)

	_, err = ds.AddRelation("r", "Orders", "Ghost", []string{"Id"}, []string{"Id"})
	require.ErrorIs(t, err, ErrMissingTable)

	_, err = ds.AddRelation("r", "Orders", "Lines", []string{"Id", "Customer"}, []string{"OrderId"})
	require.Error(t, err)
	assert.Empty(t, ds.Relations)
}

func TestNodes_NestsChildTables(t *testing.T) {
	ds := ordersDataset(t)
	ds.Table("Orders").Column("Customer").Mapping = MapAttribute
	ds.Table("Lines").Column("OrderId").Mapping = MapHidden
	_, err := ds.AddRelation("OrderLines", "Orders", "Lines", []string{"Id"}, []string{"OrderId"})
	require.NoError(t, err)

	tree := ds.Nodes()

	skus, err := nodeset.Select(tree, "shop/Orders/Lines/Sku", nil)
	require.NoError(t, err)
	assert.ElementsMatch(t, []any{"a", "c", "b"}, skus)

	hidden, err := nodeset.Select(tree, "shop/Orders/Lines/OrderId", nil)
	require.NoError(t, err)
	assert.Empty(t, hidden)

	top, err := nodeset.Select(tree, "shop/Lines", nil)
	require.NoError(t, err)
	assert.Empty(t, top, "child tables are not top-level")
}

func TestNodes_SelfRelation(t *testing.T) {
	ds := New("org")
	emp := ds.EnsureTable("Employee")
	emp.AddRow(map[string]any{"Id": "1", "Boss": "0", "Name": "root"})
	emp.AddRow(map[string]any{"Id": "2", "Boss": "1", "Name": "mid"})
	emp.AddRow(map[string]any{"Id": "3", "Boss": "2", "Name": "leaf"})
	_, err := ds.AddRelation("Reports", "Employee", "Employee", []string{"Id"}, []string{"Boss"})
	require.NoError(t, err)

	require.Len(t, ds.TopLevel(), 1)
	tree := ds.Nodes()

	roots, err := nodeset.Select(tree, "org/Employee/Name", nil)
	require.NoError(t, err)
	assert.Equal(t, []any{"root"}, roots)

	leaf, err := nodeset.Select(tree, "org/Employee/Employee/Employee/Name", nil)
	require.NoError(t, err)
	assert.Equal(t, []any{"leaf"}, leaf)
}

func TestNodes_SimpleContent(t *testing.T) {
	ds := New("")
	tbl := ds.EnsureTable("Note")
	tbl.AddRow(map[string]any{"lang": "en", "body": "hi"})
	tbl.Column("body").Mapping = MapSimpleContent

	v, ok, err := nodeset.Evaluate(ds.Nodes(), "data/Note", nil)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "hi", v)

	rows := ds.Rows("Note")
	require.Len(t, rows, 1)
	assert.Equal(t, "en", rows[0].(map[string]any)["lang"])
	assert.Nil(t, ds.Rows("Missing"))
}
