package api

import (
	"testing"
	"time"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/memfs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, fs billy.Filesystem, name, content string) {
	t.Helper()
	f, err := fs.Create(name)
	require.NoError(t, err)
	_, err = f.Write([]byte(content))
	require.NoError(t, err)
	require.NoError(t, f.Close())
}

func TestLoad_YAML(t *testing.T) {
	fs := memfs.New()
	writeFile(t, fs, "report.yaml", `
version: v1
namespaces:
  o: urn:orders
sources:
  - id: shop
    cache_duration: 5m
    commands:
      - id: Orders
        kind: sql
        connection: {driver: sqlite, dsn: shop.db}
        statement: SELECT * FROM orders
        attributes: ["*"]
        relations:
          - child: Lines
            matches: [{parent: Id, child: OrderId}]
      - id: Lines
        kind: sql
        element_name: Line
        statement: SELECT * FROM lines
markup_file: report.xml
`)

	doc, err := Load(fs, "report.yaml")
	require.NoError(t, err)
	assert.Equal(t, "v1", doc.Version)
	assert.Equal(t, "urn:orders", doc.Namespaces["o"])
	require.Len(t, doc.Sources, 1)

	src := doc.Sources[0]
	ttl, err := src.CacheTTL()
	require.NoError(t, err)
	assert.Equal(t, 5*time.Minute, ttl)

	require.Len(t, src.Commands, 2)
	orders := src.Commands[0]
	assert.Equal(t, "sqlite", orders.Connection.Driver)
	assert.Equal(t, []string{"*"}, orders.Attributes)
	assert.Equal(t, []Match{{Parent: "Id", Child: "OrderId"}}, orders.Relations[0].Matches)
	assert.Equal(t, "Orders", orders.Table())
	assert.Equal(t, "Line", src.Commands[1].Table())
}

func TestLoad_JSON(t *testing.T) {
	fs := memfs.New()
	writeFile(t, fs, "doc.json", `{
  "version": "v1",
  "sources": [{"id": "people", "commands": [{"id": "p", "kind": "json", "file": "people.json", "select": "$.people[*]"}]}],
  "markup": "<document/>"
}`)

	doc, err := Load(fs, "doc.json")
	require.NoError(t, err)
	assert.Equal(t, "<document/>", doc.Markup)
	assert.Equal(t, "$.people[*]", doc.Sources[0].Commands[0].Select)
}

func TestLoad_Errors(t *testing.T) {
	fs := memfs.New()
	writeFile(t, fs, "doc.toml", "x")
	writeFile(t, fs, "bad.json", "{")

	_, err := Load(fs, "missing.json")
	require.Error(t, err)

	_, err = Load(fs, "doc.toml")
	require.ErrorContains(t, err, "unsupported format")

	_, err = Load(fs, "bad.json")
	require.ErrorContains(t, err, "parse document")
}

func TestDocument_Validate(t *testing.T) {
	tests := []struct {
		name      string
		doc       Document
		errSubstr string
	}{
		{"empty ok", Document{}, ""},
		{"markup conflict", Document{Markup: "<a/>", MarkupFile: "a.xml"}, "mutually exclusive"},
		{"missing source id", Document{Sources: []Source{{}}}, "id is required"},
		{"duplicate source", Document{Sources: []Source{{ID: "a"}, {ID: "a"}}}, "duplicate id"},
		{"bad duration", Document{Sources: []Source{{ID: "a", CacheDuration: "soon"}}}, "cache_duration"},
		{"duplicate command", Document{Sources: []Source{{ID: "a", Commands: []Command{
			{ID: "c", Kind: "json"}, {ID: "c", Kind: "json"},
		}}}}, "command c: duplicate id"},
		{"missing kind", Document{Sources: []Source{{ID: "a", Commands: []Command{{ID: "c"}}}}}, "kind is required"},
		{"empty relation", Document{Sources: []Source{{ID: "a", Commands: []Command{
			{ID: "c", Kind: "json", Relations: []Relation{{Child: "d"}}},
		}}}}, "at least one match"},
		{"undeclared child is a bind-time error", Document{Sources: []Source{{ID: "a", Commands: []Command{
			{ID: "c", Kind: "json", Relations: []Relation{{Child: "ghost", Matches: []Match{{Parent: "x", Child: "y"}}}}},
		}}}}, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.doc.Validate()
			if tt.errSubstr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errSubstr)
		})
	}
}
