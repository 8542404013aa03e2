package cmd

import (
	"bytes"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"
)

func seedDocument(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "shop.db")
	db, err := sql.Open("sqlite", dbPath)
	require.NoError(t, err)
	for _, stmt := range []string{
		`CREATE TABLE orders (id INTEGER PRIMARY KEY, customer TEXT)`,
		`INSERT INTO orders VALUES (1, 'ann'), (2, 'bob')`,
	} {
		_, err := db.Exec(stmt)
		require.NoError(t, err, stmt)
	}
	require.NoError(t, db.Close())

	doc := fmt.Sprintf(`
version: v1
sources:
  - id: shop
    commands:
      - id: Orders
        kind: sql
        connection: {driver: sqlite, dsn: %q}
        statement: SELECT id, customer FROM orders ORDER BY id
        attributes: [id]
markup: |
  <document id="report">
    <repeat id="orders" source="shop" select="Orders">
      <label>{@id} {customer}</label>
    </repeat>
  </document>
`, dbPath)
	docPath := filepath.Join(dir, "report.yaml")
	require.NoError(t, os.WriteFile(docPath, []byte(doc), 0o644))
	return docPath
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	bindOut, schemaSource, schemaPath = "", "", ""
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&bytes.Buffer{})
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return out.String(), err
}

func TestBindCommand(t *testing.T) {
	docPath := seedDocument(t)
	out, err := run(t, "bind", docPath)
	require.NoError(t, err)

	var tree []map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &tree))
	require.Len(t, tree, 1)
	assert.Equal(t, "report", tree[0]["id"])

	orders := tree[0]["children"].([]any)[0].(map[string]any)
	rows := orders["children"].([]any)
	require.Len(t, rows, 2)
	label := rows[1].(map[string]any)["children"].([]any)[0].(map[string]any)
	assert.Equal(t, "2 bob", label["properties"].(map[string]any)["text"])
}

func TestBindCommand_OutFile(t *testing.T) {
	docPath := seedDocument(t)
	target := filepath.Join(t.TempDir(), "tree.json")
	out, err := run(t, "bind", docPath, "--out", target)
	require.NoError(t, err)
	assert.Empty(t, out)

	data, err := os.ReadFile(target)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"1 ann"`)
}

func TestSchemaCommand(t *testing.T) {
	docPath := seedDocument(t)
	out, err := run(t, "schema", docPath, "--source", "shop", "--path", "Orders")
	require.NoError(t, err)

	var s struct {
		Name  string `json:"name"`
		Items []struct {
			Name         string `json:"name"`
			RelativePath string `json:"relative_path"`
			DataType     string `json:"data_type"`
		} `json:"items"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &s))
	assert.Equal(t, "Orders", s.Name)
	require.Len(t, s.Items, 2)
	assert.Equal(t, "@id", s.Items[0].RelativePath)
	assert.Equal(t, "customer/text()", s.Items[1].RelativePath)
}

func TestBindCommand_Errors(t *testing.T) {
	_, err := run(t, "bind", filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)

	_, err = run(t, "bind", seedDocument(t), "--conformance", "loose")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "conformance")
}
