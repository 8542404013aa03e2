package provider

import (
	"testing"

	"github.com/go-git/go-billy/v5/memfs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentic-research/loom/api"
	"github.com/agentic-research/loom/internal/bind"
)

const demoGo = `package demo

func Alpha() {}

func Beta(x int) int {
	return x
}
`

func TestCodeCommand_Functions(t *testing.T) {
	fs := memfs.New()
	writeFile(t, fs, "src/demo.go", demoGo)

	src, err := Build(api.Source{ID: "code", Commands: []api.Command{{
		ID:         "Funcs",
		Kind:       api.KindCode,
		File:       "src/{name}.go",
		Query:      `(function_declaration name: (identifier) @name) @scope`,
		Parameters: []api.Parameter{{Name: "name", Value: "demo"}},
		Hidden:     []string{"scope"},
	}}}, Env{FS: fs})
	require.NoError(t, err)

	sel, err := src.Select(newContext(t, bind.Strict), "Funcs")
	require.NoError(t, err)
	funcs := drain(t, sel)
	require.Len(t, funcs, 2)

	assert.Equal(t, "Alpha", field(t, funcs[0], "name"))
	assert.Equal(t, "src/demo.go", field(t, funcs[0], ColumnFile))
	assert.Equal(t, int64(3), field(t, funcs[0], ColumnStartLine))
	assert.Nil(t, field(t, funcs[0], "scope"), "hidden columns stay out of the node view")

	assert.Equal(t, "Beta", field(t, funcs[1], "name"))
	assert.Equal(t, int64(5), field(t, funcs[1], ColumnStartLine))
	assert.Equal(t, int64(7), field(t, funcs[1], ColumnEndLine))
}

func TestCodeCommand_Errors(t *testing.T) {
	fs := memfs.New()
	writeFile(t, fs, "notes.txt", "hello")
	writeFile(t, fs, "demo.go", demoGo)

	tests := []struct {
		name      string
		cmd       api.Command
		errSubstr string
	}{
		{"undetectable", api.Command{File: "notes.txt", Query: "(x) @x"}, "cannot detect language"},
		{"unsupported", api.Command{File: "demo.go", Language: "cobol", Query: "(x) @x"}, "unsupported language"},
		{"bad query", api.Command{File: "demo.go", Query: "(nonsense_node) @x"}, "invalid query"},
		{"missing file", api.Command{File: "gone.go", Query: "(identifier) @x"}, "open gone.go"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.cmd.ID = "c"
			tt.cmd.Kind = api.KindCode
			src, err := Build(api.Source{ID: "code", Commands: []api.Command{tt.cmd}}, Env{FS: fs})
			require.NoError(t, err)
			_, err = src.Select(newContext(t, bind.Strict), "c")
			require.ErrorContains(t, err, tt.errSubstr)
		})
	}
}

func TestLanguageForFile(t *testing.T) {
	for file, want := range map[string]string{
		"main.go": "go", "app.PY": "python", "main.tf": "hcl", "x.tsx": "typescript",
		"lib.rs": "rust", "q.sql": "sql", "ci.yml": "yaml", "a.js": "javascript",
	} {
		got, ok := LanguageForFile(file)
		assert.True(t, ok, file)
		assert.Equal(t, want, got, file)
		_, ok = Language(got)
		assert.True(t, ok, got)
	}
	_, ok := LanguageForFile("README")
	assert.False(t, ok)
}
