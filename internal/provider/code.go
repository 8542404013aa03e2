package provider

import (
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/go-git/go-billy/v5"
	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/golang"
	"github.com/smacker/go-tree-sitter/hcl"
	"github.com/smacker/go-tree-sitter/javascript"
	"github.com/smacker/go-tree-sitter/python"
	"github.com/smacker/go-tree-sitter/rust"
	"github.com/smacker/go-tree-sitter/sql"
	"github.com/smacker/go-tree-sitter/typescript/typescript"
	"github.com/smacker/go-tree-sitter/yaml"

	"github.com/agentic-research/loom/api"
	"github.com/agentic-research/loom/internal/bind"
	"github.com/agentic-research/loom/internal/dataset"
)

// Columns every code row carries besides its captures.
const (
	ColumnFile      = "file"
	ColumnStartLine = "start_line"
	ColumnEndLine   = "end_line"
)

// captureScope names the capture whose node positions the row.
const captureScope = "scope"

// Language returns the grammar for a language name.
func Language(name string) (*sitter.Language, bool) {
	switch strings.ToLower(name) {
	case "go", "golang":
		return golang.GetLanguage(), true
	case "python":
		return python.GetLanguage(), true
	case "hcl", "terraform":
		return hcl.GetLanguage(), true
	case "javascript", "js":
		return javascript.GetLanguage(), true
	case "typescript", "ts":
		return typescript.GetLanguage(), true
	case "rust":
		return rust.GetLanguage(), true
	case "sql":
		return sql.GetLanguage(), true
	case "yaml":
		return yaml.GetLanguage(), true
	}
	return nil, false
}

// LanguageForFile maps a file extension to a language name.
func LanguageForFile(name string) (string, bool) {
	switch strings.ToLower(path.Ext(name)) {
	case ".go":
		return "go", true
	case ".py":
		return "python", true
	case ".tf", ".hcl":
		return "hcl", true
	case ".js":
		return "javascript", true
	case ".ts", ".tsx":
		return "typescript", true
	case ".rs":
		return "rust", true
	case ".sql":
		return "sql", true
	case ".yaml", ".yml":
		return "yaml", true
	}
	return "", false
}

// CodeCommand loads one row per tree-sitter query match in a source file.
type CodeCommand struct {
	command
	fs billy.Filesystem
}

func newCodeCommand(spec api.Command, env Env) (Command, error) {
	if spec.File == "" || spec.Query == "" {
		return nil, fmt.Errorf("command %s: code needs file and query", spec.ID)
	}
	if env.FS == nil {
		return nil, fmt.Errorf("command %s: no filesystem for %s", spec.ID, spec.File)
	}
	return &CodeCommand{command: command{spec: spec}, fs: env.FS}, nil
}

// Fill parses the file and runs the query. Each capture becomes a column
// holding the captured source text.
func (cc *CodeCommand) Fill(c *bind.Context, ds *dataset.Dataset, parent Command) error {
	args, err := cc.args(c, parent)
	if err != nil {
		return err
	}
	file := expand(cc.spec.File, args)

	langName := cc.spec.Language
	if langName == "" {
		var ok bool
		if langName, ok = LanguageForFile(file); !ok {
			return fmt.Errorf("cannot detect language of %s", file)
		}
	}
	lang, ok := Language(langName)
	if !ok {
		return fmt.Errorf("unsupported language %q", langName)
	}

	f, err := cc.fs.Open(file)
	if err != nil {
		return fmt.Errorf("open %s: %w", file, err)
	}
	source, err := io.ReadAll(f)
	_ = f.Close()
	if err != nil {
		return fmt.Errorf("read %s: %w", file, err)
	}

	parser := sitter.NewParser()
	parser.SetLanguage(lang)
	tree, err := parser.ParseCtx(c.Std(), nil, source)
	if err != nil {
		return fmt.Errorf("parse %s: %w", file, err)
	}

	q, err := sitter.NewQuery([]byte(expand(cc.spec.Query, args)), lang)
	if err != nil {
		return fmt.Errorf("invalid query: %w", err)
	}
	defer q.Close()

	qc := sitter.NewQueryCursor()
	defer qc.Close()
	qc.Exec(q, tree.RootNode())

	var rows []map[string]any
	for {
		m, ok := qc.NextMatch()
		if !ok {
			break
		}
		if len(m.Captures) == 0 {
			continue
		}
		row := map[string]any{ColumnFile: file}
		anchor := m.Captures[0].Node
		for _, capture := range m.Captures {
			name := q.CaptureNameForId(capture.Index)
			if name == captureScope {
				anchor = capture.Node
			}
			if _, seen := row[name]; seen {
				continue
			}
			start, end := capture.Node.StartByte(), capture.Node.EndByte()
			if end <= uint32(len(source)) && start <= end {
				row[name] = string(source[start:end])
			}
		}
		row[ColumnStartLine] = int64(anchor.StartPoint().Row) + 1
		row[ColumnEndLine] = int64(anchor.EndPoint().Row) + 1
		rows = append(rows, row)
	}
	cc.fillRows(ds, rows)
	return nil
}
