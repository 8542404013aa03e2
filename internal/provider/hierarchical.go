package provider

import (
	"bytes"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/go-git/go-billy/v5"
	"github.com/ohler55/ojg/oj"

	"github.com/agentic-research/loom/api"
	"github.com/agentic-research/loom/internal/bind"
	"github.com/agentic-research/loom/internal/dataset"
	"github.com/agentic-research/loom/internal/nodeset"
)

// NodeCommand loads rows from a JSON or XML document.
type NodeCommand struct {
	command
	fs billy.Filesystem
}

func newNodeCommand(spec api.Command, env Env) (Command, error) {
	if spec.File == "" && spec.Content == "" {
		return nil, fmt.Errorf("command %s: %s needs file or content", spec.ID, spec.Kind)
	}
	if spec.File != "" && env.FS == nil {
		return nil, fmt.Errorf("command %s: no filesystem for %s", spec.ID, spec.File)
	}
	return &NodeCommand{command: command{spec: spec}, fs: env.FS}, nil
}

// Fill parses the document and turns every selected node into a row.
// Parameters substitute {name} placeholders in the file name and select path.
func (n *NodeCommand) Fill(c *bind.Context, ds *dataset.Dataset, parent Command) error {
	args, err := n.args(c, parent)
	if err != nil {
		return err
	}
	doc, err := n.load(expand(n.spec.File, args))
	if err != nil {
		return err
	}

	sel := expand(n.spec.Select, args)
	var nodes []any
	if list, ok := doc.([]any); ok && sel == "" {
		nodes = list
	} else {
		nodes, err = nodeset.Select(doc, sel, c.Namespaces())
		if err != nil {
			return err
		}
	}

	rows := make([]map[string]any, 0, len(nodes))
	for _, node := range nodes {
		rows = append(rows, nodeRow(node, n.spec.SimpleContent))
	}
	n.fillRows(ds, rows)
	return nil
}

func (n *NodeCommand) load(file string) (any, error) {
	var data []byte
	if file != "" {
		f, err := n.fs.Open(file)
		if err != nil {
			return nil, fmt.Errorf("open %s: %w", file, err)
		}
		defer func() { _ = f.Close() }()
		if data, err = io.ReadAll(f); err != nil {
			return nil, fmt.Errorf("read %s: %w", file, err)
		}
	} else {
		data = []byte(n.spec.Content)
	}

	if n.spec.Kind == api.KindXML {
		return nodeset.ParseXML(bytes.NewReader(data))
	}
	doc, err := oj.Parse(data)
	if err != nil {
		return nil, fmt.Errorf("parse json: %w", err)
	}
	return doc, nil
}

// nodeRow keeps the scalar and list-of-scalar members of an element; nested
// elements belong to other commands.
func nodeRow(node any, textColumn string) map[string]any {
	m, ok := node.(map[string]any)
	if !ok {
		return map[string]any{"value": node}
	}
	row := make(map[string]any, len(m))
	for k, v := range m {
		if k == nodeset.TextKey {
			row[firstNonEmpty(textColumn, "text")] = v
			continue
		}
		switch x := v.(type) {
		case map[string]any:
			if t, ok := x[nodeset.TextKey]; ok && len(x) == 1 {
				row[k] = t
			}
		case []any:
			if scalars(x) {
				row[k] = x
			}
		default:
			row[k] = v
		}
	}
	return row
}

func scalars(list []any) bool {
	for _, v := range list {
		switch v.(type) {
		case map[string]any, []any:
			return false
		}
	}
	return true
}

// expand substitutes {name} placeholders with argument values.
func expand(s string, args []Arg) string {
	if s == "" || !strings.Contains(s, "{") {
		return s
	}
	sorted := append([]Arg(nil), args...)
	sort.SliceStable(sorted, func(i, j int) bool { return len(sorted[i].Name) > len(sorted[j].Name) })
	for _, a := range sorted {
		s = strings.ReplaceAll(s, "{"+a.Name+"}", nodeset.String(a.Value))
	}
	return s
}
