// Package nodeset evaluates paths over navigable node trees.
//
// A node tree is the generic form produced by JSON and XML decoding:
// map[string]any for elements, []any for repeated members and scalars for
// leaf values. Element text lives under the TextKey member.
//
// Two path syntaxes are accepted. Paths starting with "$" or "@." are
// JSONPath and run through ojg. Everything else is a small XPath subset:
// "/"-separated steps of name, p:name, @name, text(), "." and "*".
package nodeset

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/ohler55/ojg/jp"
)

// TextKey holds an element's character content.
const TextKey = "#text"

// ErrUnboundPrefix is returned when a path uses an undeclared namespace prefix.
var ErrUnboundPrefix = errors.New("unbound namespace prefix")

// Resolver maps namespace prefixes to URIs.
type Resolver interface {
	LookupPrefix(prefix string) (string, bool)
}

type stepKind int

const (
	stepChild stepKind = iota
	stepAttr
	stepText
	stepSelf
	stepAll
)

type step struct {
	kind stepKind
	name string
}

// Path is a compiled selection path.
type Path struct {
	raw   string
	expr  jp.Expr
	steps []step
}

func (p *Path) String() string { return p.raw }

// Compile parses path. An empty path selects all immediate children.
func Compile(path string, ns Resolver) (*Path, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return &Path{raw: path, steps: []step{{kind: stepAll}}}, nil
	}
	if isJSONPath(path) {
		x, err := jp.ParseString(path)
		if err != nil {
			return nil, fmt.Errorf("invalid jsonpath '%s': %w", path, err)
		}
		return &Path{raw: path, expr: x}, nil
	}

	p := &Path{raw: path}
	for _, seg := range strings.Split(strings.Trim(path, "/"), "/") {
		seg = strings.TrimSpace(seg)
		switch {
		case seg == "" || seg == ".":
			p.steps = append(p.steps, step{kind: stepSelf})
		case seg == "*":
			p.steps = append(p.steps, step{kind: stepAll})
		case seg == "text()":
			p.steps = append(p.steps, step{kind: stepText})
		case strings.HasPrefix(seg, "@"):
			name, err := localName(seg[1:], ns)
			if err != nil {
				return nil, err
			}
			p.steps = append(p.steps, step{kind: stepAttr, name: name})
		default:
			name, err := localName(seg, ns)
			if err != nil {
				return nil, err
			}
			p.steps = append(p.steps, step{kind: stepChild, name: name})
		}
	}
	return p, nil
}

func isJSONPath(path string) bool {
	return strings.HasPrefix(path, "$") ||
		strings.HasPrefix(path, "@.") ||
		strings.HasPrefix(path, "@[") ||
		strings.ContainsAny(path, "[]")
}

func localName(qname string, ns Resolver) (string, error) {
	prefix, local, ok := strings.Cut(qname, ":")
	if !ok {
		return qname, nil
	}
	if ns == nil {
		return "", fmt.Errorf("%w %q in %q", ErrUnboundPrefix, prefix, qname)
	}
	if _, found := ns.LookupPrefix(prefix); !found {
		return "", fmt.Errorf("%w %q in %q", ErrUnboundPrefix, prefix, qname)
	}
	return local, nil
}

// Get returns the nodes selected from data, flattening list members.
func (p *Path) Get(data any) []any {
	if p.expr != nil {
		var out []any
		for _, r := range p.expr.Get(data) {
			out = appendFlat(out, r)
		}
		return out
	}

	current := appendFlat(nil, data)
	for _, s := range p.steps {
		var next []any
		for _, node := range current {
			next = s.apply(next, node)
		}
		current = next
		if len(current) == 0 {
			break
		}
	}
	return current
}

func (s step) apply(out []any, node any) []any {
	switch s.kind {
	case stepSelf:
		return append(out, node)
	case stepChild, stepAttr:
		if m, ok := node.(map[string]any); ok {
			if v, ok := m[s.name]; ok {
				out = appendFlat(out, v)
			}
		}
		return out
	case stepText:
		switch v := node.(type) {
		case map[string]any:
			if t, ok := v[TextKey]; ok {
				out = append(out, t)
			}
			return out
		case nil:
			return out
		default:
			return append(out, v)
		}
	case stepAll:
		m, ok := node.(map[string]any)
		if !ok {
			return out
		}
		keys := make([]string, 0, len(m))
		for k := range m {
			if k != TextKey {
				keys = append(keys, k)
			}
		}
		sort.Strings(keys)
		for _, k := range keys {
			out = appendFlat(out, m[k])
		}
		return out
	}
	return out
}

func appendFlat(out []any, v any) []any {
	if list, ok := v.([]any); ok {
		return append(out, list...)
	}
	return append(out, v)
}
