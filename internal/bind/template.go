package bind

import (
	"encoding/xml"
	"errors"
	"fmt"
	"maps"
	"slices"
	"strconv"
	"strings"

	"github.com/agentic-research/loom/internal/trace"
)

// FragmentRoot is the synthetic element wrapping a template fragment.
const FragmentRoot = "fragment"

// Parser turns markup fragments into component subtrees.
type Parser interface {
	ParseTemplate(remote RemoteSource, fragment string) (Component, error)
}

var errNoParser = errors.New("template has no parser")

// Template holds a raw markup fragment and produces a fresh subtree per call.
type Template struct {
	Content string
	// Namespaces are the prefix bindings in scope where the fragment was captured.
	Namespaces map[string]string
	Parser     Parser
	// StampStyleKeys stamps every generated component with StyleStem_ordinal.
	StampStyleKeys bool
	StyleStem      string
	// Prewrapped marks Content as a complete fragment element already.
	Prewrapped bool

	wrapped string
}

// Empty reports whether there is nothing to instantiate.
func (t *Template) Empty() bool {
	return t == nil || strings.TrimSpace(t.Content) == ""
}

// init wraps the fragment with its namespace declarations on first use.
func (t *Template) init() {
	if t.wrapped != "" {
		return
	}
	if t.Prewrapped {
		t.wrapped = t.Content
		return
	}
	var b strings.Builder
	b.WriteString("<" + FragmentRoot)
	for _, prefix := range slices.Sorted(maps.Keys(t.Namespaces)) {
		b.WriteString(" xmlns")
		if prefix != "" {
			b.WriteString(":" + prefix)
		}
		b.WriteString(`="`)
		_ = xml.EscapeText(&b, []byte(t.Namespaces[prefix]))
		b.WriteString(`"`)
	}
	b.WriteString(">")
	b.WriteString(t.Content)
	b.WriteString("</" + FragmentRoot + ">")
	t.wrapped = b.String()
}

// IsFragment reports whether s is a single FragmentRoot element.
func IsFragment(s string) bool {
	t := strings.TrimSpace(s)
	rest, ok := strings.CutPrefix(t, "<"+FragmentRoot)
	if !ok || rest == "" {
		return false
	}
	switch rest[0] {
	case ' ', '\t', '\r', '\n', '>', '/':
	default:
		return false
	}
	if strings.HasSuffix(t, "</"+FragmentRoot+">") {
		return true
	}
	return strings.HasSuffix(t, "/>") && !strings.Contains(t[1:], "<")
}

// Wrapped returns the fragment as parsed.
func (t *Template) Wrapped() string {
	t.init()
	return t.wrapped
}

// Instantiate parses a new, independent subtree for row index, resolving
// relative references against the nearest remote source above owner.
func (t *Template) Instantiate(c *Context, index int, owner Component) (Component, error) {
	if t.Parser == nil {
		return nil, errNoParser
	}
	t.init()

	tr := c.Trace()
	if tr.ShouldLog(trace.Debug) {
		tr.Addf(trace.Debug, Category, "instantiate template of %s %q row %d", owner.Kind(), owner.ID(), index)
	}

	root, err := t.Parser.ParseTemplate(FindRemote(c, owner), t.wrapped)
	if err != nil {
		return nil, fmt.Errorf("instantiate template of %s %q: %w", owner.Kind(), owner.ID(), err)
	}
	if t.StampStyleKeys || c.StyleKeys() {
		stem := t.StyleStem
		if stem == "" {
			stem = owner.ID()
		}
		if stem == "" {
			stem = owner.Kind()
		}
		stamp(root, stem)
	}
	return root, nil
}

// stamp assigns position-derived keys depth-first, so the same template
// yields the same keys on every row.
func stamp(root Component, stem string) {
	ordinal := 0
	Walk(root, func(n Component) bool {
		if s, ok := n.(Styled); ok {
			s.SetStyleKey(stem + "_" + strconv.Itoa(ordinal))
			ordinal++
		}
		return true
	})
}
