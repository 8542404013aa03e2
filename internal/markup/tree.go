package markup

import (
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"maps"
	"strings"

	"github.com/jacoelho/xsd/pkg/xmlstream"
)

// element is one parsed markup element. Content interleaves child
// elements and character data in document order.
type element struct {
	name    string
	attrs   map[string]string
	order   []string
	content []any
	// ns holds every prefix binding in scope at this element.
	ns   map[string]string
	line int
}

func (e *element) attr(name string) string { return e.attrs[name] }

func (e *element) has(name string) bool {
	_, ok := e.attrs[name]
	return ok
}

// elements returns the child elements.
func (e *element) elements() []*element {
	var out []*element
	for _, c := range e.content {
		if el, ok := c.(*element); ok {
			out = append(out, el)
		}
	}
	return out
}

// text returns the trimmed character data directly inside e.
func (e *element) text() string {
	var b strings.Builder
	for _, c := range e.content {
		if s, ok := c.(string); ok {
			b.WriteString(s)
		}
	}
	return strings.TrimSpace(b.String())
}

// inner serializes e's content. Elements and attributes are written by
// local name.
func (e *element) inner() string {
	var b strings.Builder
	for _, c := range e.content {
		writeNode(&b, c)
	}
	return b.String()
}

func writeNode(b *strings.Builder, n any) {
	switch v := n.(type) {
	case string:
		_ = xml.EscapeText(b, []byte(v))
	case *element:
		b.WriteString("<" + v.name)
		for _, name := range v.order {
			b.WriteString(" " + name + `="`)
			_ = xml.EscapeText(b, []byte(v.attrs[name]))
			b.WriteString(`"`)
		}
		if len(v.content) == 0 {
			b.WriteString("/>")
			return
		}
		b.WriteString(">")
		for _, c := range v.content {
			writeNode(b, c)
		}
		b.WriteString("</" + v.name + ">")
	}
}

// readTree reads r into an element tree, tracking namespace declarations.
func readTree(r io.Reader) (*element, error) {
	dec, err := xmlstream.NewReader(r)
	if err != nil {
		return nil, fmt.Errorf("open markup: %w", err)
	}

	var stack []*element
	var root *element
	for {
		ev, err := dec.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("parse markup: %w", err)
		}
		switch ev.Kind {
		case xmlstream.EventStartElement:
			el := &element{name: ev.Name.Local, attrs: make(map[string]string), line: ev.Line}
			var inherited map[string]string
			if len(stack) > 0 {
				inherited = stack[len(stack)-1].ns
			}
			el.ns = maps.Clone(inherited)
			for _, d := range dec.NamespaceDecls(ev.ScopeDepth) {
				if el.ns == nil {
					el.ns = make(map[string]string)
				}
				el.ns[d.Prefix] = d.URI
			}
			for _, a := range ev.Attrs {
				name := a.Name.Local
				if _, dup := el.attrs[name]; !dup {
					el.order = append(el.order, name)
				}
				el.attrs[name] = string(a.Value)
			}
			if len(stack) > 0 {
				parent := stack[len(stack)-1]
				parent.content = append(parent.content, el)
			} else if root != nil {
				return nil, fmt.Errorf("parse markup: line %d: more than one root element", ev.Line)
			} else {
				root = el
			}
			stack = append(stack, el)
		case xmlstream.EventCharData:
			if len(stack) > 0 {
				top := stack[len(stack)-1]
				top.content = append(top.content, string(ev.Text))
			}
		case xmlstream.EventEndElement:
			if len(stack) == 0 {
				return nil, fmt.Errorf("parse markup: unbalanced end element %s", ev.Name.Local)
			}
			stack = stack[:len(stack)-1]
		}
	}
	if root == nil {
		return nil, errors.New("parse markup: no root element")
	}
	return root, nil
}
