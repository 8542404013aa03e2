package nodeset

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/jacoelho/xsd/pkg/xmlstream"
)

type xmlFrame struct {
	name  string
	attrs map[string]any
	kids  map[string]any
	text  strings.Builder
}

func (f *xmlFrame) add(name string, v any) {
	existing, ok := f.kids[name]
	if !ok {
		f.kids[name] = v
		return
	}
	if list, ok := existing.([]any); ok {
		f.kids[name] = append(list, v)
		return
	}
	f.kids[name] = []any{existing, v}
}

// value collapses text-only elements into their text.
func (f *xmlFrame) value() any {
	text := strings.TrimSpace(f.text.String())
	if len(f.attrs) == 0 && len(f.kids) == 0 {
		return text
	}
	node := make(map[string]any, len(f.attrs)+len(f.kids)+1)
	for k, v := range f.attrs {
		node[k] = v
	}
	for k, v := range f.kids {
		node[k] = v
	}
	if text != "" {
		node[TextKey] = text
	}
	return node
}

// ParseXML reads an XML document into a node tree rooted at a map holding
// the document element. Attributes and child elements become members keyed
// by local name; repeated children become lists.
func ParseXML(r io.Reader) (any, error) {
	dec, err := xmlstream.NewReader(r)
	if err != nil {
		return nil, fmt.Errorf("open xml: %w", err)
	}

	var stack []*xmlFrame
	var root map[string]any
	for {
		ev, err := dec.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("parse xml: %w", err)
		}
		switch ev.Kind {
		case xmlstream.EventStartElement:
			f := &xmlFrame{
				name:  ev.Name.Local,
				attrs: make(map[string]any),
				kids:  make(map[string]any),
			}
			for _, a := range ev.Attrs {
				f.attrs[a.Name.Local] = string(a.Value)
			}
			stack = append(stack, f)
		case xmlstream.EventCharData:
			if len(stack) > 0 {
				stack[len(stack)-1].text.Write(ev.Text)
			}
		case xmlstream.EventEndElement:
			if len(stack) == 0 {
				return nil, fmt.Errorf("parse xml: unbalanced end element %s", ev.Name.Local)
			}
			f := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			if len(stack) == 0 {
				root = map[string]any{f.name: f.value()}
				continue
			}
			stack[len(stack)-1].add(f.name, f.value())
		}
	}
	if root == nil {
		return nil, fmt.Errorf("parse xml: no document element")
	}
	return root, nil
}
