// Package markup parses component markup into component trees.
//
// Elements are matched by local name, so the vocabulary may be used with
// or without a namespace. Control elements (repeat, if, switch) keep their
// content as a template that is parsed again for every instantiation.
package markup

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/go-git/go-billy/v5"

	"github.com/agentic-research/loom/internal/bind"
	"github.com/agentic-research/loom/internal/component"
)

// Parser turns markup into components. It implements bind.Parser.
type Parser struct{}

func NewParser() *Parser { return &Parser{} }

// Parse reads a document. A root other than <document> is wrapped in one.
func (p *Parser) Parse(r io.Reader, fs billy.Filesystem) (*component.Document, error) {
	root, err := readTree(r)
	if err != nil {
		return nil, err
	}
	doc := component.NewDocument(root.attr("id"), fs)
	doc.Namespaces = root.ns
	b := &builder{parser: p}
	if root.name == component.KindDocument {
		if err := b.children(doc, root); err != nil {
			return nil, err
		}
		return doc, nil
	}
	comp, err := b.build(root)
	if err != nil {
		return nil, err
	}
	bind.Attach(doc, comp)
	return doc, nil
}

// ParseTemplate parses a wrapped template fragment into a group. Imports in
// the fragment resolve against remote.
func (p *Parser) ParseTemplate(remote bind.RemoteSource, fragment string) (bind.Component, error) {
	root, err := readTree(strings.NewReader(fragment))
	if err != nil {
		return nil, err
	}
	if root.name != bind.FragmentRoot {
		return nil, fmt.Errorf("template root is <%s>, want <%s>", root.name, bind.FragmentRoot)
	}
	g := bind.NewGroup("")
	b := &builder{parser: p, remote: remote}
	if err := b.children(g, root); err != nil {
		return nil, err
	}
	return g, nil
}

type builder struct {
	parser *Parser
	remote bind.RemoteSource
}

func (b *builder) children(parent bind.Container, el *element) error {
	for _, child := range el.elements() {
		comp, err := b.build(child)
		if err != nil {
			return err
		}
		bind.Attach(parent, comp)
	}
	return nil
}

// attrError reports a malformed attribute value.
func attrError(el *element, name string, err error) error {
	return fmt.Errorf("line %d: <%s> attribute %s: %w", el.line, el.name, name, err)
}

func (b *builder) build(el *element) (bind.Component, error) {
	id := el.attr("id")
	var comp bind.Component
	var err error
	switch el.name {
	case component.KindDocument, "group":
		g := bind.NewGroup(id)
		err = b.children(g, el)
		comp = g
	case component.KindPanel:
		p := component.NewPanel(id)
		err = b.children(p, el)
		comp = p
	case component.KindLabel:
		l := component.NewLabel(id)
		l.Text = el.attr("text")
		if !el.has("text") {
			l.Text = el.text()
		}
		l.Value = el.attr("value")
		comp = l
	case component.KindNumber:
		n := component.NewNumber(id)
		n.Value, n.Format = el.attr("value"), el.attr("format")
		comp = n
	case component.KindDate:
		d := component.NewDate(id)
		d.Value, d.Layout = el.attr("value"), el.attr("layout")
		comp = d
	case component.KindImage:
		i := component.NewImage(id)
		i.Src = el.attr("src")
		comp = i
	case component.KindLink:
		l := component.NewLink(id)
		l.Href, l.Text = el.attr("href"), el.attr("text")
		if l.Text == "" {
			l.Text = el.text()
		}
		comp = l
	case component.KindCheck:
		k := component.NewCheck(id)
		k.Value = el.attr("value")
		comp = k
	case "repeat":
		comp, err = b.repeat(el)
	case "if":
		comp, err = b.conditional(el)
	case "switch":
		comp, err = b.choice(el)
	case "with":
		w := bind.NewWith(id)
		w.Data = dataBinding(el)
		err = b.children(w, el)
		comp = w
	case component.KindField:
		comp, err = field(el)
	case component.KindFieldSet:
		comp, err = b.fieldSet(el)
	case component.KindGrid:
		comp, err = grid(el)
	case component.KindImport:
		imp := component.NewImport(id)
		imp.Src = el.attr("src")
		if imp.Src == "" {
			return nil, fmt.Errorf("line %d: <import> needs src", el.line)
		}
		imp.Parser = b.parser
		imp.Origin = b.remote
		comp = imp
	default:
		return nil, fmt.Errorf("line %d: unknown element <%s>", el.line, el.name)
	}
	if err != nil {
		return nil, err
	}
	if key := el.attr("style-key"); key != "" {
		if s, ok := comp.(bind.Styled); ok {
			s.SetStyleKey(key)
		}
	}
	return comp, nil
}

func (b *builder) template(el *element) *bind.Template {
	return &bind.Template{
		Content:    el.inner(),
		Namespaces: el.ns,
		Parser:     b.parser,
	}
}

func (b *builder) repeat(el *element) (bind.Component, error) {
	r := bind.NewRepeat(el.attr("id"))
	r.Data = dataBinding(el)
	w, err := window(el)
	if err != nil {
		return nil, err
	}
	r.Window = w
	r.Template = b.template(el)
	if el.has("style-keys") {
		stamp, err := strconv.ParseBool(el.attr("style-keys"))
		if err != nil {
			return nil, attrError(el, "style-keys", err)
		}
		r.Template.StampStyleKeys = stamp
		r.Template.StyleStem = el.attr("style-stem")
	}
	return r, nil
}

func (b *builder) conditional(el *element) (bind.Component, error) {
	n := bind.NewIf(el.attr("id"))
	if el.has("test") {
		n.Test = boolBinding(el.attr("test"))
	}
	if el.has("visible") {
		n.Visible = boolBinding(el.attr("visible"))
	}
	n.Template = b.template(el)
	return n, nil
}

func (b *builder) choice(el *element) (bind.Component, error) {
	s := bind.NewSwitch(el.attr("id"))
	for _, child := range el.elements() {
		switch child.name {
		case "case":
			if !child.has("test") {
				return nil, fmt.Errorf("line %d: <case> needs test", child.line)
			}
			s.Cases = append(s.Cases, &bind.Case{Test: boolBinding(child.attr("test")), Template: b.template(child)})
		case "else":
			if s.Else != nil {
				return nil, fmt.Errorf("line %d: <switch> has more than one <else>", child.line)
			}
			s.Else = b.template(child)
		default:
			return nil, fmt.Errorf("line %d: unexpected <%s> in <switch>", child.line, child.name)
		}
	}
	return s, nil
}

func field(el *element) (bind.Component, error) {
	f := component.NewField(el.attr("id"))
	f.Caption = el.attr("caption")
	slot, err := component.ParseSlotKind(el.attr("kind"))
	if err != nil {
		return nil, attrError(el, "kind", err)
	}
	f.Slot, f.Path = slot, el.attr("value")
	return f, nil
}

func (b *builder) fieldSet(el *element) (bind.Component, error) {
	fs := component.NewFieldSet(el.attr("id"))
	fs.Data = dataBinding(el)
	auto, err := autoBind(el)
	if err != nil {
		return nil, err
	}
	fs.AutoBind, fs.Exclude, fs.SchemaPath = auto, splitList(el.attr("exclude")), el.attr("schema")
	if err := b.children(fs, el); err != nil {
		return nil, err
	}
	return fs, nil
}

func grid(el *element) (bind.Component, error) {
	g := component.NewGrid(el.attr("id"))
	g.Data = dataBinding(el)
	w, err := window(el)
	if err != nil {
		return nil, err
	}
	g.Window = w
	auto, err := autoBind(el)
	if err != nil {
		return nil, err
	}
	g.AutoBind, g.Exclude, g.SchemaPath = auto, splitList(el.attr("exclude")), el.attr("schema")
	for _, child := range el.elements() {
		if child.name != "column" {
			return nil, fmt.Errorf("line %d: unexpected <%s> in <grid>", child.line, child.name)
		}
		slot, err := component.ParseSlotKind(child.attr("kind"))
		if err != nil {
			return nil, attrError(child, "kind", err)
		}
		text := child.attr("text")
		if text == "" {
			text = child.text()
		}
		g.Columns = append(g.Columns, &component.Column{
			Header: child.attr("header"),
			Footer: child.attr("footer"),
			Slot:   slot,
			Path:   child.attr("value"),
			Text:   text,
		})
	}
	return g, nil
}

func dataBinding(el *element) bind.DataBinding {
	return bind.DataBinding{SourceID: el.attr("source"), Select: el.attr("select")}
}

func boolBinding(expr string) bind.BoolBinding {
	switch strings.TrimSpace(expr) {
	case "true":
		return bind.Const(true)
	case "false":
		return bind.Const(false)
	}
	return bind.BoolBinding{Expr: expr}
}

func window(el *element) (bind.Window, error) {
	var w bind.Window
	for _, a := range []struct {
		name string
		dst  *int
	}{{"start", &w.Start}, {"max", &w.Max}, {"step", &w.Step}} {
		if !el.has(a.name) {
			continue
		}
		n, err := strconv.Atoi(strings.TrimSpace(el.attr(a.name)))
		if err != nil {
			return w, attrError(el, a.name, err)
		}
		*a.dst = n
	}
	if w.Start < 0 {
		return w, attrError(el, "start", fmt.Errorf("%d is negative", w.Start))
	}
	return w, nil
}

func autoBind(el *element) (bool, error) {
	if !el.has("autobind") {
		return false, nil
	}
	v, err := strconv.ParseBool(el.attr("autobind"))
	if err != nil {
		return false, attrError(el, "autobind", err)
	}
	return v, nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
