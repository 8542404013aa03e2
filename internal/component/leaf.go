// Package component holds the concrete components a document is built
// from: containers, value leaves, bound fields, field sets, grids and
// imports.
package component

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/agentic-research/loom/internal/bind"
	"github.com/agentic-research/loom/internal/nodeset"
)

// Component kinds.
const (
	KindDocument = "document"
	KindPanel    = "panel"
	KindLabel    = "label"
	KindNumber   = "number"
	KindDate     = "date"
	KindImage    = "image"
	KindLink     = "link"
	KindCheck    = "check"
	KindField    = "field"
	KindFieldSet = "fieldset"
	KindGrid     = "grid"
	KindRow      = "row"
	KindImport   = "import"
)

// Propertied components expose their bound values.
type Propertied interface {
	Properties() map[string]any
}

// Leaf is a value component whose data path can be set.
type Leaf interface {
	bind.Component
	SetPath(path string)
}

func evalString(c *bind.Context, path string) (string, bool, error) {
	v, ok, err := bind.Evaluate(c, path)
	if err != nil || !ok {
		return "", false, err
	}
	return nodeset.String(v), true, nil
}

// Label shows text. Value, when set, is a path whose value replaces Text;
// otherwise Text is interpolated.
type Label struct {
	bind.Base
	Text  string
	Value string

	content string
}

func NewLabel(id string) *Label {
	return &Label{Base: bind.NewBase(KindLabel, id)}
}

func (l *Label) SetPath(path string) { l.Value = path }

// Content returns the bound text.
func (l *Label) Content() string { return l.content }

func (l *Label) Bind(c *bind.Context) error {
	if l.Value != "" {
		s, _, err := evalString(c, l.Value)
		if err != nil {
			return fmt.Errorf("label %q: %w", l.ID(), err)
		}
		l.content = s
		return nil
	}
	s, err := bind.Interpolate(c, l.Text)
	if err != nil {
		return fmt.Errorf("label %q: %w", l.ID(), err)
	}
	l.content = s
	return nil
}

func (l *Label) Properties() map[string]any {
	return map[string]any{"text": l.content}
}

// Number formats a numeric value with a printf verb.
type Number struct {
	bind.Base
	Value  string
	Format string

	number  *float64
	content string
}

func NewNumber(id string) *Number {
	return &Number{Base: bind.NewBase(KindNumber, id)}
}

func (n *Number) SetPath(path string) { n.Value = path }

// Content returns the formatted value.
func (n *Number) Content() string { return n.content }

func (n *Number) Bind(c *bind.Context) error {
	n.number, n.content = nil, ""
	v, ok, err := bind.Evaluate(c, n.Value)
	if err != nil {
		return fmt.Errorf("number %q: %w", n.ID(), err)
	}
	if !ok {
		return nil
	}
	f, isNum := nodeset.Float(v)
	if !isNum {
		n.content = nodeset.String(v)
		return nil
	}
	n.number = &f
	if n.Format == "" {
		n.content = nodeset.String(f)
	} else {
		n.content = fmt.Sprintf(n.Format, f)
	}
	return nil
}

func (n *Number) Properties() map[string]any {
	props := map[string]any{"text": n.content}
	if n.number != nil {
		props["value"] = *n.number
	}
	return props
}

// Date formats a date value. The value may be a time or any string
// nodeset.ParseTime accepts.
type Date struct {
	bind.Base
	Value  string
	Layout string

	when    time.Time
	content string
}

func NewDate(id string) *Date {
	return &Date{Base: bind.NewBase(KindDate, id)}
}

func (d *Date) SetPath(path string) { d.Value = path }

// Time returns the bound date; zero when there was none.
func (d *Date) Time() time.Time { return d.when }

func (d *Date) Content() string { return d.content }

func (d *Date) Bind(c *bind.Context) error {
	d.when, d.content = time.Time{}, ""
	v, ok, err := bind.Evaluate(c, d.Value)
	if err != nil {
		return fmt.Errorf("date %q: %w", d.ID(), err)
	}
	if !ok {
		return nil
	}
	t, isTime := v.(time.Time)
	if !isTime {
		s := strings.TrimSpace(nodeset.String(v))
		if s == "" {
			return nil
		}
		if t, err = nodeset.ParseTime(s); err != nil {
			return fmt.Errorf("date %q: %w", d.ID(), err)
		}
	}
	layout := d.Layout
	if layout == "" {
		layout = time.DateOnly
	}
	d.when = t
	d.content = t.Format(layout)
	return nil
}

func (d *Date) Properties() map[string]any {
	return map[string]any{"text": d.content}
}

// Image references a picture by URL or path.
type Image struct {
	bind.Base
	Src string

	url string
}

func NewImage(id string) *Image {
	return &Image{Base: bind.NewBase(KindImage, id)}
}

func (i *Image) SetPath(path string) { i.Src = path }

// URL returns the bound source.
func (i *Image) URL() string { return i.url }

func (i *Image) Bind(c *bind.Context) error {
	s, _, err := evalString(c, i.Src)
	if err != nil {
		return fmt.Errorf("image %q: %w", i.ID(), err)
	}
	i.url = s
	return nil
}

func (i *Image) Properties() map[string]any {
	return map[string]any{"src": i.url}
}

// Link is a hyperlink. Href is a path; Text is interpolated and defaults
// to the bound href.
type Link struct {
	bind.Base
	Href string
	Text string

	href, text string
}

func NewLink(id string) *Link {
	return &Link{Base: bind.NewBase(KindLink, id)}
}

func (l *Link) SetPath(path string) { l.Href = path }

func (l *Link) Bind(c *bind.Context) error {
	href, _, err := evalString(c, l.Href)
	if err != nil {
		return fmt.Errorf("link %q: %w", l.ID(), err)
	}
	text := href
	if l.Text != "" {
		if text, err = bind.Interpolate(c, l.Text); err != nil {
			return fmt.Errorf("link %q: %w", l.ID(), err)
		}
	}
	l.href, l.text = href, text
	return nil
}

func (l *Link) Properties() map[string]any {
	return map[string]any{"href": l.href, "text": l.text}
}

// Check shows a boolean.
type Check struct {
	bind.Base
	Value string

	checked bool
}

func NewCheck(id string) *Check {
	return &Check{Base: bind.NewBase(KindCheck, id)}
}

func (k *Check) SetPath(path string) { k.Value = path }

// Checked returns the bound state.
func (k *Check) Checked() bool { return k.checked }

func (k *Check) Bind(c *bind.Context) error {
	v, ok, err := bind.Evaluate(c, k.Value)
	if err != nil {
		return fmt.Errorf("check %q: %w", k.ID(), err)
	}
	k.checked = ok && truthy(v)
	return nil
}

func truthy(v any) bool {
	switch x := v.(type) {
	case nil:
		return false
	case bool:
		return x
	case string:
		if b, err := strconv.ParseBool(strings.TrimSpace(x)); err == nil {
			return b
		}
		return x != ""
	}
	if f, ok := nodeset.Float(v); ok {
		return f != 0
	}
	return true
}

func (k *Check) Properties() map[string]any {
	return map[string]any{"checked": k.checked}
}
