package bind

import (
	"fmt"
	"slices"

	"github.com/agentic-research/loom/internal/trace"
)

// Behavior selects what a control node does with its data.
type Behavior struct {
	// Enumerate iterates the resolved data instead of using it whole.
	Enumerate bool
	// Expand instantiates the template.
	Expand bool
	// SetContextData pushes each item as a frame around its subtree.
	SetContextData bool
	// IncrementIndex exposes the item position through Context.Index.
	IncrementIndex bool
}

var (
	repeatBehavior = Behavior{Enumerate: true, Expand: true, SetContextData: true, IncrementIndex: true}
	gateBehavior   = Behavior{Expand: true}
)

// expand instantiates tmpl under owner once per item of data, or once for
// data as a whole when the behavior does not enumerate. Generated subtrees
// are attached to owner and bound in turn.
func expand(c *Context, owner Container, tmpl *Template, data any, src DataSource, w Window, b Behavior) error {
	if !b.Expand || tmpl.Empty() {
		return nil
	}
	items := []any{data}
	if b.Enumerate {
		seq, err := Items(data, w)
		if err != nil {
			return err
		}
		items = items[:0]
		for item := range seq {
			items = append(items, item)
		}
	}

	saved := c.Index()
	defer c.SetIndex(saved)
	for i, item := range items {
		if b.IncrementIndex {
			c.SetIndex(i)
		}
		if err := expandOne(c, owner, tmpl, i, item, src, b); err != nil {
			return err
		}
	}
	return nil
}

func expandOne(c *Context, owner Container, tmpl *Template, i int, item any, src DataSource, b Behavior) error {
	if b.SetContextData {
		c.Push(item, src)
		defer c.Pop()
	}
	sub, err := tmpl.Instantiate(c, i, owner)
	if err != nil {
		return err
	}
	Attach(owner, sub)
	return c.Bind(sub)
}

// Repeat instantiates its template once per item of its data.
type Repeat struct {
	Base
	Data     DataBinding
	Window   Window
	Template *Template
}

// NewRepeat returns a Repeat with an unbounded window.
func NewRepeat(id string) *Repeat {
	return &Repeat{Base: NewBase("repeat", id), Template: &Template{}}
}

func (r *Repeat) Bind(c *Context) error {
	r.ClearChildren()

	data, src, err := r.Data.Resolve(c)
	if err != nil {
		return fmt.Errorf("repeat %q: %w", r.ID(), err)
	}
	tr := c.Trace()
	tr.Begin(trace.Verbose, Category, "repeat "+r.ID())
	defer tr.End(trace.Verbose, Category, "repeat "+r.ID())

	if err := expand(c, r, r.Template, data, src, r.Window, repeatBehavior); err != nil {
		return fmt.Errorf("repeat %q: %w", r.ID(), err)
	}
	return nil
}

// If instantiates its template only when both Test and Visible hold.
type If struct {
	Base
	Test     BoolBinding
	Visible  BoolBinding
	Template *Template
}

// NewIf returns a conditional that is visible and true until configured.
func NewIf(id string) *If {
	return &If{
		Base:     NewBase("if", id),
		Test:     Const(true),
		Visible:  Const(true),
		Template: &Template{},
	}
}

func (n *If) Bind(c *Context) error {
	n.ClearChildren()
	visible, err := n.Visible.Eval(c)
	if err != nil || !visible {
		return err
	}
	ok, err := n.Test.Eval(c)
	if err != nil || !ok {
		return err
	}
	return expand(c, n, n.Template, nil, nil, Window{}, gateBehavior)
}

// Case is one Switch branch.
type Case struct {
	Test     BoolBinding
	Template *Template
}

// Switch instantiates the template of the first case whose test holds, or
// Else when none does.
type Switch struct {
	Base
	Cases []*Case
	Else  *Template
}

// NewSwitch returns an empty switch.
func NewSwitch(id string) *Switch {
	return &Switch{Base: NewBase("switch", id)}
}

func (s *Switch) Bind(c *Context) error {
	s.ClearChildren()
	tmpl, err := s.choose(c)
	if err != nil || tmpl == nil {
		return err
	}
	return expand(c, s, tmpl, nil, nil, Window{}, gateBehavior)
}

func (s *Switch) choose(c *Context) (*Template, error) {
	for i, cs := range s.Cases {
		ok, err := cs.Test.Eval(c)
		if err != nil {
			return nil, fmt.Errorf("switch %q case %d: %w", s.ID(), i, err)
		}
		if ok {
			return cs.Template, nil
		}
	}
	return s.Else, nil
}

// With binds its children with the first item of its data on the stack.
// Without data it has no children.
type With struct {
	Base
	Data DataBinding

	declared []Component
	captured bool
}

// NewWith returns a single-scope node.
func NewWith(id string) *With {
	return &With{Base: NewBase("with", id)}
}

func (w *With) Bind(c *Context) error {
	if !w.captured {
		w.declared = slices.Clone(w.Children())
		w.captured = true
	}
	w.ClearChildren()
	return Scope(c, w.Data, func(any) error {
		for _, d := range w.declared {
			w.AddChild(d)
		}
		return BindChildren(c, w)
	})
}

// Scope resolves b to a single item, and when there is one calls fn with it
// pushed as the current frame.
func Scope(c *Context, b DataBinding, fn func(item any) error) error {
	data, src, err := b.Resolve(c)
	if err != nil {
		return err
	}
	item, ok, err := First(data)
	if err != nil || !ok {
		return err
	}
	c.Push(item, src)
	defer c.Pop()
	return fn(item)
}
