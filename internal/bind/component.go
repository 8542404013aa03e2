package bind

import (
	"github.com/go-git/go-billy/v5"
)

// Component is a node of the component tree.
type Component interface {
	ID() string
	Kind() string
	Parent() Component
	SetParent(Component)
	Children() []Component
	Bind(c *Context) error
}

// Container accepts children.
type Container interface {
	Component
	AddChild(Component)
	ClearChildren()
}

// Styled components carry a style cache key.
type Styled interface {
	StyleKey() string
	SetStyleKey(string)
}

// RemoteSource is a component that anchors relative references, such as a
// document or an imported fragment.
type RemoteSource interface {
	Component
	FS() billy.Filesystem
}

// Base provides the structural half of Component. Embedders supply Bind.
type Base struct {
	id       string
	kind     string
	parent   Component
	children []Component
	styleKey string
}

// NewBase returns a Base of the given kind.
func NewBase(kind, id string) Base {
	return Base{kind: kind, id: id}
}

func (b *Base) ID() string { return b.id }
func (b *Base) SetID(id string) { b.id = id }
func (b *Base) Kind() string { return b.kind }
func (b *Base) Parent() Component { return b.parent }
func (b *Base) SetParent(p Component) { b.parent = p }
func (b *Base) Children() []Component { return b.children }
func (b *Base) AddChild(child Component) { b.children = append(b.children, child) }
func (b *Base) ClearChildren() { b.children = nil }
func (b *Base) StyleKey() string { return b.styleKey }
func (b *Base) SetStyleKey(key string) { b.styleKey = key }

// Attach adds child to parent and links it back.
func Attach(parent Container, child Component) {
	child.SetParent(parent)
	parent.AddChild(child)
}

// BindChildren binds each child of comp in order, stopping at the first error.
func BindChildren(c *Context, comp Component) error {
	for _, child := range comp.Children() {
		if err := c.Bind(child); err != nil {
			return err
		}
	}
	return nil
}

// Group is a plain container, used as the root of parsed fragments.
type Group struct {
	Base
}

// NewGroup returns an empty group.
func NewGroup(id string) *Group {
	return &Group{Base: NewBase("group", id)}
}

func (g *Group) Bind(c *Context) error { return BindChildren(c, g) }

// FindRemote returns the nearest remote source at or above owner, falling
// back to the context root.
func FindRemote(c *Context, owner Component) RemoteSource {
	for n := owner; n != nil; n = n.Parent() {
		if r, ok := n.(RemoteSource); ok {
			return r
		}
	}
	return c.Root()
}

// Walk visits comp and its descendants depth-first until fn returns false.
func Walk(comp Component, fn func(Component) bool) bool {
	if !fn(comp) {
		return false
	}
	for _, child := range comp.Children() {
		if !Walk(child, fn) {
			return false
		}
	}
	return true
}
