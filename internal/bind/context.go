// Package bind walks a component tree and resolves each node's data.
//
// Binding state lives on a Context: a stack of (data, source) frames, a
// current-index counter for row-dependent children, the namespace scope and
// the registry of data sources. Control nodes push a frame, instantiate
// their template against it and pop the frame again.
package bind

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/agentic-research/loom/internal/trace"
)

// Trace category for binding entries.
const Category = "bind"

// Conformance governs provider failures: Strict propagates them, Lax logs
// them and treats the operation as yielding no data.
type Conformance int

const (
	Strict Conformance = iota
	Lax
)

func (c Conformance) String() string {
	if c == Lax {
		return "lax"
	}
	return "strict"
}

// Frame is one context stack entry.
type Frame struct {
	Data   any
	Source DataSource
}

// Options configure a Context.
type Options struct {
	Conformance Conformance
	Trace       *trace.Log
	// MaxDepth bounds component nesting; 0 disables the guard.
	MaxDepth   int
	Namespaces map[string]string
	// StyleKeys asks templates to stamp generated components.
	StyleKeys bool
	// Root is the fallback remote source for template parsing.
	Root RemoteSource
}

var passes atomic.Uint64

// Context threads binding state through one bind pass.
type Context struct {
	std     context.Context
	opts    Options
	frames  []Frame
	index   int
	pass    uint64
	depth   int
	ns      *Namespaces
	sources map[string]DataSource
}

// NewContext starts a bind pass.
func NewContext(ctx context.Context, opts Options) *Context {
	if ctx == nil {
		ctx = context.Background()
	}
	if opts.Trace == nil {
		opts.Trace = trace.Discard()
	}
	return &Context{
		std:     ctx,
		opts:    opts,
		pass:    passes.Add(1),
		ns:      NewNamespaces(opts.Namespaces),
		sources: make(map[string]DataSource),
	}
}

// Std returns the context.Context for blocking provider calls.
func (c *Context) Std() context.Context { return c.std }

// Push adds a frame. Every Push must be paired with a Pop by the same caller.
func (c *Context) Push(data any, src DataSource) {
	c.frames = append(c.frames, Frame{Data: data, Source: src})
}

// Pop removes the top frame. Popping an empty stack is a pairing bug and panics.
func (c *Context) Pop() Frame {
	n := len(c.frames)
	if n == 0 {
		panic("bind: pop from empty context stack")
	}
	f := c.frames[n-1]
	c.frames[n-1] = Frame{}
	c.frames = c.frames[:n-1]
	return f
}

// HasData reports whether any frame is on the stack.
func (c *Context) HasData() bool { return len(c.frames) > 0 }

// Current returns the data of the top frame.
func (c *Context) Current() any {
	if len(c.frames) == 0 {
		return nil
	}
	return c.frames[len(c.frames)-1].Data
}

// Source returns the data source of the top frame.
func (c *Context) Source() DataSource {
	if len(c.frames) == 0 {
		return nil
	}
	return c.frames[len(c.frames)-1].Source
}

// StackDepth returns the number of frames.
func (c *Context) StackDepth() int { return len(c.frames) }

// Index is the zero-based position of the row being bound.
func (c *Context) Index() int { return c.index }

// SetIndex replaces the current index.
func (c *Context) SetIndex(i int) { c.index = i }

// Pass identifies the bind pass. Values are unique per process.
func (c *Context) Pass() uint64 { return c.pass }

// BeginPass starts a new pass on the same context.
func (c *Context) BeginPass() uint64 {
	c.pass = passes.Add(1)
	return c.pass
}

func (c *Context) Conformance() Conformance { return c.opts.Conformance }

// Trace returns the trace log; never nil.
func (c *Context) Trace() *trace.Log { return c.opts.Trace }

// Namespaces returns the active prefix scope.
func (c *Context) Namespaces() *Namespaces { return c.ns }

// StyleKeys reports whether templates should stamp style keys.
func (c *Context) StyleKeys() bool { return c.opts.StyleKeys }

// Root returns the document-level remote source.
func (c *Context) Root() RemoteSource { return c.opts.Root }

// SetRoot replaces the document-level remote source.
func (c *Context) SetRoot(r RemoteSource) { c.opts.Root = r }

// RegisterSource makes src resolvable by id.
func (c *Context) RegisterSource(src DataSource) {
	c.sources[src.ID()] = src
}

// DataSource looks up a registered source.
func (c *Context) DataSource(id string) (DataSource, error) {
	src, ok := c.sources[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownSource, id)
	}
	return src, nil
}

// Bind binds one component under the depth guard.
func (c *Context) Bind(comp Component) error {
	if err := c.std.Err(); err != nil {
		return err
	}
	c.depth++
	defer func() { c.depth-- }()
	if c.opts.MaxDepth > 0 && c.depth > c.opts.MaxDepth {
		return fmt.Errorf("%w: %d levels at %s %q", ErrDepthExceeded, c.opts.MaxDepth, comp.Kind(), comp.ID())
	}
	return comp.Bind(c)
}
