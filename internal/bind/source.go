package bind

import (
	"fmt"

	"github.com/agentic-research/loom/internal/nodeset"
	"github.com/agentic-research/loom/internal/schema"
)

// DataSource is the capability contract shared by every provider.
type DataSource interface {
	ID() string
	// Select resolves top-level data. An empty path selects all immediate children.
	Select(c *Context, path string) (any, error)
	// SelectFrom resolves path relative to data.
	SelectFrom(c *Context, path string, data any) (any, error)
	// Evaluate reduces expr against data to a scalar; ok is false when absent.
	Evaluate(c *Context, expr string, data any) (value any, ok bool, err error)
	// EvaluateTest reduces expr against data to a boolean.
	EvaluateTest(c *Context, expr string, data any) (bool, error)
	SupportsSchema() bool
	Schema(c *Context, path string) (*schema.Schema, error)
}

// Values is a DataSource over in-memory node trees. It serves literal data
// and frames pushed without a provider.
type Values struct {
	Name string
	Root any
}

func (v *Values) ID() string {
	if v == nil || v.Name == "" {
		return "values"
	}
	return v.Name
}

func (v *Values) Select(c *Context, path string) (any, error) {
	if v == nil || v.Root == nil {
		return nil, ErrNoCurrentData
	}
	return v.SelectFrom(c, path, v.Root)
}

func (v *Values) SelectFrom(c *Context, path string, data any) (any, error) {
	nodes, err := nodeset.Select(data, path, c.Namespaces())
	if err != nil {
		return nil, err
	}
	return nodes, nil
}

func (v *Values) Evaluate(c *Context, expr string, data any) (any, bool, error) {
	return nodeset.Evaluate(data, expr, c.Namespaces())
}

func (v *Values) EvaluateTest(c *Context, expr string, data any) (bool, error) {
	return nodeset.Test(data, expr, c.Namespaces())
}

func (v *Values) SupportsSchema() bool { return false }

func (v *Values) Schema(*Context, string) (*schema.Schema, error) {
	return nil, fmt.Errorf("%w: %s", ErrSchemaUnsupported, v.ID())
}

var defaultValues = &Values{}

// sourceOr returns src, or the in-memory source when src is nil.
func sourceOr(src DataSource) DataSource {
	if src == nil {
		return defaultValues
	}
	return src
}

// DataBinding names where a control node gets its data.
type DataBinding struct {
	// Value is an explicitly bound literal, used when HasValue is set.
	Value    any
	HasValue bool
	// SourceID selects a registered data source.
	SourceID string
	// Select is a path, against SourceID when set and the current frame otherwise.
	Select string
}

// Literal binds v directly.
func Literal(v any) DataBinding {
	return DataBinding{Value: v, HasValue: true}
}

// Resolve applies the priority order: literal value, data source by id,
// select against the current frame, then pass-through of the current frame.
// A nil data with nil error means there is nothing to bind.
func (b DataBinding) Resolve(c *Context) (any, DataSource, error) {
	switch {
	case b.HasValue:
		return b.Value, sourceOr(c.Source()), nil
	case b.SourceID != "":
		src, err := c.DataSource(b.SourceID)
		if err != nil {
			return nil, nil, err
		}
		data, err := src.Select(c, b.Select)
		if err != nil {
			return nil, nil, err
		}
		return data, src, nil
	case b.Select != "":
		if !c.HasData() {
			return nil, nil, fmt.Errorf("%w: select %q", ErrNoCurrentData, b.Select)
		}
		src := sourceOr(c.Source())
		data, err := src.SelectFrom(c, b.Select, c.Current())
		if err != nil {
			return nil, nil, err
		}
		return data, src, nil
	case c.HasData():
		return c.Current(), c.Source(), nil
	}
	return nil, nil, nil
}

// IsZero reports whether nothing was configured.
func (b DataBinding) IsZero() bool {
	return !b.HasValue && b.SourceID == "" && b.Select == ""
}

// BoolBinding is a boolean that is either fixed or evaluated against the
// current frame.
type BoolBinding struct {
	Value bool
	Expr  string
}

// Const returns a fixed binding.
func Const(v bool) BoolBinding { return BoolBinding{Value: v} }

// Eval resolves the binding. Expressions need a current frame.
func (b BoolBinding) Eval(c *Context) (bool, error) {
	if b.Expr == "" {
		return b.Value, nil
	}
	if !c.HasData() {
		return false, fmt.Errorf("%w: test %q", ErrNoCurrentData, b.Expr)
	}
	return sourceOr(c.Source()).EvaluateTest(c, b.Expr, c.Current())
}

// Evaluate reduces expr against the current frame.
func Evaluate(c *Context, expr string) (any, bool, error) {
	if !c.HasData() {
		return nil, false, fmt.Errorf("%w: evaluate %q", ErrNoCurrentData, expr)
	}
	return sourceOr(c.Source()).Evaluate(c, expr, c.Current())
}
