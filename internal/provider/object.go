package provider

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/ohler55/ojg"
	"github.com/ohler55/ojg/oj"

	"github.com/agentic-research/loom/api"
	"github.com/agentic-research/loom/internal/bind"
	"github.com/agentic-research/loom/internal/dataset"
	"github.com/agentic-research/loom/internal/nodeset"
)

// ParamSpec is one formal parameter of a callable.
type ParamSpec struct {
	Name string
	Type string
}

// Callable is a registered method an object command can invoke.
type Callable struct {
	Type   string
	Method string
	Params []ParamSpec
	Invoke func(ctx context.Context, args []any) (any, error)
}

func (c Callable) signature() string {
	names := make([]string, len(c.Params))
	for i, p := range c.Params {
		names[i] = p.Name
	}
	return fmt.Sprintf("%s.%s(%s)", c.Type, c.Method, strings.Join(names, ", "))
}

// Callables resolves object commands to registered methods.
type Callables struct {
	mu     sync.RWMutex
	byName map[string][]Callable
}

// NewCallables returns an empty registry.
func NewCallables() *Callables {
	return &Callables{byName: make(map[string][]Callable)}
}

func callableKey(typ, method string) string { return typ + "." + method }

// Register adds c. Overloads of one method differ by parameter names.
func (r *Callables) Register(c Callable) {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := callableKey(c.Type, c.Method)
	r.byName[key] = append(r.byName[key], c)
}

// Resolve finds the one overload of typ.method whose parameter names are
// exactly names, in any order.
func (r *Callables) Resolve(typ, method string, names []string) (Callable, error) {
	want := slices.Sorted(slices.Values(names))

	r.mu.RLock()
	defer r.mu.RUnlock()
	var found []Callable
	for _, c := range r.byName[callableKey(typ, method)] {
		have := make([]string, len(c.Params))
		for i, p := range c.Params {
			have[i] = p.Name
		}
		slices.Sort(have)
		if slices.Equal(have, want) {
			found = append(found, c)
		}
	}
	switch len(found) {
	case 1:
		return found[0], nil
	case 0:
		return Callable{}, fmt.Errorf("%w: no %s.%s taking (%s)", bind.ErrAmbiguousCallable, typ, method, strings.Join(want, ", "))
	}
	sigs := make([]string, len(found))
	for i, c := range found {
		sigs[i] = c.signature()
	}
	return Callable{}, fmt.Errorf("%w: %s", bind.ErrAmbiguousCallable, strings.Join(sigs, "; "))
}

// ObjectCommand loads rows from the value a registered callable returns.
// The callable is resolved once, when the command is built.
type ObjectCommand struct {
	command
	fn Callable
}

func newObjectCommand(spec api.Command, env Env) (Command, error) {
	if spec.TypeName == "" || spec.Method == "" {
		return nil, fmt.Errorf("command %s: object needs type and method", spec.ID)
	}
	if env.Callables == nil {
		return nil, fmt.Errorf("command %s: no callables registered", spec.ID)
	}
	names := make([]string, len(spec.Parameters))
	for i, p := range spec.Parameters {
		names[i] = p.Name
	}
	fn, err := env.Callables.Resolve(spec.TypeName, spec.Method, names)
	if err != nil {
		return nil, fmt.Errorf("command %s: %w", spec.ID, err)
	}
	return &ObjectCommand{command: command{spec: spec}, fn: fn}, nil
}

// Fill invokes the callable with arguments in formal order and maps the
// result to rows.
func (o *ObjectCommand) Fill(c *bind.Context, ds *dataset.Dataset, parent Command) error {
	args, err := o.args(c, parent)
	if err != nil {
		return err
	}
	byName := make(map[string]any, len(args))
	for _, a := range args {
		byName[a.Name] = a.Value
	}

	fn := o.fn
	actual := make([]any, len(fn.Params))
	for i, p := range fn.Params {
		if actual[i], err = Coerce(byName[p.Name], p.Type); err != nil {
			return fmt.Errorf("argument %s: %w", p.Name, err)
		}
	}

	result, err := fn.Invoke(c.Std(), actual)
	if err != nil {
		return err
	}
	nodes, err := normalize(result)
	if err != nil {
		return fmt.Errorf("%s result: %w", fn.signature(), err)
	}

	var rows []map[string]any
	switch v := nodes.(type) {
	case nil:
	case []any:
		for _, item := range v {
			rows = append(rows, nodeRow(item, o.spec.SimpleContent))
		}
	default:
		rows = append(rows, nodeRow(v, o.spec.SimpleContent))
	}
	o.fillRows(ds, rows)
	return nil
}

// normalize converts a callable's result into generic nodes. Values that
// already expose nodes are used directly; anything else goes through its
// JSON form, honoring json tags.
func normalize(v any) (any, error) {
	switch x := v.(type) {
	case nil:
		return nil, nil
	case nodeset.Navigable:
		return x.Nodes(), nil
	case map[string]any, []any:
		return x, nil
	case []map[string]any:
		out := make([]any, len(x))
		for i, m := range x {
			out[i] = m
		}
		return out, nil
	}
	opts := ojg.GoOptions
	opts.TimeFormat = time.RFC3339Nano
	data, err := oj.Marshal(v, &opts)
	if err != nil {
		return nil, err
	}
	return oj.Parse(data)
}
