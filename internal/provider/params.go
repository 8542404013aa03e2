package provider

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/agentic-research/loom/api"
	"github.com/agentic-research/loom/internal/bind"
	"github.com/agentic-research/loom/internal/dataset"
	"github.com/agentic-research/loom/internal/nodeset"
)

// Arg is a resolved parameter value.
type Arg struct {
	Name  string
	Value any
}

type paramOwner interface {
	parameter(name string) (api.Parameter, bool)
}

func (c *command) parameter(name string) (api.Parameter, bool) {
	for _, p := range c.spec.Parameters {
		if p.Name == name {
			return p, true
		}
	}
	return api.Parameter{}, false
}

// args resolves the declared parameters in order. A parameter with neither
// a value nor a select inherits the same-named parameter of parent.
func (c *command) args(bc *bind.Context, parent Command) ([]Arg, error) {
	out := make([]Arg, 0, len(c.spec.Parameters))
	for _, p := range c.spec.Parameters {
		if p.Value == "" && p.Select == "" {
			if po, ok := parent.(paramOwner); ok {
				if inherited, found := po.parameter(p.Name); found {
					inherited.Type = firstNonEmpty(p.Type, inherited.Type)
					p = inherited
				}
			}
		}
		v, err := resolveParam(bc, p)
		if err != nil {
			return nil, fmt.Errorf("parameter %s: %w", p.Name, err)
		}
		out = append(out, Arg{Name: p.Name, Value: v})
	}
	return out, nil
}

func resolveParam(bc *bind.Context, p api.Parameter) (any, error) {
	var raw any = p.Value
	if p.Select != "" {
		v, ok, err := bind.Evaluate(bc, p.Select)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, nil
		}
		raw = v
	}
	return Coerce(raw, p.Type)
}

// Coerce converts v to the declared type name. An empty type keeps strings
// as strings and other values as they are.
func Coerce(v any, typ string) (any, error) {
	if v == nil {
		return nil, nil
	}
	if typ == "" {
		return v, nil
	}
	switch dataset.ParseKind(typ) {
	case dataset.KindString:
		return nodeset.String(v), nil
	case dataset.KindBool:
		if b, ok := v.(bool); ok {
			return b, nil
		}
		return strconv.ParseBool(strings.TrimSpace(nodeset.String(v)))
	case dataset.KindInt:
		if f, ok := nodeset.Float(v); ok && f == float64(int64(f)) {
			return int64(f), nil
		}
		return strconv.ParseInt(strings.TrimSpace(nodeset.String(v)), 10, 64)
	case dataset.KindFloat, dataset.KindDecimal:
		if f, ok := nodeset.Float(v); ok {
			return f, nil
		}
		return nil, fmt.Errorf("cannot convert %v to %s", v, typ)
	case dataset.KindTime:
		if t, ok := v.(time.Time); ok {
			return t, nil
		}
		return nodeset.ParseTime(nodeset.String(v))
	}
	return v, nil
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
