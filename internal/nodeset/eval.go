package nodeset

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Select returns every node path selects from data.
func Select(data any, path string, ns Resolver) ([]any, error) {
	p, err := Compile(path, ns)
	if err != nil {
		return nil, err
	}
	return p.Get(data), nil
}

// Evaluate reduces the selection to a scalar: the text of the first node,
// or absence (ok == false) when nothing is selected. Quoted strings and
// numbers evaluate to themselves.
func Evaluate(data any, expr string, ns Resolver) (any, bool, error) {
	if lit, ok := literal(expr); ok {
		return lit, lit != nil, nil
	}
	nodes, err := Select(data, expr, ns)
	if err != nil {
		return nil, false, err
	}
	if len(nodes) == 0 {
		return nil, false, nil
	}
	return Text(nodes[0]), true, nil
}

// Test evaluates expr as a boolean. "lhs op rhs" compares two operands with
// ==, !=, <, <=, > or >=. Otherwise a single boolean result is used as is,
// and any other result is true when the selection is non-empty and the
// first value is non-null.
func Test(data any, expr string, ns Resolver) (bool, error) {
	if lhs, op, rhs, ok := splitComparison(expr); ok {
		l, _, err := Evaluate(data, lhs, ns)
		if err != nil {
			return false, err
		}
		r, _, err := Evaluate(data, rhs, ns)
		if err != nil {
			return false, err
		}
		return compare(l, op, r), nil
	}

	switch strings.TrimSpace(expr) {
	case "true", "true()":
		return true, nil
	case "false", "false()":
		return false, nil
	}

	nodes, err := Select(data, expr, ns)
	if err != nil {
		return false, err
	}
	if len(nodes) == 0 {
		return false, nil
	}
	if len(nodes) == 1 {
		switch v := Text(nodes[0]).(type) {
		case bool:
			return v, nil
		case nil:
			return false, nil
		}
	}
	return true, nil
}

// Text is the string-value of a node: an element's TextKey member, or the
// scalar itself.
func Text(node any) any {
	if m, ok := node.(map[string]any); ok {
		if t, ok := m[TextKey]; ok {
			return t
		}
		return ""
	}
	return node
}

// String formats a scalar the way bound text shows it.
func String(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case time.Time:
		return x.Format(time.RFC3339)
	case []byte:
		return string(x)
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(x), 'f', -1, 32)
	default:
		return fmt.Sprint(x)
	}
}

var timeLayouts = []string{time.RFC3339Nano, time.RFC3339, "2006-01-02T15:04:05", "2006-01-02 15:04:05", time.DateOnly}

// ParseTime accepts RFC 3339 and common date layouts.
func ParseTime(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("cannot parse %q as time", s)
}

// Float converts numeric scalars and numeric strings.
func Float(v any) (float64, bool) {
	switch x := v.(type) {
	case int:
		return float64(x), true
	case int8:
		return float64(x), true
	case int16:
		return float64(x), true
	case int32:
		return float64(x), true
	case int64:
		return float64(x), true
	case uint:
		return float64(x), true
	case uint8:
		return float64(x), true
	case uint16:
		return float64(x), true
	case uint32:
		return float64(x), true
	case uint64:
		return float64(x), true
	case float32:
		return float64(x), true
	case float64:
		return x, true
	case json.Number:
		f, err := x.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(x), 64)
		return f, err == nil
	}
	return 0, false
}

var operators = []string{"==", "!=", "<=", ">=", "<", ">"}

// splitComparison finds the first operator outside quotes and brackets.
func splitComparison(expr string) (lhs, op, rhs string, ok bool) {
	depth := 0
	var quote byte
	for i := 0; i < len(expr); i++ {
		c := expr[i]
		switch {
		case quote != 0:
			if c == quote {
				quote = 0
			}
			continue
		case c == '\'' || c == '"':
			quote = c
			continue
		case c == '[' || c == '(':
			depth++
			continue
		case c == ']' || c == ')':
			depth--
			continue
		}
		if depth > 0 {
			continue
		}
		for _, candidate := range operators {
			if strings.HasPrefix(expr[i:], candidate) {
				l := strings.TrimSpace(expr[:i])
				r := strings.TrimSpace(expr[i+len(candidate):])
				if l == "" || r == "" {
					return "", "", "", false
				}
				return l, candidate, r, true
			}
		}
	}
	return "", "", "", false
}

func literal(expr string) (any, bool) {
	s := strings.TrimSpace(expr)
	if len(s) >= 2 && (s[0] == '\'' || s[0] == '"') && s[len(s)-1] == s[0] {
		return s[1 : len(s)-1], true
	}
	switch s {
	case "null":
		return nil, true
	case "true":
		return true, true
	case "false":
		return false, true
	}
	if s != "" && (s[0] == '-' || (s[0] >= '0' && s[0] <= '9')) {
		if i, err := strconv.ParseInt(s, 10, 64); err == nil {
			return i, true
		}
		if f, err := strconv.ParseFloat(s, 64); err == nil {
			return f, true
		}
	}
	return nil, false
}

func compare(l any, op string, r any) bool {
	if l == nil || r == nil {
		switch op {
		case "==":
			return l == nil && r == nil
		case "!=":
			return (l == nil) != (r == nil)
		}
		return false
	}
	if lb, ok := l.(bool); ok {
		rb, ok := r.(bool)
		if !ok {
			rb = strings.EqualFold(String(r), "true")
		}
		switch op {
		case "==":
			return lb == rb
		case "!=":
			return lb != rb
		}
		return false
	}
	if lf, ok := Float(l); ok {
		if rf, ok := Float(r); ok {
			return compareOrdered(lf, op, rf)
		}
	}
	return compareOrdered(String(l), op, String(r))
}

func compareOrdered[T float64 | string](l T, op string, r T) bool {
	switch op {
	case "==":
		return l == r
	case "!=":
		return l != r
	case "<":
		return l < r
	case "<=":
		return l <= r
	case ">":
		return l > r
	case ">=":
		return l >= r
	}
	return false
}
