package bind

import (
	"fmt"
	"iter"
	"reflect"

	"github.com/agentic-research/loom/internal/nodeset"
)

// Window restricts iteration to every Step-th item from Start, yielding at
// most Max items. Max <= 0 is unbounded and Step <= 0 means 1.
type Window struct {
	Start int
	Max   int
	Step  int
}

type cursor interface {
	next() (any, bool)
}

// oneShot drains a forward-only node iterator.
type oneShot struct {
	it *nodeset.Iterator
}

func (o *oneShot) next() (any, bool) {
	if !o.it.MoveNext() {
		return nil, false
	}
	return o.it.Current(), true
}

type sliceCursor struct {
	items []any
	pos   int
}

func (s *sliceCursor) next() (any, bool) {
	if s.pos >= len(s.items) {
		return nil, false
	}
	v := s.items[s.pos]
	s.pos++
	return v, true
}

// newCursor picks the iteration strategy for data. A node iterator that has
// already moved cannot be restarted.
func newCursor(data any) (cursor, error) {
	switch v := data.(type) {
	case nil:
		return &sliceCursor{}, nil
	case *nodeset.Iterator:
		if v.Started() {
			return nil, ErrOneShotIteratorReused
		}
		return &oneShot{it: v}, nil
	case []any:
		return &sliceCursor{items: v}, nil
	case iter.Seq[any]:
		var items []any
		for item := range v {
			items = append(items, item)
		}
		return &sliceCursor{items: items}, nil
	case map[string]any, string, []byte:
		return &sliceCursor{items: []any{v}}, nil
	}
	rv := reflect.ValueOf(data)
	if rv.Kind() == reflect.Slice || rv.Kind() == reflect.Array {
		items := make([]any, rv.Len())
		for i := range items {
			items[i] = rv.Index(i).Interface()
		}
		return &sliceCursor{items: items}, nil
	}
	return &sliceCursor{items: []any{data}}, nil
}

// windowed applies a Window over a cursor.
type windowed struct {
	src     cursor
	w       Window
	skipped bool
	yielded int
}

func (w *windowed) next() (any, bool) {
	if w.w.Max > 0 && w.yielded >= w.w.Max {
		return nil, false
	}
	if !w.skipped {
		w.skipped = true
		for i := 0; i < w.w.Start; i++ {
			if _, ok := w.src.next(); !ok {
				return nil, false
			}
		}
	} else {
		step := max(w.w.Step, 1)
		for i := 1; i < step; i++ {
			if _, ok := w.src.next(); !ok {
				return nil, false
			}
		}
	}
	v, ok := w.src.next()
	if ok {
		w.yielded++
	}
	return v, ok
}

// Items returns the windowed sequence over data.
func Items(data any, w Window) (iter.Seq[any], error) {
	if w.Start < 0 {
		return nil, fmt.Errorf("window start %d must not be negative", w.Start)
	}
	cur, err := newCursor(data)
	if err != nil {
		return nil, err
	}
	win := &windowed{src: cur, w: w}
	return func(yield func(any) bool) {
		for {
			v, ok := win.next()
			if !ok || !yield(v) {
				return
			}
		}
	}, nil
}

// First reduces data to its first item; ok is false when there is none.
func First(data any) (any, bool, error) {
	cur, err := newCursor(data)
	if err != nil {
		return nil, false, err
	}
	v, ok := cur.next()
	return v, ok, nil
}
