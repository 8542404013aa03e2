package bind

// InheritIndex marks a ledger group that keeps the index in effect at replay.
const InheritIndex = -1

// Action is one deferred binding: target is bound with data on top of the stack.
type Action struct {
	Data   any
	Source DataSource
	Target Component
}

type ledgerGroup struct {
	index   int
	actions []Action
}

// Ledger collects deferred bindings while a structure is built, then
// replays them once the structure is complete.
type Ledger struct {
	groups []*ledgerGroup
}

// Group starts a logical group (a row) replayed with the given index.
func (l *Ledger) Group(index int) {
	l.groups = append(l.groups, &ledgerGroup{index: index})
}

// Record appends an action to the current group.
func (l *Ledger) Record(data any, src DataSource, target Component) {
	if len(l.groups) == 0 {
		l.Group(InheritIndex)
	}
	g := l.groups[len(l.groups)-1]
	g.actions = append(g.actions, Action{Data: data, Source: src, Target: target})
}

// Len returns the number of recorded actions.
func (l *Ledger) Len() int {
	n := 0
	for _, g := range l.groups {
		n += len(g.actions)
	}
	return n
}

// Replay binds every recorded action in order and empties the ledger. The
// index is set per group and restored afterwards.
func (l *Ledger) Replay(c *Context) error {
	groups := l.groups
	l.groups = nil

	saved := c.Index()
	defer c.SetIndex(saved)
	for _, g := range groups {
		if g.index == InheritIndex {
			c.SetIndex(saved)
		} else {
			c.SetIndex(g.index)
		}
		for _, a := range g.actions {
			if err := replayOne(c, a); err != nil {
				return err
			}
		}
	}
	return nil
}

func replayOne(c *Context, a Action) error {
	c.Push(a.Data, sourceOr(a.Source))
	defer c.Pop()
	return c.Bind(a.Target)
}
