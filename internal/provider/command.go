// Package provider loads data for binding. A Source runs its provider
// commands into a relational dataset, joins them along declared relations
// and serves the result as a navigable node view through bind.DataSource.
package provider

import (
	"fmt"
	"slices"
	"sort"
	"sync"

	"github.com/go-git/go-billy/v5"

	"github.com/agentic-research/loom/api"
	"github.com/agentic-research/loom/internal/bind"
	"github.com/agentic-research/loom/internal/dataset"
)

// Command fills one table of a dataset.
type Command interface {
	ID() string
	// Table is the name of the table the command produces.
	Table() string
	Relations() []api.Relation
	// Fill runs the command into ds. parent is the command whose relation
	// triggered this one, or nil.
	Fill(c *bind.Context, ds *dataset.Dataset, parent Command) error
}

// Env holds the collaborators commands are built with.
type Env struct {
	// FS resolves relative file references.
	FS        billy.Filesystem
	Executor  Executor
	Callables *Callables
}

// Factory builds a command of one kind.
type Factory func(spec api.Command, env Env) (Command, error)

var (
	registryMu sync.RWMutex
	registry   = map[string]Factory{
		api.KindJSON:   newNodeCommand,
		api.KindXML:    newNodeCommand,
		api.KindSQL:    newSQLCommand,
		api.KindObject: newObjectCommand,
		api.KindCode:   newCodeCommand,
	}
)

// Register adds a command kind.
func Register(kind string, f Factory) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[kind] = f
}

// Kinds returns the registered command kinds, sorted.
func Kinds() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	kinds := make([]string, 0, len(registry))
	for k := range registry {
		kinds = append(kinds, k)
	}
	sort.Strings(kinds)
	return kinds
}

// UnknownCommandKindError is returned for a kind with no registered factory.
type UnknownCommandKindError struct {
	Kind      string
	Available []string
}

func (e *UnknownCommandKindError) Error() string {
	return fmt.Sprintf("unknown command kind %q\nAvailable kinds: %v", e.Kind, e.Available)
}

// NewCommand builds a command from its declaration.
func NewCommand(spec api.Command, env Env) (Command, error) {
	registryMu.RLock()
	f, ok := registry[spec.Kind]
	registryMu.RUnlock()
	if !ok {
		return nil, &UnknownCommandKindError{Kind: spec.Kind, Available: Kinds()}
	}
	return f(spec, env)
}

// command carries what every kind shares.
type command struct {
	spec api.Command
}

func (c *command) ID() string { return c.spec.ID }

func (c *command) Table() string { return c.spec.Table() }

func (c *command) Relations() []api.Relation { return c.spec.Relations }

// applyMapping marks columns per the declaration.
func (c *command) applyMapping(t *dataset.Table) {
	all := slices.Contains(c.spec.Attributes, "*")
	for _, col := range t.Columns {
		switch {
		case slices.Contains(c.spec.Hidden, col.Name):
			col.Mapping = dataset.MapHidden
		case col.Name == c.spec.SimpleContent:
			col.Mapping = dataset.MapSimpleContent
		case all || slices.Contains(c.spec.Attributes, col.Name):
			col.Mapping = dataset.MapAttribute
		}
		if lt, ok := c.spec.Types[col.Name]; ok {
			col.LogicalType = lt
		}
		if caption, ok := c.spec.Captions[col.Name]; ok {
			col.Caption = caption
		}
	}
}

// fillRows appends row maps to the command's table and applies the mapping.
func (c *command) fillRows(ds *dataset.Dataset, rows []map[string]any) *dataset.Table {
	t := ds.EnsureTable(c.Table())
	for _, r := range rows {
		t.AddRow(r)
	}
	c.applyMapping(t)
	return t
}
