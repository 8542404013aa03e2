package provider

import (
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/agentic-research/loom/api"
	"github.com/agentic-research/loom/internal/bind"
	"github.com/agentic-research/loom/internal/cache"
	"github.com/agentic-research/loom/internal/dataset"
	"github.com/agentic-research/loom/internal/nodeset"
	"github.com/agentic-research/loom/internal/schema"
	"github.com/agentic-research/loom/internal/trace"
)

// Category is the trace category of data loading.
const Category = "provider"

// CacheType is the cache type under which loaded sources are stored.
const CacheType = "loom.nodeset"

// loaded is what one fetch produces and what the cache holds.
type loaded struct {
	ds   *dataset.Dataset
	root any

	// partial is set when a command failure was downgraded during the fetch.
	partial bool
}

// Source is a data source assembled from provider commands. Its node view
// is rooted at the dataset element, so top-level tables select by name.
type Source struct {
	id         string
	key        string
	ttl        time.Duration
	transform  string
	namespaces map[string]string
	commands   []Command
	byID       map[string]Command

	cache cache.Provider
	now   func() time.Time

	memo       *loaded
	memoPass   uint64
	fetches    atomic.Int64
	downgraded bool
}

// Option configures a Source.
type Option func(*Source)

// WithCache sets the shared cache consulted when the source has a positive
// cache duration.
func WithCache(p cache.Provider) Option {
	return func(s *Source) { s.cache = p }
}

// WithClock replaces time.Now for expiry computation.
func WithClock(now func() time.Time) Option {
	return func(s *Source) { s.now = now }
}

// WithDefaultTTL applies d when the declaration has no cache duration.
func WithDefaultTTL(d time.Duration) Option {
	return func(s *Source) {
		if s.ttl == 0 {
			s.ttl = d
		}
	}
}

// Build creates a source from its declaration.
func Build(spec api.Source, env Env, opts ...Option) (*Source, error) {
	ttl, err := spec.CacheTTL()
	if err != nil {
		return nil, err
	}
	s := &Source{
		id:         spec.ID,
		key:        spec.CacheKey,
		ttl:        ttl,
		transform:  spec.Transform,
		namespaces: spec.Namespaces,
		byID:       make(map[string]Command, len(spec.Commands)),
		now:        time.Now,
	}
	if s.key == "" {
		s.key = uuid.NewString()
	}
	for _, cs := range spec.Commands {
		cmd, err := NewCommand(cs, env)
		if err != nil {
			return nil, fmt.Errorf("source %s: %w", spec.ID, err)
		}
		s.commands = append(s.commands, cmd)
		s.byID[cmd.ID()] = cmd
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

func (s *Source) ID() string { return s.id }

// CacheKey returns the identity the source is cached under.
func (s *Source) CacheKey() string { return s.key }

// Fetches returns how many times the commands actually ran.
func (s *Source) Fetches() int64 { return s.fetches.Load() }

// Dataset loads the source and returns its relational form.
func (s *Source) Dataset(c *bind.Context) (*dataset.Dataset, error) {
	l, err := s.load(c)
	if err != nil {
		return nil, err
	}
	return l.ds, nil
}

// Select returns a forward-only iterator over the nodes path selects from
// the source root.
func (s *Source) Select(c *bind.Context, path string) (any, error) {
	l, err := s.load(c)
	if err != nil {
		return nil, err
	}
	if l.root == nil {
		return nodeset.NewIterator(nil), nil
	}
	nodes, err := s.selectNodes(c, path, l.root)
	if err != nil {
		return nil, err
	}
	return nodeset.NewIterator(nodes), nil
}

func (s *Source) SelectFrom(c *bind.Context, path string, data any) (any, error) {
	return s.selectNodes(c, path, data)
}

func (s *Source) selectNodes(c *bind.Context, path string, data any) ([]any, error) {
	defer s.scope(c)()
	nodes, err := nodeset.Select(data, path, c.Namespaces())
	if err != nil {
		return nil, fmt.Errorf("source %s: %w", s.id, err)
	}
	return nodes, nil
}

func (s *Source) Evaluate(c *bind.Context, expr string, data any) (any, bool, error) {
	defer s.scope(c)()
	return nodeset.Evaluate(data, expr, c.Namespaces())
}

func (s *Source) EvaluateTest(c *bind.Context, expr string, data any) (bool, error) {
	defer s.scope(c)()
	return nodeset.Test(data, expr, c.Namespaces())
}

func (s *Source) SupportsSchema() bool { return true }

// Schema describes the loaded dataset. path is relative to the source
// root, like a Select path.
func (s *Source) Schema(c *bind.Context, path string) (*schema.Schema, error) {
	l, err := s.load(c)
	if err != nil {
		return nil, err
	}
	full := schema.Generate(l.ds)
	if path = strings.Trim(path, "/"); path == "" {
		return full, nil
	}
	sub := full.Sub(full.Name + "/" + path)
	if sub == nil {
		return nil, fmt.Errorf("source %s: no schema item at %q", s.id, path)
	}
	return sub, nil
}

// scope pushes the source's namespace bindings and returns the restore.
func (s *Source) scope(c *bind.Context) func() {
	if len(s.namespaces) == 0 {
		return func() {}
	}
	ns := c.Namespaces()
	mark := ns.Mark()
	ns.Push(s.namespaces)
	return func() { ns.Restore(mark) }
}

// load returns the pass-local result, then a live cache entry, and only
// then runs the commands.
func (s *Source) load(c *bind.Context) (*loaded, error) {
	if s.memo != nil && s.memoPass == c.Pass() {
		return s.memo, nil
	}
	cached := s.ttl > 0 && s.cache != nil
	if cached {
		if v, ok := s.cache.TryGet(CacheType, s.key); ok {
			if l, ok := v.(*loaded); ok {
				c.Trace().Addf(trace.Verbose, Category, "source %s: cache hit", s.id)
				s.remember(c, l)
				return l, nil
			}
		}
	}

	c.Trace().Begin(trace.Verbose, Category, "load "+s.id)
	l, err := s.fetch(c)
	c.Trace().End(trace.Verbose, Category, "load "+s.id)
	if err != nil {
		return nil, err
	}
	switch {
	case cached && l.partial:
		c.Trace().Addf(trace.Warning, Category, "source %s: partial load not cached", s.id)
	case cached:
		s.cache.Put(CacheType, s.key, l, s.now().Add(s.ttl))
	}
	s.remember(c, l)
	return l, nil
}

func (s *Source) remember(c *bind.Context, l *loaded) {
	s.memo = l
	s.memoPass = c.Pass()
}

// fetch runs every command that is not the child of a relation, each
// followed by its related children.
func (s *Source) fetch(c *bind.Context) (*loaded, error) {
	s.fetches.Add(1)
	s.downgraded = false
	defer s.scope(c)()

	ds := dataset.New(s.id)
	children := make(map[string]bool)
	for _, cmd := range s.commands {
		for _, r := range cmd.Relations() {
			children[r.Child] = true
		}
	}

	done := make(map[string]bool, len(s.commands))
	for _, cmd := range s.commands {
		if children[cmd.ID()] {
			continue
		}
		if err := s.run(c, ds, cmd, nil, done); err != nil {
			return nil, err
		}
	}
	// Commands only reachable through a relation cycle still run once.
	for _, cmd := range s.commands {
		if !done[cmd.ID()] {
			if err := s.run(c, ds, cmd, nil, done); err != nil {
				return nil, err
			}
		}
	}

	root, err := s.root(c, ds)
	if err != nil {
		return nil, err
	}
	return &loaded{ds: ds, root: root, partial: s.downgraded}, nil
}

func (s *Source) run(c *bind.Context, ds *dataset.Dataset, cmd, parent Command, done map[string]bool) error {
	if err := c.Std().Err(); err != nil {
		return err
	}
	done[cmd.ID()] = true
	if err := cmd.Fill(c, ds, parent); err != nil {
		if err := s.fail(c, cmd, err); err != nil {
			return err
		}
	}

	for _, r := range cmd.Relations() {
		child, ok := s.byID[r.Child]
		if !ok {
			err := fmt.Errorf("%w: %s", bind.ErrMissingRelatedCommand, r.Child)
			if err := s.fail(c, cmd, err); err != nil {
				return err
			}
			continue
		}
		if !done[child.ID()] {
			if err := s.run(c, ds, child, cmd, done); err != nil {
				return err
			}
		}
		if err := s.relate(c, ds, cmd, child, r); err != nil {
			if err := s.fail(c, cmd, err); err != nil {
				return err
			}
		}
	}
	return nil
}

// relate joins parent and child tables. Tables that produced no rows get
// the relation columns declared so the join is still recorded.
func (s *Source) relate(c *bind.Context, ds *dataset.Dataset, parent, child Command, r api.Relation) error {
	pcols := make([]string, len(r.Matches))
	ccols := make([]string, len(r.Matches))
	for i, m := range r.Matches {
		pcols[i], ccols[i] = m.Parent, m.Child
	}
	declareEmpty(ds.Table(parent.Table()), pcols)
	declareEmpty(ds.Table(child.Table()), ccols)

	name := parent.ID() + "_" + child.ID()
	_, err := ds.AddRelation(name, parent.Table(), child.Table(), pcols, ccols)
	var missing *dataset.MissingColumnError
	switch {
	case err == nil:
		return nil
	case errors.Is(err, dataset.ErrMissingTable):
		c.Trace().Addf(trace.Warning, Category, "source %s: relation %s skipped: %v", s.id, name, err)
		return nil
	case errors.As(err, &missing):
		return fmt.Errorf("relation %s: %w: %v", name, bind.ErrMissingRelationColumn, missing)
	}
	return err
}

func declareEmpty(t *dataset.Table, cols []string) {
	if t == nil || len(t.Rows) > 0 {
		return
	}
	for _, col := range cols {
		t.AddColumn(col, dataset.KindUnknown)
	}
}

// fail applies the conformance mode to a command failure. It returns nil
// when the failure is downgraded to a warning.
func (s *Source) fail(c *bind.Context, cmd Command, err error) error {
	perr := &bind.ProviderError{Source: s.id, Command: cmd.ID(), Err: err}
	if bind.IsHard(err) || c.Conformance() == bind.Strict {
		return perr
	}
	c.Trace().Add(trace.Warning, Category, perr.Error())
	s.downgraded = true
	return nil
}

// root projects the dataset and applies the transform.
func (s *Source) root(c *bind.Context, ds *dataset.Dataset) (any, error) {
	var root any
	if m, ok := ds.Nodes().(map[string]any); ok {
		for _, v := range m {
			root = v
		}
	}
	if s.transform == "" {
		return root, nil
	}
	nodes, err := nodeset.Select(root, s.transform, c.Namespaces())
	if err != nil {
		return nil, &bind.ProviderError{Source: s.id, Err: fmt.Errorf("transform: %w", err)}
	}
	if len(nodes) == 0 {
		return nil, nil
	}
	return nodes[0], nil
}
