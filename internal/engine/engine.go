// Package engine wires a declarative document to its data sources and
// component tree, runs bind passes and publishes the materialized result.
package engine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"maps"
	"path"
	"strings"
	"time"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/helper/chroot"

	"github.com/agentic-research/loom/api"
	"github.com/agentic-research/loom/internal/bind"
	"github.com/agentic-research/loom/internal/cache"
	"github.com/agentic-research/loom/internal/component"
	"github.com/agentic-research/loom/internal/config"
	"github.com/agentic-research/loom/internal/graph"
	"github.com/agentic-research/loom/internal/markup"
	"github.com/agentic-research/loom/internal/provider"
	"github.com/agentic-research/loom/internal/schema"
	"github.com/agentic-research/loom/internal/trace"
)

// Trace category for engine entries.
const Category = "engine"

var ErrNotLoaded = errors.New("no document loaded")

// Engine binds one document at a time.
type Engine struct {
	cfg    *config.Config
	logger *slog.Logger
	trace  *trace.Log

	cache     *cache.LRU
	executor  provider.Executor
	ownsExec  bool
	callables *provider.Callables
	parser    *markup.Parser
	now       func() time.Time
	output    *graph.HotSwapGraph

	doc     *api.Document
	fs      billy.Filesystem
	sources []*provider.Source
	root    *component.Document
}

// Option customizes an Engine.
type Option func(*Engine)

// WithExecutor replaces the database executor. The engine does not close it.
func WithExecutor(x provider.Executor) Option {
	return func(e *Engine) { e.executor, e.ownsExec = x, false }
}

// WithCallables supplies the methods object commands may invoke.
func WithCallables(r *provider.Callables) Option {
	return func(e *Engine) { e.callables = r }
}

// WithClock replaces time.Now for cache expiry.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// New creates an engine. A nil cfg uses config.Default and a nil logger
// discards output.
func New(cfg *config.Config, logger *slog.Logger, opts ...Option) (*Engine, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	lru, err := cache.NewLRU(cfg.Cache.MaxEntries)
	if err != nil {
		return nil, fmt.Errorf("failed to create cache: %w", err)
	}
	e := &Engine{
		cfg:       cfg,
		logger:    logger,
		trace:     trace.New(logger, cfg.Level()),
		cache:     lru,
		executor:  provider.NewDBExecutor(),
		ownsExec:  true,
		callables: provider.NewCallables(),
		parser:    markup.NewParser(),
		now:       time.Now,
		output:    graph.NewHotSwapGraph(graph.NewMemoryStore()),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.cache.Now = e.now

	logger.Debug("initialized engine", "conformance", cfg.Conformance, "trace_level", cfg.TraceLevel,
		"cache_entries", cfg.Cache.MaxEntries, "max_depth", cfg.MaxDepth)
	return e, nil
}

// Callables returns the registry object commands resolve against.
func (e *Engine) Callables() *provider.Callables { return e.callables }

// Cache returns the shared data cache.
func (e *Engine) Cache() *cache.LRU { return e.cache }

// Output returns the materialized tree of the last successful bind.
func (e *Engine) Output() graph.Graph { return e.output }

// Root returns the loaded component tree.
func (e *Engine) Root() *component.Document { return e.root }

// Sources returns the data sources of the loaded document.
func (e *Engine) Sources() []*provider.Source { return e.sources }

// LoadFile reads a document from fs. Relative references resolve against
// the document's directory.
func (e *Engine) LoadFile(fs billy.Filesystem, name string) error {
	doc, err := api.Load(fs, name)
	if err != nil {
		return err
	}
	dir := path.Dir(name)
	if dir != "." {
		fs = chroot.New(fs, dir)
	}
	return e.Load(doc, fs)
}

// Load builds the document's sources and parses its markup.
func (e *Engine) Load(doc *api.Document, fs billy.Filesystem) error {
	if err := doc.Validate(); err != nil {
		return err
	}
	env := provider.Env{FS: fs, Executor: e.executor, Callables: e.callables}

	var sources []*provider.Source
	for _, spec := range doc.Sources {
		src, err := provider.Build(spec, env,
			provider.WithCache(e.cache),
			provider.WithClock(e.now),
			provider.WithDefaultTTL(e.cfg.Cache.Duration),
		)
		if err != nil {
			return err
		}
		sources = append(sources, src)
	}

	root, err := e.parseMarkup(doc, fs)
	if err != nil {
		return err
	}

	e.doc, e.fs, e.sources, e.root = doc, fs, sources, root
	e.logger.Info("loaded document", "sources", len(sources), "markup_file", doc.MarkupFile)
	return nil
}

func (e *Engine) parseMarkup(doc *api.Document, fs billy.Filesystem) (*component.Document, error) {
	switch {
	case doc.MarkupFile != "":
		if fs == nil {
			return nil, fmt.Errorf("markup file %s: no filesystem", doc.MarkupFile)
		}
		f, err := fs.Open(doc.MarkupFile)
		if err != nil {
			return nil, fmt.Errorf("open markup %s: %w", doc.MarkupFile, err)
		}
		defer func() { _ = f.Close() }()
		return e.parse(f, fs, doc.MarkupFile)
	case strings.TrimSpace(doc.Markup) != "":
		return e.parse(strings.NewReader(doc.Markup), fs, "inline markup")
	}
	return component.NewDocument("", fs), nil
}

func (e *Engine) parse(r io.Reader, fs billy.Filesystem, name string) (*component.Document, error) {
	root, err := e.parser.Parse(r, fs)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	return root, nil
}

// newContext starts a bind pass with every source registered.
func (e *Engine) newContext(ctx context.Context) *bind.Context {
	ns := make(map[string]string)
	maps.Copy(ns, e.cfg.Namespaces)
	maps.Copy(ns, e.doc.Namespaces)
	maps.Copy(ns, e.root.Namespaces)

	conformance := bind.Strict
	if e.cfg.Lax() {
		conformance = bind.Lax
	}
	c := bind.NewContext(ctx, bind.Options{
		Conformance: conformance,
		Trace:       e.trace,
		MaxDepth:    e.cfg.MaxDepth,
		Namespaces:  ns,
		StyleKeys:   e.cfg.StyleKeys,
		Root:        e.root,
	})
	for _, src := range e.sources {
		c.RegisterSource(src)
	}
	return c
}

// Bind runs one bind pass over the loaded document and publishes the
// materialized result.
func (e *Engine) Bind(ctx context.Context) (*component.Document, error) {
	if e.root == nil {
		return nil, ErrNotLoaded
	}
	c := e.newContext(ctx)
	start := time.Now()
	e.trace.Begin(trace.Message, Category, fmt.Sprintf("bind pass %d", c.Pass()))
	err := c.Bind(e.root)
	e.trace.End(trace.Message, Category, fmt.Sprintf("bind pass %d", c.Pass()))
	if err != nil {
		e.logger.Error("bind failed", "pass", c.Pass(), "error", err)
		return nil, err
	}
	if depth := c.StackDepth(); depth != 0 {
		return nil, fmt.Errorf("bind pass %d left %d frames on the context stack", c.Pass(), depth)
	}

	store := Materialize(e.root)
	e.output.Swap(store)
	e.logger.Info("bound document", "pass", c.Pass(), "nodes", store.Len(), "duration", time.Since(start))
	return e.root, nil
}

// Schema generates the schema of a source at path.
func (e *Engine) Schema(ctx context.Context, sourceID, path string) (*schema.Schema, error) {
	if e.root == nil {
		return nil, ErrNotLoaded
	}
	var src *provider.Source
	for _, candidate := range e.sources {
		if candidate.ID() == sourceID {
			src = candidate
		}
	}
	if src == nil {
		return nil, fmt.Errorf("%w: %s", bind.ErrUnknownSource, sourceID)
	}
	return src.Schema(e.newContext(ctx), path)
}

// Close releases the database pools the engine opened.
func (e *Engine) Close() error {
	if closer, ok := e.executor.(io.Closer); ok && e.ownsExec {
		return closer.Close()
	}
	return nil
}
