package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"
	"time"

	"github.com/go-git/go-billy/v5"
	"gopkg.in/yaml.v3"
)

// Document is the root of a declarative binding document: the data sources
// it reads and the markup bound against them.
type Document struct {
	// Version of the document format.
	Version string `json:"version" yaml:"version"`
	// Namespaces are prefix bindings visible to every path in the document.
	Namespaces map[string]string `json:"namespaces,omitempty" yaml:"namespaces,omitempty"`
	// Sources declare the data sources, addressable by ID from markup.
	Sources []Source `json:"sources,omitempty" yaml:"sources,omitempty"`
	// Markup is the inline component markup.
	Markup string `json:"markup,omitempty" yaml:"markup,omitempty"`
	// MarkupFile names a markup file relative to the document.
	MarkupFile string `json:"markup_file,omitempty" yaml:"markup_file,omitempty"`
}

// Source is one data source made of provider commands.
type Source struct {
	ID string `json:"id" yaml:"id"`
	// CacheKey overrides the identity used for the shared cache.
	CacheKey string `json:"cache_key,omitempty" yaml:"cache_key,omitempty"`
	// CacheDuration is a Go duration; empty or zero disables caching.
	CacheDuration string `json:"cache_duration,omitempty" yaml:"cache_duration,omitempty"`
	// Transform re-roots the loaded node view at a path.
	Transform  string            `json:"transform,omitempty" yaml:"transform,omitempty"`
	Namespaces map[string]string `json:"namespaces,omitempty" yaml:"namespaces,omitempty"`
	Commands   []Command         `json:"commands" yaml:"commands"`
}

// CacheTTL parses CacheDuration.
func (s *Source) CacheTTL() (time.Duration, error) {
	if s.CacheDuration == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(s.CacheDuration)
	if err != nil {
		return 0, fmt.Errorf("source %s: cache_duration: %w", s.ID, err)
	}
	return d, nil
}

// Command kinds.
const (
	KindJSON   = "json"
	KindXML    = "xml"
	KindSQL    = "sql"
	KindObject = "object"
	KindCode   = "code"
)

// Command is one data-loading unit producing a table.
type Command struct {
	ID   string `json:"id" yaml:"id"`
	Kind string `json:"kind" yaml:"kind"`
	// ElementName names the produced table; defaults to ID.
	ElementName string `json:"element_name,omitempty" yaml:"element_name,omitempty"`

	// json and xml: a file relative to the document, or inline content.
	File    string `json:"file,omitempty" yaml:"file,omitempty"`
	Content string `json:"content,omitempty" yaml:"content,omitempty"`
	// Select picks the row nodes (json, xml).
	Select string `json:"select,omitempty" yaml:"select,omitempty"`

	// sql
	Connection    *Connection `json:"connection,omitempty" yaml:"connection,omitempty"`
	Statement     string      `json:"statement,omitempty" yaml:"statement,omitempty"`
	StatementKind string      `json:"statement_kind,omitempty" yaml:"statement_kind,omitempty"`

	// object
	TypeName string `json:"type,omitempty" yaml:"type,omitempty"`
	Method   string `json:"method,omitempty" yaml:"method,omitempty"`

	// code: a tree-sitter query over File.
	Language string `json:"language,omitempty" yaml:"language,omitempty"`
	Query    string `json:"query,omitempty" yaml:"query,omitempty"`

	// Attributes lists columns mapped as attributes; "*" maps every column.
	Attributes []string `json:"attributes,omitempty" yaml:"attributes,omitempty"`
	// SimpleContent names the column holding element text.
	SimpleContent string   `json:"simple_content,omitempty" yaml:"simple_content,omitempty"`
	Hidden        []string `json:"hidden,omitempty" yaml:"hidden,omitempty"`
	// Types declares logical column types (image, url, date, ...).
	Types    map[string]string `json:"types,omitempty" yaml:"types,omitempty"`
	Captions map[string]string `json:"captions,omitempty" yaml:"captions,omitempty"`

	Parameters []Parameter `json:"parameters,omitempty" yaml:"parameters,omitempty"`
	Relations  []Relation  `json:"relations,omitempty" yaml:"relations,omitempty"`
}

// Connection describes a database connection. Name refers to a pool
// registered with the executor; otherwise Driver and DSN open one.
type Connection struct {
	Name   string `json:"name,omitempty" yaml:"name,omitempty"`
	Driver string `json:"driver,omitempty" yaml:"driver,omitempty"`
	DSN    string `json:"dsn,omitempty" yaml:"dsn,omitempty"`
}

// Parameter is a named command argument, either a literal or a path
// evaluated against the current frame.
type Parameter struct {
	Name   string `json:"name" yaml:"name"`
	Type   string `json:"type,omitempty" yaml:"type,omitempty"`
	Value  string `json:"value,omitempty" yaml:"value,omitempty"`
	Select string `json:"select,omitempty" yaml:"select,omitempty"`
}

// Relation joins this command's table to a child command's table.
type Relation struct {
	Child   string  `json:"child" yaml:"child"`
	Matches []Match `json:"matches" yaml:"matches"`
}

// Match pairs a parent column with a child column.
type Match struct {
	Parent string `json:"parent" yaml:"parent"`
	Child  string `json:"child" yaml:"child"`
}

// Load reads a document from fs. The format follows the extension: .json,
// or .yaml/.yml.
func Load(fs billy.Filesystem, name string) (*Document, error) {
	f, err := fs.Open(name)
	if err != nil {
		return nil, fmt.Errorf("open document %s: %w", name, err)
	}
	defer func() { _ = f.Close() }()

	data, err := io.ReadAll(f)
	if err != nil {
		return nil, fmt.Errorf("read document %s: %w", name, err)
	}

	var doc Document
	switch strings.ToLower(path.Ext(name)) {
	case ".json":
		err = json.Unmarshal(data, &doc)
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &doc)
	default:
		return nil, fmt.Errorf("document %s: unsupported format %q", name, path.Ext(name))
	}
	if err != nil {
		return nil, fmt.Errorf("parse document %s: %w", name, err)
	}
	if err := doc.Validate(); err != nil {
		return nil, fmt.Errorf("document %s: %w", name, err)
	}
	return &doc, nil
}

// Validate checks structural rules. Relations naming undeclared commands
// are reported at bind time.
func (d *Document) Validate() error {
	var errs []error
	if d.Markup != "" && d.MarkupFile != "" {
		errs = append(errs, errors.New("markup and markup_file are mutually exclusive"))
	}
	sources := make(map[string]bool)
	for i := range d.Sources {
		s := &d.Sources[i]
		if s.ID == "" {
			errs = append(errs, fmt.Errorf("sources[%d]: id is required", i))
			continue
		}
		if sources[s.ID] {
			errs = append(errs, fmt.Errorf("source %s: duplicate id", s.ID))
		}
		sources[s.ID] = true
		if _, err := s.CacheTTL(); err != nil {
			errs = append(errs, err)
		}
		errs = append(errs, s.validateCommands()...)
	}
	return errors.Join(errs...)
}

func (s *Source) validateCommands() []error {
	var errs []error
	ids := make(map[string]bool)
	for i, c := range s.Commands {
		if c.ID == "" {
			errs = append(errs, fmt.Errorf("source %s: commands[%d]: id is required", s.ID, i))
			continue
		}
		if ids[c.ID] {
			errs = append(errs, fmt.Errorf("source %s: command %s: duplicate id", s.ID, c.ID))
		}
		ids[c.ID] = true
		if c.Kind == "" {
			errs = append(errs, fmt.Errorf("source %s: command %s: kind is required", s.ID, c.ID))
		}
		for _, r := range c.Relations {
			if r.Child == "" || len(r.Matches) == 0 {
				errs = append(errs, fmt.Errorf("source %s: command %s: relation needs a child and at least one match", s.ID, c.ID))
			}
		}
	}
	return errs
}

// Table returns the table name a command produces.
func (c *Command) Table() string {
	if c.ElementName != "" {
		return c.ElementName
	}
	return c.ID
}
