// Package schema describes the shape of loaded data as a tree of named,
// typed items used to drive auto-binding.
package schema

import (
	"strings"

	"github.com/agentic-research/loom/internal/dataset"
)

// NodeKind is the node form an item takes in the node view.
type NodeKind int

const (
	Element NodeKind = iota
	Attribute
	Text
)

func (k NodeKind) String() string {
	switch k {
	case Attribute:
		return "attribute"
	case Text:
		return "text"
	}
	return "element"
}

// DataType is the logical type of an item.
type DataType int

const (
	Unknown DataType = iota
	String
	Boolean
	Integer
	Double
	DateTime
	Image
	URL
	Array
)

var dataTypeNames = []string{"unknown", "string", "boolean", "integer", "double", "datetime", "image", "url", "array"}

func (t DataType) String() string {
	if int(t) >= 0 && int(t) < len(dataTypeNames) {
		return dataTypeNames[t]
	}
	return "unknown"
}

// MarshalText renders the type name in JSON output.
func (t DataType) MarshalText() ([]byte, error) { return []byte(t.String()), nil }

// MarshalText renders the kind name in JSON output.
func (k NodeKind) MarshalText() ([]byte, error) { return []byte(k.String()), nil }

// ParseDataType resolves a declared logical type name.
func ParseDataType(name string) (DataType, bool) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "string", "text":
		return String, true
	case "bool", "boolean":
		return Boolean, true
	case "int", "integer":
		return Integer, true
	case "double", "float", "decimal", "number":
		return Double, true
	case "date", "time", "datetime":
		return DateTime, true
	case "image":
		return Image, true
	case "url", "uri", "link":
		return URL, true
	case "array", "list":
		return Array, true
	}
	return Unknown, false
}

// TypeFor maps a column's native kind to its data type.
func TypeFor(k dataset.Kind) DataType {
	switch k {
	case dataset.KindBool:
		return Boolean
	case dataset.KindInt:
		return Integer
	case dataset.KindFloat, dataset.KindDecimal:
		return Double
	case dataset.KindTime:
		return DateTime
	case dataset.KindBytes:
		return Image
	case dataset.KindURL:
		return URL
	case dataset.KindArray:
		return Array
	case dataset.KindString:
		return String
	}
	return Unknown
}

// Item describes one named piece of data. FullPath is the parent's path
// joined with RelativePath.
type Item struct {
	FullPath     string   `json:"full_path"`
	RelativePath string   `json:"relative_path"`
	Name         string   `json:"name"`
	Title        string   `json:"title"`
	NodeKind     NodeKind `json:"node_kind"`
	DataType     DataType `json:"data_type"`
	Children     []*Item  `json:"children,omitempty"`
}

// Schema is a named root of top-level items.
type Schema struct {
	Name  string  `json:"name"`
	Items []*Item `json:"items"`
}

// Walk visits items depth-first until fn returns false.
func (s *Schema) Walk(fn func(*Item) bool) {
	var walk func(items []*Item) bool
	walk = func(items []*Item) bool {
		for _, it := range items {
			if !fn(it) || !walk(it.Children) {
				return false
			}
		}
		return true
	}
	walk(s.Items)
}

// Find returns the item with the given full path.
func (s *Schema) Find(fullPath string) *Item {
	fullPath = strings.Trim(fullPath, "/")
	var found *Item
	s.Walk(func(it *Item) bool {
		if it.FullPath == fullPath {
			found = it
			return false
		}
		return true
	})
	return found
}

// Sub returns the schema rooted at the item with the given full path. An
// empty path returns s itself; an unknown path returns nil.
func (s *Schema) Sub(fullPath string) *Schema {
	if strings.Trim(fullPath, "/") == "" {
		return s
	}
	it := s.Find(fullPath)
	if it == nil {
		return nil
	}
	return &Schema{Name: it.Name, Items: it.Children}
}
