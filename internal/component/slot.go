package component

import (
	"fmt"
	"strings"

	"github.com/agentic-research/loom/internal/schema"
)

// SlotKind selects the leaf a bound slot builds.
type SlotKind int

const (
	SlotText SlotKind = iota
	SlotNumber
	SlotDate
	SlotBool
	SlotImage
	SlotLink
)

var slotNames = map[SlotKind]string{
	SlotText:   "text",
	SlotNumber: "number",
	SlotDate:   "date",
	SlotBool:   "bool",
	SlotImage:  "image",
	SlotLink:   "link",
}

func (k SlotKind) String() string {
	if s, ok := slotNames[k]; ok {
		return s
	}
	return fmt.Sprintf("slot(%d)", int(k))
}

// ParseSlotKind maps a markup kind name to a SlotKind. The empty name is text.
func ParseSlotKind(name string) (SlotKind, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" {
		return SlotText, nil
	}
	for k, s := range slotNames {
		if s == name {
			return k, nil
		}
	}
	return SlotText, fmt.Errorf("unknown slot kind %q", name)
}

// SlotKindFor picks the slot for a schema data type.
func SlotKindFor(t schema.DataType) SlotKind {
	switch t {
	case schema.Integer, schema.Double:
		return SlotNumber
	case schema.DateTime:
		return SlotDate
	case schema.Boolean:
		return SlotBool
	case schema.Image:
		return SlotImage
	case schema.URL:
		return SlotLink
	}
	return SlotText
}

// slotStrategy is what differs between slot kinds: the leaf they build
// and the path they bind a schema item through.
type slotStrategy struct {
	buildLeaf    func(id string) Leaf
	autobindPath func(it *schema.Item) string
}

func textPath(it *schema.Item) string { return it.RelativePath }

// nodePath addresses the node itself rather than its text.
func nodePath(it *schema.Item) string {
	return strings.TrimSuffix(it.RelativePath, "/text()")
}

var strategies = map[SlotKind]slotStrategy{
	SlotText:   {buildLeaf: func(id string) Leaf { return NewLabel(id) }, autobindPath: textPath},
	SlotNumber: {buildLeaf: func(id string) Leaf { return NewNumber(id) }, autobindPath: textPath},
	SlotDate:   {buildLeaf: func(id string) Leaf { return NewDate(id) }, autobindPath: textPath},
	SlotBool:   {buildLeaf: func(id string) Leaf { return NewCheck(id) }, autobindPath: textPath},
	SlotImage:  {buildLeaf: func(id string) Leaf { return NewImage(id) }, autobindPath: nodePath},
	SlotLink:   {buildLeaf: func(id string) Leaf { return NewLink(id) }, autobindPath: nodePath},
}

func (k SlotKind) strategy() slotStrategy {
	if s, ok := strategies[k]; ok {
		return s
	}
	return strategies[SlotText]
}

// Build returns a new leaf bound to path.
func (k SlotKind) Build(id, path string) Leaf {
	leaf := k.strategy().buildLeaf(id)
	leaf.SetPath(path)
	return leaf
}

// AutobindPath returns the path a slot of this kind binds it through.
func (k SlotKind) AutobindPath(it *schema.Item) string {
	return k.strategy().autobindPath(it)
}
