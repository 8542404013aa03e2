package bind

import "maps"

// Namespaces is a scoped prefix→URI table. Inner scopes shadow outer ones.
type Namespaces struct {
	scopes []map[string]string
}

// NewNamespaces starts a table with base as the outermost scope.
func NewNamespaces(base map[string]string) *Namespaces {
	n := &Namespaces{}
	if len(base) > 0 {
		n.Push(base)
	}
	return n
}

// Mark returns a position to Restore to.
func (n *Namespaces) Mark() int { return len(n.scopes) }

// Restore drops every scope pushed after mark.
func (n *Namespaces) Restore(mark int) {
	if mark < len(n.scopes) {
		n.scopes = n.scopes[:mark]
	}
}

// Push opens a scope. Empty maps are ignored.
func (n *Namespaces) Push(m map[string]string) {
	if len(m) == 0 {
		return
	}
	n.scopes = append(n.scopes, maps.Clone(m))
}

// LookupPrefix resolves prefix against the innermost scope that binds it.
func (n *Namespaces) LookupPrefix(prefix string) (string, bool) {
	for i := len(n.scopes) - 1; i >= 0; i-- {
		if uri, ok := n.scopes[i][prefix]; ok {
			return uri, true
		}
	}
	return "", false
}

// InScope flattens the visible bindings.
func (n *Namespaces) InScope() map[string]string {
	out := make(map[string]string)
	for _, s := range n.scopes {
		maps.Copy(out, s)
	}
	return out
}
