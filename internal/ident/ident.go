// Package ident defines the name-path identifier shared by every layer of
// the dispatcher: metalake, catalog and schema levels addressed as an
// ordered tuple of path segments.
package ident

import (
	"fmt"
	"strings"
)

// Name is an ordered tuple of path levels, e.g. [metalake, catalog, schema].
// Name is immutable; all mutating-looking operations return a new value.
type Name struct {
	levels []string
}

// New builds a Name from individual levels. Empty levels are rejected.
func New(levels ...string) (Name, error) {
	cp := make([]string, len(levels))
	for i, l := range levels {
		if l == "" {
			return Name{}, fmt.Errorf("ident: empty level at position %d", i)
		}
		cp[i] = l
	}
	return Name{levels: cp}, nil
}

// MustNew is New but panics on error; intended for tests and static identifiers.
func MustNew(levels ...string) Name {
	n, err := New(levels...)
	if err != nil {
		panic(err)
	}
	return n
}

// Parse splits a dot-separated string into a Name.
func Parse(s string) (Name, error) {
	if s == "" {
		return Name{}, fmt.Errorf("ident: empty identifier")
	}
	return New(strings.Split(s, ".")...)
}

// Len returns the number of levels.
func (n Name) Len() int { return len(n.levels) }

// Levels returns a copy of the underlying levels.
func (n Name) Levels() []string {
	cp := make([]string, len(n.levels))
	copy(cp, n.levels)
	return cp
}

// Leaf returns the last level, or "" for an empty Name.
func (n Name) Leaf() string {
	if len(n.levels) == 0 {
		return ""
	}
	return n.levels[len(n.levels)-1]
}

// Namespace returns the prefix of the Name (all levels but the last).
func (n Name) Namespace() Name {
	if len(n.levels) == 0 {
		return Name{}
	}
	return Name{levels: append([]string(nil), n.levels[:len(n.levels)-1]...)}
}

// Catalog returns the two-level catalog prefix [metalake, catalog] this
// identifier belongs to. Panics if the Name has fewer than two levels.
func (n Name) Catalog() Name {
	if len(n.levels) < 2 {
		panic("ident: Catalog() requires at least two levels")
	}
	return Name{levels: append([]string(nil), n.levels[:2]...)}
}

// String renders the Name as a dot-joined path.
func (n Name) String() string {
	return strings.Join(n.levels, ".")
}

// Child appends a level and returns the new Name.
func (n Name) Child(level string) Name {
	return Name{levels: append(append([]string(nil), n.levels...), level)}
}

// Equal reports whether two Names address the same path.
func (n Name) Equal(other Name) bool {
	if len(n.levels) != len(other.levels) {
		return false
	}
	for i := range n.levels {
		if n.levels[i] != other.levels[i] {
			return false
		}
	}
	return true
}
