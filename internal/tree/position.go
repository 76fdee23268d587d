package tree

import (
	"strconv"
	"strings"
)

// Position locates a row in a Model as a path of sibling indices from the top level.
// The empty Position addresses the (virtual) root whose children are the top-level rows.
type Position []int

// Child returns a new Position for the i-th child of p. p is never aliased.
func (p Position) Child(i int) Position {
	out := make(Position, len(p)+1)
	copy(out, p)
	out[len(p)] = i
	return out
}

// Parent returns the parent position, or nil for top-level rows and the root.
func (p Position) Parent() Position {
	if len(p) <= 1 {
		return nil
	}
	out := make(Position, len(p)-1)
	copy(out, p)
	return out
}

func (p Position) Depth() int { return len(p) }

func (p Position) Equal(o Position) bool {
	if len(p) != len(o) {
		return false
	}
	for i := range p {
		if p[i] != o[i] {
			return false
		}
	}
	return true
}

// String renders p as dotted indices ("2.1.0"); the root renders as "".
func (p Position) String() string {
	parts := make([]string, len(p))
	for i, n := range p {
		parts[i] = strconv.Itoa(n)
	}
	return strings.Join(parts, ".")
}
