package store

import (
	"fmt"
	"strings"
)

type NotFoundError struct {
	Kind string
	ID   string
}

func (e NotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Kind, e.ID)
}

// ValidationError lists every problem found in one definition.
type ValidationError struct {
	Source   string
	Problems []string
}

func (e *ValidationError) Error() string {
	src := e.Source
	if src == "" {
		src = "definition"
	}
	return fmt.Sprintf("%s: invalid tree definition: %s", src, strings.Join(e.Problems, "; "))
}
