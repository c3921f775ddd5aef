package ingest

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"journaltransporter/pkg/database"
)

// NonFieldErrors is the key used for problems that are not tied to a single field.
const NonFieldErrors = "non_field_errors"

var ErrNotFound = errors.New("not found")

// ValidationError lists every invalid field of a payload. Nothing is written when it is returned.
type ValidationError struct {
	Fields map[string][]string
}

func (e *ValidationError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+": "+strings.Join(e.Fields[k], ", "))
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

func (e *ValidationError) add(field, msg string) {
	if e.Fields == nil {
		e.Fields = make(map[string][]string)
	}
	e.Fields[field] = append(e.Fields[field], msg)
}

func malformed(msg string) *ValidationError {
	e := &ValidationError{}
	e.add(NonFieldErrors, msg)
	return e
}

// PersistenceError wraps a write the store rejected. The surrounding import is rolled back.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persist %s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

// Constraint reports whether the store rejected the write on a constraint.
func (e *PersistenceError) Constraint() bool {
	return database.IsConstraint(e.Err)
}

func persistence(op string, err error) error {
	if err == nil {
		return nil
	}
	return &PersistenceError{Op: op, Err: err}
}
