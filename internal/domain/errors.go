// Package domain provides shared domain-level sentinel errors.
package domain

import "errors"

// ErrNotFound indicates the requested entity does not exist.
var ErrNotFound = errors.New("not found")

// ErrConflict indicates a write that would violate the entity's lifecycle
// (e.g. mutating an execution that already reached a terminal state).
var ErrConflict = errors.New("conflict: resource was modified by another request")

// ErrValidation indicates a caller error detected before any work started.
var ErrValidation = errors.New("validation failed")
