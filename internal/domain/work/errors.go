package work

import (
	"errors"
	"fmt"
)

// ItemError marks a failure scoped to a single item. The executor records
// it and moves on to the next item.
type ItemError struct {
	Ref string
	Err error
}

// Error implements the error interface
func (e *ItemError) Error() string {
	return fmt.Sprintf("item %s: %v", e.Ref, e.Err)
}

// Unwrap returns the underlying cause
func (e *ItemError) Unwrap() error {
	return e.Err
}

// NewItemError wraps err as a failure of the item identified by ref
func NewItemError(ref string, err error) *ItemError {
	return &ItemError{Ref: ref, Err: err}
}

// FatalError marks a failure that invalidates the whole plan, for example
// revoked credentials. The executor stops dispatching items, keeps the
// partial results, and lets the engine decide whether to roll back.
type FatalError struct {
	Err error
}

// Error implements the error interface
func (e *FatalError) Error() string {
	return fmt.Sprintf("plan aborted: %v", e.Err)
}

// Unwrap returns the underlying cause
func (e *FatalError) Unwrap() error {
	return e.Err
}

// NewFatal wraps err as a plan-fatal failure
func NewFatal(err error) *FatalError {
	return &FatalError{Err: err}
}

// IsFatal reports whether err aborts the whole plan
func IsFatal(err error) bool {
	var fe *FatalError
	return errors.As(err, &fe)
}
