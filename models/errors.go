package models

import "fmt"

// ValidationError reports bad or missing input. Fields maps column name
// to a human-readable message; Message is used for non-field problems
// such as an undecodable primary key.
type ValidationError struct {
	Message string
	Fields  map[string]string
}

func (e *ValidationError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return fmt.Sprintf("validation failed on %d field(s)", len(e.Fields))
}

func NewValidationError(msg string) *ValidationError {
	return &ValidationError{Message: msg}
}

// InvalidSortError reports a sort_by value that is not a column of the model.
type InvalidSortError struct {
	Column string
}

func (e *InvalidSortError) Error() string {
	return fmt.Sprintf("cannot sort by unknown column %q", e.Column)
}

// InvalidPageError reports out-of-range page or per_page parameters.
type InvalidPageError struct {
	Message string
}

func (e *InvalidPageError) Error() string {
	return e.Message
}

type NotFoundError struct {
	Message string
}

func (e *NotFoundError) Error() string {
	return e.Message
}

type ForbiddenError struct {
	Message string
}

func (e *ForbiddenError) Error() string {
	return e.Message
}

// ConflictError surfaces uniqueness or referential-integrity violations
// reported by the store.
type ConflictError struct {
	Message string
}

func (e *ConflictError) Error() string {
	return e.Message
}

// ActionError wraps a failure raised by a registered action callable.
// The callable's message is propagated verbatim.
type ActionError struct {
	Action  string
	Message string
}

func (e *ActionError) Error() string {
	return fmt.Sprintf("action %s failed: %s", e.Action, e.Message)
}

// SchemaError is fatal and startup-only: the schema could not be
// reflected into a usable registry.
type SchemaError struct {
	Message string
	Err     error
}

func (e *SchemaError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *SchemaError) Unwrap() error {
	return e.Err
}
