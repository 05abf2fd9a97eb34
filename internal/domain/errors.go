package domain

import "errors"

var (
	// ErrNotFound signals a missing resource.
	ErrNotFound = errors.New("not found")
	// ErrAlreadyExists signals a duplicate resource.
	ErrAlreadyExists = errors.New("already exists")
	// ErrInvalidAttribute signals an attribute definition or value that does not
	// match its declared type.
	ErrInvalidAttribute = errors.New("invalid attribute")
	// ErrInvalidFilter signals a filter referencing an unknown attribute or
	// using an operator the attribute type does not support.
	ErrInvalidFilter = errors.New("invalid filter")
	// ErrInvalidSort signals an unknown sort target or a misplaced
	// availability sort step.
	ErrInvalidSort = errors.New("invalid sort")
	// ErrInvalidDateRange signals a conflicting availability date range.
	ErrInvalidDateRange = errors.New("invalid date range")
	// ErrReindexPending signals that a reindex task already exists for the
	// tenant and environment.
	ErrReindexPending = errors.New("reindex already pending")
	// ErrTaskNotFound signals a missing reindex task record.
	ErrTaskNotFound = errors.New("reindex task not found")
	// ErrMissingConnection signals absent search-engine connection parameters
	// for a platform. Fatal configuration error, never retried.
	ErrMissingConnection = errors.New("missing search connection parameters")
)
