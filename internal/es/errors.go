package es

import "errors"

// Sentinel errors for search-engine operations.
var (
	ErrIndexNotFound = errors.New("es: index not found")
	ErrAliasNotFound = errors.New("es: alias not found")
	ErrTaskNotFound  = errors.New("es: task not found")
)

// Op constants name the wire operation for error context.
const (
	OpCreateIndex   = "indices.create"
	OpDeleteIndex   = "indices.delete"
	OpExists        = "indices.exists"
	OpGetMapping    = "indices.get_mapping"
	OpPutMapping    = "indices.put_mapping"
	OpGetSettings   = "indices.get_settings"
	OpPutSettings   = "indices.put_settings"
	OpUpdateAliases = "indices.update_aliases"
	OpGetAlias      = "indices.get_alias"
	OpBulk          = "bulk"
	OpSearch        = "search"
	OpReindex       = "reindex"
	OpTaskStatus    = "tasks.get"
)

// Error wraps an underlying error with the operation name for diagnostics.
type Error struct {
	Op  string
	Err error
}

func (e *Error) Error() string { return e.Op + ": " + e.Err.Error() }
func (e *Error) Unwrap() error { return e.Err }
