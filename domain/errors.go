package domain

import "errors"

var (
	ErrTaskNotFound   = errors.New("task not found")
	ErrDuplicateTask  = errors.New("duplicate task id")
	ErrInvalidStatus  = errors.New("invalid status")
	ErrInvalidTask    = errors.New("invalid task")
	ErrEmptyPatch     = errors.New("update had no fields")
	ErrUnknownCommand = errors.New("unknown command")
	ErrBoardNotFound  = errors.New("board not found")
)

// ErrConcurrencyConflict indicates that the underlying storage rejected a
// save because a newer version of the board is already persisted.
var ErrConcurrencyConflict = errors.New("concurrency conflict")
