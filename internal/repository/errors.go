package repository

import "errors"

var (
	// ErrNotFound indicates the requested record does not exist.
	ErrNotFound = errors.New("repository: not found")
	// ErrConflict indicates a unique key already holds a record.
	ErrConflict = errors.New("repository: conflict")
)
