package models

import "errors"

// Error kinds. Callers wrap them with context and classify with errors.Is.
var (
	// ErrValidation means the input was missing or malformed.
	ErrValidation = errors.New("validation failed")
	// ErrNotFound means the referenced entity does not exist.
	ErrNotFound = errors.New("not found")
	// ErrDuplicate means a uniqueness constraint rejected an insert.
	ErrDuplicate = errors.New("duplicate record")
	// ErrUnauthorized means the caller could not be authenticated.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrUpstream means the chain RPC or storage failed.
	ErrUpstream = errors.New("upstream failure")
)
