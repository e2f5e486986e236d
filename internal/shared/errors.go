package shared

import "errors"

var (
	// ErrNotFound indicates resource not found.
	ErrNotFound = errors.New("not found")
	// ErrUnauthenticated indicates a request without a valid bearer token.
	ErrUnauthenticated = errors.New("unauthenticated")
)
