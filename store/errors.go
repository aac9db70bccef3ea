package store

import "errors"

var (
	// ErrNotFound is returned when a lookup by id finds no row.
	ErrNotFound = errors.New("store: not found")

	// ErrIntegrationNotActive is returned when an operation requires an
	// active Integration and it is paused or in error.
	ErrIntegrationNotActive = errors.New("store: integration not active")
)
