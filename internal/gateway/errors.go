package gateway

import "errors"

var (
	// ErrUnauthorized is returned when the caller identity is missing or
	// not allowed to touch the requested rows.
	ErrUnauthorized = errors.New("gateway: unauthorized")
	// ErrRateLimited is returned by procedures that refuse to run again.
	ErrRateLimited = errors.New("gateway: rate limited")
	// ErrNotFound is returned when an update or lookup matched no row.
	ErrNotFound = errors.New("gateway: not found")
	// ErrInvalidRow is returned when a row read from the backend fails
	// validation at the boundary.
	ErrInvalidRow = errors.New("gateway: invalid row")
	// ErrInvalidQuery is returned for unknown tables, columns or operators.
	ErrInvalidQuery = errors.New("gateway: invalid query")
	// ErrInvalidInput is returned for writes rejected before reaching the backend.
	ErrInvalidInput = errors.New("gateway: invalid input")
	// ErrUnknownProcedure is returned by Call for names the backend does not expose.
	ErrUnknownProcedure = errors.New("gateway: unknown procedure")
)
