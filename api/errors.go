package api

import "errors"

// Sentinel errors for the transport layer. Callers match them with
// errors.Is; the session core converts them to its "could not complete"
// return values rather than letting them propagate.
var (
	// ErrNotFound maps 404 responses.
	ErrNotFound = errors.New("resource not found")

	// ErrUnauthorized maps 401/403 responses, usually a bad or expired token.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrRemote covers every other non-2xx response.
	ErrRemote = errors.New("remote service error")

	// ErrMalformed marks a 2xx response whose body could not be decoded.
	ErrMalformed = errors.New("malformed response")
)
