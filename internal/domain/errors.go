package domain

import "go.trai.ch/zerr"

var (
	// ErrNotFound is returned when a session, cache entry, order, or FAQ
	// record is absent or has expired. Recoverable: callers decide the
	// fallback.
	ErrNotFound = zerr.New("not found")

	// ErrUnavailable is returned when the backing key/value store is
	// unreachable or an operation timed out. Never conflated with
	// ErrNotFound: absence is an answer, unavailability is not.
	ErrUnavailable = zerr.New("store unavailable")

	// ErrInvalidInput is returned for blank or otherwise unusable input,
	// before any state mutation.
	ErrInvalidInput = zerr.New("invalid input")

	// ErrUpstream is returned when the external answer service fails.
	// The orchestrator converts it into a canned apology reply.
	ErrUpstream = zerr.New("answer service failed")
)
