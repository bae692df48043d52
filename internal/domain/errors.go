package domain

import (
	"errors"
	"fmt"
)

var (
	ErrUpstreamUnavailable = errors.New("upstream unavailable")
	ErrUnrecognizedShape   = errors.New("unrecognized response shape")
	ErrMalformedAmount     = errors.New("malformed amount")
	ErrPersistenceCorrupt  = errors.New("persisted snapshot is corrupt")
	ErrInvalidEntityID     = errors.New("invalid entity identifier")
	ErrSnapshotNotFound    = errors.New("snapshot not found")
)

// UpstreamUnavailableError is returned when every transport strategy failed.
// It matches ErrUpstreamUnavailable and unwraps to the last error observed.
type UpstreamUnavailableError struct {
	Attempts int
	Last     error
}

func (e *UpstreamUnavailableError) Error() string {
	return fmt.Sprintf("%s after %d strategies: %v", ErrUpstreamUnavailable, e.Attempts, e.Last)
}

func (e *UpstreamUnavailableError) Is(target error) bool {
	return target == ErrUpstreamUnavailable
}

func (e *UpstreamUnavailableError) Unwrap() error {
	return e.Last
}

// HTTPStatusError reports a non-2xx upstream response.
type HTTPStatusError struct {
	StatusCode int
	Body       string
}

func (e *HTTPStatusError) Error() string {
	return fmt.Sprintf("HTTP %d: %s", e.StatusCode, e.Body)
}
