package archive

import (
	"errors"
	"fmt"
)

var (
	// ErrUpstreamUnavailable wraps transport failures: refused connections,
	// DNS errors, timeouts.
	ErrUpstreamUnavailable = errors.New("archive unavailable")

	// ErrNotFound is returned by LookupAvailability when the archive holds no
	// capture of the URL.
	ErrNotFound = errors.New("no archived snapshot")

	// ErrMalformedAnswer is returned when the availability endpoint answers
	// with something that is not the expected JSON document.
	ErrMalformedAnswer = errors.New("malformed availability answer")
)

// UpstreamError is an archive response outside the statuses the proxy knows
// how to relay (any 5xx).
type UpstreamError struct {
	StatusCode int
	URL        string
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("archive returned HTTP %d for %s", e.StatusCode, e.URL)
}

type unavailableError struct {
	url string
	err error
}

func (e *unavailableError) Error() string {
	return fmt.Sprintf("%v: %s: %v", ErrUpstreamUnavailable, e.url, e.err)
}

func (e *unavailableError) Unwrap() []error { return []error{ErrUpstreamUnavailable, e.err} }
