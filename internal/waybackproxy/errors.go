package waybackproxy

import (
	"errors"
	"net/http"

	"waybackproxy/internal/archive"
	"waybackproxy/internal/snapshot"
)

var (
	errUnsupportedMethod = errors.New("not implemented")
	errUnsupportedScheme = errors.New("only http:// URLs are supported")
	errMalformedRequest  = errors.New("malformed request")
)

// statusFor maps a handler error to the status and plain-text message
// written to the client.
func statusFor(err error) (int, string) {
	var upErr *archive.UpstreamError
	switch {
	case errors.Is(err, errUnsupportedMethod), errors.Is(err, errUnsupportedScheme):
		return http.StatusNotImplemented, err.Error()
	case errors.Is(err, errMalformedRequest):
		return http.StatusBadRequest, err.Error()
	case errors.Is(err, snapshot.ErrToleranceViolation):
		return http.StatusPreconditionFailed, err.Error()
	case errors.Is(err, snapshot.ErrNotFound), errors.Is(err, archive.ErrNotFound):
		return http.StatusNotFound, "not archived: " + err.Error()
	case errors.As(err, &upErr):
		return http.StatusBadGateway, err.Error()
	case errors.Is(err, archive.ErrUpstreamUnavailable):
		return http.StatusBadGateway, "archive unavailable"
	}
	return http.StatusBadGateway, err.Error()
}

// writeError writes err as a plain-text response.
func writeError(w http.ResponseWriter, err error) int {
	status, msg := statusFor(err)
	http.Error(w, msg, status)
	return status
}
