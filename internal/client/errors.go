package client

import (
	"errors"
	"fmt"
)

var (
	// ErrUpstreamTimeout is returned when the upstream did not answer within the
	// configured timeout and the call was aborted.
	ErrUpstreamTimeout = errors.New("upstream request timed out")

	// ErrNetworkFailure is returned for connection-level failures (DNS, refused,
	// reset, TLS) where no HTTP response was received.
	ErrNetworkFailure = errors.New("upstream connection failed")

	// ErrBodyTooLarge is returned when the upstream body exceeds upstream.max_body_bytes.
	ErrBodyTooLarge = errors.New("upstream response body too large")
)

// UpstreamError is a non-2xx answer from the upstream WMS.
type UpstreamError struct {
	StatusCode int
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("upstream HTTP error, status: %d", e.StatusCode)
}
