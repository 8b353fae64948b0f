package resilient

import (
	"errors"
	"fmt"
)

var (
	// ErrRateLimited is returned by an attempt rejected by the client's own
	// rate limiter. It never reaches the network.
	ErrRateLimited = errors.New("resilient: rate limited")
	// ErrEmptyResponse marks an attempt that produced no usable response.
	ErrEmptyResponse = errors.New("resilient: empty response")
)

// StatusError is returned for responses with a 4xx or 5xx status.
type StatusError struct {
	Response *Response
}

func (e *StatusError) Error() string {
	body := e.Response.Body
	if len(body) > 512 {
		body = body[:512]
	}
	return fmt.Sprintf("http: unexpected status %d: %s", e.Response.StatusCode, string(body))
}

// StatusCode extracts the HTTP status from err, or 0 if err is not a StatusError.
func StatusCode(err error) int {
	var se *StatusError
	if errors.As(err, &se) {
		return se.Response.StatusCode
	}
	return 0
}

// IsClientError reports whether err carries a 4xx status.
func IsClientError(err error) bool {
	code := StatusCode(err)
	return code >= 400 && code < 500
}
