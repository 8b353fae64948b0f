package resilient

import (
	"encoding/json"
	"net/http"
)

// Response is a fully read HTTP response.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// JSON decodes the body into v.
func (r *Response) JSON(v any) error {
	return json.Unmarshal(r.Body, v)
}

// RaiseForStatus returns a *StatusError for 4xx and 5xx responses.
func (r *Response) RaiseForStatus() error {
	if r.StatusCode >= 400 {
		return &StatusError{Response: r}
	}
	return nil
}
