package minireq

import (
	"encoding/json"

	"github.com/arvidnet/minireq/pkg/errors"
)

// WithJSON marshals v, sets the body to the result, and sets Content-Type
// to application/json unless the caller already set one. A marshal failure
// is stuck on the Request and surfaced by Send/SendLazy.
func (r *Request) WithJSON(v interface{}) *Request {
	if r.err != nil {
		return r
	}
	body, err := json.Marshal(v)
	if err != nil {
		r.err = errors.NewOtherError("encoding request body as JSON: " + err.Error())
		return r
	}
	r.body = body
	r.hasBody = true
	if !r.headers.Has("Content-Type") {
		r.headers.Set("Content-Type", "application/json")
	}
	return r
}

// JSON unmarshals the eager response's body into v.
func (resp *Response) JSON(v interface{}) error {
	if err := json.Unmarshal(resp.Body, v); err != nil {
		return errors.NewOtherError("decoding response body as JSON: " + err.Error())
	}
	return nil
}
