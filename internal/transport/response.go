package transport

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/tidwall/gjson"

	"github.com/wesleyorama2/stampede/internal/jsonpath"
)

// Timing holds the timing of one exchange.
type Timing struct {
	Start           time.Time
	TimeToFirstByte time.Duration
	Total           time.Duration
}

// Response is a received HTTP response with its body fully read.
type Response struct {
	StatusCode int
	Header     http.Header
	Timing     Timing

	body []byte
}

// NewResponse builds a response from its parts. Stub clients use it.
func NewResponse(status int, header http.Header, body []byte) *Response {
	if header == nil {
		header = make(http.Header)
	}
	return &Response{StatusCode: status, Header: header, body: body}
}

// Bytes returns the raw body.
func (r *Response) Bytes() []byte {
	return r.body
}

// String returns the body as a string.
func (r *Response) String() string {
	return string(r.body)
}

// Decode unmarshals the body into v.
func (r *Response) Decode(v any) error {
	return json.Unmarshal(r.body, v)
}

// JSON returns the value at a JSONPath or gjson path in the body.
func (r *Response) JSON(path string) gjson.Result {
	result, err := jsonpath.Get(r.body, path)
	if err != nil {
		return gjson.Result{}
	}
	return result
}

// IsSuccess returns true for 2xx responses.
func (r *Response) IsSuccess() bool {
	return r.StatusCode >= 200 && r.StatusCode < 300
}

// IsClientError returns true for 4xx responses.
func (r *Response) IsClientError() bool {
	return r.StatusCode >= 400 && r.StatusCode < 500
}

// IsServerError returns true for 5xx responses.
func (r *Response) IsServerError() bool {
	return r.StatusCode >= 500 && r.StatusCode < 600
}
