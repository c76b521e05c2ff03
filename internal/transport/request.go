// Package transport is the HTTP collaborator used by Http steps: it turns a
// fully-evaluated Request into a Response with its body already read.
package transport

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
)

// Request is an HTTP request after every session-dependent part (endpoint,
// headers, query, form, body) has been evaluated.
type Request struct {
	Method string
	URL    string
	Header http.Header
	Query  url.Values
	Form   url.Values
	Body   any

	// Basic credentials, used when no bearer token is set.
	username, password string
	basic              bool
}

// NewRequest creates a request for method and rawURL.
func NewRequest(method, rawURL string) *Request {
	return &Request{
		Method: strings.ToUpper(method),
		URL:    rawURL,
		Header: make(http.Header),
		Query:  make(url.Values),
		Form:   make(url.Values),
	}
}

// SetBearer sets an Authorization bearer token.
func (r *Request) SetBearer(token string) {
	r.Header.Set("Authorization", "Bearer "+token)
}

// SetBasicAuth sets HTTP basic credentials.
func (r *Request) SetBasicAuth(username, password string) {
	r.username, r.password, r.basic = username, password, true
}

// Build constructs an *http.Request. Form values take precedence over Body;
// string, []byte and io.Reader bodies are sent as is and anything else is
// encoded as JSON.
func (r *Request) Build() (*http.Request, error) {
	reqURL, err := url.Parse(r.URL)
	if err != nil {
		return nil, fmt.Errorf("invalid request URL %q: %w", r.URL, err)
	}

	if len(r.Query) > 0 {
		query := reqURL.Query()
		for key, values := range r.Query {
			for _, value := range values {
				query.Add(key, value)
			}
		}
		reqURL.RawQuery = query.Encode()
	}

	header := r.Header.Clone()
	if header == nil {
		header = make(http.Header)
	}

	var bodyReader io.Reader
	switch {
	case len(r.Form) > 0:
		bodyReader = strings.NewReader(r.Form.Encode())
		if header.Get("Content-Type") == "" {
			header.Set("Content-Type", "application/x-www-form-urlencoded")
		}
	case r.Body != nil:
		switch body := r.Body.(type) {
		case string:
			bodyReader = strings.NewReader(body)
		case []byte:
			bodyReader = bytes.NewReader(body)
		case io.Reader:
			bodyReader = body
		default:
			jsonBody, err := json.Marshal(body)
			if err != nil {
				return nil, fmt.Errorf("encode request body: %w", err)
			}
			bodyReader = bytes.NewReader(jsonBody)
			if header.Get("Content-Type") == "" {
				header.Set("Content-Type", "application/json")
			}
		}
	}

	req, err := http.NewRequest(r.Method, reqURL.String(), bodyReader)
	if err != nil {
		return nil, err
	}
	req.Header = header

	if r.basic && header.Get("Authorization") == "" {
		req.SetBasicAuth(r.username, r.password)
	}

	return req, nil
}
