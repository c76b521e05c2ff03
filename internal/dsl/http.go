package dsl

import (
	"net/http"
	"net/url"
	"slices"

	"github.com/wesleyorama2/stampede/internal/session"
	"github.com/wesleyorama2/stampede/internal/transport"
)

// RetryPolicy re-issues a request while When holds, up to MaxRetries times.
// Network errors consume the same budget.
type RetryPolicy struct {
	When       func(*transport.Response) bool
	MaxRetries int
	// Cumulative records one measurement spanning every attempt.
	Cumulative bool
}

// RetryOnStatus is a retry condition matching any of the given codes.
func RetryOnStatus(codes ...int) func(*transport.Response) bool {
	return func(resp *transport.Response) bool {
		return resp != nil && slices.Contains(codes, resp.StatusCode)
	}
}

// RetryOnServerError retries 5xx responses.
func RetryOnServerError(resp *transport.Response) bool {
	return resp != nil && resp.IsServerError()
}

// HTTPStep issues one request per attempt.
type HTTPStep struct {
	meta

	Method   string
	Endpoint Func[string]
	Headers  []Func[http.Header]
	Query    []Func[url.Values]
	Form     []Func[url.Values]
	Body     Func[any]

	Retry *RetryPolicy

	// SaveTo stores the *transport.Response under this key when set.
	SaveTo string
	Scope  session.Scope

	// Authenticate adds the user's credential to the request.
	Authenticate bool
	// Unmeasured suppresses measurement emission.
	Unmeasured bool
}

// HTTP starts an Http step named name. It defaults to GET with no endpoint.
func HTTP(name string) HTTPStep {
	return HTTPStep{meta: meta{name: name}, Method: http.MethodGet}
}

func (HTTPStep) Kind() Kind { return KindHTTP }

func (h HTTPStep) withMeta(m meta) Step {
	h.meta = m
	return h
}

// Get sets method GET and a fixed endpoint.
func (h HTTPStep) Get(endpoint string) HTTPStep {
	return h.Request(http.MethodGet, Const(endpoint))
}

// Post sets method POST and a fixed endpoint.
func (h HTTPStep) Post(endpoint string) HTTPStep {
	return h.Request(http.MethodPost, Const(endpoint))
}

// Put sets method PUT and a fixed endpoint.
func (h HTTPStep) Put(endpoint string) HTTPStep {
	return h.Request(http.MethodPut, Const(endpoint))
}

// Delete sets method DELETE and a fixed endpoint.
func (h HTTPStep) Delete(endpoint string) HTTPStep {
	return h.Request(http.MethodDelete, Const(endpoint))
}

// Request sets the method and a session-dependent endpoint.
func (h HTTPStep) Request(method string, endpoint Func[string]) HTTPStep {
	h.Method = method
	h.Endpoint = endpoint
	return h
}

// EndpointFrom replaces the endpoint with a session-dependent one.
func (h HTTPStep) EndpointFrom(endpoint Func[string]) HTTPStep {
	h.Endpoint = endpoint
	return h
}

// Header adds a fixed header.
func (h HTTPStep) Header(key, value string) HTTPStep {
	return h.HeadersFrom(func(*session.Session) (http.Header, error) {
		header := make(http.Header)
		header.Set(key, value)
		return header, nil
	})
}

// HeadersFrom adds session-dependent headers.
func (h HTTPStep) HeadersFrom(fn Func[http.Header]) HTTPStep {
	h.Headers = append(slices.Clip(h.Headers), fn)
	return h
}

// QueryParam adds a fixed query parameter.
func (h HTTPStep) QueryParam(key, value string) HTTPStep {
	return h.QueryFrom(func(*session.Session) (url.Values, error) {
		return url.Values{key: {value}}, nil
	})
}

// QueryFrom adds session-dependent query parameters.
func (h HTTPStep) QueryFrom(fn Func[url.Values]) HTTPStep {
	h.Query = append(slices.Clip(h.Query), fn)
	return h
}

// FormParam adds a fixed form field.
func (h HTTPStep) FormParam(key, value string) HTTPStep {
	return h.FormFrom(func(*session.Session) (url.Values, error) {
		return url.Values{key: {value}}, nil
	})
}

// FormFrom adds session-dependent form fields.
func (h HTTPStep) FormFrom(fn Func[url.Values]) HTTPStep {
	h.Form = append(slices.Clip(h.Form), fn)
	return h
}

// WithBody sets the body supplier.
func (h HTTPStep) WithBody(fn Func[any]) HTTPStep {
	h.Body = fn
	return h
}

// JSONBody sets a fixed body encoded as JSON.
func (h HTTPStep) JSONBody(v any) HTTPStep {
	return h.WithBody(Const(v))
}

// RetryWhen installs a retry policy. A Cumulative mode set earlier is kept.
func (h HTTPStep) RetryWhen(when func(*transport.Response) bool, maxRetries int) HTTPStep {
	policy := RetryPolicy{}
	if h.Retry != nil {
		policy = *h.Retry
	}
	policy.When = when
	policy.MaxRetries = maxRetries
	h.Retry = &policy
	return h
}

// Cumulative switches the retry policy to a single spanning measurement.
// It installs a policy that never retries on responses if none is set.
func (h HTTPStep) Cumulative() HTTPStep {
	policy := RetryPolicy{}
	if h.Retry != nil {
		policy = *h.Retry
	}
	policy.Cumulative = true
	h.Retry = &policy
	return h
}

// SaveAs stores the response under key in Ephemeral scope.
func (h HTTPStep) SaveAs(key string) HTTPStep {
	return h.SaveIn(session.ScopeEphemeral, key)
}

// SaveIn stores the response under key in scope.
func (h HTTPStep) SaveIn(scope session.Scope, key string) HTTPStep {
	h.SaveTo = key
	h.Scope = scope
	return h
}

// Auth adds the user's bearer token, or basic credentials when the user
// has no token.
func (h HTTPStep) Auth() HTTPStep {
	h.Authenticate = true
	return h
}

// NoMeasurement suppresses measurement emission for the step.
func (h HTTPStep) NoMeasurement() HTTPStep {
	h.Unmeasured = true
	return h
}
