package config

import (
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
)

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("validation error on field '%s': %s", e.Field, e.Message)
	}
	return fmt.Sprintf("validation error: %s", e.Message)
}

// ValidationErrors is a collection of validation errors.
type ValidationErrors struct {
	Errors []*ValidationError
}

func (e *ValidationErrors) Error() string {
	if len(e.Errors) == 0 {
		return "no validation errors"
	}
	if len(e.Errors) == 1 {
		return e.Errors[0].Error()
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("%d validation errors:\n", len(e.Errors)))
	for i, err := range e.Errors {
		sb.WriteString(fmt.Sprintf("  %d. %s\n", i+1, err.Error()))
	}
	return sb.String()
}

// Add adds an error to the collection.
func (e *ValidationErrors) Add(field, message string) {
	e.Errors = append(e.Errors, &ValidationError{Field: field, Message: message})
}

// HasErrors returns true if there are any errors.
func (e *ValidationErrors) HasErrors() bool {
	return len(e.Errors) > 0
}

var validMethods = map[string]bool{
	"GET": true, "POST": true, "PUT": true, "DELETE": true,
	"PATCH": true, "HEAD": true, "OPTIONS": true,
}

var validScopes = map[string]bool{
	"": true, "ephemeral": true, "user": true, "simulation": true, "global": true,
}

// Validate validates the entire run configuration.
//
// Returns nil if valid, or a ValidationErrors containing all validation errors.
func (c *Config) Validate() error {
	errs := &ValidationErrors{}

	if c.Duration <= 0 {
		errs.Add("duration", "duration must be greater than 0")
	}
	if c.MaxConcurrency <= 0 {
		errs.Add("maxConcurrency", "maxConcurrency must be greater than 0")
	}
	if c.GracefulStop < 0 {
		errs.Add("gracefulStop", "gracefulStop cannot be negative")
	}

	validateRamp(&c.RampUp, errs)
	validateUsers(&c.Users, errs)
	validateHTTP(&c.HTTP, errs)
	validateReporting(&c.Reporting, errs)

	seen := make(map[string]bool, len(c.Scenarios))
	for i, sc := range c.Scenarios {
		prefix := fmt.Sprintf("scenarios[%d]", i)
		if sc.Name == "" {
			errs.Add(prefix+".name", "scenario name is required")
		} else if seen[sc.Name] {
			errs.Add(prefix+".name", fmt.Sprintf("duplicate scenario name: %s", sc.Name))
		}
		seen[sc.Name] = true

		if len(sc.Steps) == 0 {
			errs.Add(prefix+".steps", "at least one step is required")
		}
		validateSteps(prefix+".steps", sc.Steps, errs)
	}

	for i, name := range c.Run {
		if strings.TrimSpace(name) == "" {
			errs.Add(fmt.Sprintf("run[%d]", i), "scenario name cannot be empty")
		}
	}

	if errs.HasErrors() {
		return errs
	}
	return nil
}

func validateRamp(r *RampConfig, errs *ValidationErrors) {
	if r.TargetRPS <= 0 {
		errs.Add("rampUp.targetRps", "targetRps must be greater than 0")
	}
	if r.StartRPS < 0 {
		errs.Add("rampUp.startRps", "startRps cannot be negative")
	}
	if r.Duration < 0 {
		errs.Add("rampUp.duration", "duration cannot be negative")
	}
}

func validateUsers(u *UsersConfig, errs *ValidationErrors) {
	if u.Count <= 0 {
		errs.Add("users.count", "count must be greater than 0")
	}
	if u.Parallelism < 0 {
		errs.Add("users.parallelism", "parallelism cannot be negative")
	}
	for i, in := range u.Inline {
		if in.Username == "" {
			errs.Add(fmt.Sprintf("users.inline[%d].username", i), "username is required")
		}
	}

	if u.OAuth == nil {
		return
	}
	if u.OAuth.ClientID == "" {
		errs.Add("users.oauth.clientId", "clientId is required")
	}
	if u.OAuth.TokenURL == "" {
		errs.Add("users.oauth.tokenUrl", "tokenUrl is required")
	} else if parsed, err := url.Parse(u.OAuth.TokenURL); err != nil || parsed.Scheme == "" || parsed.Host == "" {
		errs.Add("users.oauth.tokenUrl", fmt.Sprintf("invalid URL: %s", u.OAuth.TokenURL))
	}
}

func validateHTTP(h *HTTPConfig, errs *ValidationErrors) {
	if h.Timeout < 0 {
		errs.Add("http.timeout", "timeout cannot be negative")
	}
	if h.MaxIdleConnsPerHost < 0 {
		errs.Add("http.maxIdleConnsPerHost", "maxIdleConnsPerHost cannot be negative")
	}
	if h.MaxConnsPerHost < 0 {
		errs.Add("http.maxConnsPerHost", "maxConnsPerHost cannot be negative")
	}
}

func validateReporting(r *ReportingConfig, errs *ValidationErrors) {
	if r.Interval < 0 {
		errs.Add("reporting.interval", "interval cannot be negative")
	}
	switch r.Format {
	case "", "default", "gatling":
	default:
		errs.Add("reporting.format", fmt.Sprintf("unknown log format: %s", r.Format))
	}
}

func validateSteps(prefix string, steps []StepConfig, errs *ValidationErrors) {
	for i, st := range steps {
		p := fmt.Sprintf("%s[%d]", prefix, i)

		kinds := st.Kinds()
		switch len(kinds) {
		case 0:
			errs.Add(p, "step kind is required (http, wait, set, repeat, ensure, foreach)")
			continue
		case 1:
		default:
			errs.Add(p, fmt.Sprintf("step has more than one kind: %s", strings.Join(kinds, ", ")))
			continue
		}

		switch {
		case st.HTTP != nil:
			validateHTTPStep(p+".http", st.HTTP, errs)
		case st.Wait != nil:
			if *st.Wait < 0 {
				errs.Add(p+".wait", "wait cannot be negative")
			}
		case st.Set != nil:
			if st.Set.Key == "" {
				errs.Add(p+".set.key", "key is required")
			}
			validateScope(p+".set.scope", st.Set.Scope, errs)
		case st.Repeat != nil:
			if st.Repeat.Count <= 0 {
				errs.Add(p+".repeat.count", "count must be greater than 0")
			}
			if len(st.Repeat.Steps) == 0 {
				errs.Add(p+".repeat.steps", "at least one step is required")
			}
			validateSteps(p+".repeat.steps", st.Repeat.Steps, errs)
		case st.Ensure != nil:
			validateEnsure(p+".ensure", st.Ensure, errs)
		case st.ForEach != nil:
			fe := st.ForEach
			if fe.In == "" {
				errs.Add(p+".foreach.in", "in is required")
			}
			if fe.As == "" {
				errs.Add(p+".foreach.as", "as is required")
			}
			if len(fe.Steps) == 0 {
				errs.Add(p+".foreach.steps", "at least one step is required")
			}
			validateSteps(p+".foreach.steps", fe.Steps, errs)
		}
	}
}

func validateHTTPStep(prefix string, h *HTTPStepConfig, errs *ValidationErrors) {
	method := strings.ToUpper(h.Method)
	if method != "" && !validMethods[method] {
		errs.Add(prefix+".method", fmt.Sprintf("invalid HTTP method: %s", h.Method))
	}

	if h.URL == "" {
		errs.Add(prefix+".url", "url is required")
	} else {
		// Placeholders are checked with a stand-in host.
		check := h.URL
		for _, name := range Placeholders(h.URL) {
			check = strings.ReplaceAll(check, "{{"+name+"}}", "http://example.com")
		}
		if _, err := url.Parse(check); err != nil {
			errs.Add(prefix+".url", fmt.Sprintf("invalid URL: %v", err))
		}
	}

	validateScope(prefix+".scope", h.Scope, errs)
	if h.Body != "" && len(h.Form) > 0 {
		errs.Add(prefix+".body", "body and form are mutually exclusive")
	}

	for i, ex := range h.Extract {
		p := fmt.Sprintf("%s.extract[%d]", prefix, i)
		if ex.Name == "" {
			errs.Add(p+".name", "name is required")
		}
		switch ex.Source {
		case "", "body":
			if ex.Path == "" {
				errs.Add(p+".path", "path is required for body extraction")
			}
		case "header":
			if ex.Path == "" {
				errs.Add(p+".path", "header name is required")
			}
		case "status":
		default:
			errs.Add(p+".source", fmt.Sprintf("invalid extract source: %s", ex.Source))
		}
		validateScope(p+".scope", ex.Scope, errs)
	}

	if h.Retry != nil {
		if h.Retry.Max < 0 {
			errs.Add(prefix+".retry.max", "max cannot be negative")
		}
		if len(h.Retry.Statuses) == 0 && !h.Retry.ServerErrors {
			errs.Add(prefix+".retry", "statuses or serverErrors is required")
		}
		for _, code := range h.Retry.Statuses {
			if code < 100 || code > 599 {
				errs.Add(prefix+".retry.statuses", fmt.Sprintf("invalid status code: %d", code))
			}
		}
	}
}

func validateEnsure(prefix string, e *EnsureStepConfig, errs *ValidationErrors) {
	if e.Key == "" {
		errs.Add(prefix+".key", "key is required")
	}
	if e.Status == 0 && e.Path == "" && e.Schema == "" {
		errs.Add(prefix, "at least one of status, path or schema is required")
	}
	if e.Equals != "" && e.Path == "" {
		errs.Add(prefix+".equals", "equals requires path")
	}
	if e.Schema != "" && !json.Valid([]byte(e.Schema)) {
		errs.Add(prefix+".schema", "schema is not valid JSON")
	}
}

func validateScope(field, scope string, errs *ValidationErrors) {
	if !validScopes[strings.ToLower(scope)] {
		errs.Add(field, fmt.Sprintf("invalid scope: %s", scope))
	}
}
