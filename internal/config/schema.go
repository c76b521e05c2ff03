// Package config provides configuration parsing and validation for a load run.
package config

import (
	"time"
)

// Config is the root configuration for a load run.
//
// Example YAML:
//
//	name: "checkout"
//	duration: 5m
//	maxConcurrency: 200
//	rampUp:
//	  startRps: 1
//	  targetRps: 50
//	  duration: 1m
//	users:
//	  count: 20
//	  file: users.csv
//	variables:
//	  baseUrl: "https://shop.example.com"
//	scenarios:
//	  - name: browse
//	    steps:
//	      - http:
//	          name: list
//	          url: "{{baseUrl}}/items"
//	          saveTo: items
//	      - wait: 200ms
type Config struct {
	// Name of the run (for reporting)
	Name string `json:"name" yaml:"name"`

	// Description of the run (optional)
	Description string `json:"description,omitempty" yaml:"description,omitempty"`

	// Duration is how long admission runs before draining
	Duration Duration `json:"duration" yaml:"duration"`

	// MaxConcurrency bounds the number of in-flight cycles
	MaxConcurrency int `json:"maxConcurrency,omitempty" yaml:"maxConcurrency,omitempty"`

	// GracefulStop is how long in-flight cycles may run after admission stops
	GracefulStop Duration `json:"gracefulStop,omitempty" yaml:"gracefulStop,omitempty"`

	// RampUp is the admission rate profile
	RampUp RampConfig `json:"rampUp" yaml:"rampUp"`

	// Users configures the virtual-user pool
	Users UsersConfig `json:"users" yaml:"users"`

	// HTTP configures the shared HTTP client
	HTTP HTTPConfig `json:"http,omitempty" yaml:"http,omitempty"`

	// Reporting configures measurement sinks
	Reporting ReportingConfig `json:"reporting,omitempty" yaml:"reporting,omitempty"`

	// Variables are resolved in {{name}} placeholders of declarative scenarios
	Variables map[string]string `json:"variables,omitempty" yaml:"variables,omitempty"`

	// Scenarios are declarative step trees registered under their names
	Scenarios []ScenarioConfig `json:"scenarios,omitempty" yaml:"scenarios,omitempty"`

	// Run names the scenarios to drive; empty runs every registered scenario
	Run []string `json:"run,omitempty" yaml:"run,omitempty"`
}

// RampConfig describes a linear admission-rate ramp.
type RampConfig struct {
	StartRPS  float64  `json:"startRps" yaml:"startRps"`
	TargetRPS float64  `json:"targetRps" yaml:"targetRps"`
	Duration  Duration `json:"duration,omitempty" yaml:"duration,omitempty"`
}

// UsersConfig describes where virtual users come from and how they log in.
type UsersConfig struct {
	// Count is the number of user slots the run needs
	Count int `json:"count" yaml:"count"`

	// Region restricts leased users to one region (optional)
	Region string `json:"region,omitempty" yaml:"region,omitempty"`

	// File is a CSV of username,password[,id[,region]] rows
	File string `json:"file,omitempty" yaml:"file,omitempty"`

	// Inline users, appended after those read from File
	Inline []UserConfig `json:"inline,omitempty" yaml:"inline,omitempty"`

	// OAuth enables the password grant for every user (optional)
	OAuth *OAuthConfig `json:"oauth,omitempty" yaml:"oauth,omitempty"`

	// Parallelism bounds concurrent logins during warm-up
	Parallelism int `json:"parallelism,omitempty" yaml:"parallelism,omitempty"`
}

// UserConfig is a single inline user.
type UserConfig struct {
	Username string `json:"username" yaml:"username"`
	Password string `json:"password,omitempty" yaml:"password,omitempty"`
	ID       string `json:"id,omitempty" yaml:"id,omitempty"`
	Region   string `json:"region,omitempty" yaml:"region,omitempty"`
}

// OAuthConfig configures the OAuth2 password grant.
type OAuthConfig struct {
	TokenURL     string   `json:"tokenUrl" yaml:"tokenUrl"`
	ClientID     string   `json:"clientId" yaml:"clientId"`
	ClientSecret string   `json:"clientSecret,omitempty" yaml:"clientSecret,omitempty"`
	Scopes       []string `json:"scopes,omitempty" yaml:"scopes,omitempty"`
}

// HTTPConfig contains HTTP client settings.
type HTTPConfig struct {
	// Timeout is the per-request timeout
	Timeout Duration `json:"timeout,omitempty" yaml:"timeout,omitempty"`

	// MaxIdleConnsPerHost limits idle connections per host
	MaxIdleConnsPerHost int `json:"maxIdleConnsPerHost,omitempty" yaml:"maxIdleConnsPerHost,omitempty"`

	// MaxConnsPerHost limits connections per host
	MaxConnsPerHost int `json:"maxConnsPerHost,omitempty" yaml:"maxConnsPerHost,omitempty"`

	// InsecureSkipVerify skips TLS certificate verification
	InsecureSkipVerify bool `json:"insecureSkipVerify,omitempty" yaml:"insecureSkipVerify,omitempty"`

	// UserAgent is the default User-Agent header
	UserAgent string `json:"userAgent,omitempty" yaml:"userAgent,omitempty"`

	// Headers are default headers applied to declarative http steps
	Headers map[string]string `json:"headers,omitempty" yaml:"headers,omitempty"`
}

// ReportingConfig selects and configures measurement sinks.
type ReportingConfig struct {
	// Interval between periodic console snapshots
	Interval Duration `json:"interval,omitempty" yaml:"interval,omitempty"`

	// LogFile receives every measurement (optional)
	LogFile string `json:"logFile,omitempty" yaml:"logFile,omitempty"`

	// Format of LogFile: "default" or "gatling"
	Format string `json:"format,omitempty" yaml:"format,omitempty"`

	// HTMLFile receives a standalone report page at the end of the run (optional)
	HTMLFile string `json:"htmlFile,omitempty" yaml:"htmlFile,omitempty"`

	// MetricsAddr serves Prometheus metrics when set, e.g. ":9090"
	MetricsAddr string `json:"metricsAddr,omitempty" yaml:"metricsAddr,omitempty"`

	// Quiet suppresses periodic console snapshots
	Quiet bool `json:"quiet,omitempty" yaml:"quiet,omitempty"`
}

// ScenarioConfig is a declarative step tree.
type ScenarioConfig struct {
	Name        string       `json:"name" yaml:"name"`
	Description string       `json:"description,omitempty" yaml:"description,omitempty"`
	Steps       []StepConfig `json:"steps" yaml:"steps"`
}

// StepConfig holds exactly one step kind.
type StepConfig struct {
	HTTP    *HTTPStepConfig    `json:"http,omitempty" yaml:"http,omitempty"`
	Wait    *Duration          `json:"wait,omitempty" yaml:"wait,omitempty"`
	Set     *SetStepConfig     `json:"set,omitempty" yaml:"set,omitempty"`
	Repeat  *RepeatStepConfig  `json:"repeat,omitempty" yaml:"repeat,omitempty"`
	Ensure  *EnsureStepConfig  `json:"ensure,omitempty" yaml:"ensure,omitempty"`
	ForEach *ForEachStepConfig `json:"foreach,omitempty" yaml:"foreach,omitempty"`
}

// Kinds returns the names of the step kinds set on s.
func (s StepConfig) Kinds() []string {
	var kinds []string
	if s.HTTP != nil {
		kinds = append(kinds, "http")
	}
	if s.Wait != nil {
		kinds = append(kinds, "wait")
	}
	if s.Set != nil {
		kinds = append(kinds, "set")
	}
	if s.Repeat != nil {
		kinds = append(kinds, "repeat")
	}
	if s.Ensure != nil {
		kinds = append(kinds, "ensure")
	}
	if s.ForEach != nil {
		kinds = append(kinds, "foreach")
	}
	return kinds
}

// HTTPStepConfig defines a single HTTP request.
type HTTPStepConfig struct {
	// Name for this request (used in measurements)
	Name string `json:"name,omitempty" yaml:"name,omitempty"`

	// Method is the HTTP method (GET, POST, PUT, DELETE, etc.)
	Method string `json:"method,omitempty" yaml:"method,omitempty"`

	// URL is the request URL (supports {{var}} placeholders)
	URL string `json:"url" yaml:"url"`

	Headers map[string]string `json:"headers,omitempty" yaml:"headers,omitempty"`
	Query   map[string]string `json:"query,omitempty" yaml:"query,omitempty"`
	Form    map[string]string `json:"form,omitempty" yaml:"form,omitempty"`

	// Body is the raw request body (supports {{var}} placeholders)
	Body string `json:"body,omitempty" yaml:"body,omitempty"`

	// Auth adds the user's credential to the request
	Auth bool `json:"auth,omitempty" yaml:"auth,omitempty"`

	// SaveTo stores the response in the session
	SaveTo string `json:"saveTo,omitempty" yaml:"saveTo,omitempty"`
	Scope  string `json:"scope,omitempty" yaml:"scope,omitempty"`

	// Extract defines variable extraction from the response
	Extract []ExtractConfig `json:"extract,omitempty" yaml:"extract,omitempty"`

	Retry *RetryConfig `json:"retry,omitempty" yaml:"retry,omitempty"`

	// Unmeasured disables measurement for this request
	Unmeasured bool `json:"unmeasured,omitempty" yaml:"unmeasured,omitempty"`
}

// ExtractConfig defines how to extract a variable from a response.
type ExtractConfig struct {
	// Name of the session key to store
	Name string `json:"name" yaml:"name"`

	// Source is where to extract from: "body" (default), "header", "status"
	Source string `json:"source,omitempty" yaml:"source,omitempty"`

	// Path is the header name, or JSONPath for body
	Path string `json:"path,omitempty" yaml:"path,omitempty"`

	Scope string `json:"scope,omitempty" yaml:"scope,omitempty"`
}

// RetryConfig defines when a request is re-issued.
type RetryConfig struct {
	// Statuses that trigger a retry
	Statuses []int `json:"statuses,omitempty" yaml:"statuses,omitempty"`

	// ServerErrors retries on any 5xx status
	ServerErrors bool `json:"serverErrors,omitempty" yaml:"serverErrors,omitempty"`

	// Max is the number of retries after the first attempt
	Max int `json:"max" yaml:"max"`

	// Cumulative records one measurement spanning every attempt
	Cumulative bool `json:"cumulative,omitempty" yaml:"cumulative,omitempty"`
}

// SetStepConfig writes a value into the session.
type SetStepConfig struct {
	Key   string `json:"key" yaml:"key"`
	Value string `json:"value" yaml:"value"`
	Scope string `json:"scope,omitempty" yaml:"scope,omitempty"`
}

// RepeatStepConfig runs its steps Count times.
type RepeatStepConfig struct {
	Count int          `json:"count" yaml:"count"`
	Steps []StepConfig `json:"steps" yaml:"steps"`
}

// EnsureStepConfig aborts the cycle when a stored response does not match.
//
// Key names a stored response. Every configured check must hold: Status
// compares the response status, Path must resolve and, when Equals is set,
// render to that value, and Schema is a JSON Schema the body must satisfy.
type EnsureStepConfig struct {
	Key    string `json:"key" yaml:"key"`
	Status int    `json:"status,omitempty" yaml:"status,omitempty"`
	Path   string `json:"path,omitempty" yaml:"path,omitempty"`
	Equals string `json:"equals,omitempty" yaml:"equals,omitempty"`
	Schema string `json:"schema,omitempty" yaml:"schema,omitempty"`
	Cause  string `json:"cause,omitempty" yaml:"cause,omitempty"`
}

// ForEachStepConfig runs its steps once per element of a JSON array.
type ForEachStepConfig struct {
	// In is the session key holding a stored response or JSON document
	In string `json:"in" yaml:"in"`

	// Path selects the array inside the document (default "$")
	Path string `json:"path,omitempty" yaml:"path,omitempty"`

	// As is the ephemeral key each element is stored under
	As string `json:"as" yaml:"as"`

	Steps []StepConfig `json:"steps" yaml:"steps"`

	// CollectTo stores each iteration's last result, in element order
	CollectTo string `json:"collectTo,omitempty" yaml:"collectTo,omitempty"`
}

// Duration is a time.Duration that can be unmarshaled from JSON/YAML strings.
type Duration time.Duration

// GetDuration returns the duration or a default if empty.
func (d Duration) GetDuration(defaultValue time.Duration) time.Duration {
	if d == 0 {
		return defaultValue
	}
	return time.Duration(d)
}

// MarshalJSON implements json.Marshaler.
func (d Duration) MarshalJSON() ([]byte, error) {
	return []byte(`"` + time.Duration(d).String() + `"`), nil
}

// UnmarshalJSON implements json.Unmarshaler.
func (d *Duration) UnmarshalJSON(b []byte) error {
	s := string(b)
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		s = s[1 : len(s)-1]
	}
	if s == "null" {
		s = ""
	}

	dur, err := ParseDurationString(s)
	if err != nil {
		return err
	}
	*d = Duration(dur)
	return nil
}

// MarshalYAML implements yaml.Marshaler.
func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var s string
	if err := unmarshal(&s); err != nil {
		return err
	}

	dur, err := ParseDurationString(s)
	if err != nil {
		return err
	}
	*d = Duration(dur)
	return nil
}

// String returns the duration as a string.
func (d Duration) String() string {
	return time.Duration(d).String()
}
