package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

const sampleYAML = `
name: checkout
duration: 2m
maxConcurrency: 50
rampUp:
  startRps: 1
  targetRps: 20
  duration: 30s
users:
  count: 2
  inline:
    - username: ada
      password: secret
    - username: bob
variables:
  baseUrl: http://localhost:8080
scenarios:
  - name: browse
    steps:
      - http:
          url: "{{baseUrl}}/items"
          saveTo: items
          retry:
            statuses: [503]
            max: 2
            cumulative: true
      - wait: 100ms
      - foreach:
          in: items
          path: $.items
          as: item
          steps:
            - http:
                method: post
                url: "{{baseUrl}}/items/{{item}}"
      - ensure:
          key: items
          status: 200
          cause: listing failed
`

func TestParseDurationString(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected time.Duration
		wantErr  bool
	}{
		{name: "standard seconds", input: "30s", expected: 30 * time.Second},
		{name: "milliseconds", input: "500ms", expected: 500 * time.Millisecond},
		{name: "combined duration", input: "1h30m", expected: 90 * time.Minute},
		{name: "integer as seconds", input: "30", expected: 30 * time.Second},
		{name: "empty string", input: "", expected: 0},
		{name: "invalid format", input: "abc", wantErr: true},
		{name: "trailing garbage", input: "30x", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseDurationString(tt.input)
			if tt.wantErr {
				if err == nil {
					t.Errorf("ParseDurationString(%q) expected error", tt.input)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseDurationString(%q) unexpected error: %v", tt.input, err)
			}
			if got != tt.expected {
				t.Errorf("ParseDurationString(%q) = %v, want %v", tt.input, got, tt.expected)
			}
		})
	}
}

func TestParseConfig_YAML(t *testing.T) {
	cfg, err := ParseConfig([]byte(sampleYAML), "run.yaml")
	if err != nil {
		t.Fatalf("ParseConfig failed: %v", err)
	}

	if cfg.Name != "checkout" {
		t.Errorf("Name = %q, want checkout", cfg.Name)
	}
	if time.Duration(cfg.Duration) != 2*time.Minute {
		t.Errorf("Duration = %v, want 2m", cfg.Duration)
	}
	if cfg.RampUp.TargetRPS != 20 || time.Duration(cfg.RampUp.Duration) != 30*time.Second {
		t.Errorf("RampUp = %+v", cfg.RampUp)
	}
	if len(cfg.Users.Inline) != 2 || cfg.Users.Inline[0].Password != "secret" {
		t.Errorf("Users.Inline = %+v", cfg.Users.Inline)
	}
	if len(cfg.Scenarios) != 1 {
		t.Fatalf("expected 1 scenario, got %d", len(cfg.Scenarios))
	}

	steps := cfg.Scenarios[0].Steps
	if len(steps) != 4 {
		t.Fatalf("expected 4 steps, got %d", len(steps))
	}
	if steps[0].HTTP == nil || steps[0].HTTP.Retry == nil || !steps[0].HTTP.Retry.Cumulative {
		t.Errorf("step 0 = %+v", steps[0])
	}
	if steps[1].Wait == nil || time.Duration(*steps[1].Wait) != 100*time.Millisecond {
		t.Errorf("step 1 wait = %v", steps[1].Wait)
	}
	if steps[2].ForEach == nil || len(steps[2].ForEach.Steps) != 1 {
		t.Errorf("step 2 = %+v", steps[2])
	}
	if steps[3].Ensure == nil || steps[3].Ensure.Status != 200 {
		t.Errorf("step 3 = %+v", steps[3])
	}
}

func TestParseConfig_JSON(t *testing.T) {
	data := `{"name":"j","duration":"10s","rampUp":{"targetRps":5},"users":{"count":1},
		"scenarios":[{"name":"s","steps":[{"http":{"url":"http://x/"}},{"wait":"1s"}]}]}`

	cfg, err := ParseConfig([]byte(data), "run.json")
	if err != nil {
		t.Fatalf("ParseConfig failed: %v", err)
	}
	if time.Duration(cfg.Duration) != 10*time.Second {
		t.Errorf("Duration = %v", cfg.Duration)
	}
	if cfg.Scenarios[0].Steps[1].Wait == nil {
		t.Error("expected wait step")
	}
}

func TestParseConfig_Invalid(t *testing.T) {
	if _, err := ParseConfig([]byte("duration: [nope"), "bad.yaml"); err == nil {
		t.Error("expected YAML error")
	}
	if _, err := ParseConfig([]byte("{"), "bad.json"); err == nil {
		t.Error("expected JSON error")
	}
	if _, err := ParseConfig([]byte("duration: forever"), "bad.yaml"); err == nil {
		t.Error("expected duration error")
	}
}

func TestLoadConfig(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "run.yml")
	if err := os.WriteFile(path, []byte(sampleYAML), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	if cfg.Name != "checkout" {
		t.Errorf("Name = %q", cfg.Name)
	}

	if _, err := LoadConfig(filepath.Join(dir, "missing.yaml")); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestApplyDefaults(t *testing.T) {
	cfg, err := ParseConfig([]byte(sampleYAML), "")
	if err != nil {
		t.Fatal(err)
	}
	cfg.RampUp.StartRPS = 0
	ApplyDefaults(cfg)

	if cfg.RampUp.StartRPS != 20 {
		t.Errorf("StartRPS = %v, want target rate", cfg.RampUp.StartRPS)
	}
	if cfg.GracefulStop.GetDuration(0) != DefaultGracefulStop {
		t.Errorf("GracefulStop = %v", cfg.GracefulStop)
	}
	if cfg.HTTP.UserAgent != DefaultUserAgent {
		t.Errorf("UserAgent = %q", cfg.HTTP.UserAgent)
	}
	if cfg.Reporting.Format != DefaultLogFormat {
		t.Errorf("Format = %q", cfg.Reporting.Format)
	}

	first := cfg.Scenarios[0].Steps[0].HTTP
	if first.Method != "GET" || first.Name != "browse_request_1" {
		t.Errorf("http defaults = %q %q", first.Method, first.Name)
	}
	nested := cfg.Scenarios[0].Steps[2].ForEach.Steps[0].HTTP
	if nested.Method != "POST" {
		t.Errorf("nested method = %q, want POST", nested.Method)
	}
}

func TestValidate_Valid(t *testing.T) {
	cfg, err := ParseConfig([]byte(sampleYAML), "")
	if err != nil {
		t.Fatal(err)
	}
	ApplyDefaults(cfg)
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate() = %v", err)
	}
}

func TestValidate_Errors(t *testing.T) {
	wait := Duration(-time.Second)
	tests := []struct {
		name   string
		mutate func(*Config)
		field  string
	}{
		{"zero duration", func(c *Config) { c.Duration = 0 }, "duration"},
		{"zero concurrency", func(c *Config) { c.MaxConcurrency = 0 }, "maxConcurrency"},
		{"no target rate", func(c *Config) { c.RampUp.TargetRPS = 0 }, "rampUp.targetRps"},
		{"no users", func(c *Config) { c.Users.Count = 0 }, "users.count"},
		{"oauth without client", func(c *Config) { c.Users.OAuth = &OAuthConfig{TokenURL: "http://idp/token"} }, "users.oauth.clientId"},
		{"oauth bad url", func(c *Config) { c.Users.OAuth = &OAuthConfig{ClientID: "c", TokenURL: "token"} }, "users.oauth.tokenUrl"},
		{"bad format", func(c *Config) { c.Reporting.Format = "influx" }, "reporting.format"},
		{"unnamed scenario", func(c *Config) { c.Scenarios[0].Name = "" }, "scenarios[0].name"},
		{"duplicate scenario", func(c *Config) { c.Scenarios = append(c.Scenarios, c.Scenarios[0]) }, "scenarios[1].name"},
		{"empty step", func(c *Config) { c.Scenarios[0].Steps[1] = StepConfig{} }, "scenarios[0].steps[1]"},
		{"two kinds", func(c *Config) { c.Scenarios[0].Steps[1].Set = &SetStepConfig{Key: "k"} }, "scenarios[0].steps[1]"},
		{"negative wait", func(c *Config) { c.Scenarios[0].Steps[1].Wait = &wait }, "scenarios[0].steps[1].wait"},
		{"bad method", func(c *Config) { c.Scenarios[0].Steps[0].HTTP.Method = "FETCH" }, "scenarios[0].steps[0].http.method"},
		{"bad scope", func(c *Config) { c.Scenarios[0].Steps[0].HTTP.Scope = "forever" }, "scenarios[0].steps[0].http.scope"},
		{"retry without trigger", func(c *Config) { c.Scenarios[0].Steps[0].HTTP.Retry.Statuses = nil }, "scenarios[0].steps[0].http.retry"},
		{"nested missing url", func(c *Config) { c.Scenarios[0].Steps[2].ForEach.Steps[0].HTTP.URL = "" }, "scenarios[0].steps[2].foreach.steps[0].http.url"},
		{"ensure without check", func(c *Config) { c.Scenarios[0].Steps[3].Ensure.Status = 0 }, "scenarios[0].steps[3].ensure"},
		{"ensure bad schema", func(c *Config) { c.Scenarios[0].Steps[3].Ensure.Schema = "{" }, "scenarios[0].steps[3].ensure.schema"},
		{"empty run name", func(c *Config) { c.Run = []string{" "} }, "run[0]"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := ParseConfig([]byte(sampleYAML), "")
			if err != nil {
				t.Fatal(err)
			}
			ApplyDefaults(cfg)
			tt.mutate(cfg)

			err = cfg.Validate()
			if err == nil {
				t.Fatal("expected validation error")
			}

			var verrs *ValidationErrors
			if !errors.As(err, &verrs) {
				t.Fatalf("expected *ValidationErrors, got %T", err)
			}
			found := false
			for _, e := range verrs.Errors {
				if e.Field == tt.field {
					found = true
				}
			}
			if !found {
				t.Errorf("no error for field %q in: %v", tt.field, err)
			}
		})
	}
}

func TestValidationErrors_Error(t *testing.T) {
	errs := &ValidationErrors{}
	errs.Add("a", "first")
	if got := errs.Error(); got != "validation error on field 'a': first" {
		t.Errorf("single error = %q", got)
	}
	errs.Add("", "second")
	if got := errs.Error(); !strings.HasPrefix(got, "2 validation errors:") {
		t.Errorf("multi error = %q", got)
	}
}

func TestResolveVariables(t *testing.T) {
	globals := map[string]string{"host": "api", "id": "global"}
	local := map[string]string{"id": "local"}

	got := ResolveVariables("{{host}}/{{id}}/{{missing}}", local, globals)
	if got != "api/local/{{missing}}" {
		t.Errorf("ResolveVariables = %q", got)
	}
}

func TestPlaceholders(t *testing.T) {
	got := Placeholders("{{a}}/x/{{b}}/{{unterminated")
	if len(got) != 2 || got[0] != "a" || got[1] != "b" {
		t.Errorf("Placeholders = %v", got)
	}
}

func TestLoadConfig_Sample(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join("..", "..", "testdata", "shop.yaml"))
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}
	ApplyDefaults(cfg)
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate() error = %v", err)
	}
	if got := cfg.ScenarioNames(); len(got) != 1 || got[0] != "browse" {
		t.Errorf("ScenarioNames() = %v, want [browse]", got)
	}
	if cfg.Users.Count != len(cfg.Users.Inline) {
		t.Errorf("users.count = %d, want %d", cfg.Users.Count, len(cfg.Users.Inline))
	}
}
