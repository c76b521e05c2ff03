package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Defaults applied by ApplyDefaults.
const (
	DefaultMaxConcurrency    = 100
	DefaultGracefulStop      = 30 * time.Second
	DefaultTimeout           = 30 * time.Second
	DefaultMaxIdleConns      = 100
	DefaultReportingInterval = 5 * time.Second
	DefaultUserAgent         = "stampede/1.0"
	DefaultLogFormat         = "default"
)

// LoadConfig loads a run configuration from a file.
//
// The file format is determined by extension:
//   - .yaml, .yml -> YAML
//   - .json -> JSON
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	return ParseConfig(data, path)
}

// ParseConfig parses configuration data.
//
// The format is determined by the file extension in path, or defaults to YAML
// if the path is empty or has an unknown extension.
func ParseConfig(data []byte, path string) (*Config, error) {
	var config Config

	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".json":
		if err := json.Unmarshal(data, &config); err != nil {
			return nil, fmt.Errorf("failed to parse JSON config: %w", err)
		}
	case ".yaml", ".yml", "":
		if err := yaml.Unmarshal(data, &config); err != nil {
			return nil, fmt.Errorf("failed to parse YAML config: %w", err)
		}
	default:
		if err := yaml.Unmarshal(data, &config); err != nil {
			return nil, fmt.Errorf("failed to parse config (unknown format %s): %w", ext, err)
		}
	}

	return &config, nil
}

// ParseDurationString parses a duration string with support for common formats.
//
// Supported formats:
//   - Standard Go duration: "30s", "2m", "1h30m", "500ms"
//   - Seconds as integer: "30" (treated as 30 seconds)
func ParseDurationString(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, nil
	}

	d, err := time.ParseDuration(s)
	if err == nil {
		return d, nil
	}

	var seconds int
	if _, err := fmt.Sscanf(s, "%d", &seconds); err == nil && fmt.Sprint(seconds) == s {
		return time.Duration(seconds) * time.Second, nil
	}

	return 0, fmt.Errorf("invalid duration format: %s", s)
}

// ResolveVariables replaces {{name}} placeholders with values from each map
// in order. Earlier maps win. Unresolved placeholders are left as-is.
func ResolveVariables(input string, vars ...map[string]string) string {
	if !strings.Contains(input, "{{") {
		return input
	}

	result := input
	for _, m := range vars {
		for key, value := range m {
			result = strings.ReplaceAll(result, "{{"+key+"}}", value)
		}
	}
	return result
}

// Placeholders returns the names of the {{name}} placeholders in input, in
// order of appearance.
func Placeholders(input string) []string {
	var names []string
	rest := input
	for {
		start := strings.Index(rest, "{{")
		if start < 0 {
			return names
		}
		end := strings.Index(rest[start:], "}}")
		if end < 0 {
			return names
		}
		names = append(names, rest[start+2:start+end])
		rest = rest[start+end+2:]
	}
}

// ApplyDefaults applies default values to a Config.
func ApplyDefaults(config *Config) {
	if config.Name == "" {
		config.Name = "stampede"
	}
	if config.MaxConcurrency == 0 {
		config.MaxConcurrency = DefaultMaxConcurrency
	}
	if config.GracefulStop == 0 {
		config.GracefulStop = Duration(DefaultGracefulStop)
	}

	// A missing start rate means a constant rate.
	if config.RampUp.StartRPS == 0 {
		config.RampUp.StartRPS = config.RampUp.TargetRPS
	}

	if config.HTTP.Timeout == 0 {
		config.HTTP.Timeout = Duration(DefaultTimeout)
	}
	if config.HTTP.MaxIdleConnsPerHost == 0 {
		config.HTTP.MaxIdleConnsPerHost = DefaultMaxIdleConns
	}
	if config.HTTP.UserAgent == "" {
		config.HTTP.UserAgent = DefaultUserAgent
	}

	if config.Reporting.Interval == 0 {
		config.Reporting.Interval = Duration(DefaultReportingInterval)
	}
	if config.Reporting.Format == "" {
		config.Reporting.Format = DefaultLogFormat
	}

	for i := range config.Scenarios {
		applyStepDefaults(config.Scenarios[i].Name, config.Scenarios[i].Steps)
	}
}

// applyStepDefaults names unnamed http steps and defaults their method.
func applyStepDefaults(prefix string, steps []StepConfig) {
	for i := range steps {
		st := &steps[i]
		switch {
		case st.HTTP != nil:
			if st.HTTP.Method == "" {
				st.HTTP.Method = "GET"
			}
			st.HTTP.Method = strings.ToUpper(st.HTTP.Method)
			if st.HTTP.Name == "" {
				st.HTTP.Name = fmt.Sprintf("%s_request_%d", prefix, i+1)
			}
		case st.Repeat != nil:
			applyStepDefaults(prefix, st.Repeat.Steps)
		case st.ForEach != nil:
			applyStepDefaults(prefix, st.ForEach.Steps)
		}
	}
}

// ScenarioNames returns the names of the declarative scenarios in order.
func (c *Config) ScenarioNames() []string {
	names := make([]string, 0, len(c.Scenarios))
	for _, sc := range c.Scenarios {
		names = append(names, sc.Name)
	}
	return names
}
