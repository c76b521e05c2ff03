// Package jsonpath evaluates a JSONPath subset against JSON documents using
// gjson. Supported syntax: "$", dotted keys, bracketed keys ($['a'] and
// $["a"]) and numeric indexes ($.items[0].id).
package jsonpath

import (
	"errors"
	"fmt"
	"strings"

	"github.com/tidwall/gjson"
)

var (
	// ErrEmptyDocument is returned when the input document is empty.
	ErrEmptyDocument = errors.New("jsonpath: empty JSON document")
	// ErrEmptyPath is returned when the path expression is empty.
	ErrEmptyPath = errors.New("jsonpath: empty path expression")
	// ErrNotFound is returned when the path matches nothing.
	ErrNotFound = errors.New("jsonpath: path not found")
)

// Get returns the gjson result at path.
func Get(doc []byte, path string) (gjson.Result, error) {
	if len(doc) == 0 {
		return gjson.Result{}, ErrEmptyDocument
	}
	if path == "" {
		return gjson.Result{}, ErrEmptyPath
	}

	result := gjson.GetBytes(doc, ToGjson(path))
	if !result.Exists() {
		return gjson.Result{}, fmt.Errorf("%w: %s", ErrNotFound, path)
	}
	return result, nil
}

// Extract returns the value at path rendered as a string. JSON null is
// rendered as "null".
func Extract(doc []byte, path string) (string, error) {
	result, err := Get(doc, path)
	if err != nil {
		return "", err
	}
	if result.Type == gjson.Null {
		return "null", nil
	}
	return result.String(), nil
}

// ExtractAll evaluates every named path. Values that resolve are returned
// even when others fail; the error lists the failures.
func ExtractAll(doc []byte, paths map[string]string) (map[string]string, error) {
	if len(doc) == 0 {
		return nil, ErrEmptyDocument
	}

	results := make(map[string]string, len(paths))
	var failures []string

	for name, path := range paths {
		value, err := Extract(doc, path)
		if err != nil {
			failures = append(failures, fmt.Sprintf("%s: %v", name, err))
			continue
		}
		results[name] = value
	}

	if len(failures) > 0 {
		return results, fmt.Errorf("extraction errors: %s", strings.Join(failures, "; "))
	}
	return results, nil
}

// ToGjson converts a JSONPath expression into gjson path syntax. Paths
// without a leading "$" are assumed to be gjson paths already.
func ToGjson(path string) string {
	if !strings.HasPrefix(path, "$") {
		return path
	}

	path = strings.TrimPrefix(path, "$")
	path = strings.TrimPrefix(path, ".")
	if path == "" {
		return "@this"
	}

	replacer := strings.NewReplacer(
		"['", ".", "']", "",
		`["`, ".", `"]`, "",
		"[", ".", "]", "",
	)
	path = replacer.Replace(path)

	return strings.TrimPrefix(path, ".")
}
