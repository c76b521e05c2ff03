package dsl

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/wesleyorama2/stampede/internal/session"
)

// ConformsTo returns a predicate that is true when the JSON document stored
// under key validates against schema. The schema is compiled once, here.
func ConformsTo(key, schema string) (Predicate, error) {
	compiled, err := compileSchema(schema)
	if err != nil {
		return nil, err
	}

	return func(s *session.Session) (bool, error) {
		doc, err := s.Document(key)
		if err != nil {
			return false, err
		}

		var data any
		if err := json.Unmarshal(doc, &data); err != nil {
			return false, nil
		}
		return compiled.Validate(data) == nil, nil
	}, nil
}

// MustConformTo is ConformsTo for schemas known at build time.
func MustConformTo(key, schema string) Predicate {
	p, err := ConformsTo(key, schema)
	if err != nil {
		panic(err)
	}
	return p
}

func compileSchema(schema string) (*jsonschema.Schema, error) {
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("schema.json", strings.NewReader(schema)); err != nil {
		return nil, fmt.Errorf("invalid schema: %w", err)
	}
	compiled, err := compiler.Compile("schema.json")
	if err != nil {
		return nil, fmt.Errorf("invalid schema: %w", err)
	}
	return compiled, nil
}
