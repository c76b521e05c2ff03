// Package dsl is the declarative step model scenarios are written in.
//
// A scenario is a tree of Step values. Builders never perform I/O; every
// session-dependent part of a step (an endpoint, a header, a loop source)
// is a Func evaluated by the materializer when the step runs. Builder
// methods use value receivers and return a modified copy, so a step value
// can be shared between scenarios and extended without affecting other
// users of it.
package dsl

import (
	"fmt"

	"github.com/wesleyorama2/stampede/internal/session"
)

// Kind identifies the variant of a Step.
type Kind int

const (
	KindHTTP Kind = iota
	KindWait
	KindSessionWrite
	KindForEach
	KindRepeat
	KindRunWhile
	KindEnsure
	KindFilter
	KindCustom
	KindSequence
	KindMeasure
	KindRunIf
)

func (k Kind) String() string {
	switch k {
	case KindHTTP:
		return "http"
	case KindWait:
		return "wait"
	case KindSessionWrite:
		return "session-write"
	case KindForEach:
		return "foreach"
	case KindRepeat:
		return "repeat"
	case KindRunWhile:
		return "run-while"
	case KindEnsure:
		return "ensure"
	case KindFilter:
		return "filter"
	case KindCustom:
		return "custom"
	case KindSequence:
		return "sequence"
	case KindMeasure:
		return "measure"
	case KindRunIf:
		return "run-if"
	default:
		return "unknown"
	}
}

// Step is one node of a scenario tree. The set of implementations is
// closed; the materializer switches over them.
type Step interface {
	// Kind returns the variant.
	Kind() Kind
	// Name is the measurement-point name; may be empty.
	Name() string
	// Parent is the measurement parent used in reports; empty means
	// inherited from the enclosing scope.
	Parent() string

	withMeta(meta) Step
}

type meta struct {
	name   string
	parent string
}

func (m meta) Name() string   { return m.name }
func (m meta) Parent() string { return m.parent }

// Named returns a copy of step with its measurement-point name set.
func Named[S Step](step S, name string) S {
	m := meta{name: name, parent: step.Parent()}
	return step.withMeta(m).(S)
}

// Under returns a copy of step reported under the given parent name.
func Under[S Step](step S, parent string) S {
	m := meta{name: step.Name(), parent: parent}
	return step.withMeta(m).(S)
}

// Func computes a value from the session when a step runs.
type Func[T any] func(s *session.Session) (T, error)

// Predicate is a boolean Func.
type Predicate = Func[bool]

// Const returns a Func that always yields v.
func Const[T any](v T) Func[T] {
	return func(*session.Session) (T, error) { return v, nil }
}

// FromSession reads key from Ephemeral or User scope as T.
func FromSession[T any](key string) Func[T] {
	return func(s *session.Session) (T, error) {
		return session.Lookup[T](s, key)
	}
}

// FromGlobal reads key from Simulation scope as T.
func FromGlobal[T any](key string) Func[T] {
	return func(s *session.Session) (T, error) {
		return session.LookupGlobal[T](s, key)
	}
}

// JSONField reads a field of the JSON document stored under key, rendered
// as a string.
func JSONField(key, path string) Func[string] {
	return func(s *session.Session) (string, error) {
		result, err := s.JSON(key, path)
		if err != nil {
			return "", err
		}
		return result.String(), nil
	}
}

// JSONItems reads a JSON array from the document stored under key. Each
// element is a gjson.Result.
func JSONItems(key, path string) Func[[]any] {
	return func(s *session.Session) ([]any, error) {
		result, err := s.JSON(key, path)
		if err != nil {
			return nil, err
		}
		if !result.IsArray() {
			return nil, fmt.Errorf("session key %q: %s is not an array", key, path)
		}
		arr := result.Array()
		items := make([]any, len(arr))
		for i, r := range arr {
			items[i] = r
		}
		return items, nil
	}
}

// Items reads a []T stored under key and widens it for ForEach.
func Items[T any](key string) Func[[]any] {
	return func(s *session.Session) ([]any, error) {
		typed, err := session.Lookup[[]T](s, key)
		if err != nil {
			return nil, err
		}
		items := make([]any, len(typed))
		for i, v := range typed {
			items[i] = v
		}
		return items, nil
	}
}

// Slice adapts a fixed slice for ForEach.
func Slice[T any](values ...T) Func[[]any] {
	items := make([]any, len(values))
	for i, v := range values {
		items[i] = v
	}
	return func(*session.Session) ([]any, error) {
		out := make([]any, len(items))
		copy(out, items)
		return out, nil
	}
}

// Exists is true when key is present in Ephemeral or User scope.
func Exists(key string) Predicate {
	return func(s *session.Session) (bool, error) {
		return s.Has(key), nil
	}
}

// Not negates p.
func Not(p Predicate) Predicate {
	return func(s *session.Session) (bool, error) {
		ok, err := p(s)
		return !ok, err
	}
}

// Counter is a Predicate that is true for the first n evaluations in the
// current session. The count is kept in Ephemeral scope under key.
func Counter(key string, n int) Predicate {
	return func(s *session.Session) (bool, error) {
		seen := 0
		if v, err := s.In(session.ScopeEphemeral, key); err == nil {
			seen, _ = v.(int)
		}
		seen++
		s.Set(session.ScopeEphemeral, key, seen)
		return seen <= n, nil
	}
}
