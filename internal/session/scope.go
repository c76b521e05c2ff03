package session

import (
	"errors"
	"fmt"
	"strings"
)

// Scope selects the lifetime of a session value.
type Scope int

const (
	// ScopeEphemeral values are cleared before each new cycle.
	ScopeEphemeral Scope = iota
	// ScopeUser values persist across cycles of the same slot.
	ScopeUser
	// ScopeSimulation values are shared by all sessions of a run.
	ScopeSimulation
)

func (s Scope) String() string {
	switch s {
	case ScopeEphemeral:
		return "ephemeral"
	case ScopeUser:
		return "user"
	case ScopeSimulation:
		return "simulation"
	default:
		return "unknown"
	}
}

// ParseScope parses a scope name. The empty string is Ephemeral.
func ParseScope(s string) (Scope, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "ephemeral":
		return ScopeEphemeral, nil
	case "user":
		return ScopeUser, nil
	case "simulation", "global":
		return ScopeSimulation, nil
	default:
		return ScopeEphemeral, fmt.Errorf("unknown session scope %q", s)
	}
}

// ErrKeyNotFound matches every *KeyNotFoundError via errors.Is.
var ErrKeyNotFound = errors.New("session key not found")

// KeyNotFoundError is returned when a read finds no value. Scopes lists
// every scope that was searched.
type KeyNotFoundError struct {
	Key    string
	Scopes []Scope
}

func (e *KeyNotFoundError) Error() string {
	names := make([]string, len(e.Scopes))
	for i, scope := range e.Scopes {
		names[i] = scope.String()
	}
	return fmt.Sprintf("session key %q not found in %s scope", e.Key, strings.Join(names, "/"))
}

// Is reports whether target is ErrKeyNotFound.
func (e *KeyNotFoundError) Is(target error) bool {
	return target == ErrKeyNotFound
}

// TypeMismatchError is returned by typed lookups when the stored value has
// a different type.
type TypeMismatchError struct {
	Key   string
	Scope Scope
	Want  string
	Got   string
}

func (e *TypeMismatchError) Error() string {
	return fmt.Sprintf("session key %q in %s scope holds %s, want %s", e.Key, e.Scope, e.Got, e.Want)
}
