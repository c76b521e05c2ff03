// Package session implements the per-user key/value store that step trees
// read from and write to while a cycle runs.
//
// Data lives in one of three scopes:
//
//   - Ephemeral: cleared at the start of every cycle that reuses the slot.
//   - User: survives across cycles of the same slot until Reset.
//   - Simulation: a single store shared by every session of a run.
//
// Reads are explicit about scope: Get searches Ephemeral then User, Global
// searches Simulation. Scopes are never silently merged.
package session

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/tidwall/gjson"

	"github.com/wesleyorama2/stampede/internal/jsonpath"
	"github.com/wesleyorama2/stampede/internal/metrics"
	"github.com/wesleyorama2/stampede/internal/users"
)

// Simulation is the run-wide store backing the Simulation scope.
// It is safe for concurrent use.
type Simulation struct {
	mu   sync.RWMutex
	data map[string]any
}

// NewSimulation creates an empty simulation store.
func NewSimulation() *Simulation {
	return &Simulation{data: make(map[string]any)}
}

// Set stores value under key.
func (s *Simulation) Set(key string, value any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[key] = value
}

// Get returns the value under key.
func (s *Simulation) Get(key string) (any, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.data[key]
	return v, ok
}

// Update replaces the value under key with fn(old, present) while holding
// the store lock. fn must not touch the store.
func (s *Simulation) Update(key string, fn func(old any, present bool) any) any {
	s.mu.Lock()
	defer s.mu.Unlock()
	old, present := s.data[key]
	next := fn(old, present)
	s.data[key] = next
	return next
}

// Delete removes key.
func (s *Simulation) Delete(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.data, key)
}

// Session is the store owned by one user slot.
//
// A Session is exclusively owned by the cycle that currently holds its
// slot (see TryAcquire), so the Ephemeral and User maps are not locked.
// Simulation scope goes through the shared, synchronized Simulation.
type Session struct {
	slot int
	user users.User

	ephemeral map[string]any
	userData  map[string]any
	sim       *Simulation

	measurements []metrics.Measurement

	inUse  atomic.Bool
	cycles atomic.Int64
}

// New creates a session for user in the given slot, sharing sim.
func New(slot int, user users.User, sim *Simulation) *Session {
	if sim == nil {
		sim = NewSimulation()
	}
	return &Session{
		slot:      slot,
		user:      user,
		ephemeral: make(map[string]any),
		userData:  make(map[string]any),
		sim:       sim,
	}
}

// NewPool creates one session per user, all sharing sim.
func NewPool(us []users.User, sim *Simulation) []*Session {
	if sim == nil {
		sim = NewSimulation()
	}
	sessions := make([]*Session, len(us))
	for i, u := range us {
		sessions[i] = New(i, u, sim)
	}
	return sessions
}

// Slot returns the slot index of the session.
func (s *Session) Slot() int { return s.slot }

// User returns the authenticated user bound to the session.
func (s *Session) User() users.User { return s.user }

// Simulation returns the shared simulation store.
func (s *Session) Simulation() *Simulation { return s.sim }

// Set writes value under key in scope.
func (s *Session) Set(scope Scope, key string, value any) {
	switch scope {
	case ScopeUser:
		s.userData[key] = value
	case ScopeSimulation:
		s.sim.Set(key, value)
	default:
		s.ephemeral[key] = value
	}
}

// Get returns the value under key, searching Ephemeral then User scope.
// A missing key yields a *KeyNotFoundError.
func (s *Session) Get(key string) (any, error) {
	v, _, err := s.find(key)
	return v, err
}

func (s *Session) find(key string) (any, Scope, error) {
	if v, ok := s.ephemeral[key]; ok {
		return v, ScopeEphemeral, nil
	}
	if v, ok := s.userData[key]; ok {
		return v, ScopeUser, nil
	}
	return nil, ScopeEphemeral, &KeyNotFoundError{Key: key, Scopes: []Scope{ScopeEphemeral, ScopeUser}}
}

// Global returns the value under key from Simulation scope.
func (s *Session) Global(key string) (any, error) {
	if v, ok := s.sim.Get(key); ok {
		return v, nil
	}
	return nil, &KeyNotFoundError{Key: key, Scopes: []Scope{ScopeSimulation}}
}

// In returns the value under key from exactly one scope.
func (s *Session) In(scope Scope, key string) (any, error) {
	var (
		v  any
		ok bool
	)
	switch scope {
	case ScopeUser:
		v, ok = s.userData[key]
	case ScopeSimulation:
		v, ok = s.sim.Get(key)
	default:
		v, ok = s.ephemeral[key]
	}
	if !ok {
		return nil, &KeyNotFoundError{Key: key, Scopes: []Scope{scope}}
	}
	return v, nil
}

// Has reports whether key is present in Ephemeral or User scope.
func (s *Session) Has(key string) bool {
	_, err := s.Get(key)
	return err == nil
}

// Delete removes key from scope.
func (s *Session) Delete(scope Scope, key string) {
	switch scope {
	case ScopeUser:
		delete(s.userData, key)
	case ScopeSimulation:
		s.sim.Delete(key)
	default:
		delete(s.ephemeral, key)
	}
}

// ClearEphemeral wipes the Ephemeral scope.
func (s *Session) ClearEphemeral() {
	clear(s.ephemeral)
}

// Reset wipes Ephemeral and User scope, as when the slot is handed to a
// new user lifetime.
func (s *Session) Reset() {
	clear(s.ephemeral)
	clear(s.userData)
	s.measurements = nil
}

// BeginCycle prepares the session for a new cycle: Ephemeral data and any
// leftover measurements are dropped.
func (s *Session) BeginCycle() {
	s.ClearEphemeral()
	s.measurements = s.measurements[:0]
	s.cycles.Add(1)
}

// Cycles returns how many cycles the session has begun.
func (s *Session) Cycles() int64 {
	return s.cycles.Load()
}

// Record appends a measurement to the current cycle.
func (s *Session) Record(m metrics.Measurement) {
	s.measurements = append(s.measurements, m)
}

// Measurements returns a copy of the current cycle's measurements.
func (s *Session) Measurements() []metrics.Measurement {
	out := make([]metrics.Measurement, len(s.measurements))
	copy(out, s.measurements)
	return out
}

// DrainMeasurements returns the current cycle's measurements and clears
// the list. The returned slice is owned by the caller.
func (s *Session) DrainMeasurements() []metrics.Measurement {
	out := s.Measurements()
	s.measurements = s.measurements[:0]
	return out
}

// TryAcquire marks the slot as held by a cycle. It returns false when
// another cycle already holds it.
func (s *Session) TryAcquire() bool {
	return s.inUse.CompareAndSwap(false, true)
}

// Release marks the slot as free.
func (s *Session) Release() {
	s.inUse.Store(false)
}

// Busy reports whether a cycle currently holds the slot.
func (s *Session) Busy() bool {
	return s.inUse.Load()
}

// String implements fmt.Stringer.
func (s *Session) String() string {
	return fmt.Sprintf("session[%d:%s]", s.slot, s.user.Username)
}

// Lookup returns the value under key (Ephemeral, then User scope) as T.
func Lookup[T any](s *Session, key string) (T, error) {
	v, scope, err := s.find(key)
	if err != nil {
		var zero T
		return zero, err
	}
	return as[T](key, scope, v)
}

// LookupGlobal returns the Simulation-scope value under key as T.
func LookupGlobal[T any](s *Session, key string) (T, error) {
	v, err := s.Global(key)
	if err != nil {
		var zero T
		return zero, err
	}
	return as[T](key, ScopeSimulation, v)
}

func as[T any](key string, scope Scope, v any) (T, error) {
	typed, ok := v.(T)
	if !ok {
		var zero T
		return zero, &TypeMismatchError{Key: key, Scope: scope, Want: fmt.Sprintf("%T", zero), Got: fmt.Sprintf("%T", v)}
	}
	return typed, nil
}

// Document is implemented by stored values that carry a JSON body, such as
// HTTP responses.
type Document interface {
	Bytes() []byte
}

// Document returns the JSON body stored under key (Ephemeral, then User
// scope). The value may be a Document, a []byte or a string.
func (s *Session) Document(key string) ([]byte, error) {
	v, scope, err := s.find(key)
	if err != nil {
		return nil, err
	}
	switch body := v.(type) {
	case Document:
		return body.Bytes(), nil
	case []byte:
		return body, nil
	case string:
		return []byte(body), nil
	default:
		return nil, &TypeMismatchError{Key: key, Scope: scope, Want: "JSON document", Got: fmt.Sprintf("%T", v)}
	}
}

// JSON evaluates a JSONPath (or gjson path) against the document stored
// under key.
func (s *Session) JSON(key, path string) (gjson.Result, error) {
	doc, err := s.Document(key)
	if err != nil {
		return gjson.Result{}, err
	}

	result, err := jsonpath.Get(doc, path)
	if err != nil {
		return gjson.Result{}, fmt.Errorf("session key %q: %w", key, err)
	}
	return result, nil
}
