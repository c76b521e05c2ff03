// Package scenario holds the named step trees a run can drive. Scenarios are
// registered explicitly, either from Go code or compiled from the
// declarative scenarios of a run configuration.
package scenario

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/wesleyorama2/stampede/internal/dsl"
	"github.com/wesleyorama2/stampede/internal/session"
)

var (
	// ErrDuplicate is returned when a name is registered twice.
	ErrDuplicate = errors.New("scenario already registered")

	// ErrUnknown is returned when building a name that was never registered.
	ErrUnknown = errors.New("unknown scenario")
)

// HookFunc runs once against every session of the run.
type HookFunc func(ctx context.Context, sessions []*session.Session) error

// CycleHookFunc runs against the session of a single cycle.
type CycleHookFunc func(ctx context.Context, s *session.Session) error

// Hooks run around the load phase. Prepare runs after warm-up, before the
// first admission. Cleanup runs during drain, after in-flight cycles finish.
//
// BeforeCycle and AfterCycle run around every cycle on the cycle's session.
// A failing BeforeCycle skips the step tree and fails that cycle only.
// AfterCycle runs even when the cycle failed.
type Hooks struct {
	Prepare HookFunc
	Cleanup HookFunc

	BeforeCycle CycleHookFunc
	AfterCycle  CycleHookFunc
}

// Scenario is a named step tree.
type Scenario struct {
	Name        string
	Description string
	Root        dsl.Step
	Hooks       Hooks
}

// BuildFunc constructs a scenario. It is called once per run.
type BuildFunc func() (*Scenario, error)

// Registry maps names to scenario builders. It is safe for concurrent use.
type Registry struct {
	mu       sync.RWMutex
	builders map[string]BuildFunc
	order    []string
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{builders: make(map[string]BuildFunc)}
}

// Default is the process-wide registry populated by Register.
var Default = NewRegistry()

// Register adds fn to the Default registry.
func Register(name string, fn BuildFunc) error {
	return Default.Register(name, fn)
}

// Register adds fn under name.
func (r *Registry) Register(name string, fn BuildFunc) error {
	if name == "" {
		return fmt.Errorf("scenario name cannot be empty")
	}
	if fn == nil {
		return fmt.Errorf("scenario %q: nil builder", name)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.builders[name]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicate, name)
	}
	r.builders[name] = fn
	r.order = append(r.order, name)
	return nil
}

// MustRegister is Register for package initialisation; it panics on error.
func (r *Registry) MustRegister(name string, fn BuildFunc) {
	if err := r.Register(name, fn); err != nil {
		panic(err)
	}
}

// RegisterStep registers a scenario that always builds root.
func (r *Registry) RegisterStep(name string, root dsl.Step) error {
	return r.Register(name, func() (*Scenario, error) {
		return &Scenario{Name: name, Root: root}, nil
	})
}

// Names returns the registered names in registration order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Clone(r.order)
}

// Has reports whether name is registered.
func (r *Registry) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.builders[name]
	return ok
}

// Build constructs and validates the named scenarios, in the order given.
// With no names every registered scenario is built.
func (r *Registry) Build(names ...string) ([]*Scenario, error) {
	if len(names) == 0 {
		names = r.Names()
	}
	if len(names) == 0 {
		return nil, fmt.Errorf("no scenarios registered")
	}

	r.mu.RLock()
	builders := make([]BuildFunc, len(names))
	for i, name := range names {
		fn, ok := r.builders[name]
		if !ok {
			r.mu.RUnlock()
			return nil, fmt.Errorf("%w: %s", ErrUnknown, name)
		}
		builders[i] = fn
	}
	r.mu.RUnlock()

	scenarios := make([]*Scenario, 0, len(names))
	for i, fn := range builders {
		sc, err := fn()
		if err != nil {
			return nil, fmt.Errorf("build scenario %s: %w", names[i], err)
		}
		if sc == nil {
			return nil, fmt.Errorf("build scenario %s: builder returned nil", names[i])
		}
		if sc.Name == "" {
			sc.Name = names[i]
		}
		if err := Validate(sc.Root); err != nil {
			return nil, fmt.Errorf("scenario %s: %w", sc.Name, err)
		}
		scenarios = append(scenarios, sc)
	}
	return scenarios, nil
}
