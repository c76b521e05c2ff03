// Package materializer interprets step trees against a user session.
//
// # Execution model
//
// A cycle is one call to Run. Steps execute on the calling goroutine in
// tree order; the runner provides concurrency by running many cycles at
// once, each on its own session. Wait and Http steps are the suspension
// points and both honour context cancellation.
//
// # Failure model
//
//   - Network errors inside an Http step are recorded as "N/A"
//     measurements and the enclosing Sequence continues.
//   - Session lookups that fail, false Ensure predicates and Custom errors
//     fail the current cycle. A KO measurement is recorded at the failing
//     step and a *CycleError is returned.
//   - A false Filter skips the rest of the nearest enclosing Sequence.
//   - A malformed tree yields an *InvariantError, which is fatal.
package materializer

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/wesleyorama2/stampede/internal/dsl"
	"github.com/wesleyorama2/stampede/internal/metrics"
	"github.com/wesleyorama2/stampede/internal/session"
	"github.com/wesleyorama2/stampede/internal/transport"
)

// Materializer runs step trees. It is safe for concurrent use as long as
// each concurrent call uses a different session.
type Materializer struct {
	client transport.Client
	logger *zap.Logger
	now    func() time.Time
}

// Option configures a Materializer.
type Option func(*Materializer)

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(m *Materializer) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// WithClock replaces time.Now for measurement timestamps.
func WithClock(now func() time.Time) Option {
	return func(m *Materializer) {
		m.now = now
	}
}

// New creates a Materializer issuing requests through client.
func New(client transport.Client, opts ...Option) *Materializer {
	m := &Materializer{
		client: client,
		logger: zap.NewNop(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Run executes one cycle of the scenario called scenario. Measurements
// accumulate on s; the caller drains them. A Filter that skips the root
// sequence is not an error.
func (m *Materializer) Run(ctx context.Context, scenario string, step dsl.Step, s *session.Session) (*session.Session, error) {
	_, err := m.exec(ctx, scenario, step, s)
	if errors.Is(err, errSkip) {
		err = nil
	}
	if err != nil {
		switch {
		case IsFatal(err):
			m.logger.Error("step tree invariant violated",
				zap.String("scenario", scenario),
				zap.Error(err))
		case ctx.Err() != nil:
			// cancelled while draining
		default:
			m.logger.Debug("cycle failed",
				zap.String("scenario", scenario),
				zap.Stringer("session", s),
				zap.Error(err))
		}
	}
	return s, err
}

func (m *Materializer) exec(ctx context.Context, parent string, step dsl.Step, s *session.Session) (any, error) {
	if step == nil {
		return nil, &InvariantError{Msg: "nil step"}
	}
	if step.Parent() != "" {
		parent = step.Parent()
	}

	switch st := step.(type) {
	case dsl.SequenceStep:
		return m.sequence(ctx, parent, st, s)
	case dsl.HTTPStep:
		return m.http(ctx, parent, st, s)
	case dsl.WaitStep:
		return nil, m.wait(ctx, st.Duration)
	case dsl.SessionWriteStep:
		return m.sessionWrite(parent, st, s)
	case dsl.ForEachStep:
		return m.forEach(ctx, parent, st, s)
	case dsl.RepeatStep:
		return m.repeat(ctx, parent, st, s)
	case dsl.RunWhileStep:
		return m.runWhile(ctx, parent, st, s)
	case dsl.EnsureStep:
		return nil, m.ensure(parent, st, s)
	case dsl.FilterStep:
		return nil, m.filter(parent, st, s)
	case dsl.CustomStep:
		return m.custom(ctx, parent, st, s)
	case dsl.MeasureStep:
		return m.measure(ctx, parent, st, s)
	case dsl.RunIfStep:
		return m.runIf(ctx, parent, st, s)
	default:
		return nil, &InvariantError{Step: step.Name(), Msg: fmt.Sprintf("unsupported step type %T", step)}
	}
}

func (m *Materializer) sequence(ctx context.Context, parent string, st dsl.SequenceStep, s *session.Session) (any, error) {
	var last any
	for _, child := range st.Steps {
		if err := ctx.Err(); err != nil {
			return last, err
		}
		result, err := m.exec(ctx, parent, child, s)
		if errors.Is(err, errSkip) {
			return last, nil
		}
		if err != nil {
			return last, err
		}
		last = result
	}
	return last, nil
}

func (m *Materializer) wait(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (m *Materializer) sessionWrite(parent string, st dsl.SessionWriteStep, s *session.Session) (any, error) {
	if st.Value == nil {
		return nil, &InvariantError{Step: stepName(st), Msg: "session write without a value"}
	}
	value, err := st.Value(s)
	if err != nil {
		return nil, m.fail(s, parent, stepName(st), err)
	}
	s.Set(st.Scope, st.Key, value)
	return value, nil
}

func (m *Materializer) forEach(ctx context.Context, parent string, st dsl.ForEachStep, s *session.Session) (any, error) {
	if st.Source == nil || st.Body == nil {
		return nil, &InvariantError{Step: stepName(st), Msg: "foreach without a source or body"}
	}
	items, err := st.Source(s)
	if err != nil {
		return nil, m.fail(s, parent, stepName(st), err)
	}

	results := make([]any, 0, len(items))
	for i, item := range items {
		if err := ctx.Err(); err != nil {
			return results, err
		}
		child := st.Body(item, i)
		if child == nil {
			return results, &InvariantError{Step: stepName(st), Msg: fmt.Sprintf("foreach body returned nil for element %d", i)}
		}
		result, err := m.exec(ctx, parent, child, s)
		if err != nil {
			return results, err
		}
		results = append(results, result)
	}

	if st.CollectTo != "" {
		s.Set(st.CollectScope, st.CollectTo, results)
	}
	return results, nil
}

func (m *Materializer) repeat(ctx context.Context, parent string, st dsl.RepeatStep, s *session.Session) (any, error) {
	if st.Child == nil {
		return nil, &InvariantError{Step: stepName(st), Msg: "repeat without a child"}
	}
	var last any
	for i := 0; i < st.Count; i++ {
		if err := ctx.Err(); err != nil {
			return last, err
		}
		result, err := m.exec(ctx, parent, st.Child, s)
		if err != nil {
			return last, err
		}
		last = result
	}
	return last, nil
}

func (m *Materializer) runWhile(ctx context.Context, parent string, st dsl.RunWhileStep, s *session.Session) (any, error) {
	if st.Child == nil || st.While == nil {
		return nil, &InvariantError{Step: stepName(st), Msg: "run-while without a child or predicate"}
	}
	var last any
	for {
		result, err := m.exec(ctx, parent, st.Child, s)
		if err != nil {
			return last, err
		}
		last = result

		if err := ctx.Err(); err != nil {
			return last, err
		}
		again, err := st.While(s)
		if err != nil {
			return last, m.fail(s, parent, stepName(st), err)
		}
		if !again {
			return last, nil
		}
	}
}

func (m *Materializer) ensure(parent string, st dsl.EnsureStep, s *session.Session) error {
	if st.Check == nil {
		return &InvariantError{Step: stepName(st), Msg: "ensure without a predicate"}
	}
	ok, err := st.Check(s)
	if err != nil {
		return m.fail(s, parent, stepName(st), err)
	}
	if !ok {
		return m.fail(s, parent, stepName(st), &EnsureError{Cause: st.Cause})
	}
	return nil
}

func (m *Materializer) filter(parent string, st dsl.FilterStep, s *session.Session) error {
	if st.Keep == nil {
		return &InvariantError{Step: stepName(st), Msg: "filter without a predicate"}
	}
	keep, err := st.Keep(s)
	if err != nil {
		return m.fail(s, parent, stepName(st), err)
	}
	if !keep {
		return errSkip
	}
	return nil
}

func (m *Materializer) custom(ctx context.Context, parent string, st dsl.CustomStep, s *session.Session) (any, error) {
	if st.Fn == nil {
		return nil, &InvariantError{Step: stepName(st), Msg: "custom step without a function"}
	}

	start := m.now()
	status, err := st.Fn(ctx, s)
	end := m.now()

	if err != nil {
		meas := metrics.NewMeasurement(parent, stepName(st), userID(s), start, end, metrics.StatusKO)
		meas.Message = err.Error()
		s.Record(meas)
		return nil, &CycleError{Parent: parent, Step: stepName(st), Err: err}
	}
	if status == "" {
		status = metrics.StatusOK
	}
	s.Record(metrics.NewMeasurement(parent, stepName(st), userID(s), start, end, status))
	return status, nil
}

func (m *Materializer) measure(ctx context.Context, parent string, st dsl.MeasureStep, s *session.Session) (any, error) {
	if st.Child == nil {
		return nil, &InvariantError{Step: stepName(st), Msg: "measure without a child"}
	}

	recorded := len(s.Measurements())
	start := m.now()
	result, err := m.exec(ctx, stepName(st), st.Child, s)
	end := m.now()

	status := metrics.StatusOK
	if err != nil && !errors.Is(err, errSkip) {
		status = metrics.StatusKO
	} else {
		for _, inner := range s.Measurements()[recorded:] {
			if inner.Failed() {
				status = metrics.StatusKO
				break
			}
		}
	}
	s.Record(metrics.NewMeasurement(parent, stepName(st), userID(s), start, end, status))
	return result, err
}

func (m *Materializer) runIf(ctx context.Context, parent string, st dsl.RunIfStep, s *session.Session) (any, error) {
	if st.Child == nil || st.When == nil {
		return nil, &InvariantError{Step: stepName(st), Msg: "run-if without a child or predicate"}
	}
	ok, err := st.When(s)
	if err != nil {
		return nil, m.fail(s, parent, stepName(st), err)
	}
	if !ok {
		return nil, nil
	}
	return m.exec(ctx, parent, st.Child, s)
}

// fail records a KO measurement for a step that ended the cycle and wraps
// err in a *CycleError. Already-recorded and fatal errors pass through.
func (m *Materializer) fail(s *session.Session, parent, step string, err error) error {
	var cycleErr *CycleError
	if errors.As(err, &cycleErr) || IsFatal(err) {
		return err
	}

	now := m.now()
	meas := metrics.NewMeasurement(parent, step, userID(s), now, now, metrics.StatusKO)
	meas.Message = err.Error()
	s.Record(meas)

	return &CycleError{Parent: parent, Step: step, Err: err}
}

func stepName(step dsl.Step) string {
	if step.Name() != "" {
		return step.Name()
	}
	return step.Kind().String()
}

func userID(s *session.Session) string {
	u := s.User()
	if u.ID != "" {
		return u.ID
	}
	return u.Username
}
