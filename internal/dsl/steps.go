package dsl

import (
	"context"
	"slices"
	"time"

	"github.com/wesleyorama2/stampede/internal/session"
)

// WaitStep suspends the current chain.
type WaitStep struct {
	meta
	Duration time.Duration
}

// Wait pauses the current cycle for d.
func Wait(d time.Duration) WaitStep {
	return WaitStep{Duration: d}
}

func (WaitStep) Kind() Kind { return KindWait }

func (w WaitStep) withMeta(m meta) Step {
	w.meta = m
	return w
}

// SessionWriteStep stores a computed value in the session.
type SessionWriteStep struct {
	meta
	Key   string
	Scope session.Scope
	Value Func[any]
}

// Set stores the result of value under key in Ephemeral scope.
func Set(key string, value Func[any]) SessionWriteStep {
	return SessionWriteStep{Key: key, Value: value}
}

// SetConst stores a fixed value under key in Ephemeral scope.
func SetConst(key string, value any) SessionWriteStep {
	return Set(key, Const(value))
}

func (SessionWriteStep) Kind() Kind { return KindSessionWrite }

func (w SessionWriteStep) withMeta(m meta) Step {
	w.meta = m
	return w
}

// In returns a copy writing to scope.
func (w SessionWriteStep) In(scope session.Scope) SessionWriteStep {
	w.Scope = scope
	return w
}

// ForEachStep runs a child step per element of a session-derived list.
// Children run sequentially in element order.
type ForEachStep struct {
	meta
	Source Func[[]any]
	Body   func(item any, index int) Step

	// CollectTo stores the children's results, in element order, as []any.
	CollectTo    string
	CollectScope session.Scope
}

// ForEach builds one child per element of source.
func ForEach(source Func[[]any], body func(item any, index int) Step) ForEachStep {
	return ForEachStep{Source: source, Body: body}
}

func (ForEachStep) Kind() Kind { return KindForEach }

func (f ForEachStep) withMeta(m meta) Step {
	f.meta = m
	return f
}

// Collect stores the children's results under key in Ephemeral scope.
func (f ForEachStep) Collect(key string) ForEachStep {
	return f.CollectIn(session.ScopeEphemeral, key)
}

// CollectIn stores the children's results under key in scope.
func (f ForEachStep) CollectIn(scope session.Scope, key string) ForEachStep {
	f.CollectTo = key
	f.CollectScope = scope
	return f
}

// RepeatStep runs its child Count times.
type RepeatStep struct {
	meta
	Count int
	Child Step
}

// Repeat runs steps, as a sequence, count times.
func Repeat(count int, steps ...Step) RepeatStep {
	return RepeatStep{Count: count, Child: wrap(steps)}
}

func (RepeatStep) Kind() Kind { return KindRepeat }

func (r RepeatStep) withMeta(m meta) Step {
	r.meta = m
	return r
}

// RunWhileStep runs its child, then repeats while the predicate holds.
type RunWhileStep struct {
	meta
	While Predicate
	Child Step
}

// RunWhile runs steps once and again for as long as while holds.
func RunWhile(while Predicate, steps ...Step) RunWhileStep {
	return RunWhileStep{While: while, Child: wrap(steps)}
}

func (RunWhileStep) Kind() Kind { return KindRunWhile }

func (r RunWhileStep) withMeta(m meta) Step {
	r.meta = m
	return r
}

// EnsureStep aborts the cycle when its predicate is false.
type EnsureStep struct {
	meta
	Check Predicate
	Cause string
}

// Ensure aborts the cycle with cause unless check holds.
func Ensure(check Predicate, cause string) EnsureStep {
	return EnsureStep{Check: check, Cause: cause}
}

func (EnsureStep) Kind() Kind { return KindEnsure }

func (e EnsureStep) withMeta(m meta) Step {
	e.meta = m
	return e
}

// FilterStep skips the rest of the enclosing Sequence when its predicate
// is false. Skipping is not a failure.
type FilterStep struct {
	meta
	Keep Predicate
}

// Filter continues the enclosing sequence only when keep holds.
func Filter(keep Predicate) FilterStep {
	return FilterStep{Keep: keep}
}

func (FilterStep) Kind() Kind { return KindFilter }

func (f FilterStep) withMeta(m meta) Step {
	f.meta = m
	return f
}

// CustomFunc is user code run by a Custom step. The returned string is the
// recorded status; "" records "OK".
type CustomFunc func(ctx context.Context, s *session.Session) (string, error)

// CustomStep runs arbitrary code against the session.
type CustomStep struct {
	meta
	Fn CustomFunc
}

// Custom runs fn as a measured step called name.
func Custom(name string, fn CustomFunc) CustomStep {
	return CustomStep{meta: meta{name: name}, Fn: fn}
}

func (CustomStep) Kind() Kind { return KindCustom }

func (c CustomStep) withMeta(m meta) Step {
	c.meta = m
	return c
}

// SequenceStep runs its children in order.
type SequenceStep struct {
	meta
	Steps []Step
}

// Sequence runs steps in declared order.
func Sequence(steps ...Step) SequenceStep {
	return SequenceStep{Steps: slices.Clone(steps)}
}

func (SequenceStep) Kind() Kind { return KindSequence }

func (q SequenceStep) withMeta(m meta) Step {
	q.meta = m
	return q
}

// Then returns a copy with steps appended.
func (q SequenceStep) Then(steps ...Step) SequenceStep {
	q.Steps = append(slices.Clip(q.Steps), steps...)
	return q
}

// MeasureStep records one measurement spanning its child.
type MeasureStep struct {
	meta
	Child Step
}

// Measure runs steps as a sequence and records one measurement called
// name spanning all of them. Measurements inside are reported under name.
func Measure(name string, steps ...Step) MeasureStep {
	return MeasureStep{meta: meta{name: name}, Child: wrap(steps)}
}

func (MeasureStep) Kind() Kind { return KindMeasure }

func (g MeasureStep) withMeta(m meta) Step {
	g.meta = m
	return g
}

// RunIfStep runs its child only when the predicate holds.
type RunIfStep struct {
	meta
	When  Predicate
	Child Step
}

// RunIf runs steps, as a sequence, when holds.
func RunIf(when Predicate, steps ...Step) RunIfStep {
	return RunIfStep{When: when, Child: wrap(steps)}
}

func (RunIfStep) Kind() Kind { return KindRunIf }

func (r RunIfStep) withMeta(m meta) Step {
	r.meta = m
	return r
}

func wrap(steps []Step) Step {
	if len(steps) == 1 {
		return steps[0]
	}
	return Sequence(steps...)
}
