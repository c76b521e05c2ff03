// Package rate provides the admission pacing used by the load runner.
package rate

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"
)

// Ramp paces admissions along a linear requests-per-second ramp.
//
// # Algorithm
//
// The instantaneous rate at elapsed time t (clamped to [0, duration]) is
//
//	rate(t) = startRps + ((targetRps - startRps) / duration) * t
//
// and the interval until the next admission is 1s / rate(t). The ramp keeps
// an expected cumulative offset: the sum of all intervals handed out so far.
// Each call to TimeToWait returns max(0, offset - elapsed) and then adds the
// current interval to the offset.
//
// When the caller is behind schedule the wait is zero and the offset is
// pulled forward to the current elapsed time, so a slow admission never
// produces a burst of catch-up admissions after it. Past the ramp duration
// the rate holds at targetRps.
//
// # Thread Safety
//
// Ramp is safe for concurrent use, though the runner calls it from a single
// admission loop.
type Ramp struct {
	startRps  float64
	targetRps float64
	duration  time.Duration

	now   func() time.Time
	start time.Time

	offset time.Duration
	mu     sync.Mutex

	// Metrics
	admissions    atomic.Int64
	totalWaitTime atomic.Int64
	lagged        atomic.Int64
}

// Option configures a Ramp.
type Option func(*Ramp)

// WithClock replaces the wall clock. Tests use it to drive the ramp
// deterministically.
func WithClock(now func() time.Time) Option {
	return func(r *Ramp) {
		r.now = now
	}
}

// NewRamp creates a ramp from startRps to targetRps over duration.
//
// Both rates must be positive. A zero duration means the ramp starts at
// targetRps immediately. The start time is taken from the clock at
// construction; call Reset to restart the ramp.
func NewRamp(startRps, targetRps float64, duration time.Duration, opts ...Option) (*Ramp, error) {
	if startRps <= 0 {
		return nil, fmt.Errorf("rate: startRps must be > 0, got %v", startRps)
	}
	if targetRps <= 0 {
		return nil, fmt.Errorf("rate: targetRps must be > 0, got %v", targetRps)
	}
	if duration < 0 {
		return nil, fmt.Errorf("rate: ramp duration must be >= 0, got %v", duration)
	}

	r := &Ramp{
		startRps:  startRps,
		targetRps: targetRps,
		duration:  duration,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	r.start = r.now()

	return r, nil
}

// NewConstant creates a ramp that holds rps for the whole run.
func NewConstant(rps float64, opts ...Option) (*Ramp, error) {
	return NewRamp(rps, rps, 0, opts...)
}

// RateAt returns the admission rate at the given elapsed time.
func (r *Ramp) RateAt(elapsed time.Duration) float64 {
	if r.duration <= 0 || elapsed >= r.duration {
		return r.targetRps
	}
	if elapsed < 0 {
		elapsed = 0
	}

	slope := (r.targetRps - r.startRps) / r.duration.Seconds()
	return r.startRps + slope*elapsed.Seconds()
}

// IntervalAt returns the inter-admission interval at the given elapsed time.
func (r *Ramp) IntervalAt(elapsed time.Duration) time.Duration {
	return time.Duration(float64(time.Second) / r.RateAt(elapsed))
}

// TimeToWait returns how long the caller should wait before its next
// admission. It never returns a negative duration.
func (r *Ramp) TimeToWait() time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()

	elapsed := r.now().Sub(r.start)

	var wait time.Duration
	if elapsed >= r.offset {
		// On or behind schedule: admit now and re-anchor so the lag is not
		// repaid with a burst.
		if elapsed > r.offset && r.admissions.Load() > 0 {
			r.lagged.Add(1)
		}
		r.offset = elapsed
	} else {
		wait = r.offset - elapsed
	}

	r.offset += r.IntervalAt(elapsed)

	r.admissions.Add(1)
	r.totalWaitTime.Add(int64(wait))

	return wait
}

// Wait blocks until the next admission is due.
//
// Returns:
//   - nil if the wait completed successfully
//   - ctx.Err() if the context was cancelled
func (r *Ramp) Wait(ctx context.Context) error {
	wait := r.TimeToWait()
	if wait <= 0 {
		return ctx.Err()
	}

	timer := time.NewTimer(wait)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// CurrentRate returns the rate at the current elapsed time.
func (r *Ramp) CurrentRate() float64 {
	return r.RateAt(r.Elapsed())
}

// Elapsed returns the time since the ramp started.
func (r *Ramp) Elapsed() time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.now().Sub(r.start)
}

// Reset restarts the ramp from the current time and clears the offset.
func (r *Ramp) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.start = r.now()
	r.offset = 0
	r.admissions.Store(0)
	r.totalWaitTime.Store(0)
	r.lagged.Store(0)
}

// Stats returns statistics about the ramp's operation.
func (r *Ramp) Stats() RampStats {
	elapsed := r.Elapsed()
	return RampStats{
		StartRPS:      r.startRps,
		TargetRPS:     r.targetRps,
		Duration:      r.duration,
		CurrentRPS:    r.RateAt(elapsed),
		Admissions:    r.admissions.Load(),
		Lagged:        r.lagged.Load(),
		TotalWaitTime: time.Duration(r.totalWaitTime.Load()),
	}
}

// RampStats contains statistics about the ramp.
type RampStats struct {
	StartRPS      float64       `json:"startRps"`
	TargetRPS     float64       `json:"targetRps"`
	Duration      time.Duration `json:"duration"`
	CurrentRPS    float64       `json:"currentRps"`
	Admissions    int64         `json:"admissions"`    // Total waits handed out
	Lagged        int64         `json:"lagged"`        // Admissions that found the caller behind schedule
	TotalWaitTime time.Duration `json:"totalWaitTime"` // Sum of all returned waits
}
