package rate

import (
	"context"
	"math"
	"testing"
	"time"
)

// fakeClock is a manually advanced clock.
type fakeClock struct {
	t time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time          { return c.t }
func (c *fakeClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

func TestNewRamp_Validation(t *testing.T) {
	tests := []struct {
		name      string
		start     float64
		target    float64
		duration  time.Duration
		expectErr bool
	}{
		{"valid ramp", 1, 10, time.Minute, false},
		{"valid constant", 5, 5, 0, false},
		{"zero start", 0, 10, time.Minute, true},
		{"negative target", 1, -1, time.Minute, true},
		{"negative duration", 1, 10, -time.Second, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewRamp(tt.start, tt.target, tt.duration)
			if (err != nil) != tt.expectErr {
				t.Errorf("NewRamp() error = %v, expectErr %v", err, tt.expectErr)
			}
		})
	}
}

func TestRamp_RateAt(t *testing.T) {
	r, err := NewRamp(10, 20, 10*time.Second)
	if err != nil {
		t.Fatalf("NewRamp() error = %v", err)
	}

	tests := []struct {
		elapsed time.Duration
		want    float64
	}{
		{-time.Second, 10},
		{0, 10},
		{5 * time.Second, 15},
		{10 * time.Second, 20},
		{time.Minute, 20},
	}

	for _, tt := range tests {
		got := r.RateAt(tt.elapsed)
		if math.Abs(got-tt.want) > 1e-9 {
			t.Errorf("RateAt(%v) = %v, want %v", tt.elapsed, got, tt.want)
		}
	}

	if got := r.IntervalAt(0); got != 100*time.Millisecond {
		t.Errorf("IntervalAt(0) = %v, want 100ms", got)
	}
}

func TestRamp_RampDown(t *testing.T) {
	r, err := NewRamp(100, 10, 9*time.Second)
	if err != nil {
		t.Fatalf("NewRamp() error = %v", err)
	}

	if got := r.RateAt(3 * time.Second); math.Abs(got-70) > 1e-9 {
		t.Errorf("RateAt(3s) = %v, want 70", got)
	}
}

func TestRamp_ConstantAverage(t *testing.T) {
	const rps = 50.0
	clock := newFakeClock()
	r, err := NewConstant(rps, WithClock(clock.Now))
	if err != nil {
		t.Fatalf("NewConstant() error = %v", err)
	}

	const samples = 1000
	var total time.Duration
	for i := 0; i < samples; i++ {
		w := r.TimeToWait()
		total += w
		clock.Advance(w)
	}

	avg := total / samples
	want := time.Duration(float64(time.Second) / rps)
	tolerance := 500 * time.Microsecond
	if avg < want-tolerance || avg > want+tolerance {
		t.Errorf("average wait = %v, want ~%v", avg, want)
	}
}

func TestRamp_FirstAdmissionImmediate(t *testing.T) {
	clock := newFakeClock()
	r, _ := NewConstant(1, WithClock(clock.Now))

	if w := r.TimeToWait(); w != 0 {
		t.Errorf("first TimeToWait() = %v, want 0", w)
	}
	if w := r.TimeToWait(); w != time.Second {
		t.Errorf("second TimeToWait() = %v, want 1s", w)
	}
}

func TestRamp_BehindScheduleReturnsZero(t *testing.T) {
	clock := newFakeClock()
	r, _ := NewConstant(50, WithClock(clock.Now))

	_ = r.TimeToWait()
	clock.Advance(200 * time.Millisecond)

	if w := r.TimeToWait(); w != 0 {
		t.Errorf("TimeToWait() behind schedule = %v, want 0", w)
	}

	// No catch-up burst: the next admission is one interval away again.
	if w := r.TimeToWait(); w != 20*time.Millisecond {
		t.Errorf("TimeToWait() after lag = %v, want 20ms", w)
	}

	if stats := r.Stats(); stats.Lagged != 1 {
		t.Errorf("Stats().Lagged = %d, want 1", stats.Lagged)
	}
}

func TestRamp_NeverNegative(t *testing.T) {
	clock := newFakeClock()
	r, _ := NewRamp(1, 100, 5*time.Second, WithClock(clock.Now))

	for i := 0; i < 500; i++ {
		if w := r.TimeToWait(); w < 0 {
			t.Fatalf("TimeToWait() = %v, must never be negative", w)
		}
		// Caller always runs late by a varying amount.
		clock.Advance(time.Duration(i%7) * time.Millisecond * 5)
	}
}

func TestRamp_AdmissionsFollowIntegral(t *testing.T) {
	clock := newFakeClock()
	r, _ := NewRamp(10, 20, 10*time.Second, WithClock(clock.Now))

	admissions := 0
	for {
		w := r.TimeToWait()
		clock.Advance(w)
		if clock.Now().Sub(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)) >= 10*time.Second {
			break
		}
		admissions++
	}

	// Area under the ramp: (10 + 20) / 2 * 10s = 150 admissions.
	if admissions < 145 || admissions > 155 {
		t.Errorf("admissions over ramp = %d, want ~150", admissions)
	}
}

func TestRamp_HoldsTargetAfterRamp(t *testing.T) {
	clock := newFakeClock()
	r, _ := NewRamp(1, 10, time.Second, WithClock(clock.Now))

	clock.Advance(5 * time.Second)
	_ = r.TimeToWait()

	if w := r.TimeToWait(); w != 100*time.Millisecond {
		t.Errorf("TimeToWait() past ramp = %v, want 100ms", w)
	}
	if got := r.CurrentRate(); got != 10 {
		t.Errorf("CurrentRate() = %v, want 10", got)
	}
}

func TestRamp_Wait_RespectsContext(t *testing.T) {
	r, _ := NewConstant(1)

	// First admission is immediate.
	if err := r.Wait(context.Background()); err != nil {
		t.Fatalf("first Wait() error = %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	start := time.Now()
	err := r.Wait(ctx)
	elapsed := time.Since(start)

	if err != context.DeadlineExceeded {
		t.Errorf("Wait() error = %v, want DeadlineExceeded", err)
	}
	if elapsed > 200*time.Millisecond {
		t.Errorf("Wait() took %v, should have cancelled quickly", elapsed)
	}
}

func TestRamp_Reset(t *testing.T) {
	clock := newFakeClock()
	r, _ := NewConstant(10, WithClock(clock.Now))

	_ = r.TimeToWait()
	_ = r.TimeToWait()
	r.Reset()

	if w := r.TimeToWait(); w != 0 {
		t.Errorf("TimeToWait() after Reset = %v, want 0", w)
	}
	if stats := r.Stats(); stats.Admissions != 1 {
		t.Errorf("Stats().Admissions = %d, want 1", stats.Admissions)
	}
}
