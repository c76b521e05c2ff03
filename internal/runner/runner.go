// Package runner drives a load run: it waits for authenticated users, admits
// cycles at the ramp's pace through a bounded window, and drains in-flight
// work once the configured duration has elapsed.
package runner

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/wesleyorama2/stampede/internal/cyclic"
	"github.com/wesleyorama2/stampede/internal/dsl"
	"github.com/wesleyorama2/stampede/internal/materializer"
	"github.com/wesleyorama2/stampede/internal/metrics"
	"github.com/wesleyorama2/stampede/internal/rate"
	"github.com/wesleyorama2/stampede/internal/scenario"
	"github.com/wesleyorama2/stampede/internal/session"
	"github.com/wesleyorama2/stampede/internal/users"
)

// ErrAlreadyStarted is returned by Start when called more than once.
var ErrAlreadyStarted = errors.New("runner already started")

// UserSource supplies authenticated users.
type UserSource interface {
	Has(count int) bool
	Lease(count int, region string) ([]users.User, error)
}

// Executor runs one cycle of a scenario against a session.
type Executor interface {
	Run(ctx context.Context, scenario string, root dsl.Step, s *session.Session) (*session.Session, error)
}

// Collector receives cycle results and produces the final report.
type Collector interface {
	Submit(ctx context.Context, batch metrics.Batch) error
	Flush(ctx context.Context) (*metrics.Snapshot, error)
}

// Config contains configuration for a Runner.
type Config struct {
	// RunID tags logs and reports (default: random UUID)
	RunID string

	// Duration is how long cycles are admitted
	Duration time.Duration

	// MaxConcurrency bounds in-flight cycles
	MaxConcurrency int

	// GracefulStop is how long in-flight cycles may run once draining
	// starts before their context is cancelled (default: 30s)
	GracefulStop time.Duration

	// Admission rate ramp
	StartRPS     float64
	TargetRPS    float64
	RampDuration time.Duration

	// UserCount is the number of session slots
	UserCount int
	// Region restricts leased users (optional)
	Region string

	// WarmupPoll is the user-availability polling interval (default: 1s)
	WarmupPoll time.Duration
	// CheckInterval is how often elapsed time is compared to Duration (default: 1s)
	CheckInterval time.Duration
	// HeartbeatInterval is how often progress is logged (default: 10s)
	HeartbeatInterval time.Duration
}

func (c *Config) applyDefaults() {
	if c.RunID == "" {
		c.RunID = uuid.NewString()
	}
	if c.GracefulStop <= 0 {
		c.GracefulStop = 30 * time.Second
	}
	if c.StartRPS <= 0 {
		c.StartRPS = c.TargetRPS
	}
	if c.WarmupPoll <= 0 {
		c.WarmupPoll = time.Second
	}
	if c.CheckInterval <= 0 {
		c.CheckInterval = time.Second
	}
	if c.HeartbeatInterval <= 0 {
		c.HeartbeatInterval = 10 * time.Second
	}
}

func (c *Config) validate() error {
	switch {
	case c.Duration <= 0:
		return fmt.Errorf("runner: duration must be greater than 0")
	case c.MaxConcurrency <= 0:
		return fmt.Errorf("runner: max concurrency must be greater than 0")
	case c.UserCount <= 0:
		return fmt.Errorf("runner: user count must be greater than 0")
	case c.TargetRPS <= 0:
		return fmt.Errorf("runner: target rate must be greater than 0")
	}
	return nil
}

// Result summarises a finished run.
type Result struct {
	RunID     string
	Started   time.Time
	Finished  time.Time
	Admitted  int64
	Completed int64
	Failed    int64
	Snapshot  *metrics.Snapshot
}

// Runner orchestrates a single load run.
type Runner struct {
	config    Config
	users     UserSource
	scenarios []*scenario.Scenario
	exec      Executor
	collector Collector
	logger    *zap.Logger

	state   atomic.Int32
	started atomic.Bool

	stopOnce sync.Once
	stopCh   chan struct{}

	admitted  atomic.Int64
	inFlight  atomic.Int64
	completed atomic.Int64
	failed    atomic.Int64

	fatalOnce sync.Once
	fatal     error
}

// New creates a runner. It fails with a configuration error when cfg is
// incomplete or no scenario is given.
func New(cfg Config, source UserSource, scenarios []*scenario.Scenario, exec Executor, collector Collector, logger *zap.Logger) (*Runner, error) {
	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	if len(scenarios) == 0 {
		return nil, fmt.Errorf("runner: %w", cyclic.ErrEmpty)
	}
	if source == nil || exec == nil || collector == nil {
		return nil, fmt.Errorf("runner: user source, executor and collector are required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Runner{
		config:    cfg,
		users:     source,
		scenarios: scenarios,
		exec:      exec,
		collector: collector,
		logger:    logger.With(zap.String("runId", cfg.RunID)),
		stopCh:    make(chan struct{}),
	}, nil
}

// RunID returns the identifier of this run.
func (r *Runner) RunID() string { return r.config.RunID }

// State returns the current lifecycle state.
func (r *Runner) State() State { return State(r.state.Load()) }

func (r *Runner) setState(s State) {
	r.state.Store(int32(s))
	r.logger.Info("runner state changed", zap.Stringer("state", s))
}

// Stats returns live counters.
func (r *Runner) Stats() Stats {
	return Stats{
		State:     r.State(),
		Admitted:  r.admitted.Load(),
		InFlight:  r.inFlight.Load(),
		Completed: r.completed.Load(),
		Failed:    r.failed.Load(),
	}
}

// Stop ends admission and moves the run to draining. It is safe to call
// more than once and from any goroutine.
func (r *Runner) Stop() {
	r.stopOnce.Do(func() { close(r.stopCh) })
}

// Start runs the whole lifecycle and blocks until the run terminates.
//
// Cancelling ctx ends admission like Stop; in-flight cycles still get
// GracefulStop to finish. The returned error is non-nil only for fatal
// aborts: a failed warm-up, a failing prepare hook or an invariant
// violation inside a step tree.
func (r *Runner) Start(ctx context.Context) (*Result, error) {
	if !r.started.CompareAndSwap(false, true) {
		return nil, ErrAlreadyStarted
	}
	result := &Result{RunID: r.config.RunID, Started: time.Now()}
	defer r.setState(StateTerminated)

	r.setState(StateWarmingUp)
	leased, err := r.warmUp(ctx)
	if err != nil {
		return result, err
	}
	if leased == nil {
		r.logger.Info("stopped during warm-up")
		result.Finished = time.Now()
		return result, nil
	}

	sessions := session.NewPool(leased, session.NewSimulation())
	slots, err := cyclic.New(sessions)
	if err != nil {
		return result, err
	}
	picks, err := cyclic.New(r.scenarios)
	if err != nil {
		return result, err
	}

	// Cycles outlive admission so they can finish while draining.
	cycleCtx, cancelCycles := context.WithCancel(context.WithoutCancel(ctx))
	defer cancelCycles()

	ramp, err := rate.NewRamp(r.config.StartRPS, r.config.TargetRPS, r.config.RampDuration)
	if err != nil {
		return result, err
	}

	if err := r.runHooks(cycleCtx, sessions, true); err != nil {
		return result, err
	}

	// The ramp starts with the first admission, not before the prepare hooks.
	ramp.Reset()
	r.setState(StateRunning)
	admitCtx, stopAdmission := context.WithCancel(ctx)
	defer stopAdmission()

	var timers sync.WaitGroup
	timers.Add(1)
	go func() {
		defer timers.Done()
		r.watch(admitCtx, stopAdmission, ramp, slots)
	}()

	var inflight sync.WaitGroup
	r.admit(admitCtx, cycleCtx, stopAdmission, ramp, slots, picks, &inflight)
	stopAdmission()
	timers.Wait()

	r.setState(StateDraining)
	slots.Stop()
	picks.Stop()
	r.drain(&inflight, cancelCycles)

	cleanupCtx, cancelCleanup := context.WithTimeout(context.WithoutCancel(ctx), r.config.GracefulStop)
	defer cancelCleanup()
	if err := r.runHooks(cleanupCtx, sessions, false); err != nil {
		r.logger.Error("cleanup hook failed", zap.Error(err))
	}

	flushCtx, cancelFlush := context.WithTimeout(context.WithoutCancel(ctx), r.config.GracefulStop)
	defer cancelFlush()
	snap, err := r.collector.Flush(flushCtx)
	if err != nil {
		r.logger.Error("final report failed", zap.Error(err))
	}

	result.Finished = time.Now()
	result.Admitted = r.admitted.Load()
	result.Completed = r.completed.Load()
	result.Failed = r.failed.Load()
	result.Snapshot = snap

	rampStats := ramp.Stats()
	r.logger.Info("run finished",
		zap.Duration("elapsed", result.Finished.Sub(result.Started)),
		zap.Int64("admitted", result.Admitted),
		zap.Int64("completed", result.Completed),
		zap.Int64("failed", result.Failed),
		zap.Int64("lagged", rampStats.Lagged),
		zap.Duration("admissionWait", rampStats.TotalWaitTime))

	return result, r.fatal
}

// warmUp blocks until the user source can lease the configured number of
// users. A nil slice with a nil error means Stop was called.
func (r *Runner) warmUp(ctx context.Context) ([]users.User, error) {
	ticker := time.NewTicker(r.config.WarmupPoll)
	defer ticker.Stop()

	for attempt := 1; ; attempt++ {
		if r.users.Has(r.config.UserCount) {
			leased, err := r.users.Lease(r.config.UserCount, r.config.Region)
			if err == nil {
				r.logger.Info("users ready", zap.Int("count", len(leased)))
				return leased, nil
			}
			var insufficient *users.InsufficientUsersError
			if !errors.As(err, &insufficient) {
				return nil, fmt.Errorf("lease users: %w", err)
			}
			r.logger.Info("waiting for users", zap.Int("attempt", attempt), zap.Error(err))
		} else if attempt == 1 || attempt%10 == 0 {
			r.logger.Info("waiting for users",
				zap.Int("attempt", attempt),
				zap.Int("want", r.config.UserCount))
		}

		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("warm-up aborted: %w", ctx.Err())
		case <-r.stopCh:
			return nil, nil
		case <-ticker.C:
		}
	}
}

// watch ends admission once Duration has elapsed or Stop is called, and
// logs a heartbeat.
func (r *Runner) watch(ctx context.Context, stopAdmission context.CancelFunc, ramp *rate.Ramp, slots *cyclic.Repository[*session.Session]) {
	start := time.Now()
	check := time.NewTicker(r.config.CheckInterval)
	defer check.Stop()
	heartbeat := time.NewTicker(r.config.HeartbeatInterval)
	defer heartbeat.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-r.stopCh:
			r.logger.Info("stop requested")
			stopAdmission()
			return
		case <-check.C:
			if time.Since(start) >= r.config.Duration {
				r.logger.Info("duration reached", zap.Duration("duration", r.config.Duration))
				stopAdmission()
				return
			}
		case <-heartbeat.C:
			st := r.Stats()
			busy, idle := busySlots(slots)
			r.logger.Info("heartbeat",
				zap.Duration("elapsed", time.Since(start).Truncate(time.Second)),
				zap.Float64("rps", ramp.CurrentRate()),
				zap.Int64("admitted", st.Admitted),
				zap.Int64("inFlight", st.InFlight),
				zap.Int64("completed", st.Completed),
				zap.Int64("failed", st.Failed),
				zap.Int("busySlots", busy),
				zap.Strings("idleSlots", idle))
		}
	}
}

// admit is the admission loop. It paces with the ramp, then blocks on the
// window, then on a free session slot.
func (r *Runner) admit(
	ctx, cycleCtx context.Context,
	stopAdmission context.CancelFunc,
	ramp *rate.Ramp,
	slots *cyclic.Repository[*session.Session],
	picks *cyclic.Repository[*scenario.Scenario],
	inflight *sync.WaitGroup,
) {
	window := semaphore.NewWeighted(int64(r.config.MaxConcurrency))
	released := make(chan struct{}, 1)

	for {
		if err := ramp.Wait(ctx); err != nil {
			return
		}
		if err := window.Acquire(ctx, 1); err != nil {
			return
		}
		s, err := r.nextSlot(ctx, slots, released)
		if err != nil {
			window.Release(1)
			return
		}
		sc, err := picks.Take()
		if err != nil {
			s.Release()
			window.Release(1)
			return
		}

		r.admitted.Add(1)
		r.inFlight.Add(1)
		inflight.Add(1)
		go func() {
			defer inflight.Done()
			defer window.Release(1)
			defer func() {
				s.Release()
				select {
				case released <- struct{}{}:
				default:
				}
			}()
			r.cycle(cycleCtx, stopAdmission, sc, s)
		}()
	}
}

// nextSlot returns the next session no other cycle holds. When every slot
// is busy it waits for a release.
func (r *Runner) nextSlot(ctx context.Context, slots *cyclic.Repository[*session.Session], released <-chan struct{}) (*session.Session, error) {
	for {
		for range slots.Len() {
			s, err := slots.Take()
			if err != nil {
				return nil, err
			}
			if s.TryAcquire() {
				return s, nil
			}
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-released:
		}
	}
}

// cycle runs one scenario against s and hands the outcome to the collector.
func (r *Runner) cycle(ctx context.Context, stopAdmission context.CancelFunc, sc *scenario.Scenario, s *session.Session) {
	defer r.inFlight.Add(-1)

	s.BeginCycle()
	start := time.Now()
	err := r.runCycle(ctx, sc, s)
	end := time.Now()

	if err != nil {
		r.failed.Add(1)
	} else {
		r.completed.Add(1)
	}
	if materializer.IsFatal(err) {
		r.fatalOnce.Do(func() {
			r.fatal = fmt.Errorf("scenario %s: %w", sc.Name, err)
			r.logger.Error("aborting run", zap.Error(err))
		})
		stopAdmission()
	}

	batch := metrics.Batch{
		Cycle: metrics.CycleEvent{
			Scenario: sc.Name,
			UserID:   userID(s.User()),
			Start:    start,
			End:      end,
			Failed:   err != nil,
		},
		Measurements: s.DrainMeasurements(),
	}
	if err := r.collector.Submit(context.WithoutCancel(ctx), batch); err != nil {
		r.logger.Warn("dropping cycle result", zap.Error(err))
	}
}

// runCycle runs the step tree between the scenario's per-cycle hooks.
func (r *Runner) runCycle(ctx context.Context, sc *scenario.Scenario, s *session.Session) error {
	if before := sc.Hooks.BeforeCycle; before != nil {
		if err := before(ctx, s); err != nil {
			err = fmt.Errorf("before-cycle hook: %w", err)
			r.logger.Debug("cycle skipped", zap.String("scenario", sc.Name), zap.Stringer("session", s), zap.Error(err))
			return err
		}
	}

	_, err := r.exec.Run(ctx, sc.Name, sc.Root, s)

	if after := sc.Hooks.AfterCycle; after != nil {
		if hookErr := after(ctx, s); hookErr != nil {
			r.logger.Debug("after-cycle hook failed", zap.String("scenario", sc.Name), zap.Stringer("session", s), zap.Error(hookErr))
			if err == nil {
				err = fmt.Errorf("after-cycle hook: %w", hookErr)
			}
		}
	}
	return err
}

// drain waits for in-flight cycles. After GracefulStop their context is
// cancelled so waits, requests and loops return.
func (r *Runner) drain(inflight *sync.WaitGroup, cancelCycles context.CancelFunc) {
	done := make(chan struct{})
	go func() {
		inflight.Wait()
		close(done)
	}()

	r.logger.Info("draining", zap.Int64("inFlight", r.inFlight.Load()))
	select {
	case <-done:
	case <-time.After(r.config.GracefulStop):
		r.logger.Warn("graceful stop timeout reached, cancelling in-flight cycles",
			zap.Int64("inFlight", r.inFlight.Load()))
		cancelCycles()
		<-done
	}
}

func (r *Runner) runHooks(ctx context.Context, sessions []*session.Session, prepare bool) error {
	for _, sc := range r.scenarios {
		hook := sc.Hooks.Cleanup
		phase := "cleanup"
		if prepare {
			hook = sc.Hooks.Prepare
			phase = "prepare"
		}
		if hook == nil {
			continue
		}
		if err := hook(ctx, sessions); err != nil {
			return fmt.Errorf("%s hook for scenario %s: %w", phase, sc.Name, err)
		}
		r.logger.Info("hook finished", zap.String("phase", phase), zap.String("scenario", sc.Name))
	}
	return nil
}

// busySlots counts the sessions held by a cycle and names those that have
// not begun a single cycle yet.
func busySlots(slots *cyclic.Repository[*session.Session]) (busy int, idle []string) {
	for _, s := range slots.Items() {
		if s.Busy() {
			busy++
		}
		if s.Cycles() == 0 {
			idle = append(idle, s.String())
		}
	}
	return busy, idle
}

func userID(u users.User) string {
	if u.ID != "" {
		return u.ID
	}
	return u.Username
}
