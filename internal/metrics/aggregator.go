package metrics

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/HdrHistogram/hdrhistogram-go"
	"go.uber.org/zap"
)

// ErrClosed is returned when submitting to or querying a stopped aggregator.
var ErrClosed = errors.New("aggregator closed")

// Sink receives the measurement stream and rendered snapshots.
//
// Sinks are only ever called from the aggregator goroutine, one call at a
// time, so they need no locking of their own.
type Sink interface {
	// Consume is called once per submitted batch, in arrival order.
	Consume(batch Batch)
	// Render is called on every reporting tick and once with final set
	// when the run is flushed.
	Render(snap *Snapshot, final bool)
}

// Key identifies one row of aggregated statistics.
type Key struct {
	Scenario string `json:"scenario"`
	Step     string `json:"step"`
	Status   string `json:"status"`
}

// AggregatorConfig contains configuration for the aggregator.
type AggregatorConfig struct {
	// BufferSize bounds the batch queue; Submit blocks when it is full (default: 1024)
	BufferSize int

	// Interval between periodic snapshots; zero disables them (default: 5s)
	Interval time.Duration

	// WindowSize is the number of recent samples kept per key (default: 100)
	WindowSize int

	// HistogramMin is the minimum recordable value in microseconds (default: 1)
	HistogramMin int64

	// HistogramMax is the maximum recordable value in microseconds (default: 3600000000 = 1 hour)
	HistogramMax int64

	// HistogramSigFigs is the number of significant figures (default: 3)
	HistogramSigFigs int
}

// DefaultAggregatorConfig returns the default configuration.
func DefaultAggregatorConfig() AggregatorConfig {
	return AggregatorConfig{
		BufferSize:       1024,
		Interval:         5 * time.Second,
		WindowSize:       DefaultWindowSize,
		HistogramMin:     1,
		HistogramMax:     3600000000, // 1 hour in microseconds
		HistogramSigFigs: 3,
	}
}

type entry struct {
	count        int64
	totalElapsed time.Duration
	failed       bool
	window       *window
	hist         *hdrhistogram.Histogram
}

type cycleEntry struct {
	completed     int64
	failed        int64
	totalDuration time.Duration
}

type request struct {
	final bool
	reply chan *Snapshot
}

// Aggregator is the single writer of all run statistics.
//
// Producers hand over immutable batches with Submit; a single goroutine
// owns every counter, window and histogram. Snapshots and the final flush
// are requests answered by that goroutine, so no state is ever shared.
//
// # Lifecycle
//
// NewAggregator starts the consumer goroutine. Flush renders the final
// snapshot after every batch submitted before it has been consumed. Stop
// ends the goroutine; it is idempotent.
type Aggregator struct {
	config AggregatorConfig
	sinks  []Sink
	logger *zap.Logger

	in       chan Batch
	requests chan request
	quit     chan struct{}
	done     chan struct{}
	stopOnce sync.Once

	// Owned by the consumer goroutine.
	entries map[Key]*entry
	cycles  map[string]*cycleEntry
	total   int64
	failed  int64
	start   time.Time
}

// NewAggregator creates an aggregator feeding sinks and starts it.
func NewAggregator(config AggregatorConfig, logger *zap.Logger, sinks ...Sink) *Aggregator {
	defaults := DefaultAggregatorConfig()
	if config.BufferSize <= 0 {
		config.BufferSize = defaults.BufferSize
	}
	if config.WindowSize <= 0 {
		config.WindowSize = defaults.WindowSize
	}
	if config.HistogramMin <= 0 {
		config.HistogramMin = defaults.HistogramMin
	}
	if config.HistogramMax <= config.HistogramMin {
		config.HistogramMax = defaults.HistogramMax
	}
	if config.HistogramSigFigs <= 0 {
		config.HistogramSigFigs = defaults.HistogramSigFigs
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	a := &Aggregator{
		config:   config,
		sinks:    sinks,
		logger:   logger,
		in:       make(chan Batch, config.BufferSize),
		requests: make(chan request),
		quit:     make(chan struct{}),
		done:     make(chan struct{}),
		entries:  make(map[Key]*entry),
		cycles:   make(map[string]*cycleEntry),
		start:    time.Now(),
	}

	go a.run()
	return a
}

// Submit hands a batch to the aggregator. It blocks while the queue is full.
func (a *Aggregator) Submit(ctx context.Context, batch Batch) error {
	select {
	case a.in <- batch:
		return nil
	case <-a.done:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Snapshot returns the current statistics without rendering them.
func (a *Aggregator) Snapshot(ctx context.Context) (*Snapshot, error) {
	return a.ask(ctx, false)
}

// Flush consumes every queued batch, renders the final snapshot to all
// sinks and returns it once rendering has completed.
func (a *Aggregator) Flush(ctx context.Context) (*Snapshot, error) {
	return a.ask(ctx, true)
}

func (a *Aggregator) ask(ctx context.Context, final bool) (*Snapshot, error) {
	req := request{final: final, reply: make(chan *Snapshot, 1)}

	select {
	case a.requests <- req:
	case <-a.done:
		return nil, ErrClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	select {
	case snap := <-req.reply:
		return snap, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Stop stops the consumer goroutine. Queued batches that were not flushed
// are discarded.
func (a *Aggregator) Stop() {
	a.stopOnce.Do(func() {
		close(a.quit)
	})
	<-a.done
}

func (a *Aggregator) run() {
	defer close(a.done)

	var tick <-chan time.Time
	if a.config.Interval > 0 {
		ticker := time.NewTicker(a.config.Interval)
		defer ticker.Stop()
		tick = ticker.C
	}

	for {
		select {
		case <-a.quit:
			return
		case batch := <-a.in:
			a.consume(batch)
		case <-tick:
			a.render(a.snapshot(false), false)
		case req := <-a.requests:
			a.drain()
			snap := a.snapshot(req.final)
			if req.final {
				a.render(snap, true)
			}
			req.reply <- snap
		}
	}
}

// drain consumes every batch already queued.
func (a *Aggregator) drain() {
	for {
		select {
		case batch := <-a.in:
			a.consume(batch)
		default:
			return
		}
	}
}

func (a *Aggregator) consume(batch Batch) {
	for _, m := range batch.Measurements {
		a.record(m)
	}

	if batch.Cycle.Scenario != "" {
		c, ok := a.cycles[batch.Cycle.Scenario]
		if !ok {
			c = &cycleEntry{}
			a.cycles[batch.Cycle.Scenario] = c
		}
		c.completed++
		if batch.Cycle.Failed {
			c.failed++
		}
		c.totalDuration += batch.Cycle.End.Sub(batch.Cycle.Start)
	}

	for _, sink := range a.sinks {
		sink.Consume(batch)
	}
}

func (a *Aggregator) record(m Measurement) {
	key := Key{Scenario: m.Scenario, Step: m.Step, Status: m.Status}
	e, ok := a.entries[key]
	if !ok {
		e = &entry{
			window: newWindow(a.config.WindowSize),
			hist:   hdrhistogram.New(a.config.HistogramMin, a.config.HistogramMax, a.config.HistogramSigFigs),
		}
		a.entries[key] = e
	}

	e.count++
	e.totalElapsed += m.Elapsed
	e.window.add(m.Elapsed)
	if m.Failed() {
		e.failed = true
		a.failed++
	}
	a.total++

	// Clamp to valid range
	micros := m.Elapsed.Microseconds()
	if micros < a.config.HistogramMin {
		micros = a.config.HistogramMin
	}
	if micros > a.config.HistogramMax {
		micros = a.config.HistogramMax
	}
	if err := e.hist.RecordValue(micros); err != nil {
		a.logger.Debug("histogram record failed", zap.Error(err))
	}
}

func (a *Aggregator) render(snap *Snapshot, final bool) {
	for _, sink := range a.sinks {
		sink.Render(snap, final)
	}
}

func (a *Aggregator) snapshot(final bool) *Snapshot {
	now := time.Now()
	snap := &Snapshot{
		Timestamp:          now,
		Elapsed:            now.Sub(a.start),
		Final:              final,
		TotalMeasurements:  a.total,
		FailedMeasurements: a.failed,
		Entries:            make([]Entry, 0, len(a.entries)),
		Cycles:             make([]CycleStats, 0, len(a.cycles)),
	}

	for key, e := range a.entries {
		snap.Entries = append(snap.Entries, Entry{
			Key:          key,
			Count:        e.count,
			Failed:       e.failed,
			TotalElapsed: e.totalElapsed,
			Window:       e.window.stats(),
			Overall:      histogramStats(e.hist),
		})
	}
	sort.Slice(snap.Entries, func(i, j int) bool {
		ki, kj := snap.Entries[i].Key, snap.Entries[j].Key
		if ki.Scenario != kj.Scenario {
			return ki.Scenario < kj.Scenario
		}
		if ki.Step != kj.Step {
			return ki.Step < kj.Step
		}
		return ki.Status < kj.Status
	})

	for scenario, c := range a.cycles {
		snap.Cycles = append(snap.Cycles, CycleStats{
			Scenario:      scenario,
			Completed:     c.completed,
			Failed:        c.failed,
			TotalDuration: c.totalDuration,
		})
	}
	sort.Slice(snap.Cycles, func(i, j int) bool {
		return snap.Cycles[i].Scenario < snap.Cycles[j].Scenario
	})

	return snap
}

func histogramStats(hist *hdrhistogram.Histogram) LatencyStats {
	return LatencyStats{
		Min:    time.Duration(hist.Min()) * time.Microsecond,
		Max:    time.Duration(hist.Max()) * time.Microsecond,
		Mean:   time.Duration(hist.Mean()) * time.Microsecond,
		StdDev: time.Duration(hist.StdDev()) * time.Microsecond,
		P50:    time.Duration(hist.ValueAtQuantile(50)) * time.Microsecond,
		P90:    time.Duration(hist.ValueAtQuantile(90)) * time.Microsecond,
		P95:    time.Duration(hist.ValueAtQuantile(95)) * time.Microsecond,
		P99:    time.Duration(hist.ValueAtQuantile(99)) * time.Microsecond,
		Count:  hist.TotalCount(),
	}
}
