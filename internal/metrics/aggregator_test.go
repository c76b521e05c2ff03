package metrics

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

type recordingSink struct {
	mu      sync.Mutex
	batches []Batch
	renders []*Snapshot
	finals  int
}

func (s *recordingSink) Consume(batch Batch) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.batches = append(s.batches, batch)
}

func (s *recordingSink) Render(snap *Snapshot, final bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.renders = append(s.renders, snap)
	if final {
		s.finals++
	}
}

func measurement(step, status string, elapsed time.Duration) Measurement {
	start := time.Unix(1_700_000_000, 0)
	return NewMeasurement("shop", step, "u-1", start, start.Add(elapsed), status)
}

func TestAggregator_FlushConsumesQueued(t *testing.T) {
	sink := &recordingSink{}
	agg := NewAggregator(AggregatorConfig{Interval: 0}, nil, sink)
	defer agg.Stop()

	ctx := context.Background()
	for i := 0; i < 50; i++ {
		batch := Batch{
			Cycle: CycleEvent{Scenario: "shop", Start: time.Now(), End: time.Now(), Failed: i%10 == 0},
			Measurements: []Measurement{
				measurement("list", "200", 10*time.Millisecond),
				measurement("detail", "500", 30*time.Millisecond),
			},
		}
		if err := agg.Submit(ctx, batch); err != nil {
			t.Fatalf("Submit() error = %v", err)
		}
	}

	snap, err := agg.Flush(ctx)
	if err != nil {
		t.Fatalf("Flush() error = %v", err)
	}

	if !snap.Final {
		t.Error("Flush() snapshot should be final")
	}
	if snap.TotalMeasurements != 100 {
		t.Errorf("TotalMeasurements = %d, want 100", snap.TotalMeasurements)
	}
	if snap.FailedMeasurements != 50 {
		t.Errorf("FailedMeasurements = %d, want 50", snap.FailedMeasurements)
	}
	if len(snap.Entries) != 2 {
		t.Fatalf("len(Entries) = %d, want 2", len(snap.Entries))
	}
	if snap.Entries[0].Step != "detail" || snap.Entries[1].Step != "list" {
		t.Errorf("entries not sorted: %+v", snap.Entries)
	}

	list, ok := snap.Find(Key{Scenario: "shop", Step: "list", Status: "200"})
	if !ok {
		t.Fatal("list entry missing")
	}
	if list.Count != 50 {
		t.Errorf("list Count = %d, want 50", list.Count)
	}
	if list.MeanElapsed() != 10*time.Millisecond {
		t.Errorf("list MeanElapsed() = %v, want 10ms", list.MeanElapsed())
	}
	if list.Failed {
		t.Error("list entry should not be failed")
	}

	cycle, ok := snap.Cycle("shop")
	if !ok {
		t.Fatal("cycle stats missing")
	}
	if cycle.Completed != 50 || cycle.Failed != 5 {
		t.Errorf("cycle = %+v, want 50 completed, 5 failed", cycle)
	}

	sink.mu.Lock()
	defer sink.mu.Unlock()
	if len(sink.batches) != 50 {
		t.Errorf("sink consumed %d batches, want 50", len(sink.batches))
	}
	if sink.finals != 1 {
		t.Errorf("sink final renders = %d, want 1", sink.finals)
	}
}

func TestAggregator_SnapshotDoesNotRender(t *testing.T) {
	sink := &recordingSink{}
	agg := NewAggregator(AggregatorConfig{}, nil, sink)
	defer agg.Stop()

	ctx := context.Background()
	_ = agg.Submit(ctx, Batch{Measurements: []Measurement{measurement("a", "200", time.Millisecond)}})

	snap, err := agg.Snapshot(ctx)
	if err != nil {
		t.Fatalf("Snapshot() error = %v", err)
	}
	if snap.Final {
		t.Error("Snapshot() should not be final")
	}
	if snap.TotalMeasurements != 1 {
		t.Errorf("TotalMeasurements = %d, want 1", snap.TotalMeasurements)
	}

	sink.mu.Lock()
	defer sink.mu.Unlock()
	if len(sink.renders) != 0 {
		t.Errorf("renders = %d, want 0", len(sink.renders))
	}
}

func TestAggregator_PeriodicRender(t *testing.T) {
	sink := &recordingSink{}
	agg := NewAggregator(AggregatorConfig{Interval: 10 * time.Millisecond}, nil, sink)
	defer agg.Stop()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		sink.mu.Lock()
		n := len(sink.renders)
		sink.mu.Unlock()
		if n >= 2 {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Error("expected periodic renders")
}

func TestAggregator_RollingWindow(t *testing.T) {
	agg := NewAggregator(AggregatorConfig{WindowSize: 100}, nil)
	defer agg.Stop()

	ctx := context.Background()
	// 100 slow samples followed by 100 fast ones: the window only sees the fast ones.
	for i := 0; i < 100; i++ {
		_ = agg.Submit(ctx, Batch{Measurements: []Measurement{measurement("a", "200", time.Second)}})
	}
	for i := 1; i <= 100; i++ {
		_ = agg.Submit(ctx, Batch{Measurements: []Measurement{measurement("a", "200", time.Duration(i)*time.Millisecond)}})
	}

	snap, err := agg.Snapshot(ctx)
	if err != nil {
		t.Fatalf("Snapshot() error = %v", err)
	}
	entry := snap.Entries[0]

	if entry.Count != 200 {
		t.Errorf("Count = %d, want 200", entry.Count)
	}
	if entry.Window.Count != 100 {
		t.Errorf("Window.Count = %d, want 100", entry.Window.Count)
	}
	if entry.Window.Max != 100*time.Millisecond {
		t.Errorf("Window.Max = %v, want 100ms", entry.Window.Max)
	}
	if entry.Window.P50 != 50*time.Millisecond {
		t.Errorf("Window.P50 = %v, want 50ms", entry.Window.P50)
	}
	if entry.Window.P99 != 99*time.Millisecond {
		t.Errorf("Window.P99 = %v, want 99ms", entry.Window.P99)
	}
	if entry.Overall.Max < 990*time.Millisecond {
		t.Errorf("Overall.Max = %v, want ~1s", entry.Overall.Max)
	}
}

func TestAggregator_Stop(t *testing.T) {
	agg := NewAggregator(AggregatorConfig{}, nil)
	agg.Stop()
	agg.Stop()

	if _, err := agg.Flush(context.Background()); !errors.Is(err, ErrClosed) {
		t.Errorf("Flush() after Stop error = %v, want ErrClosed", err)
	}
}

func TestAggregator_ConcurrentProducers(t *testing.T) {
	agg := NewAggregator(AggregatorConfig{BufferSize: 4}, nil)
	defer agg.Stop()

	ctx := context.Background()
	var wg sync.WaitGroup
	for p := 0; p < 10; p++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 100; i++ {
				_ = agg.Submit(ctx, Batch{Measurements: []Measurement{measurement("a", "200", time.Millisecond)}})
			}
		}()
	}
	wg.Wait()

	snap, err := agg.Flush(ctx)
	if err != nil {
		t.Fatalf("Flush() error = %v", err)
	}
	if snap.TotalMeasurements != 1000 {
		t.Errorf("TotalMeasurements = %d, want 1000", snap.TotalMeasurements)
	}
}

func TestMeasurement_Failed(t *testing.T) {
	tests := []struct {
		status string
		msg    string
		want   bool
	}{
		{"200", "", false},
		{"302", "", false},
		{"404", "", true},
		{"503", "", true},
		{StatusNA, "refused", true},
		{StatusKO, "", true},
		{StatusOK, "", false},
		{"TAGGED", "", false},
		{"TAGGED", "with message", true},
	}

	for _, tt := range tests {
		m := Measurement{Status: tt.status, Message: tt.msg}
		if got := m.Failed(); got != tt.want {
			t.Errorf("Measurement{%q, %q}.Failed() = %v, want %v", tt.status, tt.msg, got, tt.want)
		}
	}
}
