package metrics

import "time"

// Snapshot contains a point-in-time view of all aggregated statistics.
type Snapshot struct {
	Timestamp          time.Time     `json:"timestamp"`
	Elapsed            time.Duration `json:"elapsed"`
	Final              bool          `json:"final"`
	TotalMeasurements  int64         `json:"totalMeasurements"`
	FailedMeasurements int64         `json:"failedMeasurements"`
	Entries            []Entry       `json:"entries"`
	Cycles             []CycleStats  `json:"cycles"`
}

// Entry is the statistics row of one (scenario, step, status) key.
type Entry struct {
	Key
	Count        int64         `json:"count"`
	Failed       bool          `json:"failed"`
	TotalElapsed time.Duration `json:"totalElapsed"`
	// Window covers the most recent samples only.
	Window LatencyStats `json:"window"`
	// Overall covers the whole run.
	Overall LatencyStats `json:"overall"`
}

// MeanElapsed returns the cumulative mean elapsed time.
func (e Entry) MeanElapsed() time.Duration {
	if e.Count == 0 {
		return 0
	}
	return e.TotalElapsed / time.Duration(e.Count)
}

// CycleStats counts completed cycles of one scenario.
type CycleStats struct {
	Scenario      string        `json:"scenario"`
	Completed     int64         `json:"completed"`
	Failed        int64         `json:"failed"`
	TotalDuration time.Duration `json:"totalDuration"`
}

// LatencyStats contains latency statistics.
type LatencyStats struct {
	Min    time.Duration `json:"min"`
	Max    time.Duration `json:"max"`
	Mean   time.Duration `json:"mean"`
	StdDev time.Duration `json:"stdDev,omitempty"`
	P50    time.Duration `json:"p50"`
	P90    time.Duration `json:"p90"`
	P95    time.Duration `json:"p95"`
	P99    time.Duration `json:"p99"`
	Count  int64         `json:"count"`
}

// Find returns the entry for key.
func (s *Snapshot) Find(key Key) (Entry, bool) {
	for _, e := range s.Entries {
		if e.Key == key {
			return e, true
		}
	}
	return Entry{}, false
}

// Cycle returns the cycle statistics of scenario.
func (s *Snapshot) Cycle(scenario string) (CycleStats, bool) {
	for _, c := range s.Cycles {
		if c.Scenario == scenario {
			return c, true
		}
	}
	return CycleStats{}, false
}

// ErrorRate returns the share of failed measurements.
func (s *Snapshot) ErrorRate() float64 {
	if s.TotalMeasurements == 0 {
		return 0
	}
	return float64(s.FailedMeasurements) / float64(s.TotalMeasurements)
}
