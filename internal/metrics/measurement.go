// Package metrics collects step measurements from concurrent load cycles
// and aggregates them into running statistics.
package metrics

import (
	"strconv"
	"time"
)

// Status strings used by measurements that do not carry an HTTP status code.
const (
	// StatusNA marks a network-level failure where no response was received.
	StatusNA = "N/A"
	// StatusOK marks a successful non-HTTP measurement.
	StatusOK = "OK"
	// StatusKO marks a failed non-HTTP measurement.
	StatusKO = "KO"
)

// Measurement is the recorded outcome of one executed step.
//
// Measurements are immutable once recorded; they are copied into batches
// and handed to the aggregator by value.
type Measurement struct {
	Scenario string        `json:"scenario"` // Parent (measurement point) name
	Step     string        `json:"step"`
	UserID   string        `json:"userId"`
	Start    time.Time     `json:"start"`
	End      time.Time     `json:"end"`
	Elapsed  time.Duration `json:"elapsed"`
	Status   string        `json:"status"`
	Message  string        `json:"message,omitempty"`
}

// NewMeasurement builds a measurement spanning start to end.
func NewMeasurement(scenario, step, userID string, start, end time.Time, status string) Measurement {
	return Measurement{
		Scenario: scenario,
		Step:     step,
		UserID:   userID,
		Start:    start,
		End:      end,
		Elapsed:  end.Sub(start),
		Status:   status,
	}
}

// ElapsedMillis returns the elapsed time in milliseconds.
func (m Measurement) ElapsedMillis() int64 {
	return m.Elapsed.Milliseconds()
}

// Failed reports whether the measurement records a failure: a network error,
// an explicit KO, or an HTTP status of 400 or above.
func (m Measurement) Failed() bool {
	switch m.Status {
	case StatusNA, StatusKO:
		return true
	case StatusOK, "":
		return false
	}
	if code, err := strconv.Atoi(m.Status); err == nil {
		return code >= 400
	}
	return m.Message != ""
}

// StatusCode formats an HTTP status code as a measurement status.
func StatusCode(code int) string {
	return strconv.Itoa(code)
}

// CycleEvent marks the start or end of one cycle of a scenario.
type CycleEvent struct {
	Scenario string    `json:"scenario"`
	UserID   string    `json:"userId"`
	Start    time.Time `json:"start"`
	End      time.Time `json:"end"`
	Failed   bool      `json:"failed"`
}

// Batch is the unit producers hand to the aggregator: all measurements of a
// single cycle plus the cycle event itself.
type Batch struct {
	Cycle        CycleEvent    `json:"cycle"`
	Measurements []Measurement `json:"measurements"`
}
