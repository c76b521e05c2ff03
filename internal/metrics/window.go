package metrics

import (
	"slices"
	"time"
)

// DefaultWindowSize is the number of most recent samples kept per key for
// rolling statistics.
const DefaultWindowSize = 100

// window is a fixed-size ring of the most recent elapsed times.
// It is owned by the aggregator goroutine and is not synchronized.
type window struct {
	samples []time.Duration
	next    int
	full    bool
}

func newWindow(size int) *window {
	if size <= 0 {
		size = DefaultWindowSize
	}
	return &window{samples: make([]time.Duration, size)}
}

func (w *window) add(d time.Duration) {
	w.samples[w.next] = d
	w.next++
	if w.next == len(w.samples) {
		w.next = 0
		w.full = true
	}
}

func (w *window) len() int {
	if w.full {
		return len(w.samples)
	}
	return w.next
}

// stats computes mean and nearest-rank percentiles over the current window.
func (w *window) stats() LatencyStats {
	n := w.len()
	if n == 0 {
		return LatencyStats{}
	}

	sorted := make([]time.Duration, n)
	copy(sorted, w.samples[:n])
	slices.Sort(sorted)

	var sum time.Duration
	for _, d := range sorted {
		sum += d
	}

	return LatencyStats{
		Min:   sorted[0],
		Max:   sorted[n-1],
		Mean:  sum / time.Duration(n),
		P50:   percentile(sorted, 50),
		P90:   percentile(sorted, 90),
		P95:   percentile(sorted, 95),
		P99:   percentile(sorted, 99),
		Count: int64(n),
	}
}

// percentile returns the nearest-rank percentile of sorted.
func percentile(sorted []time.Duration, p int) time.Duration {
	rank := (p*len(sorted) + 99) / 100
	if rank < 1 {
		rank = 1
	}
	return sorted[rank-1]
}
