package monitoring

import (
	"sort"
	"sync"
	"time"

	"gonum.org/v1/gonum/stat"
)

// Summary describes recent check latencies in milliseconds.
type Summary struct {
	Count  int     `json:"count"`
	MeanMs float64 `json:"mean_ms"`
	StdMs  float64 `json:"stddev_ms"`
	P95Ms  float64 `json:"p95_ms"`
	MaxMs  float64 `json:"max_ms"`
}

// Window keeps the most recent durations in a ring.
type Window struct {
	mu     sync.Mutex
	values []float64
	next   int
	full   bool
}

// NewWindow creates a window holding size samples.
func NewWindow(size int) *Window {
	if size < 1 {
		size = 1
	}
	return &Window{values: make([]float64, size)}
}

// Add records a duration.
func (w *Window) Add(d time.Duration) {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.values[w.next] = float64(d) / float64(time.Millisecond)
	w.next++
	if w.next == len(w.values) {
		w.next = 0
		w.full = true
	}
}

// Summary computes statistics over the window.
func (w *Window) Summary() Summary {
	w.mu.Lock()
	n := w.next
	if w.full {
		n = len(w.values)
	}
	data := make([]float64, n)
	copy(data, w.values[:n])
	w.mu.Unlock()

	if n == 0 {
		return Summary{}
	}

	sort.Float64s(data)
	s := Summary{Count: n, MaxMs: data[n-1]}
	if n == 1 {
		s.MeanMs = data[0]
	} else {
		s.MeanMs, s.StdMs = stat.MeanStdDev(data, nil)
	}
	s.P95Ms = stat.Quantile(0.95, stat.Empirical, data, nil)
	return s
}
