// Package rtt maintains rolling round-trip statistics for the numeric
// session. Purely observational: nothing here feeds back into protocol
// behavior.
package rtt

import (
	"sort"
	"time"

	"gonum.org/v1/gonum/stat"
)

// DefaultWindow is the sample retention used when no window is given.
const DefaultWindow = 1000

// Sample is one matched request/response pair.
type Sample struct {
	Seq uint32
	RTT time.Duration
}

// Snapshot summarizes the retained window.
type Snapshot struct {
	Count  int
	Min    time.Duration
	Max    time.Duration
	Mean   time.Duration
	StdDev time.Duration
	P95    time.Duration
	P99    time.Duration
}

// Recorder keeps the most recent window of samples in a ring buffer.
// Owned by the numeric session loop; not safe for concurrent use.
type Recorder struct {
	samples []Sample
	next    int
	full    bool
}

// NewRecorder creates a recorder retaining the given number of samples.
// Non-positive window falls back to DefaultWindow.
func NewRecorder(window int) *Recorder {
	if window <= 0 {
		window = DefaultWindow
	}
	return &Recorder{samples: make([]Sample, window)}
}

// Record appends a sample, evicting the oldest once the window is full.
func (r *Recorder) Record(seq uint32, d time.Duration) {
	r.samples[r.next] = Sample{Seq: seq, RTT: d}
	r.next++
	if r.next == len(r.samples) {
		r.next = 0
		r.full = true
	}
}

// Count returns the number of retained samples.
func (r *Recorder) Count() int {
	if r.full {
		return len(r.samples)
	}
	return r.next
}

func (r *Recorder) seconds() []float64 {
	n := r.Count()
	out := make([]float64, n)
	for i := 0; i < n; i++ {
		out[i] = r.samples[i].RTT.Seconds()
	}
	return out
}

// Mean returns the mean RTT over the retained window, zero when empty.
func (r *Recorder) Mean() time.Duration {
	if r.Count() == 0 {
		return 0
	}
	return secondsToDuration(stat.Mean(r.seconds(), nil))
}

// Snapshot computes summary statistics over the retained window.
func (r *Recorder) Snapshot() Snapshot {
	xs := r.seconds()
	if len(xs) == 0 {
		return Snapshot{}
	}
	sort.Float64s(xs)
	mean, std := stat.MeanStdDev(xs, nil)
	if len(xs) < 2 {
		std = 0
	}
	return Snapshot{
		Count:  len(xs),
		Min:    secondsToDuration(xs[0]),
		Max:    secondsToDuration(xs[len(xs)-1]),
		Mean:   secondsToDuration(mean),
		StdDev: secondsToDuration(std),
		P95:    secondsToDuration(stat.Quantile(0.95, stat.Empirical, xs, nil)),
		P99:    secondsToDuration(stat.Quantile(0.99, stat.Empirical, xs, nil)),
	}
}

// IsAnomalous reports whether d exceeds thresholdMultiple times the
// running mean. Always false until at least one sample is retained.
func (r *Recorder) IsAnomalous(d time.Duration, thresholdMultiple float64) bool {
	mean := r.Mean()
	if mean <= 0 {
		return false
	}
	return d.Seconds() > thresholdMultiple*mean.Seconds()
}

func secondsToDuration(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}
