// Package delay makes the plant's apparent response latency configurable
// and reproducible. Encoded responses are held in a release queue keyed by
// release time and dispatched once due. Large jitter may release
// responses out of arrival order, the way a real network would.
package delay

import (
	"container/heap"
	"net"
	"time"

	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/stat/distuv"
)

// Distribution selects how jitter samples are drawn.
type Distribution string

const (
	// Uniform draws from [-variation, +variation].
	Uniform Distribution = "uniform"
	// Gaussian draws from N(0, variation/3), so 3 sigma spans the
	// configured variation.
	Gaussian Distribution = "gaussian"
)

// Config holds the delay parameters for a session. Immutable once the
// session starts.
type Config struct {
	Enabled      bool
	Processing   time.Duration
	Response     time.Duration
	Variation    time.Duration
	Distribution Distribution
}

// Sampler draws per-response delays: processing + response + jitter,
// clamped at zero. Seeded, so experiment runs are reproducible.
type Sampler struct {
	base   time.Duration
	jitter func() float64 // seconds
}

// NewSampler builds a sampler for cfg. An unknown distribution falls back
// to uniform, matching the zero value of a config file that omits it.
func NewSampler(cfg Config, seed uint64) *Sampler {
	s := &Sampler{base: cfg.Processing + cfg.Response}
	if cfg.Variation <= 0 {
		return s
	}
	src := rand.NewSource(seed)
	v := cfg.Variation.Seconds()
	switch cfg.Distribution {
	case Gaussian:
		dist := distuv.Normal{Mu: 0, Sigma: v / 3, Src: src}
		s.jitter = dist.Rand
	default:
		dist := distuv.Uniform{Min: -v, Max: v, Src: src}
		s.jitter = dist.Rand
	}
	return s
}

// Sample returns the next total delay.
func (s *Sampler) Sample() time.Duration {
	d := s.base
	if s.jitter != nil {
		d += time.Duration(s.jitter() * float64(time.Second))
	}
	if d < 0 {
		return 0
	}
	return d
}

// Item is one encoded response waiting for its release time.
type Item struct {
	Payload   []byte
	Addr      net.Addr
	ReleaseAt time.Time
}

type releaseQueue []Item

func (q releaseQueue) Len() int            { return len(q) }
func (q releaseQueue) Less(i, j int) bool  { return q[i].ReleaseAt.Before(q[j].ReleaseAt) }
func (q releaseQueue) Swap(i, j int)       { q[i], q[j] = q[j], q[i] }
func (q *releaseQueue) Push(x interface{}) { *q = append(*q, x.(Item)) }
func (q *releaseQueue) Pop() interface{} {
	old := *q
	n := len(old)
	item := old[n-1]
	*q = old[:n-1]
	return item
}

// Scheduler owns the release queue. Not safe for concurrent use; the
// plant loop is its only caller.
type Scheduler struct {
	cfg     Config
	sampler *Sampler
	queue   releaseQueue
}

// NewScheduler builds a scheduler for cfg, seeding the jitter sampler.
func NewScheduler(cfg Config, seed uint64) *Scheduler {
	return &Scheduler{cfg: cfg, sampler: NewSampler(cfg, seed)}
}

// Enabled reports whether responses should pass through the queue at all.
// When false the caller sends synchronously and never calls Schedule.
func (s *Scheduler) Enabled() bool { return s.cfg.Enabled }

// Schedule enqueues an encoded response, drawing a fresh delay sample.
// Returns the computed release time.
func (s *Scheduler) Schedule(payload []byte, addr net.Addr, now time.Time) time.Time {
	release := now.Add(s.sampler.Sample())
	heap.Push(&s.queue, Item{Payload: payload, Addr: addr, ReleaseAt: release})
	return release
}

// Due pops every queued item whose release time is at or before now, in
// release-time order.
func (s *Scheduler) Due(now time.Time) []Item {
	var due []Item
	for len(s.queue) > 0 && !s.queue[0].ReleaseAt.After(now) {
		due = append(due, heap.Pop(&s.queue).(Item))
	}
	return due
}

// NextRelease returns the earliest pending release time, if any. The
// plant loop uses it to bound its receive deadline so dispatch latency
// stays close to the configured delay.
func (s *Scheduler) NextRelease() (time.Time, bool) {
	if len(s.queue) == 0 {
		return time.Time{}, false
	}
	return s.queue[0].ReleaseAt, true
}

// Pending returns the number of queued responses.
func (s *Scheduler) Pending() int { return len(s.queue) }
