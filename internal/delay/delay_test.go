package delay_test

import (
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/san-kum/hilsim/internal/delay"
)

var _ = Describe("Sampler", func() {
	It("returns the fixed base when variation is zero", func() {
		s := delay.NewSampler(delay.Config{
			Processing: 8 * time.Millisecond,
			Response:   7 * time.Millisecond,
		}, 1)
		for i := 0; i < 100; i++ {
			Expect(s.Sample()).To(Equal(15 * time.Millisecond))
		}
	})

	It("keeps uniform jitter within the configured variation", func() {
		s := delay.NewSampler(delay.Config{
			Processing:   10 * time.Millisecond,
			Variation:    2 * time.Millisecond,
			Distribution: delay.Uniform,
		}, 42)
		for i := 0; i < 1000; i++ {
			d := s.Sample()
			Expect(d).To(BeNumerically(">=", 8*time.Millisecond))
			Expect(d).To(BeNumerically("<=", 12*time.Millisecond))
		}
	})

	It("is deterministic for a fixed seed", func() {
		cfg := delay.Config{
			Response:     5 * time.Millisecond,
			Variation:    3 * time.Millisecond,
			Distribution: delay.Gaussian,
		}
		a := delay.NewSampler(cfg, 7)
		b := delay.NewSampler(cfg, 7)
		for i := 0; i < 50; i++ {
			Expect(a.Sample()).To(Equal(b.Sample()))
		}
	})

	It("never returns a negative delay", func() {
		s := delay.NewSampler(delay.Config{
			Variation:    10 * time.Millisecond,
			Distribution: delay.Uniform,
		}, 3)
		for i := 0; i < 1000; i++ {
			Expect(s.Sample()).To(BeNumerically(">=", 0))
		}
	})
})

var _ = Describe("Scheduler", func() {
	var (
		sched *delay.Scheduler
		now   time.Time
	)

	BeforeEach(func() {
		sched = delay.NewScheduler(delay.Config{
			Enabled:    true,
			Processing: 10 * time.Millisecond,
		}, 1)
		now = time.Date(2025, 9, 24, 12, 0, 0, 0, time.UTC)
	})

	It("holds items until their release time", func() {
		sched.Schedule([]byte{1}, nil, now)
		Expect(sched.Due(now)).To(BeEmpty())
		Expect(sched.Due(now.Add(9 * time.Millisecond))).To(BeEmpty())
		Expect(sched.Pending()).To(Equal(1))

		due := sched.Due(now.Add(10 * time.Millisecond))
		Expect(due).To(HaveLen(1))
		Expect(due[0].Payload).To(Equal([]byte{1}))
		Expect(sched.Pending()).To(BeZero())
	})

	It("supports multiple outstanding items", func() {
		for i := byte(0); i < 5; i++ {
			sched.Schedule([]byte{i}, nil, now.Add(time.Duration(i)*time.Millisecond))
		}
		Expect(sched.Pending()).To(Equal(5))
		Expect(sched.Due(now.Add(time.Hour))).To(HaveLen(5))
	})

	It("dispatches strictly in release-time order even when that differs from arrival order", func() {
		// Later arrival, earlier release.
		jittery := delay.NewScheduler(delay.Config{Enabled: true}, 1)
		jittery.Schedule([]byte{1}, nil, now.Add(20*time.Millisecond))
		jittery.Schedule([]byte{2}, nil, now.Add(5*time.Millisecond))
		jittery.Schedule([]byte{3}, nil, now.Add(10*time.Millisecond))

		due := jittery.Due(now.Add(time.Hour))
		Expect(due).To(HaveLen(3))
		Expect(due[0].Payload).To(Equal([]byte{2}))
		Expect(due[1].Payload).To(Equal([]byte{3}))
		Expect(due[2].Payload).To(Equal([]byte{1}))
	})

	It("exposes the earliest pending release time", func() {
		_, ok := sched.NextRelease()
		Expect(ok).To(BeFalse())

		sched.Schedule(nil, nil, now)
		next, ok := sched.NextRelease()
		Expect(ok).To(BeTrue())
		Expect(next).To(Equal(now.Add(10 * time.Millisecond)))
	})

	It("reports disabled configs so callers can bypass the queue", func() {
		bypass := delay.NewScheduler(delay.Config{Enabled: false}, 1)
		Expect(bypass.Enabled()).To(BeFalse())
	})
})
