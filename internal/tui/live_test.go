package tui

import (
	"strings"
	"testing"
	"time"

	"github.com/san-kum/hilsim/internal/record"
)

func TestFeedObserveNeverBlocks(t *testing.T) {
	feed := NewFeed()
	// No consumer attached: every send past the buffer must drop.
	done := make(chan struct{})
	go func() {
		for i := 0; i < 10000; i++ {
			feed.Observe(record.Tick{Seq: uint32(i)})
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Observe blocked without a consumer")
	}
}

func TestModelTracksCounters(t *testing.T) {
	m := NewModel(NewFeed(), 10, 100)

	m.apply(record.Tick{Seq: 0, SimTime: 0.02, RTT: time.Millisecond, State: []float32{0, 0, 5, 0}, Valid: true})
	m.apply(record.Tick{Seq: 1, SimTime: 0.04, Timeout: true})
	m.apply(record.Tick{Seq: 2, SimTime: 0.06, RTT: time.Millisecond, State: []float32{0, 0, 6, 0}, Valid: false})

	if m.steps != 3 || m.timeouts != 1 || m.invalid != 1 {
		t.Errorf("counters: steps=%d timeouts=%d invalid=%d", m.steps, m.timeouts, m.invalid)
	}
	if len(m.altitude) != 2 {
		t.Errorf("altitude samples: got %d want 2", len(m.altitude))
	}

	view := m.View()
	for _, want := range []string{"3 / 100", "6.00 m", "timeouts"} {
		if !strings.Contains(view, want) {
			t.Errorf("view missing %q:\n%s", want, view)
		}
	}
}

func TestHistoryBounded(t *testing.T) {
	m := NewModel(NewFeed(), 10, 100000)
	for i := 0; i < historyCapacity*2; i++ {
		m.apply(record.Tick{Seq: uint32(i), RTT: time.Millisecond, State: []float32{0, 0, 1, 0}, Valid: true})
	}
	if len(m.altitude) != historyCapacity || len(m.rttMs) != historyCapacity {
		t.Errorf("history grew past capacity: alt=%d rtt=%d", len(m.altitude), len(m.rttMs))
	}
}
