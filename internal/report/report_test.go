package report

import (
	"bytes"
	"math"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/san-kum/hilsim/internal/record"
)

// writeRun produces a run directory the way a real session would, so the
// reader is tested against the writer's actual format.
func writeRun(t *testing.T, ticks []record.Tick) string {
	t.Helper()
	dir := t.TempDir()
	w, err := record.NewWriter(filepath.Join(dir, TickFile))
	if err != nil {
		t.Fatal(err)
	}
	for _, tk := range ticks {
		w.Record(tk)
	}
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}
	return dir
}

func TestLoadAndSummarize(t *testing.T) {
	dir := writeRun(t, []record.Tick{
		{Seq: 0, SimTime: 0.02, RTT: 2 * time.Millisecond, Command: []float32{0, 0, 9.81}, State: []float32{0, 0, 5, 0.1}, Valid: true},
		{Seq: 1, SimTime: 0.04, RTT: 4 * time.Millisecond, Command: []float32{0, 0, 9.81}, State: []float32{0, 0, 6, 0.1}, Valid: true},
		{Seq: 2, SimTime: 0.06, Timeout: true, State: []float32{0, 0, 6, 0.1}},
		{Seq: 3, SimTime: 0.08, RTT: 3 * time.Millisecond, Command: []float32{0, 0, 9.81}, State: []float32{0, 0, 7, 0.1}, Valid: false},
	})

	rows, err := Load(dir)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if len(rows) != 4 {
		t.Fatalf("rows: got %d want 4", len(rows))
	}
	if rows[2].Seq != 2 || !rows[2].Timeout {
		t.Errorf("timeout row mangled: %+v", rows[2])
	}
	if math.Abs(rows[1].Altitude-6) > 1e-6 {
		t.Errorf("altitude: got %f want 6", rows[1].Altitude)
	}

	s := Summarize(rows)
	if s.Steps != 4 || s.Timeouts != 1 || s.Invalid != 1 {
		t.Errorf("summary counters: %+v", s)
	}
	// Three answered ticks at 2, 3, 4 ms.
	if math.Abs(s.RTTMeanMs-3) > 1e-6 {
		t.Errorf("rtt mean: got %f want 3", s.RTTMeanMs)
	}
	if s.RTTMinMs != 2 || s.RTTMaxMs != 4 {
		t.Errorf("rtt range: [%f, %f]", s.RTTMinMs, s.RTTMaxMs)
	}
	if math.Abs(s.AltFinal-7) > 1e-6 {
		t.Errorf("final altitude: got %f", s.AltFinal)
	}
}

func TestSummarizeAllTimeouts(t *testing.T) {
	rows := []Row{
		{Seq: 0, Timeout: true},
		{Seq: 1, Timeout: true},
	}
	s := Summarize(rows)
	if s.Timeouts != 2 || s.RTTMeanMs != 0 {
		t.Errorf("got %+v", s)
	}
}

func TestLoadPrefersNumericLog(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"numeric_" + TickFile, "plant_" + TickFile} {
		w, err := record.NewWriter(filepath.Join(dir, name))
		if err != nil {
			t.Fatal(err)
		}
		seq := uint32(7)
		if name[0] == 'p' {
			seq = 99
		}
		w.Record(record.Tick{Seq: seq, Valid: true})
		if err := w.Close(); err != nil {
			t.Fatal(err)
		}
	}

	rows, err := Load(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 1 || rows[0].Seq != 7 {
		t.Errorf("wrong log picked: %+v", rows)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(t.TempDir()); err == nil {
		t.Fatal("expected error for missing tick log")
	}
}

func TestParseRejectsMissingColumns(t *testing.T) {
	if _, err := parse(strings.NewReader("seq,t\n1,0.02\n")); err == nil {
		t.Fatal("expected error for missing columns")
	}
}

func TestRenderContainsPlots(t *testing.T) {
	dir := writeRun(t, []record.Tick{
		{Seq: 0, SimTime: 0.02, RTT: 2 * time.Millisecond, State: []float32{0, 0, 5, 0}, Valid: true},
		{Seq: 1, SimTime: 0.04, RTT: 3 * time.Millisecond, State: []float32{0, 0, 6, 0}, Valid: true},
		{Seq: 2, SimTime: 0.06, RTT: 2 * time.Millisecond, State: []float32{0, 0, 7, 0}, Valid: true},
	})
	rows, err := Load(dir)
	if err != nil {
		t.Fatal(err)
	}

	var buf bytes.Buffer
	if err := Render(&buf, rows, Summarize(rows)); err != nil {
		t.Fatalf("render failed: %v", err)
	}
	out := buf.String()
	for _, want := range []string{"steps", "rtt p95", "altitude [m] vs step", "rtt [ms] vs answered step"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q", want)
		}
	}
}
