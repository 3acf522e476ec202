// Package record persists one CSV row per simulation tick. Writing is
// fire-and-forget: the session hands records to a buffered channel and a
// single writer goroutine does the file I/O, so a slow disk can drop rows
// but never stalls the control loop.
package record

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/san-kum/hilsim/internal/physics"
)

// Tick is the per-step record both sessions emit.
type Tick struct {
	Seq     uint32
	SimTime float64
	RTT     time.Duration
	Command []float32
	State   []float32
	Valid   bool
	Timeout bool
}

var header = []string{
	"seq", "t", "rtt_ms",
	"fx", "fy", "fz",
	"acc", "gyro", "position", "velocity",
	"valid", "timeout",
}

const queueDepth = 1024

// Writer owns the CSV file. Record never blocks; Close drains the queue
// and flushes.
type Writer struct {
	ch      chan Tick
	done    chan struct{}
	file    *os.File
	csv     *csv.Writer
	dropped atomic.Uint64
	err     error
}

// RunDir resolves the per-run output directory, creating it. An empty
// runID gets a timestamp.
func RunDir(base, runID string) (string, error) {
	if runID == "" {
		runID = time.Now().Format("20060102_150405")
	}
	dir := filepath.Join(base, runID)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("record: create run dir: %w", err)
	}
	return dir, nil
}

// NewWriter opens path and writes the header row.
func NewWriter(path string) (*Writer, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("record: create %s: %w", path, err)
	}
	w := &Writer{
		ch:   make(chan Tick, queueDepth),
		done: make(chan struct{}),
		file: f,
		csv:  csv.NewWriter(f),
	}
	if err := w.csv.Write(header); err != nil {
		f.Close()
		return nil, fmt.Errorf("record: write header: %w", err)
	}
	go w.loop()
	return w, nil
}

func (w *Writer) loop() {
	defer close(w.done)
	for t := range w.ch {
		if err := w.csv.Write(row(t)); err != nil && w.err == nil {
			w.err = err
		}
	}
	w.csv.Flush()
	if err := w.csv.Error(); err != nil && w.err == nil {
		w.err = err
	}
}

func row(t Tick) []string {
	r := make([]string, 0, len(header))
	r = append(r,
		strconv.FormatUint(uint64(t.Seq), 10),
		strconv.FormatFloat(t.SimTime, 'f', 6, 64),
		strconv.FormatFloat(float64(t.RTT)/float64(time.Millisecond), 'f', 3, 64),
	)
	for i := 0; i < physics.CmdDim; i++ {
		r = append(r, vecAt(t.Command, i))
	}
	for i := 0; i < physics.StateDim; i++ {
		r = append(r, vecAt(t.State, i))
	}
	return append(r, strconv.FormatBool(t.Valid), strconv.FormatBool(t.Timeout))
}

func vecAt(v []float32, i int) string {
	if i >= len(v) {
		return "0"
	}
	return strconv.FormatFloat(float64(v[i]), 'f', 6, 32)
}

// Record enqueues a tick. If the queue is full the tick is dropped and
// counted rather than blocking the session loop.
func (w *Writer) Record(t Tick) {
	select {
	case w.ch <- t:
	default:
		w.dropped.Add(1)
	}
}

// Dropped returns how many ticks were discarded due to backpressure.
func (w *Writer) Dropped() uint64 {
	return w.dropped.Load()
}

// Close drains pending records, flushes, and closes the file.
func (w *Writer) Close() error {
	close(w.ch)
	<-w.done
	if err := w.file.Close(); err != nil && w.err == nil {
		w.err = err
	}
	return w.err
}
