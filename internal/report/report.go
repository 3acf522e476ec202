// Package report reads a finished run's tick log back and renders a
// post-mortem: loss counters, round-trip statistics, and terminal plots
// of altitude and RTT over the run.
package report

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"text/tabwriter"

	"github.com/guptarohit/asciigraph"
	"gonum.org/v1/gonum/stat"
)

// TickFile is the per-run log name both sessions write.
const TickFile = "ticks.csv"

// Row is one parsed tick log entry.
type Row struct {
	Seq      uint32
	SimTime  float64
	RTTMs    float64
	Fz       float64
	Altitude float64
	Velocity float64
	Valid    bool
	Timeout  bool
}

// Summary aggregates one run.
type Summary struct {
	Steps    int
	Timeouts int
	Invalid  int

	RTTMeanMs float64
	RTTStdMs  float64
	RTTMinMs  float64
	RTTMaxMs  float64
	RTTP95Ms  float64
	RTTP99Ms  float64

	AltFinal float64
	AltMean  float64
	AltMin   float64
	AltMax   float64
}

// Load parses the tick log in dir. A run directory may hold one log per
// side; the numeric side's is preferred since only it carries round-trip
// times.
func Load(dir string) ([]Row, error) {
	path, err := resolve(dir)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("report: open %s: %w", path, err)
	}
	defer f.Close()
	return parse(f)
}

func resolve(dir string) (string, error) {
	for _, name := range []string{"numeric_" + TickFile, TickFile, "plant_" + TickFile} {
		path := filepath.Join(dir, name)
		if _, err := os.Stat(path); err == nil {
			return path, nil
		}
	}
	return "", fmt.Errorf("report: no tick log found in %s", dir)
}

func parse(r io.Reader) ([]Row, error) {
	cr := csv.NewReader(r)
	records, err := cr.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("report: parse tick log: %w", err)
	}
	if len(records) < 1 {
		return nil, fmt.Errorf("report: tick log is empty")
	}

	col := make(map[string]int, len(records[0]))
	for i, name := range records[0] {
		col[name] = i
	}
	for _, name := range []string{"seq", "t", "rtt_ms", "fz", "position", "velocity", "valid", "timeout"} {
		if _, ok := col[name]; !ok {
			return nil, fmt.Errorf("report: tick log missing column %q", name)
		}
	}

	rows := make([]Row, 0, len(records)-1)
	for i, rec := range records[1:] {
		seq, err := strconv.ParseUint(rec[col["seq"]], 10, 32)
		if err != nil {
			return nil, fmt.Errorf("report: row %d: bad seq: %w", i+1, err)
		}
		row := Row{
			Seq:      uint32(seq),
			SimTime:  floatCol(rec, col["t"]),
			RTTMs:    floatCol(rec, col["rtt_ms"]),
			Fz:       floatCol(rec, col["fz"]),
			Altitude: floatCol(rec, col["position"]),
			Velocity: floatCol(rec, col["velocity"]),
			Valid:    rec[col["valid"]] == "true",
			Timeout:  rec[col["timeout"]] == "true",
		}
		rows = append(rows, row)
	}
	return rows, nil
}

func floatCol(rec []string, i int) float64 {
	v, _ := strconv.ParseFloat(rec[i], 64)
	return v
}

// Summarize computes the run summary. RTT statistics cover answered
// ticks only; timed-out ticks have no round trip to measure.
func Summarize(rows []Row) Summary {
	var s Summary
	s.Steps = len(rows)

	var rtts, alts []float64
	for _, r := range rows {
		if r.Timeout {
			s.Timeouts++
		} else {
			rtts = append(rtts, r.RTTMs)
			if !r.Valid {
				s.Invalid++
			}
		}
		alts = append(alts, r.Altitude)
	}

	if len(rtts) > 0 {
		sort.Float64s(rtts)
		mean, std := stat.MeanStdDev(rtts, nil)
		if len(rtts) < 2 {
			std = 0
		}
		s.RTTMeanMs = mean
		s.RTTStdMs = std
		s.RTTMinMs = rtts[0]
		s.RTTMaxMs = rtts[len(rtts)-1]
		s.RTTP95Ms = stat.Quantile(0.95, stat.Empirical, rtts, nil)
		s.RTTP99Ms = stat.Quantile(0.99, stat.Empirical, rtts, nil)
	}
	if len(alts) > 0 {
		s.AltFinal = alts[len(alts)-1]
		s.AltMean = stat.Mean(alts, nil)
		min, max := alts[0], alts[0]
		for _, a := range alts[1:] {
			if a < min {
				min = a
			}
			if a > max {
				max = a
			}
		}
		s.AltMin = min
		s.AltMax = max
	}
	return s
}

// Render writes the summary table and plots to w.
func Render(w io.Writer, rows []Row, s Summary) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "METRIC\tVALUE")
	fmt.Fprintf(tw, "steps\t%d\n", s.Steps)
	fmt.Fprintf(tw, "timeouts\t%d\n", s.Timeouts)
	fmt.Fprintf(tw, "invalid\t%d\n", s.Invalid)
	fmt.Fprintf(tw, "rtt mean\t%.3f ms\n", s.RTTMeanMs)
	fmt.Fprintf(tw, "rtt stddev\t%.3f ms\n", s.RTTStdMs)
	fmt.Fprintf(tw, "rtt min\t%.3f ms\n", s.RTTMinMs)
	fmt.Fprintf(tw, "rtt max\t%.3f ms\n", s.RTTMaxMs)
	fmt.Fprintf(tw, "rtt p95\t%.3f ms\n", s.RTTP95Ms)
	fmt.Fprintf(tw, "rtt p99\t%.3f ms\n", s.RTTP99Ms)
	fmt.Fprintf(tw, "altitude final\t%.3f m\n", s.AltFinal)
	fmt.Fprintf(tw, "altitude mean\t%.3f m\n", s.AltMean)
	fmt.Fprintf(tw, "altitude range\t[%.3f, %.3f] m\n", s.AltMin, s.AltMax)
	if err := tw.Flush(); err != nil {
		return err
	}

	if len(rows) < 2 {
		return nil
	}

	alt := make([]float64, len(rows))
	rtts := make([]float64, 0, len(rows))
	for i, r := range rows {
		alt[i] = r.Altitude
		if !r.Timeout {
			rtts = append(rtts, r.RTTMs)
		}
	}

	fmt.Fprintln(w)
	fmt.Fprintln(w, asciigraph.Plot(alt,
		asciigraph.Height(10),
		asciigraph.Width(80),
		asciigraph.Caption("altitude [m] vs step"),
	))
	if len(rtts) >= 2 {
		fmt.Fprintln(w)
		fmt.Fprintln(w, asciigraph.Plot(rtts,
			asciigraph.Height(10),
			asciigraph.Width(80),
			asciigraph.Caption("rtt [ms] vs answered step"),
		))
	}
	fmt.Fprintln(w)
	return nil
}
