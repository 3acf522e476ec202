// Package tui renders the numeric session live in the terminal: a
// scrolling altitude trace, the current round-trip time, and the running
// loss counters. The session loop stays authoritative; the view only
// consumes the tick stream.
package tui

import (
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/guptarohit/asciigraph"

	"github.com/san-kum/hilsim/internal/physics"
	"github.com/san-kum/hilsim/internal/record"
)

const (
	graphWidth      = 80
	graphHeight     = 10
	historyCapacity = 600
)

var (
	headerStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("86")).Bold(true).MarginBottom(1)
	labelStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("245")).Width(12)
	valueStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("252"))
	warnStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("220")).Bold(true)
	invalidStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("205")).Bold(true)
	graphStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("49")).Padding(1, 0)
	helpStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("240")).MarginTop(1)
	doneStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("82")).Bold(true).MarginTop(1)
)

// Feed bridges the session loop to the view. Observe never blocks: under
// backpressure ticks are dropped from the display, never from the run.
type Feed struct {
	ch chan record.Tick
}

func NewFeed() *Feed {
	return &Feed{ch: make(chan record.Tick, 256)}
}

// Observe is safe to pass as the session's per-tick callback.
func (f *Feed) Observe(t record.Tick) {
	select {
	case f.ch <- t:
	default:
	}
}

// Close signals the view that the session ended.
func (f *Feed) Close() { close(f.ch) }

type tickMsg record.Tick

type feedClosedMsg struct{}

func waitForTick(ch <-chan record.Tick) tea.Cmd {
	return func() tea.Msg {
		t, ok := <-ch
		if !ok {
			return feedClosedMsg{}
		}
		return tickMsg(t)
	}
}

// Model is the bubbletea model for the live numeric view.
type Model struct {
	feed     *Feed
	setpoint float64
	maxSteps int

	altitude []float64
	rttMs    []float64
	last     record.Tick
	steps    int
	timeouts int
	invalid  int
	done     bool
}

// NewModel builds the view. setpoint is drawn as context next to the
// current altitude; maxSteps sizes the progress readout.
func NewModel(feed *Feed, setpoint float64, maxSteps int) Model {
	return Model{
		feed:     feed,
		setpoint: setpoint,
		maxSteps: maxSteps,
		altitude: make([]float64, 0, historyCapacity),
		rttMs:    make([]float64, 0, historyCapacity),
	}
}

func (m Model) Init() tea.Cmd {
	return waitForTick(m.feed.ch)
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit
		}
	case tickMsg:
		m.apply(record.Tick(msg))
		return m, waitForTick(m.feed.ch)
	case feedClosedMsg:
		m.done = true
		return m, nil
	}
	return m, nil
}

func (m *Model) apply(t record.Tick) {
	m.last = t
	m.steps++
	if t.Timeout {
		m.timeouts++
	} else if !t.Valid {
		m.invalid++
	}
	if len(t.State) > physics.StatePos {
		m.altitude = append(m.altitude, float64(t.State[physics.StatePos]))
		if len(m.altitude) > historyCapacity {
			m.altitude = m.altitude[1:]
		}
	}
	if !t.Timeout {
		m.rttMs = append(m.rttMs, float64(t.RTT)/float64(time.Millisecond))
		if len(m.rttMs) > historyCapacity {
			m.rttMs = m.rttMs[1:]
		}
	}
}

func (m Model) View() string {
	var b strings.Builder

	b.WriteString(headerStyle.Render("hilsim numeric"))
	b.WriteString("\n")

	b.WriteString(labelStyle.Render("step"))
	b.WriteString(valueStyle.Render(fmt.Sprintf("%d / %d", m.steps, m.maxSteps)))
	b.WriteString("\n")

	b.WriteString(labelStyle.Render("sim time"))
	b.WriteString(valueStyle.Render(fmt.Sprintf("%.2f s", m.last.SimTime)))
	b.WriteString("\n")

	b.WriteString(labelStyle.Render("altitude"))
	alt := 0.0
	if len(m.altitude) > 0 {
		alt = m.altitude[len(m.altitude)-1]
	}
	b.WriteString(valueStyle.Render(fmt.Sprintf("%.2f m (setpoint %.2f m)", alt, m.setpoint)))
	b.WriteString("\n")

	b.WriteString(labelStyle.Render("rtt"))
	if m.last.Timeout {
		b.WriteString(warnStyle.Render("timeout"))
	} else {
		b.WriteString(valueStyle.Render(fmt.Sprintf("%.3f ms", float64(m.last.RTT)/float64(time.Millisecond))))
	}
	b.WriteString("\n")

	b.WriteString(labelStyle.Render("timeouts"))
	if m.timeouts > 0 {
		b.WriteString(warnStyle.Render(fmt.Sprintf("%d", m.timeouts)))
	} else {
		b.WriteString(valueStyle.Render("0"))
	}
	b.WriteString("\n")

	if m.invalid > 0 {
		b.WriteString(labelStyle.Render("invalid"))
		b.WriteString(invalidStyle.Render(fmt.Sprintf("%d", m.invalid)))
		b.WriteString("\n")
	}

	if len(m.altitude) >= 2 {
		graph := asciigraph.Plot(m.altitude,
			asciigraph.Height(graphHeight),
			asciigraph.Width(graphWidth),
			asciigraph.Caption("altitude [m]"),
		)
		b.WriteString(graphStyle.Render(graph))
		b.WriteString("\n")
	}

	if m.done {
		b.WriteString(doneStyle.Render("session finished, press q to exit"))
		b.WriteString("\n")
	}
	b.WriteString(helpStyle.Render("q: quit"))
	b.WriteString("\n")

	return b.String()
}
