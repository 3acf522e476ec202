package session

import (
	"context"
	"errors"
	"log"
	"math/rand"
	"time"

	"github.com/san-kum/hilsim/internal/control"
	"github.com/san-kum/hilsim/internal/physics"
	"github.com/san-kum/hilsim/internal/record"
	"github.com/san-kum/hilsim/internal/rtt"
	"github.com/san-kum/hilsim/internal/transport"
	"github.com/san-kum/hilsim/internal/wire"
)

// readyRetry is how often the Ready frame is retransmitted while waiting
// for an Ack inside the handshake window.
const readyRetry = 250 * time.Millisecond

// NumericConfig parameterizes the active session loop.
type NumericConfig struct {
	StepInterval time.Duration
	MaxSteps     int
	StepTimeout  time.Duration
	SyncTimeout  time.Duration

	// AnomalyMultiple flags RTT samples above this multiple of the
	// running mean; zero disables the check. Observational only.
	AnomalyMultiple float64

	// RTTWindow bounds retained samples; zero uses the default.
	RTTWindow int
}

// Numeric runs the active side: one request per tick, strict lock-step,
// stale-state-carries-forward on timeout.
type Numeric struct {
	conn   *transport.Conn
	ctrl   control.Controller
	cfg    NumericConfig
	rec    *record.Writer
	logger *log.Logger
	obs    func(record.Tick)

	state    numericState
	recorder *rtt.Recorder
}

// NewNumeric wires the numeric session.
func NewNumeric(conn *transport.Conn, ctrl control.Controller, cfg NumericConfig) *Numeric {
	return &Numeric{
		conn:     conn,
		ctrl:     ctrl,
		cfg:      cfg,
		logger:   log.New(log.Writer(), "numeric: ", log.LstdFlags|log.Lmicroseconds),
		state:    numericAwaitingSync,
		recorder: rtt.NewRecorder(cfg.RTTWindow),
	}
}

// SetRecorder attaches a tick log writer.
func (n *Numeric) SetRecorder(w *record.Writer) { n.rec = w }

// SetLogger replaces the default logger.
func (n *Numeric) SetLogger(l *log.Logger) { n.logger = l }

// SetObserver registers a per-tick callback (used by the live view). The
// callback runs on the session loop and must not block.
func (n *Numeric) SetObserver(fn func(record.Tick)) { n.obs = fn }

// Run synchronizes with the plant, then executes exactly MaxSteps ticks
// unless ctx is canceled first. Handshake failure returns ErrSyncTimeout.
func (n *Numeric) Run(ctx context.Context) (Summary, error) {
	var sum Summary

	origin, err := n.synchronize(ctx)
	if err != nil {
		n.state = numericTerminated
		return sum, err
	}
	n.state = numericRunning
	n.logger.Printf("synchronized, running %d steps at %.1f Hz", n.cfg.MaxSteps, 1/n.cfg.StepInterval.Seconds())

	dt := n.cfg.StepInterval.Seconds()
	lastState := make([]float32, physics.StateDim)
	var seq uint32

	for step := 0; step < n.cfg.MaxSteps; step++ {
		if ctx.Err() != nil {
			break
		}

		simTime := float64(step) * dt
		command := n.ctrl.Compute(lastState, dt)

		tick, newState, err := n.exchange(seq, simTime, command, lastState, &sum)
		if err != nil {
			n.state = numericTerminated
			return sum, err
		}
		lastState = newState

		if n.rec != nil {
			n.rec.Record(tick)
		}
		if n.obs != nil {
			n.obs(tick)
		}

		// Time and sequence advance regardless of the outcome: the loop
		// keeps a constant cadence even under loss, and a missed step is
		// never resent.
		seq++
		sum.Steps++

		if sum.Steps%100 == 0 {
			n.logger.Printf("step %d/%d, mean rtt %v, timeouts %d",
				sum.Steps, n.cfg.MaxSteps, n.recorder.Mean().Round(time.Microsecond), sum.Timeouts)
		}

		next := origin.Add(time.Duration(step+1) * n.cfg.StepInterval)
		if wait := time.Until(next); wait > 0 {
			time.Sleep(wait)
		}
	}

	n.state = numericTerminated
	sum.RTT = n.recorder.Snapshot()
	n.logger.Printf("terminated: %d steps, %d responses, %d timeouts, %d stale",
		sum.Steps, sum.Responses, sum.Timeouts, sum.SeqMismatches)
	return sum, nil
}

// exchange performs one lock-step round trip. It returns the tick record
// and the state to carry into the next tick (the received state on a
// valid response, the previous one otherwise).
func (n *Numeric) exchange(seq uint32, simTime float64, command, lastState []float32, sum *Summary) (record.Tick, []float32, error) {
	tick := record.Tick{Seq: seq, SimTime: simTime, Command: command, State: lastState}

	payload, err := wire.EncodeStepRequest(wire.StepRequest{
		Seq:     seq,
		SimTime: simTime,
		Command: command,
	})
	if err != nil {
		return tick, lastState, err
	}

	pending := pendingRequest{seq: seq, command: command}
	sendTime := time.Now()
	if err := n.conn.Send(payload); err != nil {
		return tick, lastState, err
	}

	deadline := sendTime.Add(n.cfg.StepTimeout)
	for {
		data, _, err := n.conn.Receive(deadline)
		if err != nil {
			if errors.Is(err, transport.ErrTimeout) {
				sum.Timeouts++
				tick.Timeout = true
				return tick, lastState, nil
			}
			return tick, lastState, err
		}

		resp, err := wire.DecodeStepResponse(data)
		if err != nil {
			sum.DecodeErrors++
			continue
		}
		if resp.Seq != pending.seq {
			// Stale, duplicate, or reordered: discard and keep waiting
			// up to the same deadline.
			sum.SeqMismatches++
			continue
		}

		sample := time.Since(sendTime)
		n.recorder.Record(resp.Seq, sample)
		sum.Responses++
		if n.cfg.AnomalyMultiple > 0 && n.recorder.IsAnomalous(sample, n.cfg.AnomalyMultiple) {
			n.logger.Printf("anomalous rtt %v at seq %d (mean %v)",
				sample.Round(time.Microsecond), resp.Seq, n.recorder.Mean().Round(time.Microsecond))
		}

		tick.RTT = sample
		tick.Valid = resp.Valid
		tick.State = resp.State
		if !resp.Valid {
			sum.Invalid++
			return tick, lastState, nil
		}
		return tick, resp.State, nil
	}
}

// synchronize performs the READY/ACK exchange and derives the shared
// step-zero origin locally, needing no agreement between system clocks.
func (n *Numeric) synchronize(ctx context.Context) (time.Time, error) {
	nonce := rand.Uint64()
	window := time.Now().Add(n.cfg.SyncTimeout)
	n.logger.Printf("handshake: sending READY (window %v)", n.cfg.SyncTimeout)

	for time.Now().Before(window) {
		if ctx.Err() != nil {
			return time.Time{}, ctx.Err()
		}

		ready := wire.EncodeReady(wire.Ready{
			Nonce:     nonce,
			Timestamp: float64(time.Now().UnixNano()) / 1e9,
		})
		if err := n.conn.Send(ready); err != nil {
			return time.Time{}, err
		}

		retry := time.Now().Add(readyRetry)
		deadline := retry
		if deadline.After(window) {
			deadline = window
		}
		for {
			data, _, err := n.conn.Receive(deadline)
			if err != nil {
				if errors.Is(err, transport.ErrTimeout) {
					break // retransmit Ready
				}
				return time.Time{}, err
			}
			ack, err := wire.DecodeAck(data)
			if err != nil || ack.Nonce != nonce {
				continue
			}
			// Step zero begins now, on this side's monotonic clock.
			return time.Now(), nil
		}
	}
	return time.Time{}, ErrSyncTimeout
}
