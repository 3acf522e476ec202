package session

import (
	"context"
	"errors"
	"log"
	"net"
	"time"

	"github.com/san-kum/hilsim/internal/delay"
	"github.com/san-kum/hilsim/internal/physics"
	"github.com/san-kum/hilsim/internal/record"
	"github.com/san-kum/hilsim/internal/transport"
	"github.com/san-kum/hilsim/internal/wire"
)

// pollInterval bounds how long the plant loop blocks in receive, so the
// release queue is drained and cancellation observed at least this often.
// This is the documented floor on delayed-dispatch latency.
const pollInterval = 50 * time.Millisecond

// Plant runs the passive side: wait for the handshake, then answer each
// step request with a freshly computed state, optionally holding the
// response in the delay scheduler.
type Plant struct {
	conn   *transport.Conn
	model  physics.Model
	sched  *delay.Scheduler
	dt     float64
	logger *log.Logger
	rec    *record.Writer

	state     plantState
	lastState []float32
	peer      net.Addr
}

// NewPlant wires the plant session. dt is the integration step handed to
// the model for every request.
func NewPlant(conn *transport.Conn, model physics.Model, sched *delay.Scheduler, dt float64) *Plant {
	return &Plant{
		conn:      conn,
		model:     model,
		sched:     sched,
		dt:        dt,
		logger:    log.New(log.Writer(), "plant: ", log.LstdFlags|log.Lmicroseconds),
		state:     plantAwaitingSync,
		lastState: make([]float32, physics.StateDim),
	}
}

// SetRecorder attaches a tick log writer.
func (p *Plant) SetRecorder(w *record.Writer) { p.rec = w }

// SetLogger replaces the default logger.
func (p *Plant) SetLogger(l *log.Logger) { p.logger = l }

// Run executes the plant loop until ctx is canceled. The plant never
// times out on its own: loss of the numeric side is detected by process
// supervision, not here.
func (p *Plant) Run(ctx context.Context) (Summary, error) {
	var sum Summary

	if err := p.awaitSync(ctx); err != nil {
		return sum, err
	}
	p.state = plantReady
	p.logger.Printf("synchronized, entering step loop (dt=%.4fs, delay=%v)", p.dt, p.sched.Enabled())

	for {
		if ctx.Err() != nil {
			p.state = plantShutdown
			p.logger.Printf("shutdown: %d steps served, %d decode errors", sum.Steps, sum.DecodeErrors)
			return sum, nil
		}

		p.dispatchDue(time.Now())

		p.state = plantReceiving
		data, addr, err := p.conn.Receive(p.receiveDeadline(time.Now()))
		if err != nil {
			if errors.Is(err, transport.ErrTimeout) {
				p.state = plantReady
				continue
			}
			p.state = plantShutdown
			return sum, err
		}

		typ, err := wire.MessageType(data)
		if err != nil {
			sum.DecodeErrors++
			p.state = plantReady
			continue
		}

		switch typ {
		case wire.TypeReady:
			// A retransmitted handshake frame; ack again so a lost Ack
			// does not strand the peer.
			p.ackReady(data, addr)
		case wire.TypeStepRequest:
			req, err := wire.DecodeStepRequest(data)
			if err != nil {
				sum.DecodeErrors++
				break
			}
			p.peer = addr
			if err := p.serve(req, addr, &sum); err != nil {
				p.state = plantShutdown
				return sum, err
			}
			sum.Steps++
			if sum.Steps%500 == 0 {
				p.logger.Printf("step %d, altitude %.2fm", sum.Steps, p.lastState[physics.StatePos])
			}
		default:
			sum.DecodeErrors++
		}
		p.state = plantReady
	}
}

// awaitSync blocks until a Ready frame arrives, then acknowledges it.
// Step requests received before synchronization are ignored: they are not
// valid simulation steps yet.
func (p *Plant) awaitSync(ctx context.Context) error {
	p.logger.Printf("waiting for synchronization")
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		data, addr, err := p.conn.Receive(time.Now().Add(pollInterval))
		if err != nil {
			if errors.Is(err, transport.ErrTimeout) {
				continue
			}
			return err
		}
		if typ, err := wire.MessageType(data); err != nil || typ != wire.TypeReady {
			continue
		}
		if err := p.ackReady(data, addr); err != nil {
			return err
		}
		p.peer = addr
		return nil
	}
}

func (p *Plant) ackReady(data []byte, addr net.Addr) error {
	ready, err := wire.DecodeReady(data)
	if err != nil {
		return nil // corrupt handshake frame, let the peer retransmit
	}
	ack := wire.EncodeAck(wire.Ack{
		Nonce:     ready.Nonce,
		Timestamp: float64(time.Now().UnixNano()) / 1e9,
	})
	return p.conn.SendTo(ack, addr)
}

// serve handles one decoded step request: advance the model, build the
// response, and either send it now or queue it for delayed release.
func (p *Plant) serve(req wire.StepRequest, addr net.Addr, sum *Summary) error {
	p.state = plantComputing
	state, ok := p.model.Advance(req.Command, p.dt)
	if ok {
		p.lastState = state
	} else {
		// Ship the last usable state so the peer still gets a
		// well-formed frame to validate against.
		state = p.lastState
		sum.Invalid++
	}

	resp := wire.StepResponse{
		Seq:     req.Seq,
		SimTime: req.SimTime,
		State:   state,
		Valid:   ok,
	}
	payload, err := wire.EncodeStepResponse(resp)
	if err != nil {
		return err
	}

	if p.rec != nil {
		p.rec.Record(record.Tick{
			Seq:     req.Seq,
			SimTime: req.SimTime,
			Command: req.Command,
			State:   state,
			Valid:   ok,
		})
	}

	p.state = plantQueuedForSend
	if p.sched.Enabled() {
		p.sched.Schedule(payload, addr, time.Now())
		return nil
	}
	return p.conn.SendTo(payload, addr)
}

// dispatchDue sends every queued response whose release time has passed,
// strictly in release-time order.
func (p *Plant) dispatchDue(now time.Time) {
	for _, item := range p.sched.Due(now) {
		if err := p.conn.SendTo(item.Payload, item.Addr); err != nil {
			p.logger.Printf("delayed dispatch failed: %v", err)
		}
	}
}

// receiveDeadline keeps the blocking receive short enough to service the
// release queue on time.
func (p *Plant) receiveDeadline(now time.Time) time.Time {
	deadline := now.Add(pollInterval)
	if next, ok := p.sched.NextRelease(); ok && next.Before(deadline) {
		deadline = next
	}
	return deadline
}
