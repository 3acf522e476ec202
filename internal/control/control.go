// Package control provides the numeric-side feedback controllers.
//
//   - [PID]: altitude PID with integral clamping and gravity feed-forward
//   - [None]: passthrough controller (zero command)
//
// Controllers consume the state vector layout from the physics package
// and produce a force command vector.
package control

import (
	"github.com/san-kum/hilsim/internal/physics"
)

// Controller computes the next command from the latest plant state. dt is
// the step interval; on a timed-out tick the session passes the stale
// state it last received.
type Controller interface {
	Compute(state []float32, dt float64) []float32
	Reset()
}

// PID regulates altitude toward Setpoint. The integral term is clamped to
// IntegralLimit to prevent windup, and the output thrust is saturated to
// [0, MaxThrust] after adding the gravity feed-forward term.
type PID struct {
	Kp       float64
	Ki       float64
	Kd       float64
	Setpoint float64

	// Feed-forward and saturation.
	Mass          float64
	Gravity       float64
	IntegralLimit float64
	MaxThrust     float64

	integral float64
	prevErr  float64
	first    bool
}

// NewPID builds the altitude controller with the default limits.
func NewPID(kp, ki, kd, setpoint, mass, gravity float64) *PID {
	return &PID{
		Kp:            kp,
		Ki:            ki,
		Kd:            kd,
		Setpoint:      setpoint,
		Mass:          mass,
		Gravity:       gravity,
		IntegralLimit: 30.0,
		MaxThrust:     1000.0,
		first:         true,
	}
}

// Reset clears accumulated controller state.
func (p *PID) Reset() {
	p.integral = 0
	p.prevErr = 0
	p.first = true
}

// Compute returns the force command [fx, fy, fz] for the measured state.
func (p *PID) Compute(state []float32, dt float64) []float32 {
	var altitude float64
	if len(state) > physics.StatePos {
		altitude = float64(state[physics.StatePos])
	}

	err := p.Setpoint - altitude
	if p.first {
		p.prevErr = err
		p.first = false
	}

	p.integral += err * dt
	if p.integral > p.IntegralLimit {
		p.integral = p.IntegralLimit
	} else if p.integral < -p.IntegralLimit {
		p.integral = -p.IntegralLimit
	}

	var derivative float64
	if dt > 0 {
		derivative = (err - p.prevErr) / dt
	}
	p.prevErr = err

	out := p.Kp*err + p.Ki*p.integral + p.Kd*derivative

	thrust := out + p.Mass*p.Gravity
	if thrust < 0 {
		thrust = 0
	} else if thrust > p.MaxThrust {
		thrust = p.MaxThrust
	}

	return []float32{0, 0, float32(thrust)}
}

// None emits a zero command of the given dimension.
type None struct {
	dim int
}

// NewNone builds a passthrough controller.
func NewNone(dim int) *None {
	return &None{dim: dim}
}

func (n *None) Compute(state []float32, dt float64) []float32 {
	return make([]float32, n.dim)
}

func (n *None) Reset() {}
