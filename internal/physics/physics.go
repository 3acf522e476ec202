// Package physics holds the plant-side process model. The session layer
// treats it as an external collaborator behind the Model interface; the
// altitude model here reproduces the 1-D thrust-vs-gravity plant the
// system is normally deployed with.
package physics

import (
	"math"

	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/stat/distuv"
)

// State vector layout shared with the numeric side.
const (
	StateAcc = iota // vertical acceleration [m/s^2]
	StateGyro       // angular rate [rad/s], zero for the 1-D model
	StatePos        // altitude [m]
	StateVel        // vertical velocity [m/s]

	StateDim = 4
)

// Command vector layout: force components in newtons. The altitude model
// consumes only the vertical component.
const (
	CmdFx = iota
	CmdFy
	CmdFz

	CmdDim = 3
)

// Model advances the plant by one step. ok is false when the model could
// not produce a usable state (diverged to NaN/Inf); the returned vector
// is still well formed so the caller can ship its last-known state.
type Model interface {
	Advance(command []float32, dt float64) (state []float32, ok bool)
}

// Altitude is a point mass moving vertically under thrust and gravity,
// integrated with the explicit Euler scheme. Measured position and
// velocity carry gaussian sensor noise when a noise level is configured.
type Altitude struct {
	Mass    float64
	Gravity float64

	position     float64
	velocity     float64
	acceleration float64

	noise func() float64
}

// NewAltitude creates the model. noiseStd is the sensor noise standard
// deviation in meters (zero disables noise); the sampler is seeded for
// reproducible runs.
func NewAltitude(mass, gravity, noiseStd float64, seed uint64) *Altitude {
	a := &Altitude{Mass: mass, Gravity: gravity}
	if noiseStd > 0 {
		dist := distuv.Normal{Mu: 0, Sigma: noiseStd, Src: rand.NewSource(seed)}
		a.noise = dist.Rand
	}
	return a
}

// Reset sets the initial condition.
func (a *Altitude) Reset(position, velocity float64) {
	a.position = position
	a.velocity = velocity
	a.acceleration = 0
}

// Advance applies one Euler step: a = (fz - m*g)/m, then v += a*dt,
// x += v*dt.
func (a *Altitude) Advance(command []float32, dt float64) ([]float32, bool) {
	var thrust float64
	if len(command) > CmdFz {
		thrust = float64(command[CmdFz])
	}

	net := thrust - a.Mass*a.Gravity
	a.acceleration = net / a.Mass
	a.velocity += a.acceleration * dt
	a.position += a.velocity * dt

	state := make([]float32, StateDim)
	state[StateAcc] = float32(a.acceleration)
	state[StateGyro] = 0
	state[StatePos] = float32(a.position + a.sample())
	state[StateVel] = float32(a.velocity + a.sample())

	ok := !math.IsNaN(a.position) && !math.IsInf(a.position, 0) &&
		!math.IsNaN(a.velocity) && !math.IsInf(a.velocity, 0)
	return state, ok
}

func (a *Altitude) sample() float64 {
	if a.noise == nil {
		return 0
	}
	return a.noise()
}
