package physics

import (
	"math"
	"testing"
)

func TestHoverThrustBalancesGravity(t *testing.T) {
	m := NewAltitude(1.0, 9.81, 0, 1)
	m.Reset(10, 0)

	hover := []float32{0, 0, 9.81}
	for i := 0; i < 100; i++ {
		state, ok := m.Advance(hover, 0.02)
		if !ok {
			t.Fatalf("step %d: state reported invalid", i)
		}
		if math.Abs(float64(state[StateAcc])) > 1e-6 {
			t.Fatalf("step %d: hover produced acceleration %f", i, state[StateAcc])
		}
	}

	state, _ := m.Advance(hover, 0.02)
	if math.Abs(float64(state[StatePos])-10) > 1e-4 {
		t.Errorf("altitude drifted under hover thrust: %f", state[StatePos])
	}
}

func TestFreeFall(t *testing.T) {
	m := NewAltitude(1.0, 9.81, 0, 1)
	m.Reset(100, 0)

	dt := 0.01
	var state []float32
	for i := 0; i < 100; i++ {
		state, _ = m.Advance([]float32{0, 0, 0}, dt)
	}

	// After 1s of Euler free fall: v = -9.81, x = 100 - 9.81*dt*sum(1..n).
	if math.Abs(float64(state[StateVel])+9.81) > 1e-3 {
		t.Errorf("velocity after 1s: got %f want -9.81", state[StateVel])
	}
	if state[StatePos] >= 96 || state[StatePos] <= 94 {
		t.Errorf("altitude after 1s: got %f want ~95.04", state[StatePos])
	}
	if state[StateAcc] != -9.81 {
		t.Errorf("acceleration: got %f want -9.81", state[StateAcc])
	}
}

func TestShortCommandVector(t *testing.T) {
	m := NewAltitude(1.0, 9.81, 0, 1)
	m.Reset(0, 0)

	// Missing fz means zero thrust, not a crash.
	state, ok := m.Advance([]float32{1.0}, 0.02)
	if !ok {
		t.Fatal("state reported invalid")
	}
	if state[StateAcc] != -9.81 {
		t.Errorf("acceleration: got %f want -9.81", state[StateAcc])
	}
}

func TestDivergenceReportedInvalid(t *testing.T) {
	m := NewAltitude(1.0, 9.81, 0, 1)
	m.Reset(0, 0)

	if _, ok := m.Advance([]float32{0, 0, float32(math.Inf(1))}, 0.02); ok {
		t.Error("infinite thrust accepted as valid")
	}
}

func TestSensorNoiseSeeded(t *testing.T) {
	a := NewAltitude(1.0, 9.81, 0.005, 99)
	b := NewAltitude(1.0, 9.81, 0.005, 99)
	a.Reset(5, 0)
	b.Reset(5, 0)

	cmd := []float32{0, 0, 9.81}
	for i := 0; i < 20; i++ {
		sa, _ := a.Advance(cmd, 0.02)
		sb, _ := b.Advance(cmd, 0.02)
		if sa[StatePos] != sb[StatePos] || sa[StateVel] != sb[StateVel] {
			t.Fatalf("step %d: same seed produced different measurements", i)
		}
	}
}
