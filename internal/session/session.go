// Package session implements the two lock-step control loops: the plant
// side (passive request/response server with optional delayed dispatch)
// and the numeric side (active client driving one request per tick).
// Each session is a single sequential loop owning all of its mutable
// state; the only coordination between the two processes is the wire
// protocol.
package session

import (
	"errors"

	"github.com/san-kum/hilsim/internal/rtt"
)

// ErrSyncTimeout reports that the handshake window elapsed without an
// acknowledgment. Fatal: there is no degraded run without a shared time
// origin.
var ErrSyncTimeout = errors.New("session: synchronization timed out")

// Summary is returned by both Run methods when the loop ends.
type Summary struct {
	Steps         int
	Responses     int
	Timeouts      int
	SeqMismatches int
	DecodeErrors  int
	Invalid       int
	RTT           rtt.Snapshot
}

// Plant session states.
type plantState int

const (
	plantAwaitingSync plantState = iota
	plantReady
	plantReceiving
	plantComputing
	plantQueuedForSend
	plantShutdown
)

// Numeric session states.
type numericState int

const (
	numericAwaitingSync numericState = iota
	numericRunning
	numericTerminated
)

// pendingRequest is the numeric side's record of the single in-flight
// request. Strict lock-step: at most one exists at a time.
type pendingRequest struct {
	seq     uint32
	command []float32
}
