// Package wire defines the fixed-layout binary framing for the step
// protocol. All multi-byte fields are big-endian so plant and numeric
// builds interoperate regardless of native endianness. Every frame ends
// with an 8-byte digest (leading bytes of the MD5 of everything before
// it); decode recomputes and rejects on mismatch.
package wire

import (
	"crypto/md5"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
)

// Frame type tags. The tag participates in the digest, so a flipped tag
// byte surfaces as corruption, not as a misparse of the wrong layout.
const (
	TypeStepRequest  byte = 0x01
	TypeStepResponse byte = 0x02
	TypeReady        byte = 0x03
	TypeAck          byte = 0x04
)

// MaxVectorLen bounds command/state vectors so a frame always fits in a
// single datagram well under common MTUs.
const MaxVectorLen = 64

const (
	digestSize = 8

	reqHeaderSize  = 1 + 4 + 8 + 2 // type, seq, simTime, count
	respHeaderSize = 1 + 4 + 8 + 2
	respTrailerLen = 1 + digestSize // valid flag + digest
	handshakeSize  = 1 + 8 + 8 + digestSize
)

var (
	ErrTruncated   = errors.New("wire: truncated packet")
	ErrCorrupt     = errors.New("wire: corrupt packet (digest mismatch)")
	ErrUnknownType = errors.New("wire: unknown message type")
	ErrVectorLen   = errors.New("wire: vector length out of range")
)

// StepRequest carries one tick's command vector from numeric to plant.
type StepRequest struct {
	Seq     uint32
	SimTime float64
	Command []float32
}

// StepResponse answers exactly one StepRequest. Valid is false when the
// plant could not produce a usable state for this step; the state vector
// still holds the last known values so the frame stays well formed.
type StepResponse struct {
	Seq     uint32
	SimTime float64
	State   []float32
	Valid   bool
}

// Ready opens the handshake. The nonce is echoed back in the Ack so the
// initiator can match the reply to its own exchange.
type Ready struct {
	Nonce     uint64
	Timestamp float64
}

// Ack answers a Ready, echoing its nonce.
type Ack struct {
	Nonce     uint64
	Timestamp float64
}

func digest(data []byte) uint64 {
	sum := md5.Sum(data)
	return binary.BigEndian.Uint64(sum[:digestSize])
}

func appendDigest(buf []byte) []byte {
	return binary.BigEndian.AppendUint64(buf, digest(buf))
}

// verify checks overall length and the trailing digest. Length problems
// report ErrTruncated, digest mismatch ErrCorrupt.
func verify(data []byte, want int) error {
	if len(data) != want {
		return fmt.Errorf("%w: got %d bytes, layout requires %d", ErrTruncated, len(data), want)
	}
	body := data[:len(data)-digestSize]
	if binary.BigEndian.Uint64(data[len(data)-digestSize:]) != digest(body) {
		return ErrCorrupt
	}
	return nil
}

// MessageType peeks the frame tag without validating the frame.
func MessageType(data []byte) (byte, error) {
	if len(data) == 0 {
		return 0, ErrTruncated
	}
	switch data[0] {
	case TypeStepRequest, TypeStepResponse, TypeReady, TypeAck:
		return data[0], nil
	}
	return 0, fmt.Errorf("%w: 0x%02x", ErrUnknownType, data[0])
}

// EncodeStepRequest serializes r. The command length must not exceed
// MaxVectorLen.
func EncodeStepRequest(r StepRequest) ([]byte, error) {
	if len(r.Command) > MaxVectorLen {
		return nil, fmt.Errorf("%w: command has %d elements", ErrVectorLen, len(r.Command))
	}
	buf := make([]byte, 0, reqHeaderSize+4*len(r.Command)+digestSize)
	buf = append(buf, TypeStepRequest)
	buf = binary.BigEndian.AppendUint32(buf, r.Seq)
	buf = binary.BigEndian.AppendUint64(buf, math.Float64bits(r.SimTime))
	buf = binary.BigEndian.AppendUint16(buf, uint16(len(r.Command)))
	for _, v := range r.Command {
		buf = binary.BigEndian.AppendUint32(buf, math.Float32bits(v))
	}
	return appendDigest(buf), nil
}

// DecodeStepRequest parses and validates a StepRequest frame. The vector
// length comes from the explicit count field, never from the packet size.
func DecodeStepRequest(data []byte) (StepRequest, error) {
	if len(data) < reqHeaderSize {
		return StepRequest{}, fmt.Errorf("%w: %d bytes, header requires %d", ErrTruncated, len(data), reqHeaderSize)
	}
	n := int(binary.BigEndian.Uint16(data[13:15]))
	if n > MaxVectorLen {
		return StepRequest{}, fmt.Errorf("%w: declared command length %d", ErrVectorLen, n)
	}
	if err := verify(data, reqHeaderSize+4*n+digestSize); err != nil {
		return StepRequest{}, err
	}
	if data[0] != TypeStepRequest {
		return StepRequest{}, fmt.Errorf("%w: 0x%02x", ErrUnknownType, data[0])
	}
	r := StepRequest{
		Seq:     binary.BigEndian.Uint32(data[1:5]),
		SimTime: math.Float64frombits(binary.BigEndian.Uint64(data[5:13])),
		Command: make([]float32, n),
	}
	for i := 0; i < n; i++ {
		r.Command[i] = math.Float32frombits(binary.BigEndian.Uint32(data[15+4*i:]))
	}
	return r, nil
}

// EncodeStepResponse serializes r. The state length must not exceed
// MaxVectorLen.
func EncodeStepResponse(r StepResponse) ([]byte, error) {
	if len(r.State) > MaxVectorLen {
		return nil, fmt.Errorf("%w: state has %d elements", ErrVectorLen, len(r.State))
	}
	buf := make([]byte, 0, respHeaderSize+4*len(r.State)+respTrailerLen)
	buf = append(buf, TypeStepResponse)
	buf = binary.BigEndian.AppendUint32(buf, r.Seq)
	buf = binary.BigEndian.AppendUint64(buf, math.Float64bits(r.SimTime))
	buf = binary.BigEndian.AppendUint16(buf, uint16(len(r.State)))
	for _, v := range r.State {
		buf = binary.BigEndian.AppendUint32(buf, math.Float32bits(v))
	}
	if r.Valid {
		buf = append(buf, 1)
	} else {
		buf = append(buf, 0)
	}
	return appendDigest(buf), nil
}

// DecodeStepResponse parses and validates a StepResponse frame.
func DecodeStepResponse(data []byte) (StepResponse, error) {
	if len(data) < respHeaderSize {
		return StepResponse{}, fmt.Errorf("%w: %d bytes, header requires %d", ErrTruncated, len(data), respHeaderSize)
	}
	n := int(binary.BigEndian.Uint16(data[13:15]))
	if n > MaxVectorLen {
		return StepResponse{}, fmt.Errorf("%w: declared state length %d", ErrVectorLen, n)
	}
	if err := verify(data, respHeaderSize+4*n+respTrailerLen); err != nil {
		return StepResponse{}, err
	}
	if data[0] != TypeStepResponse {
		return StepResponse{}, fmt.Errorf("%w: 0x%02x", ErrUnknownType, data[0])
	}
	r := StepResponse{
		Seq:     binary.BigEndian.Uint32(data[1:5]),
		SimTime: math.Float64frombits(binary.BigEndian.Uint64(data[5:13])),
		State:   make([]float32, n),
	}
	for i := 0; i < n; i++ {
		r.State[i] = math.Float32frombits(binary.BigEndian.Uint32(data[15+4*i:]))
	}
	switch data[respHeaderSize+4*n] {
	case 0:
		r.Valid = false
	case 1:
		r.Valid = true
	default:
		return StepResponse{}, fmt.Errorf("%w: invalid bool encoding", ErrCorrupt)
	}
	return r, nil
}

func encodeHandshake(tag byte, nonce uint64, ts float64) []byte {
	buf := make([]byte, 0, handshakeSize)
	buf = append(buf, tag)
	buf = binary.BigEndian.AppendUint64(buf, nonce)
	buf = binary.BigEndian.AppendUint64(buf, math.Float64bits(ts))
	return appendDigest(buf)
}

func decodeHandshake(tag byte, data []byte) (uint64, float64, error) {
	if err := verify(data, handshakeSize); err != nil {
		return 0, 0, err
	}
	if data[0] != tag {
		return 0, 0, fmt.Errorf("%w: 0x%02x", ErrUnknownType, data[0])
	}
	nonce := binary.BigEndian.Uint64(data[1:9])
	ts := math.Float64frombits(binary.BigEndian.Uint64(data[9:17]))
	return nonce, ts, nil
}

// EncodeReady serializes a handshake Ready frame.
func EncodeReady(r Ready) []byte {
	return encodeHandshake(TypeReady, r.Nonce, r.Timestamp)
}

// DecodeReady parses and validates a Ready frame.
func DecodeReady(data []byte) (Ready, error) {
	nonce, ts, err := decodeHandshake(TypeReady, data)
	if err != nil {
		return Ready{}, err
	}
	return Ready{Nonce: nonce, Timestamp: ts}, nil
}

// EncodeAck serializes a handshake Ack frame.
func EncodeAck(a Ack) []byte {
	return encodeHandshake(TypeAck, a.Nonce, a.Timestamp)
}

// DecodeAck parses and validates an Ack frame.
func DecodeAck(data []byte) (Ack, error) {
	nonce, ts, err := decodeHandshake(TypeAck, data)
	if err != nil {
		return Ack{}, err
	}
	return Ack{Nonce: nonce, Timestamp: ts}, nil
}
