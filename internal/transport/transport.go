// Package transport wraps a UDP socket behind send and deadline-bounded
// receive. It performs no segmentation and no retransmission; retry
// policy belongs to the session layer.
package transport

import (
	"errors"
	"fmt"
	"net"
	"time"
)

// MaxDatagram is the receive buffer size. Frames are far smaller; anything
// larger than this was not produced by a peer speaking the step protocol.
const MaxDatagram = 2048

var (
	// ErrTimeout reports that no datagram arrived before the deadline.
	ErrTimeout = errors.New("transport: receive deadline exceeded")

	// ErrClosed reports use of a closed connection.
	ErrClosed = errors.New("transport: connection closed")
)

// Conn is a thin datagram endpoint. The client side is connected (Dial)
// and uses Send; the server side is bound (Listen) and replies to the
// source address of the last received datagram via SendTo.
type Conn struct {
	sock *net.UDPConn
}

// Dial creates a connected client endpoint.
func Dial(addr string) (*Conn, error) {
	raddr, err := net.ResolveUDPAddr("udp", addr)
	if err != nil {
		return nil, fmt.Errorf("transport: resolve %s: %w", addr, err)
	}
	sock, err := net.DialUDP("udp", nil, raddr)
	if err != nil {
		return nil, fmt.Errorf("transport: dial %s: %w", addr, err)
	}
	return &Conn{sock: sock}, nil
}

// Listen creates a bound server endpoint.
func Listen(addr string) (*Conn, error) {
	laddr, err := net.ResolveUDPAddr("udp", addr)
	if err != nil {
		return nil, fmt.Errorf("transport: resolve %s: %w", addr, err)
	}
	sock, err := net.ListenUDP("udp", laddr)
	if err != nil {
		return nil, fmt.Errorf("transport: listen %s: %w", addr, err)
	}
	return &Conn{sock: sock}, nil
}

// LocalAddr returns the bound address, useful when listening on port 0.
func (c *Conn) LocalAddr() net.Addr {
	return c.sock.LocalAddr()
}

// Send writes one datagram on a connected endpoint.
func (c *Conn) Send(data []byte) error {
	if _, err := c.sock.Write(data); err != nil {
		return fmt.Errorf("transport: send: %w", err)
	}
	return nil
}

// SendTo writes one datagram to addr on a bound endpoint.
func (c *Conn) SendTo(data []byte, addr net.Addr) error {
	udpAddr, ok := addr.(*net.UDPAddr)
	if !ok {
		return fmt.Errorf("transport: send to non-UDP address %v", addr)
	}
	if _, err := c.sock.WriteToUDP(data, udpAddr); err != nil {
		return fmt.Errorf("transport: send to %v: %w", addr, err)
	}
	return nil
}

// Receive blocks until one datagram arrives or the deadline passes. A zero
// deadline blocks indefinitely. Datagram delivery is atomic, so a single
// read returns a whole frame; the deadline is never exceeded by partial
// reads. Returns the payload and the sender address.
func (c *Conn) Receive(deadline time.Time) ([]byte, net.Addr, error) {
	if err := c.sock.SetReadDeadline(deadline); err != nil {
		return nil, nil, fmt.Errorf("transport: set deadline: %w", err)
	}
	buf := make([]byte, MaxDatagram)
	n, addr, err := c.sock.ReadFromUDP(buf)
	if err != nil {
		if ne, ok := err.(net.Error); ok && ne.Timeout() {
			return nil, nil, ErrTimeout
		}
		if errors.Is(err, net.ErrClosed) {
			return nil, nil, ErrClosed
		}
		return nil, nil, fmt.Errorf("transport: receive: %w", err)
	}
	return buf[:n], addr, nil
}

// Close releases the socket. A blocked Receive returns ErrClosed.
func (c *Conn) Close() error {
	return c.sock.Close()
}
