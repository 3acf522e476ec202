package transport

import (
	"bytes"
	"errors"
	"testing"
	"time"
)

func pair(t *testing.T) (*Conn, *Conn) {
	t.Helper()
	server, err := Listen("127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen failed: %v", err)
	}
	t.Cleanup(func() { server.Close() })

	client, err := Dial(server.LocalAddr().String())
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}
	t.Cleanup(func() { client.Close() })
	return server, client
}

func TestSendReceive(t *testing.T) {
	server, client := pair(t)

	payload := []byte{0x01, 0x02, 0x03, 0x04}
	if err := client.Send(payload); err != nil {
		t.Fatalf("send failed: %v", err)
	}

	data, addr, err := server.Receive(time.Now().Add(time.Second))
	if err != nil {
		t.Fatalf("receive failed: %v", err)
	}
	if !bytes.Equal(data, payload) {
		t.Errorf("got %v want %v", data, payload)
	}

	// Reply to the sender.
	reply := []byte{0xaa}
	if err := server.SendTo(reply, addr); err != nil {
		t.Fatalf("reply failed: %v", err)
	}
	data, _, err = client.Receive(time.Now().Add(time.Second))
	if err != nil {
		t.Fatalf("reply receive failed: %v", err)
	}
	if !bytes.Equal(data, reply) {
		t.Errorf("got %v want %v", data, reply)
	}
}

func TestReceiveTimeout(t *testing.T) {
	server, _ := pair(t)

	start := time.Now()
	_, _, err := server.Receive(time.Now().Add(50 * time.Millisecond))
	elapsed := time.Since(start)

	if !errors.Is(err, ErrTimeout) {
		t.Fatalf("want ErrTimeout, got %v", err)
	}
	if elapsed < 40*time.Millisecond {
		t.Errorf("returned before deadline: %v", elapsed)
	}
	if elapsed > time.Second {
		t.Errorf("blocked far past deadline: %v", elapsed)
	}
}

func TestReceiveAfterClose(t *testing.T) {
	server, _ := pair(t)
	server.Close()

	if _, _, err := server.Receive(time.Now().Add(time.Second)); !errors.Is(err, ErrClosed) {
		t.Fatalf("want ErrClosed, got %v", err)
	}
}

func TestDatagramBoundariesPreserved(t *testing.T) {
	server, client := pair(t)

	first := []byte{1, 1, 1}
	second := []byte{2, 2}
	if err := client.Send(first); err != nil {
		t.Fatalf("send failed: %v", err)
	}
	if err := client.Send(second); err != nil {
		t.Fatalf("send failed: %v", err)
	}

	got1, _, err := server.Receive(time.Now().Add(time.Second))
	if err != nil {
		t.Fatalf("receive failed: %v", err)
	}
	got2, _, err := server.Receive(time.Now().Add(time.Second))
	if err != nil {
		t.Fatalf("receive failed: %v", err)
	}
	if !bytes.Equal(got1, first) || !bytes.Equal(got2, second) {
		t.Errorf("datagrams merged or reordered: %v, %v", got1, got2)
	}
}
