package relay

import (
	"io"
	"net"
	"testing"
	"time"
)

func TestRelay_BidirectionalCopy(t *testing.T) {
	t.Parallel()

	clientLocal, clientRemote := net.Pipe()
	targetLocal, targetRemote := net.Pipe()

	done := make(chan Result, 1)
	go func() {
		done <- Relay(clientRemote, targetRemote)
	}()

	// Simulate the client sending "hello" to the target. net.Pipe has no
	// write half-close, so the client keeps its end open until it has read
	// the reply.
	go func() {
		_, _ = clientLocal.Write([]byte("hello"))
	}()

	buf := make([]byte, 16)
	n, _ := io.ReadFull(targetLocal, buf[:5])
	if n != 5 || string(buf[:5]) != "hello" {
		t.Fatalf("target received %q, want %q", buf[:n], "hello")
	}

	// Simulate the target replying "world" then closing.
	_, _ = targetLocal.Write([]byte("world"))
	_ = targetLocal.Close()

	n, _ = io.ReadFull(clientLocal, buf[:5])
	if n != 5 || string(buf[:5]) != "world" {
		t.Fatalf("client received %q, want %q", buf[:n], "world")
	}
	_ = clientLocal.Close()

	select {
	case res := <-done:
		if res.ClientToTarget != 5 {
			t.Errorf("ClientToTarget = %d, want 5", res.ClientToTarget)
		}
		if res.TargetToClient != 5 {
			t.Errorf("TargetToClient = %d, want 5", res.TargetToClient)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Relay did not return after both sides closed")
	}
}

func TestRelay_TerminatesWithTCPClientConn(t *testing.T) {
	t.Parallel()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer ln.Close()

	serverDone := make(chan net.Conn, 1)
	go func() {
		c, err := ln.Accept()
		if err != nil {
			return
		}
		serverDone <- c
	}()

	clientSide, err := net.Dial("tcp", ln.Addr().String())
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	serverSide := <-serverDone

	target1, target2 := net.Pipe()

	relayDone := make(chan Result, 1)
	go func() { relayDone <- Relay(serverSide, target2) }()

	// Client sends data then closes its write side by closing the socket,
	// simulating EOF on the client->target direction.
	go func() {
		_, _ = clientSide.Write([]byte("x"))
		_ = clientSide.Close()
	}()

	buf := make([]byte, 1)
	_, _ = io.ReadFull(target1, buf)

	// The client->target direction has ended. Closing the target end ends
	// the target->client direction too; Relay must then return.
	_ = target1.Close()

	select {
	case <-relayDone:
	case <-time.After(2 * time.Second):
		t.Fatal("Relay did not terminate after both directions ended")
	}
}
