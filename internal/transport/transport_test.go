package transport

import (
	"testing"
)

func TestLoopbackRoundTripsFrame(t *testing.T) {
	client, server := NewLoopbackPair(4096)
	defer client.Close()
	defer server.Close()

	go func() {
		client.WriteFrame(Frame{Payload: []byte("hello")})
	}()

	f, err := server.ReadFrame()
	if err != nil {
		t.Fatalf("ReadFrame: %v", err)
	}
	if string(f.Payload) != "hello" {
		t.Fatalf("got %q", f.Payload)
	}
}

func TestLoopbackRemoteAddrDiffersPerSide(t *testing.T) {
	client, server := NewLoopbackPair(4096)
	defer client.Close()
	defer server.Close()

	if client.RemoteAddr() == server.RemoteAddr() {
		t.Fatal("expected distinct remote addresses for each side")
	}
}

func TestLoopbackCloseUnblocksPendingRead(t *testing.T) {
	client, server := NewLoopbackPair(4096)
	defer server.Close()

	done := make(chan error, 1)
	go func() {
		_, err := client.ReadFrame()
		done <- err
	}()

	server.Close()
	if err := <-done; err == nil {
		t.Fatal("expected ReadFrame to return an error after peer close")
	}
}
