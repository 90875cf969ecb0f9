package discovery

import (
	"testing"
	"time"
)

func fixedNow() time.Time { return time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC) }

func TestRegisterServerUpsertsAndUnregisters(t *testing.T) {
	r := NewRegistry(0)
	now := fixedNow()

	err := r.RegisterServer(RegisterServerRequest{IsOnline: true, Server: RegisteredServer{ServerURI: "urn:a"}}, now)
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if r.Len() != 1 {
		t.Fatalf("expected 1 entry, got %d", r.Len())
	}

	err = r.RegisterServer(RegisterServerRequest{IsOnline: false, Server: RegisteredServer{ServerURI: "urn:a"}}, now)
	if err != nil {
		t.Fatalf("unregister: %v", err)
	}
	if r.Len() != 0 {
		t.Fatalf("expected 0 entries after unregister, got %d", r.Len())
	}
}

func TestRegisterServerUnregisterUnknownFails(t *testing.T) {
	r := NewRegistry(0)
	err := r.RegisterServer(RegisterServerRequest{IsOnline: false, Server: RegisteredServer{ServerURI: "urn:missing"}}, fixedNow())
	if err == nil {
		t.Fatal("expected error for unregistering unknown server")
	}
}

func TestCleanupTimedOutRemovesOnSemaphoreError(t *testing.T) {
	r := NewRegistry(0)
	now := fixedNow()
	r.RegisterServer(RegisterServerRequest{IsOnline: true, Server: RegisteredServer{ServerURI: "urn:a", SemaphoreFilePath: "/does/not/exist"}}, now)
	r.statFunc = func(path string) error { return errNotExist }

	removed := r.CleanupTimedOut(now)
	if removed != 1 {
		t.Fatalf("expected 1 removed, got %d", removed)
	}
}

func TestCleanupTimedOutRemovesOnLastSeenTimeout(t *testing.T) {
	r := NewRegistry(time.Minute)
	now := fixedNow()
	r.RegisterServer(RegisterServerRequest{IsOnline: true, Server: RegisteredServer{ServerURI: "urn:a"}}, now)

	removed := r.CleanupTimedOut(now.Add(2 * time.Minute))
	if removed != 1 {
		t.Fatalf("expected 1 removed, got %d", removed)
	}
}

var errNotExist = &testStatError{}

type testStatError struct{}

func (e *testStatError) Error() string { return "stat: not accessible" }
