package session

import (
	"testing"
	"time"
)

func TestCreateSessionClampsTimeout(t *testing.T) {
	m := NewManager(AuthConfig{AllowAnonymous: true})
	now := time.Unix(1000, 0)

	s := m.CreateSession(CreateSessionRequest{RequestedSessionTimeout: time.Millisecond}, now)
	if s.Timeout != minTimeout {
		t.Fatalf("expected clamp to min, got %v", s.Timeout)
	}

	s2 := m.CreateSession(CreateSessionRequest{RequestedSessionTimeout: time.Hour * 10}, now)
	if s2.Timeout != maxTimeout {
		t.Fatalf("expected clamp to max, got %v", s2.Timeout)
	}
}

// TestActivateSessionAnonymous walks the create/activate happy path for
// an anonymous token with the anonymous policy id.
func TestActivateSessionAnonymous(t *testing.T) {
	m := NewManager(AuthConfig{AllowAnonymous: true})
	now := time.Unix(1000, 0)
	s := m.CreateSession(CreateSessionRequest{RequestedSessionTimeout: time.Minute}, now)

	if err := m.ActivateSession(1, s, IdentityToken{Type: IdentityAnonymous, PolicyID: anonymousPolicy}, now); err != nil {
		t.Fatalf("ActivateSession: %v", err)
	}
	if !s.Activated || s.State() != StateActive {
		t.Fatal("expected session activated")
	}
	if !s.ValidTill.After(now) {
		t.Fatal("expected validTill > now after activation")
	}
}

// TestActivateSessionAnonymousEmptyPolicyCompat: some clients (Siemens
// OPC Scout) send an empty policy id for anonymous tokens.
func TestActivateSessionAnonymousEmptyPolicyCompat(t *testing.T) {
	m := NewManager(AuthConfig{AllowAnonymous: true})
	now := time.Unix(1000, 0)
	s := m.CreateSession(CreateSessionRequest{RequestedSessionTimeout: time.Minute}, now)

	if err := m.ActivateSession(1, s, IdentityToken{Type: IdentityAnonymous, PolicyID: ""}, now); err != nil {
		t.Fatalf("expected empty policy id accepted, got %v", err)
	}
}

func TestActivateSessionTimeoutThenReactivateFails(t *testing.T) {
	m := NewManager(AuthConfig{AllowAnonymous: true})
	now := time.Unix(1000, 0)
	s := m.CreateSession(CreateSessionRequest{RequestedSessionTimeout: minTimeout}, now)

	if err := m.ActivateSession(1, s, IdentityToken{Type: IdentityAnonymous}, now); err != nil {
		t.Fatal(err)
	}

	later := now.Add(minTimeout + time.Second)
	err := m.ActivateSession(1, s, IdentityToken{Type: IdentityAnonymous}, later)
	if err == nil {
		t.Fatal("expected timeout failure")
	}
}

func TestActivateSessionUsernamePassword(t *testing.T) {
	m := NewManager(AuthConfig{AllowUsernamePassword: true, UsernamePasswordTable: map[string]string{"alice": "secret"}})
	now := time.Unix(1000, 0)
	s := m.CreateSession(CreateSessionRequest{RequestedSessionTimeout: time.Minute}, now)

	if err := m.ActivateSession(1, s, IdentityToken{Type: IdentityUserName, UserName: "alice", Password: "wrong"}, now); err == nil {
		t.Fatal("expected BadUserAccessDenied for wrong password")
	}
	if err := m.ActivateSession(1, s, IdentityToken{Type: IdentityUserName, UserName: "alice", Password: "secret"}, now); err != nil {
		t.Fatalf("expected success, got %v", err)
	}
}

func TestActivateSessionRebindsAcrossChannels(t *testing.T) {
	m := NewManager(AuthConfig{AllowAnonymous: true})
	now := time.Unix(1000, 0)
	s := m.CreateSession(CreateSessionRequest{RequestedSessionTimeout: time.Minute}, now)

	if err := m.ActivateSession(1, s, IdentityToken{Type: IdentityAnonymous}, now); err != nil {
		t.Fatal(err)
	}
	if s.ChannelID != 1 {
		t.Fatalf("expected channel 1, got %d", s.ChannelID)
	}
	if err := m.ActivateSession(2, s, IdentityToken{Type: IdentityAnonymous}, now); err != nil {
		t.Fatal(err)
	}
	if s.ChannelID != 2 {
		t.Fatalf("expected rebind to channel 2, got %d", s.ChannelID)
	}
}

// TestCleanupTimedOut checks that no surviving session's ValidTill
// precedes the sweep timestamp.
func TestCleanupTimedOut(t *testing.T) {
	m := NewManager(AuthConfig{AllowAnonymous: true})
	now := time.Unix(1000, 0)
	s := m.CreateSession(CreateSessionRequest{RequestedSessionTimeout: minTimeout}, now)

	removed := m.CleanupTimedOut(now.Add(minTimeout + time.Second))
	if removed != 1 {
		t.Fatalf("expected 1 removed, got %d", removed)
	}
	if _, ok := m.Lookup(s.AuthToken); ok {
		t.Fatal("expected session removed")
	}
}

// TestCloseAllClosesEverySession covers the shutdown teardown path:
// sessions are closed before channels during server shutdown.
func TestCloseAllClosesEverySession(t *testing.T) {
	m := NewManager(AuthConfig{AllowAnonymous: true})
	now := time.Unix(1000, 0)
	s1 := m.CreateSession(CreateSessionRequest{RequestedSessionTimeout: time.Minute}, now)
	s2 := m.CreateSession(CreateSessionRequest{RequestedSessionTimeout: time.Minute}, now)

	if n := m.CloseAll(); n != 2 {
		t.Fatalf("expected 2 sessions closed, got %d", n)
	}
	if s1.State() != StateClosed || s2.State() != StateClosed {
		t.Fatal("expected both sessions transitioned to Closed")
	}
	if _, ok := m.Lookup(s1.AuthToken); ok {
		t.Fatal("expected session 1 removed")
	}
	if m.Len() != 0 {
		t.Fatalf("expected manager empty after CloseAll, got %d", m.Len())
	}
}
