// Package session implements the Session Manager: session creation,
// activation (anonymous/username identity tokens), rebinding across
// SecureChannels, and timeout sweeping.
package session

import (
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/sebastiankruger/opcua-core/internal/ua"
)

const (
	minTimeout     = 10 * time.Second
	maxTimeout     = 3600 * time.Second
	anonymousPolicy = "open62541-anonymous-policy"
	usernamePolicy  = "username_basic256"
)

// IdentityTokenType is the decoded ActivateSession user-identity-token
// kind.
type IdentityTokenType int

const (
	IdentityAnonymous IdentityTokenType = iota
	IdentityUserName
	IdentityUnsupported
)

// IdentityToken is the decoded payload of the ActivateSession request's
// identity token, whatever the wire codec produced (out of scope here).
type IdentityToken struct {
	Type                IdentityTokenType
	PolicyID            string
	UserName            string
	Password            string
	EncryptionAlgorithm string
}

// ClientDescription holds the client-identity fields CreateSession
// copies onto the Session.
type ClientDescription struct {
	ApplicationURI string
	ProductURI     string
	ApplicationName ua.LocalizedText
}

// State is the Session lifecycle state: Created until first successful
// activation, Active until close or timeout, Closed after.
type State int

const (
	StateCreated State = iota
	StateActive
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateCreated:
		return "Created"
	case StateActive:
		return "Active"
	case StateClosed:
		return "Closed"
	default:
		return "Unknown"
	}
}

// Session is one client-scoped context. ChannelID and EndpointIndex
// are back-references into the owning managers, never owning pointers,
// so teardown order is the managers' concern.
type Session struct {
	SessionID              ua.NodeID
	AuthToken               ua.NodeID
	ChannelID               uint32 // 0 means unattached
	EndpointIndex           int
	Timeout                 time.Duration
	ValidTill               time.Time
	Activated               bool
	ClientDescription       ClientDescription
	SessionName             string
	MaxResponseMessageSize  uint32

	state State
}

func (s *Session) State() State { return s.state }

// AuthConfig is the server-level authentication policy the Manager
// enforces during ActivateSession.
type AuthConfig struct {
	AllowAnonymous      bool
	AllowUsernamePassword bool
	UsernamePasswordTable map[string]string // username -> password
}

// Manager creates and tracks Sessions.
type Manager struct {
	mu       sync.Mutex
	sessions map[ua.NodeID]*Session // keyed by AuthToken
	auth     AuthConfig
}

func NewManager(auth AuthConfig) *Manager {
	return &Manager{sessions: make(map[ua.NodeID]*Session), auth: auth}
}

// CreateSessionRequest carries the CreateSession service parameters this
// manager needs.
type CreateSessionRequest struct {
	ClientDescription      ClientDescription
	SessionName            string
	RequestedSessionTimeout time.Duration
	MaxResponseMessageSize uint32
}

func clampDuration(d, lo, hi time.Duration) time.Duration {
	if d < lo {
		return lo
	}
	if d > hi {
		return hi
	}
	return d
}

// CreateSession allocates a session with fresh random SessionID and
// AuthToken Guids, the requested timeout clamped to [10s, 1h], and no
// channel attached until activation.
func (m *Manager) CreateSession(req CreateSessionRequest, now time.Time) *Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	timeout := clampDuration(req.RequestedSessionTimeout, minTimeout, maxTimeout)
	s := &Session{
		SessionID:              ua.NewGuidRandom(1),
		AuthToken:              ua.NewGuidRandom(1),
		ClientDescription:      req.ClientDescription,
		SessionName:            req.SessionName,
		MaxResponseMessageSize: req.MaxResponseMessageSize,
		Timeout:                timeout,
		ValidTill:              now.Add(timeout),
		Activated:              false,
		state:                  StateCreated,
	}
	m.sessions[s.AuthToken] = s
	return s
}

// ErrSessionIDInvalid / ErrIdentityTokenInvalid / ErrUserAccessDenied
// carry the status codes activation failures report on the wire.
var (
	ErrSessionIDInvalid     = ua.NewStatusError(ua.BadSessionIdInvalid)
	ErrIdentityTokenInvalid = ua.NewStatusError(ua.BadIdentityTokenInvalid)
	ErrUserAccessDenied     = ua.NewStatusError(ua.BadUserAccessDenied)
)

// Lookup returns the Session for an auth token, or nil.
func (m *Manager) Lookup(authToken ua.NodeID) (*Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[authToken]
	return s, ok
}

// ActivateSession validates the identity token against the server's
// auth policy, rebinds the session to the presenting channel, and
// renews its validity window.
func (m *Manager) ActivateSession(channelID uint32, s *Session, token IdentityToken, now time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s.ValidTill.Before(now) {
		return errors.Wrap(ErrSessionIDInvalid, "session timed out before activation")
	}

	switch token.Type {
	case IdentityAnonymous:
		if !m.auth.AllowAnonymous {
			return errors.Wrap(ErrIdentityTokenInvalid, "anonymous login disabled")
		}
		// An empty policyId is treated as the anonymous policy, for
		// clients (e.g. Siemens OPC Scout) that send one.
		if token.PolicyID != "" && token.PolicyID != anonymousPolicy {
			return errors.Wrap(ErrIdentityTokenInvalid, "unrecognized anonymous policy id")
		}
	case IdentityUserName:
		if !m.auth.AllowUsernamePassword {
			return errors.Wrap(ErrIdentityTokenInvalid, "username/password login disabled")
		}
		if token.EncryptionAlgorithm != "" {
			return errors.Wrap(ErrIdentityTokenInvalid, "encrypted passwords not supported")
		}
		if token.UserName == "" || token.Password == "" {
			return errors.Wrap(ErrIdentityTokenInvalid, "empty username or password")
		}
		want, ok := m.auth.UsernamePasswordTable[token.UserName]
		if !ok || want != token.Password {
			return errors.Wrap(ErrUserAccessDenied, "no matching username/password entry")
		}
	default:
		return errors.Wrap(ErrIdentityTokenInvalid, "unsupported identity token type")
	}

	// Detach from any previously-attached channel and attach to the
	// presenting one. The channel is held as an opaque id, not an
	// owning pointer, so this is a plain atomic re-parent.
	s.ChannelID = channelID
	s.Activated = true
	s.state = StateActive
	s.ValidTill = now.Add(s.Timeout)
	return nil
}

// CloseSession destroys the session handle; any later request bearing
// its auth token fails with BadSessionIdInvalid.
func (m *Manager) CloseSession(authToken ua.NodeID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[authToken]
	if !ok {
		return errors.Wrap(ErrSessionIDInvalid, "session not found")
	}
	s.state = StateClosed
	delete(m.sessions, authToken)
	return nil
}

// CleanupTimedOut sweeps and removes every session whose ValidTill
// precedes now.
func (m *Manager) CleanupTimedOut(now time.Time) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	var expired []ua.NodeID
	for token, s := range m.sessions {
		if s.ValidTill.Before(now) {
			expired = append(expired, token)
		}
	}
	for _, token := range expired {
		m.sessions[token].state = StateClosed
		delete(m.sessions, token)
	}
	return len(expired)
}

// CloseAll closes every tracked session. Runs first in the server
// shutdown sequence, before channels are torn down.
func (m *Manager) CloseAll() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := len(m.sessions)
	for _, s := range m.sessions {
		s.state = StateClosed
	}
	m.sessions = make(map[ua.NodeID]*Session)
	return n
}

// Len reports the number of currently tracked sessions.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// Snapshot returns a point-in-time copy of every tracked session, for
// read-only introspection (internal/admin).
func (m *Manager) Snapshot() []Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		out = append(out, *s)
	}
	return out
}
