// Package channel implements the SecureChannel Manager: channel token
// issuance/renewal, connection attachment, and sweeping of timed-out
// channels.
package channel

import (
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/sebastiankruger/opcua-core/internal/ua"
)

// State is the SecureChannel lifecycle state.
type State int

const (
	StateFresh State = iota
	StateOpen
	StateClosing
)

func (s State) String() string {
	switch s {
	case StateFresh:
		return "Fresh"
	case StateOpen:
		return "Open"
	case StateClosing:
		return "Closing"
	default:
		return "Unknown"
	}
}

// Connection is the minimal handle this package needs from the
// transport layer: something closeable, identified for logging.
type Connection interface {
	Close() error
	RemoteAddr() string
}

// SecureChannel is one issued channel: id, current token, lifetime
// window, and the transport connection it is bound to.
type SecureChannel struct {
	ChannelID       uint32
	TokenID         uint32
	CreatedAt       time.Time
	RevisedLifetime time.Duration
	Connection      Connection
	State           State
}

// expiresAt is the moment this channel's current token becomes invalid.
func (c *SecureChannel) expiresAt() time.Time {
	return c.CreatedAt.Add(c.RevisedLifetime)
}

// Manager issues and tracks SecureChannels.
type Manager struct {
	mu       sync.Mutex
	channels map[uint32]*SecureChannel
	nextID   uint32
	nextTok  uint32
}

func NewManager() *Manager {
	return &Manager{channels: make(map[uint32]*SecureChannel)}
}

// OpenRequest carries the OpenSecureChannel service parameters this
// manager needs.
type OpenRequest struct {
	RequestedLifetime time.Duration
	Renew             bool
	ChannelID         uint32 // only meaningful when Renew is true
}

// ErrUnknownChannel is returned by Open (when renewing) and Close for an
// unknown id.
var ErrUnknownChannel = errors.New("unknown secure channel")

// Open allocates a fresh channel, or -- when req.Renew is set -- renews
// an existing one, preserving its ChannelID and incrementing TokenID.
func (m *Manager) Open(req OpenRequest, conn Connection, now time.Time) (*SecureChannel, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if req.Renew {
		ch, ok := m.channels[req.ChannelID]
		if !ok {
			return nil, ErrUnknownChannel
		}
		m.nextTok++
		ch.TokenID = m.nextTok
		ch.CreatedAt = now
		ch.RevisedLifetime = req.RequestedLifetime
		ch.State = StateOpen
		return ch, nil
	}

	m.nextID++
	m.nextTok++
	ch := &SecureChannel{
		ChannelID:       m.nextID,
		TokenID:         m.nextTok,
		CreatedAt:       now,
		RevisedLifetime: req.RequestedLifetime,
		Connection:      conn,
		State:           StateOpen,
	}
	m.channels[ch.ChannelID] = ch
	return ch, nil
}

// Get returns the channel for id, if currently tracked.
func (m *Manager) Get(id uint32) (*SecureChannel, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ch, ok := m.channels[id]
	return ch, ok
}

// Close releases a channel's entry and closes its connection.
func (m *Manager) Close(id uint32) error {
	m.mu.Lock()
	ch, ok := m.channels[id]
	if ok {
		delete(m.channels, id)
	}
	m.mu.Unlock()

	if !ok {
		return ErrUnknownChannel
	}
	if ch.Connection != nil {
		return ch.Connection.Close()
	}
	return nil
}

// CleanupTimedOut removes every channel whose createdAt + revisedLifetime
// precedes now, closing the underlying connection. Connections are closed
// outside the lock so a slow Close cannot stall Open/Get.
func (m *Manager) CleanupTimedOut(now time.Time) int {
	m.mu.Lock()
	var expired []*SecureChannel
	for id, ch := range m.channels {
		if ch.expiresAt().Before(now) {
			expired = append(expired, ch)
			delete(m.channels, id)
		}
	}
	m.mu.Unlock()

	for _, ch := range expired {
		if ch.Connection != nil {
			ch.Connection.Close()
		}
	}
	return len(expired)
}

// CloseAll closes every tracked channel's underlying connection and
// releases its entry. Runs during server shutdown, after sessions are
// closed and before the node store is torn down.
func (m *Manager) CloseAll() int {
	m.mu.Lock()
	channels := make([]*SecureChannel, 0, len(m.channels))
	for id, ch := range m.channels {
		channels = append(channels, ch)
		delete(m.channels, id)
	}
	m.mu.Unlock()

	for _, ch := range channels {
		if ch.Connection != nil {
			ch.Connection.Close()
		}
	}
	return len(channels)
}

// Len reports the number of currently open channels.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.channels)
}

// Snapshot returns a point-in-time copy of every tracked channel, for
// read-only introspection (internal/admin).
func (m *Manager) Snapshot() []SecureChannel {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]SecureChannel, 0, len(m.channels))
	for _, ch := range m.channels {
		out = append(out, *ch)
	}
	return out
}

// StatusErrorForMissingChannel is the dispatcher-facing error for a
// request on an unknown/closed channel.
func StatusErrorForMissingChannel() error {
	return ua.NewStatusError(ua.BadSecureChannelIdInvalid)
}
