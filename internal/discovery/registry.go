// Package discovery implements the Discovery Registry: remote-server
// registration with semaphore-file liveness, stale-entry sweeping, and
// FindServers/GetEndpoints matching.
package discovery

import (
	"os"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/sebastiankruger/opcua-core/internal/ua"
)

// RegisteredServer is a remote server advertised to this one.
type RegisteredServer struct {
	ServerURI          string
	ProductURI         string
	ServerNames        []ua.LocalizedText
	ServerType         int32
	DiscoveryUrls      []string
	SemaphoreFilePath  string
	LastSeen           time.Time
}

// RegisterServerRequest carries the RegisterServer service parameters.
type RegisterServerRequest struct {
	IsOnline bool
	Server   RegisteredServer
}

// Registry tracks remote servers registered against this one.
type Registry struct {
	mu      sync.Mutex
	entries map[string]*RegisteredServer // keyed by ServerURI

	// CleanupTimeout is the global staleness timeout; zero disables the
	// lastSeen-based sweep, leaving only the semaphore check active.
	CleanupTimeout time.Duration

	statFunc func(path string) error // overridable for tests
}

func NewRegistry(cleanupTimeout time.Duration) *Registry {
	return &Registry{
		entries:  make(map[string]*RegisteredServer),
		CleanupTimeout: cleanupTimeout,
		statFunc: func(path string) error { _, err := os.Stat(path); return err },
	}
}

// ErrNotFound is returned by RegisterServer(online=false) for an unknown
// server.
var ErrNotFound = errors.Wrap(ua.NewStatusError(ua.BadNotFound), "registered server not found")

// RegisterServer upserts an online remote server's entry, or removes it
// when the request marks it offline. This call may block on I/O: it is
// reached from a utility entry point, not from a request handler.
func (r *Registry) RegisterServer(req RegisterServerRequest, now time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !req.IsOnline {
		if _, ok := r.entries[req.Server.ServerURI]; !ok {
			log.Warn().Str("serverUri", req.Server.ServerURI).Msg("unregister of unknown server")
			return ErrNotFound
		}
		delete(r.entries, req.Server.ServerURI)
		return nil
	}

	entry := req.Server
	entry.LastSeen = now
	r.entries[entry.ServerURI] = &entry // upsert: delete-and-replace is implicit via map assignment
	return nil
}

// CleanupTimedOut removes any entry whose semaphore file is no longer
// accessible, or whose lastSeen predates the global timeout (when set).
func (r *Registry) CleanupTimedOut(now time.Time) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	var toRemove []string
	for uri, e := range r.entries {
		if e.SemaphoreFilePath != "" {
			// Any stat error, not just not-exist, counts as "not
			// accessible": a semaphore on an unreadable mount is as
			// dead as a deleted one.
			if err := r.statFunc(e.SemaphoreFilePath); err != nil {
				toRemove = append(toRemove, uri)
				continue
			}
		}
		if r.CleanupTimeout > 0 && e.LastSeen.Before(now.Add(-r.CleanupTimeout)) {
			toRemove = append(toRemove, uri)
		}
	}
	for _, uri := range toRemove {
		delete(r.entries, uri)
	}
	return len(toRemove)
}

// Len reports the number of currently registered remote servers.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

// Snapshot returns a copy of every currently registered entry.
func (r *Registry) Snapshot() []RegisteredServer {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]RegisteredServer, 0, len(r.entries))
	for _, e := range r.entries {
		out = append(out, *e)
	}
	return out
}
