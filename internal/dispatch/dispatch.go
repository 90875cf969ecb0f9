// Package dispatch implements the Service Dispatcher: it checks each
// incoming request against the precondition table for its service type
// (required SecureChannel state, required Session state) before handing
// it to a registered Handler, synthesizing the matching Bad* response
// when a precondition fails.
package dispatch

import (
	"context"
	"sync"

	"github.com/gammazero/deque"
	"github.com/gammazero/workerpool"
	"github.com/pkg/errors"

	"github.com/sebastiankruger/opcua-core/internal/channel"
	"github.com/sebastiankruger/opcua-core/internal/session"
	"github.com/sebastiankruger/opcua-core/internal/ua"
)

// ServiceType names a dispatchable request kind.
type ServiceType string

const (
	ServiceOpenSecureChannel ServiceType = "OpenSecureChannel"
	ServiceCloseSecureChannel ServiceType = "CloseSecureChannel"
	ServiceCreateSession     ServiceType = "CreateSession"
	ServiceActivateSession   ServiceType = "ActivateSession"
	ServiceCloseSession      ServiceType = "CloseSession"
	ServiceRead              ServiceType = "Read"
	ServiceWrite             ServiceType = "Write"
	ServiceBrowse            ServiceType = "Browse"
	ServiceCall              ServiceType = "Call"
	ServiceFindServers       ServiceType = "FindServers"
	ServiceGetEndpoints      ServiceType = "GetEndpoints"
	ServiceRegisterServer    ServiceType = "RegisterServer"
)

// Precondition is the precondition table entry for one ServiceType: the
// channel must already be open, and optionally the session must exist
// and (optionally) be activated.
type Precondition struct {
	RequireChannel        bool
	RequireSession        bool
	RequireSessionActive  bool
}

// defaultPreconditions mirrors the precondition table: discovery
// services and OpenSecureChannel need no channel; CloseSecureChannel,
// CreateSession and everything after need one; Activate/CloseSession
// need an existing session; Read/Write/Browse/Call additionally need an
// activated session.
var defaultPreconditions = map[ServiceType]Precondition{
	ServiceFindServers:        {},
	ServiceGetEndpoints:       {},
	ServiceRegisterServer:     {},
	ServiceOpenSecureChannel:  {},
	ServiceCloseSecureChannel: {RequireChannel: true},
	ServiceCreateSession:      {RequireChannel: true},
	ServiceActivateSession:    {RequireChannel: true, RequireSession: true},
	ServiceCloseSession:       {RequireChannel: true, RequireSession: true},
	ServiceRead:               {RequireChannel: true, RequireSession: true, RequireSessionActive: true},
	ServiceWrite:              {RequireChannel: true, RequireSession: true, RequireSessionActive: true},
	ServiceBrowse:             {RequireChannel: true, RequireSession: true, RequireSessionActive: true},
	ServiceCall:               {RequireChannel: true, RequireSession: true, RequireSessionActive: true},
}

// Request is one dispatchable unit of work: an incoming service call on
// a particular channel, carrying an optional session auth token.
type Request struct {
	Service     ServiceType
	ChannelID   uint32
	AuthToken   ua.NodeID
	Handle      func(ctx context.Context) (interface{}, error)
}

// Handler invokes the registered business logic for a Request whose
// preconditions already passed.
type Handler func(ctx context.Context, req Request) (interface{}, error)

// Dispatcher checks preconditions and routes requests to Handler,
// either inline (cooperative mode) or via a bounded worker pool with
// per-channel FIFO ordering (parallel mode).
type Dispatcher struct {
	channels *channel.Manager
	sessions *session.Manager

	parallel bool
	pool     *workerpool.WorkerPool

	queuesMu sync.Mutex
	queues   map[uint32]*channelQueue
}

// channelQueue orders jobs submitted for one SecureChannel so that,
// even though different channels run concurrently on the pool, two
// requests on the same channel still complete in submission order.
type channelQueue struct {
	pending deque.Deque[func()]
	running bool
}

// NewDispatcher constructs a Dispatcher. poolSize <= 0 selects
// cooperative (inline, single-goroutine) mode; poolSize > 0 selects
// parallel mode backed by a worker pool of that size.
func NewDispatcher(channels *channel.Manager, sessions *session.Manager, poolSize int) *Dispatcher {
	d := &Dispatcher{
		channels: channels,
		sessions: sessions,
		queues:   make(map[uint32]*channelQueue),
	}
	if poolSize > 0 {
		d.parallel = true
		d.pool = workerpool.New(poolSize)
	}
	return d
}

// Stop releases the worker pool, if any. No-op in cooperative mode.
func (d *Dispatcher) Stop() {
	if d.pool != nil {
		d.pool.StopWait()
	}
}

// checkPreconditions validates req against the precondition table,
// returning the Bad* error to report back to the caller if any
// precondition fails, or nil if req may proceed.
func (d *Dispatcher) checkPreconditions(req Request) error {
	pre, ok := defaultPreconditions[req.Service]
	if !ok {
		pre = Precondition{RequireChannel: true, RequireSession: true, RequireSessionActive: true}
	}

	if pre.RequireChannel {
		if _, ok := d.channels.Get(req.ChannelID); !ok {
			return errors.Wrap(ua.NewStatusError(ua.BadSecureChannelIdInvalid), "unknown secure channel")
		}
	}
	if pre.RequireSession {
		s, ok := d.sessions.Lookup(req.AuthToken)
		if !ok {
			return errors.Wrap(ua.NewStatusError(ua.BadSessionIdInvalid), "unknown session")
		}
		if pre.RequireSessionActive && s.State() != session.StateActive {
			return errors.Wrap(ua.NewStatusError(ua.BadSessionNotActivated), "session not activated")
		}
	}
	return nil
}

// Dispatch validates preconditions and, if they pass, runs req.Handle:
// inline in cooperative mode, or queued onto this channel's ordered
// work queue in parallel mode.
func (d *Dispatcher) Dispatch(ctx context.Context, req Request) (interface{}, error) {
	if err := d.checkPreconditions(req); err != nil {
		return nil, err
	}

	if !d.parallel {
		return req.Handle(ctx)
	}
	return d.dispatchParallel(ctx, req)
}

// dispatchParallel submits req.Handle to the worker pool while
// preserving FIFO order among requests sharing the same ChannelID: a
// channel's queue only advances to its next pending job once the
// current one completes.
func (d *Dispatcher) dispatchParallel(ctx context.Context, req Request) (interface{}, error) {
	type result struct {
		val interface{}
		err error
	}
	done := make(chan result, 1)

	job := func() {
		v, err := req.Handle(ctx)
		done <- result{v, err}
	}

	d.queuesMu.Lock()
	q, ok := d.queues[req.ChannelID]
	if !ok {
		q = &channelQueue{}
		d.queues[req.ChannelID] = q
	}
	q.pending.PushBack(job)
	d.queuesMu.Unlock()

	d.drainQueue(req.ChannelID, q)

	r := <-done
	return r.val, r.err
}

// drainQueue submits the next pending job for a channel queue to the
// worker pool if nothing from that channel is currently running.
func (d *Dispatcher) drainQueue(channelID uint32, q *channelQueue) {
	d.queuesMu.Lock()
	if q.running || q.pending.Len() == 0 {
		d.queuesMu.Unlock()
		return
	}
	q.running = true
	job := q.pending.PopFront()
	d.queuesMu.Unlock()

	d.pool.Submit(func() {
		job()
		d.queuesMu.Lock()
		q.running = false
		d.queuesMu.Unlock()
		d.drainQueue(channelID, q)
	})
}
