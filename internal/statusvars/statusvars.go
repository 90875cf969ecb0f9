// Package statusvars wires the Server object's standard status
// variables (NamespaceArray, ServerStatus, ServiceLevel, Auditing,
// CurrentTime) to the address space as data-source-backed variables.
package statusvars

import (
	"time"

	"github.com/sebastiankruger/opcua-core/internal/addrspace"
	"github.com/sebastiankruger/opcua-core/internal/store"
	"github.com/sebastiankruger/opcua-core/internal/ua"
)

// Install wires this Vars's callbacks onto the placeholder variable
// nodes the server-object bootstrap already inserted (NamespaceArray,
// ServerStatus, CurrentTime, ServiceLevel, Auditing).
func Install(nodes *store.NodeStore, v *Vars) error {
	wire := func(id ua.NodeID, read ua.ReadDataSource, write ua.WriteDataSource) error {
		n, err := nodes.Get(id)
		if err != nil {
			return err
		}
		clone := *n
		clone.IsDataSource = true
		clone.ReadSource = read
		clone.WriteSource = write
		if write != nil {
			clone.AccessLevel |= ua.AccessLevelCurrentWrite
		}
		return nodes.Replace(&clone)
	}

	if err := wire(ua.ServerNamespaceArray, v.NamespaceArrayReadSource(), v.NamespaceArrayWriteSource()); err != nil {
		return err
	}
	if err := wire(ua.ServerServerStatus, v.ServerStatusReadSource(), nil); err != nil {
		return err
	}
	if err := wire(ua.ServerServerStatusCurrentTime, v.CurrentTimeReadSource(), nil); err != nil {
		return err
	}
	if err := wire(ua.ServerServiceLevel, v.ServiceLevelReadSource(), nil); err != nil {
		return err
	}
	if err := wire(ua.ServerAuditing, v.AuditingReadSource(), nil); err != nil {
		return err
	}
	return nil
}

// ServerState mirrors the standard ServerState enumeration values this
// core reports through ServerStatus.State.
type ServerState int32

const (
	ServerStateRunning ServerState = iota
	ServerStateFailed
	ServerStateNoConfiguration
	ServerStateSuspended
	ServerStateShutdown
	ServerStateTest
	ServerStateCommunicationFault
	ServerStateUnknown
)

func (s ServerState) String() string {
	switch s {
	case ServerStateRunning:
		return "Running"
	case ServerStateFailed:
		return "Failed"
	case ServerStateNoConfiguration:
		return "NoConfiguration"
	case ServerStateSuspended:
		return "Suspended"
	case ServerStateShutdown:
		return "Shutdown"
	case ServerStateTest:
		return "Test"
	case ServerStateCommunicationFault:
		return "CommunicationFault"
	default:
		return "Unknown"
	}
}

// ServerStatusValue is the composite value read back for the
// ServerStatus variable.
type ServerStatusValue struct {
	StartTime   time.Time
	CurrentTime time.Time
	State       ServerState
	BuildInfo   addrspace.BuildInfo
}

// rangeRejectingSource wraps a value-producing function as a
// ReadDataSource that rejects any non-empty NumericRange with
// BadIndexRangeInvalid, since none of these sources support sub-range
// selection (NamespaceArray included, though it is an array).
func rangeRejectingSource(produce func() interface{}) ua.ReadDataSource {
	return func(numericRange string) (ua.DataValue, ua.StatusCode) {
		if numericRange != "" {
			return ua.DataValue{}, ua.BadIndexRangeInvalid
		}
		now := time.Now()
		return ua.NewDataValue(produce(), ua.StatusOK, now, now), ua.StatusOK
	}
}

// Vars bundles the callbacks registered against the address space so
// callers can still reach the live state for introspection (e.g. the
// admin HTTP surface).
type Vars struct {
	startTime  time.Time
	state      ServerState
	build      addrspace.BuildInfo
	namespaces *store.NamespaceTable
	nowFn      func() time.Time
}

// New constructs Vars, starting the server in the Running state.
func New(build addrspace.BuildInfo, namespaces *store.NamespaceTable, startTime time.Time) *Vars {
	return &Vars{
		startTime:  startTime,
		state:      ServerStateRunning,
		build:      build,
		namespaces: namespaces,
		nowFn:      time.Now,
	}
}

// SetClock overrides the time source used for CurrentTime/ServerStatus,
// for deterministic tests.
func (v *Vars) SetClock(nowFn func() time.Time) { v.nowFn = nowFn }

// SetState transitions the reported ServerState, e.g. to
// ServerStateShutdown during teardown.
func (v *Vars) SetState(s ServerState) { v.state = s }

// State reports the currently advertised ServerState.
func (v *Vars) State() ServerState { return v.state }

func (v *Vars) now() time.Time {
	if v.nowFn != nil {
		return v.nowFn()
	}
	return time.Now()
}

// NamespaceArrayReadSource returns the namespace table projected as a
// string array.
func (v *Vars) NamespaceArrayReadSource() ua.ReadDataSource {
	return rangeRejectingSource(func() interface{} {
		return v.namespaces.All()
	})
}

// NamespaceArrayWriteSource implements the client-extends-the-table
// behavior: a client may only append new URIs onto the existing,
// unmodified prefix.
func (v *Vars) NamespaceArrayWriteSource() ua.WriteDataSource {
	return func(value ua.DataValue, numericRange string) ua.StatusCode {
		if numericRange != "" {
			return ua.BadIndexRangeInvalid
		}
		uris, ok := value.Value.Value.([]string)
		if !ok {
			return ua.BadTypeMismatch
		}
		if !v.namespaces.AppendIfPrefix(uris) {
			return ua.BadInvalidArgument
		}
		return ua.StatusOK
	}
}

// CurrentTimeReadSource backs the CurrentTime variable.
func (v *Vars) CurrentTimeReadSource() ua.ReadDataSource {
	return rangeRejectingSource(func() interface{} { return v.now() })
}

// ServiceLevelReadSource reports the fixed maximum service level; this
// core does not degrade it under load.
func (v *Vars) ServiceLevelReadSource() ua.ReadDataSource {
	return rangeRejectingSource(func() interface{} { return uint8(255) })
}

// AuditingReadSource reports that security auditing is not implemented.
func (v *Vars) AuditingReadSource() ua.ReadDataSource {
	return rangeRejectingSource(func() interface{} { return false })
}

// ServerStatusReadSource backs the composite ServerStatus variable.
func (v *Vars) ServerStatusReadSource() ua.ReadDataSource {
	return rangeRejectingSource(func() interface{} {
		return ServerStatusValue{
			StartTime:   v.startTime,
			CurrentTime: v.now(),
			State:       v.state,
			BuildInfo:   v.build,
		}
	})
}
