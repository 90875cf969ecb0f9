package server

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/sebastiankruger/opcua-core/internal/apptable"
	"github.com/sebastiankruger/opcua-core/internal/channel"
	"github.com/sebastiankruger/opcua-core/internal/discovery"
	"github.com/sebastiankruger/opcua-core/internal/dispatch"
	"github.com/sebastiankruger/opcua-core/internal/session"
	"github.com/sebastiankruger/opcua-core/internal/ua"
)

// Decoded request bodies, as the out-of-process codec would hand them
// up. Each service's handler below consumes exactly one of these.

// OpenSecureChannelRequest opens or renews a secure channel. Connection
// is the transport connection the request arrived on.
type OpenSecureChannelRequest struct {
	Renew             bool
	ChannelID         uint32
	RequestedLifetime time.Duration
	Connection        channel.Connection
}

// OpenSecureChannelResponse reports the issued channel and token ids.
type OpenSecureChannelResponse struct {
	ChannelID       uint32
	TokenID         uint32
	RevisedLifetime time.Duration
}

// CreateSessionServiceRequest carries the session parameters plus the
// endpoint URL the client says it connected to.
type CreateSessionServiceRequest struct {
	EndpointURL string
	Session     session.CreateSessionRequest
}

// CreateSessionServiceResponse hands back the session identifiers and
// the endpoints of the matched application, which the client needs to
// pick a user-token policy from.
type CreateSessionServiceResponse struct {
	SessionID       ua.NodeID
	AuthToken       ua.NodeID
	RevisedTimeout  time.Duration
	ServerEndpoints []apptable.Endpoint
}

// ActivateSessionServiceRequest carries the decoded identity token.
type ActivateSessionServiceRequest struct {
	Token session.IdentityToken
}

// ReadServiceRequest reads one Variable's Value attribute.
type ReadServiceRequest struct {
	NodeID       ua.NodeID
	NumericRange string
}

// ReadServiceResult carries the body-level status alongside the value;
// a Bad status here is a result, not a dispatch failure.
type ReadServiceResult struct {
	Value  ua.DataValue
	Status ua.StatusCode
}

// WriteServiceRequest writes one Variable's Value attribute.
type WriteServiceRequest struct {
	NodeID       ua.NodeID
	Value        ua.DataValue
	NumericRange string
}

// WriteServiceResult carries the per-node write status.
type WriteServiceResult struct {
	Status ua.StatusCode
}

// CallServiceRequest invokes one Method node.
type CallServiceRequest struct {
	ObjectID ua.NodeID
	MethodID ua.NodeID
	Args     []ua.Variant
}

// CallServiceResult carries the method outputs and body-level status.
type CallServiceResult struct {
	Outputs []ua.Variant
	Status  ua.StatusCode
}

// BrowseServiceRequest enumerates one node's references.
type BrowseServiceRequest struct {
	NodeID ua.NodeID
}

// BrowseReference is one reference in a browse result.
type BrowseReference struct {
	ReferenceTypeID ua.NodeID
	IsInverse       bool
	TargetID        ua.NodeID
}

// BrowseServiceResult lists the browsed node's references in insertion
// order, inverse references included, stale targets already filtered.
type BrowseServiceResult struct {
	References []BrowseReference
}

// Serve is the single entry point the transport loop calls with a
// decoded request: it routes through the Dispatcher (which enforces the
// per-service channel/session preconditions) into the matching handler
// below. The error return carries the header-level status code for
// precondition and handler failures; body-level statuses ride inside
// the typed results.
func (s *Server) Serve(ctx context.Context, svc dispatch.ServiceType, channelID uint32, authToken ua.NodeID, body interface{}) (interface{}, error) {
	return s.Dispatcher.Dispatch(ctx, dispatch.Request{
		Service:   svc,
		ChannelID: channelID,
		AuthToken: authToken,
		Handle: func(ctx context.Context) (interface{}, error) {
			return s.handle(svc, channelID, authToken, body)
		},
	})
}

func (s *Server) handle(svc dispatch.ServiceType, channelID uint32, authToken ua.NodeID, body interface{}) (interface{}, error) {
	switch svc {
	case dispatch.ServiceOpenSecureChannel:
		req, ok := body.(OpenSecureChannelRequest)
		if !ok {
			return nil, badBody()
		}
		return s.handleOpenSecureChannel(req)
	case dispatch.ServiceCloseSecureChannel:
		return nil, s.Channels.Close(channelID)
	case dispatch.ServiceCreateSession:
		req, ok := body.(CreateSessionServiceRequest)
		if !ok {
			return nil, badBody()
		}
		return s.handleCreateSession(req)
	case dispatch.ServiceActivateSession:
		req, ok := body.(ActivateSessionServiceRequest)
		if !ok {
			return nil, badBody()
		}
		return nil, s.handleActivateSession(channelID, authToken, req)
	case dispatch.ServiceCloseSession:
		return nil, s.Sessions.CloseSession(authToken)
	case dispatch.ServiceRead:
		req, ok := body.(ReadServiceRequest)
		if !ok {
			return nil, badBody()
		}
		dv, status := s.AddressSpace.Read(req.NodeID, req.NumericRange)
		return ReadServiceResult{Value: dv, Status: status}, nil
	case dispatch.ServiceWrite:
		req, ok := body.(WriteServiceRequest)
		if !ok {
			return nil, badBody()
		}
		return WriteServiceResult{Status: s.AddressSpace.Write(req.NodeID, req.Value, req.NumericRange)}, nil
	case dispatch.ServiceCall:
		req, ok := body.(CallServiceRequest)
		if !ok {
			return nil, badBody()
		}
		if !req.ObjectID.IsNull() && !s.Nodes.Has(req.ObjectID) {
			return CallServiceResult{Status: ua.BadNodeIdUnknown}, nil
		}
		outputs, status := s.AddressSpace.Call(req.MethodID, req.Args)
		return CallServiceResult{Outputs: outputs, Status: status}, nil
	case dispatch.ServiceBrowse:
		req, ok := body.(BrowseServiceRequest)
		if !ok {
			return nil, badBody()
		}
		return s.handleBrowse(req)
	case dispatch.ServiceFindServers:
		req, ok := body.(discovery.FindServersRequest)
		if !ok {
			return nil, badBody()
		}
		return s.handleFindServers(req), nil
	case dispatch.ServiceGetEndpoints:
		req, ok := body.(discovery.GetEndpointsRequest)
		if !ok {
			return nil, badBody()
		}
		return discovery.GetEndpoints(req, s.AppTable.Applications), nil
	case dispatch.ServiceRegisterServer:
		req, ok := body.(discovery.RegisterServerRequest)
		if !ok {
			return nil, badBody()
		}
		return nil, s.Discovery.RegisterServer(req, s.now())
	default:
		return nil, errors.Wrapf(ua.NewStatusError(ua.BadRequestTypeInvalid), "no handler for service %s", svc)
	}
}

func badBody() error {
	return errors.Wrap(ua.NewStatusError(ua.BadArgumentsMissing), "request body has wrong type for service")
}

func (s *Server) handleOpenSecureChannel(req OpenSecureChannelRequest) (OpenSecureChannelResponse, error) {
	ch, err := s.Channels.Open(channel.OpenRequest{
		RequestedLifetime: req.RequestedLifetime,
		Renew:             req.Renew,
		ChannelID:         req.ChannelID,
	}, req.Connection, s.now())
	if err != nil {
		return OpenSecureChannelResponse{}, errors.Wrap(ua.NewStatusError(ua.BadSecureChannelIdInvalid), err.Error())
	}
	log.Debug().Uint32("channelId", ch.ChannelID).Uint32("tokenId", ch.TokenID).Bool("renew", req.Renew).Msg("secure channel opened")
	return OpenSecureChannelResponse{
		ChannelID:       ch.ChannelID,
		TokenID:         ch.TokenID,
		RevisedLifetime: ch.RevisedLifetime,
	}, nil
}

// handleCreateSession matches the client's endpoint URL against the
// hosted applications by authority prefix, falling back to the first
// application. A server hosting no applications at all cannot issue a
// session and reports BadTcpEndpointUrlInvalid.
func (s *Server) handleCreateSession(req CreateSessionServiceRequest) (CreateSessionServiceResponse, error) {
	apps := s.AppTable.Applications
	if len(apps) == 0 {
		return CreateSessionServiceResponse{}, errors.Wrap(ua.NewStatusError(ua.BadTcpEndpointUrlInvalid), "no applications hosted")
	}

	appIdx := 0
	authority := discovery.AuthorityOf(req.EndpointURL)
match:
	for i, a := range apps {
		for _, ep := range a.Endpoints {
			if discovery.AuthorityOf(ep.EndpointURL) == authority {
				appIdx = i
				break match
			}
		}
	}

	sess := s.Sessions.CreateSession(req.Session, s.now())
	sess.EndpointIndex = appIdx
	log.Debug().Str("sessionId", sess.SessionID.String()).Str("sessionName", sess.SessionName).Msg("session created")
	return CreateSessionServiceResponse{
		SessionID:       sess.SessionID,
		AuthToken:       sess.AuthToken,
		RevisedTimeout:  sess.Timeout,
		ServerEndpoints: apps[appIdx].Endpoints,
	}, nil
}

func (s *Server) handleActivateSession(channelID uint32, authToken ua.NodeID, req ActivateSessionServiceRequest) error {
	sess, ok := s.Sessions.Lookup(authToken)
	if !ok {
		return errors.Wrap(ua.NewStatusError(ua.BadSessionIdInvalid), "unknown auth token")
	}
	return s.Sessions.ActivateSession(channelID, sess, req.Token, s.now())
}

func (s *Server) handleBrowse(req BrowseServiceRequest) (BrowseServiceResult, error) {
	var result BrowseServiceResult
	err := s.Nodes.ForEachChild(req.NodeID, func(child ua.NodeID, isInverse bool, refType ua.NodeID) {
		result.References = append(result.References, BrowseReference{
			ReferenceTypeID: refType,
			IsInverse:       isInverse,
			TargetID:        child,
		})
	})
	if err != nil {
		return BrowseServiceResult{}, errors.Wrap(ua.NewStatusError(ua.BadNodeIdUnknown), "browse source node not found")
	}
	return result, nil
}

// handleFindServers projects the hosted applications as self/others and
// merges in the matching registered remote servers.
func (s *Server) handleFindServers(req discovery.FindServersRequest) []apptable.ApplicationDescription {
	apps := s.AppTable.Applications
	if len(apps) == 0 {
		return s.Discovery.FindServers(req, apptable.ApplicationDescription{ApplicationURI: s.cfg.ApplicationURI}, nil)
	}
	self := apps[0].Description
	others := make([]apptable.ApplicationDescription, 0, len(apps)-1)
	for _, a := range apps[1:] {
		others = append(others, a.Description)
	}
	return s.Discovery.FindServers(req, self, others)
}
