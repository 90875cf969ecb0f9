package server

import (
	"context"
	"testing"
	"time"

	"github.com/sebastiankruger/opcua-core/internal/addrspace"
	"github.com/sebastiankruger/opcua-core/internal/apptable"
	"github.com/sebastiankruger/opcua-core/internal/discovery"
	"github.com/sebastiankruger/opcua-core/internal/dispatch"
	"github.com/sebastiankruger/opcua-core/internal/session"
	"github.com/sebastiankruger/opcua-core/internal/ua"
)

type fakeConn struct{ closed bool }

func (c *fakeConn) Close() error       { c.closed = true; return nil }
func (c *fakeConn) RemoteAddr() string { return "test-conn" }

func newTestServer(t *testing.T) (*Server, *time.Time) {
	t.Helper()
	s, err := New(testConfig(), addrspace.BuildInfo{ProductName: "test"})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	now := time.Unix(10000, 0)
	s.SetClock(func() time.Time { return now })
	return s, &now
}

func openChannel(t *testing.T, s *Server) uint32 {
	t.Helper()
	v, err := s.Serve(context.Background(), dispatch.ServiceOpenSecureChannel, 0, ua.NULL, OpenSecureChannelRequest{
		RequestedLifetime: time.Minute,
		Connection:        &fakeConn{},
	})
	if err != nil {
		t.Fatalf("OpenSecureChannel: %v", err)
	}
	return v.(OpenSecureChannelResponse).ChannelID
}

func createActivatedSession(t *testing.T, s *Server, chID uint32) ua.NodeID {
	t.Helper()
	v, err := s.Serve(context.Background(), dispatch.ServiceCreateSession, chID, ua.NULL, CreateSessionServiceRequest{
		EndpointURL: "opc.tcp://localhost:4840/whatever",
		Session:     session.CreateSessionRequest{SessionName: "test", RequestedSessionTimeout: time.Minute},
	})
	if err != nil {
		t.Fatalf("CreateSession: %v", err)
	}
	resp := v.(CreateSessionServiceResponse)
	_, err = s.Serve(context.Background(), dispatch.ServiceActivateSession, chID, resp.AuthToken, ActivateSessionServiceRequest{
		Token: session.IdentityToken{Type: session.IdentityAnonymous},
	})
	if err != nil {
		t.Fatalf("ActivateSession: %v", err)
	}
	return resp.AuthToken
}

func TestServeReadWriteRoundTrip(t *testing.T) {
	s, _ := newTestServer(t)
	chID := openChannel(t, s)
	tok := createActivatedSession(t, s, chID)

	id := ua.NewString(1, "the.answer")
	_, err := s.AddressSpace.AddVariableNode(addrspace.AddNodeRequest{
		RequestedNodeID: id,
		ParentNodeID:    ua.ObjectsFolder,
		ReferenceTypeID: ua.Organizes,
		BrowseName:      ua.QualifiedName{NamespaceIndex: 1, Name: "the.answer"},
		DisplayName:     ua.LocalizedText{Text: "the answer"},
	}, ua.Int32Type, ua.ValueRankScalar, nil, ua.AccessLevelCurrentRead|ua.AccessLevelCurrentWrite, 0, false, int32(42))
	if err != nil {
		t.Fatalf("AddVariableNode: %v", err)
	}

	v, err := s.Serve(context.Background(), dispatch.ServiceRead, chID, tok, ReadServiceRequest{NodeID: id})
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	res := v.(ReadServiceResult)
	if res.Status != ua.StatusOK {
		t.Fatalf("read status %v", res.Status)
	}
	if got, ok := res.Value.Value.Value.(int32); !ok || got != 42 {
		t.Fatalf("read value %#v", res.Value.Value.Value)
	}

	v, err = s.Serve(context.Background(), dispatch.ServiceWrite, chID, tok, WriteServiceRequest{
		NodeID: id,
		Value:  ua.NewDataValue(int32(43), ua.StatusOK, time.Unix(10001, 0), time.Unix(10001, 0)),
	})
	if err != nil {
		t.Fatalf("Write: %v", err)
	}
	if st := v.(WriteServiceResult).Status; st != ua.StatusOK {
		t.Fatalf("write status %v", st)
	}
	v, _ = s.Serve(context.Background(), dispatch.ServiceRead, chID, tok, ReadServiceRequest{NodeID: id})
	if got := v.(ReadServiceResult).Value.Value.Value.(int32); got != 43 {
		t.Fatalf("value after write %d", got)
	}
}

func TestServeReadRejectsUnactivatedSession(t *testing.T) {
	s, _ := newTestServer(t)
	chID := openChannel(t, s)
	v, err := s.Serve(context.Background(), dispatch.ServiceCreateSession, chID, ua.NULL, CreateSessionServiceRequest{
		EndpointURL: "opc.tcp://localhost:4840/",
		Session:     session.CreateSessionRequest{RequestedSessionTimeout: time.Minute},
	})
	if err != nil {
		t.Fatalf("CreateSession: %v", err)
	}
	tok := v.(CreateSessionServiceResponse).AuthToken
	_, err = s.Serve(context.Background(), dispatch.ServiceRead, chID, tok, ReadServiceRequest{NodeID: ua.ServerNamespaceArray})
	if ua.CodeOf(err) != ua.BadSessionNotActivated {
		t.Fatalf("expected BadSessionNotActivated, got %v", err)
	}
}

func TestServeActivateAfterTimeoutFails(t *testing.T) {
	s, now := newTestServer(t)
	chID := openChannel(t, s)
	v, err := s.Serve(context.Background(), dispatch.ServiceCreateSession, chID, ua.NULL, CreateSessionServiceRequest{
		EndpointURL: "opc.tcp://localhost:4840/",
		Session:     session.CreateSessionRequest{RequestedSessionTimeout: 10 * time.Second},
	})
	if err != nil {
		t.Fatalf("CreateSession: %v", err)
	}
	tok := v.(CreateSessionServiceResponse).AuthToken

	*now = now.Add(time.Hour)
	_, err = s.Serve(context.Background(), dispatch.ServiceActivateSession, chID, tok, ActivateSessionServiceRequest{
		Token: session.IdentityToken{Type: session.IdentityAnonymous},
	})
	if ua.CodeOf(err) != ua.BadSessionIdInvalid {
		t.Fatalf("expected BadSessionIdInvalid, got %v", err)
	}
}

func TestServeCreateSessionNoApplications(t *testing.T) {
	s, _ := newTestServer(t)
	s.AppTable.Applications = nil
	chID := openChannel(t, s)
	_, err := s.Serve(context.Background(), dispatch.ServiceCreateSession, chID, ua.NULL, CreateSessionServiceRequest{
		EndpointURL: "opc.tcp://localhost:4840/",
	})
	if ua.CodeOf(err) != ua.BadTcpEndpointUrlInvalid {
		t.Fatalf("expected BadTcpEndpointUrlInvalid, got %v", err)
	}
}

func TestServeBrowseObjectsFolder(t *testing.T) {
	s, _ := newTestServer(t)
	chID := openChannel(t, s)
	tok := createActivatedSession(t, s, chID)

	v, err := s.Serve(context.Background(), dispatch.ServiceBrowse, chID, tok, BrowseServiceRequest{NodeID: ua.ObjectsFolder})
	if err != nil {
		t.Fatalf("Browse: %v", err)
	}
	refs := v.(BrowseServiceResult).References
	foundServer := false
	for _, r := range refs {
		if r.TargetID == ua.ServerObject && !r.IsInverse && r.ReferenceTypeID == ua.Organizes {
			foundServer = true
		}
	}
	if !foundServer {
		t.Fatalf("expected Organizes reference to Server object, got %#v", refs)
	}
}

func TestServeCallInvokesMethod(t *testing.T) {
	s, _ := newTestServer(t)
	chID := openChannel(t, s)
	tok := createActivatedSession(t, s, chID)

	id, err := s.AddressSpace.AddMethodNode(addrspace.AddNodeRequest{
		ParentNodeID:    ua.ServerObject,
		ReferenceTypeID: ua.HasComponent,
		BrowseName:      ua.QualifiedName{NamespaceIndex: 1, Name: "Double"},
		DisplayName:     ua.LocalizedText{Text: "Double"},
	}, true, "double")
	if err != nil {
		t.Fatalf("AddMethodNode: %v", err)
	}
	if err := s.AddressSpace.RegisterMethod(id, func(args []ua.Variant) ([]ua.Variant, ua.StatusCode) {
		return []ua.Variant{{Value: args[0].Value.(int32) * 2}}, ua.StatusOK
	}); err != nil {
		t.Fatalf("RegisterMethod: %v", err)
	}

	v, err := s.Serve(context.Background(), dispatch.ServiceCall, chID, tok, CallServiceRequest{
		ObjectID: ua.ServerObject,
		MethodID: id,
		Args:     []ua.Variant{{Value: int32(21)}},
	})
	if err != nil {
		t.Fatalf("Call: %v", err)
	}
	res := v.(CallServiceResult)
	if res.Status != ua.StatusOK || len(res.Outputs) != 1 || res.Outputs[0].Value.(int32) != 42 {
		t.Fatalf("unexpected call result %#v", res)
	}
}

func TestServeFindServersReturnsSelf(t *testing.T) {
	s, _ := newTestServer(t)
	v, err := s.Serve(context.Background(), dispatch.ServiceFindServers, 0, ua.NULL, discovery.FindServersRequest{
		ServerUris: []string{"urn:test:opcua-core"},
	})
	if err != nil {
		t.Fatalf("FindServers: %v", err)
	}
	apps := v.([]apptable.ApplicationDescription)
	if len(apps) != 1 || apps[0].ApplicationURI != "urn:test:opcua-core" {
		t.Fatalf("expected exactly the self description, got %#v", apps)
	}
}

func TestServeGetEndpointsAuthorityMatch(t *testing.T) {
	s, _ := newTestServer(t)
	v, err := s.Serve(context.Background(), dispatch.ServiceGetEndpoints, 0, ua.NULL, discovery.GetEndpointsRequest{
		EndpointURL: "opc.tcp://localhost:4840/some/other/path",
	})
	if err != nil {
		t.Fatalf("GetEndpoints: %v", err)
	}
	eps := v.([]apptable.Endpoint)
	if len(eps) != 1 || eps[0].EndpointURL != "opc.tcp://localhost:4840/" {
		t.Fatalf("unexpected endpoints %#v", eps)
	}
}

func TestServeCloseSecureChannelRemovesIt(t *testing.T) {
	s, _ := newTestServer(t)
	chID := openChannel(t, s)
	if _, err := s.Serve(context.Background(), dispatch.ServiceCloseSecureChannel, chID, ua.NULL, nil); err != nil {
		t.Fatalf("CloseSecureChannel: %v", err)
	}
	if _, ok := s.Channels.Get(chID); ok {
		t.Fatal("expected channel released")
	}
}
