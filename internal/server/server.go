// Package server wires together the address space, channel/session
// managers, discovery registry, application table, dispatcher, and
// scheduler into one running OPC UA server core, and owns the PKI
// bootstrap for its self-signed application instance certificate.
package server

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"math/big"
	"net"
	"net/url"
	"os"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/sebastiankruger/opcua-core/internal/addrspace"
	"github.com/sebastiankruger/opcua-core/internal/apptable"
	"github.com/sebastiankruger/opcua-core/internal/channel"
	"github.com/sebastiankruger/opcua-core/internal/discovery"
	"github.com/sebastiankruger/opcua-core/internal/dispatch"
	"github.com/sebastiankruger/opcua-core/internal/scheduler"
	"github.com/sebastiankruger/opcua-core/internal/session"
	"github.com/sebastiankruger/opcua-core/internal/statusvars"
	"github.com/sebastiankruger/opcua-core/internal/store"
)

const (
	pkiDir   = "./pki"
	certFile = "./pki/server.crt"
	keyFile  = "./pki/server.key"
)

// Config carries the settings Server needs to bootstrap and run.
type Config struct {
	ApplicationURI string
	ProductURI     string
	ApplicationName string
	EndpointURL    string

	// CleanupInterval is the period of the combined sweep job; zero
	// selects the 10s default.
	CleanupInterval         time.Duration
	DiscoveryCleanupTimeout time.Duration

	Auth session.AuthConfig

	// DispatchPoolSize <= 0 selects cooperative dispatch; > 0 selects
	// the parallel worker-pool dispatcher.
	DispatchPoolSize int
}

// Server is the assembled OPC UA server core.
type Server struct {
	cfg Config

	Nodes       *store.NodeStore
	Namespaces  *store.NamespaceTable
	AddressSpace *addrspace.AddressSpace
	Channels    *channel.Manager
	Sessions    *session.Manager
	Discovery   *discovery.Registry
	AppTable    *apptable.Table
	Dispatcher  *dispatch.Dispatcher
	Status      *statusvars.Vars

	scheduler *scheduler.Scheduler
	nowFn     func() time.Time
}

// SetClock overrides the server's time source, for deterministic tests.
func (s *Server) SetClock(nowFn func() time.Time) { s.nowFn = nowFn }

func (s *Server) now() time.Time {
	if s.nowFn != nil {
		return s.nowFn()
	}
	return time.Now()
}

// New constructs a Server and runs address-space bootstrap. It does not
// start listening or the scheduler; call Start for that.
func New(cfg Config, build addrspace.BuildInfo) (*Server, error) {
	nodes := store.NewNodeStore()
	namespaces := store.NewNamespaceTable(cfg.ApplicationURI)
	as := addrspace.New(nodes, namespaces)
	if err := as.Bootstrap(cfg.ApplicationURI, cfg.ProductURI, build); err != nil {
		return nil, errors.Wrap(err, "address space bootstrap")
	}

	status := statusvars.New(build, namespaces, time.Now())
	if err := statusvars.Install(nodes, status); err != nil {
		return nil, errors.Wrap(err, "wire status variables")
	}

	s := &Server{
		cfg:          cfg,
		Nodes:        nodes,
		Namespaces:   namespaces,
		AddressSpace: as,
		Channels:     channel.NewManager(),
		Sessions:     session.NewManager(cfg.Auth),
		Discovery:    discovery.NewRegistry(cfg.DiscoveryCleanupTimeout),
		AppTable:     apptable.NewTable(),
		Status:       status,
	}
	s.Dispatcher = dispatch.NewDispatcher(s.Channels, s.Sessions, cfg.DispatchPoolSize)
	s.registerSelfApplication()
	return s, nil
}

// registerSelfApplication adds this server's own Application entry so
// GetEndpoints has something to match against.
func (s *Server) registerSelfApplication() {
	app := &apptable.Application{
		Description: apptable.ApplicationDescription{
			ApplicationURI: s.cfg.ApplicationURI,
			ProductURI:     s.cfg.ProductURI,
			DiscoveryUrls:  []string{s.cfg.EndpointURL},
		},
		AllowedNS: map[uint16]struct{}{0: {}, 1: {}},
		Endpoints: []apptable.Endpoint{
			{
				EndpointURL:         s.cfg.EndpointURL,
				TransportProfileURI: "http://opcfoundation.org/UA-Profile/Transport/uatcp-uasc-uabinary",
				UserTokenPolicies:   s.userTokenPolicies(),
			},
		},
	}
	s.AppTable.Add(app)
}

func (s *Server) userTokenPolicies() []apptable.UserTokenPolicy {
	var policies []apptable.UserTokenPolicy
	if s.cfg.Auth.AllowAnonymous {
		policies = append(policies, apptable.UserTokenPolicy{PolicyID: "anonymous"})
	}
	if s.cfg.Auth.AllowUsernamePassword {
		policies = append(policies, apptable.UserTokenPolicy{PolicyID: "username_basic256", TokenType: 1})
	}
	return policies
}

// ensurePKI creates the PKI directory and a self-signed application
// instance certificate if none exists yet.
func ensurePKI(appURI, appName string) error {
	if _, err := os.Stat(certFile); err == nil {
		log.Info().Str("certFile", certFile).Msg("using existing PKI certificate")
		return nil
	}

	log.Info().Msg("generating self-signed application instance certificate")
	if err := os.MkdirAll(pkiDir, 0755); err != nil {
		return errors.Wrap(err, "create PKI directory")
	}
	return createSelfSignedCert(appURI, appName, certFile, keyFile)
}

func createSelfSignedCert(appURI, appName, certPath, keyPath string) error {
	privateKey, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		return errors.Wrap(err, "generate private key")
	}

	serialNumber, err := rand.Int(rand.Reader, new(big.Int).Lsh(big.NewInt(1), 128))
	if err != nil {
		return errors.Wrap(err, "generate serial number")
	}

	template := x509.Certificate{
		SerialNumber: serialNumber,
		Subject:      pkix.Name{CommonName: appName, Organization: []string{"opcua-core"}},
		NotBefore:    time.Now(),
		NotAfter:     time.Now().Add(365 * 24 * time.Hour),
		KeyUsage:     x509.KeyUsageDigitalSignature | x509.KeyUsageKeyEncipherment,
		ExtKeyUsage:  []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth, x509.ExtKeyUsageClientAuth},
		BasicConstraintsValid: true,
		DNSNames:              []string{"localhost", appName},
		IPAddresses:           []net.IP{net.ParseIP("127.0.0.1"), net.ParseIP("0.0.0.0")},
		URIs:                  []*url.URL{{Scheme: "urn", Opaque: appURI}},
	}

	certDER, err := x509.CreateCertificate(rand.Reader, &template, &template, &privateKey.PublicKey, privateKey)
	if err != nil {
		return errors.Wrap(err, "create certificate")
	}

	certFileHandle, err := os.Create(certPath)
	if err != nil {
		return errors.Wrap(err, "create cert file")
	}
	defer certFileHandle.Close()
	if err := pem.Encode(certFileHandle, &pem.Block{Type: "CERTIFICATE", Bytes: certDER}); err != nil {
		return errors.Wrap(err, "encode certificate")
	}

	keyFileHandle, err := os.Create(keyPath)
	if err != nil {
		return errors.Wrap(err, "create key file")
	}
	defer keyFileHandle.Close()
	keyDER := x509.MarshalPKCS1PrivateKey(privateKey)
	if err := pem.Encode(keyFileHandle, &pem.Block{Type: "RSA PRIVATE KEY", Bytes: keyDER}); err != nil {
		return errors.Wrap(err, "encode private key")
	}

	log.Info().Str("certPath", certPath).Str("keyPath", keyPath).Msg("application instance certificate generated")
	return nil
}

// Start bootstraps the PKI material (if missing) and launches the
// cleanup scheduler. It does not bind a network listener; that is the
// concern of a transport-layer caller, which hands accepted
// connections to Channels.Open.
func (s *Server) Start(ctx context.Context) error {
	if err := ensurePKI(s.cfg.ApplicationURI, s.cfg.ApplicationName); err != nil {
		return errors.Wrap(err, "PKI bootstrap")
	}

	// One repeated job drives all three sweeps, sessions first so a
	// session expiring in the same tick as its channel is gone before
	// the channel's connection closes.
	s.scheduler = scheduler.New(nil)
	s.scheduler.Add("cleanup", orDefault(s.cfg.CleanupInterval, 10*time.Second), func(now time.Time) {
		if n := s.Sessions.CleanupTimedOut(now); n > 0 {
			log.Debug().Int("removed", n).Msg("swept timed-out sessions")
		}
		if n := s.Channels.CleanupTimedOut(now); n > 0 {
			log.Debug().Int("removed", n).Msg("swept timed-out secure channels")
		}
		if n := s.Discovery.CleanupTimedOut(now); n > 0 {
			log.Debug().Int("removed", n).Msg("swept stale registered servers")
		}
	})
	s.scheduler.Start(ctx, time.Second)

	log.Info().Str("applicationUri", s.cfg.ApplicationURI).Msg("server core started")
	return nil
}

// NodeCount, NamespaceCount, ApplicationName, ApplicationURI,
// ServerState, ChannelSnapshot, SessionSnapshot, Applications, and
// RegisteredServers satisfy internal/admin.Server, the read-only
// introspection surface served alongside the health checks.

func (s *Server) NodeCount() int { return s.Nodes.Len() }

func (s *Server) NamespaceCount() int { return s.Namespaces.Size() }

func (s *Server) ApplicationName() string { return s.cfg.ApplicationName }

func (s *Server) ApplicationURI() string { return s.cfg.ApplicationURI }

func (s *Server) ServerState() statusvars.ServerState { return s.Status.State() }

func (s *Server) ChannelSnapshot() []channel.SecureChannel { return s.Channels.Snapshot() }

func (s *Server) SessionSnapshot() []session.Session { return s.Sessions.Snapshot() }

func (s *Server) Applications() []*apptable.Application { return s.AppTable.Applications }

func (s *Server) RegisteredServers() []discovery.RegisteredServer { return s.Discovery.Snapshot() }

func orDefault(d, def time.Duration) time.Duration {
	if d <= 0 {
		return def
	}
	return d
}

// Stop first flips status reporting to Shutdown and stops the scheduler
// and dispatcher, then tears down in dependency order: sessions before
// channels (a session holds no owning reference to its channel, but
// closing channels first would strand ActivateSession's rebind target),
// channels before the node store's external delegates.
func (s *Server) Stop(ctx context.Context) error {
	s.Status.SetState(statusvars.ServerStateShutdown)
	if s.scheduler != nil {
		s.scheduler.Stop()
	}
	s.Dispatcher.Stop()

	if n := s.Sessions.CloseAll(); n > 0 {
		log.Debug().Int("closed", n).Msg("closed sessions on shutdown")
	}
	if n := s.Channels.CloseAll(); n > 0 {
		log.Debug().Int("closed", n).Msg("closed secure channels on shutdown")
	}
	if err := s.Nodes.CloseExternals(); err != nil {
		log.Error().Err(err).Msg("closing external node stores")
	}

	log.Info().Msg("server core stopped")
	return nil
}
