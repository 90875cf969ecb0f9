// Package apptable implements the Application Table: each Application
// carries an ApplicationDescription, a set of allowed namespace
// indices, and an endpoint list.
package apptable

import "github.com/sebastiankruger/opcua-core/internal/ua"

// ApplicationDescription is the advertised identity of one application
// hosted by this server.
type ApplicationDescription struct {
	ApplicationURI  string
	ProductURI      string
	ApplicationName ua.LocalizedText
	ApplicationType int32
	DiscoveryUrls   []string
}

// UserTokenPolicy is one accepted identity-token shape for an endpoint.
type UserTokenPolicy struct {
	PolicyID  string
	TokenType int32
}

// Endpoint is one advertised endpoint of an Application.
type Endpoint struct {
	EndpointURL          string
	SecurityMode         int32
	SecurityPolicyURI    string
	TransportProfileURI  string
	ServerCertificate    []byte
	UserTokenPolicies    []UserTokenPolicy
}

// Application is one application hosted by this server.
type Application struct {
	Description ApplicationDescription
	AllowedNS   map[uint16]struct{}
	Endpoints   []Endpoint
}

// Table holds every Application this server hosts; a server may
// multiplex more than one.
type Table struct {
	Applications []*Application
}

func NewTable() *Table {
	return &Table{}
}

// Add registers an application and returns its index.
func (t *Table) Add(app *Application) int {
	t.Applications = append(t.Applications, app)
	return len(t.Applications) - 1
}

// ByApplicationURI finds the application matching uri, if any.
func (t *Table) ByApplicationURI(uri string) (*Application, bool) {
	for _, a := range t.Applications {
		if a.Description.ApplicationURI == uri {
			return a, true
		}
	}
	return nil, false
}

// AllowsNamespace reports whether ns is in this application's allowed set.
func (a *Application) AllowsNamespace(ns uint16) bool {
	if a.AllowedNS == nil {
		return false
	}
	_, ok := a.AllowedNS[ns]
	return ok
}
