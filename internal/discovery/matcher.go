package discovery

import (
	"github.com/sebastiankruger/opcua-core/internal/apptable"
	"github.com/sebastiankruger/opcua-core/internal/ua"
)

// AuthorityOf keeps the characters of a URL up to and including its
// third "/", i.e. the scheme+authority prefix used for endpoint
// matching. "opc.tcp://host:4840/app0" -> "opc.tcp://host:4840/".
func AuthorityOf(url string) string {
	count := 0
	for i, c := range url {
		if c == '/' {
			count++
			if count == 3 {
				return url[:i+1]
			}
		}
	}
	return url
}

// FindServersRequest carries the FindServers service parameters.
type FindServersRequest struct {
	ServerUris []string
	LocaleIds  []string
}

// FindServers answers the FindServers service: with no requested URIs,
// every hosted application plus every registered remote server; with
// URIs, only the exact matches from either set.
func (r *Registry) FindServers(req FindServersRequest, self apptable.ApplicationDescription, others []apptable.ApplicationDescription) []apptable.ApplicationDescription {
	r.mu.Lock()
	entries := make([]RegisteredServer, 0, len(r.entries))
	for _, e := range r.entries {
		entries = append(entries, *e)
	}
	r.mu.Unlock()

	includeSelf := len(req.ServerUris) == 0
	var includeSelfApps []apptable.ApplicationDescription
	if includeSelf {
		includeSelfApps = append(includeSelfApps, self)
		includeSelfApps = append(includeSelfApps, others...)
	} else {
		for _, uri := range req.ServerUris {
			if self.ApplicationURI == uri {
				includeSelfApps = append(includeSelfApps, self)
			}
			for _, o := range others {
				if o.ApplicationURI == uri {
					includeSelfApps = append(includeSelfApps, o)
				}
			}
		}
	}

	var result []apptable.ApplicationDescription
	result = append(result, includeSelfApps...)

	for _, e := range entries {
		if len(req.ServerUris) > 0 {
			matched := false
			for _, uri := range req.ServerUris {
				if e.ServerURI == uri {
					matched = true
					break
				}
			}
			if !matched {
				continue
			}
		}
		result = append(result, projectApplicationDescription(e, req.LocaleIds))
	}
	return result
}

// projectApplicationDescription flattens a registry entry into an
// ApplicationDescription: pick the first serverName whose locale matches
// a requested localeId, falling back to the first available name.
func projectApplicationDescription(e RegisteredServer, localeIds []string) apptable.ApplicationDescription {
	name := ua.LocalizedText{}
	if len(e.ServerNames) > 0 {
		name = e.ServerNames[0]
		for _, loc := range localeIds {
			for _, sn := range e.ServerNames {
				if sn.Locale == loc {
					name = sn
					goto found
				}
			}
		}
	}
found:
	return apptable.ApplicationDescription{
		ApplicationURI:  e.ServerURI,
		ProductURI:      e.ProductURI,
		ApplicationName: name,
		ApplicationType: e.ServerType,
		DiscoveryUrls:   e.DiscoveryUrls,
	}
}

// GetEndpointsRequest carries the GetEndpoints service parameters.
type GetEndpointsRequest struct {
	EndpointURL string
	ProfileUris []string
}

// GetEndpoints answers the GetEndpoints service against the server's
// own Application Table (not the discovery registry): match by
// authority (AuthorityOf), fall back to applications[0], filter by
// transportProfileUri. An empty profileUris list passes everything.
func GetEndpoints(req GetEndpointsRequest, apps []*apptable.Application) []apptable.Endpoint {
	var app *apptable.Application
	authority := AuthorityOf(req.EndpointURL)
	for _, a := range apps {
		for _, url := range a.Description.DiscoveryUrls {
			if AuthorityOf(url) == authority {
				app = a
				break
			}
		}
		if app != nil {
			break
		}
	}
	if app == nil && len(apps) > 0 {
		app = apps[0]
	}
	if app == nil {
		return nil
	}

	var out []apptable.Endpoint
	for _, ep := range app.Endpoints {
		if len(req.ProfileUris) == 0 {
			out = append(out, ep)
			continue
		}
		for _, p := range req.ProfileUris {
			if p == ep.TransportProfileURI {
				out = append(out, ep)
				break
			}
		}
	}
	return out
}
