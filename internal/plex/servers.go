// Presenced - Plex Presence Bridge for Discord
// Copyright 2026 Presenced contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/presenceforplex/presenced

package plex

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/presenceforplex/presenced/internal/cache"
	"github.com/presenceforplex/presenced/internal/metrics"
)

const (
	uriCacheTTL  = 5 * time.Minute
	probeTimeout = 3 * time.Second
)

// Server is one Plex Media Server owned by or shared with the account.
type Server struct {
	Name        string
	ClientID    string
	AccessToken string
	LocalURI    string
	PublicURI   string
}

type resourcesResponse []resource

type resource struct {
	Name             string       `json:"name"`
	Product          string       `json:"product"`
	Provides         string       `json:"provides"`
	ClientIdentifier string       `json:"clientIdentifier"`
	AccessToken      string       `json:"accessToken"`
	Owned            bool         `json:"owned"`
	Connections      []connection `json:"connections"`
}

type connection struct {
	Protocol string `json:"protocol"`
	URI      string `json:"uri"`
	Local    bool   `json:"local"`
	Relay    bool   `json:"relay"`
}

// FetchServers lists the account's media servers from plex.tv, split into
// local and public connection URIs. Relay connections are skipped; they
// are slow and throttled.
func (c *Client) FetchServers(ctx context.Context) ([]Server, error) {
	var resources resourcesResponse
	err := c.doJSONRequest(ctx, requestConfig{
		method: http.MethodGet,
		url:    plexTVBaseURL + "/resources?includeHttps=1",
	}, &resources)
	if err != nil {
		return nil, fmt.Errorf("fetch resources: %w", err)
	}

	var servers []Server
	for _, res := range resources {
		if res.Provides != "server" {
			continue
		}
		srv := Server{
			Name:        res.Name,
			ClientID:    res.ClientIdentifier,
			AccessToken: res.AccessToken,
		}
		for _, conn := range res.Connections {
			if conn.Relay || conn.Protocol != "https" {
				continue
			}
			if conn.Local {
				if srv.LocalURI == "" {
					srv.LocalURI = conn.URI
				}
			} else if srv.PublicURI == "" {
				srv.PublicURI = conn.URI
			}
		}
		if srv.LocalURI == "" && srv.PublicURI == "" {
			c.logger.Debug().Str("server", res.Name).Msg("Server has no usable connection")
			continue
		}
		servers = append(servers, srv)
	}
	c.logger.Info().Int("count", len(servers)).Msg("Discovered Plex servers")
	return servers, nil
}

// URIResolver picks the fastest reachable connection URI per server and
// caches the choice briefly, so session fetches do not probe on every
// event.
type URIResolver struct {
	client *Client
	cache  *cache.TTL[string]
	probe  *http.Client
}

// NewURIResolver creates a resolver backed by the given API client.
func NewURIResolver(client *Client) *URIResolver {
	return &URIResolver{
		client: client,
		cache:  cache.New[string](uriCacheTTL),
		probe:  &http.Client{Timeout: probeTimeout},
	}
}

// Resolve returns the preferred URI for a server: local if reachable, then
// public. An empty string means the server is unreachable right now.
func (r *URIResolver) Resolve(ctx context.Context, srv Server) string {
	if uri, ok := r.cache.Get(srv.ClientID); ok {
		metrics.CacheHits.WithLabelValues("server_uri").Inc()
		return uri
	}
	metrics.CacheMisses.WithLabelValues("server_uri").Inc()

	for _, uri := range []string{srv.LocalURI, srv.PublicURI} {
		if uri == "" {
			continue
		}
		if r.reachable(ctx, uri, srv.AccessToken) {
			r.cache.Set(srv.ClientID, uri)
			return uri
		}
	}
	return ""
}

func (r *URIResolver) reachable(ctx context.Context, uri, token string) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, uri+"/identity", nil)
	if err != nil {
		return false
	}
	if token != "" {
		req.Header.Set("X-Plex-Token", token)
	}
	resp, err := r.probe.Do(req)
	if err != nil {
		return false
	}
	resp.Body.Close()
	return resp.StatusCode < 400
}
