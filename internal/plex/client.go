// Presenced - Plex Presence Bridge for Discord
// Copyright 2026 Presenced contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/presenceforplex/presenced

package plex

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/presenceforplex/presenced/internal/metrics"
)

const (
	plexTVBaseURL = "https://plex.tv/api/v2"
	authAppURL    = "https://app.plex.tv/auth#"

	productName    = "Presenced"
	productVersion = "1.0"

	requestTimeout = 15 * time.Second
	maxRetries     = 3
)

// ErrBadToken indicates the Plex token was rejected. The tracker surfaces
// this so the presence can be cleared instead of going stale.
var ErrBadToken = errors.New("plex: authentication token rejected")

// Client issues authenticated requests against a Plex Media Server or the
// plex.tv API. Requests pass through a politeness limiter and retry on
// rate limiting.
type Client struct {
	httpClient *http.Client
	limiter    *rate.Limiter
	logger     zerolog.Logger

	token    string
	clientID string
}

// NewClient creates a Plex API client. clientID is the persistent
// X-Plex-Client-Identifier; token may be empty before sign in.
func NewClient(clientID, token string, logger zerolog.Logger) *Client {
	return &Client{
		httpClient: &http.Client{Timeout: requestTimeout},
		limiter:    rate.NewLimiter(rate.Limit(5), 10),
		logger:     logger.With().Str("component", "plex_client").Logger(),
		token:      token,
		clientID:   clientID,
	}
}

// SetToken updates the auth token after sign in.
func (c *Client) SetToken(token string) {
	c.token = token
}

// Token returns the current auth token.
func (c *Client) Token() string {
	return c.token
}

// ClientID returns the persistent client identifier.
func (c *Client) ClientID() string {
	return c.clientID
}

// requestConfig describes a single API request.
type requestConfig struct {
	method string
	url    string
	body   io.Reader
	// skipToken omits X-Plex-Token, for the pre-auth PIN endpoints.
	skipToken bool
}

// setStandardHeaders applies the X-Plex identification headers every
// endpoint expects.
func (c *Client) setStandardHeaders(req *http.Request, skipToken bool) {
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Plex-Client-Identifier", c.clientID)
	req.Header.Set("X-Plex-Product", productName)
	req.Header.Set("X-Plex-Version", productVersion)
	req.Header.Set("X-Plex-Device", "PC")
	req.Header.Set("X-Plex-Platform", runtime.GOOS)
	if !skipToken && c.token != "" {
		req.Header.Set("X-Plex-Token", c.token)
	}
}

// doRequest executes a request with rate limiting and 429 retry. The
// caller owns the response body.
func (c *Client) doRequest(ctx context.Context, cfg requestConfig) (*http.Response, error) {
	for attempt := 0; attempt <= maxRetries; attempt++ {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, err
		}

		req, err := http.NewRequestWithContext(ctx, cfg.method, cfg.url, cfg.body)
		if err != nil {
			return nil, fmt.Errorf("create request: %w", err)
		}
		c.setStandardHeaders(req, cfg.skipToken)
		if cfg.body != nil {
			req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			metrics.RecordAPIError(endpointLabel(cfg.url))
			return nil, fmt.Errorf("execute request: %w", err)
		}

		switch {
		case resp.StatusCode == http.StatusUnauthorized:
			resp.Body.Close()
			metrics.RecordAPIError(endpointLabel(cfg.url))
			return nil, ErrBadToken
		case resp.StatusCode == http.StatusTooManyRequests:
			retryAfter := parseRetryAfter(resp.Header.Get("Retry-After"))
			resp.Body.Close()
			c.logger.Warn().
				Dur("retry_after", retryAfter).
				Int("attempt", attempt+1).
				Msg("Rate limited by Plex API")
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(retryAfter):
			}
			continue
		case resp.StatusCode >= 400:
			body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
			resp.Body.Close()
			metrics.RecordAPIError(endpointLabel(cfg.url))
			return nil, fmt.Errorf("plex API returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
		}
		return resp, nil
	}
	return nil, fmt.Errorf("plex API rate limit persisted after %d retries", maxRetries)
}

// doJSONRequest executes a request and decodes the JSON response into out.
func (c *Client) doJSONRequest(ctx context.Context, cfg requestConfig, out any) error {
	resp, err := c.doRequest(ctx, cfg)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// endpointLabel reduces a request URL to its path so the error metric
// stays low-cardinality across servers and item keys.
func endpointLabel(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "invalid"
	}
	path := u.Path
	if strings.HasPrefix(path, "/library/metadata/") {
		return "/library/metadata"
	}
	return path
}

func parseRetryAfter(header string) time.Duration {
	if header == "" {
		return 2 * time.Second
	}
	if secs, err := strconv.Atoi(header); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	return 2 * time.Second
}

// Sessions fetches /status/sessions from a server and returns the entries
// keyed by session key.
func (c *Client) Sessions(ctx context.Context, serverURI string) (map[string]sessionMetadata, error) {
	var resp sessionsResponse
	err := c.doJSONRequest(ctx, requestConfig{
		method: http.MethodGet,
		url:    serverURI + "/status/sessions",
	}, &resp)
	if err != nil {
		return nil, err
	}

	sessions := make(map[string]sessionMetadata, len(resp.MediaContainer.Metadata))
	for _, meta := range resp.MediaContainer.Metadata {
		sessions[meta.SessionKey] = meta
	}
	return sessions, nil
}

// Metadata fetches a library item by key. key is the full metadata path,
// e.g. /library/metadata/1234.
func (c *Client) Metadata(ctx context.Context, serverURI, key string) (*itemMetadata, error) {
	var resp metadataResponse
	err := c.doJSONRequest(ctx, requestConfig{
		method: http.MethodGet,
		url:    serverURI + key,
	}, &resp)
	if err != nil {
		return nil, err
	}
	if len(resp.MediaContainer.Metadata) == 0 {
		return nil, fmt.Errorf("no metadata for %s", key)
	}
	return &resp.MediaContainer.Metadata[0], nil
}
