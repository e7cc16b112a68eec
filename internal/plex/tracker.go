// Presenced - Plex Presence Bridge for Discord
// Copyright 2026 Presenced contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/presenceforplex/presenced

package plex

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/presenceforplex/presenced/internal/cache"
	"github.com/presenceforplex/presenced/internal/metrics"
)

const sessionUserCacheTTL = 5 * time.Minute

// Tracker maintains the table of active playback sessions across all
// servers and answers the single question the presence layer asks: what
// is the account playing right now?
type Tracker struct {
	client   *Client
	resolver *Resolver
	artwork  *ArtworkResolver
	logger   zerolog.Logger

	// username filters sessions to the signed-in account; shared-server
	// sessions from other users never reach the presence.
	username string

	mu          sync.Mutex
	sessions    map[string]MediaInfo
	servers     map[string]Server
	initialized bool
	badToken    bool

	userCache *cache.TTL[sessionMetadata]

	now func() time.Time
}

// NewTracker creates a session tracker for the given account username.
func NewTracker(client *Client, resolver *Resolver, artwork *ArtworkResolver, username string, logger zerolog.Logger) *Tracker {
	return &Tracker{
		client:    client,
		resolver:  resolver,
		artwork:   artwork,
		logger:    logger.With().Str("component", "session_tracker").Logger(),
		username:  username,
		sessions:  make(map[string]MediaInfo),
		servers:   make(map[string]Server),
		userCache: cache.New[sessionMetadata](sessionUserCacheTTL),
		now:       time.Now,
	}
}

// RegisterServer records a server so events from its stream can be
// attributed and its artwork endpoints used.
func (t *Tracker) RegisterServer(serverURI string, srv Server) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.servers[serverURI] = srv
}

// SetInitialized marks the tracker ready. Before this, CurrentPlayback
// reports StateNotInitialized so the presence layer does not mistake
// startup for an idle account.
func (t *Tracker) SetInitialized() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.initialized = true
}

// OnEvent processes one playback notification from a server stream.
func (t *Tracker) OnEvent(serverURI string, n PlaySessionStateNotification) {
	state := parseState(n.State)
	key := serverURI + ":" + n.SessionKey

	if state == StateStopped {
		t.mu.Lock()
		delete(t.sessions, key)
		t.mu.Unlock()
		t.logger.Debug().Str("session", n.SessionKey).Msg("Session stopped")
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	user, ok := t.resolveSessionUser(ctx, serverURI, n.SessionKey)
	if !ok {
		return
	}
	if t.username != "" && user.User.Title != t.username {
		t.logger.Trace().
			Str("session", n.SessionKey).
			Str("user", user.User.Title).
			Msg("Ignoring session from another user")
		return
	}

	info, err := t.resolver.Resolve(ctx, serverURI, n.Key)
	if err != nil {
		t.noteError(err)
		t.logger.Warn().Err(err).Str("key", n.Key).Msg("Media resolution failed")
		return
	}
	t.noteSuccess()

	info.State = state
	info.SessionKey = n.SessionKey
	info.Username = user.User.Title
	info.Player = user.Player.Product
	info.Progress = n.ViewOffset / 1000
	info.StartTime = t.now().Unix() - info.Progress

	t.mu.Lock()
	srv, haveServer := t.servers[serverURI]
	t.mu.Unlock()
	if haveServer {
		info.ArtworkURL = t.artwork.Resolve(ctx, srv, serverURI, info)
	}

	t.mu.Lock()
	t.sessions[key] = info
	t.mu.Unlock()

	t.logger.Info().
		Str("session", n.SessionKey).
		Str("state", state.String()).
		Str("title", info.Title).
		Msg("Session updated")
}

// resolveSessionUser attributes a session key to a user and player via the
// sessions endpoint, with a short cache to keep event bursts from hammering
// the server.
func (t *Tracker) resolveSessionUser(ctx context.Context, serverURI, sessionKey string) (sessionMetadata, bool) {
	cacheKey := serverURI + ":" + sessionKey
	if user, ok := t.userCache.Get(cacheKey); ok {
		metrics.CacheHits.WithLabelValues("session_user").Inc()
		return user, true
	}
	metrics.CacheMisses.WithLabelValues("session_user").Inc()

	sessions, err := t.client.Sessions(ctx, serverURI)
	if err != nil {
		t.noteError(err)
		t.logger.Warn().Err(err).Msg("Sessions fetch failed")
		return sessionMetadata{}, false
	}
	t.noteSuccess()

	for key, meta := range sessions {
		t.userCache.Set(serverURI+":"+key, meta)
	}

	user, ok := sessions[sessionKey]
	return user, ok
}

// CurrentPlayback returns the session the presence should show. With
// multiple active sessions the most recently started one wins.
func (t *Tracker) CurrentPlayback() MediaInfo {
	t.mu.Lock()
	defer t.mu.Unlock()

	if !t.initialized {
		return MediaInfo{State: StateNotInitialized}
	}
	if t.badToken {
		return MediaInfo{State: StateBadToken}
	}

	var best MediaInfo
	best.State = StateStopped
	found := false
	for _, info := range t.sessions {
		switch info.State {
		case StatePlaying, StatePaused, StateBuffering:
			if !found || info.StartTime > best.StartTime {
				best = info
				found = true
			}
		}
	}
	return best
}

// CacheStats reports the per-cache counters the status server surfaces.
func (t *Tracker) CacheStats() map[string]cache.Stats {
	return map[string]cache.Stats{
		"media":        t.resolver.CacheStats(),
		"artwork":      t.artwork.CacheStats(),
		"session_user": t.userCache.GetStats(),
	}
}

// ActiveSessions returns the number of tracked sessions.
func (t *Tracker) ActiveSessions() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.sessions)
}

// noteError flips the bad-token flag on authentication failures so the
// presence layer can clear a stale activity instead of showing it forever.
func (t *Tracker) noteError(err error) {
	if errors.Is(err, ErrBadToken) {
		t.mu.Lock()
		t.badToken = true
		t.mu.Unlock()
	}
}

func (t *Tracker) noteSuccess() {
	t.mu.Lock()
	t.badToken = false
	t.mu.Unlock()
}
