// Presenced - Plex Presence Bridge for Discord
// Copyright 2026 Presenced contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/presenceforplex/presenced

package plex

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/presenceforplex/presenced/internal/cache"
	"github.com/presenceforplex/presenced/internal/metrics"
)

const artworkCacheTTL = 24 * time.Hour

// ArtworkResolver builds a publicly reachable artwork URL for a media
// item. Discord fetches presence images itself, so the URL must work from
// outside the local network: the server's public transcoder is tried
// first, then TMDB, then the raw server transcode URL as a last resort.
type ArtworkResolver struct {
	external *External
	probe    *http.Client
	cache    *cache.TTL[string]
	logger   zerolog.Logger
}

// NewArtworkResolver creates an artwork resolver. external may be nil to
// disable the TMDB fallback.
func NewArtworkResolver(external *External, logger zerolog.Logger) *ArtworkResolver {
	return &ArtworkResolver{
		external: external,
		probe:    &http.Client{Timeout: 5 * time.Second},
		cache:    cache.New[string](artworkCacheTTL),
		logger:   logger.With().Str("component", "artwork_resolver").Logger(),
	}
}

// CacheStats reports the artwork cache counters.
func (r *ArtworkResolver) CacheStats() cache.Stats {
	return r.cache.GetStats()
}

// Resolve returns the best artwork URL for the item, or an empty string.
func (a *ArtworkResolver) Resolve(ctx context.Context, srv Server, serverURI string, info MediaInfo) string {
	thumb := pickThumb(info)
	if thumb == "" {
		return a.tmdbFallback(ctx, info)
	}

	cacheKey := srv.ClientID + thumb
	if art, ok := a.cache.Get(cacheKey); ok {
		metrics.CacheHits.WithLabelValues("artwork").Inc()
		return art
	}
	metrics.CacheMisses.WithLabelValues("artwork").Inc()

	if srv.PublicURI != "" {
		candidate := transcodeURL(forceHTTPS(srv.PublicURI), thumb, srv.AccessToken)
		if a.reachable(ctx, candidate) {
			a.cache.Set(cacheKey, candidate)
			return candidate
		}
	}

	if art := a.tmdbFallback(ctx, info); art != "" {
		a.cache.Set(cacheKey, art)
		return art
	}

	// Last resort: the active server URI. Only useful when it is itself
	// publicly reachable.
	candidate := transcodeURL(serverURI, thumb, srv.AccessToken)
	a.cache.Set(cacheKey, candidate)
	return candidate
}

func (a *ArtworkResolver) tmdbFallback(ctx context.Context, info MediaInfo) string {
	if a.external == nil {
		return ""
	}
	return a.external.Artwork(ctx, info.Type, info.TmdbID)
}

func (a *ArtworkResolver) reachable(ctx context.Context, rawURL string) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return false
	}
	resp, err := a.probe.Do(req)
	if err != nil {
		return false
	}
	resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}

// pickThumb chooses the most presentable thumbnail for the item kind:
// show poster for episodes, album cover for tracks.
func pickThumb(info MediaInfo) string {
	switch info.Type {
	case MediaEpisode:
		if info.GrandparentThumb != "" {
			return info.GrandparentThumb
		}
	case MediaTrack:
		if info.ParentThumb != "" {
			return info.ParentThumb
		}
	}
	return info.Thumb
}

// transcodeURL builds the Plex photo transcoder URL sized for a presence
// card. The cache-buster keeps Discord's image proxy from serving stale
// art after a poster change.
func transcodeURL(serverURI, thumb, token string) string {
	params := url.Values{}
	params.Set("width", "256")
	params.Set("height", "256")
	params.Set("minSize", "1")
	params.Set("upscale", "1")
	params.Set("format", "webp")
	params.Set("url", thumb)
	params.Set("X-Plex-Token", token)
	params.Set("cb", fmt.Sprintf("%d", time.Now().Unix()))
	return serverURI + "/photo/:/transcode?" + params.Encode()
}

func forceHTTPS(uri string) string {
	if strings.HasPrefix(uri, "http://") {
		return "https://" + strings.TrimPrefix(uri, "http://")
	}
	return uri
}
