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
	"time"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog"
	"github.com/sony/gobreaker/v2"

	"github.com/presenceforplex/presenced/internal/cache"
	"github.com/presenceforplex/presenced/internal/metrics"
)

const (
	jikanBaseURL  = "https://api.jikan.moe/v4"
	tmdbBaseURL   = "https://api.themoviedb.org/3"
	tmdbImageBase = "https://image.tmdb.org/t/p/w400"

	externalCacheTTL = 24 * time.Hour
)

// External resolves identifiers and artwork from third-party metadata
// services. Lookups are cached for a day and wrapped in circuit breakers
// so a flaky upstream cannot stall session resolution.
type External struct {
	httpClient *http.Client
	tmdbToken  string
	logger     zerolog.Logger

	jikanCB *gobreaker.CircuitBreaker[string]
	tmdbCB  *gobreaker.CircuitBreaker[string]

	malCache *cache.TTL[string]
	artCache *cache.TTL[string]
}

// NewExternal creates the external lookup service. tmdbToken may be empty,
// which disables TMDB artwork lookups.
func NewExternal(tmdbToken string, logger zerolog.Logger) *External {
	breakerSettings := func(name string) gobreaker.Settings {
		return gobreaker.Settings{
			Name:        name,
			MaxRequests: 1,
			Timeout:     2 * time.Minute,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= 3
			},
		}
	}
	return &External{
		httpClient: &http.Client{Timeout: 10 * time.Second},
		tmdbToken:  tmdbToken,
		logger:     logger.With().Str("component", "external_lookup").Logger(),
		jikanCB:    gobreaker.NewCircuitBreaker[string](breakerSettings("jikan")),
		tmdbCB:     gobreaker.NewCircuitBreaker[string](breakerSettings("tmdb")),
		malCache:   cache.New[string](externalCacheTTL),
		artCache:   cache.New[string](externalCacheTTL),
	}
}

type jikanResponse struct {
	Data []struct {
		MalID int64  `json:"mal_id"`
		Title string `json:"title"`
	} `json:"data"`
}

// LookupMAL searches MyAnimeList via Jikan for an anime title and returns
// its id. Negative results are cached too, as an empty string.
func (e *External) LookupMAL(ctx context.Context, title string, year int) string {
	key := fmt.Sprintf("%s_%d", title, year)
	if id, ok := e.malCache.Get(key); ok {
		metrics.CacheHits.WithLabelValues("mal").Inc()
		return id
	}
	metrics.CacheMisses.WithLabelValues("mal").Inc()

	id, err := e.jikanCB.Execute(func() (string, error) {
		query := url.Values{"q": {title}}
		var resp jikanResponse
		if err := e.getJSON(ctx, jikanBaseURL+"/anime?"+query.Encode(), "", &resp); err != nil {
			return "", err
		}
		if len(resp.Data) == 0 {
			return "", nil
		}
		return fmt.Sprintf("%d", resp.Data[0].MalID), nil
	})
	if err != nil {
		e.logger.Debug().Err(err).Str("title", title).Msg("MAL lookup failed")
		return ""
	}

	e.malCache.Set(key, id)
	return id
}

type tmdbImagesResponse struct {
	Posters []struct {
		FilePath string `json:"file_path"`
	} `json:"posters"`
	Backdrops []struct {
		FilePath string `json:"file_path"`
	} `json:"backdrops"`
}

// Artwork fetches a poster URL from TMDB for a movie or show id. Returns
// an empty string when no token is configured or nothing is found.
func (e *External) Artwork(ctx context.Context, mediaType MediaType, tmdbID string) string {
	if e.tmdbToken == "" || tmdbID == "" {
		return ""
	}

	kind := "movie"
	if mediaType == MediaEpisode {
		kind = "tv"
	}
	key := kind + ":" + tmdbID
	if art, ok := e.artCache.Get(key); ok {
		metrics.CacheHits.WithLabelValues("tmdb").Inc()
		return art
	}
	metrics.CacheMisses.WithLabelValues("tmdb").Inc()

	art, err := e.tmdbCB.Execute(func() (string, error) {
		var resp tmdbImagesResponse
		endpoint := fmt.Sprintf("%s/%s/%s/images", tmdbBaseURL, kind, tmdbID)
		if err := e.getJSON(ctx, endpoint, e.tmdbToken, &resp); err != nil {
			return "", err
		}
		if len(resp.Posters) > 0 {
			return tmdbImageBase + resp.Posters[0].FilePath, nil
		}
		if len(resp.Backdrops) > 0 {
			return tmdbImageBase + resp.Backdrops[0].FilePath, nil
		}
		return "", nil
	})
	if err != nil {
		e.logger.Debug().Err(err).Str("tmdb_id", tmdbID).Msg("TMDB lookup failed")
		return ""
	}

	e.artCache.Set(key, art)
	return art
}

func (e *External) getJSON(ctx context.Context, endpoint, bearer string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}

	resp, err := e.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("lookup returned %d", resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
