// Presenced - Plex Presence Bridge for Discord
// Copyright 2026 Presenced contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/presenceforplex/presenced

// Package api serves the local status endpoints: liveness, Prometheus
// metrics, and the current playback state for debugging. The listener
// binds to localhost only; nothing here is meant to leave the machine.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/goccy/go-json"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/presenceforplex/presenced/internal/cache"
	"github.com/presenceforplex/presenced/internal/plex"
)

// playbackSource answers the current playback state and cache health for
// the debug endpoints.
type playbackSource interface {
	CurrentPlayback() plex.MediaInfo
	CacheStats() map[string]cache.Stats
}

// discordStatus reports the Discord connection state.
type discordStatus interface {
	Connected() bool
}

// Server is the localhost status server. Implements suture.Service.
type Server struct {
	addr    string
	source  playbackSource
	discord discordStatus
	logger  zerolog.Logger
}

// NewServer creates a status server bound to addr.
func NewServer(addr string, source playbackSource, discord discordStatus, logger zerolog.Logger) *Server {
	return &Server{
		addr:    addr,
		source:  source,
		discord: discord,
		logger:  logger.With().Str("component", "status_server").Logger(),
	}
}

func (s *Server) String() string { return "status-server " + s.addr }

// Router builds the endpoint tree.
func (s *Server) Router() chi.Router {
	r := chi.NewRouter()
	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.Timeout(10 * time.Second))

	r.Get("/healthz", s.handleHealth)
	r.Get("/metrics", promhttp.Handler().ServeHTTP)
	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/playback", s.handlePlayback)
	})
	return r
}

// Serve runs the HTTP server until ctx is canceled.
func (s *Server) Serve(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info().Str("addr", s.addr).Msg("Status server listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
		return ctx.Err()
	case err := <-errCh:
		return err
	}
}

// cacheHealth is the per-cache view in the health response.
type cacheHealth struct {
	Hits       int64   `json:"hits"`
	Misses     int64   `json:"misses"`
	Keys       int64   `json:"keys"`
	HitRatePct float64 `json:"hit_rate_pct"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	caches := make(map[string]cacheHealth)
	for name, st := range s.source.CacheStats() {
		caches[name] = cacheHealth{
			Hits:       st.Hits,
			Misses:     st.Misses,
			Keys:       st.Keys,
			HitRatePct: st.HitRate(),
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":            "ok",
		"discord_connected": s.discord.Connected(),
		"caches":            caches,
	})
}

// playbackResponse is the debug view of the current playback.
type playbackResponse struct {
	State     string `json:"state"`
	Type      string `json:"type,omitempty"`
	Title     string `json:"title,omitempty"`
	ShowTitle string `json:"show_title,omitempty"`
	Artist    string `json:"artist,omitempty"`
	Year      int    `json:"year,omitempty"`
	Progress  int64  `json:"progress_seconds,omitempty"`
	Duration  int64  `json:"duration_seconds,omitempty"`
	Player    string `json:"player,omitempty"`
}

func (s *Server) handlePlayback(w http.ResponseWriter, r *http.Request) {
	playback := s.source.CurrentPlayback()
	resp := playbackResponse{
		State: playback.State.String(),
	}
	switch playback.State {
	case plex.StatePlaying, plex.StatePaused, plex.StateBuffering:
		resp.Type = playback.Type.String()
		resp.Title = playback.Title
		resp.ShowTitle = playback.ShowTitle
		resp.Artist = playback.Artist
		resp.Year = playback.Year
		resp.Progress = playback.Progress
		resp.Duration = playback.Duration
		resp.Player = playback.Player
	}
	writeJSON(w, http.StatusOK, resp)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
