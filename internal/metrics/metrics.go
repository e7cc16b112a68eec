// Presenced - Plex Presence Bridge for Discord
// Copyright 2026 Presenced contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/presenceforplex/presenced

// Package metrics instruments the bridge with Prometheus counters and
// gauges, exposed on the local status server:
// - Discord connection health and frame throughput
// - Rate limiter deferrals
// - Plex event stream reconnects
// - Session table size
// - Cache efficiency
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Discord Metrics
	DiscordConnected = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "discord_connected",
			Help: "Whether the Discord IPC connection is established (1) or not (0)",
		},
	)

	DiscordReconnects = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "discord_reconnects_total",
			Help: "Total number of Discord IPC reconnection attempts",
		},
	)

	PresenceFramesSent = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "presence_frames_sent_total",
			Help: "Total number of presence frames written to Discord",
		},
	)

	PresenceUpdatesCoalesced = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "presence_updates_coalesced_total",
			Help: "Total number of presence updates superseded before sending",
		},
	)

	PresenceUpdatesDeferred = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "presence_updates_deferred_total",
			Help: "Total number of sends held back by the rate limiter",
		},
	)

	// Plex Metrics
	PlexStreamReconnects = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "plex_stream_reconnects_total",
			Help: "Total number of Plex event stream reconnections",
		},
		[]string{"server"},
	)

	PlexAPIErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "plex_api_errors_total",
			Help: "Total number of failed Plex API requests",
		},
		[]string{"endpoint"},
	)

	ActiveSessions = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "plex_active_sessions",
			Help: "Current number of tracked playback sessions",
		},
	)

	// Cache Metrics
	CacheHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cache_hits_total",
			Help: "Total number of cache hits",
		},
		[]string{"cache"},
	)

	CacheMisses = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cache_misses_total",
			Help: "Total number of cache misses",
		},
		[]string{"cache"},
	)
)

// SetDiscordConnected records a connection state transition.
func SetDiscordConnected(connected bool) {
	if connected {
		DiscordConnected.Set(1)
		return
	}
	DiscordConnected.Set(0)
	DiscordReconnects.Inc()
}

// RecordPresenceFrame counts a delivered presence frame.
func RecordPresenceFrame() {
	PresenceFramesSent.Inc()
}

// RecordStreamReconnect counts a dropped and re-established event stream.
func RecordStreamReconnect(server string) {
	PlexStreamReconnects.WithLabelValues(server).Inc()
}

// RecordAPIError counts a failed Plex API request by endpoint.
func RecordAPIError(endpoint string) {
	PlexAPIErrors.WithLabelValues(endpoint).Inc()
}

// SetActiveSessions updates the session table gauge.
func SetActiveSessions(n int) {
	ActiveSessions.Set(float64(n))
}
