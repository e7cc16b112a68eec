// Presenced - Plex Presence Bridge for Discord
// Copyright 2026 Presenced contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/presenceforplex/presenced

// Command presenced bridges Plex playback to Discord Rich Presence: it
// signs in to plex.tv, watches every reachable media server for playback
// events, and mirrors what the account is playing onto the Discord
// profile.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/presenceforplex/presenced/internal/api"
	"github.com/presenceforplex/presenced/internal/config"
	"github.com/presenceforplex/presenced/internal/discord"
	"github.com/presenceforplex/presenced/internal/logging"
	"github.com/presenceforplex/presenced/internal/metrics"
	"github.com/presenceforplex/presenced/internal/plex"
	"github.com/presenceforplex/presenced/internal/presence"
	"github.com/presenceforplex/presenced/internal/supervisor"
)

func main() {
	if err := run(); err != nil && err != context.Canceled {
		logging.Error().Err(err).Msg("Fatal error")
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	logging.Init(logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Caller: cfg.Logging.Caller,
	})
	logger := logging.Logger()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	stateDir, err := config.ConfigDir()
	if err != nil {
		return err
	}
	state, err := config.LoadState(stateDir)
	if err != nil {
		return err
	}

	// Config-provided credentials win over persisted ones.
	token := cfg.Plex.Token
	if token == "" {
		token = state.Token
	}
	username := cfg.Plex.Username
	if username == "" {
		username = state.Username
	}

	client := plex.NewClient(state.ClientIdentifier, token, logger)

	if client.Token() == "" {
		creds, err := signIn(ctx, client, logger)
		if err != nil {
			return err
		}
		state.Token = creds.Token
		state.Username = creds.Username
		if err := state.Save(stateDir); err != nil {
			return err
		}
		if username == "" {
			username = creds.Username
		}
	}

	external := plex.NewExternal(cfg.External.TMDBToken, logger)
	resolver := plex.NewResolver(client, external, cfg.Presence.FlacAsCD, logger)
	artwork := plex.NewArtworkResolver(external, logger)
	tracker := plex.NewTracker(client, resolver, artwork, username, logger)

	discordClient := discord.NewClient(cfg.Discord.ClientID, logger,
		discord.WithCallbacks(
			func() { metrics.SetDiscordConnected(true) },
			func() { metrics.SetDiscordConnected(false) },
		))

	formats := discord.Formats{
		Episode: cfg.Presence.EpisodeFormat,
		Season:  cfg.Presence.SeasonFormat,
		Music:   cfg.Presence.MusicFormat,
		TVShow:  cfg.Presence.TVShowFormat,
	}
	toggles := discord.Toggles{
		ShowMovies:    cfg.Presence.ShowMovies,
		ShowTVShows:   cfg.Presence.ShowTVShows,
		ShowMusic:     cfg.Presence.ShowMusic,
		ShowBitrate:   cfg.Presence.ShowBitrate,
		ShowQuality:   cfg.Presence.ShowQuality,
		ShowFlac:      cfg.Presence.ShowFlac,
		GatekeepMusic: cfg.Presence.GatekeepMusic,
	}
	poller := presence.NewPoller(tracker, discordClient, formats, toggles, logger)

	tree := supervisor.NewTree(logging.Slog(), supervisor.DefaultTreeConfig())
	tree.AddPresenceService(discordClient)
	tree.AddPresenceService(poller)
	tree.AddPresenceService(&sessionGauge{tracker: tracker})

	if err := startStreams(ctx, tree, client, tracker, cfg.Plex.Transport, logger); err != nil {
		return err
	}
	tracker.SetInitialized()

	if cfg.Status.Enabled {
		tree.AddStatusService(api.NewServer(cfg.Status.Addr, tracker, discordClient, logger))
	}

	logger.Info().Str("username", username).Msg("Bridge running")
	err = tree.Serve(ctx)
	if report, rerr := tree.UnstoppedServiceReport(); rerr == nil {
		for _, svc := range report {
			logger.Warn().Str("service", svc.Name).Msg("Service did not stop before the shutdown timeout")
		}
	}
	return err
}

// signIn runs the PIN flow and blocks until the user approves it in the
// browser.
func signIn(ctx context.Context, client *plex.Client, logger zerolog.Logger) (*plex.Credentials, error) {
	pinID, authURL, err := client.RequestPIN(ctx)
	if err != nil {
		return nil, err
	}
	logger.Info().Str("url", authURL).Msg("Open this URL to sign in to Plex")
	openBrowser(authURL, logger)
	return client.WaitForPIN(ctx, pinID)
}

// startStreams discovers the account's servers and adds one event stream
// per reachable server to the ingest layer.
func startStreams(ctx context.Context, tree *supervisor.Tree, client *plex.Client, tracker *plex.Tracker, transport string, logger zerolog.Logger) error {
	servers, err := client.FetchServers(ctx)
	if err != nil {
		return err
	}

	uris := plex.NewURIResolver(client)
	connected := 0
	for _, srv := range servers {
		uri := uris.Resolve(ctx, srv)
		if uri == "" {
			logger.Warn().Str("server", srv.Name).Msg("Server unreachable, skipping")
			continue
		}
		tracker.RegisterServer(uri, srv)

		token := srv.AccessToken
		if token == "" {
			token = client.Token()
		}
		switch transport {
		case "websocket":
			tree.AddIngestService(plex.NewWSStream(uri, token, tracker.OnEvent, logger))
		default:
			tree.AddIngestService(plex.NewStream(client, uri, token, tracker.OnEvent, logger))
		}
		connected++
	}
	if connected == 0 {
		logger.Warn().Msg("No reachable Plex servers; presence will stay idle")
	}
	return nil
}

// sessionGauge mirrors the tracker's session count into the metrics
// gauge.
type sessionGauge struct {
	tracker *plex.Tracker
}

func (g *sessionGauge) String() string { return "session-gauge" }

func (g *sessionGauge) Serve(ctx context.Context) error {
	ticker := time.NewTicker(15 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			metrics.SetActiveSessions(g.tracker.ActiveSessions())
		}
	}
}
