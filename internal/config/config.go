// Presenced - Plex Presence Bridge for Discord
// Copyright 2026 Presenced contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/presenceforplex/presenced

// Package config loads and validates the bridge configuration with
// layered sources: built-in defaults, an optional YAML file, and
// environment variables, in ascending precedence.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/go-playground/validator/v10"
)

// defaultDiscordClientID is the Discord application registered for the
// bridge; its uploaded assets provide the default presence artwork.
const defaultDiscordClientID = "1238880603772817418"

// Config is the root configuration.
type Config struct {
	Plex     PlexConfig     `koanf:"plex"`
	Discord  DiscordConfig  `koanf:"discord"`
	Presence PresenceConfig `koanf:"presence"`
	External ExternalConfig `koanf:"external"`
	Status   StatusConfig   `koanf:"status"`
	Logging  LoggingConfig  `koanf:"logging"`
}

// PlexConfig covers the Plex account and stream transport.
type PlexConfig struct {
	Token    string `koanf:"token"`    // Account token; filled in by the PIN sign-in when empty
	Username string `koanf:"username"` // Only this account's sessions drive the presence
	// Transport selects the notification feed: "sse" (event source) or
	// "websocket".
	Transport string `koanf:"transport" validate:"oneof=sse websocket"`
}

// DiscordConfig identifies the Discord application.
type DiscordConfig struct {
	ClientID string `koanf:"client_id" validate:"required,numeric"`
}

// PresenceConfig holds the text templates and display toggles.
type PresenceConfig struct {
	EpisodeFormat string `koanf:"episode_format"`
	SeasonFormat  string `koanf:"season_format"`
	MusicFormat   string `koanf:"music_format"`
	TVShowFormat  string `koanf:"tv_show_format"`

	ShowMovies  bool `koanf:"show_movies"`
	ShowTVShows bool `koanf:"show_tv_shows"`
	ShowMusic   bool `koanf:"show_music"`
	ShowBitrate bool `koanf:"show_bitrate"`
	ShowQuality bool `koanf:"show_quality"`
	ShowFlac    bool `koanf:"show_flac"`

	// GatekeepMusic hides what is actually playing behind a generic
	// listening message.
	GatekeepMusic bool `koanf:"gatekeep_music"`
	// FlacAsCD relabels lossless albums as "CD".
	FlacAsCD bool `koanf:"flac_as_cd"`
}

// ExternalConfig configures third-party metadata services.
type ExternalConfig struct {
	TMDBToken string `koanf:"tmdb_token"` // Optional; enables TMDB artwork fallback
}

// StatusConfig controls the localhost status server.
type StatusConfig struct {
	Enabled bool   `koanf:"enabled"`
	Addr    string `koanf:"addr" validate:"hostname_port"`
}

// LoggingConfig controls log output.
type LoggingConfig struct {
	Level  string `koanf:"level" validate:"oneof=trace debug info warn error"`
	Format string `koanf:"format" validate:"oneof=console json"`
	Caller bool   `koanf:"caller"`
}

// defaultConfig returns the built-in defaults, applied before the config
// file and environment variables.
func defaultConfig() *Config {
	return &Config{
		Plex: PlexConfig{
			Token:     "",
			Username:  "",
			Transport: "sse",
		},
		Discord: DiscordConfig{
			ClientID: defaultDiscordClientID,
		},
		Presence: PresenceConfig{
			EpisodeFormat: "E{episode}",
			SeasonFormat:  "S{season}",
			MusicFormat:   "{title} - {artist} - {album}",
			TVShowFormat:  "{show_title} - {season_episode} - {episode_title}",
			ShowMovies:    true,
			ShowTVShows:   true,
			ShowMusic:     true,
			ShowBitrate:   true,
			ShowQuality:   true,
			ShowFlac:      true,
			GatekeepMusic: false,
			FlacAsCD:      false,
		},
		External: ExternalConfig{
			TMDBToken: "",
		},
		Status: StatusConfig{
			Enabled: true,
			Addr:    "127.0.0.1:9854",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
			Caller: false,
		},
	}
}

// Validate checks the configuration against its struct tags.
func (c *Config) Validate() error {
	validate := validator.New()
	if err := validate.Struct(c); err != nil {
		if errs, ok := err.(validator.ValidationErrors); ok && len(errs) > 0 {
			first := errs[0]
			return fmt.Errorf("invalid configuration: field %s failed %q validation", first.Namespace(), first.Tag())
		}
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}

// ConfigDir returns the per-user configuration directory, creating it if
// needed.
func ConfigDir() (string, error) {
	base, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("resolve config dir: %w", err)
	}
	dir := filepath.Join(base, "presenced")
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return "", fmt.Errorf("create config dir: %w", err)
	}
	return dir, nil
}
