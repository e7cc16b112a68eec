// Presenced - Plex Presence Bridge for Discord
// Copyright 2026 Presenced contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/presenceforplex/presenced

package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// ConfigPathEnvVar overrides the config file search.
const ConfigPathEnvVar = "CONFIG_PATH"

// defaultConfigPaths lists where the config file is searched, in order.
func defaultConfigPaths() []string {
	paths := []string{"config.yaml", "config.yml"}
	if base, err := os.UserConfigDir(); err == nil {
		paths = append(paths,
			filepath.Join(base, "presenced", "config.yaml"),
			filepath.Join(base, "presenced", "config.yml"),
		)
	}
	paths = append(paths, "/etc/presenced/config.yaml")
	return paths
}

// Load builds the configuration from layered sources:
//  1. Built-in defaults
//  2. Optional YAML config file
//  3. Environment variables (highest priority)
func Load() (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(defaultConfig(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	if configPath := findConfigFile(); configPath != "" {
		if err := k.Load(file.Provider(configPath), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", configPath, err)
		}
	}

	if err := k.Load(env.Provider("", ".", envTransformFunc), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// findConfigFile returns the first config file that exists, or empty.
func findConfigFile() string {
	if envPath := os.Getenv(ConfigPathEnvVar); envPath != "" {
		if _, err := os.Stat(envPath); err == nil {
			return envPath
		}
	}
	for _, path := range defaultConfigPaths() {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}

// envTransformFunc maps environment variable names to config paths.
// Unmapped variables are dropped so unrelated environment noise cannot
// pollute the configuration.
func envTransformFunc(key string) string {
	key = strings.ToLower(key)

	envMappings := map[string]string{
		"plex_token":     "plex.token",
		"plex_username":  "plex.username",
		"plex_transport": "plex.transport",

		"discord_client_id": "discord.client_id",

		"presence_episode_format": "presence.episode_format",
		"presence_season_format":  "presence.season_format",
		"presence_music_format":   "presence.music_format",
		"presence_tv_show_format": "presence.tv_show_format",
		"show_movies":             "presence.show_movies",
		"show_tv_shows":           "presence.show_tv_shows",
		"show_music":              "presence.show_music",
		"show_bitrate":            "presence.show_bitrate",
		"show_quality":            "presence.show_quality",
		"show_flac":               "presence.show_flac",
		"gatekeep_music":          "presence.gatekeep_music",
		"flac_as_cd":              "presence.flac_as_cd",

		"tmdb_token": "external.tmdb_token",

		"status_enabled": "status.enabled",
		"status_addr":    "status.addr",

		"log_level":  "logging.level",
		"log_format": "logging.format",
		"log_caller": "logging.caller",
	}

	if mapped, ok := envMappings[key]; ok {
		return mapped
	}
	return ""
}
