// Presenced - Plex Presence Bridge for Discord
// Copyright 2026 Presenced contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/presenceforplex/presenced

package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

const stateFileName = "state.yaml"

// State is the mutable identity written back to disk: the persistent
// client identifier Plex uses to recognize this installation, and the
// credentials obtained through the PIN sign-in. It is kept separate from
// the user-edited config file so saves never clobber comments or
// formatting there.
type State struct {
	ClientIdentifier string `koanf:"client_identifier"`
	Token            string `koanf:"token"`
	Username         string `koanf:"username"`
}

// LoadState reads the persisted state, minting a fresh client identifier
// on first run.
func LoadState(dir string) (*State, error) {
	path := filepath.Join(dir, stateFileName)
	state := &State{}

	if _, err := os.Stat(path); err == nil {
		k := koanf.New(".")
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("load state file: %w", err)
		}
		if err := k.Unmarshal("", state); err != nil {
			return nil, fmt.Errorf("unmarshal state: %w", err)
		}
	}

	if state.ClientIdentifier == "" {
		state.ClientIdentifier = uuid.NewString()
		if err := state.Save(dir); err != nil {
			return nil, err
		}
	}
	return state, nil
}

// Save writes the state file with owner-only permissions; it holds the
// account token.
func (s *State) Save(dir string) error {
	k := koanf.New(".")
	if err := k.Load(structs.Provider(s, "koanf"), nil); err != nil {
		return fmt.Errorf("encode state: %w", err)
	}
	out, err := k.Marshal(yaml.Parser())
	if err != nil {
		return fmt.Errorf("marshal state: %w", err)
	}

	path := filepath.Join(dir, stateFileName)
	if err := os.WriteFile(path, out, 0o600); err != nil {
		return fmt.Errorf("write state file: %w", err)
	}
	return nil
}
