// Presenced - Plex Presence Bridge for Discord
// Copyright 2026 Presenced contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/presenceforplex/presenced

// Package presence bridges the session tracker and the Discord client:
// it polls the current playback state and turns changes into presence
// updates.
package presence

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/presenceforplex/presenced/internal/discord"
	"github.com/presenceforplex/presenced/internal/plex"
)

const (
	pollInterval = 1 * time.Second
	waitSlice    = 500 * time.Millisecond

	// startTimeSlack tolerates seek-free drift between polls; a larger
	// jump means the user seeked and the progress bar must be rebuilt.
	startTimeSlack = 5
)

// playbackSource answers what the account is playing right now.
type playbackSource interface {
	CurrentPlayback() plex.MediaInfo
}

// presenceSink delivers activities to Discord.
type presenceSink interface {
	Connected() bool
	UpdatePresence(*discord.Activity) error
	ClearPresence() error
}

// Poller drives the presence from playback state at 1 Hz. Implements
// suture.Service.
type Poller struct {
	source  playbackSource
	sink    presenceSink
	formats discord.Formats
	toggles discord.Toggles
	logger  zerolog.Logger

	lastState     plex.PlaybackState
	lastStart     int64
	lastRatingKey string
	showing       bool
	clearedOnAuth bool
	disconnected  bool

	now func() time.Time
}

// NewPoller creates a poller.
func NewPoller(source playbackSource, sink presenceSink, formats discord.Formats, toggles discord.Toggles, logger zerolog.Logger) *Poller {
	return &Poller{
		source:    source,
		sink:      sink,
		formats:   formats,
		toggles:   toggles,
		logger:    logger.With().Str("component", "presence_poller").Logger(),
		lastState: plex.StateNotInitialized,
		now:       time.Now,
	}
}

func (p *Poller) String() string { return "presence-poller" }

// Serve polls until ctx is canceled. While Discord is disconnected the
// loop idles in short slices; there is nowhere to deliver updates.
func (p *Poller) Serve(ctx context.Context) error {
	for {
		if !p.sink.Connected() {
			p.disconnected = true
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(waitSlice):
			}
			continue
		}
		if p.disconnected {
			// Discord forgets activities across restarts; the next tick
			// must re-emit even if nothing changed on the Plex side.
			p.resync()
			p.disconnected = false
		}

		p.tick()

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(pollInterval):
		}
	}
}

// tick evaluates the current playback and emits an update when the shown
// presence would change.
func (p *Poller) tick() {
	playback := p.source.CurrentPlayback()

	switch playback.State {
	case plex.StateNotInitialized:
		return
	case plex.StateBadToken:
		if !p.clearedOnAuth {
			p.logger.Warn().Msg("Plex token rejected, clearing presence")
			p.clear()
			p.clearedOnAuth = true
		}
		return
	}
	p.clearedOnAuth = false

	if playback.State == plex.StateStopped {
		if p.showing {
			p.logger.Debug().Msg("Playback stopped, clearing presence")
			p.clear()
		}
		p.remember(playback)
		return
	}

	if !p.changed(playback) {
		return
	}

	act, ok := discord.BuildActivity(playback, p.formats, p.toggles, p.now())
	if !ok {
		// Media kind disabled: make sure nothing stale stays visible.
		if p.showing {
			p.clear()
		}
		p.remember(playback)
		return
	}

	if err := p.sink.UpdatePresence(act); err != nil {
		p.logger.Warn().Err(err).Msg("Presence update failed")
		return
	}
	p.showing = true
	p.remember(playback)
	p.logger.Debug().
		Str("state", playback.State.String()).
		Str("title", playback.Title).
		Msg("Presence updated")
}

// changed reports whether the playback differs enough from the last shown
// presence to warrant an update.
func (p *Poller) changed(playback plex.MediaInfo) bool {
	if playback.State != p.lastState {
		return true
	}
	if playback.RatingKey != p.lastRatingKey {
		return true
	}
	if playback.State == plex.StatePlaying {
		drift := playback.StartTime - p.lastStart
		if drift > startTimeSlack || drift < -startTimeSlack {
			return true
		}
	}
	return false
}

// resync forgets the last shown presence so the next tick re-emits the
// current state.
func (p *Poller) resync() {
	p.lastState = plex.StateNotInitialized
	p.lastStart = 0
	p.lastRatingKey = ""
	p.showing = false
}

func (p *Poller) remember(playback plex.MediaInfo) {
	p.lastState = playback.State
	p.lastStart = playback.StartTime
	p.lastRatingKey = playback.RatingKey
}

func (p *Poller) clear() {
	if err := p.sink.ClearPresence(); err != nil {
		p.logger.Warn().Err(err).Msg("Presence clear failed")
		return
	}
	p.showing = false
}
