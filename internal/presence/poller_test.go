// Presenced - Plex Presence Bridge for Discord
// Copyright 2026 Presenced contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/presenceforplex/presenced

package presence

import (
	"testing"
	"time"

	"github.com/presenceforplex/presenced/internal/discord"
	"github.com/presenceforplex/presenced/internal/logging"
	"github.com/presenceforplex/presenced/internal/plex"
)

type fakeSource struct {
	playback plex.MediaInfo
}

func (f *fakeSource) CurrentPlayback() plex.MediaInfo { return f.playback }

type fakeSink struct {
	connected bool
	updates   []*discord.Activity
	clears    int
}

func (f *fakeSink) Connected() bool { return f.connected }

func (f *fakeSink) UpdatePresence(act *discord.Activity) error {
	f.updates = append(f.updates, act)
	return nil
}

func (f *fakeSink) ClearPresence() error {
	f.clears++
	return nil
}

func newTestPoller(source *fakeSource, sink *fakeSink) *Poller {
	formats := discord.Formats{
		Episode: "E{episode}",
		Season:  "S{season}",
		Music:   "{title} - {artist} - {album}",
		TVShow:  "{show_title} - {season_episode} - {episode_title}",
	}
	toggles := discord.Toggles{
		ShowMovies:  true,
		ShowTVShows: true,
		ShowMusic:   true,
	}
	p := NewPoller(source, sink, formats, toggles, logging.NewTestLogger())
	p.now = func() time.Time { return time.Unix(1_700_000_000, 0) }
	return p
}

func playing(ratingKey string, startTime int64) plex.MediaInfo {
	return plex.MediaInfo{
		State:     plex.StatePlaying,
		Type:      plex.MediaMovie,
		Title:     "Movie",
		RatingKey: ratingKey,
		StartTime: startTime,
	}
}

func TestPollerEmitsOnStateChange(t *testing.T) {
	source := &fakeSource{playback: playing("100", 1000)}
	sink := &fakeSink{connected: true}
	p := newTestPoller(source, sink)

	p.tick()
	if len(sink.updates) != 1 {
		t.Fatalf("got %d updates, want 1", len(sink.updates))
	}

	// Same state, same start: no new update.
	p.tick()
	if len(sink.updates) != 1 {
		t.Errorf("got %d updates after idle tick, want 1", len(sink.updates))
	}

	source.playback.State = plex.StatePaused
	p.tick()
	if len(sink.updates) != 2 {
		t.Errorf("got %d updates after pause, want 2", len(sink.updates))
	}
}

func TestPollerReemitsAfterReconnect(t *testing.T) {
	source := &fakeSource{playback: playing("100", 1000)}
	sink := &fakeSink{connected: true}
	p := newTestPoller(source, sink)

	p.tick()
	if len(sink.updates) != 1 {
		t.Fatalf("got %d updates, want 1", len(sink.updates))
	}

	// Discord restarted: the activity it was showing is gone, so the
	// unchanged playback must be sent again.
	p.resync()
	p.tick()
	if len(sink.updates) != 2 {
		t.Errorf("got %d updates after reconnect, want 2", len(sink.updates))
	}
}

func TestPollerEmitsOnSeek(t *testing.T) {
	source := &fakeSource{playback: playing("100", 1000)}
	sink := &fakeSink{connected: true}
	p := newTestPoller(source, sink)

	p.tick()

	// Small drift stays quiet.
	source.playback.StartTime = 1003
	p.tick()
	if len(sink.updates) != 1 {
		t.Errorf("got %d updates after drift, want 1", len(sink.updates))
	}

	// A seek moves the start time past the slack.
	source.playback.StartTime = 1300
	p.tick()
	if len(sink.updates) != 2 {
		t.Errorf("got %d updates after seek, want 2", len(sink.updates))
	}
}

func TestPollerEmitsOnItemChange(t *testing.T) {
	source := &fakeSource{playback: playing("100", 1000)}
	sink := &fakeSink{connected: true}
	p := newTestPoller(source, sink)

	p.tick()
	source.playback = playing("200", 1000)
	source.playback.State = plex.StatePlaying
	p.tick()

	if len(sink.updates) != 2 {
		t.Errorf("got %d updates, want 2", len(sink.updates))
	}
}

func TestPollerClearsOnStop(t *testing.T) {
	source := &fakeSource{playback: playing("100", 1000)}
	sink := &fakeSink{connected: true}
	p := newTestPoller(source, sink)

	p.tick()
	source.playback = plex.MediaInfo{State: plex.StateStopped}
	p.tick()

	if sink.clears != 1 {
		t.Errorf("got %d clears, want 1", sink.clears)
	}

	// Stopped again: no second clear.
	p.tick()
	if sink.clears != 1 {
		t.Errorf("got %d clears after repeat, want 1", sink.clears)
	}
}

func TestPollerSkipsBeforeInitialization(t *testing.T) {
	source := &fakeSource{playback: plex.MediaInfo{State: plex.StateNotInitialized}}
	sink := &fakeSink{connected: true}
	p := newTestPoller(source, sink)

	p.tick()
	if len(sink.updates) != 0 || sink.clears != 0 {
		t.Error("nothing should happen before initialization")
	}
}

func TestPollerClearsOnceOnBadToken(t *testing.T) {
	source := &fakeSource{playback: playing("100", 1000)}
	sink := &fakeSink{connected: true}
	p := newTestPoller(source, sink)

	p.tick()
	source.playback = plex.MediaInfo{State: plex.StateBadToken}
	p.tick()
	p.tick()
	p.tick()

	if sink.clears != 1 {
		t.Errorf("got %d clears, want exactly 1", sink.clears)
	}

	// Token fixed: updates resume.
	source.playback = playing("100", 2000)
	p.tick()
	if len(sink.updates) != 2 {
		t.Errorf("got %d updates after recovery, want 2", len(sink.updates))
	}
}

func TestPollerClearsSuppressedKind(t *testing.T) {
	source := &fakeSource{playback: playing("100", 1000)}
	sink := &fakeSink{connected: true}
	p := newTestPoller(source, sink)
	p.toggles.ShowMovies = false

	// Something else was showing first.
	p.showing = true
	p.tick()

	if len(sink.updates) != 0 {
		t.Errorf("got %d updates, want 0", len(sink.updates))
	}
	if sink.clears != 1 {
		t.Errorf("got %d clears, want 1", sink.clears)
	}
}
