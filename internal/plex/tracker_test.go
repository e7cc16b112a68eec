// Presenced - Plex Presence Bridge for Discord
// Copyright 2026 Presenced contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/presenceforplex/presenced

package plex

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/presenceforplex/presenced/internal/logging"
)

const trackerSessionsJSON = `{"MediaContainer":{"size":3,"Metadata":[
	{"sessionKey":"1","User":{"id":"1","title":"alice"},"Player":{"product":"Plex Web"}},
	{"sessionKey":"2","User":{"id":"2","title":"bob"},"Player":{"product":"Plex for Roku"}},
	{"sessionKey":"3","User":{"id":"1","title":"alice"},"Player":{"product":"Plexamp"}}
]}}`

func newTestTracker(t *testing.T, username string) (*Tracker, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/status/sessions":
			w.Write([]byte(trackerSessionsJSON))
		case "/library/metadata/100":
			w.Write([]byte(movieJSON))
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(srv.Close)

	logger := logging.NewTestLogger()
	client := NewClient("test-id", "test-token", logger)
	resolver := NewResolver(client, nil, false, logger)
	artwork := NewArtworkResolver(nil, logger)
	return NewTracker(client, resolver, artwork, username, logger), srv
}

func playingEvent(sessionKey string) PlaySessionStateNotification {
	return PlaySessionStateNotification{
		SessionKey: sessionKey,
		Key:        "/library/metadata/100",
		State:      "playing",
		ViewOffset: 600_000,
	}
}

func TestTrackerNotInitialized(t *testing.T) {
	tr, _ := newTestTracker(t, "alice")
	if got := tr.CurrentPlayback(); got.State != StateNotInitialized {
		t.Errorf("state = %v, want not initialized", got.State)
	}
}

func TestTrackerStoppedWhenEmpty(t *testing.T) {
	tr, _ := newTestTracker(t, "alice")
	tr.SetInitialized()
	if got := tr.CurrentPlayback(); got.State != StateStopped {
		t.Errorf("state = %v, want stopped", got.State)
	}
}

func TestTrackerPlayingSession(t *testing.T) {
	tr, srv := newTestTracker(t, "alice")
	tr.SetInitialized()

	tr.OnEvent(srv.URL, playingEvent("1"))

	got := tr.CurrentPlayback()
	if got.State != StatePlaying {
		t.Fatalf("state = %v, want playing", got.State)
	}
	if got.Title != "The Matrix" {
		t.Errorf("title = %q", got.Title)
	}
	if got.Username != "alice" || got.Player != "Plex Web" {
		t.Errorf("attribution = %q / %q", got.Username, got.Player)
	}
	if got.Progress != 600 {
		t.Errorf("progress = %d, want seconds", got.Progress)
	}
	wantStart := time.Now().Unix() - 600
	if got.StartTime < wantStart-2 || got.StartTime > wantStart+2 {
		t.Errorf("startTime = %d, want about %d", got.StartTime, wantStart)
	}
}

func TestTrackerIgnoresOtherUsers(t *testing.T) {
	tr, srv := newTestTracker(t, "alice")
	tr.SetInitialized()

	tr.OnEvent(srv.URL, playingEvent("2")) // bob's session

	if got := tr.CurrentPlayback(); got.State != StateStopped {
		t.Errorf("state = %v, want stopped", got.State)
	}
	if tr.ActiveSessions() != 0 {
		t.Errorf("sessions = %d, want 0", tr.ActiveSessions())
	}
}

func TestTrackerStopRemovesSession(t *testing.T) {
	tr, srv := newTestTracker(t, "alice")
	tr.SetInitialized()

	tr.OnEvent(srv.URL, playingEvent("1"))
	if tr.ActiveSessions() != 1 {
		t.Fatalf("sessions = %d", tr.ActiveSessions())
	}

	stop := PlaySessionStateNotification{SessionKey: "1", State: "stopped"}
	tr.OnEvent(srv.URL, stop)
	// Stopping twice must be harmless.
	tr.OnEvent(srv.URL, stop)

	if tr.ActiveSessions() != 0 {
		t.Errorf("sessions = %d, want 0", tr.ActiveSessions())
	}
	if got := tr.CurrentPlayback(); got.State != StateStopped {
		t.Errorf("state = %v, want stopped", got.State)
	}
}

func TestTrackerPausedSession(t *testing.T) {
	tr, srv := newTestTracker(t, "alice")
	tr.SetInitialized()

	ev := playingEvent("1")
	ev.State = "paused"
	tr.OnEvent(srv.URL, ev)

	if got := tr.CurrentPlayback(); got.State != StatePaused {
		t.Errorf("state = %v, want paused", got.State)
	}
}

func TestTrackerNewestSessionWins(t *testing.T) {
	tr, srv := newTestTracker(t, "alice")
	tr.SetInitialized()

	// Two sessions for the same account; the one started later wins.
	base := time.Unix(1_700_000_000, 0)
	tr.now = func() time.Time { return base }
	tr.OnEvent(srv.URL, playingEvent("1"))

	tr.now = func() time.Time { return base.Add(time.Hour) }
	tr.OnEvent(srv.URL, playingEvent("3"))

	got := tr.CurrentPlayback()
	if got.SessionKey != "3" {
		t.Errorf("session = %q, want the newer session", got.SessionKey)
	}
	if tr.ActiveSessions() != 2 {
		t.Errorf("sessions = %d, want 2", tr.ActiveSessions())
	}
}

func TestTrackerNewestPausedSessionWins(t *testing.T) {
	tr, srv := newTestTracker(t, "alice")
	tr.SetInitialized()

	base := time.Unix(1_700_000_000, 0)
	tr.now = func() time.Time { return base.Add(time.Hour) }
	newer := playingEvent("3")
	newer.State = "paused"
	tr.OnEvent(srv.URL, newer)

	tr.now = func() time.Time { return base }
	older := playingEvent("1")
	older.State = "paused"
	tr.OnEvent(srv.URL, older)

	got := tr.CurrentPlayback()
	if got.State != StatePaused {
		t.Fatalf("state = %v, want paused", got.State)
	}
	if got.SessionKey != "3" {
		t.Errorf("session = %q, want the one with the largest start time", got.SessionKey)
	}
}

func TestTrackerFilteredSessionDoesNotPreempt(t *testing.T) {
	tr, srv := newTestTracker(t, "alice")
	tr.SetInitialized()

	base := time.Unix(1_700_000_000, 0)
	tr.now = func() time.Time { return base }
	tr.OnEvent(srv.URL, playingEvent("1"))

	// Session 2 belongs to bob: newer, but filtered out entirely.
	tr.now = func() time.Time { return base.Add(time.Hour) }
	tr.OnEvent(srv.URL, playingEvent("2"))

	got := tr.CurrentPlayback()
	if got.SessionKey != "1" {
		t.Errorf("session = %q, want alice's session", got.SessionKey)
	}
}

func TestTrackerBadToken(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	t.Cleanup(srv.Close)

	logger := logging.NewTestLogger()
	client := NewClient("test-id", "stale-token", logger)
	resolver := NewResolver(client, nil, false, logger)
	tr := NewTracker(client, resolver, NewArtworkResolver(nil, logger), "alice", logger)
	tr.SetInitialized()

	tr.OnEvent(srv.URL, playingEvent("1"))

	if got := tr.CurrentPlayback(); got.State != StateBadToken {
		t.Errorf("state = %v, want bad token", got.State)
	}
}
