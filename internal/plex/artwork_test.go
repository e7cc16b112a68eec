// Presenced - Plex Presence Bridge for Discord
// Copyright 2026 Presenced contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/presenceforplex/presenced

package plex

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/presenceforplex/presenced/internal/logging"
)

func TestTranscodeURL(t *testing.T) {
	raw := transcodeURL("https://plex.example.com:32400", "/library/metadata/1/thumb", "tok123")

	u, err := url.Parse(raw)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if u.Path != "/photo/:/transcode" {
		t.Errorf("path = %q", u.Path)
	}
	q := u.Query()
	if q.Get("width") != "256" || q.Get("height") != "256" {
		t.Errorf("dimensions = %s x %s", q.Get("width"), q.Get("height"))
	}
	if q.Get("format") != "webp" || q.Get("upscale") != "1" || q.Get("minSize") != "1" {
		t.Error("transcode options missing")
	}
	if q.Get("url") != "/library/metadata/1/thumb" {
		t.Errorf("url param = %q", q.Get("url"))
	}
	if q.Get("X-Plex-Token") != "tok123" {
		t.Errorf("token = %q", q.Get("X-Plex-Token"))
	}
	if q.Get("cb") == "" {
		t.Error("cache buster missing")
	}
}

func TestForceHTTPS(t *testing.T) {
	if got := forceHTTPS("http://host:32400"); got != "https://host:32400" {
		t.Errorf("got %q", got)
	}
	if got := forceHTTPS("https://host:32400"); got != "https://host:32400" {
		t.Errorf("got %q", got)
	}
}

func TestPickThumb(t *testing.T) {
	tests := []struct {
		name string
		info MediaInfo
		want string
	}{
		{"movie uses own thumb", MediaInfo{Type: MediaMovie, Thumb: "/t"}, "/t"},
		{"episode prefers show poster", MediaInfo{Type: MediaEpisode, Thumb: "/e", GrandparentThumb: "/s"}, "/s"},
		{"episode falls back", MediaInfo{Type: MediaEpisode, Thumb: "/e"}, "/e"},
		{"track prefers album cover", MediaInfo{Type: MediaTrack, Thumb: "/t", ParentThumb: "/a"}, "/a"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := pickThumb(tt.info); got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestResolvePrefersPublicURI(t *testing.T) {
	public := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/photo/:/transcode" {
			http.NotFound(w, r)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(public.Close)

	a := NewArtworkResolver(nil, logging.NewTestLogger())
	a.probe = public.Client()
	srv := Server{ClientID: "srv1", AccessToken: "tok", PublicURI: public.URL}
	info := MediaInfo{Type: MediaMovie, Thumb: "/library/metadata/1/thumb"}

	got := a.Resolve(context.Background(), srv, "https://local:32400", info)
	if !strings.HasPrefix(got, public.URL) {
		t.Errorf("got %q, want public transcode URL", got)
	}
}

func TestResolveFallsBackToServerURI(t *testing.T) {
	a := NewArtworkResolver(nil, logging.NewTestLogger())
	// Public URI unreachable, no TMDB: the active server URI is the last
	// resort.
	srv := Server{ClientID: "srv1", AccessToken: "tok", PublicURI: "https://127.0.0.1:1"}
	info := MediaInfo{Type: MediaMovie, Thumb: "/library/metadata/1/thumb"}

	got := a.Resolve(context.Background(), srv, "https://active:32400", info)
	if !strings.HasPrefix(got, "https://active:32400/photo/:/transcode") {
		t.Errorf("got %q", got)
	}
}

func TestResolveNoThumbNoExternal(t *testing.T) {
	a := NewArtworkResolver(nil, logging.NewTestLogger())
	got := a.Resolve(context.Background(), Server{ClientID: "srv1"}, "https://active", MediaInfo{})
	if got != "" {
		t.Errorf("got %q, want empty", got)
	}
}
