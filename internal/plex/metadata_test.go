// Presenced - Plex Presence Bridge for Discord
// Copyright 2026 Presenced contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/presenceforplex/presenced

package plex

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/presenceforplex/presenced/internal/logging"
)

const movieJSON = `{"MediaContainer":{"size":1,"Metadata":[{
	"ratingKey":"100","key":"/library/metadata/100","type":"movie",
	"title":"The Matrix","year":1999,"duration":8160000,
	"Guid":[{"id":"imdb://tt0133093"},{"id":"tmdb://603"}],
	"Genre":[{"tag":"Action"},{"tag":"Sci-Fi"}],
	"Media":[{"videoResolution":"1080","bitrate":12500,
		"Part":[{"file":"/movies/matrix.remux.mkv","Stream":[
			{"streamType":1,"codec":"hevc"},
			{"streamType":2,"codec":"truehd","bitDepth":24,"samplingRate":48000}
		]}]}]
}]}}`

const episodeJSON = `{"MediaContainer":{"size":1,"Metadata":[{
	"ratingKey":"200","key":"/library/metadata/200","type":"episode",
	"title":"Ozymandias","index":14,"parentIndex":5,
	"grandparentTitle":"Breaking Bad","grandparentKey":"/library/metadata/190",
	"grandparentThumb":"/library/metadata/190/thumb","duration":2820000
}]}}`

const showJSON = `{"MediaContainer":{"size":1,"Metadata":[{
	"ratingKey":"190","key":"/library/metadata/190","type":"show",
	"title":"Breaking Bad",
	"Guid":[{"id":"imdb://tt0903747"},{"id":"tmdb://1396"}],
	"Genre":[{"tag":"Drama"}]
}]}}`

const trackJSON = `{"MediaContainer":{"size":1,"Metadata":[{
	"ratingKey":"300","key":"/library/metadata/300","type":"track",
	"title":"Paranoid Android","parentTitle":"OK Computer",
	"grandparentTitle":"Radiohead","parentThumb":"/library/metadata/290/thumb",
	"duration":387000,
	"Media":[{"audioCodec":"flac","Part":[{"file":"/music/02.flac","Stream":[
		{"streamType":2,"codec":"flac","bitDepth":16,"samplingRate":44100}
	]}]}]
}]}}`

func newTestResolver(t *testing.T, flacAsCD bool, routes map[string]string) (*Resolver, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, ok := routes[r.URL.Path]
		if !ok {
			http.NotFound(w, r)
			return
		}
		w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)

	client := NewClient("test-id", "test-token", logging.NewTestLogger())
	return NewResolver(client, nil, flacAsCD, logging.NewTestLogger()), srv
}

func TestResolveMovie(t *testing.T) {
	r, srv := newTestResolver(t, false, map[string]string{
		"/library/metadata/100": movieJSON,
	})

	info, err := r.Resolve(context.Background(), srv.URL, "/library/metadata/100")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}

	if info.Type != MediaMovie {
		t.Errorf("type = %v", info.Type)
	}
	if info.Title != "The Matrix" || info.Year != 1999 {
		t.Errorf("basic fields = %+v", info)
	}
	if info.Duration != 8160 {
		t.Errorf("duration = %d, want seconds", info.Duration)
	}
	if info.ImdbID != "tt0133093" || info.TmdbID != "603" {
		t.Errorf("ids = %q %q", info.ImdbID, info.TmdbID)
	}
	if info.Resolution != "1080" || info.Bitrate != 12500 {
		t.Errorf("stream = %q %d", info.Resolution, info.Bitrate)
	}
	if info.FilePath != "/movies/matrix.remux.mkv" {
		t.Errorf("file = %q", info.FilePath)
	}
	if info.BitDepth != 24 || info.SamplingRate != 48000 {
		t.Errorf("audio stream = %d/%d", info.BitDepth, info.SamplingRate)
	}
	if len(info.Genres) != 2 || info.Genres[0] != "Action" {
		t.Errorf("genres = %v", info.Genres)
	}
}

func TestResolveEpisodeFetchesShow(t *testing.T) {
	r, srv := newTestResolver(t, false, map[string]string{
		"/library/metadata/200": episodeJSON,
		"/library/metadata/190": showJSON,
	})

	info, err := r.Resolve(context.Background(), srv.URL, "/library/metadata/200")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}

	if info.Type != MediaEpisode {
		t.Errorf("type = %v", info.Type)
	}
	if info.ShowTitle != "Breaking Bad" || info.Season != 5 || info.Episode != 14 {
		t.Errorf("episode fields = %q S%d E%d", info.ShowTitle, info.Season, info.Episode)
	}
	// Identifiers and genres come from the show, not the episode.
	if info.ImdbID != "tt0903747" || info.TmdbID != "1396" {
		t.Errorf("ids = %q %q", info.ImdbID, info.TmdbID)
	}
	if len(info.Genres) != 1 || info.Genres[0] != "Drama" {
		t.Errorf("genres = %v", info.Genres)
	}
}

func TestResolveTrack(t *testing.T) {
	r, srv := newTestResolver(t, false, map[string]string{
		"/library/metadata/300": trackJSON,
	})

	info, err := r.Resolve(context.Background(), srv.URL, "/library/metadata/300")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}

	if info.Type != MediaTrack {
		t.Errorf("type = %v", info.Type)
	}
	if info.Artist != "Radiohead" || info.Album != "OK Computer" {
		t.Errorf("track fields = %q / %q", info.Artist, info.Album)
	}
	if info.AudioCodec != "flac" || info.SamplingRate != 44100 {
		t.Errorf("audio = %q %d", info.AudioCodec, info.SamplingRate)
	}
}

func TestResolveTrackFlacAsCD(t *testing.T) {
	r, srv := newTestResolver(t, true, map[string]string{
		"/library/metadata/300": trackJSON,
	})

	info, err := r.Resolve(context.Background(), srv.URL, "/library/metadata/300")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if info.Album != "CD" {
		t.Errorf("album = %q, want CD", info.Album)
	}
}

func TestResolveCaches(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.Write([]byte(movieJSON))
	}))
	t.Cleanup(srv.Close)

	client := NewClient("test-id", "test-token", logging.NewTestLogger())
	r := NewResolver(client, nil, false, logging.NewTestLogger())

	for i := 0; i < 3; i++ {
		if _, err := r.Resolve(context.Background(), srv.URL, "/library/metadata/100"); err != nil {
			t.Fatalf("Resolve: %v", err)
		}
	}
	if calls.Load() != 1 {
		t.Errorf("got %d fetches, want 1", calls.Load())
	}
}
