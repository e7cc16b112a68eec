// Presenced - Plex Presence Bridge for Discord
// Copyright 2026 Presenced contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/presenceforplex/presenced

package discord

import (
	"fmt"
	"strings"
	"time"

	"github.com/presenceforplex/presenced/internal/plex"
)

// Discord activity types. Watching and Listening change the verb shown in
// the member list; the zero value renders as "Playing".
const (
	ActivityPlaying   = 0
	ActivityListening = 2
	ActivityWatching  = 3
)

// maxPausedDuration pushes the start timestamp far enough into the future
// that Discord hides the elapsed-time counter while playback is paused.
const maxPausedDuration = 9999 * time.Hour

// Activity is the payload of a SET_ACTIVITY command.
type Activity struct {
	Type       int         `json:"type"`
	Details    string      `json:"details,omitempty"`
	State      string      `json:"state,omitempty"`
	Timestamps *Timestamps `json:"timestamps,omitempty"`
	Assets     *Assets     `json:"assets,omitempty"`
	Buttons    []Button    `json:"buttons,omitempty"`
	Instance   bool        `json:"instance"`
}

// Timestamps holds Unix start and end times for the progress bar.
type Timestamps struct {
	Start int64 `json:"start,omitempty"`
	End   int64 `json:"end,omitempty"`
}

// Assets selects the artwork shown on the presence card.
type Assets struct {
	LargeImage string `json:"large_image,omitempty"`
	LargeText  string `json:"large_text,omitempty"`
	SmallImage string `json:"small_image,omitempty"`
	SmallText  string `json:"small_text,omitempty"`
}

// Button is a clickable link on the presence card. Discord accepts at most
// two.
type Button struct {
	Label string `json:"label"`
	URL   string `json:"url"`
}

// Formats are the user-configurable presence text templates.
type Formats struct {
	Episode string // placeholders: {episode}
	Season  string // placeholders: {season}
	Music   string // placeholders: {title}, {artist}, {album}
	TVShow  string // placeholders: {show_title}, {episode_title}, {season_episode}, {season}, {episode_number}
}

// Toggles control which media kinds and detail fields appear in the
// presence.
type Toggles struct {
	ShowMovies    bool
	ShowTVShows   bool
	ShowMusic     bool
	ShowBitrate   bool
	ShowQuality   bool
	ShowFlac      bool
	GatekeepMusic bool
}

// defaultLargeImage is the asset key of the Plex logo uploaded to the
// Discord application, used when no artwork URL could be resolved.
const defaultLargeImage = "plex_logo"

// BuildActivity converts resolved media info into a Discord activity.
// It returns false when the media kind is disabled by a toggle, meaning
// the presence should not be shown at all.
func BuildActivity(info plex.MediaInfo, formats Formats, toggles Toggles, now time.Time) (*Activity, bool) {
	act := &Activity{Instance: true}

	switch info.Type {
	case plex.MediaMovie:
		if !toggles.ShowMovies {
			return nil, false
		}
		buildMovie(act, info, toggles)
	case plex.MediaEpisode:
		if !toggles.ShowTVShows {
			return nil, false
		}
		buildEpisode(act, info, formats, toggles)
	case plex.MediaTrack:
		if !toggles.ShowMusic {
			return nil, false
		}
		buildTrack(act, info, formats, toggles)
	default:
		act.Type = ActivityPlaying
		act.State = "Playing media"
	}

	switch info.State {
	case plex.StateBuffering:
		act.State = "🔄 Buffering..."
	case plex.StatePaused:
		if act.Assets == nil {
			act.Assets = &Assets{}
		}
		act.Assets.SmallImage = "paused"
		act.Assets.SmallText = "Paused"
	}

	if act.Details == "" {
		if act.Type == ActivityListening {
			act.Details = "Listening to something..."
		} else {
			act.Details = "Watching something..."
		}
	}
	if act.State == "" {
		act.State = "Idle"
	}

	applyTimestamps(act, info, now)
	applyAssets(act, info)
	applyButtons(act, info)

	return act, true
}

func buildMovie(act *Activity, info plex.MediaInfo, toggles Toggles) {
	act.Type = ActivityWatching

	if info.Year > 0 {
		act.Details = fmt.Sprintf("%s (%d)", info.Title, info.Year)
	} else {
		act.Details = info.Title
	}

	var parts []string
	if toggles.ShowQuality {
		if res := formatResolution(info.Resolution); res != "" {
			parts = append(parts, res)
		}
	}
	if toggles.ShowBitrate {
		if br := formatBitrate(info.Bitrate); br != "" {
			parts = append(parts, br)
		}
	}
	if isBluray(info.FilePath) {
		parts = append(parts, "Bluray")
	}
	act.State = strings.Join(parts, " ")
}

func buildEpisode(act *Activity, info plex.MediaInfo, formats Formats, toggles Toggles) {
	act.Type = ActivityWatching
	act.Details = info.ShowTitle

	season := strings.ReplaceAll(formats.Season, "{season}", fmt.Sprintf("%d", info.Season))
	episode := strings.ReplaceAll(formats.Episode, "{episode}", fmt.Sprintf("%d", info.Episode))

	state := formats.TVShow
	state = strings.ReplaceAll(state, "{show_title}", info.ShowTitle)
	state = strings.ReplaceAll(state, "{episode_title}", info.Title)
	state = strings.ReplaceAll(state, "{season_episode}", season+" "+episode)
	state = strings.ReplaceAll(state, "{season}", season)
	state = strings.ReplaceAll(state, "{episode_number}", episode)

	if toggles.ShowQuality {
		if res := formatResolution(info.Resolution); res != "" {
			state += " • " + res
		}
	}
	if toggles.ShowBitrate {
		if br := formatBitrate(info.Bitrate); br != "" {
			state += " • " + br
		}
	}
	if isBluray(info.FilePath) {
		state += " (Bluray)"
	}
	act.State = state
}

func buildTrack(act *Activity, info plex.MediaInfo, formats Formats, toggles Toggles) {
	act.Type = ActivityListening

	if toggles.GatekeepMusic {
		act.Details = "Listening to something.."
		act.State = "In"
		return
	}

	act.Details = info.Title

	state := formats.Music
	state = strings.ReplaceAll(state, "{title}", info.Title)
	state = strings.ReplaceAll(state, "{artist}", info.Artist)
	state = strings.ReplaceAll(state, "{album}", info.Album)

	if toggles.ShowFlac && strings.Contains(strings.ToLower(info.FilePath), "flac") {
		if info.SamplingRate > 0 && info.BitDepth > 0 {
			state += fmt.Sprintf(" 💿 %.1f/%d FLAC", float64(info.SamplingRate)/1000.0, info.BitDepth)
		} else {
			state += " 💿 FLAC"
		}
	}
	act.State = state
}

func applyTimestamps(act *Activity, info plex.MediaInfo, now time.Time) {
	switch info.State {
	case plex.StatePlaying:
		start := now.Unix() - info.Progress
		act.Timestamps = &Timestamps{Start: start}
		if info.Duration > 0 {
			act.Timestamps.End = now.Unix() + (info.Duration - info.Progress)
		}
	case plex.StatePaused, plex.StateBuffering:
		start := now.Add(maxPausedDuration).Unix()
		act.Timestamps = &Timestamps{Start: start}
		if info.Duration > 0 {
			act.Timestamps.End = start + info.Duration
		}
	}
}

func applyAssets(act *Activity, info plex.MediaInfo) {
	if act.Assets == nil {
		act.Assets = &Assets{}
	}
	if info.ArtworkURL != "" {
		act.Assets.LargeImage = info.ArtworkURL
	} else {
		act.Assets.LargeImage = defaultLargeImage
	}
	if info.Type == plex.MediaEpisode {
		act.Assets.LargeText = info.ShowTitle
	} else {
		act.Assets.LargeText = info.Title
	}
}

func applyButtons(act *Activity, info plex.MediaInfo) {
	if info.MalID != "" {
		act.Buttons = append(act.Buttons, Button{
			Label: "View on MyAnimeList",
			URL:   "https://myanimelist.net/anime/" + info.MalID,
		})
		return
	}
	if info.ImdbID != "" {
		act.Buttons = append(act.Buttons, Button{
			Label: "View on IMDb",
			URL:   "https://www.imdb.com/title/" + info.ImdbID,
		})
	}
}

func isBluray(path string) bool {
	lower := strings.ToLower(path)
	return strings.Contains(lower, "remux") || strings.Contains(lower, "bluray")
}

// formatBitrate renders a kbps value as Mbps. Non-positive values produce
// an empty string.
func formatBitrate(kbps int) string {
	if kbps <= 0 {
		return ""
	}
	return fmt.Sprintf("%.1f Mbps", float64(kbps)/1000.0)
}

// formatResolution normalizes Plex resolution strings for display: bare
// numbers get a "p" suffix and "4k" is capitalized.
func formatResolution(res string) string {
	if res == "" {
		return ""
	}
	allDigits := true
	for _, r := range res {
		if r < '0' || r > '9' {
			allDigits = false
			break
		}
	}
	if allDigits {
		return res + "p"
	}
	if strings.EqualFold(res, "4k") {
		return "4K"
	}
	return res
}
