// Presenced - Plex Presence Bridge for Discord
// Copyright 2026 Presenced contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/presenceforplex/presenced

// Package plex talks to Plex Media Server and plex.tv: PIN-based sign in,
// server discovery, the playback notification stream, session and metadata
// lookups, and artwork resolution.
package plex

// PlaybackState describes the state of a playback session, plus the two
// sentinel values the tracker reports before initialization and after an
// authentication failure.
type PlaybackState int

const (
	StateStopped PlaybackState = iota
	StatePlaying
	StatePaused
	StateBuffering
	StateBadToken
	StateNotInitialized
)

func (s PlaybackState) String() string {
	switch s {
	case StateStopped:
		return "stopped"
	case StatePlaying:
		return "playing"
	case StatePaused:
		return "paused"
	case StateBuffering:
		return "buffering"
	case StateBadToken:
		return "bad_token"
	case StateNotInitialized:
		return "not_initialized"
	default:
		return "unknown"
	}
}

// parseState maps the notification wire states onto PlaybackState.
func parseState(s string) PlaybackState {
	switch s {
	case "playing":
		return StatePlaying
	case "paused":
		return StatePaused
	case "buffering":
		return StateBuffering
	case "stopped":
		return StateStopped
	default:
		return StateStopped
	}
}

// MediaType classifies what kind of item is playing.
type MediaType int

const (
	MediaUnknown MediaType = iota
	MediaMovie
	MediaEpisode
	MediaTrack
)

func (t MediaType) String() string {
	switch t {
	case MediaMovie:
		return "movie"
	case MediaEpisode:
		return "episode"
	case MediaTrack:
		return "track"
	default:
		return "unknown"
	}
}

// MediaInfo is the fully resolved description of one playback session,
// assembled from the notification stream, the sessions endpoint, and item
// metadata.
type MediaInfo struct {
	State PlaybackState
	Type  MediaType

	Title         string
	OriginalTitle string
	Summary       string
	Year          int

	// Episode fields.
	ShowTitle string
	Season    int
	Episode   int

	// Track fields.
	Artist string
	Album  string

	// Stream details.
	Resolution   string
	Bitrate      int // kbps
	FilePath     string
	AudioCodec   string
	BitDepth     int
	SamplingRate int // Hz

	// External identifiers.
	ImdbID string
	TmdbID string
	MalID  string
	Genres []string

	// Timing, in seconds. StartTime is a Unix timestamp.
	Duration  int64
	Progress  int64
	StartTime int64

	ArtworkURL string

	// Plex bookkeeping.
	SessionKey       string
	RatingKey        string
	Key              string
	GrandparentKey   string
	Thumb            string
	ParentThumb      string
	GrandparentThumb string
	ServerURI        string
	Username         string
	Player           string
}

// NotificationContainer wraps every message on the playback event stream.
type NotificationContainer struct {
	Container struct {
		Type                         string                         `json:"type"`
		Size                         int                            `json:"size"`
		PlaySessionStateNotification []PlaySessionStateNotification `json:"PlaySessionStateNotification"`
	} `json:"NotificationContainer"`
}

// PlaySessionStateNotification is a playback state transition for one
// session.
type PlaySessionStateNotification struct {
	SessionKey       string `json:"sessionKey"`
	ClientIdentifier string `json:"clientIdentifier"`
	GUID             string `json:"guid"`
	RatingKey        string `json:"ratingKey"`
	Key              string `json:"key"`
	ViewOffset       int64  `json:"viewOffset"`
	PlayQueueItemID  int64  `json:"playQueueItemID"`
	State            string `json:"state"`
}

// sessionsResponse is the /status/sessions payload, trimmed to the fields
// the tracker needs to attribute a session to a user and player.
type sessionsResponse struct {
	MediaContainer struct {
		Size     int               `json:"size"`
		Metadata []sessionMetadata `json:"Metadata"`
	} `json:"MediaContainer"`
}

type sessionMetadata struct {
	SessionKey string `json:"sessionKey"`
	User       struct {
		ID    string `json:"id"`
		Title string `json:"title"`
	} `json:"User"`
	Player struct {
		Product string `json:"product"`
		Title   string `json:"title"`
		State   string `json:"state"`
	} `json:"Player"`
}

// metadataResponse is the /library/metadata/<ratingKey> payload.
type metadataResponse struct {
	MediaContainer struct {
		Size     int            `json:"size"`
		Metadata []itemMetadata `json:"Metadata"`
	} `json:"MediaContainer"`
}

type itemMetadata struct {
	RatingKey        string `json:"ratingKey"`
	Key              string `json:"key"`
	GUID             string `json:"guid"`
	Type             string `json:"type"`
	Title            string `json:"title"`
	OriginalTitle    string `json:"originalTitle"`
	Summary          string `json:"summary"`
	Year             int    `json:"year"`
	Thumb            string `json:"thumb"`
	Art              string `json:"art"`
	Duration         int64  `json:"duration"` // milliseconds
	ParentTitle      string `json:"parentTitle"`
	ParentIndex      int    `json:"parentIndex"`
	ParentThumb      string `json:"parentThumb"`
	GrandparentKey   string `json:"grandparentKey"`
	GrandparentTitle string `json:"grandparentTitle"`
	GrandparentThumb string `json:"grandparentThumb"`
	Index            int    `json:"index"`

	GUIDs  []guidRef  `json:"Guid"`
	Genres []genreRef `json:"Genre"`
	Media  []mediaRef `json:"Media"`
}

type guidRef struct {
	ID string `json:"id"`
}

type genreRef struct {
	Tag string `json:"tag"`
}

type mediaRef struct {
	VideoResolution string    `json:"videoResolution"`
	Bitrate         int       `json:"bitrate"`
	AudioCodec      string    `json:"audioCodec"`
	Part            []partRef `json:"Part"`
}

type partRef struct {
	File   string      `json:"file"`
	Stream []streamRef `json:"Stream"`
}

type streamRef struct {
	StreamType   int    `json:"streamType"`
	Codec        string `json:"codec"`
	BitDepth     int    `json:"bitDepth"`
	SamplingRate int    `json:"samplingRate"`
}
