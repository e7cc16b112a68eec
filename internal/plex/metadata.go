// Presenced - Plex Presence Bridge for Discord
// Copyright 2026 Presenced contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/presenceforplex/presenced

package plex

import (
	"context"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/presenceforplex/presenced/internal/cache"
	"github.com/presenceforplex/presenced/internal/metrics"
)

const mediaCacheTTL = 1 * time.Hour

// Resolver turns a metadata key into a fully populated MediaInfo, pulling
// in grandparent metadata for episodes and external identifiers for anime.
// Resolved items are cached per server.
type Resolver struct {
	client   *Client
	external *External
	cache    *cache.TTL[MediaInfo]
	logger   zerolog.Logger

	// flacAsCD relabels lossless albums as "CD" in the presence.
	flacAsCD bool
}

// NewResolver creates a metadata resolver.
func NewResolver(client *Client, external *External, flacAsCD bool, logger zerolog.Logger) *Resolver {
	return &Resolver{
		client:   client,
		external: external,
		cache:    cache.New[MediaInfo](mediaCacheTTL),
		logger:   logger.With().Str("component", "metadata_resolver").Logger(),
		flacAsCD: flacAsCD,
	}
}

// CacheStats reports the metadata cache counters.
func (r *Resolver) CacheStats() cache.Stats {
	return r.cache.GetStats()
}

// Resolve fetches and extracts the media details behind a metadata key.
func (r *Resolver) Resolve(ctx context.Context, serverURI, key string) (MediaInfo, error) {
	cacheKey := serverURI + key
	if info, ok := r.cache.Get(cacheKey); ok {
		metrics.CacheHits.WithLabelValues("media").Inc()
		return info, nil
	}
	metrics.CacheMisses.WithLabelValues("media").Inc()

	meta, err := r.client.Metadata(ctx, serverURI, key)
	if err != nil {
		return MediaInfo{}, err
	}

	info := r.extract(ctx, serverURI, meta)
	r.cache.Set(cacheKey, info)
	return info, nil
}

func (r *Resolver) extract(ctx context.Context, serverURI string, meta *itemMetadata) MediaInfo {
	info := MediaInfo{
		Title:         meta.Title,
		OriginalTitle: meta.OriginalTitle,
		Summary:       meta.Summary,
		Year:          meta.Year,
		Duration:      meta.Duration / 1000,
		Thumb:         meta.Thumb,
		Album:         meta.ParentTitle,
		Artist:        meta.GrandparentTitle,
		RatingKey:     meta.RatingKey,
		Key:           meta.Key,
		ServerURI:     serverURI,
	}
	extractStreamDetails(&info, meta)

	switch meta.Type {
	case "movie":
		info.Type = MediaMovie
		applyGuids(&info, meta.GUIDs)
		info.Genres = extractGenres(meta.Genres)
		r.resolveAnime(ctx, &info)
	case "episode":
		info.Type = MediaEpisode
		info.ShowTitle = meta.GrandparentTitle
		info.Season = meta.ParentIndex
		info.Episode = meta.Index
		info.GrandparentThumb = meta.GrandparentThumb
		info.GrandparentKey = meta.GrandparentKey
		r.resolveShow(ctx, serverURI, &info, meta)
	case "track":
		info.Type = MediaTrack
		info.ParentThumb = meta.ParentThumb
		if r.flacAsCD && strings.EqualFold(info.AudioCodec, "flac") {
			info.Album = "CD"
		}
		applyGuids(&info, meta.GUIDs)
		info.Genres = extractGenres(meta.Genres)
	default:
		info.Type = MediaUnknown
	}
	return info
}

// resolveShow pulls identifiers and genres from the show-level metadata,
// since episodes rarely carry their own.
func (r *Resolver) resolveShow(ctx context.Context, serverURI string, info *MediaInfo, meta *itemMetadata) {
	if meta.GrandparentKey == "" {
		return
	}
	show, err := r.client.Metadata(ctx, serverURI, meta.GrandparentKey)
	if err != nil {
		r.logger.Debug().Err(err).Str("key", meta.GrandparentKey).Msg("Show metadata fetch failed")
		return
	}
	applyGuids(info, show.GUIDs)
	info.Genres = extractGenres(show.Genres)
	r.resolveAnime(ctx, info)
}

// resolveAnime looks up the MyAnimeList id for items tagged with the Anime
// genre, keyed by the show title for episodes.
func (r *Resolver) resolveAnime(ctx context.Context, info *MediaInfo) {
	if r.external == nil || !hasGenre(info.Genres, "Anime") {
		return
	}
	title := info.Title
	if info.Type == MediaEpisode {
		title = info.ShowTitle
	}
	if info.OriginalTitle != "" {
		title = info.OriginalTitle
	}
	info.MalID = r.external.LookupMAL(ctx, title, info.Year)
}

func extractStreamDetails(info *MediaInfo, meta *itemMetadata) {
	if len(meta.Media) == 0 {
		return
	}
	media := meta.Media[0]
	info.Resolution = media.VideoResolution
	info.Bitrate = media.Bitrate
	info.AudioCodec = media.AudioCodec

	if len(media.Part) == 0 {
		return
	}
	part := media.Part[0]
	info.FilePath = part.File
	for _, stream := range part.Stream {
		if stream.StreamType == 2 {
			info.BitDepth = stream.BitDepth
			info.SamplingRate = stream.SamplingRate
			if stream.Codec != "" {
				info.AudioCodec = stream.Codec
			}
			break
		}
	}
}

// applyGuids extracts external identifiers from Plex guid references,
// which look like imdb://tt0133093 and tmdb://603.
func applyGuids(info *MediaInfo, guids []guidRef) {
	for _, g := range guids {
		switch {
		case strings.HasPrefix(g.ID, "imdb://"):
			info.ImdbID = strings.TrimPrefix(g.ID, "imdb://")
		case strings.HasPrefix(g.ID, "tmdb://"):
			info.TmdbID = strings.TrimPrefix(g.ID, "tmdb://")
		}
	}
}

func extractGenres(genres []genreRef) []string {
	if len(genres) == 0 {
		return nil
	}
	out := make([]string, 0, len(genres))
	for _, g := range genres {
		out = append(out, g.Tag)
	}
	return out
}

func hasGenre(genres []string, want string) bool {
	for _, g := range genres {
		if strings.EqualFold(g, want) {
			return true
		}
	}
	return false
}
