// Presenced - Plex Presence Bridge for Discord
// Copyright 2026 Presenced contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/presenceforplex/presenced

package plex

import (
	"bufio"
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog"

	"github.com/presenceforplex/presenced/internal/metrics"
)

const (
	sseInitialBackoff = 1 * time.Second
	sseMaxBackoff     = 32 * time.Second
)

// EventHandler receives playback notifications from a server stream.
type EventHandler func(serverURI string, n PlaySessionStateNotification)

// Stream consumes a server's playback event source and forwards playing
// notifications to a handler. It reconnects with doubling backoff and
// implements suture.Service.
type Stream struct {
	client    *Client
	serverURI string
	token     string
	handler   EventHandler
	logger    zerolog.Logger

	// streamClient has no overall timeout; the connection stays open for
	// the lifetime of the stream.
	streamClient *http.Client
}

// NewStream creates an event stream for one server. token overrides the
// client's account token when the server uses a shared access token.
func NewStream(client *Client, serverURI, token string, handler EventHandler, logger zerolog.Logger) *Stream {
	return &Stream{
		client:       client,
		serverURI:    serverURI,
		token:        token,
		handler:      handler,
		logger:       logger.With().Str("component", "plex_stream").Str("server", serverURI).Logger(),
		streamClient: &http.Client{},
	}
}

func (s *Stream) String() string {
	return "plex-stream " + s.serverURI
}

// Serve connects to the event source and consumes it until ctx is
// canceled, reconnecting on failure.
func (s *Stream) Serve(ctx context.Context) error {
	backoff := sseInitialBackoff
	for {
		err := s.consume(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		metrics.RecordStreamReconnect(s.serverURI)
		s.logger.Warn().Err(err).Dur("backoff", backoff).Msg("Event stream dropped")

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
		backoff *= 2
		if backoff > sseMaxBackoff {
			backoff = sseMaxBackoff
		}
	}
}

// consume runs one connection to the event source. Returns when the
// stream ends or errors.
func (s *Stream) consume(ctx context.Context) error {
	url := s.serverURI + "/:/eventsource/notifications?filters=playing"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("create stream request: %w", err)
	}
	s.client.setStandardHeaders(req, true)
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("X-Plex-Token", s.token)

	resp, err := s.streamClient.Do(req)
	if err != nil {
		return fmt.Errorf("connect event stream: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized {
		return ErrBadToken
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("event stream returned %d", resp.StatusCode)
	}
	s.logger.Info().Msg("Event stream connected")

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	var event string
	var data []string
	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case line == "":
			if len(data) > 0 {
				// Multiple data lines form one payload, joined by newlines.
				s.dispatch(event, strings.Join(data, "\n"))
			}
			event, data = "", nil
		case strings.HasPrefix(line, ":"):
			// keepalive comment
		case strings.HasPrefix(line, "event:"):
			event = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
		case strings.HasPrefix(line, "data:"):
			data = append(data, strings.TrimSpace(strings.TrimPrefix(line, "data:")))
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("read event stream: %w", err)
	}
	return fmt.Errorf("event stream closed by server")
}

// dispatch decodes a playing event and forwards it. The event source sends
// the notification object directly as the data payload.
func (s *Stream) dispatch(event, data string) {
	if event != "playing" {
		return
	}
	var n PlaySessionStateNotification
	if err := json.Unmarshal([]byte(data), &n); err != nil {
		s.logger.Debug().Err(err).Msg("Undecodable playing event")
		return
	}
	if n.SessionKey == "" {
		return
	}
	s.logger.Debug().
		Str("session", n.SessionKey).
		Str("state", n.State).
		Msg("Playback event")
	s.handler(s.serverURI, n)
}
