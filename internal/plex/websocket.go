// Presenced - Plex Presence Bridge for Discord
// Copyright 2026 Presenced contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/presenceforplex/presenced

package plex

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/presenceforplex/presenced/internal/metrics"
)

const (
	wsHandshakeTimeout = 10 * time.Second
	wsReadDeadline     = 90 * time.Second
	wsPingInterval     = 30 * time.Second
)

// WSStream consumes a server's websocket notification feed. It is an
// alternative to the event source transport for servers where SSE is
// unreliable behind proxies. Implements suture.Service.
type WSStream struct {
	serverURI string
	token     string
	handler   EventHandler
	logger    zerolog.Logger
}

// NewWSStream creates a websocket notification stream for one server.
func NewWSStream(serverURI, token string, handler EventHandler, logger zerolog.Logger) *WSStream {
	return &WSStream{
		serverURI: serverURI,
		token:     token,
		handler:   handler,
		logger:    logger.With().Str("component", "plex_websocket").Str("server", serverURI).Logger(),
	}
}

func (s *WSStream) String() string {
	return "plex-websocket " + s.serverURI
}

// Serve connects and consumes notifications until ctx is canceled,
// reconnecting with doubling backoff.
func (s *WSStream) Serve(ctx context.Context) error {
	backoff := sseInitialBackoff
	for {
		err := s.consume(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		metrics.RecordStreamReconnect(s.serverURI)
		s.logger.Warn().Err(err).Dur("backoff", backoff).Msg("Websocket dropped")

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

func (s *WSStream) endpoint() (string, error) {
	u, err := url.Parse(s.serverURI)
	if err != nil {
		return "", fmt.Errorf("parse server URI: %w", err)
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	case "http":
		u.Scheme = "ws"
	}
	u.Path = "/:/websockets/notifications"
	u.RawQuery = url.Values{"X-Plex-Token": {s.token}}.Encode()
	return u.String(), nil
}

func (s *WSStream) consume(ctx context.Context) error {
	endpoint, err := s.endpoint()
	if err != nil {
		return err
	}

	dialer := websocket.Dialer{HandshakeTimeout: wsHandshakeTimeout}
	conn, resp, err := dialer.DialContext(ctx, endpoint, nil)
	if err != nil {
		if resp != nil && resp.StatusCode == 401 {
			return ErrBadToken
		}
		return fmt.Errorf("dial websocket: %w", err)
	}
	defer conn.Close()
	s.logger.Info().Msg("Websocket connected")

	conn.SetReadDeadline(time.Now().Add(wsReadDeadline))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(wsReadDeadline))
	})

	// Close the connection when ctx ends so ReadMessage unblocks.
	done := make(chan struct{})
	defer close(done)
	go func() {
		ticker := time.NewTicker(wsPingInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				conn.Close()
				return
			case <-done:
				return
			case <-ticker.C:
				conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(5*time.Second))
			}
		}
	}()

	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("read websocket: %w", err)
		}
		conn.SetReadDeadline(time.Now().Add(wsReadDeadline))
		s.handleMessage(message)
	}
}

func (s *WSStream) handleMessage(message []byte) {
	var container NotificationContainer
	if err := json.Unmarshal(message, &container); err != nil {
		s.logger.Debug().Err(err).Msg("Undecodable websocket message")
		return
	}
	if !strings.EqualFold(container.Container.Type, "playing") {
		return
	}
	for _, n := range container.Container.PlaySessionStateNotification {
		if n.SessionKey == "" {
			continue
		}
		s.logger.Debug().
			Str("session", n.SessionKey).
			Str("state", n.State).
			Msg("Playback event")
		s.handler(s.serverURI, n)
	}
}
