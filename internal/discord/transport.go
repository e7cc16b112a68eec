// Presenced - Plex Presence Bridge for Discord
// Copyright 2026 Presenced contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/presenceforplex/presenced

package discord

import (
	"errors"
	"net"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// ErrNotConnected is returned by transport operations when no socket is
// open.
var ErrNotConnected = errors.New("discord: not connected")

// ErrNoEndpoint is returned by Open when none of the candidate sockets
// accept a connection, which usually means Discord is not running.
var ErrNoEndpoint = errors.New("discord: no IPC endpoint available")

const dialTimeout = 2 * time.Second

// Transport owns a single connection to the Discord client socket. All
// methods are safe for concurrent use; read and write failures mark the
// transport disconnected so the supervisor can reconnect.
type Transport struct {
	mu        sync.Mutex
	conn      net.Conn
	connected bool
	logger    zerolog.Logger
}

// NewTransport creates an unconnected transport.
func NewTransport(logger zerolog.Logger) *Transport {
	return &Transport{
		logger: logger.With().Str("component", "discord_transport").Logger(),
	}
}

// Open tries each candidate endpoint in order and keeps the first that
// accepts a connection. Opening an already open transport closes the old
// socket first.
func (t *Transport) Open() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.conn != nil {
		t.conn.Close()
		t.conn = nil
		t.connected = false
	}

	for _, path := range socketCandidates() {
		conn, err := dialEndpoint(path, dialTimeout)
		if err != nil {
			t.logger.Trace().Str("endpoint", path).Err(err).Msg("Endpoint unavailable")
			continue
		}
		t.logger.Debug().Str("endpoint", path).Msg("Connected to Discord IPC socket")
		t.conn = conn
		t.connected = true
		return nil
	}
	return ErrNoEndpoint
}

// Connected reports whether the transport believes the socket is usable.
func (t *Transport) Connected() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.connected
}

// WriteFrame encodes and writes a single frame. A write failure closes the
// socket and marks the transport disconnected.
func (t *Transport) WriteFrame(op Opcode, payload []byte) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if !t.connected || t.conn == nil {
		return ErrNotConnected
	}
	if _, err := t.conn.Write(EncodeFrame(op, payload)); err != nil {
		t.closeLocked()
		return err
	}
	return nil
}

// ReadFrame blocks until a full frame arrives or deadline passes. A read
// failure closes the socket and marks the transport disconnected.
func (t *Transport) ReadFrame(deadline time.Duration) (Frame, error) {
	t.mu.Lock()
	conn := t.conn
	connected := t.connected
	t.mu.Unlock()

	if !connected || conn == nil {
		return Frame{}, ErrNotConnected
	}
	if deadline > 0 {
		conn.SetReadDeadline(time.Now().Add(deadline))
		defer conn.SetReadDeadline(time.Time{})
	}

	frame, err := ReadFrame(conn)
	if err != nil {
		t.mu.Lock()
		t.closeLocked()
		t.mu.Unlock()
		return Frame{}, err
	}
	return frame, nil
}

// Close shuts the socket down. Safe to call repeatedly.
func (t *Transport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.closeLocked()
	return nil
}

func (t *Transport) closeLocked() {
	if t.conn != nil {
		t.conn.Close()
		t.conn = nil
	}
	t.connected = false
}
