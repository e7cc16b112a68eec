// Presenced - Plex Presence Bridge for Discord
// Copyright 2026 Presenced contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/presenceforplex/presenced

package discord

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog"

	"github.com/presenceforplex/presenced/internal/metrics"
)

// ipcTransport abstracts the socket layer so the connection logic can be
// tested against an in-memory implementation.
type ipcTransport interface {
	Open() error
	Connected() bool
	WriteFrame(op Opcode, payload []byte) error
	ReadFrame(deadline time.Duration) (Frame, error)
	Close() error
}

const (
	// sleepSlice is the granularity of all waits, so shutdown and queue
	// drains stay responsive during long backoffs.
	sleepSlice = 500 * time.Millisecond

	// healthSlice paces the connected loop; every healthChecks slices the
	// connection liveness is verified.
	healthSlice  = 100 * time.Millisecond
	healthChecks = 600

	// drainEvery is how many slices pass between queue drain attempts.
	drainEvery = 10

	// pingIdleThreshold skips the liveness ping when a frame was written
	// recently enough to prove the socket alive.
	pingIdleThreshold = 60 * time.Second

	// maxPendingReads bounds how many queued inbound frames a liveness
	// check will skip while waiting for its pong.
	maxPendingReads = 8

	maxBackoff    = 60 * time.Second
	backoffPerTry = 5 * time.Second
	readTimeout   = 5 * time.Second
	rpcVersion    = 1
)

// Client maintains a supervised connection to the Discord client and
// delivers rate-limited presence updates over it. It implements
// suture.Service.
type Client struct {
	clientID  string
	transport ipcTransport
	queue     *Queue
	logger    zerolog.Logger

	nonce atomic.Uint64
	pid   int

	mu        sync.Mutex
	lastWrite time.Time

	onConnected    func()
	onDisconnected func()
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithCallbacks registers hooks invoked once per connection transition.
func WithCallbacks(onConnected, onDisconnected func()) ClientOption {
	return func(c *Client) {
		c.onConnected = onConnected
		c.onDisconnected = onDisconnected
	}
}

// withTransport swaps the socket layer, for tests.
func withTransport(t ipcTransport) ClientOption {
	return func(c *Client) { c.transport = t }
}

// NewClient creates a client for the given Discord application ID.
func NewClient(clientID string, logger zerolog.Logger, opts ...ClientOption) *Client {
	c := &Client{
		clientID: clientID,
		queue:    NewQueue(),
		logger:   logger.With().Str("component", "discord_client").Logger(),
		pid:      os.Getpid(),
	}
	c.transport = NewTransport(logger)
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) String() string { return "discord-client" }

// Connected reports whether the underlying socket is open and handshaken.
func (c *Client) Connected() bool {
	return c.transport.Connected()
}

// Serve runs the connection loop until ctx is canceled: connect and
// handshake, hold the connection with periodic liveness checks, and back
// off between attempts. Queued presence updates are drained in every
// phase so a reconnect delivers the latest state promptly.
func (c *Client) Serve(ctx context.Context) error {
	defer c.transport.Close()

	attempts := 0
	for {
		if err := c.connect(); err != nil {
			attempts++
			backoff := time.Duration(attempts) * backoffPerTry
			if backoff > maxBackoff {
				backoff = maxBackoff
			}
			c.logger.Debug().
				Int("attempt", attempts).
				Dur("backoff", backoff).
				Err(err).
				Msg("Discord connection failed")
			if err := c.wait(ctx, backoff); err != nil {
				return err
			}
			continue
		}

		attempts = 0
		c.logger.Info().Msg("Connected to Discord")
		if c.onConnected != nil {
			c.onConnected()
		}

		err := c.hold(ctx)
		c.transport.Close()
		if c.onDisconnected != nil {
			c.onDisconnected()
		}
		if err != nil {
			return err
		}
		c.logger.Warn().Msg("Disconnected from Discord, reconnecting")
	}
}

// connect opens the socket and performs the RPC handshake. The connection
// is only considered usable after Discord answers with a READY event.
func (c *Client) connect() error {
	if err := c.transport.Open(); err != nil {
		return err
	}

	payload, err := json.Marshal(map[string]any{
		"client_id": c.clientID,
		"v":         rpcVersion,
	})
	if err != nil {
		return fmt.Errorf("marshal handshake: %w", err)
	}
	if err := c.writeFrame(OpHandshake, payload); err != nil {
		c.transport.Close()
		return fmt.Errorf("send handshake: %w", err)
	}

	frame, err := c.transport.ReadFrame(readTimeout)
	if err != nil {
		c.transport.Close()
		return fmt.Errorf("read handshake response: %w", err)
	}
	if frame.Op != OpFrame {
		c.transport.Close()
		return fmt.Errorf("unexpected handshake response opcode %s", frame.Op)
	}

	var resp struct {
		Evt string `json:"evt"`
	}
	if err := json.Unmarshal(frame.Payload, &resp); err != nil {
		c.transport.Close()
		return fmt.Errorf("decode handshake response: %w", err)
	}
	if resp.Evt != "READY" {
		c.transport.Close()
		return fmt.Errorf("handshake rejected: evt=%q", resp.Evt)
	}
	return nil
}

// hold keeps a healthy connection busy: drain the queue once a second and
// verify liveness once a minute. Returns nil when the connection dropped
// and a reconnect should follow, or ctx.Err() on shutdown.
func (c *Client) hold(ctx context.Context) error {
	for {
		for i := 0; i < healthChecks; i++ {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(healthSlice):
			}
			if i%drainEvery == drainEvery-1 {
				if !c.drain() {
					return nil
				}
			}
		}
		if !c.checkAlive() {
			return nil
		}
	}
}

// checkAlive pings Discord unless a recent write already proved the socket
// usable.
func (c *Client) checkAlive() bool {
	c.mu.Lock()
	idle := time.Since(c.lastWrite)
	c.mu.Unlock()
	if idle < pingIdleThreshold {
		return true
	}

	if err := c.writeFrame(OpPing, nil); err != nil {
		return false
	}
	// Earlier SET_ACTIVITY acks may still be queued ahead of the pong.
	for i := 0; i < maxPendingReads; i++ {
		frame, err := c.transport.ReadFrame(readTimeout)
		if err != nil {
			return false
		}
		switch frame.Op {
		case OpPong:
			return true
		case OpFrame:
			continue
		case OpPing:
			if err := c.writeFrame(OpPong, nil); err != nil {
				return false
			}
		default:
			c.logger.Warn().Str("opcode", frame.Op.String()).Msg("Unexpected ping response")
			return false
		}
	}
	return false
}

// wait sleeps for the given duration in short slices, draining the queue
// periodically so a connection that comes back mid-backoff is not starved.
func (c *Client) wait(ctx context.Context, d time.Duration) error {
	slices := int(d / sleepSlice)
	for i := 0; i < slices; i++ {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(sleepSlice):
		}
		if i%drainEvery == drainEvery-1 && c.transport.Connected() {
			c.drain()
		}
	}
	return nil
}

// drain sends the pending update if the rate limiter allows. Returns false
// when the write failed and the connection must be rebuilt; the update
// goes back into the queue so the next connection delivers it.
func (c *Client) drain() bool {
	payload, ok := c.queue.Pop()
	if !ok {
		return true
	}
	if err := c.writeFrame(OpFrame, payload); err != nil {
		c.logger.Warn().Err(err).Msg("Presence write failed")
		c.queue.Restore(payload)
		return false
	}
	metrics.RecordPresenceFrame()
	c.logger.Debug().Msg("Presence update sent")
	return true
}

func (c *Client) writeFrame(op Opcode, payload []byte) error {
	if err := c.transport.WriteFrame(op, payload); err != nil {
		return err
	}
	c.mu.Lock()
	c.lastWrite = time.Now()
	c.mu.Unlock()
	return nil
}

// setActivityCommand is the SET_ACTIVITY envelope. A nil activity clears
// the presence.
type setActivityCommand struct {
	Cmd   string           `json:"cmd"`
	Args  setActivityArgs  `json:"args"`
	Nonce string           `json:"nonce"`
}

type setActivityArgs struct {
	PID      int       `json:"pid"`
	Activity *Activity `json:"activity"`
}

// UpdatePresence queues an activity for delivery. The queue keeps only the
// most recent update; a burst of calls produces a single frame.
func (c *Client) UpdatePresence(act *Activity) error {
	if act == nil {
		return errors.New("discord: nil activity")
	}
	return c.enqueue(act)
}

// ClearPresence queues a presence removal. Like updates, clears pass
// through the rate limiter.
func (c *Client) ClearPresence() error {
	return c.enqueue(nil)
}

func (c *Client) enqueue(act *Activity) error {
	cmd := setActivityCommand{
		Cmd:   "SET_ACTIVITY",
		Args:  setActivityArgs{PID: c.pid, Activity: act},
		Nonce: fmt.Sprintf("%d", c.nonce.Add(1)),
	}
	payload, err := json.Marshal(cmd)
	if err != nil {
		return fmt.Errorf("marshal activity: %w", err)
	}
	c.queue.Push(payload)
	return nil
}
