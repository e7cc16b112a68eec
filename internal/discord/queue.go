// Presenced - Plex Presence Bridge for Discord
// Copyright 2026 Presenced contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/presenceforplex/presenced

package discord

import (
	"sync"
	"time"

	"github.com/presenceforplex/presenced/internal/metrics"
)

// Discord throttles Rich Presence updates aggressively, so outgoing frames
// pass through a dual-window limiter.
const (
	minFrameInterval = 1 * time.Second
	longWindow       = 15 * time.Second
	longWindowMax    = 5
	shortWindow      = 5 * time.Second
	shortWindowMax   = 3
)

// Queue coalesces presence updates into a single pending slot and meters
// sends against Discord's rate limits. When updates arrive faster than the
// limiter allows, only the most recent one is kept; intermediate states
// are superseded, never sent late.
type Queue struct {
	mu        sync.Mutex
	pending   []byte
	hasUpdate bool
	sendTimes []time.Time

	now func() time.Time
}

// NewQueue creates an empty update queue.
func NewQueue() *Queue {
	return &Queue{now: time.Now}
}

// Push stores payload as the pending update, replacing any update not yet
// sent.
func (q *Queue) Push(payload []byte) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.hasUpdate {
		metrics.PresenceUpdatesCoalesced.Inc()
	}
	q.pending = payload
	q.hasUpdate = true
}

// Pop returns the pending update if one exists and the rate limiter allows
// a send now. On success the slot is cleared and the send is recorded
// against both rate windows.
func (q *Queue) Pop() ([]byte, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if !q.hasUpdate {
		return nil, false
	}
	if !q.canSendLocked() {
		metrics.PresenceUpdatesDeferred.Inc()
		return nil, false
	}

	q.sendTimes = append(q.sendTimes, q.now())
	payload := q.pending
	q.pending = nil
	q.hasUpdate = false
	return payload, true
}

// Pending reports whether an update is waiting to be sent.
func (q *Queue) Pending() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.hasUpdate
}

// Restore returns a popped payload after a failed send so it is retried
// on the next connection. The send record from the failed Pop is removed
// from the rate windows. An update pushed since the Pop supersedes the
// restored one.
func (q *Queue) Restore(payload []byte) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.sendTimes) > 0 {
		q.sendTimes = q.sendTimes[:len(q.sendTimes)-1]
	}
	if q.hasUpdate {
		return
	}
	q.pending = payload
	q.hasUpdate = true
}

// canSendLocked applies the three rate constraints: at least one second
// between frames, at most five frames per 15 seconds, at most three frames
// per 5 seconds.
func (q *Queue) canSendLocked() bool {
	now := q.now()

	// Drop send records older than the long window.
	cutoff := now.Add(-longWindow)
	kept := q.sendTimes[:0]
	for _, ts := range q.sendTimes {
		if ts.After(cutoff) {
			kept = append(kept, ts)
		}
	}
	q.sendTimes = kept

	if len(q.sendTimes) > 0 {
		last := q.sendTimes[len(q.sendTimes)-1]
		if now.Sub(last) < minFrameInterval {
			return false
		}
	}
	if len(q.sendTimes)+1 > longWindowMax {
		return false
	}

	shortCutoff := now.Add(-shortWindow)
	shortCount := 0
	for _, ts := range q.sendTimes {
		if ts.After(shortCutoff) {
			shortCount++
		}
	}
	return shortCount+1 <= shortWindowMax
}
