// Presenced - Plex Presence Bridge for Discord
// Copyright 2026 Presenced contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/presenceforplex/presenced

//go:build windows

package discord

import (
	"fmt"
	"net"
	"time"

	"github.com/Microsoft/go-winio"
)

// socketCandidates returns the named pipe paths to try, in order.
func socketCandidates() []string {
	candidates := make([]string, 0, 10)
	for i := 0; i < 10; i++ {
		candidates = append(candidates, fmt.Sprintf(`\\.\pipe\discord-ipc-%d`, i))
	}
	return candidates
}

func dialEndpoint(path string, timeout time.Duration) (net.Conn, error) {
	return winio.DialPipe(path, &timeout)
}
