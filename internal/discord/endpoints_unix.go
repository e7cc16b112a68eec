// Presenced - Plex Presence Bridge for Discord
// Copyright 2026 Presenced contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/presenceforplex/presenced

//go:build !windows

package discord

import (
	"fmt"
	"net"
	"os"
	"path/filepath"
	"runtime"
	"time"
)

// socketCandidates returns the Unix socket paths to try, in order.
// Discord rotates through discord-ipc-0..9 when sockets are occupied, and
// the snap and flatpak builds on Linux confine their sockets to
// per-package runtime directories.
func socketCandidates() []string {
	var dirs []string
	if runtime.GOOS == "darwin" {
		if tmp := os.Getenv("TMPDIR"); tmp != "" {
			dirs = append(dirs, tmp)
		}
	} else {
		if xdg := os.Getenv("XDG_RUNTIME_DIR"); xdg != "" {
			dirs = append(dirs, xdg)
		} else if home := os.Getenv("HOME"); home != "" {
			dirs = append(dirs, home)
		}
	}

	var candidates []string
	for _, dir := range dirs {
		prefix := "discord-ipc-"
		if dir == os.Getenv("HOME") {
			prefix = ".discord-ipc-"
		}
		for i := 0; i < 10; i++ {
			candidates = append(candidates, filepath.Join(dir, fmt.Sprintf("%s%d", prefix, i)))
		}
	}

	if runtime.GOOS == "linux" {
		runDir := fmt.Sprintf("/run/user/%d", os.Getuid())
		candidates = append(candidates,
			filepath.Join(runDir, "snap.discord", "discord-ipc-0"),
			filepath.Join(runDir, "app", "com.discordapp.Discord", "discord-ipc-0"),
		)
	}
	return candidates
}

func dialEndpoint(path string, timeout time.Duration) (net.Conn, error) {
	return net.DialTimeout("unix", path, timeout)
}
