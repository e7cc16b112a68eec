// Presenced - Plex Presence Bridge for Discord
// Copyright 2026 Presenced contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/presenceforplex/presenced

package main

import (
	"os/exec"
	"runtime"

	"github.com/rs/zerolog"
)

// openBrowser launches the default browser on the sign-in URL. Failure is
// harmless; the URL is always logged so the user can open it by hand.
func openBrowser(url string, logger zerolog.Logger) {
	var cmd *exec.Cmd
	switch runtime.GOOS {
	case "darwin":
		cmd = exec.Command("open", url)
	case "windows":
		cmd = exec.Command("rundll32", "url.dll,FileProtocolHandler", url)
	default:
		cmd = exec.Command("xdg-open", url)
	}
	if err := cmd.Start(); err != nil {
		logger.Debug().Err(err).Msg("Could not launch browser")
	}
}
