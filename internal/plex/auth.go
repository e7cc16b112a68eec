// Presenced - Plex Presence Bridge for Discord
// Copyright 2026 Presenced contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/presenceforplex/presenced

package plex

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const (
	pinPollAttempts = 30
	pinPollInterval = 10 * time.Second
)

// ErrAuthTimeout is returned when the user does not approve the PIN within
// the polling window.
var ErrAuthTimeout = errors.New("plex: sign-in not completed in time")

type pinResponse struct {
	ID        int64  `json:"id"`
	Code      string `json:"code"`
	AuthToken string `json:"authToken"`
}

type userResponse struct {
	Username string `json:"username"`
	Title    string `json:"title"`
}

// Credentials is the result of a completed PIN sign in.
type Credentials struct {
	Token    string
	Username string
}

// RequestPIN starts a PIN-based sign in and returns the PIN id and the
// browser URL the user must visit to approve it.
func (c *Client) RequestPIN(ctx context.Context) (int64, string, error) {
	var pin pinResponse
	err := c.doJSONRequest(ctx, requestConfig{
		method:    http.MethodPost,
		url:       plexTVBaseURL + "/pins",
		body:      strings.NewReader("strong=true"),
		skipToken: true,
	}, &pin)
	if err != nil {
		return 0, "", fmt.Errorf("request pin: %w", err)
	}

	params := url.Values{}
	params.Set("clientID", c.clientID)
	params.Set("code", pin.Code)
	params.Set("context[device][product]", productName)
	return pin.ID, authAppURL + "?" + params.Encode(), nil
}

// WaitForPIN polls the PIN endpoint until the user approves it, then
// resolves the account username. Gives up after five minutes.
func (c *Client) WaitForPIN(ctx context.Context, pinID int64) (*Credentials, error) {
	pinURL := fmt.Sprintf("%s/pins/%d", plexTVBaseURL, pinID)

	for attempt := 0; attempt < pinPollAttempts; attempt++ {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(pinPollInterval):
		}

		var pin pinResponse
		err := c.doJSONRequest(ctx, requestConfig{
			method:    http.MethodGet,
			url:       pinURL,
			skipToken: true,
		}, &pin)
		if err != nil {
			c.logger.Debug().Err(err).Msg("PIN poll failed")
			continue
		}
		if pin.AuthToken == "" {
			continue
		}

		c.SetToken(pin.AuthToken)
		username, err := c.fetchUsername(ctx)
		if err != nil {
			return nil, fmt.Errorf("resolve account: %w", err)
		}
		c.logger.Info().Str("username", username).Msg("Signed in to Plex")
		return &Credentials{Token: pin.AuthToken, Username: username}, nil
	}
	return nil, ErrAuthTimeout
}

// fetchUsername resolves the signed-in account name. Managed accounts have
// no username, only a title.
func (c *Client) fetchUsername(ctx context.Context) (string, error) {
	var user userResponse
	err := c.doJSONRequest(ctx, requestConfig{
		method: http.MethodGet,
		url:    plexTVBaseURL + "/user",
	}, &user)
	if err != nil {
		return "", err
	}
	if user.Username != "" {
		return user.Username, nil
	}
	return user.Title, nil
}
