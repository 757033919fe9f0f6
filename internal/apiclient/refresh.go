package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/erauner12/shopbook/internal/metrics"
)

type refreshRequest struct {
	Refresh string `json:"refresh"`
}

type refreshResponse struct {
	Access string `json:"access"`
}

// refresh obtains a new access token to replace stale. Concurrent callers
// holding the same stale token share one refresh call. The shared call is
// detached from the caller's context so one caller giving up does not fail
// the others.
func (c *Client) refresh(ctx context.Context, stale string, logger *zerolog.Logger) (string, error) {
	ch := c.refreshes.DoChan(stale, func() (any, error) {
		return c.doRefresh(context.WithoutCancel(ctx), stale, logger)
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return "", res.Err
		}
		return res.Val.(string), nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

func (c *Client) doRefresh(ctx context.Context, stale string, logger *zerolog.Logger) (string, error) {
	creds, err := c.creds.Credentials(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to read credentials: %w", err)
	}

	// A request that started earlier may already have refreshed
	if creds.AccessToken != "" && creds.AccessToken != stale {
		metrics.RefreshTotal.WithLabelValues("reused").Inc()
		logger.Debug().Msg("access token already refreshed - reusing")
		return creds.AccessToken, nil
	}

	if creds.RefreshToken == "" {
		metrics.RefreshTotal.WithLabelValues("no_refresh_token").Inc()
		return "", errNoRefreshToken
	}

	payload, err := json.Marshal(refreshRequest{Refresh: creds.RefreshToken})
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url(c.refreshPath), bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("failed to build refresh request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		metrics.RefreshTotal.WithLabelValues("failed").Inc()
		return "", ErrNetwork{Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		metrics.RefreshTotal.WithLabelValues("failed").Inc()
		return "", ErrNetwork{Err: err}
	}

	switch {
	case resp.StatusCode >= 500:
		metrics.RefreshTotal.WithLabelValues("failed").Inc()
		return "", ErrStatus{StatusCode: resp.StatusCode, Body: body}
	case resp.StatusCode >= 400:
		metrics.RefreshTotal.WithLabelValues("failed").Inc()
		return "", ErrRefreshRejected{StatusCode: resp.StatusCode}
	}

	var out refreshResponse
	if err := json.Unmarshal(body, &out); err != nil || out.Access == "" {
		metrics.RefreshTotal.WithLabelValues("failed").Inc()
		return "", ErrRefreshRejected{}
	}

	current, err := c.creds.SwapAccessToken(ctx, stale, out.Access)
	if err != nil {
		return "", fmt.Errorf("failed to store refreshed token: %w", err)
	}
	if current == "" {
		// Credentials were cleared while the refresh was in flight
		metrics.RefreshTotal.WithLabelValues("failed").Inc()
		return "", errNoRefreshToken
	}

	metrics.RefreshTotal.WithLabelValues("success").Inc()
	logger.Info().Msg("access token refreshed")
	return current, nil
}
