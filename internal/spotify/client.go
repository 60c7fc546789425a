package spotify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/oauth2"
)

// DefaultBaseURL is the Web API root.
const DefaultBaseURL = "https://api.spotify.com/v1"

// Client issues Web API calls on behalf of one session. It is built per
// request from the session's access token and never refreshes it: the token
// lifecycle belongs to the session manager.
type Client struct {
	http    *http.Client
	baseURL string
}

// New wraps base with a static bearer credential. A nil base uses
// http.DefaultClient.
func New(base *http.Client, baseURL, tokenType, accessToken string) *Client {
	if base == nil {
		base = http.DefaultClient
	}
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}

	ctx := context.WithValue(context.Background(), oauth2.HTTPClient, base)
	src := oauth2.StaticTokenSource(&oauth2.Token{
		AccessToken: accessToken,
		TokenType:   tokenType,
	})
	client := oauth2.NewClient(ctx, src)
	client.Timeout = base.Timeout

	return &Client{http: client, baseURL: strings.TrimSuffix(baseURL, "/")}
}

// CurrentlyPlaying returns nil, nil when nothing is playing.
func (c *Client) CurrentlyPlaying(ctx context.Context) (*PlaybackState, error) {
	var state PlaybackState
	found, err := c.doRequest(ctx, http.MethodGet, "/me/player/currently-playing", nil, nil, &state)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, nil
	}
	return &state, nil
}

// RecentlyPlayed returns up to limit most recent plays, newest first.
func (c *Client) RecentlyPlayed(ctx context.Context, limit int) ([]PlayHistory, error) {
	query := url.Values{}
	if limit > 0 {
		query.Set("limit", strconv.Itoa(limit))
	}

	var resp recentlyPlayedResponse
	if _, err := c.doRequest(ctx, http.MethodGet, "/me/player/recently-played", query, nil, &resp); err != nil {
		return nil, err
	}
	return resp.Items, nil
}

// Devices lists the user's available Connect devices.
func (c *Client) Devices(ctx context.Context) ([]Device, error) {
	var resp devicesResponse
	if _, err := c.doRequest(ctx, http.MethodGet, "/me/player/devices", nil, nil, &resp); err != nil {
		return nil, err
	}
	return resp.Devices, nil
}

// TransferPlayback moves playback to deviceID without changing play state.
func (c *Client) TransferPlayback(ctx context.Context, deviceID string) error {
	body := map[string]any{"device_ids": []string{deviceID}}
	_, err := c.doRequest(ctx, http.MethodPut, "/me/player", nil, body, nil)
	return err
}

// StartResumePlayback resumes the current context, or starts uris when given.
func (c *Client) StartResumePlayback(ctx context.Context, deviceID string, uris []string) error {
	var body any
	if len(uris) > 0 {
		body = map[string]any{"uris": uris}
	}
	_, err := c.doRequest(ctx, http.MethodPut, "/me/player/play", deviceQuery(deviceID), body, nil)
	return err
}

// PausePlayback pauses the given device, or the active one when deviceID is empty.
func (c *Client) PausePlayback(ctx context.Context, deviceID string) error {
	_, err := c.doRequest(ctx, http.MethodPut, "/me/player/pause", deviceQuery(deviceID), nil, nil)
	return err
}

// SetVolume sets the device volume in percent.
func (c *Client) SetVolume(ctx context.Context, percent int, deviceID string) error {
	query := deviceQuery(deviceID)
	query.Set("volume_percent", strconv.Itoa(percent))
	_, err := c.doRequest(ctx, http.MethodPut, "/me/player/volume", query, nil, nil)
	return err
}

// Profile returns the signed-in user's /me profile.
func (c *Client) Profile(ctx context.Context) (*User, error) {
	var user User
	if _, err := c.doRequest(ctx, http.MethodGet, "/me", nil, nil, &user); err != nil {
		return nil, err
	}
	return &user, nil
}

func deviceQuery(deviceID string) url.Values {
	query := url.Values{}
	if deviceID != "" {
		query.Set("device_id", deviceID)
	}
	return query
}

// doRequest reports found=false for 204 and empty bodies.
func (c *Client) doRequest(ctx context.Context, method, endpoint string, query url.Values, body, result any) (bool, error) {
	apiURL := c.baseURL + endpoint
	if len(query) > 0 {
		apiURL += "?" + query.Encode()
	}

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return false, fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, apiURL, reader)
	if err != nil {
		return false, fmt.Errorf("create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return false, fmt.Errorf("spotify %s %s: %w", method, endpoint, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return false, decodeAPIError(resp)
	}

	if resp.StatusCode == http.StatusNoContent {
		return false, nil
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return false, fmt.Errorf("read response: %w", err)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return false, nil
	}

	if result != nil {
		if err := json.Unmarshal(data, result); err != nil {
			return false, fmt.Errorf("decode response: %w", err)
		}
	}

	return true, nil
}

func decodeAPIError(resp *http.Response) error {
	apiErr := &APIError{Status: resp.StatusCode, Message: http.StatusText(resp.StatusCode)}

	data, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	var parsed errorBody
	if err := json.Unmarshal(data, &parsed); err == nil {
		if parsed.Error.Message != "" {
			apiErr.Message = parsed.Error.Message
		}
		apiErr.Reason = parsed.Error.Reason
	}

	if apiErr.Reason == "" && resp.StatusCode == http.StatusUnauthorized {
		apiErr.Reason = "INVALID_AUTHENTICATION"
	}

	if retry := resp.Header.Get("Retry-After"); retry != "" {
		if seconds, err := strconv.Atoi(retry); err == nil {
			apiErr.RetryAfter = time.Duration(seconds) * time.Second
		}
	}

	return apiErr
}
