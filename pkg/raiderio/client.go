// Package raiderio is a client for the Raider.IO community API, used to
// pull the weekly highest keystone runs per character.
package raiderio

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
)

const defaultBaseURL = "https://raider.io"

const weeklyRunsFields = "mythic_plus_weekly_highest_level_runs"

type ClientOption func(*Client)

func WithBaseURL(baseURL string) ClientOption {
	return func(c *Client) {
		c.baseURL = baseURL
	}
}

func WithHTTPClient(httpClient *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

type Client struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
}

func NewClient(apiKey string, opts ...ClientOption) *Client {
	c := &Client{
		httpClient: http.DefaultClient,
		baseURL:    defaultBaseURL,
		apiKey:     apiKey,
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// CharacterProfile fetches the character profile including the weekly
// highest keystone runs.
func (c *Client) CharacterProfile(ctx context.Context, region, realmSlug, name string) (json.RawMessage, error) {
	params := url.Values{}
	params.Set("access_key", c.apiKey)
	params.Set("region", region)
	params.Set("realm", realmSlug)
	params.Set("name", strings.ToLower(name))
	params.Set("fields", weeklyRunsFields)

	requestURL := fmt.Sprintf("%s/api/v1/characters/profile?%s", c.baseURL, params.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, requestURL, nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("raiderio: request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("raiderio: unable to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("raiderio: unexpected status %d: %s", resp.StatusCode, string(body))
	}

	return json.RawMessage(body), nil
}
