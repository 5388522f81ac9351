// Package battlenet is a thin client for the Battle.net WoW profile APIs.
// All calls are authorized with the access token of the logged-in user and
// return the upstream JSON document unmodified.
package battlenet

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
)

var (
	// ErrUnauthorized means the upstream rejected the access token.
	ErrUnauthorized = errors.New("battlenet: access token rejected")
	// ErrNotFound means the upstream has no data for the requested resource.
	ErrNotFound = errors.New("battlenet: not found")
)

// StatusError is returned for any unexpected upstream status. The body is
// carried along for the failure logs.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("battlenet: unexpected status %d: %s", e.StatusCode, e.Body)
}

type ClientOption func(*Client)

// WithBaseURL overrides the per-region API host. Used by tests to point
// the client at a stub server.
func WithBaseURL(baseURL string) ClientOption {
	return func(c *Client) {
		c.baseURL = func(Region) string { return baseURL }
	}
}

func WithHTTPClient(httpClient *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

type Client struct {
	httpClient *http.Client
	baseURL    func(Region) string
}

func NewClient(opts ...ClientOption) *Client {
	c := &Client{
		httpClient: http.DefaultClient,
		baseURL: func(region Region) string {
			return fmt.Sprintf("https://%s.api.blizzard.com", region)
		},
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// AccountProfile fetches the account-to-character roster for the region.
func (c *Client) AccountProfile(ctx context.Context, region Region, accessToken string) (json.RawMessage, error) {
	return c.get(ctx, region, accessToken, "/profile/user/wow")
}

// CharacterProfile fetches the full character profile summary.
func (c *Client) CharacterProfile(ctx context.Context, region Region, accessToken, realmSlug, name string) (json.RawMessage, error) {
	return c.get(ctx, region, accessToken, characterPath(realmSlug, name, ""))
}

// CharacterEquipment fetches the currently equipped items.
func (c *Client) CharacterEquipment(ctx context.Context, region Region, accessToken, realmSlug, name string) (json.RawMessage, error) {
	return c.get(ctx, region, accessToken, characterPath(realmSlug, name, "/equipment"))
}

// MythicKeystoneProfile fetches the mythic keystone season rating.
func (c *Client) MythicKeystoneProfile(ctx context.Context, region Region, accessToken, realmSlug, name string) (json.RawMessage, error) {
	return c.get(ctx, region, accessToken, characterPath(realmSlug, name, "/mythic-keystone-profile"))
}

// RaidEncounters fetches the raid encounter completion document, grouped
// by expansion.
func (c *Client) RaidEncounters(ctx context.Context, region Region, accessToken, realmSlug, name string) (json.RawMessage, error) {
	return c.get(ctx, region, accessToken, characterPath(realmSlug, name, "/encounters/raids"))
}

func characterPath(realmSlug, name, suffix string) string {
	return fmt.Sprintf("/profile/wow/character/%s/%s%s",
		url.PathEscape(realmSlug),
		url.PathEscape(strings.ToLower(name)),
		suffix,
	)
}

func (c *Client) get(ctx context.Context, region Region, accessToken, path string) (json.RawMessage, error) {
	requestURL := fmt.Sprintf("%s%s?namespace=profile-%s&locale=en_US", c.baseURL(region), path, region)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, requestURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("battlenet: request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("battlenet: unable to read response: %w", err)
	}

	switch resp.StatusCode {
	case http.StatusOK:
		return json.RawMessage(body), nil
	case http.StatusUnauthorized:
		return nil, ErrUnauthorized
	case http.StatusNotFound:
		return nil, ErrNotFound
	default:
		return nil, &StatusError{StatusCode: resp.StatusCode, Body: string(body)}
	}
}
