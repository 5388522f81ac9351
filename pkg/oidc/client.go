// Package oidc implements the relying-party side of an OpenID Connect
// provider. The provider configuration is resolved once from the discovery
// document; signing keys are kept fresh through an auto-refreshing JWKS
// cache.
package oidc

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/lestrrat-go/jwx/v2/jwk"
	"github.com/lestrrat-go/jwx/v2/jwt"
	"github.com/wowdash/charlist/pkg/oauth2"
)

type Config struct {
	Issuer       string
	ClientID     string
	ClientSecret string
	RedirectURI  string
	Scopes       []string
}

type Client struct {
	cfg               *Config
	discoveryDocument *DiscoveryDocument
	keyCache          *jwk.Cache
}

func NewClient(ctx context.Context, cfg *Config) (*Client, error) {
	c := &Client{
		cfg: cfg,
	}

	var err error
	discoveryDocumentURL := strings.TrimSuffix(cfg.Issuer, "/") + "/.well-known/openid-configuration"
	c.discoveryDocument, err = FetchDiscoveryDocument(ctx, discoveryDocumentURL)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch discovery document from %s: %w", discoveryDocumentURL, err)
	}

	if c.discoveryDocument.JwksURI != "" {
		c.keyCache = jwk.NewCache(context.Background())
		c.keyCache.Register(c.discoveryDocument.JwksURI, jwk.WithMinRefreshInterval(15*time.Minute))
		_, err = c.keyCache.Refresh(ctx, c.discoveryDocument.JwksURI)
		if err != nil {
			return nil, fmt.Errorf("failed to fetch signing keys: %w", err)
		}
	}

	return c, nil
}

func (c *Client) Issuer() string {
	return c.discoveryDocument.Issuer
}

func (c *Client) ClientID() string {
	return c.cfg.ClientID
}

func (c *Client) RedirectURI() string {
	return c.cfg.RedirectURI
}

// AuthCodeURL builds the authorization request URL with PKCE, state and
// nonce parameters.
func (c *Client) AuthCodeURL(state, nonce, verifier string, opts ...oauth2.ParameterOption) string {
	codeChallenge := oauth2.S256ChallengeFromVerifier(verifier)
	query := url.Values{}
	query.Add("client_id", c.cfg.ClientID)
	query.Add("redirect_uri", c.cfg.RedirectURI)
	query.Add("response_type", "code")
	query.Add("scope", strings.Join(c.cfg.Scopes, " "))
	query.Add("state", state)
	query.Add("nonce", nonce)
	query.Add("code_challenge", codeChallenge)
	query.Add("code_challenge_method", string(oauth2.CodeChallengeMethodS256))

	for _, opt := range opts {
		opt(query)
	}

	return fmt.Sprintf("%s?%s", c.discoveryDocument.AuthorizationEndpoint, query.Encode())
}

// Exchange redeems an authorization code at the token endpoint using the
// PKCE verifier from the authorization request. Provider rejections are
// returned as *oauth2.Error.
func (c *Client) Exchange(ctx context.Context, code, codeVerifier string, opts ...oauth2.ParameterOption) (*oauth2.TokenResponse, error) {
	params := url.Values{}
	params.Set("client_id", c.cfg.ClientID)
	params.Set("client_secret", c.cfg.ClientSecret)
	params.Set("code", code)
	params.Set("redirect_uri", c.cfg.RedirectURI)
	params.Set("grant_type", "authorization_code")
	params.Set("code_verifier", codeVerifier)

	for _, opt := range opts {
		opt(params)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.discoveryDocument.TokenEndpoint, strings.NewReader(params.Encode()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("unable to exchange code for token: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("unable to read token response body: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		var oidcErr oauth2.Error
		err = json.Unmarshal(body, &oidcErr)
		if err != nil {
			return nil, fmt.Errorf("token endpoint returned status %d", resp.StatusCode)
		}
		return nil, &oidcErr
	}

	var tokenResponse oauth2.TokenResponse
	err = json.Unmarshal(body, &tokenResponse)
	if err != nil {
		return nil, fmt.Errorf("unable to decode token response: %w", err)
	}

	return &tokenResponse, nil
}

// ParseIDToken parses and verifies an ID token against the keys from the
// discovery document.
func (c *Client) ParseIDToken(ctx context.Context, serialized string) (jwt.Token, error) {
	if c.keyCache == nil {
		return nil, fmt.Errorf("provider does not publish signing keys")
	}

	keySet, err := c.keyCache.Get(ctx, c.discoveryDocument.JwksURI)
	if err != nil {
		return nil, fmt.Errorf("unable to get key set: %w", err)
	}

	token, err := jwt.ParseString(
		serialized,
		jwt.WithKeySet(keySet),
		jwt.WithIssuer(c.discoveryDocument.Issuer),
		jwt.WithAudience(c.cfg.ClientID),
		jwt.WithRequiredClaim("nonce"),
		jwt.WithRequiredClaim("exp"),
	)
	if err != nil {
		return nil, fmt.Errorf("unable to parse id token: %w", err)
	}
	return token, nil
}
