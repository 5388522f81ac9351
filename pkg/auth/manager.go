// Package auth implements the session lifecycle of the character list
// service: the OAuth2 authorization code flow with PKCE against
// Battle.net, and the sealed cookie tokens that replace any server-side
// session store. The whole per-client state machine (anonymous, started,
// authenticated) is reconstructed from whichever sealed token the client
// presents.
package auth

import (
	"context"
	"encoding/base64"
	"fmt"
	"log/slog"
	"net/url"
	"sync"
	"time"

	"github.com/hashicorp/go-secure-stdlib/nonceutil"
	"github.com/segmentio/ksuid"

	"github.com/wowdash/charlist/pkg/oauth2"
	"github.com/wowdash/charlist/pkg/oidc"
	"github.com/wowdash/charlist/pkg/secrets"
	"github.com/wowdash/charlist/pkg/session"
)

const defaultContextTTL = time.Hour

type Config struct {
	// ProviderIssuer is the OAuth2 provider base URL, e.g.
	// https://oauth.battle.net
	ProviderIssuer string
	// BaseDomain is the deployment's own domain. It becomes issuer and
	// audience of every sealed token and the host of the redirect URI.
	BaseDomain string
	Scopes     []string
	ContextTTL time.Duration
}

type AuthorizationRedirect struct {
	// RedirectURL is the provider authorization URL to send the client to.
	RedirectURL string
	// SealedContext goes into the authContext cookie.
	SealedContext string
	// ContextTTL is the cookie max age.
	ContextTTL time.Duration
}

type SessionGrant struct {
	// SealedSession goes into the session cookie.
	SealedSession string
	ExpiresIn     int
}

type Manager struct {
	cfg     Config
	secrets secrets.Provider
	nonces  nonceutil.NonceService

	mu     sync.Mutex
	client *oidc.Client
	sealer *session.Sealer
}

func NewManager(cfg Config, provider secrets.Provider) (*Manager, error) {
	if cfg.ProviderIssuer == "" || cfg.BaseDomain == "" {
		return nil, fmt.Errorf("provider issuer and base domain are required")
	}
	if cfg.ContextTTL == 0 {
		cfg.ContextTTL = defaultContextTTL
	}

	nonces := nonceutil.NewNonceService()
	if err := nonces.Initialize(); err != nil {
		return nil, fmt.Errorf("could not initialize nonce service: %w", err)
	}

	return &Manager{
		cfg:     cfg,
		secrets: provider,
		nonces:  nonces,
	}, nil
}

// ensureInit resolves the credentials and the provider configuration on
// first use and memoizes them for the process lifetime.
func (m *Manager) ensureInit(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.client != nil {
		return nil
	}

	clientID, err := m.secrets.Get(ctx, secrets.NameClientID)
	if err != nil {
		return err
	}
	clientSecret, err := m.secrets.Get(ctx, secrets.NameClientSecret)
	if err != nil {
		return err
	}
	keyString, err := m.secrets.Get(ctx, secrets.NameSessionKey)
	if err != nil {
		return err
	}

	key, err := base64.StdEncoding.DecodeString(keyString)
	if err != nil {
		return fmt.Errorf("%w: session key is not valid base64", secrets.ErrSecretUnavailable)
	}

	sealer, err := session.NewSealer(key, m.cfg.BaseDomain, m.cfg.BaseDomain)
	if err != nil {
		return fmt.Errorf("%w: %v", secrets.ErrSecretUnavailable, err)
	}

	client, err := oidc.NewClient(ctx, &oidc.Config{
		Issuer:       m.cfg.ProviderIssuer,
		ClientID:     clientID,
		ClientSecret: clientSecret,
		RedirectURI:  fmt.Sprintf("https://%s/api/auth/callback", m.cfg.BaseDomain),
		Scopes:       m.cfg.Scopes,
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrProviderDiscovery, err)
	}

	m.sealer = sealer
	m.client = client
	return nil
}

// BeginAuthorization starts a fresh authorization attempt: new PKCE
// verifier, state and nonce, sealed into the authorization context.
func (m *Manager) BeginAuthorization(ctx context.Context) (*AuthorizationRedirect, error) {
	if err := m.ensureInit(ctx); err != nil {
		return nil, err
	}

	verifier := oauth2.GenerateCodeVerifier()
	state := ksuid.New().String()

	nonce, _, err := m.nonces.Get()
	if err != nil {
		return nil, fmt.Errorf("unable to generate nonce: %w", err)
	}

	authContext := &session.AuthContext{
		CodeVerifier: verifier,
		State:        state,
		Nonce:        nonce,
	}

	sealed, err := m.sealer.SealContext(authContext, m.cfg.ContextTTL)
	if err != nil {
		return nil, fmt.Errorf("unable to seal authorization context: %w", err)
	}

	return &AuthorizationRedirect{
		RedirectURL:   m.client.AuthCodeURL(state, nonce, verifier),
		SealedContext: sealed,
		ContextTTL:    m.cfg.ContextTTL,
	}, nil
}

// CompleteAuthorization consumes the sealed context and redeems the
// authorization code carried in the provider's callback query.
func (m *Manager) CompleteAuthorization(ctx context.Context, rawQuery, sealedContext string) (*SessionGrant, error) {
	if err := m.ensureInit(ctx); err != nil {
		return nil, err
	}

	authContext, err := m.sealer.OpenContext(sealedContext)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidContext, err)
	}

	query, err := url.ParseQuery(rawQuery)
	if err != nil {
		return nil, fmt.Errorf("%w: malformed callback query", ErrTokenExchange)
	}

	if errorCode := query.Get("error"); errorCode != "" {
		slog.Error("provider returned authorization error",
			"error", errorCode,
			"error_description", query.Get("error_description"),
		)
		return nil, ErrTokenExchange
	}

	if query.Get("state") != authContext.State {
		slog.Error("state mismatch in callback")
		return nil, ErrTokenExchange
	}

	code := query.Get("code")
	if code == "" {
		return nil, fmt.Errorf("%w: missing authorization code", ErrTokenExchange)
	}

	// best-effort single-use guard within this execution environment; the
	// authoritative one-shot property is the provider consuming the code
	if ok := m.nonces.Redeem(authContext.Nonce); !ok {
		slog.Warn("nonce already redeemed or unknown", "state", authContext.State)
	}

	tokens, err := m.client.Exchange(ctx, code, authContext.CodeVerifier)
	if err != nil {
		slog.Error("token exchange rejected", "error", err)
		return nil, ErrTokenExchange
	}

	sess := &session.Session{
		AccessToken:  tokens.AccessToken,
		RefreshToken: tokens.RefreshToken,
		TokenType:    tokens.TokenType,
		ExpiresAt:    time.Now().Add(time.Duration(tokens.ExpiresIn) * time.Second),
	}

	if tokens.IDToken != "" {
		idToken, err := m.client.ParseIDToken(ctx, tokens.IDToken)
		if err != nil {
			slog.Error("id token validation failed", "error", err)
			return nil, ErrTokenExchange
		}
		if nonceClaim, _ := idToken.Get("nonce"); nonceClaim != authContext.Nonce {
			slog.Error("nonce mismatch in id token")
			return nil, ErrTokenExchange
		}

		idClaims := map[string]interface{}{
			"sub": idToken.Subject(),
		}
		if battleTag, ok := idToken.Get("battle_tag"); ok {
			idClaims["battle_tag"] = battleTag
		}
		sess.IDClaims = idClaims
	}

	sealedSession, err := m.sealer.SealSession(sess)
	if err != nil {
		return nil, fmt.Errorf("unable to seal session: %w", err)
	}

	return &SessionGrant{
		SealedSession: sealedSession,
		ExpiresIn:     tokens.ExpiresIn,
	}, nil
}

// ValidateSession opens the session cookie value and returns the claims
// for use by the aggregation pipeline. Every failure mode collapses into
// ErrUnauthenticated; the caller restarts the login flow.
func (m *Manager) ValidateSession(ctx context.Context, sealedSession string) (*session.Session, error) {
	if err := m.ensureInit(ctx); err != nil {
		return nil, err
	}

	sess, err := m.sealer.OpenSession(sealedSession)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnauthenticated, err)
	}

	return sess, nil
}
