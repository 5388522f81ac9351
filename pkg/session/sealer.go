// Package session implements the stateless cookie tokens of the character
// list service. Both token classes are JWT claim sets sealed with direct-key
// JWE: the short-lived authorization context bridging the two legs of the
// redirect dance, and the session carrying the Battle.net token bundle.
// Issuer, audience and expiry are bound into the plaintext before
// encryption, so a token minted for one deployment cannot be replayed
// against another.
package session

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jwe"
	"github.com/lestrrat-go/jwx/v2/jwt"
)

// ErrInvalidToken covers every way a sealed token can fail to open:
// malformed input, wrong key, wrong issuer or audience, expired claims,
// or a token of the other class.
var ErrInvalidToken = errors.New("invalid sealed token")

// Both classes are sealed with the same key, so every token carries its
// class as a claim and each open path insists on its own. Without this a
// session cookie would open as an empty authorization context.
const (
	classClaim   = "token_class"
	classContext = "auth_context"
	classSession = "session"
)

// AuthContext is the transient state of one authorization attempt. It only
// ever exists sealed inside the client's authContext cookie.
type AuthContext struct {
	CodeVerifier string
	State        string
	Nonce        string
}

// Session carries the token bundle obtained at callback time. Opened
// sessions are read-only; the service never re-seals a session.
type Session struct {
	AccessToken  string
	RefreshToken string
	TokenType    string
	ExpiresAt    time.Time
	IDClaims     map[string]interface{}
}

type Sealer struct {
	key      []byte
	issuer   string
	audience string
}

// NewSealer creates a sealer bound to the deployment's own domain. The key
// is used directly as the A256GCM content encryption key and must be
// 32 bytes long.
func NewSealer(key []byte, issuer, audience string) (*Sealer, error) {
	if len(key) != 32 {
		return nil, fmt.Errorf("session key must be 32 bytes, got %d", len(key))
	}
	if issuer == "" || audience == "" {
		return nil, errors.New("issuer and audience are required")
	}
	return &Sealer{
		key:      key,
		issuer:   issuer,
		audience: audience,
	}, nil
}

func (s *Sealer) SealContext(c *AuthContext, ttl time.Duration) (string, error) {
	return s.seal(map[string]interface{}{
		classClaim:      classContext,
		"code_verifier": c.CodeVerifier,
		"state":         c.State,
		"nonce":         c.Nonce,
	}, time.Now().Add(ttl))
}

func (s *Sealer) OpenContext(raw string) (*AuthContext, error) {
	token, err := s.open(raw, classContext)
	if err != nil {
		return nil, err
	}

	c := &AuthContext{
		CodeVerifier: stringClaim(token, "code_verifier"),
		State:        stringClaim(token, "state"),
		Nonce:        stringClaim(token, "nonce"),
	}

	if c.CodeVerifier == "" || c.State == "" || c.Nonce == "" {
		return nil, fmt.Errorf("%w: incomplete authorization context", ErrInvalidToken)
	}

	return c, nil
}

func (s *Sealer) SealSession(sess *Session) (string, error) {
	claims := map[string]interface{}{
		classClaim:     classSession,
		"access_token": sess.AccessToken,
		"token_type":   sess.TokenType,
	}
	if sess.RefreshToken != "" {
		claims["refresh_token"] = sess.RefreshToken
	}
	if sess.IDClaims != nil {
		claims["id_claims"] = sess.IDClaims
	}

	return s.seal(claims, sess.ExpiresAt)
}

func (s *Sealer) OpenSession(raw string) (*Session, error) {
	token, err := s.open(raw, classSession)
	if err != nil {
		return nil, err
	}

	sess := &Session{
		AccessToken:  stringClaim(token, "access_token"),
		RefreshToken: stringClaim(token, "refresh_token"),
		TokenType:    stringClaim(token, "token_type"),
		ExpiresAt:    token.Expiration(),
	}

	if v, ok := token.Get("id_claims"); ok {
		if m, ok := v.(map[string]interface{}); ok {
			sess.IDClaims = m
		}
	}

	if sess.AccessToken == "" {
		return nil, fmt.Errorf("%w: missing access token", ErrInvalidToken)
	}

	return sess, nil
}

func (s *Sealer) seal(claims map[string]interface{}, expiresAt time.Time) (string, error) {
	builder := jwt.NewBuilder().
		Issuer(s.issuer).
		Audience([]string{s.audience}).
		IssuedAt(time.Now()).
		Expiration(expiresAt)

	for name, value := range claims {
		builder = builder.Claim(name, value)
	}

	token, err := builder.Build()
	if err != nil {
		return "", fmt.Errorf("unable to build claims: %w", err)
	}

	payload, err := json.Marshal(token)
	if err != nil {
		return "", fmt.Errorf("unable to serialize claims: %w", err)
	}

	sealed, err := jwe.Encrypt(payload,
		jwe.WithKey(jwa.DIRECT, s.key),
		jwe.WithContentEncryption(jwa.A256GCM),
	)
	if err != nil {
		return "", fmt.Errorf("unable to encrypt token: %w", err)
	}

	return string(sealed), nil
}

func (s *Sealer) open(raw, class string) (jwt.Token, error) {
	payload, err := jwe.Decrypt([]byte(raw), jwe.WithKey(jwa.DIRECT, s.key))
	if err != nil {
		return nil, fmt.Errorf("%w: decryption failed", ErrInvalidToken)
	}

	// the payload is authenticated by the AEAD, no signature to verify
	token, err := jwt.Parse(payload,
		jwt.WithVerify(false),
		jwt.WithValidate(true),
		jwt.WithIssuer(s.issuer),
		jwt.WithAudience(s.audience),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	if stringClaim(token, classClaim) != class {
		return nil, fmt.Errorf("%w: wrong token class", ErrInvalidToken)
	}

	return token, nil
}

func stringClaim(token jwt.Token, name string) string {
	if v, ok := token.Get(name); ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}
