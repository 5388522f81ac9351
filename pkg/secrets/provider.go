// Package secrets provides the named credentials of the service: the
// Battle.net client id and secret, the cookie encryption key, the
// Raider.IO API key and the CDN origin secret. Secrets are resolved
// lazily and memoized for the lifetime of the process.
package secrets

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// Well-known secret names.
const (
	NameClientID     = "client_id"
	NameClientSecret = "client_secret"
	NameSessionKey   = "session_key"
	NameRaiderIOKey  = "raiderio_api_key"
	NameOriginSecret = "origin_secret"
)

// ErrSecretUnavailable signals that the backing store could not produce
// the requested secret.
var ErrSecretUnavailable = errors.New("secret unavailable")

type Provider interface {
	Get(ctx context.Context, name string) (string, error)
}

type cachedProvider struct {
	inner  Provider
	mu     sync.Mutex
	values map[string]string
}

// Cached memoizes secrets per name. Fetching the same secret twice under a
// first-access race is harmless, so the lock is held across the fetch only
// to keep the bookkeeping simple.
func Cached(inner Provider) Provider {
	return &cachedProvider{
		inner:  inner,
		values: make(map[string]string),
	}
}

func (c *cachedProvider) Get(ctx context.Context, name string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if value, ok := c.values[name]; ok {
		return value, nil
	}

	value, err := c.inner.Get(ctx, name)
	if err != nil {
		return "", err
	}

	c.values[name] = value
	return value, nil
}

// StaticProvider serves secrets from a fixed map. Used in tests and for
// configurations where the environment is the secret store.
type StaticProvider map[string]string

func (p StaticProvider) Get(_ context.Context, name string) (string, error) {
	value, ok := p[name]
	if !ok || value == "" {
		return "", fmt.Errorf("%w: %s", ErrSecretUnavailable, name)
	}
	return value, nil
}
