package auth

import "errors"

var (
	// ErrInvalidContext means the authContext cookie was missing, could
	// not be decrypted or failed its claims checks. The login must be
	// restarted.
	ErrInvalidContext = errors.New("invalid authorization context")

	// ErrTokenExchange means the provider rejected the authorization
	// code, state or nonce. Terminal for this login attempt; provider
	// detail stays in the logs.
	ErrTokenExchange = errors.New("token exchange failed")

	// ErrUnauthenticated means the session cookie was missing, invalid
	// or expired.
	ErrUnauthenticated = errors.New("unauthenticated")

	// ErrProviderDiscovery means the provider configuration could not be
	// fetched.
	ErrProviderDiscovery = errors.New("provider discovery failed")
)
