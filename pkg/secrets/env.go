package secrets

import (
	"context"
	"fmt"
	"os"
	"strings"
)

const envPrefix = "CHARLIST_SECRET_"

// EnvProvider resolves secrets from the process environment. The name
// "client_id" maps to CHARLIST_SECRET_CLIENT_ID. Combined with godotenv
// this doubles as a file-backed store for local development.
type EnvProvider struct{}

func (EnvProvider) Get(_ context.Context, name string) (string, error) {
	key := envPrefix + strings.ToUpper(name)
	value := os.Getenv(key)
	if value == "" {
		return "", fmt.Errorf("%w: environment variable %s is not set", ErrSecretUnavailable, key)
	}
	return value, nil
}
