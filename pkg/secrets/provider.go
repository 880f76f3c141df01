package secrets

import (
	"context"
	"errors"
)

// ErrNotFound is returned when a secret does not exist in the backing manager.
var ErrNotFound = errors.New("secret not found")

// Provider defines a generic secrets manager interface.
type Provider interface {
	// GetSecret retrieves a secret by name and returns its JSON body as a key-value map.
	GetSecret(ctx context.Context, name string) (map[string]string, error)

	// ListSecrets returns the names of all secrets whose name starts with prefix.
	ListSecrets(ctx context.Context, prefix string) ([]string, error)
}
