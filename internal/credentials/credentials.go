// Package credentials supplies the broker login secrets to the auth flow.
package credentials

import (
	"context"
	"errors"
	"fmt"
	"time"

	pkgconfig "github.com/smart-hedge/marketdata-gateway/pkg/config"
)

// Placeholder values shipped in sample configuration. A credential equal to
// one of these is treated as not configured.
var (
	ClientCodePlaceholders = []string{"your-angel-client-id", "smarthedge"}
	MPINPlaceholders       = []string{"your-angel-mpin"}
	TOTPPlaceholders       = []string{"your-angel-totp-secret"}
)

// ErrIncomplete is returned when a required credential is empty or a placeholder.
var ErrIncomplete = errors.New("credentials incomplete")

// Credentials is what the login call needs.
type Credentials struct {
	ClientCode string
	Password   string // MPIN
	TOTPSecret string
	APIKey     string
}

// Validate checks that client code, MPIN and TOTP secret are configured.
// The API key is optional.
func (c Credentials) Validate() error {
	if err := c.ValidateLogin(); err != nil {
		return err
	}
	if pkgconfig.IsPlaceholder(c.TOTPSecret, TOTPPlaceholders...) {
		return fmt.Errorf("%w: TOTP secret not configured", ErrIncomplete)
	}
	return nil
}

// ValidateLogin checks only what a login with an externally supplied code needs.
func (c Credentials) ValidateLogin() error {
	switch {
	case pkgconfig.IsPlaceholder(c.ClientCode, ClientCodePlaceholders...):
		return fmt.Errorf("%w: client code not configured", ErrIncomplete)
	case pkgconfig.IsPlaceholder(c.Password, MPINPlaceholders...):
		return fmt.Errorf("%w: MPIN not configured", ErrIncomplete)
	}
	return nil
}

// Provider resolves the credentials for the configured broker account.
type Provider interface {
	Credentials(ctx context.Context) (Credentials, error)
}

// Invalidator is implemented by providers that cache credentials and can drop
// them, for example after the broker rejects a login.
type Invalidator interface {
	Invalidate()
}

// TokenSink is implemented by providers that keep the issued session token
// alongside the credentials.
type TokenSink interface {
	SaveToken(ctx context.Context, token string, expiry time.Time) error
}

// Static returns the same credentials on every call. It backs the env source.
type Static struct {
	creds Credentials
}

// NewStatic wraps fixed credentials, typically read from ANGEL_* variables.
func NewStatic(c Credentials) *Static {
	return &Static{creds: c}
}

func (s *Static) Credentials(context.Context) (Credentials, error) {
	return s.creds, nil
}
