// Package totp produces RFC 6238 one-time passwords for broker logins.
package totp

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
)

const (
	// Period is the validity window of a single code.
	Period = 30 * time.Second
	// Placeholder is the sample secret shipped in .env.example.
	Placeholder = "your-angel-totp-secret"
)

// ErrInvalidSecret means no usable shared secret is available. Callers treat it
// as "cannot authenticate", not as a fatal error.
var ErrInvalidSecret = errors.New("totp: invalid or missing secret")

var opts = totp.ValidateOpts{
	Period:    uint(Period / time.Second),
	Digits:    otp.DigitsSix,
	Algorithm: otp.AlgorithmSHA1,
}

// Generate returns the 6-digit code for the window containing at.
func Generate(secret string, at time.Time) (string, error) {
	secret = normalize(secret)
	if secret == "" || secret == strings.ToUpper(Placeholder) {
		return "", ErrInvalidSecret
	}

	code, err := totp.GenerateCodeCustom(secret, at, opts)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidSecret, err)
	}
	return code, nil
}

// Validate reports whether code matches secret at the given time, allowing one
// window of clock skew either side.
func Validate(code, secret string, at time.Time) bool {
	ok, err := totp.ValidateCustom(code, normalize(secret), at, totp.ValidateOpts{
		Period:    opts.Period,
		Skew:      1,
		Digits:    opts.Digits,
		Algorithm: opts.Algorithm,
	})
	return err == nil && ok
}

// Key is a freshly provisioned shared secret.
type Key struct {
	Secret string
	URL    string
}

// NewSecret creates a random base32 secret and its otpauth:// provisioning URL,
// suitable for an authenticator app QR code.
func NewSecret(issuer, account string) (Key, error) {
	k, err := totp.Generate(totp.GenerateOpts{
		Issuer:      issuer,
		AccountName: account,
		Period:      opts.Period,
		Digits:      opts.Digits,
		Algorithm:   opts.Algorithm,
	})
	if err != nil {
		return Key{}, fmt.Errorf("generate totp secret: %w", err)
	}
	return Key{Secret: k.Secret(), URL: k.URL()}, nil
}

// normalize strips the spaces authenticator apps insert for readability.
func normalize(secret string) string {
	return strings.ToUpper(strings.ReplaceAll(strings.TrimSpace(secret), " ", ""))
}
