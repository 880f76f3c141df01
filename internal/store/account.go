// Package store persists per-user broker accounts with their credentials
// encrypted at rest.
package store

import (
	"time"

	"github.com/smart-hedge/marketdata-gateway/pkg/utils"
)

// BrokerAccount is one user's account with one broker. Secret fields hold
// plaintext in memory and are sealed by the repository on write.
type BrokerAccount struct {
	ID           int64      `json:"id"`
	UserID       int64      `json:"user_id"`
	BrokerID     int64      `json:"broker_id"`
	ClientCode   string     `json:"client_code"`
	APIKey       string     `json:"-"`
	MPIN         string     `json:"-"`
	TOTPSecret   string     `json:"-"`
	AccessToken  *string    `json:"-"`
	RefreshToken *string    `json:"-"`
	TokenExpiry  *time.Time `json:"token_expiry,omitempty"`
	IsActive     bool       `json:"is_active"`
	Notes        string     `json:"notes,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

// Badge is the display status of an account.
type Badge struct {
	Text    string `json:"text"`
	Variant string `json:"variant"`
	Color   string `json:"color"`
}

// IsTokenExpired reports whether the stored session token has passed its expiry.
// An account without an expiry is never considered expired.
func (a *BrokerAccount) IsTokenExpired(now time.Time) bool {
	if a.TokenExpiry == nil {
		return false
	}
	return a.TokenExpiry.Before(now)
}

// StatusBadge derives the Inactive / Token Expired / Active badge.
func (a *BrokerAccount) StatusBadge(now time.Time) Badge {
	switch {
	case !a.IsActive:
		return Badge{Text: "Inactive", Variant: "secondary", Color: "gray"}
	case a.IsTokenExpired(now):
		return Badge{Text: "Token Expired", Variant: "destructive", Color: "red"}
	default:
		return Badge{Text: "Active", Variant: "default", Color: "green"}
	}
}

// MaskedAPIKey returns the API key with everything but the first and last four characters hidden.
func (a *BrokerAccount) MaskedAPIKey() string {
	return utils.MaskKey(a.APIKey)
}
