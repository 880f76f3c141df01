package angel

import (
	"encoding/json"
	"time"
)

// LoginRequest is the loginByPassword payload.
type LoginRequest struct {
	ClientCode string `json:"clientcode"`
	Password   string `json:"password"`
	TOTP       string `json:"totp"`
}

// LoginData is the data block of a successful login.
type LoginData struct {
	JWTToken     string `json:"jwtToken"`
	RefreshToken string `json:"refreshToken,omitempty"`
	FeedToken    string `json:"feedToken,omitempty"`
}

// MarketQuery is the body of the gainersLosers and OIBuildup calls.
type MarketQuery struct {
	DataType   string `json:"datatype"`
	ExpiryType string `json:"expirytype"`
}

// Envelope is the common SmartAPI response wrapper. Some endpoints report
// the outcome as "status", others as "success".
type Envelope struct {
	Status    *bool           `json:"status,omitempty"`
	Success   *bool           `json:"success,omitempty"`
	Message   string          `json:"message"`
	ErrorCode string          `json:"errorcode"`
	Data      json.RawMessage `json:"data"`
}

// OK reports the normalized success flag: "status" when present, else "success".
func (e *Envelope) OK() bool {
	switch {
	case e.Status != nil:
		return *e.Status
	case e.Success != nil:
		return *e.Success
	default:
		return false
	}
}

// CachedToken is the session entry stored under TokenCacheKey.
type CachedToken struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Valid reports whether the token can still be used at now.
func (c CachedToken) Valid(now time.Time) bool {
	return c.Token != "" && now.Before(c.ExpiresAt)
}
