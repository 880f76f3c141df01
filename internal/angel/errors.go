package angel

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/smart-hedge/marketdata-gateway/internal/httpclient"
)

var (
	// ErrConfigMissing means credentials are absent or placeholders; no call was made.
	ErrConfigMissing = errors.New("angel: credentials not configured")
	// ErrAuthFailure means the broker rejected the login or the session token.
	ErrAuthFailure = errors.New("angel: authentication failed")
	// ErrNetworkFailure means no usable HTTP response was received.
	ErrNetworkFailure = errors.New("angel: network failure")
	// ErrMalformedResponse means the broker answered with a body we could not decode.
	ErrMalformedResponse = errors.New("angel: malformed response")
	// ErrRejected means a data call returned a well-formed but unsuccessful envelope.
	ErrRejected = errors.New("angel: request rejected")
)

// Session error codes returned by SmartAPI for invalid, expired or missing tokens.
var sessionErrorCodes = map[string]bool{
	"AG8001": true,
	"AG8002": true,
	"AG8003": true,
}

// Reason returns a short label for err suitable for metrics and events.
func Reason(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrConfigMissing):
		return "config_missing"
	case errors.Is(err, ErrAuthFailure):
		return "auth_failure"
	case errors.Is(err, ErrNetworkFailure):
		return "network_failure"
	case errors.Is(err, ErrMalformedResponse):
		return "malformed_response"
	case errors.Is(err, ErrRejected):
		return "rejected"
	default:
		return "unknown"
	}
}

// classify maps an executor error onto the angel taxonomy. status decides what
// a non-2xx answer means for the calling operation.
func classify(op string, err error, status func(*httpclient.StatusError) error) error {
	var se *httpclient.StatusError
	switch {
	case errors.Is(err, httpclient.ErrTransport):
		return fmt.Errorf("%s: %w: %v", op, ErrNetworkFailure, err)
	case errors.Is(err, httpclient.ErrDecode):
		return fmt.Errorf("%s: %w: %v", op, ErrMalformedResponse, err)
	case errors.As(err, &se):
		return fmt.Errorf("%s: %w: %v", op, status(se), err)
	default:
		return fmt.Errorf("%s: %w: %v", op, ErrNetworkFailure, err)
	}
}

// loginStatus treats every non-2xx login answer as a rejected login.
func loginStatus(*httpclient.StatusError) error { return ErrAuthFailure }

// dataStatus rejects the session only on 401/403 or a session error code.
// Server errors and throttling leave the cached token alone.
func dataStatus(se *httpclient.StatusError) error {
	switch {
	case se.Status == http.StatusUnauthorized, se.Status == http.StatusForbidden:
		return ErrAuthFailure
	case sessionErrorCodes[strings.ToUpper(bodyErrorCode(se.Body))]:
		return ErrAuthFailure
	case se.Status >= http.StatusInternalServerError:
		return ErrNetworkFailure
	default:
		return ErrRejected
	}
}

func bodyErrorCode(body []byte) string {
	var env Envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return ""
	}
	return env.ErrorCode
}

// rejection builds the error for an envelope whose success flag is false.
func rejection(op string, env *Envelope, sentinel error) error {
	if sessionErrorCodes[strings.ToUpper(env.ErrorCode)] {
		sentinel = ErrAuthFailure
	}
	return fmt.Errorf("%s: %w: %s (%s)", op, sentinel, env.Message, env.ErrorCode)
}
