// Package angel talks to the Angel One SmartAPI: session login and the
// market-data endpoints.
package angel

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/smart-hedge/marketdata-gateway/internal/httpclient"
	"github.com/smart-hedge/marketdata-gateway/internal/rate"
)

const (
	// DefaultAuthURL is the SmartAPI auth base; login lives at /user/v1/loginByPassword.
	DefaultAuthURL = "https://apiconnect.angelone.in/rest/auth/angelbroking"
	// DefaultAPIURL is the SmartAPI secure base for market-data calls.
	DefaultAPIURL = "https://apiconnect.angelone.in/rest/secure/angelbroking"

	// DefaultMACAddress is sent as X-MACAddress; SmartAPI requires the header but does not verify it.
	DefaultMACAddress = "fe80::216:3eff:fe1e:5561"
	defaultIP         = "127.0.0.1"

	venueTag = "angel"

	pathLogin         = "/user/v1/loginByPassword"
	pathGainersLosers = "/marketData/v1/gainersLosers"
	pathPutCallRatio  = "/marketData/v1/putCallRatio"
	pathOIBuildup     = "/marketData/v1/OIBuildup"
)

// Identity is the client identification sent with every SmartAPI call.
type Identity struct {
	LocalIP    string
	PublicIP   string
	MACAddress string
	APIKey     string
}

func (id Identity) withDefaults() Identity {
	if id.LocalIP == "" {
		id.LocalIP = defaultIP
	}
	if id.PublicIP == "" {
		id.PublicIP = id.LocalIP
	}
	if id.MACAddress == "" {
		id.MACAddress = DefaultMACAddress
	}
	return id
}

// setHeaders applies the fixed identification headers, plus the bearer token when given.
func setHeaders(req *http.Request, id Identity, token string) {
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-UserType", "USER")
	req.Header.Set("X-SourceID", "WEB")
	req.Header.Set("X-ClientLocalIP", id.LocalIP)
	req.Header.Set("X-ClientPublicIP", id.PublicIP)
	req.Header.Set("X-MACAddress", id.MACAddress)
	if id.APIKey != "" {
		req.Header.Set("X-PrivateKey", id.APIKey)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
}

// errorHandler keeps the status and body of a 4xx answer for classification,
// adding the broker message when present.
func errorHandler(status int, body []byte) error {
	se := &httpclient.StatusError{Venue: venueTag, Status: status, Body: body}
	var env Envelope
	if err := json.Unmarshal(body, &env); err == nil && env.Message != "" {
		return fmt.Errorf("%w: %s (%s)", se, env.Message, env.ErrorCode)
	}
	return se
}

// NewExecutor builds the shared executor for SmartAPI calls. Calls are never
// retried and 4xx answers keep their status via errorHandler. rateMgr and observe may be nil.
func NewExecutor(logger *zap.Logger, httpClient *http.Client, rateMgr *rate.Manager, observe httpclient.Observer) *httpclient.Executor {
	return httpclient.New(logger, rateMgr, httpClient, 0, venueTag, errorHandler).WithObserver(observe)
}

// Client issues authenticated market-data calls.
type Client struct {
	logger   *zap.Logger
	exec     *httpclient.Executor
	baseURL  string
	identity Identity
}

// NewClient creates a market-data client rooted at baseURL.
func NewClient(logger *zap.Logger, exec *httpclient.Executor, baseURL string, id Identity) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	if baseURL == "" {
		baseURL = DefaultAPIURL
	}
	return &Client{
		logger:   logger,
		exec:     exec,
		baseURL:  strings.TrimRight(baseURL, "/"),
		identity: id.withDefaults(),
	}
}

// GainersLosers fetches top gainers or losers in price or open interest.
func (c *Client) GainersLosers(ctx context.Context, token string, q MarketQuery) (*Envelope, error) {
	return c.call(ctx, http.MethodPost, pathGainersLosers, token, q)
}

// PutCallRatio fetches the put-call ratio for index futures.
func (c *Client) PutCallRatio(ctx context.Context, token string) (*Envelope, error) {
	return c.call(ctx, http.MethodGet, pathPutCallRatio, token, nil)
}

// OIBuildup fetches open-interest buildup for the given category.
func (c *Client) OIBuildup(ctx context.Context, token string, q MarketQuery) (*Envelope, error) {
	return c.call(ctx, http.MethodPost, pathOIBuildup, token, q)
}

func (c *Client) call(ctx context.Context, method, path, token string, payload any) (*Envelope, error) {
	op := "angel " + path

	req, err := httpclient.NewJSONRequest(ctx, method, c.baseURL+path, payload)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	setHeaders(req, c.identity, token)

	var env Envelope
	if err := c.exec.DoJSON(ctx, req, venueTag+":marketdata", &env); err != nil {
		c.logger.Warn("angel.marketdata.request_failed",
			zap.String("path", path),
			zap.Error(err))
		return nil, classify(op, err, dataStatus)
	}
	if !env.OK() {
		c.logger.Warn("angel.marketdata.rejected",
			zap.String("path", path),
			zap.String("message", env.Message),
			zap.String("errorcode", env.ErrorCode))
		return nil, rejection(op, &env, ErrRejected)
	}
	return &env, nil
}
