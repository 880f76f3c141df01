package angel

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/smart-hedge/marketdata-gateway/internal/cache"
	"github.com/smart-hedge/marketdata-gateway/internal/credentials"
	"github.com/smart-hedge/marketdata-gateway/internal/events"
	"github.com/smart-hedge/marketdata-gateway/internal/httpclient"
	"github.com/smart-hedge/marketdata-gateway/internal/metrics"
	"github.com/smart-hedge/marketdata-gateway/pkg/totp"
	"github.com/smart-hedge/marketdata-gateway/pkg/utils"
)

const (
	// TokenCacheKey is the session cache entry holding the current JWT.
	TokenCacheKey = "angel:auth_token"
	// DefaultTokenTTL is how long a session is reused. SmartAPI tokens live
	// longer; this bound is the one enforced.
	DefaultTokenTTL = 8 * time.Hour
)

// AuthConfig configures an Authenticator.
type AuthConfig struct {
	BaseURL  string
	TokenTTL time.Duration
	Identity Identity
}

// Authenticator obtains and caches SmartAPI session tokens.
// Concurrent callers may each log in when the cache is cold; the last write wins.
type Authenticator struct {
	logger   *zap.Logger
	exec     *httpclient.Executor
	cache    cache.Store
	creds    credentials.Provider
	events   events.Publisher
	baseURL  string
	ttl      time.Duration
	identity Identity
	now      func() time.Time
	otp      func(secret string, at time.Time) (string, error)
}

// NewAuthenticator wires the session cache and credential provider into a login flow.
// pub may be nil.
func NewAuthenticator(
	logger *zap.Logger,
	exec *httpclient.Executor,
	store cache.Store,
	creds credentials.Provider,
	pub events.Publisher,
	cfg AuthConfig,
) *Authenticator {
	if logger == nil {
		logger = zap.NewNop()
	}
	if pub == nil {
		pub = events.Nop{}
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultAuthURL
	}
	if cfg.TokenTTL <= 0 {
		cfg.TokenTTL = DefaultTokenTTL
	}
	return &Authenticator{
		logger:   logger,
		exec:     exec,
		cache:    store,
		creds:    creds,
		events:   pub,
		baseURL:  strings.TrimRight(cfg.BaseURL, "/"),
		ttl:      cfg.TokenTTL,
		identity: cfg.Identity.withDefaults(),
		now:      time.Now,
		otp:      totp.Generate,
	}
}

// Token returns a valid session token, logging in when the cached one is absent or expired.
// Errors wrap ErrConfigMissing, ErrAuthFailure, ErrNetworkFailure or ErrMalformedResponse.
func (a *Authenticator) Token(ctx context.Context) (string, error) {
	if tok, ok := a.cached(ctx); ok {
		return tok, nil
	}

	creds, err := a.resolveCredentials(ctx, credentials.Credentials.Validate)
	if err != nil {
		a.fail(ctx, "", err)
		return "", err
	}

	code, err := a.otp(creds.TOTPSecret, a.now())
	if err != nil {
		err = fmt.Errorf("%w: %w", ErrConfigMissing, err)
		a.fail(ctx, creds.ClientCode, err)
		return "", err
	}

	token, err := a.login(ctx, creds, code)
	if err != nil {
		if inv, ok := a.creds.(credentials.Invalidator); ok && errors.Is(err, ErrAuthFailure) {
			inv.Invalidate()
		}
		a.fail(ctx, creds.ClientCode, err)
		return "", err
	}

	expiresAt := a.now().Add(a.ttl)
	if err := cache.SetJSON(ctx, a.cache, TokenCacheKey, CachedToken{Token: token, ExpiresAt: expiresAt}, a.ttl); err != nil {
		a.logger.Warn("angel.auth.cache_write_failed", zap.Error(err))
	}
	if sink, ok := a.creds.(credentials.TokenSink); ok {
		if err := sink.SaveToken(ctx, token, expiresAt); err != nil {
			a.logger.Warn("angel.auth.token_persist_failed", zap.Error(err))
		}
	}

	metrics.IncLogin("ok")
	a.logger.Info("angel.auth.token_refreshed",
		zap.String("client_code", utils.MaskPrefix(creds.ClientCode, 2)),
		zap.Time("expires_at", expiresAt))
	a.publish(ctx, events.TypeSessionRefreshed, creds.ClientCode, "")
	return token, nil
}

// Invalidate drops the cached session, forcing the next Token call to log in.
func (a *Authenticator) Invalidate(ctx context.Context) {
	if err := a.cache.Delete(ctx, TokenCacheKey); err != nil {
		a.logger.Warn("angel.auth.invalidate_failed", zap.Error(err))
		return
	}
	a.logger.Info("angel.auth.token_invalidated")
}

// Login performs a login with an explicit one-time code, bypassing the cache.
// The TOTP secret is not required and the resulting token is not cached.
func (a *Authenticator) Login(ctx context.Context, code string) (string, error) {
	creds, err := a.resolveCredentials(ctx, credentials.Credentials.ValidateLogin)
	if err != nil {
		return "", err
	}
	return a.login(ctx, creds, code)
}

func (a *Authenticator) cached(ctx context.Context) (string, bool) {
	var ct CachedToken
	err := cache.GetJSON(ctx, a.cache, TokenCacheKey, &ct)
	switch {
	case err == nil && ct.Valid(a.now()):
		metrics.IncCacheLookup("session", true)
		return ct.Token, true
	case err != nil && !errors.Is(err, cache.ErrMiss):
		a.logger.Warn("angel.auth.cache_read_failed", zap.Error(err))
	}
	metrics.IncCacheLookup("session", false)
	return "", false
}

func (a *Authenticator) resolveCredentials(ctx context.Context, check func(credentials.Credentials) error) (credentials.Credentials, error) {
	creds, err := a.creds.Credentials(ctx)
	if err != nil {
		return credentials.Credentials{}, fmt.Errorf("%w: %w", ErrConfigMissing, err)
	}
	if err := check(creds); err != nil {
		return credentials.Credentials{}, fmt.Errorf("%w: %w", ErrConfigMissing, err)
	}
	return creds, nil
}

func (a *Authenticator) login(ctx context.Context, creds credentials.Credentials, code string) (string, error) {
	const op = "angel login"

	req, err := httpclient.NewJSONRequest(ctx, http.MethodPost, a.baseURL+pathLogin, LoginRequest{
		ClientCode: creds.ClientCode,
		Password:   creds.Password,
		TOTP:       code,
	})
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}
	id := a.identity
	if creds.APIKey != "" {
		id.APIKey = creds.APIKey
	}
	setHeaders(req, id, "")

	var env Envelope
	if err := a.exec.DoJSON(ctx, req, venueTag+":login", &env); err != nil {
		return "", classify(op, err, loginStatus)
	}
	if !env.OK() {
		return "", rejection(op, &env, ErrAuthFailure)
	}

	var data LoginData
	if len(env.Data) == 0 || string(env.Data) == "null" {
		return "", fmt.Errorf("%s: %w: empty jwtToken", op, ErrAuthFailure)
	}
	if err := json.Unmarshal(env.Data, &data); err != nil {
		return "", fmt.Errorf("%s: %w: %v", op, ErrMalformedResponse, err)
	}
	if data.JWTToken == "" {
		return "", fmt.Errorf("%s: %w: empty jwtToken", op, ErrAuthFailure)
	}
	return data.JWTToken, nil
}

func (a *Authenticator) fail(ctx context.Context, clientCode string, err error) {
	reason := Reason(err)
	metrics.IncLogin(reason)
	if errors.Is(err, ErrConfigMissing) {
		a.logger.Info("angel.auth.not_configured", zap.Error(err))
	} else {
		a.logger.Error("angel.auth.login_failed",
			zap.String("client_code", utils.MaskPrefix(clientCode, 2)),
			zap.String("reason", reason),
			zap.Error(err))
	}
	a.publish(ctx, events.TypeSessionFailed, clientCode, reason)
}

func (a *Authenticator) publish(ctx context.Context, typ, clientCode, reason string) {
	e := events.New(typ, venueTag)
	e.ClientCode = utils.MaskPrefix(clientCode, 2)
	e.Reason = reason
	if err := a.events.Publish(ctx, e); err != nil {
		a.logger.Warn("angel.auth.event_publish_failed",
			zap.String("event_type", typ),
			zap.Error(err))
	}
}
