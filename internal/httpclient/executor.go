// Package httpclient executes rate-limited JSON calls against the broker and
// classifies their failures.
package httpclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/smart-hedge/marketdata-gateway/internal/rate"
)

var (
	// ErrTransport marks failures where no HTTP response was received.
	ErrTransport = errors.New("transport failure")
	// ErrDecode marks a 2xx response whose body is not the expected JSON.
	ErrDecode = errors.New("decode failure")
)

// StatusError is returned for non-2xx responses when no error handler is set
// or after server errors exhaust the retry budget.
type StatusError struct {
	Venue  string
	Status int
	Body   []byte
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s returned %d", e.Venue, e.Status)
}

// Observer receives one call per attempt: outcome is the HTTP status code or "error".
type Observer func(venue, outcome string, elapsed time.Duration)

// Backoff returns the retry sleep duration for the given attempt number.
func Backoff(attempt int) time.Duration {
	switch attempt {
	case 0:
		return 100 * time.Millisecond
	case 1:
		return 250 * time.Millisecond
	default:
		return 500 * time.Millisecond
	}
}

// Executor handles rate-limited HTTP execution with JSON decoding.
type Executor struct {
	logger       *zap.Logger
	rateMgr      *rate.Manager
	http         *http.Client
	retryMax     int
	venueTag     string
	errorHandler func(status int, body []byte) error
	observe      Observer
}

// New creates an Executor. errorHandler is called on 4xx responses to produce a
// venue-specific error; if nil a *StatusError is returned.
func New(
	logger *zap.Logger,
	rateMgr *rate.Manager,
	httpClient *http.Client,
	retryMax int,
	venueTag string,
	errorHandler func(status int, body []byte) error,
) *Executor {
	if logger == nil {
		logger = zap.NewNop()
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	if retryMax < 0 {
		retryMax = 0
	}
	return &Executor{
		logger:       logger,
		rateMgr:      rateMgr,
		http:         httpClient,
		retryMax:     retryMax,
		venueTag:     venueTag,
		errorHandler: errorHandler,
	}
}

// WithObserver installs a per-attempt callback, typically a metrics recorder.
func (e *Executor) WithObserver(o Observer) *Executor {
	e.observe = o
	return e
}

// DoJSON executes req and JSON-decodes a 2xx response into out.
// rateLimitKey scopes the rate limiter. Transport failures wrap ErrTransport and
// undecodable bodies wrap ErrDecode.
func (e *Executor) DoJSON(ctx context.Context, req *http.Request, rateLimitKey string, out any) error {
	if e.rateMgr != nil {
		if err := e.rateMgr.Wait(ctx, rateLimitKey); err != nil {
			return fmt.Errorf("rate limit wait: %w", err)
		}
	}

	var lastErr error
	for attempt := 0; attempt <= e.retryMax; attempt++ {
		if attempt > 0 {
			if err := sleep(ctx, Backoff(attempt-1)); err != nil {
				return fmt.Errorf("%w: %v", ErrTransport, err)
			}
			if err := rewind(req); err != nil {
				return err
			}
		}

		status, body, elapsed, err := e.attempt(ctx, req)
		if err != nil {
			lastErr = fmt.Errorf("%w: %v", ErrTransport, err)
			e.logger.Warn(e.venueTag+".http_failed",
				zap.String("url", req.URL.Redacted()),
				zap.Error(err),
				zap.Int("attempt", attempt))
			continue
		}

		if status >= 500 {
			e.logger.Warn(e.venueTag+".server_error",
				zap.Int("status", status),
				zap.String("url", req.URL.Redacted()),
				zap.Duration("latency", elapsed))
			lastErr = &StatusError{Venue: e.venueTag, Status: status, Body: body}
			continue
		}

		if status >= 400 {
			if e.errorHandler != nil {
				return e.errorHandler(status, body)
			}
			return &StatusError{Venue: e.venueTag, Status: status, Body: body}
		}

		if out != nil {
			if err := json.Unmarshal(body, out); err != nil {
				e.logger.Warn(e.venueTag+".decode_failed",
					zap.Error(err),
					zap.String("url", req.URL.Redacted()),
					zap.Int("body_len", len(body)))
				return fmt.Errorf("%w: %v", ErrDecode, err)
			}
		}

		e.logger.Debug(e.venueTag+".http_success",
			zap.String("url", req.URL.Redacted()),
			zap.Int("status", status),
			zap.Duration("elapsed", elapsed))
		return nil
	}

	return fmt.Errorf("%s request failed after %d attempts: %w", e.venueTag, e.retryMax+1, lastErr)
}

func (e *Executor) attempt(ctx context.Context, req *http.Request) (int, []byte, time.Duration, error) {
	start := time.Now()
	resp, err := e.http.Do(req.WithContext(ctx))
	if err != nil {
		e.record("error", time.Since(start))
		return 0, nil, 0, err
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	elapsed := time.Since(start)
	if err != nil {
		e.record("error", elapsed)
		return 0, nil, elapsed, fmt.Errorf("read body: %w", err)
	}
	e.record(strconv.Itoa(resp.StatusCode), elapsed)
	return resp.StatusCode, body, elapsed, nil
}

func (e *Executor) record(outcome string, elapsed time.Duration) {
	if e.observe != nil {
		e.observe(e.venueTag, outcome, elapsed)
	}
}

// rewind restores the request body before a retry.
func rewind(req *http.Request) error {
	if req.Body == nil || req.Body == http.NoBody {
		return nil
	}
	if req.GetBody == nil {
		return fmt.Errorf("request body cannot be replayed")
	}
	body, err := req.GetBody()
	if err != nil {
		return fmt.Errorf("replay body: %w", err)
	}
	req.Body = body
	return nil
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// NewJSONRequest builds a request with a JSON-encoded body (nil body for GET).
func NewJSONRequest(ctx context.Context, method, url string, payload any) (*http.Request, error) {
	var body io.Reader
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("marshal request: %w", err)
		}
		body = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return req, nil
}
