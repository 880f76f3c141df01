// Package marketdata serves SmartAPI market data with a short response cache
// and synthetic fallback data whenever the broker cannot be used.
package marketdata

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/smart-hedge/marketdata-gateway/internal/angel"
	"github.com/smart-hedge/marketdata-gateway/internal/cache"
	"github.com/smart-hedge/marketdata-gateway/internal/events"
	"github.com/smart-hedge/marketdata-gateway/internal/metrics"
)

// DefaultTTL bounds how long a broker response is reused.
const DefaultTTL = 5 * time.Minute

// TokenSource yields session tokens; *angel.Authenticator satisfies it.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
	Invalidate(ctx context.Context)
}

// Broker performs the authenticated data calls; *angel.Client satisfies it.
type Broker interface {
	GainersLosers(ctx context.Context, token string, q angel.MarketQuery) (*angel.Envelope, error)
	PutCallRatio(ctx context.Context, token string) (*angel.Envelope, error)
	OIBuildup(ctx context.Context, token string, q angel.MarketQuery) (*angel.Envelope, error)
}

// Result is the outcome of one step: a value or a classified error.
type Result[T any] struct {
	Value T
	Err   error
}

func ok[T any](v T) Result[T]           { return Result[T]{Value: v} }
func failed[T any](err error) Result[T] { return Result[T]{Err: err} }

// then runs next only when r succeeded.
func then[A, B any](r Result[A], next func(A) Result[B]) Result[B] {
	if r.Err != nil {
		return failed[B](r.Err)
	}
	return next(r.Value)
}

// Service answers the three market-data operations. Every call returns a
// response; failures are absorbed into mock data.
type Service struct {
	logger *zap.Logger
	tokens TokenSource
	broker Broker
	cache  cache.Store
	events events.Publisher
	ttl    time.Duration
	mock   *mockSource
}

// NewService wires the fetcher. pub may be nil; ttl <= 0 selects DefaultTTL.
func NewService(logger *zap.Logger, tokens TokenSource, broker Broker, store cache.Store, pub events.Publisher, ttl time.Duration) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	if pub == nil {
		pub = events.Nop{}
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Service{
		logger: logger,
		tokens: tokens,
		broker: broker,
		cache:  store,
		events: pub,
		ttl:    ttl,
		mock:   newMockSource(uint64(time.Now().UnixNano())),
	}
}

// GainersLosers returns top gainers or losers. Empty arguments select
// PercPriceGainers and NEAR.
func (s *Service) GainersLosers(ctx context.Context, dataType, expiryType string) Response[Mover] {
	q := angel.MarketQuery{DataType: orDefault(dataType, DefaultDataType), ExpiryType: orDefault(expiryType, DefaultExpiryType)}
	key := fmt.Sprintf(cacheKeyGainersFormat, q.DataType, q.ExpiryType)

	return fetch(ctx, s, "gainers_losers", key,
		func(ctx context.Context, token string) (*angel.Envelope, error) {
			return s.broker.GainersLosers(ctx, token, q)
		},
		func() Response[Mover] { return s.mock.GainersLosers(q.DataType) })
}

// PutCallRatio returns the put-call ratio of index futures.
func (s *Service) PutCallRatio(ctx context.Context) Response[PCR] {
	return fetch(ctx, s, "pcr", cacheKeyPutCallRatio,
		s.broker.PutCallRatio,
		s.mock.PutCallRatio)
}

// OIBuildup returns open-interest buildup. Empty arguments select Long Built Up and NEAR.
func (s *Service) OIBuildup(ctx context.Context, dataType, expiryType string) Response[OIBuildup] {
	q := angel.MarketQuery{DataType: orDefault(dataType, DefaultOIBuildupType), ExpiryType: orDefault(expiryType, DefaultExpiryType)}
	key := fmt.Sprintf(cacheKeyOIBuildupFormat, q.DataType, q.ExpiryType)

	return fetch(ctx, s, "oi_buildup", key,
		func(ctx context.Context, token string) (*angel.Envelope, error) {
			return s.broker.OIBuildup(ctx, token, q)
		},
		func() Response[OIBuildup] { return s.mock.OIBuildup(q.DataType) })
}

// fetch walks cache → token → broker call and hands the outcome to resolve.
func fetch[T any](
	ctx context.Context,
	s *Service,
	op, key string,
	call func(ctx context.Context, token string) (*angel.Envelope, error),
	fallback func() Response[T],
) Response[T] {
	if r, hit := cached[T](ctx, s, key); hit {
		return r
	}

	res := then(s.token(ctx), func(token string) Result[Response[T]] {
		return decode[T](call(ctx, token))
	})
	return resolve(ctx, s, op, key, res, fallback)
}

func (s *Service) token(ctx context.Context) Result[string] {
	tok, err := s.tokens.Token(ctx)
	if err != nil {
		return failed[string](err)
	}
	return ok(tok)
}

// resolve is the single decision point between real and mock data.
func resolve[T any](ctx context.Context, s *Service, op, key string, res Result[Response[T]], fallback func() Response[T]) Response[T] {
	if res.Err == nil {
		if err := cache.SetJSON(ctx, s.cache, key, res.Value, s.ttl); err != nil {
			s.logger.Warn("marketdata.cache_write_failed", zap.String("key", key), zap.Error(err))
		}
		return res.Value
	}

	reason := angel.Reason(res.Err)
	if errors.Is(res.Err, angel.ErrAuthFailure) {
		s.tokens.Invalidate(ctx)
	}
	metrics.IncFallback(op, reason)
	if errors.Is(res.Err, angel.ErrConfigMissing) {
		s.logger.Info("marketdata.fallback_served",
			zap.String("operation", op),
			zap.String("reason", reason))
	} else {
		s.logger.Warn("marketdata.fallback_served",
			zap.String("operation", op),
			zap.String("reason", reason),
			zap.Error(res.Err))
	}

	e := events.New(events.TypeFallbackServed, "angel")
	e.Reason = reason
	if err := s.events.Publish(ctx, e); err != nil {
		s.logger.Debug("marketdata.event_publish_failed", zap.Error(err))
	}
	return fallback()
}

func cached[T any](ctx context.Context, s *Service, key string) (Response[T], bool) {
	var r Response[T]
	err := cache.GetJSON(ctx, s.cache, key, &r)
	if err == nil {
		metrics.IncCacheLookup("market_data", true)
		return r, true
	}
	if !errors.Is(err, cache.ErrMiss) {
		s.logger.Warn("marketdata.cache_read_failed", zap.String("key", key), zap.Error(err))
	}
	metrics.IncCacheLookup("market_data", false)
	return r, false
}

// decode converts a successful envelope into a response. Rows are kept as
// the broker sent them; only the list shape is checked.
func decode[T any](env *angel.Envelope, err error) Result[Response[T]] {
	if err != nil {
		return failed[Response[T]](err)
	}
	rows := Rows[T]{}
	if len(env.Data) > 0 && string(env.Data) != "null" {
		if err := json.Unmarshal(env.Data, &rows); err != nil {
			return failed[Response[T]](fmt.Errorf("decode data: %w: %v", angel.ErrMalformedResponse, err))
		}
	}
	return ok(Response[T]{
		Status:    true,
		Message:   env.Message,
		ErrorCode: env.ErrorCode,
		Data:      rows,
	})
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}
