package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/smart-hedge/marketdata-gateway/internal/angel"
	"github.com/smart-hedge/marketdata-gateway/internal/api"
	"github.com/smart-hedge/marketdata-gateway/internal/cache"
	"github.com/smart-hedge/marketdata-gateway/internal/config"
	"github.com/smart-hedge/marketdata-gateway/internal/credentials"
	"github.com/smart-hedge/marketdata-gateway/internal/events"
	"github.com/smart-hedge/marketdata-gateway/internal/marketdata"
	"github.com/smart-hedge/marketdata-gateway/internal/metrics"
	"github.com/smart-hedge/marketdata-gateway/internal/rate"
	"github.com/smart-hedge/marketdata-gateway/internal/store"
	"github.com/smart-hedge/marketdata-gateway/pkg/logger"
	"github.com/smart-hedge/marketdata-gateway/pkg/secrets"
	"github.com/smart-hedge/marketdata-gateway/pkg/utils"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// --- Load configuration ---
	cfg := config.Load()

	logger.Init(cfg.ServiceName, cfg.Env, cfg.LogLevel)
	logg := logger.S()
	logg.Info("starting [marketdata-gateway]...")

	// --- Session / response cache ---
	stopCleaner := make(chan struct{})
	var (
		kv  cache.Store
		rdb *cache.Redis
	)
	switch cfg.CacheBackend {
	case config.CacheRedis:
		var err error
		rdb, err = cache.NewRedis(ctx, cache.RedisOptions{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPass,
			DB:       cfg.RedisDB,
			Prefix:   cfg.RedisPrefix,
		})
		if err != nil {
			logg.Fatalw("failed to init redis cache", "error", err)
		}
		kv = rdb
	default:
		mem := cache.NewMemory()
		go mem.StartCleaner(cfg.CleanupFreq, stopCleaner)
		kv = mem
	}
	logg.Infow("cache ready", "backend", cfg.CacheBackend)

	// --- Broker account repository (optional) ---
	var repo *store.Repository
	if cfg.DatabaseURL != "" {
		logg.Info("connection to DSN: ", utils.MaskDSN(cfg.DatabaseURL))
		cipher, err := store.NewCipher(cfg.CredentialsKey)
		if err != nil {
			logg.Fatalw("failed to init credentials cipher", "error", err)
		}
		repo, err = store.NewRepository(ctx, cfg.DatabaseURL, store.PGPoolConfig{
			MaxConns:          int32(cfg.PGMaxConns),
			MinConns:          int32(cfg.PGMinConns),
			MaxConnLifetime:   cfg.PGMaxConnLifetime,
			MaxConnIdleTime:   cfg.PGMaxConnIdleTime,
			HealthCheckPeriod: cfg.PGHealthCheckPeriod,
		}, cipher, logg.Desugar())
		if err != nil {
			logg.Fatalw("failed to init broker account repository", "error", err)
		}
	}

	// --- Credential source ---
	creds := newCredentialProvider(ctx, cfg, repo, logg.Desugar())

	// --- Event publisher ---
	pub := newPublisher(cfg, logg.Desugar())

	// --- Rate limiter ---
	rateMgr := rate.NewManager(rate.Config{
		RequestsPerSecond: cfg.AngelRateRPS,
		Burst:             cfg.AngelRateBurst,
	})

	// --- Angel One SmartAPI ---
	identity := angel.Identity{
		LocalIP:    cfg.AngelLocalIP,
		PublicIP:   cfg.AngelPublicIP,
		MACAddress: cfg.AngelMACAddress,
		APIKey:     cfg.AngelAPIKey,
	}
	exec := angel.NewExecutor(
		logger.Named("angel.http"),
		&http.Client{Timeout: cfg.AngelHTTPTimeout},
		rateMgr,
		metrics.ObserveBrokerCall,
	)
	auth := angel.NewAuthenticator(logger.Named("angel.auth"), exec, kv, creds, pub, angel.AuthConfig{
		BaseURL:  cfg.AngelAuthURL,
		TokenTTL: cfg.AngelTokenTTL,
		Identity: identity,
	})
	angelClient := angel.NewClient(logger.Named("angel.client"), exec, cfg.AngelAPIURL, identity)

	// --- Market data service ---
	svc := marketdata.NewService(logger.Named("marketdata"), auth, angelClient, kv, pub, cfg.MarketDataTTL)

	// --- Fiber HTTP Server ---
	app := fiber.New(fiber.Config{
		ReadTimeout:  cfg.HTTPReadTimeout,
		WriteTimeout: cfg.HTTPWriteTimeout,
		IdleTimeout:  cfg.HTTPIdleTimeout,
		BodyLimit:    cfg.HTTPBodyLimit,
	})

	checks := []api.HealthCheck{{Name: "cache", Check: kv.Ping}}
	if repo != nil {
		checks = append(checks, api.HealthCheck{Name: "postgres", Check: repo.HealthCheck})
	}

	handler := api.NewMarketDataHandler(logger.Named("api"), svc)
	tokenAuth := api.RequireAPIToken(api.TokenAuthConfig{Token: cfg.APIToken, AllowQuery: cfg.Debug}, logger.Named("api.auth"))
	api.RegisterRoutes(app, handler, tokenAuth, checks...)

	// Start HTTP server
	go func() {
		logg.Infof("HTTP API listening on :%d", cfg.Port)
		if err := app.Listen(fmt.Sprintf(":%d", cfg.Port)); err != nil {
			logg.Fatalw("fiber.listen_failed", "error", err)
		}
	}()

	logg.Infow("[marketdata-gateway] running",
		"env", cfg.Env,
		"cache", cfg.CacheBackend,
		"credentials", cfg.CredentialSource,
		"events", cfg.EventsBackend,
		"market_data_ttl", cfg.MarketDataTTL)

	<-ctx.Done()
	logg.Info("shutting down [marketdata-gateway]...")

	close(stopCleaner)
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		logg.Warnw("fiber.shutdown_failed", "error", err)
	}
	if err := pub.Close(); err != nil {
		logg.Warnw("events.close_failed", "error", err)
	}
	if rdb != nil {
		if err := rdb.Close(); err != nil {
			logg.Warnw("redis.close_failed", "error", err)
		}
	}
	if repo != nil {
		repo.Close()
	}
	logger.Sync()
}

func newCredentialProvider(ctx context.Context, cfg *config.Config, repo *store.Repository, log *zap.Logger) credentials.Provider {
	switch cfg.CredentialSource {
	case config.CredentialsAWS:
		awsProvider, err := secrets.NewAWSProvider(ctx, cfg.AWSRegion)
		if err != nil {
			log.Fatal("failed to create AWS Secrets Manager provider", zap.Error(err))
		}
		p := credentials.NewAWSProvider(log, cfg.Env, cfg.AngelClientID, awsProvider, secrets.NewCache[credentials.Credentials](cfg.SecretsCacheTTL))
		if clients, err := p.DiscoverClients(ctx); err != nil {
			log.Warn("failed to discover clients from AWS Secrets Manager", zap.Error(err))
		} else {
			log.Info("discovered Angel clients", zap.Int("count", len(clients)), zap.Strings("clients", clients))
		}
		return p
	case config.CredentialsAccount:
		if repo == nil {
			log.Fatal("CREDENTIAL_SOURCE=account requires DATABASE_URL")
		}
		return credentials.NewAccountProvider(repo, cfg.AccountUserID, cfg.AccountBrokerID)
	default:
		return credentials.NewStatic(credentials.Credentials{
			ClientCode: cfg.AngelClientID,
			Password:   cfg.AngelMPIN,
			TOTPSecret: cfg.AngelTOTPSecret,
			APIKey:     cfg.AngelAPIKey,
		})
	}
}

func newPublisher(cfg *config.Config, log *zap.Logger) events.Publisher {
	switch cfg.EventsBackend {
	case config.EventsNATS:
		p, err := events.NewNATS(cfg.NATSURL, cfg.EventsSubject, cfg.ServiceName, log)
		if err != nil {
			log.Fatal("failed to init NATS publisher", zap.Error(err))
		}
		return p
	case config.EventsAMQP:
		p, err := events.NewAMQP(cfg.AMQPURL, cfg.EventsSubject, cfg.ServiceName, log)
		if err != nil {
			log.Fatal("failed to init AMQP publisher", zap.Error(err))
		}
		return p
	default:
		return events.Nop{}
	}
}
