// Package logger holds the process-wide zap logger.
package logger

import (
	"fmt"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const devEnv = "dev"

var (
	mu    sync.RWMutex
	base  *zap.Logger
	sugar *zap.SugaredLogger
)

// newConfig picks the console encoder for dev and JSON with ISO-8601 "ts"
// timestamps elsewhere. An unknown level keeps the preset's default.
func newConfig(env, level string) zap.Config {
	cfg := zap.NewProductionConfig()
	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	if env == devEnv {
		cfg = zap.NewDevelopmentConfig()
		cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}
	if lvl, err := zapcore.ParseLevel(level); err == nil {
		cfg.Level = zap.NewAtomicLevelAt(lvl)
	}
	cfg.OutputPaths = []string{"stdout"}
	cfg.ErrorOutputPaths = []string{"stderr"}
	return cfg
}

// New builds a logger whose entries carry service and env fields.
func New(service, env, level string, opts ...zap.Option) (*zap.Logger, error) {
	l, err := newConfig(env, level).Build(append([]zap.Option{zap.AddCaller()}, opts...)...)
	if err != nil {
		return nil, fmt.Errorf("build logger: %w", err)
	}
	return l.With(zap.String("service", service), zap.String("env", env)), nil
}

// Init replaces the global logger. Environment can be "dev", "uat", or "prod".
func Init(service, env, level string) {
	l, err := New(service, env, level)
	if err != nil {
		panic(err)
	}
	set(l)
	l.Sugar().Infow("logger initialized", "level", level)
}

func set(l *zap.Logger) {
	mu.Lock()
	defer mu.Unlock()
	base, sugar = l, l.Sugar()
}

func current() *zap.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return base
}

// L returns the base logger, initializing a dev logger on first use.
func L() *zap.Logger {
	if l := current(); l != nil {
		return l
	}
	Init("unknown", devEnv, "info")
	return current()
}

// S returns the sugared form of L.
func S() *zap.SugaredLogger {
	L()
	mu.RLock()
	defer mu.RUnlock()
	return sugar
}

// Named returns a child logger scoped to a component, e.g. "angel.auth".
func Named(component string) *zap.Logger {
	return L().Named(component)
}

// Sync flushes buffered entries; defer it in main.
func Sync() {
	if l := current(); l != nil {
		_ = l.Sync()
	}
}
