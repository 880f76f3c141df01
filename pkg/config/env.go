package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// GetEnv returns the environment variable value for key, or def if unset or empty.
func GetEnv(key, def string) string {
	if val := strings.TrimSpace(os.Getenv(key)); val != "" {
		return val
	}
	return def
}

// GetEnvInt returns the environment variable value for key parsed as int, or def if unset or invalid.
func GetEnvInt(key string, def int) int {
	if val := GetEnv(key, ""); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
	}
	return def
}

// GetEnvDuration returns the environment variable value for key parsed as time.Duration, or def if unset or invalid.
func GetEnvDuration(key string, def time.Duration) time.Duration {
	if val := GetEnv(key, ""); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			return d
		}
	}
	return def
}

// GetEnvBool returns the environment variable value for key parsed with strconv.ParseBool, or def if unset or invalid.
func GetEnvBool(key string, def bool) bool {
	if val := GetEnv(key, ""); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			return b
		}
	}
	return def
}

// IsPlaceholder reports whether a configured value is empty or still carries the
// sample value shipped in .env.example (e.g. "your-angel-mpin").
func IsPlaceholder(val string, placeholders ...string) bool {
	val = strings.TrimSpace(val)
	if val == "" {
		return true
	}
	for _, p := range placeholders {
		if val == p {
			return true
		}
	}
	return false
}
