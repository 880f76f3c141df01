package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestGetEnv(t *testing.T) {
	t.Setenv("HEDGE_TEST_STR", "  value ")
	assert.Equal(t, "value", GetEnv("HEDGE_TEST_STR", "def"))

	t.Setenv("HEDGE_TEST_STR", "")
	assert.Equal(t, "def", GetEnv("HEDGE_TEST_STR", "def"))
}

func TestGetEnvInt(t *testing.T) {
	t.Setenv("HEDGE_TEST_INT", "42")
	assert.Equal(t, 42, GetEnvInt("HEDGE_TEST_INT", 1))

	t.Setenv("HEDGE_TEST_INT", "forty-two")
	assert.Equal(t, 1, GetEnvInt("HEDGE_TEST_INT", 1))
}

func TestGetEnvDuration(t *testing.T) {
	t.Setenv("HEDGE_TEST_DUR", "90s")
	assert.Equal(t, 90*time.Second, GetEnvDuration("HEDGE_TEST_DUR", time.Minute))

	t.Setenv("HEDGE_TEST_DUR", "soon")
	assert.Equal(t, time.Minute, GetEnvDuration("HEDGE_TEST_DUR", time.Minute))
}

func TestGetEnvBool(t *testing.T) {
	t.Setenv("HEDGE_TEST_BOOL", "true")
	assert.True(t, GetEnvBool("HEDGE_TEST_BOOL", false))

	t.Setenv("HEDGE_TEST_BOOL", "maybe")
	assert.False(t, GetEnvBool("HEDGE_TEST_BOOL", false))
}

func TestIsPlaceholder(t *testing.T) {
	assert.True(t, IsPlaceholder(""))
	assert.True(t, IsPlaceholder("   "))
	assert.True(t, IsPlaceholder("your-angel-mpin", "your-angel-mpin"))
	assert.False(t, IsPlaceholder("1234", "your-angel-mpin"))
}
