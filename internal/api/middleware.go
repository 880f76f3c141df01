package api

import (
	"crypto/subtle"
	"strings"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

// TokenAuthConfig configures RequireAPIToken.
type TokenAuthConfig struct {
	// Token is the shared secret. An empty token rejects every request with 500.
	Token string
	// AllowQuery enables the api_token query parameter; meant for debug builds only.
	AllowQuery bool
}

// RequireAPIToken guards internal routes with a shared token taken from
// "Authorization: Bearer", "X-API-Token", or (when allowed) ?api_token=.
func RequireAPIToken(cfg TokenAuthConfig, logger *zap.Logger) fiber.Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(c *fiber.Ctx) error {
		if cfg.Token == "" {
			logger.Error("api.auth.token_not_configured")
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"success": false,
				"error":   "API authentication not configured",
			})
		}

		provided := extractToken(c, cfg.AllowQuery)
		if provided == "" {
			logger.Warn("api.auth.token_missing",
				zap.String("ip", c.IP()),
				zap.String("path", c.Path()))
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"success": false,
				"error":   "API token required",
				"message": "Please provide a valid API token in Authorization header, X-API-Token header, or api_token parameter",
			})
		}

		if subtle.ConstantTimeCompare([]byte(cfg.Token), []byte(provided)) != 1 {
			logger.Warn("api.auth.token_invalid",
				zap.String("ip", c.IP()),
				zap.Int("provided_token_length", len(provided)))
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"success": false,
				"error":   "Invalid API token",
			})
		}

		return c.Next()
	}
}

func extractToken(c *fiber.Ctx, allowQuery bool) string {
	if h := c.Get(fiber.HeaderAuthorization); strings.HasPrefix(h, "Bearer ") {
		return strings.TrimPrefix(h, "Bearer ")
	}
	if h := c.Get("X-API-Token"); h != "" {
		return h
	}
	if allowQuery {
		return c.Query("api_token")
	}
	return ""
}
