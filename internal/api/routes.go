package api

import (
	"context"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/smart-hedge/marketdata-gateway/internal/metrics"
)

// HealthCheck is one named dependency check reported by /health.
type HealthCheck struct {
	Name  string
	Check func(ctx context.Context) error
}

// RegisterRoutes registers all HTTP routes on the Fiber app.
func RegisterRoutes(app *fiber.App, h *MarketDataHandler, auth fiber.Handler, checks ...HealthCheck) {
	app.Use(countRequests)
	app.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))

	app.Get("/health", func(c *fiber.Ctx) error {
		results := make(map[string]string, len(checks))
		status := "ok"
		code := fiber.StatusOK

		healthCtx, cancel := context.WithTimeout(c.UserContext(), 2*time.Second)
		defer cancel()
		for _, hc := range checks {
			results[hc.Name] = "ok"
			if err := hc.Check(healthCtx); err != nil {
				results[hc.Name] = err.Error()
				status = "degraded"
				code = fiber.StatusServiceUnavailable
			}
		}

		return c.Status(code).JSON(fiber.Map{
			"status": status,
			"checks": results,
		})
	})

	md := app.Group("/market-data")
	md.Get("/gainers-losers", h.GainersLosers)
	md.Get("/pcr", h.PutCallRatio)
	md.Get("/oi-buildup", h.OIBuildup)

	v1 := app.Group("/api/v1/market-data", auth)
	v1.Get("/gainers-losers", h.GainersLosers)
	v1.Get("/pcr", h.PutCallRatio)
	v1.Get("/oi-buildup", h.OIBuildup)
}

func countRequests(c *fiber.Ctx) error {
	err := c.Next()
	route := c.Route().Path
	status := c.Response().StatusCode()
	if err != nil {
		if fe, ok := err.(*fiber.Error); ok {
			status = fe.Code
		}
	}
	metrics.IncHTTPRequest(route, strconv.Itoa(status))
	return err
}
