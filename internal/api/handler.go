// Package api exposes the market-data operations over HTTP.
package api

import (
	"context"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/smart-hedge/marketdata-gateway/internal/marketdata"
)

// MarketDataService is the fetcher used by the handler; *marketdata.Service satisfies it.
type MarketDataService interface {
	GainersLosers(ctx context.Context, dataType, expiryType string) marketdata.Response[marketdata.Mover]
	PutCallRatio(ctx context.Context) marketdata.Response[marketdata.PCR]
	OIBuildup(ctx context.Context, dataType, expiryType string) marketdata.Response[marketdata.OIBuildup]
}

// MarketDataHandler serves the market-data routes.
type MarketDataHandler struct {
	logger  *zap.Logger
	service MarketDataService
}

func NewMarketDataHandler(logger *zap.Logger, service MarketDataService) *MarketDataHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &MarketDataHandler{logger: logger, service: service}
}

// GainersLosers handles GET /market-data/gainers-losers.
func (h *MarketDataHandler) GainersLosers(c *fiber.Ctx) error {
	var q GainersLosersQuery
	if err := c.QueryParser(&q); err != nil {
		return badRequest(c, err)
	}
	if err := q.Validate(); err != nil {
		return badRequest(c, err)
	}

	resp := h.service.GainersLosers(c.UserContext(), q.DataType, q.ExpiryType)
	h.logServed("gainers_losers", resp.IsMock(), len(resp.Data))
	return c.JSON(resp)
}

// PutCallRatio handles GET /market-data/pcr.
func (h *MarketDataHandler) PutCallRatio(c *fiber.Ctx) error {
	resp := h.service.PutCallRatio(c.UserContext())
	h.logServed("pcr", resp.IsMock(), len(resp.Data))
	return c.JSON(resp)
}

// OIBuildup handles GET /market-data/oi-buildup.
func (h *MarketDataHandler) OIBuildup(c *fiber.Ctx) error {
	var q OIBuildupQuery
	if err := c.QueryParser(&q); err != nil {
		return badRequest(c, err)
	}
	if err := q.Validate(); err != nil {
		return badRequest(c, err)
	}

	resp := h.service.OIBuildup(c.UserContext(), q.DataType, q.ExpiryType)
	h.logServed("oi_buildup", resp.IsMock(), len(resp.Data))
	return c.JSON(resp)
}

func (h *MarketDataHandler) logServed(op string, mock bool, rows int) {
	h.logger.Debug("api.market_data.served",
		zap.String("operation", op),
		zap.Bool("mock", mock),
		zap.Int("rows", rows))
}
