package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/smart-hedge/marketdata-gateway/internal/marketdata"
)

// ─── Mock service ─────────────────────────────────────────────────────────────

type mockMarketData struct {
	gotDataType   string
	gotExpiryType string
	calls         int
}

func (m *mockMarketData) GainersLosers(_ context.Context, dataType, expiryType string) marketdata.Response[marketdata.Mover] {
	m.calls++
	m.gotDataType, m.gotExpiryType = dataType, expiryType
	return marketdata.Response[marketdata.Mover]{
		Status:  true,
		Message: "SUCCESS",
		Data: marketdata.RowsOf([]marketdata.Mover{{
			TradingSymbol: "SBIN25JUL25FUT",
			PercentChange: marketdata.NewNum(350, -2),
		}}),
	}
}

func (m *mockMarketData) PutCallRatio(context.Context) marketdata.Response[marketdata.PCR] {
	m.calls++
	return marketdata.Response[marketdata.PCR]{
		Status:  true,
		Message: marketdata.MockMessage,
		Data:    marketdata.RowsOf([]marketdata.PCR{{PCR: marketdata.NewNum(104, -2), TradingSymbol: "NIFTY25JAN24FUT"}}),
	}
}

func (m *mockMarketData) OIBuildup(_ context.Context, dataType, expiryType string) marketdata.Response[marketdata.OIBuildup] {
	m.calls++
	m.gotDataType, m.gotExpiryType = dataType, expiryType
	return marketdata.Response[marketdata.OIBuildup]{Status: true, Message: "SUCCESS", Data: marketdata.Rows[marketdata.OIBuildup]{}}
}

// ─── Test app helpers ─────────────────────────────────────────────────────────

func newTestApp(svc MarketDataService, tokenCfg TokenAuthConfig, checks ...HealthCheck) *fiber.App {
	app := fiber.New()
	RegisterRoutes(app, NewMarketDataHandler(zap.NewNop(), svc), RequireAPIToken(tokenCfg, zap.NewNop()), checks...)
	return app
}

func doGet(t *testing.T, app *fiber.App, target string, headers map[string]string) (int, map[string]any) {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, target, nil)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close() //nolint:errcheck

	raw, _ := io.ReadAll(resp.Body)
	var body map[string]any
	require.NoError(t, json.Unmarshal(raw, &body), string(raw))
	return resp.StatusCode, body
}

// ─── Public market-data routes ───────────────────────────────────────────────

func TestGainersLosers_Success(t *testing.T) {
	svc := &mockMarketData{}
	app := newTestApp(svc, TokenAuthConfig{Token: "t"})

	code, body := doGet(t, app, "/market-data/gainers-losers?datatype=PercOILosers&expirytype=NEXT", nil)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, true, body["status"])
	assert.Equal(t, "PercOILosers", svc.gotDataType)
	assert.Equal(t, "NEXT", svc.gotExpiryType)

	rows := body["data"].([]any)
	require.Len(t, rows, 1)
	assert.Equal(t, 3.5, rows[0].(map[string]any)["percentChange"])
}

func TestGainersLosers_EmptyArgumentsPassThrough(t *testing.T) {
	svc := &mockMarketData{}
	app := newTestApp(svc, TokenAuthConfig{Token: "t"})

	code, _ := doGet(t, app, "/market-data/gainers-losers", nil)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "", svc.gotDataType, "service applies defaults")
}

func TestGainersLosers_InvalidParameters(t *testing.T) {
	tests := []struct {
		name  string
		query string
		msg   string
	}{
		{"bad datatype", "?datatype=TopVolume", "datatype"},
		{"oi type on gainers", "?datatype=" + url.QueryEscape("Long Built Up"), "datatype"},
		{"bad expiry", "?expirytype=WEEKLY", "expirytype"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := &mockMarketData{}
			app := newTestApp(svc, TokenAuthConfig{Token: "t"})

			code, body := doGet(t, app, "/market-data/gainers-losers"+tt.query, nil)
			assert.Equal(t, http.StatusBadRequest, code)
			assert.Equal(t, false, body["status"])
			assert.Equal(t, "INVALID_PARAMETER", body["errorcode"])
			assert.Contains(t, body["message"], tt.msg)
			assert.Equal(t, 0, svc.calls)
		})
	}
}

func TestOIBuildup_SpacedDataType(t *testing.T) {
	svc := &mockMarketData{}
	app := newTestApp(svc, TokenAuthConfig{Token: "t"})

	code, body := doGet(t, app, "/market-data/oi-buildup?datatype="+url.QueryEscape("Short Covering")+"&expirytype=FAR", nil)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "Short Covering", svc.gotDataType)
	assert.Equal(t, "FAR", svc.gotExpiryType)
	assert.Equal(t, []any{}, body["data"])

	code, _ = doGet(t, app, "/market-data/oi-buildup?datatype=PercPriceGainers", nil)
	assert.Equal(t, http.StatusBadRequest, code)
}

func TestPutCallRatio_MockIsStill200(t *testing.T) {
	app := newTestApp(&mockMarketData{}, TokenAuthConfig{Token: "t"})

	code, body := doGet(t, app, "/market-data/pcr", nil)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "SUCCESS (Mock Data)", body["message"])
}

// ─── Token-protected routes ──────────────────────────────────────────────────

func TestAPIToken(t *testing.T) {
	tests := []struct {
		name    string
		cfg     TokenAuthConfig
		target  string
		headers map[string]string
		want    int
		errMsg  string
	}{
		{"bearer", TokenAuthConfig{Token: "s3cret"}, "/api/v1/market-data/pcr", map[string]string{"Authorization": "Bearer s3cret"}, http.StatusOK, ""},
		{"x-api-token", TokenAuthConfig{Token: "s3cret"}, "/api/v1/market-data/pcr", map[string]string{"X-API-Token": "s3cret"}, http.StatusOK, ""},
		{"query allowed in debug", TokenAuthConfig{Token: "s3cret", AllowQuery: true}, "/api/v1/market-data/pcr?api_token=s3cret", nil, http.StatusOK, ""},
		{"query ignored outside debug", TokenAuthConfig{Token: "s3cret"}, "/api/v1/market-data/pcr?api_token=s3cret", nil, http.StatusUnauthorized, "API token required"},
		{"missing", TokenAuthConfig{Token: "s3cret"}, "/api/v1/market-data/pcr", nil, http.StatusUnauthorized, "API token required"},
		{"wrong", TokenAuthConfig{Token: "s3cret"}, "/api/v1/market-data/pcr", map[string]string{"X-API-Token": "guess"}, http.StatusUnauthorized, "Invalid API token"},
		{"basic scheme ignored", TokenAuthConfig{Token: "s3cret"}, "/api/v1/market-data/pcr", map[string]string{"Authorization": "Basic s3cret"}, http.StatusUnauthorized, "API token required"},
		{"not configured", TokenAuthConfig{}, "/api/v1/market-data/pcr", map[string]string{"X-API-Token": "anything"}, http.StatusInternalServerError, "API authentication not configured"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			app := newTestApp(&mockMarketData{}, tt.cfg)

			code, body := doGet(t, app, tt.target, tt.headers)
			assert.Equal(t, tt.want, code)
			if tt.errMsg != "" {
				assert.Equal(t, false, body["success"])
				assert.Equal(t, tt.errMsg, body["error"])
			}
		})
	}
}

func TestAPIToken_PublicRoutesUnaffected(t *testing.T) {
	app := newTestApp(&mockMarketData{}, TokenAuthConfig{})
	code, _ := doGet(t, app, "/market-data/pcr", nil)
	assert.Equal(t, http.StatusOK, code)
}

// ─── Health ──────────────────────────────────────────────────────────────────

func TestHealth(t *testing.T) {
	ok := HealthCheck{Name: "cache", Check: func(context.Context) error { return nil }}
	app := newTestApp(&mockMarketData{}, TokenAuthConfig{}, ok)

	code, body := doGet(t, app, "/health", nil)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, map[string]any{"cache": "ok"}, body["checks"])
}

func TestHealth_Degraded(t *testing.T) {
	down := HealthCheck{Name: "cache", Check: func(context.Context) error { return errors.New("redis ping failed") }}
	app := newTestApp(&mockMarketData{}, TokenAuthConfig{}, down)

	code, body := doGet(t, app, "/health", nil)
	assert.Equal(t, http.StatusServiceUnavailable, code)
	assert.Equal(t, "degraded", body["status"])
	assert.Equal(t, "redis ping failed", body["checks"].(map[string]any)["cache"])
}

func TestMetricsEndpoint(t *testing.T) {
	app := newTestApp(&mockMarketData{}, TokenAuthConfig{})
	_, _ = doGet(t, app, "/market-data/pcr", nil)

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/metrics", nil), -1)
	require.NoError(t, err)
	defer resp.Body.Close() //nolint:errcheck
	raw, _ := io.ReadAll(resp.Body)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(raw), "http_requests_total")
}
