package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wyfcoding/pricingrisk/internal/pricing/application"
	"github.com/wyfcoding/pricingrisk/internal/pricing/domain"
	"github.com/wyfcoding/pricingrisk/internal/pricing/infrastructure/marketdata"
	"golang.org/x/exp/rand"
)

const atmCall = `{"instrument":{"symbol":"SPX-C100","style":"EUROPEAN","payoff":"VANILLA","option_type":"CALL","strike":100,"maturity":1},
"market":{"spot":100,"risk_free_rate":0.05,"volatility":0.2}`

func newRouter(t *testing.T) (*gin.Engine, *marketdata.MemoryProvider) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	md := marketdata.NewMemoryProvider()
	svc := application.NewPricingService(application.DefaultConfig(), application.WithMarketData(md))
	r := gin.New()
	NewPricingHandler(svc, 10*time.Second).RegisterRoutes(r)
	return r, md
}

func do(t *testing.T, r *gin.Engine, method, path, body string) (*httptest.ResponseRecorder, Response) {
	t.Helper()
	req := httptest.NewRequest(method, path, bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	var resp Response
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp), w.Body.String())
	return w, resp
}

func decodeData(t *testing.T, resp Response, dest any) {
	t.Helper()
	raw, err := json.Marshal(resp.Data)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(raw, dest))
}

func TestPriceEndpoint(t *testing.T) {
	r, _ := newRouter(t)
	w, resp := do(t, r, http.MethodPost, "/api/v1/pricing/price", atmCall+`}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "OK", resp.Code)

	var out struct {
		Price  string               `json:"price"`
		Report domain.PricingReport `json:"report"`
	}
	decodeData(t, resp, &out)
	assert.Equal(t, "10.45058357", out.Price)
	assert.Equal(t, domain.MethodAnalytical, out.Report.Method)
	assert.NotEmpty(t, out.Report.ID)
	require.NotNil(t, out.Report.Greeks)
}

func TestPriceEndpointOptionsOverrideDefaults(t *testing.T) {
	r, _ := newRouter(t)
	body := atmCall + `,"options":{"method":"LATTICE","steps":200,"compute_greeks":false}}`
	w, resp := do(t, r, http.MethodPost, "/api/v1/pricing/price", body)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var out PriceResponse
	decodeData(t, resp, &out)
	assert.Equal(t, domain.MethodLattice, out.Report.Method)
	assert.Equal(t, 200, out.Report.Pricing.Steps)
	assert.Nil(t, out.Report.Greeks)
}

func TestPriceEndpointErrors(t *testing.T) {
	r, _ := newRouter(t)
	cases := []struct {
		name string
		body string
		code int
		err  string
	}{
		{"malformed json", `{"instrument":`, http.StatusBadRequest, "BAD_REQUEST"},
		{"invalid instrument", `{"instrument":{"style":"EUROPEAN","payoff":"VANILLA","option_type":"CALL","strike":-1,"maturity":1},"market":{"spot":100,"volatility":0.2}}`, http.StatusBadRequest, "INVALID_INSTRUMENT"},
		{"missing volatility", `{"instrument":{"style":"EUROPEAN","payoff":"VANILLA","option_type":"CALL","strike":100,"maturity":1},"market":{"spot":100}}`, http.StatusBadRequest, "MISSING_VOLATILITY"},
		{"bad step count", atmCall + `,"options":{"method":"LATTICE","steps":0}}`, http.StatusBadRequest, "INVALID_STEP_COUNT"},
		{"method mismatch", `{"instrument":{"style":"AMERICAN","payoff":"VANILLA","option_type":"PUT","strike":100,"maturity":1},"market":{"spot":100,"volatility":0.2},"options":{"method":"ANALYTICAL"}}`, http.StatusBadRequest, "UNSUPPORTED_INSTRUMENT"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w, resp := do(t, r, http.MethodPost, "/api/v1/pricing/price", tc.body)
			assert.Equal(t, tc.code, w.Code)
			assert.Equal(t, tc.err, resp.Code)
		})
	}
}

func TestGreeksEndpointForcesGreeks(t *testing.T) {
	r, _ := newRouter(t)
	w, resp := do(t, r, http.MethodPost, "/api/v1/pricing/greeks", atmCall+`,"options":{"compute_greeks":false}}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var out struct {
		Greeks domain.GreekSet `json:"greeks"`
	}
	decodeData(t, resp, &out)
	assert.InDelta(t, 0.6368, out.Greeks.Delta, 1e-4)
	assert.Equal(t, domain.GreekSourceClosedForm, out.Greeks.Source)
}

func TestImpliedVolEndpoint(t *testing.T) {
	r, _ := newRouter(t)
	body := `{"instrument":{"style":"EUROPEAN","payoff":"VANILLA","option_type":"CALL","strike":100,"maturity":1},
"market":{"spot":100,"risk_free_rate":0.05},"market_price":10.450583572185565}`
	w, resp := do(t, r, http.MethodPost, "/api/v1/pricing/implied-vol", body)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var res domain.CalibrationResult
	decodeData(t, resp, &res)
	assert.True(t, res.Converged)
	assert.InDelta(t, 0.2, res.ImpliedVolatility, 1e-6)

	body = `{"instrument":{"style":"EUROPEAN","payoff":"VANILLA","option_type":"CALL","strike":100,"maturity":1},
"market":{"spot":100,"risk_free_rate":0.05},"market_price":150}`
	w, resp = do(t, r, http.MethodPost, "/api/v1/pricing/implied-vol", body)
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Equal(t, "NUMERICAL_INSTABILITY", resp.Code)
}

func TestForecastEndpoint(t *testing.T) {
	r, md := newRouter(t)

	w, resp := do(t, r, http.MethodPost, "/api/v1/pricing/forecast", `{"returns":[0.01,-0.02,0.015]}`)
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Equal(t, "INSUFFICIENT_DATA", resp.Code)

	start := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	rng := rand.New(rand.NewSource(5))
	price := 100.0
	for i := 0; i < 120; i++ {
		price *= 1 + 0.01*rng.NormFloat64()
		md.AddBars("SPX", marketdata.Bar{Time: start.AddDate(0, 0, i), Close: price})
	}

	w, resp = do(t, r, http.MethodPost, "/api/v1/pricing/forecast", `{"symbol":"SPX","config":{"horizon":3}}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var res domain.ForecastResult
	decodeData(t, resp, &res)
	assert.Equal(t, 119, res.Observations)
	assert.Len(t, res.Series, 3)
	assert.Greater(t, res.ForecastedVolatility, 0.0)

	w, resp = do(t, r, http.MethodGet, "/api/v1/pricing/market/SPX", "")
	require.Equal(t, http.StatusOK, w.Code)
	var snap domain.MarketSnapshot
	decodeData(t, resp, &snap)
	assert.InDelta(t, price, snap.Spot, 1e-9)

	w, resp = do(t, r, http.MethodGet, "/api/v1/pricing/market/SPX/indicators", "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var ind domain.TechnicalIndicators
	decodeData(t, resp, &ind)
	assert.Equal(t, 120, ind.Observations)
	assert.Equal(t, 50, ind.Config.LongWindow)
	assert.InDelta(t, price, ind.Close, 1e-9)

	w, resp = do(t, r, http.MethodGet, "/api/v1/pricing/market/SPX/indicators?short=60&long=30", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "INVALID_INPUT", resp.Code)

	w, _ = do(t, r, http.MethodGet, "/api/v1/pricing/market/SPX/indicators?long=abc", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, resp = do(t, r, http.MethodGet, "/api/v1/pricing/market/SPX/indicators?long=200", "")
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Equal(t, "INSUFFICIENT_DATA", resp.Code)

	w, resp = do(t, r, http.MethodGet, "/api/v1/pricing/market/NOPE/indicators", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "NOT_FOUND", resp.Code)
}

func TestPortfolioEndpointPartialSuccess(t *testing.T) {
	r, _ := newRouter(t)
	bad := `{"instrument":{"style":"EUROPEAN","payoff":"VANILLA","option_type":"CALL","strike":100,"maturity":0},"market":{"spot":100,"volatility":0.2}}`
	body := fmt.Sprintf(`{"batch_id":"b-7","items":[%s}, %s]}`, atmCall, bad)

	w, resp := do(t, r, http.MethodPost, "/api/v1/pricing/portfolio", body)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var out application.BatchReport
	decodeData(t, resp, &out)
	assert.Equal(t, "b-7", out.BatchID)
	assert.Equal(t, 1, out.SuccessCount)
	assert.Equal(t, 1, out.FailureCount)
	assert.NotNil(t, out.Items[0].Report)
	assert.Contains(t, out.Items[1].Error, "invalid instrument")
}

func TestQueryEndpointsWithoutRepositories(t *testing.T) {
	r, _ := newRouter(t)

	w, resp := do(t, r, http.MethodGet, "/api/v1/pricing/calibrations/SPX", "")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Equal(t, "REPOSITORY_UNAVAILABLE", resp.Code)

	w, _ = do(t, r, http.MethodGet, "/api/v1/pricing/calibrations/SPX?history=abc", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, _ = do(t, r, http.MethodGet, "/api/v1/pricing/reports/r-1", "")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)

	w, resp = do(t, r, http.MethodGet, "/api/v1/pricing/market/NOPE", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "NOT_FOUND", resp.Code)
}

func TestStatusFor(t *testing.T) {
	status, code := StatusFor(fmt.Errorf("wrap: %w", domain.ErrGreekUnavailable))
	assert.Equal(t, http.StatusUnprocessableEntity, status)
	assert.Equal(t, "GREEK_UNAVAILABLE", code)

	status, _ = StatusFor(context.DeadlineExceeded)
	assert.Equal(t, http.StatusGatewayTimeout, status)

	status, code = StatusFor(errors.New("disk on fire"))
	assert.Equal(t, http.StatusInternalServerError, status)
	assert.Equal(t, "INTERNAL", code)
}
