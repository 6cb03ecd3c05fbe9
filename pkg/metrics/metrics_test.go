package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegisterAndObserve(t *testing.T) {
	m := New("pricing")
	reg := prometheus.NewRegistry()
	require.NoError(t, m.Register(reg))
	assert.Error(t, m.Register(reg), "duplicate registration")

	m.ObservePricing("MONTE_CARLO", "ok", 0.2, 10_000)
	m.ObservePricing("ANALYTICAL", "error", 0.001, 0)
	m.ObserveCalibration(6, true)
	m.ObserveForecast(false)
	m.ObservePortfolio(3, 1)
	m.RecordHTTPRequest("POST", "/api/v1/pricing/price", 200, 0.01)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.PricingRequestsTotal.WithLabelValues("MONTE_CARLO", "ok")))
	assert.Equal(t, 10_000.0, testutil.ToFloat64(m.MCPathsTotal))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.CalibrationsTotal.WithLabelValues("true")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ForecastsTotal.WithLabelValues("false")))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.PortfolioItemsTotal.WithLabelValues("success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.HTTPRequestsTotal.WithLabelValues("POST", "/api/v1/pricing/price", "200")))
}
