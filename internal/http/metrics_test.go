package http

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	"go.uber.org/zap"
)

func TestHTTPMetrics_MetricsMiddleware(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	m := newHTTPMetrics(mp.Meter(instrumentationName), zap.NewNop())

	e := echo.New()
	e.Use(m.MetricsMiddleware())
	e.GET("/api/v1/sessions/:id", func(c echo.Context) error {
		return c.String(http.StatusOK, c.Param("id"))
	})

	for _, id := range []string{"vs_a", "vs_b", "vs_c"} {
		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/sessions/"+id, nil))
		require.Equal(t, http.StatusOK, rec.Code)
	}

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))

	var requests *metricdata.Sum[int64]
	var foundDuration bool
	for _, sm := range rm.ScopeMetrics {
		for _, metric := range sm.Metrics {
			switch metric.Name {
			case "verifyd.http.requests_total":
				sum := metric.Data.(metricdata.Sum[int64])
				requests = &sum
			case "verifyd.http.request_duration_seconds":
				foundDuration = true
			}
		}
	}
	require.NotNil(t, requests)
	assert.True(t, foundDuration)

	// Session ids collapse into the route template.
	require.Len(t, requests.DataPoints, 1)
	dp := requests.DataPoints[0]
	assert.Equal(t, int64(3), dp.Value)
	endpoint, _ := dp.Attributes.Value(attribute.Key("endpoint"))
	assert.Equal(t, "/api/v1/sessions/:id", endpoint.AsString())
}
