package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	"go.uber.org/zap"
)

func TestHTTPMetrics(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))

	router := gin.New()
	router.Use(HTTPMetrics(provider.Meter("test"), zap.NewNop()))
	router.POST("/api/v1/orders", func(c *gin.Context) { c.Status(http.StatusCreated) })

	serve(router, httptest.NewRequest(http.MethodPost, "/api/v1/orders", strings.NewReader(`{"products":[]}`)))
	serve(router, httptest.NewRequest(http.MethodPost, "/api/v1/orders", strings.NewReader(`{}`)))
	serve(router, httptest.NewRequest(http.MethodGet, "/nowhere", nil))

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(t.Context(), &rm))

	totals := map[string]int64{}
	var durations uint64
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			switch data := m.Data.(type) {
			case metricdata.Sum[int64]:
				if m.Name != "http_server_request_total" {
					continue
				}
				for _, dp := range data.DataPoints {
					route, _ := dp.Attributes.Value(attribute.Key("http.route"))
					totals[route.AsString()] += dp.Value
				}
			case metricdata.Histogram[float64]:
				if m.Name != "http_server_request_duration_seconds" {
					continue
				}
				for _, dp := range data.DataPoints {
					durations += dp.Count
				}
			}
		}
	}

	assert.Equal(t, map[string]int64{"/api/v1/orders": 2, "unknown": 1}, totals)
	assert.Equal(t, uint64(3), durations)
}
