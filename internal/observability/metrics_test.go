package observability

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMiddlewareRecordsRequests(t *testing.T) {
	metrics := NewMetrics()
	handler := metrics.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusCreated)
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/items", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusCreated, rec.Code)

	metrics.RecordStockMovement("kuwait-city", "raw_material", "out")
	metrics.RecordZohoPush("transfer_order", "pushed")

	scrape := httptest.NewRecorder()
	metrics.Handler().ServeHTTP(scrape, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	body := scrape.Body.String()

	require.True(t, strings.Contains(body, "soufra_http_requests_total"))
	require.True(t, strings.Contains(body, `soufra_stock_movements_total{direction="out",kind="raw_material",outlet="kuwait-city"} 1`))
	require.True(t, strings.Contains(body, `soufra_zoho_pushes_total{document="transfer_order",outcome="pushed"} 1`))
}

func TestNilMetricsAreSafe(t *testing.T) {
	var metrics *Metrics
	metrics.RecordStockMovement("kuwait-city", "raw_material", "in")
	metrics.RecordZohoPush("invoice", "failed")

	rec := httptest.NewRecorder()
	metrics.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
}
