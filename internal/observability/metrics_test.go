package observability

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func scrape(t *testing.T, metrics *Metrics) string {
	t.Helper()
	rr := httptest.NewRecorder()
	metrics.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	return rr.Body.String()
}

func TestMetricsHandlerExposesBillingMetrics(t *testing.T) {
	metrics := NewMetrics()
	metrics.Billing().InstallmentsGenerated(3)
	metrics.Billing().CashFlowSync(false)

	body := scrape(t, metrics)
	assert.Contains(t, body, "odyssey_billing_installments_generated_total 3")
	assert.Contains(t, body, `odyssey_billing_cashflow_sync_total{result="failure"} 1`)
	assert.Contains(t, body, "go_goroutines")
}

func TestMetricsMiddlewareRecordsRequest(t *testing.T) {
	metrics := NewMetrics()

	handler := metrics.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))

	routeCtx := chi.NewRouteContext()
	routeCtx.RoutePatterns = append(routeCtx.RoutePatterns, "/test")

	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	ctx := context.WithValue(req.Context(), chi.RouteCtxKey, routeCtx)
	req = req.WithContext(ctx)

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	require.Equal(t, http.StatusTeapot, rr.Code)

	body := scrape(t, metrics)
	if !strings.Contains(body, `odyssey_billing_http_requests_total{code="418",route="/test"} 1`) {
		t.Fatalf("expected metrics to record request, got: %s", body)
	}
	assert.Contains(t, body, `odyssey_billing_http_request_duration_seconds_bucket{route="/test"`)
}

func TestBillingMetricsNilSafe(t *testing.T) {
	var m *BillingMetrics
	assert.NotPanics(t, func() {
		m.InstallmentsGenerated(1)
		m.DueDatesRecalculated(1, 1)
		m.Transition("pending", "paid")
		m.CashFlowSync(true)
		m.GroupRepaired()
	})
}

func TestBillingMetricsCounters(t *testing.T) {
	metrics := NewMetrics()
	m := metrics.Billing()

	m.DueDatesRecalculated(4, 1)
	m.Transition("pending", "paid")
	m.Transition("pending", "paid")
	m.GroupRepaired()

	body := scrape(t, metrics)
	assert.Contains(t, body, `odyssey_billing_due_date_recalculations_total{result="updated"} 4`)
	assert.Contains(t, body, `odyssey_billing_due_date_recalculations_total{result="failed"} 1`)
	assert.Contains(t, body, `odyssey_billing_status_transitions_total{from="pending",to="paid"} 2`)
	assert.Contains(t, body, "odyssey_billing_group_repairs_total 1")
}
