package billing

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-billing/internal/platform/httpx"
)

func newTestRouter(t *testing.T) (http.Handler, *Service, *memRepository) {
	t.Helper()
	svc, repo, _ := newTestService(t)
	h := NewHandler(slog.Default(), svc)
	r := chi.NewRouter()
	r.Route("/api", h.MountRoutes)
	return r, svc, repo
}

func doJSON(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func TestHandlerCreateDefinition(t *testing.T) {
	router, _, repo := newTestRouter(t)

	rr := doJSON(t, router, http.MethodPost, "/api/billing-definitions/", `{
		"client_id": 42, "description": "Course", "amount": "300",
		"due_day": 5, "start_date": "2024-01-01", "installments": 3
	}`)
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())

	var out DefinitionWithInstallments
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &out))
	assert.Equal(t, 3, out.Installments)
	assert.Len(t, out.Rows, 3)
	assert.Len(t, repo.rows, 3)
}

func TestHandlerCreateDefinitionValidation(t *testing.T) {
	router, _, _ := newTestRouter(t)

	rr := doJSON(t, router, http.MethodPost, "/api/billing-definitions/", `{
		"client_id": 42, "description": "Course", "amount": "300",
		"due_day": 40, "start_date": "01/01/2024", "installments": 3
	}`)
	require.Equal(t, http.StatusBadRequest, rr.Code)

	var problem httpx.ProblemDetail
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &problem))
	assert.Equal(t, "max", problem.Errors["due_day"])
	assert.Equal(t, "datetime", problem.Errors["start_date"])
}

func TestHandlerPaidWithoutPaymentDate(t *testing.T) {
	router, svc, _ := newTestRouter(t)
	def := createCourse(t, svc)

	rr := doJSON(t, router, http.MethodPatch, "/api/installments/"+itoa(def.Rows[0].ID)+"/status", `{"status":"paid"}`)
	require.Equal(t, http.StatusBadRequest, rr.Code)

	var problem httpx.ProblemDetail
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &problem))
	assert.Equal(t, "payment date required", problem.Errors["payment_date"])
}

func TestHandlerDeleteBlocked(t *testing.T) {
	router, svc, _ := newTestRouter(t)
	def := createCourse(t, svc)

	rr := doJSON(t, router, http.MethodPatch, "/api/installments/"+itoa(def.Rows[0].ID)+"/status", `{"status":"cancelled"}`)
	require.Equal(t, http.StatusOK, rr.Code)

	rr = doJSON(t, router, http.MethodDelete, "/api/billing-definitions/"+itoa(def.ID), "")
	require.Equal(t, http.StatusConflict, rr.Code)
	assert.Contains(t, rr.Body.String(), "1 installment(s) cancelled")
}

func TestHandlerNotFoundAndBadID(t *testing.T) {
	router, _, _ := newTestRouter(t)

	rr := doJSON(t, router, http.MethodGet, "/api/billing-definitions/999", "")
	assert.Equal(t, http.StatusNotFound, rr.Code)

	rr = doJSON(t, router, http.MethodGet, "/api/billing-definitions/abc", "")
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestHandlerChangeDueDayPartial(t *testing.T) {
	router, svc, repo := newTestRouter(t)
	def := createCourse(t, svc)
	repo.failRowUpdates[def.Rows[2].ID] = true

	rr := doJSON(t, router, http.MethodPatch, "/api/billing-definitions/"+itoa(def.ID)+"/due-day", `{"due_day":20}`)
	require.Equal(t, http.StatusMultiStatus, rr.Code)

	var res PartialBatchResult
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &res))
	assert.Equal(t, 2, res.Updated)
	assert.Equal(t, 1, res.Failed)
}

func TestHandlerRejectsUnknownFields(t *testing.T) {
	router, svc, _ := newTestRouter(t)
	def := createCourse(t, svc)

	rr := doJSON(t, router, http.MethodPost, "/api/billing-definitions/"+itoa(def.ID)+"/installments", `{"count":1,"from":4}`)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func itoa(id int64) string {
	return strconv.FormatInt(id, 10)
}
