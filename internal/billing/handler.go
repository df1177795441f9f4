package billing

import (
	"errors"
	"log/slog"
	"net/http"
	"reflect"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/odyssey-erp/odyssey-billing/internal/platform/httpx"
)

// Handler exposes billing operations over JSON.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	validator *validator.Validate
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{
		logger:    logger,
		service:   service,
		validator: NewValidator(),
	}
}

// NewValidator returns a validator that reports fields by their JSON names.
func NewValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(field reflect.StructField) string {
		name := strings.SplitN(field.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// MountRoutes registers billing routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Route("/billing-definitions", func(r chi.Router) {
		r.Post("/", h.createDefinition)
		r.Get("/{id}", h.getDefinition)
		r.Delete("/{id}", h.deleteDefinition)
		r.Post("/{id}/installments", h.appendInstallments)
		r.Patch("/{id}/due-day", h.changeDueDay)
		r.Patch("/{id}/status", h.setDefinitionStatus)
		r.Post("/{id}/repair", h.repairGroup)
	})
	r.Route("/installments", func(r chi.Router) {
		r.Post("/", h.createInstallment)
		r.Patch("/{id}/status", h.setInstallmentStatus)
		r.Delete("/{id}", h.deleteInstallment)
	})
}

func (h *Handler) createDefinition(w http.ResponseWriter, r *http.Request) {
	var req CreateDefinitionRequest
	if !h.decode(w, r, &req) {
		return
	}
	out, err := h.service.CreateBillingDefinition(r.Context(), req)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, out)
}

func (h *Handler) getDefinition(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	out, err := h.service.GetBillingDefinition(r.Context(), id)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, out)
}

func (h *Handler) deleteDefinition(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	if err := h.service.DeleteBillingDefinition(r.Context(), id); err != nil {
		h.respondError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) appendInstallments(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	var req AppendInstallmentsRequest
	if !h.decode(w, r, &req) {
		return
	}
	out, err := h.service.AppendInstallments(r.Context(), id, req)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, out)
}

func (h *Handler) changeDueDay(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	var req ChangeDueDayRequest
	if !h.decode(w, r, &req) {
		return
	}
	out, err := h.service.ChangeDueDay(r.Context(), id, req.DueDay)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	status := http.StatusOK
	if out.Partial() {
		status = http.StatusMultiStatus
	}
	httpx.JSON(w, status, out)
}

func (h *Handler) setDefinitionStatus(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	var req SetDefinitionStatusRequest
	if !h.decode(w, r, &req) {
		return
	}
	out, err := h.service.SetDefinitionActive(r.Context(), id, req.Status)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, out)
}

func (h *Handler) repairGroup(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	out, err := h.service.RepairGroup(r.Context(), id)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, out)
}

func (h *Handler) createInstallment(w http.ResponseWriter, r *http.Request) {
	var req CreateInstallmentRequest
	if !h.decode(w, r, &req) {
		return
	}
	out, err := h.service.CreateInstallment(r.Context(), req)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, out)
}

func (h *Handler) setInstallmentStatus(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	var req SetInstallmentStatusRequest
	if !h.decode(w, r, &req) {
		return
	}
	out, err := h.service.SetInstallmentStatus(r.Context(), id, req)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, out)
}

func (h *Handler) deleteInstallment(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	if err := h.service.DeleteInstallment(r.Context(), id); err != nil {
		h.respondError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) pathID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		httpx.Problem(w, http.StatusBadRequest, "Invalid ID", "id must be a positive integer")
		return 0, false
	}
	return id, true
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, target any) bool {
	if err := httpx.DecodeJSON(r, target); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Malformed Body", err.Error())
		return false
	}
	if err := h.validator.Struct(target); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			fields := make(map[string]string, len(verrs))
			for _, fieldErr := range verrs {
				fields[fieldErr.Field()] = fieldErr.Tag()
			}
			httpx.ValidationProblem(w, "request failed validation", fields)
			return false
		}
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return false
	}
	return true
}

func (h *Handler) respondError(w http.ResponseWriter, r *http.Request, err error) {
	var (
		verr    *ValidationError
		blocked *DeletionBlockedError
	)
	switch {
	case errors.As(err, &verr):
		httpx.ValidationProblem(w, verr.Error(), map[string]string{verr.Field: verr.Message})
	case errors.As(err, &blocked):
		httpx.Problem(w, http.StatusConflict, "Deletion Blocked", blocked.Reason())
	case errors.Is(err, ErrValidation):
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
	case errors.Is(err, ErrNotFound):
		httpx.Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, ErrInconsistentGroup):
		httpx.Problem(w, http.StatusConflict, "Inconsistent Group", err.Error())
	default:
		h.logger.ErrorContext(r.Context(), "billing request failed",
			slog.String("path", r.URL.Path),
			slog.Any("error", err),
		)
		httpx.RespondError(w, err)
	}
}
