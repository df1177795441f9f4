package views

import (
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/odyssey-erp/odyssey-billing/internal/platform/httpx"
)

// Handler exposes projections over HTTP.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	validator *validator.Validate
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service, validator: validator.New()}
}

// MountRoutes registers the projection route.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/billing-views", h.listViews)
}

type viewQuery struct {
	Scope  string `validate:"omitempty,oneof=open closed all"`
	Mode   string `validate:"omitempty,oneof=grouped expanded"`
	Search string `validate:"max=200"`
}

// Grouped rows only carry the two-value derived status.
const (
	groupedStatusRule  = "dive,oneof=all active inactive pending cancelled"
	expandedStatusRule = "dive,oneof=all pending billed awaiting_invoice paid overdue cancelled partially_paid"
)

func (h *Handler) listViews(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	query := viewQuery{
		Scope:  q.Get("scope"),
		Mode:   q.Get("mode"),
		Search: q.Get("q"),
	}
	if err := h.validator.Struct(query); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Query", err.Error())
		return
	}
	statuses := splitList(q["status"])
	rule := groupedStatusRule
	if Mode(query.Mode) == ModeExpanded {
		rule = expandedStatusRule
	}
	if err := h.validator.Var(statuses, rule); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Query",
			"status must be one of "+strings.TrimPrefix(rule, "dive,oneof=")+" in "+modeName(query.Mode)+" mode")
		return
	}
	deliveryOnly := false
	if raw := q.Get("delivery_only"); raw != "" {
		v, err := strconv.ParseBool(raw)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Invalid Query", "delivery_only must be a boolean")
			return
		}
		deliveryOnly = v
	}

	scope := Scope(query.Scope)
	if scope == "" {
		scope = ScopeAll
	}
	mode := Mode(query.Mode)
	if mode == "" {
		mode = ModeGrouped
	}
	views, err := h.service.ProjectViews(r.Context(), scope, mode, Filters{
		Statuses:     statuses,
		Search:       query.Search,
		DeliveryOnly: deliveryOnly,
	})
	if err != nil {
		h.logger.ErrorContext(r.Context(), "project billing views", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"data": views, "count": len(views)})
}

func modeName(mode string) string {
	if mode == "" {
		return string(ModeGrouped)
	}
	return mode
}

// splitList accepts both ?status=a&status=b and ?status=a,b.
func splitList(values []string) []string {
	var out []string
	for _, v := range values {
		for _, part := range strings.Split(v, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}
