package http

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	apperrors "github.com/LinhDev610/LilaShop/pkg/errors"
	"github.com/LinhDev610/LilaShop/pkg/pagination"
	"github.com/LinhDev610/LilaShop/pkg/validator"

	"github.com/LinhDev610/LilaShop/internal/domain"
	"github.com/LinhDev610/LilaShop/internal/repository"
	"github.com/LinhDev610/LilaShop/internal/service"
)

// PromotionHandler handles HTTP requests for promotion endpoints.
type PromotionHandler struct {
	service *service.PromotionService
	logger  *slog.Logger
}

// NewPromotionHandler creates a new promotion HTTP handler.
func NewPromotionHandler(svc *service.PromotionService, logger *slog.Logger) *PromotionHandler {
	return &PromotionHandler{
		service: svc,
		logger:  logger,
	}
}

// --- Request DTOs ---

// CreatePromotionRequest is the JSON request body for creating a promotion.
type CreatePromotionRequest struct {
	Code              string   `json:"code" validate:"required,min=1,max=50"`
	Name              string   `json:"name" validate:"required,min=1,max=255"`
	Description       string   `json:"description"`
	ImageURL          string   `json:"image_url" validate:"max=512"`
	DiscountValueType string   `json:"discount_value_type" validate:"required,oneof=PERCENTAGE AMOUNT"`
	DiscountValue     float64  `json:"discount_value" validate:"required,gt=0"`
	MinOrderValue     float64  `json:"min_order_value" validate:"gte=0"`
	MaxDiscountValue  float64  `json:"max_discount_value" validate:"gte=0"`
	ApplyScope        string   `json:"apply_scope" validate:"required,oneof=ORDER CATEGORY PRODUCT"`
	CategoryIDs       []string `json:"category_ids"`
	ProductIDs        []string `json:"product_ids"`
	StartDate         string   `json:"start_date" validate:"required"`
	ExpiryDate        string   `json:"expiry_date" validate:"required"`
	UsageLimit        int      `json:"usage_limit" validate:"gte=0"`
}

// UpdatePromotionRequest is the JSON request body for updating a promotion.
type UpdatePromotionRequest struct {
	Code              *string  `json:"code" validate:"omitempty,min=1,max=50"`
	Name              *string  `json:"name" validate:"omitempty,min=1,max=255"`
	Description       *string  `json:"description"`
	ImageURL          *string  `json:"image_url" validate:"omitempty,max=512"`
	DiscountValueType *string  `json:"discount_value_type" validate:"omitempty,oneof=PERCENTAGE AMOUNT"`
	DiscountValue     *float64 `json:"discount_value" validate:"omitempty,gt=0"`
	MinOrderValue     *float64 `json:"min_order_value" validate:"omitempty,gte=0"`
	MaxDiscountValue  *float64 `json:"max_discount_value" validate:"omitempty,gte=0"`
	ApplyScope        *string  `json:"apply_scope" validate:"omitempty,oneof=ORDER CATEGORY PRODUCT"`
	CategoryIDs       []string `json:"category_ids"`
	ProductIDs        []string `json:"product_ids"`
	StartDate         *string  `json:"start_date"`
	ExpiryDate        *string  `json:"expiry_date"`
	UsageLimit        *int     `json:"usage_limit" validate:"omitempty,gte=0"`
}

// DecidePromotionRequest is the JSON request body for approving or rejecting.
type DecidePromotionRequest struct {
	Action string `json:"action" validate:"required,oneof=APPROVE REJECT"`
	Reason string `json:"reason" validate:"max=500"`
}

// --- Response envelope ---

type response struct {
	Data  any            `json:"data,omitempty"`
	Error *errorResponse `json:"error,omitempty"`
}

type errorResponse struct {
	Code    string            `json:"code"`
	Message string            `json:"message"`
	Fields  map[string]string `json:"fields,omitempty"`
}

// --- Handlers ---

// CreatePromotion handles POST /api/v1/promotions
func (h *PromotionHandler) CreatePromotion(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20) // 1 MB limit
	actor, ok := actorFromRequest(w, r)
	if !ok {
		return
	}

	var req CreatePromotionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, response{
			Error: &errorResponse{Code: "INVALID_INPUT", Message: "invalid request body: " + err.Error()},
		})
		return
	}

	if err := validator.Validate(req); err != nil {
		writeValidationError(w, err)
		return
	}

	startDate, ok := parseDate(w, "start_date", req.StartDate)
	if !ok {
		return
	}
	expiryDate, ok := parseDate(w, "expiry_date", req.ExpiryDate)
	if !ok {
		return
	}

	input := &service.CreatePromotionInput{
		Code:              req.Code,
		Name:              req.Name,
		Description:       req.Description,
		ImageURL:          req.ImageURL,
		DiscountValueType: req.DiscountValueType,
		DiscountValue:     req.DiscountValue,
		MinOrderValue:     req.MinOrderValue,
		MaxDiscountValue:  req.MaxDiscountValue,
		ApplyScope:        req.ApplyScope,
		CategoryIDs:       req.CategoryIDs,
		ProductIDs:        req.ProductIDs,
		StartDate:         startDate,
		ExpiryDate:        expiryDate,
		UsageLimit:        req.UsageLimit,
	}

	promo, err := h.service.Create(r.Context(), actor, input)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusCreated, response{Data: promo})
}

// ListPromotions handles GET /api/v1/promotions
func (h *PromotionHandler) ListPromotions(w http.ResponseWriter, r *http.Request) {
	params := pagination.FromRequest(r)
	filter := repository.PromotionFilter{
		Page:    params.Page,
		PerPage: params.PerPage,
	}
	if v := r.URL.Query().Get("status"); v != "" {
		filter.Status = &v
	}

	promos, total, err := h.service.List(r.Context(), filter)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, pagination.NewResult(promos, total, params))
}

// ListActivePromotions handles GET /api/v1/promotions/active
func (h *PromotionHandler) ListActivePromotions(w http.ResponseWriter, r *http.Request) {
	asOf := time.Now()
	if v := r.URL.Query().Get("as_of"); v != "" {
		parsed, err := time.Parse("2006-01-02", v)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, response{
				Error: &errorResponse{Code: "INVALID_INPUT", Message: "as_of must be in YYYY-MM-DD format"},
			})
			return
		}
		asOf = parsed
	}

	promos, err := h.service.ListActive(r.Context(), asOf)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, response{Data: promos})
}

// ListMyPromotions handles GET /api/v1/promotions/mine
func (h *PromotionHandler) ListMyPromotions(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFromRequest(w, r)
	if !ok {
		return
	}

	promos, err := h.service.ListMine(r.Context(), actor)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, response{Data: promos})
}

// GetPromotion handles GET /api/v1/promotions/{id}
func (h *PromotionHandler) GetPromotion(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" {
		writeJSON(w, http.StatusBadRequest, response{
			Error: &errorResponse{Code: "INVALID_INPUT", Message: "promotion id is required"},
		})
		return
	}

	promo, err := h.service.Get(r.Context(), id)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, response{Data: promo})
}

// UpdatePromotion handles PUT /api/v1/promotions/{id}
func (h *PromotionHandler) UpdatePromotion(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20) // 1 MB limit
	actor, ok := actorFromRequest(w, r)
	if !ok {
		return
	}

	id := chi.URLParam(r, "id")
	if id == "" {
		writeJSON(w, http.StatusBadRequest, response{
			Error: &errorResponse{Code: "INVALID_INPUT", Message: "promotion id is required"},
		})
		return
	}

	var req UpdatePromotionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, response{
			Error: &errorResponse{Code: "INVALID_INPUT", Message: "invalid request body: " + err.Error()},
		})
		return
	}

	if err := validator.Validate(req); err != nil {
		writeValidationError(w, err)
		return
	}

	input := &service.UpdatePromotionInput{
		Code:              req.Code,
		Name:              req.Name,
		Description:       req.Description,
		ImageURL:          req.ImageURL,
		DiscountValueType: req.DiscountValueType,
		DiscountValue:     req.DiscountValue,
		MinOrderValue:     req.MinOrderValue,
		MaxDiscountValue:  req.MaxDiscountValue,
		ApplyScope:        req.ApplyScope,
		CategoryIDs:       req.CategoryIDs,
		ProductIDs:        req.ProductIDs,
		UsageLimit:        req.UsageLimit,
	}

	if req.StartDate != nil {
		startDate, ok := parseDate(w, "start_date", *req.StartDate)
		if !ok {
			return
		}
		input.StartDate = &startDate
	}
	if req.ExpiryDate != nil {
		expiryDate, ok := parseDate(w, "expiry_date", *req.ExpiryDate)
		if !ok {
			return
		}
		input.ExpiryDate = &expiryDate
	}

	promo, err := h.service.Update(r.Context(), actor, id, input)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, response{Data: promo})
}

// DecidePromotion handles POST /api/v1/promotions/{id}/decision
func (h *PromotionHandler) DecidePromotion(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20) // 1 MB limit
	actor, ok := actorFromRequest(w, r)
	if !ok {
		return
	}

	id := chi.URLParam(r, "id")
	if id == "" {
		writeJSON(w, http.StatusBadRequest, response{
			Error: &errorResponse{Code: "INVALID_INPUT", Message: "promotion id is required"},
		})
		return
	}

	var req DecidePromotionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, response{
			Error: &errorResponse{Code: "INVALID_INPUT", Message: "invalid request body: " + err.Error()},
		})
		return
	}

	if err := validator.Validate(req); err != nil {
		writeValidationError(w, err)
		return
	}

	promo, err := h.service.Decide(r.Context(), actor, id, req.Action, req.Reason)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, response{Data: promo})
}

// DeletePromotion handles DELETE /api/v1/promotions/{id}
func (h *PromotionHandler) DeletePromotion(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFromRequest(w, r)
	if !ok {
		return
	}

	id := chi.URLParam(r, "id")
	if id == "" {
		writeJSON(w, http.StatusBadRequest, response{
			Error: &errorResponse{Code: "INVALID_INPUT", Message: "promotion id is required"},
		})
		return
	}

	if err := h.service.Delete(r.Context(), actor, id); err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusNoContent, nil)
}

// --- Helpers ---

// actorFromRequest reads the calling user's identity from the gateway-set
// headers. Requests without them are rejected.
func actorFromRequest(w http.ResponseWriter, r *http.Request) (domain.Actor, bool) {
	userID := r.Header.Get("X-User-ID")
	role := r.Header.Get("X-User-Role")
	if userID == "" || role == "" {
		writeJSON(w, http.StatusUnauthorized, response{
			Error: &errorResponse{Code: "UNAUTHORIZED", Message: "missing user identity headers"},
		})
		return domain.Actor{}, false
	}
	if role != domain.RoleAdmin && role != domain.RoleStaff {
		writeJSON(w, http.StatusForbidden, response{
			Error: &errorResponse{Code: "FORBIDDEN", Message: "unknown role " + role},
		})
		return domain.Actor{}, false
	}
	return domain.Actor{ID: userID, Role: role}, true
}

// parseDate accepts either a bare date or a full RFC3339 timestamp.
func parseDate(w http.ResponseWriter, field, value string) (time.Time, bool) {
	if t, err := time.Parse("2006-01-02", value); err == nil {
		return t, true
	}
	if t, err := time.Parse(time.RFC3339, value); err == nil {
		return t, true
	}
	writeJSON(w, http.StatusBadRequest, response{
		Error: &errorResponse{Code: "INVALID_INPUT", Message: field + " must be in YYYY-MM-DD or RFC3339 format"},
	})
	return time.Time{}, false
}

func writeError(w http.ResponseWriter, r *http.Request, logger *slog.Logger, err error) {
	var appErr *apperrors.AppError
	if errors.As(err, &appErr) {
		writeJSON(w, appErr.Status, response{
			Error: &errorResponse{Code: appErr.Code, Message: appErr.Message},
		})
		return
	}

	status := apperrors.HTTPStatus(err)
	code := "INTERNAL_ERROR"
	message := "an internal error occurred"

	switch {
	case errors.Is(err, apperrors.ErrNotFound):
		code = "NOT_FOUND"
		message = "resource not found"
		status = http.StatusNotFound
	case errors.Is(err, apperrors.ErrAlreadyExists):
		code = "ALREADY_EXISTS"
		message = "resource already exists"
		status = http.StatusConflict
	case errors.Is(err, apperrors.ErrInvalidInput):
		code = "INVALID_INPUT"
		message = err.Error()
		status = http.StatusBadRequest
	}

	if status == http.StatusInternalServerError {
		logger.ErrorContext(r.Context(), "internal error",
			slog.String("error", err.Error()),
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
		)
	}

	writeJSON(w, status, response{
		Error: &errorResponse{Code: code, Message: message},
	})
}

func writeValidationError(w http.ResponseWriter, err error) {
	var valErr *validator.ValidationError
	if errors.As(err, &valErr) {
		writeJSON(w, http.StatusBadRequest, response{
			Error: &errorResponse{
				Code:    "VALIDATION_ERROR",
				Message: "request validation failed",
				Fields:  valErr.Fields(),
			},
		})
		return
	}

	writeJSON(w, http.StatusBadRequest, response{
		Error: &errorResponse{Code: "INVALID_INPUT", Message: err.Error()},
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
