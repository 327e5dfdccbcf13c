package http

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/LinhDev610/LilaShop/pkg/pagination"
	"github.com/LinhDev610/LilaShop/pkg/validator"

	"github.com/LinhDev610/LilaShop/internal/repository"
	"github.com/LinhDev610/LilaShop/internal/service"
)

// VoucherHandler handles HTTP requests for voucher endpoints.
type VoucherHandler struct {
	service *service.VoucherService
	logger  *slog.Logger
}

// NewVoucherHandler creates a new voucher HTTP handler.
func NewVoucherHandler(svc *service.VoucherService, logger *slog.Logger) *VoucherHandler {
	return &VoucherHandler{
		service: svc,
		logger:  logger,
	}
}

// --- Request DTOs ---

// CreateVoucherRequest is the JSON request body for creating a voucher.
type CreateVoucherRequest struct {
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
	UsagePerUser      int      `json:"usage_per_user" validate:"gte=0"`
}

// UpdateVoucherRequest is the JSON request body for updating a voucher.
type UpdateVoucherRequest struct {
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
	UsagePerUser      *int     `json:"usage_per_user" validate:"omitempty,gte=0"`
}

// DecideVoucherRequest is the JSON request body for approving or rejecting.
type DecideVoucherRequest struct {
	Action string `json:"action" validate:"required,oneof=APPROVE REJECT"`
	Reason string `json:"reason" validate:"max=500"`
}

// RedeemVoucherRequest is the JSON request body for redeeming a voucher.
type RedeemVoucherRequest struct {
	Code       string  `json:"code" validate:"required"`
	OrderID    string  `json:"order_id" validate:"required"`
	OrderValue float64 `json:"order_value" validate:"required,gt=0"`
}

// --- Handlers ---

// CreateVoucher handles POST /api/v1/vouchers
func (h *VoucherHandler) CreateVoucher(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20) // 1 MB limit
	actor, ok := actorFromRequest(w, r)
	if !ok {
		return
	}

	var req CreateVoucherRequest
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

	input := &service.CreateVoucherInput{
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
		UsagePerUser:      req.UsagePerUser,
	}

	voucher, err := h.service.Create(r.Context(), actor, input)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusCreated, response{Data: voucher})
}

// ListVouchers handles GET /api/v1/vouchers
func (h *VoucherHandler) ListVouchers(w http.ResponseWriter, r *http.Request) {
	params := pagination.FromRequest(r)
	filter := repository.VoucherFilter{
		Page:    params.Page,
		PerPage: params.PerPage,
	}
	if v := r.URL.Query().Get("status"); v != "" {
		filter.Status = &v
	}

	vouchers, total, err := h.service.List(r.Context(), filter)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, pagination.NewResult(vouchers, total, params))
}

// ListRedeemableVouchers handles GET /api/v1/vouchers/redeemable
func (h *VoucherHandler) ListRedeemableVouchers(w http.ResponseWriter, r *http.Request) {
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

	// Optional: filter out vouchers the caller has exhausted.
	userID := r.Header.Get("X-User-ID")

	vouchers, err := h.service.ListRedeemable(r.Context(), userID, asOf)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, response{Data: vouchers})
}

// GetVoucher handles GET /api/v1/vouchers/{id}
func (h *VoucherHandler) GetVoucher(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" {
		writeJSON(w, http.StatusBadRequest, response{
			Error: &errorResponse{Code: "INVALID_INPUT", Message: "voucher id is required"},
		})
		return
	}

	voucher, err := h.service.Get(r.Context(), id)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, response{Data: voucher})
}

// UpdateVoucher handles PUT /api/v1/vouchers/{id}
func (h *VoucherHandler) UpdateVoucher(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20) // 1 MB limit
	actor, ok := actorFromRequest(w, r)
	if !ok {
		return
	}

	id := chi.URLParam(r, "id")
	if id == "" {
		writeJSON(w, http.StatusBadRequest, response{
			Error: &errorResponse{Code: "INVALID_INPUT", Message: "voucher id is required"},
		})
		return
	}

	var req UpdateVoucherRequest
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

	input := &service.UpdateVoucherInput{
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
		UsagePerUser:      req.UsagePerUser,
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

	voucher, err := h.service.Update(r.Context(), actor, id, input)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, response{Data: voucher})
}

// DecideVoucher handles POST /api/v1/vouchers/{id}/decision
func (h *VoucherHandler) DecideVoucher(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20) // 1 MB limit
	actor, ok := actorFromRequest(w, r)
	if !ok {
		return
	}

	id := chi.URLParam(r, "id")
	if id == "" {
		writeJSON(w, http.StatusBadRequest, response{
			Error: &errorResponse{Code: "INVALID_INPUT", Message: "voucher id is required"},
		})
		return
	}

	var req DecideVoucherRequest
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

	voucher, err := h.service.Decide(r.Context(), actor, id, req.Action, req.Reason)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, response{Data: voucher})
}

// DeleteVoucher handles DELETE /api/v1/vouchers/{id}
func (h *VoucherHandler) DeleteVoucher(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFromRequest(w, r)
	if !ok {
		return
	}

	id := chi.URLParam(r, "id")
	if id == "" {
		writeJSON(w, http.StatusBadRequest, response{
			Error: &errorResponse{Code: "INVALID_INPUT", Message: "voucher id is required"},
		})
		return
	}

	if err := h.service.Delete(r.Context(), actor, id); err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusNoContent, nil)
}

// RedeemVoucher handles POST /api/v1/vouchers/redeem
func (h *VoucherHandler) RedeemVoucher(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20) // 1 MB limit
	userID := r.Header.Get("X-User-ID")
	if userID == "" {
		writeJSON(w, http.StatusUnauthorized, response{
			Error: &errorResponse{Code: "UNAUTHORIZED", Message: "missing user identity headers"},
		})
		return
	}

	var req RedeemVoucherRequest
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

	result, err := h.service.Redeem(r.Context(), &service.RedeemInput{
		Code:       req.Code,
		UserID:     userID,
		OrderID:    req.OrderID,
		OrderValue: req.OrderValue,
	})
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, response{Data: result})
}
