package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	apperrors "github.com/LinhDev610/LilaShop/pkg/errors"

	"github.com/LinhDev610/LilaShop/internal/domain"
	"github.com/LinhDev610/LilaShop/internal/event"
	"github.com/LinhDev610/LilaShop/internal/repository"
)

// VoucherService manages voucher lifecycle and redemption. Vouchers share the
// promotion approval machinery but never cascade into product pricing; their
// discount is computed at redemption time against the order value.
type VoucherService struct {
	vouchers repository.VoucherRepository
	scope    *ScopeResolver
	media    MediaReleaser
	producer *event.Producer
	locks    *KeyLock
	logger   *slog.Logger
	now      func() time.Time
}

// NewVoucherService creates a new voucher service.
func NewVoucherService(
	vouchers repository.VoucherRepository,
	scope *ScopeResolver,
	media MediaReleaser,
	producer *event.Producer,
	locks *KeyLock,
	logger *slog.Logger,
	now func() time.Time,
) *VoucherService {
	return &VoucherService{
		vouchers: vouchers,
		scope:    scope,
		media:    media,
		producer: producer,
		locks:    locks,
		logger:   logger,
		now:      now,
	}
}

// CreateVoucherInput holds the parameters for creating a voucher.
type CreateVoucherInput struct {
	Code              string
	Name              string
	Description       string
	ImageURL          string
	DiscountValueType string
	DiscountValue     float64
	MinOrderValue     float64
	MaxDiscountValue  float64
	ApplyScope        string
	CategoryIDs       []string
	ProductIDs        []string
	StartDate         time.Time
	ExpiryDate        time.Time
	UsageLimit        int
	UsagePerUser      int
}

// UpdateVoucherInput holds the parameters for a partial voucher update.
type UpdateVoucherInput struct {
	Code              *string
	Name              *string
	Description       *string
	ImageURL          *string
	DiscountValueType *string
	DiscountValue     *float64
	MinOrderValue     *float64
	MaxDiscountValue  *float64
	ApplyScope        *string
	CategoryIDs       []string
	ProductIDs        []string
	StartDate         *time.Time
	ExpiryDate        *time.Time
	UsageLimit        *int
	UsagePerUser      *int
}

// RedeemInput identifies a redemption attempt.
type RedeemInput struct {
	Code       string
	UserID     string
	OrderID    string
	OrderValue float64
}

// RedeemResult is the outcome of a successful redemption.
type RedeemResult struct {
	VoucherID       string  `json:"voucher_id"`
	Code            string  `json:"code"`
	DiscountApplied float64 `json:"discount_applied"`
	FinalOrderValue float64 `json:"final_order_value"`
}

// Create validates and persists a new voucher. Every voucher enters the
// approval queue regardless of who submits it.
func (s *VoucherService) Create(ctx context.Context, actor domain.Actor, input *CreateVoucherInput) (*domain.Voucher, error) {
	if err := validateDiscountRule(input.Name, input.DiscountValueType, input.DiscountValue, input.MinOrderValue, input.MaxDiscountValue); err != nil {
		return nil, err
	}
	startDate := domain.DateOnly(input.StartDate)
	expiryDate := domain.DateOnly(input.ExpiryDate)
	if startDate.After(expiryDate) {
		return nil, apperrors.InvalidInput("start date must not be after expiry date")
	}
	if input.UsagePerUser < 0 {
		return nil, apperrors.InvalidInput("usage per user must not be negative")
	}

	code := strings.ToUpper(strings.TrimSpace(input.Code))
	if code == "" {
		return nil, apperrors.InvalidInput("voucher code is required")
	}
	exists, err := s.vouchers.ExistsByCode(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("check voucher code: %w", err)
	}
	if exists {
		return nil, apperrors.Conflict("DUPLICATE_CODE", fmt.Sprintf("voucher code %q is already in use", code))
	}

	targets, err := s.scope.Resolve(ctx, input.ApplyScope, input.CategoryIDs, input.ProductIDs)
	if err != nil {
		return nil, err
	}

	nowTs := s.now().UTC()
	voucher := &domain.Voucher{
		ID:                uuid.New().String(),
		Code:              code,
		Name:              input.Name,
		Description:       input.Description,
		ImageURL:          input.ImageURL,
		DiscountValueType: input.DiscountValueType,
		DiscountValue:     input.DiscountValue,
		MinOrderValue:     input.MinOrderValue,
		MaxDiscountValue:  input.MaxDiscountValue,
		ApplyScope:        targets.Scope,
		CategoryIDs:       targets.CategoryIDs,
		ProductIDs:        targets.ProductIDs,
		StartDate:         startDate,
		ExpiryDate:        expiryDate,
		Status:            domain.StatusPendingApproval,
		SubmittedBy:       actor.ID,
		SubmittedAt:       nowTs,
		UsageLimit:        input.UsageLimit,
		UsagePerUser:      input.UsagePerUser,
		CreatedAt:         nowTs,
		UpdatedAt:         nowTs,
	}
	if voucher.CategoryIDs == nil {
		voucher.CategoryIDs = []string{}
	}
	if voucher.ProductIDs == nil {
		voucher.ProductIDs = []string{}
	}

	if err := s.vouchers.Create(ctx, voucher); err != nil {
		return nil, fmt.Errorf("create voucher: %w", err)
	}

	s.logger.InfoContext(ctx, "voucher created",
		slog.String("voucher_id", voucher.ID),
		slog.String("code", voucher.Code),
		slog.String("submitter", actor.ID),
	)
	return voucher, nil
}

// Decide approves or rejects a pending voucher. An approved voucher becomes
// redeemable immediately; time eligibility is enforced at redemption time.
func (s *VoucherService) Decide(ctx context.Context, actor domain.Actor, id, action, reason string) (*domain.Voucher, error) {
	if !actor.IsAdmin() {
		return nil, apperrors.Forbidden("only an admin may approve or reject vouchers")
	}
	if action != domain.ActionApprove && action != domain.ActionReject {
		return nil, apperrors.InvalidInput(fmt.Sprintf("unknown approval action %q", action))
	}

	unlock := s.locks.Lock("voucher:" + id)
	defer unlock()

	voucher, err := s.vouchers.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get voucher: %w", err)
	}
	if voucher.Status != domain.StatusPendingApproval {
		return nil, apperrors.Conflict("NOT_PENDING", fmt.Sprintf("voucher %s is %s, not pending approval", id, voucher.Status))
	}

	nowTs := s.now().UTC()
	voucher.ApprovedBy = actor.ID
	approvedAt := nowTs
	voucher.ApprovedAt = &approvedAt
	voucher.UpdatedAt = nowTs

	switch action {
	case domain.ActionApprove:
		voucher.Status = domain.StatusApproved
		voucher.RejectionReason = ""
		voucher.IsActive = true
	case domain.ActionReject:
		voucher.Status = domain.StatusRejected
		voucher.RejectionReason = reason
		voucher.IsActive = false
	}

	if err := s.vouchers.Update(ctx, voucher); err != nil {
		return nil, fmt.Errorf("update voucher: %w", err)
	}

	s.logger.InfoContext(ctx, "voucher decided",
		slog.String("voucher_id", voucher.ID),
		slog.String("action", action),
		slog.String("approver", actor.ID),
	)
	return voucher, nil
}

// Update applies a partial edit. A staff edit of a rejected voucher resubmits
// it for approval with the rejection reason cleared.
func (s *VoucherService) Update(ctx context.Context, actor domain.Actor, id string, input *UpdateVoucherInput) (*domain.Voucher, error) {
	unlock := s.locks.Lock("voucher:" + id)
	defer unlock()

	voucher, err := s.vouchers.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get voucher: %w", err)
	}
	if !actor.IsAdmin() && voucher.SubmittedBy != actor.ID {
		return nil, apperrors.Forbidden("only the submitter or an admin may edit this voucher")
	}

	if input.Code != nil {
		code := strings.ToUpper(strings.TrimSpace(*input.Code))
		if code != voucher.Code {
			exists, err := s.vouchers.ExistsByCode(ctx, code)
			if err != nil {
				return nil, fmt.Errorf("check voucher code: %w", err)
			}
			if exists {
				return nil, apperrors.Conflict("DUPLICATE_CODE", fmt.Sprintf("voucher code %q is already in use", code))
			}
			voucher.Code = code
		}
	}

	applyVoucherEdits(voucher, input)

	if input.ApplyScope != nil || input.CategoryIDs != nil || input.ProductIDs != nil {
		scope := voucher.ApplyScope
		if input.ApplyScope != nil {
			scope = *input.ApplyScope
		}
		targets, err := s.scope.Resolve(ctx, scope, input.CategoryIDs, input.ProductIDs)
		if err != nil {
			return nil, err
		}
		voucher.ApplyScope = targets.Scope
		voucher.CategoryIDs = targets.CategoryIDs
		voucher.ProductIDs = targets.ProductIDs
		if voucher.CategoryIDs == nil {
			voucher.CategoryIDs = []string{}
		}
		if voucher.ProductIDs == nil {
			voucher.ProductIDs = []string{}
		}
	}

	if voucher.StartDate.After(voucher.ExpiryDate) {
		return nil, apperrors.InvalidInput("start date must not be after expiry date")
	}
	if voucher.UsagePerUser < 0 {
		return nil, apperrors.InvalidInput("usage per user must not be negative")
	}

	if !actor.IsAdmin() && voucher.Status == domain.StatusRejected {
		voucher.Status = domain.StatusPendingApproval
		voucher.RejectionReason = ""
	}

	voucher.UpdatedAt = s.now().UTC()

	if err := s.vouchers.Update(ctx, voucher); err != nil {
		return nil, fmt.Errorf("update voucher: %w", err)
	}

	s.logger.InfoContext(ctx, "voucher updated",
		slog.String("voucher_id", voucher.ID),
		slog.String("actor", actor.ID),
	)
	return voucher, nil
}

// Delete releases the voucher's stored image when unreferenced and removes
// the record. Past redemptions are kept for audit.
func (s *VoucherService) Delete(ctx context.Context, actor domain.Actor, id string) error {
	unlock := s.locks.Lock("voucher:" + id)
	defer unlock()

	voucher, err := s.vouchers.GetByID(ctx, id)
	if err != nil {
		return fmt.Errorf("get voucher: %w", err)
	}
	if !actor.IsAdmin() && voucher.SubmittedBy != actor.ID {
		return apperrors.Forbidden("only the submitter or an admin may delete this voucher")
	}

	if voucher.ImageURL != "" {
		refs, err := s.vouchers.CountByImageURL(ctx, voucher.ImageURL)
		if err != nil {
			s.logger.WarnContext(ctx, "failed to count image references",
				slog.String("voucher_id", voucher.ID),
				slog.String("error", err.Error()),
			)
		} else if refs <= 1 {
			if err := s.media.Release(ctx, voucher.ImageURL); err != nil {
				s.logger.WarnContext(ctx, "failed to release voucher image",
					slog.String("voucher_id", voucher.ID),
					slog.String("image_url", voucher.ImageURL),
					slog.String("error", err.Error()),
				)
			}
		}
	}

	if err := s.vouchers.Delete(ctx, id); err != nil {
		return fmt.Errorf("delete voucher: %w", err)
	}

	s.logger.InfoContext(ctx, "voucher deleted",
		slog.String("voucher_id", voucher.ID),
		slog.String("actor", actor.ID),
	)
	return nil
}

// Get retrieves a voucher by id.
func (s *VoucherService) Get(ctx context.Context, id string) (*domain.Voucher, error) {
	voucher, err := s.vouchers.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get voucher: %w", err)
	}
	return voucher, nil
}

// List returns a filtered, paginated voucher list.
func (s *VoucherService) List(ctx context.Context, filter repository.VoucherFilter) ([]domain.Voucher, int, error) {
	if filter.Page <= 0 {
		filter.Page = 1
	}
	if filter.PerPage <= 0 {
		filter.PerPage = 20
	}
	vouchers, total, err := s.vouchers.List(ctx, filter)
	if err != nil {
		return nil, 0, fmt.Errorf("list vouchers: %w", err)
	}
	return vouchers, total, nil
}

// ListRedeemable returns the vouchers the given user can still redeem on the
// given day. Vouchers the user has exhausted are filtered out.
func (s *VoucherService) ListRedeemable(ctx context.Context, userID string, asOf time.Time) ([]domain.Voucher, error) {
	day := domain.DateOnly(asOf)
	vouchers, err := s.vouchers.ListActive(ctx, day)
	if err != nil {
		return nil, fmt.Errorf("list active vouchers: %w", err)
	}
	if userID == "" {
		return vouchers, nil
	}

	redeemed, err := s.vouchers.ListRedeemedVoucherIDs(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list redeemed vouchers: %w", err)
	}
	redeemedSet := make(map[string]struct{}, len(redeemed))
	for _, id := range redeemed {
		redeemedSet[id] = struct{}{}
	}

	out := make([]domain.Voucher, 0, len(vouchers))
	for _, v := range vouchers {
		if v.UsageLimit > 0 && v.UsageCount >= v.UsageLimit {
			continue
		}
		if _, ok := redeemedSet[v.ID]; ok && v.UsagePerUser > 0 {
			used, err := s.vouchers.CountRedemptionsByUser(ctx, v.ID, userID)
			if err != nil {
				return nil, fmt.Errorf("count redemptions: %w", err)
			}
			if used >= v.UsagePerUser {
				continue
			}
		}
		out = append(out, v)
	}
	return out, nil
}

// Redeem applies a voucher to an order, enforcing time eligibility, minimum
// order value, the global usage limit, and the per-user limit. The voucher
// lock serialises concurrent redemption attempts against the same code.
func (s *VoucherService) Redeem(ctx context.Context, input *RedeemInput) (*RedeemResult, error) {
	code := strings.ToUpper(strings.TrimSpace(input.Code))
	if code == "" {
		return nil, apperrors.InvalidInput("voucher code is required")
	}
	if input.UserID == "" {
		return nil, apperrors.InvalidInput("user id is required")
	}
	if input.OrderValue < 0 {
		return nil, apperrors.InvalidInput("order value must not be negative")
	}

	voucher, err := s.vouchers.GetByCode(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("get voucher by code: %w", err)
	}

	unlock := s.locks.Lock("voucher:" + voucher.ID)
	defer unlock()

	// Re-read under the lock so usage counters are current.
	voucher, err = s.vouchers.GetByID(ctx, voucher.ID)
	if err != nil {
		return nil, fmt.Errorf("get voucher: %w", err)
	}

	today := domain.DateOnly(s.now())
	if !voucher.RedeemableOn(today) {
		return nil, apperrors.Conflict("VOUCHER_NOT_REDEEMABLE", fmt.Sprintf("voucher %s is not redeemable today", code))
	}
	if input.OrderValue < voucher.MinOrderValue {
		return nil, apperrors.Conflict("ORDER_BELOW_MINIMUM",
			fmt.Sprintf("order value %.2f is below the voucher minimum %.2f", input.OrderValue, voucher.MinOrderValue))
	}
	if voucher.UsageLimit > 0 && voucher.UsageCount >= voucher.UsageLimit {
		return nil, apperrors.Conflict("VOUCHER_EXHAUSTED", fmt.Sprintf("voucher %s has reached its usage limit", code))
	}
	if voucher.UsagePerUser > 0 {
		used, err := s.vouchers.CountRedemptionsByUser(ctx, voucher.ID, input.UserID)
		if err != nil {
			return nil, fmt.Errorf("count redemptions: %w", err)
		}
		if used >= voucher.UsagePerUser {
			return nil, apperrors.Conflict("USER_LIMIT_REACHED",
				fmt.Sprintf("user has reached the per-user limit for voucher %s", code))
		}
	}

	discount := domain.DiscountAmount(input.OrderValue, voucher.Rule())

	if err := s.vouchers.IncrementUsage(ctx, voucher.ID); err != nil {
		return nil, fmt.Errorf("increment voucher usage: %w", err)
	}
	redemption := &domain.VoucherRedemption{
		ID:              uuid.New().String(),
		VoucherID:       voucher.ID,
		UserID:          input.UserID,
		OrderID:         input.OrderID,
		DiscountApplied: discount,
		CreatedAt:       s.now().UTC(),
	}
	if err := s.vouchers.RecordRedemption(ctx, redemption); err != nil {
		return nil, fmt.Errorf("record redemption: %w", err)
	}

	if err := s.producer.PublishVoucherRedeemed(ctx, voucher, redemption); err != nil {
		s.logger.ErrorContext(ctx, "failed to publish voucher.redeemed event",
			slog.String("voucher_id", voucher.ID),
			slog.String("error", err.Error()),
		)
	}

	s.logger.InfoContext(ctx, "voucher redeemed",
		slog.String("voucher_id", voucher.ID),
		slog.String("user_id", input.UserID),
		slog.Float64("discount_applied", discount),
	)
	return &RedeemResult{
		VoucherID:       voucher.ID,
		Code:            voucher.Code,
		DiscountApplied: discount,
		FinalOrderValue: input.OrderValue - discount,
	}, nil
}

func applyVoucherEdits(voucher *domain.Voucher, input *UpdateVoucherInput) {
	if input.Name != nil {
		voucher.Name = *input.Name
	}
	if input.Description != nil {
		voucher.Description = *input.Description
	}
	if input.ImageURL != nil {
		voucher.ImageURL = *input.ImageURL
	}
	if input.DiscountValueType != nil {
		voucher.DiscountValueType = *input.DiscountValueType
	}
	if input.DiscountValue != nil {
		voucher.DiscountValue = *input.DiscountValue
	}
	if input.MinOrderValue != nil {
		voucher.MinOrderValue = *input.MinOrderValue
	}
	if input.MaxDiscountValue != nil {
		voucher.MaxDiscountValue = *input.MaxDiscountValue
	}
	if input.StartDate != nil {
		voucher.StartDate = domain.DateOnly(*input.StartDate)
	}
	if input.ExpiryDate != nil {
		voucher.ExpiryDate = domain.DateOnly(*input.ExpiryDate)
	}
	if input.UsageLimit != nil {
		voucher.UsageLimit = *input.UsageLimit
	}
	if input.UsagePerUser != nil {
		voucher.UsagePerUser = *input.UsagePerUser
	}
}
