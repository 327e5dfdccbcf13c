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

// MediaReleaser deletes a stored campaign image once no record references it.
type MediaReleaser interface {
	Release(ctx context.Context, url string) error
}

// PromotionService orchestrates the promotion lifecycle: create, approve or
// reject, update, delete. It owns the approval state machine and drives the
// scope resolver, conflict detector, and pricing cascader; status changes are
// persisted before any cascade runs so a cascade failure never leaves a
// promotion's own fields inconsistent.
type PromotionService struct {
	promotions repository.PromotionRepository
	scope      *ScopeResolver
	conflicts  *ConflictDetector
	cascader   *PricingCascader
	media      MediaReleaser
	producer   *event.Producer
	locks      *KeyLock
	logger     *slog.Logger
	now        func() time.Time
}

// NewPromotionService creates a new promotion lifecycle service.
func NewPromotionService(
	promotions repository.PromotionRepository,
	scope *ScopeResolver,
	conflicts *ConflictDetector,
	cascader *PricingCascader,
	media MediaReleaser,
	producer *event.Producer,
	locks *KeyLock,
	logger *slog.Logger,
	now func() time.Time,
) *PromotionService {
	return &PromotionService{
		promotions: promotions,
		scope:      scope,
		conflicts:  conflicts,
		cascader:   cascader,
		media:      media,
		producer:   producer,
		locks:      locks,
		logger:     logger,
		now:        now,
	}
}

// CreatePromotionInput holds the parameters for creating a promotion.
type CreatePromotionInput struct {
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
}

// UpdatePromotionInput holds the parameters for a partial promotion update.
// Nil fields are left unchanged.
type UpdatePromotionInput struct {
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
}

// Create validates, persists, and (when already time-eligible) applies a new
// promotion. A privileged actor's promotion is approved on the spot; a staff
// submission waits in PENDING_APPROVAL.
func (s *PromotionService) Create(ctx context.Context, actor domain.Actor, input *CreatePromotionInput) (*domain.Promotion, error) {
	if err := validateDiscountRule(input.Name, input.DiscountValueType, input.DiscountValue, input.MinOrderValue, input.MaxDiscountValue); err != nil {
		return nil, err
	}
	startDate := domain.DateOnly(input.StartDate)
	expiryDate := domain.DateOnly(input.ExpiryDate)
	if startDate.After(expiryDate) {
		return nil, apperrors.InvalidInput("start date must not be after expiry date")
	}

	code := strings.ToUpper(strings.TrimSpace(input.Code))
	if code == "" {
		return nil, apperrors.InvalidInput("promotion code is required")
	}
	exists, err := s.promotions.ExistsByCode(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("check promotion code: %w", err)
	}
	if exists {
		return nil, apperrors.Conflict("DUPLICATE_CODE", fmt.Sprintf("promotion code %q is already in use", code))
	}

	targets, err := s.scope.Resolve(ctx, input.ApplyScope, input.CategoryIDs, input.ProductIDs)
	if err != nil {
		return nil, err
	}

	if err := s.conflicts.Check(ctx, Candidate{
		Scope:       targets.Scope,
		CategoryIDs: targets.CategoryIDs,
		ProductIDs:  targets.ProductIDs,
		StartDate:   startDate,
		ExpiryDate:  expiryDate,
	}); err != nil {
		return nil, err
	}

	nowTs := s.now().UTC()
	today := domain.DateOnly(nowTs)
	promo := &domain.Promotion{
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
		CreatedAt:         nowTs,
		UpdatedAt:         nowTs,
	}
	if promo.CategoryIDs == nil {
		promo.CategoryIDs = []string{}
	}
	if promo.ProductIDs == nil {
		promo.ProductIDs = []string{}
	}

	if actor.IsAdmin() {
		promo.Status = domain.StatusApproved
		promo.ApprovedBy = actor.ID
		approvedAt := nowTs
		promo.ApprovedAt = &approvedAt
		promo.IsActive = promo.TimeEligibleOn(today)
	}

	if err := s.promotions.Create(ctx, promo); err != nil {
		return nil, fmt.Errorf("create promotion: %w", err)
	}

	if promo.IsActive {
		if err := s.cascader.Apply(ctx, promo); err != nil {
			s.logger.ErrorContext(ctx, "pricing cascade failed after create",
				slog.String("promotion_id", promo.ID),
				slog.String("error", err.Error()),
			)
		}
	}

	if err := s.producer.PublishPromotionCreated(ctx, promo); err != nil {
		s.logger.ErrorContext(ctx, "failed to publish promotion.created event",
			slog.String("promotion_id", promo.ID),
			slog.String("error", err.Error()),
		)
	}

	s.logger.InfoContext(ctx, "promotion created",
		slog.String("promotion_id", promo.ID),
		slog.String("code", promo.Code),
		slog.String("status", promo.Status),
		slog.Bool("is_active", promo.IsActive),
	)
	return promo, nil
}

// Decide approves or rejects a pending promotion. Only a privileged actor may
// decide, and only promotions in PENDING_APPROVAL can be decided. Approval of
// an already time-eligible promotion activates and applies it immediately;
// otherwise the periodic sweep activates it when its start date arrives.
func (s *PromotionService) Decide(ctx context.Context, actor domain.Actor, id, action, reason string) (*domain.Promotion, error) {
	if !actor.IsAdmin() {
		return nil, apperrors.Forbidden("only an admin may approve or reject promotions")
	}
	if action != domain.ActionApprove && action != domain.ActionReject {
		return nil, apperrors.InvalidInput(fmt.Sprintf("unknown approval action %q", action))
	}

	unlock := s.locks.Lock("promotion:" + id)
	defer unlock()

	promo, err := s.promotions.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get promotion: %w", err)
	}
	if promo.Status != domain.StatusPendingApproval {
		return nil, apperrors.Conflict("NOT_PENDING", fmt.Sprintf("promotion %s is %s, not pending approval", id, promo.Status))
	}

	nowTs := s.now().UTC()
	today := domain.DateOnly(nowTs)
	promo.ApprovedBy = actor.ID
	approvedAt := nowTs
	promo.ApprovedAt = &approvedAt
	promo.UpdatedAt = nowTs

	switch action {
	case domain.ActionApprove:
		promo.Status = domain.StatusApproved
		promo.RejectionReason = ""
		promo.IsActive = promo.TimeEligibleOn(today)
	case domain.ActionReject:
		promo.Status = domain.StatusRejected
		promo.RejectionReason = reason
		promo.IsActive = false
	}

	if err := s.promotions.Update(ctx, promo); err != nil {
		return nil, fmt.Errorf("update promotion: %w", err)
	}

	// Status is durable before any pricing moves.
	if promo.IsActive {
		if err := s.cascader.Apply(ctx, promo); err != nil {
			s.logger.ErrorContext(ctx, "pricing cascade failed after approval",
				slog.String("promotion_id", promo.ID),
				slog.String("error", err.Error()),
			)
		}
	}

	if err := s.producer.PublishPromotionDecided(ctx, promo); err != nil {
		s.logger.ErrorContext(ctx, "failed to publish promotion.decided event",
			slog.String("promotion_id", promo.ID),
			slog.String("error", err.Error()),
		)
	}

	s.logger.InfoContext(ctx, "promotion decided",
		slog.String("promotion_id", promo.ID),
		slog.String("action", action),
		slog.String("approver", actor.ID),
	)
	return promo, nil
}

// Update applies a partial edit. An active promotion's pricing is reverted
// before the edit and re-applied afterwards so targets never carry stale
// discounts. A staff edit of a rejected promotion resubmits it for approval.
func (s *PromotionService) Update(ctx context.Context, actor domain.Actor, id string, input *UpdatePromotionInput) (*domain.Promotion, error) {
	unlock := s.locks.Lock("promotion:" + id)
	defer unlock()

	promo, err := s.promotions.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get promotion: %w", err)
	}
	if !actor.IsAdmin() && promo.SubmittedBy != actor.ID {
		return nil, apperrors.Forbidden("only the submitter or an admin may edit this promotion")
	}

	if input.Code != nil {
		code := strings.ToUpper(strings.TrimSpace(*input.Code))
		if code != promo.Code {
			exists, err := s.promotions.ExistsByCode(ctx, code)
			if err != nil {
				return nil, fmt.Errorf("check promotion code: %w", err)
			}
			if exists {
				return nil, apperrors.Conflict("DUPLICATE_CODE", fmt.Sprintf("promotion code %q is already in use", code))
			}
			promo.Code = code
		}
	}

	wasActive := promo.Status == domain.StatusApproved && promo.IsActive
	if wasActive {
		if err := s.cascader.Revert(ctx, promo); err != nil {
			return nil, fmt.Errorf("revert pricing before update: %w", err)
		}
	}

	applyPromotionEdits(promo, input)

	scopeChanged := input.ApplyScope != nil || input.CategoryIDs != nil || input.ProductIDs != nil
	if scopeChanged {
		scope := promo.ApplyScope
		if input.ApplyScope != nil {
			scope = *input.ApplyScope
		}
		targets, err := s.scope.Resolve(ctx, scope, input.CategoryIDs, input.ProductIDs)
		if err != nil {
			return nil, err
		}
		promo.ApplyScope = targets.Scope
		promo.CategoryIDs = targets.CategoryIDs
		promo.ProductIDs = targets.ProductIDs
		if promo.CategoryIDs == nil {
			promo.CategoryIDs = []string{}
		}
		if promo.ProductIDs == nil {
			promo.ProductIDs = []string{}
		}
	}

	if promo.StartDate.After(promo.ExpiryDate) {
		return nil, apperrors.InvalidInput("start date must not be after expiry date")
	}

	windowChanged := input.StartDate != nil || input.ExpiryDate != nil
	if scopeChanged || windowChanged {
		if err := s.conflicts.Check(ctx, Candidate{
			ID:          promo.ID,
			Scope:       promo.ApplyScope,
			CategoryIDs: promo.CategoryIDs,
			ProductIDs:  promo.ProductIDs,
			StartDate:   promo.StartDate,
			ExpiryDate:  promo.ExpiryDate,
		}); err != nil {
			return nil, err
		}
	}

	// A staff edit of a rejected promotion is an implicit resubmission.
	if !actor.IsAdmin() && promo.Status == domain.StatusRejected {
		promo.Status = domain.StatusPendingApproval
		promo.RejectionReason = ""
	}

	nowTs := s.now().UTC()
	today := domain.DateOnly(nowTs)
	promo.IsActive = promo.Status == domain.StatusApproved && promo.TimeEligibleOn(today)
	promo.UpdatedAt = nowTs

	if err := s.promotions.Update(ctx, promo); err != nil {
		return nil, fmt.Errorf("update promotion: %w", err)
	}

	if promo.IsActive {
		if err := s.cascader.Apply(ctx, promo); err != nil {
			s.logger.ErrorContext(ctx, "pricing cascade failed after update",
				slog.String("promotion_id", promo.ID),
				slog.String("error", err.Error()),
			)
		}
	}

	if err := s.producer.PublishPromotionUpdated(ctx, promo); err != nil {
		s.logger.ErrorContext(ctx, "failed to publish promotion.updated event",
			slog.String("promotion_id", promo.ID),
			slog.String("error", err.Error()),
		)
	}

	s.logger.InfoContext(ctx, "promotion updated",
		slog.String("promotion_id", promo.ID),
		slog.String("actor", actor.ID),
	)
	return promo, nil
}

// Delete reverts the promotion's pricing, releases its stored image when no
// other record references it, and removes the record.
func (s *PromotionService) Delete(ctx context.Context, actor domain.Actor, id string) error {
	unlock := s.locks.Lock("promotion:" + id)
	defer unlock()

	promo, err := s.promotions.GetByID(ctx, id)
	if err != nil {
		return fmt.Errorf("get promotion: %w", err)
	}
	if !actor.IsAdmin() && promo.SubmittedBy != actor.ID {
		return apperrors.Forbidden("only the submitter or an admin may delete this promotion")
	}

	if err := s.cascader.Revert(ctx, promo); err != nil {
		return fmt.Errorf("revert pricing before delete: %w", err)
	}

	s.releaseMedia(ctx, promo)

	if err := s.promotions.Delete(ctx, id); err != nil {
		return fmt.Errorf("delete promotion: %w", err)
	}

	if err := s.producer.PublishPromotionDeleted(ctx, promo); err != nil {
		s.logger.ErrorContext(ctx, "failed to publish promotion.deleted event",
			slog.String("promotion_id", promo.ID),
			slog.String("error", err.Error()),
		)
	}

	s.logger.InfoContext(ctx, "promotion deleted",
		slog.String("promotion_id", promo.ID),
		slog.String("actor", actor.ID),
	)
	return nil
}

// Get retrieves a promotion by id.
func (s *PromotionService) Get(ctx context.Context, id string) (*domain.Promotion, error) {
	promo, err := s.promotions.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get promotion: %w", err)
	}
	return promo, nil
}

// List returns a filtered, paginated promotion list.
func (s *PromotionService) List(ctx context.Context, filter repository.PromotionFilter) ([]domain.Promotion, int, error) {
	if filter.Page <= 0 {
		filter.Page = 1
	}
	if filter.PerPage <= 0 {
		filter.PerPage = 20
	}
	promos, total, err := s.promotions.List(ctx, filter)
	if err != nil {
		return nil, 0, fmt.Errorf("list promotions: %w", err)
	}
	return promos, total, nil
}

// ListActive returns the promotions applying on the given day.
func (s *PromotionService) ListActive(ctx context.Context, asOf time.Time) ([]domain.Promotion, error) {
	promos, err := s.promotions.ListActive(ctx, domain.DateOnly(asOf))
	if err != nil {
		return nil, fmt.Errorf("list active promotions: %w", err)
	}
	return promos, nil
}

// ListMine returns the promotions submitted by the calling actor.
func (s *PromotionService) ListMine(ctx context.Context, actor domain.Actor) ([]domain.Promotion, error) {
	promos, err := s.promotions.ListBySubmitter(ctx, actor.ID)
	if err != nil {
		return nil, fmt.Errorf("list promotions by submitter: %w", err)
	}
	return promos, nil
}

func (s *PromotionService) releaseMedia(ctx context.Context, promo *domain.Promotion) {
	if promo.ImageURL == "" {
		return
	}
	refs, err := s.promotions.CountByImageURL(ctx, promo.ImageURL)
	if err != nil {
		s.logger.WarnContext(ctx, "failed to count image references",
			slog.String("promotion_id", promo.ID),
			slog.String("error", err.Error()),
		)
		return
	}
	if refs > 1 {
		// Another promotion still uses the same image.
		return
	}
	if err := s.media.Release(ctx, promo.ImageURL); err != nil {
		s.logger.WarnContext(ctx, "failed to release promotion image",
			slog.String("promotion_id", promo.ID),
			slog.String("image_url", promo.ImageURL),
			slog.String("error", err.Error()),
		)
	}
}

func applyPromotionEdits(promo *domain.Promotion, input *UpdatePromotionInput) {
	if input.Name != nil {
		promo.Name = *input.Name
	}
	if input.Description != nil {
		promo.Description = *input.Description
	}
	if input.ImageURL != nil {
		promo.ImageURL = *input.ImageURL
	}
	if input.DiscountValueType != nil {
		promo.DiscountValueType = *input.DiscountValueType
	}
	if input.DiscountValue != nil {
		promo.DiscountValue = *input.DiscountValue
	}
	if input.MinOrderValue != nil {
		promo.MinOrderValue = *input.MinOrderValue
	}
	if input.MaxDiscountValue != nil {
		promo.MaxDiscountValue = *input.MaxDiscountValue
	}
	if input.StartDate != nil {
		promo.StartDate = domain.DateOnly(*input.StartDate)
	}
	if input.ExpiryDate != nil {
		promo.ExpiryDate = domain.DateOnly(*input.ExpiryDate)
	}
	if input.UsageLimit != nil {
		promo.UsageLimit = *input.UsageLimit
	}
}

// validateDiscountRule checks the shared rule fields of promotions and vouchers.
func validateDiscountRule(name, valueType string, value, minOrder, maxDiscount float64) error {
	if strings.TrimSpace(name) == "" {
		return apperrors.InvalidInput("name is required")
	}
	if !domain.IsValidDiscountType(valueType) {
		return apperrors.InvalidInput(fmt.Sprintf("invalid discount value type %q, must be one of: %s",
			valueType, strings.Join(domain.ValidDiscountTypes(), ", ")))
	}
	if value <= 0 {
		return apperrors.InvalidInput("discount value must be positive")
	}
	if valueType == domain.DiscountTypePercentage && value > 100 {
		return apperrors.InvalidInput("percentage discount must not exceed 100")
	}
	if minOrder < 0 {
		return apperrors.InvalidInput("min order value must not be negative")
	}
	if maxDiscount < 0 {
		return apperrors.InvalidInput("max discount value must not be negative")
	}
	return nil
}
