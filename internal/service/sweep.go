package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/LinhDev610/LilaShop/internal/domain"
	"github.com/LinhDev610/LilaShop/internal/event"
	"github.com/LinhDev610/LilaShop/internal/repository"
)

// Sweeper performs the periodic date-window maintenance: it switches on
// approved promotions whose start date has arrived and retires promotions and
// vouchers whose expiry date has passed. Expired records are copied to the
// archive before removal.
type Sweeper struct {
	promotions repository.PromotionRepository
	vouchers   repository.VoucherRepository
	archive    repository.ArchiveRepository
	cascader   *PricingCascader
	producer   *event.Producer
	locks      *KeyLock
	logger     *slog.Logger
	interval   time.Duration
	now        func() time.Time
}

// NewSweeper creates a new sweeper running at the given interval.
func NewSweeper(
	promotions repository.PromotionRepository,
	vouchers repository.VoucherRepository,
	archive repository.ArchiveRepository,
	cascader *PricingCascader,
	producer *event.Producer,
	locks *KeyLock,
	logger *slog.Logger,
	interval time.Duration,
	now func() time.Time,
) *Sweeper {
	return &Sweeper{
		promotions: promotions,
		vouchers:   vouchers,
		archive:    archive,
		cascader:   cascader,
		producer:   producer,
		locks:      locks,
		logger:     logger,
		interval:   interval,
		now:        now,
	}
}

// Run sweeps once immediately, then on every tick until the context is
// cancelled.
func (s *Sweeper) Run(ctx context.Context) {
	s.Sweep(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Sweep(ctx)
		}
	}
}

// Sweep performs a single maintenance pass. Each record is handled
// independently so one failure never blocks the rest of the pass.
func (s *Sweeper) Sweep(ctx context.Context) {
	today := domain.DateOnly(s.now())

	s.activateDue(ctx, today)
	s.expirePromotions(ctx, today)
	s.expireVouchers(ctx, today)
}

func (s *Sweeper) activateDue(ctx context.Context, today time.Time) {
	due, err := s.promotions.ListDueForActivation(ctx, today)
	if err != nil {
		s.logger.ErrorContext(ctx, "failed to list promotions due for activation",
			slog.String("error", err.Error()),
		)
		return
	}
	for i := range due {
		if err := s.activatePromotion(ctx, due[i].ID, today); err != nil {
			s.logger.ErrorContext(ctx, "failed to activate promotion",
				slog.String("promotion_id", due[i].ID),
				slog.String("error", err.Error()),
			)
		}
	}
}

func (s *Sweeper) activatePromotion(ctx context.Context, id string, today time.Time) error {
	unlock := s.locks.Lock("promotion:" + id)
	defer unlock()

	// Re-read under the lock; an admin may have edited or deleted it since
	// the listing.
	promo, err := s.promotions.GetByID(ctx, id)
	if err != nil {
		return fmt.Errorf("get promotion: %w", err)
	}
	if promo.Status != domain.StatusApproved || promo.IsActive || !promo.TimeEligibleOn(today) {
		return nil
	}

	promo.IsActive = true
	promo.UpdatedAt = s.now().UTC()
	if err := s.promotions.Update(ctx, promo); err != nil {
		return fmt.Errorf("update promotion: %w", err)
	}

	if err := s.cascader.Apply(ctx, promo); err != nil {
		s.logger.ErrorContext(ctx, "pricing cascade failed after activation",
			slog.String("promotion_id", promo.ID),
			slog.String("error", err.Error()),
		)
	}

	if err := s.producer.PublishPromotionActivity(ctx, promo, "activated"); err != nil {
		s.logger.ErrorContext(ctx, "failed to publish promotion activity event",
			slog.String("promotion_id", promo.ID),
			slog.String("error", err.Error()),
		)
	}

	s.logger.InfoContext(ctx, "promotion activated",
		slog.String("promotion_id", promo.ID),
		slog.String("code", promo.Code),
	)
	return nil
}

func (s *Sweeper) expirePromotions(ctx context.Context, today time.Time) {
	expired, err := s.promotions.ListExpired(ctx, today)
	if err != nil {
		s.logger.ErrorContext(ctx, "failed to list expired promotions",
			slog.String("error", err.Error()),
		)
		return
	}
	for i := range expired {
		if err := s.expirePromotion(ctx, expired[i].ID, today); err != nil {
			s.logger.ErrorContext(ctx, "failed to expire promotion",
				slog.String("promotion_id", expired[i].ID),
				slog.String("error", err.Error()),
			)
		}
	}
}

func (s *Sweeper) expirePromotion(ctx context.Context, id string, today time.Time) error {
	unlock := s.locks.Lock("promotion:" + id)
	defer unlock()

	promo, err := s.promotions.GetByID(ctx, id)
	if err != nil {
		return fmt.Errorf("get promotion: %w", err)
	}
	if !today.After(promo.ExpiryDate) {
		// The window was extended between the listing and the lock.
		return nil
	}

	if err := s.cascader.Revert(ctx, promo); err != nil {
		return fmt.Errorf("revert pricing: %w", err)
	}

	promo.IsActive = false
	promo.UpdatedAt = s.now().UTC()
	if err := s.promotions.Update(ctx, promo); err != nil {
		return fmt.Errorf("update promotion: %w", err)
	}

	if err := s.archive.ArchivePromotion(ctx, promo); err != nil {
		return fmt.Errorf("archive promotion: %w", err)
	}
	if err := s.promotions.Delete(ctx, promo.ID); err != nil {
		return fmt.Errorf("delete promotion: %w", err)
	}

	if err := s.producer.PublishPromotionActivity(ctx, promo, "expired"); err != nil {
		s.logger.ErrorContext(ctx, "failed to publish promotion activity event",
			slog.String("promotion_id", promo.ID),
			slog.String("error", err.Error()),
		)
	}

	s.logger.InfoContext(ctx, "promotion expired and archived",
		slog.String("promotion_id", promo.ID),
		slog.String("code", promo.Code),
	)
	return nil
}

func (s *Sweeper) expireVouchers(ctx context.Context, today time.Time) {
	expired, err := s.vouchers.ListExpired(ctx, today)
	if err != nil {
		s.logger.ErrorContext(ctx, "failed to list expired vouchers",
			slog.String("error", err.Error()),
		)
		return
	}
	for i := range expired {
		if err := s.expireVoucher(ctx, expired[i].ID, today); err != nil {
			s.logger.ErrorContext(ctx, "failed to expire voucher",
				slog.String("voucher_id", expired[i].ID),
				slog.String("error", err.Error()),
			)
		}
	}
}

func (s *Sweeper) expireVoucher(ctx context.Context, id string, today time.Time) error {
	unlock := s.locks.Lock("voucher:" + id)
	defer unlock()

	voucher, err := s.vouchers.GetByID(ctx, id)
	if err != nil {
		return fmt.Errorf("get voucher: %w", err)
	}
	if !today.After(voucher.ExpiryDate) {
		return nil
	}

	voucher.IsActive = false
	voucher.UpdatedAt = s.now().UTC()
	if err := s.vouchers.Update(ctx, voucher); err != nil {
		return fmt.Errorf("update voucher: %w", err)
	}

	if err := s.archive.ArchiveVoucher(ctx, voucher); err != nil {
		return fmt.Errorf("archive voucher: %w", err)
	}
	if err := s.vouchers.Delete(ctx, voucher.ID); err != nil {
		return fmt.Errorf("delete voucher: %w", err)
	}

	s.logger.InfoContext(ctx, "voucher expired and archived",
		slog.String("voucher_id", voucher.ID),
		slog.String("code", voucher.Code),
	)
	return nil
}
