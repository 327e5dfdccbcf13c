package service

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/LinhDev610/LilaShop/internal/domain"
	"github.com/LinhDev610/LilaShop/internal/repository"
)

// PricingCascader recomputes and writes the derived pricing fields
// (discount_value, price, promotion_id) of catalog items and their variants.
// It is the only component allowed to mutate those fields; every other code
// path treats them as read-only.
//
// Cascades are per-item best-effort: a failure on one item is logged and the
// remainder still gets priced. Re-running any cascade with the same inputs
// converges to the same item state.
type PricingCascader struct {
	promotions repository.PromotionRepository
	products   repository.ProductRepository
	categories repository.CategoryRepository
	locks      *KeyLock
	logger     *slog.Logger
	now        func() time.Time
}

// NewPricingCascader creates a new pricing cascader. now is the injectable
// clock used for all date-eligibility decisions.
func NewPricingCascader(
	promotions repository.PromotionRepository,
	products repository.ProductRepository,
	categories repository.CategoryRepository,
	logger *slog.Logger,
	now func() time.Time,
) *PricingCascader {
	return &PricingCascader{
		promotions: promotions,
		products:   products,
		categories: categories,
		locks:      NewKeyLock(),
		logger:     logger,
		now:        now,
	}
}

// Apply pushes the promotion's discount onto every targeted catalog item and
// its variants. Promotions that are not APPROVED never touch pricing, and
// ORDER-scoped promotions price the order at checkout, not the catalog.
func (c *PricingCascader) Apply(ctx context.Context, promo *domain.Promotion) error {
	if promo.Status != domain.StatusApproved {
		c.logger.WarnContext(ctx, "refusing to apply unapproved promotion",
			slog.String("promotion_id", promo.ID),
			slog.String("status", promo.Status),
		)
		return nil
	}
	if promo.ApplyScope == domain.ScopeOrder {
		return nil
	}

	targets, err := c.resolveTargets(ctx, promo)
	if err != nil {
		return err
	}

	today := domain.DateOnly(c.now())
	applied, skipped, failed := 0, 0, 0

	for i := range targets {
		p := &targets[i]
		unlock := c.locks.Lock("product:" + p.ID)

		// Defense in depth: creation-time conflict detection should have
		// rejected this situation already, but an item whose current
		// promotion is still live and overlapping is never silently
		// reassigned. The check shares the item lock with the write.
		ok, err := c.itemFree(ctx, p, promo, today)
		if err != nil {
			unlock()
			return err
		}
		if !ok {
			skipped++
			unlock()
			continue
		}

		c.priceProduct(p, promo)
		if err := c.products.SavePricing(ctx, p); err != nil {
			failed++
			c.logger.ErrorContext(ctx, "failed to save pricing for product",
				slog.String("promotion_id", promo.ID),
				slog.String("product_id", p.ID),
				slog.String("error", err.Error()),
			)
		} else {
			applied++
		}
		unlock()
	}

	c.logger.InfoContext(ctx, "promotion applied to targets",
		slog.String("promotion_id", promo.ID),
		slog.Int("applied", applied),
		slog.Int("skipped", skipped),
		slog.Int("failed", failed),
	)
	return nil
}

// Revert removes the promotion's pricing from every item it currently holds.
// Each item is handed to the next-best remaining campaign (earliest start date
// among approved, time-eligible promotions targeting it) or reset to base
// pricing when none exists.
func (c *PricingCascader) Revert(ctx context.Context, promo *domain.Promotion) error {
	held, err := c.products.ListByPromotionID(ctx, promo.ID)
	if err != nil {
		return fmt.Errorf("list products held by promotion %s: %w", promo.ID, err)
	}

	today := domain.DateOnly(c.now())
	failed := 0

	for i := range held {
		p := &held[i]
		unlock := c.locks.Lock("product:" + p.ID)

		replacement, err := c.findReplacement(ctx, p, promo.ID, today)
		if err != nil {
			unlock()
			return err
		}

		if replacement != nil {
			c.priceProduct(p, replacement)
		} else {
			c.resetProduct(p)
		}

		if err := c.products.SavePricing(ctx, p); err != nil {
			failed++
			c.logger.ErrorContext(ctx, "failed to revert pricing for product",
				slog.String("promotion_id", promo.ID),
				slog.String("product_id", p.ID),
				slog.String("error", err.Error()),
			)
		}
		unlock()
	}

	c.logger.InfoContext(ctx, "promotion pricing reverted",
		slog.String("promotion_id", promo.ID),
		slog.Int("products", len(held)),
		slog.Int("failed", failed),
	)
	return nil
}

// ReconcileProduct recomputes a single product's pricing against the live set
// of eligible promotions. Run when a product enters the catalog or changes
// category, so items added to a targeted category after a campaign went live
// still pick it up.
func (c *PricingCascader) ReconcileProduct(ctx context.Context, productID string) error {
	product, err := c.products.GetByID(ctx, productID)
	if err != nil {
		return fmt.Errorf("get product %s: %w", productID, err)
	}
	if product.Status != domain.ProductStatusApproved {
		return nil
	}

	unlock := c.locks.Lock("product:" + product.ID)
	defer unlock()

	today := domain.DateOnly(c.now())
	best, err := c.findReplacement(ctx, product, "", today)
	if err != nil {
		return err
	}

	if best == nil {
		if product.PromotionID == nil && product.DiscountValue == 0 {
			return nil
		}
		c.resetProduct(product)
		return c.products.SavePricing(ctx, product)
	}

	ok, err := c.itemFree(ctx, product, best, today)
	if err != nil {
		return err
	}
	if !ok {
		return nil
	}

	c.priceProduct(product, best)
	return c.products.SavePricing(ctx, product)
}

// resolveTargets expands the promotion's scope into the live set of catalog
// items it targets. Category scopes query current catalog membership at apply
// time; the target item set is never snapshotted.
func (c *PricingCascader) resolveTargets(ctx context.Context, promo *domain.Promotion) ([]domain.Product, error) {
	switch promo.ApplyScope {
	case domain.ScopeProduct:
		products, err := c.products.ListByIDs(ctx, promo.ProductIDs)
		if err != nil {
			return nil, fmt.Errorf("load target products: %w", err)
		}
		return products, nil

	case domain.ScopeCategory:
		expanded, err := expandCategoryIDs(ctx, c.categories, promo.CategoryIDs)
		if err != nil {
			return nil, err
		}
		products, err := c.products.ListByCategoryIDs(ctx, expanded)
		if err != nil {
			return nil, fmt.Errorf("load products in target categories: %w", err)
		}
		return products, nil
	}

	return nil, nil
}

// itemFree reports whether the product's pricing may be (re)assigned to promo.
// An item held by a different promotion that is still approved, switched on,
// time-eligible, and window-overlapping stays with its current promotion.
func (c *PricingCascader) itemFree(ctx context.Context, p *domain.Product, promo *domain.Promotion, today time.Time) (bool, error) {
	if p.PromotionID == nil || *p.PromotionID == promo.ID {
		return true, nil
	}

	current, err := c.promotions.GetByID(ctx, *p.PromotionID)
	if err != nil {
		// A dangling reference never blocks repricing.
		c.logger.WarnContext(ctx, "product references unknown promotion",
			slog.String("product_id", p.ID),
			slog.String("promotion_id", *p.PromotionID),
		)
		return true, nil
	}

	if current.ApplicableOn(today) && promo.OverlapsWindow(current) {
		c.logger.DebugContext(ctx, "skipping product with live conflicting promotion",
			slog.String("product_id", p.ID),
			slog.String("current_promotion_id", current.ID),
			slog.String("new_promotion_id", promo.ID),
		)
		return false, nil
	}
	return true, nil
}

// findReplacement returns the approved, time-eligible promotion with the
// earliest start date whose targets include the product, excluding excludeID.
// Ties break on promotion id for a stable deterministic order.
func (c *PricingCascader) findReplacement(ctx context.Context, p *domain.Product, excludeID string, today time.Time) (*domain.Promotion, error) {
	var categoryIDs []string
	if p.CategoryID != nil {
		ids, err := ancestorCategoryIDs(ctx, c.categories, *p.CategoryID)
		if err != nil {
			return nil, err
		}
		categoryIDs = ids
	}

	candidates, err := c.promotions.ListEligibleForProduct(ctx, p.ID, categoryIDs, today)
	if err != nil {
		return nil, fmt.Errorf("list eligible promotions for product %s: %w", p.ID, err)
	}

	eligible := candidates[:0]
	for i := range candidates {
		promo := candidates[i]
		if promo.ID == excludeID {
			continue
		}
		if !promo.ApplicableOn(today) {
			continue
		}
		eligible = append(eligible, promo)
	}
	if len(eligible) == 0 {
		return nil, nil
	}

	sort.Slice(eligible, func(i, j int) bool {
		if !eligible[i].StartDate.Equal(eligible[j].StartDate) {
			return eligible[i].StartDate.Before(eligible[j].StartDate)
		}
		return eligible[i].ID < eligible[j].ID
	})
	return &eligible[0], nil
}

// priceProduct writes the promotion's discount into the product and each of
// its variants. Discounts always apply to the tax-inclusive price.
func (c *PricingCascader) priceProduct(p *domain.Product, promo *domain.Promotion) {
	base := p.BasePriceWithTax()
	discount := domain.DiscountAmount(base, promo.Rule())

	p.DiscountValue = discount
	p.Price = max(0, base-discount)
	id := promo.ID
	p.PromotionID = &id

	for i := range p.Variants {
		v := &p.Variants[i]
		vBase := v.BasePriceWithTax()
		vDiscount := domain.DiscountAmount(vBase, promo.Rule())
		v.DiscountValue = vDiscount
		v.Price = max(0, vBase-vDiscount)
	}
}

// resetProduct restores base pricing on the product and its variants.
func (c *PricingCascader) resetProduct(p *domain.Product) {
	p.DiscountValue = 0
	p.Price = p.BasePriceWithTax()
	p.PromotionID = nil

	for i := range p.Variants {
		v := &p.Variants[i]
		v.DiscountValue = 0
		v.Price = v.BasePriceWithTax()
	}
}
