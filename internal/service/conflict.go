package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	apperrors "github.com/LinhDev610/LilaShop/pkg/errors"

	"github.com/LinhDev610/LilaShop/internal/domain"
	"github.com/LinhDev610/LilaShop/internal/repository"
)

// maxConflictNames bounds how many target names a conflict message lists.
const maxConflictNames = 3

// ConflictDetector decides whether a new or edited promotion would create an
// ambiguous pricing situation: two campaigns with overlapping date windows both
// claiming the same catalog item. Conflicts are reported, never auto-resolved;
// a human chooses to replace or keep the existing campaign.
type ConflictDetector struct {
	promotions repository.PromotionRepository
	products   repository.ProductRepository
	categories repository.CategoryRepository
}

// NewConflictDetector creates a new conflict detector.
func NewConflictDetector(
	promotions repository.PromotionRepository,
	products repository.ProductRepository,
	categories repository.CategoryRepository,
) *ConflictDetector {
	return &ConflictDetector{
		promotions: promotions,
		products:   products,
		categories: categories,
	}
}

// Candidate describes the proposed window and scope of a new or edited
// promotion. ID is empty for a creation and set for an edit, so a promotion
// never conflicts with itself.
type Candidate struct {
	ID          string
	Scope       string
	CategoryIDs []string
	ProductIDs  []string
	StartDate   time.Time
	ExpiryDate  time.Time
}

// Check compares the candidate against every APPROVED and PENDING_APPROVAL
// promotion and fails with a PROMOTION_OVERLAP conflict on the first promotion
// whose window and scope both intersect the candidate's.
func (d *ConflictDetector) Check(ctx context.Context, cand Candidate) error {
	existing, err := d.promotions.ListByStatuses(ctx, []string{domain.StatusApproved, domain.StatusPendingApproval})
	if err != nil {
		return fmt.Errorf("list promotions for conflict check: %w", err)
	}

	for i := range existing {
		other := &existing[i]
		if other.ID == cand.ID {
			continue
		}
		if !domain.RangesOverlap(cand.StartDate, cand.ExpiryDate, other.StartDate, other.ExpiryDate) {
			continue
		}

		conflicted, detail, err := d.scopesConflict(ctx, cand, other)
		if err != nil {
			return err
		}
		if conflicted {
			return d.overlapError(other, detail)
		}
	}

	return nil
}

// scopesConflict applies the pairwise scope rules. The matrix is symmetric:
// swapping the candidate and the existing promotion yields the same verdict.
func (d *ConflictDetector) scopesConflict(ctx context.Context, cand Candidate, other *domain.Promotion) (bool, string, error) {
	// An order-wide discount claims every item in the order, so it collides
	// with any campaign in the same window regardless of the other's scope.
	if cand.Scope == domain.ScopeOrder || other.ApplyScope == domain.ScopeOrder {
		return true, "the whole order", nil
	}

	switch {
	case cand.Scope == domain.ScopeCategory && other.ApplyScope == domain.ScopeCategory:
		return d.categoryPairConflict(ctx, cand.CategoryIDs, other.CategoryIDs)

	case cand.Scope == domain.ScopeProduct && other.ApplyScope == domain.ScopeProduct:
		common := intersection(cand.ProductIDs, other.ProductIDs)
		if len(common) == 0 {
			return false, "", nil
		}
		names, err := d.productNames(ctx, common)
		if err != nil {
			return false, "", err
		}
		return true, "products " + names, nil

	case cand.Scope == domain.ScopeCategory && other.ApplyScope == domain.ScopeProduct:
		return d.categoryProductConflict(ctx, cand.CategoryIDs, other.ProductIDs)

	case cand.Scope == domain.ScopeProduct && other.ApplyScope == domain.ScopeCategory:
		return d.categoryProductConflict(ctx, other.CategoryIDs, cand.ProductIDs)
	}

	return false, "", nil
}

// categoryPairConflict expands both category sets transitively and checks for
// a shared category.
func (d *ConflictDetector) categoryPairConflict(ctx context.Context, a, b []string) (bool, string, error) {
	expandedA, err := expandCategoryIDs(ctx, d.categories, a)
	if err != nil {
		return false, "", err
	}
	expandedB, err := expandCategoryIDs(ctx, d.categories, b)
	if err != nil {
		return false, "", err
	}

	common := intersection(expandedA, expandedB)
	if len(common) == 0 {
		return false, "", nil
	}
	names, err := d.categoryNames(ctx, common)
	if err != nil {
		return false, "", err
	}
	return true, "categories " + names, nil
}

// categoryProductConflict checks whether any of the products belongs, directly
// or through an ancestor category, to one of the target categories.
//
// Category membership is read from the live catalog, not a snapshot taken when
// either campaign was created, so a verdict can go stale if products are
// re-categorized afterwards. The apply-time per-item check in the pricing
// cascade covers that window.
func (d *ConflictDetector) categoryProductConflict(ctx context.Context, categoryIDs, productIDs []string) (bool, string, error) {
	prods, err := d.products.ListByIDs(ctx, productIDs)
	if err != nil {
		return false, "", fmt.Errorf("load products for conflict check: %w", err)
	}

	var hits []string
	for i := range prods {
		p := &prods[i]
		if p.CategoryID == nil {
			continue
		}
		ancestors, err := ancestorCategoryIDs(ctx, d.categories, *p.CategoryID)
		if err != nil {
			return false, "", err
		}
		if intersects(ancestors, categoryIDs) {
			hits = append(hits, p.Name)
			if len(hits) == maxConflictNames {
				break
			}
		}
	}

	if len(hits) == 0 {
		return false, "", nil
	}
	return true, "products " + strings.Join(hits, ", "), nil
}

func (d *ConflictDetector) categoryNames(ctx context.Context, ids []string) (string, error) {
	names := make([]string, 0, maxConflictNames)
	for _, id := range ids {
		if len(names) == maxConflictNames {
			break
		}
		cat, err := d.categories.GetByID(ctx, id)
		if err != nil {
			names = append(names, id)
			continue
		}
		names = append(names, cat.Name)
	}
	return strings.Join(names, ", "), nil
}

func (d *ConflictDetector) productNames(ctx context.Context, ids []string) (string, error) {
	prods, err := d.products.ListByIDs(ctx, ids)
	if err != nil {
		return strings.Join(ids, ", "), nil
	}
	names := make([]string, 0, maxConflictNames)
	for i := range prods {
		if len(names) == maxConflictNames {
			break
		}
		names = append(names, prods[i].Name)
	}
	if len(names) == 0 {
		return strings.Join(ids, ", "), nil
	}
	return strings.Join(names, ", "), nil
}

func (d *ConflictDetector) overlapError(other *domain.Promotion, detail string) error {
	msg := fmt.Sprintf(
		"promotion %q (code %s) already applies to %s between %s and %s; replace it or keep the existing promotion",
		other.Name, other.Code, detail,
		other.StartDate.Format("2006-01-02"), other.ExpiryDate.Format("2006-01-02"),
	)
	return apperrors.Conflict("PROMOTION_OVERLAP", msg)
}
