package service

import (
	"context"
	"fmt"
	"net/http"
	"sort"

	apperrors "github.com/LinhDev610/LilaShop/pkg/errors"

	"github.com/LinhDev610/LilaShop/internal/domain"
	"github.com/LinhDev610/LilaShop/internal/repository"
)

// ScopeResolver validates a campaign's declared targeting and normalizes it
// into a concrete set of existing category or product ids. Resolution is
// idempotent: the same input always yields the same sorted, deduplicated
// target set.
type ScopeResolver struct {
	categories repository.CategoryRepository
	products   repository.ProductRepository
}

// NewScopeResolver creates a new scope resolver.
func NewScopeResolver(categories repository.CategoryRepository, products repository.ProductRepository) *ScopeResolver {
	return &ScopeResolver{
		categories: categories,
		products:   products,
	}
}

// ScopeTargets is a validated, normalized targeting set. Exactly one of
// CategoryIDs and ProductIDs is non-empty for CATEGORY and PRODUCT scopes;
// both are empty for ORDER scope.
type ScopeTargets struct {
	Scope       string
	CategoryIDs []string
	ProductIDs  []string
}

// Resolve validates the scope against its raw id sets and resolves each id to
// an existing record.
func (r *ScopeResolver) Resolve(ctx context.Context, scope string, categoryIDs, productIDs []string) (*ScopeTargets, error) {
	switch scope {
	case domain.ScopeOrder:
		if len(categoryIDs) > 0 || len(productIDs) > 0 {
			return nil, apperrors.InvalidInputCode("INVALID_SCOPE", "ORDER scope must not carry category or product targets")
		}
		return &ScopeTargets{Scope: domain.ScopeOrder}, nil

	case domain.ScopeCategory:
		if len(categoryIDs) == 0 {
			return nil, apperrors.InvalidInputCode("INVALID_SCOPE", "CATEGORY scope requires at least one category target")
		}
		if len(productIDs) > 0 {
			return nil, apperrors.InvalidInputCode("INVALID_SCOPE", "CATEGORY scope must not carry product targets")
		}
		resolved, err := r.resolveCategories(ctx, categoryIDs)
		if err != nil {
			return nil, err
		}
		return &ScopeTargets{Scope: domain.ScopeCategory, CategoryIDs: resolved}, nil

	case domain.ScopeProduct:
		if len(productIDs) == 0 {
			return nil, apperrors.InvalidInputCode("INVALID_SCOPE", "PRODUCT scope requires at least one product target")
		}
		if len(categoryIDs) > 0 {
			return nil, apperrors.InvalidInputCode("INVALID_SCOPE", "PRODUCT scope must not carry category targets")
		}
		resolved, err := r.resolveProducts(ctx, productIDs)
		if err != nil {
			return nil, err
		}
		return &ScopeTargets{Scope: domain.ScopeProduct, ProductIDs: resolved}, nil

	default:
		return nil, apperrors.InvalidInputCode("INVALID_SCOPE", fmt.Sprintf("unknown apply scope %q", scope))
	}
}

func (r *ScopeResolver) resolveCategories(ctx context.Context, ids []string) ([]string, error) {
	resolved := make([]string, 0, len(ids))
	seen := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}

		if _, err := r.categories.GetByID(ctx, id); err != nil {
			return nil, targetNotFound("CATEGORY_NOT_FOUND", "category", id)
		}
		resolved = append(resolved, id)
	}
	sort.Strings(resolved)
	return resolved, nil
}

func (r *ScopeResolver) resolveProducts(ctx context.Context, ids []string) ([]string, error) {
	resolved := make([]string, 0, len(ids))
	seen := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}

		if _, err := r.products.GetByID(ctx, id); err != nil {
			return nil, targetNotFound("PRODUCT_NOT_FOUND", "product", id)
		}
		resolved = append(resolved, id)
	}
	sort.Strings(resolved)
	return resolved, nil
}

func targetNotFound(code, resource, id string) error {
	return &apperrors.AppError{
		Code:    code,
		Message: fmt.Sprintf("%s %s does not exist", resource, id),
		Status:  http.StatusNotFound,
		Err:     apperrors.ErrNotFound,
	}
}
