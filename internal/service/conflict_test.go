package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/LinhDev610/LilaShop/pkg/errors"

	"github.com/LinhDev610/LilaShop/internal/domain"
)

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func newTestDetector() (*ConflictDetector, *mockPromotionRepository, *mockProductRepository, *mockCategoryRepository) {
	promotions := new(mockPromotionRepository)
	products := new(mockProductRepository)
	categories := new(mockCategoryRepository)
	return NewConflictDetector(promotions, products, categories), promotions, products, categories
}

func pendingAndApproved() []string {
	return []string{domain.StatusApproved, domain.StatusPendingApproval}
}

func TestConflictCheck_NoExistingPromotions(t *testing.T) {
	detector, promotions, _, _ := newTestDetector()
	ctx := context.Background()

	promotions.On("ListByStatuses", ctx, pendingAndApproved()).Return([]domain.Promotion{}, nil)

	err := detector.Check(ctx, Candidate{
		Scope:      domain.ScopeOrder,
		StartDate:  day(2025, 6, 1),
		ExpiryDate: day(2025, 6, 30),
	})

	require.NoError(t, err)
}

func TestConflictCheck_DisjointWindowsNeverConflict(t *testing.T) {
	detector, promotions, _, _ := newTestDetector()
	ctx := context.Background()

	promotions.On("ListByStatuses", ctx, pendingAndApproved()).Return([]domain.Promotion{
		{
			ID:         "p1",
			ApplyScope: domain.ScopeOrder,
			StartDate:  day(2025, 1, 1),
			ExpiryDate: day(2025, 1, 31),
		},
	}, nil)

	// Same scope, but the windows never meet.
	err := detector.Check(ctx, Candidate{
		Scope:      domain.ScopeOrder,
		StartDate:  day(2025, 6, 1),
		ExpiryDate: day(2025, 6, 30),
	})

	require.NoError(t, err)
}

func TestConflictCheck_OrderScopeConflictsWithEverything(t *testing.T) {
	detector, promotions, _, _ := newTestDetector()
	ctx := context.Background()

	promotions.On("ListByStatuses", ctx, pendingAndApproved()).Return([]domain.Promotion{
		{
			ID:         "p1",
			Name:       "Tet Sale",
			Code:       "TET25",
			ApplyScope: domain.ScopeProduct,
			ProductIDs: []string{"prod-1"},
			StartDate:  day(2025, 6, 10),
			ExpiryDate: day(2025, 6, 20),
		},
	}, nil)

	err := detector.Check(ctx, Candidate{
		Scope:      domain.ScopeOrder,
		StartDate:  day(2025, 6, 15),
		ExpiryDate: day(2025, 7, 15),
	})

	var appErr *apperrors.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, "PROMOTION_OVERLAP", appErr.Code)
	assert.Contains(t, appErr.Message, "Tet Sale")
	assert.Contains(t, appErr.Message, "TET25")
}

func TestConflictCheck_ProductPairIntersection(t *testing.T) {
	detector, promotions, products, _ := newTestDetector()
	ctx := context.Background()

	promotions.On("ListByStatuses", ctx, pendingAndApproved()).Return([]domain.Promotion{
		{
			ID:         "p1",
			Name:       "Flash Sale",
			Code:       "FLASH",
			ApplyScope: domain.ScopeProduct,
			ProductIDs: []string{"prod-1", "prod-2"},
			StartDate:  day(2025, 6, 1),
			ExpiryDate: day(2025, 6, 30),
		},
	}, nil)
	products.On("ListByIDs", ctx, []string{"prod-2"}).Return([]domain.Product{{ID: "prod-2", Name: "Linen Shirt"}}, nil)

	err := detector.Check(ctx, Candidate{
		Scope:      domain.ScopeProduct,
		ProductIDs: []string{"prod-2", "prod-9"},
		StartDate:  day(2025, 6, 20),
		ExpiryDate: day(2025, 7, 20),
	})

	var appErr *apperrors.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, "PROMOTION_OVERLAP", appErr.Code)
	assert.Contains(t, appErr.Message, "Linen Shirt")
}

func TestConflictCheck_ProductPairDisjointTargets(t *testing.T) {
	detector, promotions, _, _ := newTestDetector()
	ctx := context.Background()

	promotions.On("ListByStatuses", ctx, pendingAndApproved()).Return([]domain.Promotion{
		{
			ID:         "p1",
			ApplyScope: domain.ScopeProduct,
			ProductIDs: []string{"prod-1"},
			StartDate:  day(2025, 6, 1),
			ExpiryDate: day(2025, 6, 30),
		},
	}, nil)

	err := detector.Check(ctx, Candidate{
		Scope:      domain.ScopeProduct,
		ProductIDs: []string{"prod-9"},
		StartDate:  day(2025, 6, 1),
		ExpiryDate: day(2025, 6, 30),
	})

	require.NoError(t, err)
}

func TestConflictCheck_CategoryPairViaDescendant(t *testing.T) {
	detector, promotions, _, categories := newTestDetector()
	ctx := context.Background()

	// Existing promotion targets "clothing"; the candidate targets its child
	// "shirts". The expanded sets share "shirts".
	promotions.On("ListByStatuses", ctx, pendingAndApproved()).Return([]domain.Promotion{
		{
			ID:          "p1",
			Name:        "Autumn Wardrobe",
			Code:        "FALL",
			ApplyScope:  domain.ScopeCategory,
			CategoryIDs: []string{"clothing"},
			StartDate:   day(2025, 6, 1),
			ExpiryDate:  day(2025, 6, 30),
		},
	}, nil)
	categories.On("ListChildren", ctx, "shirts").Return([]domain.Category{}, nil)
	categories.On("ListChildren", ctx, "clothing").Return([]domain.Category{{ID: "shirts"}}, nil)
	categories.On("GetByID", ctx, "shirts").Return(&domain.Category{ID: "shirts", Name: "Shirts"}, nil)

	err := detector.Check(ctx, Candidate{
		Scope:       domain.ScopeCategory,
		CategoryIDs: []string{"shirts"},
		StartDate:   day(2025, 6, 15),
		ExpiryDate:  day(2025, 7, 15),
	})

	var appErr *apperrors.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, "PROMOTION_OVERLAP", appErr.Code)
}

func TestConflictCheck_CategoryVsProductViaAncestor(t *testing.T) {
	detector, promotions, products, categories := newTestDetector()
	ctx := context.Background()

	// Existing PRODUCT promotion holds "prod-1", which sits in "shirts",
	// a child of the candidate's target "clothing".
	promotions.On("ListByStatuses", ctx, pendingAndApproved()).Return([]domain.Promotion{
		{
			ID:         "p1",
			Name:       "Shirt Special",
			Code:       "SHIRT10",
			ApplyScope: domain.ScopeProduct,
			ProductIDs: []string{"prod-1"},
			StartDate:  day(2025, 6, 1),
			ExpiryDate: day(2025, 6, 30),
		},
	}, nil)

	shirts := "shirts"
	clothing := "clothing"
	products.On("ListByIDs", ctx, []string{"prod-1"}).Return([]domain.Product{
		{ID: "prod-1", Name: "Linen Shirt", CategoryID: &shirts},
	}, nil)
	categories.On("GetByID", ctx, "shirts").Return(&domain.Category{ID: "shirts", ParentID: &clothing}, nil)
	categories.On("GetByID", ctx, "clothing").Return(&domain.Category{ID: "clothing"}, nil)

	err := detector.Check(ctx, Candidate{
		Scope:       domain.ScopeCategory,
		CategoryIDs: []string{"clothing"},
		StartDate:   day(2025, 6, 15),
		ExpiryDate:  day(2025, 7, 15),
	})

	var appErr *apperrors.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, "PROMOTION_OVERLAP", appErr.Code)
	assert.Contains(t, appErr.Message, "Linen Shirt")
}

func TestConflictCheck_ProductVsCategoryViaAncestor(t *testing.T) {
	detector, promotions, products, categories := newTestDetector()
	ctx := context.Background()

	// The mirror of the case above: now the CATEGORY promotion already
	// exists and the candidate targets the product directly.
	promotions.On("ListByStatuses", ctx, pendingAndApproved()).Return([]domain.Promotion{
		{
			ID:          "p1",
			Name:        "Clothing Sale",
			Code:        "CLOTHES20",
			ApplyScope:  domain.ScopeCategory,
			CategoryIDs: []string{"clothing"},
			StartDate:   day(2025, 6, 1),
			ExpiryDate:  day(2025, 6, 30),
		},
	}, nil)

	shirts := "shirts"
	clothing := "clothing"
	products.On("ListByIDs", ctx, []string{"prod-1"}).Return([]domain.Product{
		{ID: "prod-1", Name: "Linen Shirt", CategoryID: &shirts},
	}, nil)
	categories.On("GetByID", ctx, "shirts").Return(&domain.Category{ID: "shirts", ParentID: &clothing}, nil)
	categories.On("GetByID", ctx, "clothing").Return(&domain.Category{ID: "clothing"}, nil)

	err := detector.Check(ctx, Candidate{
		Scope:      domain.ScopeProduct,
		ProductIDs: []string{"prod-1"},
		StartDate:  day(2025, 6, 15),
		ExpiryDate: day(2025, 7, 15),
	})

	var appErr *apperrors.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, "PROMOTION_OVERLAP", appErr.Code)
	assert.Contains(t, appErr.Message, "Linen Shirt")
}

func TestConflictCheck_SelfExcludedOnEdit(t *testing.T) {
	detector, promotions, _, _ := newTestDetector()
	ctx := context.Background()

	promotions.On("ListByStatuses", ctx, pendingAndApproved()).Return([]domain.Promotion{
		{
			ID:         "p1",
			ApplyScope: domain.ScopeOrder,
			StartDate:  day(2025, 6, 1),
			ExpiryDate: day(2025, 6, 30),
		},
	}, nil)

	// Editing p1 itself must not report a conflict with p1.
	err := detector.Check(ctx, Candidate{
		ID:         "p1",
		Scope:      domain.ScopeOrder,
		StartDate:  day(2025, 6, 1),
		ExpiryDate: day(2025, 7, 31),
	})

	require.NoError(t, err)
}
