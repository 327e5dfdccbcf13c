package repository

import (
	"context"
	"time"

	"github.com/LinhDev610/LilaShop/internal/domain"
)

// PromotionFilter defines filter criteria for listing promotions.
type PromotionFilter struct {
	Status  *string
	Page    int
	PerPage int
}

// PromotionRepository defines the interface for promotion persistence operations.
type PromotionRepository interface {
	// Create inserts a new promotion into the store.
	Create(ctx context.Context, p *domain.Promotion) error

	// GetByID retrieves a promotion by its unique identifier.
	GetByID(ctx context.Context, id string) (*domain.Promotion, error)

	// ExistsByCode reports whether a promotion with the given code exists.
	ExistsByCode(ctx context.Context, code string) (bool, error)

	// List returns promotions matching the filter along with the total count.
	List(ctx context.Context, filter PromotionFilter) ([]domain.Promotion, int, error)

	// ListByStatuses returns all promotions whose status is in the given set.
	ListByStatuses(ctx context.Context, statuses []string) ([]domain.Promotion, error)

	// ListActive returns approved, switched-on promotions whose date window
	// contains the given day.
	ListActive(ctx context.Context, asOf time.Time) ([]domain.Promotion, error)

	// ListBySubmitter returns promotions submitted by the given actor.
	ListBySubmitter(ctx context.Context, actorID string) ([]domain.Promotion, error)

	// ListEligibleForProduct returns approved, switched-on promotions whose
	// window contains asOf and whose targets include the product directly or
	// via one of the given category ids.
	ListEligibleForProduct(ctx context.Context, productID string, categoryIDs []string, asOf time.Time) ([]domain.Promotion, error)

	// ListDueForActivation returns approved, switched-off promotions whose
	// window contains the given day.
	ListDueForActivation(ctx context.Context, asOf time.Time) ([]domain.Promotion, error)

	// ListExpired returns switched-on promotions whose expiry date has passed.
	ListExpired(ctx context.Context, asOf time.Time) ([]domain.Promotion, error)

	// Update modifies an existing promotion in the store.
	Update(ctx context.Context, p *domain.Promotion) error

	// Delete removes a promotion from the store.
	Delete(ctx context.Context, id string) error

	// CountByImageURL returns how many promotions reference the given image.
	CountByImageURL(ctx context.Context, url string) (int, error)
}

// VoucherFilter defines filter criteria for listing vouchers.
type VoucherFilter struct {
	Status  *string
	Page    int
	PerPage int
}

// VoucherRepository defines the interface for voucher persistence operations.
type VoucherRepository interface {
	Create(ctx context.Context, v *domain.Voucher) error
	GetByID(ctx context.Context, id string) (*domain.Voucher, error)
	GetByCode(ctx context.Context, code string) (*domain.Voucher, error)
	ExistsByCode(ctx context.Context, code string) (bool, error)
	List(ctx context.Context, filter VoucherFilter) ([]domain.Voucher, int, error)
	ListBySubmitter(ctx context.Context, actorID string) ([]domain.Voucher, error)

	// ListActive returns approved, switched-on vouchers whose date window
	// contains the given day.
	ListActive(ctx context.Context, asOf time.Time) ([]domain.Voucher, error)

	// ListExpired returns switched-on vouchers whose expiry date has passed.
	ListExpired(ctx context.Context, asOf time.Time) ([]domain.Voucher, error)

	Update(ctx context.Context, v *domain.Voucher) error
	Delete(ctx context.Context, id string) error
	CountByImageURL(ctx context.Context, url string) (int, error)

	// IncrementUsage atomically increments the voucher's usage count.
	IncrementUsage(ctx context.Context, id string) error

	// RecordRedemption stores a redemption entry.
	RecordRedemption(ctx context.Context, r *domain.VoucherRedemption) error

	// CountRedemptionsByUser returns how many times the user redeemed the voucher.
	CountRedemptionsByUser(ctx context.Context, voucherID, userID string) (int, error)

	// ListRedeemedVoucherIDs returns the ids of vouchers the user has redeemed
	// at least once.
	ListRedeemedVoucherIDs(ctx context.Context, userID string) ([]string, error)
}

// ProductRepository defines the catalog-item lookup and pricing-save interface
// the engine consumes.
type ProductRepository interface {
	// GetByID retrieves a product with its variants.
	GetByID(ctx context.Context, id string) (*domain.Product, error)

	// ListByIDs retrieves products (with variants) for the given ids. Missing
	// ids are omitted from the result, not treated as errors.
	ListByIDs(ctx context.Context, ids []string) ([]domain.Product, error)

	// ListByCategoryIDs returns approved products belonging to any of the
	// given categories.
	ListByCategoryIDs(ctx context.Context, categoryIDs []string) ([]domain.Product, error)

	// ListByPromotionID returns products whose pricing is currently held by
	// the given promotion.
	ListByPromotionID(ctx context.Context, promotionID string) ([]domain.Product, error)

	// SavePricing writes the derived pricing fields (discount_value, price,
	// promotion_id) of a product and its variants, taking a row lock on the
	// product for the duration of the write.
	SavePricing(ctx context.Context, p *domain.Product) error
}

// CategoryRepository defines the category-hierarchy lookup the engine consumes.
type CategoryRepository interface {
	GetByID(ctx context.Context, id string) (*domain.Category, error)

	// ListChildren returns the direct children of the given category.
	ListChildren(ctx context.Context, parentID string) ([]domain.Category, error)
}

// ArchiveRepository stores expired campaign records for data retention.
type ArchiveRepository interface {
	ArchivePromotion(ctx context.Context, p *domain.Promotion) error
	ArchiveVoucher(ctx context.Context, v *domain.Voucher) error
}
