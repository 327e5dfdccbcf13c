package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/LinhDev610/LilaShop/pkg/database"
	apperrors "github.com/LinhDev610/LilaShop/pkg/errors"

	"github.com/LinhDev610/LilaShop/internal/domain"
)

const productColumns = `id, name, category_id, status, unit_price, tax,
	discount_value, price, promotion_id, created_at, updated_at`

// ProductRepository implements repository.ProductRepository using PostgreSQL.
type ProductRepository struct {
	db database.DBTX
}

// NewProductRepository creates a new PostgreSQL-backed product repository.
func NewProductRepository(db database.DBTX) *ProductRepository {
	return &ProductRepository{db: db}
}

// GetByID retrieves a product with its variants.
func (r *ProductRepository) GetByID(ctx context.Context, id string) (*domain.Product, error) {
	query := `SELECT ` + productColumns + ` FROM products WHERE id = $1`

	rows, err := r.db.Query(ctx, query, id)
	if err != nil {
		return nil, fmt.Errorf("query product: %w", err)
	}
	defer rows.Close()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, fmt.Errorf("query product: %w", err)
		}
		return nil, apperrors.ErrNotFound
	}

	p, err := scanProductRow(rows)
	if err != nil {
		return nil, err
	}
	rows.Close()

	variants, err := r.listVariants(ctx, []string{p.ID})
	if err != nil {
		return nil, err
	}
	p.Variants = variants[p.ID]
	if p.Variants == nil {
		p.Variants = []domain.ProductVariant{}
	}

	return p, nil
}

// ListByIDs retrieves approved products (with variants) for the given ids.
// Missing and unapproved ids are omitted from the result.
func (r *ProductRepository) ListByIDs(ctx context.Context, ids []string) ([]domain.Product, error) {
	if len(ids) == 0 {
		return []domain.Product{}, nil
	}
	query := `SELECT ` + productColumns + ` FROM products WHERE id = ANY($1) AND status = $2 ORDER BY id`
	return r.scanProductsWithVariants(ctx, query, ids, domain.ProductStatusApproved)
}

// ListByCategoryIDs returns approved products belonging to any of the given
// categories.
func (r *ProductRepository) ListByCategoryIDs(ctx context.Context, categoryIDs []string) ([]domain.Product, error) {
	if len(categoryIDs) == 0 {
		return []domain.Product{}, nil
	}
	query := `
		SELECT ` + productColumns + `
		FROM products
		WHERE category_id = ANY($1) AND status = $2
		ORDER BY id`
	return r.scanProductsWithVariants(ctx, query, categoryIDs, domain.ProductStatusApproved)
}

// ListByPromotionID returns products whose pricing is currently held by the
// given promotion.
func (r *ProductRepository) ListByPromotionID(ctx context.Context, promotionID string) ([]domain.Product, error) {
	query := `SELECT ` + productColumns + ` FROM products WHERE promotion_id = $1 ORDER BY id`
	return r.scanProductsWithVariants(ctx, query, promotionID)
}

// SavePricing writes the derived pricing fields of a product and its variants
// inside a transaction, holding a row lock on the product for the duration of
// the write so concurrent cascades serialise at the database as well.
func (r *ProductRepository) SavePricing(ctx context.Context, p *domain.Product) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin pricing tx: %w", err)
	}
	defer tx.Rollback(ctx)

	var locked string
	err = tx.QueryRow(ctx, `SELECT id FROM products WHERE id = $1 FOR UPDATE`, p.ID).Scan(&locked)
	if err != nil {
		return fmt.Errorf("lock product row: %w", err)
	}

	ct, err := tx.Exec(ctx, `
		UPDATE products
		SET discount_value = $1, price = $2, promotion_id = $3, updated_at = NOW()
		WHERE id = $4`,
		p.DiscountValue, p.Price, p.PromotionID, p.ID,
	)
	if err != nil {
		return fmt.Errorf("update product pricing: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return apperrors.NotFound("product", p.ID)
	}

	for i := range p.Variants {
		v := &p.Variants[i]
		_, err := tx.Exec(ctx, `
			UPDATE product_variants
			SET discount_value = $1, price = $2
			WHERE id = $3 AND product_id = $4`,
			v.DiscountValue, v.Price, v.ID, v.ProductID,
		)
		if err != nil {
			return fmt.Errorf("update variant pricing: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit pricing tx: %w", err)
	}
	return nil
}

func (r *ProductRepository) scanProductsWithVariants(ctx context.Context, query string, args ...any) ([]domain.Product, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query products: %w", err)
	}
	defer rows.Close()

	var products []domain.Product
	for rows.Next() {
		p, err := scanProductRow(rows)
		if err != nil {
			return nil, err
		}
		products = append(products, *p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate product rows: %w", err)
	}
	rows.Close()

	if len(products) == 0 {
		return []domain.Product{}, nil
	}

	ids := make([]string, len(products))
	for i := range products {
		ids[i] = products[i].ID
	}
	variants, err := r.listVariants(ctx, ids)
	if err != nil {
		return nil, err
	}
	for i := range products {
		products[i].Variants = variants[products[i].ID]
		if products[i].Variants == nil {
			products[i].Variants = []domain.ProductVariant{}
		}
	}

	return products, nil
}

func (r *ProductRepository) listVariants(ctx context.Context, productIDs []string) (map[string][]domain.ProductVariant, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, product_id, sku, unit_price, tax, discount_value, price
		FROM product_variants
		WHERE product_id = ANY($1)
		ORDER BY id`,
		productIDs,
	)
	if err != nil {
		return nil, fmt.Errorf("query variants: %w", err)
	}
	defer rows.Close()

	variants := make(map[string][]domain.ProductVariant)
	for rows.Next() {
		var v domain.ProductVariant
		if err := rows.Scan(&v.ID, &v.ProductID, &v.SKU, &v.UnitPrice, &v.Tax, &v.DiscountValue, &v.Price); err != nil {
			return nil, fmt.Errorf("scan variant row: %w", err)
		}
		variants[v.ProductID] = append(variants[v.ProductID], v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate variant rows: %w", err)
	}
	return variants, nil
}

func scanProductRow(rows pgx.Rows) (*domain.Product, error) {
	var p domain.Product
	if err := rows.Scan(
		&p.ID,
		&p.Name,
		&p.CategoryID,
		&p.Status,
		&p.UnitPrice,
		&p.Tax,
		&p.DiscountValue,
		&p.Price,
		&p.PromotionID,
		&p.CreatedAt,
		&p.UpdatedAt,
	); err != nil {
		return nil, fmt.Errorf("scan product row: %w", err)
	}
	return &p, nil
}
