package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/LinhDev610/LilaShop/pkg/database"
	apperrors "github.com/LinhDev610/LilaShop/pkg/errors"

	"github.com/LinhDev610/LilaShop/internal/domain"
	"github.com/LinhDev610/LilaShop/internal/repository"
)

const promotionColumns = `id, code, name, description, image_url, discount_value_type,
	discount_value, min_order_value, max_discount_value, apply_scope,
	category_ids, product_ids, start_date, expiry_date, status, is_active,
	submitted_by, approved_by, submitted_at, approved_at, rejection_reason,
	usage_count, usage_limit, created_at, updated_at`

// PromotionRepository implements repository.PromotionRepository using PostgreSQL.
type PromotionRepository struct {
	db database.DBTX
}

// NewPromotionRepository creates a new PostgreSQL-backed promotion repository.
func NewPromotionRepository(db database.DBTX) *PromotionRepository {
	return &PromotionRepository{db: db}
}

// Create inserts a new promotion into the database.
func (r *PromotionRepository) Create(ctx context.Context, p *domain.Promotion) error {
	categoriesJSON, err := json.Marshal(p.CategoryIDs)
	if err != nil {
		return fmt.Errorf("marshal category_ids: %w", err)
	}
	productsJSON, err := json.Marshal(p.ProductIDs)
	if err != nil {
		return fmt.Errorf("marshal product_ids: %w", err)
	}

	query := `
		INSERT INTO promotions (` + promotionColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14,
			$15, $16, $17, $18, $19, $20, $21, $22, $23, $24, $25)`

	_, err = r.db.Exec(ctx, query,
		p.ID,
		p.Code,
		p.Name,
		p.Description,
		p.ImageURL,
		p.DiscountValueType,
		p.DiscountValue,
		p.MinOrderValue,
		p.MaxDiscountValue,
		p.ApplyScope,
		categoriesJSON,
		productsJSON,
		p.StartDate,
		p.ExpiryDate,
		p.Status,
		p.IsActive,
		p.SubmittedBy,
		p.ApprovedBy,
		p.SubmittedAt,
		p.ApprovedAt,
		p.RejectionReason,
		p.UsageCount,
		p.UsageLimit,
		p.CreatedAt,
		p.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return apperrors.AlreadyExists("promotion", "code", p.Code)
		}
		return fmt.Errorf("insert promotion: %w", err)
	}

	return nil
}

// GetByID retrieves a promotion by its ID.
func (r *PromotionRepository) GetByID(ctx context.Context, id string) (*domain.Promotion, error) {
	query := `SELECT ` + promotionColumns + ` FROM promotions WHERE id = $1`
	return r.scanPromotion(ctx, query, id)
}

// ExistsByCode reports whether a promotion with the given code exists.
func (r *PromotionRepository) ExistsByCode(ctx context.Context, code string) (bool, error) {
	var exists bool
	err := r.db.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM promotions WHERE code = $1)`, code).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check promotion code: %w", err)
	}
	return exists, nil
}

// List returns promotions matching the given filter with the total count.
func (r *PromotionRepository) List(ctx context.Context, filter repository.PromotionFilter) ([]domain.Promotion, int, error) {
	var (
		conditions []string
		args       []any
		argIndex   = 1
	)

	if filter.Status != nil {
		conditions = append(conditions, fmt.Sprintf("status = $%d", argIndex))
		args = append(args, *filter.Status)
		argIndex++
	}

	whereClause := ""
	if len(conditions) > 0 {
		whereClause = "WHERE " + strings.Join(conditions, " AND ")
	}

	query := fmt.Sprintf(`
		SELECT `+promotionColumns+`,
			   count(*) OVER() AS total_count
		FROM promotions
		%s
		ORDER BY created_at DESC
		LIMIT $%d OFFSET $%d`,
		whereClause, argIndex, argIndex+1,
	)

	limit := filter.PerPage
	if limit <= 0 {
		limit = 20
	}
	offset := 0
	if filter.Page > 1 {
		offset = (filter.Page - 1) * limit
	}

	args = append(args, limit, offset)

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list promotions: %w", err)
	}
	defer rows.Close()

	var (
		promotions []domain.Promotion
		totalCount int
	)

	for rows.Next() {
		p, err := scanPromotionRow(rows, &totalCount)
		if err != nil {
			return nil, 0, err
		}
		promotions = append(promotions, *p)
	}

	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate promotion rows: %w", err)
	}

	if promotions == nil {
		promotions = []domain.Promotion{}
	}

	return promotions, totalCount, nil
}

// ListByStatuses returns all promotions whose status is in the given set.
func (r *PromotionRepository) ListByStatuses(ctx context.Context, statuses []string) ([]domain.Promotion, error) {
	query := `SELECT ` + promotionColumns + ` FROM promotions WHERE status = ANY($1) ORDER BY start_date`
	return r.scanPromotions(ctx, query, statuses)
}

// ListActive returns approved, switched-on promotions whose date window
// contains the given day.
func (r *PromotionRepository) ListActive(ctx context.Context, asOf time.Time) ([]domain.Promotion, error) {
	query := `
		SELECT ` + promotionColumns + `
		FROM promotions
		WHERE status = $1 AND is_active AND start_date <= $2 AND expiry_date >= $2
		ORDER BY start_date`
	return r.scanPromotions(ctx, query, domain.StatusApproved, asOf)
}

// ListBySubmitter returns promotions submitted by the given actor.
func (r *PromotionRepository) ListBySubmitter(ctx context.Context, actorID string) ([]domain.Promotion, error) {
	query := `SELECT ` + promotionColumns + ` FROM promotions WHERE submitted_by = $1 ORDER BY created_at DESC`
	return r.scanPromotions(ctx, query, actorID)
}

// ListEligibleForProduct returns approved, switched-on promotions whose window
// contains asOf and whose targets include the product directly or via one of
// the given category ids.
func (r *PromotionRepository) ListEligibleForProduct(ctx context.Context, productID string, categoryIDs []string, asOf time.Time) ([]domain.Promotion, error) {
	query := `
		SELECT ` + promotionColumns + `
		FROM promotions
		WHERE status = $1 AND is_active AND start_date <= $2 AND expiry_date >= $2
		  AND (
			(apply_scope = $3 AND product_ids ? $4)
			OR (apply_scope = $5 AND category_ids ?| $6)
		  )
		ORDER BY start_date`
	return r.scanPromotions(ctx, query,
		domain.StatusApproved, asOf,
		domain.ScopeProduct, productID,
		domain.ScopeCategory, categoryIDs,
	)
}

// ListDueForActivation returns approved, switched-off promotions whose window
// contains the given day.
func (r *PromotionRepository) ListDueForActivation(ctx context.Context, asOf time.Time) ([]domain.Promotion, error) {
	query := `
		SELECT ` + promotionColumns + `
		FROM promotions
		WHERE status = $1 AND NOT is_active AND start_date <= $2 AND expiry_date >= $2
		ORDER BY start_date`
	return r.scanPromotions(ctx, query, domain.StatusApproved, asOf)
}

// ListExpired returns switched-on promotions whose expiry date has passed.
func (r *PromotionRepository) ListExpired(ctx context.Context, asOf time.Time) ([]domain.Promotion, error) {
	query := `
		SELECT ` + promotionColumns + `
		FROM promotions
		WHERE is_active AND expiry_date < $1
		ORDER BY expiry_date`
	return r.scanPromotions(ctx, query, asOf)
}

// Update modifies an existing promotion in the database.
func (r *PromotionRepository) Update(ctx context.Context, p *domain.Promotion) error {
	categoriesJSON, err := json.Marshal(p.CategoryIDs)
	if err != nil {
		return fmt.Errorf("marshal category_ids: %w", err)
	}
	productsJSON, err := json.Marshal(p.ProductIDs)
	if err != nil {
		return fmt.Errorf("marshal product_ids: %w", err)
	}

	query := `
		UPDATE promotions
		SET code = $1, name = $2, description = $3, image_url = $4,
		    discount_value_type = $5, discount_value = $6, min_order_value = $7,
		    max_discount_value = $8, apply_scope = $9, category_ids = $10,
		    product_ids = $11, start_date = $12, expiry_date = $13, status = $14,
		    is_active = $15, approved_by = $16, approved_at = $17,
		    rejection_reason = $18, usage_count = $19, usage_limit = $20,
		    updated_at = $21
		WHERE id = $22`

	ct, err := r.db.Exec(ctx, query,
		p.Code,
		p.Name,
		p.Description,
		p.ImageURL,
		p.DiscountValueType,
		p.DiscountValue,
		p.MinOrderValue,
		p.MaxDiscountValue,
		p.ApplyScope,
		categoriesJSON,
		productsJSON,
		p.StartDate,
		p.ExpiryDate,
		p.Status,
		p.IsActive,
		p.ApprovedBy,
		p.ApprovedAt,
		p.RejectionReason,
		p.UsageCount,
		p.UsageLimit,
		p.UpdatedAt,
		p.ID,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return apperrors.AlreadyExists("promotion", "code", p.Code)
		}
		return fmt.Errorf("update promotion: %w", err)
	}

	if ct.RowsAffected() == 0 {
		return apperrors.NotFound("promotion", p.ID)
	}

	return nil
}

// Delete removes a promotion from the database.
func (r *PromotionRepository) Delete(ctx context.Context, id string) error {
	ct, err := r.db.Exec(ctx, `DELETE FROM promotions WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete promotion: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return apperrors.NotFound("promotion", id)
	}
	return nil
}

// CountByImageURL returns how many promotions reference the given image.
func (r *PromotionRepository) CountByImageURL(ctx context.Context, url string) (int, error) {
	var count int
	err := r.db.QueryRow(ctx, `SELECT count(*) FROM promotions WHERE image_url = $1`, url).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count promotions by image: %w", err)
	}
	return count, nil
}

func (r *PromotionRepository) scanPromotion(ctx context.Context, query string, args ...any) (*domain.Promotion, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query promotion: %w", err)
	}
	defer rows.Close()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, fmt.Errorf("query promotion: %w", err)
		}
		return nil, apperrors.ErrNotFound
	}

	p, err := scanPromotionRow(rows, nil)
	if err != nil {
		return nil, err
	}
	return p, rows.Err()
}

func (r *PromotionRepository) scanPromotions(ctx context.Context, query string, args ...any) ([]domain.Promotion, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query promotions: %w", err)
	}
	defer rows.Close()

	var promotions []domain.Promotion
	for rows.Next() {
		p, err := scanPromotionRow(rows, nil)
		if err != nil {
			return nil, err
		}
		promotions = append(promotions, *p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate promotion rows: %w", err)
	}

	if promotions == nil {
		promotions = []domain.Promotion{}
	}
	return promotions, nil
}

// scanPromotionRow scans the promotion columns off the current row. When
// totalCount is non-nil the row is expected to carry a trailing
// count(*) OVER() column.
func scanPromotionRow(rows pgx.Rows, totalCount *int) (*domain.Promotion, error) {
	var (
		p              domain.Promotion
		categoriesJSON []byte
		productsJSON   []byte
	)

	dest := []any{
		&p.ID,
		&p.Code,
		&p.Name,
		&p.Description,
		&p.ImageURL,
		&p.DiscountValueType,
		&p.DiscountValue,
		&p.MinOrderValue,
		&p.MaxDiscountValue,
		&p.ApplyScope,
		&categoriesJSON,
		&productsJSON,
		&p.StartDate,
		&p.ExpiryDate,
		&p.Status,
		&p.IsActive,
		&p.SubmittedBy,
		&p.ApprovedBy,
		&p.SubmittedAt,
		&p.ApprovedAt,
		&p.RejectionReason,
		&p.UsageCount,
		&p.UsageLimit,
		&p.CreatedAt,
		&p.UpdatedAt,
	}
	if totalCount != nil {
		dest = append(dest, totalCount)
	}

	if err := rows.Scan(dest...); err != nil {
		return nil, fmt.Errorf("scan promotion row: %w", err)
	}

	if categoriesJSON != nil {
		if err := json.Unmarshal(categoriesJSON, &p.CategoryIDs); err != nil {
			return nil, fmt.Errorf("unmarshal category_ids: %w", err)
		}
	}
	if p.CategoryIDs == nil {
		p.CategoryIDs = []string{}
	}

	if productsJSON != nil {
		if err := json.Unmarshal(productsJSON, &p.ProductIDs); err != nil {
			return nil, fmt.Errorf("unmarshal product_ids: %w", err)
		}
	}
	if p.ProductIDs == nil {
		p.ProductIDs = []string{}
	}

	return &p, nil
}

// isUniqueViolation checks if the error is a PostgreSQL unique constraint violation (SQLSTATE 23505).
func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "23505")
}
