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

const voucherColumns = `id, code, name, description, image_url, discount_value_type,
	discount_value, min_order_value, max_discount_value, apply_scope,
	category_ids, product_ids, start_date, expiry_date,
	status, is_active, submitted_by, approved_by, submitted_at, approved_at,
	rejection_reason, usage_count, usage_limit, usage_per_user, created_at, updated_at`

// VoucherRepository implements repository.VoucherRepository using PostgreSQL.
type VoucherRepository struct {
	db database.DBTX
}

// NewVoucherRepository creates a new PostgreSQL-backed voucher repository.
func NewVoucherRepository(db database.DBTX) *VoucherRepository {
	return &VoucherRepository{db: db}
}

// Create inserts a new voucher into the database.
func (r *VoucherRepository) Create(ctx context.Context, v *domain.Voucher) error {
	query := `
		INSERT INTO vouchers (` + voucherColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14,
			$15, $16, $17, $18, $19, $20, $21, $22, $23, $24, $25, $26)`

	categoriesJSON, err := json.Marshal(v.CategoryIDs)
	if err != nil {
		return fmt.Errorf("marshal category_ids: %w", err)
	}
	productsJSON, err := json.Marshal(v.ProductIDs)
	if err != nil {
		return fmt.Errorf("marshal product_ids: %w", err)
	}

	_, err = r.db.Exec(ctx, query,
		v.ID,
		v.Code,
		v.Name,
		v.Description,
		v.ImageURL,
		v.DiscountValueType,
		v.DiscountValue,
		v.MinOrderValue,
		v.MaxDiscountValue,
		v.ApplyScope,
		categoriesJSON,
		productsJSON,
		v.StartDate,
		v.ExpiryDate,
		v.Status,
		v.IsActive,
		v.SubmittedBy,
		v.ApprovedBy,
		v.SubmittedAt,
		v.ApprovedAt,
		v.RejectionReason,
		v.UsageCount,
		v.UsageLimit,
		v.UsagePerUser,
		v.CreatedAt,
		v.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return apperrors.AlreadyExists("voucher", "code", v.Code)
		}
		return fmt.Errorf("insert voucher: %w", err)
	}

	return nil
}

// GetByID retrieves a voucher by its ID.
func (r *VoucherRepository) GetByID(ctx context.Context, id string) (*domain.Voucher, error) {
	query := `SELECT ` + voucherColumns + ` FROM vouchers WHERE id = $1`
	return r.scanVoucher(ctx, query, id)
}

// GetByCode retrieves a voucher by its code.
func (r *VoucherRepository) GetByCode(ctx context.Context, code string) (*domain.Voucher, error) {
	query := `SELECT ` + voucherColumns + ` FROM vouchers WHERE code = $1`
	return r.scanVoucher(ctx, query, code)
}

// ExistsByCode reports whether a voucher with the given code exists.
func (r *VoucherRepository) ExistsByCode(ctx context.Context, code string) (bool, error) {
	var exists bool
	err := r.db.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM vouchers WHERE code = $1)`, code).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check voucher code: %w", err)
	}
	return exists, nil
}

// List returns vouchers matching the given filter with the total count.
func (r *VoucherRepository) List(ctx context.Context, filter repository.VoucherFilter) ([]domain.Voucher, int, error) {
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
		SELECT `+voucherColumns+`,
			   count(*) OVER() AS total_count
		FROM vouchers
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
		return nil, 0, fmt.Errorf("list vouchers: %w", err)
	}
	defer rows.Close()

	var (
		vouchers   []domain.Voucher
		totalCount int
	)

	for rows.Next() {
		v, err := scanVoucherRow(rows, &totalCount)
		if err != nil {
			return nil, 0, err
		}
		vouchers = append(vouchers, *v)
	}

	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate voucher rows: %w", err)
	}

	if vouchers == nil {
		vouchers = []domain.Voucher{}
	}

	return vouchers, totalCount, nil
}

// ListBySubmitter returns vouchers submitted by the given actor.
func (r *VoucherRepository) ListBySubmitter(ctx context.Context, actorID string) ([]domain.Voucher, error) {
	query := `SELECT ` + voucherColumns + ` FROM vouchers WHERE submitted_by = $1 ORDER BY created_at DESC`
	return r.scanVouchers(ctx, query, actorID)
}

// ListActive returns approved, switched-on vouchers whose date window contains
// the given day.
func (r *VoucherRepository) ListActive(ctx context.Context, asOf time.Time) ([]domain.Voucher, error) {
	query := `
		SELECT ` + voucherColumns + `
		FROM vouchers
		WHERE status = $1 AND is_active AND start_date <= $2 AND expiry_date >= $2
		ORDER BY start_date`
	return r.scanVouchers(ctx, query, domain.StatusApproved, asOf)
}

// ListExpired returns switched-on vouchers whose expiry date has passed.
func (r *VoucherRepository) ListExpired(ctx context.Context, asOf time.Time) ([]domain.Voucher, error) {
	query := `
		SELECT ` + voucherColumns + `
		FROM vouchers
		WHERE is_active AND expiry_date < $1
		ORDER BY expiry_date`
	return r.scanVouchers(ctx, query, asOf)
}

// Update modifies an existing voucher in the database.
func (r *VoucherRepository) Update(ctx context.Context, v *domain.Voucher) error {
	query := `
		UPDATE vouchers
		SET code = $1, name = $2, description = $3, image_url = $4,
		    discount_value_type = $5, discount_value = $6, min_order_value = $7,
		    max_discount_value = $8, apply_scope = $9, category_ids = $10,
		    product_ids = $11, start_date = $12, expiry_date = $13,
		    status = $14, is_active = $15, approved_by = $16, approved_at = $17,
		    rejection_reason = $18, usage_count = $19, usage_limit = $20,
		    usage_per_user = $21, updated_at = $22
		WHERE id = $23`

	categoriesJSON, err := json.Marshal(v.CategoryIDs)
	if err != nil {
		return fmt.Errorf("marshal category_ids: %w", err)
	}
	productsJSON, err := json.Marshal(v.ProductIDs)
	if err != nil {
		return fmt.Errorf("marshal product_ids: %w", err)
	}

	ct, err := r.db.Exec(ctx, query,
		v.Code,
		v.Name,
		v.Description,
		v.ImageURL,
		v.DiscountValueType,
		v.DiscountValue,
		v.MinOrderValue,
		v.MaxDiscountValue,
		v.ApplyScope,
		categoriesJSON,
		productsJSON,
		v.StartDate,
		v.ExpiryDate,
		v.Status,
		v.IsActive,
		v.ApprovedBy,
		v.ApprovedAt,
		v.RejectionReason,
		v.UsageCount,
		v.UsageLimit,
		v.UsagePerUser,
		v.UpdatedAt,
		v.ID,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return apperrors.AlreadyExists("voucher", "code", v.Code)
		}
		return fmt.Errorf("update voucher: %w", err)
	}

	if ct.RowsAffected() == 0 {
		return apperrors.NotFound("voucher", v.ID)
	}

	return nil
}

// Delete removes a voucher from the database. Redemption rows are kept.
func (r *VoucherRepository) Delete(ctx context.Context, id string) error {
	ct, err := r.db.Exec(ctx, `DELETE FROM vouchers WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete voucher: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return apperrors.NotFound("voucher", id)
	}
	return nil
}

// CountByImageURL returns how many vouchers reference the given image.
func (r *VoucherRepository) CountByImageURL(ctx context.Context, url string) (int, error) {
	var count int
	err := r.db.QueryRow(ctx, `SELECT count(*) FROM vouchers WHERE image_url = $1`, url).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count vouchers by image: %w", err)
	}
	return count, nil
}

// IncrementUsage atomically increments the voucher's usage count.
func (r *VoucherRepository) IncrementUsage(ctx context.Context, id string) error {
	query := `
		UPDATE vouchers
		SET usage_count = usage_count + 1, updated_at = NOW()
		WHERE id = $1`

	ct, err := r.db.Exec(ctx, query, id)
	if err != nil {
		return fmt.Errorf("increment voucher usage: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return apperrors.NotFound("voucher", id)
	}
	return nil
}

// RecordRedemption stores a redemption entry.
func (r *VoucherRepository) RecordRedemption(ctx context.Context, red *domain.VoucherRedemption) error {
	query := `
		INSERT INTO voucher_redemptions (id, voucher_id, user_id, order_id, discount_applied, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`

	_, err := r.db.Exec(ctx, query,
		red.ID,
		red.VoucherID,
		red.UserID,
		red.OrderID,
		red.DiscountApplied,
		red.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("record voucher redemption: %w", err)
	}
	return nil
}

// CountRedemptionsByUser returns how many times the user redeemed the voucher.
func (r *VoucherRepository) CountRedemptionsByUser(ctx context.Context, voucherID, userID string) (int, error) {
	var count int
	err := r.db.QueryRow(ctx,
		`SELECT count(*) FROM voucher_redemptions WHERE voucher_id = $1 AND user_id = $2`,
		voucherID, userID,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count redemptions: %w", err)
	}
	return count, nil
}

// ListRedeemedVoucherIDs returns the ids of vouchers the user has redeemed at
// least once.
func (r *VoucherRepository) ListRedeemedVoucherIDs(ctx context.Context, userID string) ([]string, error) {
	rows, err := r.db.Query(ctx,
		`SELECT DISTINCT voucher_id FROM voucher_redemptions WHERE user_id = $1`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("list redeemed vouchers: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan voucher id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate voucher ids: %w", err)
	}
	return ids, nil
}

func (r *VoucherRepository) scanVoucher(ctx context.Context, query string, args ...any) (*domain.Voucher, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query voucher: %w", err)
	}
	defer rows.Close()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, fmt.Errorf("query voucher: %w", err)
		}
		return nil, apperrors.ErrNotFound
	}

	v, err := scanVoucherRow(rows, nil)
	if err != nil {
		return nil, err
	}
	return v, rows.Err()
}

func (r *VoucherRepository) scanVouchers(ctx context.Context, query string, args ...any) ([]domain.Voucher, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query vouchers: %w", err)
	}
	defer rows.Close()

	var vouchers []domain.Voucher
	for rows.Next() {
		v, err := scanVoucherRow(rows, nil)
		if err != nil {
			return nil, err
		}
		vouchers = append(vouchers, *v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate voucher rows: %w", err)
	}

	if vouchers == nil {
		vouchers = []domain.Voucher{}
	}
	return vouchers, nil
}

func scanVoucherRow(rows pgx.Rows, totalCount *int) (*domain.Voucher, error) {
	var (
		v              domain.Voucher
		categoriesJSON []byte
		productsJSON   []byte
	)

	dest := []any{
		&v.ID,
		&v.Code,
		&v.Name,
		&v.Description,
		&v.ImageURL,
		&v.DiscountValueType,
		&v.DiscountValue,
		&v.MinOrderValue,
		&v.MaxDiscountValue,
		&v.ApplyScope,
		&categoriesJSON,
		&productsJSON,
		&v.StartDate,
		&v.ExpiryDate,
		&v.Status,
		&v.IsActive,
		&v.SubmittedBy,
		&v.ApprovedBy,
		&v.SubmittedAt,
		&v.ApprovedAt,
		&v.RejectionReason,
		&v.UsageCount,
		&v.UsageLimit,
		&v.UsagePerUser,
		&v.CreatedAt,
		&v.UpdatedAt,
	}
	if totalCount != nil {
		dest = append(dest, totalCount)
	}

	if err := rows.Scan(dest...); err != nil {
		return nil, fmt.Errorf("scan voucher row: %w", err)
	}

	if categoriesJSON != nil {
		if err := json.Unmarshal(categoriesJSON, &v.CategoryIDs); err != nil {
			return nil, fmt.Errorf("unmarshal category_ids: %w", err)
		}
	}
	if v.CategoryIDs == nil {
		v.CategoryIDs = []string{}
	}

	if productsJSON != nil {
		if err := json.Unmarshal(productsJSON, &v.ProductIDs); err != nil {
			return nil, fmt.Errorf("unmarshal product_ids: %w", err)
		}
	}
	if v.ProductIDs == nil {
		v.ProductIDs = []string{}
	}

	return &v, nil
}
