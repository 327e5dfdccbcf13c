package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/LinhDev610/LilaShop/pkg/database"

	"github.com/LinhDev610/LilaShop/internal/domain"
)

// ArchiveRepository stores expired campaign records for data retention. The
// full record is kept as a JSONB snapshot so the archive survives later schema
// changes to the live tables.
type ArchiveRepository struct {
	db database.DBTX
}

// NewArchiveRepository creates a new PostgreSQL-backed archive repository.
func NewArchiveRepository(db database.DBTX) *ArchiveRepository {
	return &ArchiveRepository{db: db}
}

// ArchivePromotion copies an expired promotion into the archive table.
func (r *ArchiveRepository) ArchivePromotion(ctx context.Context, p *domain.Promotion) error {
	payload, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("marshal promotion snapshot: %w", err)
	}

	query := `
		INSERT INTO expired_promotions (id, code, name, payload, archived_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO NOTHING`

	_, err = r.db.Exec(ctx, query, p.ID, p.Code, p.Name, payload, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("archive promotion: %w", err)
	}
	return nil
}

// ArchiveVoucher copies an expired voucher into the archive table.
func (r *ArchiveRepository) ArchiveVoucher(ctx context.Context, v *domain.Voucher) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal voucher snapshot: %w", err)
	}

	query := `
		INSERT INTO expired_vouchers (id, code, name, payload, archived_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO NOTHING`

	_, err = r.db.Exec(ctx, query, v.ID, v.Code, v.Name, payload, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("archive voucher: %w", err)
	}
	return nil
}
