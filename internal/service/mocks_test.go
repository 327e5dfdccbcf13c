package service

import (
	"context"
	"log/slog"
	"os"
	"time"

	"github.com/stretchr/testify/mock"

	pkgkafka "github.com/LinhDev610/LilaShop/pkg/kafka"

	"github.com/LinhDev610/LilaShop/internal/domain"
	"github.com/LinhDev610/LilaShop/internal/event"
	"github.com/LinhDev610/LilaShop/internal/repository"
)

// --- Mock repositories ---

type mockPromotionRepository struct {
	mock.Mock
}

func (m *mockPromotionRepository) Create(ctx context.Context, p *domain.Promotion) error {
	args := m.Called(ctx, p)
	return args.Error(0)
}

func (m *mockPromotionRepository) GetByID(ctx context.Context, id string) (*domain.Promotion, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Promotion), args.Error(1)
}

func (m *mockPromotionRepository) ExistsByCode(ctx context.Context, code string) (bool, error) {
	args := m.Called(ctx, code)
	return args.Bool(0), args.Error(1)
}

func (m *mockPromotionRepository) List(ctx context.Context, filter repository.PromotionFilter) ([]domain.Promotion, int, error) {
	args := m.Called(ctx, filter)
	return args.Get(0).([]domain.Promotion), args.Int(1), args.Error(2)
}

func (m *mockPromotionRepository) ListByStatuses(ctx context.Context, statuses []string) ([]domain.Promotion, error) {
	args := m.Called(ctx, statuses)
	return args.Get(0).([]domain.Promotion), args.Error(1)
}

func (m *mockPromotionRepository) ListActive(ctx context.Context, asOf time.Time) ([]domain.Promotion, error) {
	args := m.Called(ctx, asOf)
	return args.Get(0).([]domain.Promotion), args.Error(1)
}

func (m *mockPromotionRepository) ListBySubmitter(ctx context.Context, actorID string) ([]domain.Promotion, error) {
	args := m.Called(ctx, actorID)
	return args.Get(0).([]domain.Promotion), args.Error(1)
}

func (m *mockPromotionRepository) ListEligibleForProduct(ctx context.Context, productID string, categoryIDs []string, asOf time.Time) ([]domain.Promotion, error) {
	args := m.Called(ctx, productID, categoryIDs, asOf)
	return args.Get(0).([]domain.Promotion), args.Error(1)
}

func (m *mockPromotionRepository) ListDueForActivation(ctx context.Context, asOf time.Time) ([]domain.Promotion, error) {
	args := m.Called(ctx, asOf)
	return args.Get(0).([]domain.Promotion), args.Error(1)
}

func (m *mockPromotionRepository) ListExpired(ctx context.Context, asOf time.Time) ([]domain.Promotion, error) {
	args := m.Called(ctx, asOf)
	return args.Get(0).([]domain.Promotion), args.Error(1)
}

func (m *mockPromotionRepository) Update(ctx context.Context, p *domain.Promotion) error {
	args := m.Called(ctx, p)
	return args.Error(0)
}

func (m *mockPromotionRepository) Delete(ctx context.Context, id string) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *mockPromotionRepository) CountByImageURL(ctx context.Context, url string) (int, error) {
	args := m.Called(ctx, url)
	return args.Int(0), args.Error(1)
}

type mockVoucherRepository struct {
	mock.Mock
}

func (m *mockVoucherRepository) Create(ctx context.Context, v *domain.Voucher) error {
	args := m.Called(ctx, v)
	return args.Error(0)
}

func (m *mockVoucherRepository) GetByID(ctx context.Context, id string) (*domain.Voucher, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Voucher), args.Error(1)
}

func (m *mockVoucherRepository) GetByCode(ctx context.Context, code string) (*domain.Voucher, error) {
	args := m.Called(ctx, code)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Voucher), args.Error(1)
}

func (m *mockVoucherRepository) ExistsByCode(ctx context.Context, code string) (bool, error) {
	args := m.Called(ctx, code)
	return args.Bool(0), args.Error(1)
}

func (m *mockVoucherRepository) List(ctx context.Context, filter repository.VoucherFilter) ([]domain.Voucher, int, error) {
	args := m.Called(ctx, filter)
	return args.Get(0).([]domain.Voucher), args.Int(1), args.Error(2)
}

func (m *mockVoucherRepository) ListBySubmitter(ctx context.Context, actorID string) ([]domain.Voucher, error) {
	args := m.Called(ctx, actorID)
	return args.Get(0).([]domain.Voucher), args.Error(1)
}

func (m *mockVoucherRepository) ListActive(ctx context.Context, asOf time.Time) ([]domain.Voucher, error) {
	args := m.Called(ctx, asOf)
	return args.Get(0).([]domain.Voucher), args.Error(1)
}

func (m *mockVoucherRepository) ListExpired(ctx context.Context, asOf time.Time) ([]domain.Voucher, error) {
	args := m.Called(ctx, asOf)
	return args.Get(0).([]domain.Voucher), args.Error(1)
}

func (m *mockVoucherRepository) Update(ctx context.Context, v *domain.Voucher) error {
	args := m.Called(ctx, v)
	return args.Error(0)
}

func (m *mockVoucherRepository) Delete(ctx context.Context, id string) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *mockVoucherRepository) CountByImageURL(ctx context.Context, url string) (int, error) {
	args := m.Called(ctx, url)
	return args.Int(0), args.Error(1)
}

func (m *mockVoucherRepository) IncrementUsage(ctx context.Context, id string) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *mockVoucherRepository) RecordRedemption(ctx context.Context, r *domain.VoucherRedemption) error {
	args := m.Called(ctx, r)
	return args.Error(0)
}

func (m *mockVoucherRepository) CountRedemptionsByUser(ctx context.Context, voucherID, userID string) (int, error) {
	args := m.Called(ctx, voucherID, userID)
	return args.Int(0), args.Error(1)
}

func (m *mockVoucherRepository) ListRedeemedVoucherIDs(ctx context.Context, userID string) ([]string, error) {
	args := m.Called(ctx, userID)
	return args.Get(0).([]string), args.Error(1)
}

type mockProductRepository struct {
	mock.Mock
}

func (m *mockProductRepository) GetByID(ctx context.Context, id string) (*domain.Product, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Product), args.Error(1)
}

func (m *mockProductRepository) ListByIDs(ctx context.Context, ids []string) ([]domain.Product, error) {
	args := m.Called(ctx, ids)
	return args.Get(0).([]domain.Product), args.Error(1)
}

func (m *mockProductRepository) ListByCategoryIDs(ctx context.Context, categoryIDs []string) ([]domain.Product, error) {
	args := m.Called(ctx, categoryIDs)
	return args.Get(0).([]domain.Product), args.Error(1)
}

func (m *mockProductRepository) ListByPromotionID(ctx context.Context, promotionID string) ([]domain.Product, error) {
	args := m.Called(ctx, promotionID)
	return args.Get(0).([]domain.Product), args.Error(1)
}

func (m *mockProductRepository) SavePricing(ctx context.Context, p *domain.Product) error {
	args := m.Called(ctx, p)
	return args.Error(0)
}

type mockCategoryRepository struct {
	mock.Mock
}

func (m *mockCategoryRepository) GetByID(ctx context.Context, id string) (*domain.Category, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Category), args.Error(1)
}

func (m *mockCategoryRepository) ListChildren(ctx context.Context, parentID string) ([]domain.Category, error) {
	args := m.Called(ctx, parentID)
	return args.Get(0).([]domain.Category), args.Error(1)
}

type mockArchiveRepository struct {
	mock.Mock
}

func (m *mockArchiveRepository) ArchivePromotion(ctx context.Context, p *domain.Promotion) error {
	args := m.Called(ctx, p)
	return args.Error(0)
}

func (m *mockArchiveRepository) ArchiveVoucher(ctx context.Context, v *domain.Voucher) error {
	args := m.Called(ctx, v)
	return args.Error(0)
}

type mockMediaReleaser struct {
	mock.Mock
}

func (m *mockMediaReleaser) Release(ctx context.Context, url string) error {
	args := m.Called(ctx, url)
	return args.Error(0)
}

// --- Test helpers ---

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
}

// newTestEventProducer returns a producer backed by a broker that is not
// there; publishes fail silently, which the services log and tolerate.
func newTestEventProducer() *event.Producer {
	logger := newTestLogger()
	kafkaCfg := pkgkafka.DefaultProducerConfig([]string{"localhost:9092"})
	return event.NewProducer(pkgkafka.NewProducer(kafkaCfg, logger), logger)
}

// testToday is the fixed clock all service tests run on.
var testToday = time.Date(2025, time.June, 15, 10, 30, 0, 0, time.UTC)

func fixedNow() time.Time {
	return testToday
}

func strPtr(s string) *string {
	return &s
}

func floatPtr(f float64) *float64 {
	return &f
}

func timePtr(t time.Time) *time.Time {
	return &t
}
