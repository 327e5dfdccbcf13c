package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	apperrors "github.com/LinhDev610/LilaShop/pkg/errors"

	"github.com/LinhDev610/LilaShop/internal/domain"
)

type voucherServiceFixture struct {
	svc        *VoucherService
	vouchers   *mockVoucherRepository
	categories *mockCategoryRepository
	products   *mockProductRepository
	media      *mockMediaReleaser
}

func newVoucherServiceFixture() *voucherServiceFixture {
	vouchers := new(mockVoucherRepository)
	categories := new(mockCategoryRepository)
	products := new(mockProductRepository)
	media := new(mockMediaReleaser)
	scope := NewScopeResolver(categories, products)
	svc := NewVoucherService(vouchers, scope, media, newTestEventProducer(), NewKeyLock(), newTestLogger(), fixedNow)
	return &voucherServiceFixture{svc: svc, vouchers: vouchers, categories: categories, products: products, media: media}
}

func redeemableVoucher() *domain.Voucher {
	return &domain.Voucher{
		ID:                "v1",
		Code:              "WELCOME10",
		Name:              "Welcome Voucher",
		Status:            domain.StatusApproved,
		IsActive:          true,
		DiscountValueType: domain.DiscountTypePercentage,
		DiscountValue:     10,
		MinOrderValue:     100_000,
		MaxDiscountValue:  50_000,
		ApplyScope:        domain.ScopeOrder,
		StartDate:         day(2025, 6, 1),
		ExpiryDate:        day(2025, 6, 30),
		UsageLimit:        100,
		UsagePerUser:      1,
	}
}

func TestVoucherCreate_AlwaysPending(t *testing.T) {
	f := newVoucherServiceFixture()
	ctx := context.Background()

	f.vouchers.On("ExistsByCode", ctx, "WELCOME10").Return(false, nil)
	f.vouchers.On("Create", ctx, mock.AnythingOfType("*domain.Voucher")).Return(nil)

	// Even an admin's voucher waits in the approval queue.
	voucher, err := f.svc.Create(ctx, adminActor, &CreateVoucherInput{
		Code:              " welcome10 ",
		Name:              "Welcome Voucher",
		DiscountValueType: domain.DiscountTypePercentage,
		DiscountValue:     10,
		ApplyScope:        domain.ScopeOrder,
		StartDate:         day(2025, 6, 1),
		ExpiryDate:        day(2025, 6, 30),
		UsageLimit:        100,
		UsagePerUser:      1,
	})

	require.NoError(t, err)
	assert.Equal(t, "WELCOME10", voucher.Code)
	assert.Equal(t, domain.StatusPendingApproval, voucher.Status)
	assert.False(t, voucher.IsActive)
	assert.Equal(t, "admin-1", voucher.SubmittedBy)
}

func TestVoucherCreate_DuplicateCode(t *testing.T) {
	f := newVoucherServiceFixture()
	ctx := context.Background()

	f.vouchers.On("ExistsByCode", ctx, "WELCOME10").Return(true, nil)

	_, err := f.svc.Create(ctx, staffActor, &CreateVoucherInput{
		Code:              "WELCOME10",
		Name:              "Welcome Voucher",
		DiscountValueType: domain.DiscountTypeAmount,
		DiscountValue:     20_000,
		StartDate:         day(2025, 6, 1),
		ExpiryDate:        day(2025, 6, 30),
	})

	var appErr *apperrors.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, "DUPLICATE_CODE", appErr.Code)
}

func TestVoucherCreate_NegativeUsagePerUser(t *testing.T) {
	f := newVoucherServiceFixture()

	_, err := f.svc.Create(context.Background(), staffActor, &CreateVoucherInput{
		Code:              "WELCOME10",
		Name:              "Welcome Voucher",
		DiscountValueType: domain.DiscountTypeAmount,
		DiscountValue:     20_000,
		StartDate:         day(2025, 6, 1),
		ExpiryDate:        day(2025, 6, 30),
		UsagePerUser:      -1,
	})

	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)
}

func TestVoucherCreate_CategoryScopeResolvesTargets(t *testing.T) {
	f := newVoucherServiceFixture()
	ctx := context.Background()

	f.vouchers.On("ExistsByCode", ctx, "SHOES15").Return(false, nil)
	f.categories.On("GetByID", ctx, "cat-1").Return(&domain.Category{ID: "cat-1"}, nil)
	f.categories.On("GetByID", ctx, "cat-2").Return(&domain.Category{ID: "cat-2"}, nil)
	f.vouchers.On("Create", ctx, mock.AnythingOfType("*domain.Voucher")).Return(nil)

	voucher, err := f.svc.Create(ctx, staffActor, &CreateVoucherInput{
		Code:              "SHOES15",
		Name:              "Footwear Voucher",
		DiscountValueType: domain.DiscountTypePercentage,
		DiscountValue:     15,
		ApplyScope:        domain.ScopeCategory,
		CategoryIDs:       []string{"cat-2", "cat-1", "cat-2"},
		StartDate:         day(2025, 6, 1),
		ExpiryDate:        day(2025, 6, 30),
	})

	require.NoError(t, err)
	assert.Equal(t, domain.ScopeCategory, voucher.ApplyScope)
	assert.Equal(t, []string{"cat-1", "cat-2"}, voucher.CategoryIDs)
	assert.Empty(t, voucher.ProductIDs)
}

func TestVoucherCreate_OrderScopeRejectsTargets(t *testing.T) {
	f := newVoucherServiceFixture()
	ctx := context.Background()

	f.vouchers.On("ExistsByCode", ctx, "SITEWIDE").Return(false, nil)

	_, err := f.svc.Create(ctx, staffActor, &CreateVoucherInput{
		Code:              "SITEWIDE",
		Name:              "Sitewide Voucher",
		DiscountValueType: domain.DiscountTypeAmount,
		DiscountValue:     20_000,
		ApplyScope:        domain.ScopeOrder,
		ProductIDs:        []string{"prod-1"},
		StartDate:         day(2025, 6, 1),
		ExpiryDate:        day(2025, 6, 30),
	})

	var appErr *apperrors.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, "INVALID_SCOPE", appErr.Code)
	f.vouchers.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
}

func TestVoucherUpdate_ScopeChangeReresolves(t *testing.T) {
	f := newVoucherServiceFixture()
	ctx := context.Background()

	existing := redeemableVoucher()
	existing.SubmittedBy = "staff-1"

	f.vouchers.On("GetByID", ctx, "v1").Return(existing, nil)
	f.products.On("GetByID", ctx, "prod-7").Return(&domain.Product{ID: "prod-7"}, nil)
	f.vouchers.On("Update", ctx, mock.AnythingOfType("*domain.Voucher")).Return(nil)

	voucher, err := f.svc.Update(ctx, staffActor, "v1", &UpdateVoucherInput{
		ApplyScope: strPtr(domain.ScopeProduct),
		ProductIDs: []string{"prod-7"},
	})

	require.NoError(t, err)
	assert.Equal(t, domain.ScopeProduct, voucher.ApplyScope)
	assert.Equal(t, []string{"prod-7"}, voucher.ProductIDs)
	assert.Empty(t, voucher.CategoryIDs)
}

func TestVoucherUpdate_UnknownScopeTarget(t *testing.T) {
	f := newVoucherServiceFixture()
	ctx := context.Background()

	existing := redeemableVoucher()
	existing.SubmittedBy = "staff-1"

	f.vouchers.On("GetByID", ctx, "v1").Return(existing, nil)
	f.categories.On("GetByID", ctx, "cat-missing").Return(nil, apperrors.ErrNotFound)

	_, err := f.svc.Update(ctx, staffActor, "v1", &UpdateVoucherInput{
		ApplyScope:  strPtr(domain.ScopeCategory),
		CategoryIDs: []string{"cat-missing"},
	})

	var appErr *apperrors.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, "CATEGORY_NOT_FOUND", appErr.Code)
	f.vouchers.AssertNotCalled(t, "Update", mock.Anything, mock.Anything)
}

func TestVoucherDecide_ApproveActivatesImmediately(t *testing.T) {
	f := newVoucherServiceFixture()
	ctx := context.Background()

	// The window has not started yet; approval still switches the voucher on
	// because time eligibility is checked again at redemption.
	pending := redeemableVoucher()
	pending.Status = domain.StatusPendingApproval
	pending.IsActive = false
	pending.StartDate = day(2025, 7, 1)
	pending.ExpiryDate = day(2025, 7, 31)

	f.vouchers.On("GetByID", ctx, "v1").Return(pending, nil)
	f.vouchers.On("Update", ctx, mock.AnythingOfType("*domain.Voucher")).Return(nil)

	voucher, err := f.svc.Decide(ctx, adminActor, "v1", domain.ActionApprove, "")

	require.NoError(t, err)
	assert.Equal(t, domain.StatusApproved, voucher.Status)
	assert.True(t, voucher.IsActive)
	assert.Equal(t, "admin-1", voucher.ApprovedBy)
}

func TestVoucherDecide_StaffForbidden(t *testing.T) {
	f := newVoucherServiceFixture()

	_, err := f.svc.Decide(context.Background(), staffActor, "v1", domain.ActionApprove, "")

	assert.ErrorIs(t, err, apperrors.ErrForbidden)
}

func TestVoucherUpdate_StaffEditOfRejectedResubmits(t *testing.T) {
	f := newVoucherServiceFixture()
	ctx := context.Background()

	rejected := redeemableVoucher()
	rejected.Status = domain.StatusRejected
	rejected.RejectionReason = "too generous"
	rejected.IsActive = false
	rejected.SubmittedBy = "staff-1"

	f.vouchers.On("GetByID", ctx, "v1").Return(rejected, nil)
	f.vouchers.On("Update", ctx, mock.AnythingOfType("*domain.Voucher")).Return(nil)

	voucher, err := f.svc.Update(ctx, staffActor, "v1", &UpdateVoucherInput{
		DiscountValue: floatPtr(5),
	})

	require.NoError(t, err)
	assert.Equal(t, domain.StatusPendingApproval, voucher.Status)
	assert.Empty(t, voucher.RejectionReason)
	assert.InDelta(t, 5, voucher.DiscountValue, 0.001)
}

func TestVoucherUpdate_StrangerForbidden(t *testing.T) {
	f := newVoucherServiceFixture()
	ctx := context.Background()

	existing := redeemableVoucher()
	existing.SubmittedBy = "staff-2"

	f.vouchers.On("GetByID", ctx, "v1").Return(existing, nil)

	other := domain.Actor{ID: "staff-1", Role: domain.RoleStaff}
	_, err := f.svc.Update(ctx, other, "v1", &UpdateVoucherInput{
		DiscountValue: floatPtr(5),
	})

	assert.ErrorIs(t, err, apperrors.ErrForbidden)
	f.vouchers.AssertNotCalled(t, "Update", mock.Anything, mock.Anything)
}

func TestVoucherDelete_KeepsRedemptionHistory(t *testing.T) {
	f := newVoucherServiceFixture()
	ctx := context.Background()

	voucher := redeemableVoucher()
	voucher.SubmittedBy = "staff-1"
	voucher.ImageURL = "/media/welcome.jpg"

	f.vouchers.On("GetByID", ctx, "v1").Return(voucher, nil)
	f.vouchers.On("CountByImageURL", ctx, "/media/welcome.jpg").Return(1, nil)
	f.media.On("Release", ctx, "/media/welcome.jpg").Return(nil)
	f.vouchers.On("Delete", ctx, "v1").Return(nil)

	err := f.svc.Delete(ctx, staffActor, "v1")

	require.NoError(t, err)
	f.vouchers.AssertCalled(t, "Delete", ctx, "v1")
	f.media.AssertCalled(t, "Release", ctx, "/media/welcome.jpg")
}

func TestVoucherRedeem_Success(t *testing.T) {
	f := newVoucherServiceFixture()
	ctx := context.Background()

	voucher := redeemableVoucher()

	f.vouchers.On("GetByCode", ctx, "WELCOME10").Return(voucher, nil)
	f.vouchers.On("GetByID", ctx, "v1").Return(voucher, nil)
	f.vouchers.On("CountRedemptionsByUser", ctx, "v1", "user-1").Return(0, nil)
	f.vouchers.On("IncrementUsage", ctx, "v1").Return(nil)

	var recorded *domain.VoucherRedemption
	f.vouchers.On("RecordRedemption", ctx, mock.AnythingOfType("*domain.VoucherRedemption")).
		Run(func(args mock.Arguments) { recorded = args.Get(1).(*domain.VoucherRedemption) }).
		Return(nil)

	result, err := f.svc.Redeem(ctx, &RedeemInput{
		Code:       " welcome10 ",
		UserID:     "user-1",
		OrderID:    "order-1",
		OrderValue: 300_000,
	})

	require.NoError(t, err)
	assert.Equal(t, "v1", result.VoucherID)
	assert.Equal(t, "WELCOME10", result.Code)
	// 10% of 300,000, under the 50,000 cap.
	assert.InDelta(t, 30_000, result.DiscountApplied, 0.001)
	assert.InDelta(t, 270_000, result.FinalOrderValue, 0.001)

	require.NotNil(t, recorded)
	assert.Equal(t, "v1", recorded.VoucherID)
	assert.Equal(t, "user-1", recorded.UserID)
	assert.Equal(t, "order-1", recorded.OrderID)
	assert.InDelta(t, 30_000, recorded.DiscountApplied, 0.001)
}

func TestVoucherRedeem_CapAppliedToLargeOrder(t *testing.T) {
	f := newVoucherServiceFixture()
	ctx := context.Background()

	voucher := redeemableVoucher()
	voucher.UsagePerUser = 0

	f.vouchers.On("GetByCode", ctx, "WELCOME10").Return(voucher, nil)
	f.vouchers.On("GetByID", ctx, "v1").Return(voucher, nil)
	f.vouchers.On("IncrementUsage", ctx, "v1").Return(nil)
	f.vouchers.On("RecordRedemption", ctx, mock.AnythingOfType("*domain.VoucherRedemption")).Return(nil)

	result, err := f.svc.Redeem(ctx, &RedeemInput{
		Code:       "WELCOME10",
		UserID:     "user-1",
		OrderValue: 2_000_000,
	})

	require.NoError(t, err)
	assert.InDelta(t, 50_000, result.DiscountApplied, 0.001)
	assert.InDelta(t, 1_950_000, result.FinalOrderValue, 0.001)
}

func TestVoucherRedeem_NotRedeemable(t *testing.T) {
	f := newVoucherServiceFixture()
	ctx := context.Background()

	expired := redeemableVoucher()
	expired.ExpiryDate = day(2025, 5, 31)

	f.vouchers.On("GetByCode", ctx, "WELCOME10").Return(expired, nil)
	f.vouchers.On("GetByID", ctx, "v1").Return(expired, nil)

	_, err := f.svc.Redeem(ctx, &RedeemInput{Code: "WELCOME10", UserID: "user-1", OrderValue: 300_000})

	var appErr *apperrors.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, "VOUCHER_NOT_REDEEMABLE", appErr.Code)
	f.vouchers.AssertNotCalled(t, "IncrementUsage", mock.Anything, mock.Anything)
}

func TestVoucherRedeem_OrderBelowMinimum(t *testing.T) {
	f := newVoucherServiceFixture()
	ctx := context.Background()

	voucher := redeemableVoucher()

	f.vouchers.On("GetByCode", ctx, "WELCOME10").Return(voucher, nil)
	f.vouchers.On("GetByID", ctx, "v1").Return(voucher, nil)

	_, err := f.svc.Redeem(ctx, &RedeemInput{Code: "WELCOME10", UserID: "user-1", OrderValue: 50_000})

	var appErr *apperrors.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, "ORDER_BELOW_MINIMUM", appErr.Code)
}

func TestVoucherRedeem_Exhausted(t *testing.T) {
	f := newVoucherServiceFixture()
	ctx := context.Background()

	spent := redeemableVoucher()
	spent.UsageCount = 100

	f.vouchers.On("GetByCode", ctx, "WELCOME10").Return(spent, nil)
	f.vouchers.On("GetByID", ctx, "v1").Return(spent, nil)

	_, err := f.svc.Redeem(ctx, &RedeemInput{Code: "WELCOME10", UserID: "user-1", OrderValue: 300_000})

	var appErr *apperrors.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, "VOUCHER_EXHAUSTED", appErr.Code)
}

func TestVoucherRedeem_UserLimitReached(t *testing.T) {
	f := newVoucherServiceFixture()
	ctx := context.Background()

	voucher := redeemableVoucher()

	f.vouchers.On("GetByCode", ctx, "WELCOME10").Return(voucher, nil)
	f.vouchers.On("GetByID", ctx, "v1").Return(voucher, nil)
	f.vouchers.On("CountRedemptionsByUser", ctx, "v1", "user-1").Return(1, nil)

	_, err := f.svc.Redeem(ctx, &RedeemInput{Code: "WELCOME10", UserID: "user-1", OrderValue: 300_000})

	var appErr *apperrors.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, "USER_LIMIT_REACHED", appErr.Code)
	f.vouchers.AssertNotCalled(t, "IncrementUsage", mock.Anything, mock.Anything)
}

func TestVoucherRedeem_MissingUser(t *testing.T) {
	f := newVoucherServiceFixture()

	_, err := f.svc.Redeem(context.Background(), &RedeemInput{Code: "WELCOME10", OrderValue: 300_000})

	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)
}

func TestListRedeemable_FiltersExhaustedVouchers(t *testing.T) {
	f := newVoucherServiceFixture()
	ctx := context.Background()

	open := *redeemableVoucher()
	spent := *redeemableVoucher()
	spent.ID = "v2"
	spent.Code = "SPENT"
	spent.UsageCount = 100
	usedUp := *redeemableVoucher()
	usedUp.ID = "v3"
	usedUp.Code = "USEDUP"

	f.vouchers.On("ListActive", ctx, testDay()).Return([]domain.Voucher{open, spent, usedUp}, nil)
	f.vouchers.On("ListRedeemedVoucherIDs", ctx, "user-1").Return([]string{"v3"}, nil)
	f.vouchers.On("CountRedemptionsByUser", ctx, "v3", "user-1").Return(1, nil)

	out, err := f.svc.ListRedeemable(ctx, "user-1", testToday)

	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, "v1", out[0].ID)
}

func TestListRedeemable_AnonymousSeesAllActive(t *testing.T) {
	f := newVoucherServiceFixture()
	ctx := context.Background()

	active := *redeemableVoucher()
	f.vouchers.On("ListActive", ctx, testDay()).Return([]domain.Voucher{active}, nil)

	out, err := f.svc.ListRedeemable(ctx, "", testToday)

	require.NoError(t, err)
	assert.Len(t, out, 1)
	f.vouchers.AssertNotCalled(t, "ListRedeemedVoucherIDs", mock.Anything, mock.Anything)
}
