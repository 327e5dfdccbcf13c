package domain

import (
	"time"
)

// Voucher is a redeemable discount campaign. It shares the promotion shape but
// requires a redemption code at checkout, tracks per-user usage, and never
// writes catalog pricing.
type Voucher struct {
	ID          string `json:"id"`
	Code        string `json:"code"`
	Name        string `json:"name"`
	Description string `json:"description"`
	ImageURL    string `json:"image_url,omitempty"`

	DiscountValueType string  `json:"discount_value_type"`
	DiscountValue     float64 `json:"discount_value"`
	MinOrderValue     float64 `json:"min_order_value"`
	MaxDiscountValue  float64 `json:"max_discount_value"`

	ApplyScope  string   `json:"apply_scope"`
	CategoryIDs []string `json:"category_ids"`
	ProductIDs  []string `json:"product_ids"`

	StartDate  time.Time `json:"start_date"`
	ExpiryDate time.Time `json:"expiry_date"`

	Status          string     `json:"status"`
	IsActive        bool       `json:"is_active"`
	SubmittedBy     string     `json:"submitted_by"`
	ApprovedBy      string     `json:"approved_by,omitempty"`
	SubmittedAt     time.Time  `json:"submitted_at"`
	ApprovedAt      *time.Time `json:"approved_at,omitempty"`
	RejectionReason string     `json:"rejection_reason,omitempty"`

	UsageCount   int `json:"usage_count"`
	UsageLimit   int `json:"usage_limit,omitempty"`    // 0 = unlimited
	UsagePerUser int `json:"usage_per_user,omitempty"` // 0 = unlimited

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// VoucherRedemption records a single use of a voucher against an order.
type VoucherRedemption struct {
	ID              string    `json:"id"`
	VoucherID       string    `json:"voucher_id"`
	UserID          string    `json:"user_id"`
	OrderID         string    `json:"order_id"`
	DiscountApplied float64   `json:"discount_applied"`
	CreatedAt       time.Time `json:"created_at"`
}

// Rule returns the voucher's discount rule for price computation.
func (v *Voucher) Rule() DiscountRule {
	return DiscountRule{
		ValueType:        v.DiscountValueType,
		Value:            v.DiscountValue,
		MaxDiscountValue: v.MaxDiscountValue,
	}
}

// TimeEligibleOn reports whether the given day falls inside the voucher's
// inclusive [StartDate, ExpiryDate] window.
func (v *Voucher) TimeEligibleOn(day time.Time) bool {
	day = DateOnly(day)
	return !v.StartDate.After(day) && !v.ExpiryDate.Before(day)
}

// RedeemableOn reports whether the voucher may be redeemed on the given day,
// ignoring usage limits.
func (v *Voucher) RedeemableOn(day time.Time) bool {
	return v.Status == StatusApproved && v.IsActive && v.TimeEligibleOn(day)
}
