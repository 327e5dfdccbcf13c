package domain

import (
	"time"
)

// Discount value type constants.
const (
	DiscountTypePercentage = "PERCENTAGE"
	DiscountTypeAmount     = "AMOUNT"
)

// Apply scope constants.
const (
	ScopeOrder    = "ORDER"
	ScopeCategory = "CATEGORY"
	ScopeProduct  = "PRODUCT"
)

// Approval status constants, shared by promotions and vouchers.
const (
	StatusPendingApproval = "PENDING_APPROVAL"
	StatusApproved        = "APPROVED"
	StatusRejected        = "REJECTED"
)

// Approval action constants.
const (
	ActionApprove = "APPROVE"
	ActionReject  = "REJECT"
)

// Promotion is a discount campaign applied directly to catalog pricing.
// DiscountValue is a percentage (0-100) when DiscountValueType is PERCENTAGE,
// otherwise a flat currency amount.
type Promotion struct {
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

	// StartDate and ExpiryDate are inclusive calendar dates (midnight UTC).
	StartDate  time.Time `json:"start_date"`
	ExpiryDate time.Time `json:"expiry_date"`

	Status          string     `json:"status"`
	IsActive        bool       `json:"is_active"`
	SubmittedBy     string     `json:"submitted_by"`
	ApprovedBy      string     `json:"approved_by,omitempty"`
	SubmittedAt     time.Time  `json:"submitted_at"`
	ApprovedAt      *time.Time `json:"approved_at,omitempty"`
	RejectionReason string     `json:"rejection_reason,omitempty"`

	UsageCount int `json:"usage_count"`
	UsageLimit int `json:"usage_limit,omitempty"` // 0 = unlimited

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Rule returns the promotion's discount rule for price computation.
func (p *Promotion) Rule() DiscountRule {
	return DiscountRule{
		ValueType:        p.DiscountValueType,
		Value:            p.DiscountValue,
		MaxDiscountValue: p.MaxDiscountValue,
	}
}

// TimeEligibleOn reports whether the given day falls inside the promotion's
// inclusive [StartDate, ExpiryDate] window.
func (p *Promotion) TimeEligibleOn(day time.Time) bool {
	day = DateOnly(day)
	return !p.StartDate.After(day) && !p.ExpiryDate.Before(day)
}

// OverlapsWindow reports whether the promotion's date window intersects the
// other promotion's window.
func (p *Promotion) OverlapsWindow(other *Promotion) bool {
	return RangesOverlap(p.StartDate, p.ExpiryDate, other.StartDate, other.ExpiryDate)
}

// ApplicableOn reports whether the promotion is approved, switched on, and
// time-eligible on the given day. Only applicable promotions may hold catalog
// pricing.
func (p *Promotion) ApplicableOn(day time.Time) bool {
	return p.Status == StatusApproved && p.IsActive && p.TimeEligibleOn(day)
}

// DateOnly truncates a timestamp to its calendar date at midnight UTC.
func DateOnly(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// RangesOverlap reports whether two inclusive date ranges [s1,e1] and [s2,e2]
// intersect: s1 <= e2 && s2 <= e1.
func RangesOverlap(s1, e1, s2, e2 time.Time) bool {
	return !s1.After(e2) && !s2.After(e1)
}

// ValidScopes returns the set of valid apply scopes.
func ValidScopes() []string {
	return []string{ScopeOrder, ScopeCategory, ScopeProduct}
}

// IsValidScope checks whether the given string is a valid apply scope.
func IsValidScope(scope string) bool {
	for _, s := range ValidScopes() {
		if s == scope {
			return true
		}
	}
	return false
}

// ValidDiscountTypes returns the set of valid discount value types.
func ValidDiscountTypes() []string {
	return []string{DiscountTypePercentage, DiscountTypeAmount}
}

// IsValidDiscountType checks whether the given string is a valid discount value type.
func IsValidDiscountType(t string) bool {
	for _, v := range ValidDiscountTypes() {
		if v == t {
			return true
		}
	}
	return false
}

// ValidStatuses returns the set of valid approval statuses.
func ValidStatuses() []string {
	return []string{StatusPendingApproval, StatusApproved, StatusRejected}
}

// IsValidStatus checks whether the given string is a valid approval status.
func IsValidStatus(status string) bool {
	for _, s := range ValidStatuses() {
		if s == status {
			return true
		}
	}
	return false
}
