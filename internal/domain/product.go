package domain

import (
	"time"
)

// Product status constants.
const (
	ProductStatusPendingApproval = "PENDING_APPROVAL"
	ProductStatusApproved        = "APPROVED"
	ProductStatusRejected        = "REJECTED"
)

// Product is a catalog item. UnitPrice is the pre-tax, pre-discount base and
// Tax is a fractional rate (0.10 = 10%). DiscountValue, Price, and PromotionID
// are derived pricing state: price = max(0, unitPrice*(1+tax) - discountValue)
// holds at all times, and only the pricing cascade may write these fields.
type Product struct {
	ID         string  `json:"id"`
	Name       string  `json:"name"`
	CategoryID *string `json:"category_id,omitempty"`
	Status     string  `json:"status"`

	UnitPrice     float64 `json:"unit_price"`
	Tax           float64 `json:"tax"`
	DiscountValue float64 `json:"discount_value"`
	Price         float64 `json:"price"`

	// PromotionID references the promotion currently holding this product's
	// pricing, if any. At most one promotion may hold an item at a time.
	PromotionID *string `json:"promotion_id,omitempty"`

	Variants []ProductVariant `json:"variants,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ProductVariant is a purchasable variant of a product with its own pricing.
// Variants carry no promotion reference; only their derived price changes when
// the parent product's pricing cascades.
type ProductVariant struct {
	ID        string `json:"id"`
	ProductID string `json:"product_id"`
	SKU       string `json:"sku"`

	UnitPrice     float64 `json:"unit_price"`
	Tax           float64 `json:"tax"`
	DiscountValue float64 `json:"discount_value"`
	Price         float64 `json:"price"`
}

// BasePriceWithTax returns the tax-inclusive base price discounts apply to.
func (p *Product) BasePriceWithTax() float64 {
	return p.UnitPrice * (1 + p.Tax)
}

// BasePriceWithTax returns the variant's tax-inclusive base price.
func (v *ProductVariant) BasePriceWithTax() float64 {
	return v.UnitPrice * (1 + v.Tax)
}
