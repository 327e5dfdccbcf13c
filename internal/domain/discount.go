package domain

// DiscountRule is the pricing portion of a promotion or voucher.
type DiscountRule struct {
	ValueType        string
	Value            float64
	MaxDiscountValue float64
}

// DiscountAmount computes the currency amount a rule subtracts from a
// tax-inclusive base price.
//
// PERCENTAGE rules take Value percent of the base, capped at MaxDiscountValue
// when that cap is positive. AMOUNT rules subtract Value flat. The result is
// always clamped to [0, basePriceWithTax] so a discount can never produce a
// negative price.
func DiscountAmount(basePriceWithTax float64, rule DiscountRule) float64 {
	if basePriceWithTax <= 0 {
		return 0
	}

	var amount float64
	switch rule.ValueType {
	case DiscountTypePercentage:
		amount = basePriceWithTax * rule.Value / 100
		if rule.MaxDiscountValue > 0 && amount > rule.MaxDiscountValue {
			amount = rule.MaxDiscountValue
		}
	case DiscountTypeAmount:
		amount = rule.Value
	}

	if amount > basePriceWithTax {
		amount = basePriceWithTax
	}
	if amount < 0 {
		amount = 0
	}
	return amount
}
