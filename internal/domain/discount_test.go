package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDiscountAmount_PercentageCapped(t *testing.T) {
	// 300,000 with 10% tax gives a base of 330,000. A 10% discount would be
	// 33,000 but the cap holds it at 50,000, so the full 33,000 applies.
	base := 300_000.0 * 1.1
	rule := DiscountRule{
		ValueType:        DiscountTypePercentage,
		Value:            10,
		MaxDiscountValue: 50_000,
	}

	assert.InDelta(t, 33_000, DiscountAmount(base, rule), 0.001)
}

func TestDiscountAmount_PercentageHitsCap(t *testing.T) {
	base := 1_000_000.0
	rule := DiscountRule{
		ValueType:        DiscountTypePercentage,
		Value:            10,
		MaxDiscountValue: 50_000,
	}

	assert.InDelta(t, 50_000, DiscountAmount(base, rule), 0.001)
}

func TestDiscountAmount_PercentageNoCap(t *testing.T) {
	// Zero MaxDiscountValue means unlimited.
	base := 1_000_000.0
	rule := DiscountRule{
		ValueType: DiscountTypePercentage,
		Value:     25,
	}

	assert.InDelta(t, 250_000, DiscountAmount(base, rule), 0.001)
}

func TestDiscountAmount_FixedAmount(t *testing.T) {
	rule := DiscountRule{
		ValueType: DiscountTypeAmount,
		Value:     20_000,
	}

	assert.InDelta(t, 20_000, DiscountAmount(100_000, rule), 0.001)
}

func TestDiscountAmount_ClampedToBase(t *testing.T) {
	// A fixed discount larger than the price discounts the item to free,
	// never negative.
	rule := DiscountRule{
		ValueType: DiscountTypeAmount,
		Value:     500_000,
	}

	assert.InDelta(t, 100_000, DiscountAmount(100_000, rule), 0.001)
}

func TestDiscountAmount_ZeroBase(t *testing.T) {
	rule := DiscountRule{
		ValueType: DiscountTypePercentage,
		Value:     50,
	}

	assert.Zero(t, DiscountAmount(0, rule))
	assert.Zero(t, DiscountAmount(-10, rule))
}

func TestDiscountAmount_UnknownType(t *testing.T) {
	rule := DiscountRule{
		ValueType: "BOGUS",
		Value:     50,
	}

	assert.Zero(t, DiscountAmount(100_000, rule))
}
