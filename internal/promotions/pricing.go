package promotions

import (
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/storefront-backend/pkg/enums"
)

var hundred = decimal.NewFromInt(100)

// DiscountedPrice applies a promotion to price. Percentages subtract
// price*value/100, fixed amounts subtract value. The result is floored at zero
// and rounded half away from zero to cents.
func DiscountedPrice(price decimal.Decimal, discountType enums.DiscountType, value decimal.Decimal) decimal.Decimal {
	var next decimal.Decimal
	switch discountType {
	case enums.DiscountPercentage:
		next = price.Sub(price.Mul(value).Div(hundred))
	case enums.DiscountFixedAmount:
		next = price.Sub(value)
	default:
		return price
	}
	if next.IsNegative() {
		next = decimal.Zero
	}
	return next.Round(2)
}

// BatchFactor converts a batch discount percentage into the multiplier
// applied to every selected price.
func BatchFactor(percent decimal.Decimal) decimal.Decimal {
	return decimal.NewFromInt(1).Sub(percent.Div(hundred))
}
