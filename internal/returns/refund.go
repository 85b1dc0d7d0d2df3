package returns

import "github.com/shopspring/decimal"

// PriorityThreshold is the refund amount from which tickets are raised as Alta.
var PriorityThreshold = decimal.NewFromInt(1000)

// ShippingCost is whatever the order total carries beyond subtotal and taxes.
// It can be negative when the client under-reported the total.
func ShippingCost(subtotal, taxes, total decimal.Decimal) decimal.Decimal {
	return total.Sub(subtotal.Add(taxes)).Round(2)
}

// RefundAmount is the order total minus positive shipping, rounded to cents.
func RefundAmount(subtotal, taxes, total decimal.Decimal) decimal.Decimal {
	shipping := ShippingCost(subtotal, taxes, total)
	if shipping.IsNegative() {
		shipping = decimal.Zero
	}
	return total.Sub(shipping).Round(2)
}
