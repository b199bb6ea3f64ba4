package domain

// Monetary amounts across the domain are int64 minor units (cents). Rates are
// basis points so tax math stays in integer arithmetic and rounds exactly
// once, half up, to the nearest cent.

// ApplyRate returns amount scaled by a basis-point rate, rounded half up.
func ApplyRate(amount int64, basisPoints int64) int64 {
	if amount == 0 || basisPoints == 0 {
		return 0
	}
	product := amount * basisPoints
	if product >= 0 {
		return (product + 5000) / 10000
	}
	return (product - 5000) / 10000
}

// ItemSubtotal computes (unit price + customization deltas) x quantity.
func ItemSubtotal(unitPrice int64, customizations []ItemCustomization, quantity int) int64 {
	perUnit := unitPrice
	for _, c := range customizations {
		perUnit += c.PriceDelta
	}
	return perUnit * int64(quantity)
}

// OrderTotals sums item subtotals and derives tax and total. The invariant
// total = subtotal + tax + tip holds by construction.
func OrderTotals(items []OrderItem, taxRateBasisPoints int64, tip int64) (subtotal, tax, total int64) {
	for _, item := range items {
		subtotal += item.Subtotal
	}
	tax = ApplyRate(subtotal, taxRateBasisPoints)
	total = subtotal + tax + tip
	return subtotal, tax, total
}
