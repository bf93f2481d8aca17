package model

// Monetary amounts are integer cents throughout the application and
// commission rates are integer basis points (15% = 1500 bps).
//
// CommissionCents derives the commission owed on a confirmed total.
// The rounding rule is round-half-away-from-zero at cent precision,
// matching the historical multiply-round-divide behaviour of the
// invoicing system; every place that computes commission must go
// through this function so invoices and bookings can never disagree
// by a cent.
func CommissionCents(totalCents int64, rateBps int32) int64 {
	product := totalCents * int64(rateBps)
	if product >= 0 {
		return (product + 5000) / 10000
	}
	return (product - 5000) / 10000
}
