package services

import "github.com/shopspring/decimal"

// DefaultCommissionRate is the share of a referred user's payment credited to the affiliate.
var DefaultCommissionRate = decimal.RequireFromString("0.20")

// ComputeCommission returns chargeAmount * rate rounded half-up to cents.
func ComputeCommission(chargeAmount, rate decimal.Decimal) (decimal.Decimal, error) {
	if chargeAmount.IsNegative() {
		return decimal.Zero, ErrInvalidChargeAmount
	}
	if rate.IsNegative() || rate.GreaterThan(decimal.NewFromInt(1)) {
		return decimal.Zero, ErrInvalidCommissionRate
	}
	return chargeAmount.Mul(rate).Round(2), nil
}
