package services

import (
	"github.com/shopspring/decimal"
)

var (
	// RefundRate is the share of the paid amount returned on cancellation
	RefundRate = decimal.RequireFromString("0.85")

	// CancellationFeeRate is the share kept as a cancellation fee
	CancellationFeeRate = decimal.RequireFromString("0.15")
)

// RefundBreakdown splits a paid amount into the refund and the cancellation fee
type RefundBreakdown struct {
	Amount          decimal.Decimal `json:"amount"`
	RefundAmount    decimal.Decimal `json:"refund_amount"`
	CancellationFee decimal.Decimal `json:"cancellation_fee"`
}

// CalculateRefund returns round(amount * 0.85, 2) as the refund and the rest as
// the fee. Rounding is half-to-even, so for any amount with two decimals the fee
// also equals round(amount * 0.15, 2) and the two parts always add up to the amount.
func CalculateRefund(amount decimal.Decimal) RefundBreakdown {
	refund := amount.Mul(RefundRate).RoundBank(2)
	return RefundBreakdown{
		Amount:          amount,
		RefundAmount:    refund,
		CancellationFee: amount.Sub(refund),
	}
}

// RefundAmount returns round(amount * 0.85, 2)
func RefundAmount(amount decimal.Decimal) decimal.Decimal {
	return CalculateRefund(amount).RefundAmount
}

// CancellationFee returns round(amount * 0.15, 2)
func CancellationFee(amount decimal.Decimal) decimal.Decimal {
	return CalculateRefund(amount).CancellationFee
}
