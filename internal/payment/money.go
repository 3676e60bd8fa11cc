package payment

import "github.com/shopspring/decimal"

var (
	hundred      = decimal.NewFromInt(100)
	feeRate      = decimal.RequireFromString("0.039")
	fixedFee     = decimal.RequireFromString("2.95")
	fixedFeeFrom = decimal.NewFromInt(10)
)

// ToMinor converts an amount to the gateway's minor unit.
func ToMinor(amount decimal.Decimal) int64 {
	return amount.Mul(hundred).Round(0).IntPart()
}

func FromMinor(minor int64) decimal.Decimal {
	return decimal.NewFromInt(minor).Div(hundred)
}

type Fees struct {
	Amount decimal.Decimal `json:"amount"`
	Fee    decimal.Decimal `json:"fee"`
	Total  decimal.Decimal `json:"total"`
}

// CalculateFees estimates the gateway charge: 3.9%, plus 2.95 above 10.
func CalculateFees(amount decimal.Decimal) Fees {
	fee := amount.Mul(feeRate)
	if amount.GreaterThan(fixedFeeFrom) {
		fee = fee.Add(fixedFee)
	}
	return Fees{
		Amount: amount,
		Fee:    fee.Round(2),
		Total:  amount.Add(fee).Round(2),
	}
}
