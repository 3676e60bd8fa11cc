package delivery

import "github.com/shopspring/decimal"

var half = decimal.RequireFromString("0.5")

// Pricing holds the fee policy. FeeFor is pure.
type Pricing struct {
	DefaultFee        decimal.Decimal
	FreeThreshold     decimal.Decimal
	DiscountThreshold decimal.Decimal
}

func DefaultPricing() Pricing {
	return Pricing{
		DefaultFee:        decimal.NewFromInt(300),
		FreeThreshold:     decimal.NewFromInt(100),
		DiscountThreshold: decimal.NewFromInt(50),
	}
}

// BaseFee is the area's fee, or the default when the area is unknown or inactive.
func (p Pricing) BaseFee(area *Area) decimal.Decimal {
	if area == nil || !area.IsActive {
		return p.DefaultFee
	}
	return area.BaseFee
}

// FeeFor returns the fee and which discount applied.
func (p Pricing) FeeFor(area *Area, orderValue decimal.Decimal) (decimal.Decimal, string) {
	base := p.BaseFee(area)
	switch {
	case orderValue.GreaterThanOrEqual(p.FreeThreshold):
		return decimal.Zero, "free"
	case orderValue.GreaterThanOrEqual(p.DiscountThreshold):
		return base.Mul(half).Round(2), "half"
	default:
		return base.Round(2), "none"
	}
}
