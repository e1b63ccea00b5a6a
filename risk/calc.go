package risk

import (
	"github.com/shopspring/decimal"
)

// PlannedRiskUSD is the capital lost if the stop is hit:
// quantity * |entry - stop| / leverage.
func PlannedRiskUSD(qty, entry, stop decimal.Decimal, leverage int) decimal.Decimal {
	return qty.Mul(entry.Sub(stop).Abs()).Div(decimal.NewFromInt(int64(leverage)))
}

// Margin is quantity * entry / leverage.
func Margin(qty, entry decimal.Decimal, leverage int) decimal.Decimal {
	return qty.Mul(entry).Div(decimal.NewFromInt(int64(leverage)))
}

// RR is reward over risk. Zero when the stop sits on the entry.
func RR(entry, stop, target decimal.Decimal) float64 {
	risk := entry.Sub(stop).Abs()
	if risk.IsZero() {
		return 0
	}
	return target.Sub(entry).Abs().Div(risk).InexactFloat64()
}

// MaxQuantity is the largest quantity whose planned risk stays within capUSD.
func MaxQuantity(capUSD, entry, stop decimal.Decimal, leverage int) decimal.Decimal {
	dist := entry.Sub(stop).Abs()
	if dist.IsZero() {
		return decimal.Zero
	}
	return capUSD.Mul(decimal.NewFromInt(int64(leverage))).Div(dist)
}
