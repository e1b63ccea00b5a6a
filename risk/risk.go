// Package risk decides whether an oracle entry may be executed. Validate is
// pure: it reads the decision, the portfolio and the snapshot, and returns a
// Verdict. A rejection is a value, never an error that stops the cycle.
package risk

import (
	"errors"
	"fmt"

	"github.com/rustyeddy/papertrader/decision"
	"github.com/rustyeddy/papertrader/errs"
	"github.com/rustyeddy/papertrader/portfolio"
	"github.com/rustyeddy/papertrader/snapshot"
	"github.com/shopspring/decimal"
)

type Config struct {
	// MaxRiskFraction caps risk_usd as a fraction of balance.
	MaxRiskFraction float64 `json:"max_risk_fraction" yaml:"max_risk_fraction"`
	MaxLeverage     int     `json:"max_leverage" yaml:"max_leverage"`
	// RiskTolerance is the relative slack allowed between the stated and the
	// computed risk_usd. An absolute floor of one cent always applies.
	RiskTolerance float64 `json:"risk_tolerance" yaml:"risk_tolerance"`
}

func DefaultConfig() Config {
	return Config{
		MaxRiskFraction: 0.02,
		MaxLeverage:     20,
		RiskTolerance:   0.05,
	}
}

func (c Config) Validate() error {
	if c.MaxRiskFraction <= 0 || c.MaxRiskFraction > 1 {
		return fmt.Errorf("risk: max_risk_fraction must be in (0,1], got %v", c.MaxRiskFraction)
	}
	if c.MaxLeverage < 1 {
		return fmt.Errorf("risk: max_leverage must be at least 1")
	}
	if c.RiskTolerance < 0 {
		return fmt.Errorf("risk: risk_tolerance must not be negative")
	}
	return nil
}

var minTolerance = decimal.NewFromFloat(0.01)

type Violation struct {
	Code errs.Kind
	Msg  string
}

// Verdict is the validator's answer. The planned figures are filled in as far
// as validation got, so a rejection still shows what was computed.
type Verdict struct {
	Allowed   bool
	Violation *Violation

	EntryPrice     decimal.Decimal
	PlannedRiskUSD decimal.Decimal
	CapUSD         decimal.Decimal
	Margin         decimal.Decimal
	RR             float64
}

func (v *Verdict) reject(code errs.Kind, format string, args ...any) Verdict {
	v.Allowed = false
	v.Violation = &Violation{Code: code, Msg: fmt.Sprintf(format, args...)}
	return *v
}

// Err returns the rejection as a kinded error, or nil when allowed.
func (v Verdict) Err(asset string) error {
	if v.Violation == nil {
		return nil
	}
	return errs.New(v.Violation.Code, asset, errors.New(v.Violation.Msg))
}

// Validate runs the entry checks in order and stops at the first failure:
// bracket, risk cap, stated-risk consistency, leverage bound, free balance.
// Hold and close decisions are always allowed.
func Validate(d decision.Decision, st portfolio.State, snap snapshot.Snapshot, cfg Config) Verdict {
	v := Verdict{Allowed: true}
	if d.Signal != decision.Entry || d.Entry == nil {
		return v
	}
	e := d.Entry
	entry := snap.Price
	v.EntryPrice = entry

	if !entry.IsPositive() || !portfolio.ValidBracket(e.Side, entry, e.StopLoss, e.ProfitTarget) {
		return v.reject(errs.InvalidBracket,
			"%s entry %s needs stop %s and target %s on opposite sides",
			e.Side, entry, e.StopLoss, e.ProfitTarget)
	}
	v.RR = RR(entry, e.StopLoss, e.ProfitTarget)

	v.CapUSD = st.Balance.Mul(decimal.NewFromFloat(cfg.MaxRiskFraction))
	if e.RiskUSD.GreaterThan(v.CapUSD) {
		return v.reject(errs.RiskExceeded,
			"risk_usd %s exceeds cap %s (%.2f%% of balance %s); max quantity at this stop is %s",
			e.RiskUSD, v.CapUSD.StringFixed(2), cfg.MaxRiskFraction*100, st.Balance.StringFixed(2),
			MaxQuantity(v.CapUSD, entry, e.StopLoss, max(e.Leverage, 1)).StringFixed(6))
	}

	// The stated figure cannot be checked without a usable leverage.
	if e.Leverage < 1 {
		return v.reject(errs.LeverageOutOfRange, "leverage %d below 1", e.Leverage)
	}

	v.PlannedRiskUSD = PlannedRiskUSD(e.Quantity, entry, e.StopLoss, e.Leverage)
	tol := decimal.Max(v.PlannedRiskUSD.Mul(decimal.NewFromFloat(cfg.RiskTolerance)), minTolerance)
	if e.RiskUSD.Sub(v.PlannedRiskUSD).Abs().GreaterThan(tol) {
		return v.reject(errs.RiskMismatch,
			"stated risk_usd %s but quantity %s with stop %s at %dx risks %s",
			e.RiskUSD, e.Quantity, e.StopLoss, e.Leverage, v.PlannedRiskUSD.StringFixed(2))
	}

	if e.Leverage > cfg.MaxLeverage {
		return v.reject(errs.LeverageOutOfRange, "leverage %d above max %d", e.Leverage, cfg.MaxLeverage)
	}

	v.Margin = Margin(e.Quantity, entry, e.Leverage)
	if free := st.FreeBalance(); v.Margin.GreaterThan(free) {
		return v.reject(errs.InsufficientBalance,
			"margin %s exceeds free balance %s", v.Margin.StringFixed(2), free.StringFixed(2))
	}

	return v
}
