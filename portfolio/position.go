package portfolio

import (
	"fmt"
	"time"

	"github.com/rustyeddy/papertrader/market"
	"github.com/shopspring/decimal"
)

// Position is an open trade on one asset. It is created by an accepted entry
// and removed from State.Positions when closed.
type Position struct {
	Asset                 string          `json:"asset"`
	Side                  market.Side     `json:"side"`
	Quantity              decimal.Decimal `json:"quantity"`
	EntryPrice            decimal.Decimal `json:"entry_price"`
	StopLoss              decimal.Decimal `json:"stop_loss"`
	ProfitTarget          decimal.Decimal `json:"profit_target"`
	Leverage              int             `json:"leverage"`
	RiskUSD               decimal.Decimal `json:"risk_usd"`
	OpenedAt              time.Time       `json:"opened_at"`
	Confidence            float64         `json:"confidence"`
	InvalidationCondition string          `json:"invalidation_condition,omitempty"`
	TradeID               string          `json:"trade_id"`
}

// ValidBracket reports whether stop and target sit on the correct sides of
// entry: stop < entry < target for longs, target < entry < stop for shorts.
func ValidBracket(side market.Side, entry, stop, target decimal.Decimal) bool {
	switch side {
	case market.Long:
		return stop.LessThan(entry) && entry.LessThan(target)
	case market.Short:
		return target.LessThan(entry) && entry.LessThan(stop)
	}
	return false
}

// Validate checks the invariants every open position must hold.
func (p Position) Validate() error {
	if p.Asset == "" {
		return fmt.Errorf("position: empty asset")
	}
	if !p.Side.Valid() {
		return fmt.Errorf("position %s: invalid side %q", p.Asset, p.Side)
	}
	if !p.Quantity.IsPositive() {
		return fmt.Errorf("position %s: quantity must be positive", p.Asset)
	}
	if !p.EntryPrice.IsPositive() {
		return fmt.Errorf("position %s: entry price must be positive", p.Asset)
	}
	if !ValidBracket(p.Side, p.EntryPrice, p.StopLoss, p.ProfitTarget) {
		return fmt.Errorf("position %s: stop %s / target %s do not bracket entry %s for %s",
			p.Asset, p.StopLoss, p.ProfitTarget, p.EntryPrice, p.Side)
	}
	if p.Leverage < 1 {
		return fmt.Errorf("position %s: leverage %d below 1", p.Asset, p.Leverage)
	}
	return nil
}

// Margin is the capital the position ties up: quantity * entry / leverage.
func (p Position) Margin() decimal.Decimal {
	return p.Quantity.Mul(p.EntryPrice).Div(decimal.NewFromInt(int64(p.Leverage)))
}

// PnL is (price - entry) * quantity * sign(side) * leverage.
func (p Position) PnL(price decimal.Decimal) decimal.Decimal {
	sign := decimal.NewFromInt(int64(p.Side.Sign()))
	lev := decimal.NewFromInt(int64(p.Leverage))
	return price.Sub(p.EntryPrice).Mul(p.Quantity).Mul(sign).Mul(lev)
}

// StopHit reports whether price has reached the stop-loss.
func (p Position) StopHit(price decimal.Decimal) bool {
	if p.Side == market.Short {
		return price.GreaterThanOrEqual(p.StopLoss)
	}
	return price.LessThanOrEqual(p.StopLoss)
}

// TargetHit reports whether price has reached the profit target.
func (p Position) TargetHit(price decimal.Decimal) bool {
	if p.Side == market.Short {
		return price.LessThanOrEqual(p.ProfitTarget)
	}
	return price.GreaterThanOrEqual(p.ProfitTarget)
}

func (p Position) equal(o Position) bool {
	return p.Asset == o.Asset &&
		p.Side == o.Side &&
		p.Quantity.Equal(o.Quantity) &&
		p.EntryPrice.Equal(o.EntryPrice) &&
		p.StopLoss.Equal(o.StopLoss) &&
		p.ProfitTarget.Equal(o.ProfitTarget) &&
		p.Leverage == o.Leverage &&
		p.RiskUSD.Equal(o.RiskUSD) &&
		p.OpenedAt.Equal(o.OpenedAt) &&
		p.Confidence == o.Confidence &&
		p.InvalidationCondition == o.InvalidationCondition &&
		p.TradeID == o.TradeID
}
