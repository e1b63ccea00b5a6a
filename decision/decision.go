// Package decision defines the oracle contract: the request a cycle sends and
// the per-asset Decision it expects back.
package decision

import (
	"context"
	"time"

	"github.com/rustyeddy/papertrader/market"
	"github.com/shopspring/decimal"
)

type Signal string

const (
	Hold  Signal = "hold"
	Entry Signal = "entry"
	Close Signal = "close"
)

func (s Signal) Valid() bool {
	return s == Hold || s == Entry || s == Close
}

// EntryOrder carries the fields an entry must state. The entry price is not
// part of it; the engine fills at the snapshot price.
type EntryOrder struct {
	Side                  market.Side     `json:"side"`
	Quantity              decimal.Decimal `json:"quantity"`
	ProfitTarget          decimal.Decimal `json:"profit_target"`
	StopLoss              decimal.Decimal `json:"stop_loss"`
	Leverage              int             `json:"leverage"`
	RiskUSD               decimal.Decimal `json:"risk_usd"`
	InvalidationCondition string          `json:"invalidation_condition"`
}

// Decision is the validated instruction for one asset in one cycle. Entry is
// set if and only if Signal is Entry.
type Decision struct {
	Asset         string      `json:"asset"`
	Signal        Signal      `json:"signal"`
	Entry         *EntryOrder `json:"entry,omitempty"`
	Confidence    float64     `json:"confidence"`
	Justification string      `json:"justification"`
	Reasoning     string      `json:"reasoning,omitempty"`
}

// HoldFor is the decision used whenever an asset cannot be acted on.
func HoldFor(asset, why string) Decision {
	return Decision{Asset: asset, Signal: Hold, Justification: why}
}

// Request is what goes to the oracle: a fixed system contract and a user
// message describing the portfolio and every asset with a snapshot.
type Request struct {
	Time   time.Time `json:"time"`
	System string    `json:"system"`
	User   string    `json:"user"`
	Assets []string  `json:"assets"`
}

// Oracle answers a Request with raw text that Parse turns into decisions.
type Oracle interface {
	Decide(ctx context.Context, req Request) (string, error)
	Model() string
}
