// Package journal holds the append-only streams the engine writes every
// cycle: the trade ledger, the per-asset decision log, the raw oracle message
// log and the equity curve. Records are keyed so that writing the same record
// twice is a no-op, which lets a failed cycle's writes be retried safely.
package journal

import (
	"context"
	"time"

	"github.com/rustyeddy/papertrader/errs"
	"github.com/rustyeddy/papertrader/market"
	"github.com/shopspring/decimal"
)

type Action string

const (
	ActionEntry      Action = "ENTRY"
	ActionClose      Action = "CLOSE"
	ActionStopLoss   Action = "STOP_LOSS"
	ActionTakeProfit Action = "TAKE_PROFIT"
)

// Closing reports whether the action removes a position.
func (a Action) Closing() bool {
	return a == ActionClose || a == ActionStopLoss || a == ActionTakeProfit
}

// TradeRecord is one ledger line. RealizedPnL and Fees are only set on
// closing actions.
type TradeRecord struct {
	ID           string              `json:"id"`
	CycleID      string              `json:"cycle_id"`
	Time         time.Time           `json:"time"`
	Asset        string              `json:"asset"`
	Action       Action              `json:"action"`
	Side         market.Side         `json:"side"`
	Quantity     decimal.Decimal     `json:"quantity"`
	Price        decimal.Decimal     `json:"price"`
	RealizedPnL  decimal.NullDecimal `json:"realized_pnl"`
	Fees         decimal.NullDecimal `json:"fees"`
	BalanceAfter decimal.Decimal     `json:"balance_after"`
	StopLoss     decimal.Decimal     `json:"stop_loss"`
	ProfitTarget decimal.Decimal     `json:"profit_target"`
	Leverage     int                 `json:"leverage"`
	RiskUSD      decimal.Decimal     `json:"risk_usd"`
	Confidence   float64             `json:"confidence"`
	Reason       string              `json:"reason,omitempty"`
	// Invalidation is the entry's written exit plan, carried on every row of
	// the position so that a replayed state keeps it.
	Invalidation string `json:"invalidation_condition,omitempty"`
}

// Net is realized PnL minus fees, zero for entries.
func (t TradeRecord) Net() decimal.Decimal {
	return t.RealizedPnL.Decimal.Sub(t.Fees.Decimal)
}

// Outcome values stored in DecisionRecord.Outcome.
const (
	OutcomeHold     = "hold"
	OutcomeOpened   = "opened"
	OutcomeClosed   = "closed"
	OutcomeRejected = "rejected"
	OutcomeIgnored  = "ignored"
	OutcomeFailed   = "failed"
)

// DecisionRecord is written for every asset in every cycle, whatever
// happened to it. Signal is what the oracle asked for; Effective is what the
// engine did.
type DecisionRecord struct {
	Time          time.Time `json:"time"`
	CycleID       string    `json:"cycle_id"`
	Asset         string    `json:"asset"`
	Signal        string    `json:"signal"`
	Effective     string    `json:"effective"`
	Outcome       string    `json:"outcome"`
	Kind          errs.Kind `json:"kind,omitempty"`
	Reason        string    `json:"reason,omitempty"`
	Confidence    float64   `json:"confidence"`
	Justification string    `json:"justification,omitempty"`
	Payload       string    `json:"payload,omitempty"`
}

// MessageRecord is one request/response exchange with the oracle.
type MessageRecord struct {
	Time     time.Time     `json:"time"`
	CycleID  string        `json:"cycle_id"`
	Model    string        `json:"model"`
	Request  string        `json:"request"`
	Response string        `json:"response"`
	Error    string        `json:"error,omitempty"`
	Latency  time.Duration `json:"latency"`
}

// EquitySample is appended once per cycle.
type EquitySample struct {
	Time           time.Time       `json:"time"`
	CycleID        string          `json:"cycle_id"`
	Balance        decimal.Decimal `json:"balance"`
	Equity         decimal.Decimal `json:"equity"`
	UnrealizedPnL  decimal.Decimal `json:"unrealized_pnl"`
	OpenPositions  int             `json:"open_positions"`
	ReturnPct      float64         `json:"return_pct"`
	BenchmarkPrice float64         `json:"benchmark_price"`
}

type Journal interface {
	RecordTrade(ctx context.Context, t TradeRecord) error
	RecordDecision(ctx context.Context, d DecisionRecord) error
	RecordMessage(ctx context.Context, m MessageRecord) error
	RecordEquity(ctx context.Context, e EquitySample) error
	Close() error
}

// Query filters a stream read. Zero values mean "no filter". A positive
// Limit keeps the most recent rows, still returned oldest first.
type Query struct {
	Start   time.Time
	End     time.Time
	Asset   string
	CycleID string
	Limit   int
}

func (q Query) match(t time.Time, asset, cycle string) bool {
	if !q.Start.IsZero() && t.Before(q.Start) {
		return false
	}
	if !q.End.IsZero() && !t.Before(q.End) {
		return false
	}
	if q.Asset != "" && asset != "" && asset != q.Asset {
		return false
	}
	if q.CycleID != "" && cycle != q.CycleID {
		return false
	}
	return true
}

type Reader interface {
	ListTrades(ctx context.Context, q Query) ([]TradeRecord, error)
	ListDecisions(ctx context.Context, q Query) ([]DecisionRecord, error)
	ListMessages(ctx context.Context, q Query) ([]MessageRecord, error)
	ListEquity(ctx context.Context, q Query) ([]EquitySample, error)
}

// Store is a journal that can also be read back.
type Store interface {
	Journal
	Reader
}

func tail[T any](rows []T, limit int) []T {
	if limit > 0 && len(rows) > limit {
		return rows[len(rows)-limit:]
	}
	return rows
}
