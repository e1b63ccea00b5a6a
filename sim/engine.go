// Package sim is the paper execution engine. It owns the portfolio state and
// is the only code that mutates it.
package sim

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rustyeddy/papertrader/decision"
	"github.com/rustyeddy/papertrader/errs"
	"github.com/rustyeddy/papertrader/internal/id"
	"github.com/rustyeddy/papertrader/journal"
	"github.com/rustyeddy/papertrader/portfolio"
	"github.com/rustyeddy/papertrader/risk"
	"github.com/rustyeddy/papertrader/snapshot"
	"github.com/shopspring/decimal"
)

type Config struct {
	InitialBalance decimal.Decimal `json:"initial_balance" yaml:"initial_balance"`
	// FeeRate is charged on the notional of both legs when a position closes.
	FeeRate float64     `json:"fee_rate" yaml:"fee_rate"`
	Risk    risk.Config `json:"risk" yaml:"risk"`
}

// Engine applies decisions and trigger checks to a portfolio. Every ledger
// row is written to the journal before the state it describes changes, so a
// failed write leaves the state untouched.
type Engine struct {
	mu      sync.Mutex
	st      portfolio.State
	cfg     Config
	journal journal.Journal
}

func NewEngine(st portfolio.State, cfg Config, j journal.Journal) *Engine {
	if st.Positions == nil {
		st.Positions = make(map[string]*portfolio.Position)
	}
	return &Engine{st: st.Clone(), cfg: cfg, journal: j}
}

// State returns a deep copy of the current portfolio.
func (e *Engine) State() portfolio.State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.st.Clone()
}

func (e *Engine) Config() Config { return e.cfg }

// SetJournal swaps the sink ledger rows are written to.
func (e *Engine) SetJournal(j journal.Journal) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.journal = j
}

// Outcome reports what Apply did with one asset's decision.
type Outcome struct {
	Asset     string
	Signal    decision.Signal
	Effective decision.Signal
	Result    string
	Trade     *journal.TradeRecord
	Verdict   risk.Verdict
	// Err carries the kind when the decision was not executed as asked.
	Err error
}

// Record turns the outcome into its decision-log row.
func (o Outcome) Record(now time.Time, cycleID string, d decision.Decision, payload string) journal.DecisionRecord {
	rec := journal.DecisionRecord{
		Time:          now,
		CycleID:       cycleID,
		Asset:         o.Asset,
		Signal:        string(o.Signal),
		Effective:     string(o.Effective),
		Outcome:       o.Result,
		Confidence:    d.Confidence,
		Justification: d.Justification,
		Payload:       payload,
	}
	if o.Err != nil {
		rec.Kind = errs.KindOf(o.Err)
		rec.Reason = o.Err.Error()
	}
	return rec
}

// Failed builds the outcome for an asset that never reached Apply.
func Failed(asset string, signal decision.Signal, err error) Outcome {
	return Outcome{
		Asset:     asset,
		Signal:    signal,
		Effective: decision.Hold,
		Result:    journal.OutcomeFailed,
		Err:       err,
	}
}

// CheckTriggers closes every open position whose stop or target has been
// reached by prices[asset]. Assets without a price, or already flat, are
// left alone. Stops are checked before targets.
func (e *Engine) CheckTriggers(ctx context.Context, now time.Time, cycleID string, prices map[string]decimal.Decimal) ([]journal.TradeRecord, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	var out []journal.TradeRecord
	for _, asset := range e.st.Assets() {
		p := e.st.Positions[asset]
		px, ok := prices[asset]
		if !ok || !px.IsPositive() {
			continue
		}

		var action journal.Action
		switch {
		case p.StopHit(px):
			action = journal.ActionStopLoss
		case p.TargetHit(px):
			action = journal.ActionTakeProfit
		default:
			continue
		}

		reason := fmt.Sprintf("%s hit at %s (stop %s, target %s)", action, px, p.StopLoss, p.ProfitTarget)
		rec, err := e.closeLocked(ctx, now, cycleID, p, px, action, reason)
		if err != nil {
			return out, err
		}
		out = append(out, rec)
	}
	return out, nil
}

// Apply executes one decision against the snapshot's price. Rejections and
// no-ops are reported in the Outcome; the returned error is only ever a
// journal write failure.
func (e *Engine) Apply(ctx context.Context, now time.Time, cycleID string, d decision.Decision, snap snapshot.Snapshot) (Outcome, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	o := Outcome{Asset: d.Asset, Signal: d.Signal, Effective: decision.Hold, Result: journal.OutcomeHold}
	if d.Signal == decision.Hold {
		return o, nil
	}
	if !snap.Price.IsPositive() {
		o.Result = journal.OutcomeFailed
		o.Err = errs.Newf(errs.DataUnavailable, d.Asset, "no price to execute %s", d.Signal)
		return o, nil
	}

	pos, open := e.st.Position(d.Asset)

	switch d.Signal {
	case decision.Entry:
		if open {
			o.Result = journal.OutcomeIgnored
			o.Err = errs.Newf(errs.AlreadyOpen, d.Asset, "%s position opened at %s already open", pos.Side, pos.EntryPrice)
			return o, nil
		}
		o.Verdict = risk.Validate(d, e.st, snap, e.cfg.Risk)
		if !o.Verdict.Allowed {
			o.Result = journal.OutcomeRejected
			o.Err = o.Verdict.Err(d.Asset)
			return o, nil
		}
		rec, err := e.openLocked(ctx, now, cycleID, d, o.Verdict.EntryPrice)
		if err != nil {
			return o, err
		}
		o.Effective = decision.Entry
		o.Result = journal.OutcomeOpened
		o.Trade = &rec

	case decision.Close:
		if !open {
			o.Result = journal.OutcomeIgnored
			o.Err = errs.Newf(errs.NoPosition, d.Asset, "close requested while flat")
			return o, nil
		}
		rec, err := e.closeLocked(ctx, now, cycleID, pos, snap.Price, journal.ActionClose, d.Justification)
		if err != nil {
			return o, err
		}
		o.Effective = decision.Close
		o.Result = journal.OutcomeClosed
		o.Trade = &rec

	default:
		o.Result = journal.OutcomeFailed
		o.Err = errs.Newf(errs.ParseError, d.Asset, "unknown signal %q", d.Signal)
	}
	return o, nil
}

func (e *Engine) openLocked(ctx context.Context, now time.Time, cycleID string, d decision.Decision, price decimal.Decimal) (journal.TradeRecord, error) {
	en := d.Entry
	rec := journal.TradeRecord{
		ID:           id.At(now),
		CycleID:      cycleID,
		Time:         now,
		Asset:        d.Asset,
		Action:       journal.ActionEntry,
		Side:         en.Side,
		Quantity:     en.Quantity,
		Price:        price,
		BalanceAfter: e.st.Balance,
		StopLoss:     en.StopLoss,
		ProfitTarget: en.ProfitTarget,
		Leverage:     en.Leverage,
		RiskUSD:      en.RiskUSD,
		Confidence:   d.Confidence,
		Reason:       d.Justification,
		Invalidation: en.InvalidationCondition,
	}
	if err := e.journal.RecordTrade(ctx, rec); err != nil {
		return rec, errs.New(errs.PersistenceFailure, d.Asset, err)
	}

	e.st.Positions[d.Asset] = &portfolio.Position{
		Asset:                 d.Asset,
		Side:                  en.Side,
		Quantity:              en.Quantity,
		EntryPrice:            price,
		StopLoss:              en.StopLoss,
		ProfitTarget:          en.ProfitTarget,
		Leverage:              en.Leverage,
		RiskUSD:               en.RiskUSD,
		OpenedAt:              now,
		Confidence:            d.Confidence,
		InvalidationCondition: en.InvalidationCondition,
		TradeID:               rec.ID,
	}
	e.touch(now)
	return rec, nil
}

func (e *Engine) closeLocked(ctx context.Context, now time.Time, cycleID string, p *portfolio.Position, price decimal.Decimal, action journal.Action, reason string) (journal.TradeRecord, error) {
	pnl, fees, balance := Settle(e.st.Balance, p, price, e.cfg.FeeRate)

	rec := journal.TradeRecord{
		ID:           id.At(now),
		CycleID:      cycleID,
		Time:         now,
		Asset:        p.Asset,
		Action:       action,
		Side:         p.Side,
		Quantity:     p.Quantity,
		Price:        price,
		RealizedPnL:  decimal.NewNullDecimal(pnl),
		Fees:         decimal.NewNullDecimal(fees),
		BalanceAfter: balance,
		StopLoss:     p.StopLoss,
		ProfitTarget: p.ProfitTarget,
		Leverage:     p.Leverage,
		RiskUSD:      p.RiskUSD,
		Confidence:   p.Confidence,
		Reason:       reason,
		Invalidation: p.InvalidationCondition,
	}
	if err := e.journal.RecordTrade(ctx, rec); err != nil {
		return rec, errs.New(errs.PersistenceFailure, p.Asset, err)
	}

	e.st.Balance = balance
	delete(e.st.Positions, p.Asset)
	e.touch(now)
	return rec, nil
}

func (e *Engine) touch(now time.Time) {
	e.st.Version++
	e.st.UpdatedAt = now
}

// Settle computes the realized PnL, fees and resulting balance of closing p
// at price. The net loss is capped at the position's margin and the balance
// never goes below zero; pnl is adjusted so that balance + pnl - fees is
// always the returned balance.
func Settle(balance decimal.Decimal, p *portfolio.Position, price decimal.Decimal, feeRate float64) (pnl, fees, after decimal.Decimal) {
	pnl = p.PnL(price)
	fees = decimal.NewFromFloat(feeRate).Mul(p.Quantity).Mul(p.EntryPrice.Add(price))

	net := pnl.Sub(fees)
	if floor := p.Margin().Neg(); net.LessThan(floor) {
		net = floor
	}
	if balance.Add(net).IsNegative() {
		net = balance.Neg()
	}
	return net.Add(fees), fees, balance.Add(net)
}

// Sample measures equity at prices. benchmark is stored as-is.
func (e *Engine) Sample(now time.Time, cycleID string, prices map[string]decimal.Decimal, benchmark float64) journal.EquitySample {
	e.mu.Lock()
	defer e.mu.Unlock()

	unreal := e.st.Unrealized(prices)
	equity := e.st.Balance.Add(unreal)

	var ret float64
	if e.cfg.InitialBalance.IsPositive() {
		ret = equity.Div(e.cfg.InitialBalance).Sub(decimal.NewFromInt(1)).InexactFloat64() * 100
	}

	return journal.EquitySample{
		Time:           now,
		CycleID:        cycleID,
		Balance:        e.st.Balance,
		Equity:         equity,
		UnrealizedPnL:  unreal,
		OpenPositions:  len(e.st.Positions),
		ReturnPct:      ret,
		BenchmarkPrice: benchmark,
	}
}

// SortedOutcomes orders outcomes by asset for stable reporting.
func SortedOutcomes(m map[string]Outcome) []Outcome {
	out := make([]Outcome, 0, len(m))
	for _, o := range m {
		out = append(out, o)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Asset < out[j].Asset })
	return out
}
