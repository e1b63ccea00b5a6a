package metrics

import (
	"sort"
	"time"

	"github.com/rustyeddy/papertrader/journal"
	"github.com/rustyeddy/papertrader/market"
	"github.com/shopspring/decimal"
)

const OpenPosition = "Open position"

// CompletedTrade pairs an entry with the close that ended it. An entry still
// open has no exit; a close whose entry is outside the ledger has no entry.
type CompletedTrade struct {
	Asset       string              `json:"asset"`
	Side        market.Side         `json:"side"`
	EntryTime   *time.Time          `json:"entry_time"`
	ExitTime    *time.Time          `json:"exit_time"`
	EntryPrice  decimal.NullDecimal `json:"entry_price"`
	ExitPrice   decimal.NullDecimal `json:"exit_price"`
	Quantity    decimal.Decimal     `json:"quantity"`
	Leverage    int                 `json:"leverage"`
	Confidence  float64             `json:"confidence"`
	ExitAction  journal.Action      `json:"exit_action,omitempty"`
	PnL         decimal.NullDecimal `json:"pnl"`
	Duration    time.Duration       `json:"duration"`
	EntryReason string              `json:"entry_reason"`
	ExitReason  string              `json:"exit_reason"`
}

func (c CompletedTrade) Open() bool { return c.ExitTime == nil }

func (c CompletedTrade) sortTime() time.Time {
	if c.ExitTime != nil {
		return *c.ExitTime
	}
	return *c.EntryTime
}

type pairKey struct {
	asset string
	side  market.Side
}

// Pair matches closes to entries first-in first-out per asset and side.
// The result is ordered by exit time, or entry time for open trades.
func Pair(trades []journal.TradeRecord) []CompletedTrade {
	open := map[pairKey][]journal.TradeRecord{}
	var keys []pairKey
	var out []CompletedTrade

	for _, t := range trades {
		k := pairKey{t.Asset, t.Side}
		switch {
		case t.Action == journal.ActionEntry:
			if _, seen := open[k]; !seen {
				keys = append(keys, k)
			}
			open[k] = append(open[k], t)

		case t.Action.Closing():
			exit := t.Time
			c := CompletedTrade{
				Asset:      t.Asset,
				Side:       t.Side,
				ExitTime:   &exit,
				ExitPrice:  decimal.NewNullDecimal(t.Price),
				Quantity:   t.Quantity,
				Leverage:   t.Leverage,
				Confidence: t.Confidence,
				ExitAction: t.Action,
				ExitReason: t.Reason,
			}
			if t.RealizedPnL.Valid {
				c.PnL = decimal.NewNullDecimal(t.Net())
			}
			if q := open[k]; len(q) > 0 {
				e := q[0]
				open[k] = q[1:]
				entry := e.Time
				c.EntryTime = &entry
				c.EntryPrice = decimal.NewNullDecimal(e.Price)
				c.Quantity = e.Quantity
				c.Leverage = e.Leverage
				c.Confidence = e.Confidence
				c.EntryReason = e.Reason
				c.Duration = t.Time.Sub(e.Time)
			} else {
				c.EntryTime = &exit
			}
			out = append(out, c)
		}
	}

	for _, k := range keys {
		for _, e := range open[k] {
			entry := e.Time
			out = append(out, CompletedTrade{
				Asset:       e.Asset,
				Side:        e.Side,
				EntryTime:   &entry,
				EntryPrice:  decimal.NewNullDecimal(e.Price),
				Quantity:    e.Quantity,
				Leverage:    e.Leverage,
				Confidence:  e.Confidence,
				EntryReason: e.Reason,
				ExitReason:  OpenPosition,
			})
		}
	}

	sort.SliceStable(out, func(i, j int) bool { return out[i].sortTime().Before(out[j].sortTime()) })
	return out
}

// Summary is the run-level report. Ratios are NA until computable.
type Summary struct {
	Start        time.Time `json:"start"`
	End          time.Time `json:"end"`
	Samples      int       `json:"samples"`
	RuntimeHours float64   `json:"runtime_hours"`

	StartEquity  Ratio `json:"start_equity"`
	EndEquity    Ratio `json:"end_equity"`
	NetReturnPct Ratio `json:"net_return_pct"`
	MaxDrawdown  Ratio `json:"max_drawdown_pct"`
	Sharpe       Ratio `json:"sharpe"`
	Sortino      Ratio `json:"sortino"`

	Benchmark     string `json:"benchmark,omitempty"`
	HODLEquity    Ratio  `json:"hodl_equity"`
	HODLReturnPct Ratio  `json:"hodl_return_pct"`
	Alpha         Ratio  `json:"alpha_vs_hodl"`

	TotalTrades  int   `json:"total_trades"`
	ClosedTrades int   `json:"closed_trades"`
	OpenTrades   int   `json:"open_trades"`
	WinRatePct   Ratio `json:"win_rate_pct"`
	RealizedNet  Ratio `json:"realized_net"`
}

// Summarize reports on the equity samples and ledger, both oldest first.
func Summarize(samples []journal.EquitySample, trades []journal.TradeRecord, cfg Config) Summary {
	s := Summary{
		Samples:       len(samples),
		StartEquity:   NA,
		EndEquity:     NA,
		NetReturnPct:  NA,
		MaxDrawdown:   MaxDrawdown(samples),
		Sharpe:        Sharpe(samples, cfg.RiskFreeRate),
		Sortino:       Sortino(samples, cfg.RiskFreeRate),
		Benchmark:     cfg.Benchmark,
		HODLEquity:    NA,
		HODLReturnPct: NA,
		Alpha:         NA,
		WinRatePct:    NA,
		RealizedNet:   NA,
	}

	if len(samples) > 0 {
		first, last := samples[0], samples[len(samples)-1]
		s.Start, s.End = first.Time, last.Time
		s.RuntimeHours = max(last.Time.Sub(first.Time).Hours(), 0)
		s.StartEquity = Ratio(first.Equity.InexactFloat64())
		s.EndEquity = Ratio(last.Equity.InexactFloat64())
		if s.StartEquity != 0 {
			s.NetReturnPct = (s.EndEquity/s.StartEquity - 1) * 100
		}
		s.hodl(samples)
	}

	completed := Pair(trades)
	s.TotalTrades = len(completed)
	var wins, scored int
	net := decimal.Zero
	for _, c := range completed {
		if c.Open() {
			s.OpenTrades++
			continue
		}
		s.ClosedTrades++
		if !c.PnL.Valid {
			continue
		}
		scored++
		net = net.Add(c.PnL.Decimal)
		if c.PnL.Decimal.IsPositive() {
			wins++
		}
	}
	if scored > 0 {
		s.WinRatePct = Ratio(float64(wins) / float64(scored) * 100)
		s.RealizedNet = Ratio(net.InexactFloat64())
	}
	return s
}

// hodl buys the benchmark with the first sample's equity and marks it to
// the last known benchmark price.
func (s *Summary) hodl(samples []journal.EquitySample) {
	var units, start, end float64
	for _, p := range samples {
		if p.BenchmarkPrice <= 0 {
			continue
		}
		if units == 0 {
			eq := p.Equity.InexactFloat64()
			if eq <= 0 {
				continue
			}
			units = eq / p.BenchmarkPrice
			start = eq
		}
		end = units * p.BenchmarkPrice
	}
	if units == 0 {
		return
	}
	s.HODLEquity = Ratio(end)
	s.HODLReturnPct = Ratio((end/start - 1) * 100)
	if s.NetReturnPct.Valid() {
		s.Alpha = s.NetReturnPct - s.HODLReturnPct
	}
}
