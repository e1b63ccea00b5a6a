package metrics

import (
	"encoding/json"
	"math"
	"testing"
	"time"

	"github.com/rustyeddy/papertrader/journal"
	"github.com/rustyeddy/papertrader/market"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func curve(step time.Duration, equities ...float64) []journal.EquitySample {
	out := make([]journal.EquitySample, len(equities))
	for i, e := range equities {
		out[i] = journal.EquitySample{
			Time:    t0.Add(time.Duration(i) * step),
			Equity:  decimal.NewFromFloat(e),
			Balance: decimal.NewFromFloat(e),
		}
	}
	return out
}

func TestRatiosNotComputable(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		samples []journal.EquitySample
	}{
		{"none", nil},
		{"one sample", curve(time.Hour, 1000)},
		{"flat", curve(time.Hour, 1000, 1000, 1000)},
		{"same timestamp", curve(0, 1000, 1010)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.False(t, Sharpe(tt.samples, 0).Valid())
			assert.False(t, Sortino(tt.samples, 0).Valid())
		})
	}
}

func TestSharpe(t *testing.T) {
	t.Parallel()

	// returns +10% and -10%: mean 0 -> sharpe 0
	s := Sharpe(curve(24*time.Hour, 100, 110, 99), 0)
	require.True(t, s.Valid())
	assert.InDelta(t, 0, float64(s), 1e-9)

	// returns 0.02, 0.01: mean 0.015, sd 0.005, 365 periods a year
	samples := curve(24*time.Hour, 100, 102, 103.02)
	want := 0.015 / 0.005 * math.Sqrt(365)
	assert.InDelta(t, want, float64(Sharpe(samples, 0)), 1e-6)

	// all-positive returns have no downside
	assert.False(t, Sortino(samples, 0).Valid())
}

func TestSortino(t *testing.T) {
	t.Parallel()

	// returns +0.10, -0.10 -> mean 0, downside sqrt(0.01/2)
	samples := curve(24*time.Hour, 100, 110, 99)
	got := Sortino(samples, 0)
	require.True(t, got.Valid())
	assert.InDelta(t, 0, float64(got), 1e-9)

	// returns +0.05, -0.02
	samples = curve(24*time.Hour, 100, 105, 102.9)
	mean := (0.05 - 0.02) / 2
	dd := math.Sqrt(0.02 * 0.02 / 2)
	assert.InDelta(t, mean/dd*math.Sqrt(365), float64(Sortino(samples, 0)), 1e-6)
}

func TestRiskFreeLowersSharpe(t *testing.T) {
	t.Parallel()

	samples := curve(24*time.Hour, 100, 102, 101, 104)
	assert.Less(t, float64(Sharpe(samples, 0.5)), float64(Sharpe(samples, 0)))
}

func TestMaxDrawdown(t *testing.T) {
	t.Parallel()

	assert.False(t, MaxDrawdown(nil).Valid())
	assert.InDelta(t, 0, float64(MaxDrawdown(curve(time.Hour, 100, 110, 120))), 1e-9)
	assert.InDelta(t, 25, float64(MaxDrawdown(curve(time.Hour, 100, 120, 90, 110, 95))), 1e-9)
}

func TestRatioJSON(t *testing.T) {
	t.Parallel()

	b, err := json.Marshal(struct {
		A Ratio `json:"a"`
		B Ratio `json:"b"`
	}{NA, 1.5})
	require.NoError(t, err)
	assert.JSONEq(t, `{"a":null,"b":1.5}`, string(b))

	var r Ratio
	require.NoError(t, json.Unmarshal([]byte("null"), &r))
	assert.False(t, r.Valid())
	assert.Equal(t, "n/a", r.String())
	assert.Equal(t, "1.50", Ratio(1.5).String())
}

func trade(id string, at time.Time, asset string, action journal.Action, side market.Side, price, pnl, fees string) journal.TradeRecord {
	t := journal.TradeRecord{
		ID:       id,
		Time:     at,
		Asset:    asset,
		Action:   action,
		Side:     side,
		Quantity: dec("1"),
		Price:    dec(price),
		Leverage: 1,
		Reason:   string(action),
	}
	if pnl != "" {
		t.RealizedPnL = decimal.NewNullDecimal(dec(pnl))
		t.Fees = decimal.NewNullDecimal(dec(fees))
	}
	return t
}

func TestPair(t *testing.T) {
	t.Parallel()

	trades := []journal.TradeRecord{
		trade("1", t0, "SOL", journal.ActionEntry, market.Long, "100", "", ""),
		trade("2", t0.Add(time.Minute), "ETH", journal.ActionEntry, market.Short, "3000", "", ""),
		trade("3", t0.Add(2*time.Minute), "SOL", journal.ActionTakeProfit, market.Long, "120", "20", "0.2"),
		trade("4", t0.Add(3*time.Minute), "BTC", journal.ActionClose, market.Long, "65000", "-5", "0"),
		trade("5", t0.Add(4*time.Minute), "SOL", journal.ActionEntry, market.Long, "118", "", ""),
	}

	got := Pair(trades)
	require.Len(t, got, 4)

	// open trades sort by entry time
	assert.Equal(t, "ETH", got[0].Asset)
	assert.True(t, got[0].Open())
	assert.Equal(t, OpenPosition, got[0].ExitReason)

	sol := got[1]
	assert.Equal(t, "SOL", sol.Asset)
	assert.False(t, sol.Open())
	assert.True(t, sol.PnL.Decimal.Equal(dec("19.8")))
	assert.Equal(t, 2*time.Minute, sol.Duration)
	assert.Equal(t, journal.ActionTakeProfit, sol.ExitAction)
	assert.Equal(t, "ENTRY", sol.EntryReason)
	assert.True(t, sol.EntryPrice.Decimal.Equal(dec("100")))

	orphan := got[2]
	assert.Equal(t, "BTC", orphan.Asset)
	assert.Zero(t, orphan.Duration)
	assert.False(t, orphan.EntryPrice.Valid)

	assert.Equal(t, "SOL", got[3].Asset)
	assert.True(t, got[3].Open())
}

func TestSummarize(t *testing.T) {
	t.Parallel()

	samples := curve(time.Hour, 1000, 1100, 990, 1050)
	prices := []float64{50000, 52000, 51000, 55000}
	for i := range samples {
		samples[i].BenchmarkPrice = prices[i]
	}

	trades := []journal.TradeRecord{
		trade("1", t0, "SOL", journal.ActionEntry, market.Long, "100", "", ""),
		trade("2", t0.Add(time.Hour), "SOL", journal.ActionClose, market.Long, "110", "10", "0"),
		trade("3", t0.Add(time.Hour), "ETH", journal.ActionEntry, market.Long, "3000", "", ""),
		trade("4", t0.Add(2*time.Hour), "ETH", journal.ActionStopLoss, market.Long, "2900", "-100", "1"),
		trade("5", t0.Add(3*time.Hour), "BTC", journal.ActionEntry, market.Long, "55000", "", ""),
	}

	s := Summarize(samples, trades, DefaultConfig())
	assert.Equal(t, 4, s.Samples)
	assert.InDelta(t, 3, s.RuntimeHours, 1e-9)
	assert.InDelta(t, 5, float64(s.NetReturnPct), 1e-9)
	assert.InDelta(t, 10, float64(s.MaxDrawdown), 1e-9)
	assert.True(t, s.Sharpe.Valid())

	assert.Equal(t, "BTC", s.Benchmark)
	assert.InDelta(t, 1100, float64(s.HODLEquity), 1e-9)
	assert.InDelta(t, 10, float64(s.HODLReturnPct), 1e-9)
	assert.InDelta(t, -5, float64(s.Alpha), 1e-9)

	assert.Equal(t, 3, s.TotalTrades)
	assert.Equal(t, 2, s.ClosedTrades)
	assert.Equal(t, 1, s.OpenTrades)
	assert.InDelta(t, 50, float64(s.WinRatePct), 1e-9)
	assert.InDelta(t, -91, float64(s.RealizedNet), 1e-9)
}

func TestSummarizeEmpty(t *testing.T) {
	t.Parallel()

	s := Summarize(nil, nil, Config{})
	assert.False(t, s.NetReturnPct.Valid())
	assert.False(t, s.Sharpe.Valid())
	assert.False(t, s.WinRatePct.Valid())
	assert.False(t, s.HODLEquity.Valid())

	b, err := json.Marshal(s)
	require.NoError(t, err)
	assert.Contains(t, string(b), `"sharpe":null`)
}
