package snapshot

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rustyeddy/papertrader/errs"
	"github.com/rustyeddy/papertrader/indicators"
	"github.com/rustyeddy/papertrader/market"
	"github.com/rustyeddy/papertrader/portfolio"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func rising(n int) []market.Candle {
	start := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	out := make([]market.Candle, n)
	for i := range out {
		c := 100 + float64(i)
		out[i] = market.Candle{
			Time:   start.Add(time.Duration(i) * 3 * time.Minute),
			Open:   c - 0.5,
			High:   c + 1,
			Low:    c - 1,
			Close:  c,
			Volume: 10,
		}
	}
	return out
}

type fakeSource struct {
	candles []market.Candle
	err     error
	calls   []string
}

func (f *fakeSource) Candles(_ context.Context, symbol, interval string, limit int) ([]market.Candle, error) {
	f.calls = append(f.calls, symbol+"/"+interval)
	if f.err != nil {
		return nil, f.err
	}
	return f.candles, nil
}

func TestWarmup(t *testing.T) {
	t.Parallel()

	cfg := DefaultConfig()
	assert.Equal(t, 50, cfg.Warmup())
	require.NoError(t, cfg.Validate())

	cfg.Lookback = 40
	assert.Error(t, cfg.Validate())

	cfg = DefaultConfig()
	cfg.MACDFast = 30
	assert.Error(t, cfg.Validate())
}

func TestComputeRising(t *testing.T) {
	t.Parallel()

	candles := rising(60)
	s, err := Compute("SOL", candles, DefaultConfig())
	require.NoError(t, err)

	assert.Equal(t, "SOL", s.Asset)
	assert.True(t, s.Time.Equal(candles[59].Time))
	assert.True(t, s.Price.Equal(decimal.NewFromInt(159)))
	// On a straight line an EMA lags by (period-1)/2.
	assert.InDelta(t, 159-9.5, s.EMAFast, 1e-6)
	assert.InDelta(t, 159-24.5, s.EMASlow, 1e-6)
	assert.Equal(t, "up", s.Trend())
	assert.Equal(t, 100.0, s.RSI)
	assert.Greater(t, s.MACD.Line, 0.0)
	assert.InDelta(t, 2.0, s.ATR, 1e-9)
	assert.Equal(t, []float64{157, 158, 159}, s.Recent(3))
}

func TestComputeInsufficient(t *testing.T) {
	t.Parallel()

	_, err := Compute("SOL", rising(20), DefaultConfig())
	assert.ErrorIs(t, err, indicators.ErrInsufficientData)
}

func TestComputeRejectsBadSeries(t *testing.T) {
	t.Parallel()

	candles := rising(60)
	candles[10].Time = candles[9].Time
	_, err := Compute("SOL", candles, DefaultConfig())
	assert.Error(t, err)
}

func TestAttach(t *testing.T) {
	t.Parallel()

	s, err := Compute("SOL", rising(60), DefaultConfig())
	require.NoError(t, err)

	p := &portfolio.Position{
		Asset:      "SOL",
		Side:       market.Short,
		Quantity:   decimal.NewFromInt(2),
		EntryPrice: decimal.NewFromInt(160),
		Leverage:   1,
	}
	s.Attach(p)
	assert.Same(t, p, s.Position)
	assert.True(t, s.UnrealizedPnL.Equal(decimal.NewFromInt(2)))

	s.Attach(nil)
	assert.Nil(t, s.Position)
	assert.True(t, s.UnrealizedPnL.IsZero())
}

func TestBuilderDataUnavailable(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	src := &fakeSource{err: errors.New("503")}
	_, err := NewBuilder(src, DefaultConfig()).Build(ctx, "BTC")
	require.Error(t, err)
	assert.True(t, errs.IsKind(err, errs.DataUnavailable))
	assert.Equal(t, []string{"BTC/3m"}, src.calls)

	src = &fakeSource{candles: rising(10)}
	_, err = NewBuilder(src, DefaultConfig()).Build(ctx, "BTC")
	assert.True(t, errs.IsKind(err, errs.DataUnavailable))
	assert.ErrorIs(t, err, indicators.ErrInsufficientData)

	src = &fakeSource{candles: rising(60)}
	s, err := NewBuilder(src, DefaultConfig()).Build(ctx, "BTC")
	require.NoError(t, err)
	assert.Equal(t, "BTC", s.Asset)
}

func TestPricesAndAssets(t *testing.T) {
	t.Parallel()

	snaps := map[string]Snapshot{
		"SOL": {Asset: "SOL", Price: decimal.NewFromInt(150)},
		"BTC": {Asset: "BTC", Price: decimal.NewFromInt(60000)},
	}
	assert.Equal(t, []string{"BTC", "SOL"}, Assets(snaps))
	assert.True(t, Prices(snaps)["SOL"].Equal(decimal.NewFromInt(150)))
}
