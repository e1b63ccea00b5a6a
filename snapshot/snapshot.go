// Package snapshot builds the per-asset market view a cycle hands to the
// decision oracle. Everything here except Builder.Build is a pure function of
// the candle series.
package snapshot

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/rustyeddy/papertrader/errs"
	"github.com/rustyeddy/papertrader/indicators"
	"github.com/rustyeddy/papertrader/market"
	"github.com/rustyeddy/papertrader/portfolio"
	"github.com/shopspring/decimal"
)

type Config struct {
	Interval     string               `json:"interval" yaml:"interval"`
	Lookback     int                  `json:"lookback" yaml:"lookback"`
	EMAFast      int                  `json:"ema_fast" yaml:"ema_fast"`
	EMASlow      int                  `json:"ema_slow" yaml:"ema_slow"`
	RSIPeriod    int                  `json:"rsi_period" yaml:"rsi_period"`
	RSISmoothing indicators.Smoothing `json:"rsi_smoothing" yaml:"rsi_smoothing"`
	MACDFast     int                  `json:"macd_fast" yaml:"macd_fast"`
	MACDSlow     int                  `json:"macd_slow" yaml:"macd_slow"`
	MACDSignal   int                  `json:"macd_signal" yaml:"macd_signal"`
	ATRPeriod    int                  `json:"atr_period" yaml:"atr_period"`
	// RecentBars is how many of the latest closes are echoed into the request.
	RecentBars int `json:"recent_bars" yaml:"recent_bars"`
}

func DefaultConfig() Config {
	return Config{
		Interval:     "3m",
		Lookback:     100,
		EMAFast:      20,
		EMASlow:      50,
		RSIPeriod:    14,
		RSISmoothing: indicators.Wilder,
		MACDFast:     12,
		MACDSlow:     26,
		MACDSignal:   9,
		ATRPeriod:    14,
		RecentBars:   10,
	}
}

// Warmup is the fewest candles that produce every indicator.
func (c Config) Warmup() int {
	n := c.EMASlow
	if m := c.EMAFast; m > n {
		n = m
	}
	if m := c.RSIPeriod + 1; m > n {
		n = m
	}
	if m := c.MACDSlow + c.MACDSignal - 1; m > n {
		n = m
	}
	if m := c.ATRPeriod + 1; m > n {
		n = m
	}
	return n
}

func (c Config) Validate() error {
	if c.Interval == "" {
		return fmt.Errorf("snapshot: interval is required")
	}
	for name, p := range map[string]int{
		"ema_fast": c.EMAFast, "ema_slow": c.EMASlow, "rsi_period": c.RSIPeriod,
		"macd_fast": c.MACDFast, "macd_slow": c.MACDSlow, "macd_signal": c.MACDSignal,
		"atr_period": c.ATRPeriod,
	} {
		if p <= 0 {
			return fmt.Errorf("snapshot: %s must be positive", name)
		}
	}
	if c.MACDFast >= c.MACDSlow {
		return fmt.Errorf("snapshot: macd_fast must be below macd_slow")
	}
	if c.Lookback < c.Warmup() {
		return fmt.Errorf("snapshot: lookback %d below warm-up %d", c.Lookback, c.Warmup())
	}
	return nil
}

// Snapshot is one asset's view for one cycle. It is never persisted.
type Snapshot struct {
	Asset         string               `json:"asset"`
	Time          time.Time            `json:"time"`
	Candles       []market.Candle      `json:"-"`
	Price         decimal.Decimal      `json:"price"`
	EMAFast       float64              `json:"ema_fast"`
	EMASlow       float64              `json:"ema_slow"`
	RSI           float64              `json:"rsi"`
	MACD          indicators.MACDValue `json:"macd"`
	ATR           float64              `json:"atr"`
	Position      *portfolio.Position  `json:"position,omitempty"`
	UnrealizedPnL decimal.Decimal      `json:"unrealized_pnl"`
}

// Compute derives every indicator from candles, oldest first. It fails when
// the series is inconsistent or too short to warm up.
func Compute(asset string, candles []market.Candle, cfg Config) (Snapshot, error) {
	if err := market.CheckSeries(candles); err != nil {
		return Snapshot{}, err
	}
	if len(candles) < cfg.Warmup() {
		return Snapshot{}, fmt.Errorf("%d candles, need %d: %w", len(candles), cfg.Warmup(), indicators.ErrInsufficientData)
	}

	closes := market.Closes(candles)
	last, _ := market.Last(candles)

	s := Snapshot{
		Asset:   asset,
		Time:    last.Time,
		Candles: candles,
		Price:   decimal.NewFromFloat(last.Close),
	}

	var err error
	if s.EMAFast, err = indicators.EMA(closes, cfg.EMAFast); err != nil {
		return Snapshot{}, err
	}
	if s.EMASlow, err = indicators.EMA(closes, cfg.EMASlow); err != nil {
		return Snapshot{}, err
	}
	if s.RSI, err = indicators.RSI(closes, cfg.RSIPeriod, cfg.RSISmoothing); err != nil {
		return Snapshot{}, err
	}
	if s.MACD, err = indicators.MACD(closes, cfg.MACDFast, cfg.MACDSlow, cfg.MACDSignal); err != nil {
		return Snapshot{}, err
	}
	if s.ATR, err = indicators.ATR(candles, cfg.ATRPeriod); err != nil {
		return Snapshot{}, err
	}
	return s, nil
}

// Attach records the open position, if any, and its PnL at the snapshot price.
func (s *Snapshot) Attach(p *portfolio.Position) {
	s.Position = p
	s.UnrealizedPnL = decimal.Zero
	if p != nil {
		s.UnrealizedPnL = p.PnL(s.Price)
	}
}

// Recent returns up to n of the latest closes.
func (s Snapshot) Recent(n int) []float64 {
	closes := market.Closes(s.Candles)
	if n > 0 && len(closes) > n {
		closes = closes[len(closes)-n:]
	}
	return closes
}

// Trend is a one-word reading of the EMA pair.
func (s Snapshot) Trend() string {
	switch {
	case s.EMAFast > s.EMASlow:
		return "up"
	case s.EMAFast < s.EMASlow:
		return "down"
	}
	return "flat"
}

// Prices maps each snapshot's asset to its latest price.
func Prices(snaps map[string]Snapshot) map[string]decimal.Decimal {
	out := make(map[string]decimal.Decimal, len(snaps))
	for k, s := range snaps {
		out[k] = s.Price
	}
	return out
}

// Assets returns the snapshot keys in symbol order.
func Assets(snaps map[string]Snapshot) []string {
	out := make([]string, 0, len(snaps))
	for k := range snaps {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Source fetches candles from an exchange, oldest first.
type Source interface {
	Candles(ctx context.Context, symbol, interval string, limit int) ([]market.Candle, error)
}

type Builder struct {
	src Source
	cfg Config
}

func NewBuilder(src Source, cfg Config) *Builder {
	return &Builder{src: src, cfg: cfg}
}

func (b *Builder) Config() Config { return b.cfg }

// Build fetches and computes one asset's snapshot. Every failure, including
// a short or malformed series, is reported as DataUnavailable.
func (b *Builder) Build(ctx context.Context, asset string) (Snapshot, error) {
	candles, err := b.src.Candles(ctx, asset, b.cfg.Interval, b.cfg.Lookback)
	if err != nil {
		return Snapshot{}, errs.New(errs.DataUnavailable, asset, err)
	}
	s, err := Compute(asset, candles, b.cfg)
	if err != nil {
		return Snapshot{}, errs.New(errs.DataUnavailable, asset, err)
	}
	return s, nil
}
