// Package exchange fetches public market data over REST.
package exchange

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/rustyeddy/papertrader/market"
	"github.com/shopspring/decimal"
	"golang.org/x/time/rate"
)

type Config struct {
	BaseURL string        `json:"base_url" yaml:"base_url"`
	Quote   string        `json:"quote" yaml:"quote"`
	Timeout time.Duration `json:"timeout" yaml:"timeout"`
	Retries int           `json:"retries" yaml:"retries"`
	// RateLimit is requests per second across all assets.
	RateLimit float64 `json:"rate_limit" yaml:"rate_limit"`
	Burst     int     `json:"burst" yaml:"burst"`
}

func DefaultConfig() Config {
	return Config{
		BaseURL:   "https://api.binance.com",
		Quote:     "USDT",
		Timeout:   10 * time.Second,
		Retries:   2,
		RateLimit: 10,
		Burst:     5,
	}
}

// Binance reads spot klines and ticker prices. It needs no credentials.
type Binance struct {
	client  *resty.Client
	limiter *rate.Limiter
	quote   string
}

type apiError struct {
	Code int    `json:"code"`
	Msg  string `json:"msg"`
}

func NewBinance(cfg Config) *Binance {
	client := resty.New().
		SetBaseURL(cfg.BaseURL).
		SetTimeout(cfg.Timeout).
		SetRetryCount(cfg.Retries).
		SetRetryWaitTime(250 * time.Millisecond).
		SetRetryMaxWaitTime(2 * time.Second).
		AddRetryCondition(func(r *resty.Response, err error) bool {
			if err != nil {
				return !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded)
			}
			return r.StatusCode() == 429 || r.StatusCode() >= 500
		})

	limit := rate.Inf
	if cfg.RateLimit > 0 {
		limit = rate.Limit(cfg.RateLimit)
	}
	burst := max(cfg.Burst, 1)

	return &Binance{
		client:  client,
		limiter: rate.NewLimiter(limit, burst),
		quote:   strings.ToUpper(cfg.Quote),
	}
}

// Pair maps an asset symbol to the exchange pair, SOL -> SOLUSDT.
func (b *Binance) Pair(asset string) string {
	asset = strings.ToUpper(asset)
	if b.quote == "" || strings.HasSuffix(asset, b.quote) {
		return asset
	}
	return asset + b.quote
}

// Candles returns up to limit bars for asset, oldest first. The last bar is
// the one still forming, so its close is the latest trade price.
func (b *Binance) Candles(ctx context.Context, asset, interval string, limit int) ([]market.Candle, error) {
	if err := b.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("klines %s: %w", asset, err)
	}

	var rows [][]any
	var apiErr apiError
	resp, err := b.client.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"symbol":   b.Pair(asset),
			"interval": interval,
			"limit":    strconv.Itoa(limit),
		}).
		SetResult(&rows).
		SetError(&apiErr).
		Get("/api/v3/klines")
	if err != nil {
		return nil, fmt.Errorf("klines %s: %w", asset, err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("klines %s: http %d: %s (code %d)", asset, resp.StatusCode(), apiErr.Msg, apiErr.Code)
	}

	out := make([]market.Candle, 0, len(rows))
	for i, row := range rows {
		c, err := parseKline(row)
		if err != nil {
			return nil, fmt.Errorf("klines %s row %d: %w", asset, i, err)
		}
		out = append(out, c)
	}
	return out, nil
}

// Price returns the latest trade price for asset.
func (b *Binance) Price(ctx context.Context, asset string) (decimal.Decimal, error) {
	if err := b.limiter.Wait(ctx); err != nil {
		return decimal.Zero, fmt.Errorf("price %s: %w", asset, err)
	}

	var res struct {
		Symbol string `json:"symbol"`
		Price  string `json:"price"`
	}
	var apiErr apiError
	resp, err := b.client.R().
		SetContext(ctx).
		SetQueryParam("symbol", b.Pair(asset)).
		SetResult(&res).
		SetError(&apiErr).
		Get("/api/v3/ticker/price")
	if err != nil {
		return decimal.Zero, fmt.Errorf("price %s: %w", asset, err)
	}
	if resp.IsError() {
		return decimal.Zero, fmt.Errorf("price %s: http %d: %s (code %d)", asset, resp.StatusCode(), apiErr.Msg, apiErr.Code)
	}

	px, err := decimal.NewFromString(res.Price)
	if err != nil {
		return decimal.Zero, fmt.Errorf("price %s: %w", asset, err)
	}
	return px, nil
}

// kline layout: [openTime, open, high, low, close, volume, closeTime, ...]
func parseKline(row []any) (market.Candle, error) {
	if len(row) < 6 {
		return market.Candle{}, fmt.Errorf("short kline: %d fields", len(row))
	}
	ms, ok := row[0].(float64)
	if !ok {
		return market.Candle{}, fmt.Errorf("open time %v", row[0])
	}

	var vals [5]float64
	for i := range vals {
		s, ok := row[i+1].(string)
		if !ok {
			return market.Candle{}, fmt.Errorf("field %d: %v", i+1, row[i+1])
		}
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return market.Candle{}, fmt.Errorf("field %d: %w", i+1, err)
		}
		vals[i] = v
	}

	return market.Candle{
		Time:   time.UnixMilli(int64(ms)).UTC(),
		Open:   vals[0],
		High:   vals[1],
		Low:    vals[2],
		Close:  vals[3],
		Volume: vals[4],
	}, nil
}
