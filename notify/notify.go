// Package notify delivers the per-cycle summary to chat webhooks. Delivery
// is best effort: callers log the error and carry on.
package notify

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rustyeddy/papertrader/journal"
	"github.com/shopspring/decimal"
)

type Notifier interface {
	Notify(ctx context.Context, title, body string) error
	Name() string
}

type Config struct {
	DingTalkWebhook string        `json:"dingtalk_webhook,omitempty" yaml:"dingtalk_webhook,omitempty"`
	DingTalkSecret  string        `json:"-" yaml:"-"`
	DiscordWebhook  string        `json:"-" yaml:"-"`
	Timeout         time.Duration `json:"timeout" yaml:"timeout"`
	// MinInterval spaces messages to one channel; extra messages are dropped.
	MinInterval time.Duration `json:"min_interval" yaml:"min_interval"`
	// OnlyOnTrades skips cycles where nothing opened or closed.
	OnlyOnTrades bool `json:"only_on_trades" yaml:"only_on_trades"`
}

func DefaultConfig() Config {
	return Config{Timeout: 8 * time.Second, MinInterval: 3 * time.Second}
}

// FromConfig returns every channel the config enables, possibly none.
func FromConfig(cfg Config) *Multi {
	m := &Multi{}
	if cfg.DingTalkWebhook != "" {
		m.Add(NewDingTalk(cfg.DingTalkWebhook, cfg.DingTalkSecret, cfg.Timeout, cfg.MinInterval))
	}
	if cfg.DiscordWebhook != "" {
		m.Add(NewDiscord(cfg.DiscordWebhook, cfg.Timeout, cfg.MinInterval))
	}
	return m
}

// Multi sends to every channel and joins their errors.
type Multi struct {
	channels []Notifier
}

func (m *Multi) Add(n Notifier) { m.channels = append(m.channels, n) }

func (m *Multi) Len() int { return len(m.channels) }

func (m *Multi) Name() string {
	names := make([]string, len(m.channels))
	for i, n := range m.channels {
		names[i] = n.Name()
	}
	return strings.Join(names, ",")
}

func (m *Multi) Notify(ctx context.Context, title, body string) error {
	var all []error
	for _, n := range m.channels {
		if err := n.Notify(ctx, title, body); err != nil {
			all = append(all, fmt.Errorf("%s: %w", n.Name(), err))
		}
	}
	return errors.Join(all...)
}

// Report is what a cycle tells the channels.
type Report struct {
	CycleID   string
	Time      time.Time
	Trades    []journal.TradeRecord
	Warnings  []string
	Balance   decimal.Decimal
	Equity    decimal.Decimal
	ReturnPct float64
	Open      []string
}

func (r Report) Title() string {
	return fmt.Sprintf("papertrader %s", r.Time.UTC().Format("2006-01-02 15:04"))
}

// Body renders the report as plain text, one line per event.
func (r Report) Body() string {
	var b strings.Builder
	fmt.Fprintf(&b, "cycle %s\n", r.CycleID)
	fmt.Fprintf(&b, "balance %s  equity %s  return %+.2f%%\n",
		r.Balance.StringFixed(2), r.Equity.StringFixed(2), r.ReturnPct)
	if len(r.Open) > 0 {
		fmt.Fprintf(&b, "open: %s\n", strings.Join(r.Open, ", "))
	}
	for _, t := range r.Trades {
		if t.Action.Closing() {
			fmt.Fprintf(&b, "%s %s %s %s @ %s net %s\n",
				t.Action, t.Asset, t.Side, t.Quantity, t.Price, t.Net().StringFixed(2))
			continue
		}
		fmt.Fprintf(&b, "%s %s %s %s @ %s sl %s tp %s %dx\n",
			t.Action, t.Asset, t.Side, t.Quantity, t.Price, t.StopLoss, t.ProfitTarget, t.Leverage)
	}
	for _, w := range r.Warnings {
		fmt.Fprintf(&b, "warn: %s\n", w)
	}
	return strings.TrimRight(b.String(), "\n")
}
