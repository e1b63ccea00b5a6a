package decision

import (
	"fmt"
	"strings"
	"time"

	"github.com/rustyeddy/papertrader/portfolio"
	"github.com/rustyeddy/papertrader/snapshot"
	"github.com/shopspring/decimal"
)

// Contract holds the numbers quoted to the oracle in the system preamble.
type Contract struct {
	MaxRiskFraction float64
	MaxLeverage     int
	RecentBars      int
	// Notes is appended verbatim to the preamble when set.
	Notes string
}

const preamble = `You are a disciplined crypto futures trader managing a paper portfolio.
You must follow these rules on every asset, every time:
1. Never risk more than %.1f%% of current balance on a single trade. risk_usd is
   the loss if the stop is hit, computed as quantity * |entry - stop_loss| / leverage.
2. Every entry must carry a stop_loss and a profit_target on the correct side of
   the current price (long: stop below, target above; short: the reverse).
3. Prefer trend-following setups. Do not fight a clear EMA trend.
4. Write an exit plan: invalidation_condition states what would prove the trade wrong.
5. Leverage is a whole number between 1 and %d.
6. At most one position per asset. To change an open position, close it first.
Answer with JSON only.`

const schema = `Reply with one JSON object keyed by asset symbol. Each value is:
{
  "signal": "hold" | "entry" | "close",
  "side": "long" | "short",            (entry only)
  "quantity": number,                  (entry only)
  "profit_target": number,             (entry only)
  "stop_loss": number,                 (entry only)
  "leverage": integer,                 (entry only)
  "risk_usd": number,                  (entry only)
  "invalidation_condition": string,    (entry only)
  "confidence": number between 0 and 1,
  "justification": string,
  "reasoning": string                  (optional)
}`

// SystemPrompt renders the fixed risk contract.
func SystemPrompt(c Contract) string {
	s := fmt.Sprintf(preamble, c.MaxRiskFraction*100, c.MaxLeverage)
	if c.Notes != "" {
		s += "\n\n" + strings.TrimSpace(c.Notes)
	}
	return s
}

// BuildRequest describes the portfolio and every snapshot. Assets are listed
// in symbol order so identical inputs produce identical requests.
func BuildRequest(now time.Time, st portfolio.State, snaps map[string]snapshot.Snapshot, c Contract) Request {
	assets := snapshot.Assets(snaps)
	bars := c.RecentBars
	if bars <= 0 {
		bars = 10
	}
	prices := snapshot.Prices(snaps)
	unreal := st.Unrealized(prices)

	var b strings.Builder
	fmt.Fprintf(&b, "Time: %s\n", now.UTC().Format(time.RFC3339))
	fmt.Fprintf(&b, "Balance: %s USD\n", st.Balance.StringFixed(2))
	fmt.Fprintf(&b, "Free balance: %s USD\n", st.FreeBalance().StringFixed(2))
	fmt.Fprintf(&b, "Equity: %s USD\n", st.Balance.Add(unreal).StringFixed(2))
	fmt.Fprintf(&b, "Risk cap per trade: %s USD\n",
		st.Balance.Mul(decimal.NewFromFloat(c.MaxRiskFraction)).StringFixed(2))

	b.WriteString("\nOpen positions:\n")
	if len(st.Positions) == 0 {
		b.WriteString("  none\n")
	}
	for _, a := range st.Assets() {
		p := st.Positions[a]
		pnl := "n/a"
		if px, ok := prices[a]; ok {
			pnl = p.PnL(px).StringFixed(2)
		}
		fmt.Fprintf(&b, "  %s %s qty=%s entry=%s stop=%s target=%s lev=%dx unrealized=%s",
			a, p.Side, p.Quantity, p.EntryPrice, p.StopLoss, p.ProfitTarget, p.Leverage, pnl)
		if p.InvalidationCondition != "" {
			fmt.Fprintf(&b, " invalidation=%q", p.InvalidationCondition)
		}
		b.WriteString("\n")
	}

	for _, a := range assets {
		s := snaps[a]
		fmt.Fprintf(&b, "\n=== %s ===\n", a)
		fmt.Fprintf(&b, "price=%s trend=%s\n", s.Price, s.Trend())
		fmt.Fprintf(&b, "ema_fast=%.4f ema_slow=%.4f rsi=%.2f atr=%.4f\n", s.EMAFast, s.EMASlow, s.RSI, s.ATR)
		fmt.Fprintf(&b, "macd=%.4f signal=%.4f hist=%.4f\n", s.MACD.Line, s.MACD.Signal, s.MACD.Hist)
		fmt.Fprintf(&b, "recent closes: %s\n", joinFloats(s.Recent(bars)))
		if s.Position != nil {
			fmt.Fprintf(&b, "position: %s unrealized=%s\n", s.Position.Side, s.UnrealizedPnL.StringFixed(2))
		} else {
			b.WriteString("position: flat\n")
		}
	}

	b.WriteString("\n")
	b.WriteString(schema)
	fmt.Fprintf(&b, "\nAssets: %s\n", strings.Join(assets, ", "))

	return Request{
		Time:   now,
		System: SystemPrompt(c),
		User:   b.String(),
		Assets: assets,
	}
}

func joinFloats(xs []float64) string {
	parts := make([]string, len(xs))
	for i, x := range xs {
		parts[i] = fmt.Sprintf("%g", x)
	}
	return strings.Join(parts, ", ")
}
