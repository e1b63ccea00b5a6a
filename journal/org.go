package journal

import (
	"fmt"
	"strings"
	"time"
)

// FormatTradeOrg renders a ledger row as an Org-mode heading with the
// structured facts in a PROPERTIES drawer.
func FormatTradeOrg(t TradeRecord) string {
	heading := fmt.Sprintf("** %s %s %s (%s)", t.Action, t.Asset, t.Side, shortID(t.ID))

	var b strings.Builder
	b.WriteString(heading)
	b.WriteString("\n")
	b.WriteString(":PROPERTIES:\n")
	fmt.Fprintf(&b, ":ID: %s\n", t.ID)
	fmt.Fprintf(&b, ":CYCLE: %s\n", t.CycleID)
	fmt.Fprintf(&b, ":TIME: %s\n", t.Time.UTC().Format(time.RFC3339))
	fmt.Fprintf(&b, ":ASSET: %s\n", t.Asset)
	fmt.Fprintf(&b, ":ACTION: %s\n", t.Action)
	fmt.Fprintf(&b, ":SIDE: %s\n", t.Side)
	fmt.Fprintf(&b, ":QUANTITY: %s\n", t.Quantity)
	fmt.Fprintf(&b, ":PRICE: %s\n", t.Price)
	if t.Action == ActionEntry {
		fmt.Fprintf(&b, ":STOP_LOSS: %s\n", t.StopLoss)
		fmt.Fprintf(&b, ":PROFIT_TARGET: %s\n", t.ProfitTarget)
		fmt.Fprintf(&b, ":LEVERAGE: %d\n", t.Leverage)
		fmt.Fprintf(&b, ":RISK_USD: %s\n", t.RiskUSD.StringFixed(2))
		fmt.Fprintf(&b, ":CONFIDENCE: %.2f\n", t.Confidence)
		if t.Invalidation != "" {
			fmt.Fprintf(&b, ":INVALIDATION: %s\n", t.Invalidation)
		}
	}
	if t.RealizedPnL.Valid {
		fmt.Fprintf(&b, ":REALIZED_PNL: %s\n", t.RealizedPnL.Decimal.StringFixed(2))
	}
	if t.Fees.Valid {
		fmt.Fprintf(&b, ":FEES: %s\n", t.Fees.Decimal.StringFixed(2))
	}
	fmt.Fprintf(&b, ":BALANCE_AFTER: %s\n", t.BalanceAfter.StringFixed(2))
	b.WriteString(":END:\n")
	if t.Reason != "" {
		b.WriteString("\n")
		b.WriteString(t.Reason)
		b.WriteString("\n")
	}

	return b.String()
}

// FormatTradesOrg renders multiple trades separated by blank lines.
func FormatTradesOrg(trades []TradeRecord) string {
	var b strings.Builder
	for i, t := range trades {
		if i > 0 {
			b.WriteString("\n")
		}
		b.WriteString(FormatTradeOrg(t))
	}
	return b.String()
}

// FormatTradesTable renders trades as one Org table, a row per ledger line.
func FormatTradesTable(trades []TradeRecord) string {
	var b strings.Builder
	b.WriteString("| time | asset | action | side | qty | price | pnl | fees | balance |\n")
	b.WriteString("|------+-------+--------+------+-----+-------+-----+------+---------|\n")
	for _, t := range trades {
		pnl, fees := "", ""
		if t.RealizedPnL.Valid {
			pnl = t.RealizedPnL.Decimal.StringFixed(2)
		}
		if t.Fees.Valid {
			fees = t.Fees.Decimal.StringFixed(2)
		}
		fmt.Fprintf(&b, "| %s | %s | %s | %s | %s | %s | %s | %s | %s |\n",
			t.Time.UTC().Format("2006-01-02 15:04"), t.Asset, t.Action, t.Side,
			t.Quantity, t.Price, pnl, fees, t.BalanceAfter.StringFixed(2))
	}
	return b.String()
}

func shortID(full string) string {
	if len(full) <= 8 {
		return full
	}
	return full[len(full)-8:]
}
