package cmd

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/rustyeddy/papertrader/errs"
	"github.com/rustyeddy/papertrader/journal"
	"github.com/rustyeddy/papertrader/metrics"
	"github.com/rustyeddy/papertrader/portfolio"
	"github.com/rustyeddy/papertrader/scheduler"
	"github.com/shopspring/decimal"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#7C3AED")).
			Background(lipgloss.Color("#1F2937")).
			Padding(0, 1).
			MarginBottom(1)

	boxStyle = lipgloss.NewStyle().
			BorderStyle(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("#3B82F6")).
			Padding(0, 2).
			Width(78)

	labelStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#6B7280")).Width(16)
	gainStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#10B981")).Bold(true)
	lossStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#EF4444")).Bold(true)
	warnStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#F59E0B"))
	dimStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#6B7280"))
)

func row(label, value string) string {
	return labelStyle.Render(label) + value
}

func signed(d decimal.Decimal) string {
	s := d.StringFixed(2)
	switch {
	case d.IsPositive():
		return gainStyle.Render("+" + s)
	case d.IsNegative():
		return lossStyle.Render(s)
	}
	return s
}

func pct(r metrics.Ratio) string {
	if !r.Valid() {
		return dimStyle.Render(r.String())
	}
	s := fmt.Sprintf("%+.2f%%", float64(r))
	if r < 0 {
		return lossStyle.Render(s)
	}
	return gainStyle.Render(s)
}

// renderStatus draws the portfolio, marked at prices when given.
func renderStatus(st portfolio.State, last *journal.EquitySample, prices map[string]decimal.Decimal) string {
	var b strings.Builder
	b.WriteString(titleStyle.Render("papertrader status"))
	b.WriteString("\n")

	unreal := st.Unrealized(prices)
	acct := []string{
		row("Balance", st.Balance.StringFixed(2)),
		row("Free balance", st.FreeBalance().StringFixed(2)),
		row("Used margin", st.UsedMargin().StringFixed(2)),
		row("Unrealized", signed(unreal)),
		row("Equity", st.Balance.Add(unreal).StringFixed(2)),
		row("Version", fmt.Sprintf("%d", st.Version)),
	}
	if !st.UpdatedAt.IsZero() {
		acct = append(acct, row("Updated", st.UpdatedAt.UTC().Format("2006-01-02 15:04:05Z")))
	}
	if last != nil {
		acct = append(acct, row("Last cycle", fmt.Sprintf("%s  return %+.2f%%", last.CycleID, last.ReturnPct)))
	}
	b.WriteString(boxStyle.Render(strings.Join(acct, "\n")))
	b.WriteString("\n")

	if len(st.Positions) == 0 {
		b.WriteString(dimStyle.Render("no open positions"))
		b.WriteString("\n")
		return b.String()
	}

	var lines []string
	for _, a := range st.Assets() {
		p := st.Positions[a]
		pnl := dimStyle.Render("n/a")
		if px, ok := prices[a]; ok {
			pnl = signed(p.PnL(px))
		}
		lines = append(lines, fmt.Sprintf("%-5s %-5s qty %-10s entry %-10s sl %-10s tp %-10s %2dx  %s",
			a, p.Side, p.Quantity, p.EntryPrice, p.StopLoss, p.ProfitTarget, p.Leverage, pnl))
		if p.InvalidationCondition != "" {
			lines = append(lines, dimStyle.Render("      invalid if: "+p.InvalidationCondition))
		}
	}
	b.WriteString(boxStyle.Render(strings.Join(lines, "\n")))
	b.WriteString("\n")
	return b.String()
}

func renderCycle(res scheduler.Result) string {
	var b strings.Builder
	b.WriteString(titleStyle.Render("cycle " + res.CycleID))
	b.WriteString("\n")

	var lines []string
	for _, t := range res.Triggered {
		lines = append(lines, fmt.Sprintf("%-5s %-12s @ %s net %s", t.Asset, t.Action, t.Price, signed(t.Net())))
	}
	for _, o := range res.Outcomes {
		line := fmt.Sprintf("%-5s %-6s -> %-8s", o.Asset, o.Signal, o.Result)
		if o.Trade != nil {
			line += fmt.Sprintf(" @ %s", o.Trade.Price)
			if o.Trade.Action.Closing() {
				line += " net " + signed(o.Trade.Net())
			}
		}
		if o.Err != nil {
			line += "  " + warnStyle.Render(fmt.Sprintf("[%s] %v", errs.KindOf(o.Err), o.Err))
		}
		lines = append(lines, line)
	}
	if len(lines) > 0 {
		b.WriteString(boxStyle.Render(strings.Join(lines, "\n")))
		b.WriteString("\n")
	}

	s := res.Sample
	b.WriteString(row("Balance", s.Balance.StringFixed(2)))
	b.WriteString("\n")
	b.WriteString(row("Equity", fmt.Sprintf("%s (%+.2f%%)", s.Equity.StringFixed(2), s.ReturnPct)))
	b.WriteString("\n")
	for _, w := range res.Warnings {
		b.WriteString(warnStyle.Render("warn: " + w))
		b.WriteString("\n")
	}
	return b.String()
}

func renderSummary(s metrics.Summary) string {
	var b strings.Builder
	b.WriteString(titleStyle.Render("performance"))
	b.WriteString("\n")

	lines := []string{
		row("Window", fmt.Sprintf("%s to %s (%.1fh, %d samples)",
			s.Start.UTC().Format("2006-01-02 15:04"), s.End.UTC().Format("2006-01-02 15:04"), s.RuntimeHours, s.Samples)),
		row("Equity", fmt.Sprintf("%s -> %s", s.StartEquity, s.EndEquity)),
		row("Net return", pct(s.NetReturnPct)),
		row("Max drawdown", pct(s.MaxDrawdown)),
		row("Sharpe", s.Sharpe.String()),
		row("Sortino", s.Sortino.String()),
		row("Trades", fmt.Sprintf("%d total, %d closed, %d open", s.TotalTrades, s.ClosedTrades, s.OpenTrades)),
		row("Win rate", s.WinRatePct.String()),
		row("Realized net", s.RealizedNet.String()),
	}
	if s.Benchmark != "" {
		lines = append(lines,
			row("HODL "+s.Benchmark, fmt.Sprintf("%s (%s)", s.HODLEquity, pct(s.HODLReturnPct))),
			row("Alpha", pct(s.Alpha)),
		)
	}
	b.WriteString(boxStyle.Render(strings.Join(lines, "\n")))
	b.WriteString("\n")
	return b.String()
}
