package cmd

import (
	"fmt"

	"github.com/rustyeddy/papertrader/journal"
	"github.com/rustyeddy/papertrader/metrics"
	"github.com/spf13/cobra"
)

var metricsCmd = &cobra.Command{
	Use:   "metrics",
	Short: "Summarize performance from the equity curve and the ledger",
	Long: `Compute net return, max drawdown, Sharpe, Sortino, win rate and the
comparison against holding the benchmark asset over the selected window.

Examples:
  papertrader metrics
  papertrader metrics --since 2025-03-01 --completed
  papertrader metrics -o json`,
	Args: cobra.NoArgs,
	RunE: runMetrics,
}

var (
	mSince, mUntil, mFormat string
	mCompleted              bool
)

func init() {
	rootCmd.AddCommand(metricsCmd)
	metricsCmd.Flags().StringVar(&mSince, "since", "", "start day (YYYY-MM-DD) or RFC3339 time")
	metricsCmd.Flags().StringVar(&mUntil, "until", "", "end day (YYYY-MM-DD, exclusive) or RFC3339 time")
	metricsCmd.Flags().StringVarP(&mFormat, "format", "o", "text", "output: text or json")
	metricsCmd.Flags().BoolVar(&mCompleted, "completed", false, "also list completed trades")
}

func runMetrics(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	var q journal.Query
	if mSince != "" {
		if q.Start, err = parseWhen(mSince); err != nil {
			return fmt.Errorf("--since: %w", err)
		}
	}
	if mUntil != "" {
		if q.End, err = parseWhen(mUntil); err != nil {
			return fmt.Errorf("--until: %w", err)
		}
	}

	st, err := openStores(cmd.Context(), cfg, newLogger(cfg), false)
	if err != nil {
		return err
	}
	defer st.Close()

	eq, err := st.journal.ListEquity(cmd.Context(), q)
	if err != nil {
		return fmt.Errorf("read equity: %w", err)
	}
	trades, err := st.journal.ListTrades(cmd.Context(), q)
	if err != nil {
		return fmt.Errorf("read trades: %w", err)
	}

	sum := metrics.Summarize(eq, trades, cfg.Metrics)
	var completed []metrics.CompletedTrade
	if mCompleted {
		completed = metrics.Pair(trades)
	}

	if mFormat == "json" {
		out := map[string]any{"summary": sum}
		if mCompleted {
			out["completed"] = completed
		}
		return printJSON(out)
	}

	fmt.Print(renderSummary(sum))
	if mCompleted {
		fmt.Print(formatCompleted(completed))
	}
	return nil
}

func formatCompleted(cs []metrics.CompletedTrade) string {
	out := "| asset | side | entry | exit | entry px | exit px | net | held | exit |\n"
	out += "|-------+------+-------+------+----------+---------+-----+------+------|\n"
	for _, c := range cs {
		entry, exit := "", metrics.OpenPosition
		if c.EntryTime != nil {
			entry = c.EntryTime.UTC().Format("01-02 15:04")
		}
		if c.ExitTime != nil {
			exit = c.ExitTime.UTC().Format("01-02 15:04")
		}
		epx, xpx, net := "", "", ""
		if c.EntryPrice.Valid {
			epx = c.EntryPrice.Decimal.String()
		}
		if c.ExitPrice.Valid {
			xpx = c.ExitPrice.Decimal.String()
		}
		if c.PnL.Valid {
			net = c.PnL.Decimal.StringFixed(2)
		}
		out += fmt.Sprintf("| %s | %s | %s | %s | %s | %s | %s | %s | %s |\n",
			c.Asset, c.Side, entry, exit, epx, xpx, net, c.Duration, c.ExitAction)
	}
	return out
}
