package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/rustyeddy/papertrader/journal"
	"github.com/spf13/cobra"
)

var journalCmd = &cobra.Command{
	Use:   "journal",
	Short: "Query the trade ledger and the decision and message logs",
	Long: `Query journal records.

Subcommands:
  trades    - ledger rows (Org headings, an Org table, or JSON)
  trade     - one ledger row by ID
  decisions - per-asset decision log
  messages  - raw oracle exchanges

Examples:
  papertrader journal trades --asset SOL --since 2025-03-01
  papertrader journal decisions --cycle 01JN...
  papertrader journal messages --limit 1`,
}

var journalTradesCmd = &cobra.Command{
	Use:   "trades",
	Short: "List ledger rows",
	Args:  cobra.NoArgs,
	RunE:  runJournalTrades,
}

var journalTradeCmd = &cobra.Command{
	Use:   "trade <trade-id>",
	Short: "Show one ledger row",
	Args:  cobra.ExactArgs(1),
	RunE:  runJournalTrade,
}

var journalDecisionsCmd = &cobra.Command{
	Use:   "decisions",
	Short: "List decision-log rows",
	Args:  cobra.NoArgs,
	RunE:  runJournalDecisions,
}

var journalMessagesCmd = &cobra.Command{
	Use:   "messages",
	Short: "List oracle messages",
	Args:  cobra.NoArgs,
	RunE:  runJournalMessages,
}

var (
	jAsset  string
	jCycle  string
	jSince  string
	jUntil  string
	jLimit  int
	jFormat string
)

func init() {
	rootCmd.AddCommand(journalCmd)
	journalCmd.AddCommand(journalTradesCmd, journalTradeCmd, journalDecisionsCmd, journalMessagesCmd)

	pf := journalCmd.PersistentFlags()
	pf.StringVar(&jAsset, "asset", "", "only this asset")
	pf.StringVar(&jCycle, "cycle", "", "only this cycle ID")
	pf.StringVar(&jSince, "since", "", "start day (YYYY-MM-DD) or RFC3339 time")
	pf.StringVar(&jUntil, "until", "", "end day (YYYY-MM-DD, exclusive) or RFC3339 time")
	pf.IntVarP(&jLimit, "limit", "n", 0, "keep only the most recent N rows")
	pf.StringVarP(&jFormat, "format", "o", "table", "output: table, org or json")
}

func journalQuery() (journal.Query, error) {
	q := journal.Query{Asset: jAsset, CycleID: jCycle, Limit: jLimit}
	var err error
	if jSince != "" {
		if q.Start, err = parseWhen(jSince); err != nil {
			return q, fmt.Errorf("--since: %w", err)
		}
	}
	if jUntil != "" {
		if q.End, err = parseWhen(jUntil); err != nil {
			return q, fmt.Errorf("--until: %w", err)
		}
	}
	return q, nil
}

// parseWhen accepts a local calendar day or an RFC3339 timestamp.
func parseWhen(s string) (time.Time, error) {
	if t, err := time.ParseInLocation("2006-01-02", s, time.Local); err == nil {
		return t, nil
	}
	return time.Parse(time.RFC3339, s)
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func runJournalTrades(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	q, err := journalQuery()
	if err != nil {
		return err
	}
	st, err := openStores(cmd.Context(), cfg, newLogger(cfg), false)
	if err != nil {
		return err
	}
	defer st.Close()

	recs, err := st.journal.ListTrades(cmd.Context(), q)
	if err != nil {
		return fmt.Errorf("query trades: %w", err)
	}

	switch jFormat {
	case "json":
		return printJSON(recs)
	case "org":
		fmt.Println(journal.FormatTradesOrg(recs))
	default:
		fmt.Print(journal.FormatTradesTable(recs))
	}
	return nil
}

func runJournalTrade(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	st, err := openStores(cmd.Context(), cfg, newLogger(cfg), false)
	if err != nil {
		return err
	}
	defer st.Close()

	getter, ok := st.journal.(interface {
		GetTrade(ctx context.Context, id string) (journal.TradeRecord, error)
	})
	if !ok {
		return fmt.Errorf("journal %s cannot look up trades by ID", cfg.Journal.Type)
	}
	r, err := getter.GetTrade(cmd.Context(), args[0])
	if err != nil {
		return fmt.Errorf("get trade: %w", err)
	}
	if jFormat == "json" {
		return printJSON(r)
	}
	fmt.Println(journal.FormatTradeOrg(r))
	return nil
}

func runJournalDecisions(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	q, err := journalQuery()
	if err != nil {
		return err
	}
	st, err := openStores(cmd.Context(), cfg, newLogger(cfg), false)
	if err != nil {
		return err
	}
	defer st.Close()

	recs, err := st.journal.ListDecisions(cmd.Context(), q)
	if err != nil {
		return fmt.Errorf("query decisions: %w", err)
	}
	if jFormat == "json" {
		return printJSON(recs)
	}

	fmt.Println("| time | cycle | asset | signal | effective | outcome | kind | reason |")
	fmt.Println("|------+-------+-------+--------+-----------+---------+------+--------|")
	for _, d := range recs {
		fmt.Printf("| %s | %s | %s | %s | %s | %s | %s | %s |\n",
			d.Time.UTC().Format("2006-01-02 15:04"), d.CycleID, d.Asset, d.Signal,
			d.Effective, d.Outcome, d.Kind, d.Reason)
	}
	return nil
}

func runJournalMessages(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	q, err := journalQuery()
	if err != nil {
		return err
	}
	st, err := openStores(cmd.Context(), cfg, newLogger(cfg), false)
	if err != nil {
		return err
	}
	defer st.Close()

	recs, err := st.journal.ListMessages(cmd.Context(), q)
	if err != nil {
		return fmt.Errorf("query messages: %w", err)
	}
	if jFormat == "json" {
		return printJSON(recs)
	}

	for i, m := range recs {
		if i > 0 {
			fmt.Println()
		}
		fmt.Printf("** %s %s (%s, %s)\n", m.Time.UTC().Format(time.RFC3339), m.CycleID, m.Model, m.Latency.Round(time.Millisecond))
		if m.Error != "" {
			fmt.Printf("error: %s\n", m.Error)
		}
		fmt.Println("#+begin_src json")
		fmt.Println(m.Response)
		fmt.Println("#+end_src")
	}
	return nil
}
