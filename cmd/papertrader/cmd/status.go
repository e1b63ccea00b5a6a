package cmd

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rustyeddy/papertrader/exchange"
	"github.com/rustyeddy/papertrader/journal"
	"github.com/rustyeddy/papertrader/portfolio"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show balance, equity and open positions",
	Long: `Show the saved portfolio state and the latest equity sample.

With --live every open position is marked at the current exchange price.

Example:
  papertrader status --live`,
	Args: cobra.NoArgs,
	RunE: runStatus,
}

var statusLive bool

func init() {
	rootCmd.AddCommand(statusCmd)
	statusCmd.Flags().BoolVar(&statusLive, "live", false, "mark open positions at current prices")
}

func runStatus(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	log := newLogger(cfg)
	ctx := cmd.Context()

	st, err := openStores(ctx, cfg, log, false)
	if err != nil {
		return err
	}
	defer st.Close()

	state, err := st.state.Load(ctx)
	if errors.Is(err, portfolio.ErrEmpty) {
		state = portfolio.New(cfg.Account.InitialBalance)
	} else if err != nil {
		return fmt.Errorf("load state: %w", err)
	}

	var last *journal.EquitySample
	eq, err := st.journal.ListEquity(ctx, journal.Query{Limit: 1})
	if err != nil {
		return fmt.Errorf("read equity: %w", err)
	}
	if len(eq) > 0 {
		last = &eq[len(eq)-1]
	}

	prices := map[string]decimal.Decimal{}
	if statusLive && len(state.Positions) > 0 {
		ex := exchange.NewBinance(cfg.Exchange)
		for _, a := range state.Assets() {
			pctx, cancel := context.WithTimeout(ctx, 10*time.Second)
			px, err := ex.Price(pctx, a)
			cancel()
			if err != nil {
				log.WithError(err).WithField("asset", a).Warn("price unavailable")
				continue
			}
			prices[a] = px
		}
	}

	fmt.Print(renderStatus(state, last, prices))
	return nil
}
