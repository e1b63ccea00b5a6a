package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rustyeddy/papertrader/dashboard"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the trading loop until interrupted",
	Long: `Run one cycle at every interval boundary until SIGINT or SIGTERM.

On start the portfolio is restored from the state store and checked against
the trade ledger. A cycle in progress when the signal arrives is completed
before exiting.

Example:
  papertrader run -c papertrader.yaml`,
	RunE: runRun,
}

var runNow bool

func init() {
	rootCmd.AddCommand(runCmd)
	runCmd.Flags().BoolVar(&runNow, "now", false, "run one cycle immediately before waiting for the first boundary")
}

func runRun(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	log := newLogger(cfg)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	l, err := openLoop(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer l.Close()

	if runNow {
		if _, err := l.sched.RunCycle(ctx); err != nil {
			log.WithError(err).Error("first cycle failed")
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	if cfg.Dashboard.Enabled {
		srv := dashboard.NewServer(l.journal, l.state, cfg.Metrics, l.hub, log.WithField("component", "dashboard"))
		g.Go(func() error {
			if err := srv.ListenAndServe(gctx, cfg.Dashboard.Addr); err != nil {
				return fmt.Errorf("dashboard: %w", err)
			}
			return nil
		})
	}
	g.Go(func() error {
		err := l.sched.Run(gctx)
		// stop the dashboard with the loop
		stop()
		return err
	})
	if err := g.Wait(); err != nil && err != context.Canceled {
		return err
	}
	return nil
}
