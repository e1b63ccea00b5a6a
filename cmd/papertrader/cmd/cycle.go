package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var cycleCmd = &cobra.Command{
	Use:   "cycle",
	Short: "Run a single cycle now and print what happened",
	Long: `Run exactly one cycle against live market data, persist it like the
loop would, and print the per-asset outcomes.

Example:
  papertrader cycle -c papertrader.yaml`,
	Args: cobra.NoArgs,
	RunE: runCycle,
}

func init() {
	rootCmd.AddCommand(cycleCmd)
}

func runCycle(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	log := newLogger(cfg)

	l, err := openLoop(cmd.Context(), cfg, log)
	if err != nil {
		return err
	}
	defer l.Close()

	res, err := l.sched.RunCycle(cmd.Context())
	fmt.Print(renderCycle(res))
	if err != nil {
		return fmt.Errorf("cycle %s: %w", res.CycleID, err)
	}
	return nil
}
