package cmd

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/rustyeddy/papertrader/dashboard"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the read-only dashboard API without trading",
	Long: `Serve the dashboard JSON endpoints over the configured journal and state
store. Useful for inspecting a loop that runs elsewhere, or a finished one.

Example:
  papertrader serve --addr 0.0.0.0:8089`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

var serveAddr string

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "listen address (default dashboard.addr)")
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	log := newLogger(cfg)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, err := openStores(ctx, cfg, log, false)
	if err != nil {
		return err
	}
	defer st.Close()

	addr := cfg.Dashboard.Addr
	if serveAddr != "" {
		addr = serveAddr
	}
	srv := dashboard.NewServer(st.journal, st.state, cfg.Metrics, nil, log.WithField("component", "dashboard"))
	return srv.ListenAndServe(ctx, addr)
}
