package cmd

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/rustyeddy/papertrader/config"
	"github.com/rustyeddy/papertrader/internal/logx"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "papertrader",
	Short: "LLM-driven paper trading loop for crypto perpetuals",
	Long: `papertrader runs a paper-trading loop: every interval it builds an
indicator snapshot per asset, asks a language model for one decision per asset,
validates each decision against the risk contract, simulates the fills and
journals everything.

No real orders are ever sent.`,
	SilenceUsage: true,
}

var (
	configPath string
	logLevel   string
)

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "papertrader.yaml", "config file (YAML or JSON)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "override log.level")
}

// loadConfig reads the config file. A missing file is only an error when
// --config was given explicitly; otherwise defaults apply.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.LoadFromFile(configPath)
	if errors.Is(err, fs.ErrNotExist) && !cmd.Flags().Changed("config") {
		cfg = config.Default()
		cfg.ApplyEnv()
		err = cfg.Validate()
	}
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if logLevel != "" {
		cfg.Log.Level = logLevel
	}
	return cfg, nil
}

func newLogger(cfg *config.Config) *logrus.Entry {
	return logrus.NewEntry(logx.New(cfg.Log, os.Stderr))
}
