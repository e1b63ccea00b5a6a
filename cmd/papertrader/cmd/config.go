package cmd

import (
	"fmt"

	"github.com/rustyeddy/papertrader/config"
	"github.com/rustyeddy/papertrader/oracle"
	"github.com/spf13/cobra"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Generate or validate configuration files",
	Long: `Manage configuration files.

Subcommands:
  init     - Generate a default configuration file
  validate - Validate an existing configuration file

Secrets (API keys, webhook secrets, database DSNs) are read from the
environment or a .env file, never from the config file.

Examples:
  papertrader config init -o papertrader.yaml
  papertrader config validate -f papertrader.yaml`,
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Generate a default configuration file",
	RunE:  runConfigInit,
}

var configValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate a configuration file",
	RunE:  runConfigValidate,
}

var (
	configInitOutput   string
	configValidatePath string
)

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configValidateCmd)

	configInitCmd.Flags().StringVarP(&configInitOutput, "output", "o", "papertrader.yaml", "output config file path")
	configValidateCmd.Flags().StringVarP(&configValidatePath, "file", "f", "", "path to config file (required)")
	configValidateCmd.MarkFlagRequired("file")
}

func runConfigInit(cmd *cobra.Command, args []string) error {
	cfg := config.Default()
	if err := cfg.SaveToFile(configInitOutput); err != nil {
		return fmt.Errorf("save config: %w", err)
	}

	fmt.Printf("✓ Created default configuration: %s\n", configInitOutput)
	fmt.Println("\nSet DEEPSEEK_API_KEY (or OPENAI_API_KEY) and run with:")
	fmt.Printf("  papertrader run -c %s\n", configInitOutput)
	return nil
}

func runConfigValidate(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadFromFile(configValidatePath)
	if err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}

	fmt.Printf("✓ Configuration valid: %s\n", configValidatePath)
	fmt.Printf("  Account: %s USD, fee rate %.4f%%\n", cfg.Account.InitialBalance.StringFixed(2), cfg.Account.FeeRate*100)
	fmt.Printf("  Assets: %v every %s\n", cfg.Schedule.Assets, cfg.Schedule.Interval)
	fmt.Printf("  Risk: %.1f%% per trade, leverage up to %dx\n", cfg.Risk.MaxRiskFraction*100, cfg.Risk.MaxLeverage)
	fmt.Printf("  Oracle: %s %s\n", cfg.Oracle.Provider, cfg.Oracle.Model)
	fmt.Printf("  Journal: %s, state: %s\n", cfg.Journal.Type, cfg.Store.Type)
	if cfg.Oracle.Provider != oracle.ProviderHold && cfg.Oracle.APIKey == "" {
		fmt.Println("  warning: no API key in the environment for the oracle")
	}
	return nil
}
