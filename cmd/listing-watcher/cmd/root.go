// Package cmd implements the CLI commands for listing-watcher.
package cmd

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/donaldgifford/listing-watcher/internal/config"
	"github.com/donaldgifford/listing-watcher/pkg/logger"
)

var rootCmd = &cobra.Command{
	Use:   "listing-watcher",
	Short: "Watch eBay searches and announce new and re-priced listings",
	Long: "listing-watcher polls the eBay Browse API for a fixed set of search queries,\n" +
		"remembers what it has seen and posts new listings and price changes\n" +
		"to a Discord webhook.",
	SilenceUsage: true,
}

func init() {
	cobra.OnInitialize(initViper)

	rootCmd.PersistentFlags().String("config", "config.yaml", "config file path")
	rootCmd.PersistentFlags().String("log-level", "", "override logging.level (debug, info, warn, error)")
	rootCmd.PersistentFlags().String("log-format", "", "override logging.format (text, json, color)")

	for _, name := range []string{"config", "log-level", "log-format"} {
		cobra.CheckErr(viper.BindPFlag(name, rootCmd.PersistentFlags().Lookup(name)))
	}

	rootCmd.AddCommand(
		runCommand(),
		searchCommand(),
		queriesCommand(),
		migrateCommand(),
		versionCommand(),
	)
}

func initViper() {
	viper.SetEnvPrefix("LW")
	viper.SetEnvKeyReplacer(envKeyReplacer)
	viper.AutomaticEnv()
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

// loadConfig reads the config file and applies flag or LW_* environment
// overrides for logging.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(viper.GetString("config"))
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	if lvl := viper.GetString("log-level"); lvl != "" {
		cfg.Logging.Level = lvl
	}
	if f := viper.GetString("log-format"); f != "" {
		cfg.Logging.Format = f
	}
	return cfg, nil
}

func newLogger(cfg *config.Config) *slog.Logger {
	l := logger.New(cfg.Logging.Level, cfg.Logging.Format)
	slog.SetDefault(l)
	return l
}
