package cmd

import (
	"fmt"
	"os"
	"strings"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"example.com/backstage/services/provenance/config"
)

var (
	cfgFile string
	cfg     config.Config
)

var rootCmd = &cobra.Command{
	Use:   "provenance-service",
	Short: "Append-only provenance ledger for products and certificates",
	Long: `A service that records product custody, quality checks and certificates
in a hash-chained ledger sealed by signed Merkle anchors.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return initConfig()
	},
	SilenceUsage: true,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./config/config.yaml, then ./app.env)")
}

func initConfig() error {
	if cfgFile != "" {
		config.SetConfigFile(cfgFile)
	}

	loaded, err := config.LoadConfig(".")
	if err != nil {
		return err
	}
	cfg = loaded

	setupLogging(cfg.Logging, cfg.Environment)
	return nil
}

func setupLogging(logging config.LoggingConfig, environment string) {
	level, err := zerolog.ParseLevel(strings.ToLower(logging.Level))
	if err != nil || logging.Level == "" {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnixMs

	if environment == "development" || logging.Format == "console" {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	}
}
