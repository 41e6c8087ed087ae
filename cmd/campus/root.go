package main

import (
	"github.com/spf13/cobra"

	"github.com/raj783e/campus/cmd/internal/app"
)

var (
	envFile     string
	addrFlag    string
	logLevel    string
	logFormat   string
	devInsecure bool

	cfg app.Config
	log app.Logger
)

func init() {
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "dotenv file loaded before reading CAMPUS_* variables")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "override CAMPUS_LOG_LEVEL (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "", "override CAMPUS_LOG_FORMAT (json, pretty)")
}

var rootCmd = &cobra.Command{
	Use:   "campus",
	Short: "Campus portal messaging server",
	Long: `Campus portal messaging server.

Without a subcommand, campus serves HTTP and the realtime WebSocket gateway.
Configuration comes from CAMPUS_* environment variables and an optional .env file.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := app.LoadDotEnv(envFile); err != nil {
			return err
		}
		cfg = app.LoadConfig()
		if logLevel != "" {
			cfg.LogLevel = logLevel
		}
		if logFormat != "" {
			cfg.LogFormat = logFormat
		}
		log = app.NewLogger(cfg.LogLevel, cfg.LogFormat)
		return nil
	},
	Args: cobra.NoArgs,
	RunE: runServe,
}
