package main

import (
	"github.com/spf13/cobra"

	"github.com/raj783e/campus/cmd/internal/app"
)

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringVar(&addrFlag, "addr", "", "override CAMPUS_HTTP_ADDR")
	serveCmd.Flags().BoolVar(&devInsecure, "dev-insecure", false, "trust claimed user ids in hello (never in production)")
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve HTTP and the realtime gateway",
	Args:  cobra.NoArgs,
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, _ []string) error {
	if addrFlag != "" {
		cfg.HTTPAddr = addrFlag
	}
	if devInsecure {
		cfg.AuthDevInsecure = true
	}
	return app.Run(cmd.Context(), cfg, log)
}
