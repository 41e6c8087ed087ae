package main

import (
	"github.com/spf13/cobra"

	"github.com/raj783e/campus/cmd/internal/app"
)

func init() {
	rootCmd.AddCommand(migrateCmd)
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create the document store schema",
	Long: `Create the document store schema, table, and indexes in CAMPUS_DATABASE_URL.

The statements are idempotent; running migrate twice is safe.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return app.Migrate(cmd.Context(), cfg, log)
	},
}
