package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var initDBCmd = &cobra.Command{
	Use:   "init-db",
	Short: "Initialize the database schema",
	Long: `Initialize the mboxvault database with the required schema.

This command creates the emails and labels tables and their indexes. It is
safe to run multiple times - migrations that have already been applied are
skipped.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		dbPath := cfg.DatabasePath()
		logger.Info("initializing database", "path", dbPath)

		s, err := openStore()
		if err != nil {
			return err
		}
		defer s.Close()

		version, err := s.Migrate(cmd.Context())
		if err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
		logger.Info("database initialized successfully", "schema_version", version)

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "Database: %s\n", dbPath)
		fmt.Fprintf(out, "  Schema version: %d\n", version)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(initDBCmd)
}
