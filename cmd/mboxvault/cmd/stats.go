package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

var statsJSON bool

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show database statistics",
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := openStore()
		if err != nil {
			return err
		}
		defer s.Close()

		stats, err := s.GetStats()
		if err != nil {
			return fmt.Errorf("get stats: %w", err)
		}

		out := cmd.OutOrStdout()
		if statsJSON {
			enc := json.NewEncoder(out)
			enc.SetIndent("", "  ")
			return enc.Encode(stats)
		}

		fmt.Fprintf(out, "Database: %s\n", cfg.DatabasePath())
		fmt.Fprintf(out, "  Emails:            %d\n", stats.EmailCount)
		fmt.Fprintf(out, "  Labels:            %d\n", stats.LabelCount)
		fmt.Fprintf(out, "  Top-level labels:  %d\n", stats.TopLevelLabels)
		fmt.Fprintf(out, "  Label memberships: %d\n", stats.MembershipRows)
		fmt.Fprintf(out, "  Size:              %.2f MB\n", float64(stats.DatabaseSize)/(1024*1024))
		return nil
	},
}

func init() {
	statsCmd.Flags().BoolVar(&statsJSON, "json", false, "output as JSON")
	rootCmd.AddCommand(statsCmd)
}
