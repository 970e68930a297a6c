package cmd

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/wesm/mboxvault/internal/importer"
)

var (
	importAllMboxDir      string
	importAllProcessedDir string
)

var importCmd = &cobra.Command{
	Use:   "import <file.mbox>",
	Short: "Ingest a single mbox archive",
	Long: `Ingest a single mbox archive into the database.

Every message is stored under its content hash, so importing the same
archive twice is harmless. Messages that cannot be parsed are logged and
skipped; the archive itself is left where it is.

Examples:
  mboxvault import ~/Downloads/Takeout/Mail/All\ mail\ Including\ Spam\ and\ Trash.mbox`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := openStore()
		if err != nil {
			return err
		}
		defer s.Close()

		opts := pipelineOptions()
		opts.Progress = NewCLIProgress(cmd.OutOrStdout())

		summary, err := importer.NewPipeline(opts).ProcessArchive(cmd.Context(), s, args[0])
		if err != nil {
			return err
		}
		printFailures(cmd, summary)
		return nil
	},
}

var importAllCmd = &cobra.Command{
	Use:   "import-all",
	Short: "Ingest every archive in the mbox directory",
	Long: `Ingest every archive in the mbox directory, in name order.

Archives that complete are moved to the processed directory, even when some
of their messages failed. An archive that cannot be read is reported and
left in place so it can be retried.

Directories default to <data_dir>/mbox and <data_dir>/processed and can be
set in config.toml:
  [ingest]
  mbox_dir = "~/Takeout/Mail"
  processed_dir = "~/Takeout/Done"`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := openStore()
		if err != nil {
			return err
		}
		defer s.Close()

		mboxDir, processedDir := archiveDirs()
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "Importing archives from %s\n", mboxDir)

		opts := pipelineOptions()
		opts.Progress = NewCLIProgress(out)

		bs, err := importer.NewPipeline(opts).ProcessAll(cmd.Context(), s, mboxDir, processedDir)
		if bs != nil {
			for _, sum := range bs.Archives {
				printFailures(cmd, sum)
			}
			fmt.Fprintf(out, "\n%d archives moved to %s, %d failed; %d messages stored, %d failed (%s)\n",
				len(bs.Moved), processedDir, len(bs.Failed), bs.Succeeded, bs.FailedMessages, formatDuration(bs.Duration))
		}
		if err != nil {
			return err
		}
		if len(bs.Failed) > 0 {
			return fmt.Errorf("%d archive(s) failed", len(bs.Failed))
		}
		return nil
	},
}

// archiveDirs resolves the import-all directories from flags, then config.
func archiveDirs() (mboxDir, processedDir string) {
	mboxDir, processedDir = cfg.MboxDir(), cfg.ProcessedDir()
	if importAllMboxDir != "" {
		mboxDir = importAllMboxDir
	}
	if importAllProcessedDir != "" {
		processedDir = importAllProcessedDir
	}
	return mboxDir, processedDir
}

// printFailures lists the first few per-message failures of an archive.
func printFailures(cmd *cobra.Command, s *importer.Summary) {
	const maxShown = 10
	if s == nil || len(s.Failures) == 0 {
		return
	}
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "  Failed messages in %s:\n", filepath.Base(s.Archive))
	for i, f := range s.Failures {
		if i == maxShown {
			fmt.Fprintf(out, "    ... and %d more\n", len(s.Failures)-maxShown)
			break
		}
		fmt.Fprintf(out, "    #%d: %v\n", f.Ordinal, f.Err)
	}
}

func init() {
	importAllCmd.Flags().StringVar(&importAllMboxDir, "mbox-dir", "", "directory to scan for archives (default from config)")
	importAllCmd.Flags().StringVar(&importAllProcessedDir, "processed-dir", "", "directory to move completed archives into (default from config)")
	rootCmd.AddCommand(importCmd)
	rootCmd.AddCommand(importAllCmd)
}
