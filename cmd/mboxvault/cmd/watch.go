package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"github.com/wesm/mboxvault/internal/importer"
	"github.com/wesm/mboxvault/internal/scheduler"
	"github.com/wesm/mboxvault/internal/store"
	"golang.org/x/sync/errgroup"
)

const watchJob = "import-all"

var (
	watchSchedule string
	watchNow      bool
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Run import-all on a schedule",
	Long: `Run import-all on a cron schedule until interrupted.

A run that is still going when the next tick fires is not started twice;
the tick is skipped. Configure in config.toml:
  [ingest]
  schedule = "*/15 * * * *"      # cron: minute hour day-of-month month day-of-week
  metrics_addr = "127.0.0.1:9101" # optional Prometheus endpoint

Descriptors such as @hourly and @daily are accepted too.

Use Ctrl+C to stop; the archive in progress is committed up to the last
message before exiting.`,
	Args: cobra.NoArgs,
	RunE: runWatch,
}

func runWatch(cmd *cobra.Command, args []string) error {
	schedule := cfg.Ingest.Schedule
	if watchSchedule != "" {
		schedule = watchSchedule
	}
	if err := scheduler.ValidateCronExpr(schedule); err != nil {
		return err
	}

	s, err := openStore()
	if err != nil {
		return err
	}
	defer s.Close()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	opts := pipelineOptions()
	opts.Metrics = importer.NewMetrics(reg)
	pipeline := importer.NewPipeline(opts)
	mboxDir, processedDir := archiveDirs()

	sched := scheduler.New(func(ctx context.Context, _ string) error {
		return runImportAll(ctx, pipeline, s, mboxDir, processedDir)
	}).WithLogger(logger)
	if err := sched.AddJob(watchJob, schedule); err != nil {
		return err
	}

	g, ctx := errgroup.WithContext(cmd.Context())

	var metricsSrv *http.Server
	if addr := cfg.Ingest.MetricsAddr; addr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
		metricsSrv = &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 10 * time.Second}
		g.Go(func() error {
			logger.Info("serving metrics", "addr", addr)
			if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("metrics server: %w", err)
			}
			return nil
		})
	}

	sched.Start()
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Watching %s (schedule %q)\n", mboxDir, schedule)
	for _, st := range sched.Status() {
		fmt.Fprintf(out, "  next run at %s\n", st.NextRun.Local().Format("2006-01-02 15:04:05"))
	}
	if watchNow {
		if err := sched.Trigger(watchJob); err != nil {
			logger.Warn("could not start initial run", "error", err)
		}
	}

	g.Go(func() error {
		<-ctx.Done()
		logger.Info("stopping watch")

		if metricsSrv != nil {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := metricsSrv.Shutdown(shutdownCtx); err != nil {
				logger.Error("metrics server shutdown error", "error", err)
			}
		}

		select {
		case <-sched.Stop().Done():
		case <-time.After(30 * time.Second):
			logger.Warn("timed out waiting for the running import to stop")
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		return err
	}
	return cmd.Context().Err()
}

// runImportAll is one scheduled import-all run. Archive failures are logged
// by the pipeline and do not fail the run.
func runImportAll(ctx context.Context, p *importer.Pipeline, s *store.Store, mboxDir, processedDir string) error {
	bs, err := p.ProcessAll(ctx, s, mboxDir, processedDir)
	if err != nil {
		return err
	}
	logger.Info("import-all completed",
		"moved", len(bs.Moved),
		"failed_archives", len(bs.Failed),
		"stored", bs.Succeeded,
		"failed_messages", bs.FailedMessages,
		"duration", bs.Duration.Round(time.Millisecond),
	)
	return nil
}

func init() {
	watchCmd.Flags().StringVar(&watchSchedule, "schedule", "", "cron expression (default from config)")
	watchCmd.Flags().StringVar(&importAllMboxDir, "mbox-dir", "", "directory to scan for archives (default from config)")
	watchCmd.Flags().StringVar(&importAllProcessedDir, "processed-dir", "", "directory to move completed archives into (default from config)")
	watchCmd.Flags().BoolVar(&watchNow, "now", false, "run once immediately, then follow the schedule")
	rootCmd.AddCommand(watchCmd)
}
