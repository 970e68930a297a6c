package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"github.com/wesm/mboxvault/internal/api"
	"golang.org/x/sync/errgroup"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the archive over a JSON API",
	Long: `Serve the archive over a read/delete JSON API until interrupted.

Endpoints:
  GET    /health
  GET    /metrics
  GET    /api/v1/stats
  GET    /api/v1/labels             top-level labels
  GET    /api/v1/labels/<path>      children, descendants and emails of a label
  GET    /api/v1/emails/<id>        one email (?render=html escapes plain text)
  DELETE /api/v1/emails/<id>
  GET    /api/v1/search?q=...       search subject, sender and content

Configure in config.toml:
  [server]
  api_port = 8080
  bind_addr = "127.0.0.1"
  api_key = "..."   # required for non-loopback bind addresses

Use Ctrl+C to stop the server gracefully.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	// Validate security posture before doing any work
	if err := cfg.Server.ValidateSecure(); err != nil {
		return err
	}

	s, err := openStore()
	if err != nil {
		return err
	}
	defer s.Close()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector())
	apiServer := api.NewServer(cfg, s, reg, logger)

	g, ctx := errgroup.WithContext(cmd.Context())
	g.Go(func() error {
		if err := apiServer.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("api server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return apiServer.Shutdown(shutdownCtx)
	})

	fmt.Fprintf(cmd.OutOrStdout(), "Serving %s on http://%s\nPress Ctrl+C to stop.\n", cfg.DatabasePath(), apiServer.Addr())

	if err := g.Wait(); err != nil {
		return err
	}
	return cmd.Context().Err()
}
