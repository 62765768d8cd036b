package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/kalambet/hrassist/internal/config"
	"github.com/kalambet/hrassist/internal/hrmock"
)

var mockHRCmd = &cobra.Command{
	Use:   "mock-hr",
	Short: "Run the mock HR data service",
	Long: `Run a mock HR service with leave, profile and payslip data for
EMP001 and EMP002 on hr.port. Point hr.base_url at it to try the
assistant without a real HR system.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}
		port := cfg.HR.Port
		if cmd.Flags().Changed("port") {
			port, _ = cmd.Flags().GetInt("port")
		}
		setupLogging(cfg.Log.Level, os.Stderr)
		return runMockHR(cmd.Context(), port)
	},
}

func init() {
	mockHRCmd.Flags().Int("port", 0, "listen port (default hr.port)")
}

func runMockHR(ctx context.Context, port int) error {
	addr := fmt.Sprintf("127.0.0.1:%d", port)
	srv := &http.Server{
		Addr:    addr,
		Handler: hrmock.New(hrmock.DefaultDataset()).Handler(),
	}

	errCh := make(chan error, 1)
	go func() {
		fmt.Fprintf(os.Stderr, "mock HR service listening on %s\n", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("mock HR service: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
