package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"

	"github.com/kalambet/hrassist/internal/api"
	"github.com/kalambet/hrassist/internal/config"
	"github.com/kalambet/hrassist/internal/ingest"
	"github.com/kalambet/hrassist/internal/session"
	"github.com/kalambet/hrassist/internal/watch"
)

const sessionPruneInterval = 10 * time.Minute

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the hrassist server (foreground)",
	Long: `Start the HTTP API, the upload worker and, when enabled, the MCP
stdio server and the document directory watcher. Documents in
documents.dir are ingested at startup.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}
		if cmd.Flags().Changed("mcp") {
			cfg.Server.MCP, _ = cmd.Flags().GetBool("mcp")
		}
		if cmd.Flags().Changed("watch") {
			cfg.Documents.Watch, _ = cmd.Flags().GetBool("watch")
		}
		return runServer(cmd.Context(), cfg)
	},
}

var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the running hrassist server",
	RunE: func(cmd *cobra.Command, args []string) error {
		return stopServer()
	},
}

func init() {
	serveCmd.Flags().Bool("mcp", false, "also serve MCP over stdio")
	serveCmd.Flags().Bool("watch", false, "re-ingest documents when files in documents.dir change")
}

func pidFilePath(dataDir string) string {
	return filepath.Join(dataDir, "hrassist.pid")
}

func writePIDFile(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, []byte(strconv.Itoa(os.Getpid())), 0o644)
}

func readPIDFile(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	return strconv.Atoi(strings.TrimSpace(string(data)))
}

func removePIDFile(path string) {
	os.Remove(path)
}

func runServer(parent context.Context, cfg config.Config) error {
	fmt.Fprintf(os.Stderr, "hrassist version %s\n", version)
	setupLogging(cfg.Log.Level, os.Stderr)

	pidPath := pidFilePath(cfg.Storage.DataDir)
	healthURL := fmt.Sprintf("http://127.0.0.1:%d/health", cfg.Server.Port)
	healthClient := &http.Client{Timeout: 2 * time.Second}
	if resp, err := healthClient.Get(healthURL); err == nil {
		resp.Body.Close()
		if pid, pidErr := readPIDFile(pidPath); pidErr == nil {
			printWarning("hrassist is already running (PID %d)", pid)
			return fmt.Errorf("server already running (PID %d)", pid)
		}
		printWarning("hrassist is already running on port %d", cfg.Server.Port)
		return fmt.Errorf("server already running on port %d", cfg.Server.Port)
	}
	if err := writePIDFile(pidPath); err != nil {
		return fmt.Errorf("writing PID file: %w", err)
	}
	defer removePIDFile(pidPath)

	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, cfg, os.Stderr)
	if err != nil {
		return err
	}
	defer a.Close()

	if dir := cfg.Documents.Dir; dir != "" {
		if _, err := os.Stat(dir); err == nil {
			printStep("Ingesting documents from %s", dir)
			rep, err := a.ingestDir(ctx, dir)
			if err != nil {
				slog.Warn("startup ingestion failed", "dir", dir, "error", err)
			} else {
				slog.Info("startup ingestion finished", "documents", len(rep.Results), "succeeded", rep.Succeeded())
			}
		} else {
			slog.Warn("document directory not found, starting with an empty knowledge base", "dir", dir)
		}
	}

	// Runs before a.Close so no background loop touches closed storage.
	bg := startBackground(ctx, cfg, a.store, a.pipeline, a.orch.Sessions())
	defer func() {
		stop()
		bg.Wait()
	}()

	if cfg.Server.MCP {
		mcpSrv := api.NewMCPServer(api.MCPDeps{
			Assistant: a.orch,
			Searcher:  a.builder,
			Jobs:      a.store,
			Documents: a.store,
		})
		stdioSrv := server.NewStdioServer(mcpSrv)
		bg.Go(func() {
			if err := stdioSrv.Listen(ctx, os.Stdin, os.Stdout); err != nil && !errors.Is(err, context.Canceled) {
				slog.Error("MCP stdio server error", "error", err)
			}
		})
		slog.Info("MCP server started (stdio transport)")
	}

	handler := api.NewHandler(api.Deps{
		Assistant: a.orch,
		Jobs:      a.store,
		Documents: a.store,
		Remover:   a.pipeline,
	})

	addr := fmt.Sprintf("127.0.0.1:%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:    addr,
		Handler: handler,
		BaseContext: func(_ net.Listener) context.Context {
			return ctx
		},
	}

	errCh := make(chan error, 1)
	go func() {
		fmt.Fprintf(os.Stderr, "hrassist listening on %s\n", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		fmt.Fprintln(os.Stderr, "shutting down...")
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// startBackground starts the upload worker, the optional directory watcher
// and session pruning. They stop when ctx is done; the returned WaitGroup
// waits for them.
func startBackground(ctx context.Context, cfg config.Config, jobs ingest.JobStore, pipeline *ingest.Pipeline, sessions *session.Store) *sync.WaitGroup {
	var wg sync.WaitGroup

	worker := ingest.NewWorker(jobs, pipeline, 500*time.Millisecond)
	wg.Go(func() { worker.Run(ctx) })

	if cfg.Documents.Watch && cfg.Documents.Dir != "" {
		w := watch.New(cfg.Documents.Dir, pipeline)
		wg.Go(func() {
			if err := w.Run(ctx); err != nil {
				slog.Error("document watcher stopped", "error", err)
			}
		})
		slog.Info("watching document directory", "dir", cfg.Documents.Dir)
	}

	wg.Go(func() { pruneSessions(ctx, sessions, cfg.Agent.SessionIdle) })
	return &wg
}

func pruneSessions(ctx context.Context, sessions *session.Store, maxIdle time.Duration) {
	ticker := time.NewTicker(sessionPruneInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := sessions.Prune(maxIdle); n > 0 {
				slog.Info("pruned idle sessions", "count", n)
			}
		}
	}
}

func stopServer() error {
	cfg, err := config.Load()
	if err != nil {
		printError("could not load config: %v", err)
		return err
	}

	pidPath := pidFilePath(cfg.Storage.DataDir)
	pid, err := readPIDFile(pidPath)
	if err != nil {
		printError("hrassist is not running (no PID file)")
		return fmt.Errorf("not running: %w", err)
	}

	process, err := os.FindProcess(pid)
	if err != nil {
		printError("could not find process %d", pid)
		return err
	}

	if err := process.Signal(syscall.SIGTERM); err != nil {
		printError("could not stop hrassist (PID %d): %v", pid, err)
		removePIDFile(pidPath)
		return err
	}

	printSuccess("Sent stop signal to hrassist (PID %d)", pid)
	return nil
}
