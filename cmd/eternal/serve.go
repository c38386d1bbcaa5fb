package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/mark3labs/mcp-go/server"
	"github.com/robfig/cron/v3"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/Abhay-404/Eternal-Memory/internal/api"
	"github.com/Abhay-404/Eternal-Memory/internal/config"
	"github.com/Abhay-404/Eternal-Memory/internal/dropfolder"
	"github.com/Abhay-404/Eternal-Memory/internal/storage"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the memory API and run the nightly schedule (foreground)",
	RunE: func(cmd *cobra.Command, args []string) error {
		stdio, _ := cmd.Flags().GetBool("mcp-stdio")
		watch, _ := cmd.Flags().GetBool("watch")
		return runServer(stdio, watch)
	},
}

var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the running eternal server",
	RunE: func(cmd *cobra.Command, args []string) error {
		return stopServer()
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show memory and server status",
	RunE: func(cmd *cobra.Command, args []string) error {
		return showStatus()
	},
}

func init() {
	serveCmd.Flags().Bool("mcp-stdio", true, "serve MCP over stdin/stdout")
	serveCmd.Flags().Bool("watch", true, "consolidate when files land in the drop folder")
}

func pidFilePath(dataDir string) string {
	return filepath.Join(dataDir, "eternal.pid")
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

// batchRunner serializes batch runs started by the schedule and the
// drop folder watcher. A trigger that arrives while a run is active is
// folded into one follow-up run.
type batchRunner struct {
	run func(ctx context.Context)

	mu      sync.Mutex
	running bool
	again   bool
}

func (b *batchRunner) trigger(ctx context.Context) {
	b.mu.Lock()
	if b.running {
		b.again = true
		b.mu.Unlock()
		return
	}
	b.running = true
	b.mu.Unlock()

	for {
		b.run(ctx)
		b.mu.Lock()
		if !b.again || ctx.Err() != nil {
			b.running = false
			b.mu.Unlock()
			return
		}
		b.again = false
		b.mu.Unlock()
	}
}

func runServer(stdio, watch bool) error {
	fmt.Fprintf(os.Stderr, "eternal version %s\n", version)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := openApp(ctx, appOptions{checkEngine: true})
	if err != nil {
		return err
	}
	defer a.Close()
	cfg := a.cfg

	apiToken, err := config.GetAPIToken(config.NewKeychain())
	if err != nil {
		return fmt.Errorf("initializing API token: %w", err)
	}
	slog.Info("API bearer token available")

	// Refuse to start twice. The health endpoint answers without auth.
	pidPath := pidFilePath(cfg.Storage.DataDir)
	healthURL := fmt.Sprintf("http://127.0.0.1:%d/health", cfg.Server.Port)
	healthClient := &http.Client{Timeout: 2 * time.Second}
	if resp, err := healthClient.Get(healthURL); err == nil {
		resp.Body.Close()
		if pid, pidErr := readPIDFile(pidPath); pidErr == nil {
			printWarning("eternal is already running (PID %d)", pid)
			return fmt.Errorf("server already running (PID %d)", pid)
		}
		printWarning("eternal is already running on port %d", cfg.Server.Port)
		return fmt.Errorf("server already running on port %d", cfg.Server.Port)
	}
	if err := writePIDFile(pidPath); err != nil {
		return fmt.Errorf("writing PID file: %w", err)
	}
	defer removePIDFile(pidPath)

	sessions := api.NewSessions(a.router, 0)
	appHandler := api.NewAppHandler(api.AppDeps{
		Memory:   a.tiers,
		Searcher: a.searcher,
		Sessions: sessions,
		Runs:     a.store,
		Inbox:    a.folder,
		Token:    apiToken,
	})
	topRouter := chi.NewRouter()
	topRouter.Mount("/", appHandler)

	addr := fmt.Sprintf("127.0.0.1:%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:    addr,
		Handler: topRouter,
	}

	batches := &batchRunner{run: func(ctx context.Context) {
		report, err := a.pipeline.RunBatch(ctx, a.folder)
		if err != nil && !errors.Is(err, context.Canceled) {
			slog.Error("batch run failed", "error", err)
			return
		}
		if len(report.Days) > 0 {
			writeReport(os.Stderr, report)
		}
	}}

	g, gctx := errgroup.WithContext(ctx)

	var sched *cron.Cron
	if cfg.Schedule.Cron != "" {
		sched = cron.New()
		if _, err := sched.AddFunc(cfg.Schedule.Cron, func() { batches.trigger(gctx) }); err != nil {
			return fmt.Errorf("invalid schedule.cron %q: %w", cfg.Schedule.Cron, err)
		}
	}

	g.Go(func() error {
		a.worker.Run(gctx)
		return nil
	})

	if sched != nil {
		sched.Start()
		slog.Info("nightly schedule active", "cron", cfg.Schedule.Cron)
		g.Go(func() error {
			<-gctx.Done()
			<-sched.Stop().Done()
			return nil
		})
	}

	if watch {
		g.Go(func() error {
			err := a.folder.Watch(gctx, dropfolder.DefaultSettle, func() { go batches.trigger(gctx) })
			if err != nil && !errors.Is(err, context.Canceled) {
				slog.Error("drop folder watcher stopped", "error", err)
			}
			return nil
		})
		slog.Info("watching drop folder", "dir", a.folder.Dir())
	}

	mcpSrv := api.NewMCPServer(api.MCPDeps{
		Memory:   a.tiers,
		Searcher: a.searcher,
		Sessions: sessions,
		Version:  version,
	})
	servers := []*http.Server{srv}
	if cfg.Server.MCPPort > 0 {
		servers = append(servers, &http.Server{
			Addr:    fmt.Sprintf("127.0.0.1:%d", cfg.Server.MCPPort),
			Handler: api.NewMCPHandler(mcpSrv, apiToken),
		})
	}

	if stdio {
		stdioSrv := server.NewStdioServer(mcpSrv)
		g.Go(func() error {
			if err := stdioSrv.Listen(gctx, os.Stdin, os.Stdout); err != nil && !errors.Is(err, context.Canceled) {
				slog.Error("MCP stdio server error", "error", err)
			}
			return nil
		})
		slog.Info("MCP server started (stdio transport)")
	}

	for _, s := range servers {
		g.Go(func() error {
			fmt.Fprintf(os.Stderr, "eternal listening on %s\n", s.Addr)
			if err := s.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				return fmt.Errorf("server error: %w", err)
			}
			return nil
		})
	}

	g.Go(func() error {
		<-gctx.Done()
		fmt.Fprintln(os.Stderr, "shutting down...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		var errs []error
		for _, s := range servers {
			errs = append(errs, s.Shutdown(shutdownCtx))
		}
		return errors.Join(errs...)
	})

	return g.Wait()
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
		printError("eternal is not running (no PID file)")
		return fmt.Errorf("not running: %w", err)
	}

	process, err := os.FindProcess(pid)
	if err != nil {
		printError("could not find process %d", pid)
		return err
	}

	if err := process.Signal(syscall.SIGTERM); err != nil {
		printError("could not stop eternal (PID %d): %v", pid, err)
		removePIDFile(pidPath)
		return err
	}

	printSuccess("Sent stop signal to eternal (PID %d)", pid)
	return nil
}

func showStatus() error {
	ctx := context.Background()
	a, err := openApp(ctx, appOptions{})
	if err != nil {
		// Still show partial status even if config fails.
		printError("config error: %v", err)
		return nil
	}
	defer a.Close()
	cfg := a.cfg

	client := &http.Client{Timeout: 2 * time.Second}
	resp, err := client.Get(fmt.Sprintf("http://127.0.0.1:%d/health", cfg.Server.Port))
	if err != nil {
		printStatus("Server", "stopped")
	} else {
		resp.Body.Close()
		if resp.StatusCode == 200 {
			printStatus("Server", "running on port %d", cfg.Server.Port)
		} else {
			printStatus("Server", "error (HTTP %d)", resp.StatusCode)
		}
	}

	if a.engine.IsRunning(ctx) {
		printStatus("LLM", "%s (%s) reachable", cfg.LLM.Provider, cfg.ChatModel())
	} else {
		printStatus("LLM", "%s (%s) not reachable", cfg.LLM.Provider, cfg.ChatModel())
	}
	printStatus("Embed model", "%s", cfg.EmbedModel())
	if a.transcriber != nil {
		printStatus("Transcription", "%s", cfg.OpenAI.TranscribeModel)
	} else {
		printStatus("Transcription", "disabled (no OpenAI key)")
	}

	if pc, err := a.tiers.PrimaryContext(ctx); err == nil {
		printStatus("Primary context", "%d/%d words", pc.WordCount, cfg.Memory.PrimaryMaxWords)
	}
	if st, err := a.tiers.ShortTermMemory(ctx); err == nil {
		printStatus("Short-term memory", "%d words (%s)", st.WordCount, coverage(st.CoveredFrom, st.CoveredTo))
	}

	if counts, err := a.store.TierCounts(); err == nil {
		printStatus("Summaries", "%d daily, %d weekly, %d monthly", counts["daily"], counts["weekly"], counts["monthly"])
	}
	if n, err := a.vectors.Count(ctx); err == nil {
		printStatus("Vectors", "%d", n)
	}
	if failed, err := a.store.ListDayRuns(storage.RunFailed); err == nil {
		printStatus("Failed days", "%d", len(failed))
		for _, r := range failed {
			printStatus("  "+r.Date.Format(storage.DateLayout), "%s: %s", r.FailedStep, r.LastError)
		}
	}
	if jobs, err := a.store.JobCounts(); err == nil && len(jobs) > 0 {
		printStatus("Index jobs", "%d pending, %d failed", jobs[storage.JobPending], jobs[storage.JobFailed])
	}

	printStatus("Drop folder", "%s", a.folder.Dir())
	printStatus("Data dir", "%s", cfg.Storage.DataDir)
	return nil
}

func coverage(from, to time.Time) string {
	if from.IsZero() {
		return "empty"
	}
	return from.Format(storage.DateLayout) + " to " + to.Format(storage.DateLayout)
}
