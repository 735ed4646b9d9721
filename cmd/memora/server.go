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
	"syscall"
	"time"

	"github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"

	"github.com/memoralabs/memora/internal/api"
	"github.com/memoralabs/memora/internal/chat"
	"github.com/memoralabs/memora/internal/composer"
	"github.com/memoralabs/memora/internal/config"
	"github.com/memoralabs/memora/internal/engine"
	"github.com/memoralabs/memora/internal/index"
	"github.com/memoralabs/memora/internal/ingest"
	"github.com/memoralabs/memora/internal/retrieval"
	"github.com/memoralabs/memora/internal/session"
	"github.com/memoralabs/memora/internal/storage"
)

// sweepInterval is how often idle sessions are collected.
const sweepInterval = 5 * time.Minute

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the memora server (foreground)",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServer()
	},
}

var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the running memora server",
	RunE: func(cmd *cobra.Command, args []string) error {
		return stopServer()
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show memora system status",
	RunE: func(cmd *cobra.Command, args []string) error {
		return showStatus()
	},
}

func pidFilePath(dataDir string) string {
	return filepath.Join(dataDir, "memora.pid")
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

func runServer() error {
	fmt.Fprintf(os.Stderr, "memora version %s\n", version)

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	// Initialize structured logging.
	logLevel := slog.LevelInfo
	if strings.EqualFold(cfg.Log.Level, "debug") {
		logLevel = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel})))

	// Write PID file. Check if server is already running via health endpoint.
	pidPath := pidFilePath(cfg.Storage.DataDir)
	healthURL := fmt.Sprintf("http://127.0.0.1:%d/health", cfg.Server.Port)
	healthClient := &http.Client{Timeout: 2 * time.Second}
	if resp, err := healthClient.Get(healthURL); err == nil {
		resp.Body.Close()
		if pid, pidErr := readPIDFile(pidPath); pidErr == nil {
			printWarning("memora is already running (PID %d)", pid)
			return fmt.Errorf("server already running (PID %d)", pid)
		}
		printWarning("memora is already running on port %d", cfg.Server.Port)
		return fmt.Errorf("server already running on port %d", cfg.Server.Port)
	}
	if err := writePIDFile(pidPath); err != nil {
		return fmt.Errorf("writing PID file: %w", err)
	}
	defer removePIDFile(pidPath)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Check local inference engine readiness.
	eng := engine.NewOllama(cfg.Ollama.BaseURL)
	if !eng.IsRunning(ctx) {
		printWarning("Ollama is not reachable at %s; chat and ingestion will fail until it is up", cfg.Ollama.BaseURL)
	} else {
		slog.Info("inference engine ready", "base_url", cfg.Ollama.BaseURL,
			"chat_model", cfg.Ollama.ChatModel, "embed_model", cfg.Ollama.EmbedModel)
	}

	// Open storage.
	store, err := storage.Open(cfg.Storage.DataDir)
	if err != nil {
		return fmt.Errorf("opening storage: %w", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			fmt.Fprintf(os.Stderr, "warning: closing storage: %v\n", err)
		}
	}()

	// Select the vector index backend.
	var idx index.Index
	switch cfg.Storage.IndexBackend {
	case "memory":
		idx = index.NewMemory()
	default:
		idx = index.NewSQLite(store.DB())
	}

	// Wire the pipeline and chat service.
	embedder := retrieval.NewEmbedder(eng, cfg.Ollama.EmbedModel)
	retriever := retrieval.NewRetriever(embedder, idx, store)
	pipe := ingest.NewPipeline(store, idx, embedder, ingest.Limits{
		MaxBytes:     cfg.Ingest.MaxUploadBytes,
		ChunkChars:   cfg.Ingest.ChunkChars,
		OverlapChars: cfg.Ingest.OverlapChars,
	})
	sessions := session.NewStore(session.Config{
		MaxTokens:   cfg.Session.MaxTokens,
		MaxMessages: cfg.Session.MaxMessages,
		Greeting:    cfg.Session.Greeting,
	})
	svc := chat.NewService(sessions, retriever, composer.New(cfg.Retrieval.PromptMaxTokens), eng, chat.Options{
		ChatModel:   cfg.Ollama.ChatModel,
		TopK:        cfg.Retrieval.TopK,
		TokenBudget: cfg.Retrieval.ContextBudget,
	})

	// Collect idle sessions in the background.
	go func() {
		ticker := time.NewTicker(sweepInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if n := sessions.SweepIdle(cfg.Session.IdleTTL); n > 0 {
					slog.Debug("swept idle sessions", "count", n)
				}
			}
		}
	}()

	handler := api.NewHandler(api.Deps{
		Chat:           svc,
		Ingest:         pipe,
		Engine:         eng,
		MaxUploadBytes: int64(cfg.Ingest.MaxUploadBytes),
	})

	addr := fmt.Sprintf("127.0.0.1:%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:    addr,
		Handler: handler,
	}

	// Start MCP server (stdio transport) when enabled.
	if cfg.Server.MCPEnabled {
		mcpSrv := api.NewMCPServer(svc)
		stdioSrv := server.NewStdioServer(mcpSrv)
		go func() {
			if err := stdioSrv.Listen(ctx, os.Stdin, os.Stdout); err != nil && !errors.Is(err, context.Canceled) {
				slog.Error("MCP stdio server error", "error", err)
			}
		}()
		slog.Info("MCP server started (stdio transport)")
	}

	// Start server in a goroutine.
	errCh := make(chan error, 1)
	go func() {
		fmt.Fprintf(os.Stderr, "memora listening on %s\n", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	// Wait for signal or server error.
	select {
	case <-ctx.Done():
		fmt.Fprintln(os.Stderr, "shutting down...")
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
	}

	// Graceful shutdown with timeout.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
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
		printError("memora is not running (no PID file)")
		return fmt.Errorf("not running: %w", err)
	}

	process, err := os.FindProcess(pid)
	if err != nil {
		printError("could not find process %d", pid)
		return err
	}

	if err := process.Signal(syscall.SIGTERM); err != nil {
		printError("could not stop memora (PID %d): %v", pid, err)
		removePIDFile(pidPath)
		return err
	}

	printSuccess("Sent stop signal to memora (PID %d)", pid)
	return nil
}

func showStatus() error {
	cfg, err := config.Load()
	if err != nil {
		printError("config error: %v", err)
		return nil
	}

	client, err := newAPIClient()
	if err != nil {
		return err
	}

	resp, err := client.get(context.Background(), "/health")
	if err != nil {
		printError("memora is not running on port %d", cfg.Server.Port)
		return nil
	}
	defer resp.Body.Close()

	var health struct {
		Status        string `json:"status"`
		EngineRunning bool   `json:"engine_running"`
	}
	if err := decodeBody(resp, &health); err != nil {
		return err
	}

	printSuccess("memora is running on port %d", cfg.Server.Port)
	printStatus("Engine", "%s (reachable: %v)", cfg.Ollama.BaseURL, health.EngineRunning)
	printStatus("Data dir", "%s", cfg.Storage.DataDir)
	printStatus("Index", "%s", cfg.Storage.IndexBackend)

	if docs, err := client.get(context.Background(), "/api/documents"); err == nil {
		defer docs.Body.Close()
		var list struct {
			Count int `json:"count"`
		}
		if decodeBody(docs, &list) == nil {
			printStatus("Documents", "%d", list.Count)
		}
	}
	return nil
}
