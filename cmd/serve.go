package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/docassist/docassist/db"
	"github.com/docassist/docassist/internal/api"
	"github.com/docassist/docassist/internal/assist"
	"github.com/docassist/docassist/internal/chat"
	"github.com/docassist/docassist/internal/config"
	"github.com/docassist/docassist/internal/knowledge"
	"github.com/docassist/docassist/internal/log"
	"github.com/docassist/docassist/internal/session"
	"github.com/docassist/docassist/internal/store"
)

// Server timeout configuration.
const (
	readHeaderTimeout = 10 * time.Second
	readTimeout       = 2 * time.Minute // large document bodies take a while
	writeTimeout      = 5 * time.Minute // sync plus chat round trips to the upstream service
	idleTimeout       = 2 * time.Minute
	shutdownTimeout   = 30 * time.Second
)

var serveAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API server",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe()
	},
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "listen address (host:port, overrides config)")
	rootCmd.AddCommand(serveCmd)
}

// parseLogLevel maps a config string onto a slog level. Unknown values
// fall back to info.
func parseLogLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func runServe() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("validating config: %w", err)
	}

	addr := cfg.Addr
	if serveAddr != "" {
		addr = serveAddr
	}
	if err := validateAddr(addr); err != nil {
		return fmt.Errorf("invalid address %q: %w", addr, err)
	}

	logger := log.New(log.Config{
		Level: parseLogLevel(cfg.LogLevel),
		JSON:  cfg.LogJSON,
	})

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	logger.Info("starting docassist", "version", Version, "model", cfg.Model)

	if err := db.Migrate(cfg.DatabaseURL, logger); err != nil {
		return fmt.Errorf("applying migrations: %w", err)
	}

	pool, err := store.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("connecting to database: %w", err)
	}
	defer pool.Close()

	st, err := store.New(pool, logger)
	if err != nil {
		return fmt.Errorf("creating store: %w", err)
	}

	client := assist.NewOpenAI(assist.OpenAIConfig{
		APIKey:  cfg.APIKey,
		BaseURL: cfg.APIBaseURL,
	}, logger)

	prov, err := session.NewProvisioner(st, client, cfg.Model, logger)
	if err != nil {
		return fmt.Errorf("creating provisioner: %w", err)
	}

	sync, err := knowledge.NewSynchronizer(st, client, knowledge.Options{
		ChunkingEnabled:      cfg.ChunkingEnabled,
		ChunkMaxTokens:       cfg.ChunkMaxTokens,
		ChunkOverlapTokens:   cfg.ChunkOverlapTokens,
		SummaryEnabled:       cfg.SummaryEnabled,
		SummaryMaxChars:      cfg.SummaryMaxChars,
		SummaryInputMaxChars: cfg.SummaryInputMax,
		Model:                cfg.Model,
		ResetCleanupRemote:   cfg.ResetCleanupRemote,
	}, logger)
	if err != nil {
		return fmt.Errorf("creating synchronizer: %w", err)
	}

	orch, err := chat.NewOrchestrator(st, client, chat.Options{
		Model:           cfg.Model,
		MaxOutputTokens: cfg.MaxOutputTokens,
		MaxTurnsPerDoc:  cfg.MaxTurnsPerDoc,
		ForceFileSearch: cfg.ForceFileSearch,
		TwoStepEnabled:  cfg.TwoStepEnabled,
		HistoryEnabled:  cfg.ChatLogEnabled,
		SystemPrompt:    cfg.SystemPrompt,
	}, chat.Predicates{}, logger)
	if err != nil {
		return fmt.Errorf("creating orchestrator: %w", err)
	}

	apiServer, err := api.NewServer(api.Config{
		Logger:           logger,
		Store:            st,
		Provisioner:      prov,
		Synchronizer:     sync,
		Orchestrator:     orch,
		AuthToken:        cfg.AuthToken,
		TrustProxy:       cfg.TrustProxy,
		RateLimitEnabled: cfg.RateLimitEnabled,
		RateLimitPerSec:  float64(cfg.RateLimitPerSec),
		RateLimitBurst:   cfg.RateLimitBurst,
		Limits: api.Limits{
			MaxDocIDChars:        cfg.MaxDocIDChars,
			MaxUserMessageChars:  cfg.MaxUserMessageChars,
			MaxInstructionsChars: cfg.MaxInstructionsChars,
			MaxTitleChars:        cfg.MaxTitleChars,
			MaxFilenameChars:     cfg.MaxFilenameChars,
			MaxDocTextChars:      cfg.MaxDocTextChars,
			MaxUploadBytes:       cfg.MaxUploadBytes,
		},
		Version: Version,
		Model:   cfg.Model,
	})
	if err != nil {
		return fmt.Errorf("creating API server: %w", err)
	}

	srv := &http.Server{
		Addr:              addr,
		Handler:           apiServer.Handler(),
		ReadHeaderTimeout: readHeaderTimeout,
		ReadTimeout:       readTimeout,
		WriteTimeout:      writeTimeout,
		IdleTimeout:       idleTimeout,
	}

	logger.Info("HTTP server ready", "addr", addr, "api", "/v2/*", "health", "/health")

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutting down HTTP server")
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer shutdownCancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutting down server: %w", err)
		}
		<-errCh
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("HTTP server: %w", err)
	}
}
