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
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/user/tgsearch/internal/bridge"
	"github.com/user/tgsearch/internal/config"
	"github.com/user/tgsearch/internal/core"
	"github.com/user/tgsearch/internal/metrics"
	"github.com/user/tgsearch/internal/scheduler"
	"github.com/user/tgsearch/internal/server"
	"github.com/user/tgsearch/internal/session"
)

func init() {
	rootCmd.AddCommand(serveCmd)
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the tgsearch daemon",
	Args:  cobra.NoArgs,
	RunE:  runServe,
}

func pidPath(dataDir string) string {
	return filepath.Join(dataDir, "tgsearch.pid")
}

func writePIDFile(dataDir string) (string, error) {
	path := pidPath(dataDir)
	if err := os.WriteFile(path, []byte(strconv.Itoa(os.Getpid())+"\n"), 0644); err != nil {
		return "", fmt.Errorf("write PID file: %w", err)
	}
	return path, nil
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger := setupLogging(cfg)
	metrics.Init()

	if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}
	pidFile, err := writePIDFile(cfg.DataDir)
	if err != nil {
		return err
	}
	defer os.Remove(pidFile)

	provider := config.NewFileProvider(cfgPath, cfg)
	deps, err := buildDeps(cfg, provider, logger)
	if err != nil {
		return err
	}
	defer deps.Gateway.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := deps.Gateway.Init(ctx); err != nil {
		return err
	}

	if cfg.API.Telegram.BotToken != "" {
		err := deps.Retry.Do(ctx, func(ctx context.Context) error {
			return deps.Client.Connect(ctx, cfg.API.Telegram.BotToken)
		})
		if err != nil {
			logger.Error("telegram login failed, waiting for auth:login", "error", err)
		}
	} else {
		logger.Warn("no bot token configured, waiting for auth:login")
	}
	defer deps.Client.Disconnect()

	archiver := core.NewArchiver(deps)
	archiver.Start(ctx)
	defer archiver.Stop()

	sched := scheduler.New(logger)
	if deps.Embedder != nil && cfg.API.Embedding.BackfillSchedule != "" {
		backfill := scheduler.NewBackfill(deps.Messages, deps.Embedder, logger)
		if err := sched.Add(backfill.Job(cfg.API.Embedding.BackfillSchedule)); err != nil {
			return err
		}
	}
	if err := sched.Start(ctx); err != nil {
		return fmt.Errorf("start scheduler: %w", err)
	}
	defer sched.Stop()

	queue := bridge.NewQueue(int64(cfg.Bridge.MaxConcurrent), logger)
	queue.Start(ctx)
	defer queue.Stop()

	if cfg.Server.Enabled {
		sessions := session.NewStore(cfg.DataDir)
		httpServer := &http.Server{
			Addr:              cfg.Server.Listen,
			Handler:           server.NewServer(deps, sessions, queue, logger),
			ReadHeaderTimeout: 10 * time.Second,
		}
		go func() {
			logger.Info("server started", "listen", cfg.Server.Listen)
			if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("server error", "error", err)
			}
		}()
		defer func() {
			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer shutdownCancel()
			httpServer.Shutdown(shutdownCtx)
		}()
	}

	logger.Info("tgsearch started",
		"data_dir", cfg.DataDir,
		"database", deps.Gateway.BackendName(),
		"embedding", cfg.API.Embedding.Provider,
		"max_concurrent", cfg.Bridge.MaxConcurrent,
		"pid_file", pidFile,
	)

	return waitForSignal(logger, cfg.DataDir, pidFile)
}

// waitForSignal blocks until SIGINT or SIGTERM. SIGHUP re-executes the
// binary in place.
func waitForSignal(logger *slog.Logger, dataDir, pidFile string) error {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)

	for {
		sig := <-sigChan
		if sig == syscall.SIGHUP {
			logger.Info("received SIGHUP, restarting")
			execPath, err := os.Executable()
			if err != nil {
				logger.Error("failed to get executable path", "error", err)
				continue
			}
			os.Remove(pidFile)
			if err := syscall.Exec(execPath, os.Args, os.Environ()); err != nil {
				logger.Error("failed to re-exec", "error", err)
				if _, writeErr := writePIDFile(dataDir); writeErr != nil {
					logger.Error("failed to re-write PID file", "error", writeErr)
				}
				continue
			}
		}
		logger.Info("shutting down", "signal", sig)
		return nil
	}
}
