package main

import (
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/user/tgsearch/internal/config"
	"github.com/user/tgsearch/internal/core"
	"github.com/user/tgsearch/internal/db"
	"github.com/user/tgsearch/internal/embed"
	"github.com/user/tgsearch/internal/gram"
	"github.com/user/tgsearch/internal/retry"
	"github.com/user/tgsearch/internal/scraper"
	"github.com/user/tgsearch/internal/tokenizer"
)

var (
	cfgPath string
	flags   config.Flags
)

var rootCmd = &cobra.Command{
	Use:           "tgsearch",
	Short:         "Archive Telegram chats and search them",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&cfgPath, "config", filepath.Join(os.Getenv("HOME"), ".tgsearch", "config.yaml"), "config file path")
	pf.StringVar(&flags.DBProvider, "db-provider", "", "database backend (postgres or sqlite)")
	pf.StringVar(&flags.DBURL, "db-url", "", "database connection URL")
	pf.StringVar(&flags.TelegramBotToken, "telegram-bot-token", "", "Telegram bot token")
	pf.StringVar(&flags.EmbeddingProvider, "embedding-provider", "", "embedding provider (openai or ollama)")
	pf.StringVar(&flags.EmbeddingModel, "embedding-model", "", "embedding model")
	pf.IntVar(&flags.EmbeddingDimension, "embedding-dimension", 0, "embedding dimension (1536, 1024 or 768)")
	pf.StringVar(&flags.EmbeddingAPIKey, "embedding-api-key", "", "embedding API key")
	pf.StringVar(&flags.EmbeddingAPIBase, "embedding-api-base", "", "embedding API base URL")
	pf.StringVar(&flags.ProxyIP, "proxy-ip", "", "proxy host")
	pf.IntVar(&flags.ProxyPort, "proxy-port", 0, "proxy port")
	pf.IntVar(&flags.ProxySocksType, "proxy-socks-type", 0, "SOCKS version (4 or 5, 0 for HTTP)")
	pf.IntVar(&flags.ProxyTimeout, "proxy-timeout", 0, "proxy timeout in seconds")
	pf.StringVar(&flags.ProxyUsername, "proxy-username", "", "proxy user")
	pf.StringVar(&flags.ProxyPassword, "proxy-password", "", "proxy password")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

// loadConfig reads .env files, the config file and the command-line
// overrides, in that order of precedence from lowest to highest.
func loadConfig() (*config.Config, error) {
	if err := config.LoadDotenv(".env", filepath.Join(filepath.Dir(cfgPath), ".env")); err != nil {
		return nil, err
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	cfg = config.ApplyFlags(cfg, flags)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func setupLogging(cfg *config.Config) *slog.Logger {
	var level slog.Level
	switch strings.ToLower(cfg.Logging.Level) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)
	return logger
}

// buildDeps assembles the shared collaborators. The database is not
// connected yet; callers Init the gateway or let a bridge mount do it.
func buildDeps(cfg *config.Config, provider config.Provider, logger *slog.Logger) (*core.Deps, error) {
	backend, err := db.NewBackend(cfg)
	if err != nil {
		return nil, err
	}

	httpClient := &http.Client{Timeout: 60 * time.Second}
	deps := &core.Deps{
		Config:    provider,
		Gateway:   db.NewGateway(backend, logger),
		Client:    gram.NewBotClient(cfg.API.Telegram.APIEndpoint, cfg.ProxyURL(), logger),
		Tokenizer: tokenizer.New(logger),
		Retry:     retry.Default(),
		Logger:    logger,
	}

	embedder, err := embed.New(cfg.API.Embedding, httpClient, logger)
	if err != nil {
		return nil, fmt.Errorf("create embedder: %w", err)
	}
	if embedder != nil {
		deps.Embedder = embedder
	} else {
		logger.Warn("embedding disabled (no provider)")
	}

	if cfg.Scraper.BaseURL != "" {
		deps.Scraper = scraper.New(cfg.Scraper.BaseURL, cfg.Scraper.APIKey, cfg.Scraper.MaxChars, httpClient)
	}

	core.NewStores(deps)
	return deps, nil
}
