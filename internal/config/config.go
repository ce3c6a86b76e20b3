package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	DatabasePostgres = "postgres"
	DatabaseSQLite   = "sqlite"

	EmbeddingOpenAI = "openai"
	EmbeddingOllama = "ollama"
)

// ErrInvalid is wrapped by every validation failure.
var ErrInvalid = errors.New("invalid config")

// Config holds only value fields so that a plain copy is a deep copy.
type Config struct {
	DataDir string `yaml:"data_dir" json:"data_dir"`
	Logging struct {
		Level string `yaml:"level" json:"level" validate:"oneof=debug info warn error"`
	} `yaml:"logging" json:"logging"`
	Database DatabaseConfig `yaml:"database" json:"database"`
	API      struct {
		Telegram  TelegramConfig  `yaml:"telegram" json:"telegram"`
		Embedding EmbeddingConfig `yaml:"embedding" json:"embedding"`
	} `yaml:"api" json:"api"`
	Scraper struct {
		BaseURL  string `yaml:"base_url" json:"base_url" validate:"required,url"`
		APIKey   string `yaml:"api_key" json:"api_key"`
		MaxChars int    `yaml:"max_chars" json:"max_chars" validate:"min=0"`
	} `yaml:"scraper" json:"scraper"`
	Server struct {
		Enabled bool   `yaml:"enabled" json:"enabled"`
		Listen  string `yaml:"listen" json:"listen" validate:"required"`
	} `yaml:"server" json:"server"`
	Bridge struct {
		MaxConcurrent int `yaml:"max_concurrent" json:"max_concurrent" validate:"min=1"`
	} `yaml:"bridge" json:"bridge"`
}

type DatabaseConfig struct {
	Type     string `yaml:"type" json:"type" validate:"oneof=postgres sqlite"`
	URL      string `yaml:"url" json:"url"`
	Host     string `yaml:"host" json:"host"`
	Port     int    `yaml:"port" json:"port" validate:"min=0,max=65535"`
	User     string `yaml:"user" json:"user"`
	Password string `yaml:"password" json:"password"`
	Database string `yaml:"database" json:"database"`
	// Path is the sqlite file; ":memory:" keeps everything in process.
	Path string `yaml:"path" json:"path"`
}

type TelegramConfig struct {
	BotToken       string      `yaml:"bot_token" json:"bot_token"`
	APIEndpoint    string      `yaml:"api_endpoint" json:"api_endpoint"`
	ReceiveMessage bool        `yaml:"receive_message" json:"receive_message"`
	Proxy          ProxyConfig `yaml:"proxy" json:"proxy"`
}

type ProxyConfig struct {
	IP        string `yaml:"ip" json:"ip"`
	Port      int    `yaml:"port" json:"port" validate:"min=0,max=65535"`
	SocksType int    `yaml:"socks_type" json:"socks_type" validate:"oneof=0 4 5"`
	Timeout   int    `yaml:"timeout" json:"timeout" validate:"min=0"`
	Username  string `yaml:"username" json:"username"`
	Password  string `yaml:"password" json:"password"`
}

type EmbeddingConfig struct {
	Provider         string `yaml:"provider" json:"provider" validate:"omitempty,oneof=openai ollama"`
	Model            string `yaml:"model" json:"model"`
	Dimension        int    `yaml:"dimension" json:"dimension" validate:"oneof=1536 1024 768"`
	APIKey           string `yaml:"api_key" json:"api_key"`
	APIBase          string `yaml:"api_base" json:"api_base"`
	MaxTokens        int    `yaml:"max_tokens" json:"max_tokens" validate:"min=0"`
	BackfillSchedule string `yaml:"backfill_schedule" json:"backfill_schedule"`
}

// Default returns the configuration used when no file exists yet.
func Default() *Config {
	cfg := &Config{
		DataDir: filepath.Join(os.Getenv("HOME"), ".tgsearch"),
	}
	cfg.Logging.Level = "info"
	cfg.Database.Type = DatabasePostgres
	cfg.Database.Host = "localhost"
	cfg.Database.Port = 5432
	cfg.Database.User = "postgres"
	cfg.Database.Password = "123456"
	cfg.Database.Database = "tg_search"
	cfg.API.Embedding.Provider = EmbeddingOpenAI
	cfg.API.Embedding.Model = "text-embedding-3-small"
	cfg.API.Embedding.Dimension = 1536
	cfg.API.Embedding.MaxTokens = 8191
	cfg.API.Embedding.BackfillSchedule = "@every 10m"
	cfg.Scraper.BaseURL = "https://r.jina.ai/"
	cfg.Scraper.MaxChars = 50000
	cfg.Server.Enabled = true
	cfg.Server.Listen = "127.0.0.1:3000"
	cfg.Bridge.MaxConcurrent = 4
	return cfg
}

// DatabaseDSN returns the connection string for the configured backend.
func (c *Config) DatabaseDSN() string {
	db := c.Database
	if db.Type == DatabaseSQLite {
		if db.Path != "" {
			return db.Path
		}
		return filepath.Join(c.DataDir, "tgsearch.db")
	}
	if db.URL != "" {
		return db.URL
	}
	u := url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(db.User, db.Password),
		Host:   db.Host + ":" + strconv.Itoa(db.Port),
		Path:   "/" + db.Database,
	}
	return u.String()
}

// ProxyURL returns the proxy address for the messaging client, or nil when
// no proxy is configured.
func (c *Config) ProxyURL() *url.URL {
	p := c.API.Telegram.Proxy
	if p.IP == "" || p.Port == 0 {
		return nil
	}
	scheme := "http"
	switch p.SocksType {
	case 4:
		scheme = "socks4"
	case 5:
		scheme = "socks5"
	}
	u := &url.URL{Scheme: scheme, Host: p.IP + ":" + strconv.Itoa(p.Port)}
	if p.Username != "" {
		u.User = url.UserPassword(p.Username, p.Password)
	}
	return u
}

var validate = validator.New()

// Validate checks field constraints and cross-field rules.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalid, err)
	}
	if c.Database.Type == DatabasePostgres && c.Database.URL == "" && c.Database.Host == "" {
		return fmt.Errorf("%w: database.url or database.host is required for postgres", ErrInvalid)
	}
	if c.API.Embedding.Provider != "" && c.API.Embedding.Model == "" {
		return fmt.Errorf("%w: api.embedding.model is required when a provider is set", ErrInvalid)
	}
	return nil
}

// Merge overlays a JSON patch on a copy of base. Only keys present in the
// patch replace values; everything else keeps the base value. The result is
// validated and base is never modified.
func Merge(base *Config, patch []byte) (*Config, error) {
	merged := *base
	if len(patch) > 0 {
		if err := json.Unmarshal(patch, &merged); err != nil {
			return nil, fmt.Errorf("%w: decode patch: %w", ErrInvalid, err)
		}
	}
	if err := merged.Validate(); err != nil {
		return nil, err
	}
	return &merged, nil
}

// Load reads the YAML file at path over the defaults, writing the defaults
// when the file does not exist, then applies environment overrides.
func Load(path string) (*Config, error) {
	cfg := Default()

	if _, err := os.Stat(path); err == nil {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	} else if os.IsNotExist(err) {
		if err := Save(path, cfg); err != nil {
			return nil, err
		}
	}

	applyEnv(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadDotenv loads KEY=value pairs from the given files into the process
// environment. Missing files are skipped.
func LoadDotenv(paths ...string) error {
	for _, p := range paths {
		if _, err := os.Stat(p); os.IsNotExist(err) {
			continue
		}
		if err := godotenv.Load(p); err != nil {
			return fmt.Errorf("load %s: %w", p, err)
		}
	}
	return nil
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("TGSEARCH_DATA_DIR"); v != "" {
		cfg.DataDir = v
	}
	if v := os.Getenv("TGSEARCH_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("TGSEARCH_DATABASE_TYPE"); v != "" {
		cfg.Database.Type = v
	}
	if v := os.Getenv("TGSEARCH_DATABASE_URL"); v != "" {
		cfg.Database.URL = v
	}
	if v := os.Getenv("TELEGRAM_BOT_TOKEN"); v != "" {
		cfg.API.Telegram.BotToken = v
	}
	if v := os.Getenv("OPENAI_API_KEY"); v != "" && cfg.API.Embedding.Provider == EmbeddingOpenAI {
		cfg.API.Embedding.APIKey = v
	}
	if v := os.Getenv("OLLAMA_HOST"); v != "" && cfg.API.Embedding.Provider == EmbeddingOllama {
		cfg.API.Embedding.APIBase = v
	}
}

// Save writes cfg as YAML atomically.
func Save(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0600); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("rename config: %w", err)
	}
	return nil
}
