package config

import (
	"log/slog"
	"sync"
)

// Provider hands out the current configuration and applies validated updates.
// A rejected update leaves the current configuration untouched.
type Provider interface {
	Get() *Config
	Update(patch []byte) (*Config, error)
}

// FileProvider persists every accepted update to a YAML file.
type FileProvider struct {
	path string
	mu   sync.RWMutex
	cfg  *Config
}

func NewFileProvider(path string, cfg *Config) *FileProvider {
	return &FileProvider{path: path, cfg: cfg}
}

func (p *FileProvider) Get() *Config {
	p.mu.RLock()
	defer p.mu.RUnlock()
	c := *p.cfg
	return &c
}

func (p *FileProvider) Update(patch []byte) (*Config, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	next, err := Merge(p.cfg, patch)
	if err != nil {
		slog.Error("rejected config update", "error", err)
		return nil, err
	}
	if next.Database.Type == DatabasePostgres && next.Database.URL == "" {
		next.Database.URL = next.DatabaseDSN()
	}
	if err := Save(p.path, next); err != nil {
		return nil, err
	}
	p.cfg = next
	slog.Info("config updated", "path", p.path)

	c := *next
	return &c, nil
}

// MemoryProvider keeps the configuration in process only. It backs the
// embedded mode and tests.
type MemoryProvider struct {
	mu  sync.RWMutex
	cfg *Config
}

func NewMemoryProvider(cfg *Config) *MemoryProvider {
	return &MemoryProvider{cfg: cfg}
}

func (p *MemoryProvider) Get() *Config {
	p.mu.RLock()
	defer p.mu.RUnlock()
	c := *p.cfg
	return &c
}

func (p *MemoryProvider) Update(patch []byte) (*Config, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	next, err := Merge(p.cfg, patch)
	if err != nil {
		slog.Error("rejected config update", "error", err)
		return nil, err
	}
	p.cfg = next

	c := *next
	return &c, nil
}
