// Package embed turns message text into vectors through a configured
// provider. An empty provider disables embedding.
package embed

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/user/tgsearch/internal/config"
)

var ErrDimension = errors.New("embedding dimension mismatch")

type provider interface {
	embed(ctx context.Context, texts []string) ([][]float32, error)
}

// Client embeds batches of text with one provider and model.
type Client struct {
	provider  provider
	name      string
	dimension int
	truncator *truncator
	logger    *slog.Logger
}

// New returns a client for cfg, or nil when no provider is configured.
func New(cfg config.EmbeddingConfig, httpClient *http.Client, logger *slog.Logger) (*Client, error) {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}

	var p provider
	switch cfg.Provider {
	case "":
		return nil, nil
	case config.EmbeddingOpenAI:
		p = newOpenAI(cfg, httpClient)
	case config.EmbeddingOllama:
		o, err := newOllama(cfg, httpClient)
		if err != nil {
			return nil, err
		}
		p = o
	default:
		return nil, fmt.Errorf("unknown embedding provider %q", cfg.Provider)
	}

	logger = logger.With("component", "embed", "provider", cfg.Provider, "model", cfg.Model)
	return &Client{
		provider:  p,
		name:      cfg.Provider,
		dimension: cfg.Dimension,
		truncator: newTruncator(cfg.Model, cfg.MaxTokens, logger),
		logger:    logger,
	}, nil
}

func (c *Client) Dimension() int {
	return c.dimension
}

// Embed returns one vector per text, in input order.
func (c *Client) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	inputs := make([]string, len(texts))
	for i, t := range texts {
		inputs[i] = c.truncator.truncate(t)
	}

	vectors, err := c.provider.embed(ctx, inputs)
	if err != nil {
		return nil, fmt.Errorf("embed with %s: %w", c.name, err)
	}
	if len(vectors) != len(texts) {
		return nil, fmt.Errorf("embed with %s: got %d vectors for %d inputs", c.name, len(vectors), len(texts))
	}
	for i, v := range vectors {
		if len(v) != c.dimension {
			return nil, fmt.Errorf("%w: input %d has %d, want %d", ErrDimension, i, len(v), c.dimension)
		}
	}

	c.logger.Debug("embedded texts", "count", len(texts))
	return vectors, nil
}
