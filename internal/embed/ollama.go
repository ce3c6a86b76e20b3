package embed

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"github.com/ollama/ollama/api"

	"github.com/user/tgsearch/internal/config"
)

const defaultOllamaHost = "http://127.0.0.1:11434"

type ollamaProvider struct {
	client *api.Client
	model  string
}

func newOllama(cfg config.EmbeddingConfig, httpClient *http.Client) (*ollamaProvider, error) {
	base := cfg.APIBase
	if base == "" {
		base = defaultOllamaHost
	}
	u, err := url.Parse(base)
	if err != nil {
		return nil, fmt.Errorf("parse ollama host: %w", err)
	}
	return &ollamaProvider{
		client: api.NewClient(u, httpClient),
		model:  cfg.Model,
	}, nil
}

func (p *ollamaProvider) embed(ctx context.Context, texts []string) ([][]float32, error) {
	resp, err := p.client.Embed(ctx, &api.EmbedRequest{
		Model: p.model,
		Input: texts,
	})
	if err != nil {
		return nil, err
	}
	return resp.Embeddings, nil
}
