package embed

import (
	"context"
	"net/http"
	"strings"

	"github.com/sashabaranov/go-openai"

	"github.com/user/tgsearch/internal/config"
)

type openAIProvider struct {
	client    *openai.Client
	model     string
	dimension int
}

func newOpenAI(cfg config.EmbeddingConfig, httpClient *http.Client) *openAIProvider {
	oc := openai.DefaultConfig(cfg.APIKey)
	if cfg.APIBase != "" {
		oc.BaseURL = strings.TrimRight(cfg.APIBase, "/")
	}
	oc.HTTPClient = httpClient
	return &openAIProvider{
		client:    openai.NewClientWithConfig(oc),
		model:     cfg.Model,
		dimension: cfg.Dimension,
	}
}

func (p *openAIProvider) embed(ctx context.Context, texts []string) ([][]float32, error) {
	req := openai.EmbeddingRequest{
		Input: texts,
		Model: openai.EmbeddingModel(p.model),
	}
	// Only the text-embedding-3 family accepts a reduced dimension.
	if strings.HasPrefix(p.model, "text-embedding-3") {
		req.Dimensions = p.dimension
	}

	resp, err := p.client.CreateEmbeddings(ctx, req)
	if err != nil {
		return nil, err
	}

	out := make([][]float32, len(texts))
	for i, d := range resp.Data {
		idx := d.Index
		if idx < 0 || idx >= len(out) {
			idx = i
		}
		out[idx] = d.Embedding
	}
	return out, nil
}
