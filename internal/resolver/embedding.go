package resolver

import (
	"context"
	"iter"
	"log/slog"
	"time"

	"github.com/user/tgsearch/internal/metrics"
	"github.com/user/tgsearch/internal/types"
)

const defaultEmbedBatch = 32

// EmbeddingResolver embeds message content in batches. A failed batch is
// logged and its messages continue without vectors.
type EmbeddingResolver struct {
	embedder  types.Embedder
	batchSize int
	logger    *slog.Logger
}

func NewEmbeddingResolver(embedder types.Embedder, logger *slog.Logger) *EmbeddingResolver {
	return &EmbeddingResolver{
		embedder:  embedder,
		batchSize: defaultEmbedBatch,
		logger:    logger.With("component", "resolver.embedding"),
	}
}

func (r *EmbeddingResolver) Name() string { return "embedding" }

func (r *EmbeddingResolver) Resolve(ctx context.Context, msgs iter.Seq[*types.Message]) iter.Seq[*types.Message] {
	if r.embedder == nil {
		return msgs
	}
	return func(yield func(*types.Message) bool) {
		batch := make([]*types.Message, 0, r.batchSize)
		flush := func() bool {
			r.embedBatch(ctx, batch)
			for _, m := range batch {
				if !yield(m) {
					return false
				}
			}
			batch = batch[:0]
			return true
		}

		for m := range msgs {
			batch = append(batch, m)
			if len(batch) == r.batchSize && !flush() {
				return
			}
		}
		if len(batch) > 0 {
			flush()
		}
	}
}

func (r *EmbeddingResolver) embedBatch(ctx context.Context, batch []*types.Message) {
	var (
		targets []*types.Message
		texts   []string
	)
	for _, m := range batch {
		if m.Content != "" && len(m.Embedding) == 0 {
			targets = append(targets, m)
			texts = append(texts, m.Content)
		}
	}
	if len(targets) == 0 {
		return
	}

	start := time.Now()
	vecs, err := r.embedder.Embed(ctx, texts)
	if err != nil {
		metrics.RecordResolverItem(r.Name(), "failed", time.Since(start))
		r.logger.Error("failed to embed messages", "count", len(texts), "error", err)
		return
	}
	metrics.RecordResolverItem(r.Name(), "ok", time.Since(start))
	for i, m := range targets {
		if i < len(vecs) {
			m.Embedding = vecs[i]
		}
	}
}
