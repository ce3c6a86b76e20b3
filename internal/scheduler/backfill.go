package scheduler

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/user/tgsearch/internal/types"
)

const (
	defaultBackfillBatch = 32
	// maxBackfillBatches bounds one run so a large archive is caught up
	// over several runs.
	maxBackfillBatches = 50
)

// MessageSource lists messages lacking a vector and stores them back.
type MessageSource interface {
	MissingEmbeddings(ctx context.Context, dim, limit int) ([]*types.Message, error)
	Record(ctx context.Context, msgs []*types.Message) error
}

// Backfill embeds stored messages that have no vector for the embedder's
// dimension, for example those archived while no embedder was configured.
type Backfill struct {
	messages MessageSource
	embedder types.Embedder
	batch    int
	logger   *slog.Logger
}

func NewBackfill(messages MessageSource, embedder types.Embedder, logger *slog.Logger) *Backfill {
	return &Backfill{
		messages: messages,
		embedder: embedder,
		batch:    defaultBackfillBatch,
		logger:   logger.With("component", "backfill"),
	}
}

// Job wraps the backfill for the scheduler.
func (b *Backfill) Job(schedule string) Job {
	return Job{
		Name:     "embedding-backfill",
		Schedule: schedule,
		Run: func(ctx context.Context) error {
			_, err := b.Run(ctx)
			return err
		},
	}
}

// Run embeds batches until none are missing or the per-run bound is hit.
// It returns how many messages were embedded.
func (b *Backfill) Run(ctx context.Context) (int, error) {
	total := 0
	for range maxBackfillBatches {
		msgs, err := b.messages.MissingEmbeddings(ctx, b.embedder.Dimension(), b.batch)
		if err != nil {
			return total, err
		}
		if len(msgs) == 0 {
			break
		}

		texts := make([]string, len(msgs))
		for i, m := range msgs {
			texts[i] = m.Content
		}
		vecs, err := b.embedder.Embed(ctx, texts)
		if err != nil {
			return total, fmt.Errorf("embed backfill batch: %w", err)
		}
		if len(vecs) != len(msgs) {
			return total, fmt.Errorf("embed backfill batch: got %d vectors for %d messages", len(vecs), len(msgs))
		}
		for i, m := range msgs {
			m.Embedding = vecs[i]
		}
		if err := b.messages.Record(ctx, msgs); err != nil {
			return total, fmt.Errorf("store backfilled vectors: %w", err)
		}
		total += len(msgs)

		if len(msgs) < b.batch {
			break
		}
	}
	if total > 0 {
		b.logger.Info("backfilled embeddings", "count", total)
	}
	return total, nil
}
