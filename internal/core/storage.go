package core

import (
	"context"
	"fmt"

	"github.com/user/tgsearch/internal/bus"
	"github.com/user/tgsearch/internal/storage"
	"github.com/user/tgsearch/internal/types"
)

func (c *Core) registerStorage() {
	bus.Handle(c.bus, func(ev bus.StorageFetchMessages) error {
		msgs, err := c.deps.Messages.FetchByChat(c.ctx, ev.ChatID, &ev.Pagination)
		if err != nil {
			return fmt.Errorf("fetch messages: %w", err)
		}
		c.bus.Emit(bus.StorageMessages{Messages: msgs})
		return nil
	})

	bus.Handle(c.bus, func(ev bus.StorageRecordMessages) error {
		return c.deps.RecordMessages(c.ctx, ev.Messages)
	})

	bus.Handle(c.bus, func(bus.StorageFetchDialogs) error {
		dialogs, err := c.deps.Dialogs.Fetch(c.ctx)
		if err != nil {
			return fmt.Errorf("fetch dialogs: %w", err)
		}
		out := make([]types.Dialog, len(dialogs))
		for i, d := range dialogs {
			out[i] = *d
		}
		c.bus.Emit(bus.StorageDialogs{Dialogs: out})
		return nil
	})

	bus.Handle(c.bus, func(ev bus.StorageRecordDialogs) error {
		dialogs := make([]*types.Dialog, len(ev.Dialogs))
		for i := range ev.Dialogs {
			dialogs[i] = &ev.Dialogs[i]
		}
		if err := c.deps.Dialogs.Record(c.ctx, dialogs); err != nil {
			return fmt.Errorf("record dialogs: %w", err)
		}
		return nil
	})

	bus.Handle(c.bus, c.searchMessages)

	bus.Handle(c.bus, func(ev bus.StorageFetchMessageContext) error {
		before, after := storage.DefaultContextSize, storage.DefaultContextSize
		if ev.Before != nil {
			before = *ev.Before
		}
		if ev.After != nil {
			after = *ev.After
		}
		msgs, err := c.deps.Messages.Context(c.ctx, ev.ChatID, ev.MessageID, before, after)
		if err != nil {
			return fmt.Errorf("fetch message context: %w", err)
		}
		c.bus.Emit(bus.StorageMessagesContext{
			Messages:  msgs,
			ChatID:    ev.ChatID,
			MessageID: ev.MessageID,
			Before:    before,
			After:     after,
		})
		return nil
	})
}

func (c *Core) searchMessages(ev bus.StorageSearchMessages) error {
	q := storage.SearchQuery{
		ChatID:     ev.ChatID,
		Content:    ev.Content,
		Pagination: ev.Pagination,
	}
	if ev.UseVector && c.deps.Embedder != nil && ev.Content != "" {
		vecs, err := c.deps.Embedder.Embed(c.ctx, []string{ev.Content})
		if err != nil {
			// Fall back to lexical search rather than failing the request.
			c.logger.Warn("embed search query failed", "error", err)
		} else if len(vecs) == 1 {
			q.Embedding = vecs[0]
		}
	}

	results, err := c.deps.Messages.Search(c.ctx, q)
	if err != nil {
		return fmt.Errorf("search messages: %w", err)
	}
	c.bus.Emit(bus.StorageSearchMessagesData{Messages: results})
	return nil
}

// RetrieveDocuments runs hybrid document retrieval for text. The query is
// embedded when an embedder is configured; if that fails, or the vector does
// not fit the 1536 summary column, only the lexical path runs.
func (d *Deps) RetrieveDocuments(ctx context.Context, text string, page *types.Pagination) ([]*types.Document, error) {
	q := storage.RetrievalQuery{Text: text}
	if d.Embedder != nil && text != "" {
		vecs, err := d.Embedder.Embed(ctx, []string{text})
		switch {
		case err != nil:
			d.logger().Warn("embed document query failed", "error", err)
		case len(vecs) == 1 && len(vecs[0]) == 1536:
			q.Embedding = vecs[0]
		default:
			d.logger().Debug("skipping vector retrieval", "dimension", d.Embedder.Dimension())
		}
	}
	docs, err := d.Documents.Retrieve(ctx, q, page)
	if err != nil {
		return nil, fmt.Errorf("retrieve documents: %w", err)
	}
	return docs, nil
}
