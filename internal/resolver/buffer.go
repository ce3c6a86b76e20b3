package resolver

import (
	"context"
	"sync"

	"github.com/user/tgsearch/internal/types"
)

// DocumentBuffer holds documents produced during resolution until their
// source messages are stored, since documents reference stored message rows.
type DocumentBuffer struct {
	mu   sync.Mutex
	docs []*types.Document
}

func (b *DocumentBuffer) Record(_ context.Context, docs []*types.Document) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.docs = append(b.docs, docs...)
	return nil
}

func (b *DocumentBuffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.docs)
}

// Flush records the buffered documents through rec in one batch and empties
// the buffer. ids maps message ids assigned before storage to the stored
// row ids, for messages that were already archived under another id.
func (b *DocumentBuffer) Flush(ctx context.Context, rec types.DocumentRecorder, ids map[types.MessageID]types.MessageID) error {
	b.mu.Lock()
	docs := b.docs
	b.docs = nil
	b.mu.Unlock()

	for _, doc := range docs {
		if stored, ok := ids[doc.MessageID]; ok {
			doc.MessageID = stored
		}
	}
	return rec.Record(ctx, docs)
}
