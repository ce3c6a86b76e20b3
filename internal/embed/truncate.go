package embed

import (
	"log/slog"
	"sync"

	"github.com/pkoukk/tiktoken-go"
)

// truncator cuts inputs to the model's token budget. The encoding is loaded
// on first use; if it cannot be loaded inputs pass through untouched.
type truncator struct {
	model     string
	maxTokens int
	logger    *slog.Logger

	once sync.Once
	enc  *tiktoken.Tiktoken
}

func newTruncator(model string, maxTokens int, logger *slog.Logger) *truncator {
	return &truncator{model: model, maxTokens: maxTokens, logger: logger}
}

func (t *truncator) truncate(text string) string {
	if t.maxTokens <= 0 || len(text) <= t.maxTokens {
		// A token spans at least one byte.
		return text
	}

	t.once.Do(func() {
		enc, err := tiktoken.EncodingForModel(t.model)
		if err != nil {
			enc, err = tiktoken.GetEncoding("cl100k_base")
		}
		if err != nil {
			t.logger.Warn("token encoding unavailable, inputs will not be truncated", "error", err)
			return
		}
		t.enc = enc
	})
	if t.enc == nil {
		return text
	}

	tokens := t.enc.Encode(text, nil, nil)
	if len(tokens) <= t.maxTokens {
		return text
	}
	return t.enc.Decode(tokens[:t.maxTokens])
}
