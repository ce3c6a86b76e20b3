package resolver

import (
	"context"
	"iter"

	"github.com/user/tgsearch/internal/types"
)

// TokenResolver fills Message.Tokens for messages with content.
type TokenResolver struct {
	tokenizer types.Tokenizer
}

func NewTokenResolver(tokenizer types.Tokenizer) *TokenResolver {
	return &TokenResolver{tokenizer: tokenizer}
}

func (r *TokenResolver) Name() string { return "tokens" }

func (r *TokenResolver) Resolve(ctx context.Context, msgs iter.Seq[*types.Message]) iter.Seq[*types.Message] {
	return func(yield func(*types.Message) bool) {
		for m := range msgs {
			if r.tokenizer != nil && m.Content != "" && len(m.Tokens) == 0 {
				m.Tokens = r.tokenizer.Tokenize(m.Content)
			}
			if !yield(m) {
				return
			}
		}
	}
}
