// Package resolver enriches message batches before they are stored. Every
// stage takes an ordered sequence of messages and yields the same messages,
// in the same order, possibly modified in place. Stages never drop messages.
package resolver

import (
	"context"
	"iter"
	"slices"

	"github.com/user/tgsearch/internal/types"
)

type Resolver interface {
	Name() string
	Resolve(ctx context.Context, msgs iter.Seq[*types.Message]) iter.Seq[*types.Message]
}

// Pipeline chains resolvers in order.
type Pipeline struct {
	stages []Resolver
}

func NewPipeline(stages ...Resolver) *Pipeline {
	return &Pipeline{stages: stages}
}

func (p *Pipeline) Resolve(ctx context.Context, msgs iter.Seq[*types.Message]) iter.Seq[*types.Message] {
	for _, stage := range p.stages {
		msgs = stage.Resolve(ctx, msgs)
	}
	return msgs
}

// Run resolves msgs through every stage and returns them as a slice.
func (p *Pipeline) Run(ctx context.Context, msgs []*types.Message) []*types.Message {
	return slices.Collect(p.Resolve(ctx, slices.Values(msgs)))
}
