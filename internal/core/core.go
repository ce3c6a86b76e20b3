// Package core wires the domain services onto a bus. One Core serves one
// bridge connection; the stores, database gateway and protocol client in
// Deps are shared by every Core in the process.
package core

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/user/tgsearch/internal/bus"
	"github.com/user/tgsearch/internal/config"
	"github.com/user/tgsearch/internal/db"
	"github.com/user/tgsearch/internal/gram"
	"github.com/user/tgsearch/internal/resolver"
	"github.com/user/tgsearch/internal/retry"
	"github.com/user/tgsearch/internal/storage"
	"github.com/user/tgsearch/internal/types"
)

// Deps are the process-wide collaborators handed to every Core.
type Deps struct {
	Config    config.Provider
	Gateway   *db.Gateway
	Messages  *storage.MessageStore
	Documents *storage.DocumentStore
	Dialogs   *storage.DialogStore
	Media     *storage.MediaCache
	Client    gram.Client
	// Embedder, Tokenizer and Scraper are optional; nil disables the
	// capability.
	Embedder  types.Embedder
	Tokenizer types.Tokenizer
	Scraper   resolver.Scraper
	Retry     *retry.Policy
	Logger    *slog.Logger
}

// NewStores builds the stores over gw.
func NewStores(d *Deps) {
	d.Messages = storage.NewMessageStore(d.Gateway, d.Tokenizer, d.logger())
	d.Documents = storage.NewDocumentStore(d.Gateway, d.Tokenizer, d.logger())
	d.Dialogs = storage.NewDialogStore(d.Gateway)
	d.Media = storage.NewMediaCache(d.Gateway)
}

func (d *Deps) logger() *slog.Logger {
	if d.Logger == nil {
		return slog.Default()
	}
	return d.Logger
}

// pipeline assembles the resolver stages available with the configured
// capabilities. Link documents go to docs.
func (d *Deps) pipeline(docs types.DocumentRecorder) *resolver.Pipeline {
	logger := d.logger()
	var stages []resolver.Resolver
	if d.Scraper != nil {
		stages = append(stages, resolver.NewLinkResolver(d.Scraper, docs, d.Tokenizer, d.Embedder, logger))
	}
	if d.Client != nil && d.Media != nil {
		stages = append(stages, resolver.NewMediaResolver(d.Client, d.Media, logger))
	}
	if d.Tokenizer != nil {
		stages = append(stages, resolver.NewTokenResolver(d.Tokenizer))
	}
	if d.Embedder != nil {
		stages = append(stages, resolver.NewEmbeddingResolver(d.Embedder, logger))
	}
	return resolver.NewPipeline(stages...)
}

// RecordMessages resolves msgs, stores them and then stores the documents
// derived from them. Documents reference stored rows, so they are buffered
// until the messages have their final ids.
func (d *Deps) RecordMessages(ctx context.Context, msgs []*types.Message) error {
	if len(msgs) == 0 {
		return nil
	}
	now := types.NowMillis()
	for _, m := range msgs {
		if m.UUID == "" {
			m.UUID = types.NewMessageID()
		}
		if m.CreatedAt == 0 {
			m.CreatedAt = now
		}
		m.UpdatedAt = now
	}

	buf := &resolver.DocumentBuffer{}
	resolved := d.pipeline(buf).Run(ctx, msgs)

	assigned := make([]types.MessageID, len(resolved))
	for i, m := range resolved {
		assigned[i] = m.UUID
	}
	if err := d.Messages.Record(ctx, resolved); err != nil {
		return fmt.Errorf("record messages: %w", err)
	}
	if buf.Len() == 0 {
		return nil
	}

	remap := make(map[types.MessageID]types.MessageID)
	for i, m := range resolved {
		if m.UUID != assigned[i] {
			remap[assigned[i]] = m.UUID
		}
	}
	if err := buf.Flush(ctx, d.Documents, remap); err != nil {
		return fmt.Errorf("record documents: %w", err)
	}
	return nil
}

// Core is the set of services registered on one bus.
type Core struct {
	deps   *Deps
	bus    *bus.Bus
	ctx    context.Context
	cancel context.CancelFunc
	logger *slog.Logger
	retry  *retry.Policy

	unsubscribe func()
}

// New registers every service on b. Handlers run with a context derived
// from ctx that Close cancels.
func New(ctx context.Context, deps *Deps, b *bus.Bus) *Core {
	ctx, cancel := context.WithCancel(ctx)
	c := &Core{
		deps:   deps,
		bus:    b,
		ctx:    ctx,
		cancel: cancel,
		logger: deps.logger().With("component", "core"),
		retry:  deps.Retry,
	}
	if c.retry == nil {
		c.retry = retry.Default()
	}

	c.registerConfig()
	c.registerStorage()
	c.registerAuth()
	c.registerGram()
	return c
}

// Bus returns the core-side bus.
func (c *Core) Bus() *bus.Bus {
	return c.bus
}

// Close cancels in-flight handlers and drops the message subscription.
func (c *Core) Close() {
	c.cancel()
	if c.unsubscribe != nil {
		c.unsubscribe()
	}
}
