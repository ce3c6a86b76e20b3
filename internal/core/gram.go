package core

import (
	"context"
	"log/slog"
	"sync"

	"github.com/user/tgsearch/internal/bus"
	"github.com/user/tgsearch/internal/gram"
	"github.com/user/tgsearch/internal/types"
)

// registerGram forwards new messages to this core's bus while
// api.telegram.receive_message is set. Archiving is done once per process
// by the Archiver, not per core.
func (c *Core) registerGram() {
	if c.deps.Client == nil {
		return
	}
	c.unsubscribe = c.deps.Client.Subscribe(func(in gram.Incoming) {
		if in.Message == nil || c.ctx.Err() != nil {
			return
		}
		if !c.deps.Config.Get().API.Telegram.ReceiveMessage {
			return
		}
		c.bus.Emit(bus.GramMessageReceived{Message: in.Message.Clone()})
	})
}

// Archiver records every message the protocol client receives, together
// with its chat, through the storage path.
type Archiver struct {
	deps   *Deps
	logger *slog.Logger

	mu          sync.Mutex
	unsubscribe func()
	wg          sync.WaitGroup
}

func NewArchiver(deps *Deps) *Archiver {
	return &Archiver{deps: deps, logger: deps.logger().With("component", "archiver")}
}

// Start subscribes to the client. Messages are recorded one at a time in
// arrival order until ctx ends or Stop is called.
func (a *Archiver) Start(ctx context.Context) {
	if a.deps.Client == nil {
		return
	}
	queue := make(chan gram.Incoming, 64)
	stopped := make(chan struct{})
	unsubscribe := a.deps.Client.Subscribe(func(in gram.Incoming) {
		// Other subscribers read the same message while it is archived.
		in.Message = in.Message.Clone()
		if in.Dialog != nil {
			dialog := *in.Dialog
			in.Dialog = &dialog
		}
		select {
		case queue <- in:
		case <-stopped:
		case <-ctx.Done():
		}
	})

	a.mu.Lock()
	a.unsubscribe = func() {
		unsubscribe()
		close(stopped)
	}
	a.mu.Unlock()

	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		for {
			select {
			case <-ctx.Done():
				return
			case <-stopped:
				return
			case in := <-queue:
				a.archive(ctx, in)
			}
		}
	}()
}

func (a *Archiver) archive(ctx context.Context, in gram.Incoming) {
	if in.Dialog != nil {
		if err := a.deps.Dialogs.Record(ctx, []*types.Dialog{in.Dialog}); err != nil {
			a.logger.Error("record dialog failed", "chat", in.Dialog.ID, "error", err)
		}
	}
	if in.Message == nil {
		return
	}
	if err := a.deps.RecordMessages(ctx, []*types.Message{in.Message}); err != nil {
		a.logger.Error("archive message failed",
			"chat", in.Message.ChatID, "message", in.Message.PlatformMessageID, "error", err)
		return
	}
	a.logger.Debug("archived message", "chat", in.Message.ChatID, "message", in.Message.PlatformMessageID)
}

// Stop unsubscribes and waits for the message being archived.
func (a *Archiver) Stop() {
	a.mu.Lock()
	stop := a.unsubscribe
	a.unsubscribe = nil
	a.mu.Unlock()
	if stop != nil {
		stop()
	}
	a.wg.Wait()
}
