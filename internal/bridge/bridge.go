// Package bridge couples a client-side bus to a core bus for one
// connection. Commands from the client are queued per session and emitted
// into the core; core events the client registered for are forwarded back.
package bridge

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/user/tgsearch/internal/bus"
	"github.com/user/tgsearch/internal/core"
	"github.com/user/tgsearch/internal/db"
	"github.com/user/tgsearch/internal/session"
	"github.com/user/tgsearch/internal/types"
)

// serverPrefix marks bridge-internal event names, which are never forwarded.
const serverPrefix = "server:"

type Bridge struct {
	core     *core.Core
	coreBus  *bus.Bus
	client   *bus.Bus
	gateway  *db.Gateway
	sessions *session.Store
	queue    *Queue
	logger   *slog.Logger
	mounted  atomic.Bool

	mu        sync.Mutex
	lane      types.SessionID
	forwarded map[bus.Name]bool
	removeTap func()
}

// New creates the core and client buses for one connection and registers
// the client-side session handlers. queue is shared by every bridge of the
// process and must be started.
func New(ctx context.Context, deps *core.Deps, sessions *session.Store, queue *Queue, logger *slog.Logger) (*Bridge, error) {
	lane, err := sessions.ActiveID()
	if err != nil {
		return nil, fmt.Errorf("load active session: %w", err)
	}

	coreBus := bus.New("core", logger)
	b := &Bridge{
		coreBus:   coreBus,
		client:    bus.New("client", logger),
		gateway:   deps.Gateway,
		sessions:  sessions,
		queue:     queue,
		lane:      types.SessionID(lane),
		logger:    logger.With("component", "bridge"),
		forwarded: make(map[bus.Name]bool),
	}
	b.core = core.New(ctx, deps, coreBus)
	b.removeTap = coreBus.Tap(b.forward)

	b.registerClientHandlers(ctx)
	return b, nil
}

// Client returns the client-side bus. Transports tap it to deliver
// forwarded events.
func (b *Bridge) Client() *bus.Bus {
	return b.client
}

// Core returns the core-side bus.
func (b *Bridge) Core() *bus.Bus {
	return b.coreBus
}

// Mount initializes the database and announces the session to the client.
// Database failures are returned to the caller.
func (b *Bridge) Mount(ctx context.Context) error {
	if err := b.gateway.Init(ctx); err != nil {
		return err
	}
	id, err := b.sessions.ActiveID()
	if err != nil {
		return fmt.Errorf("load active session: %w", err)
	}
	b.mounted.Store(true)
	b.client.Emit(bus.ServerConnected{SessionID: id, Connected: false})
	return nil
}

// activeLane is the queue lane of the current active session. A logout
// starts a new session, so the lane is looked up for every command; the
// last known lane is kept if the store cannot be read.
func (b *Bridge) activeLane() types.SessionID {
	id, err := b.sessions.ActiveID()
	b.mu.Lock()
	defer b.mu.Unlock()
	if err != nil {
		b.logger.Warn("failed to load active session, keeping lane", "session_id", b.lane, "error", err)
		return b.lane
	}
	b.lane = types.SessionID(id)
	return b.lane
}

// SendEvent hands one client command to the core. Registrations take
// effect immediately; every other event is emitted into the core bus in
// the order this session sent it, and is dropped until Mount succeeded.
// Failures are logged, never returned.
func (b *Bridge) SendEvent(ctx context.Context, ev bus.Event) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("send event panicked", "event", ev.Name(), "payload", ev, "panic", r)
		}
	}()

	if reg, ok := ev.(bus.ServerEventRegister); ok {
		b.register(reg.Event)
		return
	}
	if !b.mounted.Load() {
		b.logger.Warn("dropping event sent before mount", "event", ev.Name())
		return
	}
	lane := b.activeLane()

	var cancel func() bool
	switch ev.(type) {
	case bus.AuthLogin:
		cancel = b.coreBus.Once(bus.NameAuthConnected, func(bus.Event) error {
			b.logger.Info("login completed")
			return nil
		})
	case bus.AuthLogout:
		cancel = b.coreBus.Once(bus.NameAuthLogout, func(bus.Event) error {
			b.logger.Info("logout processed")
			return nil
		})
	}

	err := b.queue.Enqueue(&Job{
		SessionID: lane,
		Event:     ev.Name(),
		Run:       func(context.Context) { b.coreBus.Emit(ev) },
	})
	if err != nil {
		if cancel != nil {
			cancel()
		}
		b.logger.Error("failed to send event", "event", ev.Name(), "session_id", lane, "payload", ev, "error", err)
	}
}

// SendRaw decodes a wire payload and sends it like SendEvent.
func (b *Bridge) SendRaw(ctx context.Context, name bus.Name, data json.RawMessage) {
	ev, err := bus.Decode(name, data)
	if err != nil {
		b.logger.Error("failed to decode event", "event", name, "payload", string(data), "error", err)
		return
	}
	b.SendEvent(ctx, ev)
}

// register forwards name from the core bus to the client bus. Registering
// twice is harmless; server-prefixed names are ignored.
func (b *Bridge) register(name bus.Name) {
	if strings.HasPrefix(string(name), serverPrefix) {
		b.logger.Debug("ignoring registration of server event", "event", name)
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.forwarded[name] {
		b.forwarded[name] = true
		b.logger.Debug("forwarding event", "event", name)
	}
}

func (b *Bridge) forward(ev bus.Event) error {
	b.mu.Lock()
	ok := b.forwarded[ev.Name()]
	b.mu.Unlock()
	if ok {
		b.client.Emit(ev)
	}
	return nil
}

// WaitForEvent resolves with the next client-side event named name.
// Concurrent waiters are served in call order, one event each.
func (b *Bridge) WaitForEvent(ctx context.Context, name bus.Name) (bus.Event, error) {
	return b.client.Next(name).Wait(ctx)
}

// WaitFor is the typed form of WaitForEvent.
func WaitFor[E bus.Event](ctx context.Context, b *Bridge) (E, error) {
	return bus.WaitFor[E](ctx, b.client)
}

// Close detaches the bridge from the core and stops its services. Queued
// commands of the session still run.
func (b *Bridge) Close() {
	b.mu.Lock()
	remove := b.removeTap
	b.removeTap = nil
	b.mu.Unlock()
	if remove != nil {
		remove()
	}
	b.core.Close()
}
