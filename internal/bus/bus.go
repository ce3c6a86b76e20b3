// Package bus implements the typed in-process event bus shared by the core
// services and the bridge.
//
// Every name has at most one persistent handler (last registration wins)
// and a FIFO queue of one-shot waiters. Emit is synchronous: it runs the
// persistent handler, then pops and runs the oldest waiter, then notifies
// taps. Handler errors and panics are logged and never reach the emitter.
package bus

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/user/tgsearch/internal/metrics"
)

// Handler consumes one event. A returned error is logged by the bus.
type Handler func(Event) error

type waiter struct {
	id uint64
	fn Handler
}

type Bus struct {
	name     string
	logger   *slog.Logger
	mu       sync.Mutex
	handlers map[Name]Handler
	waiters  map[Name][]waiter
	taps     map[uint64]Handler
	nextID   uint64
}

// New creates an empty bus. name shows up in logs to tell the core and
// client buses apart.
func New(name string, logger *slog.Logger) *Bus {
	if logger == nil {
		logger = slog.Default()
	}
	return &Bus{
		name:     name,
		logger:   logger.With("component", "bus", "bus", name),
		handlers: make(map[Name]Handler),
		waiters:  make(map[Name][]waiter),
		taps:     make(map[uint64]Handler),
	}
}

// On registers the persistent handler for name, replacing any previous one.
func (b *Bus) On(name Name, fn Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[name] = fn
}

// Off removes the persistent handler for name.
func (b *Bus) Off(name Name) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.handlers, name)
}

// Once queues fn to run on the next emission of name. The returned cancel
// withdraws it and reports whether it was still queued.
func (b *Bus) Once(name Name, fn Handler) (cancel func() bool) {
	b.mu.Lock()
	b.nextID++
	id := b.nextID
	b.waiters[name] = append(b.waiters[name], waiter{id: id, fn: fn})
	b.mu.Unlock()

	return func() bool {
		b.mu.Lock()
		defer b.mu.Unlock()
		queue := b.waiters[name]
		for i, w := range queue {
			if w.id == id {
				b.waiters[name] = append(queue[:i:i], queue[i+1:]...)
				return true
			}
		}
		return false
	}
}

// Tap observes every emitted event after the handlers ran. The returned
// function removes the tap.
func (b *Bus) Tap(fn Handler) (remove func()) {
	b.mu.Lock()
	b.nextID++
	id := b.nextID
	b.taps[id] = fn
	b.mu.Unlock()

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		delete(b.taps, id)
	}
}

// Emit delivers ev synchronously. Emitting a name nobody listens to is a
// no-op.
func (b *Bus) Emit(ev Event) {
	name := ev.Name()
	metrics.RecordEvent(string(name))

	b.mu.Lock()
	handler := b.handlers[name]
	var next Handler
	if queue := b.waiters[name]; len(queue) > 0 {
		next = queue[0].fn
		if len(queue) == 1 {
			delete(b.waiters, name)
		} else {
			b.waiters[name] = queue[1:]
		}
	}
	taps := make([]Handler, 0, len(b.taps))
	for _, t := range b.taps {
		taps = append(taps, t)
	}
	b.mu.Unlock()

	if handler != nil {
		b.invoke(ev, handler)
	}
	if next != nil {
		b.invoke(ev, next)
	}
	for _, t := range taps {
		b.invoke(ev, t)
	}
}

// Pending returns the number of queued one-shot waiters for name.
func (b *Bus) Pending(name Name) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.waiters[name])
}

func (b *Bus) invoke(ev Event, fn Handler) {
	defer func() {
		if r := recover(); r != nil {
			metrics.RecordHandlerFailure(string(ev.Name()))
			b.logger.Error("event handler panicked", "event", ev.Name(), "payload", ev, "panic", r)
		}
	}()
	if err := fn(ev); err != nil {
		metrics.RecordHandlerFailure(string(ev.Name()))
		b.logger.Error("event handler failed", "event", ev.Name(), "payload", ev, "error", err)
	}
}

// Next queues a one-shot waiter for name right away and returns a future
// that resolves with the matching event.
func (b *Bus) Next(name Name) *Future {
	f := &Future{name: name, ch: make(chan Event, 1)}
	f.cancel = b.Once(name, func(ev Event) error {
		f.ch <- ev
		return nil
	})
	return f
}

// Future is the single-resolution result of Next.
type Future struct {
	name   Name
	ch     chan Event
	cancel func() bool
}

// Wait blocks until the event arrives or ctx ends. When ctx ends first the
// waiter leaves the queue, so it never consumes a later event.
func (f *Future) Wait(ctx context.Context) (Event, error) {
	select {
	case ev := <-f.ch:
		return ev, nil
	case <-ctx.Done():
		if f.cancel() {
			return nil, fmt.Errorf("wait for %s: %w", f.name, ctx.Err())
		}
		// Already popped by an emission in flight; its value is on the way.
		return <-f.ch, nil
	}
}

// Handle registers a typed persistent handler for the event kind E.
func Handle[E Event](b *Bus, fn func(E) error) {
	var zero E
	b.On(zero.Name(), func(ev Event) error {
		e, ok := ev.(E)
		if !ok {
			return fmt.Errorf("%w: %T for %s", ErrPayloadType, ev, zero.Name())
		}
		return fn(e)
	})
}

// WaitFor waits for the next event of kind E.
func WaitFor[E Event](ctx context.Context, b *Bus) (E, error) {
	var zero E
	ev, err := b.Next(zero.Name()).Wait(ctx)
	if err != nil {
		return zero, err
	}
	e, ok := ev.(E)
	if !ok {
		return zero, fmt.Errorf("%w: %T for %s", ErrPayloadType, ev, zero.Name())
	}
	return e, nil
}
