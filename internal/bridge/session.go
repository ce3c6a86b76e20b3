package bridge

import (
	"context"
	"fmt"

	"github.com/user/tgsearch/internal/bus"
	"github.com/user/tgsearch/internal/session"
)

// registerClientHandlers keeps the active session in step with the core.
// Each handler also asks the core to forward its event, the same way a
// UI-side handler registration does.
func (b *Bridge) registerClientHandlers(ctx context.Context) {
	b.onClient(ctx, bus.NameEntityMeData, func(ev bus.Event) error {
		me := ev.(bus.EntityMeData).User
		_, err := b.UpdateActiveSession(session.Patch{Me: &me})
		return err
	})

	b.onClient(ctx, bus.NameAuthConnected, func(bus.Event) error {
		connected := true
		_, err := b.UpdateActiveSession(session.Patch{Connected: &connected})
		return err
	})

	b.onClient(ctx, bus.NameAuthLogout, func(bus.Event) error {
		return b.Cleanup()
	})
}

func (b *Bridge) onClient(ctx context.Context, name bus.Name, fn bus.Handler) {
	b.client.On(name, fn)
	b.SendEvent(ctx, bus.ServerEventRegister{Event: name})
}

// ActiveSession returns the stored active session, or nil when nothing has
// been stored for it yet.
func (b *Bridge) ActiveSession() (*session.Session, error) {
	return b.sessions.Active()
}

// UpdateActiveSession merges patch into the active session.
func (b *Bridge) UpdateActiveSession(patch session.Patch) (*session.Session, error) {
	id, err := b.sessions.ActiveID()
	if err != nil {
		return nil, fmt.Errorf("load active session: %w", err)
	}
	sess, err := b.sessions.UpdateActive(id, patch)
	if err != nil {
		return nil, fmt.Errorf("update session: %w", err)
	}
	return sess, nil
}

// Cleanup forgets every stored session and starts a fresh active one.
func (b *Bridge) Cleanup() error {
	id, err := b.sessions.Cleanup()
	if err != nil {
		return fmt.Errorf("cleanup sessions: %w", err)
	}
	b.logger.Info("sessions cleared", "active_session_id", id)
	return nil
}
