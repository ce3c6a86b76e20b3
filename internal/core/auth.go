package core

import (
	"context"
	"errors"
	"fmt"

	"github.com/user/tgsearch/internal/bus"
)

var (
	ErrNoClient     = errors.New("no protocol client configured")
	ErrNoCredential = errors.New("no credential: pass a token or set api.telegram.bot_token")
)

func (c *Core) registerAuth() {
	bus.Handle(c.bus, c.login)

	// The command itself reaches the client through the forwarding tap, so
	// the handler only disconnects.
	bus.Handle(c.bus, func(bus.AuthLogout) error {
		if c.deps.Client == nil {
			return nil
		}
		c.deps.Client.Disconnect()
		c.logger.Info("logged out")
		return nil
	})
}

func (c *Core) login(ev bus.AuthLogin) error {
	if c.deps.Client == nil {
		return fmt.Errorf("login: %w", ErrNoClient)
	}
	credential := ev.Token
	if credential == "" {
		credential = c.deps.Config.Get().API.Telegram.BotToken
	}
	if credential == "" {
		return fmt.Errorf("login: %w", ErrNoCredential)
	}

	attempt := 0
	err := c.retry.Do(c.ctx, func(ctx context.Context) error {
		attempt++
		if err := c.deps.Client.Connect(ctx, credential); err != nil {
			c.logger.Warn("connect attempt failed", "attempt", attempt, "error", err)
			return err
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("login: %w", err)
	}

	me, err := c.deps.Client.Me(c.ctx)
	if err != nil {
		return fmt.Errorf("fetch me: %w", err)
	}
	c.logger.Info("logged in", "user", me.Username, "attempts", attempt)

	c.bus.Emit(bus.AuthConnected{})
	c.bus.Emit(bus.EntityMeData{User: *me})
	return nil
}
