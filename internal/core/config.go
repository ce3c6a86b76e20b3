package core

import (
	"fmt"

	"github.com/user/tgsearch/internal/bus"
)

func (c *Core) registerConfig() {
	bus.Handle(c.bus, func(bus.ConfigFetch) error {
		c.bus.Emit(bus.ConfigData{Config: *c.deps.Config.Get()})
		return nil
	})

	// A rejected patch is returned to the bus for logging; the previous
	// configuration stays in effect and no config:data is emitted.
	bus.Handle(c.bus, func(ev bus.ConfigUpdate) error {
		next, err := c.deps.Config.Update(ev.Config)
		if err != nil {
			return fmt.Errorf("update config: %w", err)
		}
		c.bus.Emit(bus.ConfigData{Config: *next})
		return nil
	})
}
