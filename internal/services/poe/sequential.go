package poe

import (
	"context"
	"fmt"

	"github.com/fgeck/poecheck/internal/models"
)

// Controller enables one port at a time, measures it and disables it again
// when it passed. Failed ports are left enabled for inspection.
type Controller struct {
	bench Bench
}

// NewController creates a sequential activation controller.
func NewController(b Bench) *Controller {
	return &Controller{bench: b}
}

// Run processes every port in registry order. The first error aborts the
// pass.
func (c *Controller) Run(ctx context.Context) error {
	b := c.bench
	for _, id := range b.Registry.IDs() {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := c.activate(ctx, id); err != nil {
			return fmt.Errorf("port %s: %w", id, err)
		}
	}
	return nil
}

func (c *Controller) activate(ctx context.Context, id string) error {
	b := c.bench

	if err := b.Switch.SetPortAdmin(ctx, id, models.AdminEnabled); err != nil {
		return err
	}
	if err := b.Registry.SetAdminState(id, models.AdminEnabled); err != nil {
		return err
	}
	if err := b.Clock.Sleep(ctx, b.Settings.SettleDelay); err != nil {
		return err
	}

	reading, err := b.Switch.PortPower(ctx, id)
	if err != nil {
		return err
	}
	reading.Offset = b.RunClock.Elapsed()
	if err := b.Registry.RecordPower(id, reading.Watts, reading.PowerPresent); err != nil {
		return err
	}
	class, err := b.Registry.Classify(id, b.Settings.MinConsumption)
	if err != nil {
		return err
	}

	b.Logger.Debug().
		Str("port", id).
		Int("watts", reading.Watts).
		Bool("power_present", reading.PowerPresent).
		Str("classification", string(class)).
		Msg("port measured")

	b.observer().Observe(models.Observation{
		Kind:           models.ObservationActivation,
		Port:           id,
		Watts:          reading.Watts,
		PowerPresent:   reading.PowerPresent,
		Classification: class,
		Offset:         reading.Offset,
	})

	if class != models.ClassSuccess {
		return nil
	}

	if err := b.Clock.Sleep(ctx, b.Settings.SettleDelay); err != nil {
		return err
	}
	if err := b.Switch.SetPortAdmin(ctx, id, models.AdminDisabled); err != nil {
		return err
	}
	return b.Registry.SetAdminState(id, models.AdminDisabled)
}
