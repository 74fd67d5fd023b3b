package poe

import (
	"context"

	"github.com/fgeck/poecheck/internal/models"
)

// Toggle powers a single port up, measures it and powers it down again
// regardless of the outcome. It is the manual counterpart of Controller used
// to collect switch logs for one port.
func Toggle(ctx context.Context, b Bench, id string) (models.Observation, error) {
	if err := b.Switch.SetPortAdmin(ctx, id, models.AdminEnabled); err != nil {
		return models.Observation{}, err
	}
	if err := b.Registry.SetAdminState(id, models.AdminEnabled); err != nil {
		return models.Observation{}, err
	}
	if err := b.Clock.Sleep(ctx, b.Settings.SettleDelay); err != nil {
		return models.Observation{}, err
	}

	reading, err := b.Switch.PortPower(ctx, id)
	if err != nil {
		return models.Observation{}, err
	}
	if err := b.Registry.RecordPower(id, reading.Watts, reading.PowerPresent); err != nil {
		return models.Observation{}, err
	}
	class, err := b.Registry.Classify(id, b.Settings.MinConsumption)
	if err != nil {
		return models.Observation{}, err
	}

	obs := models.Observation{
		Kind:           models.ObservationActivation,
		Port:           id,
		Watts:          reading.Watts,
		PowerPresent:   reading.PowerPresent,
		Classification: class,
		Offset:         b.RunClock.Elapsed(),
	}
	b.observer().Observe(obs)

	if err := b.Clock.Sleep(ctx, b.Settings.SettleDelay); err != nil {
		return obs, err
	}
	if err := b.Switch.SetPortAdmin(ctx, id, models.AdminDisabled); err != nil {
		return obs, err
	}
	return obs, b.Registry.SetAdminState(id, models.AdminDisabled)
}
