package poe

import (
	"context"
	"fmt"
	"time"

	"github.com/fgeck/poecheck/internal/models"
	"github.com/fgeck/poecheck/internal/services/parser"
)

// Monitor polls every port until the time budget is spent.
type Monitor struct {
	bench Bench
}

// NewMonitor creates a continuous monitoring loop.
func NewMonitor(b Bench) *Monitor {
	return &Monitor{bench: b}
}

// Run surveys all ports, waits the survey delay and repeats while the elapsed
// run time is within the budget. It returns the number of completed passes.
func (m *Monitor) Run(ctx context.Context) (int, error) {
	b := m.bench
	passes := 0

	for b.RunClock.Elapsed() <= b.Settings.TimeBudget {
		if err := ctx.Err(); err != nil {
			return passes, err
		}
		if err := m.survey(ctx, passes+1); err != nil {
			return passes, fmt.Errorf("pass %d: %w", passes+1, err)
		}
		passes++

		if err := m.pause(ctx); err != nil {
			return passes, err
		}
	}

	b.Logger.Info().
		Int("passes", passes).
		Dur("elapsed", b.RunClock.Elapsed()).
		Msg("monitoring time budget spent")
	return passes, nil
}

func (m *Monitor) survey(ctx context.Context, pass int) error {
	b := m.bench

	readings, err := b.Switch.PortStatuses(ctx, b.Registry.IDs())
	if err != nil {
		return err
	}

	for _, r := range readings {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := b.Registry.RecordStatus(r.Port, r.Status); err != nil {
			return err
		}

		switch r.Status {
		case models.StatusEnabled, models.StatusDelivering:
			if err := m.measure(ctx, r, pass); err != nil {
				return err
			}
			continue
		case models.StatusDisabled:
			if err := b.Registry.SetAdminState(r.Port, models.AdminDisabled); err != nil {
				return err
			}
		default:
			if !b.Settings.SkipUnknownStatus {
				return &parser.ParseError{
					Raw:    r.Raw,
					Reason: fmt.Sprintf("unrecognized status %q for port %s", r.Status, r.Port),
				}
			}
			b.Logger.Warn().Str("port", r.Port).Str("status", r.Status).Msg("unrecognized port status, skipping")
		}

		b.observer().Observe(models.Observation{
			Kind:   models.ObservationStatus,
			Port:   r.Port,
			Status: r.Status,
			Pass:   pass,
			Offset: b.RunClock.Elapsed(),
		})
	}
	return nil
}

func (m *Monitor) measure(ctx context.Context, status models.Reading, pass int) error {
	b := m.bench

	if err := b.Registry.SetAdminState(status.Port, models.AdminEnabled); err != nil {
		return err
	}
	reading, err := b.Switch.PortPower(ctx, status.Port)
	if err != nil {
		return err
	}
	if err := b.Registry.RecordPower(status.Port, reading.Watts, reading.PowerPresent); err != nil {
		return err
	}

	b.observer().Observe(models.Observation{
		Kind:         models.ObservationPower,
		Port:         status.Port,
		Watts:        reading.Watts,
		PowerPresent: reading.PowerPresent,
		Status:       status.Status,
		Pass:         pass,
		Offset:       b.RunClock.Elapsed(),
	})
	return nil
}

// pause waits the survey delay in one second steps so presenters can show a
// countdown.
func (m *Monitor) pause(ctx context.Context) error {
	b := m.bench
	countdown, _ := b.observer().(CountdownObserver)

	remaining := b.Settings.SurveyDelay
	for remaining > 0 {
		step := time.Second
		if remaining < step {
			step = remaining
		}
		remaining -= step
		if countdown != nil {
			countdown.Countdown(remaining)
		}
		if err := b.Clock.Sleep(ctx, step); err != nil {
			return err
		}
	}
	return nil
}
