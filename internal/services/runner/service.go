// Package runner orchestrates a PoE verification run.
package runner

import (
	"context"
	"errors"
	"fmt"

	"github.com/fgeck/poecheck/internal/models"
	"github.com/fgeck/poecheck/internal/services/metrics"
	"github.com/fgeck/poecheck/internal/services/poe"
	"github.com/fgeck/poecheck/internal/services/registry"
	"github.com/fgeck/poecheck/internal/services/session"
	"github.com/fgeck/poecheck/internal/services/telegram"
	"github.com/rs/zerolog"
)

// ErrInterrupted is returned when the run context was cancelled.
var ErrInterrupted = errors.New("interrupted")

// Service defines the interface for the PoE runner.
type Service interface {
	Run(ctx context.Context, cfg models.Config, mode models.Mode) (*models.RunResult, error)
	Toggle(ctx context.Context, cfg models.Config, port string, presses <-chan struct{}) error
}

// Impl implements the runner Service interface.
type Impl struct {
	sessionSvc  session.Service
	telegramSvc telegram.Service
	clock       poe.Clock
	observer    poe.Observer
	logger      zerolog.Logger
}

// New creates a new runner service. observer may be nil.
func New(logger zerolog.Logger, observer poe.Observer) *Impl {
	return &Impl{
		sessionSvc:  session.New(logger),
		telegramSvc: telegram.New(logger),
		clock:       poe.RealClock{},
		observer:    observer,
		logger:      logger,
	}
}

// NewWithServices creates a new runner service with custom services (for testing).
func NewWithServices(
	logger zerolog.Logger,
	sessionSvc session.Service,
	telegramSvc telegram.Service,
	clock poe.Clock,
	observer poe.Observer,
) *Impl {
	return &Impl{
		sessionSvc:  sessionSvc,
		telegramSvc: telegramSvc,
		clock:       clock,
		observer:    observer,
		logger:      logger,
	}
}

// Run prepares the switch and drives the chosen mode. A failed attempt is
// followed by a settle pause and a complete re-run, at most cfg.Test.Retries
// times. The session is opened once and closed when the run ends.
func (s *Impl) Run(ctx context.Context, cfg models.Config, mode models.Mode) (*models.RunResult, error) {
	if mode != models.ModeSequential && mode != models.ModeMonitor {
		return nil, fmt.Errorf("unsupported mode %q", mode)
	}

	reg, err := registry.New(cfg.Test.Ports)
	if err != nil {
		return nil, fmt.Errorf("invalid port list: %w", err)
	}

	runClock := poe.StartRunClock(s.clock)
	result := &models.RunResult{
		Mode:      mode,
		StartTime: runClock.Start(),
	}

	observers := poe.Observers{s.observer}
	var recorder *metrics.Recorder
	if cfg.Metrics.Textfile != "" {
		recorder = metrics.NewRecorder(cfg.Switch.Host)
		observers = append(observers, recorder)
	}

	s.logger.Info().
		Str("switch", cfg.Switch.Host).
		Str("mode", string(mode)).
		Strs("ports", cfg.Test.Ports).
		Msg("starting PoE run")

	defer func() {
		result.Ports = reg.Ports()
		result.Duration = runClock.Elapsed()
		interrupted := errors.Is(result.Error, ErrInterrupted)

		if recorder != nil {
			recorder.RecordRun(result, interrupted)
			if err := recorder.WriteTextfile(cfg.Metrics.Textfile); err != nil {
				s.logger.Error().Err(err).Msg("failed to export metrics")
			}
		}
		if cfg.Telegram != nil {
			s.sendNotification(context.WithoutCancel(ctx), cfg, result, interrupted)
		}
	}()

	fail := func(err error) (*models.RunResult, error) {
		result.Error = err
		return result, err
	}

	sess, err := s.sessionSvc.Open(ctx, cfg.Switch, cfg.Commands)
	if err != nil {
		if ctx.Err() != nil {
			return fail(asInterrupted(err))
		}
		return fail(fmt.Errorf("failed to open session: %w", err))
	}
	defer func() {
		if err := sess.Close(); err != nil {
			s.logger.Warn().Err(err).Msg("failed to close session")
		}
	}()

	bench := poe.Bench{
		Switch:   poe.NewSwitch(sess, cfg.Commands, s.logger),
		Registry: reg,
		Clock:    s.clock,
		RunClock: runClock,
		Settings: cfg.Test,
		Observer: observers,
		Logger:   s.logger,
	}

	if err := s.attempts(ctx, bench, mode, result); err != nil {
		return fail(err)
	}

	s.logger.Info().
		Int("attempts", result.Attempts).
		Int("succeeded", result.Succeeded()).
		Int("failed", result.Failed()).
		Dur("duration", runClock.Elapsed()).
		Msg("PoE run completed")

	return result, nil
}

func (s *Impl) attempts(ctx context.Context, b poe.Bench, mode models.Mode, result *models.RunResult) error {
	maxAttempts := b.Settings.Retries + 1
	var lastErr error

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if attempt > 1 {
			s.logger.Warn().
				Err(lastErr).
				Int("attempt", attempt).
				Msg("attempt failed, re-running the whole procedure")
			if err := b.Clock.Sleep(ctx, b.Settings.SettleDelay); err != nil {
				return asInterrupted(err)
			}
		}

		result.Attempts = attempt
		err := s.attempt(ctx, b, mode, result)
		if err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return asInterrupted(err)
		}
		lastErr = err
	}

	return fmt.Errorf("run failed after %d attempts: %w", maxAttempts, lastErr)
}

func (s *Impl) attempt(ctx context.Context, b poe.Bench, mode models.Mode, result *models.RunResult) error {
	if err := s.prepare(ctx, b); err != nil {
		return fmt.Errorf("preparing: %w", err)
	}

	switch mode {
	case models.ModeMonitor:
		passes, err := poe.NewMonitor(b).Run(ctx)
		result.Passes = passes
		if err != nil {
			return fmt.Errorf("monitoring: %w", err)
		}
	default:
		if err := poe.NewController(b).Run(ctx); err != nil {
			return fmt.Errorf("activation: %w", err)
		}
	}
	return nil
}

// prepare brings the switch into a known state: PoE on, ceiling set, every
// port under test disabled.
func (s *Impl) prepare(ctx context.Context, b poe.Bench) error {
	status, err := b.Switch.PoEStatus(ctx)
	if err != nil {
		return err
	}
	if status == models.StatusDisabled {
		s.logger.Info().Msg("PoE function disabled, enabling")
		if err := b.Switch.EnablePoE(ctx); err != nil {
			return err
		}
	}

	if err := b.Switch.SetPowerLimit(ctx, b.Settings.PowerLimit); err != nil {
		return err
	}

	if b.Settings.PortMode != "" {
		for _, id := range b.Registry.IDs() {
			if err := b.Switch.SetPortMode(ctx, id, b.Settings.PortMode); err != nil {
				return err
			}
		}
	}

	for _, id := range b.Registry.IDs() {
		if err := b.Switch.SetPortAdmin(ctx, id, models.AdminDisabled); err != nil {
			return err
		}
		if err := b.Registry.Reset(id); err != nil {
			return err
		}
		if err := b.Clock.Sleep(ctx, b.Settings.SettleDelay); err != nil {
			return err
		}
	}
	return nil
}

// Toggle runs one enable, measure, disable cycle on port for every value
// received from presses. It returns when presses is closed.
func (s *Impl) Toggle(ctx context.Context, cfg models.Config, port string, presses <-chan struct{}) error {
	reg, err := registry.New([]string{port})
	if err != nil {
		return fmt.Errorf("invalid port: %w", err)
	}

	sess, err := s.sessionSvc.Open(ctx, cfg.Switch, cfg.Commands)
	if err != nil {
		if ctx.Err() != nil {
			return asInterrupted(err)
		}
		return fmt.Errorf("failed to open session: %w", err)
	}
	defer func() {
		if err := sess.Close(); err != nil {
			s.logger.Warn().Err(err).Msg("failed to close session")
		}
	}()

	bench := poe.Bench{
		Switch:   poe.NewSwitch(sess, cfg.Commands, s.logger),
		Registry: reg,
		Clock:    s.clock,
		RunClock: poe.StartRunClock(s.clock),
		Settings: cfg.Test,
		Observer: poe.Observers{s.observer},
		Logger:   s.logger,
	}
	bench.Settings.Ports = []string{port}
	bench.Settings.PortMode = ""

	if err := s.prepare(ctx, bench); err != nil {
		if ctx.Err() != nil {
			return asInterrupted(err)
		}
		return fmt.Errorf("preparing: %w", err)
	}

	for {
		select {
		case <-ctx.Done():
			return asInterrupted(ctx.Err())
		case _, ok := <-presses:
			if !ok {
				return nil
			}
			obs, err := poe.Toggle(ctx, bench, port)
			if err != nil {
				if ctx.Err() != nil {
					return asInterrupted(err)
				}
				return fmt.Errorf("port %s: %w", port, err)
			}
			s.logger.Debug().
				Str("port", port).
				Int("watts", obs.Watts).
				Str("classification", string(obs.Classification)).
				Msg("toggle cycle finished")
		}
	}
}

func asInterrupted(err error) error {
	if errors.Is(err, ErrInterrupted) {
		return err
	}
	return fmt.Errorf("%w: %w", ErrInterrupted, err)
}

func (s *Impl) sendNotification(ctx context.Context, cfg models.Config, result *models.RunResult, interrupted bool) {
	msg := models.TelegramMessage{
		Success:     result.Error == nil,
		Switch:      cfg.Switch.Host,
		Mode:        result.Mode,
		StartTime:   result.StartTime,
		Duration:    result.Duration,
		Attempts:    result.Attempts,
		Passes:      result.Passes,
		Ports:       result.Ports,
		Succeeded:   result.Succeeded(),
		Failed:      result.Failed(),
		Interrupted: interrupted,
	}
	if result.Error != nil {
		msg.ErrorMessage = result.Error.Error()
	}

	res, err := s.telegramSvc.SendNotification(ctx, *cfg.Telegram, msg)
	if err != nil {
		s.logger.Error().Err(err).Msg("failed to send Telegram notification")
		return
	}
	if res.Error != nil {
		s.logger.Error().Err(res.Error).Msg("failed to send Telegram notification")
		return
	}

	s.logger.Info().Msg("Telegram notification sent")
}
