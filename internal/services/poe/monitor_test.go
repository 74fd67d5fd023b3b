package poe

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/fgeck/poecheck/internal/models"
	"github.com/fgeck/poecheck/internal/services/parser"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func monitorSettings(budget, delay time.Duration, ports ...string) models.TestSettings {
	s := testSettings(ports...)
	s.TimeBudget = budget
	s.SurveyDelay = delay
	return s
}

func TestMonitor_TwoPassesInTenSeconds(t *testing.T) {
	f := newFixture(t, monitorSettings(10*time.Second, 5*time.Second, "1/1"))
	f.sim.PassCost = time.Second

	passes, err := NewMonitor(f.bench).Run(context.Background())

	require.NoError(t, err)
	assert.Equal(t, 2, passes)
	assert.Greater(t, f.bench.RunClock.Elapsed(), 10*time.Second)
}

func TestMonitor_PassBound(t *testing.T) {
	tests := []struct {
		budget   time.Duration
		delay    time.Duration
		passCost time.Duration
	}{
		{budget: 10 * time.Second, delay: 5 * time.Second, passCost: time.Second},
		{budget: 120 * time.Second, delay: 5 * time.Second, passCost: 2 * time.Second},
		{budget: 30 * time.Second, delay: 0, passCost: 3 * time.Second},
		{budget: 0, delay: 5 * time.Second, passCost: time.Second},
		{budget: 17 * time.Second, delay: 2500 * time.Millisecond, passCost: 1500 * time.Millisecond},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("budget=%s delay=%s pass=%s", tt.budget, tt.delay, tt.passCost), func(t *testing.T) {
			f := newFixture(t, monitorSettings(tt.budget, tt.delay, "1/1", "1/2"))
			f.sim.PassCost = tt.passCost

			passes, err := NewMonitor(f.bench).Run(context.Background())

			require.NoError(t, err)
			bound := int(tt.budget/(tt.passCost+tt.delay)) + 1
			assert.LessOrEqual(t, passes, bound)
			assert.GreaterOrEqual(t, passes, 1)
			assert.Greater(t, f.bench.RunClock.Elapsed(), tt.budget)
		})
	}
}

func TestMonitor_PowerOnlyForEnabledPorts(t *testing.T) {
	f := newFixture(t, monitorSettings(0, 0, "1/1", "1/2", "1/3"))
	f.sim.PassCost = time.Second
	f.sim.SetPower("1/1", "7.5W")
	f.sim.SetAdmin("1/2", false)
	f.sim.SetStatus("1/3", "delivering")
	f.sim.SetPower("1/3", "15.4")

	passes, err := NewMonitor(f.bench).Run(context.Background())

	require.NoError(t, err)
	assert.Equal(t, 1, passes)
	assert.Equal(t, []string{
		"show poe ports delivering",
		"show poe port GigabitEthernet 1/1 status",
		"show poe port GigabitEthernet 1/3 status",
	}, f.sim.Log())

	require.Len(t, f.rec.observations, 3)
	assert.Equal(t, models.Observation{
		Kind: models.ObservationPower, Port: "1/1", Watts: 7, PowerPresent: true,
		Status: "enabled", Pass: 1, Offset: time.Second,
	}, f.rec.observations[0])
	assert.Equal(t, models.Observation{
		Kind: models.ObservationStatus, Port: "1/2", Status: "disabled", Pass: 1, Offset: time.Second,
	}, f.rec.observations[1])
	assert.Equal(t, 15, f.rec.observations[2].Watts)

	p, _ := f.reg.Get("1/2")
	assert.Equal(t, models.AdminDisabled, p.AdminState)
	assert.False(t, p.PowerPresent)
	p, _ = f.reg.Get("1/3")
	assert.Equal(t, "delivering", p.Status)
	assert.Equal(t, 15, p.Watts)
}

func TestMonitor_CountdownBetweenPasses(t *testing.T) {
	f := newFixture(t, monitorSettings(time.Second, 5*time.Second, "1/1"))

	passes, err := NewMonitor(f.bench).Run(context.Background())

	require.NoError(t, err)
	assert.Equal(t, 1, passes)
	assert.Equal(t, []time.Duration{4 * time.Second, 3 * time.Second, 2 * time.Second, time.Second, 0}, f.rec.countdown)
	assert.Equal(t, []time.Duration{time.Second, time.Second, time.Second, time.Second, time.Second}, f.clock.Slept())
}

func TestMonitor_UnknownStatusIsFatalByDefault(t *testing.T) {
	f := newFixture(t, monitorSettings(time.Minute, time.Second, "1/1", "1/2"))
	f.sim.SetStatus("1/1", "searching")

	passes, err := NewMonitor(f.bench).Run(context.Background())

	var perr *parser.ParseError
	require.True(t, errors.As(err, &perr))
	assert.Contains(t, perr.Reason, `"searching"`)
	assert.Zero(t, passes)
	assert.Empty(t, f.rec.observations)
}

func TestMonitor_UnknownStatusSkipped(t *testing.T) {
	settings := monitorSettings(0, 0, "1/1", "1/2")
	settings.SkipUnknownStatus = true
	f := newFixture(t, settings)
	f.sim.SetStatus("1/1", "faulty")
	f.sim.SetPower("1/2", "4W")

	passes, err := NewMonitor(f.bench).Run(context.Background())

	require.NoError(t, err)
	assert.Equal(t, 1, passes)
	require.Len(t, f.rec.observations, 2)
	assert.Equal(t, models.ObservationStatus, f.rec.observations[0].Kind)
	assert.Equal(t, "faulty", f.rec.observations[0].Status)
	assert.Equal(t, models.ObservationPower, f.rec.observations[1].Kind)
}

func TestMonitor_ShortListingIsParseError(t *testing.T) {
	f := newFixture(t, monitorSettings(time.Minute, time.Second, "1/1", "1/2"))
	sess := &scriptedSession{responses: map[string]string{
		"show poe ports delivering": "Port Delivering\n1/1 enabled",
	}}
	f.bench.Switch = NewSwitch(sess, models.DefaultDialect(), testLogger())

	_, err := NewMonitor(f.bench).Run(context.Background())

	var perr *parser.ParseError
	require.True(t, errors.As(err, &perr))
	assert.Equal(t, "show poe ports delivering", perr.Command)
	assert.Contains(t, perr.Reason, "expected 2 port lines, got 1")
}

func TestMonitor_ExtraLinesIgnored(t *testing.T) {
	f := newFixture(t, monitorSettings(0, 0, "1/1"))
	f.sim.ExtraLines = []string{"1/9      faulty"}

	passes, err := NewMonitor(f.bench).Run(context.Background())

	require.NoError(t, err)
	assert.Equal(t, 1, passes)
	assert.Len(t, f.rec.observations, 1)
}

func TestMonitor_InterruptDuringPause(t *testing.T) {
	f := newFixture(t, monitorSettings(time.Hour, 5*time.Second, "1/1"))
	ctx, cancel := context.WithCancel(context.Background())
	ticks := 0
	f.bench.Observer = Observers{f.rec, countdownFunc(func(time.Duration) {
		ticks++
		if ticks == 2 {
			cancel()
		}
	})}

	passes, err := NewMonitor(f.bench).Run(ctx)

	assert.True(t, errors.Is(err, context.Canceled))
	assert.Equal(t, 1, passes)
	assert.Len(t, f.clock.Slept(), 1)
}

func TestMonitor_TransportErrorStopsLoop(t *testing.T) {
	f := newFixture(t, monitorSettings(time.Hour, time.Second, "1/1"))
	f.sim.FailOn = func(cmd string) error {
		if cmd == "show poe port GigabitEthernet 1/1 status" {
			return errors.New("connection reset")
		}
		return nil
	}

	passes, err := NewMonitor(f.bench).Run(context.Background())

	assert.Error(t, err)
	assert.Contains(t, err.Error(), "pass 1")
	assert.Zero(t, passes)
}

type countdownFunc func(time.Duration)

func (f countdownFunc) Observe(models.Observation) {}

func (f countdownFunc) Countdown(remaining time.Duration) { f(remaining) }
