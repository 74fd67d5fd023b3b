package runner

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/fgeck/poecheck/internal/models"
	"github.com/fgeck/poecheck/internal/services/poe"
	"github.com/fgeck/poecheck/internal/services/session"
	"github.com/fgeck/poecheck/internal/switchsim"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Mock implementations.
type mockSessionService struct {
	openFunc  func(ctx context.Context, cfg models.SwitchConfig, dialect models.Dialect) (session.Session, error)
	openCalls int
}

func (m *mockSessionService) Open(ctx context.Context, cfg models.SwitchConfig, dialect models.Dialect) (session.Session, error) {
	m.openCalls++
	if m.openFunc != nil {
		return m.openFunc(ctx, cfg, dialect)
	}
	return nil, errors.New("no session")
}

type mockTelegramService struct {
	sendFunc func(ctx context.Context, cfg models.TelegramConfig, msg models.TelegramMessage) (*models.TelegramResult, error)
}

func (m *mockTelegramService) SendNotification(ctx context.Context, cfg models.TelegramConfig, msg models.TelegramMessage) (*models.TelegramResult, error) {
	if m.sendFunc != nil {
		return m.sendFunc(ctx, cfg, msg)
	}
	return &models.TelegramResult{MessageSent: true}, nil
}

type observations []models.Observation

func (o *observations) Observe(obs models.Observation) {
	*o = append(*o, obs)
}

func testLogger() zerolog.Logger {
	return zerolog.New(io.Discard)
}

var eightPorts = []string{"1/1", "1/2", "1/3", "1/4", "1/5", "1/6", "1/7", "1/8"}

func testConfig(ports ...string) models.Config {
	return models.Config{
		Switch: models.SwitchConfig{
			Host:      "sim",
			Port:      22,
			Transport: session.TransportSSH,
			Username:  "admin",
			Password:  "admin",
			Timeout:   time.Second,
			Prompt:    "#",
		},
		Test: models.TestSettings{
			Ports:          ports,
			MinConsumption: 2,
			PowerLimit:     120,
			SettleDelay:    3 * time.Second,
			SurveyDelay:    5 * time.Second,
			TimeBudget:     120 * time.Second,
			Retries:        1,
		},
		Commands: models.DefaultDialect(),
	}
}

type harness struct {
	sim      *switchsim.Switch
	clock    *poe.ManualClock
	sessions *mockSessionService
	telegram *mockTelegramService
	obs      *observations
	svc      *Impl
}

func newHarness(ports ...string) *harness {
	sim := switchsim.New(ports...)
	for _, p := range ports {
		sim.SetPower(p, "15.0W")
	}
	clock := poe.NewManualClock(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))
	sim.Clock = clock

	sessions := &mockSessionService{
		openFunc: func(ctx context.Context, cfg models.SwitchConfig, dialect models.Dialect) (session.Session, error) {
			return sim, nil
		},
	}
	tg := &mockTelegramService{}
	obs := &observations{}

	return &harness{
		sim:      sim,
		clock:    clock,
		sessions: sessions,
		telegram: tg,
		obs:      obs,
		svc:      NewWithServices(testLogger(), sessions, tg, clock, obs),
	}
}

func powerCommand(port string) string {
	return "show poe port GigabitEthernet " + port + " status"
}

func countCommand(log []string, cmd string) int {
	n := 0
	for _, l := range log {
		if l == cmd {
			n++
		}
	}
	return n
}

func TestRun_SequentialSuccess(t *testing.T) {
	h := newHarness("1/1", "1/2")
	h.sim.SetPower("1/2", "0.0W")

	result, err := h.svc.Run(context.Background(), testConfig("1/1", "1/2"), models.ModeSequential)

	require.NoError(t, err)
	assert.Equal(t, 1, result.Attempts)
	assert.Equal(t, models.ModeSequential, result.Mode)
	require.Len(t, result.Ports, 2)
	assert.Equal(t, models.ClassSuccess, result.Ports[0].Classification)
	assert.Equal(t, models.ClassFailed, result.Ports[1].Classification)
	assert.Equal(t, 1, result.Succeeded())
	assert.Equal(t, 1, result.Failed())
	assert.False(t, h.sim.Enabled("1/1"))
	assert.True(t, h.sim.Enabled("1/2"))
	assert.Equal(t, 1, h.sim.CloseCalls())
	assert.Len(t, *h.obs, 2)
}

func TestRun_PreparesSwitch(t *testing.T) {
	h := newHarness("1/1", "1/2")
	cfg := testConfig("1/1", "1/2")
	cfg.Test.PowerLimit = 90
	cfg.Test.PortMode = "at"

	_, err := h.svc.Run(context.Background(), cfg, models.ModeSequential)

	require.NoError(t, err)
	assert.Equal(t, "enabled", h.sim.Global())
	assert.Equal(t, 90, h.sim.Limit())
	assert.Equal(t, "at", h.sim.Mode("1/1"))
	assert.Equal(t, "at", h.sim.Mode("1/2"))

	log := h.sim.Log()
	require.GreaterOrEqual(t, len(log), 7)
	assert.Equal(t, []string{
		"show poe enable",
		"poe enable",
		"poe power limit 90",
		"poe mode at port GigabitEthernet 1/1",
		"poe mode at port GigabitEthernet 1/2",
		"poe enable mode disable port GigabitEthernet 1/1",
		"poe enable mode disable port GigabitEthernet 1/2",
	}, log[:7])
}

func TestRun_PoEAlreadyEnabled(t *testing.T) {
	h := newHarness("1/1")
	h.sim.SetGlobal("enabled")

	_, err := h.svc.Run(context.Background(), testConfig("1/1"), models.ModeSequential)

	require.NoError(t, err)
	assert.Equal(t, 0, countCommand(h.sim.Log(), "poe enable"))
}

func TestRun_TransportErrorRetriedOnce(t *testing.T) {
	h := newHarness(eightPorts...)
	failed := false
	h.sim.FailOn = func(cmd string) error {
		if cmd == powerCommand("1/2") && !failed {
			failed = true
			return &session.TransportError{Op: "receive", Command: cmd, Err: errors.New("connection reset")}
		}
		return nil
	}

	result, err := h.svc.Run(context.Background(), testConfig(eightPorts...), models.ModeSequential)

	require.NoError(t, err)
	assert.Equal(t, 2, result.Attempts)
	assert.Equal(t, 8, result.Succeeded())
	assert.Equal(t, 2, countCommand(h.sim.Log(), "show poe enable"))
	assert.Equal(t, 1, h.sessions.openCalls)
	assert.Equal(t, 1, h.sim.CloseCalls())
}

func TestRun_SecondFailureIsFatal(t *testing.T) {
	h := newHarness(eightPorts...)
	h.sim.FailOn = func(cmd string) error {
		if cmd == powerCommand("1/2") {
			return &session.TransportError{Op: "receive", Command: cmd, Err: errors.New("connection reset")}
		}
		return nil
	}

	result, err := h.svc.Run(context.Background(), testConfig(eightPorts...), models.ModeSequential)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "run failed after 2 attempts")
	var te *session.TransportError
	assert.True(t, errors.As(err, &te))
	assert.False(t, errors.Is(err, ErrInterrupted))
	assert.Equal(t, 2, result.Attempts)
	assert.Equal(t, err, result.Error)
	assert.Equal(t, 2, countCommand(h.sim.Log(), powerCommand("1/2")))
	assert.Equal(t, 1, h.sim.CloseCalls())
}

func TestRun_RetriesSetting(t *testing.T) {
	tests := []struct {
		retries  int
		attempts int
	}{
		{retries: 0, attempts: 1},
		{retries: 1, attempts: 2},
		{retries: 3, attempts: 4},
	}

	for _, tt := range tests {
		h := newHarness("1/1")
		h.sim.FailOn = func(cmd string) error {
			if cmd == powerCommand("1/1") {
				return errors.New("boom")
			}
			return nil
		}
		cfg := testConfig("1/1")
		cfg.Test.Retries = tt.retries

		result, err := h.svc.Run(context.Background(), cfg, models.ModeSequential)

		require.Error(t, err)
		assert.Equal(t, tt.attempts, result.Attempts)
	}
}

func TestRun_PreparationFailureRetried(t *testing.T) {
	h := newHarness("1/1")
	calls := 0
	h.sim.FailOn = func(cmd string) error {
		if cmd == "show poe enable" {
			calls++
			if calls == 1 {
				return &session.TransportError{Op: "send", Command: cmd, Err: errors.New("broken pipe")}
			}
		}
		return nil
	}

	result, err := h.svc.Run(context.Background(), testConfig("1/1"), models.ModeSequential)

	require.NoError(t, err)
	assert.Equal(t, 2, result.Attempts)
}

func TestRun_SettlePauseBeforeRetry(t *testing.T) {
	h := newHarness("1/1")
	failed := false
	h.sim.FailOn = func(cmd string) error {
		if cmd == "show poe enable" && !failed {
			failed = true
			return errors.New("boom")
		}
		return nil
	}

	_, err := h.svc.Run(context.Background(), testConfig("1/1"), models.ModeSequential)

	require.NoError(t, err)
	slept := h.clock.Slept()
	require.NotEmpty(t, slept)
	assert.Equal(t, 3*time.Second, slept[0])
}

func TestRun_InterruptNotRetried(t *testing.T) {
	h := newHarness(eightPorts...)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	h.sim.FailOn = func(cmd string) error {
		if cmd == powerCommand("1/3") {
			cancel()
			return context.Canceled
		}
		return nil
	}

	result, err := h.svc.Run(ctx, testConfig(eightPorts...), models.ModeSequential)

	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInterrupted))
	assert.Equal(t, 1, result.Attempts)
	assert.Equal(t, 1, countCommand(h.sim.Log(), "show poe enable"))
	assert.Equal(t, 1, h.sim.CloseCalls())
}

func TestRun_Monitor(t *testing.T) {
	h := newHarness("1/1", "1/2")
	h.sim.PassCost = time.Second
	cfg := testConfig("1/1", "1/2")
	cfg.Test.SettleDelay = 0
	cfg.Test.TimeBudget = 10 * time.Second

	result, err := h.svc.Run(context.Background(), cfg, models.ModeMonitor)

	require.NoError(t, err)
	assert.Equal(t, models.ModeMonitor, result.Mode)
	assert.Equal(t, 2, result.Passes)
	assert.Greater(t, result.Duration, 10*time.Second)
	for _, o := range *h.obs {
		assert.Equal(t, models.ObservationStatus, o.Kind, "ports were disabled during preparation")
	}
	assert.Len(t, *h.obs, 4)
}

func TestRun_UnsupportedMode(t *testing.T) {
	h := newHarness("1/1")

	result, err := h.svc.Run(context.Background(), testConfig("1/1"), models.Mode("burst"))

	require.Error(t, err)
	assert.Nil(t, result)
	assert.Equal(t, 0, h.sessions.openCalls)
}

func TestRun_InvalidPorts(t *testing.T) {
	h := newHarness("1/1")

	_, err := h.svc.Run(context.Background(), testConfig("1/1", "1/1"), models.ModeSequential)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid port list")
}

func TestRun_OpenFailureNotRetried(t *testing.T) {
	h := newHarness("1/1")
	h.sessions.openFunc = func(ctx context.Context, cfg models.SwitchConfig, dialect models.Dialect) (session.Session, error) {
		return nil, &session.TransportError{Op: "connect", Err: errors.New("connection refused")}
	}

	result, err := h.svc.Run(context.Background(), testConfig("1/1"), models.ModeSequential)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to open session")
	assert.Equal(t, 1, h.sessions.openCalls)
	assert.Equal(t, 0, result.Attempts)
}

func TestRun_TelegramNotification(t *testing.T) {
	h := newHarness("1/1")
	var captured models.TelegramMessage
	h.telegram.sendFunc = func(ctx context.Context, cfg models.TelegramConfig, msg models.TelegramMessage) (*models.TelegramResult, error) {
		captured = msg
		return &models.TelegramResult{MessageSent: true}, nil
	}
	cfg := testConfig("1/1")
	cfg.Telegram = &models.TelegramConfig{BotToken: "token", ChatID: "chat"}

	_, err := h.svc.Run(context.Background(), cfg, models.ModeSequential)

	require.NoError(t, err)
	assert.True(t, captured.Success)
	assert.Equal(t, "sim", captured.Switch)
	assert.Equal(t, 1, captured.Attempts)
	assert.Equal(t, 1, captured.Succeeded)
	require.Len(t, captured.Ports, 1)
}

func TestRun_TelegramNotificationOnInterrupt(t *testing.T) {
	h := newHarness("1/1")
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	h.sim.FailOn = func(cmd string) error {
		if cmd == "show poe enable" {
			cancel()
			return context.Canceled
		}
		return nil
	}
	var captured models.TelegramMessage
	var sendCtxErr error
	h.telegram.sendFunc = func(ctx context.Context, cfg models.TelegramConfig, msg models.TelegramMessage) (*models.TelegramResult, error) {
		captured = msg
		sendCtxErr = ctx.Err()
		return &models.TelegramResult{MessageSent: true}, nil
	}
	cfg := testConfig("1/1")
	cfg.Telegram = &models.TelegramConfig{BotToken: "token", ChatID: "chat"}

	_, err := h.svc.Run(ctx, cfg, models.ModeSequential)

	require.Error(t, err)
	assert.True(t, captured.Interrupted)
	assert.False(t, captured.Success)
	assert.NoError(t, sendCtxErr)
}

func TestRun_TelegramFailureDoesNotFailRun(t *testing.T) {
	h := newHarness("1/1")
	h.telegram.sendFunc = func(ctx context.Context, cfg models.TelegramConfig, msg models.TelegramMessage) (*models.TelegramResult, error) {
		return &models.TelegramResult{Error: errors.New("status 500")}, nil
	}
	cfg := testConfig("1/1")
	cfg.Telegram = &models.TelegramConfig{BotToken: "token", ChatID: "chat"}

	_, err := h.svc.Run(context.Background(), cfg, models.ModeSequential)

	require.NoError(t, err)
}

func TestRun_WritesMetricsTextfile(t *testing.T) {
	h := newHarness("1/1", "1/2")
	h.sim.SetPower("1/2", "0.0W")
	cfg := testConfig("1/1", "1/2")
	cfg.Metrics.Textfile = filepath.Join(t.TempDir(), "poecheck.prom")

	_, err := h.svc.Run(context.Background(), cfg, models.ModeSequential)

	require.NoError(t, err)
	data, err := os.ReadFile(cfg.Metrics.Textfile)
	require.NoError(t, err)
	text := string(data)
	assert.Contains(t, text, "poe_run_attempts")
	assert.Contains(t, text, "poe_run_success")
	assert.Contains(t, text, "poe_port_activation_success")
	assert.Contains(t, text, `port="1/2"`)
	assert.Contains(t, text, `switch="sim"`)
}

func TestToggle(t *testing.T) {
	h := newHarness("1/4")
	presses := make(chan struct{}, 2)
	presses <- struct{}{}
	presses <- struct{}{}
	close(presses)

	err := h.svc.Toggle(context.Background(), testConfig("1/1"), "1/4", presses)

	require.NoError(t, err)
	require.Len(t, *h.obs, 2)
	for _, o := range *h.obs {
		assert.Equal(t, "1/4", o.Port)
		assert.Equal(t, models.ClassSuccess, o.Classification)
		assert.Equal(t, 15, o.Watts)
	}
	assert.False(t, h.sim.Enabled("1/4"))
	assert.Equal(t, 2, countCommand(h.sim.Log(), powerCommand("1/4")))
	assert.Equal(t, 1, h.sim.CloseCalls())
}

func TestToggle_Interrupted(t *testing.T) {
	h := newHarness("1/4")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := h.svc.Toggle(ctx, testConfig("1/1"), "1/4", make(chan struct{}))

	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInterrupted))
}
