// Package session drives a switch command line over SSH or telnet.
package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/fgeck/poecheck/internal/models"
	"github.com/rs/zerolog"
)

const (
	// DefaultTimeout bounds every read of a command response.
	DefaultTimeout = 30 * time.Second

	TransportSSH    = "ssh"
	TransportTelnet = "telnet"
)

// ErrRejected is wrapped by TransportError when the CLI refused a command.
var ErrRejected = errors.New("command rejected by switch")

// Session is one open command line on the switch. Calls are serialized; a
// session never has two commands in flight.
type Session interface {
	SendCommand(ctx context.Context, command string) (string, error)
	SendConfigSet(ctx context.Context, lines []string) error
	Close() error
}

// Service opens sessions.
type Service interface {
	Open(ctx context.Context, cfg models.SwitchConfig, dialect models.Dialect) (Session, error)
}

// TransportError reports that a command could not be sent or its response
// could not be received.
type TransportError struct {
	Op      string
	Command string
	Err     error
}

func (e *TransportError) Error() string {
	if e.Command == "" {
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("%s %q: %v", e.Op, e.Command, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// StreamFactory connects the raw byte stream for one transport.
type StreamFactory interface {
	NewStream(ctx context.Context, cfg models.SwitchConfig) (Stream, error)
}

// Impl implements the session Service interface.
type Impl struct {
	factories map[string]StreamFactory
	logger    zerolog.Logger
}

// New creates a session service with the SSH and telnet transports.
func New(logger zerolog.Logger) *Impl {
	return &Impl{
		factories: map[string]StreamFactory{
			TransportSSH:    &SSHFactory{},
			TransportTelnet: &TelnetFactory{},
		},
		logger: logger,
	}
}

// NewWithFactories creates a session service with custom transports (for testing).
func NewWithFactories(logger zerolog.Logger, factories map[string]StreamFactory) *Impl {
	return &Impl{
		factories: factories,
		logger:    logger,
	}
}

// Open connects to the switch, logs in, reaches privileged mode and turns off
// output paging.
func (s *Impl) Open(ctx context.Context, cfg models.SwitchConfig, dialect models.Dialect) (Session, error) {
	transport := cfg.Transport
	if transport == "" {
		transport = TransportSSH
	}
	factory, ok := s.factories[transport]
	if !ok {
		return nil, fmt.Errorf("unsupported transport %q", transport)
	}

	s.logger.Info().
		Str("host", cfg.Host).
		Int("port", cfg.Port).
		Str("transport", transport).
		Str("user", cfg.Username).
		Msg("connecting to switch")

	stream, err := factory.NewStream(ctx, cfg)
	if err != nil {
		return nil, &TransportError{Op: "connect", Err: err}
	}

	cli := NewCLI(stream, cfg, dialect, s.logger)
	if err := cli.login(ctx, transport == TransportTelnet); err != nil {
		_ = cli.Close()
		return nil, err
	}

	s.logger.Info().Str("host", cfg.Host).Msg("switch session ready")
	return cli, nil
}
