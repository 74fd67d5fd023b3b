package poe

import (
	"context"
	"errors"
	"fmt"

	"github.com/fgeck/poecheck/internal/models"
	"github.com/fgeck/poecheck/internal/services/parser"
	"github.com/fgeck/poecheck/internal/services/session"
	"github.com/rs/zerolog"
)

// Switch renders the PoE commands of a dialect and parses their responses.
type Switch struct {
	session session.Session
	dialect models.Dialect
	logger  zerolog.Logger
}

// NewSwitch binds a session to a command dialect.
func NewSwitch(sess session.Session, dialect models.Dialect, logger zerolog.Logger) *Switch {
	return &Switch{
		session: sess,
		dialect: dialect,
		logger:  logger,
	}
}

// PoEStatus returns the global PoE function state token.
func (s *Switch) PoEStatus(ctx context.Context) (string, error) {
	cmd := s.dialect.ShowPoE
	raw, err := s.session.SendCommand(ctx, cmd)
	if err != nil {
		return "", err
	}
	status, err := parser.StatusToken(raw)
	if err != nil {
		return "", withCommand(err, cmd)
	}
	return status, nil
}

// EnablePoE turns the PoE function on.
func (s *Switch) EnablePoE(ctx context.Context) error {
	return s.session.SendConfigSet(ctx, []string{s.dialect.EnablePoE})
}

// SetPowerLimit sets the aggregate power ceiling in watts.
func (s *Switch) SetPowerLimit(ctx context.Context, watts int) error {
	return s.session.SendConfigSet(ctx, []string{fmt.Sprintf(s.dialect.PowerLimit, watts)})
}

// SetPortMode sets the power supply mode of a port.
func (s *Switch) SetPortMode(ctx context.Context, port, mode string) error {
	return s.session.SendConfigSet(ctx, []string{fmt.Sprintf(s.dialect.PortMode, mode, s.dialect.InterfacePrefix, port)})
}

// SetPortAdmin enables or disables PoE output on a port.
func (s *Switch) SetPortAdmin(ctx context.Context, port string, state models.AdminState) error {
	mode := "disable"
	if state == models.AdminEnabled {
		mode = "enable"
	}
	return s.session.SendConfigSet(ctx, []string{fmt.Sprintf(s.dialect.PortAdmin, mode, s.dialect.InterfacePrefix, port)})
}

// PortStatuses lists the delivering state of every port and pairs the lines
// with ports in order. Lines beyond len(ports) are ignored.
func (s *Switch) PortStatuses(ctx context.Context, ports []string) ([]models.Reading, error) {
	cmd := s.dialect.ShowDelivering
	raw, err := s.session.SendCommand(ctx, cmd)
	if err != nil {
		return nil, err
	}
	statuses, err := parser.StatusList(raw)
	if err != nil {
		return nil, withCommand(err, cmd)
	}
	if len(statuses) < len(ports) {
		return nil, &parser.ParseError{
			Command: cmd,
			Raw:     raw,
			Reason:  fmt.Sprintf("expected %d port lines, got %d", len(ports), len(statuses)),
		}
	}
	if len(statuses) > len(ports) {
		s.logger.Debug().
			Int("lines", len(statuses)).
			Int("ports", len(ports)).
			Msg("ignoring status lines beyond configured ports")
	}

	readings := make([]models.Reading, len(ports))
	for i, port := range ports {
		readings[i] = models.Reading{Port: port, Raw: raw, Status: statuses[i]}
	}
	return readings, nil
}

// PortPower reads the power a port delivers.
func (s *Switch) PortPower(ctx context.Context, port string) (models.Reading, error) {
	cmd := fmt.Sprintf(s.dialect.ShowPortPower, s.dialect.InterfacePrefix, port)
	raw, err := s.session.SendCommand(ctx, cmd)
	if err != nil {
		return models.Reading{}, err
	}
	watts, present, err := parser.Power(raw, s.dialect.PowerField)
	if err != nil {
		return models.Reading{}, withCommand(err, cmd)
	}
	return models.Reading{Port: port, Raw: raw, Watts: watts, PowerPresent: present}, nil
}

func withCommand(err error, cmd string) error {
	var perr *parser.ParseError
	if errors.As(err, &perr) && perr.Command == "" {
		perr.Command = cmd
	}
	return err
}
