// Package switchsim is an in-memory PoE switch speaking the default command
// dialect. Tests drive the engine against it instead of real hardware.
package switchsim

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"sync"
	"time"
)

var portAdminLine = regexp.MustCompile(`^poe enable mode (enable|disable) port GigabitEthernet (\S+)$`)

// Advancer is the part of a manual clock the simulator needs.
type Advancer interface {
	Advance(d time.Duration)
}

// Switch simulates the CLI of a PoE switch.
type Switch struct {
	mu sync.Mutex

	ports  []string
	admin  map[string]bool
	power  map[string]string
	status map[string]string
	global string
	limit  int
	modes  map[string]string

	// Clock, when set, is advanced by PassCost on every port status listing.
	Clock    Advancer
	PassCost time.Duration

	// FailOn may return an error for a command or config line.
	FailOn func(command string) error

	// ExtraLines are appended to the port status listing.
	ExtraLines []string

	log        []string
	closeCalls int
}

// New creates a switch with PoE globally disabled and every port enabled,
// as a switch might be left by a previous test.
func New(ports ...string) *Switch {
	s := &Switch{
		ports:  ports,
		admin:  make(map[string]bool),
		power:  make(map[string]string),
		status: make(map[string]string),
		modes:  make(map[string]string),
		global: "disabled",
	}
	for _, p := range ports {
		s.admin[p] = true
		s.power[p] = "0.0W"
	}
	return s
}

// SetPower sets the raw wattage field reported while the port is enabled.
func (s *Switch) SetPower(port, field string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.power[port] = field
}

// SetStatus forces the delivering status token of a port.
func (s *Switch) SetStatus(port, status string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.status[port] = status
}

// SetAdmin sets the admin state of a port directly.
func (s *Switch) SetAdmin(port string, enabled bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.admin[port] = enabled
}

// SetGlobal sets the global PoE state token.
func (s *Switch) SetGlobal(state string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.global = state
}

// Enabled reports whether PoE output is enabled on a port.
func (s *Switch) Enabled(port string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.admin[port]
}

// Global returns the global PoE state token.
func (s *Switch) Global() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.global
}

// Limit returns the configured power ceiling.
func (s *Switch) Limit() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.limit
}

// Mode returns the power supply mode configured for a port.
func (s *Switch) Mode(port string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.modes[port]
}

// Log returns every command and config line received, in order.
func (s *Switch) Log() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.log))
	copy(out, s.log)
	return out
}

// CloseCalls returns how many times Close was called.
func (s *Switch) CloseCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closeCalls
}

// SendCommand answers show commands.
func (s *Switch) SendCommand(ctx context.Context, command string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	s.log = append(s.log, command)
	if s.FailOn != nil {
		if err := s.FailOn(command); err != nil {
			return "", err
		}
	}

	switch {
	case command == "show poe enable":
		return "PoE function: " + s.global, nil
	case command == "show poe ports delivering":
		if s.Clock != nil {
			s.Clock.Advance(s.PassCost)
		}
		lines := []string{"Port     Delivering"}
		for _, p := range s.ports {
			lines = append(lines, fmt.Sprintf("%-8s %s", p, s.portStatus(p)))
		}
		lines = append(lines, s.ExtraLines...)
		return strings.Join(lines, "\n"), nil
	case strings.HasPrefix(command, "show poe port GigabitEthernet "):
		fields := strings.Fields(command)
		port := fields[4]
		if s.admin[port] {
			return fmt.Sprintf("%s %s 48V class4", port, s.power[port]), nil
		}
		return fmt.Sprintf("%s 0.0W 0V class0", port), nil
	}
	return "", fmt.Errorf("unknown command %q", command)
}

func (s *Switch) portStatus(port string) string {
	if st, ok := s.status[port]; ok {
		return st
	}
	if s.admin[port] {
		return "enabled"
	}
	return "disabled"
}

// SendConfigSet applies PoE configuration lines.
func (s *Switch) SendConfigSet(ctx context.Context, lines []string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, line := range lines {
		s.log = append(s.log, line)
		if s.FailOn != nil {
			if err := s.FailOn(line); err != nil {
				return err
			}
		}

		var limit int
		var mode, prefix, port string
		switch {
		case line == "poe enable":
			s.global = "enabled"
		case portAdminLine.MatchString(line):
			m := portAdminLine.FindStringSubmatch(line)
			s.admin[m[2]] = m[1] == "enable"
		case sscan(line, "poe power limit %d", &limit):
			s.limit = limit
		case sscan(line, "poe mode %s port %s %s", &mode, &prefix, &port):
			s.modes[port] = mode
		default:
			return fmt.Errorf("unknown config line %q", line)
		}
	}
	return nil
}

// Close counts calls.
func (s *Switch) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closeCalls++
	return nil
}

func sscan(line, format string, args ...any) bool {
	n, err := fmt.Sscanf(line, format, args...)
	return err == nil && n == len(args)
}
