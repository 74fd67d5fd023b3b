package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/fgeck/poecheck/internal/models"
	"github.com/fgeck/poecheck/internal/services/parser"
	"github.com/rs/zerolog"
)

const (
	bufferSize        = 4096
	readPollInterval  = 500 * time.Millisecond
	promptUsername    = "Username:"
	promptLogin       = "login:"
	promptPassword    = "Password:"
	promptUser        = ">"
	terminalLengthCmd = "terminal length 0"
)

// Stream is the raw byte channel to the switch CLI. Reads past the read
// deadline fail with a net.Error whose Timeout() is true.
type Stream interface {
	io.Reader
	io.Writer
	SetReadDeadline(t time.Time) error
	Close() error
}

// CLI implements Session on top of a Stream by writing a command line and
// reading until the privileged prompt comes back.
type CLI struct {
	mu      sync.Mutex
	stream  Stream
	cfg     models.SwitchConfig
	dialect models.Dialect
	prompt  string
	timeout time.Duration
	logger  zerolog.Logger
	closed  bool

	// desynced is set after a failed exchange. The late answer to that
	// command may still arrive, so the next exchange drains the stream and
	// only accepts output that follows its own echo.
	desynced bool
}

// NewCLI wraps an already connected stream.
func NewCLI(stream Stream, cfg models.SwitchConfig, dialect models.Dialect, logger zerolog.Logger) *CLI {
	prompt := cfg.Prompt
	if prompt == "" {
		prompt = "#"
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = DefaultTimeout
	}
	return &CLI{
		stream:  stream,
		cfg:     cfg,
		dialect: dialect,
		prompt:  prompt,
		timeout: timeout,
		logger:  logger,
	}
}

func (c *CLI) login(ctx context.Context, withCredentials bool) error {
	if withCredentials {
		if _, err := c.readUntilAny(ctx, []string{promptUsername, promptLogin}); err != nil {
			return &TransportError{Op: "login", Err: err}
		}
		if err := c.send(c.cfg.Username); err != nil {
			return &TransportError{Op: "login", Err: err}
		}
		if _, err := c.readUntilAny(ctx, []string{promptPassword}); err != nil {
			return &TransportError{Op: "login", Err: err}
		}
		if err := c.send(c.cfg.Password); err != nil {
			return &TransportError{Op: "login", Err: err}
		}
	}

	initial, err := c.readUntilAny(ctx, []string{c.prompt, promptUser})
	if err != nil {
		return &TransportError{Op: "login", Err: err}
	}

	if !endsWith(initial, c.prompt) {
		c.logger.Debug().Msg("elevating to privileged mode")
		if err := c.send("enable"); err != nil {
			return &TransportError{Op: "enable", Err: err}
		}
		out, err := c.readUntilAny(ctx, []string{promptPassword, c.prompt})
		if err != nil {
			return &TransportError{Op: "enable", Err: err}
		}
		if endsWith(out, promptPassword) {
			if err := c.send(c.cfg.EnablePassword); err != nil {
				return &TransportError{Op: "enable", Err: err}
			}
			if _, err := c.readUntilAny(ctx, []string{c.prompt}); err != nil {
				return &TransportError{Op: "enable", Err: err}
			}
		}
	}

	if _, err := c.exchange(ctx, terminalLengthCmd); err != nil {
		return err
	}
	return nil
}

// SendCommand runs one command and returns its output without the echoed
// command line and the trailing prompt.
func (c *CLI) SendCommand(ctx context.Context, command string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return "", &TransportError{Op: "send", Command: command, Err: net.ErrClosed}
	}
	c.logger.Debug().Str("command", command).Msg("executing command")
	out, err := c.exchange(ctx, command)
	if err != nil {
		return "", err
	}
	c.logger.Trace().Str("command", command).Str("output", out).Msg("command output")
	return out, nil
}

// SendConfigSet enters configuration mode, applies every line and returns to
// privileged mode.
func (c *CLI) SendConfigSet(ctx context.Context, lines []string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return &TransportError{Op: "config", Err: net.ErrClosed}
	}
	c.logger.Debug().Strs("lines", lines).Msg("applying configuration")

	if _, err := c.exchange(ctx, c.dialect.ConfigEnter); err != nil {
		return err
	}
	for _, line := range lines {
		if _, err := c.exchange(ctx, line); err != nil {
			if ctx.Err() != nil {
				return err
			}
			// Leave config mode so the next command lands in privileged mode.
			if _, exitErr := c.exchange(ctx, c.dialect.ConfigExit); exitErr != nil {
				c.logger.Warn().Err(exitErr).Msg("failed to leave configuration mode")
			}
			return err
		}
	}
	_, err := c.exchange(ctx, c.dialect.ConfigExit)
	return err
}

// Close releases the stream. Further calls fail.
func (c *CLI) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil
	}
	c.closed = true
	c.logger.Debug().Str("host", c.cfg.Host).Msg("closing switch session")
	return c.stream.Close()
}

func (c *CLI) exchange(ctx context.Context, command string) (string, error) {
	resync := c.desynced
	if resync {
		c.drain(ctx)
	}

	if err := c.send(command); err != nil {
		c.desynced = true
		return "", &TransportError{Op: "send", Command: command, Err: err}
	}

	var raw string
	var err error
	if resync {
		raw, err = c.readEchoed(ctx, command)
	} else {
		raw, err = c.readUntilAny(ctx, []string{c.prompt})
	}
	if err != nil {
		c.desynced = true
		return "", &TransportError{Op: "receive", Command: command, Err: err}
	}
	c.desynced = false

	out := stripEchoAndPrompt(raw)
	if parser.Rejected(out) {
		return "", &TransportError{Op: "send", Command: command, Err: fmt.Errorf("%w: %s", ErrRejected, strings.TrimSpace(out))}
	}
	return out, nil
}

func (c *CLI) send(line string) error {
	_, err := c.stream.Write([]byte(line + "\n"))
	return err
}

func (c *CLI) readUntilAny(ctx context.Context, patterns []string) (string, error) {
	buffer := make([]byte, bufferSize)
	var output strings.Builder
	output.Grow(bufferSize)
	deadline := time.Now().Add(c.timeout)

	for {
		if err := ctx.Err(); err != nil {
			return output.String(), err
		}

		_ = c.stream.SetReadDeadline(time.Now().Add(readPollInterval))
		n, err := c.stream.Read(buffer)
		if n > 0 {
			output.Write(buffer[:n])
			text := output.String()
			for _, pattern := range patterns {
				if endsWith(text, pattern) {
					return text, nil
				}
			}
		}

		if err != nil {
			var ne net.Error
			if !errors.As(err, &ne) || !ne.Timeout() {
				return output.String(), fmt.Errorf("read error: %w", err)
			}
		}

		if time.Now().After(deadline) {
			return output.String(), fmt.Errorf("timeout waiting for prompts %s", strings.Join(patterns, ", "))
		}
	}
}

// drain discards whatever the switch sent after the last failed exchange. It
// returns once a poll interval passes without data or the timeout is spent.
func (c *CLI) drain(ctx context.Context) {
	buffer := make([]byte, bufferSize)
	deadline := time.Now().Add(c.timeout)
	discarded := 0

	for ctx.Err() == nil && time.Now().Before(deadline) {
		_ = c.stream.SetReadDeadline(time.Now().Add(readPollInterval))
		n, err := c.stream.Read(buffer)
		discarded += n
		if n == 0 || err != nil {
			break
		}
	}

	if discarded > 0 {
		c.logger.Debug().Int("bytes", discarded).Msg("discarded stale switch output")
	}
}

// readEchoed reads until a prompt that follows the echo of command. Stale
// output in front of the echo is dropped.
func (c *CLI) readEchoed(ctx context.Context, command string) (string, error) {
	deadline := time.Now().Add(c.timeout)
	var acc strings.Builder

	for {
		chunk, err := c.readUntilAny(ctx, []string{c.prompt})
		acc.WriteString(chunk)
		if err != nil {
			return acc.String(), err
		}
		if out, ok := afterEcho(acc.String(), command); ok {
			return out, nil
		}
		if time.Now().After(deadline) {
			return acc.String(), fmt.Errorf("timeout waiting for echo of %q", command)
		}
	}
}

// afterEcho returns text starting at the last line that echoes command,
// provided a prompt line follows it.
func afterEcho(text, command string) (string, bool) {
	lines := strings.Split(strings.ReplaceAll(text, "\r", ""), "\n")
	for i := len(lines) - 2; i >= 0; i-- {
		if strings.HasSuffix(strings.TrimSpace(lines[i]), command) {
			return strings.Join(lines[i:], "\n"), true
		}
	}
	return "", false
}

func endsWith(text, pattern string) bool {
	return strings.HasSuffix(strings.TrimRight(text, " \r\n\t"), pattern)
}

func stripEchoAndPrompt(raw string) string {
	lines := strings.Split(strings.ReplaceAll(raw, "\r", ""), "\n")
	if len(lines) <= 1 {
		return ""
	}
	return strings.Join(lines[1:len(lines)-1], "\n")
}
