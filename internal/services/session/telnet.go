package session

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/fgeck/poecheck/internal/models"
	"github.com/ziutek/telnet"
)

// TelnetFactory connects to the switch's telnet service.
type TelnetFactory struct{}

// NewStream dials the switch. Login happens on the returned stream.
func (f *TelnetFactory) NewStream(ctx context.Context, cfg models.SwitchConfig) (Stream, error) {
	port := cfg.Port
	if port == 0 {
		port = 23
	}
	addr := net.JoinHostPort(cfg.Host, strconv.Itoa(port))

	connChan := make(chan struct {
		conn *telnet.Conn
		err  error
	}, 1)

	go func() {
		conn, err := telnet.Dial("tcp", addr)
		connChan <- struct {
			conn *telnet.Conn
			err  error
		}{conn, err}
	}()

	select {
	case <-ctx.Done():
		go func() {
			if res := <-connChan; res.conn != nil {
				_ = res.conn.Close()
			}
		}()
		return nil, ctx.Err()
	case res := <-connChan:
		if res.err != nil {
			return nil, fmt.Errorf("failed to connect to %s via telnet: %w", addr, res.err)
		}
		timeout := cfg.Timeout
		if timeout == 0 {
			timeout = DefaultTimeout
		}
		_ = res.conn.SetWriteDeadline(time.Now().Add(timeout))
		return &telnetStream{conn: res.conn, timeout: timeout}, nil
	}
}

// telnetStream refreshes the write deadline before every write so long runs
// do not trip a deadline set at dial time.
type telnetStream struct {
	conn    *telnet.Conn
	timeout time.Duration
}

func (s *telnetStream) Read(p []byte) (int, error) {
	return s.conn.Read(p)
}

func (s *telnetStream) Write(p []byte) (int, error) {
	_ = s.conn.SetWriteDeadline(time.Now().Add(s.timeout))
	return s.conn.Write(p)
}

func (s *telnetStream) SetReadDeadline(t time.Time) error {
	return s.conn.SetReadDeadline(t)
}

func (s *telnetStream) Close() error {
	return s.conn.Close()
}
