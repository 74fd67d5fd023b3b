package session

import (
	"context"
	"fmt"
	"io"
	"net"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/fgeck/poecheck/internal/models"
	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"
)

// SSHFactory opens an interactive PTY shell on the switch.
type SSHFactory struct{}

// NewStream dials the switch and starts a shell.
func (f *SSHFactory) NewStream(ctx context.Context, cfg models.SwitchConfig) (Stream, error) {
	sshConfig, err := buildClientConfig(cfg)
	if err != nil {
		return nil, err
	}

	port := cfg.Port
	if port == 0 {
		port = 22
	}
	addr := net.JoinHostPort(cfg.Host, strconv.Itoa(port))

	clientChan := make(chan struct {
		client *ssh.Client
		err    error
	}, 1)

	go func() {
		client, err := ssh.Dial("tcp", addr, sshConfig)
		clientChan <- struct {
			client *ssh.Client
			err    error
		}{client, err}
	}()

	var client *ssh.Client
	select {
	case <-ctx.Done():
		go func() {
			if res := <-clientChan; res.client != nil {
				_ = res.client.Close()
			}
		}()
		return nil, ctx.Err()
	case res := <-clientChan:
		if res.err != nil {
			return nil, fmt.Errorf("failed to connect to %s via SSH: %w", addr, res.err)
		}
		client = res.client
	}

	stream, err := startShell(client)
	if err != nil {
		_ = client.Close()
		return nil, err
	}
	return stream, nil
}

func buildClientConfig(cfg models.SwitchConfig) (*ssh.ClientConfig, error) {
	var auth []ssh.AuthMethod

	key := cfg.PrivateKey
	if len(key) == 0 && cfg.KeyPath != "" {
		var err error
		key, err = os.ReadFile(cfg.KeyPath)
		if err != nil {
			return nil, fmt.Errorf("failed to read private key from %s: %w", cfg.KeyPath, err)
		}
	}
	if len(key) > 0 {
		signer, err := ssh.ParsePrivateKey(key)
		if err != nil {
			return nil, fmt.Errorf("failed to parse private key: %w", err)
		}
		auth = append(auth, ssh.PublicKeys(signer))
	}

	if cfg.Password != "" {
		password := cfg.Password
		auth = append(auth,
			ssh.Password(password),
			ssh.KeyboardInteractive(func(_, _ string, questions []string, _ []bool) ([]string, error) {
				answers := make([]string, len(questions))
				for i := range answers {
					answers[i] = password
				}
				return answers, nil
			}),
		)
	}

	if len(auth) == 0 {
		return nil, fmt.Errorf("no password or private key provided")
	}

	hostKeyCallback := ssh.InsecureIgnoreHostKey() //nolint:gosec // lab switches rarely have stable host keys
	if cfg.KnownHosts != "" {
		cb, err := knownhosts.New(cfg.KnownHosts)
		if err != nil {
			return nil, fmt.Errorf("failed to load known hosts %s: %w", cfg.KnownHosts, err)
		}
		hostKeyCallback = cb
	}

	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = DefaultTimeout
	}

	return &ssh.ClientConfig{
		User:            cfg.Username,
		Auth:            auth,
		HostKeyCallback: hostKeyCallback,
		Timeout:         timeout,
	}, nil
}

func startShell(client *ssh.Client) (*sshStream, error) {
	session, err := client.NewSession()
	if err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}

	modes := ssh.TerminalModes{
		ssh.ECHO:          0,
		ssh.TTY_OP_ISPEED: 9600,
		ssh.TTY_OP_OSPEED: 9600,
	}
	if err := session.RequestPty("vt100", 80, 40, modes); err != nil {
		_ = session.Close()
		return nil, fmt.Errorf("failed to request PTY: %w", err)
	}

	stdin, err := session.StdinPipe()
	if err != nil {
		_ = session.Close()
		return nil, fmt.Errorf("failed to get stdin pipe: %w", err)
	}
	stdout, err := session.StdoutPipe()
	if err != nil {
		_ = session.Close()
		return nil, fmt.Errorf("failed to get stdout pipe: %w", err)
	}

	if err := session.Shell(); err != nil {
		_ = session.Close()
		return nil, fmt.Errorf("failed to start shell: %w", err)
	}

	s := newSSHStream(stdin, stdout, func() error {
		_ = session.Close()
		return client.Close()
	})
	return s, nil
}

// sshStream adds read deadlines to the shell's stdout. The SSH channel has no
// deadline of its own, so a pump goroutine feeds reads through a channel.
type sshStream struct {
	stdin    io.Writer
	data     chan []byte
	pending  []byte
	deadline time.Time
	closer   func() error
	done     chan struct{}
	once     sync.Once

	mu      sync.Mutex
	readErr error
}

func newSSHStream(stdin io.Writer, stdout io.Reader, closer func() error) *sshStream {
	s := &sshStream{
		stdin:  stdin,
		data:   make(chan []byte, 16),
		closer: closer,
		done:   make(chan struct{}),
	}
	go s.pump(stdout)
	return s
}

func (s *sshStream) pump(r io.Reader) {
	defer close(s.data)
	for {
		buf := make([]byte, bufferSize)
		n, err := r.Read(buf)
		if n > 0 {
			select {
			case s.data <- buf[:n]:
			case <-s.done:
				return
			}
		}
		if err != nil {
			s.mu.Lock()
			s.readErr = err
			s.mu.Unlock()
			return
		}
	}
}

func (s *sshStream) Read(p []byte) (int, error) {
	if len(s.pending) == 0 {
		var timer <-chan time.Time
		if !s.deadline.IsZero() {
			wait := time.Until(s.deadline)
			if wait <= 0 {
				return 0, timeoutError{}
			}
			t := time.NewTimer(wait)
			defer t.Stop()
			timer = t.C
		}

		select {
		case b, ok := <-s.data:
			if !ok {
				s.mu.Lock()
				defer s.mu.Unlock()
				if s.readErr != nil {
					return 0, s.readErr
				}
				return 0, io.EOF
			}
			s.pending = b
		case <-timer:
			return 0, timeoutError{}
		}
	}

	n := copy(p, s.pending)
	s.pending = s.pending[n:]
	return n, nil
}

func (s *sshStream) Write(p []byte) (int, error) {
	return s.stdin.Write(p)
}

func (s *sshStream) SetReadDeadline(t time.Time) error {
	s.deadline = t
	return nil
}

func (s *sshStream) Close() error {
	s.once.Do(func() { close(s.done) })
	return s.closer()
}

type timeoutError struct{}

func (timeoutError) Error() string   { return "i/o timeout" }
func (timeoutError) Timeout() bool   { return true }
func (timeoutError) Temporary() bool { return true }
