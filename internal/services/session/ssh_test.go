package session

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/pem"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/fgeck/poecheck/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/ssh"
)

// generateTestKey generates a valid ed25519 key for testing.
func generateTestKey(t *testing.T) []byte {
	t.Helper()

	_, privateKey, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)

	pemBlock, err := ssh.MarshalPrivateKey(privateKey, "")
	require.NoError(t, err)

	return pem.EncodeToMemory(pemBlock)
}

func TestBuildClientConfig_Password(t *testing.T) {
	cfg := models.SwitchConfig{Username: "admin", Password: "secret"}

	sshConfig, err := buildClientConfig(cfg)

	require.NoError(t, err)
	assert.Equal(t, "admin", sshConfig.User)
	assert.Len(t, sshConfig.Auth, 2)
	assert.Equal(t, DefaultTimeout, sshConfig.Timeout)
}

func TestBuildClientConfig_KeyAndPassword(t *testing.T) {
	cfg := models.SwitchConfig{
		Username:   "admin",
		Password:   "secret",
		PrivateKey: generateTestKey(t),
		Timeout:    5 * time.Second,
	}

	sshConfig, err := buildClientConfig(cfg)

	require.NoError(t, err)
	assert.Len(t, sshConfig.Auth, 3)
	assert.Equal(t, 5*time.Second, sshConfig.Timeout)
}

func TestBuildClientConfig_KeyPath(t *testing.T) {
	keyPath := filepath.Join(t.TempDir(), "id_ed25519")
	require.NoError(t, os.WriteFile(keyPath, generateTestKey(t), 0o600))

	sshConfig, err := buildClientConfig(models.SwitchConfig{Username: "admin", KeyPath: keyPath})

	require.NoError(t, err)
	assert.Len(t, sshConfig.Auth, 1)
}

func TestBuildClientConfig_KeyPathNotFound(t *testing.T) {
	_, err := buildClientConfig(models.SwitchConfig{Username: "admin", KeyPath: "/nonexistent/id_rsa"})

	assert.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read private key")
}

func TestBuildClientConfig_InvalidKey(t *testing.T) {
	_, err := buildClientConfig(models.SwitchConfig{Username: "admin", PrivateKey: []byte("invalid key")})

	assert.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse private key")
}

func TestBuildClientConfig_NoCredentials(t *testing.T) {
	_, err := buildClientConfig(models.SwitchConfig{Username: "admin"})

	assert.Error(t, err)
	assert.Contains(t, err.Error(), "no password or private key")
}

func TestBuildClientConfig_KnownHostsMissing(t *testing.T) {
	_, err := buildClientConfig(models.SwitchConfig{
		Username:   "admin",
		Password:   "secret",
		KnownHosts: "/nonexistent/known_hosts",
	})

	assert.Error(t, err)
	assert.Contains(t, err.Error(), "failed to load known hosts")
}

func TestSSHStream_ReadDeadline(t *testing.T) {
	pr, pw := io.Pipe()
	s := newSSHStream(io.Discard, pr, func() error { return pr.Close() })
	defer func() { _ = s.Close() }()

	require.NoError(t, s.SetReadDeadline(time.Now().Add(20*time.Millisecond)))
	_, err := s.Read(make([]byte, 16))

	var te timeoutError
	require.True(t, errors.As(err, &te))
	assert.True(t, te.Timeout())

	go func() { _, _ = pw.Write([]byte("switch#")) }()

	require.NoError(t, s.SetReadDeadline(time.Now().Add(time.Second)))
	buf := make([]byte, 4)
	n, err := s.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, "swit", string(buf[:n]))

	n, err = s.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, "ch#", string(buf[:n]))
}

func TestSSHStream_EOF(t *testing.T) {
	pr, pw := io.Pipe()
	s := newSSHStream(io.Discard, pr, func() error { return nil })

	require.NoError(t, pw.Close())

	require.NoError(t, s.SetReadDeadline(time.Now().Add(time.Second)))
	_, err := s.Read(make([]byte, 16))

	assert.True(t, errors.Is(err, io.EOF))
}
