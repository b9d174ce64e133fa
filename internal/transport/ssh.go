package transport

import (
	"bytes"
	"context"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/pkg/sftp"
	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"

	"github.com/melih-ucgun/qvmstate/internal/config"
	"github.com/melih-ucgun/qvmstate/internal/core"
)

// DialTimeout bounds the TCP connect + handshake.
const DialTimeout = 15 * time.Second

// SSHTransport, uzak admin domain (dom0) ile tüm iletişimi yöneten yapıdır.
// Commands run in a fresh session each; files go over SFTP.
type SSHTransport struct {
	client *ssh.Client
	host   config.SSHSettings

	mu   sync.Mutex
	sftp *sftp.Client
	fs   core.FileSystem
}

// clientConfig builds the SSH client config: key auth and known_hosts
// verification. There is no insecure fallback.
func clientConfig(h config.SSHSettings) (*ssh.ClientConfig, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("ana dizin bulunamadı: %w", err)
	}

	keyPath := h.KeyPath
	if keyPath == "" {
		keyPath = filepath.Join(home, ".ssh", "id_ed25519")
	}
	key, err := os.ReadFile(keyPath)
	if err != nil {
		return nil, fmt.Errorf("SSH anahtarı okunamadı (%s): %w", keyPath, err)
	}
	signer, err := ssh.ParsePrivateKey(key)
	if err != nil {
		return nil, fmt.Errorf("SSH anahtarı çözümlenemedi (%s): %w", keyPath, err)
	}

	// Host Key Callback oluştur (Bağlanılan sunucuyu doğrular)
	knownHostsPath := h.KnownHosts
	if knownHostsPath == "" {
		knownHostsPath = filepath.Join(home, ".ssh", "known_hosts")
	}
	hostKeyCallback, err := knownhosts.New(knownHostsPath)
	if err != nil {
		return nil, fmt.Errorf("known_hosts dosyası yüklenemedi (%s): %w. Lütfen sunucuya önce manuel ssh ile bağlanıp anahtarı kaydedin", knownHostsPath, err)
	}

	user := h.User
	if user == "" {
		user = "root"
	}
	return &ssh.ClientConfig{
		User:            user,
		Auth:            []ssh.AuthMethod{ssh.PublicKeys(signer)},
		HostKeyCallback: hostKeyCallback,
		Timeout:         DialTimeout,
	}, nil
}

// NewSSHTransport, verilen ayarlara göre güvenli bir SSH bağlantısı açar.
func NewSSHTransport(ctx context.Context, h config.SSHSettings) (*SSHTransport, error) {
	if h.Host == "" {
		return nil, fmt.Errorf("ssh host is empty")
	}
	cfg, err := clientConfig(h)
	if err != nil {
		return nil, err
	}

	port := h.Port
	if port == 0 {
		port = 22
	}
	addr := net.JoinHostPort(h.Host, strconv.Itoa(port))

	d := net.Dialer{Timeout: DialTimeout}
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("SSH bağlantısı kurulamadı (%s): %w", addr, err)
	}
	c, chans, reqs, err := ssh.NewClientConn(conn, addr, cfg)
	if err != nil {
		conn.Close()
		// host key mismatch de buraya düşer
		return nil, fmt.Errorf("SSH bağlantısı kurulamadı. Sunucu kimliği doğrulanamadı veya bağlantı reddedildi: %w", err)
	}

	return &SSHTransport{client: ssh.NewClient(c, chans, reqs), host: h}, nil
}

// Execute runs cmd in a new session. Cancelling ctx kills the session.
func (t *SSHTransport) Execute(ctx context.Context, cmd string) (string, error) {
	session, err := t.client.NewSession()
	if err != nil {
		return "", &core.CommandError{Cmd: cmd, ExitCode: -1, Err: err}
	}
	defer session.Close()

	var stdout, stderr bytes.Buffer
	session.Stdout = &stdout
	session.Stderr = &stderr

	if err := session.Start(cmd); err != nil {
		return "", commandError(ctx, cmd, "", err)
	}

	done := make(chan error, 1)
	go func() { done <- session.Wait() }()

	select {
	case err = <-done:
	case <-ctx.Done():
		_ = session.Signal(ssh.SIGKILL)
		session.Close()
		err = <-done
	}

	if err != nil {
		return stdout.String(), commandError(ctx, cmd, stderr.String(), err)
	}
	return stdout.String(), nil
}

// GetFileSystem opens the SFTP subsystem on first use. If that fails the
// returned FileSystem reports the error on every call.
func (t *SSHTransport) GetFileSystem() core.FileSystem {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.fs != nil {
		return t.fs
	}
	client, err := sftp.NewClient(t.client)
	if err != nil {
		return &brokenFS{err: fmt.Errorf("sftp: %w", err)}
	}
	t.sftp = client
	t.fs = NewSFTPFS(client)
	return t.fs
}

// Address returns user@host:port for display.
func (t *SSHTransport) Address() string {
	return fmt.Sprintf("%s@%s", t.host.User, net.JoinHostPort(t.host.Host, strconv.Itoa(t.host.Port)))
}

// Close, SSH bağlantısını güvenli bir şekilde kapatır.
func (t *SSHTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	var errs []string
	if t.sftp != nil {
		if err := t.sftp.Close(); err != nil {
			errs = append(errs, err.Error())
		}
		t.sftp = nil
	}
	if t.client != nil {
		if err := t.client.Close(); err != nil {
			errs = append(errs, err.Error())
		}
		t.client = nil
	}
	if len(errs) > 0 {
		return fmt.Errorf("close: %s", strings.Join(errs, "; "))
	}
	return nil
}
