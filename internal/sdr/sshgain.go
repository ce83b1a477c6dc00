package sdr

import (
	"context"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"golang.org/x/crypto/ssh"
)

// SSHConfig describes the parameters for writing sysfs attributes over SSH.
// Older Pluto firmware rejects IIOD WRITE_ATTR for some PHY attributes; the
// same values can always be written through /sys/bus/iio.
type SSHConfig struct {
	Host      string
	User      string
	Password  string
	KeyPath   string
	Port      int
	SysfsRoot string
}

// SSHAttributeWriter holds a lazily-dialed SSH session to the device and
// writes sysfs files corresponding to IIO device/channel attributes.
type SSHAttributeWriter struct {
	mu     sync.Mutex
	cfg    SSHConfig
	client *ssh.Client
}

// NewSSHAttributeWriter validates configuration and prepares a writer.
func NewSSHAttributeWriter(cfg SSHConfig) (*SSHAttributeWriter, error) {
	if cfg.Host == "" {
		return nil, fmt.Errorf("ssh host is required for sysfs fallback")
	}
	if cfg.User == "" {
		cfg.User = "root"
	}
	if cfg.Port == 0 {
		cfg.Port = 22
	}
	if cfg.SysfsRoot == "" {
		cfg.SysfsRoot = "/sys/bus/iio/devices"
	}
	return &SSHAttributeWriter{cfg: cfg}, nil
}

// WriteAttribute writes value to the sysfs path derived from the IIO
// attribute triple (device/channel/attr).
func (w *SSHAttributeWriter) WriteAttribute(ctx context.Context, device, channel, attr, value string) error {
	client, err := w.dial(ctx)
	if err != nil {
		return err
	}

	session, err := client.NewSession()
	if err != nil {
		return fmt.Errorf("create ssh session: %w", err)
	}
	defer session.Close()

	// printf avoids shell interpretation of the value contents
	cmd := fmt.Sprintf("printf %s > %s", shellQuote(value), w.attributePath(device, channel, attr))
	if err := session.Run(cmd); err != nil {
		return fmt.Errorf("write sysfs attribute via ssh: %w", err)
	}
	return nil
}

// Close drops the SSH connection if one was established.
func (w *SSHAttributeWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.client == nil {
		return nil
	}
	err := w.client.Close()
	w.client = nil
	return err
}

func (w *SSHAttributeWriter) dial(ctx context.Context) (*ssh.Client, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.client != nil {
		return w.client, nil
	}

	auth := []ssh.AuthMethod{}
	if w.cfg.Password != "" {
		auth = append(auth, ssh.Password(w.cfg.Password))
	}
	if w.cfg.KeyPath != "" {
		key, err := os.ReadFile(w.cfg.KeyPath)
		if err != nil {
			return nil, fmt.Errorf("read ssh key: %w", err)
		}
		signer, err := ssh.ParsePrivateKey(key)
		if err != nil {
			return nil, fmt.Errorf("parse ssh key: %w", err)
		}
		auth = append(auth, ssh.PublicKeys(signer))
	}
	if len(auth) == 0 {
		return nil, fmt.Errorf("no ssh password or key configured")
	}

	config := &ssh.ClientConfig{
		User:            w.cfg.User,
		Auth:            auth,
		HostKeyCallback: ssh.InsecureIgnoreHostKey(),
		Timeout:         5 * time.Second,
	}

	addr := fmt.Sprintf("%s:%d", w.cfg.Host, w.cfg.Port)
	dialer := net.Dialer{}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("dial ssh: %w", err)
	}
	clientConn, chans, reqs, err := ssh.NewClientConn(conn, addr, config)
	if err != nil {
		return nil, fmt.Errorf("create ssh client: %w", err)
	}

	w.client = ssh.NewClient(clientConn, chans, reqs)
	return w.client, nil
}

func (w *SSHAttributeWriter) attributePath(device, channel, attr string) string {
	base := filepath.Join(w.cfg.SysfsRoot, device)
	if channel == "" {
		return filepath.Join(base, attr)
	}
	prefix := "in"
	lower := strings.ToLower(channel)
	if strings.HasPrefix(lower, "altvoltage") || strings.HasPrefix(lower, "out") {
		prefix = "out"
	}
	return filepath.Join(base, fmt.Sprintf("%s_%s_%s", prefix, channel, attr))
}

// shellQuote wraps a value in single quotes with embedded quotes escaped.
func shellQuote(value string) string {
	return "'" + strings.ReplaceAll(value, "'", `'\''`) + "'"
}
