package sshx

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/crypto/ssh"
)

var (
	// ErrHandshake covers unreachable hosts and failed key exchange.
	ErrHandshake = errors.New("ssh handshake failed")
	// ErrAuth means the remote host rejected the supplied key.
	ErrAuth = errors.New("ssh authentication failed")
)

// Config is the negotiation surface: ordered algorithm preference lists
// and the host-key verification policy. Empty lists keep the library
// defaults; legacy suites can be appended for older fleets.
type Config struct {
	ConnectTimeout      time.Duration
	KeyExchanges        []string
	Ciphers             []string
	MACs                []string
	HostKeyAlgorithms   []string
	KnownHostsFile      string
	InsecureSkipHostKey bool
}

type Target struct {
	Host       string
	Port       int
	Username   string
	PrivateKey string
}

func (t Target) addr() string {
	port := t.Port
	if port == 0 {
		port = 22
	}
	return net.JoinHostPort(t.Host, strconv.Itoa(port))
}

// Result carries both streams to completion plus the remote exit code.
type Result struct {
	Stdout   string
	Stderr   string
	ExitCode int
}

// Session runs exactly one command over an established transport.
// Close must be called on every exit path; it is safe to call twice.
type Session interface {
	Run(ctx context.Context, command string) (*Result, error)
	Close() error
}

type Dialer interface {
	Dial(ctx context.Context, target Target) (Session, error)
}

// NetDialer opens a fresh transport per call. No pooling: each command
// submission owns its connection and releases it when done.
type NetDialer struct {
	cfg Config
}

func NewDialer(cfg Config) *NetDialer {
	return &NetDialer{cfg: cfg}
}

func (d *NetDialer) Dial(ctx context.Context, target Target) (Session, error) {
	addr := target.addr()

	clientCfg, err := d.clientConfig(target, addr)
	if err != nil {
		return nil, err
	}

	session, err := d.dialWith(ctx, addr, clientCfg)
	if err != nil {
		return nil, err
	}

	slog.Info("SSH connection established", "addr", addr, "user", target.Username)
	return session, nil
}

// DialClient exposes the raw client for interactive (PTY) use.
func (d *NetDialer) DialClient(ctx context.Context, target Target) (*ssh.Client, error) {
	session, err := d.Dial(ctx, target)
	if err != nil {
		return nil, err
	}
	return session.(*clientSession).client, nil
}

// Probe verifies reachability and authentication, returning the host key
// fingerprint. The fingerprint is reported even when the policy rejects
// the key, so operators can pin it.
func (d *NetDialer) Probe(ctx context.Context, target Target) (string, error) {
	addr := target.addr()

	clientCfg, err := d.clientConfig(target, addr)
	if err != nil {
		return "", err
	}

	var fingerprint string
	inner := clientCfg.HostKeyCallback
	clientCfg.HostKeyCallback = func(hostname string, remote net.Addr, key ssh.PublicKey) error {
		fingerprint = ssh.FingerprintSHA256(key)
		return inner(hostname, remote, key)
	}

	session, err := d.dialWith(ctx, addr, clientCfg)
	if err != nil {
		return fingerprint, err
	}
	defer session.Close()

	if _, err := session.Run(ctx, "echo ok"); err != nil {
		return fingerprint, fmt.Errorf("test command failed: %w", err)
	}
	return fingerprint, nil
}

func (d *NetDialer) dialWith(ctx context.Context, addr string, clientCfg *ssh.ClientConfig) (Session, error) {
	nd := net.Dialer{Timeout: d.cfg.ConnectTimeout}
	conn, err := nd.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("%w: connect %s: %v", ErrHandshake, addr, err)
	}

	// The banner exchange and key exchange run on the raw conn, past the
	// dialer's timeout. A deadline bounds a peer that accepts and goes
	// silent; the watcher closes the conn on caller cancellation.
	if d.cfg.ConnectTimeout > 0 {
		conn.SetDeadline(time.Now().Add(d.cfg.ConnectTimeout))
	}
	handshakeDone := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-handshakeDone:
		}
	}()

	sshConn, chans, reqs, err := ssh.NewClientConn(conn, addr, clientCfg)
	close(handshakeDone)
	if err != nil {
		conn.Close()
		if ctx.Err() != nil {
			return nil, fmt.Errorf("%w: %s: handshake aborted: %w", ErrHandshake, addr, ctx.Err())
		}
		if strings.Contains(err.Error(), "unable to authenticate") {
			return nil, fmt.Errorf("%w: %s: %v", ErrAuth, addr, err)
		}
		return nil, fmt.Errorf("%w: %s: %v", ErrHandshake, addr, err)
	}
	conn.SetDeadline(time.Time{})
	return &clientSession{client: ssh.NewClient(sshConn, chans, reqs)}, nil
}

func (d *NetDialer) clientConfig(target Target, addr string) (*ssh.ClientConfig, error) {
	signer, err := ParseKey(target.PrivateKey)
	if err != nil {
		return nil, err
	}

	callback, hostKeyAlgos, err := d.hostKeyPolicy(addr)
	if err != nil {
		return nil, err
	}

	return &ssh.ClientConfig{
		Config: ssh.Config{
			KeyExchanges: d.cfg.KeyExchanges,
			Ciphers:      d.cfg.Ciphers,
			MACs:         d.cfg.MACs,
		},
		User:              target.Username,
		Auth:              []ssh.AuthMethod{ssh.PublicKeys(signer)},
		HostKeyCallback:   callback,
		HostKeyAlgorithms: hostKeyAlgos,
		Timeout:           d.cfg.ConnectTimeout,
	}, nil
}

type clientSession struct {
	client    *ssh.Client
	closeOnce sync.Once
	closeErr  error
}

func (s *clientSession) Run(ctx context.Context, command string) (*Result, error) {
	session, err := s.client.NewSession()
	if err != nil {
		return nil, fmt.Errorf("open session: %w", err)
	}
	defer session.Close()

	var stdout, stderr bytes.Buffer
	session.Stdout = &stdout
	session.Stderr = &stderr

	if err := session.Start(command); err != nil {
		return nil, fmt.Errorf("start command: %w", err)
	}

	done := make(chan error, 1)
	go func() { done <- session.Wait() }()

	select {
	case <-ctx.Done():
		// Tear down the transport; Wait unblocks once the channel dies.
		s.Close()
		<-done
		return nil, fmt.Errorf("command aborted: %w", ctx.Err())
	case err := <-done:
		res := &Result{Stdout: stdout.String(), Stderr: stderr.String()}
		if err != nil {
			var exitErr *ssh.ExitError
			if errors.As(err, &exitErr) {
				res.ExitCode = exitErr.ExitStatus()
				return res, nil
			}
			return nil, fmt.Errorf("remote execution failed: %w", err)
		}
		return res, nil
	}
}

func (s *clientSession) Close() error {
	s.closeOnce.Do(func() {
		s.closeErr = s.client.Close()
	})
	return s.closeErr
}
