// Package tunnel forwards a local TCP port to the directory server through
// an SSH bastion, so the directory can be reached from networks that only
// expose SSH.
package tunnel

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/url"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"
)

// DefaultReadyTimeout bounds the SSH connect and handshake.
const DefaultReadyTimeout = 30 * time.Second

var (
	// ErrNotConnected is returned when the tunnel endpoint is requested before Connect.
	ErrNotConnected = errors.New("ssh tunnel not connected")

	// ErrNoAuthMethod is returned when neither a private key nor a password is configured.
	ErrNoAuthMethod = errors.New("ssh tunnel needs a private key or a password")
)

// Config holds the SSH and forwarding settings.
type Config struct {
	Host           string
	Port           int
	Username       string
	PrivateKey     string // PEM encoded, takes precedence over PrivateKeyFile
	PrivateKeyFile string
	Password       string
	KnownHostsFile string // empty accepts any host key
	RemoteHost     string // directory host as seen from the bastion
	RemotePort     int
	LocalPort      int // 0 picks a free port
	ReadyTimeout   time.Duration
}

// Status describes the tunnel for the gateway info route.
type Status struct {
	Enabled    bool   `json:"enabled"`
	Connected  bool   `json:"connected"`
	RemoteHost string `json:"remoteHost"`
	RemotePort int    `json:"remotePort"`
	LocalPort  int    `json:"localPort"`
}

// Tunnel is an SSH client with a local listener forwarding to RemoteHost:RemotePort.
// It is safe for concurrent use.
type Tunnel struct {
	cfg Config

	mu       sync.Mutex
	client   *ssh.Client
	listener net.Listener
	wg       sync.WaitGroup
}

// New creates a tunnel. Nothing is dialed until Connect.
func New(cfg Config) *Tunnel {
	if cfg.ReadyTimeout <= 0 {
		cfg.ReadyTimeout = DefaultReadyTimeout
	}

	return &Tunnel{cfg: cfg}
}

// Connect dials the SSH server and starts forwarding. It returns immediately
// when the tunnel is already up.
func (t *Tunnel) Connect(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.client != nil {
		return nil
	}

	clientConfig, err := t.clientConfig()
	if err != nil {
		return err
	}

	client, err := dial(ctx, net.JoinHostPort(t.cfg.Host, strconv.Itoa(t.cfg.Port)), clientConfig)
	if err != nil {
		return fmt.Errorf("ssh connect to %s: %w", t.cfg.Host, err)
	}

	listener, err := net.Listen("tcp", net.JoinHostPort("127.0.0.1", strconv.Itoa(t.cfg.LocalPort)))
	if err != nil {
		if errClose := client.Close(); errClose != nil {
			log.Warn().Err(errClose).Msg("failed to close ssh client")
		}

		return fmt.Errorf("ssh tunnel listen: %w", err)
	}

	t.client = client
	t.listener = listener

	t.wg.Add(2) //nolint:mnd

	go t.serve(client, listener)
	go t.watch(client)

	log.Info().
		Str("local", listener.Addr().String()).
		Str("remote", t.remoteAddr()).
		Msg("SSH tunnel established")

	return nil
}

// dial opens the SSH connection honouring ctx and cfg.Timeout.
func dial(ctx context.Context, addr string, cfg *ssh.ClientConfig) (*ssh.Client, error) {
	dialer := net.Dialer{Timeout: cfg.Timeout}

	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, err //nolint:wrapcheck
	}

	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	} else {
		_ = conn.SetDeadline(time.Now().Add(cfg.Timeout))
	}

	c, chans, reqs, err := ssh.NewClientConn(conn, addr, cfg)
	if err != nil {
		_ = conn.Close()

		return nil, err //nolint:wrapcheck
	}

	// handshake done, forwarding runs without deadline
	_ = conn.SetDeadline(time.Time{})

	return ssh.NewClient(c, chans, reqs), nil
}

func (t *Tunnel) clientConfig() (*ssh.ClientConfig, error) {
	var auth []ssh.AuthMethod

	key := []byte(t.cfg.PrivateKey)
	if len(key) == 0 && t.cfg.PrivateKeyFile != "" {
		var err error

		if key, err = os.ReadFile(t.cfg.PrivateKeyFile); err != nil {
			return nil, fmt.Errorf("read ssh private key: %w", err)
		}
	}

	if len(key) > 0 {
		signer, err := ssh.ParsePrivateKey(key)
		if err != nil {
			return nil, fmt.Errorf("parse ssh private key: %w", err)
		}

		auth = append(auth, ssh.PublicKeys(signer))
	}

	if t.cfg.Password != "" {
		auth = append(auth, ssh.Password(t.cfg.Password))
	}

	if len(auth) == 0 {
		return nil, ErrNoAuthMethod
	}

	hostKeyCallback := ssh.InsecureIgnoreHostKey() //nolint:gosec // explicit opt-out, logged
	if t.cfg.KnownHostsFile != "" {
		callback, err := knownhosts.New(t.cfg.KnownHostsFile)
		if err != nil {
			return nil, fmt.Errorf("load known hosts: %w", err)
		}

		hostKeyCallback = callback
	} else {
		log.Warn().Str("host", t.cfg.Host).Msg("ssh host key is not verified, set Tunnel.KnownHostsFile")
	}

	return &ssh.ClientConfig{
		User:            t.cfg.Username,
		Auth:            auth,
		HostKeyCallback: hostKeyCallback,
		Timeout:         t.cfg.ReadyTimeout,
	}, nil
}

// serve accepts local connections until the listener is closed.
func (t *Tunnel) serve(client *ssh.Client, listener net.Listener) {
	defer t.wg.Done()

	for {
		local, err := listener.Accept()
		if err != nil {
			if !errors.Is(err, net.ErrClosed) {
				log.Warn().Err(err).Msg("ssh tunnel accept failed")
			}

			return
		}

		go t.forward(client, local)
	}
}

func (t *Tunnel) forward(client *ssh.Client, local net.Conn) {
	remote, err := client.Dial("tcp", t.remoteAddr())
	if err != nil {
		log.Warn().Err(err).Str("remote", t.remoteAddr()).Msg("ssh tunnel forward failed")

		_ = local.Close()

		return
	}

	var wg sync.WaitGroup

	wg.Add(2) //nolint:mnd

	pipe := func(dst, src net.Conn) {
		defer wg.Done()

		_, _ = io.Copy(dst, src)

		// unblock the other direction
		_ = dst.Close()
		_ = src.Close()
	}

	go pipe(remote, local)
	go pipe(local, remote)

	wg.Wait()
}

// watch resets the tunnel when the SSH connection drops so the next Connect redials.
func (t *Tunnel) watch(client *ssh.Client) {
	defer t.wg.Done()

	err := client.Wait()

	t.mu.Lock()
	defer t.mu.Unlock()

	if t.client != client {
		return
	}

	log.Warn().Err(err).Msg("SSH tunnel closed by peer")

	t.resetLocked()
}

func (t *Tunnel) resetLocked() {
	if t.listener != nil {
		if err := t.listener.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
			log.Warn().Err(err).Msg("failed to close ssh tunnel listener")
		}
	}

	if t.client != nil {
		if err := t.client.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
			log.Debug().Err(err).Msg("ssh client close")
		}
	}

	t.client = nil
	t.listener = nil
}

// Close stops forwarding and closes the SSH connection.
func (t *Tunnel) Close() error {
	t.mu.Lock()
	connected := t.client != nil
	t.resetLocked()
	t.mu.Unlock()

	t.wg.Wait()

	if connected {
		log.Info().Msg("SSH tunnel closed")
	}

	return nil
}

// Connected reports whether the SSH connection is up.
func (t *Tunnel) Connected() bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	return t.client != nil
}

// LocalAddr returns the local listener address, empty when not connected.
func (t *Tunnel) LocalAddr() string {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.listener == nil {
		return ""
	}

	return t.listener.Addr().String()
}

// Status reports the tunnel state.
func (t *Tunnel) Status() Status {
	localPort := t.cfg.LocalPort

	if addr := t.LocalAddr(); addr != "" {
		if _, port, err := net.SplitHostPort(addr); err == nil {
			localPort, _ = strconv.Atoi(port)
		}
	}

	return Status{
		Enabled:    t.cfg.Host != "",
		Connected:  t.Connected(),
		RemoteHost: t.cfg.RemoteHost,
		RemotePort: t.cfg.RemotePort,
		LocalPort:  localPort,
	}
}

// Endpoint rewrites directoryURL to the local end of the tunnel, keeping the
// scheme. The original host is returned as the TLS server name so ldaps and
// StartTLS still verify the directory's certificate.
func (t *Tunnel) Endpoint(directoryURL string) (endpoint, serverName string, err error) {
	addr := t.LocalAddr()
	if addr == "" {
		return "", "", ErrNotConnected
	}

	u, err := url.Parse(directoryURL)
	if err != nil {
		return "", "", fmt.Errorf("parse directory url: %w", err)
	}

	serverName = u.Hostname()
	u.Host = addr

	return u.String(), serverName, nil
}

func (t *Tunnel) remoteAddr() string {
	return net.JoinHostPort(t.cfg.RemoteHost, strconv.Itoa(t.cfg.RemotePort))
}
