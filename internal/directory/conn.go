package directory

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"net/url"
	"time"

	"github.com/go-ldap/ldap/v3"
	"github.com/rs/zerolog/log"
)

// Conn is a live directory connection owned by the operation that opened it.
// *ldap.Conn satisfies it.
type Conn interface {
	Bind(username, password string) error
	Search(searchRequest *ldap.SearchRequest) (*ldap.SearchResult, error)
	Close() error
}

// Dialer opens directory connections.
type Dialer interface {
	// Dial opens a single connection to cfg.URL. It does not retry.
	Dial(ctx context.Context, cfg Config) (Conn, error)
}

// DialerFunc adapts a function to the Dialer interface.
type DialerFunc func(ctx context.Context, cfg Config) (Conn, error)

// Dial calls f(ctx, cfg).
func (f DialerFunc) Dial(ctx context.Context, cfg Config) (Conn, error) {
	return f(ctx, cfg)
}

// LDAPDialer dials real directory servers with go-ldap.
type LDAPDialer struct{}

// Dial connects to cfg.URL. ctx and the connect timeout both bound the TCP
// connect, the TLS handshake and StartTLS; afterwards SetTimeout bounds
// every bind and search.
func (LDAPDialer) Dial(ctx context.Context, cfg Config) (Conn, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	u, err := url.Parse(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to LDAP server: %w", ldap.NewError(ldap.ErrorNetwork, err))
	}

	useTLS := u.Scheme == "ldaps"
	tlsConfig := cfg.tlsConfig()

	netConn, err := dialContext(ctx, cfg.ConnectTimeout, u, useTLS, tlsConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to LDAP server: %w", ldap.NewError(ldap.ErrorNetwork, err))
	}

	conn := ldap.NewConn(netConn, useTLS)
	conn.Start()

	if cfg.ConnectTimeout > 0 {
		conn.SetTimeout(cfg.ConnectTimeout)
	}

	// Upgrade to TLS if requested (for non-SSL connections)
	if cfg.StartTLS && !useTLS {
		stop := context.AfterFunc(ctx, func() {
			_ = conn.Close() //nolint:errcheck // unblocks StartTLS
		})

		errStartTLS := conn.StartTLS(tlsConfig)

		if !stop() {
			return nil, fmt.Errorf("failed to start TLS: %w", ctx.Err())
		}

		if errStartTLS != nil {
			if errClose := conn.Close(); errClose != nil {
				log.Error().Err(errClose).Msg("failed to close LDAP connection")
			}

			return nil, fmt.Errorf("failed to start TLS: %w", errStartTLS)
		}
	}

	return conn, nil
}

// dialContext opens the TCP connection of u and, for ldaps, completes the
// TLS handshake.
func dialContext(
	ctx context.Context, timeout time.Duration, u *url.URL, useTLS bool, tlsConfig *tls.Config,
) (net.Conn, error) {
	port := u.Port()
	if port == "" {
		port = ldap.DefaultLdapPort
		if useTLS {
			port = ldap.DefaultLdapsPort
		}
	}

	if u.Scheme != "ldap" && !useTLS {
		return nil, fmt.Errorf("unsupported scheme %q", u.Scheme)
	}

	dialer := &net.Dialer{Timeout: timeout}

	netConn, err := dialer.DialContext(ctx, "tcp", net.JoinHostPort(u.Hostname(), port))
	if err != nil || !useTLS {
		return netConn, err //nolint:wrapcheck
	}

	if timeout > 0 {
		var cancel context.CancelFunc

		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	tlsConn := tls.Client(netConn, tlsConfig)
	if err = tlsConn.HandshakeContext(ctx); err != nil {
		_ = netConn.Close() //nolint:errcheck // handshake error wins

		return nil, err //nolint:wrapcheck
	}

	return tlsConn, nil
}

// release closes conn and logs a close error. Callers release every
// connection exactly once.
func release(conn Conn, role string) {
	if errClose := conn.Close(); errClose != nil {
		log.Warn().Err(errClose).Str("role", role).Msg("failed to close LDAP connection")
	}
}
