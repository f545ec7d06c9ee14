// Package daemon wires configuration, the directory authenticator and the
// web service together and runs them until shutdown.
package daemon

import (
	"context"
	"fmt"
	"strconv"
	"sync"

	"github.com/go-ldap/ldap/v3"
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog/log"

	"github.com/ldapgate/ldapgate/internal/config"
	"github.com/ldapgate/ldapgate/internal/diag"
	"github.com/ldapgate/ldapgate/internal/directory"
	"github.com/ldapgate/ldapgate/internal/logger/adapter/stdlogger"
	"github.com/ldapgate/ldapgate/internal/proxy"
	"github.com/ldapgate/ldapgate/internal/store"
	"github.com/ldapgate/ldapgate/internal/tunnel"
	"github.com/ldapgate/ldapgate/internal/web"
	"github.com/ldapgate/ldapgate/internal/web/handler"
)

// Daemon represents the main application daemon.
type Daemon struct {
	cfg        *config.Config
	core       *core
	storage    fiber.Storage
	webService *web.Service
}

// core holds the collaborators shared by the web service and the check command.
type core struct {
	tunnel        *tunnel.Tunnel
	authenticator *directory.Authenticator
	proxy         *proxy.Client
	diag          *diag.Checker
}

// New creates a Daemon for cfg. version is reported by the gateway and health routes.
func New(cfg *config.Config, version string) (*Daemon, error) {
	if cfg == nil {
		return nil, fmt.Errorf("%w: config is nil", config.ErrInvalidConfig)
	}

	c := newCore(cfg)

	storage, err := store.New(cfg.Webserver.Limiter)
	if err != nil {
		c.close()
		return nil, err
	}

	deps := handler.Deps{
		Authenticator: c.authenticator,
		Diag:          c.diag,
		Version:       version,
	}

	// typed nil pointers must not reach the interfaces
	if c.proxy != nil {
		deps.Proxy = c.proxy
	}

	if c.tunnel != nil {
		deps.Tunnel = c.tunnel
	}

	return &Daemon{
		cfg:        cfg,
		core:       c,
		storage:    storage,
		webService: web.New(cfg, deps, storage),
	}, nil
}

// Start serves http until SIGINT or SIGTERM and releases the tunnel and the
// limiter storage afterwards.
func (d *Daemon) Start() error {
	defer d.close()

	if d.core.tunnel != nil {
		// bring the tunnel up early, dialing retries on demand when this fails
		if err := d.core.tunnel.Connect(context.Background()); err != nil {
			log.Warn().Err(err).Msg("ssh tunnel not ready, retrying on first request")
		}
	}

	go d.webService.WaitShutdown()

	return d.webService.Start(":" + strconv.Itoa(d.cfg.Webserver.Port))
}

func (d *Daemon) close() {
	d.core.close()

	if d.storage != nil {
		if err := d.storage.Close(); err != nil {
			log.Warn().Err(err).Msg("close limiter storage")
		}
	}
}

// Check runs the directory connection test for cfg, through the tunnel when
// one is configured.
func Check(ctx context.Context, cfg *config.Config) (diag.Report, error) {
	if cfg == nil {
		return diag.Report{}, fmt.Errorf("%w: config is nil", config.ErrInvalidConfig)
	}

	c := newCore(cfg)
	defer c.close()

	return c.diag.Check(ctx), nil
}

var ldapLoggerOnce sync.Once //nolint:gochecknoglobals

func newCore(cfg *config.Config) *core {
	ldapLoggerOnce.Do(func() {
		ldap.Logger(stdlogger.New("ldap").Std())
	})

	var (
		c      = &core{}
		dirCfg = cfg.LDAP.Directory()
		dialer directory.Dialer = directory.LDAPDialer{}
	)

	if cfg.Tunnel.Enabled {
		c.tunnel = tunnel.New(tunnel.Config{
			Host:           cfg.Tunnel.Host,
			Port:           cfg.Tunnel.Port,
			Username:       cfg.Tunnel.Username,
			PrivateKey:     cfg.Tunnel.PrivateKey,
			PrivateKeyFile: cfg.Tunnel.PrivateKeyFile,
			Password:       cfg.Tunnel.Password,
			KnownHostsFile: cfg.Tunnel.KnownHostsFile,
			RemoteHost:     cfg.Tunnel.RemoteHost,
			RemotePort:     cfg.Tunnel.RemotePort,
			LocalPort:      cfg.Tunnel.LocalPort,
			ReadyTimeout:   config.Millis(cfg.Tunnel.ReadyTimeout),
		})
		dialer = c.tunnel.Dialer(dialer)

		log.Info().
			Str("bastion", cfg.Tunnel.Host).
			Str("remote", cfg.Tunnel.RemoteHost+":"+strconv.Itoa(cfg.Tunnel.RemotePort)).
			Msg("directory connections use the ssh tunnel")
	}

	c.authenticator = directory.NewAuthenticator(dirCfg, dialer)

	if err := dirCfg.Validate(); err != nil {
		log.Warn().Err(err).Msg("directory configuration incomplete, every login fails until it is fixed")
	}

	if cfg.Proxy.Enabled {
		c.proxy = proxy.New(proxy.Config{
			URL:     cfg.Proxy.URL,
			APIKey:  cfg.Proxy.APIKey,
			Timeout: config.Millis(cfg.Proxy.Timeout),
		})
	}

	c.diag = diag.New(diag.Config{
		OutboundIPURL: cfg.Diag.OutboundIPURL,
		Timeout:       config.Millis(cfg.Diag.Timeout),
	}, dirCfg, dialer)

	return c
}

func (c *core) close() {
	if c.tunnel == nil {
		return
	}

	if err := c.tunnel.Close(); err != nil {
		log.Warn().Err(err).Msg("close ssh tunnel")
	}
}
