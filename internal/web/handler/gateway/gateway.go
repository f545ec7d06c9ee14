// Package gateway exposes directory authentication to other services
// behind a bearer API key.
package gateway

import (
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/ldapgate/ldapgate/internal/config"
	"github.com/ldapgate/ldapgate/internal/proxy"
	"github.com/ldapgate/ldapgate/internal/tunnel"
	"github.com/ldapgate/ldapgate/internal/web/handler"
	"github.com/ldapgate/ldapgate/internal/web/middleware/apikey"
)

const (
	// Path is the gateway authentication route, also used by proxy.Client.
	Path = proxy.GatewayPath

	// AuthPath is the plain authentication route.
	AuthPath = "/api/ldap/auth"

	// ProxyPath accepts {action, username, password}.
	ProxyPath = "/api/proxy/ldap"

	// InfoPath describes the running gateway.
	InfoPath = "/gateway"

	// ActionAuth is the only action of ProxyPath.
	ActionAuth = "auth"

	defaultName = "ldapgate"
)

// Info is the body of GET Path.
type Info struct {
	Name      string    `json:"name"`
	Version   string    `json:"version"`
	Timestamp time.Time `json:"timestamp"`
	Endpoint  string    `json:"endpoint"`
}

// Status is the body of GET InfoPath.
type Status struct {
	Name      string        `json:"name"`
	Version   string        `json:"version"`
	Timestamp time.Time     `json:"timestamp"`
	Port      int           `json:"port"`
	SSHTunnel tunnel.Status `json:"sshTunnel"`
}

// Service is the gateway handler service.
type Service struct {
	handler.Service
	cfg  *config.Config
	deps handler.Deps
}

// Init registers the gateway routes when the gateway is enabled.
// Directory parameters always come from cfg, never from a request.
func (s *Service) Init(app *fiber.App, cfg *config.Config, deps handler.Deps) error {
	if app == nil || cfg == nil {
		return errors.New(handler.ErrNilAppCfgLogMsg)
	}

	if !cfg.Gateway.Enabled {
		return nil
	}

	if deps.Authenticator == nil {
		return errors.New("gateway: authenticator is nil")
	}

	s.cfg = cfg
	s.deps = deps

	keyAuth := apikey.New(cfg.Gateway.APIKey)

	app.Get(Path, s.Info)
	app.Post(Path, keyAuth, s.Authenticate)
	app.Post(AuthPath, keyAuth, s.Authenticate)
	app.Post(ProxyPath, keyAuth, s.Proxy)
	app.Get(InfoPath, s.Status)

	return nil
}

func (s *Service) name() string {
	if s.cfg.Gateway.Name != "" {
		return s.cfg.Gateway.Name
	}

	return defaultName
}

// Info describes the gateway endpoint.
func (s *Service) Info(c *fiber.Ctx) error {
	return c.JSON(Info{
		Name:      s.name(),
		Version:   s.deps.Version,
		Timestamp: time.Now().UTC(),
		Endpoint:  Path,
	})
}

// Status reports the gateway and its SSH tunnel.
func (s *Service) Status(c *fiber.Ctx) error {
	status := Status{
		Name:      s.name(),
		Version:   s.deps.Version,
		Timestamp: time.Now().UTC(),
		Port:      s.cfg.Webserver.Port,
	}

	if s.deps.Tunnel != nil {
		status.SSHTunnel = s.deps.Tunnel.Status()
	}

	return c.JSON(status)
}

// Authenticate asks the directory directly.
func (s *Service) Authenticate(c *fiber.Ctx) error {
	creds, ok, err := handler.ParseCredentials(c)
	if !ok {
		return err
	}

	return handler.Outcome(c, s.deps.Authenticator.Authenticate(c.UserContext(), creds.Username, creds.Password))
}

// Proxy runs the requested action. Only ActionAuth is known.
func (s *Service) Proxy(c *fiber.Ctx) error {
	creds, ok, err := handler.ParseCredentials(c)
	if !ok {
		return err
	}

	if creds.Action != ActionAuth {
		return handler.Fail(c, fiber.StatusBadRequest, "Unknown action")
	}

	return handler.Outcome(c, s.deps.Authenticator.Authenticate(c.UserContext(), creds.Username, creds.Password))
}
