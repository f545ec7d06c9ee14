// Package login serves the login route of the web front-end.
package login

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog/log"

	"github.com/ldapgate/ldapgate/internal/config"
	"github.com/ldapgate/ldapgate/internal/web/handler"
)

const (
	// Path is the login route.
	Path = "/api/auth/login"

	// TestUser is accepted with TestPassword when Login.TestCredentials is enabled.
	TestUser     = "test"
	TestPassword = "test"

	// ConnectionTestUser with ConnectionTestPassword runs the directory diagnostic.
	ConnectionTestUser     = "connection-test"
	ConnectionTestPassword = "connection-test"
)

// Service is the login handler service.
type Service struct {
	handler.Service
	cfg  *config.Config
	deps handler.Deps
}

// Init registers the login route.
func (s *Service) Init(app *fiber.App, cfg *config.Config, deps handler.Deps) error {
	if app == nil || cfg == nil {
		return errors.New(handler.ErrNilAppCfgLogMsg)
	}

	if deps.Authenticator == nil {
		return errors.New("login: authenticator is nil")
	}

	s.cfg = cfg
	s.deps = deps

	app.Post(Path, s.Post)

	return nil
}

// Post authenticates the posted credentials. The proxy is asked first when
// enabled; when it fails the directory is asked directly.
func (s *Service) Post(c *fiber.Ctx) error {
	creds, ok, err := handler.ParseCredentials(c)
	if !ok {
		return err
	}

	if s.cfg.Login.TestCredentials && creds.Username == TestUser && creds.Password == TestPassword {
		log.Warn().Msg("login accepted with test credentials")
		return c.JSON(handler.Result{Success: true, Message: handler.MsgLoginSuccessful + " (test mode)"})
	}

	if s.cfg.Login.ConnectionTest && s.deps.Diag != nil &&
		creds.Username == ConnectionTestUser && creds.Password == ConnectionTestPassword {
		return s.connectionTest(c)
	}

	if s.cfg.Proxy.Enabled && s.deps.Proxy != nil {
		accepted, errProxy := s.deps.Proxy.Authenticate(c.UserContext(), creds.Username, creds.Password)
		if errProxy == nil {
			return handler.Verdict(c, accepted)
		}

		log.Warn().Err(errProxy).Msg(ErrProxyFallback.Error())
	}

	return handler.Outcome(c, s.deps.Authenticator.Authenticate(c.UserContext(), creds.Username, creds.Password))
}

func (s *Service) connectionTest(c *fiber.Ctx) error {
	report := s.deps.Diag.Check(c.UserContext())

	if !report.Success {
		return c.Status(fiber.StatusInternalServerError).JSON(handler.Result{
			Error:   "LDAP connection test failed",
			Details: report,
		})
	}

	return c.JSON(handler.Result{
		Success: true,
		Message: "LDAP connection test successful",
		Details: report,
	})
}
