package handler

import (
	"context"

	"github.com/gofiber/fiber/v2"

	"github.com/ldapgate/ldapgate/internal/config"
	"github.com/ldapgate/ldapgate/internal/diag"
	"github.com/ldapgate/ldapgate/internal/directory"
	"github.com/ldapgate/ldapgate/internal/tunnel"
)

// Service is the interface for a web handler service.
type Service interface {
	Init(app *fiber.App, cfg *config.Config, deps Deps) error
}

// Authenticator checks credentials against the directory.
type Authenticator interface {
	Authenticate(ctx context.Context, username, password string) directory.Outcome
}

// Proxy checks credentials through an upstream gateway.
type Proxy interface {
	Authenticate(ctx context.Context, username, password string) (bool, error)
}

// Diagnoser runs the directory connection test.
type Diagnoser interface {
	Check(ctx context.Context) diag.Report
}

// TunnelStatus reports the state of the SSH tunnel.
type TunnelStatus interface {
	Status() tunnel.Status
}

// Deps are the collaborators shared by the handlers. Proxy and Tunnel are
// nil when not configured.
type Deps struct {
	Authenticator Authenticator
	Proxy         Proxy
	Diag          Diagnoser
	Tunnel        TunnelStatus
	Alive         func() bool
	Version       string
}
