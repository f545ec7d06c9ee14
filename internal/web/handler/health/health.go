// Package health serves liveness, per service health and prometheus metrics.
package health

import (
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/valyala/fasthttp/fasthttpadaptor"

	"github.com/ldapgate/ldapgate/internal/config"
	"github.com/ldapgate/ldapgate/internal/tunnel"
	"github.com/ldapgate/ldapgate/internal/web/handler"
)

const (
	// Path is the liveness route. It answers 503 while shutting down.
	Path = "/health"

	// ServicePath reports one named service.
	ServicePath = "/health/:service"

	// MetricsPath serves the prometheus registry.
	MetricsPath = "/metrics"

	// ServiceLDAP is the only known service.
	ServiceLDAP = "ldap"

	statusHealthy   = "healthy"
	statusUnhealthy = "unhealthy"
)

// Status is the body of Path.
type Status struct {
	Status    string         `json:"status"`
	Timestamp time.Time      `json:"timestamp"`
	Version   string         `json:"version,omitempty"`
	SSHTunnel *tunnel.Status `json:"sshTunnel,omitempty"`
}

// ServiceStatus is the body of ServicePath.
type ServiceStatus struct {
	Service   string    `json:"service"`
	Status    string    `json:"status"`
	Details   string    `json:"details,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Service is the health handler service.
type Service struct {
	handler.Service
	deps handler.Deps
}

// Init registers the health and metrics routes.
func (s *Service) Init(app *fiber.App, cfg *config.Config, deps handler.Deps) error {
	if app == nil || cfg == nil {
		return errors.New(handler.ErrNilAppCfgLogMsg)
	}

	s.deps = deps

	metrics := fasthttpadaptor.NewFastHTTPHandler(promhttp.Handler())

	app.Get(Path, s.Health)
	app.Get(ServicePath, s.ServiceHealth)
	app.Get(MetricsPath, func(c *fiber.Ctx) error {
		metrics(c.Context())
		return nil
	})

	return nil
}

// Health answers 200 while the service is alive.
func (s *Service) Health(c *fiber.Ctx) error {
	status := Status{Status: statusHealthy, Timestamp: time.Now().UTC(), Version: s.deps.Version}

	if s.deps.Tunnel != nil {
		ts := s.deps.Tunnel.Status()
		status.SSHTunnel = &ts
	}

	if s.deps.Alive != nil && !s.deps.Alive() {
		status.Status = statusUnhealthy
		return c.Status(fiber.StatusServiceUnavailable).JSON(status)
	}

	return c.JSON(status)
}

// ServiceHealth runs the connection test for ServiceLDAP. Other names are 404.
func (s *Service) ServiceHealth(c *fiber.Ctx) error {
	name := c.Params("service")
	if name != ServiceLDAP {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "Unknown service"})
	}

	status := ServiceStatus{Service: name, Status: statusHealthy, Timestamp: time.Now().UTC()}

	if s.deps.Diag == nil {
		status.Details = "no diagnostics configured"
		return c.JSON(status)
	}

	report := s.deps.Diag.Check(c.UserContext())
	status.Details = report.Details

	if !report.Success {
		status.Status = statusUnhealthy
		return c.Status(fiber.StatusServiceUnavailable).JSON(status)
	}

	return c.JSON(status)
}
