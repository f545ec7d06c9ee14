// Package proxy authenticates users through an upstream ldapgate gateway
// instead of the local directory connection.
package proxy

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
)

// GatewayPath is the route of the upstream gateway accepting authentication requests.
const GatewayPath = "/api/gateway/ldap"

// DefaultTimeout bounds one upstream request.
const DefaultTimeout = 30 * time.Second

var (
	// ErrUpstream is returned when the gateway answers with an unexpected status.
	ErrUpstream = errors.New("ldap proxy returned an unexpected status")

	// ErrNotConfigured is returned when no gateway URL is set.
	ErrNotConfigured = errors.New("ldap proxy url is not configured")
)

// Config holds the upstream gateway settings.
type Config struct {
	URL     string
	APIKey  string
	Timeout time.Duration
}

// Request is the body sent to the gateway.
type Request struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// Response is the gateway's answer.
type Response struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
	Error   string `json:"error,omitempty"`
}

// Client posts credentials to an upstream gateway.
type Client struct {
	cfg Config
}

// New creates a client for cfg.
func New(cfg Config) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}

	cfg.URL = strings.TrimRight(cfg.URL, "/")

	return &Client{cfg: cfg}
}

// Authenticate asks the gateway whether username and password are valid.
// A 2xx answer or a 401 is a verdict; every other status, a transport error
// or an undecodable body is returned as an error so the caller can fall back
// to the local directory.
func (c *Client) Authenticate(ctx context.Context, username, password string) (bool, error) {
	if c.cfg.URL == "" {
		return false, ErrNotConfigured
	}

	if err := ctx.Err(); err != nil {
		return false, err
	}

	timeout := c.cfg.Timeout
	if deadline, ok := ctx.Deadline(); ok {
		timeout = min(timeout, time.Until(deadline))
	}

	agent := fiber.Post(c.cfg.URL + GatewayPath)
	agent.Set(fiber.HeaderAuthorization, "Bearer "+c.cfg.APIKey)
	agent.JSON(Request{Username: username, Password: password})
	agent.Timeout(timeout)

	var resp Response

	code, _, errs := agent.Struct(&resp)
	if len(errs) > 0 && code == 0 {
		return false, fmt.Errorf("ldap proxy request: %w", errors.Join(errs...))
	}

	switch {
	case code == fiber.StatusUnauthorized:
		return false, nil
	case code < fiber.StatusOK || code >= fiber.StatusMultipleChoices:
		return false, fmt.Errorf("%w: %d", ErrUpstream, code)
	case len(errs) > 0:
		return false, fmt.Errorf("ldap proxy response: %w", errors.Join(errs...))
	}

	return resp.Success, nil
}
