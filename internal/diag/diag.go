// Package diag tests the directory connection and reports what an operator
// needs to debug it: the outcome, the outbound IP and a secret-free summary
// of the configuration.
package diag

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog/log"

	"github.com/ldapgate/ldapgate/internal/directory"
)

const (
	// DefaultOutboundIPURL answers {"ip": "..."}.
	DefaultOutboundIPURL = "https://api.ipify.org?format=json"

	// UnknownIP is reported when the outbound IP lookup fails.
	UnknownIP = "Unknown"
)

// ErrAdminBind is returned when the configured bind identity was rejected in every format.
var ErrAdminBind = errors.New("admin bind failed")

// Config holds the diagnostic settings.
type Config struct {
	OutboundIPURL string
	Timeout       time.Duration
}

// Summary is the configuration as shown to operators. It never carries secrets.
type Summary struct {
	URL                   string   `json:"url"`
	BaseDN                string   `json:"baseDN"`
	BindDN                string   `json:"bindDN"`
	DomainSuffixes        []string `json:"domainSuffixes"`
	TLSEnabled            bool     `json:"tlsEnabled"`
	TLSRejectUnauthorized bool     `json:"tlsRejectUnauthorized"`
	ConnectTimeout        int64    `json:"connectTimeout"`
	RetryAttempts         int      `json:"retryAttempts"`
}

// Report is the result of Check.
type Report struct {
	Success    bool      `json:"success"`
	Details    string    `json:"details"`
	OutboundIP string    `json:"outboundIP"`
	Config     Summary   `json:"config"`
	Timestamp  time.Time `json:"timestamp"`
}

// Checker runs connection diagnostics against one directory.
type Checker struct {
	cfg    Config
	dirCfg directory.Config
	dialer directory.Dialer
}

// New creates a checker. dialer is the one used for authentication, so a
// tunnel in front of the directory is part of the test.
func New(cfg Config, dirCfg directory.Config, dialer directory.Dialer) *Checker {
	if cfg.OutboundIPURL == "" {
		cfg.OutboundIPURL = DefaultOutboundIPURL
	}

	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second //nolint:mnd
	}

	return &Checker{cfg: cfg, dirCfg: dirCfg.WithDefaults(), dialer: dialer}
}

// Check connects once, binds with the administrative identity and releases
// the connection.
func (c *Checker) Check(ctx context.Context) Report {
	report := Report{
		OutboundIP: c.OutboundIP(ctx),
		Config:     c.Summary(),
		Timestamp:  time.Now().UTC(),
	}

	if err := c.ping(ctx); err != nil {
		log.Warn().Err(err).Str("outbound_ip", report.OutboundIP).Msg("LDAP connection test failed")

		report.Details = err.Error()

		return report
	}

	log.Info().Str("outbound_ip", report.OutboundIP).Msg("LDAP connection test successful")

	report.Success = true
	report.Details = "LDAP connection and admin bind successful"

	return report
}

func (c *Checker) ping(ctx context.Context) error {
	if err := c.dirCfg.Validate(); err != nil {
		return err //nolint:wrapcheck
	}

	ctx, cancel := context.WithTimeout(ctx, c.dirCfg.ConnectTimeout)
	defer cancel()

	conn, err := c.dialer.Dial(ctx, c.dirCfg)
	if err != nil {
		return fmt.Errorf("connect: %w", err)
	}

	defer func() {
		if errClose := conn.Close(); errClose != nil {
			log.Warn().Err(errClose).Msg("failed to close LDAP connection")
		}
	}()

	var errs []error

	for _, bindDN := range directory.AdminBindFormats(c.dirCfg.BindDN) {
		if err = conn.Bind(bindDN, c.dirCfg.BindPassword); err == nil {
			return nil
		}

		errs = append(errs, err)
	}

	return fmt.Errorf("%w: %w", ErrAdminBind, errors.Join(errs...))
}

// OutboundIP returns the public address the directory sees, UnknownIP on failure.
func (c *Checker) OutboundIP(ctx context.Context) string {
	if ctx.Err() != nil {
		return UnknownIP
	}

	var body struct {
		IP string `json:"ip"`
	}

	code, _, errs := fiber.Get(c.cfg.OutboundIPURL).Timeout(c.cfg.Timeout).Struct(&body)
	if len(errs) > 0 || code != fiber.StatusOK || body.IP == "" {
		log.Debug().Errs("errors", errs).Int("status", code).Msg("could not determine outbound IP")

		return UnknownIP
	}

	return body.IP
}

// Summary describes the directory configuration without secrets.
func (c *Checker) Summary() Summary {
	return Summary{
		URL:                   c.dirCfg.URL,
		BaseDN:                c.dirCfg.BaseDN,
		BindDN:                c.dirCfg.BindDN,
		DomainSuffixes:        c.dirCfg.DomainSuffixes,
		TLSEnabled:            strings.HasPrefix(c.dirCfg.URL, "ldaps://") || c.dirCfg.StartTLS,
		TLSRejectUnauthorized: c.dirCfg.TLSRejectUnauthorized,
		ConnectTimeout:        c.dirCfg.ConnectTimeout.Milliseconds(),
		RetryAttempts:         c.dirCfg.RetryAttempts,
	}
}
