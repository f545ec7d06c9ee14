package directory

import (
	"crypto/tls"
	"fmt"
	"net/url"
	"slices"
	"strings"
	"time"
)

const (
	// DefaultConnectTimeout bounds every connect, bind and search operation.
	DefaultConnectTimeout = 30 * time.Second

	// DefaultRetryAttempts is the number of connect attempts before giving up.
	DefaultRetryAttempts = 4

	// DefaultRetryBaseDelay is the delay before the second connect attempt.
	DefaultRetryBaseDelay = time.Second
)

// Config is the immutable directory configuration shared by every
// authentication. It is passed by value and never mutated after construction.
type Config struct {
	// URL is the directory endpoint, ldap:// or ldaps://.
	URL string
	// BaseDN is the root of every user search.
	BaseDN string
	// SearchBases optionally overrides BaseDN per domain suffix.
	SearchBases map[string]string
	// BindDN is the administrative identity used to locate users.
	BindDN string
	// BindPassword is the secret of BindDN.
	BindPassword string
	// DomainSuffixes are tried in order, e.g. "corp.local".
	DomainSuffixes []string
	// TLSRejectUnauthorized rejects certificates that cannot be verified.
	TLSRejectUnauthorized bool
	// TLSServerName overrides the name checked against the server certificate.
	// Set when the endpoint is a local tunnel to the real server.
	TLSServerName string
	// StartTLS upgrades a plain ldap:// connection to TLS.
	StartTLS bool
	// ConnectTimeout bounds each connect, bind and search operation.
	ConnectTimeout time.Duration
	// RetryAttempts is the number of connect attempts.
	RetryAttempts int
	// RetryBaseDelay is the backoff base: attempt k+1 waits RetryBaseDelay * 2^(k-1).
	RetryBaseDelay time.Duration
}

// WithDefaults returns a copy of c with zero values replaced by defaults.
func (c Config) WithDefaults() Config {
	if c.ConnectTimeout <= 0 {
		c.ConnectTimeout = DefaultConnectTimeout
	}

	if c.RetryAttempts <= 0 {
		c.RetryAttempts = DefaultRetryAttempts
	}

	if c.RetryBaseDelay <= 0 {
		c.RetryBaseDelay = DefaultRetryBaseDelay
	}

	return c.clone()
}

// Validate reports a configuration error if a required field is absent or
// malformed. The error matches ErrConfiguration.
func (c Config) Validate() error {
	var missing []string

	if c.URL == "" {
		missing = append(missing, "URL")
	}

	if c.BaseDN == "" {
		missing = append(missing, "BaseDN")
	}

	if c.BindDN == "" {
		missing = append(missing, "BindDN")
	}

	if c.BindPassword == "" {
		missing = append(missing, "BindPassword")
	}

	if len(missing) > 0 {
		return configFailure(fmt.Errorf("missing required fields: %s", strings.Join(missing, ", ")))
	}

	if !strings.HasPrefix(c.URL, "ldap://") && !strings.HasPrefix(c.URL, "ldaps://") {
		return configFailure(fmt.Errorf("url %q must start with ldap:// or ldaps://", c.URL))
	}

	if _, err := url.Parse(c.URL); err != nil {
		return configFailure(fmt.Errorf("invalid url: %w", err))
	}

	if len(c.DomainSuffixes) == 0 {
		return configFailure(ErrNoDomainSuffix)
	}

	for _, suffix := range c.DomainSuffixes {
		if strings.TrimSpace(suffix) == "" {
			return configFailure(ErrEmptyDomainSuffix)
		}
	}

	return nil
}

// searchBase returns the search root used for suffix. Suffixes match
// case-insensitively.
func (c Config) searchBase(suffix string) string {
	if base, ok := c.SearchBases[suffix]; ok && base != "" {
		return base
	}

	for key, base := range c.SearchBases {
		if base != "" && strings.EqualFold(key, suffix) {
			return base
		}
	}

	return c.BaseDN
}

// searchTimeLimit is the server-side time limit of a search in seconds.
func (c Config) searchTimeLimit() int {
	return int(c.ConnectTimeout / time.Second)
}

func (c Config) tlsConfig() *tls.Config {
	serverName := c.TLSServerName
	if serverName == "" {
		if u, err := url.Parse(c.URL); err == nil {
			serverName = u.Hostname()
		}
	}

	return &tls.Config{
		InsecureSkipVerify: !c.TLSRejectUnauthorized, //nolint:gosec // controlled by LDAP_TLS_REJECT_UNAUTHORIZED
		ServerName:         serverName,
		MinVersion:         tls.VersionTLS12,
	}
}

func (c Config) clone() Config {
	c.DomainSuffixes = slices.Clone(c.DomainSuffixes)

	if c.SearchBases != nil {
		bases := make(map[string]string, len(c.SearchBases))
		for suffix, base := range c.SearchBases {
			bases[suffix] = base
		}

		c.SearchBases = bases
	}

	return c
}
