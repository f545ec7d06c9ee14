package config

import (
	"github.com/ldapgate/ldapgate/internal/logger"
)

// Config overall data structure.
type Config struct {
	DevMode   bool // enable dev mode for development
	Title     string
	Log       logger.Log
	Webserver Webserver
	LDAP      LDAP
	Login     Login
	Gateway   Gateway
	Proxy     Proxy
	Tunnel    Tunnel
	Diag      Diag
}

// Webserver implement webserver settings.
type Webserver struct {
	DisableRecover   bool    // disable recover middleware
	Port             int     `validate:"min=0,max=65535"` // listening port for the webserver
	ShutDownTime     int     // wait time for shutdown in seconds
	URL              string  // base url for the webserver
	CORSAllowOrigins string  // comma separated list, "*" allows every origin
	Limiter          Limiter // per IP rate limit on /api/
}

// Limiter implements the per IP rate limit settings.
type Limiter struct {
	Enabled    bool
	Max        int    `validate:"min=0"` // requests per window
	Expiration int    `validate:"min=0"` // window length in seconds
	Storage    string `validate:"omitempty,oneof=memory mysql postgres"`
	DB         DB     // shared counter storage for mysql and postgres
}

// LDAP holds the directory settings. Timeouts and delays are milliseconds.
type LDAP struct {
	URL                   string
	BaseDN                string
	BindDN                string
	BindPassword          string `json:"-" toml:"-"`
	DomainSuffix          string
	AltDomainSuffix       string
	DomainSuffixes        []string
	SearchBases           []SearchBase `validate:"dive"`
	TLSRejectUnauthorized bool
	StartTLS              bool
	ConnectTimeout        int `validate:"min=0"`
	RetryAttempts         int `validate:"min=0,max=20"`
	RetryDelay            int `validate:"min=0"`
}

// SearchBase sets the search root of one domain suffix. A list of tables
// keeps dotted and mixed-case suffixes intact, map keys would be split and
// lowercased by the config reader.
type SearchBase struct {
	Suffix string `validate:"required"`
	BaseDN string `validate:"required"`
}

// Login holds the settings of the login route.
type Login struct {
	// TestCredentials accepts test/test without asking the directory. Never enable in production.
	TestCredentials bool
	// ConnectionTest answers connection-test/connection-test with a directory diagnostic.
	ConnectionTest bool
}

// Gateway holds the settings of the bearer key protected gateway routes.
type Gateway struct {
	Enabled bool
	Name    string
	APIKey  string `json:"-" toml:"-" validate:"required_if=Enabled true"`
}

// Proxy holds the settings of an upstream gateway used by the login route.
type Proxy struct {
	Enabled bool
	URL     string `validate:"required_if=Enabled true,omitempty,url"`
	APIKey  string `json:"-" toml:"-"`
	Timeout int    `validate:"min=0"` // milliseconds
}

// Tunnel holds the SSH tunnel settings.
type Tunnel struct {
	Enabled        bool
	Host           string `validate:"required_if=Enabled true"`
	Port           int    `validate:"min=0,max=65535"`
	Username       string `validate:"required_if=Enabled true"`
	PrivateKey     string `json:"-" toml:"-"`
	PrivateKeyFile string
	Password       string `json:"-" toml:"-"`
	KnownHostsFile string
	RemoteHost     string
	RemotePort     int `validate:"min=0,max=65535"`
	LocalPort      int `validate:"min=0,max=65535"`
	ReadyTimeout   int `validate:"min=0"` // milliseconds
}

// Diag holds the connection diagnostic settings.
type Diag struct {
	OutboundIPURL string `validate:"omitempty,url"`
	Timeout       int    `validate:"min=0"` // milliseconds
}
