package config

import (
	"errors"
)

var (
	// ErrEmptyURL error if config webserver.URL is empty.
	ErrEmptyURL = errors.New("toml config webserver.url can not be empty")

	// ErrWebServerPortCanNotBeZero error if config webserver listening port is 0.
	ErrWebServerPortCanNotBeZero = errors.New("toml config webserver.port listening port can not be 0")

	// ErrInvalidLDAPURL is returned if LDAP.URL is set but not an ldap:// or ldaps:// URL.
	ErrInvalidLDAPURL = errors.New("toml config ldap.url must start with ldap:// or ldaps://")

	// ErrTunnelAuthMissing is returned if the SSH tunnel is enabled without a key or password.
	ErrTunnelAuthMissing = errors.New("toml config tunnel needs a privateKey, privateKeyFile or password")

	// ErrInvalidConfig wraps every validation failure.
	ErrInvalidConfig = errors.New("invalid config")
)
