// Package config handles input from etc/*.toml files and the environment.
package config

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"
	"github.com/spf13/viper"

	"github.com/ldapgate/ldapgate/internal/directory"
)

// EnvJSON names the environment variable holding a JSON document merged on top of the file config.
const EnvJSON = "LDAPGATE_CONFIG_JSON"

// envBindings maps config keys to the environment variables overriding them.
var envBindings = map[string]string{ //nolint:gochecknoglobals
	"Webserver.Port":             "PORT",
	"LDAP.URL":                   "LDAP_URL",
	"LDAP.BaseDN":                "LDAP_BASE_DN",
	"LDAP.BindDN":                "LDAP_BIND_DN",
	"LDAP.BindPassword":          "LDAP_BIND_PASSWORD",
	"LDAP.DomainSuffix":          "LDAP_DOMAIN_SUFFIX",
	"LDAP.AltDomainSuffix":       "LDAP_ALT_DOMAIN_SUFFIX",
	"LDAP.TLSRejectUnauthorized": "LDAP_TLS_REJECT_UNAUTHORIZED",
	"LDAP.ConnectTimeout":        "LDAP_CONNECT_TIMEOUT",
	"LDAP.RetryAttempts":         "LDAP_CONNECTION_RETRY_ATTEMPTS",
	"LDAP.RetryDelay":            "LDAP_CONNECTION_RETRY_DELAY",
	"Proxy.Enabled":              "USE_LDAP_PROXY",
	"Proxy.URL":                  "PROXY_LDAP_URL",
	"Proxy.APIKey":               "PROXY_API_KEY",
	"Gateway.APIKey":             "GATEWAY_API_KEY",
	"Tunnel.Host":                "SSH_HOST",
	"Tunnel.Port":                "SSH_PORT",
	"Tunnel.Username":            "SSH_USERNAME",
	"Tunnel.PrivateKey":          "SSH_PRIVATE_KEY",
	"Tunnel.Password":            "SSH_PASSWORD",
	"Tunnel.RemoteHost":          "LDAP_REMOTE_HOST",
	"Tunnel.RemotePort":          "LDAP_REMOTE_PORT",
	"Tunnel.LocalPort":           "SSH_LOCAL_PORT",
}

// ReadConfig from config file.
func ReadConfig(path string) (Config, error) {
	var (
		c             Config
		JSONConfigEnv string
		err           error
	)

	// Read main configuration
	if path == "" {
		path = "./etc/"
	}

	v := newViper()
	v.SetConfigFile(filepath.Join(path, "main.toml"))

	if err = v.ReadInConfig(); err != nil {
		return Config{}, errors.Wrap(err, "failed to read main config file")
	}

	if err = v.Unmarshal(&c); err != nil {
		return Config{}, errors.Wrap(err, "failed to decode main config file")
	}

	// override it from env
	JSONConfigEnv = os.Getenv(EnvJSON)

	if JSONConfigEnv != "" {
		c, err = decodeAndMergeConfig(c, JSONConfigEnv)
		if err != nil {
			return c, err
		}
	}

	// the tunnel is implied by an SSH host, as the gateway is by its key
	if c.Tunnel.Host != "" {
		c.Tunnel.Enabled = true
	}

	if c.Gateway.APIKey != "" {
		c.Gateway.Enabled = true
	}

	return c, validate(c)
}

func newViper() *viper.Viper {
	v := viper.New()
	v.SetConfigType("toml")

	v.SetDefault("Title", "LDAP Gateway")
	v.SetDefault("Webserver.Port", 3000) //nolint:mnd
	v.SetDefault("Webserver.URL", "http://localhost:3000")
	v.SetDefault("Webserver.ShutDownTime", 5) //nolint:mnd
	v.SetDefault("Webserver.CORSAllowOrigins", "*")
	v.SetDefault("Webserver.Limiter.Enabled", true)
	v.SetDefault("Webserver.Limiter.Max", 100)         //nolint:mnd
	v.SetDefault("Webserver.Limiter.Expiration", 900)  //nolint:mnd
	v.SetDefault("Webserver.Limiter.Storage", "memory")
	v.SetDefault("LDAP.TLSRejectUnauthorized", true)
	v.SetDefault("LDAP.ConnectTimeout", directory.DefaultConnectTimeout.Milliseconds())
	v.SetDefault("LDAP.RetryAttempts", directory.DefaultRetryAttempts)
	v.SetDefault("LDAP.RetryDelay", directory.DefaultRetryBaseDelay.Milliseconds())
	v.SetDefault("Gateway.Name", "LDAP API Gateway")
	v.SetDefault("Proxy.Timeout", 30000) //nolint:mnd
	v.SetDefault("Tunnel.Port", 22)      //nolint:mnd
	v.SetDefault("Tunnel.RemoteHost", "localhost")
	v.SetDefault("Tunnel.RemotePort", 636)    //nolint:mnd
	v.SetDefault("Tunnel.LocalPort", 1389)    //nolint:mnd
	v.SetDefault("Tunnel.ReadyTimeout", 30000) //nolint:mnd
	v.SetDefault("Diag.OutboundIPURL", "https://api.ipify.org?format=json")
	v.SetDefault("Diag.Timeout", 5000) //nolint:mnd

	for key, env := range envBindings {
		_ = v.BindEnv(key, env) //nolint:errcheck // only fails without a key
	}

	return v
}

func decodeAndMergeConfig(c Config, configAsJSON string) (Config, error) {
	err := json.Unmarshal([]byte(configAsJSON), &c)
	if err != nil {
		return Config{}, errors.Wrap(err, "failed to read "+EnvJSON)
	}

	return c, nil
}

// DumpConfig config as TOML String. Secrets are omitted.
func DumpConfig(c Config) (string, error) {
	var buffer bytes.Buffer
	t := toml.NewEncoder(&buffer)

	if err := t.Encode(c); err != nil {
		return "", err //nolint: wrapcheck
	}

	return buffer.String(), nil
}

// DumpConfigJSON config as JSON String. Secrets are omitted.
func DumpConfigJSON(c Config) (string, error) {
	var buffer bytes.Buffer
	j := json.NewEncoder(&buffer)
	j.SetIndent("", "  ")

	if err := j.Encode(c); err != nil {
		return "", err //nolint: wrapcheck
	}

	return buffer.String(), nil
}

// validate the config shape. Missing directory settings are not rejected
// here: the authenticator reports them as a configuration error per request.
func validate(c Config) error {
	if c.Webserver.Port == 0 {
		return errors.Wrap(ErrWebServerPortCanNotBeZero, ErrInvalidConfig.Error())
	}

	if c.Webserver.URL == "" {
		return errors.Wrap(ErrEmptyURL, ErrInvalidConfig.Error())
	}

	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}

	if c.LDAP.URL != "" && !strings.HasPrefix(c.LDAP.URL, "ldap://") && !strings.HasPrefix(c.LDAP.URL, "ldaps://") {
		return errors.Wrap(ErrInvalidLDAPURL, ErrInvalidConfig.Error())
	}

	if c.Tunnel.Enabled && c.Tunnel.PrivateKey == "" && c.Tunnel.PrivateKeyFile == "" && c.Tunnel.Password == "" {
		return errors.Wrap(ErrTunnelAuthMissing, ErrInvalidConfig.Error())
	}

	return nil
}

// Suffixes returns the configured domain suffixes in the order they are
// tried: DomainSuffixes, then DomainSuffix, then AltDomainSuffix. Blank and
// repeated entries are dropped.
func (l LDAP) Suffixes() []string {
	var (
		out  []string
		seen = map[string]struct{}{}
	)

	candidates := append(append([]string{}, l.DomainSuffixes...), l.DomainSuffix, l.AltDomainSuffix)

	for _, suffix := range candidates {
		suffix = strings.TrimSpace(suffix)
		if suffix == "" {
			continue
		}

		key := strings.ToLower(suffix)
		if _, ok := seen[key]; ok {
			continue
		}

		seen[key] = struct{}{}
		out = append(out, suffix)
	}

	return out
}

// Directory converts the LDAP settings to the immutable directory configuration.
func (l LDAP) Directory() directory.Config {
	return directory.Config{
		URL:                   l.URL,
		BaseDN:                l.BaseDN,
		SearchBases:           l.searchBases(),
		BindDN:                l.BindDN,
		BindPassword:          l.BindPassword,
		DomainSuffixes:        l.Suffixes(),
		TLSRejectUnauthorized: l.TLSRejectUnauthorized,
		StartTLS:              l.StartTLS,
		ConnectTimeout:        Millis(l.ConnectTimeout),
		RetryAttempts:         l.RetryAttempts,
		RetryBaseDelay:        Millis(l.RetryDelay),
	}.WithDefaults()
}

// searchBases keys the per suffix search roots by lowercase suffix.
func (l LDAP) searchBases() map[string]string {
	if len(l.SearchBases) == 0 {
		return nil
	}

	bases := make(map[string]string, len(l.SearchBases))
	for _, sb := range l.SearchBases {
		bases[strings.ToLower(strings.TrimSpace(sb.Suffix))] = sb.BaseDN
	}

	return bases
}

// Millis converts a millisecond setting to a duration.
func Millis(ms int) time.Duration {
	return time.Duration(ms) * time.Millisecond
}
