// Package app implements the main application commands.
package app

import (
	"github.com/spf13/cobra"

	"github.com/ldapgate/ldapgate/internal/config"
	"github.com/ldapgate/ldapgate/internal/logger"
)

// Version is set at build time with -ldflags "-X github.com/ldapgate/ldapgate/app.Version=...".
var Version = "dev" //nolint:gochecknoglobals

var (
	configPath string // directory holding main.toml
	cfg        config.Config

	rootCmd = &cobra.Command{
		Use:   "ldapgate",
		Short: "ldapgate authenticates users against an LDAP or Active Directory server",
		Long: `ldapgate authenticates users against an LDAP or Active Directory server.
It serves a login route, a bearer key protected gateway for other services
and can reach the directory through an SSH tunnel or an upstream gateway.`,
		Args:         cobra.OnlyValidArgs,
		SilenceUsage: true,
	}
)

func init() { //nolint: gochecknoinits
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "./etc/", "Directory holding main.toml")
}

// loadConfig reads the configuration and initializes the logger.
func loadConfig(_ *cobra.Command, _ []string) error {
	var err error

	if cfg, err = config.ReadConfig(configPath); err != nil {
		return err
	}

	if devMode {
		cfg.DevMode = true
	}

	return logger.Init(cfg.Log)
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}
