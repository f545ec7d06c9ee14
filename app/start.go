package app

import (
	"github.com/spf13/cobra"

	"github.com/ldapgate/ldapgate/internal/daemon"
)

func init() { //nolint: gochecknoinits
	startCmd.Flags().BoolVar(&devMode, "dev", false, "Enable dev mode")

	rootCmd.AddCommand(startCmd)
}

var (
	devMode bool

	startCmd = &cobra.Command{
		Use:     "start",
		Short:   "Start the ldapgate web service",
		PreRunE: loadConfig,
		RunE: func(_ *cobra.Command, _ []string) error {
			d, err := daemon.New(&cfg, Version)
			if err != nil {
				return err
			}

			return d.Start()
		},
	}
)
