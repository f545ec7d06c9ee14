package app

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/spf13/cobra"

	"github.com/ldapgate/ldapgate/internal/daemon"
)

// ErrCheckFailed makes the check command exit non-zero.
var ErrCheckFailed = errors.New("ldap connection test failed")

func init() { //nolint: gochecknoinits
	rootCmd.AddCommand(checkCmd)
}

var checkCmd = &cobra.Command{
	Use:     "check",
	Short:   "Test the directory connection and admin bind, print the report as JSON",
	PreRunE: loadConfig,
	RunE: func(cmd *cobra.Command, _ []string) error {
		report, err := daemon.Check(context.Background(), &cfg)
		if err != nil {
			return err
		}

		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")

		if err = enc.Encode(report); err != nil {
			return err
		}

		if !report.Success {
			return ErrCheckFailed
		}

		return nil
	},
}
