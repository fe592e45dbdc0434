package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/datahub-project/datahub-upgrade/internal/buildinfo"
)

func VersionCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "version",
		Short: "Print the current version and exit",
		Args:  cobra.NoArgs,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return nil
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			return nil
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			_, err := fmt.Fprintf(cmd.OutOrStdout(), "datahub-upgrade %s\n", buildinfo.Version())
			return err
		},
	}
	return cmd
}
