package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/datahub-project/datahub-upgrade/internal/store"
)

func StatusCmd(a *app) *cobra.Command {
	var (
		upgradeID string
		history   bool
		output    string
	)

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show the recorded result of an upgrade",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if upgradeID == "" {
				return errors.New("--upgrade-id is required")
			}
			if err := validateFormat(output); err != nil {
				return err
			}

			ctx := cmd.Context()
			sess, err := openStore(ctx, a.cfg)
			if err != nil {
				return err
			}
			defer sess.Close()

			if history {
				hs, ok := sess.store.(store.HistoryStore)
				if !ok {
					return fmt.Errorf("store %q does not keep result history", a.cfg.Store.Type)
				}
				versions, err := hs.History(ctx, upgradeID)
				if err != nil {
					return err
				}
				if len(versions) == 0 {
					return fmt.Errorf("%w: %s", store.ErrNotFound, upgradeID)
				}
				return printHistory(cmd.OutOrStdout(), versions, output)
			}

			result, err := sess.store.Get(ctx, upgradeID)
			if err != nil {
				return err
			}
			return printResult(cmd.OutOrStdout(), upgradeID, *result, output)
		},
	}

	cmd.Flags().StringVarP(&upgradeID, "upgrade-id", "u", "", "id of the upgrade")
	cmd.Flags().BoolVar(&history, "history", false, "list every stored version, latest first")
	cmd.Flags().StringVarP(&output, "output", "o", formatTable, "output format (supported values: table, json)")

	return cmd
}

func validateFormat(format string) error {
	if format != formatTable && format != formatJSON {
		return fmt.Errorf("invalid output format %q, supported values: %s, %s", format, formatTable, formatJSON)
	}
	return nil
}
