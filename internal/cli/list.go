package cli

import (
	"errors"

	"github.com/spf13/cobra"

	"github.com/datahub-project/datahub-upgrade/internal/store"
)

func ListCmd(a *app) *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List the registered upgrades and their last recorded state",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := validateFormat(output); err != nil {
				return err
			}

			ctx := cmd.Context()
			sess, err := openStore(ctx, a.cfg)
			if err != nil {
				return err
			}
			defer sess.Close()

			var views []upgradeView
			for _, u := range sess.manager().Upgrades() {
				view := upgradeView{UpgradeID: u.ID}
				for _, step := range u.Steps {
					view.Steps = append(view.Steps, step.ID())
				}

				result, err := sess.store.Get(ctx, u.ID)
				switch {
				case errors.Is(err, store.ErrNotFound):
				case err != nil:
					return err
				default:
					view.State = result.EffectiveState()
					view.TimestampMs = result.TimestampMs
				}
				views = append(views, view)
			}

			return printUpgrades(cmd.OutOrStdout(), views, output)
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", formatTable, "output format (supported values: table, json)")

	return cmd
}
