package cli

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/datahub-project/datahub-upgrade/internal/metrics"
	"github.com/datahub-project/datahub-upgrade/internal/model"
	"github.com/datahub-project/datahub-upgrade/internal/progress"
	"github.com/datahub-project/datahub-upgrade/internal/upgrade"
)

// ErrUpgradeNotSucceeded makes the process exit non-zero after a FAILED or
// ABORTED run
var ErrUpgradeNotSucceeded = errors.New("upgrade did not succeed")

const pushJob = "datahub_upgrade"

func RunCmd(a *app) *cobra.Command {
	var (
		upgradeID string
		rawArgs   []string
		force     bool
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run a named upgrade",
		Long: `Runs the upgrade named by --upgrade-id and records its result.

An upgrade whose last recorded result is SUCCEEDED is skipped unless --force is set.`,
		Example: `  datahub-upgrade run -u SqlSetup
  datahub-upgrade run -u PruneUpgradeResults -a keep=3 -a upgradeIds=SqlSetup,NoOpUpgrade`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if upgradeID == "" {
				return errors.New("--upgrade-id is required")
			}
			args, err := upgrade.ParseArgs(rawArgs)
			if err != nil {
				return err
			}
			if force {
				args[upgrade.ArgForce] = "true"
			}

			ctx := cmd.Context()
			sess, err := openSession(ctx, a.cfg)
			if err != nil {
				return err
			}
			defer func() {
				if err := sess.Close(); err != nil {
					setupLog.Error(err, "failed to release resources")
				}
			}()

			m := sess.manager()
			if _, ok := m.Get(upgradeID); !ok {
				return fmt.Errorf("%w %q", upgrade.ErrUnknownUpgrade, upgradeID)
			}

			out := cmd.OutOrStdout()
			spinner := progress.New(out)
			spinner.Start("Running upgrade %s", upgradeID)

			started := time.Now()
			exec, err := m.Execute(ctx, upgradeID, args)
			if err != nil {
				spinner.FinishWithError()
				return err
			}

			state := exec.Result.EffectiveState()
			switch {
			case exec.Skipped:
				spinner.FinishWithWarning()
				fmt.Fprintf(out, "\n    Upgrade %s already succeeded, pass --force to run it again\n", upgradeID)
			case state == model.UpgradeStateSucceeded:
				spinner.Finish()
			default:
				spinner.FinishWithError()
			}

			if !exec.Skipped {
				fmt.Fprintln(out)
				fmt.Fprint(out, exec.Report.String(time.Since(started)))
			}

			if url := a.cfg.Hooks.PushgatewayURL; url != "" {
				if err := metrics.Push(ctx, url, pushJob, sess.source.InstanceID); err != nil {
					setupLog.Error(err, "failed to push metrics", "pushgateway", url)
				}
			}

			if !exec.Skipped && state != model.UpgradeStateSucceeded {
				return fmt.Errorf("%w: %s finished %s", ErrUpgradeNotSucceeded, upgradeID, state)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&upgradeID, "upgrade-id", "u", "", "id of the upgrade to run")
	cmd.Flags().StringArrayVarP(&rawArgs, "arg", "a", nil, "upgrade argument as key=value, repeatable")
	cmd.Flags().BoolVar(&force, "force", false, "run even if the last result is SUCCEEDED")

	return cmd
}
