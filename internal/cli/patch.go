package cli

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/datahub-project/datahub-upgrade/internal/model"
	"github.com/datahub-project/datahub-upgrade/internal/store"
	"github.com/datahub-project/datahub-upgrade/internal/upgrade"
)

func PatchCmd(a *app) *cobra.Command {
	var (
		upgradeID string
		sets      []string
		removes   []string
		state     string
		output    string
	)

	cmd := &cobra.Command{
		Use:   "patch",
		Short: "Edit the recorded result of an upgrade",
		Long: `Removes and sets result entries, and optionally the state, of the latest recorded
result. The patched result is written as a new version; the timestamp is kept.`,
		Example: `  datahub-upgrade patch -u SqlSetup --set note=verified --remove error
  datahub-upgrade patch -u RestoreIndices --state SUCCEEDED`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if upgradeID == "" {
				return errors.New("--upgrade-id is required")
			}
			if err := validateFormat(output); err != nil {
				return err
			}
			builder, err := buildResultPatch(upgradeID, sets, removes, state)
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			sess, err := openStore(ctx, a.cfg)
			if err != nil {
				return err
			}
			defer sess.Close()
			if err := sess.openLocker(); err != nil {
				return err
			}

			lease, err := sess.locker.Acquire(ctx, upgrade.LockKey(upgradeID), a.cfg.Lock.TTL)
			if err != nil {
				return err
			}
			defer func() {
				if err := lease.Release(ctx); err != nil {
					setupLog.Error(err, "failed to release upgrade lock", "upgradeId", upgradeID)
				}
			}()

			ctx = store.WithRunID(ctx, "patch-"+uuid.NewString())
			if err := store.Patch(ctx, sess.store, upgradeID, builder); err != nil {
				return err
			}

			result, err := sess.store.Get(ctx, upgradeID)
			if err != nil {
				return err
			}
			return printResult(cmd.OutOrStdout(), upgradeID, *result, output)
		},
	}

	cmd.Flags().StringVarP(&upgradeID, "upgrade-id", "u", "", "id of the upgrade")
	cmd.Flags().StringArrayVar(&sets, "set", nil, "result entry to set as key=value, repeatable")
	cmd.Flags().StringArrayVar(&removes, "remove", nil, "result key to remove, repeatable")
	cmd.Flags().StringVar(&state, "state", "", "new state (IN_PROGRESS, SUCCEEDED, FAILED, ABORTED)")
	cmd.Flags().StringVarP(&output, "output", "o", formatTable, "output format (supported values: table, json)")

	return cmd
}

// buildResultPatch applies removes before sets, so a key named in both ends up set
func buildResultPatch(upgradeID string, sets, removes []string, state string) (*model.ResultPatchBuilder, error) {
	if len(sets) == 0 && len(removes) == 0 && state == "" {
		return nil, errors.New("nothing to patch: pass --set, --remove or --state")
	}

	builder := model.NewResultPatchBuilder(upgradeID)
	for _, key := range removes {
		if key == "" {
			return nil, errors.New("--remove needs a key")
		}
		builder.RemoveResult(key)
	}

	for _, raw := range sets {
		if !strings.Contains(raw, "=") {
			return nil, fmt.Errorf("invalid entry %q: expected key=value", raw)
		}
	}
	entries, err := upgrade.ParseArgs(sets)
	if err != nil {
		return nil, err
	}
	keys := make([]string, 0, len(entries))
	for key := range entries {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		builder.AddResult(key, entries[key])
	}

	if state != "" {
		s := model.UpgradeState(state)
		if !s.Valid() {
			return nil, fmt.Errorf("%w %q", model.ErrUnknownState, state)
		}
		builder.SetState(s)
	}
	return builder, nil
}
