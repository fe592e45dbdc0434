// Package builtin holds the upgrades every runner ships with.
package builtin

import (
	"context"
	"fmt"
	"strconv"

	"sigs.k8s.io/controller-runtime/pkg/log"

	"github.com/datahub-project/datahub-upgrade/internal/store"
	"github.com/datahub-project/datahub-upgrade/internal/upgrade"
)

const (
	NoOpID         = "NoOpUpgrade"
	SqlSetupID     = "SqlSetup"
	PruneResultsID = "PruneUpgradeResults"

	// DefaultKeep is how many historical results PruneResults keeps per upgrade
	DefaultKeep = 5

	ArgUpgradeIDs = "upgradeIds"
	ArgKeep       = "keep"

	ResultKeyStore       = "store"
	ResultKeyPrunedTotal = "prunedTotal"
	resultPrunedPrefix   = "pruned."
)

// Deps are the collaborators the built-in upgrades work on
type Deps struct {
	Store store.ResultStore
	// StoreType names the backend, recorded by SqlSetup
	StoreType string
}

// RegisterAll registers every built-in upgrade on m
func RegisterAll(m *upgrade.Manager, deps Deps) {
	m.Register(NoOp())
	m.Register(SqlSetup(deps))
	m.Register(PruneResults(deps))
}

// NoOp succeeds without doing anything. Useful to check a deployment end to end.
func NoOp() upgrade.Upgrade {
	return upgrade.Upgrade{
		ID: NoOpID,
		Steps: []upgrade.Step{upgrade.SimpleStep{
			StepID: "NoOpStep",
			Run: func(context.Context, *upgrade.Context) (upgrade.Action, error) {
				return upgrade.ActionContinue, nil
			},
		}},
	}
}

// SqlSetup creates the schema of stores that need one
func SqlSetup(deps Deps) upgrade.Upgrade {
	return upgrade.Upgrade{
		ID: SqlSetupID,
		Steps: []upgrade.Step{upgrade.SimpleStep{
			StepID:     "CreateAspectTableStep",
			RetryCount: 2,
			Run: func(ctx context.Context, uctx *upgrade.Context) (upgrade.Action, error) {
				uctx.SetResult(ResultKeyStore, deps.StoreType)
				migrator, ok := deps.Store.(store.Migrator)
				if !ok {
					uctx.Report.Addf("Store %s needs no schema setup", deps.StoreType)
					return upgrade.ActionContinue, nil
				}
				if err := migrator.Migrate(ctx); err != nil {
					return upgrade.ActionContinue, fmt.Errorf("failed to migrate %s store: %w", deps.StoreType, err)
				}
				uctx.Report.Addf("Migrated %s store", deps.StoreType)
				return upgrade.ActionContinue, nil
			},
		}},
	}
}

// PruneResults deletes old historical results. Args: upgradeIds (comma
// separated, default all) and keep (default 5).
func PruneResults(deps Deps) upgrade.Upgrade {
	return upgrade.Upgrade{
		ID: PruneResultsID,
		Steps: []upgrade.Step{upgrade.SimpleStep{
			StepID: "PruneResultHistoryStep",
			Run: func(ctx context.Context, uctx *upgrade.Context) (upgrade.Action, error) {
				return prune(ctx, deps, uctx)
			},
		}},
	}
}

func prune(ctx context.Context, deps Deps, uctx *upgrade.Context) (upgrade.Action, error) {
	logger := log.FromContext(ctx)

	history, ok := deps.Store.(store.HistoryStore)
	if !ok {
		return upgrade.ActionAbort, fmt.Errorf("store %s keeps no history to prune", deps.StoreType)
	}

	keep, err := uctx.Args.Int(ArgKeep, DefaultKeep)
	if err != nil {
		return upgrade.ActionContinue, err
	}
	if keep < 0 {
		return upgrade.ActionContinue, fmt.Errorf("argument %s must not be negative, got %d", ArgKeep, keep)
	}

	ids := uctx.Args.Strings(ArgUpgradeIDs)
	if len(ids) == 0 {
		if ids, err = history.UpgradeIDs(ctx); err != nil {
			return upgrade.ActionContinue, fmt.Errorf("failed to list upgrade ids: %w", err)
		}
	}

	var total int64
	for _, id := range ids {
		n, err := history.Prune(ctx, id, keep)
		if err != nil {
			return upgrade.ActionContinue, fmt.Errorf("failed to prune %s: %w", id, err)
		}
		logger.Info("Pruned upgrade result history", "prunedUpgradeId", id, "deleted", n, "keep", keep)
		uctx.SetResult(resultPrunedPrefix+id, strconv.FormatInt(n, 10))
		total += n
	}
	uctx.SetResult(ResultKeyPrunedTotal, strconv.FormatInt(total, 10))
	uctx.Report.Addf("Pruned %d results across %d upgrades", total, len(ids))
	return upgrade.ActionContinue, nil
}
