// Package store persists dataHubUpgradeResult aspects keyed by upgrade id.
package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/datahub-project/datahub-upgrade/internal/model"
)

// ErrNotFound is returned when no result has been recorded for an upgrade id
var ErrNotFound = errors.New("upgrade result not found")

// ResultStore reads and writes the latest upgrade result of an upgrade id
type ResultStore interface {
	// Get returns the latest result, or ErrNotFound
	Get(ctx context.Context, upgradeID string) (*model.UpgradeResult, error)
	// Put records result as the latest result. Earlier results are never modified.
	Put(ctx context.Context, upgradeID string, result model.UpgradeResult) error
}

// Versioned is a stored result together with its aspect version.
// Version 0 is always the latest.
type Versioned struct {
	Version   int64
	CreatedAt time.Time
	Result    model.UpgradeResult
}

// HistoryStore is implemented by stores that keep earlier results
type HistoryStore interface {
	ResultStore
	// History returns all stored versions, latest first
	History(ctx context.Context, upgradeID string) ([]Versioned, error)
	// Prune deletes all but the keep most recent historical versions.
	// The latest version is never pruned.
	Prune(ctx context.Context, upgradeID string, keep int) (int64, error)
	// UpgradeIDs lists every upgrade id with a stored result
	UpgradeIDs(ctx context.Context) ([]string, error)
}

// Patcher is implemented by stores that apply patches server side
type Patcher interface {
	Patch(ctx context.Context, builder *model.ResultPatchBuilder) error
}

// Migrator is implemented by stores that need schema setup before use
type Migrator interface {
	Migrate(ctx context.Context) error
}

type runIDKey struct{}

// WithRunID tags ctx with the id of the upgrade run writing through it. Stores
// that keep write metadata record it next to the result.
func WithRunID(ctx context.Context, runID string) context.Context {
	return context.WithValue(ctx, runIDKey{}, runID)
}

// RunIDFrom returns the run id set by WithRunID, or ""
func RunIDFrom(ctx context.Context) string {
	runID, _ := ctx.Value(runIDKey{}).(string)
	return runID
}

// Patch applies the operations of builder to the latest result of upgradeID.
// Stores that implement Patcher receive the patch as is; on the others the
// patched result is written as a new version.
func Patch(ctx context.Context, s ResultStore, upgradeID string, builder *model.ResultPatchBuilder) error {
	if p, ok := s.(Patcher); ok {
		return p.Patch(ctx, builder)
	}

	current, err := s.Get(ctx, upgradeID)
	if err != nil {
		return err
	}
	patched, err := model.ApplyPatch(*current, builder.Operations())
	if err != nil {
		return fmt.Errorf("failed to patch upgrade result %s: %w", upgradeID, err)
	}
	return s.Put(ctx, upgradeID, patched)
}
