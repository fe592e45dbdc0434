package builtin

import (
	"context"
	"errors"
	"testing"
	"time"

	. "github.com/onsi/gomega"

	"github.com/datahub-project/datahub-upgrade/internal/model"
	"github.com/datahub-project/datahub-upgrade/internal/store"
	"github.com/datahub-project/datahub-upgrade/internal/store/memory"
	"github.com/datahub-project/datahub-upgrade/internal/upgrade"
)

func newManager(s store.ResultStore, storeType string) *upgrade.Manager {
	m := upgrade.NewManager(upgrade.Options{Store: s})
	RegisterAll(m, Deps{Store: s, StoreType: storeType})
	return m
}

func TestRegisterAll(t *testing.T) {
	g := NewWithT(t)
	m := newManager(memory.New(), "memory")

	ids := []string{}
	for _, u := range m.Upgrades() {
		ids = append(ids, u.ID)
	}
	g.Expect(ids).To(ConsistOf(NoOpID, SqlSetupID, PruneResultsID))
}

func TestNoOp(t *testing.T) {
	g := NewWithT(t)
	m := newManager(memory.New(), "memory")

	exec, err := m.Execute(context.Background(), NoOpID, nil)
	g.Expect(err).NotTo(HaveOccurred())
	g.Expect(exec.Result.EffectiveState()).To(Equal(model.UpgradeStateSucceeded))
}

type migratingStore struct {
	*memory.Store
	migrations int
	err        error
}

func (m *migratingStore) Migrate(context.Context) error {
	m.migrations++
	return m.err
}

func TestSqlSetupMigrates(t *testing.T) {
	g := NewWithT(t)
	s := &migratingStore{Store: memory.New()}
	m := newManager(s, "sql")

	exec, err := m.Execute(context.Background(), SqlSetupID, nil)
	g.Expect(err).NotTo(HaveOccurred())
	g.Expect(s.migrations).To(Equal(1))
	g.Expect(exec.Result.EffectiveState()).To(Equal(model.UpgradeStateSucceeded))
	g.Expect(exec.Result.Result).To(HaveKeyWithValue(ResultKeyStore, "sql"))
}

func TestSqlSetupRetriesAndFails(t *testing.T) {
	g := NewWithT(t)
	s := &migratingStore{Store: memory.New(), err: errors.New("db down")}
	m := newManager(s, "sql")

	exec, err := m.Execute(context.Background(), SqlSetupID, nil)
	g.Expect(err).NotTo(HaveOccurred())
	g.Expect(s.migrations).To(Equal(3))
	g.Expect(exec.Result.EffectiveState()).To(Equal(model.UpgradeStateFailed))
	g.Expect(exec.Result.Result[model.ResultKeyError]).To(ContainSubstring("db down"))
}

func TestSqlSetupWithoutMigrator(t *testing.T) {
	g := NewWithT(t)
	m := newManager(memory.New(), "memory")

	exec, err := m.Execute(context.Background(), SqlSetupID, nil)
	g.Expect(err).NotTo(HaveOccurred())
	g.Expect(exec.Result.EffectiveState()).To(Equal(model.UpgradeStateSucceeded))
}

func TestPruneResults(t *testing.T) {
	g := NewWithT(t)
	ctx := context.Background()
	s := memory.New()

	for i := 0; i < 4; i++ {
		g.Expect(s.Put(ctx, "A", model.NewUpgradeResult(model.UpgradeStateFailed, time.UnixMilli(int64(i)), nil))).To(Succeed())
	}
	g.Expect(s.Put(ctx, "B", model.NewUpgradeResult(model.UpgradeStateSucceeded, time.UnixMilli(1), nil))).To(Succeed())

	m := newManager(s, "memory")
	exec, err := m.Execute(ctx, PruneResultsID, upgrade.Args{ArgKeep: "1", ArgUpgradeIDs: "A,B"})
	g.Expect(err).NotTo(HaveOccurred())
	g.Expect(exec.Result.EffectiveState()).To(Equal(model.UpgradeStateSucceeded))
	g.Expect(exec.Result.Result).To(HaveKeyWithValue("pruned.A", "2"))
	g.Expect(exec.Result.Result).To(HaveKeyWithValue("pruned.B", "0"))
	g.Expect(exec.Result.Result).To(HaveKeyWithValue(ResultKeyPrunedTotal, "2"))

	history, err := s.History(ctx, "A")
	g.Expect(err).NotTo(HaveOccurred())
	g.Expect(history).To(HaveLen(2))
	g.Expect(history[0].Result.TimestampMs).To(Equal(int64(3)))
}

func TestPruneResultsRejectsBadKeep(t *testing.T) {
	g := NewWithT(t)
	m := newManager(memory.New(), "memory")

	exec, err := m.Execute(context.Background(), PruneResultsID, upgrade.Args{ArgKeep: "-1"})
	g.Expect(err).NotTo(HaveOccurred())
	g.Expect(exec.Result.EffectiveState()).To(Equal(model.UpgradeStateFailed))
}

type latestOnly struct{ store.ResultStore }

func TestPruneResultsNeedsHistory(t *testing.T) {
	g := NewWithT(t)
	m := newManager(latestOnly{memory.New()}, "gms")

	exec, err := m.Execute(context.Background(), PruneResultsID, nil)
	g.Expect(err).NotTo(HaveOccurred())
	g.Expect(exec.Result.EffectiveState()).To(Equal(model.UpgradeStateFailed))
}
