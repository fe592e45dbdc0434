package memory

import (
	"context"
	"errors"
	"testing"

	"github.com/datahub-project/datahub-upgrade/internal/model"
	"github.com/datahub-project/datahub-upgrade/internal/store"
)

func TestStore_GetNotFound(t *testing.T) {
	s := New()
	_, err := s.Get(context.Background(), "missing")
	if !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("Expected ErrNotFound, got: %v", err)
	}
}

func TestStore_PutGetHistory(t *testing.T) {
	ctx := context.Background()
	s := New()

	for i := int64(1); i <= 3; i++ {
		if err := s.Put(ctx, "u", model.UpgradeResult{TimestampMs: i}); err != nil {
			t.Fatalf("Expected no error, got: %v", err)
		}
	}

	latest, err := s.Get(ctx, "u")
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if latest.TimestampMs != 3 {
		t.Errorf("Expected latest timestamp 3, got %d", latest.TimestampMs)
	}

	history, err := s.History(ctx, "u")
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	wantVersions := []int64{0, 2, 1}
	wantTimestamps := []int64{3, 2, 1}
	for i, v := range history {
		if v.Version != wantVersions[i] || v.Result.TimestampMs != wantTimestamps[i] {
			t.Errorf("history[%d] = v%d ts=%d, want v%d ts=%d", i, v.Version, v.Result.TimestampMs, wantVersions[i], wantTimestamps[i])
		}
	}
}

func TestStore_PutRejectsInvalid(t *testing.T) {
	s := New()
	err := s.Put(context.Background(), "u", model.UpgradeResult{TimestampMs: -1})
	if !errors.Is(err, model.ErrNegativeTimestamp) {
		t.Fatalf("Expected ErrNegativeTimestamp, got: %v", err)
	}
}

func TestStore_GetReturnsCopy(t *testing.T) {
	ctx := context.Background()
	s := New()
	_ = s.Put(ctx, "u", model.UpgradeResult{TimestampMs: 1, Result: map[string]string{"a": "1"}})

	got, _ := s.Get(ctx, "u")
	got.Result["a"] = "changed"

	again, _ := s.Get(ctx, "u")
	if again.Result["a"] != "1" {
		t.Error("Expected stored result to be immutable through returned copies")
	}
}

func TestStore_Prune(t *testing.T) {
	ctx := context.Background()
	s := New()
	for i := int64(1); i <= 5; i++ {
		_ = s.Put(ctx, "u", model.UpgradeResult{TimestampMs: i})
	}

	pruned, err := s.Prune(ctx, "u", 2)
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if pruned != 2 {
		t.Errorf("Expected 2 pruned, got %d", pruned)
	}

	history, _ := s.History(ctx, "u")
	if len(history) != 3 {
		t.Fatalf("Expected 3 versions left, got %d", len(history))
	}
	if history[0].Result.TimestampMs != 5 || history[2].Result.TimestampMs != 3 {
		t.Errorf("unexpected history after prune: %+v", history)
	}

	// numbering continues from the highest surviving version
	_ = s.Put(ctx, "u", model.UpgradeResult{TimestampMs: 6})
	history, _ = s.History(ctx, "u")
	if history[1].Version != 5 {
		t.Errorf("Expected previous latest to become v5, got v%d", history[1].Version)
	}
}

func TestStore_UpgradeIDs(t *testing.T) {
	ctx := context.Background()
	s := New()
	_ = s.Put(ctx, "b", model.UpgradeResult{TimestampMs: 1})
	_ = s.Put(ctx, "a", model.UpgradeResult{TimestampMs: 1})

	ids, _ := s.UpgradeIDs(ctx)
	if len(ids) != 2 || ids[0] != "a" || ids[1] != "b" {
		t.Errorf("Expected [a b], got %v", ids)
	}
}
