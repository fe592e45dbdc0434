package kube

import (
	"context"
	"errors"
	"strings"
	"testing"

	"k8s.io/apimachinery/pkg/runtime"
	"k8s.io/apimachinery/pkg/types"
	"k8s.io/apimachinery/pkg/util/validation"
	"sigs.k8s.io/controller-runtime/pkg/client/fake"

	upgradev1alpha1 "github.com/datahub-project/datahub-upgrade/api/v1alpha1"
	"github.com/datahub-project/datahub-upgrade/internal/model"
	"github.com/datahub-project/datahub-upgrade/internal/store"
)

func newFakeStore(t *testing.T) (*Store, *upgradev1alpha1.DataHubUpgradeResult) {
	t.Helper()
	scheme := runtime.NewScheme()
	if err := upgradev1alpha1.AddToScheme(scheme); err != nil {
		t.Fatalf("failed to build scheme: %v", err)
	}
	c := fake.NewClientBuilder().WithScheme(scheme).Build()
	return New(c, "datahub"), &upgradev1alpha1.DataHubUpgradeResult{}
}

func TestStore_GetNotFound(t *testing.T) {
	s, _ := newFakeStore(t)
	_, err := s.Get(context.Background(), "system-update")
	if !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("Expected ErrNotFound, got: %v", err)
	}
}

func TestStore_CreateThenUpdate(t *testing.T) {
	ctx := context.Background()
	s, obj := newFakeStore(t)

	first := model.UpgradeResult{State: model.StatePtr(model.UpgradeStateInProgress), TimestampMs: 100}
	if err := s.Put(ctx, "system-update", first); err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	second := model.UpgradeResult{
		State:       model.StatePtr(model.UpgradeStateSucceeded),
		TimestampMs: 100,
		Result:      map[string]string{"rows": "12"},
	}
	if err := s.Put(ctx, "system-update", second); err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	got, err := s.Get(ctx, "system-update")
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if !got.Equal(second) {
		t.Errorf("Expected %+v, got %+v", second, *got)
	}

	if err := s.client.Get(ctx, types.NamespacedName{Name: "system-update", Namespace: "datahub"}, obj); err != nil {
		t.Fatalf("Expected stored object, got: %v", err)
	}
	if obj.Labels[UpgradeIDLabel] != "system-update" {
		t.Errorf("Expected upgrade id label, got %v", obj.Labels)
	}
	if obj.Spec.UpgradeID != "system-update" {
		t.Errorf("Expected spec upgrade id, got %q", obj.Spec.UpgradeID)
	}
}

func TestStore_AbsentStateRoundTrip(t *testing.T) {
	ctx := context.Background()
	s, _ := newFakeStore(t)

	want := model.UpgradeResult{TimestampMs: 5, Result: map[string]string{}}
	if err := s.Put(ctx, "u", want); err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	got, err := s.Get(ctx, "u")
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if got.State != nil {
		t.Errorf("Expected absent state, got %q", *got.State)
	}
	if got.EffectiveState() != model.UpgradeStateSucceeded {
		t.Errorf("Expected absent state to read as SUCCEEDED")
	}
	if got.Result == nil {
		t.Errorf("Expected empty result map to stay non-nil")
	}
	if len(got.Result) != 0 {
		t.Errorf("Expected empty result map, got %v", got.Result)
	}
}

func TestStore_AbsentResultRoundTrip(t *testing.T) {
	ctx := context.Background()
	s, _ := newFakeStore(t)

	want := model.UpgradeResult{State: model.StatePtr(model.UpgradeStateFailed), TimestampMs: 7}
	if err := s.Put(ctx, "u", want); err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	got, err := s.Get(ctx, "u")
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if got.Result != nil {
		t.Errorf("Expected absent result map, got %v", got.Result)
	}
	if !got.Equal(want) {
		t.Errorf("Expected %+v, got %+v", want, *got)
	}
}

func TestObjectName(t *testing.T) {
	tests := []struct {
		id       string
		expected string
	}{
		{"system-update", "system-update"},
		{"restore-indices.v2", "restore-indices.v2"},
	}
	for _, tt := range tests {
		t.Run(tt.id, func(t *testing.T) {
			if got := ObjectName(tt.id); got != tt.expected {
				t.Errorf("ObjectName(%q) = %q, want %q", tt.id, got, tt.expected)
			}
		})
	}

	rewritten := []string{"NoCodeDataMigration", "RestoreIndices", "weird_id/with:chars", strings.Repeat("x", 300), "___"}
	seen := map[string]string{}
	for _, id := range rewritten {
		name := ObjectName(id)
		if errs := validation.IsDNS1123Subdomain(name); len(errs) != 0 {
			t.Errorf("ObjectName(%q) = %q is not a valid name: %v", id, name, errs)
		}
		if other, ok := seen[name]; ok {
			t.Errorf("ObjectName collision between %q and %q", id, other)
		}
		seen[name] = id
	}

	if ObjectName("RestoreIndices") == ObjectName("restoreindices") {
		t.Error("Expected case-differing ids to map to different names")
	}
}
