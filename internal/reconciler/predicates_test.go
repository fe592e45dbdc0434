package reconciler

import (
	"testing"

	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"sigs.k8s.io/controller-runtime/pkg/event"

	upgradev1alpha1 "github.com/datahub-project/datahub-upgrade/api/v1alpha1"
)

func TestResultChangedPredicate(t *testing.T) {
	pred := ResultChangedPredicate()

	baseResult := func() *upgradev1alpha1.DataHubUpgradeResult {
		return &upgradev1alpha1.DataHubUpgradeResult{
			ObjectMeta: metav1.ObjectMeta{
				Name:            "noopupgrade",
				Namespace:       "datahub",
				Generation:      1,
				ResourceVersion: "10",
				Labels:          map[string]string{"upgrade.datahub.io/upgrade-id": "NoOpUpgrade"},
			},
			Spec: upgradev1alpha1.DataHubUpgradeResultSpec{
				UpgradeID:   "NoOpUpgrade",
				State:       "SUCCEEDED",
				TimestampMs: 1000,
				Result:      map[string]string{"runId": "r1"},
			},
		}
	}

	tests := []struct {
		name     string
		modify   func(old, new *upgradev1alpha1.DataHubUpgradeResult)
		expected bool
	}{
		{
			name: "generation changed",
			modify: func(old, new *upgradev1alpha1.DataHubUpgradeResult) {
				new.Generation = 2
			},
			expected: true,
		},
		{
			name: "state changed",
			modify: func(old, new *upgradev1alpha1.DataHubUpgradeResult) {
				new.Spec.State = "FAILED"
			},
			expected: true,
		},
		{
			name: "timestamp changed",
			modify: func(old, new *upgradev1alpha1.DataHubUpgradeResult) {
				new.Spec.TimestampMs = 2000
			},
			expected: true,
		},
		{
			name: "result entry changed",
			modify: func(old, new *upgradev1alpha1.DataHubUpgradeResult) {
				new.Spec.Result = map[string]string{"runId": "r2"}
			},
			expected: true,
		},
		{
			name: "result cleared to empty",
			modify: func(old, new *upgradev1alpha1.DataHubUpgradeResult) {
				old.Spec.Result = nil
				new.Spec.Result = map[string]string{}
			},
			expected: true,
		},
		{
			name: "labels changed",
			modify: func(old, new *upgradev1alpha1.DataHubUpgradeResult) {
				new.Labels = map[string]string{"upgrade.datahub.io/ignore": "true"}
			},
			expected: true,
		},
		{
			name: "only resource version changed",
			modify: func(old, new *upgradev1alpha1.DataHubUpgradeResult) {
				new.ResourceVersion = "11"
			},
			expected: false,
		},
		{
			name: "only annotations changed",
			modify: func(old, new *upgradev1alpha1.DataHubUpgradeResult) {
				new.Annotations = map[string]string{"note": "x"}
			},
			expected: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			oldObj := baseResult()
			newObj := baseResult()
			tt.modify(oldObj, newObj)

			got := pred.Update(event.UpdateEvent{ObjectOld: oldObj, ObjectNew: newObj})
			if got != tt.expected {
				t.Errorf("Update() = %v, expected %v", got, tt.expected)
			}
		})
	}
}

func TestResultChangedPredicateOtherEvents(t *testing.T) {
	pred := ResultChangedPredicate()
	obj := &upgradev1alpha1.DataHubUpgradeResult{}

	if !pred.Create(event.CreateEvent{Object: obj}) {
		t.Error("Expected create events to pass")
	}
	if !pred.Delete(event.DeleteEvent{Object: obj}) {
		t.Error("Expected delete events to pass")
	}
	if !pred.Generic(event.GenericEvent{Object: obj}) {
		t.Error("Expected generic events to pass")
	}

	// foreign types are let through
	if !pred.Update(event.UpdateEvent{ObjectOld: &corev1.Pod{}, ObjectNew: &corev1.Pod{}}) {
		t.Error("Expected foreign update events to pass")
	}
}
