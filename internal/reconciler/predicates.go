package reconciler

import (
	"k8s.io/apimachinery/pkg/api/equality"
	"sigs.k8s.io/controller-runtime/pkg/event"
	"sigs.k8s.io/controller-runtime/pkg/predicate"

	upgradev1alpha1 "github.com/datahub-project/datahub-upgrade/api/v1alpha1"
)

// ResultChangedPredicate lets through generation changes and changes of the
// spec or labels, which the filter depends on. Metadata-only updates such as
// annotations or resource versions are dropped.
func ResultChangedPredicate() predicate.Predicate {
	return predicate.Funcs{
		CreateFunc:  func(e event.CreateEvent) bool { return true },
		DeleteFunc:  func(e event.DeleteEvent) bool { return true },
		GenericFunc: func(e event.GenericEvent) bool { return true },
		UpdateFunc: func(e event.UpdateEvent) bool {
			oldObj, okOld := e.ObjectOld.(*upgradev1alpha1.DataHubUpgradeResult)
			newObj, okNew := e.ObjectNew.(*upgradev1alpha1.DataHubUpgradeResult)
			if !okOld || !okNew {
				return true
			}
			if oldObj.Generation != newObj.Generation {
				return true
			}
			return resultChanged(oldObj, newObj)
		},
	}
}

// resultChanged returns true if the spec or the labels differ
func resultChanged(oldObj, newObj *upgradev1alpha1.DataHubUpgradeResult) bool {
	if oldObj.Spec.UpgradeID != newObj.Spec.UpgradeID ||
		oldObj.Spec.State != newObj.Spec.State ||
		oldObj.Spec.TimestampMs != newObj.Spec.TimestampMs {
		return true
	}
	// nil and empty result maps are distinct records
	if (oldObj.Spec.Result == nil) != (newObj.Spec.Result == nil) {
		return true
	}
	if !equality.Semantic.DeepEqual(oldObj.Spec.Result, newObj.Spec.Result) {
		return true
	}
	return !equality.Semantic.DeepEqual(oldObj.Labels, newObj.Labels)
}
