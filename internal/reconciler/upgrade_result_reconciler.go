package reconciler

import (
	"context"
	"fmt"
	"sync"
	"time"

	corev1 "k8s.io/api/core/v1"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	"k8s.io/apimachinery/pkg/runtime"
	"k8s.io/apimachinery/pkg/types"
	"k8s.io/client-go/tools/record"
	ctrl "sigs.k8s.io/controller-runtime"
	"sigs.k8s.io/controller-runtime/pkg/builder"
	"sigs.k8s.io/controller-runtime/pkg/client"

	upgradev1alpha1 "github.com/datahub-project/datahub-upgrade/api/v1alpha1"
	"github.com/datahub-project/datahub-upgrade/internal/filter"
	"github.com/datahub-project/datahub-upgrade/internal/metrics"
	"github.com/datahub-project/datahub-upgrade/internal/model"
	"github.com/datahub-project/datahub-upgrade/internal/store/kube"
)

const (
	// DefaultStaleAfter is how long a run may stay IN_PROGRESS before it is reported
	DefaultStaleAfter = time.Hour

	ReasonStarted   = "UpgradeStarted"
	ReasonSucceeded = "UpgradeSucceeded"
	ReasonFailed    = "UpgradeFailed"
	ReasonAborted   = "UpgradeAborted"
	ReasonStale     = "UpgradeStale"
	ReasonInvalid   = "InvalidResult"
)

type observation struct {
	upgradeID     string
	state         model.UpgradeState
	timestampMs   int64
	staleReported bool
}

// UpgradeResultReconciler exports DataHubUpgradeResult objects as metrics,
// Kubernetes events and upgrade events
type UpgradeResultReconciler struct {
	client.Client
	Scheme     *runtime.Scheme
	Recorder   record.EventRecorder
	Filter     *filter.ResultFilter
	StaleAfter time.Duration

	publisherChan chan<- model.UpgradeEvent
	source        model.SourceMetadata

	mu       sync.Mutex
	observed map[types.NamespacedName]observation
	now      func() time.Time
}

func NewUpgradeResultReconciler(
	client client.Client,
	scheme *runtime.Scheme,
	recorder record.EventRecorder,
	resultFilter *filter.ResultFilter,
	publisherChan chan<- model.UpgradeEvent,
	source model.SourceMetadata,
) *UpgradeResultReconciler {
	metrics.Register()

	if resultFilter == nil {
		resultFilter = filter.NewResultFilter(filter.ResultFilterConfig{})
	}

	return &UpgradeResultReconciler{
		Client:        client,
		Scheme:        scheme,
		Recorder:      recorder,
		Filter:        resultFilter,
		StaleAfter:    DefaultStaleAfter,
		publisherChan: publisherChan,
		source:        source,
		observed:      make(map[types.NamespacedName]observation),
		now:           time.Now,
	}
}

// +kubebuilder:rbac:groups=upgrade.datahub.io,resources=datahubupgraderesults,verbs=get;list;watch;create;update;patch;delete
// +kubebuilder:rbac:groups="",resources=events,verbs=create;patch

func (r *UpgradeResultReconciler) Reconcile(ctx context.Context, req ctrl.Request) (ctrl.Result, error) {
	log := ctrl.LoggerFrom(ctx)

	obj := &upgradev1alpha1.DataHubUpgradeResult{}
	if err := r.Get(ctx, req.NamespacedName, obj); err != nil {
		if apierrors.IsNotFound(err) {
			r.HandleDeletion(ctx, req.NamespacedName)
			return ctrl.Result{}, nil
		}
		return ctrl.Result{}, err
	}

	upgradeID := obj.Spec.UpgradeID
	if !r.Filter.Matches(obj.Namespace, upgradeID, obj.Labels) {
		log.V(1).Info("Upgrade result filtered out", "upgradeId", upgradeID)
		r.HandleDeletion(ctx, req.NamespacedName)
		return ctrl.Result{}, nil
	}

	result := kube.FromSpec(obj.Spec)
	if err := result.Validate(); err != nil {
		log.Error(err, "Ignoring invalid upgrade result", "upgradeId", upgradeID)
		r.Recorder.Eventf(obj, corev1.EventTypeWarning, ReasonInvalid, "Invalid upgrade result: %v", err)
		return ctrl.Result{}, nil
	}
	if err := model.ValidateUpgradeID(upgradeID); err != nil {
		log.Error(err, "Ignoring upgrade result with invalid id")
		r.Recorder.Eventf(obj, corev1.EventTypeWarning, ReasonInvalid, "Invalid upgrade id: %v", err)
		return ctrl.Result{}, nil
	}

	state := result.EffectiveState()
	metrics.SetResult(obj.Namespace, upgradeID, result)

	r.mu.Lock()
	previous, seen := r.observed[req.NamespacedName]
	changed := !seen || previous.state != state || previous.timestampMs != result.TimestampMs
	current := observation{upgradeID: upgradeID, state: state, timestampMs: result.TimestampMs}
	if !changed {
		current.staleReported = previous.staleReported
	}
	r.observed[req.NamespacedName] = current
	r.mu.Unlock()

	if changed {
		eventType, reason := eventFor(state)
		r.Recorder.Eventf(obj, eventType, reason, "Upgrade %s is %s (run started %s)",
			upgradeID, state, result.StartedAt().Format(time.RFC3339))

		if r.publisherChan != nil {
			r.publisherChan <- model.NewUpgradeEvent(model.UpgradeEventKindObserved, upgradeID, result.Result[model.ResultKeyRunID], result, r.source)
		}

		log.Info("Upgrade result changed",
			"upgradeId", upgradeID,
			"previousState", previous.state,
			"state", state,
			"timestampMs", result.TimestampMs)
	}

	if state != model.UpgradeStateInProgress || r.StaleAfter <= 0 {
		return ctrl.Result{}, nil
	}
	return r.checkStale(ctx, req.NamespacedName, obj, result), nil
}

// checkStale reports a run that has been IN_PROGRESS for longer than StaleAfter
// once, and otherwise requeues for the moment it would become stale
func (r *UpgradeResultReconciler) checkStale(ctx context.Context, key types.NamespacedName, obj *upgradev1alpha1.DataHubUpgradeResult, result model.UpgradeResult) ctrl.Result {
	elapsed := r.now().Sub(result.StartedAt())
	if elapsed < r.StaleAfter {
		return ctrl.Result{RequeueAfter: r.StaleAfter - elapsed}
	}

	r.mu.Lock()
	o := r.observed[key]
	report := !o.staleReported
	o.staleReported = true
	r.observed[key] = o
	r.mu.Unlock()

	if report {
		ctrl.LoggerFrom(ctx).Info("Upgrade run looks stale", "upgradeId", obj.Spec.UpgradeID, "elapsed", elapsed.Round(time.Second))
		r.Recorder.Eventf(obj, corev1.EventTypeWarning, ReasonStale,
			"Upgrade %s has been in progress for %s", obj.Spec.UpgradeID, elapsed.Round(time.Second))
	}
	return ctrl.Result{}
}

// HandleDeletion forgets an object and drops its gauges
func (r *UpgradeResultReconciler) HandleDeletion(ctx context.Context, key types.NamespacedName) {
	r.mu.Lock()
	o, seen := r.observed[key]
	delete(r.observed, key)
	r.mu.Unlock()

	if !seen {
		return
	}
	deleted := metrics.DeleteResult(key.Namespace, o.upgradeID)
	ctrl.LoggerFrom(ctx).Info("Upgrade result removed, cleaning up metrics",
		"upgradeId", o.upgradeID, "deletedSeries", deleted)
}

func eventFor(state model.UpgradeState) (string, string) {
	switch state {
	case model.UpgradeStateInProgress:
		return corev1.EventTypeNormal, ReasonStarted
	case model.UpgradeStateFailed:
		return corev1.EventTypeWarning, ReasonFailed
	case model.UpgradeStateAborted:
		return corev1.EventTypeWarning, ReasonAborted
	default:
		return corev1.EventTypeNormal, ReasonSucceeded
	}
}

// SetupWithManager sets up the controller with the Manager.
func (r *UpgradeResultReconciler) SetupWithManager(mgr ctrl.Manager) error {
	err := ctrl.NewControllerManagedBy(mgr).
		For(&upgradev1alpha1.DataHubUpgradeResult{}, builder.WithPredicates(ResultChangedPredicate())).
		Named("datahubupgraderesult").
		Complete(r)
	if err != nil {
		return fmt.Errorf("failed to set up upgrade result controller: %w", err)
	}
	return nil
}
