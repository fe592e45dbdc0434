package reconciler

import (
	"context"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/prometheus/client_golang/prometheus/testutil"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/types"
	"k8s.io/client-go/tools/record"
	ctrl "sigs.k8s.io/controller-runtime"
	"sigs.k8s.io/controller-runtime/pkg/client"
	"sigs.k8s.io/controller-runtime/pkg/client/fake"

	upgradev1alpha1 "github.com/datahub-project/datahub-upgrade/api/v1alpha1"
	"github.com/datahub-project/datahub-upgrade/internal/filter"
	"github.com/datahub-project/datahub-upgrade/internal/metrics"
	"github.com/datahub-project/datahub-upgrade/internal/model"
)

var _ = Describe("UpgradeResultReconciler", func() {
	const namespace = "datahub"

	var (
		ctx        context.Context
		k8sClient  client.Client
		recorder   *record.FakeRecorder
		events     chan model.UpgradeEvent
		reconciler *UpgradeResultReconciler
		key        types.NamespacedName
		now        time.Time
	)

	newResult := func(upgradeID, state string, timestampMs int64) *upgradev1alpha1.DataHubUpgradeResult {
		return &upgradev1alpha1.DataHubUpgradeResult{
			ObjectMeta: metav1.ObjectMeta{
				Name:      "result-" + time.Now().Format("150405.000000000"),
				Namespace: namespace,
			},
			Spec: upgradev1alpha1.DataHubUpgradeResultSpec{
				UpgradeID:   upgradeID,
				State:       state,
				TimestampMs: timestampMs,
				Result:      map[string]string{model.ResultKeyRunID: "run-1"},
			},
		}
	}

	reconcile := func() ctrl.Result {
		res, err := reconciler.Reconcile(ctx, ctrl.Request{NamespacedName: key})
		Expect(err).NotTo(HaveOccurred())
		return res
	}

	setup := func(obj *upgradev1alpha1.DataHubUpgradeResult, f *filter.ResultFilter) {
		k8sClient = fake.NewClientBuilder().WithScheme(testScheme).WithObjects(obj).Build()
		reconciler = NewUpgradeResultReconciler(k8sClient, testScheme, recorder, f, events, model.SourceMetadata{InstanceID: "controller"})
		reconciler.now = func() time.Time { return now }
		key = types.NamespacedName{Namespace: obj.Namespace, Name: obj.Name}
	}

	BeforeEach(func() {
		ctx = context.Background()
		recorder = record.NewFakeRecorder(10)
		events = make(chan model.UpgradeEvent, 10)
		now = time.UnixMilli(10_000)
	})

	It("exports the state, records an event and publishes it once", func() {
		setup(newResult("ReconcileSucceeded", "SUCCEEDED", 5_000), nil)

		Expect(reconcile()).To(Equal(ctrl.Result{}))

		Expect(testutil.ToFloat64(metrics.ResultState.WithLabelValues(namespace, "ReconcileSucceeded", "SUCCEEDED"))).To(Equal(1.0))
		Expect(testutil.ToFloat64(metrics.ResultTimestamp.WithLabelValues(namespace, "ReconcileSucceeded"))).To(Equal(5_000.0))
		Expect(recorder.Events).To(Receive(ContainSubstring("Normal UpgradeSucceeded")))

		var published model.UpgradeEvent
		Expect(events).To(Receive(&published))
		Expect(published.Kind).To(Equal(model.UpgradeEventKindObserved))
		Expect(published.RunID).To(Equal("run-1"))
		Expect(published.Source.InstanceID).To(Equal("controller"))

		// a second reconcile of the same result is silent
		reconcile()
		Expect(recorder.Events).NotTo(Receive())
		Expect(events).NotTo(Receive())
	})

	It("publishes again when the state changes", func() {
		obj := newResult("ReconcileChanges", "IN_PROGRESS", 9_000)
		setup(obj, nil)

		reconcile()
		Expect(recorder.Events).To(Receive(ContainSubstring("Normal UpgradeStarted")))
		Expect(events).To(Receive())

		Expect(k8sClient.Get(ctx, key, obj)).To(Succeed())
		obj.Spec.State = "FAILED"
		Expect(k8sClient.Update(ctx, obj)).To(Succeed())

		reconcile()
		Expect(recorder.Events).To(Receive(ContainSubstring("Warning UpgradeFailed")))
		Expect(events).To(Receive())
		Expect(testutil.ToFloat64(metrics.ResultState.WithLabelValues(namespace, "ReconcileChanges", "FAILED"))).To(Equal(1.0))
	})

	It("reads a missing state as succeeded", func() {
		setup(newResult("ReconcileStateless", "", 1), nil)

		reconcile()
		Expect(recorder.Events).To(Receive(ContainSubstring("UpgradeSucceeded")))
	})

	It("requeues an in-progress run and reports it once when stale", func() {
		setup(newResult("ReconcileStale", "IN_PROGRESS", 0), nil)
		reconciler.StaleAfter = 20 * time.Second

		Expect(reconcile().RequeueAfter).To(Equal(10 * time.Second))
		Expect(recorder.Events).To(Receive(ContainSubstring("UpgradeStarted")))

		now = time.UnixMilli(30_000)
		Expect(reconcile()).To(Equal(ctrl.Result{}))
		Expect(recorder.Events).To(Receive(ContainSubstring("Warning UpgradeStale")))

		reconcile()
		Expect(recorder.Events).NotTo(Receive())
	})

	It("ignores filtered results", func() {
		f := filter.NewResultFilter(filter.ResultFilterConfig{WatchUpgrades: []string{"Other*"}})
		setup(newResult("ReconcileFiltered", "FAILED", 1), f)

		reconcile()
		Expect(recorder.Events).NotTo(Receive())
		Expect(events).NotTo(Receive())
	})

	It("reports invalid results without exporting them", func() {
		setup(newResult("ReconcileInvalid", "EXPLODED", 1), nil)

		reconcile()
		Expect(recorder.Events).To(Receive(ContainSubstring("Warning InvalidResult")))
		Expect(events).NotTo(Receive())
	})

	It("drops the gauges when the object is deleted", func() {
		obj := newResult("ReconcileDeleted", "SUCCEEDED", 1)
		setup(obj, nil)

		reconcile()
		Expect(k8sClient.Delete(ctx, obj)).To(Succeed())
		reconcile()

		Expect(metrics.DeleteResult(namespace, "ReconcileDeleted")).To(BeZero())
	})
})
