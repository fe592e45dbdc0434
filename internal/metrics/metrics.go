// Package metrics holds the prometheus collectors shared by the runner and the
// controller. Collectors live on controller-runtime's registry so the manager's
// metrics endpoint serves them.
package metrics

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/push"
	"sigs.k8s.io/controller-runtime/pkg/log"
	ctrlmetrics "sigs.k8s.io/controller-runtime/pkg/metrics"

	"github.com/datahub-project/datahub-upgrade/internal/model"
)

var (
	UpgradeRuns = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "datahub_upgrade_runs_total",
		Help: "Finished upgrade runs by upgrade id and final state",
	}, []string{"upgrade", "state"})

	StepDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "datahub_upgrade_step_duration_seconds",
		Help:    "Duration of upgrade step attempts",
		Buckets: prometheus.ExponentialBuckets(0.05, 4, 8),
	}, []string{"upgrade", "step", "result"})

	ResultState = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "datahub_upgrade_result_state",
		Help: "Set to 1 for the current state of each stored upgrade result",
	}, []string{"namespace", "upgrade", "state"})

	ResultTimestamp = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "datahub_upgrade_result_timestamp_ms",
		Help: "Start time in epoch milliseconds of the run behind each stored upgrade result",
	}, []string{"namespace", "upgrade"})

	registerOnce sync.Once
)

// Register adds the collectors to the controller-runtime registry. Safe to call
// more than once.
func Register() {
	registerOnce.Do(func() {
		ctrlmetrics.Registry.MustRegister(UpgradeRuns, StepDuration, ResultState, ResultTimestamp)
	})
}

// ObserveRun records a finished run
func ObserveRun(upgradeID string, state model.UpgradeState) {
	UpgradeRuns.WithLabelValues(upgradeID, string(state)).Inc()
}

// ObserveStep records one step attempt
func ObserveStep(upgradeID, stepID string, outcome model.StepOutcome, d time.Duration) {
	StepDuration.WithLabelValues(upgradeID, stepID, string(outcome)).Observe(d.Seconds())
}

// SetResult replaces the state and timestamp gauges of one stored result
func SetResult(namespace, upgradeID string, result model.UpgradeResult) {
	DeleteResult(namespace, upgradeID)
	ResultState.WithLabelValues(namespace, upgradeID, string(result.EffectiveState())).Set(1)
	ResultTimestamp.WithLabelValues(namespace, upgradeID).Set(float64(result.TimestampMs))
}

// DeleteResult drops the gauges of one stored result
func DeleteResult(namespace, upgradeID string) int {
	labels := prometheus.Labels{"namespace": namespace, "upgrade": upgradeID}
	return ResultState.DeletePartialMatch(labels) + ResultTimestamp.DeletePartialMatch(labels)
}

// Push sends the run collectors to a Pushgateway under job. One-shot runs use
// this since nothing scrapes them.
func Push(ctx context.Context, gatewayURL, job, instance string) error {
	pusher := push.New(gatewayURL, job).
		Collector(UpgradeRuns).
		Collector(StepDuration)
	if instance != "" {
		pusher = pusher.Grouping("instance", instance)
	}
	if err := pusher.PushContext(ctx); err != nil {
		return fmt.Errorf("failed to push metrics to %s: %w", gatewayURL, err)
	}
	log.FromContext(ctx).Info("Pushed upgrade metrics", "gateway", gatewayURL, "job", job)
	return nil
}
