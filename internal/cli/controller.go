package cli

import (
	"crypto/tls"
	"fmt"

	"github.com/spf13/cobra"
	"k8s.io/apimachinery/pkg/runtime"
	utilruntime "k8s.io/apimachinery/pkg/util/runtime"
	clientgoscheme "k8s.io/client-go/kubernetes/scheme"
	ctrl "sigs.k8s.io/controller-runtime"
	"sigs.k8s.io/controller-runtime/pkg/healthz"
	"sigs.k8s.io/controller-runtime/pkg/metrics/filters"
	metricsserver "sigs.k8s.io/controller-runtime/pkg/metrics/server"
	"sigs.k8s.io/controller-runtime/pkg/webhook"

	// Import all Kubernetes client auth plugins (e.g. Azure, GCP, OIDC, etc.)
	// to ensure that exec-entrypoint and run can make use of them.
	_ "k8s.io/client-go/plugin/pkg/client/auth"

	upgradev1alpha1 "github.com/datahub-project/datahub-upgrade/api/v1alpha1"
	"github.com/datahub-project/datahub-upgrade/internal/config"
	"github.com/datahub-project/datahub-upgrade/internal/filter"
	"github.com/datahub-project/datahub-upgrade/internal/reconciler"
	// +kubebuilder:scaffold:imports
)

const (
	leaderElectionID = "b3f1c2a7.upgrade.datahub.io"
	recorderName     = "datahub-upgrade"
)

var scheme = runtime.NewScheme()

func init() {
	utilruntime.Must(clientgoscheme.AddToScheme(scheme))
	utilruntime.Must(upgradev1alpha1.AddToScheme(scheme))
	// +kubebuilder:scaffold:scheme
}

func ControllerCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "controller",
		Short: "Watch DataHubUpgradeResult resources and export them",
		Long: `Runs a Kubernetes controller that exports every DataHubUpgradeResult as metrics,
records events on state changes and forwards them to the configured hooks.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()

			sess, err := openHooks(ctx, a.cfg)
			if err != nil {
				return err
			}
			defer func() {
				if err := sess.Close(); err != nil {
					setupLog.Error(err, "failed to release resources")
				}
			}()

			mgr, err := setupManager(a.cfg.Controller)
			if err != nil {
				return err
			}

			r := reconciler.NewUpgradeResultReconciler(
				mgr.GetClient(),
				mgr.GetScheme(),
				mgr.GetEventRecorderFor(recorderName),
				filter.NewResultFilter(a.cfg.Controller.Filter),
				sess.events,
				sess.source)
			r.StaleAfter = a.cfg.Controller.StaleAfter

			if err := r.SetupWithManager(mgr); err != nil {
				return fmt.Errorf("unable to create controller DataHubUpgradeResult: %w", err)
			}
			// +kubebuilder:scaffold:builder

			if err := setupHealthChecks(mgr); err != nil {
				return err
			}

			setupLog.Info("starting manager", "instanceId", sess.source.InstanceID)
			if err := mgr.Start(ctx); err != nil {
				return fmt.Errorf("problem running manager: %w", err)
			}
			return nil
		},
	}
	return cmd
}

func setupManager(cfg config.ControllerConfig) (ctrl.Manager, error) {
	var tlsOpts []func(*tls.Config)

	if !cfg.EnableHTTP2 {
		disableHTTP2 := func(c *tls.Config) {
			setupLog.Info("disabling http/2")
			c.NextProtos = []string{"http/1.1"}
		}
		tlsOpts = append(tlsOpts, disableHTTP2)
	}

	webhookServer := webhook.NewServer(webhook.Options{
		TLSOpts: tlsOpts,
	})

	metricsServerOptions := metricsserver.Options{
		BindAddress:   cfg.MetricsAddr,
		SecureServing: cfg.SecureMetrics,
		TLSOpts:       tlsOpts,
	}

	if cfg.SecureMetrics {
		metricsServerOptions.FilterProvider = filters.WithAuthenticationAndAuthorization
	}

	restConfig, err := ctrl.GetConfig()
	if err != nil {
		return nil, fmt.Errorf("unable to load kubeconfig: %w", err)
	}

	mgr, err := ctrl.NewManager(restConfig, ctrl.Options{
		Scheme:                 scheme,
		Metrics:                metricsServerOptions,
		WebhookServer:          webhookServer,
		HealthProbeBindAddress: cfg.ProbeAddr,
		LeaderElection:         cfg.LeaderElect,
		LeaderElectionID:       leaderElectionID,
	})
	if err != nil {
		return nil, fmt.Errorf("unable to start manager: %w", err)
	}
	return mgr, nil
}

func setupHealthChecks(mgr ctrl.Manager) error {
	if err := mgr.AddHealthzCheck("healthz", healthz.Ping); err != nil {
		return fmt.Errorf("unable to set up health check: %w", err)
	}
	if err := mgr.AddReadyzCheck("readyz", healthz.Ping); err != nil {
		return fmt.Errorf("unable to set up ready check: %w", err)
	}
	return nil
}
