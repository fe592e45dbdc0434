// Package backends opens the configured result store.
package backends

import (
	"context"
	"fmt"
	"io"

	"k8s.io/apimachinery/pkg/runtime"
	ctrl "sigs.k8s.io/controller-runtime"
	"sigs.k8s.io/controller-runtime/pkg/client"

	upgradev1alpha1 "github.com/datahub-project/datahub-upgrade/api/v1alpha1"
	"github.com/datahub-project/datahub-upgrade/internal/store"
	"github.com/datahub-project/datahub-upgrade/internal/store/gms"
	"github.com/datahub-project/datahub-upgrade/internal/store/kube"
	"github.com/datahub-project/datahub-upgrade/internal/store/memory"
	"github.com/datahub-project/datahub-upgrade/internal/store/sql"
)

const (
	TypeMemory = "memory"
	TypeSQL    = "sql"
	TypeKube   = "kube"
	TypeGMS    = "gms"
)

// Options selects and configures a backend
type Options struct {
	Type      string
	DSN       string
	Namespace string
	GMS       gms.Config
	RunID     string
	CreatedBy string

	// KubeClient overrides the client built from the ambient kubeconfig
	KubeClient client.Client
}

// Open returns the store named by opts.Type. Stores that hold connections also
// implement io.Closer.
func Open(_ context.Context, opts Options) (store.ResultStore, error) {
	switch opts.Type {
	case TypeMemory, "":
		return memory.New(), nil
	case TypeSQL:
		if opts.DSN == "" {
			return nil, fmt.Errorf("store type %q requires a dsn", TypeSQL)
		}
		return sql.Open(opts.DSN, opts.CreatedBy)
	case TypeKube:
		c := opts.KubeClient
		if c == nil {
			var err error
			c, err = newKubeClient()
			if err != nil {
				return nil, err
			}
		}
		if opts.Namespace == "" {
			return nil, fmt.Errorf("store type %q requires a namespace", TypeKube)
		}
		return kube.New(c, opts.Namespace), nil
	case TypeGMS:
		if opts.GMS.Server == "" {
			return nil, fmt.Errorf("store type %q requires a server url", TypeGMS)
		}
		return gms.New(opts.GMS, opts.RunID), nil
	default:
		return nil, fmt.Errorf("unknown store type %q", opts.Type)
	}
}

// Close closes s if it holds resources
func Close(s store.ResultStore) error {
	if c, ok := s.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

func newKubeClient() (client.Client, error) {
	scheme := runtime.NewScheme()
	if err := upgradev1alpha1.AddToScheme(scheme); err != nil {
		return nil, err
	}
	cfg, err := ctrl.GetConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to load kubeconfig: %w", err)
	}
	c, err := client.New(cfg, client.Options{Scheme: scheme})
	if err != nil {
		return nil, fmt.Errorf("failed to create kubernetes client: %w", err)
	}
	return c, nil
}
