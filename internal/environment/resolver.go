// Package environment works out the instance id that identifies this runner
// as the source of published events.
package environment

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"resty.dev/v3"
	"sigs.k8s.io/controller-runtime/pkg/log"
)

// CloudProvider represents the detected cloud provider
type CloudProvider string

const (
	ProviderUnknown CloudProvider = "unknown"
	ProviderGCP     CloudProvider = "gcp"
	// ProviderStatic marks an id given on the command line
	ProviderStatic CloudProvider = "static"
	// ProviderHost marks an id derived from the hostname
	ProviderHost CloudProvider = "host"
)

// InstanceInfo contains resolved instance identification information
type InstanceInfo struct {
	InstanceID  string
	ClusterName string
	Provider    CloudProvider
	Region      string
	ProjectID   string // Cloud provider project/account ID (e.g., GCP project ID)
}

// ErrNoProviderDetected is returned when no cloud provider can be detected
var ErrNoProviderDetected = errors.New("no cloud provider detected")

// Provider defines the interface for cloud-specific instance resolution
type Provider interface {
	// Name returns the provider identifier
	Name() CloudProvider
	// Detect checks if running on this cloud provider
	Detect(ctx context.Context) bool
	// Resolve retrieves instance information from the cloud metadata service
	Resolve(ctx context.Context) (*InstanceInfo, error)
}

// Config holds configuration for the resolver
type Config struct {
	// InstanceID wins over any detection when set
	InstanceID string
	// Timeout for metadata requests
	Timeout time.Duration
	// EnableGCP enables GCP/GKE detection
	EnableGCP bool
}

// DefaultConfig returns the default resolver configuration
func DefaultConfig() Config {
	return Config{
		Timeout:   3 * time.Second,
		EnableGCP: true,
	}
}

// Resolver orchestrates instance id resolution
type Resolver struct {
	config    Config
	client    *resty.Client
	providers []Provider
	hostname  func() (string, error)
}

// NewResolver creates a new resolver with the enabled cloud providers
func NewResolver(cfg Config) *Resolver {
	client := resty.New().SetTimeout(cfg.Timeout)

	var providers []Provider
	if cfg.EnableGCP {
		providers = append(providers, NewGCPProvider(client))
	}

	return &Resolver{
		config:    cfg,
		client:    client,
		providers: providers,
		hostname:  os.Hostname,
	}
}

// Resolve returns the configured instance id, else the cloud derived one, else
// the hostname
func (r *Resolver) Resolve(ctx context.Context) (*InstanceInfo, error) {
	logger := log.FromContext(ctx)

	if r.config.InstanceID != "" {
		return &InstanceInfo{InstanceID: r.config.InstanceID, Provider: ProviderStatic}, nil
	}

	info, err := r.ResolveCloud(ctx)
	if err == nil {
		return info, nil
	}
	if !errors.Is(err, ErrNoProviderDetected) {
		logger.Error(err, "Cloud instance resolution failed, falling back to hostname")
	}

	host, err := r.hostname()
	if err != nil || host == "" {
		return nil, fmt.Errorf("failed to resolve instance id: %w", errors.Join(ErrNoProviderDetected, err))
	}
	return &InstanceInfo{InstanceID: host, Provider: ProviderHost}, nil
}

// ResolveCloud detects the cloud provider and resolves the instance id
func (r *Resolver) ResolveCloud(ctx context.Context) (*InstanceInfo, error) {
	for _, provider := range r.providers {
		if provider.Detect(ctx) {
			return provider.Resolve(ctx)
		}
	}
	return nil, ErrNoProviderDetected
}

// DetectProvider returns the detected cloud provider without resolving the id
func (r *Resolver) DetectProvider(ctx context.Context) CloudProvider {
	for _, provider := range r.providers {
		if provider.Detect(ctx) {
			return provider.Name()
		}
	}
	return ProviderUnknown
}

// Close releases the metadata client
func (r *Resolver) Close() error {
	return r.client.Close()
}
