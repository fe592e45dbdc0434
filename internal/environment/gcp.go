package environment

import (
	"context"
	"fmt"
	"net/http"
	"path"
	"strings"

	"resty.dev/v3"
)

const (
	gcpMetadataBase   = "http://metadata.google.internal/computeMetadata/v1"
	gcpMetadataFlavor = "Google"
)

// GCPProvider implements instance resolution for GCP/GKE
type GCPProvider struct {
	client      *resty.Client
	metadataURL string
}

// NewGCPProvider creates a new GCP provider
func NewGCPProvider(client *resty.Client) *GCPProvider {
	return NewGCPProviderWithURL(client, gcpMetadataBase)
}

// NewGCPProviderWithURL creates a GCP provider with a custom metadata URL (for testing)
func NewGCPProviderWithURL(client *resty.Client, metadataURL string) *GCPProvider {
	return &GCPProvider{
		client:      client,
		metadataURL: metadataURL,
	}
}

// Name returns the provider name
func (p *GCPProvider) Name() CloudProvider {
	return ProviderGCP
}

// Detect checks if running on GCP by querying the metadata server
func (p *GCPProvider) Detect(ctx context.Context) bool {
	resp, err := p.request(ctx).Get(p.metadataURL + "/")
	if err != nil {
		return false
	}

	// GCP metadata server returns 200 and Metadata-Flavor: Google header
	return resp.StatusCode() == http.StatusOK &&
		resp.Header().Get("Metadata-Flavor") == gcpMetadataFlavor
}

// Resolve retrieves instance information from GCP metadata
func (p *GCPProvider) Resolve(ctx context.Context) (*InstanceInfo, error) {
	clusterName, err := p.getMetadata(ctx, "/instance/attributes/cluster-name")
	if err != nil {
		return nil, fmt.Errorf("failed to get cluster-name: %w", err)
	}

	projectID, err := p.getMetadata(ctx, "/project/project-id")
	if err != nil {
		return nil, fmt.Errorf("failed to get project-id: %w", err)
	}

	// Zone format: projects/<project-number>/zones/<zone>
	zone, err := p.getMetadata(ctx, "/instance/zone")
	if err != nil {
		return nil, fmt.Errorf("failed to get zone: %w", err)
	}
	region := extractRegionFromZone(path.Base(zone))

	return &InstanceInfo{
		InstanceID:  fmt.Sprintf("gcp/%s/%s/%s", projectID, region, clusterName),
		ClusterName: clusterName,
		Provider:    ProviderGCP,
		Region:      region,
		ProjectID:   projectID,
	}, nil
}

func (p *GCPProvider) request(ctx context.Context) *resty.Request {
	return p.client.R().
		SetContext(ctx).
		SetHeader("Metadata-Flavor", gcpMetadataFlavor)
}

// getMetadata fetches a value from the GCP metadata server
func (p *GCPProvider) getMetadata(ctx context.Context, key string) (string, error) {
	resp, err := p.request(ctx).Get(p.metadataURL + key)
	if err != nil {
		return "", err
	}
	if resp.StatusCode() != http.StatusOK {
		return "", fmt.Errorf("metadata request failed with status %d", resp.StatusCode())
	}
	return strings.TrimSpace(resp.String()), nil
}

// extractRegionFromZone extracts region from zone (e.g., us-central1-a -> us-central1)
func extractRegionFromZone(zone string) string {
	lastDash := strings.LastIndex(zone, "-")
	if lastDash == -1 {
		return zone
	}
	return zone[:lastDash]
}
