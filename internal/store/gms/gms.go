// Package gms reads and writes upgrade results through the metadata service's
// rest.li aspect endpoints.
package gms

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-logr/logr"
	"resty.dev/v3"
	"sigs.k8s.io/controller-runtime/pkg/log"

	"github.com/datahub-project/datahub-upgrade/internal/model"
	"github.com/datahub-project/datahub-upgrade/internal/store"
)

const (
	// upgradeResultSchema is the fully qualified aspect name used in GET responses
	upgradeResultSchema = "com.linkedin.upgrade.DataHubUpgradeResult"

	restliProtocolHeader  = "X-RestLi-Protocol-Version"
	restliProtocolVersion = "2.0.0"
)

// Config holds the connection settings for the metadata service
type Config struct {
	Server  string
	Token   string
	Timeout time.Duration
	Retries int
}

// Store talks to the metadata service over HTTP
type Store struct {
	client *resty.Client
	server string
	runID  string
}

var (
	_ store.ResultStore = (*Store)(nil)
	_ store.Patcher     = (*Store)(nil)
)

// New creates a store against cfg.Server. runID is attached to written proposals
// unless the write context carries its own run id.
func New(cfg Config, runID string) *Store {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 10 * time.Second
	}

	client := resty.New().
		SetBaseURL(cfg.Server).
		SetTimeout(timeout).
		SetRetryCount(cfg.Retries).
		SetRetryWaitTime(1*time.Second).
		SetRetryMaxWaitTime(5*time.Second).
		SetHeader(restliProtocolHeader, restliProtocolVersion).
		SetHeader("Content-Type", "application/json")
	if cfg.Token != "" {
		client.SetAuthToken(cfg.Token)
	}

	return &Store{client: client, server: cfg.Server, runID: runID}
}

type ingestProposalRequest struct {
	Proposal model.MetadataChangeProposal `json:"proposal"`
	Async    string                       `json:"async"`
}

type aspectResponse struct {
	Version int64                      `json:"version"`
	Aspect  map[string]json.RawMessage `json:"aspect"`
}

// Get fetches the latest dataHubUpgradeResult aspect of upgradeID
func (s *Store) Get(ctx context.Context, upgradeID string) (*model.UpgradeResult, error) {
	urn := model.NewUpgradeURN(upgradeID).String()

	var body aspectResponse
	resp, err := s.client.R().
		SetContext(ctx).
		SetPathParam("urn", urn).
		SetQueryParam("aspect", model.UpgradeResultAspectName).
		SetQueryParam("version", "0").
		SetResult(&body).
		Get("/aspects/{urn}")
	if err != nil {
		return nil, fmt.Errorf("failed to fetch upgrade result from %s: %w", s.server, err)
	}
	if resp.StatusCode() == http.StatusNotFound {
		return nil, store.ErrNotFound
	}
	if !resp.IsSuccess() {
		return nil, fmt.Errorf("metadata service returned error status %d: %s", resp.StatusCode(), resp.String())
	}

	raw, ok := body.Aspect[upgradeResultSchema]
	if !ok {
		return nil, store.ErrNotFound
	}

	var result model.UpgradeResult
	if err := json.Unmarshal(raw, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// Put ingests result as an UPSERT proposal
func (s *Store) Put(ctx context.Context, upgradeID string, result model.UpgradeResult) error {
	logger := log.FromContext(ctx)

	mcp, err := model.NewUpsertProposal(upgradeID, result, s.runIDFor(ctx))
	if err != nil {
		return err
	}
	return s.ingest(ctx, mcp, logger.WithValues("upgradeID", upgradeID, "state", result.EffectiveState()))
}

// Patch ingests a PATCH proposal built with model.ResultPatchBuilder
func (s *Store) Patch(ctx context.Context, builder *model.ResultPatchBuilder) error {
	mcp, err := builder.Build()
	if err != nil {
		return err
	}
	if runID := s.runIDFor(ctx); runID != "" {
		mcp.SystemMetadata = &model.SystemMetadata{LastObserved: time.Now().UnixMilli(), RunID: runID}
	}
	return s.ingest(ctx, mcp, log.FromContext(ctx).WithValues("urn", mcp.EntityURN))
}

func (s *Store) runIDFor(ctx context.Context) string {
	if runID := store.RunIDFrom(ctx); runID != "" {
		return runID
	}
	return s.runID
}

func (s *Store) ingest(ctx context.Context, mcp model.MetadataChangeProposal, logger logr.Logger) error {
	var errorResponse map[string]interface{}
	resp, err := s.client.R().
		SetContext(ctx).
		SetQueryParam("action", "ingestProposal").
		SetBody(ingestProposalRequest{Proposal: mcp, Async: "false"}).
		SetError(&errorResponse).
		Post("/aspects")
	if err != nil {
		logger.Error(err, "Failed to send proposal to metadata service", "server", s.server)
		return fmt.Errorf("failed to send proposal to metadata service: %w", err)
	}

	if !resp.IsSuccess() {
		logger.Error(nil, "Metadata service returned error",
			"statusCode", resp.StatusCode(),
			"error", errorResponse,
			"body", resp.String(),
		)
		return fmt.Errorf("metadata service returned error status %d: %s", resp.StatusCode(), resp.String())
	}

	logger.V(1).Info("Proposal ingested", "changeType", mcp.ChangeType, "statusCode", resp.StatusCode())
	return nil
}

// Close releases the HTTP client
func (s *Store) Close() error {
	return s.client.Close()
}
