package model

import (
	"encoding/json"
	"fmt"
	"time"
)

// ChangeType is the kind of change a proposal carries
type ChangeType string

const (
	ChangeTypeUpsert ChangeType = "UPSERT"
	ChangeTypePatch  ChangeType = "PATCH"
)

const (
	contentTypeJSON      = "application/json"
	contentTypeJSONPatch = "application/json-patch+json"
)

// GenericAspect is an aspect serialized as a JSON string
type GenericAspect struct {
	Value       string `json:"value"`
	ContentType string `json:"contentType"`
}

// SystemMetadata is attached to proposals written by an upgrade run
type SystemMetadata struct {
	LastObserved int64  `json:"lastObserved,omitempty"`
	RunID        string `json:"runId,omitempty"`
}

// MetadataChangeProposal is the ingestion payload accepted by the metadata service
type MetadataChangeProposal struct {
	EntityType     string          `json:"entityType"`
	EntityURN      string          `json:"entityUrn"`
	ChangeType     ChangeType      `json:"changeType"`
	AspectName     string          `json:"aspectName"`
	Aspect         GenericAspect   `json:"aspect"`
	SystemMetadata *SystemMetadata `json:"systemMetadata,omitempty"`
}

// NewUpsertProposal wraps result as an UPSERT of the dataHubUpgradeResult aspect
func NewUpsertProposal(upgradeID string, result UpgradeResult, runID string) (MetadataChangeProposal, error) {
	if err := result.Validate(); err != nil {
		return MetadataChangeProposal{}, err
	}
	value, err := json.Marshal(result)
	if err != nil {
		return MetadataChangeProposal{}, fmt.Errorf("failed to marshal upgrade result: %w", err)
	}

	mcp := MetadataChangeProposal{
		EntityType: UpgradeEntityType,
		EntityURN:  NewUpgradeURN(upgradeID).String(),
		ChangeType: ChangeTypeUpsert,
		AspectName: UpgradeResultAspectName,
		Aspect: GenericAspect{
			Value:       string(value),
			ContentType: contentTypeJSON,
		},
	}
	if runID != "" {
		mcp.SystemMetadata = &SystemMetadata{
			LastObserved: time.Now().UnixMilli(),
			RunID:        runID,
		}
	}
	return mcp, nil
}

// DecodeAspect returns the upgrade result carried by an UPSERT proposal
func (m MetadataChangeProposal) DecodeAspect() (UpgradeResult, error) {
	if m.ChangeType != ChangeTypeUpsert {
		return UpgradeResult{}, fmt.Errorf("cannot decode aspect of a %s proposal", m.ChangeType)
	}
	if m.AspectName != UpgradeResultAspectName {
		return UpgradeResult{}, fmt.Errorf("unexpected aspect %q", m.AspectName)
	}
	var result UpgradeResult
	if err := json.Unmarshal([]byte(m.Aspect.Value), &result); err != nil {
		return UpgradeResult{}, err
	}
	return result, nil
}
