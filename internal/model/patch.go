package model

import (
	"encoding/json"
	"fmt"
	"strings"

	jsonpatch "github.com/evanphx/json-patch/v5"
)

// PatchOp is a single RFC 6902 operation against the upgrade result aspect
type PatchOp struct {
	Op    string `json:"op"`
	Path  string `json:"path"`
	Value any    `json:"value,omitempty"`
}

// ResultPatchBuilder accumulates patch operations for one upgrade's result aspect
type ResultPatchBuilder struct {
	urn UpgradeURN
	ops []PatchOp
}

// NewResultPatchBuilder starts a patch for upgradeID
func NewResultPatchBuilder(upgradeID string) *ResultPatchBuilder {
	return &ResultPatchBuilder{urn: NewUpgradeURN(upgradeID)}
}

// AddResult sets a single result entry
func (b *ResultPatchBuilder) AddResult(key, value string) *ResultPatchBuilder {
	b.ops = append(b.ops, PatchOp{Op: "add", Path: "/result/" + escapePointer(key), Value: value})
	return b
}

// RemoveResult removes a single result entry. Removing a missing key is not an error.
func (b *ResultPatchBuilder) RemoveResult(key string) *ResultPatchBuilder {
	b.ops = append(b.ops, PatchOp{Op: "remove", Path: "/result/" + escapePointer(key)})
	return b
}

// SetResults replaces the whole result map
func (b *ResultPatchBuilder) SetResults(result map[string]string) *ResultPatchBuilder {
	if result == nil {
		result = map[string]string{}
	}
	b.ops = append(b.ops, PatchOp{Op: "add", Path: "/result", Value: result})
	return b
}

// SetState sets the state of the record
func (b *ResultPatchBuilder) SetState(state UpgradeState) *ResultPatchBuilder {
	b.ops = append(b.ops, PatchOp{Op: "add", Path: "/state", Value: state})
	return b
}

// Operations returns a copy of the accumulated operations
func (b *ResultPatchBuilder) Operations() []PatchOp {
	out := make([]PatchOp, len(b.ops))
	copy(out, b.ops)
	return out
}

// Build returns a PATCH proposal carrying the accumulated operations
func (b *ResultPatchBuilder) Build() (MetadataChangeProposal, error) {
	value, err := json.Marshal(b.ops)
	if err != nil {
		return MetadataChangeProposal{}, fmt.Errorf("failed to marshal patch: %w", err)
	}
	return MetadataChangeProposal{
		EntityType: UpgradeEntityType,
		EntityURN:  b.urn.String(),
		ChangeType: ChangeTypePatch,
		AspectName: UpgradeResultAspectName,
		Aspect: GenericAspect{
			Value:       string(value),
			ContentType: contentTypeJSONPatch,
		},
	}, nil
}

// ApplyPatch applies ops to a copy of result. Adds create a missing result map and
// removes of missing keys are ignored.
func ApplyPatch(result UpgradeResult, ops []PatchOp) (UpgradeResult, error) {
	if result.Result == nil && addsResultEntry(ops) {
		result = result.Clone()
		result.Result = map[string]string{}
	}

	doc, err := json.Marshal(result)
	if err != nil {
		return UpgradeResult{}, fmt.Errorf("failed to marshal upgrade result: %w", err)
	}
	raw, err := json.Marshal(ops)
	if err != nil {
		return UpgradeResult{}, fmt.Errorf("failed to marshal patch: %w", err)
	}
	patch, err := jsonpatch.DecodePatch(raw)
	if err != nil {
		return UpgradeResult{}, fmt.Errorf("invalid patch: %w", err)
	}

	opts := jsonpatch.NewApplyOptions()
	opts.AllowMissingPathOnRemove = true
	opts.EnsurePathExistsOnAdd = true

	patched, err := patch.ApplyWithOptions(doc, opts)
	if err != nil {
		return UpgradeResult{}, fmt.Errorf("failed to apply patch: %w", err)
	}

	var out UpgradeResult
	if err := json.Unmarshal(patched, &out); err != nil {
		return UpgradeResult{}, err
	}
	if err := out.Validate(); err != nil {
		return UpgradeResult{}, err
	}
	return out, nil
}

func addsResultEntry(ops []PatchOp) bool {
	for _, op := range ops {
		if op.Op == "add" && strings.HasPrefix(op.Path, "/result/") {
			return true
		}
	}
	return false
}

// escapePointer escapes a map key for use as a JSON pointer segment
func escapePointer(key string) string {
	key = strings.ReplaceAll(key, "~", "~0")
	return strings.ReplaceAll(key, "/", "~1")
}
