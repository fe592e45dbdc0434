// Package kube stores upgrade results as DataHubUpgradeResult custom resources.
package kube

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"regexp"
	"strings"

	apierrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/types"
	"k8s.io/apimachinery/pkg/util/validation"
	"sigs.k8s.io/controller-runtime/pkg/client"
	"sigs.k8s.io/controller-runtime/pkg/log"

	upgradev1alpha1 "github.com/datahub-project/datahub-upgrade/api/v1alpha1"
	"github.com/datahub-project/datahub-upgrade/internal/model"
	"github.com/datahub-project/datahub-upgrade/internal/store"
)

// UpgradeIDLabel carries the raw upgrade id, since object names are sanitized
const UpgradeIDLabel = "upgrade.datahub.io/upgrade-id"

var invalidNameChars = regexp.MustCompile(`[^a-z0-9.-]+`)

// Store keeps one DataHubUpgradeResult object per upgrade id in a namespace
type Store struct {
	client    client.Client
	namespace string
}

var _ store.ResultStore = (*Store)(nil)

// New creates a store writing objects into namespace
func New(c client.Client, namespace string) *Store {
	return &Store{client: c, namespace: namespace}
}

// Get loads the result object for upgradeID
func (s *Store) Get(ctx context.Context, upgradeID string) (*model.UpgradeResult, error) {
	obj := &upgradev1alpha1.DataHubUpgradeResult{}
	err := s.client.Get(ctx, types.NamespacedName{
		Name:      ObjectName(upgradeID),
		Namespace: s.namespace,
	}, obj)
	if err != nil {
		if apierrors.IsNotFound(err) {
			return nil, store.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get upgrade result %s: %w", upgradeID, err)
	}

	result := FromSpec(obj.Spec)
	return &result, nil
}

// Put creates the result object, or replaces its spec if it already exists
func (s *Store) Put(ctx context.Context, upgradeID string, result model.UpgradeResult) error {
	logger := log.FromContext(ctx)

	if err := result.Validate(); err != nil {
		return err
	}

	name := ObjectName(upgradeID)
	obj := &upgradev1alpha1.DataHubUpgradeResult{
		ObjectMeta: metav1.ObjectMeta{
			Name:      name,
			Namespace: s.namespace,
			Labels: map[string]string{
				UpgradeIDLabel: labelValue(upgradeID),
			},
		},
		Spec: ToSpec(upgradeID, result),
	}

	// Try to create, if it exists, update it
	err := s.client.Create(ctx, obj)
	if err == nil {
		return nil
	}
	if !apierrors.IsAlreadyExists(err) {
		logger.Error(err, "Failed to create upgrade result", "name", name)
		return fmt.Errorf("failed to create upgrade result %s: %w", upgradeID, err)
	}

	existing := &upgradev1alpha1.DataHubUpgradeResult{}
	if err := s.client.Get(ctx, types.NamespacedName{Name: name, Namespace: s.namespace}, existing); err != nil {
		return fmt.Errorf("failed to get upgrade result %s: %w", upgradeID, err)
	}

	existing.Spec = obj.Spec
	if err := s.client.Update(ctx, existing); err != nil {
		logger.Error(err, "Failed to update upgrade result", "name", name)
		return fmt.Errorf("failed to update upgrade result %s: %w", upgradeID, err)
	}
	return nil
}

// ToSpec converts a result into the custom resource spec
func ToSpec(upgradeID string, result model.UpgradeResult) upgradev1alpha1.DataHubUpgradeResultSpec {
	spec := upgradev1alpha1.DataHubUpgradeResultSpec{
		UpgradeID:   upgradeID,
		TimestampMs: result.TimestampMs,
		Result:      result.Clone().Result,
	}
	if result.State != nil {
		spec.State = string(*result.State)
	}
	return spec
}

// FromSpec converts the custom resource spec back into a result
func FromSpec(spec upgradev1alpha1.DataHubUpgradeResultSpec) model.UpgradeResult {
	result := model.UpgradeResult{TimestampMs: spec.TimestampMs}
	if spec.State != "" {
		result.State = model.StatePtr(model.UpgradeState(spec.State))
	}
	if spec.Result != nil {
		result.Result = make(map[string]string, len(spec.Result))
		for k, v := range spec.Result {
			result.Result[k] = v
		}
	}
	return result
}

// ObjectName derives a DNS-1123 subdomain name from an upgrade id. Ids that need
// rewriting get a short hash suffix so distinct ids never collide.
func ObjectName(upgradeID string) string {
	lower := strings.ToLower(upgradeID)
	if lower == upgradeID && len(validation.IsDNS1123Subdomain(upgradeID)) == 0 {
		return upgradeID
	}

	name := invalidNameChars.ReplaceAllString(lower, "-")
	name = strings.Trim(name, "-.")
	if name == "" {
		name = "upgrade"
	}

	sum := sha256.Sum256([]byte(upgradeID))
	suffix := hex.EncodeToString(sum[:])[:8]

	maxPrefix := validation.DNS1123SubdomainMaxLength - len(suffix) - 1
	if len(name) > maxPrefix {
		name = strings.TrimRight(name[:maxPrefix], "-.")
	}
	return name + "-" + suffix
}

// labelValue trims an upgrade id down to a valid label value
func labelValue(upgradeID string) string {
	if len(validation.IsValidLabelValue(upgradeID)) == 0 {
		return upgradeID
	}
	value := ObjectName(upgradeID)
	if len(value) > validation.LabelValueMaxLength {
		value = value[:validation.LabelValueMaxLength]
	}
	return strings.TrimRight(value, "-.")
}
