/*
Copyright 2024.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package v1alpha1

import (
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
)

// DataHubUpgradeResultSpec mirrors the dataHubUpgradeResult aspect of one upgrade
type DataHubUpgradeResultSpec struct {
	// UpgradeID is the identifier of the upgrade the result belongs to
	// +required
	UpgradeID string `json:"upgradeId"`

	// State is the outcome of the run. Consumers read an empty state as SUCCEEDED.
	// +optional
	// +kubebuilder:validation:Enum=IN_PROGRESS;SUCCEEDED;FAILED;ABORTED
	State string `json:"state,omitempty"`

	// TimestampMs is the epoch millisecond timestamp at which the run started
	// +required
	// +kubebuilder:validation:Minimum=0
	TimestampMs int64 `json:"timestampMs"`

	// Result holds free-form information about the run. A nil map is sent as null
	// so that an empty map survives a round trip as {}.
	// +optional
	Result map[string]string `json:"result"`
}

// +kubebuilder:object:root=true
// +kubebuilder:printcolumn:name="Upgrade",type=string,JSONPath=`.spec.upgradeId`
// +kubebuilder:printcolumn:name="State",type=string,JSONPath=`.spec.state`

// DataHubUpgradeResult is the Schema for the datahubupgraderesults API
// One object holds the latest result recorded for an upgrade id
type DataHubUpgradeResult struct {
	metav1.TypeMeta `json:",inline"`

	// metadata is a standard object metadata
	// +optional
	metav1.ObjectMeta `json:"metadata,omitzero"`

	// spec holds the recorded upgrade result
	// +required
	Spec DataHubUpgradeResultSpec `json:"spec"`
}

// +kubebuilder:object:root=true

// DataHubUpgradeResultList contains a list of DataHubUpgradeResult
type DataHubUpgradeResultList struct {
	metav1.TypeMeta `json:",inline"`
	metav1.ListMeta `json:"metadata,omitzero"`
	Items           []DataHubUpgradeResult `json:"items"`
}

func init() {
	SchemeBuilder.Register(&DataHubUpgradeResult{}, &DataHubUpgradeResultList{})
}
