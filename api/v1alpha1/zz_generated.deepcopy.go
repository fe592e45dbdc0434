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
	runtime "k8s.io/apimachinery/pkg/runtime"
)

// DeepCopyInto is a deepcopy function, copying the receiver, writing into out. in must be non-nil.
func (in *DataHubUpgradeResult) DeepCopyInto(out *DataHubUpgradeResult) {
	*out = *in
	out.TypeMeta = in.TypeMeta
	in.ObjectMeta.DeepCopyInto(&out.ObjectMeta)
	in.Spec.DeepCopyInto(&out.Spec)
}

// DeepCopy is a deepcopy function, copying the receiver, creating a new DataHubUpgradeResult.
func (in *DataHubUpgradeResult) DeepCopy() *DataHubUpgradeResult {
	if in == nil {
		return nil
	}
	out := new(DataHubUpgradeResult)
	in.DeepCopyInto(out)
	return out
}

// DeepCopyObject is a deepcopy function, copying the receiver, creating a new runtime.Object.
func (in *DataHubUpgradeResult) DeepCopyObject() runtime.Object {
	if c := in.DeepCopy(); c != nil {
		return c
	}
	return nil
}

// DeepCopyInto is a deepcopy function, copying the receiver, writing into out. in must be non-nil.
func (in *DataHubUpgradeResultList) DeepCopyInto(out *DataHubUpgradeResultList) {
	*out = *in
	out.TypeMeta = in.TypeMeta
	in.ListMeta.DeepCopyInto(&out.ListMeta)
	if in.Items != nil {
		in, out := &in.Items, &out.Items
		*out = make([]DataHubUpgradeResult, len(*in))
		for i := range *in {
			(*in)[i].DeepCopyInto(&(*out)[i])
		}
	}
}

// DeepCopy is a deepcopy function, copying the receiver, creating a new DataHubUpgradeResultList.
func (in *DataHubUpgradeResultList) DeepCopy() *DataHubUpgradeResultList {
	if in == nil {
		return nil
	}
	out := new(DataHubUpgradeResultList)
	in.DeepCopyInto(out)
	return out
}

// DeepCopyObject is a deepcopy function, copying the receiver, creating a new runtime.Object.
func (in *DataHubUpgradeResultList) DeepCopyObject() runtime.Object {
	if c := in.DeepCopy(); c != nil {
		return c
	}
	return nil
}

// DeepCopyInto is a deepcopy function, copying the receiver, writing into out. in must be non-nil.
func (in *DataHubUpgradeResultSpec) DeepCopyInto(out *DataHubUpgradeResultSpec) {
	*out = *in
	if in.Result != nil {
		in, out := &in.Result, &out.Result
		*out = make(map[string]string, len(*in))
		for key, val := range *in {
			(*out)[key] = val
		}
	}
}

// DeepCopy is a deepcopy function, copying the receiver, creating a new DataHubUpgradeResultSpec.
func (in *DataHubUpgradeResultSpec) DeepCopy() *DataHubUpgradeResultSpec {
	if in == nil {
		return nil
	}
	out := new(DataHubUpgradeResultSpec)
	in.DeepCopyInto(out)
	return out
}
