/*
Copyright 2022. projectsveltos.io. All rights reserved.

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

package k8sstorage

import (
	"context"

	corev1 "k8s.io/api/core/v1"

	"github.com/lsst-sqre/nublado-controller/internal/apierror"
)

// ListNodes returns every node in the cluster, for the prepuller's
// eligibility pass and the image service's node-inventory
// cross-reference (spec.md §4.5 step 5 and §4.6).
func (c *Client) ListNodes(ctx context.Context) ([]corev1.Node, error) {
	list := &corev1.NodeList{}
	if err := c.ctrl.List(ctx, list); err != nil {
		return nil, apierror.WrapKubernetesError("Node", "", "", httpStatus(err), err)
	}
	return list.Items, nil
}
