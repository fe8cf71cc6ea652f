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

// Package prepuller decides which nodes are eligible to receive prepull
// Pods, and dispatches a bounded-concurrency pass of them against the
// current prepull set.
package prepuller

import (
	"fmt"

	corev1 "k8s.io/api/core/v1"

	"github.com/lsst-sqre/nublado-controller/internal/imageservice"
)

// EligibleNodes reports, for every node, whether it can receive a
// prepull Pod given the configured tolerations: a node carrying a
// NoSchedule or NoExecute taint the configured tolerations don't match
// is ineligible, since a prepull Pod with no matching toleration would
// never be admitted there (or would be evicted before it finished).
// PreferNoSchedule is a soft scheduler preference, not a hard block, and
// never disqualifies a node.
func EligibleNodes(nodes []corev1.Node, tolerations []corev1.Toleration) []imageservice.NodeEligibility {
	out := make([]imageservice.NodeEligibility, 0, len(nodes))
	for _, node := range nodes {
		eligible, comment := nodeEligible(node, tolerations)
		out = append(out, imageservice.NodeEligibility{Name: node.Name, Eligible: eligible, Comment: comment})
	}
	return out
}

func nodeEligible(node corev1.Node, tolerations []corev1.Toleration) (bool, string) {
	for _, taint := range node.Spec.Taints {
		if taint.Effect != corev1.TaintEffectNoSchedule && taint.Effect != corev1.TaintEffectNoExecute {
			continue
		}
		if !tolerated(taint, tolerations) {
			return false, fmt.Sprintf("tainted %s=%s:%s with no matching toleration", taint.Key, taint.Value, taint.Effect)
		}
	}
	return true, ""
}

// tolerated reports whether any configured toleration matches taint, via
// corev1.Toleration's own ToleratesTaint: a non-nil TolerationSeconds on
// a matching NoExecute toleration still counts as a match here (it only
// bounds how long the kubelet waits before evicting, not whether the Pod
// is admitted), and per ToleratesTaint's own contract a toleration whose
// Effect doesn't match the taint's Effect never matches regardless of
// Key/Value/Operator.
func tolerated(taint corev1.Taint, tolerations []corev1.Toleration) bool {
	for _, t := range tolerations {
		if t.ToleratesTaint(&taint) {
			return true
		}
	}
	return false
}
