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

package prepuller

import (
	"fmt"
	"strings"
)

// PodName returns the name of the prepull Pod for tag on node:
// "prepull-<safe-tag>-<safe-node>", per spec.md §6.6.
func PodName(tag, node string) string {
	return fmt.Sprintf("prepull-%s-%s", safeName(tag), safeName(node))
}

// safeName lowercases s and replaces every run of characters that
// aren't valid in a Kubernetes object name with a single "-", since RSP
// tags freely use underscores, dots, and uppercase letters that a Pod
// name may not.
func safeName(s string) string {
	var b strings.Builder
	lastDash := false
	for _, r := range strings.ToLower(s) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
			lastDash = false
		case !lastDash:
			b.WriteRune('-')
			lastDash = true
		}
	}
	out := strings.Trim(b.String(), "-")
	if len(out) > 63 {
		out = out[:63]
	}
	return out
}
