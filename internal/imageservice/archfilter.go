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

package imageservice

import "strings"

// archSuffixes lists the per-architecture tag suffixes a multi-arch
// build process may publish alongside (or instead of) an unsuffixed
// manifest-list tag, per spec.md §4.4.
var archSuffixes = []string{"-amd64", "-arm64", "-ppc64le", "-s390x"}

// filterArchSuffixed keeps one representative of each logical tag: if
// the unsuffixed tag is present in tags, every suffixed variant of it is
// dropped; otherwise the first suffixed variant encountered (in tags'
// given order) is kept and the rest are dropped. Tags with no
// recognized architecture suffix pass through untouched.
func filterArchSuffixed(tags []RemoteTag) []RemoteTag {
	present := make(map[string]bool, len(tags))
	for _, t := range tags {
		present[t.Tag] = true
	}

	seenLogical := make(map[string]bool)
	out := make([]RemoteTag, 0, len(tags))
	for _, t := range tags {
		logical, suffixed := stripArchSuffix(t.Tag)
		if !suffixed {
			out = append(out, t)
			continue
		}
		if present[logical] {
			continue // the unsuffixed tag already represents this logical tag
		}
		if seenLogical[logical] {
			continue // keep only the first suffixed variant encountered
		}
		seenLogical[logical] = true
		out = append(out, t)
	}
	return out
}

func stripArchSuffix(tag string) (logical string, ok bool) {
	for _, suffix := range archSuffixes {
		if strings.HasSuffix(tag, suffix) {
			return strings.TrimSuffix(tag, suffix), true
		}
	}
	return tag, false
}
