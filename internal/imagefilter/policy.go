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

// Package imagefilter holds the per-category rules that decide which
// image tags are shown on the spawn menu.
package imagefilter

import "time"

// CategoryPolicy bounds which tags of a given release series are shown.
// All non-zero fields apply together: an image must satisfy every one
// of them. A zero-valued CategoryPolicy performs no filtering at all.
type CategoryPolicy struct {
	// Number caps how many images of this category are shown, newest
	// first. Nil means unbounded.
	Number *int

	// Age excludes images older than this, relative to the filter's
	// age basis (normally "now"). Nil means no age limit.
	Age *time.Duration

	// CutoffVersion excludes images whose semantic version sorts below
	// this one. Does not apply to unparseable tags. Empty means no
	// version floor.
	CutoffVersion string
}

// Policy configures which images are shown for each release series.
// Alias tags are always shown; the Unknown category is never filtered
// (its images are shown or hidden entirely by whether they're present
// in the source collection, not by this policy).
type Policy struct {
	Release          CategoryPolicy
	Weekly           CategoryPolicy
	Daily            CategoryPolicy
	ReleaseCandidate CategoryPolicy
	Experimental     CategoryPolicy
}

// ForCategory returns the policy to apply to category, and whether one
// applies at all. Alias and Unknown tags are never filtered by category
// policy (ok is false), so the caller should pass every tag through
// unchanged.
func (p Policy) ForCategory(category string) (CategoryPolicy, bool) {
	switch category {
	case "Release":
		return p.Release, true
	case "Weekly":
		return p.Weekly, true
	case "Daily":
		return p.Daily, true
	case "Release Candidate":
		return p.ReleaseCandidate, true
	case "Experimental":
		return p.Experimental, true
	case "Alias", "Unknown":
		return CategoryPolicy{}, false
	default:
		return CategoryPolicy{}, false
	}
}
