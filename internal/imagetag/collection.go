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

package imagetag

import (
	"sort"
	"time"

	"github.com/Masterminds/semver/v3"

	"github.com/lsst-sqre/nublado-controller/internal/imagefilter"
)

// Collection holds a set of Tags and supports the menu-building
// operations the prepuller and spawn form need: lookup by name, taking a
// bounded subset per release series, and applying an age/version filter
// policy.
type Collection struct {
	byTag  map[string]Tag
	byType map[Type][]Tag
}

// FromTagNames parses tagNames into a Collection. Any name present in
// aliases is parsed as an alias tag rather than a release-series tag. If
// cycle is non-nil, only tags whose Cycle matches it are kept.
func FromTagNames(tagNames []string, aliases map[string]struct{}, cycle *int) Collection {
	tags := make([]Tag, 0, len(tagNames))
	for _, name := range tagNames {
		var tag Tag
		if _, ok := aliases[name]; ok {
			tag = Alias(name)
		} else {
			tag = FromString(name)
		}
		if cycle == nil || (tag.Cycle != nil && *tag.Cycle == *cycle) {
			tags = append(tags, tag)
		}
	}
	return New(tags)
}

// New builds a Collection from already-parsed tags.
func New(tags []Tag) Collection {
	c := Collection{
		byTag:  make(map[string]Tag, len(tags)),
		byType: make(map[Type][]Tag),
	}
	for _, t := range tags {
		c.byTag[t.Raw] = t
		c.byType[t.Type] = append(c.byType[t.Type], t)
	}
	for _, list := range c.byType {
		sort.Slice(list, func(i, j int) bool { return list[j].Less(list[i]) })
	}
	return c
}

// AllTags returns every tag in the collection, in menu order: grouped by
// Type in the order Types lists them, newest first within each group.
func (c Collection) AllTags() []Tag {
	out := make([]Tag, 0, len(c.byTag))
	for _, t := range Types {
		out = append(out, c.byType[t]...)
	}
	return out
}

// TagForName looks up a tag by its raw name.
func (c Collection) TagForName(name string) (Tag, bool) {
	t, ok := c.byTag[name]
	return t, ok
}

// Len reports how many tags the collection holds.
func (c Collection) Len() int {
	return len(c.byTag)
}

// Subset returns a new Collection containing the newest `releases`
// Release tags, `weeklies` Weekly tags, `dailies` Daily tags, plus any
// tag named in include that's present in the collection (typically
// alias tags like "recommended").
func (c Collection) Subset(releases, weeklies, dailies int, include map[string]struct{}) Collection {
	tags := make([]Tag, 0)
	take := func(t Type, n int) {
		if n <= 0 {
			return
		}
		list := c.byType[t]
		if n > len(list) {
			n = len(list)
		}
		tags = append(tags, list[:n]...)
	}
	take(Release, releases)
	take(Weekly, weeklies)
	take(Daily, dailies)

	for name := range include {
		if t, ok := c.byTag[name]; ok {
			tags = append(tags, t)
		}
	}
	return New(tags)
}

// Filter applies policy to every type category and returns the tags that
// survive, in menu order.
func (c Collection) Filter(policy imagefilter.Policy, ageBasis time.Time) []Tag {
	out := make([]Tag, 0, len(c.byTag))
	for _, t := range Types {
		out = append(out, c.applyCategoryPolicy(policy, t, ageBasis)...)
	}
	return out
}

func (c Collection) applyCategoryPolicy(policy imagefilter.Policy, category Type, ageBasis time.Time) []Tag {
	candidates := c.byType[category]
	catPolicy, ok := policy.ForCategory(string(category))
	if !ok {
		return candidates
	}

	var cutoffDate *time.Time
	if catPolicy.Age != nil {
		cutoff := ageBasis.Add(-*catPolicy.Age)
		cutoffDate = &cutoff
	}
	var cutoffVersion *semver.Version
	if catPolicy.CutoffVersion != "" {
		v, err := semver.NewVersion(catPolicy.CutoffVersion)
		if err == nil {
			cutoffVersion = v
		}
	}

	remainder := make([]Tag, 0, len(candidates))
	for _, tag := range candidates {
		if catPolicy.Number != nil && len(remainder) >= *catPolicy.Number {
			break
		}
		if tag.Date != nil && cutoffDate != nil && tag.Date.Before(*cutoffDate) {
			continue
		}
		if tag.Version != nil && cutoffVersion != nil && tag.Version.LessThan(cutoffVersion) {
			continue
		}
		remainder = append(remainder, tag)
	}
	return remainder
}
