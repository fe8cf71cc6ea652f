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

package image

import (
	"sort"
	"time"

	"github.com/Masterminds/semver/v3"

	"github.com/lsst-sqre/nublado-controller/internal/imagefilter"
	"github.com/lsst-sqre/nublado-controller/internal/imagetag"
)

// typeOrder ranks ImageTypes for menu display and for picking which
// concrete image in a digest group is "the" image its aliases resolve
// to. Alias itself never appears here: a possible-alias image can never
// be the resolution target of another.
var typeOrder = map[imagetag.Type]int{
	imagetag.Release:     0,
	imagetag.Weekly:      1,
	imagetag.Daily:       2,
	imagetag.Candidate:   3,
	imagetag.Experimental: 4,
}

// Collection holds a registry's worth of Images and keeps their
// cross-references (which tags alias which digest, which nodes have
// which images cached) consistent as images are added.
type Collection struct {
	byTag    map[string]*Image
	byType   map[imagetag.Type][]*Image
	byDigest map[string][]*Image
}

// New builds a Collection from images, resolving aliases within shared
// digest groups as it goes. Equivalent to calling an empty collection's
// Add once per image, in order.
func New(images []*Image) *Collection {
	c := &Collection{
		byTag:    make(map[string]*Image),
		byType:   make(map[imagetag.Type][]*Image),
		byDigest: make(map[string][]*Image),
	}
	for _, img := range images {
		c.Add(img)
	}
	return c
}

// Add inserts img into the collection, then re-resolves every image
// sharing img's digest: the best concrete (non-alias, non-unknown)
// image in the group becomes the resolution target for every
// possible-alias image in the group, and every image in the group
// records every other image's tag in its Aliases set regardless of
// type, so that menu building can tell when an alias's target (or a
// concrete image's alias) is present in a given view.
func (c *Collection) Add(img *Image) {
	group := c.byDigest[img.Digest]
	for _, existing := range group {
		existing.Aliases.Insert(img.Tag)
		img.Aliases.Insert(existing.Tag)
	}
	group = append(group, img)
	c.byDigest[img.Digest] = group

	c.byTag[img.Tag] = img
	c.byType[img.ImageType] = append(c.byType[img.ImageType], img)
	c.resortType(img.ImageType)

	c.reresolveDigestGroup(group)
}

func (c *Collection) reresolveDigestGroup(group []*Image) {
	primary := pickPrimary(group)
	if primary == nil {
		return
	}
	for _, candidate := range group {
		if candidate == primary || !candidate.IsPossibleAlias() {
			continue
		}
		previousType := candidate.ImageType
		_ = candidate.resolveOnto(primary)
		if previousType != candidate.ImageType {
			c.moveBetweenTypeBuckets(candidate, previousType)
		}
	}
}

// pickPrimary returns the best concrete image in group to serve as the
// target every alias in the group resolves to: the highest-priority
// type, newest version within that type. If the group holds no concrete
// image at all, the first image ever added to the group stands in as a
// provisional digest owner, so image_for_digest has something sensible
// to return even before a concrete tag shows up.
func pickPrimary(group []*Image) *Image {
	var best *Image
	for _, img := range group {
		if img.IsPossibleAlias() {
			continue
		}
		if best == nil {
			best = img
			continue
		}
		if typeOrder[img.ImageType] < typeOrder[best.ImageType] {
			best = img
			continue
		}
		if typeOrder[img.ImageType] == typeOrder[best.ImageType] && best.Less(img) {
			best = img
		}
	}
	if best != nil {
		return best
	}
	if len(group) > 0 {
		return group[0]
	}
	return nil
}

func (c *Collection) moveBetweenTypeBuckets(img *Image, from imagetag.Type) {
	list := c.byType[from]
	for i, candidate := range list {
		if candidate == img {
			c.byType[from] = append(list[:i], list[i+1:]...)
			break
		}
	}
	c.byType[img.ImageType] = append(c.byType[img.ImageType], img)
	c.resortType(from)
	c.resortType(img.ImageType)
}

func (c *Collection) resortType(t imagetag.Type) {
	list := c.byType[t]
	sort.SliceStable(list, func(i, j int) bool { return list[j].Less(list[i]) })
}

// AllImages returns every image in menu order: grouped by ImageType in
// the order imagetag.Types lists them, newest first within each group.
//
// If hideAliased is true, a concrete image is omitted when at least one
// of its Aliases is itself present in this collection (it would just
// duplicate the alias entry in a menu). If hideResolvedAliases is true,
// an alias image is omitted when its AliasTarget is present in this
// collection (for the same reason, from the other direction).
func (c *Collection) AllImages(hideAliased, hideResolvedAliases bool) []*Image {
	out := make([]*Image, 0, len(c.byTag))
	for _, t := range imagetag.Types {
		for _, img := range c.byType[t] {
			if hideAliased && !img.IsPossibleAlias() && c.hasVisibleAlias(img) {
				continue
			}
			if hideResolvedAliases && img.AliasTarget != nil {
				if _, ok := c.byTag[*img.AliasTarget]; ok {
					continue
				}
			}
			out = append(out, img)
		}
	}
	return out
}

func (c *Collection) hasVisibleAlias(img *Image) bool {
	for _, alias := range img.Aliases.Items() {
		if _, ok := c.byTag[alias]; ok {
			return true
		}
	}
	return false
}

// ImageForTagName looks up an image by its exact tag.
func (c *Collection) ImageForTagName(tag string) (*Image, bool) {
	img, ok := c.byTag[tag]
	return img, ok
}

// ImageForDigest returns the image that represents digest in this
// collection: the concrete image if one is present, otherwise the
// first image with that digest that was ever added.
func (c *Collection) ImageForDigest(digest string) (*Image, bool) {
	group, ok := c.byDigest[digest]
	if !ok || len(group) == 0 {
		return nil, false
	}
	return pickPrimary(group), true
}

// Latest returns the newest image of the given type, or nil if the
// collection has none.
func (c *Collection) Latest(t imagetag.Type) *Image {
	list := c.byType[t]
	if len(list) == 0 {
		return nil
	}
	return list[0]
}

// Subset returns a new Collection with the newest `releases` Release
// images, `weeklies` Weekly images, `dailies` Daily images, plus any
// image named in include that's present in the collection.
func (c *Collection) Subset(releases, weeklies, dailies int, include map[string]struct{}) *Collection {
	images := make([]*Image, 0)
	take := func(t imagetag.Type, n int) {
		if n <= 0 {
			return
		}
		list := c.byType[t]
		if n > len(list) {
			n = len(list)
		}
		images = append(images, list[:n]...)
	}
	take(imagetag.Release, releases)
	take(imagetag.Weekly, weeklies)
	take(imagetag.Daily, dailies)
	for name := range include {
		if img, ok := c.byTag[name]; ok {
			images = append(images, img)
		}
	}
	return New(images)
}

// Filter applies policy to every type category and returns a new
// Collection holding the images that survive, rebuilding alias
// resolution from scratch the same way Subset does: a concrete image
// dropped by its category's Number/Age/CutoffVersion bound takes every
// alias pointing at its digest down with it, since New re-resolves
// digest groups only from what's actually passed in.
func (c *Collection) Filter(policy imagefilter.Policy, ageBasis time.Time) *Collection {
	images := make([]*Image, 0, len(c.byTag))
	for _, t := range imagetag.Types {
		images = append(images, c.applyCategoryPolicy(policy, t, ageBasis)...)
	}
	return New(images)
}

func (c *Collection) applyCategoryPolicy(policy imagefilter.Policy, category imagetag.Type, ageBasis time.Time) []*Image {
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
		if v, err := semver.NewVersion(catPolicy.CutoffVersion); err == nil {
			cutoffVersion = v
		}
	}

	remainder := make([]*Image, 0, len(candidates))
	for _, img := range candidates {
		if catPolicy.Number != nil && len(remainder) >= *catPolicy.Number {
			break
		}
		if img.Date != nil && cutoffDate != nil && img.Date.Before(*cutoffDate) {
			continue
		}
		if img.Version != nil && cutoffVersion != nil && img.Version.LessThan(cutoffVersion) {
			continue
		}
		remainder = append(remainder, img)
	}
	return remainder
}

// Subtract returns the images in c whose digest does not appear anywhere
// in other. Because digest groups intermix concrete and alias images,
// this removes every alias of a subtracted concrete image too.
func (c *Collection) Subtract(other *Collection) *Collection {
	remainder := make([]*Image, 0, len(c.byTag))
	for digest, group := range c.byDigest {
		if _, ok := other.byDigest[digest]; ok {
			continue
		}
		remainder = append(remainder, group...)
	}
	return New(remainder)
}

// MarkImageSeenOnNode records that the image with this digest is present
// on node, updating every image sharing that digest (concrete and
// alias alike) since they all refer to the same underlying content. A
// digest this collection has never seen is silently ignored: the
// prepuller may be watching nodes whose image inventory outran the
// registry listing this collection was built from.
//
// sizeBytes is optional (0 means unknown) and, when given, is recorded
// on every image in the group.
func (c *Collection) MarkImageSeenOnNode(digest, node string, sizeBytes ...int64) {
	group, ok := c.byDigest[digest]
	if !ok {
		return
	}
	var size *int64
	if len(sizeBytes) > 0 {
		size = &sizeBytes[0]
	}
	for _, img := range group {
		img.Nodes.Insert(node)
		if size != nil {
			img.Size = size
		}
	}
}
