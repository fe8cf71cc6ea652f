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

// Package image wraps a parsed imagetag.Tag with registry location and
// alias-resolution state, and groups many such images into a menu.
package image

import (
	"fmt"
	"strings"
	"time"

	"github.com/Masterminds/semver/v3"

	"github.com/lsst-sqre/nublado-controller/internal/imagetag"
	"github.com/lsst-sqre/nublado-controller/internal/stringset"
)

// Image is one entry in a container registry: a tag, its digest, and
// everything known about how it relates to other tags of the same
// underlying content.
//
// Images are shared by pointer: the same *Image may belong to several
// Collections at once (e.g. the full inventory and a filtered subset),
// and resolving an alias or recording a node sighting on one mutates
// state every holder observes.
type Image struct {
	Tag         string
	ImageType   imagetag.Type
	DisplayName string
	Version     *semver.Version
	RSPVersion  *int
	Cycle       *int
	Date        *time.Time

	Registry   string
	Repository string
	Digest     string
	Size       *int64

	// Aliases holds the tags of every other image known to share this
	// image's digest — whether or not any of them has actually been
	// resolved onto this one as its alias target.
	Aliases *stringset.Set
	// AliasTarget is the tag of the concrete image this alias resolves
	// to, once resolution has found one. Nil until then.
	AliasTarget *string

	Nodes *stringset.Set
}

// FromTag builds an Image for a just-parsed tag, with no alias or node
// information yet.
func FromTag(registry, repository string, tag imagetag.Tag, digest string) *Image {
	return &Image{
		Tag:         tag.Raw,
		ImageType:   tag.Type,
		DisplayName: tag.DisplayName,
		Version:     tag.Version,
		RSPVersion:  tag.RSPBuildVersion,
		Cycle:       tag.Cycle,
		Date:        tag.Date,
		Registry:    registry,
		Repository:  repository,
		Digest:      digest,
		Aliases:     stringset.New(),
		Nodes:       stringset.New(),
	}
}

// Reference is the registry/repository:tag string Kubernetes uses to
// pull this image.
func (img *Image) Reference() string {
	return fmt.Sprintf("%s/%s:%s", img.Registry, img.Repository, img.Tag)
}

// ReferenceWithDigest pins Reference to this image's exact content.
func (img *Image) ReferenceWithDigest() string {
	return fmt.Sprintf("%s@%s", img.Reference(), img.Digest)
}

// IsPossibleAlias reports whether this image's tag alone doesn't pin a
// specific release series — it's either an explicit alias ("recommended")
// or an unrecognized tag that might be one.
func (img *Image) IsPossibleAlias() bool {
	return img.ImageType == imagetag.Alias || img.ImageType == imagetag.Unknown
}

// resolveOnto makes img an alias of target: promotes img to the Alias
// type, links img's display name to target's, and copies the
// menu-relevant parts of target's identity (cycle, date) so img can
// survive cycle filtering and age-based display the same way target
// would. img's own semantic version is left nil — an alias never carries
// its own version, only the version of whatever it currently points to.
//
// Only a possible alias can be resolved; resolving a concrete tag onto
// another is always a caller error.
func (img *Image) resolveOnto(target *Image) error {
	if !img.IsPossibleAlias() {
		return fmt.Errorf("can only resolve an alias or unknown tag, not %s", img.ImageType)
	}
	img.ImageType = imagetag.Alias
	img.AliasTarget = &target.Tag
	img.Cycle = target.Cycle
	img.Date = target.Date
	img.DisplayName = combineAliasDisplayName(imagetag.Alias(img.Tag).DisplayName, target.DisplayName)
	target.Aliases.Insert(img.Tag)
	return nil
}

// combineAliasDisplayName folds an alias's own display name (e.g.
// "Latest Daily (SAL Cycle 0045)", whose cycle suffix belongs to the
// alias pointer itself, not what it resolves to) together with the
// target's display name, producing e.g.
// "Latest Daily (Daily 2077_10_23, SAL Cycle 0045, Build 003)".
func combineAliasDisplayName(aliasDisplay, targetDisplay string) string {
	base := aliasDisplay
	if idx := strings.Index(base, " (SAL Cycle "); idx != -1 {
		base = base[:idx]
	}
	return fmt.Sprintf("%s (%s)", base, flattenParenthetical(targetDisplay))
}

// flattenParenthetical turns "Daily 2077_10_23 (SAL Cycle 0045, Build
// 003)" into "Daily 2077_10_23, SAL Cycle 0045, Build 003" so it can be
// nested inside another set of parens without doubling them.
func flattenParenthetical(s string) string {
	idx := strings.Index(s, " (")
	if idx == -1 || !strings.HasSuffix(s, ")") {
		return s
	}
	inner := s[idx+2 : len(s)-1]
	return s[:idx] + ", " + inner
}
