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

// Compare orders two tags, returning -1, 0, or 1 as t is less than, equal
// to, or greater than other. Compare does not check Type: two tags of
// different Types are ordered by the same version (or Raw) rules as two
// tags of one Type. image.Collection compares tags only within one type
// bucket.
//
// Semver's own Compare ignores build metadata, but we can't: a tag's
// cycle/RSP-build information lives in the build string, and newer
// cycles must sort ahead of older ones among otherwise-identical
// versions. So after semver agrees the versions are equal, we break the
// tie first on RSP build version, then by comparing build strings
// lexically.
func (t Tag) Compare(other Tag) int {
	if t.Version == nil || other.Version == nil {
		switch {
		case t.Raw == other.Raw:
			return 0
		case t.Raw < other.Raw:
			return -1
		default:
			return 1
		}
	}

	if rank := t.Version.Compare(other.Version); rank != 0 {
		return rank
	}

	if rank := compareRSPBuildVersions(t.RSPBuildVersion, other.RSPBuildVersion); rank != 0 {
		return rank
	}

	return compareBuildStrings(t.Version.Metadata(), other.Version.Metadata())
}

// Less reports whether t sorts before other, for use with sort.Slice.
func (t Tag) Less(other Tag) bool {
	return t.Compare(other) < 0
}

func compareRSPBuildVersions(a, b *int) int {
	switch {
	case a == nil && b == nil:
		return 0
	case a == nil:
		return -1
	case b == nil:
		return 1
	case *a < *b:
		return -1
	case *a > *b:
		return 1
	default:
		return 0
	}
}

func compareBuildStrings(a, b string) int {
	switch {
	case a == b:
		return 0
	case a == "":
		return -1
	case b == "":
		return 1
	case a < b:
		return -1
	default:
		return 1
	}
}
