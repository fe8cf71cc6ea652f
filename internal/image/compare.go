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

// Compare orders two images of the SAME ImageType for menu display.
// Callers comparing images of different types should bucket by type
// first; this mirrors imagetag.Tag.Compare and exists separately because
// Image doesn't carry an embedded Tag.
func (img *Image) Compare(other *Image) int {
	if img.Version == nil || other.Version == nil {
		switch {
		case img.Tag == other.Tag:
			return 0
		case img.Tag < other.Tag:
			return -1
		default:
			return 1
		}
	}

	if rank := img.Version.Compare(other.Version); rank != 0 {
		return rank
	}
	if rank := compareIntPtr(img.RSPVersion, other.RSPVersion); rank != 0 {
		return rank
	}
	return compareBuildString(img.Version.Metadata(), other.Version.Metadata())
}

// Less reports whether img sorts before other.
func (img *Image) Less(other *Image) bool {
	return img.Compare(other) < 0
}

func compareIntPtr(a, b *int) int {
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

func compareBuildString(a, b string) int {
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
