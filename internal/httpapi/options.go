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

package httpapi

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/lsst-sqre/nublado-controller/internal/apierror"
	"github.com/lsst-sqre/nublado-controller/internal/image"
	"github.com/lsst-sqre/nublado-controller/internal/imagetag"
	"github.com/lsst-sqre/nublado-controller/internal/k8sobject"
)

// imageDropdownSentinel is the spawn form's signal that the dropdown,
// not the list, carries the user's actual selection.
const imageDropdownSentinel = "use_image_from_dropdown"

// rawSpawnRequest is the wire shape of a spawn request body: several
// fields accept either a scalar or a single-element list, and the
// boolean fields accept "true"/"false" strings, so they're decoded as
// json.RawMessage and normalized explicitly rather than trusted to
// encoding/json's implicit coercion.
type rawSpawnRequest struct {
	Options rawSpawnOptions   `json:"options"`
	Env     map[string]string `json:"env"`
}

type rawSpawnOptions struct {
	ImageList     json.RawMessage `json:"image_list"`
	ImageDropdown json.RawMessage `json:"image_dropdown"`
	ImageClass    string          `json:"image_class"`
	ImageTag      string          `json:"image_tag"`
	Size          json.RawMessage `json:"size"`
	EnableDebug   json.RawMessage `json:"enable_debug"`
	ResetUserEnv  json.RawMessage `json:"reset_user_env"`
}

// scalarOrFirst accepts either a bare JSON string or a single-element
// array of strings, per spec.md §9's "accepts list-of-one" rule. An
// absent field decodes to "", not an error. An array of any other
// length is rejected rather than silently truncated.
func scalarOrFirst(raw json.RawMessage) (string, error) {
	if len(raw) == 0 {
		return "", nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s, nil
	}
	var list []string
	if err := json.Unmarshal(raw, &list); err != nil {
		return "", fmt.Errorf("expected a string or single-element list, got %s", raw)
	}
	if len(list) != 1 {
		return "", fmt.Errorf("expected exactly one value, got %d", len(list))
	}
	return list[0], nil
}

// stringlyBool accepts a JSON bool or the literal strings "true"/"false",
// defaulting to false when the field is absent. Anything else is
// rejected: spec.md §9 explicitly calls for rejecting implicit coercion
// rather than following encoding/json's own truthiness rules.
func stringlyBool(raw json.RawMessage) (bool, error) {
	if len(raw) == 0 {
		return false, nil
	}
	var b bool
	if err := json.Unmarshal(raw, &b); err == nil {
		return b, nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return false, fmt.Errorf("expected a bool or \"true\"/\"false\", got %s", raw)
	}
	switch s {
	case "true":
		return true, nil
	case "false":
		return false, nil
	default:
		return false, fmt.Errorf("expected \"true\" or \"false\", got %q", s)
	}
}

// resolveSize matches a requested size name against the configured
// sizes case-insensitively, returning the canonical configured name.
func resolveSize(sizes map[k8sobject.LabSize]k8sobject.ResourceQuantum, requested string) (k8sobject.LabSize, bool) {
	for name := range sizes {
		if strings.EqualFold(string(name), requested) {
			return name, true
		}
	}
	return "", false
}

// resolveImage looks up a collection entry by reference or bare tag
// name: a "registry/repo@sha256:..." reference resolves by digest, a
// "registry/repo:tag" reference is reduced to its tag, and anything
// else is tried as a tag name directly.
func resolveImage(collection *image.Collection, ref string) (*image.Image, bool) {
	if idx := strings.Index(ref, "@sha256:"); idx != -1 {
		return collection.ImageForDigest(ref[idx+1:])
	}
	if idx := strings.LastIndex(ref, ":"); idx != -1 {
		ref = ref[idx+1:]
	}
	return collection.ImageForTagName(ref)
}

// resolveImageClass maps one of the four named classes to the
// collection entry it currently refers to.
func resolveImageClass(collection *image.Collection, class, recommendedTag string) (*image.Image, bool) {
	switch class {
	case "recommended":
		return collection.ImageForTagName(recommendedTag)
	case "latest-weekly":
		return latestOrNil(collection.Latest(imagetag.Weekly))
	case "latest-daily":
		return latestOrNil(collection.Latest(imagetag.Daily))
	case "latest-release":
		return latestOrNil(collection.Latest(imagetag.Release))
	default:
		return nil, false
	}
}

func latestOrNil(img *image.Image) (*image.Image, bool) {
	if img == nil {
		return nil, false
	}
	return img, true
}

// normalizeSpawnOptions applies spec.md §9's dynamic validation rules
// and resolves exactly one image selector into a concrete image.
// Exactly one of {image_list, image_dropdown (only when image_list is
// the dropdown sentinel), image_class, image_tag} must resolve; any
// other combination is an apierror.InputError.
func normalizeSpawnOptions(raw rawSpawnOptions, collection *image.Collection, recommendedTag string, sizes map[k8sobject.LabSize]k8sobject.ResourceQuantum) (k8sobject.LabOptions, *image.Image, error) {
	listVal, err := scalarOrFirst(raw.ImageList)
	if err != nil {
		return k8sobject.LabOptions{}, nil, apierror.NewInputError("invalid image_list", err)
	}
	dropdownVal, err := scalarOrFirst(raw.ImageDropdown)
	if err != nil {
		return k8sobject.LabOptions{}, nil, apierror.NewInputError("invalid image_dropdown", err)
	}
	sizeVal, err := scalarOrFirst(raw.Size)
	if err != nil {
		return k8sobject.LabOptions{}, nil, apierror.NewInputError("invalid size", err)
	}
	debug, err := stringlyBool(raw.EnableDebug)
	if err != nil {
		return k8sobject.LabOptions{}, nil, apierror.NewInputError("invalid enable_debug", err)
	}
	reset, err := stringlyBool(raw.ResetUserEnv)
	if err != nil {
		return k8sobject.LabOptions{}, nil, apierror.NewInputError("invalid reset_user_env", err)
	}

	type candidate struct {
		name string
		img  *image.Image
		ok   bool
	}
	var candidates []candidate
	switch {
	case listVal != "" && listVal != imageDropdownSentinel:
		img, ok := resolveImage(collection, listVal)
		candidates = append(candidates, candidate{"image_list", img, ok})
	case listVal == imageDropdownSentinel && dropdownVal != "":
		img, ok := resolveImage(collection, dropdownVal)
		candidates = append(candidates, candidate{"image_dropdown", img, ok})
	}
	if raw.ImageClass != "" {
		img, ok := resolveImageClass(collection, raw.ImageClass, recommendedTag)
		candidates = append(candidates, candidate{"image_class", img, ok})
	}
	if raw.ImageTag != "" {
		img, ok := collection.ImageForTagName(raw.ImageTag)
		candidates = append(candidates, candidate{"image_tag", img, ok})
	}

	if len(candidates) != 1 {
		return k8sobject.LabOptions{}, nil, apierror.NewInputError(
			fmt.Sprintf("exactly one image selector must resolve, got %d", len(candidates)), nil)
	}
	chosen := candidates[0]
	if !chosen.ok {
		return k8sobject.LabOptions{}, nil, apierror.NewInputError(
			fmt.Sprintf("%s did not resolve to a known image", chosen.name), nil)
	}

	size, ok := resolveSize(sizes, sizeVal)
	if !ok {
		return k8sobject.LabOptions{}, nil, apierror.NewInputError(fmt.Sprintf("unknown lab size %q", sizeVal), nil)
	}

	return k8sobject.LabOptions{
		Size:         size,
		EnableDebug:  debug,
		ResetUserEnv: reset,
	}, chosen.img, nil
}
