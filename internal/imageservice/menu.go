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

// PrepulledImage is one entry of the GET /spawner/v1/images response:
// an image plus whether it has finished prepulling to every eligible
// node. Mirrors original_source's PrepulledImage model
// (models/v1/prepuller.py), which this controller's spawn form and
// admin "images" page both consume.
type PrepulledImage struct {
	Reference    string   `json:"reference"`
	Tag          string   `json:"tag"`
	DisplayName  string   `json:"name"`
	Digest       string   `json:"digest"`
	Aliases      []string `json:"aliasTags,omitempty"`
	Prepulled    bool     `json:"prepulled"`
	NodeNames    []string `json:"nodes,omitempty"`
	SizeBytes    *int64   `json:"size,omitempty"`
}

// NodeImage is one node's view of one image in the prepull set: its
// reference plus whether it has already been pulled there.
type NodeImage struct {
	Reference string `json:"reference"`
	Tag       string `json:"tag"`
	Present   bool   `json:"present"`
	SizeBytes *int64 `json:"size,omitempty"`
}

// NodeStatus is one node's eligibility and per-image prepull state, the
// per-node row of GET /spawner/v1/prepulls.
type NodeStatus struct {
	Name       string      `json:"name"`
	Eligible   bool        `json:"eligible"`
	Comment    string      `json:"comment,omitempty"`
	Images     []NodeImage `json:"images"`
}

// SpawnerImages is the full GET /spawner/v1/images payload: the
// recommended image, the menu broken out by release series, and
// everything else that survived collection filtering.
type SpawnerImages struct {
	Recommended *PrepulledImage  `json:"recommended,omitempty"`
	Latest      []PrepulledImage `json:"latest"`
	All         []PrepulledImage `json:"all"`
}

// PrepullerStatus is the full GET /spawner/v1/prepulls payload.
type PrepullerStatus struct {
	Images []PrepulledImage `json:"images"`
	Nodes  []NodeStatus     `json:"nodes"`
}
