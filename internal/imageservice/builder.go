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

import (
	"github.com/lsst-sqre/nublado-controller/internal/image"
	"github.com/lsst-sqre/nublado-controller/internal/imagetag"
	"github.com/lsst-sqre/nublado-controller/internal/stringset"
)

// NodeEligibility is one node's prepull eligibility, as determined by
// the prepuller's taint/toleration pass (spec.md §4.6). The image
// service only needs the name and eligibility to decide which nodes'
// presence counts toward an image being "prepulled"; the human-facing
// comment is carried through to PrepullerStatus unchanged.
type NodeEligibility struct {
	Name     string
	Eligible bool
	Comment  string
}

// SpawnerImages builds the GET /spawner/v1/images response from the
// currently published collection: the recommended alias (if present),
// the newest image of each concrete release series, and everything
// else that survived filtering, in menu order.
func (s *Service) SpawnerImages(eligible []NodeEligibility) SpawnerImages {
	collection := s.Collection()
	if collection == nil {
		return SpawnerImages{}
	}
	nodeNames := eligibleNodeNames(eligible)

	out := SpawnerImages{
		Latest: make([]PrepulledImage, 0, 4),
		All:    make([]PrepulledImage, 0),
	}

	if s.opts.RecommendedTag != "" {
		if img, ok := collection.ImageForTagName(s.opts.RecommendedTag); ok {
			pulled := toPrepulledImage(img, nodeNames)
			out.Recommended = &pulled
		}
	}

	for _, t := range []imagetag.Type{imagetag.Release, imagetag.Weekly, imagetag.Daily, imagetag.Candidate} {
		if latest := collection.Latest(t); latest != nil {
			out.Latest = append(out.Latest, toPrepulledImage(latest, nodeNames))
		}
	}

	for _, img := range collection.AllImages(true, true) {
		out.All = append(out.All, toPrepulledImage(img, nodeNames))
	}

	return out
}

// PrepullerStatus builds the GET /spawner/v1/prepulls response: every
// image that should be prepulled, each paired with its per-node pull
// state, plus one row per node naming its eligibility.
func (s *Service) PrepullerStatus(eligible []NodeEligibility) PrepullerStatus {
	collection := s.Collection()
	if collection == nil {
		return PrepullerStatus{}
	}
	nodeNames := eligibleNodeNames(eligible)

	images := make([]PrepulledImage, 0)
	for _, img := range collection.AllImages(false, true) {
		images = append(images, toPrepulledImage(img, nodeNames))
	}

	nodes := make([]NodeStatus, 0, len(eligible))
	for _, n := range eligible {
		nodes = append(nodes, nodeStatusFor(n, collection))
	}

	return PrepullerStatus{Images: images, Nodes: nodes}
}

func nodeStatusFor(n NodeEligibility, collection *image.Collection) NodeStatus {
	status := NodeStatus{Name: n.Name, Eligible: n.Eligible, Comment: n.Comment}
	if !n.Eligible {
		return status
	}
	for _, img := range collection.AllImages(false, true) {
		status.Images = append(status.Images, NodeImage{
			Reference: img.Reference(),
			Tag:       img.Tag,
			Present:   img.Nodes.Has(n.Name),
			SizeBytes: img.Size,
		})
	}
	return status
}

func toPrepulledImage(img *image.Image, eligibleNodes *stringset.Set) PrepulledImage {
	nodes := img.Nodes.Items()
	prepulled := eligibleNodes.Len() > 0 && img.Nodes.IsSupersetOf(eligibleNodes)
	return PrepulledImage{
		Reference:   img.Reference(),
		Tag:         img.Tag,
		DisplayName: img.DisplayName,
		Digest:      img.Digest,
		Aliases:     img.Aliases.Items(),
		Prepulled:   prepulled,
		NodeNames:   nodes,
		SizeBytes:   img.Size,
	}
}

func eligibleNodeNames(eligible []NodeEligibility) *stringset.Set {
	s := stringset.New()
	for _, n := range eligible {
		if n.Eligible {
			s.Insert(n.Name)
		}
	}
	return s
}
