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

// Package gar is the image source adapter for a Google Artifact
// Registry Docker repository. Unlike the plain Docker Registry v2
// adapter, GAR's ListDockerImages call reports every tag pointing at a
// digest together in one DockerImage entry, and List keeps them bundled
// that way. Alias resolution itself still happens in
// internal/image.Collection.Add, from the tags' shared digest.
package gar

import (
	"context"
	"fmt"
	"strings"

	artifactregistry "cloud.google.com/go/artifactregistry/apiv1"
	"cloud.google.com/go/artifactregistry/apiv1/artifactregistrypb"
	"google.golang.org/api/iterator"

	"github.com/lsst-sqre/nublado-controller/internal/apierror"
)

// Image is one digest's worth of GAR listing: every tag pointing at it,
// bundled together so the caller can attach them all as aliases of one
// another at once.
type Image struct {
	Digest     string
	Tags       []string
	SizeBytes  int64
}

// Source lists the images of one GAR repository.
type Source struct {
	client *artifactregistry.Client
	parent string
	path   string // project/repository/image, the part of a GAR URI after the registry host
}

// New builds a Source against the GAR repository identified by parent
// (the "projects/P/locations/L/repositories/R" resource name the List
// API expects) and path (the registry-relative image path GAR's
// DockerImage.Uri embeds, used to filter the listing to one image).
func New(ctx context.Context, parent, path string) (*Source, error) {
	client, err := artifactregistry.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("building artifact registry client: %w", err)
	}
	return &Source{client: client, parent: parent, path: path}, nil
}

// Close releases the underlying gRPC connection.
func (s *Source) Close() error {
	return s.client.Close()
}

// List returns every image (digest + all tags pointing at it) under
// this source's path.
func (s *Source) List(ctx context.Context) ([]Image, error) {
	it := s.client.ListDockerImages(ctx, &artifactregistrypb.ListDockerImagesRequest{
		Parent: s.parent,
	})

	out := make([]Image, 0)
	for {
		entry, err := it.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, apierror.NewUpstreamError("artifact registry", 0, err)
		}
		if !strings.Contains(entry.GetUri(), s.path) {
			continue
		}
		digest := digestFromURI(entry.GetUri())
		if digest == "" {
			continue
		}
		out = append(out, Image{
			Digest:    digest,
			Tags:      entry.GetTags(),
			SizeBytes: entry.GetImageSizeBytes(),
		})
	}
	return out, nil
}

// digestFromURI extracts the "sha256:..." suffix from a GAR DockerImage
// URI of the form "LOCATION-docker.pkg.dev/PROJECT/REPO/IMAGE@sha256:...".
func digestFromURI(uri string) string {
	idx := strings.Index(uri, "@sha256:")
	if idx == -1 {
		return ""
	}
	return uri[idx+1:]
}
