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

// Package imageservice owns the authoritative, periodically-refreshed
// RSPImageCollection: it fetches tag/digest inventory from whichever
// registry source is configured, parses and filters it, cross-references
// node presence, and publishes the result behind an atomic pointer for
// every other goroutine (the spawn form, the prepuller, the builder) to
// read without locking.
package imageservice

import (
	"context"

	"github.com/lsst-sqre/nublado-controller/internal/registry/docker"
	"github.com/lsst-sqre/nublado-controller/internal/registry/gar"
)

// RemoteTag is one tag a registry source reports, normalized across the
// Docker v2 and GAR backends.
type RemoteTag struct {
	Tag string
	// Aliases lists other tags the source already knows point at the
	// same digest (GARFetcher fills it in; DockerFetcher leaves it nil).
	// Refresh does not read it: for every source, alias relationships
	// are discovered by image.Collection.Add from shared digests as tags
	// are ingested one by one.
	Aliases   []string
	Digest    string
	SizeBytes int64
}

// Fetcher lists the current tag/digest inventory of one registry
// repository.
type Fetcher interface {
	Fetch(ctx context.Context) ([]RemoteTag, error)
}

// DockerFetcher adapts a docker.Source to Fetcher.
type DockerFetcher struct {
	Source *docker.Source
}

func (f *DockerFetcher) Fetch(ctx context.Context) ([]RemoteTag, error) {
	tags, err := f.Source.List(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]RemoteTag, 0, len(tags))
	for _, t := range tags {
		out = append(out, RemoteTag{Tag: t.Name, Digest: t.Digest})
	}
	return out, nil
}

// GARFetcher adapts a gar.Source to Fetcher, unpacking its per-digest
// Image entries into one RemoteTag per tag, with every sibling tag
// recorded as an Alias.
type GARFetcher struct {
	Source *gar.Source
}

func (f *GARFetcher) Fetch(ctx context.Context) ([]RemoteTag, error) {
	images, err := f.Source.List(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]RemoteTag, 0)
	for _, img := range images {
		for _, tag := range img.Tags {
			siblings := make([]string, 0, len(img.Tags)-1)
			for _, other := range img.Tags {
				if other != tag {
					siblings = append(siblings, other)
				}
			}
			out = append(out, RemoteTag{
				Tag:       tag,
				Aliases:   siblings,
				Digest:    img.Digest,
				SizeBytes: img.SizeBytes,
			})
		}
	}
	return out, nil
}
