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
	"context"
	"strings"
	"sync/atomic"
	"time"

	"github.com/go-logr/logr"
	corev1 "k8s.io/api/core/v1"

	"github.com/lsst-sqre/nublado-controller/internal/image"
	"github.com/lsst-sqre/nublado-controller/internal/imagefilter"
	"github.com/lsst-sqre/nublado-controller/internal/imagetag"
	"github.com/lsst-sqre/nublado-controller/internal/logsettings"
)

// NodeLister reports every node in the cluster and the images already
// present on each. Satisfied by *internal/k8sstorage.Client in
// production, and by a fake in tests.
type NodeLister interface {
	ListNodes(ctx context.Context) ([]corev1.Node, error)
}

// Options configures a Service.
type Options struct {
	Registry        string
	Repository      string
	AliasTags       []string
	Cycle           *int
	FilterPolicy    imagefilter.Policy
	RecommendedTag  string
	RefreshInterval time.Duration
}

// Service owns the authoritative RSPImageCollection: it periodically
// fetches the configured registry source, parses and filters the
// result, cross-references node presence, and publishes the outcome
// behind an atomic pointer that every reader — the spawn form, the
// prepuller, the lab builder — loads without taking a lock.
type Service struct {
	fetcher Fetcher
	nodes   NodeLister
	opts    Options
	aliases map[string]struct{}
	logger  logr.Logger

	collection atomic.Pointer[image.Collection]
}

// New builds a Service. It does not perform an initial fetch; call
// Refresh once (or Start, which does so before entering its loop)
// before reading Collection.
func New(fetcher Fetcher, nodes NodeLister, opts Options, logger logr.Logger) *Service {
	aliases := make(map[string]struct{}, len(opts.AliasTags))
	for _, a := range opts.AliasTags {
		aliases[a] = struct{}{}
	}
	return &Service{fetcher: fetcher, nodes: nodes, opts: opts, aliases: aliases, logger: logger}
}

// Collection returns the most recently published collection. Nil until
// the first successful Refresh.
func (s *Service) Collection() *image.Collection {
	return s.collection.Load()
}

// Start runs an immediate Refresh, then repeats it every
// opts.RefreshInterval until ctx is done. Errors are logged, not
// returned: a single failed refresh cycle leaves the previous
// collection published rather than blanking the menu.
func (s *Service) Start(ctx context.Context) {
	s.refreshAndLog(ctx)

	ticker := time.NewTicker(s.opts.RefreshInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.refreshAndLog(ctx)
		}
	}
}

func (s *Service) refreshAndLog(ctx context.Context) {
	if err := s.Refresh(ctx); err != nil {
		s.logger.Error(err, "refreshing image collection")
	}
}

// Refresh fetches the registry's current tag inventory, parses and
// filters it into a Collection, cross-references which nodes already
// have which images cached, and atomically publishes the result. See
// spec.md §4.5.
func (s *Service) Refresh(ctx context.Context) error {
	remoteTags, err := s.fetcher.Fetch(ctx)
	if err != nil {
		return err
	}
	remoteTags = filterArchSuffixed(remoteTags)

	images := make([]*image.Image, 0, len(remoteTags))
	for _, rt := range remoteTags {
		tag := s.parseTag(rt.Tag)
		if s.opts.Cycle != nil && tag.Cycle != nil && *tag.Cycle != *s.opts.Cycle {
			continue
		}
		img := image.FromTag(s.opts.Registry, s.opts.Repository, tag, rt.Digest)
		if rt.SizeBytes > 0 {
			size := rt.SizeBytes
			img.Size = &size
		}
		images = append(images, img)
	}

	collection := image.New(images)
	collection = collection.Filter(s.opts.FilterPolicy, time.Now())

	if s.nodes != nil {
		if err := s.crossReferenceNodes(ctx, collection); err != nil {
			s.logger.V(logsettings.LogInfo).Info("listing nodes for image cross-reference failed", "error", err.Error())
		}
	}

	s.collection.Store(collection)
	s.logger.V(logsettings.LogDebug).Info("published image collection", "images", len(images))
	return nil
}

func (s *Service) parseTag(name string) imagetag.Tag {
	if _, ok := s.aliases[name]; ok {
		return imagetag.Alias(name)
	}
	return imagetag.FromString(name)
}

// crossReferenceNodes marks every image already visible in a node's
// Status.Images as seen there, so the prepuller can tell which images
// still need pulling without re-deriving it from scratch on every pass.
func (s *Service) crossReferenceNodes(ctx context.Context, collection *image.Collection) error {
	nodeList, err := s.nodes.ListNodes(ctx)
	if err != nil {
		return err
	}
	for _, node := range nodeList {
		for _, ci := range node.Status.Images {
			digest := digestFromNodeImage(ci.Names)
			if digest == "" {
				continue
			}
			collection.MarkImageSeenOnNode(digest, node.Name, ci.SizeBytes)
		}
	}
	return nil
}

// digestFromNodeImage finds a "repo@sha256:..." entry among a node's
// reported names for one cached image and returns its digest, since a
// node's Status.Images mixes tag and digest references in the same
// Names slice with no fixed order.
func digestFromNodeImage(names []string) string {
	for _, n := range names {
		if idx := strings.Index(n, "@sha256:"); idx != -1 {
			return n[idx+1:]
		}
	}
	return ""
}
