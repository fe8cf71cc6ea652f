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

package prepuller

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/go-logr/logr"
	corev1 "k8s.io/api/core/v1"
	"k8s.io/apimachinery/pkg/watch"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"

	"github.com/lsst-sqre/nublado-controller/internal/image"
	"github.com/lsst-sqre/nublado-controller/internal/imageservice"
	"github.com/lsst-sqre/nublado-controller/internal/logsettings"
)

// PodManager is the subset of *internal/k8sstorage.Client the prepuller
// needs, narrowed to an interface so tests can substitute a fake.
type PodManager interface {
	ListNodes(ctx context.Context) ([]corev1.Node, error)
	GetPod(ctx context.Context, namespace, name string) (*corev1.Pod, bool, error)
	CreatePod(ctx context.Context, pod *corev1.Pod) error
	DeletePod(ctx context.Context, namespace, name string) error
	WatchPod(ctx context.Context, namespace, name string) (<-chan watch.Event, error)
}

// CollectionSource is the image service's published-collection seam,
// satisfied by *internal/imageservice.Service.
type CollectionSource interface {
	Collection() *image.Collection
}

// Options configures a Prepuller.
type Options struct {
	Namespace       string
	PullSecretName  string
	Tolerations     []corev1.Toleration
	Concurrency     int
	RefreshInterval time.Duration
}

// Prepuller runs periodic passes that bring every eligible node's image
// cache up to date with the current prepull set (spec.md §4.6/§6.6).
type Prepuller struct {
	storage PodManager
	images  CollectionSource
	opts    Options
	logger  logr.Logger
}

// New builds a Prepuller.
func New(storage PodManager, images CollectionSource, opts Options, logger logr.Logger) *Prepuller {
	if opts.Concurrency <= 0 {
		opts.Concurrency = 1
	}
	return &Prepuller{storage: storage, images: images, opts: opts, logger: logger}
}

// Start runs an immediate pass, then repeats every opts.RefreshInterval
// until ctx is done.
func (p *Prepuller) Start(ctx context.Context) {
	p.runAndLog(ctx)

	ticker := time.NewTicker(p.opts.RefreshInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.runAndLog(ctx)
		}
	}
}

func (p *Prepuller) runAndLog(ctx context.Context) {
	if err := p.Run(ctx); err != nil {
		p.logger.Error(err, "prepull pass failed")
	}
}

// Run performs one pass: it lists nodes, determines eligibility, and
// submits a prepull Pod for every (eligible node, prepull-set image)
// pair where the node doesn't already have the image's digest, bounded
// to opts.Concurrency Pods in flight at once. An individual Pod's
// failure is logged and does not abort the rest of the pass.
func (p *Prepuller) Run(ctx context.Context) error {
	collection := p.images.Collection()
	if collection == nil {
		return nil
	}

	nodes, err := p.storage.ListNodes(ctx)
	if err != nil {
		return err
	}
	eligibility := EligibleNodes(nodes, p.opts.Tolerations)
	prepullSet := dedupeByDigest(collection.AllImages(false, false))

	sem := make(chan struct{}, p.opts.Concurrency)
	var wg sync.WaitGroup
	for _, elig := range eligibility {
		if !elig.Eligible {
			continue
		}
		for _, img := range prepullSet {
			if img.Nodes.Has(elig.Name) {
				continue
			}
			wg.Add(1)
			sem <- struct{}{}
			go func(node string, img *image.Image) {
				defer wg.Done()
				defer func() { <-sem }()
				if err := p.prepullOne(ctx, node, img, collection); err != nil {
					p.logger.V(logsettings.LogInfo).Info("prepull failed", "node", node, "tag", img.Tag, "error", err.Error())
				}
			}(elig.Name, img)
		}
	}
	wg.Wait()
	return nil
}

// dedupeByDigest keeps one representative image per digest: several
// tags (a concrete release and its aliases) share a digest, and the
// prepuller only needs to pull it once per node.
func dedupeByDigest(images []*image.Image) []*image.Image {
	seen := make(map[string]bool, len(images))
	out := make([]*image.Image, 0, len(images))
	for _, img := range images {
		if seen[img.Digest] {
			continue
		}
		seen[img.Digest] = true
		out = append(out, img)
	}
	return out
}

func (p *Prepuller) prepullOne(ctx context.Context, node string, img *image.Image, collection *image.Collection) error {
	name := PodName(img.Tag, node)

	if err := p.storage.DeletePod(ctx, p.opts.Namespace, name); err != nil {
		return fmt.Errorf("clearing stale prepull pod: %w", err)
	}

	events, err := p.storage.WatchPod(ctx, p.opts.Namespace, name)
	if err != nil {
		return fmt.Errorf("watching prepull pod: %w", err)
	}

	pod := buildPrepullPod(p.opts.Namespace, name, node, img, p.opts.PullSecretName, p.opts.Tolerations)
	if err := p.storage.CreatePod(ctx, pod); err != nil {
		return fmt.Errorf("submitting prepull pod: %w", err)
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-events:
			if !ok {
				return fmt.Errorf("watch closed before %s reached a terminal phase", name)
			}
			observed, ok := ev.Object.(*corev1.Pod)
			if !ok {
				continue
			}
			switch observed.Status.Phase {
			case corev1.PodSucceeded:
				collection.MarkImageSeenOnNode(img.Digest, node)
				return p.storage.DeletePod(ctx, p.opts.Namespace, name)
			case corev1.PodFailed:
				_ = p.storage.DeletePod(ctx, p.opts.Namespace, name)
				return fmt.Errorf("prepull pod %s failed", name)
			}
		}
	}
}

func buildPrepullPod(namespace, name, node string, img *image.Image, pullSecretName string, tolerations []corev1.Toleration) *corev1.Pod {
	return &corev1.Pod{
		ObjectMeta: metav1.ObjectMeta{
			Name:      name,
			Namespace: namespace,
			Labels:    map[string]string{"nublado.lsst.io/category": "prepull"},
		},
		Spec: corev1.PodSpec{
			NodeName:         node,
			RestartPolicy:    corev1.RestartPolicyNever,
			Tolerations:      tolerations,
			ImagePullSecrets: pullSecretRefs(pullSecretName),
			Containers: []corev1.Container{{
				Name:    "prepull",
				Image:   img.ReferenceWithDigest(),
				Command: []string{"/bin/sleep", "0"},
			}},
		},
	}
}

func pullSecretRefs(name string) []corev1.LocalObjectReference {
	if name == "" {
		return nil
	}
	return []corev1.LocalObjectReference{{Name: name}}
}
