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

package prepuller_test

import (
	"context"
	"sync"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/go-logr/logr"
	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/watch"

	"github.com/lsst-sqre/nublado-controller/internal/image"
	"github.com/lsst-sqre/nublado-controller/internal/imagetag"
	"github.com/lsst-sqre/nublado-controller/internal/prepuller"
)

type fakePodManager struct {
	mu       sync.Mutex
	nodes    []corev1.Node
	created  []*corev1.Pod
	deleted  []string
	watchers map[string]chan watch.Event
}

func newFakePodManager(nodes []corev1.Node) *fakePodManager {
	return &fakePodManager{nodes: nodes, watchers: make(map[string]chan watch.Event)}
}

func (f *fakePodManager) ListNodes(ctx context.Context) ([]corev1.Node, error) {
	return f.nodes, nil
}

func (f *fakePodManager) GetPod(ctx context.Context, namespace, name string) (*corev1.Pod, bool, error) {
	return nil, false, nil
}

func (f *fakePodManager) DeletePod(ctx context.Context, namespace, name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = append(f.deleted, name)
	return nil
}

func (f *fakePodManager) WatchPod(ctx context.Context, namespace, name string) (<-chan watch.Event, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	ch := make(chan watch.Event, 1)
	f.watchers[name] = ch
	return ch, nil
}

// CreatePod immediately reports the pod as Succeeded on its watch
// channel, simulating a prepull that completes instantly.
func (f *fakePodManager) CreatePod(ctx context.Context, pod *corev1.Pod) error {
	f.mu.Lock()
	f.created = append(f.created, pod)
	ch := f.watchers[pod.Name]
	f.mu.Unlock()

	succeeded := pod.DeepCopy()
	succeeded.Status.Phase = corev1.PodSucceeded
	ch <- watch.Event{Type: watch.Modified, Object: succeeded}
	return nil
}

type fakeCollectionSource struct {
	collection *image.Collection
}

func (f *fakeCollectionSource) Collection() *image.Collection {
	return f.collection
}

var _ = Describe("Prepuller", func() {
	It("prepulls a missing image onto an eligible node and marks it seen", func() {
		img := image.FromTag("lighthouse.ceres", "library/sketchbook", imagetag.FromString("r1_2_3"), "sha256:aaa")
		collection := image.New([]*image.Image{img})
		source := &fakeCollectionSource{collection: collection}

		nodes := []corev1.Node{{ObjectMeta: metav1.ObjectMeta{Name: "node-1"}}}
		storage := newFakePodManager(nodes)

		p := prepuller.New(storage, source, prepuller.Options{
			Namespace:   "nublado-prepuller",
			Concurrency: 2,
		}, logr.Discard())

		Expect(p.Run(context.Background())).To(Succeed())

		Expect(storage.created).To(HaveLen(1))
		Expect(storage.created[0].Name).To(Equal(prepuller.PodName("r1_2_3", "node-1")))
		Expect(storage.created[0].Spec.NodeName).To(Equal("node-1"))

		updated, ok := collection.ImageForTagName("r1_2_3")
		Expect(ok).To(BeTrue())
		Expect(updated.Nodes.Has("node-1")).To(BeTrue())
	})

	It("skips nodes that already have the image cached", func() {
		img := image.FromTag("lighthouse.ceres", "library/sketchbook", imagetag.FromString("r1_2_3"), "sha256:aaa")
		img.Nodes.Insert("node-1")
		collection := image.New([]*image.Image{img})
		source := &fakeCollectionSource{collection: collection}

		nodes := []corev1.Node{{ObjectMeta: metav1.ObjectMeta{Name: "node-1"}}}
		storage := newFakePodManager(nodes)

		p := prepuller.New(storage, source, prepuller.Options{Namespace: "nublado-prepuller"}, logr.Discard())
		Expect(p.Run(context.Background())).To(Succeed())
		Expect(storage.created).To(BeEmpty())
	})

	It("skips ineligible nodes", func() {
		img := image.FromTag("lighthouse.ceres", "library/sketchbook", imagetag.FromString("r1_2_3"), "sha256:aaa")
		collection := image.New([]*image.Image{img})
		source := &fakeCollectionSource{collection: collection}

		nodes := []corev1.Node{{
			ObjectMeta: metav1.ObjectMeta{Name: "node-gpu"},
			Spec: corev1.NodeSpec{Taints: []corev1.Taint{
				{Key: "nvidia.com/gpu", Value: "present", Effect: corev1.TaintEffectNoSchedule},
			}},
		}}
		storage := newFakePodManager(nodes)

		p := prepuller.New(storage, source, prepuller.Options{Namespace: "nublado-prepuller"}, logr.Discard())
		Expect(p.Run(context.Background())).To(Succeed())
		Expect(storage.created).To(BeEmpty())
	})
})
