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

package imageservice_test

import (
	"context"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/go-logr/logr"
	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"

	"github.com/lsst-sqre/nublado-controller/internal/imagefilter"
	"github.com/lsst-sqre/nublado-controller/internal/imageservice"
)

type fakeFetcher struct {
	tags []imageservice.RemoteTag
	err  error
}

func (f *fakeFetcher) Fetch(ctx context.Context) ([]imageservice.RemoteTag, error) {
	return f.tags, f.err
}

type fakeNodeLister struct {
	nodes []corev1.Node
}

func (f *fakeNodeLister) ListNodes(ctx context.Context) ([]corev1.Node, error) {
	return f.nodes, nil
}

var _ = Describe("Service", func() {
	It("parses, filters arch suffixes, and publishes a collection", func() {
		fetcher := &fakeFetcher{tags: []imageservice.RemoteTag{
			{Tag: "r1_2_3", Digest: "sha256:aaa"},
			{Tag: "r1_2_3-amd64", Digest: "sha256:bbb"},
			{Tag: "recommended", Digest: "sha256:aaa"},
			{Tag: "w_2077_10", Digest: "sha256:ccc"},
		}}
		svc := imageservice.New(fetcher, nil, imageservice.Options{
			Registry:       "lighthouse.ceres",
			Repository:     "library/sketchbook",
			AliasTags:      []string{"recommended"},
			RecommendedTag: "recommended",
		}, logr.Discard())

		Expect(svc.Refresh(context.Background())).To(Succeed())
		collection := svc.Collection()
		Expect(collection).NotTo(BeNil())

		img, ok := collection.ImageForTagName("r1_2_3")
		Expect(ok).To(BeTrue())
		Expect(img.Digest).To(Equal("sha256:aaa"))

		_, ok = collection.ImageForTagName("r1_2_3-amd64")
		Expect(ok).To(BeFalse(), "unsuffixed r1_2_3 is present, so its -amd64 variant is dropped")

		recommended, ok := collection.ImageForTagName("recommended")
		Expect(ok).To(BeTrue())
		Expect(*recommended.AliasTarget).To(Equal("r1_2_3"))
	})

	It("drops tags outside the configured cycle", func() {
		cycle := 45
		fetcher := &fakeFetcher{tags: []imageservice.RemoteTag{
			{Tag: "r1_2_3_c0045.001", Digest: "sha256:aaa"},
			{Tag: "r1_2_4_c0046.001", Digest: "sha256:bbb"},
		}}
		svc := imageservice.New(fetcher, nil, imageservice.Options{
			Registry:   "lighthouse.ceres",
			Repository: "library/sketchbook",
			Cycle:      &cycle,
		}, logr.Discard())

		Expect(svc.Refresh(context.Background())).To(Succeed())
		collection := svc.Collection()

		_, ok := collection.ImageForTagName("r1_2_3_c0045.001")
		Expect(ok).To(BeTrue())
		_, ok = collection.ImageForTagName("r1_2_4_c0046.001")
		Expect(ok).To(BeFalse())
	})

	It("applies the configured filter policy's Number bound per category", func() {
		number := 1
		fetcher := &fakeFetcher{tags: []imageservice.RemoteTag{
			{Tag: "r1_2_3", Digest: "sha256:aaa"},
			{Tag: "r1_2_4", Digest: "sha256:bbb"},
		}}
		svc := imageservice.New(fetcher, nil, imageservice.Options{
			Registry:   "lighthouse.ceres",
			Repository: "library/sketchbook",
			FilterPolicy: imagefilter.Policy{
				Release: imagefilter.CategoryPolicy{Number: &number},
			},
		}, logr.Discard())

		Expect(svc.Refresh(context.Background())).To(Succeed())
		collection := svc.Collection()

		_, ok := collection.ImageForTagName("r1_2_4")
		Expect(ok).To(BeTrue(), "newest release survives a Number:1 bound")
		_, ok = collection.ImageForTagName("r1_2_3")
		Expect(ok).To(BeFalse(), "older release is dropped by a Number:1 bound")
	})

	It("marks images seen on nodes that already report them cached", func() {
		fetcher := &fakeFetcher{tags: []imageservice.RemoteTag{
			{Tag: "r1_2_3", Digest: "sha256:aaa"},
		}}
		lister := &fakeNodeLister{nodes: []corev1.Node{
			{
				ObjectMeta: metav1.ObjectMeta{Name: "node-1"},
				Status: corev1.NodeStatus{Images: []corev1.ContainerImage{
					{Names: []string{"lighthouse.ceres/library/sketchbook@sha256:aaa"}, SizeBytes: 1024},
				}},
			},
		}}
		svc := imageservice.New(fetcher, lister, imageservice.Options{
			Registry:   "lighthouse.ceres",
			Repository: "library/sketchbook",
		}, logr.Discard())

		Expect(svc.Refresh(context.Background())).To(Succeed())
		collection := svc.Collection()

		img, ok := collection.ImageForTagName("r1_2_3")
		Expect(ok).To(BeTrue())
		Expect(img.Nodes.Has("node-1")).To(BeTrue())
		Expect(*img.Size).To(Equal(int64(1024)))
	})

	It("reports recommended, latest, and prepulled state in the spawner menu", func() {
		fetcher := &fakeFetcher{tags: []imageservice.RemoteTag{
			{Tag: "r1_2_3", Digest: "sha256:aaa"},
			{Tag: "recommended", Digest: "sha256:aaa"},
		}}
		lister := &fakeNodeLister{nodes: []corev1.Node{
			{
				ObjectMeta: metav1.ObjectMeta{Name: "node-1"},
				Status: corev1.NodeStatus{Images: []corev1.ContainerImage{
					{Names: []string{"lighthouse.ceres/library/sketchbook@sha256:aaa"}},
				}},
			},
		}}
		svc := imageservice.New(fetcher, lister, imageservice.Options{
			Registry:       "lighthouse.ceres",
			Repository:     "library/sketchbook",
			AliasTags:      []string{"recommended"},
			RecommendedTag: "recommended",
		}, logr.Discard())

		Expect(svc.Refresh(context.Background())).To(Succeed())

		eligible := []imageservice.NodeEligibility{{Name: "node-1", Eligible: true}}
		menu := svc.SpawnerImages(eligible)
		Expect(menu.Recommended).NotTo(BeNil())
		Expect(menu.Recommended.Prepulled).To(BeTrue())

		status := svc.PrepullerStatus(eligible)
		Expect(status.Nodes).To(HaveLen(1))
		Expect(status.Nodes[0].Images).To(HaveLen(1))
		Expect(status.Nodes[0].Images[0].Present).To(BeTrue())
	})
})
