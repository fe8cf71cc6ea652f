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

package lab_test

import (
	"context"
	"errors"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/go-logr/logr"
	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"

	"github.com/lsst-sqre/nublado-controller/internal/apierror"
	"github.com/lsst-sqre/nublado-controller/internal/config"
	"github.com/lsst-sqre/nublado-controller/internal/eventstream"
	"github.com/lsst-sqre/nublado-controller/internal/identity"
	"github.com/lsst-sqre/nublado-controller/internal/image"
	"github.com/lsst-sqre/nublado-controller/internal/imagetag"
	"github.com/lsst-sqre/nublado-controller/internal/k8sobject"
	"github.com/lsst-sqre/nublado-controller/internal/lab"
	"github.com/lsst-sqre/nublado-controller/internal/notifier"
)

var _ = Describe("Manager", func() {
	var (
		cfg  config.LabConfig
		user *identity.User
		spec lab.Spec
	)

	BeforeEach(func() {
		cfg = config.LabConfig{
			Namespace:     "nublado",
			SpawnTimeout:  2 * time.Second,
			DeleteTimeout: time.Second,
			GracePeriod:   200 * time.Millisecond,
			Sizes: map[string]config.SizeConfig{
				"Medium": {CPU: 1, Memory: "2Gi"},
			},
		}
		user = &identity.User{
			UserInfo: identity.UserInfo{Username: "rachel", UID: 1000, GID: 1000},
			Token:    "token-of-affection",
		}
		img := image.FromTag("registry.example.org", "library/sketchbook", imagetag.FromString("w_2024_01"), "sha256:aaa")
		spec = lab.Spec{Options: k8sobject.LabOptions{Size: "Medium"}, Image: img}
	})

	It("spawns a lab and publishes the canonical progress milestones", func() {
		storage := newFakeStorage()
		mgr := lab.New(storage, cfg, notifier.New(""), logr.Discard())

		Expect(mgr.Create(context.Background(), user, spec)).To(Succeed())

		ns := "nublado-rachel"
		Eventually(func() bool { return storage.hasWatcher(ns, "lab") }).Should(BeTrue())
		storage.sendPodPhase(ns, "lab", corev1.PodRunning)

		cursor, err := mgr.EventsFor("rachel")
		Expect(err).NotTo(HaveOccurred())

		var kinds []eventstream.Kind
		var progresses []int
		for {
			ev, ok := cursor.Next(context.Background())
			if !ok {
				break
			}
			kinds = append(kinds, ev.Kind)
			progresses = append(progresses, ev.Progress)
		}

		Expect(kinds).To(Equal([]eventstream.Kind{
			eventstream.Info, eventstream.Info, eventstream.Info,
			eventstream.Info, eventstream.Info, eventstream.Complete,
		}))
		Expect(progresses).To(Equal([]int{2, 10, 20, 45, 75, 100}))

		st, ok := mgr.GetState("rachel")
		Expect(ok).To(BeTrue())
		Expect(st.Status).To(Equal(lab.Running))
	})

	It("returns conflict when creating over a running lab", func() {
		storage := newFakeStorage()
		mgr := lab.New(storage, cfg, notifier.New(""), logr.Discard())

		Expect(mgr.Create(context.Background(), user, spec)).To(Succeed())

		err := mgr.Create(context.Background(), user, spec)
		Expect(err).To(HaveOccurred())
		var conflict *apierror.ConflictError
		Expect(errors.As(err, &conflict)).To(BeTrue())
	})

	It("deletes orphaned residue before a fresh create on failed state", func() {
		storage := newFakeStorage()
		mgr := lab.New(storage, cfg, notifier.New(""), logr.Discard())

		Expect(mgr.Create(context.Background(), user, spec)).To(Succeed())

		ns := "nublado-rachel"
		Eventually(func() bool { return storage.hasWatcher(ns, "lab") }).Should(BeTrue())
		storage.sendPodPhase(ns, "lab", corev1.PodFailed)

		Eventually(func() lab.Status {
			st, _ := mgr.GetState("rachel")
			return st.Status
		}).Should(Equal(lab.Failed))

		Expect(mgr.Create(context.Background(), user, spec)).To(Succeed())

		st, ok := mgr.GetState("rachel")
		Expect(ok).To(BeTrue())
		Expect(st.Status).To(Equal(lab.Pending))

		cursor, err := mgr.EventsFor("rachel")
		Expect(err).NotTo(HaveOccurred())
		ev, ok := cursor.Next(context.Background())
		Expect(ok).To(BeTrue())
		Expect(ev.Message).To(Equal("Deleting existing orphaned lab"))
		Expect(ev.Progress).To(Equal(1))
	})

	It("cancels an in-flight spawn when deleted while pending", func() {
		storage := newFakeStorage()
		mgr := lab.New(storage, cfg, notifier.New(""), logr.Discard())

		Expect(mgr.Create(context.Background(), user, spec)).To(Succeed())
		Expect(mgr.Delete(context.Background(), "rachel")).To(Succeed())

		Eventually(func() lab.Status {
			st, _ := mgr.GetState("rachel")
			return st.Status
		}).Should(Equal(lab.Terminated))

		Expect(storage.deletedNames()).To(ContainElement("nublado-rachel"))
	})

	It("fails a lab that does not become running before the spawn timeout", func() {
		storage := newFakeStorage()
		cfg.SpawnTimeout = 30 * time.Millisecond
		mgr := lab.New(storage, cfg, notifier.New(""), logr.Discard())

		Expect(mgr.Create(context.Background(), user, spec)).To(Succeed())

		Eventually(func() lab.Status {
			st, _ := mgr.GetState("rachel")
			return st.Status
		}, "2s").Should(Equal(lab.Failed))

		st, _ := mgr.GetState("rachel")
		Expect(st.Error).To(ContainSubstring("timed out"))
	})

	It("rejects an unknown lab size", func() {
		storage := newFakeStorage()
		mgr := lab.New(storage, cfg, notifier.New(""), logr.Discard())

		bad := lab.Spec{Options: k8sobject.LabOptions{Size: "Gigantic"}, Image: spec.Image}
		err := mgr.Create(context.Background(), user, bad)
		Expect(err).To(HaveOccurred())
		var input *apierror.InputError
		Expect(errors.As(err, &input)).To(BeTrue())
	})

	It("synthesizes state for an untracked running namespace", func() {
		storage := newFakeStorage()
		mgr := lab.New(storage, cfg, notifier.New(""), logr.Discard())

		old := metav1.NewTime(time.Now().Add(-time.Hour))
		storage.setNamespaces([]corev1.Namespace{
			{ObjectMeta: metav1.ObjectMeta{Name: "nublado-sam", CreationTimestamp: old}},
		})
		storage.putPod("nublado-sam", "lab", corev1.PodRunning, old)

		Expect(mgr.Reconcile(context.Background())).To(Succeed())

		st, ok := mgr.GetState("sam")
		Expect(ok).To(BeTrue())
		Expect(st.Status).To(Equal(lab.Running))
	})

	It("reaps a namespace whose pod has succeeded", func() {
		storage := newFakeStorage()
		mgr := lab.New(storage, cfg, notifier.New(""), logr.Discard())

		old := metav1.NewTime(time.Now().Add(-time.Hour))
		storage.setNamespaces([]corev1.Namespace{
			{ObjectMeta: metav1.ObjectMeta{Name: "nublado-sam", CreationTimestamp: old}},
		})
		storage.putPod("nublado-sam", "lab", corev1.PodSucceeded, old)

		Expect(mgr.Reconcile(context.Background())).To(Succeed())
		Expect(storage.deletedNames()).To(ContainElement("nublado-sam"))
	})

	It("leaves a freshly created namespace alone", func() {
		storage := newFakeStorage()
		mgr := lab.New(storage, cfg, notifier.New(""), logr.Discard())

		recent := metav1.Now()
		storage.setNamespaces([]corev1.Namespace{
			{ObjectMeta: metav1.ObjectMeta{Name: "nublado-sam", CreationTimestamp: recent}},
		})
		storage.putPod("nublado-sam", "lab", corev1.PodSucceeded, recent)

		Expect(mgr.Reconcile(context.Background())).To(Succeed())
		Expect(storage.deletedNames()).To(BeEmpty())
	})
})
