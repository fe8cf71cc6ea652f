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

package k8sstorage_test

import (
	"context"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	fakeclientset "k8s.io/client-go/kubernetes/fake"
	fakectrl "sigs.k8s.io/controller-runtime/pkg/client/fake"

	"github.com/lsst-sqre/nublado-controller/internal/k8sstorage"
)

var _ = Describe("Namespace lifecycle", func() {
	It("lists only namespaces matching the configured prefix", func() {
		ctrlClient := fakectrl.NewClientBuilder().WithObjects(
			&corev1.Namespace{ObjectMeta: metav1.ObjectMeta{Name: "nublado-alice"}},
			&corev1.Namespace{ObjectMeta: metav1.ObjectMeta{Name: "nublado-bob"}},
			&corev1.Namespace{ObjectMeta: metav1.ObjectMeta{Name: "kube-system"}},
		).Build()
		cs := fakeclientset.NewSimpleClientset()
		storage := k8sstorage.NewFromClients(ctrlClient, cs)

		list, err := storage.ListNamespacesByPrefix(context.Background(), "nublado")
		Expect(err).NotTo(HaveOccurred())
		Expect(list).To(HaveLen(2))
	})

	It("treats deleting an already-absent namespace as success", func() {
		ctrlClient := fakectrl.NewClientBuilder().Build()
		cs := fakeclientset.NewSimpleClientset()
		storage := k8sstorage.NewFromClients(ctrlClient, cs)

		err := storage.DeleteNamespace(context.Background(), "nublado-nobody")
		Expect(err).NotTo(HaveOccurred())
	})

	It("recovers the username from a namespace name given the prefix", func() {
		user, ok := k8sstorage.UsernameFromNamespace("nublado-rachel", "nublado")
		Expect(ok).To(BeTrue())
		Expect(user).To(Equal("rachel"))

		_, ok = k8sstorage.UsernameFromNamespace("kube-system", "nublado")
		Expect(ok).To(BeFalse())
	})
})
