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
	"sync"

	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/watch"

	"github.com/lsst-sqre/nublado-controller/internal/k8sobject"
)

// fakeStorage is an in-memory stand-in for lab.Storage: ApplyLabObjects
// records the rendered Pod, GetPod/WatchPod serve it back, and
// sendPodPhase lets a test drive the watch channel as if Kubernetes had
// reported a phase transition.
type fakeStorage struct {
	mu                sync.Mutex
	applyErr          error
	applyCount        int
	pods              map[string]*corev1.Pod
	podWatchers       map[string]chan watch.Event
	namespaces        []corev1.Namespace
	deletedNamespaces []string
}

func newFakeStorage() *fakeStorage {
	return &fakeStorage{
		pods:        make(map[string]*corev1.Pod),
		podWatchers: make(map[string]chan watch.Event),
	}
}

func podKey(namespace, name string) string { return namespace + "/" + name }

func (f *fakeStorage) ApplyLabObjects(ctx context.Context, objects *k8sobject.LabObjects) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.applyErr != nil {
		return f.applyErr
	}
	f.applyCount++
	f.pods[podKey(objects.Pod.Namespace, objects.Pod.Name)] = objects.Pod.DeepCopy()
	return nil
}

func (f *fakeStorage) DeleteNamespace(ctx context.Context, name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deletedNamespaces = append(f.deletedNamespaces, name)
	return nil
}

func (f *fakeStorage) ListNamespacesByPrefix(ctx context.Context, prefix string) ([]corev1.Namespace, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]corev1.Namespace(nil), f.namespaces...), nil
}

func (f *fakeStorage) GetPod(ctx context.Context, namespace, name string) (*corev1.Pod, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	pod, ok := f.pods[podKey(namespace, name)]
	return pod, ok, nil
}

func (f *fakeStorage) WatchPod(ctx context.Context, namespace, name string) (<-chan watch.Event, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	ch := make(chan watch.Event, 1)
	f.podWatchers[podKey(namespace, name)] = ch
	return ch, nil
}

func (f *fakeStorage) WatchEventsForPod(ctx context.Context, namespace, name string) (<-chan watch.Event, error) {
	ch := make(chan watch.Event)
	close(ch)
	return ch, nil
}

func (f *fakeStorage) hasWatcher(namespace, name string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.podWatchers[podKey(namespace, name)]
	return ok
}

func (f *fakeStorage) sendPodPhase(namespace, name string, phase corev1.PodPhase) {
	f.mu.Lock()
	ch, ok := f.podWatchers[podKey(namespace, name)]
	f.mu.Unlock()
	if !ok {
		return
	}
	pod := &corev1.Pod{
		ObjectMeta: metav1.ObjectMeta{Namespace: namespace, Name: name},
		Status:     corev1.PodStatus{Phase: phase},
	}
	ch <- watch.Event{Type: watch.Modified, Object: pod}
}

func (f *fakeStorage) deletedNames() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.deletedNamespaces...)
}

func (f *fakeStorage) setNamespaces(ns []corev1.Namespace) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.namespaces = ns
}

func (f *fakeStorage) putPod(namespace, name string, phase corev1.PodPhase, created metav1.Time) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pods[podKey(namespace, name)] = &corev1.Pod{
		ObjectMeta: metav1.ObjectMeta{Namespace: namespace, Name: name, CreationTimestamp: created},
		Status:     corev1.PodStatus{Phase: phase},
	}
}
