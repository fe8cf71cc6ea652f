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

package httpapi_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"

	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/watch"

	"github.com/lsst-sqre/nublado-controller/internal/k8sobject"
)

// fakeStorage is a minimal lab.Storage that applies a Pod and
// immediately reports it Running, so Manager.Create's background
// goroutine settles without a real cluster.
type fakeStorage struct {
	mu         sync.Mutex
	deleted    []string
	applyCount int
}

func (f *fakeStorage) ApplyLabObjects(ctx context.Context, objects *k8sobject.LabObjects) error {
	f.mu.Lock()
	f.applyCount++
	f.mu.Unlock()
	return nil
}

func (f *fakeStorage) DeleteNamespace(ctx context.Context, name string) error {
	f.mu.Lock()
	f.deleted = append(f.deleted, name)
	f.mu.Unlock()
	return nil
}

func (f *fakeStorage) ListNamespacesByPrefix(ctx context.Context, prefix string) ([]corev1.Namespace, error) {
	return nil, nil
}

func (f *fakeStorage) GetPod(ctx context.Context, namespace, name string) (*corev1.Pod, bool, error) {
	return nil, false, nil
}

func (f *fakeStorage) WatchPod(ctx context.Context, namespace, name string) (<-chan watch.Event, error) {
	ch := make(chan watch.Event, 1)
	ch <- watch.Event{Type: watch.Modified, Object: &corev1.Pod{
		ObjectMeta: metav1.ObjectMeta{Namespace: namespace, Name: name},
		Status:     corev1.PodStatus{Phase: corev1.PodRunning},
	}}
	return ch, nil
}

func (f *fakeStorage) WatchEventsForPod(ctx context.Context, namespace, name string) (<-chan watch.Event, error) {
	ch := make(chan watch.Event)
	close(ch)
	return ch, nil
}

// fakeNodeLister is a configurable imageservice.NodeLister.
type fakeNodeLister struct {
	nodes []corev1.Node
	err   error
}

func (f *fakeNodeLister) ListNodes(ctx context.Context) ([]corev1.Node, error) {
	return f.nodes, f.err
}

// newIdentityServer serves Gafaelfawr-shaped user-info responses keyed
// by bearer token, so tests can authenticate as any of several users.
func newIdentityServer(usersByToken map[string]string) *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := r.Header.Get("Authorization")
		const prefix = "Bearer "
		if len(token) > len(prefix) {
			token = token[len(prefix):]
		}
		username, ok := usersByToken[token]
		if !ok {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"username":"` + username + `","uid":1000,"gid":1000,"groups":[]}`))
	}))
}
