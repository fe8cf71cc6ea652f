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

package k8sstorage

import (
	"context"

	corev1 "k8s.io/api/core/v1"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/fields"
	"k8s.io/apimachinery/pkg/watch"
	ctrlclient "sigs.k8s.io/controller-runtime/pkg/client"

	"github.com/lsst-sqre/nublado-controller/internal/apierror"
)

// GetPod fetches a single Pod, returning ok=false (not an error) if it
// doesn't exist.
func (c *Client) GetPod(ctx context.Context, namespace, name string) (*corev1.Pod, bool, error) {
	pod := &corev1.Pod{}
	err := c.ctrl.Get(ctx, ctrlclient.ObjectKey{Namespace: namespace, Name: name}, pod)
	if apierrors.IsNotFound(err) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, apierror.WrapKubernetesError("Pod", namespace, name, httpStatus(err), err)
	}
	return pod, true, nil
}

// CreatePod submits pod, returning a KubernetesError naming pod's
// identity on failure.
func (c *Client) CreatePod(ctx context.Context, pod *corev1.Pod) error {
	return c.createObject(ctx, pod, "Pod")
}

// DeletePod removes a Pod by name. A Pod that's already gone is not an
// error.
func (c *Client) DeletePod(ctx context.Context, namespace, name string) error {
	pod := &corev1.Pod{}
	pod.Namespace = namespace
	pod.Name = name
	if err := c.ctrl.Delete(ctx, pod); err != nil {
		if apierrors.IsNotFound(err) {
			return nil
		}
		return apierror.WrapKubernetesError("Pod", namespace, name, httpStatus(err), err)
	}
	return nil
}

// WatchPod returns a channel of watch.Events for the single Pod named
// name in namespace, implemented as the teacher's generated clientsets
// would: a field-selector watch scoped to one object's metadata.name.
// The caller should list (via GetPod) before watching and after any
// watch error to tolerate the watch being dropped and resumed, per
// spec.md §9's "Kubernetes watches" design note — WatchPod itself does
// not retry; that's the lab manager's job.
func (c *Client) WatchPod(ctx context.Context, namespace, name string) (<-chan watch.Event, error) {
	w, err := c.clientset.CoreV1().Pods(namespace).Watch(ctx, metav1.ListOptions{
		FieldSelector: fields.OneTermEqualSelector("metadata.name", name).String(),
	})
	if err != nil {
		return nil, apierror.WrapKubernetesError("Pod", namespace, name, httpStatus(err), err)
	}
	return w.ResultChan(), nil
}

// ListEventsForPod returns the Kubernetes events recorded against a Pod,
// newest information last (the API server's natural order), for the lab
// manager to translate into progress events (spec.md §4.1: "each
// Kubernetes event pertaining to the Pod").
func (c *Client) ListEventsForPod(ctx context.Context, namespace, podName string) ([]corev1.Event, error) {
	list, err := c.clientset.CoreV1().Events(namespace).List(ctx, metav1.ListOptions{
		FieldSelector: fields.AndSelectors(
			fields.OneTermEqualSelector("involvedObject.name", podName),
			fields.OneTermEqualSelector("involvedObject.kind", "Pod"),
		).String(),
	})
	if err != nil {
		return nil, apierror.WrapKubernetesError("Event", namespace, podName, httpStatus(err), err)
	}
	return list.Items, nil
}

// WatchEventsForPod streams Kubernetes events about a Pod as they're
// recorded, for the lab manager to translate into live progress events
// without polling.
func (c *Client) WatchEventsForPod(ctx context.Context, namespace, podName string) (<-chan watch.Event, error) {
	w, err := c.clientset.CoreV1().Events(namespace).Watch(ctx, metav1.ListOptions{
		FieldSelector: fields.AndSelectors(
			fields.OneTermEqualSelector("involvedObject.name", podName),
			fields.OneTermEqualSelector("involvedObject.kind", "Pod"),
		).String(),
	})
	if err != nil {
		return nil, apierror.WrapKubernetesError("Event", namespace, podName, httpStatus(err), err)
	}
	return w.ResultChan(), nil
}
