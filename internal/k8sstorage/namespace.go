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
	"strings"

	corev1 "k8s.io/api/core/v1"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	ctrlclient "sigs.k8s.io/controller-runtime/pkg/client"

	"github.com/lsst-sqre/nublado-controller/internal/apierror"
	"github.com/lsst-sqre/nublado-controller/internal/k8sobject"
)

// ApplyLabObjects submits every object in objects, creating the
// namespace first (so everything else can be created inside it) and
// everything else in the order the builder returns it. An object that
// already exists is not overwritten: ApplyLabObjects is only ever called
// once per spawn, against a namespace Create just produced, so a
// conflict here means something else is racing this namespace and is
// surfaced as a KubernetesError rather than silently ignored; the
// objects after it are not created.
func (c *Client) ApplyLabObjects(ctx context.Context, objects *k8sobject.LabObjects) error {
	if err := c.createObject(ctx, objects.Namespace, "Namespace"); err != nil {
		return err
	}
	if err := c.createObject(ctx, objects.ResourceQuota, "ResourceQuota"); err != nil {
		return err
	}
	if err := c.createObject(ctx, objects.NetworkPolicy, "NetworkPolicy"); err != nil {
		return err
	}
	if err := c.createObject(ctx, objects.Service, "Service"); err != nil {
		return err
	}
	for _, secret := range objects.Secrets {
		if err := c.createObject(ctx, secret, "Secret"); err != nil {
			return err
		}
	}
	for _, cm := range objects.ConfigMaps {
		if err := c.createObject(ctx, cm, "ConfigMap"); err != nil {
			return err
		}
	}
	if err := c.createObject(ctx, objects.Pod, "Pod"); err != nil {
		return err
	}
	return nil
}

func (c *Client) createObject(ctx context.Context, obj ctrlclient.Object, kind string) error {
	if err := c.ctrl.Create(ctx, obj); err != nil {
		return apierror.WrapKubernetesError(kind, obj.GetNamespace(), obj.GetName(), httpStatus(err), err)
	}
	return nil
}

func httpStatus(err error) int {
	if status, ok := err.(apierrors.APIStatus); ok {
		return int(status.Status().Code)
	}
	return 0
}

// DeleteNamespace removes a lab's namespace (and, by Kubernetes
// garbage collection, everything in it). A namespace that's already
// gone is not an error: callers treat "gone" as the successful outcome.
func (c *Client) DeleteNamespace(ctx context.Context, name string) error {
	ns := &corev1.Namespace{}
	ns.Name = name
	if err := c.ctrl.Delete(ctx, ns); err != nil {
		if apierrors.IsNotFound(err) {
			return nil
		}
		return apierror.WrapKubernetesError("Namespace", "", name, httpStatus(err), err)
	}
	return nil
}

// GetNamespace fetches a single namespace by name, returning ok=false
// (not an error) if it doesn't exist.
func (c *Client) GetNamespace(ctx context.Context, name string) (*corev1.Namespace, bool, error) {
	ns := &corev1.Namespace{}
	err := c.ctrl.Get(ctx, ctrlclient.ObjectKey{Name: name}, ns)
	if apierrors.IsNotFound(err) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, apierror.WrapKubernetesError("Namespace", "", name, httpStatus(err), err)
	}
	return ns, true, nil
}

// ListNamespacesByPrefix returns every namespace whose name starts with
// prefix + "-", the shape the reconciler walks to infer which users
// currently have a lab namespace in the cluster.
func (c *Client) ListNamespacesByPrefix(ctx context.Context, prefix string) ([]corev1.Namespace, error) {
	list := &corev1.NamespaceList{}
	if err := c.ctrl.List(ctx, list); err != nil {
		return nil, apierror.WrapKubernetesError("Namespace", "", "", httpStatus(err), err)
	}
	want := prefix + "-"
	out := make([]corev1.Namespace, 0, len(list.Items))
	for _, ns := range list.Items {
		if strings.HasPrefix(ns.Name, want) {
			out = append(out, ns)
		}
	}
	return out, nil
}

// UsernameFromNamespace strips prefix + "-" from a namespace name to
// recover the username the reconciler should attribute it to. ok is
// false if ns doesn't carry the expected prefix at all.
func UsernameFromNamespace(ns, prefix string) (string, bool) {
	want := prefix + "-"
	if !strings.HasPrefix(ns, want) {
		return "", false
	}
	return strings.TrimPrefix(ns, want), true
}
