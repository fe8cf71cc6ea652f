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

// Package k8sstorage wraps the controller-runtime/client-go clients this
// controller needs against its own cluster: submitting a lab's objects,
// watching a Pod's phase and the Kubernetes events about it, listing
// namespaces and nodes for the reconciler and prepuller, and creating
// and deleting namespaces and Pods. Every method takes a context and every error that reaches the
// caller is an *apierror.KubernetesError carrying object identity, per
// spec.md §7.
package k8sstorage

import (
	"fmt"

	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/rest"
	ctrlclient "sigs.k8s.io/controller-runtime/pkg/client"
)

// Client is the storage adapter's handle on the cluster: a typed
// controller-runtime client for CRUD against objects whose scheme we
// control, plus the generated clientset for the narrow set of calls
// (watch, events) controller-runtime doesn't cover as conveniently.
type Client struct {
	ctrl      ctrlclient.Client
	clientset kubernetes.Interface
}

// New builds a Client from a rest.Config, registering the object kinds
// the builder produces (core/v1, networking/v1) against ctrlclient's
// default scheme.
func New(cfg *rest.Config) (*Client, error) {
	c, err := ctrlclient.New(cfg, ctrlclient.Options{})
	if err != nil {
		return nil, fmt.Errorf("building controller-runtime client: %w", err)
	}
	cs, err := kubernetes.NewForConfig(cfg)
	if err != nil {
		return nil, fmt.Errorf("building clientset: %w", err)
	}
	return &Client{ctrl: c, clientset: cs}, nil
}

// NewFromClients wraps already-constructed clients directly, for tests
// that substitute a fake controller-runtime client and a fake clientset.
func NewFromClients(c ctrlclient.Client, cs kubernetes.Interface) *Client {
	return &Client{ctrl: c, clientset: cs}
}
