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

package lab

import (
	"context"
	"time"

	corev1 "k8s.io/api/core/v1"

	"github.com/lsst-sqre/nublado-controller/internal/eventstream"
	"github.com/lsst-sqre/nublado-controller/internal/k8sstorage"
)

// labPodName is the fixed name k8sobject.Build gives every lab's Pod.
const labPodName = "lab"

// Reconcile lists every namespace under the configured prefix and acts
// on the lab Pod it finds there: untracked Running/Pending pods get a
// synthesized State, and namespaces whose Pod has reached
// Succeeded/Failed are reaped. A namespace with no lab Pod is skipped,
// and a tracked user whose namespace or Pod is gone keeps its State. A
// namespace younger than the configured grace period is left alone so a
// spawn still in flight is never mistaken for orphaned residue.
func (m *Manager) Reconcile(ctx context.Context) error {
	namespaces, err := m.storage.ListNamespacesByPrefix(ctx, m.cfg.Namespace)
	if err != nil {
		return err
	}

	for _, ns := range namespaces {
		username, ok := k8sstorage.UsernameFromNamespace(ns.Name, m.cfg.Namespace)
		if !ok {
			continue
		}
		if time.Since(ns.CreationTimestamp.Time) < m.cfg.GracePeriod {
			continue
		}

		pod, found, err := m.storage.GetPod(ctx, ns.Name, labPodName)
		if err != nil {
			m.logger.Error(err, "reconciling lab namespace", "namespace", ns.Name)
			continue
		}
		if !found {
			continue
		}

		switch pod.Status.Phase {
		case corev1.PodRunning, corev1.PodPending:
			if _, tracked := m.GetState(username); !tracked {
				m.synthesizeState(username, ns.Name, pod)
			}
		case corev1.PodSucceeded, corev1.PodFailed:
			if err := m.storage.DeleteNamespace(ctx, ns.Name); err != nil {
				m.logger.Error(err, "reaping terminated lab namespace", "namespace", ns.Name)
				continue
			}
			m.removeUser(username)
		}
	}
	return nil
}

func (m *Manager) synthesizeState(username, namespace string, pod *corev1.Pod) {
	status := Pending
	if pod.Status.Phase == corev1.PodRunning {
		status = Running
	}

	st := &State{
		Username:    username,
		Namespace:   namespace,
		InternalURL: internalURL(namespace),
		Status:      status,
		CreatedAt:   pod.CreationTimestamp.Time,
	}

	log := eventstream.NewLog()
	log.Append(eventstream.Event{Kind: eventstream.Info, Message: "synthesized from existing namespace", Progress: 100})
	if status == Running {
		log.Append(eventstream.Event{Kind: eventstream.Complete, Progress: 100})
	}

	m.mu.Lock()
	m.states[username] = st
	m.logs[username] = log
	m.mu.Unlock()
}
