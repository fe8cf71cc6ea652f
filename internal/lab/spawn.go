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
	"errors"
	"fmt"
	"time"

	corev1 "k8s.io/api/core/v1"
	"k8s.io/apimachinery/pkg/watch"

	"github.com/lsst-sqre/nublado-controller/internal/apierror"
	"github.com/lsst-sqre/nublado-controller/internal/eventstream"
	"github.com/lsst-sqre/nublado-controller/internal/identity"
	"github.com/lsst-sqre/nublado-controller/internal/k8sobject"
)

// runCreate is the background task behind Create: it builds and submits
// a user's lab objects, relays Pod events as progress, and drives the
// user's state to Running, Failed, or (on cancellation) Terminated.
// ctx carries the spawn timeout and is cancelled early by Delete if the
// lab is still Pending.
func (m *Manager) runCreate(ctx context.Context, user *identity.User, spec Spec, quantum k8sobject.ResourceQuantum, log *eventstream.Log) {
	username := user.Username
	defer func() {
		m.mu.Lock()
		delete(m.cancels, username)
		m.mu.Unlock()
	}()

	objects, err := k8sobject.Build(user, m.labSpec(spec.Options), spec.Image)
	if err != nil {
		m.teardownAndFail(username, log, err)
		return
	}

	if err := m.storage.ApplyLabObjects(ctx, objects); err != nil {
		if ctx.Err() != nil {
			m.handleSpawnCtxDone(ctx, username, log)
			return
		}
		m.teardownAndFail(username, log, err)
		return
	}

	log.Append(eventstream.Event{Kind: eventstream.Info, Message: "Namespace created", Progress: 10})
	log.Append(eventstream.Event{Kind: eventstream.Info, Message: "Secrets and configmaps built", Progress: 20})
	log.Append(eventstream.Event{Kind: eventstream.Info, Message: "Pod requested", Progress: 45})

	relayCtx, stopRelay := context.WithCancel(ctx)
	defer stopRelay()
	if events, err := m.storage.WatchEventsForPod(relayCtx, objects.Pod.Namespace, objects.Pod.Name); err == nil {
		go relayPodEvents(relayCtx, log, events)
	}

	podEvents, err := m.storage.WatchPod(ctx, objects.Pod.Namespace, objects.Pod.Name)
	if err != nil {
		m.teardownAndFail(username, log, err)
		return
	}

	for {
		select {
		case <-ctx.Done():
			m.handleSpawnCtxDone(ctx, username, log)
			return
		case ev, ok := <-podEvents:
			if !ok {
				return
			}
			pod, ok := ev.Object.(*corev1.Pod)
			if !ok {
				continue
			}
			switch pod.Status.Phase {
			case corev1.PodRunning:
				m.markRunning(username, log)
				return
			case corev1.PodFailed:
				m.teardownAndFail(username, log, fmt.Errorf("pod failed: %s", pod.Status.Reason))
				return
			case corev1.PodSucceeded:
				m.teardownAndFail(username, log, fmt.Errorf("pod exited before becoming ready"))
				return
			}
		}
	}
}

// relayPodEvents translates each Kubernetes event recorded against the
// spawning Pod into an info progress event, per spec.md §4.1's "each
// Kubernetes event pertaining to the Pod". Progress climbs from just
// after "Pod requested" toward "Pod successfully spawned" but never
// reaches or passes it; relayPodEvents stops when ctx is done, which
// runCreate arranges to happen no later than the Pod reaching a terminal
// phase.
func relayPodEvents(ctx context.Context, log *eventstream.Log, events <-chan watch.Event) {
	progress := 50
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			kubeEvent, ok := ev.Object.(*corev1.Event)
			if !ok {
				continue
			}
			if progress < 70 {
				progress += 5
			}
			log.Append(eventstream.Event{Kind: eventstream.Info, Message: kubeEvent.Message, Progress: progress})
		}
	}
}

func (m *Manager) markRunning(username string, log *eventstream.Log) {
	m.mu.Lock()
	if st, ok := m.states[username]; ok {
		st.Status = Running
	}
	m.mu.Unlock()

	log.Append(eventstream.Event{Kind: eventstream.Info, Message: fmt.Sprintf("Pod successfully spawned for %s", username), Progress: 75})
	log.Append(eventstream.Event{Kind: eventstream.Complete, Progress: 100})
}

// handleSpawnCtxDone distinguishes a Delete-triggered cancellation
// (quiet teardown, no alert, no failure recorded) from spawn-timeout
// expiry (a typed TimeoutError, alerted and recorded as Failed).
func (m *Manager) handleSpawnCtxDone(ctx context.Context, username string, log *eventstream.Log) {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		startedAt := time.Now()
		if st, ok := m.GetState(username); ok {
			startedAt = st.CreatedAt
		}
		m.teardownAndFail(username, log, apierror.NewTimeoutError("lab creation", username, startedAt))
		return
	}
	m.teardownQuiet(username, log)
}

// teardownAndFail records the failure, reaps the namespace, and fires an
// async Slack alert.
func (m *Manager) teardownAndFail(username string, log *eventstream.Log, cause error) {
	m.mu.Lock()
	namespace := ""
	if st, ok := m.states[username]; ok {
		st.Status = Failed
		st.Error = cause.Error()
		namespace = st.Namespace
	}
	m.mu.Unlock()

	log.Append(eventstream.Event{Kind: eventstream.Error, Message: cause.Error(), Progress: 0})
	log.Append(eventstream.Event{Kind: eventstream.Failed, Message: cause.Error(), Progress: 100})

	cctx, cancel := context.WithTimeout(context.Background(), m.cfg.DeleteTimeout)
	defer cancel()
	if namespace != "" {
		if err := m.storage.DeleteNamespace(cctx, namespace); err != nil {
			m.logger.Error(err, "reaping namespace after failed spawn", "user", username)
		}
	}

	apiErr, ok := cause.(apierror.APIError)
	if !ok {
		apiErr = apierror.NewUpstreamError("lab", 0, cause)
	}
	m.notifier.Notify(cctx, apiErr, m.logger)
}

// teardownQuiet unwinds a spawn cancelled by a concurrent Delete while
// Pending. Per spec.md §5, a cancelled spawn is not a failure: no Slack
// alert, and the final state is Terminated rather than Failed.
func (m *Manager) teardownQuiet(username string, log *eventstream.Log) {
	m.mu.Lock()
	namespace := ""
	if st, ok := m.states[username]; ok {
		st.Status = Terminated
		namespace = st.Namespace
	}
	m.mu.Unlock()

	log.Append(eventstream.Event{Kind: eventstream.Failed, Message: "lab creation cancelled", Progress: 100})

	cctx, cancel := context.WithTimeout(context.Background(), m.cfg.DeleteTimeout)
	defer cancel()
	if namespace != "" {
		if err := m.storage.DeleteNamespace(cctx, namespace); err != nil {
			m.logger.Error(err, "reaping namespace after cancelled spawn", "user", username)
		}
	}
}
