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
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/go-logr/logr"
	corev1 "k8s.io/api/core/v1"
	"k8s.io/apimachinery/pkg/watch"

	"github.com/lsst-sqre/nublado-controller/internal/apierror"
	"github.com/lsst-sqre/nublado-controller/internal/config"
	"github.com/lsst-sqre/nublado-controller/internal/eventstream"
	"github.com/lsst-sqre/nublado-controller/internal/identity"
	"github.com/lsst-sqre/nublado-controller/internal/k8sobject"
	"github.com/lsst-sqre/nublado-controller/internal/notifier"
)

// Storage is the subset of internal/k8sstorage.Client the manager needs
// to create, watch, and reap a user's lab namespace.
type Storage interface {
	ApplyLabObjects(ctx context.Context, objects *k8sobject.LabObjects) error
	DeleteNamespace(ctx context.Context, name string) error
	ListNamespacesByPrefix(ctx context.Context, prefix string) ([]corev1.Namespace, error)
	GetPod(ctx context.Context, namespace, name string) (*corev1.Pod, bool, error)
	WatchPod(ctx context.Context, namespace, name string) (<-chan watch.Event, error)
	WatchEventsForPod(ctx context.Context, namespace, name string) (<-chan watch.Event, error)
}

// Manager drives every user's lab through its lifecycle and is the
// implementation behind spec.md's create/delete/get_state/list_users/
// events_for/reconcile contract.
type Manager struct {
	storage  Storage
	cfg      config.LabConfig
	notifier *notifier.Notifier
	logger   logr.Logger

	locks userLocks

	mu      sync.RWMutex
	states  map[string]*State
	logs    map[string]*eventstream.Log
	cancels map[string]context.CancelFunc
}

// New builds a Manager. notif may be a Notifier built from an empty
// webhook URL, making Slack alerting a no-op.
func New(storage Storage, cfg config.LabConfig, notif *notifier.Notifier, logger logr.Logger) *Manager {
	return &Manager{
		storage:  storage,
		cfg:      cfg,
		notifier: notif,
		logger:   logger,
		states:   make(map[string]*State),
		logs:     make(map[string]*eventstream.Log),
		cancels:  make(map[string]context.CancelFunc),
	}
}

// Create starts a lab spawn for user. It returns once the spawn has been
// recorded as Pending and its background task launched; it does not wait
// for the Pod to become Running. Concurrent Create calls for the same
// user serialize on that user's lock: a Pending or Running lab causes
// apierror.ConflictError, while Failed/Terminated residue is deleted
// before a fresh spawn proceeds.
func (m *Manager) Create(ctx context.Context, user *identity.User, spec Spec) error {
	unlock := m.locks.lock(user.Username)
	defer unlock()

	if !user.CanSpawn() {
		return &apierror.AuthError{Message: "quota does not permit spawning a lab", Forbidden: true}
	}

	quantum, ok := m.cfg.SpecSizes()[spec.Options.Size]
	if !ok {
		return apierror.NewInputError(fmt.Sprintf("unknown lab size %q", spec.Options.Size), nil)
	}

	log := eventstream.NewLog()

	if existing := m.stateFor(user.Username); existing != nil {
		switch existing.Status {
		case Pending, Running:
			return &apierror.ConflictError{Message: fmt.Sprintf("lab already exists for user %s", user.Username)}
		default:
			log.Append(eventstream.Event{Kind: eventstream.Info, Message: "Deleting existing orphaned lab", Progress: 1})
			cctx, cancel := context.WithTimeout(context.Background(), m.cfg.DeleteTimeout)
			err := m.storage.DeleteNamespace(cctx, existing.Namespace)
			cancel()
			if err != nil {
				return err
			}
			m.removeUser(user.Username)
		}
	}

	namespace := k8sobject.NamespaceName(m.cfg.Namespace, user.Username)
	state := &State{
		Username:    user.Username,
		Options:     spec.Options,
		Image:       spec.Image,
		Quantum:     quantum,
		Namespace:   namespace,
		InternalURL: internalURL(namespace),
		Status:      Pending,
		CreatedAt:   time.Now(),
	}
	if user.Quota != nil {
		state.Quota = user.Quota.Notebook
	}

	spawnCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), m.cfg.SpawnTimeout)

	m.mu.Lock()
	m.states[user.Username] = state
	m.logs[user.Username] = log
	m.cancels[user.Username] = cancel
	m.mu.Unlock()

	log.Append(eventstream.Event{Kind: eventstream.Info, Message: "Lab creation initiated", Progress: 2})

	go m.runCreate(spawnCtx, user, spec, quantum, log)
	return nil
}

// Delete tears a user's lab down. It is idempotent: a second concurrent
// Delete against the same user observes Terminating and returns success
// without scheduling a second cleanup; a Delete against a Pending lab
// cancels the in-flight spawn instead of waiting for it to finish.
func (m *Manager) Delete(ctx context.Context, username string) error {
	unlock := m.locks.lock(username)
	defer unlock()

	m.mu.Lock()
	st, ok := m.states[username]
	if !ok {
		m.mu.Unlock()
		return &apierror.NotFoundError{Message: fmt.Sprintf("no lab for user %s", username)}
	}

	if st.Status == Terminating {
		m.mu.Unlock()
		return nil
	}

	if st.Status == Pending {
		cancel := m.cancels[username]
		m.mu.Unlock()
		if cancel != nil {
			cancel()
		}
		return nil
	}

	st.Status = Terminating
	namespace := st.Namespace
	m.mu.Unlock()

	go m.runDelete(context.WithoutCancel(ctx), username, namespace)
	return nil
}

func (m *Manager) runDelete(ctx context.Context, username, namespace string) {
	cctx, cancel := context.WithTimeout(ctx, m.cfg.DeleteTimeout)
	defer cancel()

	if err := m.storage.DeleteNamespace(cctx, namespace); err != nil {
		m.logger.Error(err, "deleting lab namespace", "user", username)
		apiErr, ok := err.(apierror.APIError)
		if !ok {
			apiErr = apierror.NewUpstreamError("lab", 0, err)
		}
		m.notifier.Notify(cctx, apiErr, m.logger)
		return
	}
	m.removeUser(username)
}

// GetState returns a snapshot of username's current lab state.
func (m *Manager) GetState(username string) (*State, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	st, ok := m.states[username]
	if !ok {
		return nil, false
	}
	return st.snapshot(), true
}

// ListUsers returns every username with a tracked lab, sorted.
func (m *Manager) ListUsers() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]string, 0, len(m.states))
	for u := range m.states {
		out = append(out, u)
	}
	sort.Strings(out)
	return out
}

// EventsFor returns a fresh Cursor onto username's progress log.
func (m *Manager) EventsFor(username string) (*eventstream.Cursor, error) {
	m.mu.RLock()
	log, ok := m.logs[username]
	m.mu.RUnlock()
	if !ok {
		return nil, &apierror.NotFoundError{Message: fmt.Sprintf("no lab for user %s", username)}
	}
	return log.NewCursor(), nil
}

func (m *Manager) stateFor(username string) *State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.states[username]
}

func (m *Manager) removeUser(username string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if log, ok := m.logs[username]; ok {
		log.Close()
	}
	delete(m.states, username)
	delete(m.logs, username)
	delete(m.cancels, username)
}

func (m *Manager) labSpec(opts k8sobject.LabOptions) k8sobject.LabSpec {
	return k8sobject.LabSpec{
		Options:              opts,
		NamespacePrefix:      m.cfg.Namespace,
		PullSecretName:       m.cfg.PullSecretName,
		HomeDirectorySchema:  m.cfg.HomeDirectorySchema,
		FileBrowserRoot:      m.cfg.FileBrowserRoot,
		TmpOnDisk:            m.cfg.TmpOnDisk,
		Command:              m.cfg.Command,
		ConfigDir:            m.cfg.ConfigDir,
		SecretMountPath:      m.cfg.SecretMountPath,
		Sizes:                m.cfg.SpecSizes(),
		ExtraAnnotations:     m.cfg.ExtraAnnotations,
		ExtraSecrets:         m.cfg.SpecExtraSecrets(),
		CPUGuaranteeFraction: m.cfg.CPUGuaranteeFraction,
	}
}

// internalURL is the in-cluster address of a lab's notebook Service,
// matching the Service name ("lab") and port (8888) k8sobject.Build
// produces.
func internalURL(namespace string) string {
	return fmt.Sprintf("http://lab.%s.svc.cluster.local:8888", namespace)
}
