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

// Package lab is the per-user lab lifecycle manager: it drives each
// user's namespace through Pending/Running/Terminating/Terminated/Failed,
// publishes progress onto that user's internal/eventstream.Log, and
// reconciles in-memory state against what the cluster actually holds.
package lab

import (
	"time"

	"github.com/lsst-sqre/nublado-controller/internal/identity"
	"github.com/lsst-sqre/nublado-controller/internal/image"
	"github.com/lsst-sqre/nublado-controller/internal/k8sobject"
)

// Status is one state in the per-user lab lifecycle.
type Status string

const (
	Pending     Status = "pending"
	Running     Status = "running"
	Terminating Status = "terminating"
	Terminated  Status = "terminated"
	Failed      Status = "failed"
)

// Spec is everything Create needs to build one user's lab beyond the
// user's own identity: the requested size/env/flags and the image
// already resolved by the caller (the HTTP layer owns turning an
// image_class/image_tag/image_dropdown selector into a concrete Image).
type Spec struct {
	Options k8sobject.LabOptions
	Image   *image.Image
}

// State is the in-memory record of one user's lab: the request that
// created it, derived resource quantities, and its current phase.
// State is mutated only while the owning username's registry lock is
// held.
type State struct {
	Username string
	Options  k8sobject.LabOptions
	Image    *image.Image
	Quantum  k8sobject.ResourceQuantum
	Quota    *identity.NotebookQuota

	Namespace   string
	InternalURL string

	Status    Status
	CreatedAt time.Time

	// Error carries the message of the failure that drove Status to
	// Failed, if any, for GetState callers and the HTTP layer's error
	// body.
	Error string
}

// snapshot returns a copy of s safe for a caller to read without
// holding the manager's lock.
func (s *State) snapshot() *State {
	if s == nil {
		return nil
	}
	cp := *s
	return &cp
}
