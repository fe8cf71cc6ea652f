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

// Package httpapi is the external HTTP surface described by spec.md §6:
// a gorilla/mux router exposing the spawn form, lab lifecycle routes,
// an SSE progress stream, and the admin image/prepull status routes.
// Every route validates the X-Auth-Request-User/X-Auth-Request-Token
// headers the fronting auth proxy injects; beyond that, per spec.md's
// non-goals, the controller performs no authorization of its own.
package httpapi

import (
	"context"
	"net/http"

	"github.com/go-logr/logr"
	"github.com/gorilla/mux"

	"github.com/lsst-sqre/nublado-controller/internal/apierror"
	"github.com/lsst-sqre/nublado-controller/internal/config"
	"github.com/lsst-sqre/nublado-controller/internal/identity"
	"github.com/lsst-sqre/nublado-controller/internal/imageservice"
	"github.com/lsst-sqre/nublado-controller/internal/lab"
	"github.com/lsst-sqre/nublado-controller/internal/prepuller"
)

// Handlers holds every dependency the route handlers close over.
type Handlers struct {
	Identity *identity.Client
	Labs     *lab.Manager
	Images   *imageservice.Service
	Nodes    imageservice.NodeLister
	Config   config.Config
	Logger   logr.Logger

	// Prefix is mounted in front of every route; it is also echoed back
	// in the Location header a successful create returns.
	Prefix string
}

// NewRouter builds the complete route table under h.Prefix.
func NewRouter(h *Handlers) *mux.Router {
	r := mux.NewRouter()
	sub := r.PathPrefix(h.Prefix).Subrouter()

	sub.HandleFunc("/lab-form/{user}", h.requireSameUser(h.labForm)).Methods(http.MethodGet)
	sub.HandleFunc("/labs/{user}/create", h.requireSameUser(h.createLab)).Methods(http.MethodPost)
	sub.HandleFunc("/labs/{user}/events", h.requireSameUser(h.labEvents)).Methods(http.MethodGet)
	sub.HandleFunc("/labs/{user}", h.authenticate(h.getLabState)).Methods(http.MethodGet)
	sub.HandleFunc("/labs/{user}", h.authenticate(h.deleteLab)).Methods(http.MethodDelete)
	sub.HandleFunc("/labs", h.authenticate(h.listLabs)).Methods(http.MethodGet)
	sub.HandleFunc("/user-status", h.authenticate(h.userStatus)).Methods(http.MethodGet)
	sub.HandleFunc("/images", h.authenticate(h.images)).Methods(http.MethodGet)
	sub.HandleFunc("/prepulls", h.authenticate(h.prepulls)).Methods(http.MethodGet)

	return r
}

// eligibility computes each node's prepull eligibility fresh for every
// /images or /prepulls request: cheap relative to the request's own
// network round trip, and it keeps these two read-only admin routes
// from depending on the prepuller's own pass cadence.
func (h *Handlers) eligibility(ctx context.Context) ([]imageservice.NodeEligibility, error) {
	nodes, err := h.Nodes.ListNodes(ctx)
	if err != nil {
		return nil, apierror.WrapKubernetesError("Node", "", "", 0, err)
	}
	return prepuller.EligibleNodes(nodes, h.Config.Prepuller.Tolerations), nil
}
