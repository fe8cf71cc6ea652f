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

package httpapi

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/lsst-sqre/nublado-controller/internal/apierror"
	"github.com/lsst-sqre/nublado-controller/internal/lab"
)

// createLab handles POST /labs/{user}/create: it normalizes the request
// body into a lab.Spec and starts a spawn, returning 201 with a
// Location header pointing at the new lab's state resource.
func (h *Handlers) createLab(w http.ResponseWriter, r *http.Request) {
	user, ok := userFromContext(r.Context())
	if !ok {
		writeError(w, &apierror.AuthError{Message: "missing identity"})
		return
	}

	var body rawSpawnRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, apierror.NewInputError("malformed request body", err))
		return
	}

	collection := h.Images.Collection()
	if collection == nil {
		writeError(w, apierror.NewUpstreamError("image service", 0, fmt.Errorf("image menu not yet populated")))
		return
	}

	opts, img, err := normalizeSpawnOptions(body.Options, collection, h.Config.Prepuller.RecommendedTag, h.Config.Lab.SpecSizes())
	if err != nil {
		writeError(w, err)
		return
	}
	opts.Env = body.Env

	if err := h.Labs.Create(r.Context(), user, lab.Spec{Options: opts, Image: img}); err != nil {
		writeError(w, err)
		return
	}

	w.Header().Set("Location", fmt.Sprintf("%s/labs/%s", h.Prefix, user.Username))
	w.WriteHeader(http.StatusCreated)
}

// getLabState handles GET /labs/{user}. A Terminated lab (the residue
// left behind by a cancelled-while-Pending delete, kept around only so
// a subsequent Create can clean it up) reports 404 like no lab at all:
// callers never observe the internal "ghost" bookkeeping state.
func (h *Handlers) getLabState(w http.ResponseWriter, r *http.Request) {
	username := mux.Vars(r)["user"]
	writeLabState(w, h.Labs, username)
}

func writeLabState(w http.ResponseWriter, labs *lab.Manager, username string) {
	st, ok := labs.GetState(username)
	if !ok || st.Status == lab.Terminated {
		writeError(w, &apierror.NotFoundError{Message: fmt.Sprintf("no lab for user %s", username)})
		return
	}
	writeJSON(w, http.StatusOK, toLabStateDTO(st))
}

// userStatus handles GET /user-status: the same document as
// getLabState, but keyed by the authenticated caller rather than a
// path parameter.
func (h *Handlers) userStatus(w http.ResponseWriter, r *http.Request) {
	user, ok := userFromContext(r.Context())
	if !ok {
		writeError(w, &apierror.AuthError{Message: "missing identity"})
		return
	}
	writeLabState(w, h.Labs, user.Username)
}

// deleteLab handles DELETE /labs/{user}.
func (h *Handlers) deleteLab(w http.ResponseWriter, r *http.Request) {
	username := mux.Vars(r)["user"]
	if err := h.Labs.Delete(r.Context(), username); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// listLabs handles GET /labs.
func (h *Handlers) listLabs(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.Labs.ListUsers())
}

// labEvents handles GET /labs/{user}/events: an SSE stream replaying a
// user's full event history from the beginning, then live events, then
// the terminal event, per spec.md §4.1's subscriber contract.
func (h *Handlers) labEvents(w http.ResponseWriter, r *http.Request) {
	username := mux.Vars(r)["user"]
	cursor, err := h.Labs.EventsFor(username)
	if err != nil {
		writeError(w, err)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, apierror.NewUpstreamError("controller", 0, fmt.Errorf("streaming not supported by this response writer")))
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	ctx := r.Context()
	for {
		ev, ok := cursor.Next(ctx)
		if !ok {
			return
		}
		payload, err := json.Marshal(sseData{Message: ev.Message, Progress: ev.Progress})
		if err != nil {
			continue
		}
		if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", ev.Kind, payload); err != nil {
			return
		}
		flusher.Flush()
	}
}

// images handles GET /spawner/v1/images.
func (h *Handlers) images(w http.ResponseWriter, r *http.Request) {
	eligible, err := h.eligibility(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, h.Images.SpawnerImages(eligible))
}

// prepulls handles GET /spawner/v1/prepulls.
func (h *Handlers) prepulls(w http.ResponseWriter, r *http.Request) {
	eligible, err := h.eligibility(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, h.Images.PrepullerStatus(eligible))
}
