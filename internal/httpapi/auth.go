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
	"context"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/lsst-sqre/nublado-controller/internal/apierror"
	"github.com/lsst-sqre/nublado-controller/internal/identity"
)

const (
	headerUser  = "X-Auth-Request-User"
	headerToken = "X-Auth-Request-Token"
)

type contextKey int

const userContextKey contextKey = iota

func withUser(ctx context.Context, user *identity.User) context.Context {
	return context.WithValue(ctx, userContextKey, user)
}

func userFromContext(ctx context.Context) (*identity.User, bool) {
	user, ok := ctx.Value(userContextKey).(*identity.User)
	return user, ok
}

// authenticate resolves the caller's identity from the ingress-injected
// headers and attaches it to the request context. There is no
// authorization beyond this: per spec.md's non-goals, deciding whether
// a caller may reach an admin route is the fronting proxy's job, not
// the controller's. A missing token is a 401; a token the identity
// service rejects is whatever status identity.Client.UserInfo assigns.
func (h *Handlers) authenticate(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		headerUsername := r.Header.Get(headerUser)
		token := r.Header.Get(headerToken)
		if headerUsername == "" || token == "" {
			writeError(w, &apierror.AuthError{Message: "missing identity headers"})
			return
		}

		user, err := h.Identity.UserInfo(r.Context(), token, h.Logger)
		if err != nil {
			writeError(w, err)
			return
		}

		next(w, r.WithContext(withUser(r.Context(), user)))
	}
}

// requireSameUser wraps a user-class handler so the path's {user} must
// match the authenticated caller; a mismatch is a 403, not a 404, so a
// caller probing another user's lab can't distinguish "doesn't exist"
// from "not yours".
func (h *Handlers) requireSameUser(next http.HandlerFunc) http.HandlerFunc {
	return h.authenticate(func(w http.ResponseWriter, r *http.Request) {
		user, _ := userFromContext(r.Context())
		if pathUser := mux.Vars(r)["user"]; pathUser != user.Username {
			writeError(w, &apierror.AuthError{Message: "path user does not match authenticated user", Forbidden: true})
			return
		}
		next(w, r)
	})
}
