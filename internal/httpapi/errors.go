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
	"errors"
	"net/http"

	"github.com/lsst-sqre/nublado-controller/internal/apierror"
)

// detail is one entry of the FastAPI-shaped error body original_source's
// clients already parse: {"detail":[{"msg":...,"type":...}]}.
type detail struct {
	Msg  string `json:"msg"`
	Type string `json:"type"`
}

type errorBody struct {
	Detail []detail `json:"detail"`
}

// writeError renders err as the typed error body and its own HTTP
// status. Anything not already an apierror.APIError is treated as an
// unanticipated upstream failure.
func writeError(w http.ResponseWriter, err error) {
	var apiErr apierror.APIError
	if !errors.As(err, &apiErr) {
		apiErr = apierror.NewUpstreamError("controller", 0, err)
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(apiErr.Status())
	_ = json.NewEncoder(w).Encode(errorBody{Detail: []detail{{Msg: apiErr.Error(), Type: detailType(apiErr)}}})
}

func detailType(err apierror.APIError) string {
	switch err.(type) {
	case *apierror.ConflictError:
		return "lab_exists"
	case *apierror.InputError:
		return "invalid_options"
	case *apierror.AuthError:
		return "permission_denied"
	case *apierror.NotFoundError:
		return "not_found"
	case *apierror.TimeoutError:
		return "operation_timeout"
	case *apierror.KubernetesError:
		return "kubernetes_error"
	case *apierror.DuplicateObjectError:
		return "duplicate_object"
	case *apierror.UpstreamError:
		return "upstream_error"
	default:
		return "internal_error"
	}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
