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
	"html/template"
	"net/http"
	"sort"

	"k8s.io/apimachinery/pkg/api/resource"

	"github.com/lsst-sqre/nublado-controller/internal/apierror"
	"github.com/lsst-sqre/nublado-controller/internal/config"
	"github.com/lsst-sqre/nublado-controller/internal/identity"
)

// spawnerFormTemplate renders the same fields original_source's
// spawner.html.jinja does: the dropdown sentinel the client must send
// back on image_list to mean "use the dropdown", the cached image menu,
// the full dropdown, and the size list filtered to the user's quota.
const spawnerFormTemplate = `<!DOCTYPE html>
<html>
<head><title>Spawn a notebook lab</title></head>
<body>
<form method="post" action="create">
  <fieldset>
    <legend>Image</legend>
    {{range .CachedImages}}
    <label><input type="radio" name="image_list" value="{{.Reference}}">{{.DisplayName}}</label><br/>
    {{end}}
    <label><input type="radio" name="image_list" value="{{.DropdownSentinel}}" checked>Use dropdown</label>
    <select name="image_dropdown">
      {{range .AllImages}}<option value="{{.Reference}}">{{.DisplayName}}</option>{{end}}
    </select>
  </fieldset>
  <fieldset>
    <legend>Size</legend>
    <select name="size">
      {{range .Sizes}}<option value="{{.}}" {{if eq . $.DefaultSize}}selected{{end}}>{{.}}</option>{{end}}
    </select>
  </fieldset>
  <label><input type="checkbox" name="enable_debug" value="true">Enable debug</label><br/>
  <label><input type="checkbox" name="reset_user_env" value="true">Reset user environment</label><br/>
  <button type="submit">Spawn</button>
</form>
</body>
</html>
`

var formTmpl = template.Must(template.New("spawnerForm").Parse(spawnerFormTemplate))

type formImage struct {
	Reference   string
	DisplayName string
}

type formData struct {
	DropdownSentinel string
	CachedImages     []formImage
	AllImages        []formImage
	Sizes            []string
	DefaultSize      string
}

// labForm renders the HTML spawn form for the authenticated user,
// filtering lab sizes to what their quota allows (spec.md §9, mirroring
// original_source's get_user_lab_form).
func (h *Handlers) labForm(w http.ResponseWriter, r *http.Request) {
	user, _ := userFromContext(r.Context())

	collection := h.Images.Collection()
	var cached, all []formImage
	if collection != nil {
		for _, img := range collection.AllImages(false, true) {
			all = append(all, formImage{Reference: img.ReferenceWithDigest(), DisplayName: img.DisplayName})
		}
		for _, img := range collection.AllImages(true, true) {
			cached = append(cached, formImage{Reference: img.ReferenceWithDigest(), DisplayName: img.DisplayName})
		}
	}

	sizes := availableSizes(h.Config.Lab, user)
	if len(sizes) == 0 {
		writeError(w, &apierror.AuthError{Message: "no lab size fits within quota", Forbidden: true})
		return
	}

	defaultSize := h.Config.Lab.DefaultSize
	found := false
	for _, s := range sizes {
		if s == defaultSize {
			found = true
			break
		}
	}
	if !found {
		defaultSize = sizes[0]
	}

	data := formData{
		DropdownSentinel: imageDropdownSentinel,
		CachedImages:     cached,
		AllImages:        all,
		Sizes:            sizes,
		DefaultSize:      defaultSize,
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_ = formTmpl.Execute(w, data)
}

// availableSizes lists the configured size names that fit within the
// user's notebook quota, sorted. A user with no notebook quota (or a
// quota silent on notebooks) sees every configured size.
func availableSizes(cfg config.LabConfig, user *identity.User) []string {
	quota := quotaOf(user)
	if quota != nil && !quota.Spawn {
		return nil
	}
	out := make([]string, 0, len(cfg.Sizes))
	for name, size := range cfg.Sizes {
		if quota != nil {
			mem, err := resource.ParseQuantity(size.Memory)
			if err == nil && mem.Value() > quota.MemoryBytes {
				continue
			}
			if size.CPU > quota.CPU {
				continue
			}
		}
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

func quotaOf(user *identity.User) *identity.NotebookQuota {
	if user == nil || user.Quota == nil {
		return nil
	}
	return user.Quota.Notebook
}
