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

package httpapi_test

import (
	"bufio"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/go-logr/logr"
	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"

	"github.com/lsst-sqre/nublado-controller/internal/config"
	"github.com/lsst-sqre/nublado-controller/internal/httpapi"
	"github.com/lsst-sqre/nublado-controller/internal/identity"
	"github.com/lsst-sqre/nublado-controller/internal/imageservice"
	"github.com/lsst-sqre/nublado-controller/internal/lab"
	"github.com/lsst-sqre/nublado-controller/internal/notifier"
)

type fakeFetcher struct {
	tags []imageservice.RemoteTag
}

func (f *fakeFetcher) Fetch(ctx context.Context) ([]imageservice.RemoteTag, error) {
	return f.tags, nil
}

func testConfig() config.Config {
	return config.Config{
		APIPathPrefix: "/spawner/v1",
		Prepuller: config.PrepullerConfig{
			RecommendedTag: "recommended",
		},
		Lab: config.LabConfig{
			Namespace:     "nublado",
			SpawnTimeout:  5 * time.Second,
			DeleteTimeout: 5 * time.Second,
			DefaultSize:   "small",
			Sizes: map[string]config.SizeConfig{
				"small": {CPU: 1, Memory: "2Gi"},
				"large": {CPU: 4, Memory: "16Gi"},
			},
		},
	}
}

// newTestRouter wires a full Handlers against fakes: a real
// identity.Client pointed at a fake Gafaelfawr, a real lab.Manager over
// fakeStorage, and a real imageservice.Service populated with one image.
func newTestRouter(usersByToken map[string]string) (http.Handler, *fakeStorage) {
	identitySrv := newIdentityServer(usersByToken)
	DeferCleanup(identitySrv.Close)

	storage := &fakeStorage{}
	cfg := testConfig()
	labs := lab.New(storage, cfg.Lab, notifier.New(""), logr.Discard())

	svc := imageservice.New(&fakeFetcher{tags: []imageservice.RemoteTag{
		{Tag: "recommended", Digest: "sha256:aaa"},
		{Tag: "r1_2_3", Digest: "sha256:aaa"},
	}}, &fakeNodeLister{nodes: []corev1.Node{
		{ObjectMeta: metav1.ObjectMeta{Name: "node-1"}},
	}}, imageservice.Options{
		Registry:       "lighthouse.ceres",
		Repository:     "library/sketchbook",
		AliasTags:      []string{"recommended"},
		RecommendedTag: "recommended",
	}, logr.Discard())
	Expect(svc.Refresh(context.Background())).To(Succeed())

	h := &httpapi.Handlers{
		Identity: identity.NewClient(identitySrv.URL, 0),
		Labs:     labs,
		Images:   svc,
		Nodes:    &fakeNodeLister{nodes: []corev1.Node{{ObjectMeta: metav1.ObjectMeta{Name: "node-1"}}}},
		Config:   cfg,
		Logger:   logr.Discard(),
		Prefix:   cfg.APIPathPrefix,
	}
	return httpapi.NewRouter(h), storage
}

func authedRequest(method, path, token string, body string) *http.Request {
	var reader *strings.Reader
	if body != "" {
		reader = strings.NewReader(body)
	} else {
		reader = strings.NewReader("")
	}
	req, err := http.NewRequest(method, "http://example.test"+path, reader)
	Expect(err).NotTo(HaveOccurred())
	if token != "" {
		req.Header.Set("X-Auth-Request-User", "doesnotmatter")
		req.Header.Set("X-Auth-Request-Token", token)
	}
	return req
}

var _ = Describe("Router", func() {
	It("rejects requests missing identity headers", func() {
		router, _ := newTestRouter(map[string]string{"tok-rachel": "rachel"})
		w := httptest.NewRecorder()
		req := authedRequest(http.MethodGet, "/spawner/v1/labs", "", "")
		router.ServeHTTP(w, req)
		Expect(w.Code).To(Equal(http.StatusUnauthorized))

		var body map[string]any
		Expect(json.Unmarshal(w.Body.Bytes(), &body)).To(Succeed())
		Expect(body).To(HaveKey("detail"))
	})

	It("rejects an unrecognized token with 401", func() {
		router, _ := newTestRouter(map[string]string{"tok-rachel": "rachel"})
		w := httptest.NewRecorder()
		req := authedRequest(http.MethodGet, "/spawner/v1/labs", "tok-nope", "")
		router.ServeHTTP(w, req)
		Expect(w.Code).To(Equal(http.StatusUnauthorized))
	})

	It("rejects a path user that does not match the authenticated caller", func() {
		router, _ := newTestRouter(map[string]string{"tok-rachel": "rachel"})
		w := httptest.NewRecorder()
		req := authedRequest(http.MethodGet, "/spawner/v1/lab-form/someone-else", "tok-rachel", "")
		router.ServeHTTP(w, req)
		Expect(w.Code).To(Equal(http.StatusForbidden))
	})

	It("creates a lab and reports its state until it settles Running", func() {
		router, storage := newTestRouter(map[string]string{"tok-rachel": "rachel"})

		createBody := `{"options":{"image_list":["use_image_from_dropdown"],"image_dropdown":["r1_2_3"],"size":"small"}}`
		w := httptest.NewRecorder()
		req := authedRequest(http.MethodPost, "/spawner/v1/labs/rachel/create", "tok-rachel", createBody)
		router.ServeHTTP(w, req)
		Expect(w.Code).To(Equal(http.StatusCreated))
		Expect(w.Header().Get("Location")).To(Equal("/spawner/v1/labs/rachel"))

		Eventually(func() int {
			w := httptest.NewRecorder()
			req := authedRequest(http.MethodGet, "/spawner/v1/labs/rachel", "tok-rachel", "")
			router.ServeHTTP(w, req)
			return w.Code
		}).Should(Equal(http.StatusOK))

		w = httptest.NewRecorder()
		req = authedRequest(http.MethodGet, "/spawner/v1/labs/rachel", "tok-rachel", "")
		router.ServeHTTP(w, req)
		var state map[string]any
		Expect(json.Unmarshal(w.Body.Bytes(), &state)).To(Succeed())
		Expect(state["status"]).To(Equal("running"))
		Expect(storage.applyCount).To(Equal(1))
	})

	It("rejects a create with more than one image selector", func() {
		router, _ := newTestRouter(map[string]string{"tok-rachel": "rachel"})
		createBody := `{"options":{"image_list":"r1_2_3","image_tag":"r1_2_3","size":"small"}}`
		w := httptest.NewRecorder()
		req := authedRequest(http.MethodPost, "/spawner/v1/labs/rachel/create", "tok-rachel", createBody)
		router.ServeHTTP(w, req)
		Expect(w.Code).To(Equal(http.StatusUnprocessableEntity))

		var body map[string]any
		Expect(json.Unmarshal(w.Body.Bytes(), &body)).To(Succeed())
		details := body["detail"].([]any)
		Expect(details).To(HaveLen(1))
		Expect(details[0].(map[string]any)["type"]).To(Equal("invalid_options"))
	})

	It("rejects a second create for the same user with 409", func() {
		router, _ := newTestRouter(map[string]string{"tok-rachel": "rachel"})
		createBody := `{"options":{"image_tag":"r1_2_3","size":"small"}}`

		w := httptest.NewRecorder()
		req := authedRequest(http.MethodPost, "/spawner/v1/labs/rachel/create", "tok-rachel", createBody)
		router.ServeHTTP(w, req)
		Expect(w.Code).To(Equal(http.StatusCreated))

		w = httptest.NewRecorder()
		req = authedRequest(http.MethodPost, "/spawner/v1/labs/rachel/create", "tok-rachel", createBody)
		router.ServeHTTP(w, req)
		Expect(w.Code).To(Equal(http.StatusConflict))
	})

	It("404s a lab after it is deleted", func() {
		router, _ := newTestRouter(map[string]string{"tok-rachel": "rachel"})
		createBody := `{"options":{"image_tag":"r1_2_3","size":"small"}}`

		w := httptest.NewRecorder()
		req := authedRequest(http.MethodPost, "/spawner/v1/labs/rachel/create", "tok-rachel", createBody)
		router.ServeHTTP(w, req)
		Expect(w.Code).To(Equal(http.StatusCreated))

		Eventually(func() int {
			w := httptest.NewRecorder()
			req := authedRequest(http.MethodGet, "/spawner/v1/labs/rachel", "tok-rachel", "")
			router.ServeHTTP(w, req)
			return w.Code
		}).Should(Equal(http.StatusOK))

		w = httptest.NewRecorder()
		req = authedRequest(http.MethodDelete, "/spawner/v1/labs/rachel", "tok-rachel", "")
		router.ServeHTTP(w, req)
		Expect(w.Code).To(Equal(http.StatusNoContent))

		Eventually(func() int {
			w := httptest.NewRecorder()
			req := authedRequest(http.MethodGet, "/spawner/v1/labs/rachel", "tok-rachel", "")
			router.ServeHTTP(w, req)
			return w.Code
		}).Should(Equal(http.StatusNotFound))
	})

	It("404s a lab that was never created", func() {
		router, _ := newTestRouter(map[string]string{"tok-rachel": "rachel"})
		w := httptest.NewRecorder()
		req := authedRequest(http.MethodGet, "/spawner/v1/labs/rachel", "tok-rachel", "")
		router.ServeHTTP(w, req)
		Expect(w.Code).To(Equal(http.StatusNotFound))
	})

	It("reports the spawner image menu and prepull status", func() {
		router, _ := newTestRouter(map[string]string{"tok-rachel": "rachel"})

		w := httptest.NewRecorder()
		req := authedRequest(http.MethodGet, "/spawner/v1/images", "tok-rachel", "")
		router.ServeHTTP(w, req)
		Expect(w.Code).To(Equal(http.StatusOK))
		var menu map[string]any
		Expect(json.Unmarshal(w.Body.Bytes(), &menu)).To(Succeed())
		Expect(menu).To(HaveKey("recommended"))

		w = httptest.NewRecorder()
		req = authedRequest(http.MethodGet, "/spawner/v1/prepulls", "tok-rachel", "")
		router.ServeHTTP(w, req)
		Expect(w.Code).To(Equal(http.StatusOK))
	})

	It("streams lab progress events as SSE frames in order", func() {
		router, _ := newTestRouter(map[string]string{"tok-rachel": "rachel"})
		createBody := `{"options":{"image_tag":"r1_2_3","size":"small"}}`

		w := httptest.NewRecorder()
		req := authedRequest(http.MethodPost, "/spawner/v1/labs/rachel/create", "tok-rachel", createBody)
		router.ServeHTTP(w, req)
		Expect(w.Code).To(Equal(http.StatusCreated))

		Eventually(func() string {
			w := httptest.NewRecorder()
			req := authedRequest(http.MethodGet, "/spawner/v1/labs/rachel", "tok-rachel", "")
			router.ServeHTTP(w, req)
			var state map[string]any
			_ = json.Unmarshal(w.Body.Bytes(), &state)
			s, _ := state["status"].(string)
			return s
		}).Should(Equal("running"))

		sw := httptest.NewRecorder()
		req = authedRequest(http.MethodGet, "/spawner/v1/labs/rachel/events", "tok-rachel", "")
		router.ServeHTTP(sw, req)
		Expect(sw.Code).To(Equal(http.StatusOK))

		scanner := bufio.NewScanner(strings.NewReader(sw.Body.String()))
		var kinds []string
		for scanner.Scan() {
			line := scanner.Text()
			if strings.HasPrefix(line, "event: ") {
				kinds = append(kinds, strings.TrimPrefix(line, "event: "))
			}
		}
		Expect(kinds).To(Equal([]string{"info", "info", "info", "info", "info", "complete"}))
	})
})
