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
	"time"

	"github.com/lsst-sqre/nublado-controller/internal/lab"
)

// labStateDTO is the JSON shape of GET /labs/{user} and GET
// /user-status, keeping internal/lab.State's Go-native fields decoupled
// from the wire format.
type labStateDTO struct {
	Username    string    `json:"username"`
	Status      string    `json:"status"`
	Size        string    `json:"size"`
	EnableDebug bool      `json:"enableDebug"`
	ImageRef    string    `json:"imageRef,omitempty"`
	ImageTag    string    `json:"imageTag,omitempty"`
	CPU         float64   `json:"cpu"`
	Memory      string    `json:"memory"`
	QuotaCPU    *float64  `json:"quotaCpu,omitempty"`
	QuotaMemory *int64    `json:"quotaMemoryBytes,omitempty"`
	InternalURL string    `json:"internalUrl,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
	Error       string    `json:"error,omitempty"`
}

func toLabStateDTO(st *lab.State) labStateDTO {
	dto := labStateDTO{
		Username:    st.Username,
		Status:      string(st.Status),
		Size:        string(st.Options.Size),
		EnableDebug: st.Options.EnableDebug,
		CPU:         st.Quantum.CPU,
		Memory:      st.Quantum.Memory,
		InternalURL: st.InternalURL,
		CreatedAt:   st.CreatedAt,
		Error:       st.Error,
	}
	if st.Image != nil {
		dto.ImageRef = st.Image.ReferenceWithDigest()
		dto.ImageTag = st.Image.Tag
	}
	if st.Quota != nil {
		cpu := st.Quota.CPU
		mem := st.Quota.MemoryBytes
		dto.QuotaCPU = &cpu
		dto.QuotaMemory = &mem
	}
	return dto
}

type sseData struct {
	Message  string `json:"message"`
	Progress int    `json:"progress"`
}
