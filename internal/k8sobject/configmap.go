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

package k8sobject

import (
	"fmt"
	"sort"
	"strconv"

	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"

	"github.com/lsst-sqre/nublado-controller/internal/identity"
	"github.com/lsst-sqre/nublado-controller/internal/image"
	"github.com/lsst-sqre/nublado-controller/internal/units"
)

func buildConfigMaps(ns string, labels map[string]string, user *identity.User, spec LabSpec, img *image.Image) ([]*corev1.ConfigMap, error) {
	env, err := buildEnvConfigMap(ns, labels, user, spec, img)
	if err != nil {
		return nil, err
	}
	files := buildFilesConfigMap(ns, labels, spec)
	nss, err := buildNSSConfigMap(ns, labels, user, spec)
	if err != nil {
		return nil, err
	}
	return []*corev1.ConfigMap{env, files, nss}, nil
}

// buildEnvConfigMap renders the environment variables mounted into the
// Lab container: the user's own env overrides layered on top of the
// image/size-derived values, matching original_source's LabConfigMap
// (container_size, mem_guarantee/limit as bytes, image metadata,
// homedir schema, file browser root, debug/reset flags).
func buildEnvConfigMap(ns string, labels map[string]string, user *identity.User, spec LabSpec, img *image.Image) (*corev1.ConfigMap, error) {
	quantum := spec.Sizes[spec.Options.Size]
	memBytes, err := units.MemoryToBytes(quantum.Memory)
	if err != nil {
		return nil, fmt.Errorf("rendering env configmap: %w", err)
	}
	guaranteeFraction := spec.CPUGuaranteeFraction
	if guaranteeFraction <= 0 {
		guaranteeFraction = 1.0
	}

	data := map[string]string{
		"CONTAINER_SIZE":    fmt.Sprintf("%s (%.1f CPU, %s RAM)", spec.Options.Size, quantum.CPU, units.BytesToSI(memBytes)),
		"CPU_GUARANTEE":     units.CoresToCPU(quantum.CPU * guaranteeFraction),
		"CPU_LIMIT":         units.CoresToCPU(quantum.CPU),
		"MEM_GUARANTEE":     units.BytesToSI(int64(float64(memBytes) * guaranteeFraction)),
		"MEM_LIMIT":         units.BytesToSI(memBytes),
		"DEBUG":             strconv.FormatBool(spec.Options.EnableDebug),
		"RESET_USER_ENV":    strconv.FormatBool(spec.Options.ResetUserEnv),
		"IMAGE_DESCRIPTION": img.DisplayName,
		"IMAGE_DIGEST":      img.Digest,
		"JUPYTER_IMAGE_SPEC": img.ReferenceWithDigest(),
		"FILE_BROWSER_ROOT": string(spec.FileBrowserRoot),
		"HOMEDIR_SCHEMA":    string(spec.HomeDirectorySchema),
		"EXTERNAL_UID":      strconv.Itoa(user.UID),
		"EXTERNAL_GID":      strconv.Itoa(user.GID),
	}
	if spec.ConfigDir != "" {
		data["JUPYTERLAB_CONFIG_DIR"] = spec.ConfigDir
	}

	for k, v := range spec.Options.Env {
		data[k] = v
	}

	return &corev1.ConfigMap{
		ObjectMeta: metav1.ObjectMeta{Name: envConfigMapName, Namespace: ns, Labels: labels},
		Data:       data,
	}, nil
}

func buildFilesConfigMap(ns string, labels map[string]string, spec LabSpec) *corev1.ConfigMap {
	data := make(map[string]string, len(spec.ExtraFiles))
	for _, f := range spec.ExtraFiles {
		data[f.Name] = f.Contents
	}
	return &corev1.ConfigMap{
		ObjectMeta: metav1.ObjectMeta{Name: filesConfigMapName, Namespace: ns, Labels: labels},
		Data:       data,
	}
}

// buildNSSConfigMap renders the NSS passwd/group overlay so the
// container's getpwnam/getgrnam calls resolve the user and their groups
// without an external directory lookup. The passwd line's home
// directory must agree with HomeDirectory's path for the same schema.
func buildNSSConfigMap(ns string, labels map[string]string, user *identity.User, spec LabSpec) (*corev1.ConfigMap, error) {
	home := HomeDirectory(spec.HomeDirectorySchema, user.Username)
	displayName := user.Username
	if user.Name != nil && *user.Name != "" {
		displayName = *user.Name
	}

	passwdLine := fmt.Sprintf("%s:x:%d:%d:%s:%s:/bin/bash\n", user.Username, user.UID, user.GID, displayName, home)

	groupLines := make([]string, 0, len(user.Groups))
	for _, g := range user.Groups {
		groupLines = append(groupLines, fmt.Sprintf("%s:x:%d:%s\n", g.Name, g.ID, user.Username))
	}
	sort.Strings(groupLines)

	group := ""
	for _, line := range groupLines {
		group += line
	}

	return &corev1.ConfigMap{
		ObjectMeta: metav1.ObjectMeta{Name: nssConfigMapName, Namespace: ns, Labels: labels},
		Data: map[string]string{
			"passwd": passwdLine,
			"group":  group,
		},
	}, nil
}
