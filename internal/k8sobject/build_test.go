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

package k8sobject_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"k8s.io/apimachinery/pkg/api/resource"

	"github.com/lsst-sqre/nublado-controller/internal/identity"
	"github.com/lsst-sqre/nublado-controller/internal/image"
	"github.com/lsst-sqre/nublado-controller/internal/imagetag"
	"github.com/lsst-sqre/nublado-controller/internal/k8sobject"
)

func testUser() *identity.User {
	return &identity.User{
		UserInfo: identity.UserInfo{
			Username: "rachel",
			UID:      1101,
			GID:      1101,
			Groups:   []identity.UserGroup{{Name: "rachel", ID: 1101}, {Name: "lsst", ID: 2000}},
		},
		Token: "token-of-affection",
	}
}

func testSpec() k8sobject.LabSpec {
	return k8sobject.LabSpec{
		Options:             k8sobject.LabOptions{Size: "Medium", Env: map[string]string{"X": "1"}},
		NamespacePrefix:     "nublado",
		PullSecretName:      "pull-secret",
		HomeDirectorySchema: k8sobject.HomeUsername,
		FileBrowserRoot:     k8sobject.FileBrowserRootHome,
		Sizes: map[k8sobject.LabSize]k8sobject.ResourceQuantum{
			"Medium": {CPU: 2, Memory: "8Gi"},
		},
	}
}

func testImage() *image.Image {
	return image.FromTag("lighthouse.ceres", "library/sketchbook", imagetag.FromString("recommended"), "sha256:1234")
}

func TestBuildDeterministic(t *testing.T) {
	user := testUser()
	spec := testSpec()
	img := testImage()

	first, err := k8sobject.Build(user, spec, img)
	require.NoError(t, err)
	second, err := k8sobject.Build(user, spec, img)
	require.NoError(t, err)

	assert.Equal(t, first.Namespace, second.Namespace)
	assert.Equal(t, first.Pod, second.Pod)
	assert.Equal(t, "nublado-rachel", first.Namespace.Name)
}

func TestBuildHomeDirectorySchema(t *testing.T) {
	user := testUser()
	img := testImage()

	username := k8sobject.HomeUsername
	nested := k8sobject.HomeInitialThenUsernameNested

	spec := testSpec()
	spec.HomeDirectorySchema = username
	objs, err := k8sobject.Build(user, spec, img)
	require.NoError(t, err)
	assert.Equal(t, "/home/rachel", objs.Pod.Spec.Containers[0].WorkingDir)

	spec.HomeDirectorySchema = nested
	objs, err = k8sobject.Build(user, spec, img)
	require.NoError(t, err)
	assert.Equal(t, "/home/r/rachel/rachel", objs.Pod.Spec.Containers[0].WorkingDir)

	nssData := mustFind(t, objs, "nss")
	assert.Contains(t, nssData["passwd"], "/home/r/rachel/rachel")
}

func TestBuildUnknownSize(t *testing.T) {
	user := testUser()
	img := testImage()
	spec := testSpec()
	spec.Options.Size = "Gargantuan"

	_, err := k8sobject.Build(user, spec, img)
	assert.Error(t, err)
}

func TestBuildResourceQuota(t *testing.T) {
	user := testUser()
	img := testImage()
	spec := testSpec()

	objs, err := k8sobject.Build(user, spec, img)
	require.NoError(t, err)
	limitsCPU := objs.ResourceQuota.Spec.Hard["limits.cpu"]
	assert.Zero(t, limitsCPU.Cmp(resource.MustParse("2")))
}

func mustFind(t *testing.T, objs *k8sobject.LabObjects, name string) map[string]string {
	t.Helper()
	for _, cm := range objs.ConfigMaps {
		if cm.Name == name {
			return cm.Data
		}
	}
	t.Fatalf("configmap %q not found", name)
	return nil
}
