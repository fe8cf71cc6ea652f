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

	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"

	"github.com/lsst-sqre/nublado-controller/internal/identity"
	"github.com/lsst-sqre/nublado-controller/internal/image"
	"github.com/lsst-sqre/nublado-controller/internal/units"
)

const (
	homeVolumeName   = "home"
	envVolumeName    = "env"
	filesVolumeName  = "files"
	nssVolumeName    = "nss"
	tokenVolumeName  = "token"
	secretMountDefault = "/opt/lsst/software/jupyterlab/secrets"
)

func buildPod(ns string, labels map[string]string, user *identity.User, spec LabSpec, img *image.Image, quantum ResourceQuantum) (*corev1.Pod, error) {
	home := HomeDirectory(spec.HomeDirectorySchema, user.Username)
	secretMount := spec.SecretMountPath
	if secretMount == "" {
		secretMount = secretMountDefault
	}

	memBytes, err := units.MemoryToBytes(quantum.Memory)
	if err != nil {
		return nil, fmt.Errorf("rendering pod resources: %w", err)
	}
	guaranteeFraction := spec.CPUGuaranteeFraction
	if guaranteeFraction <= 0 {
		guaranteeFraction = 1.0
	}

	command := spec.Command
	if len(command) == 0 {
		command = []string{"/opt/lsst/software/jupyterlab/runlab.sh"}
	}

	uid := int64(user.UID)
	gid := int64(user.GID)
	nonRoot := true

	container := corev1.Container{
		Name:       labContainerName,
		Image:      img.ReferenceWithDigest(),
		Command:    command,
		WorkingDir: home,
		Ports:      []corev1.ContainerPort{{Name: "notebook", ContainerPort: labPort}},
		Env: []corev1.EnvVar{
			{Name: "HOME", Value: home},
		},
		EnvFrom: []corev1.EnvFromSource{
			{ConfigMapRef: &corev1.ConfigMapEnvSource{LocalObjectReference: corev1.LocalObjectReference{Name: envConfigMapName}}},
		},
		Resources: corev1.ResourceRequirements{
			Limits: corev1.ResourceList{
				corev1.ResourceCPU:    mustParseQuantity(units.CoresToCPU(quantum.CPU)),
				corev1.ResourceMemory: mustParseQuantity(units.BytesToSI(memBytes)),
			},
			Requests: corev1.ResourceList{
				corev1.ResourceCPU:    mustParseQuantity(units.CoresToCPU(quantum.CPU * guaranteeFraction)),
				corev1.ResourceMemory: mustParseQuantity(units.BytesToSI(int64(float64(memBytes) * guaranteeFraction))),
			},
		},
		SecurityContext: &corev1.SecurityContext{
			RunAsUser:    &uid,
			RunAsGroup:   &gid,
			RunAsNonRoot: &nonRoot,
		},
		VolumeMounts: []corev1.VolumeMount{
			{Name: homeVolumeName, MountPath: home},
			{Name: filesVolumeName, MountPath: "/opt/lsst/software/jupyterlab/files", ReadOnly: true},
			{Name: nssVolumeName, MountPath: "/opt/lsst/software/jupyterlab/nss", ReadOnly: true},
			{Name: tokenVolumeName, MountPath: secretMount, ReadOnly: true},
		},
	}
	if !spec.TmpOnDisk {
		container.VolumeMounts = append(container.VolumeMounts, corev1.VolumeMount{
			Name: "tmp", MountPath: "/tmp",
		})
	}

	volumes := []corev1.Volume{
		{Name: homeVolumeName, VolumeSource: corev1.VolumeSource{EmptyDir: &corev1.EmptyDirVolumeSource{}}},
		{Name: filesVolumeName, VolumeSource: corev1.VolumeSource{
			ConfigMap: &corev1.ConfigMapVolumeSource{LocalObjectReference: corev1.LocalObjectReference{Name: filesConfigMapName}},
		}},
		{Name: nssVolumeName, VolumeSource: corev1.VolumeSource{
			ConfigMap: &corev1.ConfigMapVolumeSource{LocalObjectReference: corev1.LocalObjectReference{Name: nssConfigMapName}},
		}},
		{Name: tokenVolumeName, VolumeSource: corev1.VolumeSource{
			Secret: &corev1.SecretVolumeSource{SecretName: tokenSecretName},
		}},
	}
	if !spec.TmpOnDisk {
		volumes = append(volumes, corev1.Volume{Name: "tmp", VolumeSource: corev1.VolumeSource{EmptyDir: &corev1.EmptyDirVolumeSource{}}})
	}

	pod := &corev1.Pod{
		ObjectMeta: metav1.ObjectMeta{
			Name:        "lab",
			Namespace:   ns,
			Labels:      labels,
			Annotations: spec.ExtraAnnotations,
		},
		Spec: corev1.PodSpec{
			RestartPolicy: corev1.RestartPolicyNever,
			Containers:    []corev1.Container{container},
			Volumes:       volumes,
		},
	}
	if spec.PullSecretName != "" {
		pod.Spec.ImagePullSecrets = []corev1.LocalObjectReference{{Name: spec.PullSecretName}}
	}
	return pod, nil
}
