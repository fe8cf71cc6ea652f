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
	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"

	"github.com/lsst-sqre/nublado-controller/internal/identity"
)

// buildSecrets produces the notebook-token Secret plus, when
// spec.ExtraSecrets or spec.PullSecretName is set, an "extra" Secret
// with empty Data whose annotations name the controller-namespace
// secret/key each extra key comes from. Build never reads cluster state,
// and k8sstorage.ApplyLabObjects creates the Secret as built: the source
// values are not copied into it.
func buildSecrets(ns string, labels map[string]string, user *identity.User, spec LabSpec) ([]*corev1.Secret, error) {
	token := &corev1.Secret{
		ObjectMeta: metav1.ObjectMeta{Name: tokenSecretName, Namespace: ns, Labels: labels},
		Type:       corev1.SecretTypeOpaque,
		StringData: map[string]string{"token": user.Token},
	}

	if len(spec.ExtraSecrets) == 0 && spec.PullSecretName == "" {
		return []*corev1.Secret{token}, nil
	}

	extra := &corev1.Secret{
		ObjectMeta: metav1.ObjectMeta{
			Name:      "extra",
			Namespace: ns,
			Labels:    labels,
			Annotations: sourceAnnotations(spec.ExtraSecrets),
		},
		Type: corev1.SecretTypeOpaque,
		Data: map[string][]byte{},
	}

	return []*corev1.Secret{token, extra}, nil
}

// sourceAnnotations records which controller-namespace secret/key each
// extra secret key was projected from, so a reconciler pass (or an
// operator inspecting the object) can see provenance without a second
// source of truth.
func sourceAnnotations(sources []SecretSource) map[string]string {
	if len(sources) == 0 {
		return nil
	}
	out := make(map[string]string, len(sources))
	for _, s := range sources {
		out["nublado.lsst.io/source-"+s.TargetKey] = s.SourceName + "/" + s.SourceKey
	}
	return out
}
