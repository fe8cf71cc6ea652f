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
	networkingv1 "k8s.io/api/networking/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/util/intstr"

	"github.com/lsst-sqre/nublado-controller/internal/apierror"
	"github.com/lsst-sqre/nublado-controller/internal/identity"
	"github.com/lsst-sqre/nublado-controller/internal/image"
	"github.com/lsst-sqre/nublado-controller/internal/units"
)

const (
	labContainerName = "notebook"
	labPort          = 8888

	envConfigMapName   = "env"
	filesConfigMapName = "files"
	nssConfigMapName   = "nss"
	tokenSecretName    = "token"
)

// LabObjects is the complete set of Kubernetes objects one user's lab is
// composed of.
type LabObjects struct {
	Namespace     *corev1.Namespace
	ResourceQuota *corev1.ResourceQuota
	NetworkPolicy *networkingv1.NetworkPolicy
	Service       *corev1.Service
	Secrets       []*corev1.Secret
	ConfigMaps    []*corev1.ConfigMap
	Pod           *corev1.Pod
}

// Build produces the complete, deterministic set of Kubernetes objects
// for user's lab, given their resolved image and the merged runtime
// config. It is pure: it never calls the Kubernetes API and never reads
// wall-clock time or randomness, so the same inputs always produce the
// same outputs modulo fields Kubernetes assigns (uid, resourceVersion,
// creationTimestamp).
func Build(user *identity.User, spec LabSpec, img *image.Image) (*LabObjects, error) {
	quantum, ok := spec.Sizes[spec.Options.Size]
	if !ok {
		return nil, apierror.NewInputError(fmt.Sprintf("unknown lab size %q", spec.Options.Size), nil)
	}

	ns := NamespaceName(spec.NamespacePrefix, user.Username)
	labels := map[string]string{
		"nublado.lsst.io/user":     user.Username,
		"nublado.lsst.io/category": "lab",
	}

	namespace := buildNamespace(ns, labels)
	quota, err := buildResourceQuota(ns, quantum)
	if err != nil {
		return nil, err
	}
	netpol := buildNetworkPolicy(ns, labels)
	svc := buildService(ns, labels)

	secrets, err := buildSecrets(ns, labels, user, spec)
	if err != nil {
		return nil, err
	}
	configMaps, err := buildConfigMaps(ns, labels, user, spec, img)
	if err != nil {
		return nil, err
	}
	pod, err := buildPod(ns, labels, user, spec, img, quantum)
	if err != nil {
		return nil, err
	}

	return &LabObjects{
		Namespace:     namespace,
		ResourceQuota: quota,
		NetworkPolicy: netpol,
		Service:       svc,
		Secrets:       secrets,
		ConfigMaps:    configMaps,
		Pod:           pod,
	}, nil
}

func buildNamespace(name string, labels map[string]string) *corev1.Namespace {
	return &corev1.Namespace{
		ObjectMeta: metav1.ObjectMeta{
			Name:   name,
			Labels: labels,
		},
	}
}

func buildResourceQuota(ns string, quantum ResourceQuantum) (*corev1.ResourceQuota, error) {
	memBytes, err := units.MemoryToBytes(quantum.Memory)
	if err != nil {
		return nil, fmt.Errorf("resolving resource quota memory: %w", err)
	}
	cpuQty := units.CoresToCPU(quantum.CPU)

	return &corev1.ResourceQuota{
		ObjectMeta: metav1.ObjectMeta{
			Name:      "lab-quota",
			Namespace: ns,
		},
		Spec: corev1.ResourceQuotaSpec{
			Hard: corev1.ResourceList{
				corev1.ResourceLimitsCPU:      mustParseQuantity(cpuQty),
				corev1.ResourceLimitsMemory:   mustParseQuantity(units.BytesToSI(memBytes)),
				corev1.ResourceRequestsCPU:    mustParseQuantity(cpuQty),
				corev1.ResourceRequestsMemory: mustParseQuantity(units.BytesToSI(memBytes)),
				corev1.ResourcePods:           mustParseQuantity("1"),
			},
		},
	}, nil
}

func buildNetworkPolicy(ns string, labels map[string]string) *networkingv1.NetworkPolicy {
	tcp := corev1.ProtocolTCP
	port := intstr.FromInt(labPort)
	return &networkingv1.NetworkPolicy{
		ObjectMeta: metav1.ObjectMeta{
			Name:      "lab-isolation",
			Namespace: ns,
		},
		Spec: networkingv1.NetworkPolicySpec{
			PodSelector: metav1.LabelSelector{MatchLabels: labels},
			PolicyTypes: []networkingv1.PolicyType{
				networkingv1.PolicyTypeIngress,
				networkingv1.PolicyTypeEgress,
			},
			Ingress: []networkingv1.NetworkPolicyIngressRule{
				{
					Ports: []networkingv1.NetworkPolicyPort{{Protocol: &tcp, Port: &port}},
				},
			},
			Egress: []networkingv1.NetworkPolicyEgressRule{{}},
		},
	}
}

func buildService(ns string, labels map[string]string) *corev1.Service {
	return &corev1.Service{
		ObjectMeta: metav1.ObjectMeta{
			Name:      "lab",
			Namespace: ns,
		},
		Spec: corev1.ServiceSpec{
			Selector: labels,
			Ports: []corev1.ServicePort{
				{Name: "notebook", Port: labPort, TargetPort: intstr.FromInt(labPort)},
			},
		},
	}
}
