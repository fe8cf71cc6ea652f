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

// Package k8sobject deterministically builds the Kubernetes objects that
// make up one user's lab: a Namespace, a ResourceQuota, a NetworkPolicy,
// a Service, Secrets, ConfigMaps, and the Pod itself. Build is a pure
// function of its arguments: it never calls the Kubernetes API and never
// reads the clock, so identical inputs always produce byte-identical
// objects (modulo fields Kubernetes assigns on create, like uid and
// resourceVersion).
package k8sobject

// HomeDirectorySchema selects how a user's home directory path (and the
// Pod's working directory) is constructed from their username.
type HomeDirectorySchema string

const (
	// HomeUsername mounts the home directory at /home/<username>.
	HomeUsername HomeDirectorySchema = "username"
	// HomeInitialThenUsername mounts at /home/<firstletter>/<username>.
	HomeInitialThenUsername HomeDirectorySchema = "initialThenUsername"
	// HomeInitialThenUsernameNested mounts at
	// /home/<firstletter>/<username>/<username>, matching sites that
	// nest a per-user subdirectory inside a shared initial-letter share.
	HomeInitialThenUsernameNested HomeDirectorySchema = "initialThenUsernameNested"
)

// FileBrowserRoot bounds how far up the filesystem the Lab's file
// browser UI may navigate.
type FileBrowserRoot string

const (
	FileBrowserRootHome      FileBrowserRoot = "home"
	FileBrowserRootContainer FileBrowserRoot = "container"
)

// LabSize names one of the operator-configured t-shirt sizes a user may
// request; its resource quantities come from LabConfig.Sizes.
type LabSize string

// ResourceQuantum is the CPU/memory pair a LabSize resolves to.
type ResourceQuantum struct {
	CPU    float64
	Memory string
}

// SecretSource describes one secret key projected from a controller-
// namespace Secret into the lab namespace's Secret.
type SecretSource struct {
	SourceName string
	SourceKey  string
	TargetKey  string
}

// FileSource is one static file mounted verbatim into the lab, keyed by
// its mount-relative name.
type FileSource struct {
	Name     string
	Contents string
	Mode     int32
}

// LabOptions is the normalized form of a spawn request body: exactly one
// image selector has already been resolved to a concrete image by the
// caller, and size/debug/reset flags have already been parsed out of
// their stringly-typed wire representation.
type LabOptions struct {
	Size             LabSize
	EnableDebug      bool
	ResetUserEnv     bool
	Env              map[string]string
}

// LabSpec is everything about a user's lab request that isn't already
// captured by the resolved image or the merged runtime config: their
// chosen size/env, plus the handful of per-site knobs original_source's
// SharedLabConfig carries (alternate command, config dir, secret mount
// path, tmp-on-disk).
type LabSpec struct {
	Options LabOptions

	NamespacePrefix string
	PullSecretName  string

	HomeDirectorySchema HomeDirectorySchema
	FileBrowserRoot     FileBrowserRoot
	TmpOnDisk           bool

	Command        []string
	ConfigDir       string
	SecretMountPath string

	Sizes map[LabSize]ResourceQuantum

	ExtraAnnotations map[string]string
	ExtraSecrets     []SecretSource
	ExtraFiles       []FileSource

	CPUGuaranteeFraction float64 // fraction of the size's CPU reserved as the request; 1.0 means guarantee == limit
}
