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

// Package config loads the controller's YAML configuration (with
// environment variable overrides) into typed structs using viper, the
// way every repo in this codebase's lineage configures itself.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
	corev1 "k8s.io/api/core/v1"

	"github.com/lsst-sqre/nublado-controller/internal/imagefilter"
	"github.com/lsst-sqre/nublado-controller/internal/k8sobject"
)

// SourceType identifies which registry backend a PrepullerConfig image
// source talks to.
type SourceType string

const (
	SourceDocker SourceType = "docker"
	SourceGoogle SourceType = "google"
)

// DockerSourceOptions points at a Docker Registry v2 endpoint.
type DockerSourceOptions struct {
	Type            SourceType `mapstructure:"type"`
	Registry        string     `mapstructure:"registry"`
	Repository      string     `mapstructure:"repository"`
	CredentialsPath string     `mapstructure:"credentialsPath"`
}

// GARSourceOptions points at a Google Artifact Registry repository.
//
// GAR's own terminology is unfortunate: its "repository" is a
// management grouping that doesn't include the image name, unlike
// everywhere else in this package where Repository means the image path
// within the registry host, without the host or the tag. GAR fields therefore
// keep Google's names (Location, Repository, Image) and expose the
// Docker-style values (Registry, Path) as derived methods.
type GARSourceOptions struct {
	Type      SourceType `mapstructure:"type"`
	Location  string     `mapstructure:"location"`
	ProjectID string     `mapstructure:"projectId"`
	Repository string    `mapstructure:"repository"`
	Image     string     `mapstructure:"image"`
}

// Registry is the hostname holding this GAR repository.
func (g GARSourceOptions) Registry() string {
	return fmt.Sprintf("%s-docker.pkg.dev", g.Location)
}

// Parent is the resource path GAR's List API expects.
func (g GARSourceOptions) Parent() string {
	return fmt.Sprintf("projects/%s/locations/%s/repositories/%s", g.ProjectID, g.Location, g.Repository)
}

// Path is what everywhere else in this package calls a repository.
func (g GARSourceOptions) Path() string {
	return fmt.Sprintf("%s/%s/%s", g.ProjectID, g.Repository, g.Image)
}

// PrepullerConfig drives which images the prepuller fetches, how often,
// and which are pinned to the spawn menu regardless of age.
type PrepullerConfig struct {
	SourceType      SourceType           `mapstructure:"-"`
	Docker          *DockerSourceOptions `mapstructure:"-"`
	GAR             *GARSourceOptions    `mapstructure:"-"`
	RefreshInterval time.Duration        `mapstructure:"refreshInterval"`
	RecommendedTag  string               `mapstructure:"recommendedTag"`
	NumReleases     int                  `mapstructure:"numReleases"`
	NumWeeklies     int                  `mapstructure:"numWeeklies"`
	NumDailies      int                  `mapstructure:"numDailies"`
	Cycle           *int                 `mapstructure:"cycle"`
	Pin             []string             `mapstructure:"pin"`
	AliasTags       []string             `mapstructure:"aliasTags"`
	// FilterPolicy bounds images by age and version floor in addition to
	// the plain Num* counts above; a category left zero-valued here is
	// bounded only by its Num* count. See imagefilter.Policy.
	FilterPolicy imagefilter.Policy `mapstructure:"filterPolicy"`

	// Namespace is where prepull Pods are created; it need not be (and
	// normally isn't) any user's lab namespace.
	Namespace string `mapstructure:"namespace"`
	// Tolerations lets prepull Pods land on nodes a plain toleration-less
	// Pod couldn't schedule onto (e.g. GPU or spot-instance pools).
	Tolerations []corev1.Toleration `mapstructure:"tolerations"`
	// Concurrency bounds how many prepull Pods run at once across the
	// whole cluster.
	Concurrency int `mapstructure:"concurrency"`
}

// SizeConfig is the YAML-facing form of k8sobject.ResourceQuantum: one
// t-shirt size's CPU/memory pair, keyed by name in LabConfig.Sizes.
type SizeConfig struct {
	CPU    float64 `mapstructure:"cpu"`
	Memory string  `mapstructure:"memory"`
}

// SecretSourceConfig is the YAML-facing form of k8sobject.SecretSource.
type SecretSourceConfig struct {
	SourceName string `mapstructure:"secretName"`
	SourceKey  string `mapstructure:"secretKey"`
	TargetKey  string `mapstructure:"targetKey"`
}

// LabConfig bounds resources and timeouts for spawned labs, and carries
// the per-site knobs original_source's SharedLabConfig mixes into every
// lab's Pod spec.
type LabConfig struct {
	Namespace      string        `mapstructure:"namespace"`
	SpawnTimeout   time.Duration `mapstructure:"spawnTimeout"`
	DeleteTimeout  time.Duration `mapstructure:"deleteTimeout"`
	IngressTimeout time.Duration `mapstructure:"ingressTimeout"`
	// GracePeriod is the minimum age a lab namespace must reach before a
	// Reconcile pass acts on it, so a spawn still in flight is not
	// mistaken for orphaned residue.
	GracePeriod    time.Duration `mapstructure:"gracePeriod"`
	// ReconcileInterval is how often the reconciler walks the cluster
	// looking for untracked or orphaned lab namespaces, in addition to
	// the one pass it always runs at startup.
	ReconcileInterval time.Duration `mapstructure:"reconcileInterval"`
	PullSecretName    string        `mapstructure:"pullSecretName"`
	DefaultSize       string        `mapstructure:"defaultSize"`

	HomeDirectorySchema k8sobject.HomeDirectorySchema `mapstructure:"homeDirectorySchema"`
	FileBrowserRoot     k8sobject.FileBrowserRoot     `mapstructure:"fileBrowserRoot"`
	TmpOnDisk           bool                          `mapstructure:"tmpOnDisk"`

	Command         []string `mapstructure:"command"`
	ConfigDir       string   `mapstructure:"configDir"`
	SecretMountPath string   `mapstructure:"secretMountPath"`

	Sizes map[string]SizeConfig `mapstructure:"sizes"`

	ExtraAnnotations map[string]string    `mapstructure:"extraAnnotations"`
	ExtraSecrets     []SecretSourceConfig `mapstructure:"extraSecrets"`

	// CPUGuaranteeFraction is the fraction of a size's CPU reserved as
	// the Pod's request; 1.0 means request == limit.
	CPUGuaranteeFraction float64 `mapstructure:"cpuGuaranteeFraction"`
}

// SpecSizes converts the configured t-shirt sizes into the form
// k8sobject.LabSpec expects.
func (c LabConfig) SpecSizes() map[k8sobject.LabSize]k8sobject.ResourceQuantum {
	out := make(map[k8sobject.LabSize]k8sobject.ResourceQuantum, len(c.Sizes))
	for name, size := range c.Sizes {
		out[k8sobject.LabSize(name)] = k8sobject.ResourceQuantum{CPU: size.CPU, Memory: size.Memory}
	}
	return out
}

// SpecExtraSecrets converts the configured extra secret projections into
// the form k8sobject.LabSpec expects.
func (c LabConfig) SpecExtraSecrets() []k8sobject.SecretSource {
	out := make([]k8sobject.SecretSource, 0, len(c.ExtraSecrets))
	for _, s := range c.ExtraSecrets {
		out = append(out, k8sobject.SecretSource{SourceName: s.SourceName, SourceKey: s.SourceKey, TargetKey: s.TargetKey})
	}
	return out
}

// Config is the full controller configuration, loaded from a YAML file
// (conventionally "config.yaml") with NUBLADO_-prefixed environment
// variables overriding individual keys.
type Config struct {
	Prepuller PrepullerConfig `mapstructure:"prepuller"`
	Lab       LabConfig       `mapstructure:"lab"`
	BaseURL   string          `mapstructure:"baseUrl"`

	// ListenAddr is the address the HTTP API binds to.
	ListenAddr string `mapstructure:"listenAddr"`

	// APIPathPrefix is mounted in front of every route in internal/httpapi.
	APIPathPrefix string `mapstructure:"apiPathPrefix"`

	// IdentityServiceBaseURL is the Gafaelfawr-compatible identity
	// service this controller calls to resolve a bearer token into a
	// User. See internal/identity.
	IdentityServiceBaseURL string `mapstructure:"identityServiceBaseUrl"`

	// SlackWebhookURL, if set, receives a message for every lab
	// operation that ends in an unexpected error. Empty disables
	// notification. See internal/notifier.
	SlackWebhookURL string `mapstructure:"slackWebhookUrl"`
}

// Load reads configuration from path (or, if path is empty, from the
// default search locations) using v, applying environment overrides,
// and decodes it into a Config.
func Load(v *viper.Viper, path string) (*Config, error) {
	if v == nil {
		v = viper.New()
	}
	v.SetEnvPrefix("NUBLADO")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("/etc/nublado")
	}

	applyDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("reading configuration: %w", err)
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("decoding configuration: %w", err)
	}

	sourceType := SourceType(v.GetString("prepuller.source.type"))
	cfg.Prepuller.SourceType = sourceType
	switch sourceType {
	case SourceDocker:
		opts := &DockerSourceOptions{}
		if err := v.UnmarshalKey("prepuller.source", opts); err != nil {
			return nil, fmt.Errorf("decoding docker source: %w", err)
		}
		cfg.Prepuller.Docker = opts
	case SourceGoogle:
		opts := &GARSourceOptions{}
		if err := v.UnmarshalKey("prepuller.source", opts); err != nil {
			return nil, fmt.Errorf("decoding GAR source: %w", err)
		}
		cfg.Prepuller.GAR = opts
	default:
		return nil, fmt.Errorf("unrecognized image source type %q", sourceType)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyDefaults(v *viper.Viper) {
	v.SetDefault("prepuller.refreshInterval", 5*time.Minute)
	v.SetDefault("prepuller.recommendedTag", "recommended")
	v.SetDefault("prepuller.numReleases", 1)
	v.SetDefault("prepuller.numWeeklies", 2)
	v.SetDefault("prepuller.numDailies", 3)
	v.SetDefault("lab.spawnTimeout", 10*time.Minute)
	v.SetDefault("lab.deleteTimeout", 1*time.Minute)
	v.SetDefault("lab.gracePeriod", 30*time.Second)
	v.SetDefault("lab.reconcileInterval", time.Minute)
	v.SetDefault("lab.homeDirectorySchema", "username")
	v.SetDefault("lab.fileBrowserRoot", "home")
	v.SetDefault("lab.cpuGuaranteeFraction", 1.0)
	v.SetDefault("prepuller.source.credentialsPath", "/etc/secrets/pull-secret.json")
	v.SetDefault("prepuller.namespace", "nublado-prepuller")
	v.SetDefault("prepuller.concurrency", 4)
	v.SetDefault("listenAddr", ":8080")
	v.SetDefault("apiPathPrefix", "/spawner/v1")
}

// Validate checks invariants Unmarshal can't enforce on its own: the
// open question about ingress timeout defaulting to twice the spawn
// timeout is resolved here, not left to a zero value.
func (c *Config) Validate() error {
	if c.Lab.Namespace == "" {
		return fmt.Errorf("lab.namespace is required")
	}
	if c.Lab.SpawnTimeout <= 0 {
		return fmt.Errorf("lab.spawnTimeout must be positive")
	}
	if c.Lab.IngressTimeout <= 0 {
		c.Lab.IngressTimeout = 2 * c.Lab.SpawnTimeout
	}
	if c.Prepuller.NumReleases < 0 || c.Prepuller.NumWeeklies < 0 || c.Prepuller.NumDailies < 0 {
		return fmt.Errorf("prepuller num* fields must not be negative")
	}
	if c.Prepuller.Concurrency <= 0 {
		c.Prepuller.Concurrency = 4
	}
	if len(c.Lab.Sizes) == 0 {
		return fmt.Errorf("lab.sizes must configure at least one size")
	}
	if _, ok := c.Lab.Sizes[c.Lab.DefaultSize]; c.Lab.DefaultSize != "" && !ok {
		return fmt.Errorf("lab.defaultSize %q is not one of lab.sizes", c.Lab.DefaultSize)
	}
	return nil
}
