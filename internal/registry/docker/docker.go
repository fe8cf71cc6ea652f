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

// Package docker is the image source adapter for a plain Docker
// Registry v2 endpoint: it lists a repository's tags and resolves each
// one to its manifest digest. Unlike Google Artifact Registry, a v2
// registry has no concept of "these tags share a digest" in its list
// response, so alias resolution for this source happens entirely inside
// internal/image.Collection.Add as tags are ingested one at a time.
package docker

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/google/go-containerregistry/pkg/authn"
	"github.com/google/go-containerregistry/pkg/name"
	"github.com/google/go-containerregistry/pkg/v1/remote"

	"github.com/lsst-sqre/nublado-controller/internal/apierror"
)

// Tag is one repository tag and the digest it currently resolves to.
type Tag struct {
	Name   string
	Digest string
}

// Source lists the tags of one repository on one Docker Registry v2
// host.
type Source struct {
	registry   string
	repository string
	keychain   authn.Keychain
}

// New builds a Source against registry/repository, authenticating with
// the docker config JSON at credentialsPath if one is given. An empty
// credentialsPath, or one naming a file that does not exist, falls back
// to authn.DefaultKeychain.
func New(registry, repository, credentialsPath string) (*Source, error) {
	kc, err := keychainFromConfig(credentialsPath)
	if err != nil {
		return nil, fmt.Errorf("loading docker credentials: %w", err)
	}
	return &Source{registry: registry, repository: repository, keychain: kc}, nil
}

// List returns every tag currently in the repository along with the
// digest it resolves to.
func (s *Source) List(ctx context.Context) ([]Tag, error) {
	repo, err := name.NewRepository(s.registry + "/" + s.repository)
	if err != nil {
		return nil, fmt.Errorf("parsing repository %s/%s: %w", s.registry, s.repository, err)
	}

	names, err := remote.List(repo, remote.WithContext(ctx), remote.WithAuthFromKeychain(s.keychain))
	if err != nil {
		return nil, apierror.NewUpstreamError("docker registry", 0, err)
	}

	out := make([]Tag, 0, len(names))
	for _, tagName := range names {
		ref := repo.Tag(tagName)
		desc, err := remote.Head(ref, remote.WithContext(ctx), remote.WithAuthFromKeychain(s.keychain))
		if err != nil {
			// A tag that's been deleted between List and Head is not
			// this refresh's problem to solve; skip it and keep going
			// rather than failing the whole inventory over one race.
			continue
		}
		out = append(out, Tag{Name: tagName, Digest: desc.Digest.String()})
	}
	return out, nil
}

// dockerConfig is the handful of fields of ~/.docker/config.json this
// adapter reads; it ignores credential helpers and credsStore, which
// are not relevant to a service account token mounted as a file.
type dockerConfig struct {
	Auths map[string]struct {
		Auth     string `json:"auth"`
		Username string `json:"username"`
		Password string `json:"password"`
	} `json:"auths"`
}

type staticKeychain struct {
	byHost map[string]authn.AuthConfig
}

func (k *staticKeychain) Resolve(target authn.Resource) (authn.Authenticator, error) {
	cfg, ok := k.byHost[target.RegistryStr()]
	if !ok {
		return authn.Anonymous, nil
	}
	return authn.FromConfig(cfg), nil
}

func keychainFromConfig(path string) (authn.Keychain, error) {
	if path == "" {
		return authn.DefaultKeychain, nil
	}
	raw, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return authn.DefaultKeychain, nil
	}
	if err != nil {
		return nil, err
	}
	var cfg dockerConfig
	if err := json.Unmarshal(raw, &cfg); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	byHost := make(map[string]authn.AuthConfig, len(cfg.Auths))
	for host, entry := range cfg.Auths {
		byHost[host] = authn.AuthConfig{Auth: entry.Auth, Username: entry.Username, Password: entry.Password}
	}
	return &staticKeychain{byHost: byHost}, nil
}
