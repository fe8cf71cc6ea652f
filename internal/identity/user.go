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

// Package identity talks to the Gafaelfawr-shaped identity service that
// fronts every user request: it resolves a bearer token into the user
// metadata (uid, gid, groups, quota) the lab builder and spawn form need.
package identity

// UserGroup is one POSIX-style group a user belongs to, mirroring
// Gafaelfawr's UserGroup model.
type UserGroup struct {
	Name string `json:"name"`
	ID   int    `json:"id"`
}

// NotebookQuota bounds what a user's lab may consume and whether they
// may spawn one at all.
type NotebookQuota struct {
	CPU         float64 `json:"cpu"`
	MemoryBytes int64   `json:"memory_bytes"`
	Spawn       bool    `json:"spawn"`
}

// Quota is the subset of Gafaelfawr's quota document the controller
// cares about; API quota (request-rate limiting) passes through
// untouched since nothing here enforces it.
type Quota struct {
	API      map[string]any `json:"api,omitempty"`
	Notebook *NotebookQuota `json:"notebook,omitempty"`
}

// UserInfo is what Gafaelfawr's user-info endpoint returns.
type UserInfo struct {
	Username string      `json:"username"`
	Name     *string     `json:"name,omitempty"`
	UID      int         `json:"uid"`
	GID      int         `json:"gid"`
	Groups   []UserGroup `json:"groups"`
	Quota    *Quota      `json:"quota,omitempty"`
}

// User bundles UserInfo with the notebook token the request arrived
// with, matching original_source's GafaelfawrUser(GafaelfawrUserInfo)
// composition: the token rides alongside the identity metadata so it
// can be handed to the spawned lab without a second round trip.
type User struct {
	UserInfo
	Token string `json:"token"`
}

// CanSpawn reports whether the user's quota permits spawning a lab.
// A user with no notebook quota information at all is allowed: quota
// enforcement is opt-in per original_source's "quota?" optionality.
func (u User) CanSpawn() bool {
	if u.Quota == nil || u.Quota.Notebook == nil {
		return true
	}
	return u.Quota.Notebook.Spawn
}

// PrimaryGroup returns the group matching the user's GID, if any.
func (u User) PrimaryGroup() (UserGroup, bool) {
	for _, g := range u.Groups {
		if g.ID == u.GID {
			return g, true
		}
	}
	return UserGroup{}, false
}
