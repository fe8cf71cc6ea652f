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

package lab

import "sync"

// userLocks is a lazily-populated, per-username mutex registry: exactly
// one goroutine at a time may hold a given user's lock, while unrelated
// users proceed independently. Grounded on the teacher's
// singleton-plus-guarded-map idiom (lib/pullmode/manager.go's
// stagedManager), adapted from a package-level singleton keyed by a
// compound cluster/requestor string to an instance-scoped registry keyed
// by username, since this controller constructs one Manager per process
// rather than reaching for package-level state.
type userLocks struct {
	locks sync.Map // string -> *sync.Mutex
}

// lock blocks until username's mutex is held and returns a function
// that releases it. The returned function must be called exactly once.
func (u *userLocks) lock(username string) func() {
	v, _ := u.locks.LoadOrStore(username, &sync.Mutex{})
	m := v.(*sync.Mutex)
	m.Lock()
	return m.Unlock
}
