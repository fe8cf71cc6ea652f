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

// Package stringset provides a small unordered set of strings, used for
// image aliases and node-name membership.
package stringset

// Set is an unordered collection of unique strings.
type Set struct {
	data map[string]struct{}
}

// New returns a Set containing the given entries.
func New(entries ...string) *Set {
	s := &Set{}
	for _, e := range entries {
		s.Insert(e)
	}
	return s
}

func (s *Set) init() {
	if s.data == nil {
		s.data = make(map[string]struct{})
	}
}

// Insert adds entry to the set.
func (s *Set) Insert(entry string) {
	s.init()
	s.data[entry] = struct{}{}
}

// Erase removes entry from the set.
func (s *Set) Erase(entry string) {
	s.init()
	delete(s.data, entry)
}

// Has returns true if entry is currently part of the set.
func (s *Set) Has(entry string) bool {
	s.init()
	_, ok := s.data[entry]
	return ok
}

// Len returns the number of entries in the set.
func (s *Set) Len() int {
	return len(s.data)
}

// Items returns a slice with all elements currently in the set, in no
// particular order.
func (s *Set) Items() []string {
	keys := make([]string, 0, s.Len())
	for k := range s.data {
		keys = append(keys, k)
	}
	return keys
}

// Difference returns all elements which are in s but not in b.
func (s *Set) Difference(b *Set) []string {
	results := make([]string, 0)
	for entry := range s.data {
		if !b.Has(entry) {
			results = append(results, entry)
		}
	}
	return results
}

// IsSupersetOf returns true if every entry of b is also in s.
func (s *Set) IsSupersetOf(b *Set) bool {
	if b == nil {
		return true
	}
	for entry := range b.data {
		if !s.Has(entry) {
			return false
		}
	}
	return true
}

// Clone returns a shallow copy of the set.
func (s *Set) Clone() *Set {
	out := &Set{}
	out.init()
	for k := range s.data {
		out.data[k] = struct{}{}
	}
	return out
}
