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

package imagetag

// Type is the release series a tag belongs to. The zero value is not a
// valid Type; always use one of the named constants below.
//
// Order here is also menu order: types listed first sort earlier when
// a spawn form groups images by type.
type Type string

const (
	Alias        Type = "Alias"
	Release      Type = "Release"
	Weekly       Type = "Weekly"
	Daily        Type = "Daily"
	Candidate    Type = "Release Candidate"
	Experimental Type = "Experimental"
	Unknown      Type = "Unknown"
)

// Types lists every Type in menu display order.
var Types = []Type{Alias, Release, Weekly, Daily, Candidate, Experimental, Unknown}
