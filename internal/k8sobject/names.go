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

import "fmt"

// NamespaceName returns the namespace a user's lab lives in.
func NamespaceName(prefix, username string) string {
	return fmt.Sprintf("%s-%s", prefix, username)
}

// HomeDirectory returns the path the user's home directory is mounted
// at, and must match the passwd line generated for the same schema.
func HomeDirectory(schema HomeDirectorySchema, username string) string {
	switch schema {
	case HomeInitialThenUsername:
		return fmt.Sprintf("/home/%c/%s", firstRune(username), username)
	case HomeInitialThenUsernameNested:
		return fmt.Sprintf("/home/%c/%s/%s", firstRune(username), username, username)
	default:
		return fmt.Sprintf("/home/%s", username)
	}
}

func firstRune(s string) rune {
	for _, r := range s {
		return r
	}
	return '_'
}
