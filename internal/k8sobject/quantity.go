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

	"k8s.io/apimachinery/pkg/api/resource"
)

// mustParseQuantity parses s as a resource.Quantity. Every caller passes
// a string this package itself produced via internal/units, so a parse
// failure here means a logic bug, not bad input: panicking is the
// correct signal, same as it would be for any other internal
// invariant violation.
func mustParseQuantity(s string) resource.Quantity {
	q, err := resource.ParseQuantity(s)
	if err != nil {
		panic(fmt.Sprintf("k8sobject: internal quantity %q failed to parse: %v", s, err))
	}
	return q
}
