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

// Package units converts between human-written resource quantities and the
// numbers the lab manager needs for arithmetic (deriving a Large lab's
// limits from a Small lab's requests, for instance).
package units

import (
	"fmt"

	"k8s.io/apimachinery/pkg/api/resource"
)

// MemoryToBytes parses a Kubernetes memory quantity string (e.g. "3Gi",
// "512M") into a number of bytes.
func MemoryToBytes(memory string) (int64, error) {
	q, err := resource.ParseQuantity(memory)
	if err != nil {
		return 0, fmt.Errorf("invalid memory quantity %q: %w", memory, err)
	}
	return q.Value(), nil
}

// BytesToSI renders a byte count using Kubernetes' binary SI suffixes
// (Ki, Mi, Gi, ...), suitable for use in a resource spec.
func BytesToSI(val int64) string {
	q := resource.NewQuantity(val, resource.BinarySI)
	return q.String()
}

// CPUToCores converts a Kubernetes CPU resource value (e.g. "500m", "1.5")
// into a floating point number of cores.
func CPUToCores(cpu string) (float64, error) {
	q, err := resource.ParseQuantity(cpu)
	if err != nil {
		return 0, fmt.Errorf("invalid cpu quantity %q: %w", cpu, err)
	}
	return float64(q.MilliValue()) / 1000, nil
}

// CoresToCPU renders a number of cores as a Kubernetes CPU quantity string,
// using milli-core precision.
func CoresToCPU(cores float64) string {
	q := resource.NewMilliQuantity(int64(cores*1000), resource.DecimalSI)
	return q.String()
}
