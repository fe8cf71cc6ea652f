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

// Package logsettings defines the logr verbosity levels shared by every
// package in this module, so call sites read `logger.V(logsettings.LogInfo)`
// instead of magic numbers.
package logsettings

// logr verbosity levels. Lower numbers are more important and are always
// printed; higher numbers are printed only when verbosity is raised.
const (
	// LogInfo is for messages an operator normally wants to see.
	LogInfo = 0

	// LogDebug is for messages useful while debugging a specific lab or
	// prepull, too noisy for normal operation.
	LogDebug = 1

	// LogVerbose is for the noisiest detail, useful only when tracing a
	// single request end to end.
	LogVerbose = 2
)
