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

import (
	"context"
	"time"
)

// Start runs one reconcile pass immediately, then repeats on
// cfg.ReconcileInterval until ctx is done.
func (m *Manager) Start(ctx context.Context) {
	m.reconcileAndLog(ctx)

	ticker := time.NewTicker(m.cfg.ReconcileInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.reconcileAndLog(ctx)
		}
	}
}

func (m *Manager) reconcileAndLog(ctx context.Context) {
	if err := m.Reconcile(ctx); err != nil {
		m.logger.Error(err, "reconcile pass failed")
	}
}
