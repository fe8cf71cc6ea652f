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

// Package notifier posts best-effort Slack alerts when a lab spawn or
// prepull fails. Alerting never blocks or fails the operation it
// reports on: every call is fired from a goroutine and errors are only
// logged.
package notifier

import (
	"context"
	"fmt"

	"github.com/go-logr/logr"
	"github.com/go-resty/resty/v2"

	"github.com/lsst-sqre/nublado-controller/internal/apierror"
)

// Notifier posts apierror.APIError failures to a Slack incoming webhook.
type Notifier struct {
	http       *resty.Client
	webhookURL string
}

// New builds a Notifier that posts to webhookURL. An empty webhookURL is
// permitted and makes every Notify call a silent no-op, so alerting can
// be disabled by configuration rather than by a nil check at every call
// site.
func New(webhookURL string) *Notifier {
	return &Notifier{http: resty.New(), webhookURL: webhookURL}
}

// slackPayload is the minimal Slack incoming-webhook message body.
type slackPayload struct {
	Text string `json:"text"`
}

// Notify renders err's Slack blocks and posts them asynchronously.
// Notify itself returns immediately; the caller never waits on delivery.
func (n *Notifier) Notify(ctx context.Context, err apierror.APIError, logger logr.Logger) {
	if n == nil || n.webhookURL == "" {
		return
	}
	go n.send(ctx, err, logger)
}

func (n *Notifier) send(ctx context.Context, err apierror.APIError, logger logr.Logger) {
	resp, sendErr := n.http.R().
		SetContext(ctx).
		SetBody(slackPayload{Text: err.SlackBlocks()}).
		Post(n.webhookURL)
	if sendErr != nil {
		logger.Error(sendErr, "posting slack alert")
		return
	}
	if resp.IsError() {
		logger.Error(fmt.Errorf("slack webhook returned %s", resp.Status()),
			"posting slack alert", "status", resp.StatusCode())
	}
}
