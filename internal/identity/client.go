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

package identity

import (
	"context"
	"fmt"
	"time"

	"github.com/go-logr/logr"
	"github.com/go-resty/resty/v2"
	"github.com/pkg/errors"

	"github.com/lsst-sqre/nublado-controller/internal/apierror"
)

// TokenInfo is what the identity service's token-info endpoint returns.
type TokenInfo struct {
	Token  string   `json:"token"`
	Scopes []string `json:"scopes"`
}

// Client resolves bearer tokens into user metadata against a
// Gafaelfawr-shaped identity service.
type Client struct {
	http    *resty.Client
	baseURL string
}

// NewClient builds a Client whose requests target baseURL, timing out
// after timeout (zero disables the timeout, matching resty's default).
func NewClient(baseURL string, timeout time.Duration) *Client {
	http := resty.New()
	if timeout > 0 {
		http.SetTimeout(timeout)
	}
	return &Client{http: http, baseURL: baseURL}
}

// UserInfo fetches the identity metadata for the user owning token.
func (c *Client) UserInfo(ctx context.Context, token string, logger logr.Logger) (*User, error) {
	logger.V(1).Info("fetching user info from identity service")

	var info UserInfo
	resp, err := c.http.R().
		SetContext(ctx).
		SetAuthToken(token).
		SetResult(&info).
		Get(c.baseURL + "/auth/api/v1/user-info")
	if err != nil {
		return nil, apierror.NewUpstreamError("identity", 0, errors.Wrap(err, "calling user-info"))
	}
	if resp.IsError() {
		if resp.StatusCode() == 401 || resp.StatusCode() == 403 {
			return nil, &apierror.AuthError{Message: "invalid token", Forbidden: resp.StatusCode() == 403}
		}
		return nil, apierror.NewUpstreamError("identity", resp.StatusCode(),
			fmt.Errorf("user-info returned %s", resp.Status()))
	}

	return &User{UserInfo: info, Token: token}, nil
}

// TokenInfo fetches the scopes bound to token.
func (c *Client) TokenInfo(ctx context.Context, token string, logger logr.Logger) (*TokenInfo, error) {
	logger.V(1).Info("fetching token info from identity service")

	var info TokenInfo
	resp, err := c.http.R().
		SetContext(ctx).
		SetAuthToken(token).
		SetResult(&info).
		Get(c.baseURL + "/auth/api/v1/token-info")
	if err != nil {
		return nil, apierror.NewUpstreamError("identity", 0, errors.Wrap(err, "calling token-info"))
	}
	if resp.IsError() {
		if resp.StatusCode() == 401 || resp.StatusCode() == 403 {
			return nil, &apierror.AuthError{Message: "invalid token", Forbidden: resp.StatusCode() == 403}
		}
		return nil, apierror.NewUpstreamError("identity", resp.StatusCode(),
			fmt.Errorf("token-info returned %s", resp.Status()))
	}

	return &info, nil
}
