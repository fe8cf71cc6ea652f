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

// Package apierror is the typed error taxonomy returned by the HTTP API
// and fed to the Slack notifier. Every error knows its own HTTP status
// and can render itself as a block of Slack markdown.
package apierror

import (
	"fmt"
	"net/http"
	"time"

	"github.com/pkg/errors"
)

// APIError is implemented by every error type in this package.
type APIError interface {
	error
	// Status is the HTTP status code this error should be reported as.
	Status() int
	// SlackBlocks renders the error as Slack markdown, for the
	// notifier to post to an alert channel.
	SlackBlocks() string
}

// InputError reports a malformed or invalid request body.
type InputError struct {
	Message string
}

func (e *InputError) Error() string    { return e.Message }
func (e *InputError) Status() int      { return http.StatusUnprocessableEntity }
func (e *InputError) SlackBlocks() string {
	return fmt.Sprintf(":warning: *input error*\n%s", e.Message)
}

// NewInputError wraps cause, if any, into an InputError.
func NewInputError(message string, cause error) *InputError {
	if cause != nil {
		message = fmt.Sprintf("%s: %s", message, cause)
	}
	return &InputError{Message: message}
}

// AuthError reports a missing or insufficient token.
type AuthError struct {
	Message string
	Forbidden bool
}

func (e *AuthError) Error() string { return e.Message }

func (e *AuthError) Status() int {
	if e.Forbidden {
		return http.StatusForbidden
	}
	return http.StatusUnauthorized
}

func (e *AuthError) SlackBlocks() string {
	return fmt.Sprintf(":lock: *auth error*\n%s", e.Message)
}

// ConflictError reports a request for something that already exists, e.g.
// a lab spawn for a user who already has one.
type ConflictError struct {
	Message string
}

func (e *ConflictError) Error() string    { return e.Message }
func (e *ConflictError) Status() int      { return http.StatusConflict }
func (e *ConflictError) SlackBlocks() string {
	return fmt.Sprintf(":twisted_rightwards_arrows: *conflict*\n%s", e.Message)
}

// NotFoundError reports that the named user, lab, or image does not exist.
type NotFoundError struct {
	Message string
}

func (e *NotFoundError) Error() string    { return e.Message }
func (e *NotFoundError) Status() int      { return http.StatusNotFound }
func (e *NotFoundError) SlackBlocks() string {
	return fmt.Sprintf(":mag: *not found*\n%s", e.Message)
}

// TimeoutError reports that a long-running operation (spawn, delete) did
// not complete within its deadline.
type TimeoutError struct {
	Operation string
	User      string
	StartedAt time.Time
	FailedAt  time.Time
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("%s for user %s timed out after %s", e.Operation, e.User, e.FailedAt.Sub(e.StartedAt))
}

func (e *TimeoutError) Status() int { return http.StatusInternalServerError }

func (e *TimeoutError) SlackBlocks() string {
	return fmt.Sprintf(":hourglass: *timeout*\noperation=%s user=%s duration=%s",
		e.Operation, e.User, e.FailedAt.Sub(e.StartedAt))
}

// NewTimeoutError records the operation/user/start time at the moment the
// deadline is detected; FailedAt is set to now.
func NewTimeoutError(operation, user string, startedAt time.Time) *TimeoutError {
	return &TimeoutError{Operation: operation, User: user, StartedAt: startedAt, FailedAt: time.Now()}
}

// KubernetesError wraps a failure returned by the Kubernetes API server.
type KubernetesError struct {
	Kind      string
	Namespace string
	Name      string
	HTTPStatus int
	Body      string
	cause     error
}

func (e *KubernetesError) Error() string {
	return fmt.Sprintf("kubernetes error on %s %s/%s: %s", e.Kind, e.Namespace, e.Name, e.cause)
}

func (e *KubernetesError) Status() int { return http.StatusInternalServerError }

func (e *KubernetesError) SlackBlocks() string {
	return fmt.Sprintf(":boom: *kubernetes error*\nkind=%s namespace=%s name=%s status=%d\n```%s```",
		e.Kind, e.Namespace, e.Name, e.HTTPStatus, e.Body)
}

func (e *KubernetesError) Unwrap() error { return e.cause }

// WrapKubernetesError attaches object identity to a client-go/controller-runtime
// error returned while acting on a Kubernetes object.
func WrapKubernetesError(kind, namespace, name string, status int, cause error) *KubernetesError {
	return &KubernetesError{
		Kind: kind, Namespace: namespace, Name: name,
		HTTPStatus: status, Body: cause.Error(),
		cause: errors.Wrap(cause, fmt.Sprintf("%s %s/%s", kind, namespace, name)),
	}
}

// DuplicateObjectError reports that the reconciler found more than one
// Kubernetes object where it expected at most one (e.g. two Pods for the
// same user's lab namespace).
type DuplicateObjectError struct {
	Kind      string
	Namespace string
	Names     []string
}

func (e *DuplicateObjectError) Error() string {
	return fmt.Sprintf("duplicate %s objects in namespace %s: %v", e.Kind, e.Namespace, e.Names)
}

func (e *DuplicateObjectError) Status() int { return http.StatusInternalServerError }

func (e *DuplicateObjectError) SlackBlocks() string {
	return fmt.Sprintf(":large_orange_diamond: *duplicate object*\nkind=%s namespace=%s names=%v",
		e.Kind, e.Namespace, e.Names)
}

// UpstreamError wraps a failure from a service this controller depends on
// but does not own: the identity service, a Docker registry, GAR.
type UpstreamError struct {
	Service string
	status  int
	cause   error
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("upstream error from %s: %s", e.Service, e.cause)
}

func (e *UpstreamError) Status() int {
	if e.status != 0 {
		return e.status
	}
	return http.StatusBadGateway
}

func (e *UpstreamError) SlackBlocks() string {
	return fmt.Sprintf(":satellite: *upstream error*\nservice=%s\n```%s```", e.Service, e.cause)
}

func (e *UpstreamError) Unwrap() error { return e.cause }

// NewUpstreamError wraps cause as coming from service, reporting status
// (or 502 if status is zero, meaning no response was received at all).
func NewUpstreamError(service string, status int, cause error) *UpstreamError {
	return &UpstreamError{Service: service, status: status, cause: errors.Wrap(cause, service)}
}
