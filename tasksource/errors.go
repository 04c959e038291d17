// Copyright (c) 2023 xCherryIO Organization
// SPDX-License-Identifier: Apache-2.0

package tasksource

import (
	"errors"
	"fmt"
	"net/http"
)

// RejectedError is returned when the engine refused the request: the lock is held by someone else,
// it has expired, the task is already completed or doesn't exist.
// Retrying it is meaningless.
type RejectedError struct {
	StatusCode int
	Type       string
	Message    string
}

func (e *RejectedError) Error() string {
	return fmt.Sprintf("rejected by task source, status %v, %v: %v", e.StatusCode, e.Type, e.Message)
}

// TransportError is a network failure, a timeout or a 5xx from the engine.
// The request may or may not have been applied.
type TransportError struct {
	StatusCode int
	Cause      error
}

func (e *TransportError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("task source transport error, status %v: %v", e.StatusCode, e.Cause)
	}
	return fmt.Sprintf("task source transport error, status %v", e.StatusCode)
}

func (e *TransportError) Unwrap() error {
	return e.Cause
}

func IsRejected(err error) bool {
	var rejected *RejectedError
	return errors.As(err, &rejected)
}

func IsTransportError(err error) bool {
	var transportErr *TransportError
	return errors.As(err, &transportErr)
}

// IsTaskGone returns true when the engine no longer has the task to offer: it's completed or unknown.
// Any other rejection means the lock was lost, and the task comes back once the lock expires.
func IsTaskGone(err error) bool {
	var rejected *RejectedError
	return errors.As(err, &rejected) && rejected.StatusCode == http.StatusNotFound
}
