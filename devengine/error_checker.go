// Copyright (c) 2023 xCherryIO Organization
// SPDX-License-Identifier: Apache-2.0

package devengine

import (
	"context"
	"errors"

	"github.com/lib/pq"
)

// check http://www.postgresql.org/docs/9.3/static/errcodes-appendix.html
const (
	errInsufficientResources = "53000"
	errTooManyConnections    = "53300"
	errSerializationFailure  = "40001"
	errDeadlockDetected      = "40P01"
)

// IsUnavailableError returns true when the lock table can't serve right now and the
// caller should try again later
func IsUnavailableError(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var sqlErr *pq.Error
	if errors.As(err, &sqlErr) {
		switch sqlErr.Code {
		case errTooManyConnections, errInsufficientResources, errSerializationFailure, errDeadlockDetected:
			return true
		}
	}
	return false
}
