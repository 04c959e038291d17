// Copyright (c) 2023 xCherryIO Organization
// SPDX-License-Identifier: Apache-2.0

package tasksource

import (
	"context"
	"time"
)

// Client is the narrow interface to the workflow engine that owns the tasks and their locks.
// ExtendLock and Complete fail with a *RejectedError if workerId is not the current lock holder
// or if the lock has expired.
type Client interface {
	FetchAndLock(ctx context.Context, request FetchAndLockRequest) ([]LockedTask, error)
	ExtendLock(ctx context.Context, taskId, workerId string, newDuration time.Duration) error
	Complete(ctx context.Context, request CompleteRequest) error
	StartProcess(ctx context.Context, processDefinitionKey string, variables Variables) (*ProcessInstance, error)
}

// TaskService is the Client bound to one worker identity, as handed to a TaskHandler
type TaskService interface {
	ExtendLock(ctx context.Context, task LockedTask, newDuration time.Duration) error
	Complete(ctx context.Context, task LockedTask, variables Variables) error
}

// TaskHandler handles one locked task. A returned error is logged by the subscription,
// it never stops the subscription.
type TaskHandler interface {
	Handle(ctx context.Context, task LockedTask, svc TaskService) error
}

type TaskHandlerFunc func(ctx context.Context, task LockedTask, svc TaskService) error

func (f TaskHandlerFunc) Handle(ctx context.Context, task LockedTask, svc TaskService) error {
	return f(ctx, task, svc)
}
