// Copyright (c) 2023 xCherryIO Organization
// SPDX-License-Identifier: Apache-2.0

package tasksource

import (
	"context"
	"time"
)

type taskServiceImpl struct {
	client   Client
	workerId string
}

// NewTaskService binds the client to the lock owner identity
func NewTaskService(client Client, workerId string) TaskService {
	return &taskServiceImpl{
		client:   client,
		workerId: workerId,
	}
}

func (s *taskServiceImpl) ExtendLock(ctx context.Context, task LockedTask, newDuration time.Duration) error {
	return s.client.ExtendLock(ctx, task.Id, s.workerId, newDuration)
}

func (s *taskServiceImpl) Complete(ctx context.Context, task LockedTask, variables Variables) error {
	return s.client.Complete(ctx, CompleteRequest{
		TaskId:    task.Id,
		WorkerId:  s.workerId,
		Variables: variables,
	})
}
