// Copyright (c) 2023 xCherryIO Organization
// SPDX-License-Identifier: Apache-2.0

package devengine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/xcherryio/creditbridge/tasksource"
)

var (
	ErrNotFound = errors.New("not found")
	// ErrInvalidVariables is returned by a RouteFunc refusing the completion
	ErrInvalidVariables = errors.New("invalid variables")
)

// LockError is a compare-and-set failure on the lock of a task
type LockError struct {
	TaskId   string
	WorkerId string
	Reason   string
}

func (e *LockError) Error() string {
	return fmt.Sprintf("external task %v cannot be accessed by worker %v: %v", e.TaskId, e.WorkerId, e.Reason)
}

func IsLockError(err error) bool {
	var lockErr *LockError
	return errors.As(err, &lockErr)
}

type Task struct {
	Id                string
	TopicName         string
	ProcessInstanceId string
	Variables         tasksource.Variables
	// WorkerId is the last lock holder, the lock is held only until LockExpirationTime
	WorkerId           string
	LockExpirationTime time.Time
	Completed          bool
	CreatedAt          time.Time
}

// IsLockedAt returns true when someone holds a live lock at now
func (t Task) IsLockedAt(now time.Time) bool {
	return t.WorkerId != "" && t.LockExpirationTime.After(now)
}

type Process struct {
	Id            string
	DefinitionKey string
	Variables     tasksource.Variables
	Ended         bool
	CreatedAt     time.Time
}

type TopicLock struct {
	TopicName    string
	LockDuration time.Duration
}

// RouteFunc decides what follows a completed task, given the process variables
// with the completion variables merged in. A nil next task and end false leaves the process waiting.
type RouteFunc func(completed Task, variables tasksource.Variables) (next *Task, end bool, err error)

type CompleteParams struct {
	TaskId    string
	WorkerId  string
	Variables tasksource.Variables
	Now       time.Time
	Route     RouteFunc
}

// Store is the lock table. Every lock operation is a compare-and-set on the holder and the expiry.
type Store interface {
	CreateProcess(ctx context.Context, process Process, first Task) error
	GetProcess(ctx context.Context, processId string) (Process, error)
	GetTask(ctx context.Context, taskId string) (Task, error)
	// FetchAndLock locks up to maxTasks tasks of the topics which are not completed and not locked at now
	FetchAndLock(ctx context.Context, workerId string, topics []TopicLock, maxTasks int, now time.Time) ([]Task, error)
	// ExtendLock sets the expiry of a live lock held by workerId
	ExtendLock(ctx context.Context, taskId, workerId string, until time.Time, now time.Time) error
	// Complete completes a task under a live lock held by workerId, merges the variables into
	// the process and applies the route atomically
	Complete(ctx context.Context, params CompleteParams) error
	Close() error
}

// checkLock returns why workerId can't operate on the task at now, nil if it can
func checkLock(task Task, workerId string, now time.Time) error {
	if task.Completed {
		return fmt.Errorf("external task %v is completed: %w", task.Id, ErrNotFound)
	}
	if task.WorkerId != workerId {
		return &LockError{TaskId: task.Id, WorkerId: workerId, Reason: fmt.Sprintf("it is locked by worker %v", task.WorkerId)}
	}
	if !task.LockExpirationTime.After(now) {
		return &LockError{TaskId: task.Id, WorkerId: workerId, Reason: "the lock has expired"}
	}
	return nil
}

func mergeVariables(base, update tasksource.Variables) tasksource.Variables {
	merged := make(tasksource.Variables, len(base)+len(update))
	for k, v := range base {
		merged[k] = v
	}
	for k, v := range update {
		merged[k] = v
	}
	return merged
}

func topicLockDuration(topics []TopicLock, topicName string) (time.Duration, bool) {
	for _, t := range topics {
		if t.TopicName == topicName {
			return t.LockDuration, true
		}
	}
	return 0, false
}
