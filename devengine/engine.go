// Copyright (c) 2023 xCherryIO Organization
// SPDX-License-Identifier: Apache-2.0

package devengine

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/xcherryio/creditbridge/common/log"
	"github.com/xcherryio/creditbridge/common/log/tag"
	"github.com/xcherryio/creditbridge/config"
	"github.com/xcherryio/creditbridge/handoff"
	"github.com/xcherryio/creditbridge/tasksource"
)

// DefaultScore is set on a started loan process without defaultScore
const DefaultScore = 5

// Engine is a reference task source running the loan process only:
// creditScoreChecker, then loanGranter when score >= threshold or requestRejecter otherwise.
type Engine struct {
	store             Store
	processKey        string
	approvalThreshold int
	now               func() time.Time
	logger            log.Logger

	lock sync.Mutex
	// newTaskCh is closed and replaced whenever a task is created, to wake up long polling fetches
	newTaskCh chan struct{}
}

func NewEngine(store Store, approvalThreshold int, logger log.Logger) *Engine {
	return NewEngineWithClock(store, approvalThreshold, time.Now, logger)
}

func NewEngineWithClock(store Store, approvalThreshold int, now func() time.Time, logger log.Logger) *Engine {
	return &Engine{
		store:             store,
		processKey:        config.DefaultProcessKey,
		approvalThreshold: approvalThreshold,
		now:               now,
		logger:            logger,
		newTaskCh:         make(chan struct{}),
	}
}

func (e *Engine) StartProcess(
	ctx context.Context, definitionKey string, variables tasksource.Variables,
) (*tasksource.ProcessInstance, error) {
	if definitionKey != e.processKey {
		return nil, fmt.Errorf("no process definition with key %v: %w", definitionKey, ErrNotFound)
	}
	vars := inferTypes(variables)
	if _, ok := vars[handoff.VarDefaultScore]; !ok {
		vars[handoff.VarDefaultScore] = tasksource.IntegerVariable(DefaultScore)
	}

	now := e.now()
	process := Process{
		Id:            uuid.NewString(),
		DefinitionKey: definitionKey,
		Variables:     vars,
		CreatedAt:     now,
	}
	first := e.newTask(process.Id, config.DefaultDispatchTopic, vars, now)
	if err := e.store.CreateProcess(ctx, process, first); err != nil {
		return nil, err
	}
	e.notifyNewTask()
	e.logger.Info("process instance is started", tag.ProcessInstanceId(process.Id), tag.TaskId(first.Id))
	return &tasksource.ProcessInstance{Id: process.Id, DefinitionId: definitionKey}, nil
}

// FetchAndLock waits up to the async response timeout when there is nothing to lock
func (e *Engine) FetchAndLock(
	ctx context.Context, request tasksource.FetchAndLockRequest,
) ([]tasksource.LockedTask, error) {
	topics := make([]TopicLock, 0, len(request.Topics))
	for _, t := range request.Topics {
		topics = append(topics, TopicLock{
			TopicName:    t.TopicName,
			LockDuration: time.Duration(t.LockDuration) * time.Millisecond,
		})
	}
	if request.WorkerId == "" || request.MaxTasks <= 0 {
		return nil, &LockError{WorkerId: request.WorkerId, Reason: "workerId and a positive maxTasks are required"}
	}

	var deadline <-chan time.Time
	if request.AsyncResponseTimeout != nil && *request.AsyncResponseTimeout > 0 {
		timer := time.NewTimer(time.Duration(*request.AsyncResponseTimeout) * time.Millisecond)
		defer timer.Stop()
		deadline = timer.C
	}

	for {
		wakeUp := e.newTaskChan()
		tasks, err := e.store.FetchAndLock(ctx, request.WorkerId, topics, request.MaxTasks, e.now())
		if err != nil {
			return nil, err
		}
		if len(tasks) > 0 || deadline == nil {
			return toLockedTasks(tasks), nil
		}
		select {
		case <-wakeUp:
		case <-deadline:
			return nil, nil
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

func (e *Engine) ExtendLock(ctx context.Context, taskId string, request tasksource.ExtendLockRequest) error {
	if request.NewDuration <= 0 {
		return &LockError{TaskId: taskId, WorkerId: request.WorkerId, Reason: "newDuration must be positive"}
	}
	now := e.now()
	until := now.Add(time.Duration(request.NewDuration) * time.Millisecond)
	return e.store.ExtendLock(ctx, taskId, request.WorkerId, until, now)
}

func (e *Engine) Complete(ctx context.Context, taskId string, request tasksource.CompleteRequest) error {
	now := e.now()
	var created bool
	err := e.store.Complete(ctx, CompleteParams{
		TaskId:    taskId,
		WorkerId:  request.WorkerId,
		Variables: inferTypes(request.Variables),
		Now:       now,
		Route: func(completed Task, variables tasksource.Variables) (*Task, bool, error) {
			next, end, err := e.route(completed, variables, now)
			created = next != nil
			return next, end, err
		},
	})
	if err != nil {
		return err
	}
	if created {
		e.notifyNewTask()
	}
	e.logger.Info("external task is completed", tag.TaskId(taskId), tag.WorkerId(request.WorkerId))
	return nil
}

func (e *Engine) GetTask(ctx context.Context, taskId string) (*tasksource.LockedTask, error) {
	task, err := e.store.GetTask(ctx, taskId)
	if err != nil {
		return nil, err
	}
	if task.Completed {
		return nil, fmt.Errorf("external task %v is completed: %w", taskId, ErrNotFound)
	}
	locked := toLockedTask(task)
	return &locked, nil
}

func (e *Engine) GetProcess(ctx context.Context, processId string) (*tasksource.ProcessInstance, error) {
	process, err := e.store.GetProcess(ctx, processId)
	if err != nil {
		return nil, err
	}
	return &tasksource.ProcessInstance{
		Id:           process.Id,
		DefinitionId: process.DefinitionKey,
		Ended:        process.Ended,
	}, nil
}

func (e *Engine) GetProcessVariables(ctx context.Context, processId string) (tasksource.Variables, error) {
	process, err := e.store.GetProcess(ctx, processId)
	if err != nil {
		return nil, err
	}
	return process.Variables, nil
}

func (e *Engine) route(completed Task, variables tasksource.Variables, now time.Time) (*Task, bool, error) {
	switch completed.TopicName {
	case config.DefaultDispatchTopic:
		score, err := variables.GetInt(handoff.VarScore)
		if err != nil {
			return nil, false, fmt.Errorf("%w: %v", ErrInvalidVariables, err)
		}
		topic := config.DefaultRejectTopic
		if score >= e.approvalThreshold {
			topic = config.DefaultGrantTopic
		}
		next := e.newTask(completed.ProcessInstanceId, topic, variables, now)
		return &next, false, nil
	}
	// loanGranter and requestRejecter end the process
	return nil, true, nil
}

func (e *Engine) newTask(processId, topic string, variables tasksource.Variables, now time.Time) Task {
	return Task{
		Id:                uuid.NewString(),
		TopicName:         topic,
		ProcessInstanceId: processId,
		Variables:         variables,
		CreatedAt:         now,
	}
}

func (e *Engine) newTaskChan() <-chan struct{} {
	e.lock.Lock()
	defer e.lock.Unlock()
	return e.newTaskCh
}

func (e *Engine) notifyNewTask() {
	e.lock.Lock()
	defer e.lock.Unlock()
	close(e.newTaskCh)
	e.newTaskCh = make(chan struct{})
}

func toLockedTasks(tasks []Task) []tasksource.LockedTask {
	locked := make([]tasksource.LockedTask, 0, len(tasks))
	for _, t := range tasks {
		locked = append(locked, toLockedTask(t))
	}
	return locked
}

func toLockedTask(t Task) tasksource.LockedTask {
	task := tasksource.LockedTask{
		Id:                   t.Id,
		TopicName:            t.TopicName,
		WorkerId:             t.WorkerId,
		ProcessInstanceId:    t.ProcessInstanceId,
		ProcessDefinitionKey: config.DefaultProcessKey,
		Variables:            t.Variables,
	}
	if !t.LockExpirationTime.IsZero() {
		task.LockExpirationTime = t.LockExpirationTime.Format(tasksource.LockTimeLayout)
	}
	return task
}

// inferTypes types the untyped values the way the engine REST API does for JSON values
func inferTypes(vars tasksource.Variables) tasksource.Variables {
	typed := make(tasksource.Variables, len(vars))
	for name, v := range vars {
		if v.Type == "" {
			switch value := v.Value.(type) {
			case nil:
				v.Type = tasksource.TypeNull
			case string:
				v.Type = tasksource.TypeString
			case bool:
				v.Type = "Boolean"
			case float64:
				if value == math.Trunc(value) && math.Abs(value) <= math.MaxInt32 {
					v = tasksource.IntegerVariable(int(value))
				} else {
					v.Type = "Double"
				}
			case int:
				v = tasksource.IntegerVariable(value)
			}
		}
		typed[name] = v
	}
	return typed
}
